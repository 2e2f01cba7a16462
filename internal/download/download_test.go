package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(fs afero.Fs) *Downloader {
	d := New(fs)
	d.InitialInterval = time.Millisecond
	d.MaxElapsedTime = 5 * time.Second
	return d
}

func TestFetchToFile_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("jar-bytes"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	n, err := newTestDownloader(fs).FetchToFile(context.Background(), srv.URL+"/forge.jar", "/srv/mc/forge.jar")

	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, int32(3), calls.Load())

	data, err := afero.ReadFile(fs, "/srv/mc/forge.jar")
	require.NoError(t, err)
	assert.Equal(t, "jar-bytes", string(data))
}

func TestFetchToFile_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	_, err := newTestDownloader(fs).FetchToFile(context.Background(), srv.URL+"/missing.jar", "/out/missing.jar")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())

	exists, _ := afero.Exists(fs, "/out/missing.jar")
	assert.False(t, exists)
}

func TestFetchToFile_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := newTestDownloader(afero.NewMemMapFs())
	d.MaxRetries = 2

	_, err := d.FetchToFile(context.Background(), srv.URL, "/out/x.jar")

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestFetchToFile_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDownloader(afero.NewMemMapFs()).FetchToFile(ctx, srv.URL, "/out/x.jar")

	assert.Error(t, err)
}

func TestStatusError_Retryable(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 500}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 429}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 403}).Retryable())
	assert.Contains(t, (&StatusError{URL: "http://x", StatusCode: 404}).Error(), "404 Not Found")
}

// Package download fetches files over HTTP with retries.
//
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff; other 4xx responses fail immediately. Each attempt truncates the
// destination, so a file is never left holding a mix of two responses.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"serverharness/internal/logging"
)

// DefaultMaxRetries bounds retries when no limit is configured.
const DefaultMaxRetries = 5

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether a later attempt might succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Downloader fetches URLs into files on an afero filesystem.
type Downloader struct {
	client *http.Client
	fs     afero.Fs
	logger *logging.Logger

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration

	// MaxElapsedTime bounds the total time spent retrying.
	MaxElapsedTime time.Duration
}

// New creates a Downloader writing to fs.
func New(fs afero.Fs) *Downloader {
	return &Downloader{
		client:          http.DefaultClient,
		fs:              fs,
		logger:          logging.NopLogger(),
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxElapsedTime:  2 * time.Minute,
	}
}

// SetHTTPClient replaces the HTTP client.
func (d *Downloader) SetHTTPClient(c *http.Client) {
	d.client = c
}

// SetLogger configures logging of attempts and retries.
func (d *Downloader) SetLogger(l *logging.Logger) {
	d.logger = l.WithComponent("download")
}

// FetchToFile downloads url into dest, creating parent directories, and
// returns the number of bytes written.
func (d *Downloader) FetchToFile(ctx context.Context, url, dest string) (int64, error) {
	if err := d.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.InitialInterval
	policy.MaxElapsedTime = d.MaxElapsedTime

	var b backoff.BackOff = policy
	if d.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(d.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	started := time.Now()
	size, err := backoff.RetryNotifyWithData(
		func() (int64, error) {
			n, err := d.attempt(ctx, url, dest)
			if err == nil {
				return n, nil
			}
			if se, ok := err.(*StatusError); ok && !se.Retryable() {
				return 0, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return 0, backoff.Permanent(err)
			}
			return 0, err
		},
		b,
		func(err error, wait time.Duration) {
			d.logger.Warn("download failed, retrying", "url", url, "retry_in", wait.String(), "error", err.Error())
		},
	)
	if err != nil {
		_ = d.fs.Remove(dest)
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}

	d.logger.Info("downloaded file",
		"url", url,
		"dest", dest,
		"size", humanize.Bytes(uint64(size)),
		"took", time.Since(started).Round(time.Millisecond).String())
	return size, nil
}

func (d *Downloader) attempt(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "serverharness")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	f, err := d.fs.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to create %s: %w", dest, err))
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return 0, copyErr
	}
	if closeErr != nil {
		return 0, backoff.Permanent(closeErr)
	}
	return n, nil
}

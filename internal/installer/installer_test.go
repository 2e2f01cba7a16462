package installer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverharness/internal/process"
)

// MockProcess is an already-finished process with canned output.
type MockProcess struct {
	lines    chan process.Line
	done     chan struct{}
	exitCode int
}

func newFinishedProcess(exitCode int, output ...string) *MockProcess {
	p := &MockProcess{
		lines:    make(chan process.Line, len(output)),
		done:     make(chan struct{}),
		exitCode: exitCode,
	}
	for _, o := range output {
		p.lines <- process.Line{Stream: process.StreamStdout, Text: o}
	}
	close(p.lines)
	close(p.done)
	return p
}

func (p *MockProcess) Pid() int                   { return 1 }
func (p *MockProcess) WriteLine(string) error     { return nil }
func (p *MockProcess) Lines() <-chan process.Line { return p.lines }
func (p *MockProcess) Done() <-chan struct{}      { return p.done }
func (p *MockProcess) ExitCode() int              { return p.exitCode }
func (p *MockProcess) Kill() error                { return nil }

// MockSpawner records the installer invocation and simulates its effect.
type MockSpawner struct {
	OnSpawn func(cmd process.Command) (process.Process, error)
	Calls   []process.Command
}

func (s *MockSpawner) Spawn(_ context.Context, cmd process.Command) (process.Process, error) {
	s.Calls = append(s.Calls, cmd)
	return s.OnSpawn(cmd)
}

func newTestInstaller(t *testing.T, fs afero.Fs, mavenURL string, spawner *MockSpawner) *Installer {
	t.Helper()
	inst := New(Options{
		ServerDir:        "/srv/mc",
		MinecraftVersion: "1.20.1",
		ForgeVersion:     "47.2.0",
		MavenURL:         mavenURL,
		MaxRetries:       1,
	})
	inst.SetFs(fs)
	inst.Downloader().InitialInterval = time.Millisecond
	inst.SetSpawner(spawner)
	return inst
}

func TestInstaller_URLAndCandidates(t *testing.T) {
	inst := New(Options{MinecraftVersion: "1.20.1", ForgeVersion: "47.2.0"})

	assert.Equal(t,
		"https://maven.minecraftforge.net/net/minecraftforge/forge/1.20.1-47.2.0/forge-1.20.1-47.2.0-installer.jar",
		inst.InstallerURL())
	assert.Equal(t, []string{
		"forge-1.20.1-47.2.0-shim.jar",
		"forge-1.20.1-47.2.0.jar",
		"forge-1.20.1-47.2.0-universal.jar",
	}, inst.Candidates())
}

func TestInstaller_ServerJarPreference(t *testing.T) {
	fs := afero.NewMemMapFs()
	inst := newTestInstaller(t, fs, "http://unused", &MockSpawner{})

	assert.False(t, inst.IsInstalled())

	require.NoError(t, afero.WriteFile(fs, "/srv/mc/forge-1.20.1-47.2.0-universal.jar", nil, 0644))
	assert.Equal(t, filepath.Join("/srv/mc", "forge-1.20.1-47.2.0-universal.jar"), inst.ServerJar())

	require.NoError(t, afero.WriteFile(fs, "/srv/mc/forge-1.20.1-47.2.0-shim.jar", nil, 0644))
	assert.Equal(t, filepath.Join("/srv/mc", "forge-1.20.1-47.2.0-shim.jar"), inst.ServerJar())
	assert.True(t, inst.IsInstalled())
}

func TestInstaller_EnsureInstalled_AlreadyInstalled(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/mc/forge-1.20.1-47.2.0.jar", nil, 0644))
	spawner := &MockSpawner{}
	inst := newTestInstaller(t, fs, "http://unused", spawner)

	res, err := inst.EnsureInstalled(context.Background())

	require.NoError(t, err)
	assert.True(t, res.AlreadyInstalled)
	assert.Empty(t, spawner.Calls)
}

func TestInstaller_EnsureInstalled_DownloadsAndRuns(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		_, _ = w.Write([]byte("installer"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	spawner := &MockSpawner{OnSpawn: func(cmd process.Command) (process.Process, error) {
		// The installer writes the server jar and a log next to itself.
		_ = afero.WriteFile(fs, "/srv/mc/forge-1.20.1-47.2.0.jar", []byte("server"), 0644)
		_ = afero.WriteFile(fs, "/srv/mc/forge-1.20.1-47.2.0-installer.jar.log", []byte("log"), 0644)
		return newFinishedProcess(0, "Extracting main jar", "The server installed successfully"), nil
	}}
	inst := newTestInstaller(t, fs, srv.URL, spawner)

	res, err := inst.EnsureInstalled(context.Background())

	require.NoError(t, err)
	assert.False(t, res.AlreadyInstalled)
	assert.Equal(t, filepath.Join("/srv/mc", "forge-1.20.1-47.2.0.jar"), res.ServerJar)
	assert.Equal(t, int64(len("installer")), res.InstallerSize)
	assert.Equal(t, "/net/minecraftforge/forge/1.20.1-47.2.0/forge-1.20.1-47.2.0-installer.jar", requested)

	require.Len(t, spawner.Calls, 1)
	assert.Equal(t, "java", spawner.Calls[0].Path)
	assert.Equal(t, []string{"-jar", "forge-1.20.1-47.2.0-installer.jar", "--installServer"}, spawner.Calls[0].Args)
	assert.Equal(t, "/srv/mc", spawner.Calls[0].Dir)

	for _, leftover := range []string{"forge-1.20.1-47.2.0-installer.jar", "forge-1.20.1-47.2.0-installer.jar.log"} {
		exists, _ := afero.Exists(fs, filepath.Join("/srv/mc", leftover))
		assert.False(t, exists, "%s is cleaned up", leftover)
	}
}

func TestInstaller_EnsureInstalled_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("installer"))
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		onSpawn func(cmd process.Command) (process.Process, error)
		wantErr string
	}{
		{
			name: "installer exits non-zero",
			onSpawn: func(process.Command) (process.Process, error) {
				return newFinishedProcess(1, "Exception in thread main"), nil
			},
			wantErr: "exited with code 1",
		},
		{
			name: "installer cannot start",
			onSpawn: func(process.Command) (process.Process, error) {
				return nil, errors.New("java not found")
			},
			wantErr: "failed to run forge installer",
		},
		{
			name: "no server jar produced",
			onSpawn: func(process.Command) (process.Process, error) {
				return newFinishedProcess(0), nil
			},
			wantErr: "no server jar found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			inst := newTestInstaller(t, fs, srv.URL, &MockSpawner{OnSpawn: tt.onSpawn})

			_, err := inst.EnsureInstalled(context.Background())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			exists, _ := afero.Exists(fs, "/srv/mc/forge-1.20.1-47.2.0-installer.jar")
			assert.False(t, exists, "installer is removed even on failure")
		})
	}
}

func TestInstaller_EnsureInstalled_DownloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	spawner := &MockSpawner{}
	inst := newTestInstaller(t, afero.NewMemMapFs(), srv.URL, spawner)

	_, err := inst.EnsureInstalled(context.Background())

	assert.ErrorContains(t, err, "failed to fetch forge installer")
	assert.Empty(t, spawner.Calls)
}

// Package installer installs a Forge server into a directory.
//
// [Installer.EnsureInstalled] is idempotent: when a server jar for the
// configured versions already exists nothing is downloaded. Otherwise the
// Forge installer jar is fetched from the maven repository, run with
// --installServer in the server directory, and its leftovers are removed.
package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"serverharness/internal/download"
	"serverharness/internal/logging"
	"serverharness/internal/process"
)

// DefaultMavenURL is the Forge maven repository.
const DefaultMavenURL = "https://maven.minecraftforge.net"

// Options identifies what to install and where.
type Options struct {
	ServerDir        string
	MinecraftVersion string
	ForgeVersion     string

	// JavaPath runs the installer jar. Default: "java".
	JavaPath string

	// MavenURL is the repository base URL. Default: [DefaultMavenURL].
	MavenURL string

	// MaxRetries bounds installer download retries.
	MaxRetries int

	// KeepInstaller skips removing the installer jar and its log.
	KeepInstaller bool
}

// Result describes what EnsureInstalled did.
type Result struct {
	// ServerJar is the path of the server jar to launch.
	ServerJar string

	// AlreadyInstalled is true when no install was needed.
	AlreadyInstalled bool

	// InstallerSize is the downloaded installer size in bytes.
	InstallerSize int64

	Duration time.Duration
}

// Installer installs Forge servers.
type Installer struct {
	opts       Options
	fs         afero.Fs
	spawner    process.Spawner
	downloader *download.Downloader
	logger     *logging.Logger
}

// New creates an Installer that writes to the OS filesystem and runs the
// installer as a real child process.
func New(opts Options) *Installer {
	if opts.JavaPath == "" {
		opts.JavaPath = "java"
	}
	if opts.MavenURL == "" {
		opts.MavenURL = DefaultMavenURL
	}

	fs := afero.NewOsFs()
	d := download.New(fs)
	d.MaxRetries = opts.MaxRetries

	return &Installer{
		opts:       opts,
		fs:         fs,
		spawner:    process.NewExecSpawner(),
		downloader: d,
		logger:     logging.NopLogger(),
	}
}

// SetFs replaces the filesystem used for jar detection, downloads, and cleanup.
func (i *Installer) SetFs(fs afero.Fs) {
	i.fs = fs
	retries := i.downloader.MaxRetries
	i.downloader = download.New(fs)
	i.downloader.MaxRetries = retries
	i.downloader.SetLogger(i.logger)
}

// SetSpawner replaces the process spawner that runs the installer jar.
func (i *Installer) SetSpawner(s process.Spawner) {
	i.spawner = s
}

// Downloader exposes the installer's downloader for tuning.
func (i *Installer) Downloader() *download.Downloader {
	return i.downloader
}

// SetLogger configures structured logging.
func (i *Installer) SetLogger(l *logging.Logger) {
	i.logger = l.WithComponent("installer")
	i.downloader.SetLogger(l)
}

// baseName is the common prefix of every Forge artifact for the versions.
func (i *Installer) baseName() string {
	return fmt.Sprintf("forge-%s-%s", i.opts.MinecraftVersion, i.opts.ForgeVersion)
}

// InstallerURL returns the maven URL of the installer jar.
func (i *Installer) InstallerURL() string {
	coord := i.opts.MinecraftVersion + "-" + i.opts.ForgeVersion
	return fmt.Sprintf("%s/net/minecraftforge/forge/%s/%s-installer.jar", i.opts.MavenURL, coord, i.baseName())
}

// Candidates lists the server jar names in preference order.
func (i *Installer) Candidates() []string {
	base := i.baseName()
	return []string{base + "-shim.jar", base + ".jar", base + "-universal.jar"}
}

// ServerJar returns the path of the first existing candidate jar, or "" if
// none exists.
func (i *Installer) ServerJar() string {
	for _, name := range i.Candidates() {
		p := filepath.Join(i.opts.ServerDir, name)
		if ok, _ := afero.Exists(i.fs, p); ok {
			return p
		}
	}
	return ""
}

// IsInstalled reports whether a server jar exists.
func (i *Installer) IsInstalled() bool {
	return i.ServerJar() != ""
}

// EnsureInstalled installs the server unless it is already installed.
func (i *Installer) EnsureInstalled(ctx context.Context) (Result, error) {
	started := time.Now()

	if jar := i.ServerJar(); jar != "" {
		i.logger.Info("server already installed", "jar", jar)
		return Result{ServerJar: jar, AlreadyInstalled: true, Duration: time.Since(started)}, nil
	}

	if err := i.fs.MkdirAll(i.opts.ServerDir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create server directory: %w", err)
	}

	installerJar := filepath.Join(i.opts.ServerDir, i.baseName()+"-installer.jar")
	i.logger.Info("downloading forge installer", "url", i.InstallerURL())

	size, err := i.downloader.FetchToFile(ctx, i.InstallerURL(), installerJar)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch forge installer: %w", err)
	}

	runErr := i.runInstaller(ctx, installerJar)

	if !i.opts.KeepInstaller {
		i.cleanup(installerJar)
	}
	if runErr != nil {
		return Result{}, runErr
	}

	jar := i.ServerJar()
	if jar == "" {
		return Result{}, fmt.Errorf("forge installer finished but no server jar found (looked for %v)", i.Candidates())
	}

	res := Result{ServerJar: jar, InstallerSize: size, Duration: time.Since(started)}
	i.logger.Info("server installed", "jar", jar, "took", res.Duration.Round(time.Millisecond).String())
	return res, nil
}

// runInstaller runs the installer jar to completion, logging its output.
func (i *Installer) runInstaller(ctx context.Context, installerJar string) error {
	cmd := process.Command{
		Path: i.opts.JavaPath,
		Args: []string{"-jar", filepath.Base(installerJar), "--installServer"},
		Dir:  i.opts.ServerDir,
	}
	i.logger.Info("running forge installer", "command", cmd.String())

	proc, err := i.spawner.Spawn(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to run forge installer: %w", err)
	}

	lines := proc.Lines()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			i.logger.Debug("installer output", "stream", string(line.Stream), "line", line.Text)
		case <-proc.Done():
			if lines != nil {
				for line := range lines {
					i.logger.Debug("installer output", "stream", string(line.Stream), "line", line.Text)
				}
			}
			if code := proc.ExitCode(); code != 0 {
				return fmt.Errorf("forge installer exited with code %d", code)
			}
			return nil
		case <-ctx.Done():
			_ = proc.Kill()
			if lines != nil {
				for range lines {
				}
			}
			<-proc.Done()
			return fmt.Errorf("forge installer interrupted: %w", ctx.Err())
		}
	}
}

// cleanup removes installer leftovers. Failures are logged, never returned.
func (i *Installer) cleanup(installerJar string) {
	for _, p := range []string{installerJar, installerJar + ".log"} {
		if err := i.fs.Remove(p); err != nil {
			if ok, _ := afero.Exists(i.fs, p); ok {
				i.logger.Warn("failed to remove installer file", "path", p, "error", err.Error())
			}
		}
	}
}

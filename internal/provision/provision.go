// Package provision copies mods and config files into a server directory.
//
// Mods come from a [manifest.Manifest]: local jars and directories are
// copied, URLs are downloaded, several at a time. Entries with a checksum are
// verified after they land in <server dir>/mods; a mismatch deletes the file
// and fails the run before the server is launched.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"serverharness/internal/download"
	"serverharness/internal/logging"
	"serverharness/internal/manifest"
)

// DefaultConcurrency bounds parallel mod installs when none is configured.
const DefaultConcurrency = 4

// ChecksumError reports a mod whose content does not match its manifest digest.
type ChecksumError struct {
	Name string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("mod %s: sha256 mismatch (want %s, got %s)", e.Name, e.Want, e.Got)
}

// Options configures a Provisioner.
type Options struct {
	ServerDir string

	// Mods lists the mods to install. Nil installs none.
	Mods *manifest.Manifest

	// ConfigDir is copied recursively into <server dir>/config. Empty skips it.
	ConfigDir string

	// Concurrency bounds parallel mod installs.
	Concurrency int
}

// Provisioner copies mods and configs into a server directory.
type Provisioner struct {
	opts       Options
	fs         afero.Fs
	downloader *download.Downloader
	logger     *logging.Logger
}

// New creates a Provisioner on the OS filesystem.
func New(opts Options) *Provisioner {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	fs := afero.NewOsFs()
	return &Provisioner{
		opts:       opts,
		fs:         fs,
		downloader: download.New(fs),
		logger:     logging.NopLogger(),
	}
}

// SetFs replaces the filesystem for both sources and destinations.
func (p *Provisioner) SetFs(fs afero.Fs) {
	p.fs = fs
	p.downloader = download.New(fs)
	p.downloader.SetLogger(p.logger)
}

// Downloader exposes the downloader used for URL sources.
func (p *Provisioner) Downloader() *download.Downloader {
	return p.downloader
}

// SetLogger configures structured logging.
func (p *Provisioner) SetLogger(l *logging.Logger) {
	p.logger = l.WithComponent("provision")
	p.downloader.SetLogger(l)
}

// ModsDir is where mods are installed.
func (p *Provisioner) ModsDir() string {
	return filepath.Join(p.opts.ServerDir, "mods")
}

// ConfigDir is where config files are copied.
func (p *Provisioner) ConfigDir() string {
	return filepath.Join(p.opts.ServerDir, "config")
}

// CopyMods installs every manifest entry into the mods directory. The first
// failure cancels the remaining installs.
func (p *Provisioner) CopyMods(ctx context.Context) error {
	if p.opts.Mods == nil || len(p.opts.Mods.Entries) == 0 {
		p.logger.Debug("no mods to install")
		return nil
	}

	if err := p.fs.MkdirAll(p.ModsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create mods directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for _, entry := range p.opts.Mods.Entries {
		g.Go(func() error {
			return p.installMod(ctx, entry)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Info("mods installed", "count", len(p.opts.Mods.Entries), "dir", p.ModsDir())
	return nil
}

func (p *Provisioner) installMod(ctx context.Context, entry manifest.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := filepath.Join(p.ModsDir(), entry.FileName())

	if entry.Kind() == manifest.SourceURL {
		if _, err := p.downloader.FetchToFile(ctx, entry.Source, dest); err != nil {
			return fmt.Errorf("mod %s: %w", entry.Name, err)
		}
		return p.verify(entry, dest)
	}

	info, err := p.fs.Stat(entry.Source)
	if err != nil {
		return fmt.Errorf("mod %s: %w", entry.Name, err)
	}

	if info.IsDir() {
		return p.copyJarDir(ctx, entry)
	}

	n, err := p.copyFile(entry.Source, dest)
	if err != nil {
		return fmt.Errorf("mod %s: %w", entry.Name, err)
	}
	p.logger.Debug("mod copied", "mod", entry.Name, "dest", dest, "size", humanize.Bytes(uint64(n)))
	return p.verify(entry, dest)
}

// copyJarDir copies every .jar directly inside a directory source.
func (p *Provisioner) copyJarDir(ctx context.Context, entry manifest.Entry) error {
	infos, err := afero.ReadDir(p.fs, entry.Source)
	if err != nil {
		return fmt.Errorf("mod %s: %w", entry.Name, err)
	}

	copied := 0
	for _, info := range infos {
		if info.IsDir() || !strings.EqualFold(filepath.Ext(info.Name()), ".jar") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(entry.Source, info.Name())
		if _, err := p.copyFile(src, filepath.Join(p.ModsDir(), info.Name())); err != nil {
			return fmt.Errorf("mod %s: %w", entry.Name, err)
		}
		copied++
	}

	p.logger.Debug("mod directory copied", "mod", entry.Name, "jars", copied)
	return nil
}

func (p *Provisioner) verify(entry manifest.Entry, path string) error {
	if entry.SHA256 == "" {
		return nil
	}

	got, err := p.digest(path)
	if err != nil {
		return fmt.Errorf("mod %s: %w", entry.Name, err)
	}
	if got != entry.SHA256 {
		_ = p.fs.Remove(path)
		return &ChecksumError{Name: entry.Name, Want: entry.SHA256, Got: got}
	}
	return nil
}

func (p *Provisioner) digest(path string) (string, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyConfigs copies the config tree into the server's config directory,
// overwriting existing files.
func (p *Provisioner) CopyConfigs(ctx context.Context) error {
	src := p.opts.ConfigDir
	if src == "" {
		p.logger.Debug("no config directory to copy")
		return nil
	}

	info, err := p.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to read config directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config source %s is not a directory", src)
	}

	dst := p.ConfigDir()
	files := 0
	err = afero.Walk(p.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return p.fs.MkdirAll(target, 0755)
		}
		if _, err := p.copyFile(path, target); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to copy configs: %w", err)
	}

	p.logger.Info("configs copied", "files", files, "dir", dst)
	return nil
}

func (p *Provisioner) copyFile(src, dst string) (int64, error) {
	in, err := p.fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := p.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	out, err := p.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

package report

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Writer writes run reports to YAML files.
type Writer struct {
	fs   afero.Fs
	path string
}

// NewWriter creates a [Writer] for the report at path on fs.
func NewWriter(fs afero.Fs, path string) *Writer {
	return &Writer{fs: fs, path: path}
}

// Path returns the report file the writer writes.
func (w *Writer) Path() string { return w.path }

// Write replaces the report file with rep.
func (w *Writer) Write(rep *Report) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	if err := w.fs.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	// Write to temp, then rename
	tmpPath := w.path + ".tmp"
	if err := afero.WriteFile(w.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	if err := w.fs.Rename(tmpPath, w.path); err != nil {
		w.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write run report: %w", err)
	}

	return nil
}

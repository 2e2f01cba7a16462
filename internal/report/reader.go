package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the report file name inside the server directory.
const DefaultFileName = "serverharness-report.yaml"

// EnvReportPath overrides every other report location when set.
const EnvReportPath = "SERVERHARNESS_REPORT_PATH"

// ResolvePath determines the report file location.
//
// Resolution order:
//  1. SERVERHARNESS_REPORT_PATH environment variable (used as-is if set)
//  2. Explicit reportPath parameter (if non-empty)
//  3. <serverDir>/serverharness-report.yaml
func ResolvePath(serverDir, reportPath string) string {
	if envPath := os.Getenv(EnvReportPath); envPath != "" {
		return envPath
	}

	if reportPath != "" {
		return reportPath
	}

	return filepath.Join(serverDir, DefaultFileName)
}

// Reader reads run reports from YAML files.
type Reader struct {
	fs   afero.Fs
	path string
}

// NewReader creates a [Reader] for the report at path on fs.
func NewReader(fs afero.Fs, path string) *Reader {
	return &Reader{fs: fs, path: path}
}

// Path returns the report file the reader reads.
func (r *Reader) Path() string { return r.path }

// Read reads and parses the report file.
func (r *Reader) Read() (*Report, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run report: %w", err)
	}

	var rep Report
	if err := yaml.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to read run report: %w", err)
	}

	for i, s := range rep.Steps {
		if !s.Status.IsValid() {
			return nil, fmt.Errorf("failed to read run report: step %d has invalid status %q", i, s.Status)
		}
	}

	return &rep, nil
}

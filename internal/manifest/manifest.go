// Package manifest reads mod manifest files.
//
// A mod manifest lists the mods to install into a server before a run. Each
// entry names a source that is either a local jar, a local directory of jars,
// or an http(s) URL, plus an optional SHA-256 checksum the provisioner
// verifies after copying.
//
// CSV format:
//
//	name,source,sha256
//	jei,https://example.org/jei-1.20.1-forge-15.2.0.27.jar,5f1c...
//	testmod,./build/libs/testmod-1.0.0.jar,
//	extras,./run/mods,
//
// Only the source column is required. Rows keep their file order, which is
// also the order mods are logged and reported in. See [ReadYAMLFromBytes] for
// the equivalent YAML form.
package manifest

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SourceKind classifies where a mod comes from.
type SourceKind int

const (
	// SourcePath is a local file or directory.
	SourcePath SourceKind = iota
	// SourceURL is an http or https URL.
	SourceURL
)

// Entry represents a single mod in the manifest.
type Entry struct {
	// Name identifies the mod in logs and reports. Defaults to the base name
	// of Source without its extension.
	Name string `yaml:"name"`

	// Source is a local path or http(s) URL.
	Source string `yaml:"source"`

	// SHA256 is the expected lowercase hex digest of the jar. Empty skips
	// verification. Ignored for directory sources.
	SHA256 string `yaml:"sha256"`
}

// Kind reports whether the entry is fetched or copied.
func (e Entry) Kind() SourceKind {
	if u, err := url.Parse(e.Source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return SourceURL
	}
	return SourcePath
}

// FileName is the file name the mod is installed under.
func (e Entry) FileName() string {
	if e.Kind() == SourceURL {
		u, err := url.Parse(e.Source)
		if err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
			return path.Base(u.Path)
		}
		return e.Name + ".jar"
	}
	return filepath.Base(e.Source)
}

// Manifest holds all mod entries parsed from a manifest file.
type Manifest struct {
	Entries []Entry
}

// ReadFromFile reads and parses a mod manifest. Files ending in .yaml or
// .yml are parsed as YAML, everything else as CSV.
func ReadFromFile(path string) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		return ReadYAMLFromBytes(data)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return readFromReader(f)
}

// ReadFromString parses a CSV mod manifest from a string.
func ReadFromString(data string) (*Manifest, error) {
	return readFromReader(strings.NewReader(data))
}

func readFromReader(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var entries []Entry
	lineNum := 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest line %d: %w", lineNum, err)
		}

		entry := Entry{
			Name:   getField(record, colIndex, "name"),
			Source: getField(record, colIndex, "source"),
			SHA256: getField(record, colIndex, "sha256"),
		}
		if err := normalize(&entry); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNum, err)
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest contains no mod entries")
	}

	return &Manifest{Entries: entries}, nil
}

// normalize fills defaults and validates a single entry.
func normalize(e *Entry) error {
	if e.Source == "" {
		return fmt.Errorf("mod source is required")
	}
	if e.Name == "" {
		base := e.FileName()
		e.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if e.SHA256 != "" {
		e.SHA256 = strings.ToLower(e.SHA256)
		if b, err := hex.DecodeString(e.SHA256); err != nil || len(b) != 32 {
			return fmt.Errorf("mod %s: sha256 must be 64 hex characters", e.Name)
		}
	}
	return nil
}

var requiredColumns = []string{"source"}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("manifest missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Names returns the mod names in manifest order.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		names[i] = e.Name
	}
	return names
}

// Get returns the entry with the given name, or nil if not found.
func (m *Manifest) Get(name string) *Entry {
	for _, e := range m.Entries {
		if e.Name == name {
			return &e
		}
	}
	return nil
}

// Remote returns the entries that must be downloaded.
func (m *Manifest) Remote() []Entry {
	var entries []Entry
	for _, e := range m.Entries {
		if e.Kind() == SourceURL {
			entries = append(entries, e)
		}
	}
	return entries
}

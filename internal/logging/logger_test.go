package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_CreatesFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, logger.Close())

	_, err = os.Stat(filepath.Join(dir, LogFileName))
	assert.NoError(t, err)
}

func TestNewLogger_Stderr(t *testing.T) {
	logger, err := NewLogger("", LevelInfo)
	require.NoError(t, err)
	assert.Nil(t, logger.file)
	assert.NoError(t, logger.Close())
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLoggerWithWriter(buf, LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestLogger_PersistentAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLoggerWithWriter(buf, LevelDebug).
		WithRun("run-1").
		WithComponent("controller").
		With("pid", 42)

	logger.Info("state changed", "to", "Ready")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, float64(42), entry["pid"])
	assert.Equal(t, "Ready", entry["to"])
	assert.Equal(t, "state changed", entry["msg"])
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	parent := NewLoggerWithWriter(buf, LevelDebug)
	_ = parent.With("child", true)

	parent.Info("parent entry")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, ok := entry["child"]
	assert.False(t, ok)
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	assert.NoError(t, logger.Close())
}

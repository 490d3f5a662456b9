package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormatCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	l.DeploymentError("Bundling", errors.New("exit 1"))
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Bundling", entry["step"])
	assert.Equal(t, "exit 1", entry["error"])
}

func TestVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Options{Output: &buf})
	require.NoError(t, err)
	l.DeploymentStep("Extracting", "example.com")
	assert.Empty(t, buf.String())

	l, err = NewLogger(Options{Output: &buf, Verbose: true})
	require.NoError(t, err)
	l.DeploymentStep("Extracting", "example.com")
	assert.Contains(t, buf.String(), "Extracting")
}

func TestRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mdm.log")
	var buf bytes.Buffer
	l, err := NewLogger(Options{Output: &buf, File: path})
	require.NoError(t, err)

	l.Info("deploy started")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deploy started")
	assert.Contains(t, buf.String(), "deploy started")
}

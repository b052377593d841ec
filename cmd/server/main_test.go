package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReportsStartupFailure(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "logs", "server.log")
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"database": {"path": "`+filepath.Join(dir, "missing", "sos.db")+`"},
		"logging": {"file": "`+logFile+`"}
	}`), 0o600))
	t.Setenv("SOS_API_KEY", "test-key")

	err := run(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")

	logged, readErr := os.ReadFile(logFile)
	require.NoError(t, readErr)
	assert.Contains(t, string(logged), "server stopped")
	assert.Contains(t, string(logged), "failed to connect to database")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"capture": {"jpeg_quality": 0}}`), 0o600))
	t.Setenv("SOS_API_KEY", "test-key")

	err := run(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9876", cfg.ListenAddress)
	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "shared-global-board", cfg.DocumentID)
	assert.Equal(t, BackendFile, cfg.PersistenceBackend)
	assert.Contains(t, cfg.DataDir, ".mindlink")
	assert.NotEmpty(t, cfg.SQLitePath)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDRESS", ":7000")
	t.Setenv("PERSISTENCE_BACKEND", BackendSQLite)
	t.Setenv("DOCUMENT_ID", "team-board")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, https://board.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddress)
	assert.Equal(t, BackendSQLite, cfg.PersistenceBackend)
	assert.Equal(t, "team-board", cfg.DocumentID)
	assert.Equal(t, []string{"http://localhost:3000", "https://board.example.com"}, cfg.AllowedOrigins)
}

func TestLoadConfig_YAMLFileWithEnvWinning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_address: \":6000\"\nlog_level: debug\nenvironment: production\n",
	), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LISTEN_ADDRESS", ":6001")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":6001", cfg.ListenAddress, "env must win over file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadConfig_RejectsInvalidBackend(t *testing.T) {
	t.Setenv("PERSISTENCE_BACKEND", "dynamo")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_RejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	_, err := LoadConfig()
	require.Error(t, err)
}

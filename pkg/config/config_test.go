package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, 8*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.RenderCacheTTL)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesync.yaml")
	doc := "backend_url: https://api.example.com\nrequest_timeout: 2s\nmax_retries: 5\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BackendURL)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("SALESYNC_BACKEND_URL", "https://env.example.com")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.BackendURL)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/forge/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forge.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"nats": {"url": "nats://bus.internal:4222", "name": "forge-prod"},
		"log": {"level": "debug", "format": "text"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://bus.internal:4222", cfg.NATS.URL)
	assert.Equal(t, "forge-prod", cfg.NATS.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Scheduler.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/forge.json")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeConfig(t, "{broken")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"tls_url", func(c *Config) { c.NATS.URL = "tls://bus:4222" }, true},
		{"empty_nats_url", func(c *Config) { c.NATS.URL = "" }, false},
		{"http_nats_url", func(c *Config) { c.NATS.URL = "http://bus:4222" }, false},
		{"creds_and_token", func(c *Config) { c.NATS.CredsFile = "a.creds"; c.NATS.Token = "secret" }, false},
		{"empty_server_addr", func(c *Config) { c.Server.Addr = "" }, false},
		{"zero_workers", func(c *Config) { c.Scheduler.Workers = 0 }, false},
		{"bad_log_level", func(c *Config) { c.Log.Level = "verbose" }, false},
		{"bad_log_format", func(c *Config) { c.Log.Format = "yaml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 0, cfg.RetryPolicy.MaxRetries, "auto-retry is off by default")
	assert.Equal(t, DefaultMaxReconnects, cfg.Stream.MaxReconnects)
	assert.Equal(t, DefaultBackoffBase, cfg.Stream.BackoffBase)
	assert.Equal(t, DefaultBackoffCap, cfg.Stream.BackoffCap)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  base_url: https://automation.example.com
http:
  request_timeout: 10s
retry_policy:
  max_retries: 2
  initial_backoff: 250ms
  max_backoff: 2s
  multiplier: 2.0
stream:
  max_reconnects: 5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "https://automation.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 2, cfg.RetryPolicy.MaxRetries)
	assert.Equal(t, 5, cfg.Stream.MaxReconnects)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultBackoffCap, cfg.Stream.BackoffCap)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SMARTSCRIPT_API_URL", "http://10.0.0.5:9000")
	t.Setenv("SMARTSCRIPT_WS_URL", "ws://10.0.0.5:9000")
	t.Setenv("SMARTSCRIPT_REQUEST_TIMEOUT", "5s")
	t.Setenv("SMARTSCRIPT_MAX_RETRIES", "1")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "http://10.0.0.5:9000", cfg.Server.BaseURL)
	assert.Equal(t, "ws://10.0.0.5:9000", cfg.Server.WSURL)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 1, cfg.RetryPolicy.MaxRetries)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"bad scheme", func(c *Config) { c.Server.BaseURL = "ftp://example.com" }},
		{"ws url with http scheme", func(c *Config) { c.Server.WSURL = "http://example.com" }},
		{"zero timeout", func(c *Config) { c.HTTP.RequestTimeout = 0 }},
		{"negative retries", func(c *Config) { c.RetryPolicy.MaxRetries = -1 }},
		{"cap below base", func(c *Config) { c.Stream.BackoffCap = c.Stream.BackoffBase / 2 }},
		{"unknown log level", func(c *Config) { c.Logging.MinLevel = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWebSocketURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ws://localhost:8000", cfg.WebSocketURL())

	cfg.Server.BaseURL = "https://automation.example.com/"
	assert.Equal(t, "wss://automation.example.com", cfg.WebSocketURL())

	cfg.Server.WSURL = "wss://realtime.example.com/"
	assert.Equal(t, "wss://realtime.example.com", cfg.WebSocketURL())
}

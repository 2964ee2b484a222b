package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultRequestTimeout = 30 * time.Second
	DefaultDialTimeout    = 15 * time.Second
	DefaultMaxReconnects  = 3
	DefaultBackoffBase    = 1 * time.Second
	DefaultBackoffCap     = 10 * time.Second
	DefaultPingInterval   = 20 * time.Second
)

// Config represents the complete smartscript client configuration
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	HTTP        HTTPConfig      `yaml:"http"`
	RetryPolicy RetryPolicy     `yaml:"retry_policy"`
	Stream      StreamConfig    `yaml:"stream"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig points the client at a backend instance.
type ServerConfig struct {
	// BaseURL is the HTTP origin of the backend, e.g. http://localhost:8000.
	BaseURL string `yaml:"base_url"`
	// WSURL overrides the realtime origin. Empty derives ws(s):// from BaseURL.
	WSURL string `yaml:"ws_url"`
}

// HTTPConfig controls the request client.
type HTTPConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RateLimit caps outbound requests per second. 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	// InsecureTLS skips certificate verification (development only).
	InsecureTLS bool `yaml:"insecure_skip_verify"`
}

// RetryPolicy defines retry behavior for transient errors.
// Retries apply to idempotent requests only; MaxRetries 0 disables them.
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// StreamConfig controls the realtime execution-update channel.
type StreamConfig struct {
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	MaxReconnects int           `yaml:"max_reconnects"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffCap    time.Duration `yaml:"backoff_cap"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	// EventBuffer is the capacity of the delivered event channel.
	EventBuffer int `yaml:"event_buffer"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Dir      string `yaml:"dir"`
	MinLevel string `yaml:"min_level"`
}

// TelemetryConfig controls tracing output.
type TelemetryConfig struct {
	// TraceStdout enables the stdout span exporter.
	TraceStdout bool `yaml:"trace_stdout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: DefaultBaseURL,
		},
		HTTP: HTTPConfig{
			RequestTimeout: DefaultRequestTimeout,
		},
		RetryPolicy: RetryPolicy{
			MaxRetries:     0,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		},
		Stream: StreamConfig{
			DialTimeout:   DefaultDialTimeout,
			MaxReconnects: DefaultMaxReconnects,
			BackoffBase:   DefaultBackoffBase,
			BackoffCap:    DefaultBackoffCap,
			PingInterval:  DefaultPingInterval,
			EventBuffer:   64,
		},
		Logging: LoggingConfig{
			MinLevel: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the user config
// file (~/.smartscript/config.yaml), then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".smartscript", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from an explicit file path, still applying
// environment overrides afterwards.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SMARTSCRIPT_API_URL")); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SMARTSCRIPT_WS_URL")); v != "" {
		cfg.Server.WSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SMARTSCRIPT_REQUEST_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HTTP.RequestTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SMARTSCRIPT_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetryPolicy.MaxRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SMARTSCRIPT_LOG_LEVEL")); v != "" {
		cfg.Logging.MinLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("SMARTSCRIPT_LOG_DIR")); v != "" {
		cfg.Logging.Dir = v
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	raw := strings.TrimSpace(c.Server.BaseURL)
	if raw == "" {
		return fmt.Errorf("server.base_url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.base_url must be http or https, got %q", parsed.Scheme)
	}
	if ws := strings.TrimSpace(c.Server.WSURL); ws != "" {
		wsParsed, err := url.Parse(ws)
		if err != nil {
			return fmt.Errorf("server.ws_url: %w", err)
		}
		if wsParsed.Scheme != "ws" && wsParsed.Scheme != "wss" {
			return fmt.Errorf("server.ws_url must be ws or wss, got %q", wsParsed.Scheme)
		}
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	if c.RetryPolicy.MaxRetries < 0 {
		return fmt.Errorf("retry_policy.max_retries must not be negative")
	}
	if c.RetryPolicy.MaxRetries > 0 && c.RetryPolicy.Multiplier < 1 {
		return fmt.Errorf("retry_policy.multiplier must be >= 1")
	}
	if c.Stream.MaxReconnects < 0 {
		return fmt.Errorf("stream.max_reconnects must not be negative")
	}
	if c.Stream.BackoffBase <= 0 || c.Stream.BackoffCap < c.Stream.BackoffBase {
		return fmt.Errorf("stream backoff bounds are inconsistent")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.MinLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.min_level must be one of debug, info, warn, error")
	}
	return nil
}

// WebSocketURL resolves the realtime origin for the configured server.
// When ws_url is unset the HTTP origin is reused with the scheme swapped.
func (c *Config) WebSocketURL() string {
	if ws := strings.TrimSpace(c.Server.WSURL); ws != "" {
		return strings.TrimSuffix(ws, "/")
	}
	parsed, err := url.Parse(strings.TrimSpace(c.Server.BaseURL))
	if err != nil {
		return ""
	}
	if parsed.Scheme == "https" {
		parsed.Scheme = "wss"
	} else {
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

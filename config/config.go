// Package config loads and validates the Forge service configuration
// from a JSON file, with defaults suitable for local development.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/scheduler"
	"github.com/c360/forge/service"
)

// NATSConfig holds connection settings for the event bus.
type NATSConfig struct {
	URL            string        `json:"url"`
	Name           string        `json:"name"`
	CredsFile      string        `json:"credsFile,omitempty"`
	Token          string        `json:"token,omitempty"`
	ConnectTimeout time.Duration `json:"connectTimeout"`
	ReconnectWait  time.Duration `json:"reconnectWait"`
	MaxReconnects  int           `json:"maxReconnects"`
}

// LogConfig controls the slog handler in cmd/forge.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// Config is the complete application configuration.
type Config struct {
	NATS      NATSConfig       `json:"nats"`
	Server    service.Config   `json:"server"`
	Scheduler scheduler.Config `json:"scheduler"`
	Log       LogConfig        `json:"log"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "forge",
			ConnectTimeout: 10 * time.Second,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
		},
		Server:    service.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a JSON config file over the defaults. An empty path
// returns defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot work
// with.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return invalid("nats.url cannot be empty")
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return invalid(fmt.Sprintf("nats.url %q must use nats:// or tls://", c.NATS.URL))
	}
	if c.NATS.CredsFile != "" && c.NATS.Token != "" {
		return invalid("nats.credsFile and nats.token are mutually exclusive")
	}
	if c.Server.Addr == "" {
		return invalid("server.addr cannot be empty")
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q is not one of debug/info/warn/error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid(fmt.Sprintf("log.format %q is not json or text", c.Log.Format))
	}
	return nil
}

func invalid(message string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, message),
		"config", "Validate", "validate configuration")
}

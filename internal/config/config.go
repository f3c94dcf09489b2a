// Package config loads spawnd settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	API      APIConfig      `yaml:"api"`
	Store    StoreConfig    `yaml:"store"`
	Terminal TerminalConfig `yaml:"terminal"`
	Record   RecordConfig   `yaml:"record"`
	Log      LogConfig      `yaml:"log"`
}

type RelayConfig struct {
	Port         int           `yaml:"port"`
	HubCapacity  int           `yaml:"hub_capacity"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Path            string `yaml:"path"`
	ScrollbackLimit int    `yaml:"scrollback_limit"`
}

type TerminalConfig struct {
	Rows  uint16 `yaml:"rows"`
	Cols  uint16 `yaml:"cols"`
	Shell string `yaml:"shell"`
}

type RecordConfig struct {
	// Dir enables asciicast recording when set.
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Port:         9731,
			HubCapacity:  1024,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		API: APIConfig{
			Addr: "127.0.0.1:9730",
		},
		Store: StoreConfig{
			Path:            defaultStorePath(),
			ScrollbackLimit: 256 * 1024,
		},
		Terminal: TerminalConfig{
			Rows: 24,
			Cols: 80,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Store.Path = getEnv("SPAWN_DB_PATH", c.Store.Path)
	c.API.Addr = getEnv("SPAWN_API_ADDR", c.API.Addr)
	c.Record.Dir = getEnv("SPAWN_RECORD_DIR", c.Record.Dir)
	c.Log.Level = getEnv("SPAWN_LOG_LEVEL", c.Log.Level)
	if c.Terminal.Shell == "" {
		c.Terminal.Shell = os.Getenv("SHELL")
	}
}

// Validate checks the values that have no safe fallback.
func (c *Config) Validate() error {
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port %d out of range", c.Relay.Port)
	}
	if c.Relay.HubCapacity <= 0 {
		return fmt.Errorf("relay.hub_capacity must be positive, got %d", c.Relay.HubCapacity)
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return level, nil
}

// defaultStorePath is $XDG_DATA_HOME/spawn/spawn.db, falling back to
// data/spawn.db relative to the working directory.
func defaultStorePath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "spawn", "spawn.db")
	}
	return filepath.Join("data", "spawn.db")
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

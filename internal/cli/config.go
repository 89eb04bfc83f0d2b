package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no --config
// flag is given.
const DefaultConfigFile = "strand.yaml"

// Config represents the strand.yaml configuration file.
type Config struct {
	// Listen is the wire protocol address the interpreter binds.
	Listen string `yaml:"listen" json:"listen"`

	// HTTP is the introspection API address. Empty disables it.
	HTTP string `yaml:"http" json:"http"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Journal JournalConfig `yaml:"journal" json:"journal"`
}

// JournalConfig selects where run history is recorded.
type JournalConfig struct {
	// Backend is "memory", "file" or "redis". Empty means memory.
	Backend string `yaml:"backend" json:"backend"`

	// Path is the run directory for the file backend.
	// Empty defaults to .strand/runs.
	Path string `yaml:"path" json:"path"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig holds connection settings for the redis journal backend.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Listen:   ":65432",
		LogLevel: "info",
		Journal:  JournalConfig{Backend: "memory"},
	}
}

// LoadConfig reads a configuration file (YAML or JSON). A missing file at the
// default path falls back to DefaultConfig; a missing explicit path is an
// error. Unset fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Journal.Backend {
	case "", "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
	}
	if c.Journal.Backend == "redis" && c.Journal.Redis.Address == "" {
		return fmt.Errorf("journal backend redis requires an address")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level maps the configured log level onto slog. Validation has already
// rejected unknown names.
func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Package config loads the agent configuration from, in order of
// precedence: built-in defaults, a YAML file, SATHI_-prefixed environment
// variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config is the full agent configuration.
type Config struct {
	DataDir  string `koanf:"data_dir" validate:"required"`
	Database string `koanf:"database"`

	API struct {
		BaseURL        string `koanf:"base_url" validate:"required,url"`
		Token          string `koanf:"token"`
		TimeoutSeconds int    `koanf:"timeout_seconds" validate:"gt=0"`
	} `koanf:"api"`

	Download struct {
		Concurrency   int `koanf:"concurrency" validate:"gt=0"`
		RetryCap      int `koanf:"retry_cap" validate:"gt=0"`
		PollMillis    int `koanf:"poll_millis" validate:"gt=0"`
		PersistMillis int `koanf:"persist_millis" validate:"gt=0"`
	} `koanf:"download"`

	Sync struct {
		ProbeIntervalSeconds int `koanf:"probe_interval_seconds" validate:"gt=0"`
		DrainIntervalMinutes int `koanf:"drain_interval_minutes" validate:"gt=0"`
	} `koanf:"sync"`

	Retention struct {
		MaxAgeDays      int `koanf:"max_age_days" validate:"gt=0"`
		SweepEveryHours int `koanf:"sweep_every_hours" validate:"gt=0"`
	} `koanf:"retention"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	var c Config
	c.DataDir = "data"
	c.API.BaseURL = "http://localhost:8080"
	c.API.TimeoutSeconds = 30
	c.Download.Concurrency = 2
	c.Download.RetryCap = 3
	c.Download.PollMillis = 500
	c.Download.PersistMillis = 1000
	c.Sync.ProbeIntervalSeconds = 15
	c.Sync.DrainIntervalMinutes = 5
	c.Retention.MaxAgeDays = 90
	c.Retention.SweepEveryHours = 24
	return c
}

// Load merges defaults, the YAML file at path (when non-empty), SATHI_
// environment variables and the given flag set, then validates the result.
// A .env file in the working directory is applied to the environment first.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// SATHI_API__BASE_URL maps to api.base_url; double underscore nests.
	err := k.Load(env.Provider("SATHI_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "SATHI_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment config: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flag config: %w", err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.DataDir, "offline.db")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// APITimeout returns the sync-delivery timeout as a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// PollInterval returns the download runner poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Download.PollMillis) * time.Millisecond
}

// PersistInterval returns the byte-progress checkpoint period.
func (c Config) PersistInterval() time.Duration {
	return time.Duration(c.Download.PersistMillis) * time.Millisecond
}

// ProbeInterval returns the connectivity probe period.
func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.Sync.ProbeIntervalSeconds) * time.Second
}

// RetentionAge returns how old local data may grow before the sweep
// removes it.
func (c Config) RetentionAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeDays) * 24 * time.Hour
}

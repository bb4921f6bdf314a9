package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.Database != filepath.Join("data", "offline.db") {
		t.Fatalf("database should default under the data dir, got %q", cfg.Database)
	}
	if cfg.Download.Concurrency != 2 || cfg.Download.RetryCap != 3 {
		t.Fatalf("unexpected download defaults: %+v", cfg.Download)
	}
	if cfg.APITimeout() != 30*time.Second {
		t.Fatalf("unexpected api timeout %v", cfg.APITimeout())
	}
	if cfg.RetentionAge() != 90*24*time.Hour {
		t.Fatalf("unexpected retention age %v", cfg.RetentionAge())
	}
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := strings.Join([]string{
		"data_dir: /var/lib/sathi",
		"api:",
		"  base_url: https://api.example.org",
		"  timeout_seconds: 10",
		"download:",
		"  concurrency: 4",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config file failed: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/sathi" {
		t.Fatalf("data dir not overridden: %q", cfg.DataDir)
	}
	if cfg.API.BaseURL != "https://api.example.org" || cfg.API.TimeoutSeconds != 10 {
		t.Fatalf("api section not overridden: %+v", cfg.API)
	}
	if cfg.Download.Concurrency != 4 {
		t.Fatalf("download concurrency not overridden: %d", cfg.Download.Concurrency)
	}
	// Untouched keys keep their defaults.
	if cfg.Download.RetryCap != 3 {
		t.Fatalf("retry cap should stay at default, got %d", cfg.Download.RetryCap)
	}
	if cfg.Database != filepath.Join("/var/lib/sathi", "offline.db") {
		t.Fatalf("database should follow the data dir, got %q", cfg.Database)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SATHI_API__BASE_URL", "https://env.example.org")
	t.Setenv("SATHI_SYNC__PROBE_INTERVAL_SECONDS", "60")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.org" {
		t.Fatalf("env override missing: %q", cfg.API.BaseURL)
	}
	if cfg.ProbeInterval() != time.Minute {
		t.Fatalf("nested env override missing: %v", cfg.ProbeInterval())
	}
}

func TestLoadFlagsTakePrecedence(t *testing.T) {
	t.Setenv("SATHI_API__BASE_URL", "https://env.example.org")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("api.base_url", "", "")
	if err := flags.Parse([]string{"--api.base_url", "https://flag.example.org"}); err != nil {
		t.Fatalf("flag parse failed: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "https://flag.example.org" {
		t.Fatalf("flag should beat environment, got %q", cfg.API.BaseURL)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("SATHI_API__BASE_URL", "not a url")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected validation failure for malformed base url")
	}

	t.Setenv("SATHI_API__BASE_URL", "https://api.example.org")
	t.Setenv("SATHI_DOWNLOAD__CONCURRENCY", "0")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected validation failure for zero concurrency")
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logmirror/internal/logmirror/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOGMIRROR_CONFIG", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogRoot != "/var/log/logmirror" {
		t.Errorf("LogRoot = %q", cfg.LogRoot)
	}
	if cfg.ExcludeFile != "/etc/logmirror/exclude.conf" {
		t.Errorf("ExcludeFile = %q", cfg.ExcludeFile)
	}
	if cfg.Interval != 10*time.Second {
		t.Errorf("Interval = %s", cfg.Interval)
	}
	if cfg.StopTimeout != 5*time.Second {
		t.Errorf("StopTimeout = %s", cfg.StopTimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
	if cfg.DBPath != "/var/log/logmirror/logmirror.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr should default to disabled, got %q", cfg.HTTPAddr)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
log_root: /srv/logs
exclude_file: /srv/exclude.conf
interval: 30s
stop_timeout: 2s
http_addr: ":8080"
`)
	t.Setenv("LOGMIRROR_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogRoot != "/srv/logs" {
		t.Errorf("LogRoot = %q", cfg.LogRoot)
	}
	if cfg.ExcludeFile != "/srv/exclude.conf" {
		t.Errorf("ExcludeFile = %q", cfg.ExcludeFile)
	}
	if cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %s", cfg.Interval)
	}
	if cfg.StopTimeout != 2*time.Second {
		t.Errorf("StopTimeout = %s", cfg.StopTimeout)
	}
	// Unset file keys keep their defaults.
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
	// DBPath follows the overridden log root.
	if cfg.DBPath != "/srv/logs/logmirror.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_root: /srv/logs\ninterval: 30s\n")
	t.Setenv("LOGMIRROR_CONFIG", path)
	t.Setenv("LOGMIRROR_LOG_ROOT", "/data/logs")
	t.Setenv("LOGMIRROR_INTERVAL", "1m")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogRoot != "/data/logs" {
		t.Errorf("LogRoot = %q", cfg.LogRoot)
	}
	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %s", cfg.Interval)
	}
	if cfg.DBPath != "/data/logs/logmirror.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "logroot: /srv/logs\n")
	t.Setenv("LOGMIRROR_CONFIG", path)

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected schema rejection for unknown key")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "interval: fast\n")
	t.Setenv("LOGMIRROR_CONFIG", path)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected schema rejection for malformed duration")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("LOGMIRROR_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

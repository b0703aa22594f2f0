// Package config loads the daemon configuration. Values come from built-in
// defaults, overridden by an optional YAML file, overridden by environment
// variables. The YAML file is validated against an embedded JSON schema
// before any value is read from it.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"logmirror/common/environment"
)

//go:embed schema.json
var schemaJSON string

// Config holds the daemon's runtime configuration.
type Config struct {
	// LogRoot is the directory holding per-container log directories, the
	// daemon journal and, by default, the history database.
	LogRoot string
	// ExcludeFile is the exclusion list path, re-read every tick.
	ExcludeFile string
	// DBPath is the capture history SQLite database path.
	DBPath string
	// Interval between reconciliation passes.
	Interval time.Duration
	// StopTimeout bounds the graceful wait when stopping a capture task.
	StopTimeout time.Duration
	// ShutdownTimeout bounds the stop-everything sweep on daemon shutdown.
	ShutdownTimeout time.Duration
	// HTTPAddr is the health endpoint listen address; empty disables it.
	HTTPAddr string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogRoot:         "/var/log/logmirror",
		ExcludeFile:     "/etc/logmirror/exclude.conf",
		Interval:        10 * time.Second,
		StopTimeout:     5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// fileConfig mirrors the YAML document. Durations are strings ("10s") and
// parsed after schema validation.
type fileConfig struct {
	LogRoot         string `yaml:"log_root"`
	ExcludeFile     string `yaml:"exclude_file"`
	DBPath          string `yaml:"db_path"`
	Interval        string `yaml:"interval"`
	StopTimeout     string `yaml:"stop_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	HTTPAddr        string `yaml:"http_addr"`
}

// Load builds the effective configuration. The config file path comes from
// LOGMIRROR_CONFIG; if unset, /etc/logmirror/config.yaml is used when it
// exists. A path set explicitly via the environment must exist.
func Load() (Config, error) {
	cfg := Default()

	path := environment.StringOr("LOGMIRROR_CONFIG", "")
	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	} else if _, err := os.Stat("/etc/logmirror/config.yaml"); err == nil {
		if err := loadFile(&cfg, "/etc/logmirror/config.yaml"); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.LogRoot, "logmirror.db")
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := validate(data); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.LogRoot != "" {
		cfg.LogRoot = fc.LogRoot
	}
	if fc.ExcludeFile != "" {
		cfg.ExcludeFile = fc.ExcludeFile
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.Interval, &cfg.Interval},
		{fc.StopTimeout, &cfg.StopTimeout},
		{fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		*d.dst = v
	}
	return nil
}

// validate checks the YAML document against the embedded schema. The YAML is
// decoded to a generic document first; yaml.v3 produces the map[string]any
// shape the schema validator expects.
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc == nil {
		return nil
	}

	schema, err := jsonschema.CompileString("config.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogRoot = environment.StringOr("LOGMIRROR_LOG_ROOT", cfg.LogRoot)
	cfg.ExcludeFile = environment.StringOr("LOGMIRROR_EXCLUDE_FILE", cfg.ExcludeFile)
	cfg.DBPath = environment.StringOr("LOGMIRROR_DB_PATH", cfg.DBPath)
	cfg.Interval = environment.DurationOr("LOGMIRROR_INTERVAL", cfg.Interval)
	cfg.StopTimeout = environment.DurationOr("LOGMIRROR_STOP_TIMEOUT", cfg.StopTimeout)
	cfg.ShutdownTimeout = environment.DurationOr("LOGMIRROR_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.HTTPAddr = environment.StringOr("LOGMIRROR_HTTP_ADDR", cfg.HTTPAddr)
}

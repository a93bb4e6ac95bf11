// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Paths configures storage locations.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Engine configures the storage engine.
	Engine EngineConfig `yaml:"engine"`

	// Sweep configures the retention sweeper.
	Sweep SweepConfig `yaml:"sweep"`
}

// PathsConfig configures storage locations.
type PathsConfig struct {
	// DataDir is the base directory for cask data.
	DataDir string `yaml:"data_dir"`

	// Database is the SQLite metadata database path.
	// Default: ${data_dir}/cask.db
	Database string `yaml:"database"`

	// Payloads is the root of the content-addressed payload store.
	// Default: ${data_dir}/payloads
	Payloads string `yaml:"payloads"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the TCP listen address.
	// Default: 127.0.0.1:8461
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout is how long to wait for in-flight requests
	// during graceful shutdown. Duration string, default 10s.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// EngineConfig configures the storage engine.
type EngineConfig struct {
	// PoolSize is the SQLite connection pool size. Zero uses the
	// pool's own default.
	PoolSize int `yaml:"pool_size"`

	// PutAttempts bounds the retry loop around payload writes.
	// Zero uses the engine's default.
	PutAttempts int `yaml:"put_attempts"`
}

// SweepConfig configures the retention sweeper.
type SweepConfig struct {
	// Interval between sweep cycles. Duration string, default 60s.
	Interval string `yaml:"interval"`
}

// Default returns the default configuration. These defaults make a
// config file optional: a bare `caskd` serves loopback traffic out of
// the user's data directory.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultData := filepath.Join(homeDir, ".local", "share", "cask")

	return &Config{
		Paths: PathsConfig{
			DataDir:  defaultData,
			Database: filepath.Join(defaultData, "cask.db"),
			Payloads: filepath.Join(defaultData, "payloads"),
		},
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8461",
			ShutdownTimeout: "10s",
		},
		Engine: EngineConfig{
			PoolSize:    0,
			PutAttempts: 0,
		},
		Sweep: SweepConfig{
			Interval: "60s",
		},
	}
}

// Load loads configuration from the CASK_CONFIG environment variable,
// or returns the defaults when it is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("CASK_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging
// into the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	// Blank the derived paths before parsing. yaml.Unmarshal leaves
	// absent fields untouched, so a file that sets only data_dir must
	// not inherit database/payload paths derived from the default
	// root. They are re-derived from the effective data_dir below
	// unless the file set them explicitly.
	cfg.Paths.Database = ""
	cfg.Paths.Payloads = ""

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Paths.Database == "" {
		cfg.Paths.Database = filepath.Join(cfg.Paths.DataDir, "cask.db")
	}
	if cfg.Paths.Payloads == "" {
		cfg.Paths.Payloads = filepath.Join(cfg.Paths.DataDir, "payloads")
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CASK_DATA": c.Paths.DataDir,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.DataDir = expandVars(c.Paths.DataDir, vars)
	vars["CASK_DATA"] = c.Paths.DataDir // Update for dependent paths.

	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.Payloads = expandVars(c.Paths.Payloads, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.DataDir == "" {
		errs = append(errs, fmt.Errorf("paths.data_dir is required"))
	}
	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("server.listen_address is required"))
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
	}
	if interval, err := time.ParseDuration(c.Sweep.Interval); err != nil {
		errs = append(errs, fmt.Errorf("sweep.interval: %w", err))
	} else if interval <= 0 {
		errs = append(errs, fmt.Errorf("sweep.interval must be positive"))
	}
	if c.Engine.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("engine.pool_size must not be negative"))
	}
	if c.Engine.PutAttempts < 0 {
		errs = append(errs, fmt.Errorf("engine.put_attempts must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ShutdownTimeout returns the parsed shutdown timeout. Only valid
// after Validate has passed.
func (c *Config) ShutdownTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return timeout
}

// SweepInterval returns the parsed sweep interval. Only valid after
// Validate has passed.
func (c *Config) SweepInterval() time.Duration {
	interval, _ := time.ParseDuration(c.Sweep.Interval)
	return interval
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.DataDir,
		filepath.Dir(c.Paths.Database),
		c.Paths.Payloads,
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

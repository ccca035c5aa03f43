// Package config loads and validates the prompt-pruner configuration.
//
// DESIGN: All configuration MUST come from YAML files. No defaults.
// Compression knobs that vary per request (keep_ratio, sim_threshold, ...)
// are NOT here; they arrive with each request and are validated there.
//
// FILES:
//   - config.go:      Root Config struct, Load(), Validate()
//   - compression.go: Analyzer, pruner, scoring and generation settings
//   - providers.go:   LLM provider registry and endpoint resolution
//   - monitoring.go:  Logging, metrics and telemetry settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP server settings
	Store      StoreConfig      `yaml:"store"`      // Run store backend
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`   // Candidate ranking
	Pruner     PrunerConfig     `yaml:"pruner"`     // Pruning loop limits
	Scoring    ScoringConfig    `yaml:"scoring"`    // Importance + similarity scorers
	Generation GenerationConfig `yaml:"generation"` // Downstream completions
	Providers  ProvidersConfig  `yaml:"providers"`  // LLM provider configurations
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging, metrics, telemetry
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// StoreConfig selects and configures the run store.
type StoreConfig struct {
	Type string        `yaml:"type"` // "memory" or "sqlite"
	TTL  time.Duration `yaml:"ttl"`  // memory only; 0 keeps runs for the process lifetime
	Path string        `yaml:"path"` // sqlite database file
}

// Validate checks the store section.
func (s StoreConfig) Validate() error {
	switch s.Type {
	case "":
		return fmt.Errorf("store.type is required")
	case StoreMemory:
		if s.TTL < 0 {
			return fmt.Errorf("store.ttl must be >= 0")
		}
	case StoreSQLite:
		if s.Path == "" {
			return fmt.Errorf("store.path is required for sqlite store")
		}
	default:
		return fmt.Errorf("invalid store.type: %q (must be memory or sqlite)", s.Type)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default}.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployments redirect output files without editing YAML.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("PRUNER_TELEMETRY_LOG"); p != "" {
		c.Monitoring.TelemetryPath = p
		c.Monitoring.TelemetryEnabled = true
	}
	if p := os.Getenv("PRUNER_STORE_PATH"); p != "" && c.Store.Type == StoreSQLite {
		c.Store.Path = p
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Analyzer.Validate(); err != nil {
		return err
	}
	if err := c.Pruner.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	if c.Providers != nil {
		if err := c.Providers.Validate(); err != nil {
			return err
		}
	}
	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	return c.ValidateUsedProviders()
}

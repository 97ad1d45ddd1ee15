// Package config provides configuration loading for the coherence engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/regenloop/coherence-engine/internal/analyzer"
)

// Config is the complete engine configuration.
type Config struct {
	Storage    StorageConfig       `yaml:"storage"`
	Server     ServerConfig        `yaml:"server"`
	Escalation EscalationConfig    `yaml:"escalation"`
	Recursion  RecursionConfig     `yaml:"recursion"`
	Thresholds analyzer.Thresholds `yaml:"thresholds"`
}

// StorageConfig selects and locates the ledger backend.
type StorageConfig struct {
	// Backend is "sqlite" or "jsonl".
	Backend string `yaml:"backend"`
	// Path is the database file or trail file location.
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address (default :8600).
	Addr string `yaml:"addr"`
	// AuthToken, when set, requires a matching bearer token on every
	// request except health and metrics.
	AuthToken string `yaml:"auth_token"`
}

// EscalationConfig configures the gate-failure sink.
type EscalationConfig struct {
	// NATSURL, when set, publishes escalations to NATS; empty means log
	// only.
	NATSURL string `yaml:"nats_url"`
	// Subject is the NATS subject for escalation events.
	Subject string `yaml:"subject"`
}

// RecursionConfig configures the coherence driver.
type RecursionConfig struct {
	Target        float64 `yaml:"target"`
	MaxIterations int     `yaml:"max_iterations"`
	Window        int     `yaml:"window"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "coherence_trail.db",
		},
		Server: ServerConfig{
			Addr: ":8600",
		},
		Escalation: EscalationConfig{
			Subject: "coherence.escalation",
		},
		Recursion: RecursionConfig{
			Target:        0.85,
			MaxIterations: 10,
			Window:        50,
		},
		Thresholds: analyzer.DefaultThresholds(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "jsonl":
	default:
		return fmt.Errorf("storage.backend must be sqlite or jsonl, got %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Recursion.Target <= 0 || c.Recursion.Target > 1 {
		return fmt.Errorf("recursion.target must be in (0,1], got %v", c.Recursion.Target)
	}
	if c.Recursion.MaxIterations <= 0 {
		return fmt.Errorf("recursion.max_iterations must be positive")
	}
	if c.Escalation.NATSURL != "" && c.Escalation.Subject == "" {
		return fmt.Errorf("escalation.subject is required when nats_url is set")
	}
	return nil
}

// Load reads a YAML config file over the defaults, then applies env-var
// overrides and validates. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("COHERENCE_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("COHERENCE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("COHERENCE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COHERENCE_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("COHERENCE_NATS_URL"); v != "" {
		cfg.Escalation.NATSURL = v
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration. Flags override file values.
type Config struct {
	Provider string `yaml:"provider"`

	// Region restricts the scan to one region; empty scans every
	// active region.
	Region string `yaml:"region"`

	OrgMode        bool   `yaml:"org_mode"`
	RoleName       string `yaml:"role_name"`
	IncludeStopped bool   `yaml:"include_stopped"`

	DSPM             bool `yaml:"dspm"`
	DeepInspect      bool `yaml:"deep_inspect"`
	CountUnconfirmed bool `yaml:"count_unconfirmed"`

	ScopeWorkers    int           `yaml:"scope_workers"`
	InstanceWorkers int           `yaml:"instance_workers"`
	PaceInterval    time.Duration `yaml:"pace_interval"`

	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	CallTimeout time.Duration `yaml:"call_timeout"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Provider:         "aws",
		RoleName:         "OrganizationAccountAccessRole",
		CountUnconfirmed: true,
		ScopeWorkers:     3,
		InstanceWorkers:  5,
		PaceInterval:     time.Second,
		MaxAttempts:      3,
		BackoffBase:      2 * time.Second,
		CallTimeout:      30 * time.Second,
	}
}

// Load reads configuration from file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Provider != "aws" {
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.RoleName == "" {
		return fmt.Errorf("role_name is required")
	}
	if c.ScopeWorkers < 1 {
		return fmt.Errorf("scope_workers must be at least 1")
	}
	if c.InstanceWorkers < 1 {
		return fmt.Errorf("instance_workers must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.DeepInspect && !c.DSPM {
		return fmt.Errorf("deep_inspect requires dspm mode")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "aws", cfg.Provider)
	assert.Equal(t, "OrganizationAccountAccessRole", cfg.RoleName)
	assert.Equal(t, 3, cfg.ScopeWorkers)
	assert.Equal(t, 5, cfg.InstanceWorkers)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.True(t, cfg.CountUnconfirmed)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudtally.yaml")
	content := `provider: aws
region: eu-west-1
org_mode: true
dspm: true
deep_inspect: true
role_name: audit-reader
scope_workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.True(t, cfg.OrgMode)
	assert.True(t, cfg.DeepInspect)
	assert.Equal(t, "audit-reader", cfg.RoleName)
	assert.Equal(t, 2, cfg.ScopeWorkers)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.InstanceWorkers)
	assert.True(t, cfg.CountUnconfirmed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "azure" }},
		{"empty role name", func(c *Config) { c.RoleName = "" }},
		{"zero scope workers", func(c *Config) { c.ScopeWorkers = 0 }},
		{"zero instance workers", func(c *Config) { c.InstanceWorkers = 0 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"deep inspect without dspm", func(c *Config) { c.DeepInspect = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

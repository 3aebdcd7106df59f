package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		Poll:    PollConfig{BatchSize: 50, Concurrency: 2},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 50, cfg.Poll.BatchSize)
	assert.Equal(t, 2, cfg.Poll.Concurrency)
}

func TestApplyDefaultsKeepsLeaseRenewalBelowDuration(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Greater(t, cfg.Lease.Duration, cfg.Lease.Renewal)
}

func TestGetDefaultConfigPassesValidation(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, cfg.Validate())
}

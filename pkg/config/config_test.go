package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	return path
}

func TestLoadAppliesDefaultsWhenFieldsOmitted(t *testing.T) {
	path := writeConfigFile(t, `
processor_id: c1
shutdown_timeout: 10s
azure:
  auth_method: default_credential
  account_name: acct
tracking:
  strategy: tags
  tags:
    container: incoming
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 100, cfg.Poll.BatchSize)
	assert.Equal(t, 4, cfg.Poll.Concurrency)
	assert.NotZero(t, cfg.Lease.Duration)
}

func TestLoadReturnsErrorOnMissingRequiredSection(t *testing.T) {
	path := writeConfigFile(t, `
processor_id: c1
shutdown_timeout: 10s
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadReturnsErrorOnUnknownTrackingStrategy(t *testing.T) {
	path := writeConfigFile(t, `
processor_id: c1
shutdown_timeout: 10s
azure:
  auth_method: default_credential
  account_name: acct
tracking:
  strategy: bogus
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedMasksCredentials(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Azure.AccountKey = "supersecret"
	cfg.Azure.ConnectionString = "DefaultEndpointsProtocol=https;AccountKey=supersecret"

	redacted := cfg.Redacted()
	assert.Equal(t, "***", redacted.Azure.AccountKey)
	assert.Equal(t, "***", redacted.Azure.ConnectionString)
	// Original is untouched.
	assert.Equal(t, "supersecret", cfg.Azure.AccountKey)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Processor = "saved"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Processor)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/blobtailer/blobtailer/internal/bytesize"
)

// Config represents blobtailer's configuration.
//
// This structure captures everything needed to run one poller instance:
//   - Logging and telemetry configuration
//   - Azure Blob Storage connection settings
//   - Tracking (which state-tracker variant to use, and its settings)
//   - Lease timing
//   - Poll cycle behavior (batch size, concurrency, prefixes, interval)
//   - Line-streaming behavior
//   - Metrics server configuration
//
// Configuration sources (in order of precedence):
//  1. Environment variables (BLOBTAILER_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// CLI flags other than --config are not bound to configuration keys.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds how long graceful shutdown waits for in-flight
	// blob processing and lease release before giving up.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Processor identifies this replica in tracker state and logs. Usually
	// a hostname or pod name.
	Processor string `mapstructure:"processor_id" validate:"required" yaml:"processor_id"`

	// Azure configures the Blob Storage client and credential resolution.
	Azure AzureConfig `mapstructure:"azure" validate:"required" yaml:"azure"`

	// Tracking selects and configures one of the three state-tracker
	// variants (tags, container, registry).
	Tracking TrackingConfig `mapstructure:"tracking" validate:"required" yaml:"tracking"`

	// Lease controls lease acquisition and renewal timing, used by the
	// tags and container tracker variants.
	Lease LeaseConfig `mapstructure:"lease" yaml:"lease"`

	// Poll controls one poll cycle: how many blobs to discover, how many
	// to process concurrently, and which prefixes to scope to.
	Poll PollConfig `mapstructure:"poll" yaml:"poll"`

	// Stream controls line-splitting behavior for blob content.
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When enabled,
// trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// AzureConfig configures the Azure Blob Storage client and credential
// resolution. Exactly one auth method's fields are required, checked in
// Validate.
type AzureConfig struct {
	// AuthMethod selects how the client authenticates.
	// Valid values: connection_string, shared_key, default_credential.
	AuthMethod string `mapstructure:"auth_method" validate:"required,oneof=connection_string shared_key default_credential" yaml:"auth_method"`

	// AccountName is required for shared_key. For default_credential,
	// AccountName or ServiceURL is required.
	AccountName string `mapstructure:"account_name" yaml:"account_name"`

	// AccountKey is required for shared_key.
	AccountKey string `mapstructure:"account_key" yaml:"account_key,omitempty"`

	// ConnectionString is required for connection_string.
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string,omitempty"`

	// ServiceURL overrides the default blob service endpoint
	// (https://<account_name>.blob.core.windows.net/), e.g. for Azurite or a
	// sovereign cloud.
	ServiceURL string `mapstructure:"service_url" yaml:"service_url,omitempty"`
}

// TrackingConfig selects and configures one of the three state-tracker
// variants. Only the map matching Strategy is read; the others are ignored.
type TrackingConfig struct {
	Strategy string `mapstructure:"strategy" validate:"required,oneof=tags container registry" yaml:"strategy"`

	Tags      map[string]any `mapstructure:"tags" yaml:"tags,omitempty"`
	Container map[string]any `mapstructure:"container" yaml:"container,omitempty"`
	Registry  map[string]any `mapstructure:"registry" yaml:"registry,omitempty"`
}

// LeaseConfig controls lease acquisition and renewal timing.
type LeaseConfig struct {
	// Duration is the lease period requested from Azure.
	// Valid range: 15s-60s.
	Duration time.Duration `mapstructure:"lease_duration" yaml:"lease_duration"`

	// Renewal is how often the lease is renewed. Must be shorter than
	// Duration to leave margin for renewal latency.
	Renewal time.Duration `mapstructure:"lease_renewal" yaml:"lease_renewal"`
}

// PollConfig controls one poll cycle.
type PollConfig struct {
	// BatchSize bounds how many blobs are listed and filtered per cycle.
	BatchSize int `mapstructure:"blob_batch_size" yaml:"blob_batch_size"`

	// Concurrency bounds how many blobs are streamed at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// Prefixes scopes discovery to one or more blob name prefixes. Empty
	// means the whole container.
	Prefixes []string `mapstructure:"prefixes" yaml:"prefixes,omitempty"`

	// Interval is the delay between poll cycles when run in a loop.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// StreamConfig controls line-splitting behavior for blob content.
type StreamConfig struct {
	SkipEmptyLines bool              `mapstructure:"skip_empty_lines" yaml:"skip_empty_lines"`
	MaxLineLength  bytesize.ByteSize `mapstructure:"max_line_length" yaml:"max_line_length,omitempty"`
}

// MetricsConfig configures the Prometheus metrics and health-check HTTP
// server. When Enabled is false, the server is not started.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to config file (empty string searches default locations)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if configFileFound {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration with helpful error messages when no config
// file exists at the default location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please create a YAML config file there first.\n\n"+
				"Or specify a custom config file:\n"+
				"  blobtailer run --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path as YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy of cfg with credential fields masked, suitable for
// `blobtailer config show` output.
func (c *Config) Redacted() *Config {
	clone := *c
	if clone.Azure.AccountKey != "" {
		clone.Azure.AccountKey = "***"
	}
	if clone.Azure.ConnectionString != "" {
		clone.Azure.ConnectionString = "***"
	}
	return &clone
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BLOBTAILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, honoring
// XDG_CONFIG_HOME, falling back to ~/.config, or "." as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "blobtailer")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "blobtailer")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// config command).
func GetConfigDir() string {
	return getConfigDir()
}

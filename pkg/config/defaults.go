package config

import (
	"strings"
	"time"

	"github.com/blobtailer/blobtailer/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible
// defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Per-strategy tracker defaults are handled by the tracker factory
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyLeaseDefaults(&cfg.Lease)
	applyPollDefaults(&cfg.Poll)
	applyStreamDefaults(&cfg.Stream)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry).
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyLeaseDefaults sets lease timing defaults. Renewal is kept safely
// under Duration so a single missed renewal attempt still leaves margin.
func applyLeaseDefaults(cfg *LeaseConfig) {
	if cfg.Duration == 0 {
		cfg.Duration = 30 * time.Second
	}
	if cfg.Renewal == 0 {
		cfg.Renewal = cfg.Duration * 2 / 3
	}
}

// applyPollDefaults sets poll cycle defaults.
func applyPollDefaults(cfg *PollConfig) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
}

// applyStreamDefaults sets line-streaming defaults.
func applyStreamDefaults(cfg *StreamConfig) {
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = bytesize.MiB
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics).
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config populated entirely with defaults, with
// placeholder Azure account, tracking and processor values.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Azure: AzureConfig{
			AuthMethod:  "default_credential",
			AccountName: "mystorageaccount",
		},
		Tracking: TrackingConfig{
			Strategy: "tags",
			Tags: map[string]any{
				"container": "incoming",
			},
		},
		Processor: "blobtailer",
	}
	ApplyDefaults(cfg)
	return cfg
}

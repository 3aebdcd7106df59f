package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg for structural and cross-field errors: required
// sections (via `validate` struct tags), lease timing bounds, poll cycle
// bounds, and Azure credential completeness for the selected auth method.
//
// The teacher's Config struct carries `validate` tags but never actually
// invokes go-playground/validator; blobtailer's Config.Validate does.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := c.Lease.validate(); err != nil {
		return err
	}
	if err := c.Poll.validate(); err != nil {
		return err
	}
	if err := c.Azure.validate(); err != nil {
		return err
	}

	return nil
}

func (l LeaseConfig) validate() error {
	if l.Duration < 15*time.Second || l.Duration > 60*time.Second {
		return fmt.Errorf("config: lease.lease_duration must be between 15s and 60s, got %s", l.Duration)
	}
	if l.Renewal >= l.Duration {
		return fmt.Errorf("config: lease.lease_renewal (%s) must be shorter than lease.lease_duration (%s)", l.Renewal, l.Duration)
	}
	return nil
}

func (p PollConfig) validate() error {
	if p.BatchSize < 1 {
		return fmt.Errorf("config: poll.blob_batch_size must be at least 1, got %d", p.BatchSize)
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("config: poll.concurrency must be at least 1, got %d", p.Concurrency)
	}
	return nil
}

func (a AzureConfig) validate() error {
	switch a.AuthMethod {
	case "connection_string":
		if a.ConnectionString == "" {
			return fmt.Errorf("config: azure.connection_string is required when auth_method is connection_string")
		}
	case "shared_key":
		if a.AccountName == "" || a.AccountKey == "" {
			return fmt.Errorf("config: azure.account_name and azure.account_key are required when auth_method is shared_key")
		}
	case "default_credential":
		if a.AccountName == "" && a.ServiceURL == "" {
			return fmt.Errorf("config: azure.account_name or azure.service_url is required when auth_method is default_credential")
		}
	}
	return nil
}

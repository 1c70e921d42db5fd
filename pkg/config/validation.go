package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its `validate` struct tags and a handful of
// cross-field rules the tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Lease.GracePeriod < cfg.Lease.Interval {
		return fmt.Errorf("lease.grace_period (%s) must be at least lease.interval (%s)",
			cfg.Lease.GracePeriod, cfg.Lease.Interval)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry.enabled is true")
	}

	return nil
}

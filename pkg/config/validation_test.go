package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, Validate(cfg))
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "TRACE"
	assert.Error(t, Validate(cfg))
}

func TestValidateInvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, Validate(cfg))
}

func TestValidateMissingStorageDir(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Dir = ""
	assert.Error(t, Validate(cfg))
}

func TestValidateGracePeriodBelowLeaseInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Lease.Interval = 60 * cfg.Lease.GracePeriod
	assert.Error(t, Validate(cfg))
}

func TestValidateTelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""
	assert.Error(t, Validate(cfg))
}

func TestValidateTelemetrySampleRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.SampleRate = 1.5
	assert.Error(t, Validate(cfg))
}

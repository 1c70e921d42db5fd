package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills in any unspecified configuration fields with
// sensible defaults. Zero values are replaced; explicit values are left
// untouched.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyLeaseDefaults(&cfg.Lease)
	applyWorkerDefaults(&cfg.Worker)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.KeepAliveAddr == "" {
		cfg.KeepAliveAddr = ":7777"
	}
	if cfg.RequestAddr == "" {
		cfg.RequestAddr = ":7778"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "/var/lib/hyperspace"
	}
}

func applyLeaseDefaults(cfg *LeaseConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 12 * time.Second
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 60 * time.Second
	}
}

func applyWorkerDefaults(cfg *WorkerConfig) {
	if cfg.Count == 0 {
		cfg.Count = 8
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 256
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config populated entirely from defaults, used
// when no config file is present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

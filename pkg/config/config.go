// Package config loads Hyperspace's server and client configuration,
// following the teacher stack's layered precedence: CLI flags, then
// HYPERSPACE_* environment variables, then a YAML config file, then
// built-in defaults.
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
)

// Config is the top-level Hyperspace server configuration.
type Config struct {
	// Server controls the listen addresses for the UDP keepalive socket
	// and the TCP request channel.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage configures the embedded BadgerDB namespace store.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Lease controls session lease timing: how long a session stays live
	// without a keepalive, and the keepalive cadence clients are expected
	// to use.
	Lease LeaseConfig `mapstructure:"lease" yaml:"lease"`

	// Worker configures the fixed-size request worker pool.
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds how long graceful shutdown waits for the
	// metrics HTTP server to finish its in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// ServerConfig controls the two listen sockets a Hyperspace master exposes.
type ServerConfig struct {
	// KeepAliveAddr is the UDP address for session keepalive datagrams.
	// Default: ":7777"
	KeepAliveAddr string `mapstructure:"keepalive_addr" validate:"required" yaml:"keepalive_addr"`

	// RequestAddr is the TCP address for the request/response channel
	// (open, close, mkdir, lock, etc).
	// Default: ":7778"
	RequestAddr string `mapstructure:"request_addr" validate:"required" yaml:"request_addr"`
}

// StorageConfig configures the embedded namespace store.
type StorageConfig struct {
	// Dir is the base directory for the BadgerDB files and the host
	// advisory lock sentinel that prevents two masters from attaching to
	// the same state.
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`
}

// LeaseConfig controls session lease timing.
type LeaseConfig struct {
	// Interval is how long a session remains live after its most recent
	// keepalive, absent a reply granting an extension.
	// Default: 12s
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0" yaml:"interval"`

	// GracePeriod bounds how long a client may go without a successful
	// keepalive exchange, while in jeopardy, before its session expires.
	// Default: 60s
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"required,gt=0" yaml:"grace_period"`
}

// WorkerConfig configures the request dispatch worker pool.
type WorkerConfig struct {
	// Count is the number of workers draining the decoded-request queue.
	// Default: 8
	Count int `mapstructure:"count" validate:"required,gt=0" yaml:"count"`

	// QueueDepth bounds how many decoded requests may be buffered ahead
	// of the workers before a new connection's reads block.
	// Default: 256
	QueueDepth int `mapstructure:"queue_depth" validate:"required,gt=0" yaml:"queue_depth"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP endpoint
	// are active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the /metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults, in that
// ascending precedence order (env wins over file, file wins over
// defaults; CLI flags are applied by the caller after Load returns).
// When no config file is found, the built-in defaults are returned as they
// are and no HYPERSPACE_* variable is read. With a file, a HYPERSPACE_*
// variable overrides only a key that the file itself sets.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a user-actionable error that
// points at `hyperspaceserver init` when no config file exists yet.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  hyperspaceserver init\n\n"+
				"Or specify a custom config file:\n"+
				"  hyperspaceserver start --config /path/to/config.yaml",
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

// SaveConfig writes cfg to path in YAML, with owner-only permissions.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HYPERSPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

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

// durationDecodeHook lets config files use human-readable durations like
// "30s", "5m", "1h" for every time.Duration field via mapstructure.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
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

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hyperspace")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hyperspace")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path, exposed for the init command.
func GetConfigDir() string {
	return getConfigDir()
}

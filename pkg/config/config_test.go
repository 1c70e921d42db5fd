package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Storage.Dir = "/tmp/hyperspace-test"
	return cfg
}

func TestLoadWithNoConfigFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.KeepAliveAddr)
	assert.Equal(t, ":7778", cfg.Server.RequestAddr)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Server.KeepAliveAddr = "127.0.0.1:9001"
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", loaded.Server.KeepAliveAddr)
	assert.Equal(t, cfg.Storage.Dir, loaded.Storage.Dir)
}

func TestMustLoadMissingFileReturnsActionableError(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"GO_ENV", "GAME_PORT", "DISCOVERY_PORT", "CAPACITY", "RELAY_ONLY",
	"TICK_INTERVAL", "DISCOVERY_INTERVAL", "DISCOVERY_TTL", "PEER_TIMEOUT",
	"STATUS_HTTP_PORT", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key for the test; t.Setenv restores them after.
func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 27015, cfg.GamePort)
	assert.Equal(t, 27016, cfg.DiscoveryPort)
	assert.Equal(t, 4, cfg.Capacity)
	assert.False(t, cfg.RelayOnly)
	assert.Equal(t, time.Second/30, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.DiscoveryTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GAME_PORT", "30000")
	t.Setenv("CAPACITY", "12")
	t.Setenv("RELAY_ONLY", "true")
	t.Setenv("TICK_INTERVAL", "50ms")
	t.Setenv("GO_ENV", "production")

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.GamePort)
	assert.Equal(t, 12, cfg.Capacity)
	assert.True(t, cfg.RelayOnly)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "json", cfg.LogFormat, "production defaults to json logs")
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CAPACITY=6\nLOG_FORMAT=json\n"), 0o600))
	// godotenv does not override variables that are already set
	require.NoError(t, os.Unsetenv("CAPACITY"))
	require.NoError(t, os.Unsetenv("LOG_FORMAT"))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Capacity)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"GAME_PORT":     "port",
		"RELAY_ONLY":    "maybe",
		"TICK_INTERVAL": "fast",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.env"))
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		GamePort:          27015,
		DiscoveryPort:     27015,
		Capacity:          1,
		TickInterval:      0,
		DiscoveryInterval: 5 * time.Second,
		DiscoveryTTL:      time.Second,
		PeerTimeout:       time.Second,
		LogLevel:          "verbose",
		LogFormat:         "xml",
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"CAPACITY", "GAME_PORT and DISCOVERY_PORT", "TICK_INTERVAL", "DISCOVERY_TTL", "LOG_LEVEL", "LOG_FORMAT"} {
		assert.ErrorContains(t, err, want)
	}
}

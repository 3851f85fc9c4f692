package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "11111", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 2, cfg.Server.ReadTimeoutSec)

	assert.Equal(t, 10000, cfg.Event.NumEvents)
	assert.Equal(t, 1024, cfg.Event.EventSize)
	assert.Equal(t, 4, cfg.Event.ControlLen)
	assert.Equal(t, 1, cfg.Event.Groups)
	assert.Equal(t, 100, cfg.Event.MaxStations)
	assert.Equal(t, 1000, cfg.Event.MaxAttachments)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 200, cfg.RateLimit.ConnectionsPerSecond)
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "11112", cfg.Admin.Port)
	assert.True(t, cfg.Admin.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "11111", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"ET_PORT":              "9000",
		"ET_HOST":              "127.0.0.1",
		"ET_READ_TIMEOUT_SEC":  "5",
		"ET_NUM_EVENTS":        "256",
		"ET_EVENT_SIZE":        "2048",
		"ET_CONTROL_LEN":       "6",
		"ET_GROUPS":            "3",
		"ET_MAX_STATIONS":      "16",
		"ET_MAX_ATTACHMENTS":   "32",
		"LOG_LEVEL":            "debug",
		"LOG_DEV":              "true",
		"RATE_LIMIT_CPS":       "500",
		"RATE_LIMIT_BURST":     "1000",
		"RATE_LIMIT_ENABLED":   "false",
		"ET_ADMIN_PORT":        "9112",
		"ET_ADMIN_ENABLED":     "false",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5, cfg.Server.ReadTimeoutSec)

	assert.Equal(t, 256, cfg.Event.NumEvents)
	assert.Equal(t, 2048, cfg.Event.EventSize)
	assert.Equal(t, 6, cfg.Event.ControlLen)
	assert.Equal(t, 3, cfg.Event.Groups)
	assert.Equal(t, 16, cfg.Event.MaxStations)
	assert.Equal(t, 32, cfg.Event.MaxAttachments)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.ConnectionsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "9112", cfg.Admin.Port)
	assert.False(t, cfg.Admin.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("ET_PORT", "3000")
	require.NoError(t, err)
	defer os.Unsetenv("ET_PORT")

	err = os.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, err)
	defer os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10000, cfg.Event.NumEvents)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{name: "default values", wantPort: "11111", wantHost: "0.0.0.0"},
		{name: "custom port", port: "9000", wantPort: "9000", wantHost: "0.0.0.0"},
		{name: "custom host", host: "localhost", wantPort: "11111", wantHost: "localhost"},
		{name: "custom port and host", port: "3000", host: "127.0.0.1", wantPort: "3000", wantHost: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("ET_PORT")
			os.Unsetenv("ET_HOST")

			if tt.port != "" {
				err := os.Setenv("ET_PORT", tt.port)
				require.NoError(t, err)
				defer os.Unsetenv("ET_PORT")
			}
			if tt.host != "" {
				err := os.Setenv("ET_HOST", tt.host)
				require.NoError(t, err)
				defer os.Unsetenv("ET_HOST")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}

func TestEventConfig(t *testing.T) {
	tests := []struct {
		name            string
		numEvents       string
		maxStations     string
		wantNumEvents   int
		wantMaxStations int
	}{
		{name: "default values", wantNumEvents: 10000, wantMaxStations: 100},
		{name: "custom pool size", numEvents: "500", wantNumEvents: 500, wantMaxStations: 100},
		{name: "custom station cap", maxStations: "8", wantNumEvents: 10000, wantMaxStations: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("ET_NUM_EVENTS")
			os.Unsetenv("ET_MAX_STATIONS")

			if tt.numEvents != "" {
				err := os.Setenv("ET_NUM_EVENTS", tt.numEvents)
				require.NoError(t, err)
				defer os.Unsetenv("ET_NUM_EVENTS")
			}
			if tt.maxStations != "" {
				err := os.Setenv("ET_MAX_STATIONS", tt.maxStations)
				require.NoError(t, err)
				defer os.Unsetenv("ET_MAX_STATIONS")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantNumEvents, cfg.Event.NumEvents)
			assert.Equal(t, tt.wantMaxStations, cfg.Event.MaxStations)
		})
	}
}

func TestLoggingConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		dev       string
		wantLevel string
		wantDev   bool
	}{
		{name: "default values", wantLevel: "info", wantDev: false},
		{name: "debug level", level: "debug", wantLevel: "debug", wantDev: false},
		{name: "development mode", dev: "true", wantLevel: "info", wantDev: true},
		{name: "error level production", level: "error", dev: "false", wantLevel: "error", wantDev: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("LOG_LEVEL")
			os.Unsetenv("LOG_DEV")

			if tt.level != "" {
				err := os.Setenv("LOG_LEVEL", tt.level)
				require.NoError(t, err)
				defer os.Unsetenv("LOG_LEVEL")
			}
			if tt.dev != "" {
				err := os.Setenv("LOG_DEV", tt.dev)
				require.NoError(t, err)
				defer os.Unsetenv("LOG_DEV")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantLevel, cfg.Logging.Level)
			assert.Equal(t, tt.wantDev, cfg.Logging.Development)
		})
	}
}

func TestRateLimitConfig(t *testing.T) {
	tests := []struct {
		name        string
		cps         string
		burst       string
		enabled     string
		wantCPS     int
		wantBurst   int
		wantEnabled bool
	}{
		{name: "default values", wantCPS: 200, wantBurst: 50, wantEnabled: true},
		{name: "high limits", cps: "1000", burst: "2000", wantCPS: 1000, wantBurst: 2000, wantEnabled: true},
		{name: "disabled", enabled: "false", wantCPS: 200, wantBurst: 50, wantEnabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("RATE_LIMIT_CPS")
			os.Unsetenv("RATE_LIMIT_BURST")
			os.Unsetenv("RATE_LIMIT_ENABLED")

			if tt.cps != "" {
				err := os.Setenv("RATE_LIMIT_CPS", tt.cps)
				require.NoError(t, err)
				defer os.Unsetenv("RATE_LIMIT_CPS")
			}
			if tt.burst != "" {
				err := os.Setenv("RATE_LIMIT_BURST", tt.burst)
				require.NoError(t, err)
				defer os.Unsetenv("RATE_LIMIT_BURST")
			}
			if tt.enabled != "" {
				err := os.Setenv("RATE_LIMIT_ENABLED", tt.enabled)
				require.NoError(t, err)
				defer os.Unsetenv("RATE_LIMIT_ENABLED")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantCPS, cfg.RateLimit.ConnectionsPerSecond)
			assert.Equal(t, tt.wantBurst, cfg.RateLimit.Burst)
			assert.Equal(t, tt.wantEnabled, cfg.RateLimit.Enabled)
		})
	}
}

func TestAdminConfig(t *testing.T) {
	os.Unsetenv("ET_ADMIN_PORT")
	os.Unsetenv("ET_ADMIN_ENABLED")

	cfg := LoadOrDefault()
	assert.Equal(t, "11112", cfg.Admin.Port)
	assert.True(t, cfg.Admin.Enabled)

	err := os.Setenv("ET_ADMIN_ENABLED", "false")
	require.NoError(t, err)
	defer os.Unsetenv("ET_ADMIN_ENABLED")

	cfg = LoadOrDefault()
	assert.False(t, cfg.Admin.Enabled)
}

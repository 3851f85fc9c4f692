package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all ET daemon configuration.
type Config struct {
	Server    ServerConfig
	Event     EventConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
}

// ServerConfig holds the raw-TCP protocol server's listen settings.
type ServerConfig struct {
	Host           string `envconfig:"ET_HOST" default:"0.0.0.0"`
	Port           string `envconfig:"ET_PORT" default:"11111"`
	ReadTimeoutSec int    `envconfig:"ET_READ_TIMEOUT_SEC" default:"2"`
}

// EventConfig sizes the free pool seeded into GRAND_CENTRAL at startup
// and bounds the registry (spec.md §3, §4.6).
type EventConfig struct {
	NumEvents      int `envconfig:"ET_NUM_EVENTS" default:"10000"`
	EventSize      int `envconfig:"ET_EVENT_SIZE" default:"1024"`
	ControlLen     int `envconfig:"ET_CONTROL_LEN" default:"4"`
	Groups         int `envconfig:"ET_GROUPS" default:"1"`
	MaxStations    int `envconfig:"ET_MAX_STATIONS" default:"100"`
	MaxAttachments int `envconfig:"ET_MAX_ATTACHMENTS" default:"1000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig bounds accept-rate on the protocol server's listener.
type RateLimitConfig struct {
	ConnectionsPerSecond int  `envconfig:"RATE_LIMIT_CPS" default:"200"`
	Burst                int  `envconfig:"RATE_LIMIT_BURST" default:"50"`
	Enabled              bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// AdminConfig holds the admin/observability HTTP surface's settings
// (SPEC_FULL.md Protocol server supplement).
type AdminConfig struct {
	Host    string `envconfig:"ET_ADMIN_HOST" default:"0.0.0.0"`
	Port    string `envconfig:"ET_ADMIN_PORT" default:"11112"`
	Enabled bool   `envconfig:"ET_ADMIN_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: "11111", ReadTimeoutSec: 2},
		Event: EventConfig{
			NumEvents: 10000, EventSize: 1024, ControlLen: 4, Groups: 1,
			MaxStations: 100, MaxAttachments: 1000,
		},
		Logging:   LogConfig{Level: "info", Development: false},
		RateLimit: RateLimitConfig{ConnectionsPerSecond: 200, Burst: 50, Enabled: true},
		Admin:     AdminConfig{Host: "0.0.0.0", Port: "11112", Enabled: true},
	}
}

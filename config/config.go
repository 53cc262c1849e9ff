// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything main needs to wire the service
type Config struct {
	Addr string `env:"ADDR" envDefault:":9090"`

	// Routing provider
	GoogleMapsAPIKey   string        `env:"GOOGLE_MAPS_API_KEY"`
	DirectionsURL      string        `env:"DIRECTIONS_URL" envDefault:"https://maps.googleapis.com/maps/api/directions/json"`
	ResolveTimeout     time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"10s"`
	RoutingMinInterval time.Duration `env:"ROUTING_MIN_INTERVAL" envDefault:"100ms"`

	// Motion
	SamplesPerSegment int           `env:"SAMPLES_PER_SEGMENT" envDefault:"10"`
	BaseDelay         time.Duration `env:"BASE_DELAY" envDefault:"500ms"`

	// Empty keeps incidents in memory
	DatabasePath string `env:"DATABASE_PATH"`

	// Empty disables the location relay
	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"responder-locations"`

	// Empty allows any origin
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SamplesPerSegment < 1 {
		return nil, fmt.Errorf("SAMPLES_PER_SEGMENT must be positive, got %d", cfg.SamplesPerSegment)
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("BASE_DELAY must be positive, got %v", cfg.BaseDelay)
	}
	return &cfg, nil
}

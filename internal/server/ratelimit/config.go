package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// envConfig is the environment shape of Config.
type envConfig struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	DefaultLimit    int           `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"1000"`
	DefaultWindow   time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	Whitelist       []string      `env:"RATE_LIMIT_WHITELIST" envSeparator:","`
	Blacklist       []string      `env:"RATE_LIMIT_BLACKLIST" envSeparator:","`
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() (*Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration: %w", err)
	}
	if !raw.Enabled {
		return &Config{Enabled: false}, nil
	}
	if raw.DefaultLimit < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_DEFAULT_LIMIT must be at least 1, got: %d", raw.DefaultLimit)
	}
	if raw.DefaultWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_DEFAULT_WINDOW must be positive, got: %s", raw.DefaultWindow)
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    raw.DefaultLimit,
		DefaultWindow:   raw.DefaultWindow,
		CleanupInterval: raw.CleanupInterval,
		Whitelist:       ipSet(raw.Whitelist),
		Blacklist:       ipSet(raw.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(),
	}, nil
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 1: report generation calls the model, renders and sends mail
		{Path: "/api/generate-report", Method: "POST", Limit: 5, Window: time.Hour, Burst: 2},
		{Path: "/api/generate-report/stream", Method: "POST", Limit: 5, Window: time.Hour, Burst: 2},
		{Path: "/api/assessment/finalize", Method: "POST", Limit: 5, Window: time.Hour, Burst: 2},

		// Tier 2: access codes are guessable, so authentication is strict
		{Path: "/api/auth", Method: "POST", Limit: 20, Window: time.Hour, Burst: 5},

		// Tier 3: assessment actions (one request per card sorted)
		{Path: "/api/assessment/", Method: "POST", Limit: 600, Window: time.Minute, Burst: 100},

		// Tier 4: reads - handled by default limit
		// Tier 5: health check (unlimited) - handled by special case in matcher
	}
}

// ipSet turns a list of addresses into a lookup set.
func ipSet(ips []string) map[string]bool {
	result := make(map[string]bool, len(ips))
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}

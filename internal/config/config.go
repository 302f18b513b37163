package config

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Config is the root gateway configuration.
type Config struct {
	Server   ServerConfig               `yaml:"server"`
	Log      observability.LogConfig    `yaml:"log"`
	Tracing  observability.TracerConfig `yaml:"tracing"`
	Metrics  MetricsConfig              `yaml:"metrics"`
	Dispatch DispatchConfig             `yaml:"dispatch"`
	Plugins  PluginsConfig              `yaml:"plugins"`
	Security SecurityConfig             `yaml:"security"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DispatchConfig configures the dispatch pipeline's error and
// validation policy.
type DispatchConfig struct {
	AutoHandleErrors         bool `yaml:"autoHandleErrors"`
	ValidateDefaultResponses bool `yaml:"validateDefaultResponses"`
	ValidateResponses        bool `yaml:"validateResponses"`
}

// PluginsConfig configures the bundled plugins.
type PluginsConfig struct {
	RequestID bool            `yaml:"requestID"`
	AccessLog bool            `yaml:"accessLog"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig configures the rate limit plugin.
type RateLimitConfig struct {
	Enabled  bool        `yaml:"enabled"`
	Backend  string      `yaml:"backend"`
	Requests int         `yaml:"requests"`
	Window   Duration    `yaml:"window"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis connection for distributed rate
// limiting.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SecurityConfig configures the authentication schemes offered to
// operations.
type SecurityConfig struct {
	Bearer *BearerConfig `yaml:"bearer"`
	APIKey *APIKeyConfig `yaml:"apiKey"`
	Basic  *BasicConfig  `yaml:"basic"`
}

// BearerConfig configures JWT bearer authentication.
type BearerConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// APIKeyConfig configures API key authentication. Hashes are bcrypt.
type APIKeyConfig struct {
	Header string        `yaml:"header"`
	Query  string        `yaml:"query"`
	Keys   []APIKeyEntry `yaml:"keys"`
}

// APIKeyEntry is one stored API key.
type APIKeyEntry struct {
	Hash      string   `yaml:"hash"`
	Principal string   `yaml:"principal"`
	Roles     []string `yaml:"roles"`
}

// BasicConfig configures HTTP basic authentication. Values are bcrypt
// password hashes keyed by username.
type BasicConfig struct {
	Users map[string]string `yaml:"users"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Log: observability.DefaultLogConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Dispatch: DispatchConfig{
			AutoHandleErrors: true,
		},
		Plugins: PluginsConfig{
			RequestID: true,
			AccessLog: true,
		},
	}
}

// Validate checks the configuration for structural errors.
func Validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return util.NewConfigError("server.address", "listen address is required")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		return util.NewConfigError("metrics.path", "metrics path is required when metrics are enabled")
	}

	rl := cfg.Plugins.RateLimit
	if rl.Enabled {
		if rl.Requests <= 0 {
			return util.NewConfigError("plugins.rateLimit.requests", "must be positive")
		}
		if rl.Window <= 0 {
			return util.NewConfigError("plugins.rateLimit.window", "must be positive")
		}
		switch rl.Backend {
		case "", "memory":
		case "redis":
			if rl.Redis.Address == "" {
				return util.NewConfigError("plugins.rateLimit.redis.address", "required for redis backend")
			}
		default:
			return util.NewConfigError("plugins.rateLimit.backend",
				fmt.Sprintf("unknown backend %q", rl.Backend))
		}
	}

	if b := cfg.Security.Bearer; b != nil && b.Secret == "" {
		return util.NewConfigError("security.bearer.secret", "secret is required")
	}
	if k := cfg.Security.APIKey; k != nil && len(k.Keys) == 0 {
		return util.NewConfigError("security.apiKey.keys", "at least one key is required")
	}
	if b := cfg.Security.Basic; b != nil && len(b.Users) == 0 {
		return util.NewConfigError("security.basic.users", "at least one user is required")
	}

	return nil
}

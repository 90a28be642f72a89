// Package config loads service definitions for govfetch clients from YAML
// files and the environment, validates them, and builds a client registry
// from the result.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rochafa10/govfetch"
)

// Log levels and formats accepted by LoggingConfig.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config is the root document: process-wide logging, the shared Valkey
// connection, a defaults block, and one entry per upstream service.
type Config struct {
	Logging  LoggingConfig            `koanf:"logging"`
	Valkey   ValkeyConfig             `koanf:"valkey"`
	Defaults ServiceConfig            `koanf:"defaults"`
	Services map[string]ServiceConfig `koanf:"services"`
}

// LoggingConfig selects the slog handler built by NewLogger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ValkeyConfig is the shared Valkey connection used by services whose cache
// storage is "valkey". Each service is namespaced under its own key prefix.
type ValkeyConfig struct {
	Address   string          `koanf:"address"`
	Username  string          `koanf:"username"`
	Password  string          `koanf:"password"`
	DB        int             `koanf:"db"`
	KeyPrefix string          `koanf:"keyPrefix"`
	TLS       ValkeyTLSConfig `koanf:"tls"`
}

// ValkeyTLSConfig enables TLS for the Valkey connection.
type ValkeyTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// ServiceConfig describes one upstream API. Zero fields inherit from the
// defaults block, so a minimal entry carries just a baseUrl.
type ServiceConfig struct {
	BaseURL        string               `koanf:"baseUrl"`
	TimeoutSeconds int                  `koanf:"timeoutSeconds"`
	Retries        *int                 `koanf:"retries"`
	RetryDelayMs   int                  `koanf:"retryDelayMs"`
	Cache          CacheConfig          `koanf:"cache"`
	RateLimit      RateLimitConfig      `koanf:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuitBreaker"`
}

// CacheConfig mirrors govfetch.CacheConfig with YAML-friendly units.
type CacheConfig struct {
	Enabled    *bool  `koanf:"enabled"`
	TTLSeconds int    `koanf:"ttlSeconds"`
	MaxSize    int    `koanf:"maxSize"`
	Storage    string `koanf:"storage"`
}

// RateLimitConfig mirrors govfetch.RateLimitConfig. A zero requestsPerSecond
// leaves the service without local admission control.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requestsPerSecond"`
	BurstSize         int     `koanf:"burstSize"`
	QueueExcess       *bool   `koanf:"queueExcess"`
}

// CircuitBreakerConfig mirrors govfetch.CircuitBreakerConfig.
type CircuitBreakerConfig struct {
	FailureThreshold    int `koanf:"failureThreshold"`
	ResetTimeoutSeconds int `koanf:"resetTimeoutSeconds"`
	HalfOpenRequests    int `koanf:"halfOpenRequests"`
}

// DefaultConfig is the baseline every load starts from; files and environment
// variables override it.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatJSON,
		},
		Defaults: ServiceConfig{
			TimeoutSeconds: int(govfetch.DefaultTimeout / time.Second),
			Retries:        govfetch.Int(govfetch.DefaultRetries),
			RetryDelayMs:   int(govfetch.DefaultRetryDelay / time.Millisecond),
			Cache: CacheConfig{
				Enabled:    govfetch.Bool(true),
				TTLSeconds: int(govfetch.DefaultCacheTTL / time.Second),
				MaxSize:    govfetch.DefaultCacheMaxSize,
				Storage:    govfetch.StorageMemory,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:    govfetch.DefaultFailureThreshold,
				ResetTimeoutSeconds: int(govfetch.DefaultResetTimeout / time.Second),
				HalfOpenRequests:    govfetch.DefaultHalfOpenRequests,
			},
		},
		Services: map[string]ServiceConfig{},
	}
}

// Service returns the effective configuration for name with defaults applied.
func (c Config) Service(name string) (ServiceConfig, bool) {
	svc, ok := c.Services[name]
	if !ok {
		return ServiceConfig{}, false
	}
	return merged(c.Defaults, svc), true
}

// merged resolves a service entry against the defaults block field by field.
// Pointer fields inherit when nil, everything else when zero.
func merged(defaults, svc ServiceConfig) ServiceConfig {
	out := svc
	if out.BaseURL == "" {
		out.BaseURL = defaults.BaseURL
	}
	if out.TimeoutSeconds == 0 {
		out.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if out.Retries == nil {
		out.Retries = defaults.Retries
	}
	if out.RetryDelayMs == 0 {
		out.RetryDelayMs = defaults.RetryDelayMs
	}
	if out.Cache.Enabled == nil {
		out.Cache.Enabled = defaults.Cache.Enabled
	}
	if out.Cache.TTLSeconds == 0 {
		out.Cache.TTLSeconds = defaults.Cache.TTLSeconds
	}
	if out.Cache.MaxSize == 0 {
		out.Cache.MaxSize = defaults.Cache.MaxSize
	}
	if out.Cache.Storage == "" {
		out.Cache.Storage = defaults.Cache.Storage
	}
	if out.RateLimit.RequestsPerSecond == 0 {
		out.RateLimit.RequestsPerSecond = defaults.RateLimit.RequestsPerSecond
	}
	if out.RateLimit.BurstSize == 0 {
		out.RateLimit.BurstSize = defaults.RateLimit.BurstSize
	}
	if out.RateLimit.QueueExcess == nil {
		out.RateLimit.QueueExcess = defaults.RateLimit.QueueExcess
	}
	if out.CircuitBreaker.FailureThreshold == 0 {
		out.CircuitBreaker.FailureThreshold = defaults.CircuitBreaker.FailureThreshold
	}
	if out.CircuitBreaker.ResetTimeoutSeconds == 0 {
		out.CircuitBreaker.ResetTimeoutSeconds = defaults.CircuitBreaker.ResetTimeoutSeconds
	}
	if out.CircuitBreaker.HalfOpenRequests == 0 {
		out.CircuitBreaker.HalfOpenRequests = defaults.CircuitBreaker.HalfOpenRequests
	}
	return out
}

// NewLogger builds a slog.Logger matching the configured level and format.
func (l LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case LogLevelDebug:
		level = slog.LevelDebug
	case LogLevelWarn:
		level = slog.LevelWarn
	case LogLevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == LogFormatText {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rochafa10/govfetch"
)

// Options converts an effective service entry into govfetch client options.
// The valkey block is only consulted when the entry's cache storage is
// "valkey", in which case a connected store namespaced under the service
// name is injected.
func (s ServiceConfig) Options(name string, valkey ValkeyConfig) ([]govfetch.Option, error) {
	opts := []govfetch.Option{
		govfetch.WithBaseURL(s.BaseURL),
		govfetch.WithTimeout(time.Duration(s.TimeoutSeconds) * time.Second),
		govfetch.WithRetryDelay(time.Duration(s.RetryDelayMs) * time.Millisecond),
	}
	if s.Retries != nil {
		opts = append(opts, govfetch.WithRetries(*s.Retries))
	}

	if s.Cache.Enabled != nil && !*s.Cache.Enabled {
		opts = append(opts, govfetch.WithCacheDisabled())
	} else {
		opts = append(opts, govfetch.WithCache(govfetch.CacheConfig{
			Enabled: true,
			TTL:     time.Duration(s.Cache.TTLSeconds) * time.Second,
			MaxSize: s.Cache.MaxSize,
			Storage: s.Cache.Storage,
		}))
		if s.Cache.Storage == govfetch.StorageValkey {
			store, err := govfetch.NewValkeyCache(valkeyCacheConfig(name, valkey))
			if err != nil {
				return nil, fmt.Errorf("config: valkey cache for %s: %w", name, err)
			}
			opts = append(opts, govfetch.WithCacheStore(store))
		}
	}

	if s.RateLimit.RequestsPerSecond > 0 {
		opts = append(opts, govfetch.WithRateLimit(govfetch.RateLimitConfig{
			RequestsPerSecond: s.RateLimit.RequestsPerSecond,
			BurstSize:         s.RateLimit.BurstSize,
			QueueExcess:       s.RateLimit.QueueExcess != nil && *s.RateLimit.QueueExcess,
		}))
	}

	opts = append(opts, govfetch.WithCircuitBreaker(govfetch.CircuitBreakerConfig{
		FailureThreshold: s.CircuitBreaker.FailureThreshold,
		ResetTimeout:     time.Duration(s.CircuitBreaker.ResetTimeoutSeconds) * time.Second,
		HalfOpenRequests: s.CircuitBreaker.HalfOpenRequests,
	}))
	return opts, nil
}

// valkeyCacheConfig namespaces each service under its own key prefix so
// invalidation on one client never touches another's entries.
func valkeyCacheConfig(name string, valkey ValkeyConfig) govfetch.ValkeyConfig {
	prefix := valkey.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return govfetch.ValkeyConfig{
		Address:   valkey.Address,
		Username:  valkey.Username,
		Password:  valkey.Password,
		DB:        valkey.DB,
		KeyPrefix: prefix + name + ":",
		TLS: govfetch.ValkeyTLSConfig{
			Enabled: valkey.TLS.Enabled,
			CAFile:  valkey.TLS.CAFile,
		},
	}
}

// BuildRegistry constructs one govfetch client per configured service. The
// shared options are applied to every client before the per-service settings,
// so callers can inject middleware, metrics, or a logger for all of them.
func (c Config) BuildRegistry(shared ...govfetch.Option) (*govfetch.Registry, error) {
	registry := govfetch.NewRegistry(shared...)

	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := merged(c.Defaults, c.Services[name])
		opts, err := svc.Options(name, c.Valkey)
		if err != nil {
			_ = registry.Close()
			return nil, err
		}
		client := registry.Register(name, opts...)
		if err := client.ValidationError(); err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("config: service %s: %w", name, err)
		}
	}
	return registry, nil
}

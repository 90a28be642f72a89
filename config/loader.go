package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Double underscores mark
// nesting, so GOVFETCH_DEFAULTS__CACHE__TTLSECONDS overrides
// defaults.cache.ttlSeconds.
const EnvPrefix = "GOVFETCH"

// Loader hydrates the runtime configuration while respecting
// env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a loader over the given YAML files. Later files override
// earlier ones; environment variables override them all.
func NewLoader(files ...string) *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		if err := k.Load(env.Provider(l.envPrefix, ".", envTransform(l.envPrefix)), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// canonicalSegments restores the camelCase spelling of nested keys that the
// environment flattens to upper case.
var canonicalSegments = map[string]string{
	"baseurl":             "baseUrl",
	"timeoutseconds":      "timeoutSeconds",
	"retrydelayms":        "retryDelayMs",
	"ratelimit":           "rateLimit",
	"circuitbreaker":      "circuitBreaker",
	"ttlseconds":          "ttlSeconds",
	"maxsize":             "maxSize",
	"requestspersecond":   "requestsPerSecond",
	"burstsize":           "burstSize",
	"queueexcess":         "queueExcess",
	"failurethreshold":    "failureThreshold",
	"resettimeoutseconds": "resetTimeoutSeconds",
	"halfopenrequests":    "halfOpenRequests",
	"keyprefix":           "keyPrefix",
	"cafile":              "caFile",
}

// envTransform maps GOVFETCH_SERVICES__FEMA__BASEURL to services.fema.baseUrl.
// Double underscores signal object nesting. The service name segment keeps
// its single underscores so SERVICES__OPEN_METEO__... can address an
// open_meteo entry; everywhere else single underscores are collapsed.
func envTransform(prefix string) func(string) string {
	return func(s string) string {
		key := strings.TrimPrefix(s, prefix+"_")
		key = strings.ReplaceAll(key, "__", ".")
		parts := strings.Split(key, ".")
		for i, part := range parts {
			if i == 1 && strings.EqualFold(parts[0], "services") {
				parts[i] = strings.ToLower(part)
				continue
			}
			collapsed := strings.ToLower(strings.ReplaceAll(part, "_", ""))
			if mapped, ok := canonicalSegments[collapsed]; ok {
				parts[i] = mapped
				continue
			}
			parts[i] = collapsed
		}
		return strings.Join(parts, ".")
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"valkey": map[string]any{
			"address":   cfg.Valkey.Address,
			"username":  cfg.Valkey.Username,
			"password":  cfg.Valkey.Password,
			"db":        cfg.Valkey.DB,
			"keyPrefix": cfg.Valkey.KeyPrefix,
			"tls": map[string]any{
				"enabled": cfg.Valkey.TLS.Enabled,
				"caFile":  cfg.Valkey.TLS.CAFile,
			},
		},
		"defaults": serviceToMap(cfg.Defaults),
	}
}

func serviceToMap(svc ServiceConfig) map[string]any {
	cache := map[string]any{
		"ttlSeconds": svc.Cache.TTLSeconds,
		"maxSize":    svc.Cache.MaxSize,
		"storage":    svc.Cache.Storage,
	}
	if svc.Cache.Enabled != nil {
		cache["enabled"] = *svc.Cache.Enabled
	}
	rateLimit := map[string]any{
		"requestsPerSecond": svc.RateLimit.RequestsPerSecond,
		"burstSize":         svc.RateLimit.BurstSize,
	}
	if svc.RateLimit.QueueExcess != nil {
		rateLimit["queueExcess"] = *svc.RateLimit.QueueExcess
	}
	out := map[string]any{
		"baseUrl":        svc.BaseURL,
		"timeoutSeconds": svc.TimeoutSeconds,
		"retryDelayMs":   svc.RetryDelayMs,
		"cache":          cache,
		"rateLimit":      rateLimit,
		"circuitBreaker": map[string]any{
			"failureThreshold":    svc.CircuitBreaker.FailureThreshold,
			"resetTimeoutSeconds": svc.CircuitBreaker.ResetTimeoutSeconds,
			"halfOpenRequests":    svc.CircuitBreaker.HalfOpenRequests,
		},
	}
	if svc.Retries != nil {
		out["retries"] = *svc.Retries
	}
	return out
}

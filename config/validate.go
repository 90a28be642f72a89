package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/rochafa10/govfetch"
)

// Validate checks the document after defaults, files, and environment have
// been layered. Service entries are validated in their effective merged form.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
					validation.Field(&lc.Format,
						validation.Required,
						validation.In(LogFormatJSON, LogFormatText),
					),
				)
			}),
		),
		validation.Field(&c.Valkey,
			validation.By(func(value interface{}) error {
				vc, ok := value.(ValkeyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ValkeyConfig")
				}
				if vc.Address == "" {
					if c.usesValkey() {
						return validation.NewError("validation_missing_address", "valkey address is required when a service uses valkey storage")
					}
					return nil
				}
				return validateHostPort(vc.Address)
			}),
		),
		validation.Field(&c.Defaults,
			validation.By(func(value interface{}) error {
				svc, ok := value.(ServiceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
				}
				return validateServiceConfig(svc, false)
			}),
		),
		validation.Field(&c.Services,
			validation.By(func(value interface{}) error {
				services, ok := value.(map[string]ServiceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a service map")
				}
				names := make([]string, 0, len(services))
				for name := range services {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					if name == "" {
						return validation.NewError("validation_empty_name", "service name cannot be empty")
					}
					if err := validateServiceConfig(merged(c.Defaults, services[name]), true); err != nil {
						return fmt.Errorf("service %q: %w", name, err)
					}
				}
				return nil
			}),
		),
	)
}

// usesValkey reports whether any service resolves to valkey cache storage.
func (c Config) usesValkey() bool {
	for _, svc := range c.Services {
		eff := merged(c.Defaults, svc)
		if eff.Cache.Storage == govfetch.StorageValkey && (eff.Cache.Enabled == nil || *eff.Cache.Enabled) {
			return true
		}
	}
	return false
}

// validateServiceConfig checks one effective entry. The defaults block is
// validated with requireBaseURL false since it may leave baseUrl to services.
func validateServiceConfig(svc ServiceConfig, requireBaseURL bool) error {
	if requireBaseURL || svc.BaseURL != "" {
		if err := validateServiceURL(svc.BaseURL); err != nil {
			return err
		}
	}
	if svc.TimeoutSeconds < 0 {
		return validation.NewError("validation_negative_timeout", "timeoutSeconds cannot be negative")
	}
	if svc.Retries != nil && *svc.Retries < 0 {
		return validation.NewError("validation_negative_retries", "retries cannot be negative")
	}
	if svc.RetryDelayMs < 0 {
		return validation.NewError("validation_negative_retry_delay", "retryDelayMs cannot be negative")
	}
	switch svc.Cache.Storage {
	case "", govfetch.StorageMemory, govfetch.StorageValkey:
	default:
		return validation.NewError("validation_invalid_storage", "cache storage must be memory or valkey")
	}
	if svc.Cache.TTLSeconds < 0 {
		return validation.NewError("validation_negative_ttl", "cache ttlSeconds cannot be negative")
	}
	if svc.Cache.MaxSize < 0 {
		return validation.NewError("validation_negative_max_size", "cache maxSize cannot be negative")
	}
	if svc.RateLimit.RequestsPerSecond < 0 {
		return validation.NewError("validation_negative_rate", "requestsPerSecond cannot be negative")
	}
	if svc.RateLimit.BurstSize < 0 {
		return validation.NewError("validation_negative_burst", "burstSize cannot be negative")
	}
	if svc.CircuitBreaker.FailureThreshold < 0 {
		return validation.NewError("validation_negative_threshold", "failureThreshold cannot be negative")
	}
	if svc.CircuitBreaker.ResetTimeoutSeconds < 0 {
		return validation.NewError("validation_negative_reset", "resetTimeoutSeconds cannot be negative")
	}
	if svc.CircuitBreaker.HalfOpenRequests < 0 {
		return validation.NewError("validation_negative_half_open", "halfOpenRequests cannot be negative")
	}
	return nil
}

func validateServiceURL(raw string) error {
	if raw == "" {
		return validation.NewError("validation_empty_url", "baseUrl cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "baseUrl must use http or https scheme")
	}
	if parsed.Host == "" {
		return validation.NewError("validation_missing_host", "baseUrl must have a host")
	}
	return nil
}

func validateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}
	return nil
}

package govfetch

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// WithBaseURL sets the base URL relative request paths are joined onto
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.config.BaseURL = baseURL
	}
}

// WithServiceName names the downstream service for metrics and breaker errors
func WithServiceName(name string) Option {
	return func(c *Client) {
		c.config.ServiceName = name
	}
}

// WithTimeout sets the per-attempt transport timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.Timeout = d
	}
}

// WithRetries sets the service-level retry count (attempts = retries + 1)
func WithRetries(n int) Option {
	return func(c *Client) {
		c.config.Retries = n
	}
}

// WithRetryDelay sets the base delay the default backoff doubles from
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.config.RetryDelay = d
	}
}

// WithAPIConfig replaces the whole service config, filling zero fields with defaults
func WithAPIConfig(config APIConfig) Option {
	return func(c *Client) {
		c.config = config.withDefaults()
	}
}

// WithRetryPolicy sets a custom backoff schedule
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRetryCondition sets a custom retryability classification
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithRateLimit enables the local token bucket; a zero RequestsPerSecond
// disables it again
func WithRateLimit(config RateLimitConfig) Option {
	return func(c *Client) {
		if config.RequestsPerSecond <= 0 {
			c.rateLimiter = nil
			return
		}
		c.rateLimiter = NewRateLimiter(config)
	}
}

// WithCache replaces the cache configuration, filling zero fields with defaults
func WithCache(config CacheConfig) Option {
	return func(c *Client) {
		c.cacheConfig = config.withDefaults()
	}
}

// WithCacheTTL sets the default entry lifetime
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheConfig.TTL = ttl
	}
}

// WithCacheDisabled turns the response cache off entirely
func WithCacheDisabled() Option {
	return func(c *Client) {
		c.cacheConfig.Enabled = false
	}
}

// WithCacheStore sets a custom cache backend such as NewValkeyCache
func WithCacheStore(store CacheStore) Option {
	return func(c *Client) {
		c.cache = store
	}
}

// WithCacheKeyFunc sets a custom cache key derivation
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithCacheCondition sets a custom cacheability check
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCircuitBreaker sets the circuit breaker configuration
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithoutDeduplication disables coalescing of concurrent identical reads
func WithoutDeduplication() Option {
	return func(c *Client) {
		c.dedup = nil
	}
}

// WithDedupCondition sets a custom deduplication eligibility check
func WithDedupCondition(fn DedupCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithRequestLogSize bounds the request log ring buffer
func WithRequestLogSize(n int) Option {
	return func(c *Client) {
		c.requestLog = newRequestLog(n)
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client backing the default transport
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if client != nil {
			c.transport = RoundTripperFunc(client.Do)
		}
	}
}

// WithTransport injects the transport the pipeline calls; anything that can
// round-trip an *http.Request works, including a test stub
func WithTransport(transport RoundTripper) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateAPIConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateDeduplicationConfig()...)
	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		ve := newValidationError("configuration", "valid client options", nil, "configuration validation failed")
		ve.Cause = fmt.Errorf("validation errors: %v", errors)
		return ve
	}

	return nil
}

// validateAPIConfig validates the service-level settings
func (c *Client) validateAPIConfig() []string {
	var errors []string

	if c.config.BaseURL != "" {
		u, err := url.Parse(c.config.BaseURL)
		if err != nil {
			errors = append(errors, fmt.Sprintf("baseURL is not a valid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, "baseURL must use http or https")
		}
	}

	if c.config.ServiceName == "" {
		errors = append(errors, "serviceName must not be empty")
	}

	if c.config.Timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	return errors
}

// validateRetryConfig validates retry-related configuration
func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.config.Retries < 0 {
		errors = append(errors, "retries must be non-negative")
	}

	if c.config.RetryDelay <= 0 {
		errors = append(errors, "retryDelay must be positive")
	}

	if c.retryCondition == nil {
		errors = append(errors, "retryCondition must not be nil")
	}

	return errors
}

// validateRateLimiterConfig validates rate limiter configuration
func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.rateLimiter != nil {
		if c.rateLimiter.config.RequestsPerSecond <= 0 {
			errors = append(errors, "rateLimit requestsPerSecond must be positive")
		}
		if c.rateLimiter.config.BurstSize < 1 {
			errors = append(errors, "rateLimit burstSize must be at least 1")
		}
	}

	return errors
}

// validateCacheConfig validates cache configuration
func (c *Client) validateCacheConfig() []string {
	var errors []string

	if !c.cacheConfig.Enabled {
		return errors
	}

	if c.cacheConfig.TTL <= 0 {
		errors = append(errors, "cache TTL must be positive when cache is enabled")
	}
	if c.cacheConfig.MaxSize <= 0 {
		errors = append(errors, "cache maxSize must be positive when cache is enabled")
	}
	switch c.cacheConfig.Storage {
	case StorageMemory:
	case StorageValkey:
		if c.cache == nil {
			errors = append(errors, "valkey storage requires an explicit store via WithCacheStore")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown cache storage %q", c.cacheConfig.Storage))
	}

	if c.cacheKeyFunc == nil {
		errors = append(errors, "cacheKeyFunc must not be nil")
	}
	if c.cacheCondition == nil {
		errors = append(errors, "cacheCondition must not be nil")
	}

	return errors
}

// validateCircuitBreakerConfig validates circuit breaker configuration
func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errors = append(errors, "circuitBreaker failureThreshold must be positive")
		}
		if c.circuitBreaker.config.ResetTimeout <= 0 {
			errors = append(errors, "circuitBreaker resetTimeout must be positive")
		}
		if c.circuitBreaker.config.HalfOpenRequests <= 0 {
			errors = append(errors, "circuitBreaker halfOpenRequests must be positive")
		}
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

// validateDeduplicationConfig validates deduplication configuration
func (c *Client) validateDeduplicationConfig() []string {
	var errors []string

	if c.dedup != nil && c.dedupCondition == nil {
		errors = append(errors, "dedupCondition must be set when deduplication is enabled")
	}

	return errors
}

// validateTransportConfig validates the transport wiring
func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.transport == nil && c.httpClient == nil {
		errors = append(errors, "transport or HTTP client must be set")
	}

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

// validateExtremeValues validates that configuration values are within
// reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.config.Retries > 100 {
		errors = append(errors, "retries > 100 may cause excessive resource usage")
	}

	if c.config.RetryDelay > 10*time.Minute {
		errors = append(errors, "retryDelay > 10m may cause very long delays")
	}

	if c.config.Timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	if c.cacheConfig.Enabled && c.cacheConfig.TTL > 7*24*time.Hour {
		errors = append(errors, "cache TTL > 7d may cause stale data issues")
	}

	return errors
}

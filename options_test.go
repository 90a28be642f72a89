package govfetch

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWithBaseURL(t *testing.T) {
	client := New(WithBaseURL("https://api.weather.gov"))
	if client.config.BaseURL != "https://api.weather.gov" {
		t.Errorf("Expected baseURL to be set, got %s", client.config.BaseURL)
	}
}

func TestWithServiceName(t *testing.T) {
	client := New(WithServiceName("fema"))
	if client.config.ServiceName != "fema" {
		t.Errorf("Expected serviceName fema, got %s", client.config.ServiceName)
	}
}

func TestWithTimeout(t *testing.T) {
	client := New(WithTimeout(5 * time.Second))
	if client.config.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", client.config.Timeout)
	}
}

func TestWithRetriesZero(t *testing.T) {
	// Zero through the option is honored, unlike a zero struct field
	client := New(WithRetries(0))
	if client.config.Retries != 0 {
		t.Errorf("Expected retries 0, got %d", client.config.Retries)
	}
	if !client.IsValid() {
		t.Errorf("Expected zero retries to be valid, got %v", client.ValidationError())
	}
}

func TestWithRetryDelay(t *testing.T) {
	client := New(WithRetryDelay(100 * time.Millisecond))
	if client.config.RetryDelay != 100*time.Millisecond {
		t.Errorf("Expected retryDelay 100ms, got %v", client.config.RetryDelay)
	}

	// The default policy picks up the configured base
	policy, ok := client.retryPolicy.(ExponentialPolicy)
	if !ok {
		t.Fatalf("Expected ExponentialPolicy default, got %T", client.retryPolicy)
	}
	if policy.Base != 100*time.Millisecond {
		t.Errorf("Expected policy base 100ms, got %v", policy.Base)
	}
}

func TestWithAPIConfig(t *testing.T) {
	client := New(WithAPIConfig(APIConfig{BaseURL: "https://api.census.gov", ServiceName: "census"}))
	if client.config.BaseURL != "https://api.census.gov" {
		t.Errorf("Expected baseURL to be set, got %s", client.config.BaseURL)
	}

	// Zero fields of a replaced config fall back to defaults
	if client.config.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout, got %v", client.config.Timeout)
	}
	if client.config.Retries != DefaultRetries {
		t.Errorf("Expected default retries, got %d", client.config.Retries)
	}
}

func TestWithRetryPolicy(t *testing.T) {
	policy := DecorrelatedPolicy{Base: 10 * time.Millisecond, Max: time.Second}
	client := New(WithRetryPolicy(policy))
	if _, ok := client.retryPolicy.(DecorrelatedPolicy); !ok {
		t.Errorf("Expected DecorrelatedPolicy, got %T", client.retryPolicy)
	}
}

func TestWithRetryCondition(t *testing.T) {
	called := false
	client := New(WithRetryCondition(func(status int, err error) bool {
		called = true
		return false
	}))
	client.retryCondition(500, nil)
	if !called {
		t.Error("Expected custom retry condition to be installed")
	}
}

func TestWithRateLimit(t *testing.T) {
	client := New(WithRateLimit(RateLimitConfig{RequestsPerSecond: 5, BurstSize: 10}))
	state, ok := client.RateLimiterState()
	if !ok {
		t.Fatal("Expected a rate limiter")
	}
	if state.Limit != 5 || state.Burst != 10 {
		t.Errorf("Expected limit 5 burst 10, got %+v", state)
	}

	// A zero rate removes the limiter again
	client = New(
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 5}),
		WithRateLimit(RateLimitConfig{}),
	)
	if _, ok := client.RateLimiterState(); ok {
		t.Error("Expected zero rate to disable the limiter")
	}
}

func TestWithCache(t *testing.T) {
	client := New(WithCache(CacheConfig{Enabled: true, TTL: 10 * time.Minute, MaxSize: 50}))
	if client.cacheConfig.TTL != 10*time.Minute {
		t.Errorf("Expected TTL 10m, got %v", client.cacheConfig.TTL)
	}
	if client.cacheConfig.MaxSize != 50 {
		t.Errorf("Expected maxSize 50, got %d", client.cacheConfig.MaxSize)
	}
	if client.cacheConfig.Storage != StorageMemory {
		t.Errorf("Expected memory storage default, got %s", client.cacheConfig.Storage)
	}
	if client.cache == nil {
		t.Error("Expected a materialized memory cache")
	}
}

func TestWithCacheTTL(t *testing.T) {
	client := New(WithCacheTTL(30 * time.Second))
	if client.cacheConfig.TTL != 30*time.Second {
		t.Errorf("Expected TTL 30s, got %v", client.cacheConfig.TTL)
	}
}

func TestWithCacheDisabled(t *testing.T) {
	client := New(WithCacheDisabled())
	if client.cacheConfig.Enabled {
		t.Error("Expected cache to be disabled")
	}
	if client.cache != nil {
		t.Error("Expected no cache store to be materialized")
	}
	if stats := client.CacheStats(); stats.Size != 0 {
		t.Errorf("Expected zero stats without a cache, got %+v", stats)
	}
	if !client.IsValid() {
		t.Errorf("Expected disabled cache to be valid, got %v", client.ValidationError())
	}
}

func TestWithCacheStore(t *testing.T) {
	store := NewMemoryCache(5)
	client := New(WithCacheStore(store))
	if client.cache != store {
		t.Error("Expected the injected store to be used")
	}
}

func TestWithCacheKeyFunc(t *testing.T) {
	client := New(
		WithBaseURL("https://api.example.gov"),
		WithCacheKeyFunc(func(method, url string, body []byte) string {
			return "fixed-key"
		}),
	)
	rr, err := client.resolveRequest(&Request{Path: "/v1"})
	if err != nil {
		t.Fatalf("resolveRequest() returned error: %v", err)
	}
	if rr.key != "fixed-key" {
		t.Errorf("Expected custom key, got %s", rr.key)
	}
}

func TestWithCacheCondition(t *testing.T) {
	client := New(
		WithBaseURL("https://api.example.gov"),
		WithCacheCondition(func(req *Request) bool { return false }),
	)
	rr, err := client.resolveRequest(&Request{Path: "/v1"})
	if err != nil {
		t.Fatalf("resolveRequest() returned error: %v", err)
	}
	if rr.cacheable {
		t.Error("Expected custom condition to disable caching")
	}
}

func TestWithCircuitBreaker(t *testing.T) {
	client := New(WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 7, ResetTimeout: 30 * time.Second, HalfOpenRequests: 3}))
	if client.circuitBreaker.config.FailureThreshold != 7 {
		t.Errorf("Expected failureThreshold 7, got %d", client.circuitBreaker.config.FailureThreshold)
	}
	if client.circuitBreaker.config.ResetTimeout != 30*time.Second {
		t.Errorf("Expected resetTimeout 30s, got %v", client.circuitBreaker.config.ResetTimeout)
	}
}

func TestWithoutDeduplication(t *testing.T) {
	client := New(WithoutDeduplication())
	if client.dedup != nil {
		t.Error("Expected deduplication to be disabled")
	}
	if !client.IsValid() {
		t.Errorf("Expected valid config, got %v", client.ValidationError())
	}
}

func TestWithDedupCondition(t *testing.T) {
	client := New(
		WithBaseURL("https://api.example.gov"),
		WithDedupCondition(func(req *Request) bool { return true }),
	)
	rr, err := client.resolveRequest(&Request{Method: "POST", Path: "/v1", Body: "x"})
	if err != nil {
		t.Fatalf("resolveRequest() returned error: %v", err)
	}
	if !rr.dedupable {
		t.Error("Expected custom condition to coalesce POSTs")
	}
}

func TestWithRequestLogSize(t *testing.T) {
	client := New(WithRequestLogSize(2))
	for i := 0; i < 3; i++ {
		client.requestLog.append(RequestLogEntry{RequestID: "r"})
	}
	if got := len(client.RequestLog()); got != 2 {
		t.Errorf("Expected log bounded at 2, got %d", got)
	}
}

func TestWithMiddleware(t *testing.T) {
	mw := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		return next.RoundTrip(req)
	}
	client := New(WithMiddleware(mw, mw))
	if got := len(client.middleware); got != 2 {
		t.Errorf("Expected 2 middleware, got %d", got)
	}
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	client := New(WithHTTPClient(hc))
	if client.httpClient != hc {
		t.Error("Expected the injected HTTP client")
	}
	if client.transport == nil {
		t.Error("Expected a transport wrapping the HTTP client")
	}
}

func TestWithTransport(t *testing.T) {
	rt := RoundTripperFunc(func(*http.Request) (*http.Response, error) { return nil, nil })
	client := New(WithTransport(rt))
	if client.transport == nil {
		t.Error("Expected the injected transport")
	}
}

func TestWithMetricsCollector(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := New(WithMetricsCollector(collector))
	if client.metrics != collector {
		t.Error("Expected the injected collector")
	}
}

func TestWithDebug(t *testing.T) {
	client := New(WithDebug())
	if client.debug == nil || !client.debug.Enabled {
		t.Error("Expected debug to be enabled")
	}
}

func TestWithSimpleLogger(t *testing.T) {
	client := New(WithSimpleLogger())
	if client.logger == nil {
		t.Error("Expected a logger to be installed")
	}
	if client.debug == nil || !client.debug.Enabled {
		t.Error("Expected debug to be enabled")
	}
	if !client.IsValid() {
		t.Errorf("Expected valid config, got %v", client.ValidationError())
	}
}

func TestWithLogger(t *testing.T) {
	logger := NewSimpleLogger()
	client := New(WithLogger(logger))
	if client.logger != logger {
		t.Error("Expected the injected logger")
	}
}

func TestWithRequestIDGenerator(t *testing.T) {
	client := New(WithRequestIDGenerator(func() string { return "id-1" }))
	if got := client.newRequestID(); got != "id-1" {
		t.Errorf("Expected injected generator, got %s", got)
	}
}

func TestValidateConfigurationFailures(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		want    string
	}{
		{"negative timeout", []Option{WithTimeout(-1)}, "timeout must be positive"},
		{"negative retries", []Option{WithRetries(-1)}, "retries must be non-negative"},
		{"zero retry delay", []Option{WithRetryDelay(0)}, "retryDelay must be positive"},
		{"bad base url", []Option{WithBaseURL("://bad")}, "baseURL is not a valid URL"},
		{"non-http base url", []Option{WithBaseURL("ftp://files.example.gov")}, "baseURL must use http or https"},
		{"empty service name", []Option{WithServiceName("")}, "serviceName must not be empty"},
		{"zero cache ttl", []Option{WithCacheTTL(0)}, "cache TTL must be positive"},
		{"unknown storage", []Option{WithCache(CacheConfig{Enabled: true, Storage: "redis"})}, "unknown cache storage"},
		{"valkey without store", []Option{WithCache(CacheConfig{Enabled: true, Storage: StorageValkey})}, "requires an explicit store"},
		{"nil retry condition", []Option{WithRetryCondition(nil)}, "retryCondition must not be nil"},
		{"tiny burst", []Option{WithRateLimit(RateLimitConfig{RequestsPerSecond: 5, BurstSize: -1})}, "burstSize must be at least 1"},
		{"nil middleware", []Option{WithMiddleware(nil)}, "middleware[0] cannot be nil"},
		{"excessive retries", []Option{WithRetries(101)}, "retries > 100"},
		{"excessive retry delay", []Option{WithRetryDelay(11 * time.Minute)}, "retryDelay > 10m"},
		{"excessive timeout", []Option{WithTimeout(11 * time.Minute)}, "timeout > 10m"},
		{"excessive cache ttl", []Option{WithCacheTTL(8 * 24 * time.Hour)}, "cache TTL > 7d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.options...)
			if client.IsValid() {
				t.Fatal("Expected configuration to be invalid")
			}
			err := client.ValidationError()
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateConfigurationOK(t *testing.T) {
	client := New(
		WithBaseURL("https://api.example.gov"),
		WithServiceName("example"),
		WithTimeout(10*time.Second),
		WithRetries(2),
		WithRetryDelay(250*time.Millisecond),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 10}),
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3}),
	)
	if !client.IsValid() {
		t.Errorf("Expected valid configuration, got %v", client.ValidationError())
	}
}

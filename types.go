package govfetch

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Defaults applied by New and by the config merge helpers.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultRetries          = 3
	DefaultRetryDelay       = 2 * time.Second
	DefaultCacheTTL         = time.Hour
	DefaultCacheMaxSize     = 500
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
	DefaultHalfOpenRequests = 2
	DefaultRequestLogSize   = 100
)

// Cache storage backends.
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
)

// APIConfig carries the per-service transport settings. Zero fields are
// filled from the defaults above; a service needing zero retries sets that
// through WithRetries(0) rather than the struct.
type APIConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Retries     int
	RetryDelay  time.Duration
	ServiceName string
}

func (c APIConfig) withDefaults() APIConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ServiceName == "" {
		c.ServiceName = "default"
	}
	return c
}

// CacheConfig controls the response cache. Enabled is taken as given (the
// default construction enables it); zero TTL, MaxSize, and Storage fall
// back to defaults.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
	Storage string
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.TTL == 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.MaxSize == 0 {
		c.MaxSize = DefaultCacheMaxSize
	}
	if c.Storage == "" {
		c.Storage = StorageMemory
	}
	return c
}

// CircuitBreakerConfig tunes the per-service breaker. HalfOpenRequests is
// both the concurrent probe bound and the successes required to close.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenRequests int
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = DefaultHalfOpenRequests
	}
	return c
}

// RateLimitConfig tunes the local token bucket. A zero RequestsPerSecond
// leaves the bucket off entirely (no local admission control).
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	QueueExcess       bool
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.BurstSize == 0 && c.RequestsPerSecond > 0 {
		burst := int(c.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.BurstSize = burst
	}
	return c
}

// Request describes one logical call. Params and Headers may be nil. Body
// accepts nil, []byte, string, json.RawMessage, or any JSON-marshalable
// value. Cache and Retries are per-call overrides of the service settings;
// nil means "use the service default".
type Request struct {
	Method   string
	Path     string
	Params   url.Values
	Headers  http.Header
	Body     interface{}
	Cache    *bool
	CacheTTL time.Duration
	Retries  *int
}

// CacheMetadata annotates a response served from cache.
type CacheMetadata struct {
	Age       time.Duration
	ExpiresAt time.Time
}

// Response is the envelope every successful call resolves to. Data holds
// the raw body bytes; decode with JSON or consume directly.
type Response struct {
	Data          []byte
	Status        int
	Header        http.Header
	Cached        bool
	CacheMetadata *CacheMetadata
	RequestID     string
	ResponseTime  time.Duration
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

// CacheKeyFunc derives the cache (and dedup) key for a resolved request.
// The url already contains the canonically-encoded query string.
type CacheKeyFunc func(method, url string, body []byte) string

// CacheCondition determines whether a request's response may be cached
type CacheCondition func(req *Request) bool

// DedupCondition determines whether concurrent identical requests coalesce
type DedupCondition func(req *Request) bool

// RetryCondition determines whether a failed attempt should be retried;
// status is zero when the attempt produced no HTTP response
type RetryCondition func(status int, err error) bool

// Middleware represents a middleware function
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)

// Bool returns a pointer to b, for per-call overrides.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i, for per-call overrides.
func Int(i int) *int { return &i }

package govfetch

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterState is an observable snapshot of the token bucket. Tokens
// refill continuously, so the snapshot instant doubles as the refill point.
type RateLimiterState struct {
	Tokens       float64
	Burst        int
	Limit        float64
	LastRefillAt time.Time
}

// RateLimiter is the per-service token bucket: capacity BurstSize, refilled
// continuously at RequestsPerSecond with fractional accrual. The pipeline
// checks Allow first and either queues on Wait or rejects with the delay
// from RetryAfter, per QueueExcess.
type RateLimiter struct {
	config  RateLimitConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a bucket; RequestsPerSecond must be positive (a
// client with a zero config simply carries no limiter).
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	config = config.withDefaults()
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}

// Wait suspends the caller until a token accrues or ctx ends. Queue depth
// is unbounded; callers impose their own deadline through ctx.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	return rl.limiter.Wait(ctx)
}

// RetryAfter reports how long until the next token frees, without keeping
// the reservation.
func (rl *RateLimiter) RetryAfter() time.Duration {
	if rl == nil {
		return 0
	}
	r := rl.limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	return delay
}

// QueueExcess reports whether exhausted callers queue instead of failing.
func (rl *RateLimiter) QueueExcess() bool {
	return rl != nil && rl.config.QueueExcess
}

// State returns a reporting snapshot.
func (rl *RateLimiter) State() RateLimiterState {
	if rl == nil {
		return RateLimiterState{}
	}
	now := time.Now()
	tokens := rl.limiter.TokensAt(now)
	burst := rl.limiter.Burst()
	if tokens > float64(burst) {
		tokens = float64(burst)
	}
	return RateLimiterState{
		Tokens:       tokens,
		Burst:        burst,
		Limit:        float64(rl.limiter.Limit()),
		LastRefillAt: now,
	}
}

// parseRetryAfter reads a Retry-After header value: delta-seconds or an
// HTTP date. Results are capped at one hour to keep a misbehaving server
// from parking callers indefinitely.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return capRetryAfter(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return capRetryAfter(d), true
		}
		return 0, true
	}
	return 0, false
}

func capRetryAfter(d time.Duration) time.Duration {
	const max = time.Hour
	if d > max {
		return max
	}
	return d
}

// rateLimitFromHeaders builds the informative fields of a RateLimitError
// from a 429 response's headers, falling back to the bucket's own numbers
// when the downstream sends none.
func rateLimitFromHeaders(header http.Header, now time.Time, local *RateLimiter) (limit float64, remaining int, resetTime time.Time, retryAfter time.Duration) {
	if local != nil {
		limit = local.config.RequestsPerSecond
	}
	if v := header.Get("X-RateLimit-Limit"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			limit = f
		}
	}
	if v := header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			remaining = n
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil && unix > 0 {
			resetTime = time.Unix(unix, 0)
		}
	}
	if d, ok := parseRetryAfter(header.Get("Retry-After"), now); ok {
		retryAfter = d
	}
	if retryAfter == 0 && !resetTime.IsZero() && resetTime.After(now) {
		retryAfter = capRetryAfter(resetTime.Sub(now))
	}
	if resetTime.IsZero() && retryAfter > 0 {
		resetTime = now.Add(retryAfter)
	}
	return limit, remaining, resetTime, retryAfter
}

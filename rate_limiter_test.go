package govfetch

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 5})
	if rl == nil {
		t.Fatal("NewRateLimiter() returned nil")
	}

	// Should derive the burst from the rate when unset
	state := rl.State()
	if state.Burst != 5 {
		t.Errorf("Expected burst to be 5, got %d", state.Burst)
	}
	if state.Limit != 5 {
		t.Errorf("Expected limit to be 5, got %f", state.Limit)
	}
}

func TestRateLimiterAllowBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})

	// Should allow up to the burst, then reject
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Errorf("Expected request %d within the burst to be allowed", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Expected request beyond the burst to be rejected")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})

	if !rl.Allow() {
		t.Fatal("Expected first request to be allowed")
	}
	if rl.Allow() {
		t.Error("Expected drained bucket to reject")
	}

	// Tokens accrue continuously at the configured rate
	time.Sleep(50 * time.Millisecond)
	if !rl.Allow() {
		t.Error("Expected a token after refill")
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
	rl.Allow()

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
		t.Errorf("Expected Wait to block for a token, returned after %v", elapsed)
	}
}

func TestRateLimiterWaitCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1})
	rl.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Expected Wait to fail when the context is canceled")
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1})
	rl.Allow()

	// Should estimate the wait without holding the reservation
	d := rl.RetryAfter()
	if d <= 0 || d > time.Second {
		t.Errorf("Expected retry-after around 500ms, got %v", d)
	}
	d2 := rl.RetryAfter()
	if d2 <= 0 || d2 > time.Second {
		t.Errorf("Expected repeated retry-after around 500ms, got %v", d2)
	}
}

func TestRateLimiterState(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 4})

	state := rl.State()
	if state.Tokens > 4 {
		t.Errorf("Expected tokens clamped to burst, got %f", state.Tokens)
	}
	if state.Tokens < 3.5 {
		t.Errorf("Expected a full bucket, got %f tokens", state.Tokens)
	}

	rl.Allow()
	rl.Allow()
	state = rl.State()
	if state.Tokens > 2.5 {
		t.Errorf("Expected tokens to drop after consumption, got %f", state.Tokens)
	}
	if state.LastRefillAt.IsZero() {
		t.Error("Expected lastRefillAt to be stamped")
	}
}

func TestRateLimiterQueueExcess(t *testing.T) {
	queued := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, QueueExcess: true})
	if !queued.QueueExcess() {
		t.Error("Expected queueExcess to be true")
	}
	rejecting := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1})
	if rejecting.QueueExcess() {
		t.Error("Expected queueExcess to be false")
	}
}

func TestRateLimiterNil(t *testing.T) {
	var rl *RateLimiter

	// A client without a limiter carries nil; every method is a no-op
	if !rl.Allow() {
		t.Error("Expected nil limiter to allow")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("Expected nil limiter Wait to return nil, got %v", err)
	}
	if d := rl.RetryAfter(); d != 0 {
		t.Errorf("Expected nil limiter retry-after to be 0, got %v", d)
	}
	if rl.QueueExcess() {
		t.Error("Expected nil limiter queueExcess to be false")
	}
	if state := rl.State(); state.Burst != 0 {
		t.Errorf("Expected zero state from nil limiter, got %+v", state)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{"empty", "", 0, false},
		{"seconds", "5", 5 * time.Second, true},
		{"zero seconds", "0", 0, true},
		{"negative seconds", "-3", 0, false},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"past http date", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"capped seconds", "7200", time.Hour, true},
		{"garbage", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestCapRetryAfter(t *testing.T) {
	if got := capRetryAfter(30 * time.Minute); got != 30*time.Minute {
		t.Errorf("Expected 30m to pass through, got %v", got)
	}
	if got := capRetryAfter(2 * time.Hour); got != time.Hour {
		t.Errorf("Expected 2h to cap at 1h, got %v", got)
	}
}

func TestRateLimitFromHeaders(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	header := http.Header{}
	header.Set("X-RateLimit-Limit", "100")
	header.Set("X-RateLimit-Remaining", "0")
	header.Set("X-RateLimit-Reset", "1773144060")
	header.Set("Retry-After", "7")

	limit, remaining, resetTime, retryAfter := rateLimitFromHeaders(header, now, nil)
	if limit != 100 {
		t.Errorf("Expected limit to be 100, got %f", limit)
	}
	if remaining != 0 {
		t.Errorf("Expected remaining to be 0, got %d", remaining)
	}
	if resetTime.Unix() != 1773144060 {
		t.Errorf("Expected resetTime from header, got %v", resetTime)
	}
	if retryAfter != 7*time.Second {
		t.Errorf("Expected retryAfter to be 7s, got %v", retryAfter)
	}
}

func TestRateLimitFromHeadersDerived(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Without Retry-After the delay is derived from the reset time
	header := http.Header{}
	header.Set("X-RateLimit-Reset", "1773144030")

	_, _, resetTime, retryAfter := rateLimitFromHeaders(header, now, nil)
	if want := resetTime.Sub(now); retryAfter != want {
		t.Errorf("Expected retryAfter derived from reset time %v, got %v", want, retryAfter)
	}

	// And the reset time is derived from Retry-After when reversed
	header = http.Header{}
	header.Set("Retry-After", "10")
	_, _, resetTime, retryAfter = rateLimitFromHeaders(header, now, nil)
	if retryAfter != 10*time.Second {
		t.Errorf("Expected retryAfter to be 10s, got %v", retryAfter)
	}
	if !resetTime.Equal(now.Add(10 * time.Second)) {
		t.Errorf("Expected resetTime now+10s, got %v", resetTime)
	}
}

func TestRateLimitFromHeadersLocalFallback(t *testing.T) {
	local := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 2.5, BurstSize: 5})

	limit, _, _, _ := rateLimitFromHeaders(http.Header{}, time.Now(), local)
	if limit != 2.5 {
		t.Errorf("Expected limit from the local bucket, got %f", limit)
	}
}

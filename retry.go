package govfetch

import (
	"errors"
	"time"

	"github.com/rochafa10/govfetch/internal/backoff"
)

// DefaultRetryCondition is the stock retryability classification: 408, any
// 5xx, timeouts, and transient network failures retry; 429 and every other
// 4xx are terminal. status is zero when the attempt produced no response.
func DefaultRetryCondition(status int, err error) bool {
	if status > 0 {
		return retryableStatus(status)
	}
	if err == nil {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.IsTransient()
	}
	return IsRetryable(err)
}

// RetryPolicy produces the wait before a retry. retry is 1-based: Delay(1)
// is slept after the first failed attempt.
type RetryPolicy interface {
	Delay(retry int) time.Duration
}

// ExponentialPolicy doubles Base per retry: Base, 2*Base, 4*Base, ... An
// optional Jitter fraction spreads herds; Max zero means uncapped.
type ExponentialPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay implements RetryPolicy.
func (p ExponentialPolicy) Delay(retry int) time.Duration {
	return backoff.Exponential{}.Delay(retry, p.Base, p.Max, 2.0, p.Jitter)
}

// DecorrelatedPolicy draws each wait uniformly from [Base, min(Max,
// Base*3^retry)], AWS-style. Useful when many workers hammer the same
// endpoint and synchronized retries would spike it.
type DecorrelatedPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay implements RetryPolicy.
func (p DecorrelatedPolicy) Delay(retry int) time.Duration {
	return backoff.Decorrelated{}.Delay(retry, p.Base, p.Max, 0, 0)
}

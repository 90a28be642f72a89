package govfetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	ErrCircuitOpen = errors.New("govfetch: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("govfetch: rate limited")

	// ErrCacheMiss is returned by cache stores when a lookup finds nothing
	ErrCacheMiss = errors.New("govfetch: cache miss")
)

// ErrorKind classifies a request failure.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindCircuitBreaker ErrorKind = "circuit_breaker"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindAPI            ErrorKind = "api"
)

// RequestError is the base carried by every failure kind. Concrete kinds
// (ValidationError, RateLimitError, CircuitBreakerError, TimeoutError,
// NetworkError, APIError) embed it, so errors.As with a *RequestError target
// matches any of them.
type RequestError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Endpoint   string
	RequestID  string
	Timestamp  time.Time
	Retryable  bool
	Cause      error
}

// Error implements error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches sentinel errors and same-kind RequestErrors for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Kind == ErrorKindCircuitBreaker
	case ErrRateLimited:
		return e.Kind == ErrorKindRateLimit
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	info += fmt.Sprintf("Retryable: %t\n", e.Retryable)
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// ValidationError reports malformed input rejected before any network call.
type ValidationError struct {
	RequestError
	Field        string
	Constraint   string
	InvalidValue interface{}
}

func (e *ValidationError) Unwrap() error { return &e.RequestError }

func newValidationError(field, constraint string, invalid interface{}, message string) *ValidationError {
	return &ValidationError{
		RequestError: RequestError{
			Kind:      ErrorKindValidation,
			Message:   message,
			Timestamp: time.Now(),
		},
		Field:        field,
		Constraint:   constraint,
		InvalidValue: invalid,
	}
}

// RateLimitError reports an exhausted local bucket or an authoritative 429
// from the downstream. Never retried locally; RetryAfter tells the caller
// when trying again is worthwhile.
type RateLimitError struct {
	RequestError
	Limit      float64
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func (e *RateLimitError) Unwrap() error { return &e.RequestError }

// CircuitBreakerError reports a call rejected by breaker state.
type CircuitBreakerError struct {
	RequestError
	ServiceName  string
	ResetTime    time.Time
	FailureCount int
	CircuitState CircuitState
}

func (e *CircuitBreakerError) Unwrap() error { return &e.RequestError }

// TimeoutError reports a transport attempt exceeding the configured timeout.
type TimeoutError struct {
	RequestError
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Unwrap() error { return &e.RequestError }

// NetworkErrorType distinguishes transport-level failure causes.
type NetworkErrorType string

const (
	NetworkErrorConnection NetworkErrorType = "connection"
	NetworkErrorDNS        NetworkErrorType = "dns"
	NetworkErrorSSL        NetworkErrorType = "ssl"
	NetworkErrorUnknown    NetworkErrorType = "unknown"
)

// NetworkError reports a connection, DNS, or TLS failure below HTTP.
type NetworkError struct {
	RequestError
	ErrorType NetworkErrorType
}

func (e *NetworkError) Unwrap() error { return &e.RequestError }

// IsTransient reports whether the failure is worth retrying: connection
// resets and refusals and DNS timeouts usually heal, certificate problems
// do not.
func (e *NetworkError) IsTransient() bool {
	if e == nil {
		return false
	}
	return e.Retryable
}

// APIError is the generic kind for HTTP statuses >= 400 that no richer kind
// claims. Retryable iff 408 or 5xx.
type APIError struct {
	RequestError
}

func (e *APIError) Unwrap() error { return &e.RequestError }

// retryableStatus reports whether a status code qualifies for local retry.
// 429 is deliberately excluded: the downstream already said to back off.
func retryableStatus(status int) bool {
	return status == 408 || status >= 500
}

// classifyNetworkError maps a transport error to a NetworkErrorType plus a
// transience verdict.
func classifyNetworkError(err error) (NetworkErrorType, bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// NXDOMAIN will not heal on retry; resolver timeouts usually do.
		return NetworkErrorDNS, !dnsErr.IsNotFound
	}

	var certInvalid x509.CertificateInvalidError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &certInvalid) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) {
		return NetworkErrorSSL, false
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NetworkErrorConnection, true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write" {
			return NetworkErrorConnection, true
		}
		return NetworkErrorUnknown, false
	}

	return NetworkErrorUnknown, false
}

// IsTransient reports whether an error represents a failure that might
// succeed on retry: timeouts, 5xx/408 statuses, transient network faults.
// Rate-limit and breaker rejections are transient in the sense that waiting
// helps, so they answer true here even though the client never retries them
// itself.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.IsTransient()
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Kind {
		case ErrorKindTimeout, ErrorKindRateLimit, ErrorKindCircuitBreaker:
			return true
		case ErrorKindAPI:
			return retryableStatus(reqErr.StatusCode) || reqErr.StatusCode == 429
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr net.Error
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}

	return false
}

// IsRetryable reports whether the retry engine would re-attempt the failure.
// Unlike IsTransient it follows the retry policy exactly: 429 answers false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	return false
}

package govfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a resilient outbound-request client for one downstream service.
// It layers deduplication, caching, rate limiting, circuit breaking, retry,
// middleware and metrics around an injected transport. It is safe for
// concurrent use.
type Client struct {
	config          APIConfig
	httpClient      *http.Client
	transport       RoundTripper
	middleware      []Middleware
	retryCondition  RetryCondition
	retryPolicy     RetryPolicy
	circuitBreaker  *CircuitBreaker
	rateLimiter     *RateLimiter
	cacheConfig     CacheConfig
	cache           CacheStore
	cacheKeyFunc    CacheKeyFunc
	cacheCondition  CacheCondition
	dedup           *dedupTracker
	dedupCondition  DedupCondition
	requestLog      *requestLog
	metrics         *MetricsCollector
	debug           *DebugConfig
	logger          Logger
	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		config:         APIConfig{}.withDefaults(),
		httpClient:     &http.Client{},
		middleware:     []Middleware{},
		retryCondition: DefaultRetryCondition,
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		cacheConfig:    CacheConfig{Enabled: true}.withDefaults(),
		cacheKeyFunc:   DefaultCacheKey,
		cacheCondition: DefaultCacheCondition,
		dedup:          newDedupTracker(),
		dedupCondition: DefaultDedupCondition,
		requestLog:     newRequestLog(DefaultRequestLogSize),
		debug:          DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.cache == nil && client.cacheConfig.Enabled && client.cacheConfig.Storage == StorageMemory {
		client.cache = NewMemoryCache(client.cacheConfig.MaxSize)
	}
	if client.transport == nil {
		client.transport = RoundTripperFunc(client.httpClient.Do)
	}
	if client.retryPolicy == nil {
		client.retryPolicy = ExponentialPolicy{Base: client.config.RetryDelay}
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get issues a GET for path with optional query params.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Params: params})
}

// Head issues a HEAD for path with optional query params.
func (c *Client) Head(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodHead, Path: path, Params: params})
}

// Post issues a POST with the given body (see Request.Body for accepted
// forms).
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT with the given body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH with the given body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete issues a DELETE for path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// GetJSON issues a GET and unmarshals the response body into v.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, v interface{}) error {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

// PostJSON issues a POST and unmarshals the response body into v.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, v interface{}) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

// Do executes one logical request through the full pipeline: coalesce
// duplicate reads, consult the cache, pass rate-limit and circuit-breaker
// admission, then call the transport under the retry policy. The settled
// outcome feeds breaker bookkeeping, the cache, and the request log.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	requestID := c.newRequestID()

	rr, err := c.resolveRequest(req)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) && ve.RequestID == "" {
			ve.RequestID = requestID
		}
		method := ""
		if req != nil {
			method = req.Method
		}
		c.metrics.RecordError(string(ErrorKindValidation), method, "unknown")
		c.requestLog.append(RequestLogEntry{
			RequestID: requestID,
			Method:    method,
			Endpoint:  "unknown",
			Error:     err.Error(),
			StartedAt: start,
			Duration:  time.Since(start),
		})
		return nil, err
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", rr.method, "url", rr.url, "endpoint", rr.endpoint)
	}

	c.metrics.RecordRequestStart(rr.method, rr.endpoint)
	defer c.metrics.RecordRequestEnd(rr.method, rr.endpoint)

	if rr.dedupable {
		call, owner := c.dedup.join(rr.key)
		if !owner {
			if c.debug != nil && c.debug.Enabled && c.debug.LogDedup && c.logger != nil {
				c.logger.Debug("Coalescing onto in-flight request", "requestID", requestID, "key", rr.key)
			}
			c.metrics.RecordDeduplicationHit(rr.method, rr.endpoint)

			resp, err := call.wait(ctx)
			duration := time.Since(start)
			status := 0
			if resp != nil {
				resp.RequestID = requestID
				resp.ResponseTime = duration
				status = resp.Status
			}
			c.metrics.RecordRequest(rr.method, rr.endpoint, status, duration)
			c.appendLog(requestID, rr, resp, err, start, duration, 0)
			return resp, err
		}

		resp, err := c.fetch(ctx, rr, requestID, start)
		c.dedup.settle(rr.key, resp, err)
		return resp, err
	}

	return c.fetch(ctx, rr, requestID, start)
}

// fetch runs the non-coalesced part of the pipeline: cache lookup,
// admission, transport with retry, then settle bookkeeping.
func (c *Client) fetch(ctx context.Context, rr *resolvedRequest, requestID string, start time.Time) (*Response, error) {
	if rr.cacheable {
		entry, ok, err := c.cache.Get(ctx, rr.key)
		switch {
		case err != nil:
			if c.logger != nil {
				c.logger.Warn("Cache read failed", "requestID", requestID, "cacheKey", rr.key, "error", err.Error())
			}
		case ok:
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", rr.key)
			}
			c.metrics.RecordCacheHit(rr.method, rr.endpoint)

			resp := c.responseFromCache(entry, requestID, start)
			duration := time.Since(start)
			c.metrics.RecordRequest(rr.method, rr.endpoint, resp.Status, duration)
			c.appendLog(requestID, rr, resp, nil, start, duration, 0)
			return resp, nil
		default:
			c.metrics.RecordCacheMiss(rr.method, rr.endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache miss", "requestID", requestID, "cacheKey", rr.key)
			}
		}
	}

	if err := c.admit(ctx, rr, requestID); err != nil {
		duration := time.Since(start)
		c.metrics.RecordRequest(rr.method, rr.endpoint, statusOf(err), duration)
		c.appendLog(requestID, rr, nil, err, start, duration, 0)
		return nil, err
	}

	resp, retries, err := c.execute(ctx, rr, requestID)

	if err != nil {
		c.circuitBreaker.RecordFailure()
		c.metrics.RecordError(errorKindLabel(err), rr.method, rr.endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker failure recorded", "requestID", requestID, "error", err.Error())
		}
	} else {
		c.circuitBreaker.RecordSuccess()
	}
	c.metrics.RecordCircuitBreakerState(c.config.ServiceName, c.circuitBreaker.State().State)

	duration := time.Since(start)
	status := 0
	if resp != nil {
		status = resp.Status
		resp.ResponseTime = duration
	} else {
		status = statusOf(err)
	}
	c.metrics.RecordRequest(rr.method, rr.endpoint, status, duration)

	if err == nil && rr.cacheable && resp.Status < http.StatusBadRequest {
		if ttl, ok := effectiveTTL(rr.ttl, resp.Header); ok {
			now := time.Now()
			entry := &CacheEntry{
				Key:       rr.key,
				Data:      resp.Data,
				Status:    resp.Status,
				Header:    resp.Header,
				CreatedAt: now,
				ExpiresAt: now.Add(ttl),
			}
			if serr := c.cache.Set(ctx, rr.key, entry, ttl); serr != nil {
				if c.logger != nil {
					c.logger.Warn("Cache write failed", "requestID", requestID, "cacheKey", rr.key, "error", serr.Error())
				}
			} else {
				if mem, isMem := c.cache.(*memoryCache); isMem {
					c.metrics.RecordCacheSize(c.config.ServiceName, mem.Stats().Size)
				}
				if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
					c.logger.Debug("Response cached", "requestID", requestID, "cacheKey", rr.key, "ttl", ttl)
				}
			}
		}
	}

	c.appendLog(requestID, rr, resp, err, start, duration, retries)
	return resp, err
}

// admit acquires a rate-limiter token, then asks the circuit breaker. The
// limiter runs first so an open breaker never leaks a consumed token into a
// rejected call's retry-after math, and a half-open probe slot is never
// claimed by a call the limiter would bounce.
func (c *Client) admit(ctx context.Context, rr *resolvedRequest, requestID string) error {
	if c.rateLimiter != nil {
		switch {
		case c.rateLimiter.Allow():
		case c.rateLimiter.QueueExcess():
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Debug("Queued for rate limit token", "requestID", requestID, "endpoint", rr.endpoint)
			}
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return err
			}
		default:
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("Rate limit exceeded", "requestID", requestID, "endpoint", rr.endpoint)
			}
			c.metrics.RecordRateLimited(c.config.ServiceName)
			c.metrics.RecordError(string(ErrorKindRateLimit), rr.method, rr.endpoint)
			return c.rateLimitRejection(rr, requestID)
		}
		c.metrics.RecordRateLimiterTokens(c.config.ServiceName, c.rateLimiter.State().Tokens)
	}

	if !c.circuitBreaker.Allow() {
		st := c.circuitBreaker.State()
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker rejecting request", "requestID", requestID, "endpoint", rr.endpoint, "state", st.State.String())
		}
		c.metrics.RecordCircuitBreakerBlocked(c.config.ServiceName)
		c.metrics.RecordCircuitBreakerState(c.config.ServiceName, st.State)
		c.metrics.RecordError(string(ErrorKindCircuitBreaker), rr.method, rr.endpoint)
		return &CircuitBreakerError{
			RequestError: RequestError{
				Kind:      ErrorKindCircuitBreaker,
				Message:   "circuit breaker is " + st.State.String(),
				Endpoint:  rr.endpoint,
				RequestID: requestID,
				Timestamp: time.Now(),
			},
			ServiceName:  c.config.ServiceName,
			ResetTime:    st.ResetAt,
			FailureCount: st.FailureCount,
			CircuitState: st.State,
		}
	}
	return nil
}

func (c *Client) rateLimitRejection(rr *resolvedRequest, requestID string) error {
	state := c.rateLimiter.State()
	retryAfter := c.rateLimiter.RetryAfter()
	return &RateLimitError{
		RequestError: RequestError{
			Kind:       ErrorKindRateLimit,
			Message:    "rate limit exceeded",
			StatusCode: http.StatusTooManyRequests,
			Endpoint:   rr.endpoint,
			RequestID:  requestID,
			Timestamp:  time.Now(),
		},
		Limit:      state.Limit,
		Remaining:  0,
		ResetTime:  time.Now().Add(retryAfter),
		RetryAfter: retryAfter,
	}
}

// execute runs transport attempts under the retry policy and reports how
// many retries were spent. Admission is not repeated between attempts.
func (c *Client) execute(ctx context.Context, rr *resolvedRequest, requestID string) (*Response, int, error) {
	attempt := 1
	for {
		if attempt > 1 {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", rr.retries, "endpoint", rr.endpoint)
			}
			c.metrics.RecordRetry(rr.method, rr.endpoint, attempt-1)
		}

		resp, err := c.attempt(ctx, rr, requestID)
		if err == nil {
			return resp, attempt - 1, nil
		}
		if ctx.Err() != nil {
			return nil, attempt - 1, err
		}
		if attempt > rr.retries || !c.retryCondition(statusOf(err), err) {
			return nil, attempt - 1, err
		}

		delay := c.retryPolicy.Delay(attempt)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", rr.endpoint)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt - 1, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

// attempt performs one transport round trip under the per-attempt timeout
// and converts the outcome into an envelope or a typed error.
func (c *Client) attempt(ctx context.Context, rr *resolvedRequest, requestID string) (*Response, error) {
	attemptCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	started := time.Now()

	var bodyReader io.Reader
	if len(rr.body) > 0 {
		bodyReader = bytes.NewReader(rr.body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, rr.method, rr.url, bodyReader)
	if err != nil {
		ve := newValidationError("request", "well-formed method and URL", rr.method+" "+rr.url, fmt.Sprintf("building request: %v", err))
		ve.Endpoint = rr.endpoint
		ve.RequestID = requestID
		return nil, ve
	}
	for name, values := range rr.headers {
		httpReq.Header[name] = values
	}

	httpResp, err := c.executeMiddleware(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, rr, requestID, err, time.Since(started))
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, rr, requestID, err, time.Since(started))
	}

	resp := &Response{
		Data:         data,
		Status:       httpResp.StatusCode,
		Header:       httpResp.Header.Clone(),
		RequestID:    requestID,
		ResponseTime: time.Since(started),
	}
	if resp.Status >= http.StatusBadRequest {
		return nil, c.statusError(rr, requestID, resp)
	}
	return resp, nil
}

// transportError classifies a failed round trip. Parent-context
// cancellation propagates untouched so callers see their own ctx.Err;
// attempt deadlines become retryable TimeoutErrors.
func (c *Client) transportError(parent, attemptCtx context.Context, rr *resolvedRequest, requestID string, cause error, elapsed time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isTimeoutError(cause) {
		return &TimeoutError{
			RequestError: RequestError{
				Kind:      ErrorKindTimeout,
				Message:   "request timed out",
				Endpoint:  rr.endpoint,
				RequestID: requestID,
				Timestamp: time.Now(),
				Retryable: true,
				Cause:     cause,
			},
			Timeout: c.config.Timeout,
			Elapsed: elapsed,
		}
	}

	errorType, transient := classifyNetworkError(cause)
	return &NetworkError{
		RequestError: RequestError{
			Kind:      ErrorKindNetwork,
			Message:   "network request failed",
			Endpoint:  rr.endpoint,
			RequestID: requestID,
			Timestamp: time.Now(),
			Retryable: transient,
			Cause:     cause,
		},
		ErrorType: errorType,
	}
}

// statusError converts a >= 400 response into its typed error. 429 carries
// the downstream's rate-limit headers and is never retried locally.
func (c *Client) statusError(rr *resolvedRequest, requestID string, resp *Response) error {
	if resp.Status == http.StatusTooManyRequests {
		limit, remaining, resetTime, retryAfter := rateLimitFromHeaders(resp.Header, time.Now(), c.rateLimiter)
		return &RateLimitError{
			RequestError: RequestError{
				Kind:       ErrorKindRateLimit,
				Message:    "rate limited by downstream",
				StatusCode: resp.Status,
				Endpoint:   rr.endpoint,
				RequestID:  requestID,
				Timestamp:  time.Now(),
			},
			Limit:      limit,
			Remaining:  remaining,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
		}
	}
	return &APIError{
		RequestError: RequestError{
			Kind:       ErrorKindAPI,
			Message:    fmt.Sprintf("request failed with status %d", resp.Status),
			StatusCode: resp.Status,
			Endpoint:   rr.endpoint,
			RequestID:  requestID,
			Timestamp:  time.Now(),
			Retryable:  retryableStatus(resp.Status),
		},
	}
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.transport.RoundTrip(req)
	}

	current := c.transport
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// resolvedRequest is a Request validated and flattened for the transport.
type resolvedRequest struct {
	method    string
	url       string
	endpoint  string
	headers   http.Header
	body      []byte
	key       string
	cacheable bool
	ttl       time.Duration
	retries   int
	dedupable bool
}

func (c *Client) resolveRequest(req *Request) (*resolvedRequest, error) {
	if req == nil {
		return nil, newValidationError("request", "required", nil, "request must not be nil")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if req.Headers != nil {
		headers = req.Headers.Clone()
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", "govfetch/"+Version)
	}

	rr := &resolvedRequest{
		method:   method,
		url:      target,
		endpoint: endpointOf(target),
		headers:  headers,
		body:     body,
		retries:  c.config.Retries,
	}
	if req.Retries != nil {
		rr.retries = *req.Retries
		if rr.retries < 0 {
			rr.retries = 0
		}
	}
	rr.key = c.cacheKeyFunc(method, target, body)

	// Conditions see the normalized method, not whatever casing the caller
	// used.
	normalized := *req
	normalized.Method = method

	cacheable := c.cacheConfig.Enabled && c.cache != nil
	if cacheable {
		if req.Cache != nil {
			cacheable = *req.Cache
		} else {
			cacheable = c.cacheCondition(&normalized)
		}
	}
	rr.cacheable = cacheable
	rr.ttl = c.cacheConfig.TTL
	if req.CacheTTL > 0 {
		rr.ttl = req.CacheTTL
	}

	rr.dedupable = c.dedup != nil && c.dedupCondition(&normalized)
	return rr, nil
}

// buildURL joins the request path onto the configured base URL, or accepts
// an absolute URL as-is. Query params are merged and re-encoded so that
// identical requests always produce identical URLs (and so identical cache
// keys).
func (c *Client) buildURL(req *Request) (string, error) {
	raw := strings.TrimSpace(req.Path)
	switch {
	case raw == "":
		raw = c.config.BaseURL
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
	default:
		base := strings.TrimRight(c.config.BaseURL, "/")
		if base == "" {
			return "", newValidationError("path", "absolute URL or configured base URL", req.Path, "relative path requires a base URL")
		}
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		raw = base + raw
	}
	if raw == "" {
		return "", newValidationError("path", "required", req.Path, "request path is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", newValidationError("path", "valid URL", req.Path, fmt.Sprintf("invalid request URL: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newValidationError("path", "http or https URL", req.Path, fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}

	if len(req.Params) > 0 {
		q := u.Query()
		for key, values := range req.Params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	} else if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

// encodeBody flattens the accepted body forms to bytes so retries can
// replay the payload. The second return is the implied Content-Type, empty
// when the caller should choose.
func encodeBody(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	case json.RawMessage:
		return b, "application/json", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", newValidationError("body", "readable stream", nil, fmt.Sprintf("reading request body: %v", err))
		}
		return data, "", nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", newValidationError("body", "JSON-marshalable value", body, fmt.Sprintf("encoding request body: %v", err))
		}
		return data, "application/json", nil
	}
}

// endpointOf reduces a URL to host+path for labels and log entries, keeping
// query strings out of metric cardinality.
func endpointOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Host + "/"
	}
	return u.Host + u.Path
}

func (c *Client) responseFromCache(entry *CacheEntry, requestID string, start time.Time) *Response {
	now := time.Now()
	return &Response{
		Data:   entry.Data,
		Status: entry.Status,
		Header: entry.Header,
		Cached: true,
		CacheMetadata: &CacheMetadata{
			Age:       now.Sub(entry.CreatedAt),
			ExpiresAt: entry.ExpiresAt,
		},
		RequestID:    requestID,
		ResponseTime: time.Since(start),
	}
}

func (c *Client) appendLog(requestID string, rr *resolvedRequest, resp *Response, err error, start time.Time, duration time.Duration, retries int) {
	entry := RequestLogEntry{
		RequestID: requestID,
		Method:    rr.method,
		Endpoint:  rr.endpoint,
		Retries:   retries,
		StartedAt: start,
		Duration:  duration,
	}
	if resp != nil {
		entry.Status = resp.Status
		entry.Cached = resp.Cached
	}
	if err != nil {
		entry.Error = err.Error()
		if status := statusOf(err); status > 0 {
			entry.Status = status
		}
	}
	c.requestLog.append(entry)
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return uuid.NewString()
}

// statusOf extracts the HTTP status carried by a typed error, zero when
// the failure produced no response.
func statusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

func errorKindLabel(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return string(reqErr.Kind)
	}
	return "unknown"
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CacheStats returns a point-in-time snapshot of cache counters.
func (c *Client) CacheStats() CacheStats {
	if c.cache == nil {
		return CacheStats{}
	}
	return c.cache.Stats()
}

// CircuitBreakerState returns a snapshot of the breaker.
func (c *Client) CircuitBreakerState() CircuitBreakerState {
	return c.circuitBreaker.State()
}

// RateLimiterState returns a snapshot of the token bucket; ok is false
// when no limiter is configured.
func (c *Client) RateLimiterState() (state RateLimiterState, ok bool) {
	if c.rateLimiter == nil {
		return RateLimiterState{}, false
	}
	return c.rateLimiter.State(), true
}

// RequestLog returns the retained entries ordered oldest to newest.
func (c *Client) RequestLog() []RequestLogEntry {
	return c.requestLog.snapshot()
}

// ClearCache drops every cache entry and resets cache statistics.
func (c *Client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// InvalidateCache removes entries matching pattern, trying an exact key
// first and falling back to a regular expression, and reports how many
// entries were dropped.
func (c *Client) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Invalidate(ctx, pattern)
}

// ResetCircuitBreaker forces the breaker closed with all counters zeroed.
func (c *Client) ResetCircuitBreaker() {
	c.circuitBreaker.Reset()
	c.metrics.RecordCircuitBreakerState(c.config.ServiceName, StateClosed)
}

// ServiceName returns the configured downstream service name.
func (c *Client) ServiceName() string {
	return c.config.ServiceName
}

// Close releases the cache backend. The client must not be used afterwards.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

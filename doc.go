// Package govfetch provides a resilient outbound-request client for the
// external data integrations behind property reports (flood, seismic,
// census, climate, crime, elevation, weather, geocoding), with composable
// reliability primitives:
//
//   - Response caching with TTL, insertion-order eviction, and pattern
//     invalidation (in-memory or Valkey-backed)
//   - Circuit breaker (closed / open / half-open states) per service
//   - Rate limiting (token bucket) with reject-or-queue admission
//   - Retries with exponential backoff and selective retryability
//     (408, 5xx, and timeouts retry; 429 and other 4xx are terminal)
//   - De-duplication of concurrent identical reads onto one flight
//   - Middleware chain for cross-cutting concerns (auth, tracing, etc.)
//   - Prometheus metrics, a request log ring, and structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Explicit construction, no process-wide singletons
//   - Safe concurrent use of a single *Client instance
//   - Typed errors carrying status, endpoint, request ID, and retryability
//
// Typical usage:
//
//	client := govfetch.New(
//	    govfetch.WithBaseURL("https://hazards.fema.gov/nfhlv2"),
//	    govfetch.WithServiceName("fema-flood"),
//	    govfetch.WithRetries(3),
//	    govfetch.WithCacheTTL(24*time.Hour),
//	    govfetch.WithRateLimit(govfetch.RateLimitConfig{RequestsPerSecond: 5, BurstSize: 10}),
//	)
//	defer client.Close()
//	resp, err := client.Get(ctx, "/rest/services/public", nil)
//
// Several services are usually wired through a Registry so callers address
// integrations by name; see NewRegistry. The config package loads the same
// wiring from YAML and environment variables.
package govfetch

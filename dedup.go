package govfetch

import (
	"context"
	"net/http"
	"sync"
)

// DefaultDedupCondition coalesces idempotent reads only. Mutating verbs
// always reach the transport, one flight per caller.
func DefaultDedupCondition(req *Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

// inflightCall is one in-flight request shared by its coalesced callers.
type inflightCall struct {
	done chan struct{}
	resp *Response
	err  error
}

// dedupTracker coalesces concurrent identical requests onto a single
// transport flight. Identity is the derived request key, so two requests
// with the same method, URL, and body hash share one flight.
type dedupTracker struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newDedupTracker() *dedupTracker {
	return &dedupTracker{calls: make(map[string]*inflightCall)}
}

// join returns the call registered under key, creating it when absent.
// owner reports whether the caller must execute the request and settle the
// call; everyone else waits on it.
func (t *dedupTracker) join(key string) (call *inflightCall, owner bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if call, ok := t.calls[key]; ok {
		return call, false
	}
	call = &inflightCall{done: make(chan struct{})}
	t.calls[key] = call
	return call, true
}

// settle publishes the outcome, wakes every waiter, and forgets the key.
// A request arriving after settle starts a fresh flight rather than
// receiving a stale result.
func (t *dedupTracker) settle(key string, resp *Response, err error) {
	t.mu.Lock()
	call, ok := t.calls[key]
	if ok {
		delete(t.calls, key)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	call.resp = resp
	call.err = err
	close(call.done)
}

// inflight reports how many flights are currently pending.
func (t *dedupTracker) inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// wait blocks until the owning flight settles or ctx is done. Each waiter
// receives its own envelope so callers can annotate responses without
// racing each other; the payload bytes are shared.
func (c *inflightCall) wait(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
		if c.err != nil {
			return nil, c.err
		}
		resp := *c.resp
		return &resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

package govfetch

import (
	"sync"
	"time"
)

// RequestLogEntry is one settled request as seen by the pipeline: cache
// hits, coalesced waits, and transport round trips all produce exactly one
// entry.
type RequestLogEntry struct {
	RequestID string        `json:"requestId"`
	Method    string        `json:"method"`
	Endpoint  string        `json:"endpoint"`
	Status    int           `json:"status"`
	Error     string        `json:"error,omitempty"`
	Cached    bool          `json:"cached"`
	Retries   int           `json:"retries"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// requestLog is a fixed-capacity ring of the most recent entries. Once
// full, each append overwrites the oldest entry.
type requestLog struct {
	mu      sync.Mutex
	entries []RequestLogEntry
	next    int
	wrapped bool
}

func newRequestLog(capacity int) *requestLog {
	if capacity <= 0 {
		capacity = DefaultRequestLogSize
	}
	return &requestLog{entries: make([]RequestLogEntry, capacity)}
}

func (l *requestLog) append(entry RequestLogEntry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = entry
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.wrapped = true
	}
}

// snapshot returns the retained entries ordered oldest to newest.
func (l *requestLog) snapshot() []RequestLogEntry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.wrapped {
		out := make([]RequestLogEntry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]RequestLogEntry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

func (l *requestLog) clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.wrapped = false
}

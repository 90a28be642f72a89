package govfetch

import (
	"container/list"
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CacheEntry is one stored response. Entries are owned by the store; Get
// hands out clones so callers can never mutate cached state.
type CacheEntry struct {
	Key       string      `json:"key"`
	Data      []byte      `json:"data"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Size      int         `json:"size"`
}

// CacheStats is a point-in-time snapshot of store behavior.
type CacheStats struct {
	Size        int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	HitRatio    float64
	MemoryUsage int64
	OldestEntry time.Time
	NewestEntry time.Time
}

// CacheStore is the pluggable backend behind the response cache. The memory
// store is the default; NewValkeyCache shares entries across processes.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error
	// Invalidate removes the entry matching pattern exactly, or, when no
	// such key exists, every entry whose key matches pattern as a regular
	// expression. Returns the number removed.
	Invalidate(ctx context.Context, pattern string) (int, error)
	Clear(ctx context.Context) error
	Stats() CacheStats
	Close() error
}

// memoryCache is the in-process store: TTL with lazy expiry, bounded by
// maxSize with oldest-by-insertion eviction. A Get never refreshes an
// entry's position; only (re-)insertion does.
type memoryCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = oldest insertion
	hits    uint64
	misses  uint64
	evicted uint64
	memory  int64
	nowFunc func() time.Time
}

// NewMemoryCache creates the default in-process store bounded to maxSize
// entries.
func NewMemoryCache(maxSize int) CacheStore {
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	return &memoryCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (*CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}

	entry := el.Value.(*CacheEntry)
	if !c.nowFunc().Before(entry.ExpiresAt) {
		c.removeLocked(el, entry)
		c.misses++
		return nil, false, nil
	}

	c.hits++
	return cloneEntry(entry), true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, entry *CacheEntry, ttl time.Duration) error {
	stored := cloneEntry(entry)
	stored.Key = key
	now := c.nowFunc()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.ExpiresAt = now.Add(ttl)
	stored.Size = entrySize(stored)

	c.mu.Lock()
	defer c.mu.Unlock()

	// A re-set counts as a fresh insertion for eviction ordering.
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el, el.Value.(*CacheEntry))
	}

	c.entries[key] = c.order.PushBack(stored)
	c.memory += int64(stored.Size)

	for c.order.Len() > c.maxSize {
		front := c.order.Front()
		c.removeLocked(front, front.Value.(*CacheEntry))
		c.evicted++
	}
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[pattern]; ok {
		c.removeLocked(el, el.Value.(*CacheEntry))
		return 1, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("govfetch: invalidate pattern %q: %w", pattern, err)
	}

	removed := 0
	for key, el := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(el, el.Value.(*CacheEntry))
			removed++
		}
	}
	return removed, nil
}

func (c *memoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hits = 0
	c.misses = 0
	c.evicted = 0
	c.memory = 0
	return nil
}

func (c *memoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:        c.order.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evicted,
		MemoryUsage: c.memory,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRatio = float64(c.hits) / float64(total)
	}
	if front := c.order.Front(); front != nil {
		stats.OldestEntry = front.Value.(*CacheEntry).CreatedAt
	}
	if back := c.order.Back(); back != nil {
		stats.NewestEntry = back.Value.(*CacheEntry).CreatedAt
	}
	return stats
}

func (c *memoryCache) Close() error { return nil }

func (c *memoryCache) removeLocked(el *list.Element, entry *CacheEntry) {
	c.order.Remove(el)
	delete(c.entries, entry.Key)
	c.memory -= int64(entry.Size)
}

func cloneEntry(entry *CacheEntry) *CacheEntry {
	if entry == nil {
		return nil
	}
	clone := *entry
	clone.Data = append([]byte(nil), entry.Data...)
	clone.Header = entry.Header.Clone()
	return &clone
}

// entrySize estimates the bytes an entry occupies: body, key, and headers.
func entrySize(entry *CacheEntry) int {
	size := len(entry.Data) + len(entry.Key)
	for name, values := range entry.Header {
		size += len(name)
		for _, v := range values {
			size += len(v)
		}
	}
	return size
}

// DefaultCacheKey derives a deterministic, regex-friendly key: method and
// canonical URL, plus an FNV-1a digest of the body when present. Identical
// inputs always collapse to the same key.
func DefaultCacheKey(method, url string, body []byte) string {
	key := method + " " + url
	if len(body) > 0 {
		h := fnv.New64a()
		h.Write(body)
		key += "#" + strconv.FormatUint(h.Sum64(), 16)
	}
	return key
}

// DefaultCacheCondition caches idempotent reads only. Per-call overrides
// via Request.Cache take precedence.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

// cacheDirectives holds the response directives the store path honors.
type cacheDirectives struct {
	noStore bool
	maxAge  time.Duration
	hasAge  bool
}

// parseCacheControl extracts no-store/no-cache and max-age from a response
// header. Everything else in the header is ignored.
func parseCacheControl(header http.Header) cacheDirectives {
	var d cacheDirectives
	value := header.Get("Cache-Control")
	if value == "" {
		return d
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch {
		case part == "no-store" || part == "no-cache":
			d.noStore = true
		case strings.HasPrefix(part, "max-age="):
			if secs, err := strconv.Atoi(strings.TrimPrefix(part, "max-age=")); err == nil && secs >= 0 {
				d.maxAge = time.Duration(secs) * time.Second
				d.hasAge = true
			}
		}
	}
	return d
}

// effectiveTTL clamps the configured TTL by the response's max-age when the
// downstream declares a shorter freshness window. The second return is
// false when the response must not be cached at all.
func effectiveTTL(configured time.Duration, header http.Header) (time.Duration, bool) {
	d := parseCacheControl(header)
	if d.noStore {
		return 0, false
	}
	if d.hasAge && d.maxAge < configured {
		if d.maxAge == 0 {
			return 0, false
		}
		return d.maxAge, true
	}
	return configured, true
}

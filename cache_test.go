package govfetch

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func testEntry(data string) *CacheEntry {
	return &CacheEntry{
		Data:   []byte(data),
		Status: 200,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestNewMemoryCache(t *testing.T) {
	cache := NewMemoryCache(10)
	if cache == nil {
		t.Fatal("NewMemoryCache() returned nil")
	}

	// Should fall back to the default bound for non-positive sizes
	mc := NewMemoryCache(0).(*memoryCache)
	if mc.maxSize != DefaultCacheMaxSize {
		t.Errorf("Expected maxSize to be %d, got %d", DefaultCacheMaxSize, mc.maxSize)
	}
}

func TestMemoryCacheSetGet(t *testing.T) {
	cache := NewMemoryCache(10)
	ctx := context.Background()

	if err := cache.Set(ctx, "GET /flood/zone", testEntry("zone data"), time.Minute); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}

	entry, ok, err := cache.Get(ctx, "GET /flood/zone")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if !ok {
		t.Fatal("Expected cache hit for stored key")
	}
	if string(entry.Data) != "zone data" {
		t.Errorf("Expected data to be zone data, got %s", entry.Data)
	}
	if entry.Status != 200 {
		t.Errorf("Expected status to be 200, got %d", entry.Status)
	}
	if entry.Key != "GET /flood/zone" {
		t.Errorf("Expected key to be set on the stored entry, got %q", entry.Key)
	}
	if entry.Header.Get("Content-Type") != "application/json" {
		t.Error("Expected header to survive the round trip")
	}
	if entry.CreatedAt.IsZero() || entry.ExpiresAt.IsZero() {
		t.Error("Expected timestamps to be stamped on store")
	}

	// Should miss for a key never stored
	if _, ok, _ := cache.Get(ctx, "GET /unknown"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestMemoryCacheSetDoesNotAliasCaller(t *testing.T) {
	cache := NewMemoryCache(10)
	ctx := context.Background()

	entry := testEntry("original")
	if err := cache.Set(ctx, "GET /a", entry, time.Minute); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	entry.Data[0] = 'X'

	stored, ok, _ := cache.Get(ctx, "GET /a")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if string(stored.Data) != "original" {
		t.Errorf("Expected stored copy to be isolated from caller mutation, got %s", stored.Data)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(10).(*memoryCache)
	now := time.Now()
	cache.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "GET /flood/zone", testEntry("zone data"), 100*time.Millisecond); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}

	// Should still be fresh halfway through the TTL
	now = now.Add(50 * time.Millisecond)
	if _, ok, _ := cache.Get(ctx, "GET /flood/zone"); !ok {
		t.Error("Expected hit before TTL expiry")
	}

	// Should expire once the TTL elapses
	now = now.Add(100 * time.Millisecond)
	if _, ok, _ := cache.Get(ctx, "GET /flood/zone"); ok {
		t.Error("Expected miss after TTL expiry")
	}

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("Expected expired entry to be removed, size is %d", stats.Size)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected expired lookup to count as a miss, got %d", stats.Misses)
	}
}

func TestMemoryCacheEviction(t *testing.T) {
	cache := NewMemoryCache(3)
	ctx := context.Background()

	keys := []string{"GET /a", "GET /b", "GET /c", "GET /d"}
	for _, key := range keys {
		if err := cache.Set(ctx, key, testEntry(key), time.Minute); err != nil {
			t.Fatalf("Set(%q) returned error: %v", key, err)
		}
	}

	// Oldest insertion goes first when the bound is exceeded
	if _, ok, _ := cache.Get(ctx, "GET /a"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	for _, key := range keys[1:] {
		if _, ok, _ := cache.Get(ctx, key); !ok {
			t.Errorf("Expected %q to survive eviction", key)
		}
	}

	stats := cache.Stats()
	if stats.Size != 3 {
		t.Errorf("Expected size to be 3, got %d", stats.Size)
	}
	if stats.Evictions != 1 {
		t.Errorf("Expected evictions to be 1, got %d", stats.Evictions)
	}
}

func TestMemoryCacheSetRefreshesPosition(t *testing.T) {
	cache := NewMemoryCache(2)
	ctx := context.Background()

	cache.Set(ctx, "GET /a", testEntry("a1"), time.Minute)
	cache.Set(ctx, "GET /b", testEntry("b"), time.Minute)

	// Re-setting an existing key makes it the newest insertion
	cache.Set(ctx, "GET /a", testEntry("a2"), time.Minute)
	cache.Set(ctx, "GET /c", testEntry("c"), time.Minute)

	if _, ok, _ := cache.Get(ctx, "GET /b"); ok {
		t.Error("Expected /b to be evicted as the oldest insertion")
	}
	entry, ok, _ := cache.Get(ctx, "GET /a")
	if !ok {
		t.Fatal("Expected re-set entry to survive")
	}
	if string(entry.Data) != "a2" {
		t.Errorf("Expected re-set data to be a2, got %s", entry.Data)
	}
}

func TestMemoryCacheZeroTTL(t *testing.T) {
	cache := NewMemoryCache(10)
	ctx := context.Background()

	if err := cache.Set(ctx, "GET /a", testEntry("a"), 0); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "GET /a"); ok {
		t.Error("Expected zero TTL entry to be immediately stale")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	cache := NewMemoryCache(10)
	ctx := context.Background()

	cache.Set(ctx, "GET /flood/a", testEntry("a"), time.Minute)
	cache.Set(ctx, "GET /flood/b", testEntry("b"), time.Minute)
	cache.Set(ctx, "GET /census/c", testEntry("c"), time.Minute)

	// Exact key match removes just that entry
	n, err := cache.Invalidate(ctx, "GET /flood/a")
	if err != nil {
		t.Fatalf("Invalidate() returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 entry invalidated, got %d", n)
	}

	// Regex fallback removes everything it matches
	n, err = cache.Invalidate(ctx, "GET /flood/.*")
	if err != nil {
		t.Fatalf("Invalidate() returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 entry invalidated by pattern, got %d", n)
	}

	if _, ok, _ := cache.Get(ctx, "GET /census/c"); !ok {
		t.Error("Expected non-matching entry to survive")
	}
	if stats := cache.Stats(); stats.Size != 1 {
		t.Errorf("Expected size to be 1, got %d", stats.Size)
	}
}

func TestMemoryCacheInvalidateBadPattern(t *testing.T) {
	cache := NewMemoryCache(10)
	ctx := context.Background()

	n, err := cache.Invalidate(ctx, "(")
	if err == nil {
		t.Fatal("Expected error for invalid pattern")
	}
	if n != 0 {
		t.Errorf("Expected 0 entries invalidated, got %d", n)
	}
	if !strings.Contains(err.Error(), "invalidate pattern") {
		t.Errorf("Expected pattern error, got %v", err)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	cache := NewMemoryCache(2)
	ctx := context.Background()

	cache.Set(ctx, "GET /a", testEntry("a"), time.Minute)
	cache.Set(ctx, "GET /b", testEntry("b"), time.Minute)
	cache.Set(ctx, "GET /c", testEntry("c"), time.Minute)
	cache.Get(ctx, "GET /b")
	cache.Get(ctx, "GET /missing")

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("Expected size to be 0 after clear, got %d", stats.Size)
	}
	if stats.Hits != 0 || stats.Misses != 0 || stats.Evictions != 0 {
		t.Errorf("Expected counters to reset, got hits=%d misses=%d evictions=%d",
			stats.Hits, stats.Misses, stats.Evictions)
	}
	if stats.MemoryUsage != 0 {
		t.Errorf("Expected memory usage to be 0 after clear, got %d", stats.MemoryUsage)
	}
}

func TestMemoryCacheStats(t *testing.T) {
	cache := NewMemoryCache(10).(*memoryCache)
	now := time.Now()
	cache.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	cache.Set(ctx, "GET /a", testEntry("aaaa"), time.Minute)
	now = now.Add(time.Second)
	cache.Set(ctx, "GET /b", testEntry("bb"), time.Minute)

	cache.Get(ctx, "GET /a")
	cache.Get(ctx, "GET /a")
	cache.Get(ctx, "GET /missing")

	stats := cache.Stats()
	if stats.Size != 2 {
		t.Errorf("Expected size to be 2, got %d", stats.Size)
	}
	if stats.Hits != 2 {
		t.Errorf("Expected hits to be 2, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected misses to be 1, got %d", stats.Misses)
	}
	if stats.HitRatio < 0.66 || stats.HitRatio > 0.67 {
		t.Errorf("Expected hit ratio around 0.667, got %f", stats.HitRatio)
	}
	if stats.MemoryUsage <= 0 {
		t.Errorf("Expected positive memory usage, got %d", stats.MemoryUsage)
	}
	if !stats.OldestEntry.Before(stats.NewestEntry) {
		t.Errorf("Expected oldest %v to precede newest %v", stats.OldestEntry, stats.NewestEntry)
	}
}

func TestDefaultCacheKey(t *testing.T) {
	key := DefaultCacheKey("GET", "https://api.example.gov/v1?a=1", nil)
	if key != "GET https://api.example.gov/v1?a=1" {
		t.Errorf("Expected plain method-url key, got %q", key)
	}

	// Body participates through a hash suffix
	withBody := DefaultCacheKey("POST", "https://api.example.gov/v1", []byte(`{"q":1}`))
	if !strings.HasPrefix(withBody, "POST https://api.example.gov/v1#") {
		t.Errorf("Expected hash suffix for body, got %q", withBody)
	}
	if withBody != DefaultCacheKey("POST", "https://api.example.gov/v1", []byte(`{"q":1}`)) {
		t.Error("Expected identical requests to produce identical keys")
	}
	if withBody == DefaultCacheKey("POST", "https://api.example.gov/v1", []byte(`{"q":2}`)) {
		t.Error("Expected different bodies to produce different keys")
	}
}

func TestDefaultCacheCondition(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"GET", true},
		{"HEAD", true},
		{"POST", false},
		{"PUT", false},
		{"PATCH", false},
		{"DELETE", false},
	}

	for _, tt := range tests {
		req := &Request{Method: tt.method}
		if got := DefaultCacheCondition(req); got != tt.want {
			t.Errorf("Expected DefaultCacheCondition(%s) to be %v, got %v", tt.method, tt.want, got)
		}
	}
}

func TestParseCacheControl(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		noStore bool
		maxAge  time.Duration
		hasAge  bool
	}{
		{"empty", "", false, 0, false},
		{"no-store", "no-store", true, 0, false},
		{"no-cache", "no-cache", true, 0, false},
		{"max-age", "max-age=60", false, 60 * time.Second, true},
		{"max-age zero", "max-age=0", false, 0, true},
		{"mixed directives", "public, max-age=300", false, 300 * time.Second, true},
		{"case insensitive", "Max-Age=10", false, 10 * time.Second, true},
		{"invalid age", "max-age=soon", false, 0, false},
		{"negative age", "max-age=-5", false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set("Cache-Control", tt.value)
			}
			got := parseCacheControl(header)
			if got.noStore != tt.noStore {
				t.Errorf("Expected noStore to be %v, got %v", tt.noStore, got.noStore)
			}
			if got.maxAge != tt.maxAge {
				t.Errorf("Expected maxAge to be %v, got %v", tt.maxAge, got.maxAge)
			}
			if got.hasAge != tt.hasAge {
				t.Errorf("Expected hasAge to be %v, got %v", tt.hasAge, got.hasAge)
			}
		})
	}
}

func TestEffectiveTTL(t *testing.T) {
	tests := []struct {
		name       string
		configured time.Duration
		header     string
		want       time.Duration
		ok         bool
	}{
		{"no header", time.Hour, "", time.Hour, true},
		{"no-store wins", time.Hour, "no-store", 0, false},
		{"shorter max-age wins", time.Hour, "max-age=60", time.Minute, true},
		{"longer max-age ignored", time.Minute, "max-age=3600", time.Minute, true},
		{"max-age zero means uncacheable", time.Hour, "max-age=0", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Cache-Control", tt.header)
			}
			got, ok := effectiveTTL(tt.configured, header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestEntrySize(t *testing.T) {
	entry := testEntry("12345678")
	entry.Key = "GET /a"
	size := entrySize(entry)
	if size <= len(entry.Data) {
		t.Errorf("Expected size to include key and headers, got %d", size)
	}
}

package govfetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// ValkeyTLSConfig enables TLS toward the valkey server, optionally pinning
// a CA bundle.
type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

// ValkeyConfig connects a shared cache store. KeyPrefix namespaces this
// client's entries so several services can share one database.
type ValkeyConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TLS       ValkeyTLSConfig
}

// valkeyCache shares cached responses across processes. TTL handling is
// delegated to the server (SET PX); eviction is the server's policy, so
// Evictions, MemoryUsage, and entry-age stats stay zero here. Hits and
// misses are tracked locally.
type valkeyCache struct {
	client valkey.Client
	prefix string
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewValkeyCache connects and pings the server before returning the store.
func NewValkeyCache(cfg ValkeyConfig) (CacheStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("govfetch: valkey address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("govfetch: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("govfetch: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("govfetch: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("govfetch: valkey ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "govfetch:"
	}
	return &valkeyCache{client: client, prefix: prefix}, nil
}

func (c *valkeyCache) Get(ctx context.Context, key string) (*CacheEntry, bool, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			c.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("govfetch: valkey get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("govfetch: valkey get bytes: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, fmt.Errorf("govfetch: valkey unmarshal: %w", err)
	}
	c.hits.Add(1)
	return &entry, true, nil
}

func (c *valkeyCache) Set(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := cloneEntry(entry)
	stored.Key = key
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.ExpiresAt = now.Add(ttl)
	stored.Size = entrySize(stored)

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("govfetch: valkey marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(c.prefix + key).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("govfetch: valkey set: %w", err)
	}
	return nil
}

func (c *valkeyCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	// Exact key first; only fall back to regex when nothing matched.
	removed, err := c.client.Do(ctx, c.client.B().Del().Key(c.prefix+pattern).Build()).ToInt64()
	if err != nil {
		return 0, fmt.Errorf("govfetch: valkey del: %w", err)
	}
	if removed > 0 {
		return int(removed), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("govfetch: invalidate pattern %q: %w", pattern, err)
	}

	count := 0
	err = c.scanKeys(ctx, func(key string) error {
		if !re.MatchString(strings.TrimPrefix(key, c.prefix)) {
			return nil
		}
		n, err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).ToInt64()
		if err != nil {
			return fmt.Errorf("govfetch: valkey del: %w", err)
		}
		count += int(n)
		return nil
	})
	return count, err
}

func (c *valkeyCache) Clear(ctx context.Context) error {
	err := c.scanKeys(ctx, func(key string) error {
		if err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error(); err != nil {
			return fmt.Errorf("govfetch: valkey del: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

func (c *valkeyCache) Stats() CacheStats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size := 0
	_ = c.scanKeys(ctx, func(string) error {
		size++
		return nil
	})

	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := CacheStats{
		Size:   size,
		Hits:   hits,
		Misses: misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRatio = float64(hits) / float64(total)
	}
	return stats
}

func (c *valkeyCache) Close() error {
	c.client.Close()
	return nil
}

// scanKeys walks every key under the store's prefix.
func (c *valkeyCache) scanKeys(ctx context.Context, fn func(key string) error) error {
	var cursor uint64
	match := c.prefix + "*"
	for {
		resp := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(match).Count(256).Build())
		entry, err := resp.AsScanEntry()
		if err != nil {
			return fmt.Errorf("govfetch: valkey scan: %w", err)
		}
		for _, key := range entry.Elements {
			if err := fn(key); err != nil {
				return err
			}
		}
		if entry.Cursor == 0 {
			return nil
		}
		cursor = entry.Cursor
	}
}

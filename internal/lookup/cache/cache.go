// Package cache stores per-query lookup results keyed by the fully assembled
// query string. Backends range from the unbounded process-lifetime map to
// shared (Redis) and persistent (Badger) stores; the lookup service only sees
// the Cache interface.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/redis"
)

// Cache is a concurrency-safe, overwrite-only result store. Get must not hand
// out memory a later caller could mutate.
type Cache interface {
	Get(ctx context.Context, key string) ([]gazetteer.Entry, bool)
	Put(ctx context.Context, key string, entries []gazetteer.Entry)
}

// Invalidator is implemented by caches that can drop every entry, used when a
// gazetteer index is reloaded.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Stats is a point-in-time view of cache effectiveness. Entries is -1 when the
// backend cannot count cheaply.
type Stats struct {
	Backend string `json:"backend"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Entries int64  `json:"entries"`
}

// StatsReporter is implemented by caches that track hits and misses.
type StatsReporter interface {
	Stats() Stats
}

// counters is embedded by backends to track hits and misses.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// Memory is the unbounded process-lifetime cache. Index content is static for
// the life of the process, so entries never expire.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]gazetteer.Entry
	counters
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]gazetteer.Entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]gazetteer.Entry, bool) {
	m.mu.RLock()
	entries, ok := m.entries[key]
	m.mu.RUnlock()
	m.record(ok)
	if !ok {
		return nil, false
	}
	return gazetteer.CloneAll(entries), true
}

func (m *Memory) Put(_ context.Context, key string, entries []gazetteer.Entry) {
	cloned := gazetteer.CloneAll(entries)
	m.mu.Lock()
	m.entries[key] = cloned
	m.mu.Unlock()
}

func (m *Memory) Invalidate(context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string][]gazetteer.Entry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	return Stats{Backend: config.CacheMemory, Hits: m.hits.Load(), Misses: m.misses.Load(), Entries: int64(n)}
}

// FromConfig builds the configured backend. redisClient is only used by the
// redis backend and may be nil otherwise. The returned close function
// releases backend resources and is never nil.
func FromConfig(cfg config.CacheConfig, redisClient *pkgredis.Client) (Cache, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.CacheMemory, "":
		return NewMemory(), noop, nil
	case config.CacheBounded:
		b, err := NewBounded(cfg.MaxEntries, cfg.TTL)
		if err != nil {
			return nil, noop, err
		}
		return b, func() error { b.Close(); return nil }, nil
	case config.CacheRedis:
		if redisClient == nil {
			return nil, noop, fmt.Errorf("redis cache backend requires a redis client")
		}
		return NewRedis(redisClient, cfg.TTL), noop, nil
	case config.CacheBadger:
		b, err := OpenBadger(cfg.BadgerDir, false, cfg.TTL)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
)

// Bounded is an evicting in-process cache capped at maxEntries result lists.
// Each list costs one unit regardless of length.
type Bounded struct {
	c   *ristretto.Cache[string, []gazetteer.Entry]
	ttl time.Duration
	counters
}

func NewBounded(maxEntries int64, ttl time.Duration) (*Bounded, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("bounded cache needs a positive max entries, got %d", maxEntries)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []gazetteer.Entry]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bounded cache: %w", err)
	}
	return &Bounded{c: c, ttl: ttl}, nil
}

func (b *Bounded) Get(_ context.Context, key string) ([]gazetteer.Entry, bool) {
	entries, ok := b.c.Get(key)
	b.record(ok)
	if !ok {
		return nil, false
	}
	return gazetteer.CloneAll(entries), true
}

// Put stores the list and waits for the write buffer to drain so an immediate
// Get observes it. Ristretto may still reject the item under contention.
func (b *Bounded) Put(_ context.Context, key string, entries []gazetteer.Entry) {
	cloned := gazetteer.CloneAll(entries)
	if b.ttl > 0 {
		b.c.SetWithTTL(key, cloned, 1, b.ttl)
	} else {
		b.c.Set(key, cloned, 1)
	}
	b.c.Wait()
}

func (b *Bounded) Invalidate(context.Context) error {
	b.c.Clear()
	return nil
}

func (b *Bounded) Stats() Stats {
	return Stats{Backend: config.CacheBounded, Hits: b.hits.Load(), Misses: b.misses.Load(), Entries: -1}
}

func (b *Bounded) Close() {
	b.c.Close()
}

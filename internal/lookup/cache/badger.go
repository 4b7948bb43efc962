package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
)

// Badger persists lookup results on local disk so a restarted process keeps
// a warm cache for an unchanged index.
type Badger struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
	counters
}

type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens (creating if needed) a cache database in dir, or an
// in-memory database when inMemory is set.
func OpenBadger(dir string, inMemory bool, ttl time.Duration) (*Badger, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	logger := slog.Default().With("component", "lookup-cache")
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger cache: %w", err)
	}
	return &Badger{db: db, ttl: ttl, logger: logger}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]gazetteer.Entry, bool) {
	var entries []gazetteer.Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			b.logger.Error("cache get failed", "query", key, "error", err)
		}
		b.record(false)
		return nil, false
	}
	b.record(true)
	return nonNil(entries), true
}

func (b *Badger) Put(_ context.Context, key string, entries []gazetteer.Entry) {
	data, err := json.Marshal(nonNil(entries))
	if err != nil {
		b.logger.Error("cache marshal failed", "query", key, "error", err)
		return
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), data)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		b.logger.Error("cache set failed", "query", key, "error", err)
	}
}

func (b *Badger) Invalidate(context.Context) error {
	if err := b.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	return nil
}

func (b *Badger) Stats() Stats {
	var n int64
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return Stats{Backend: config.CacheBadger, Hits: b.hits.Load(), Misses: b.misses.Load(), Entries: n}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/redis"
)

const keyPrefix = "gazetteer:"

// Redis shares lookup results between service replicas. Values are JSON
// encoded entry lists under a hashed key; a zero ttl keeps them until
// invalidated.
type Redis struct {
	client *pkgredis.Client
	ttl    time.Duration
	logger *slog.Logger
	counters
}

func NewRedis(client *pkgredis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "lookup-cache"),
	}
}

func (c *Redis) Get(ctx context.Context, key string) ([]gazetteer.Entry, bool) {
	rkey := buildKey(key)
	data, found, err := c.client.Lookup(ctx, rkey)
	if err != nil {
		c.logger.Error("cache get failed", "key", rkey, "error", err)
	}
	if !found {
		c.record(false)
		return nil, false
	}
	var entries []gazetteer.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Error("cache unmarshal failed", "key", rkey, "error", err)
		c.record(false)
		return nil, false
	}
	c.record(true)
	c.logger.Debug("cache hit", "query", key, "key", rkey)
	return nonNil(entries), true
}

func (c *Redis) Put(ctx context.Context, key string, entries []gazetteer.Entry) {
	rkey := buildKey(key)
	data, err := json.Marshal(nonNil(entries))
	if err != nil {
		c.logger.Error("cache marshal failed", "key", rkey, "error", err)
		return
	}
	if err := c.client.Store(ctx, rkey, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", rkey, "error", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context) error {
	deleted, err := c.client.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Redis) Stats() Stats {
	return Stats{Backend: config.CacheRedis, Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: -1}
}

// buildKey hashes the query string; query strings carry user input and can be
// arbitrarily long.
func buildKey(query string) string {
	hash := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s%x", keyPrefix, hash)
}

func nonNil(entries []gazetteer.Entry) []gazetteer.Entry {
	if entries == nil {
		return []gazetteer.Entry{}
	}
	return entries
}

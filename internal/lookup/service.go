// Package lookup resolves free-text place names to ranked candidate entries
// from the global and national gazetteers.
//
// A lookup never fails the caller. Engine failures yield an empty list and
// unmappable records are skipped; both are logged and reported to the
// configured Monitor.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/mapper"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/scoring"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/tracing"
)

const (
	defaultRows     = 10
	defaultMaxRows  = 1000
	defaultPoolSize = 16
)

// Gazetteer pairs an index with the mapper for its records.
type Gazetteer struct {
	Searcher searcher.Searcher
	Mapper   *mapper.Mapper
}

func (g Gazetteer) source() gazetteer.Source {
	return g.Mapper.Schema().Source
}

type Service struct {
	global   Gazetteer
	national Gazetteer

	cache       cache.Cache
	cutoff      float64
	defaultRows int
	maxRows     int
	poolSize    int
	monitor     Monitor
	logger      *slog.Logger

	flight singleflight.Group
	pool   *ants.Pool
}

type Option func(*Service)

// WithCache replaces the default unbounded in-memory cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithCutoff sets the minimum normalized score a returned entry must reach.
func WithCutoff(cutoff float64) Option {
	return func(s *Service) { s.cutoff = cutoff }
}

// WithRowLimits sets the row count used when a caller passes none and the
// upper bound applied to every request.
func WithRowLimits(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultRows = def
		}
		if max > 0 {
			s.maxRows = max
		}
	}
}

// WithPoolSize bounds the number of concurrent lookups run by FindBatch.
func WithPoolSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

func WithMonitor(m Monitor) Option {
	return func(s *Service) { s.monitor = Monitors(m) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a Service over the two gazetteers. The searchers are used
// read-only and shared by every call.
func New(global, national Gazetteer, opts ...Option) (*Service, error) {
	for _, g := range []Gazetteer{global, national} {
		if g.Searcher == nil || g.Mapper == nil {
			return nil, fmt.Errorf("%w: gazetteer needs a searcher and a mapper", apperrors.ErrInvalidInput)
		}
	}
	s := &Service{
		global:      global,
		national:    national,
		cache:       cache.NewMemory(),
		cutoff:      scoring.DefaultCutoff,
		defaultRows: defaultRows,
		maxRows:     defaultMaxRows,
		poolSize:    defaultPoolSize,
		monitor:     NoopMonitor(),
		logger:      slog.Default().With("component", "lookup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultRows > s.maxRows {
		s.defaultRows = s.maxRows
	}
	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("creating lookup pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Close releases the batch worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Cache returns the result cache the service reads and writes.
func (s *Service) Cache() cache.Cache {
	return s.cache
}

// Invalidate drops every cached result. It fails with ErrCacheDisabled when
// the cache cannot be cleared.
func (s *Service) Invalidate(ctx context.Context) error {
	inv, ok := s.cache.(cache.Invalidator)
	if !ok {
		return apperrors.ErrCacheDisabled
	}
	if err := inv.Invalidate(ctx); err != nil {
		return err
	}
	s.logger.Info("lookup cache invalidated")
	return nil
}

// LookupGlobal searches the global gazetteer. A non-empty countryCode keeps
// only entries whose parent ID equals it, ignoring case.
func (s *Service) LookupGlobal(ctx context.Context, term string, rows int, countryCode string) []gazetteer.Entry {
	return s.lookup(ctx, s.global, term, strings.TrimSpace(countryCode), rows, query.BuildGlobal(term, countryCode))
}

// LookupNational searches the national gazetteer by feature or map name.
func (s *Service) LookupNational(ctx context.Context, term string, rows int) []gazetteer.Entry {
	return s.lookup(ctx, s.national, term, "", rows, query.BuildNational(term))
}

func (s *Service) rows(rows int) int {
	if rows <= 0 {
		return s.defaultRows
	}
	if rows > s.maxRows {
		return s.maxRows
	}
	return rows
}

type outcome struct {
	entries   []gazetteer.Entry
	failed    bool
	totalHits int
	dropped   int
}

// lookup is the per-gazetteer pipeline: cache, search, map, filter, dedup,
// normalize and prune. Concurrent misses on one key share a single search.
func (s *Service) lookup(ctx context.Context, g Gazetteer, term, countryCode string, rows int, q *query.Query) []gazetteer.Entry {
	source := g.source()
	key := q.String()
	start := time.Now()

	root := tracing.FromContext(ctx) == nil
	ctx, span := tracing.Start(ctx, "lookup."+string(source))
	span.SetAttr("query", key)

	report := Report{Source: source, Term: term, CountryCode: countryCode, Query: key}
	s.monitor.Start(ctx, source, key)
	defer func() {
		report.Latency = time.Since(start)
		span.SetAttr("returned", report.Returned)
		span.SetAttr("outcome", report.Outcome())
		span.End()
		if root {
			span.Log(logger.FromContext(ctx))
		}
		s.monitor.Finish(ctx, report)
	}()

	if entries, ok := s.cache.Get(ctx, key); ok {
		report.CacheHit = true
		report.Returned = len(entries)
		s.monitor.CacheHit(ctx, source, key)
		return entries
	}

	rows = s.rows(rows)
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(string(source)+"\x00"+key, func() (any, error) {
		o := s.execute(flightCtx, g, term, countryCode, rows, q, key)
		if !o.failed {
			s.cache.Put(flightCtx, key, o.entries)
		}
		return o, nil
	})

	select {
	case <-ctx.Done():
		report.Failed = true
		logger.FromContext(ctx).Warn("lookup abandoned",
			"source", source, "query", key, "error", ctx.Err())
		return []gazetteer.Entry{}
	case res := <-ch:
		o := res.Val.(outcome)
		entries := o.entries
		if res.Shared {
			entries = gazetteer.CloneAll(entries)
		}
		report.Failed = o.failed
		report.TotalHits = o.totalHits
		report.Dropped = o.dropped
		report.Returned = len(entries)
		return entries
	}
}

func (s *Service) execute(ctx context.Context, g Gazetteer, term, countryCode string, rows int, q *query.Query, key string) outcome {
	source := g.source()
	log := logger.FromContext(ctx).With("component", "lookup", "source", source)

	ctx, span := tracing.Start(ctx, "search")
	res, err := g.Searcher.Search(ctx, q, rows)
	span.End()
	if err != nil {
		log.Error("gazetteer search failed", "query", key, "error", err)
		s.monitor.SearchFailed(ctx, source, key, err)
		return outcome{entries: []gazetteer.Entry{}, failed: true}
	}

	o := outcome{entries: make([]gazetteer.Entry, 0, len(res.Hits)), totalHits: res.TotalHits}
	maxScore := res.MaxScore
	seen := make(map[string]struct{}, len(res.Hits))
	folded := query.Fold(term)

	_, span = tracing.Start(ctx, "map")
	for _, hit := range res.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
		entry, err := s.mapHit(ctx, g, hit)
		if err != nil {
			o.dropped++
			log.Warn("gazetteer record dropped", "query", key, "doc_id", hit.DocID, "error", err)
			s.monitor.RecordDropped(ctx, source, hit.DocID, err)
			continue
		}
		if countryCode != "" && !strings.EqualFold(entry.ItemParentID, countryCode) {
			continue
		}
		if _, dup := seen[entry.Key()]; dup {
			continue
		}
		seen[entry.Key()] = struct{}{}
		entry.ScoreMap[gazetteer.ScoreFuzzy] = scoring.Similarity(folded, query.Fold(entry.ItemName))
		o.entries = append(o.entries, *entry)
	}
	span.SetAttr("mapped", len(o.entries))
	span.End()

	if len(o.entries) > 0 {
		scoring.Normalize(o.entries, 0, maxScore)
		o.entries = scoring.Prune(o.entries, s.cutoff)
	}
	return o
}

func (s *Service) mapHit(ctx context.Context, g Gazetteer, hit searcher.Hit) (*gazetteer.Entry, error) {
	fields, err := g.Searcher.Fetch(ctx, hit.DocID)
	if err != nil {
		return nil, err
	}
	return g.Mapper.Map(hit.DocID, hit.Score, fields)
}

// Package lookuptest provides an in-memory gazetteer searcher and record
// builders for tests of the lookup service and its surfaces.
package lookuptest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/mapper"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
)

// Searcher returns a fixed ranked hit list for every query and counts calls.
type Searcher struct {
	mu       sync.Mutex
	hits     []searcher.Hit
	docs     map[string][]searcher.Field
	maxScore float64
	err      error
	gate     chan struct{}

	searches atomic.Int64
	fetches  atomic.Int64
	last     atomic.Pointer[query.Query]
}

var _ searcher.Searcher = (*Searcher)(nil)

func NewSearcher() *Searcher {
	return &Searcher{docs: make(map[string][]searcher.Field)}
}

// Add appends a hit backed by a stored document.
func (s *Searcher) Add(docID string, score float64, fields []searcher.Field) *Searcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, searcher.Hit{DocID: docID, Score: score})
	s.docs[docID] = fields
	return s
}

// AddOrphan appends a hit whose document cannot be fetched.
func (s *Searcher) AddOrphan(docID string, score float64) *Searcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, searcher.Hit{DocID: docID, Score: score})
	return s
}

// SetMaxScore overrides the batch max score reported with results.
func (s *Searcher) SetMaxScore(v float64) {
	s.mu.Lock()
	s.maxScore = v
	s.mu.Unlock()
}

// Fail makes every search return err; nil restores normal behaviour.
func (s *Searcher) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Block holds searches until the returned release func is called or the
// caller's context ends.
func (s *Searcher) Block() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *Searcher) Searches() int { return int(s.searches.Load()) }

func (s *Searcher) Fetches() int { return int(s.fetches.Load()) }

// LastQuery returns the most recent query searched, or nil.
func (s *Searcher) LastQuery() *query.Query { return s.last.Load() }

func (s *Searcher) Search(ctx context.Context, q *query.Query, rows int) (*searcher.Result, error) {
	s.searches.Add(1)
	s.last.Store(q)

	s.mu.Lock()
	gate, err := s.gate, s.err
	hits := append([]searcher.Hit(nil), s.hits...)
	maxScore := s.maxScore
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	total := len(hits)
	if len(hits) > rows {
		hits = hits[:rows]
	}
	return &searcher.Result{Hits: hits, MaxScore: maxScore, TotalHits: total}, nil
}

func (s *Searcher) Fetch(_ context.Context, docID string) ([]searcher.Field, error) {
	s.fetches.Add(1)
	s.mu.Lock()
	fields, ok := s.docs[docID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
	}
	return append([]searcher.Field(nil), fields...), nil
}

// Geonames builds a global gazetteer record with the GNS field names.
func Geonames(ufi, name, countryCode, lat, lon string) []searcher.Field {
	return []searcher.Field{
		{Name: "RC", Value: "1"},
		{Name: "UFI", Value: ufi},
		{Name: "LAT", Value: lat},
		{Name: "LONG", Value: lon},
		{Name: "DSG", Value: "PPL"},
		{Name: "CC1", Value: countryCode},
		{Name: "FULL_NAME_ND_RO", Value: name},
	}
}

// USGS builds a national gazetteer record with the GNIS field names.
func USGS(id, name, class, lat, lon string) []searcher.Field {
	return []searcher.Field{
		{Name: "FEATURE_ID", Value: id},
		{Name: "FEATURE_NAME", Value: name},
		{Name: "FEATURE_CLASS", Value: class},
		{Name: "MAP_NAME", Value: name},
		{Name: "PRIM_LAT_DEC", Value: lat},
		{Name: "PRIM_LONG_DEC", Value: lon},
	}
}

// NewService wires the two searchers with the named-field schemas.
func NewService(global, national searcher.Searcher, opts ...lookup.Option) (*lookup.Service, error) {
	return lookup.New(
		lookup.Gazetteer{Searcher: global, Mapper: mapper.New(mapper.GeonamesSchema())},
		lookup.Gazetteer{Searcher: national, Mapper: mapper.New(mapper.USGSSchema())},
		opts...,
	)
}

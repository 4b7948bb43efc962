package lookup

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
)

// Request is one mention to resolve in a batch.
type Request struct {
	Term        string `json:"q"`
	CountryCode string `json:"cc,omitempty"`
	Rows        int    `json:"rows,omitempty"`
}

// Find searches the global gazetteer and, when countryCode is empty or names
// the national gazetteer's country, the national one too. The lists are
// merged by normalized score and capped at rows.
func (s *Service) Find(ctx context.Context, term string, rows int, countryCode string) []gazetteer.Entry {
	rows = s.rows(rows)
	var global, national []gazetteer.Entry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		global = s.LookupGlobal(gctx, term, rows, countryCode)
		return nil
	})
	if s.coversNational(countryCode) {
		g.Go(func() error {
			national = s.LookupNational(gctx, term, rows)
			return nil
		})
	}
	_ = g.Wait()

	return merge([][]gazetteer.Entry{global, national}, rows)
}

func (s *Service) coversNational(countryCode string) bool {
	cc := strings.TrimSpace(countryCode)
	if cc == "" {
		return true
	}
	parent := s.national.Mapper.Schema().ParentID
	return parent != "" && strings.EqualFold(cc, parent)
}

// FindBatch runs Find for every request on the worker pool. Results are in
// request order.
func (s *Service) FindBatch(ctx context.Context, reqs []Request) [][]gazetteer.Entry {
	results := make([][]gazetteer.Entry, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = s.Find(ctx, r.Term, r.Rows, r.CountryCode)
		}
		if err := s.pool.Submit(task); err != nil {
			s.logger.Warn("lookup pool rejected task, running inline", "error", err)
			task()
		}
	}
	wg.Wait()
	return results
}

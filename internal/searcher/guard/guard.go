// Package guard wraps a gazetteer searcher with a circuit breaker and a
// per-call timeout, so a wedged or failing index degrades lookups quickly
// instead of stalling every caller.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/resilience"
)

type Guarded struct {
	inner   searcher.Searcher
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

var _ searcher.Searcher = (*Guarded)(nil)

// Wrap guards inner. A zero timeout disables the per-call limit. Missing
// documents are answers, not backend faults, so they never count against the
// breaker unless cfg.Ignore says otherwise.
func Wrap(name string, inner searcher.Searcher, timeout time.Duration, cfg resilience.CircuitBreakerConfig) *Guarded {
	if cfg.Ignore == nil {
		cfg.Ignore = func(err error) bool { return errors.Is(err, apperrors.ErrDocumentNotFound) }
	}
	return &Guarded{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(name, cfg),
		timeout: timeout,
	}
}

func (g *Guarded) Search(ctx context.Context, q *query.Query, rows int) (*searcher.Result, error) {
	return call(ctx, g, "search", func(ctx context.Context) (*searcher.Result, error) {
		return g.inner.Search(ctx, q, rows)
	})
}

func (g *Guarded) Fetch(ctx context.Context, docID string) ([]searcher.Field, error) {
	return call(ctx, g, "fetch", func(ctx context.Context) ([]searcher.Field, error) {
		return g.inner.Fetch(ctx, docID)
	})
}

// FieldNames passes through to the inner searcher when it reports a schema.
func (g *Guarded) FieldNames(ctx context.Context) ([]string, error) {
	sr, ok := g.inner.(searcher.SchemaReporter)
	if !ok {
		return nil, fmt.Errorf("%s does not report its schema", g.breaker.Name())
	}
	return sr.FieldNames(ctx)
}

// Unwrap returns the guarded searcher.
func (g *Guarded) Unwrap() searcher.Searcher { return g.inner }

func (g *Guarded) State() resilience.State { return g.breaker.GetState() }

// call runs fn under the breaker and the timeout, and maps breaker and
// deadline failures onto the lookup error kinds.
func call[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	var v T
	err := g.breaker.Execute(func() error {
		var err error
		v, err = resilience.Call(ctx, g.timeout, g.breaker.Name()+" "+op, fn)
		return err
	})
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		err = fmt.Errorf("%w: %v", apperrors.ErrIndexUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	var zero T
	return zero, err
}

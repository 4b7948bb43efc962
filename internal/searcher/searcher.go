// Package searcher defines the full-text index capability the lookup layer
// consumes. Implementations execute a structured query against one gazetteer
// index and return ranked hits whose stored fields can be fetched by document
// identifier.
package searcher

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
)

// Field is one named stored value of an indexed document.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Hit is a ranked match. Score is non-negative; higher is more relevant.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Result is a ranked batch capped at the requested row count. MaxScore is the
// best score of the whole match set, which may exceed every returned hit's
// score only if the engine truncated the batch.
type Result struct {
	Hits      []Hit   `json:"hits"`
	MaxScore  float64 `json:"max_score"`
	TotalHits int     `json:"total_hits"`
}

// Searcher executes queries against a read-only gazetteer index. It must be
// safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, q *query.Query, rows int) (*Result, error)
	Fetch(ctx context.Context, docID string) ([]Field, error)
}

// SchemaReporter is implemented by searchers that can list the stored field
// names of their index in stored order.
type SchemaReporter interface {
	FieldNames(ctx context.Context) ([]string, error)
}

type unavailable struct {
	name   string
	reason string
}

// Unavailable returns a Searcher whose every call fails with
// ErrIndexUnavailable. It stands in for a gazetteer whose index could not be
// located or opened at startup.
func Unavailable(name, reason string) Searcher {
	return &unavailable{name: name, reason: reason}
}

func (u *unavailable) Search(context.Context, *query.Query, int) (*Result, error) {
	return nil, fmt.Errorf("%s: %w: %s", u.name, apperrors.ErrIndexUnavailable, u.reason)
}

func (u *unavailable) Fetch(context.Context, string) ([]Field, error) {
	return nil, fmt.Errorf("%s: %w: %s", u.name, apperrors.ErrIndexUnavailable, u.reason)
}

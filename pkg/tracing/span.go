// Package tracing records lightweight span trees around lookups and logs them
// through slog. A trace takes the request ID from the context, or a fresh
// UUID for work that did not come from a request.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

type spanKey struct{}

type Span struct {
	Name     string
	TraceID  string
	ID       string
	ParentID string
	Began    time.Time

	mu       sync.Mutex
	elapsed  time.Duration
	attrs    []slog.Attr
	Children []*Span
}

// Start opens a span under the one already in ctx, if any.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, ID: uuid.NewString()[:8], Began: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID, s.ParentID = parent.TraceID, parent.ID
		parent.adopt(s)
	} else if s.TraceID = logger.RequestID(ctx); s.TraceID == "" {
		s.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) adopt(child *Span) {
	s.mu.Lock()
	s.Children = append(s.Children, child)
	s.mu.Unlock()
}

// End fixes the span's duration and returns it.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed = time.Since(s.Began)
	return s.elapsed
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Log writes the tree depth first, one debug record per span.
func (s *Span) Log(l *slog.Logger) {
	s.mu.Lock()
	args := []any{
		"trace_id", s.TraceID,
		"span_id", s.ID,
		"span", s.Name,
		"elapsed_ms", float64(s.elapsed.Microseconds()) / 1000,
	}
	if s.ParentID != "" {
		args = append(args, "parent_id", s.ParentID)
	}
	for _, a := range s.attrs {
		args = append(args, a)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	l.Debug("span", args...)
	for _, c := range children {
		c.Log(l)
	}
}

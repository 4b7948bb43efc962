package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/metrics"
)

// Report summarises one per-gazetteer lookup.
type Report struct {
	Source      gazetteer.Source
	Term        string
	CountryCode string
	Query       string
	CacheHit    bool
	Failed      bool
	TotalHits   int
	Dropped     int
	Returned    int
	Latency     time.Duration
}

// Outcome classifies the report as hit, failed, empty or miss.
func (r Report) Outcome() string {
	switch {
	case r.CacheHit:
		return "hit"
	case r.Failed:
		return "failed"
	case r.Returned == 0:
		return "empty"
	default:
		return "miss"
	}
}

// Monitor observes lookups. Failures the service swallows are reported here
// so they stay visible to operators. Implementations must be safe for
// concurrent use and must not block.
type Monitor interface {
	Start(ctx context.Context, source gazetteer.Source, query string)
	CacheHit(ctx context.Context, source gazetteer.Source, query string)
	SearchFailed(ctx context.Context, source gazetteer.Source, query string, err error)
	RecordDropped(ctx context.Context, source gazetteer.Source, docID string, err error)
	Finish(ctx context.Context, report Report)
}

// DropReason labels a record-level failure.
func DropReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCoordinate):
		return "invalid_coordinate"
	case errors.Is(err, apperrors.ErrMissingField):
		return "missing_field"
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return "not_found"
	default:
		return "fetch_failed"
	}
}

type noopMonitor struct{}

func (noopMonitor) Start(context.Context, gazetteer.Source, string)                {}
func (noopMonitor) CacheHit(context.Context, gazetteer.Source, string)             {}
func (noopMonitor) SearchFailed(context.Context, gazetteer.Source, string, error)  {}
func (noopMonitor) RecordDropped(context.Context, gazetteer.Source, string, error) {}
func (noopMonitor) Finish(context.Context, Report)                                 {}

// NoopMonitor discards every callback.
func NoopMonitor() Monitor { return noopMonitor{} }

type multiMonitor []Monitor

// Monitors fans callbacks out to every non-nil monitor in order.
func Monitors(monitors ...Monitor) Monitor {
	var out multiMonitor
	for _, m := range monitors {
		if m != nil {
			out = append(out, m)
		}
	}
	switch len(out) {
	case 0:
		return NoopMonitor()
	case 1:
		return out[0]
	}
	return out
}

func (mm multiMonitor) Start(ctx context.Context, source gazetteer.Source, query string) {
	for _, m := range mm {
		m.Start(ctx, source, query)
	}
}

func (mm multiMonitor) CacheHit(ctx context.Context, source gazetteer.Source, query string) {
	for _, m := range mm {
		m.CacheHit(ctx, source, query)
	}
}

func (mm multiMonitor) SearchFailed(ctx context.Context, source gazetteer.Source, query string, err error) {
	for _, m := range mm {
		m.SearchFailed(ctx, source, query, err)
	}
}

func (mm multiMonitor) RecordDropped(ctx context.Context, source gazetteer.Source, docID string, err error) {
	for _, m := range mm {
		m.RecordDropped(ctx, source, docID, err)
	}
}

func (mm multiMonitor) Finish(ctx context.Context, report Report) {
	for _, m := range mm {
		m.Finish(ctx, report)
	}
}

// MetricsMonitor records lookups on the Prometheus collectors.
type MetricsMonitor struct {
	m *metrics.Metrics
}

func NewMetricsMonitor(m *metrics.Metrics) *MetricsMonitor {
	return &MetricsMonitor{m: m}
}

func (mm *MetricsMonitor) Start(context.Context, gazetteer.Source, string) {}

func (mm *MetricsMonitor) CacheHit(_ context.Context, source gazetteer.Source, _ string) {
	mm.m.CacheHitsTotal.WithLabelValues(string(source), "hit").Inc()
}

func (mm *MetricsMonitor) SearchFailed(_ context.Context, source gazetteer.Source, _ string, _ error) {
	mm.m.SearchFailuresTotal.WithLabelValues(string(source)).Inc()
}

func (mm *MetricsMonitor) RecordDropped(_ context.Context, source gazetteer.Source, _ string, err error) {
	mm.m.RecordsDroppedTotal.WithLabelValues(string(source), DropReason(err)).Inc()
}

func (mm *MetricsMonitor) Finish(_ context.Context, r Report) {
	source := string(r.Source)
	cacheStatus := "miss"
	if r.CacheHit {
		cacheStatus = "hit"
	} else {
		mm.m.CacheHitsTotal.WithLabelValues(source, "miss").Inc()
	}
	mm.m.LookupsTotal.WithLabelValues(source, r.Outcome()).Inc()
	mm.m.LookupLatency.WithLabelValues(source, cacheStatus).Observe(r.Latency.Seconds())
	mm.m.CandidatesReturned.WithLabelValues(source).Observe(float64(r.Returned))
}

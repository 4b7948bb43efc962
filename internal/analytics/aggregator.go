package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/kafka"
)

const (
	latencyWindow = 10000
	topTerms      = 10
)

// Stats is an aggregate view over the lookup events seen since Since.
type Stats struct {
	TotalLookups     int64            `json:"total_lookups"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	ZeroResults      int64            `json:"zero_results"`
	Failures         int64            `json:"failures"`
	RecordsDropped   int64            `json:"records_dropped"`
	BySource         map[string]int64 `json:"by_source"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     float64          `json:"p50_latency_ms"`
	P95LatencyMs     float64          `json:"p95_latency_ms"`
	P99LatencyMs     float64          `json:"p99_latency_ms"`
	TopTerms         []TermCount      `json:"top_terms"`
	ZeroResultTerms  []TermCount      `json:"zero_result_terms"`
	LookupsPerMinute float64          `json:"lookups_per_minute"`
	Since            time.Time        `json:"since"`
}

type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Aggregator folds lookup events into Stats. Latency percentiles cover the
// most recent events only.
type Aggregator struct {
	mu          sync.RWMutex
	stats       Stats
	latencies   []float64
	next        int
	termCounts  map[string]int64
	zeroResults map[string]int64
	now         func() time.Time
	logger      *slog.Logger
}

var _ Sink = (*Aggregator)(nil)

func NewAggregator() *Aggregator {
	a := &Aggregator{
		latencies:   make([]float64, 0, latencyWindow),
		termCounts:  make(map[string]int64),
		zeroResults: make(map[string]int64),
		now:         time.Now,
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
	a.stats.BySource = make(map[string]int64)
	a.stats.Since = a.now().UTC()
	return a
}

// Start feeds the aggregator from a consumer built with HandleEvent. It
// blocks until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator consuming lookup events")
	return consumer.Start(ctx)
}

// HandleEvent decodes lookup events from Kafka into agg. Undecodable
// messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[LookupEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode lookup event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event LookupEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalLookups++
	a.stats.BySource[event.Source]++
	a.stats.RecordsDropped += int64(event.Dropped)
	if event.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	if event.Type == EventFailed {
		a.stats.Failures++
	}
	if event.Returned == 0 {
		a.stats.ZeroResults++
		a.zeroResults[event.Term]++
	}
	a.termCounts[event.Term]++

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	stats.BySource = make(map[string]int64, len(a.stats.BySource))
	for k, v := range a.stats.BySource {
		stats.BySource[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTerms = topN(a.termCounts, topTerms)
	stats.ZeroResultTerms = topN(a.zeroResults, topTerms)
	if elapsed := a.now().Sub(a.stats.Since).Minutes(); elapsed > 0 {
		stats.LookupsPerMinute = float64(stats.TotalLookups) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then term, so ties are stable.
func topN(counts map[string]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		result = append(result, TermCount{Term: term, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Term < result[j].Term
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

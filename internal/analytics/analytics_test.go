package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return p.err
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator()
	agg.Record(LookupEvent{Type: EventMiss, Source: "geonames", Term: "paris", Returned: 3, LatencyMs: 4})
	agg.Record(LookupEvent{Type: EventHit, Source: "geonames", Term: "paris", Returned: 3, CacheHit: true, LatencyMs: 1})
	agg.Record(LookupEvent{Type: EventEmpty, Source: "usgs", Term: "atlantis", Dropped: 2, LatencyMs: 7})
	agg.Record(LookupEvent{Type: EventFailed, Source: "usgs", Term: "springfield", LatencyMs: 2})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalLookups)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(2), stats.ZeroResults)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(2), stats.RecordsDropped)
	assert.Equal(t, map[string]int64{"geonames": 2, "usgs": 2}, stats.BySource)
	assert.InDelta(t, 3.5, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, 7.0, stats.P99LatencyMs)
	require.NotEmpty(t, stats.TopTerms)
	assert.Equal(t, TermCount{Term: "paris", Count: 2}, stats.TopTerms[0])
	assert.Equal(t, []TermCount{{Term: "atlantis", Count: 1}, {Term: "springfield", Count: 1}}, stats.ZeroResultTerms)
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		agg.Record(LookupEvent{Term: "x", Returned: 1, LatencyMs: 1})
	}
	assert.Len(t, agg.latencies, latencyWindow)
	assert.Equal(t, int64(latencyWindow+10), agg.Stats().TotalLookups)
}

func TestStatsIsACopy(t *testing.T) {
	agg := NewAggregator()
	agg.Record(LookupEvent{Source: "usgs", Term: "a", Returned: 1})
	stats := agg.Stats()
	stats.BySource["usgs"] = 99
	assert.Equal(t, int64(1), agg.Stats().BySource["usgs"])
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	data, err := json.Marshal(LookupEvent{Type: EventMiss, Source: "usgs", Term: "reno", Returned: 1})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("usgs"), data))
	require.NoError(t, handle(context.Background(), nil, []byte("not json")))

	assert.Equal(t, int64(1), agg.Stats().TotalLookups)
}

func TestMonitorEmitsEventPerLookup(t *testing.T) {
	agg := NewAggregator()
	mon := NewMonitor(agg)
	ctx := logger.WithRequestID(context.Background(), "req-1")

	mon.Start(ctx, gazetteer.SourceGeonames, "q")
	mon.SearchFailed(ctx, gazetteer.SourceGeonames, "q", errors.New("boom"))
	mon.Finish(ctx, lookup.Report{
		Source:  gazetteer.SourceGeonames,
		Term:    "paris",
		Query:   "FULL_NAME_ND_RO:paris",
		Failed:  true,
		Latency: 3 * time.Millisecond,
	})

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalLookups)
	assert.Equal(t, int64(1), stats.Failures)
	assert.InDelta(t, 3.0, stats.AvgLatencyMs, 1e-9)

	event := eventFromReport(ctx, lookup.Report{Source: gazetteer.SourceUSGS, CacheHit: true, Returned: 1})
	assert.Equal(t, EventHit, event.Type)
	assert.Equal(t, "req-1", event.RequestID)
}

func TestCollectorFlushesOnBatchSize(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	for i := 0; i < 3; i++ {
		c.Record(LookupEvent{Source: "geonames", Term: "t"})
	}
	require.Eventually(t, func() bool { return pub.count() == 3 }, time.Second, 5*time.Millisecond)

	c.Record(LookupEvent{Source: "usgs", Term: "u"})
	c.Close()
	assert.Equal(t, 4, pub.count())
	assert.Equal(t, "usgs", pub.batches[len(pub.batches)-1][0].Key)

	assert.NotPanics(t, func() { c.Record(LookupEvent{}) })
	assert.NotPanics(t, c.Close)
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 100, 50, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Record(LookupEvent{Source: "geonames"})
	c.Record(LookupEvent{Source: "geonames"})
	cancel()
	c.Close()
	assert.Equal(t, 2, pub.count())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1, 10, time.Hour)
	c.Record(LookupEvent{})
	c.Record(LookupEvent{})
	assert.Equal(t, int64(1), c.Dropped())
	c.Close()
}

type fakeSnapshots struct {
	stats []Stats
	err   error
	limit int
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, limit int) ([]Stats, error) {
	f.limit = limit
	return f.stats, f.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(LookupEvent{Source: "usgs", Term: "reno", Returned: 1})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		var stats Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, int64(1), stats.TotalLookups)
	})
	t.Run("snapshots not configured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, nil).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("snapshots", func(t *testing.T) {
		snaps := &fakeSnapshots{stats: []Stats{{TotalLookups: 5}}}
		rec := httptest.NewRecorder()
		NewHandler(agg, snaps).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=500", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, snaps.limit)
		assert.Contains(t, rec.Body.String(), `"total_lookups":5`)
	})
	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, &fakeSnapshots{}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=x", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("store failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, &fakeSnapshots{err: errors.New("db")}).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

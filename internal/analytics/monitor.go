package analytics

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
)

// Sink receives one event per finished lookup. Both the Kafka Collector and
// the in-process Aggregator are sinks.
type Sink interface {
	Record(event LookupEvent)
}

// Monitor is a lookup.Monitor that emits an event per finished lookup.
type Monitor struct {
	sinks []Sink
}

var _ lookup.Monitor = (*Monitor)(nil)

func NewMonitor(sinks ...Sink) *Monitor {
	return &Monitor{sinks: sinks}
}

func (m *Monitor) Start(context.Context, gazetteer.Source, string)                {}
func (m *Monitor) CacheHit(context.Context, gazetteer.Source, string)             {}
func (m *Monitor) SearchFailed(context.Context, gazetteer.Source, string, error)  {}
func (m *Monitor) RecordDropped(context.Context, gazetteer.Source, string, error) {}

func (m *Monitor) Finish(ctx context.Context, r lookup.Report) {
	event := eventFromReport(ctx, r)
	for _, s := range m.sinks {
		s.Record(event)
	}
}

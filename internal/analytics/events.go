// Package analytics turns lookup reports into events, ships them to Kafka
// and aggregates them into the stats served on the analytics endpoint.
package analytics

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

type EventType string

const (
	EventHit    EventType = "hit"
	EventMiss   EventType = "miss"
	EventEmpty  EventType = "empty"
	EventFailed EventType = "failed"
)

// LookupEvent is the wire form of one per-gazetteer lookup.
type LookupEvent struct {
	Type        EventType `json:"type"`
	Source      string    `json:"source"`
	Term        string    `json:"term"`
	CountryCode string    `json:"country_code,omitempty"`
	Query       string    `json:"query"`
	TotalHits   int       `json:"total_hits"`
	Returned    int       `json:"returned"`
	Dropped     int       `json:"dropped"`
	LatencyMs   float64   `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

func eventFromReport(ctx context.Context, r lookup.Report) LookupEvent {
	return LookupEvent{
		Type:        EventType(r.Outcome()),
		Source:      string(r.Source),
		Term:        r.Term,
		CountryCode: r.CountryCode,
		Query:       r.Query,
		TotalHits:   r.TotalHits,
		Returned:    r.Returned,
		Dropped:     r.Dropped,
		LatencyMs:   float64(r.Latency.Microseconds()) / 1000,
		CacheHit:    r.CacheHit,
		Timestamp:   time.Now().UTC(),
		RequestID:   logger.RequestID(ctx),
	}
}

package lookup

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
)

// Candidate is an entry as served to API callers.
type Candidate struct {
	gazetteer.Entry
	Geohash string `json:"geohash"`
}

// Response is the API body of a lookup, shared by HTTP and RPC.
type Response struct {
	Term        string      `json:"term"`
	CountryCode string      `json:"country_code,omitempty"`
	Count       int         `json:"count"`
	Candidates  []Candidate `json:"candidates"`
	LatencyMs   float64     `json:"latency_ms"`
}

func NewResponse(term, countryCode string, entries []gazetteer.Entry, latency time.Duration) Response {
	candidates := make([]Candidate, len(entries))
	for i := range entries {
		candidates[i] = Candidate{Entry: entries[i], Geohash: entries[i].Geohash()}
	}
	return Response{
		Term:        term,
		CountryCode: countryCode,
		Count:       len(candidates),
		Candidates:  candidates,
		LatencyMs:   float64(latency.Microseconds()) / 1000,
	}
}

// Entries unwraps the candidates.
func (r Response) Entries() []gazetteer.Entry {
	out := make([]gazetteer.Entry, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Entry
	}
	return out
}

// Package health aggregates dependency probes (gazetteer indexes, Redis,
// Postgres) into liveness and readiness reports.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// worse reports whether s outranks o; down > degraded > up.
func (s Status) worse(o Status) bool {
	rank := func(st Status) int {
		switch st {
		case StatusDown:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	return rank(s) > rank(o)
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// FromError turns a probe error into a component result. Optional
// dependencies report degraded instead of down.
func FromError(err error, optional bool) ComponentHealth {
	switch {
	case err == nil:
		return ComponentHealth{Status: StatusUp}
	case optional:
		return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
	default:
		return ComponentHealth{Status: StatusDown, Message: err.Error()}
	}
}

// Checker holds named probes and runs them together.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
	// ProbeTimeout bounds a single readiness request.
	ProbeTimeout time.Duration
}

func NewChecker() *Checker {
	return &Checker{
		checks:       make(map[string]Check),
		started:      time.Now(),
		ProbeTimeout: 5 * time.Second,
	}
}

// Register adds or replaces a named check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.checks))
}

// Run executes every check concurrently; the report carries the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	names := slices.Sorted(maps.Keys(checks))
	results := make([]ComponentHealth, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			began := time.Now()
			res := checks[name](ctx)
			res.Latency = time.Since(began).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i].Status.worse(report.Status) {
			report.Status = results[i].Status
		}
	}
	return report
}

// LiveHandler answers liveness probes without consulting dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers 503 only when a component is down. Degraded still
// takes traffic since lookups fall back to empty results.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.ProbeTimeout)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

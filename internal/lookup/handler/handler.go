// Package handler serves the lookup service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Lookuper is the part of lookup.Service the handlers use.
type Lookuper interface {
	LookupGlobal(ctx context.Context, term string, rows int, countryCode string) []gazetteer.Entry
	LookupNational(ctx context.Context, term string, rows int) []gazetteer.Entry
	Find(ctx context.Context, term string, rows int, countryCode string) []gazetteer.Entry
	FindBatch(ctx context.Context, reqs []lookup.Request) [][]gazetteer.Entry
	Invalidate(ctx context.Context) error
	Cache() cache.Cache
}

type Handler struct {
	svc          Lookuper
	maxRows      int
	maxBatchSize int
	logger       *slog.Logger
}

func New(svc Lookuper, maxRows, maxBatchSize int) *Handler {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &Handler{
		svc:          svc,
		maxRows:      maxRows,
		maxBatchSize: maxBatchSize,
		logger:       slog.Default().With("component", "lookup-handler"),
	}
}

// Register mounts the lookup and cache routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/lookup", h.Find)
	mux.HandleFunc("GET /api/v1/lookup/global", h.Global)
	mux.HandleFunc("GET /api/v1/lookup/national", h.National)
	mux.HandleFunc("POST /api/v1/lookup/batch", h.Batch)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type params struct {
	term        string
	countryCode string
	rows        int
}

func (h *Handler) parse(r *http.Request) (params, error) {
	q := r.URL.Query()
	p := params{term: q.Get("q"), countryCode: strings.TrimSpace(q.Get("cc"))}
	if strings.TrimSpace(p.term) == "" {
		return p, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	if raw := q.Get("rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "rows must be a positive integer")
		}
		if h.maxRows > 0 && n > h.maxRows {
			n = h.maxRows
		}
		p.rows = n
	}
	return p, nil
}

func (h *Handler) Global(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "global", func(ctx context.Context, p params) []gazetteer.Entry {
		return h.svc.LookupGlobal(ctx, p.term, p.rows, p.countryCode)
	})
}

func (h *Handler) National(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "national", func(ctx context.Context, p params) []gazetteer.Entry {
		return h.svc.LookupNational(ctx, p.term, p.rows)
	})
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "find", func(ctx context.Context, p params) []gazetteer.Entry {
		return h.svc.Find(ctx, p.term, p.rows, p.countryCode)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, op string, run func(context.Context, params) []gazetteer.Entry) {
	start := time.Now()
	p, err := h.parse(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries := run(r.Context(), p)
	latency := time.Since(start)

	logger.FromContext(r.Context()).Info("lookup completed",
		"op", op,
		"term", p.term,
		"country_code", p.countryCode,
		"returned", len(entries),
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, lookup.NewResponse(p.term, p.countryCode, entries, latency))
}

type batchRequest struct {
	Requests []lookup.Request `json:"requests"`
}

type batchResponse struct {
	Results   []lookup.Response `json:"results"`
	LatencyMs float64           `json:"latency_ms"`
}

func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var body batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err))
		return
	}
	switch n := len(body.Requests); {
	case n == 0:
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "requests must not be empty"))
		return
	case n > h.maxBatchSize:
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
			"batch of %d exceeds the limit of %d", n, h.maxBatchSize))
		return
	}
	for i, req := range body.Requests {
		if strings.TrimSpace(req.Term) == "" {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "requests[%d]: q is required", i))
			return
		}
		if req.Rows < 0 {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "requests[%d]: rows must not be negative", i))
			return
		}
		if h.maxRows > 0 && req.Rows > h.maxRows {
			body.Requests[i].Rows = h.maxRows
		}
	}

	results := h.svc.FindBatch(r.Context(), body.Requests)
	resp := batchResponse{Results: make([]lookup.Response, len(results))}
	for i, entries := range results {
		req := body.Requests[i]
		resp.Results[i] = lookup.NewResponse(req.Term, req.CountryCode, entries, 0)
	}
	resp.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

	logger.FromContext(r.Context()).Info("batch lookup completed",
		"requests", len(body.Requests),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	reporter, ok := h.svc.Cache().(cache.StatsReporter)
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "unavailable"})
		return
	}
	stats := reporter.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"backend":  stats.Backend,
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"entries":  stats.Entries,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Invalidate(r.Context()); err != nil {
		if !errors.Is(err, apperrors.ErrCacheDisabled) {
			h.logger.Error("cache invalidation failed", "error", err)
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err)})
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/lookuptest"
)

type fixture struct {
	global   *lookuptest.Searcher
	national *lookuptest.Searcher
	mux      *http.ServeMux
}

func newFixture(t *testing.T, opts ...lookup.Option) *fixture {
	t.Helper()
	f := &fixture{
		global: lookuptest.NewSearcher().
			Add("g1", 10, lookuptest.Geonames("-1", "Springfield", "US", "39.8", "-89.6")).
			Add("g2", 9, lookuptest.Geonames("-2", "Springfield", "CA", "45.0", "-75.0")).
			Add("g3", 8.5, lookuptest.Geonames("-3", "Springfield", "US", "37.2", "-93.3")),
		national: lookuptest.NewSearcher().
			Add("n1", 5, lookuptest.USGS("1234", "Springfield", "Populated Place", "39.5", "-89.1")).
			Add("n2", 4.5, lookuptest.USGS("1235", "Springfield", "Populated Place", "42.1", "-72.5")),
		mux: http.NewServeMux(),
	}
	svc, err := lookuptest.NewService(f.global, f.national, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	New(svc, 50, 3).Register(f.mux)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGlobal(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/lookup/global?q=Springfield&cc=us&rows=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[lookup.Response](t, rec)
	assert.Equal(t, "Springfield", resp.Term)
	assert.Equal(t, "us", resp.CountryCode)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "-3", resp.Candidates[1].ItemID)
	c := resp.Candidates[0]
	assert.Equal(t, "-1", c.ItemID)
	assert.Equal(t, "us", c.ItemParentID)
	assert.Equal(t, c.Entry.Geohash(), c.Geohash)
	assert.Len(t, c.Geohash, 9)
	assert.Equal(t, 1.0, c.ScoreMap["lucene"])
	assert.Equal(t, "springfield", c.IndexData["FULL_NAME_ND_RO"])
}

func TestNational(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/lookup/national?q=springfield", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[lookup.Response](t, rec)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "usgs", string(resp.Candidates[0].Source))
	assert.Equal(t, "us", resp.Candidates[0].ItemParentID)
}

func TestFind(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/lookup?q=springfield&rows=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[lookup.Response](t, rec)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, 1, f.national.Searches())
}

func TestLookupValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/api/v1/lookup/global"},
		{"blank q", "/api/v1/lookup/global?q=%20%20"},
		{"bad rows", "/api/v1/lookup/national?q=x&rows=abc"},
		{"zero rows", "/api/v1/lookup?q=x&rows=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
	assert.Zero(t, f.global.Searches())
}

func TestRowsAreCapped(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/lookup/global?q=springfield&rows=5000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEngineFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.global.Fail(assert.AnError)
	rec := f.do(http.MethodGet, "/api/v1/lookup/global?q=springfield", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[lookup.Response](t, rec)
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Candidates)
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/lookup/batch",
		`{"requests":[{"q":"springfield","cc":"ca"},{"q":"springfield","rows":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[batchResponse](t, rec)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "ca", resp.Results[0].CountryCode)
	assert.Equal(t, 1, resp.Results[0].Count)
	assert.Equal(t, "-2", resp.Results[0].Candidates[0].ItemID)
	assert.Equal(t, 3, resp.Results[1].Count)
}

func TestBatchValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"requests":`, http.StatusBadRequest},
		{"unknown field", `{"queries":[]}`, http.StatusBadRequest},
		{"empty", `{"requests":[]}`, http.StatusBadRequest},
		{"blank term", `{"requests":[{"q":""}]}`, http.StatusBadRequest},
		{"negative rows", `{"requests":[{"q":"a","rows":-1}]}`, http.StatusBadRequest},
		{"too many", `{"requests":[{"q":"a"},{"q":"b"},{"q":"c"},{"q":"d"}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, f.do(http.MethodPost, "/api/v1/lookup/batch", tt.body).Code)
		})
	}
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/api/v1/lookup/global?q=springfield", "")
	f.do(http.MethodGet, "/api/v1/lookup/global?q=springfield", "")

	rec := f.do(http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.Equal(t, "memory", stats["backend"])
	assert.Equal(t, 1.0, stats["hits"])
	assert.Equal(t, 1.0, stats["misses"])
	assert.Equal(t, "50.0%", stats["hit_rate"])

	rec = f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	f.do(http.MethodGet, "/api/v1/lookup/global?q=springfield", "")
	assert.Equal(t, 2, f.global.Searches())
}

type opaqueCache struct{ cache.Cache }

func TestCacheEndpointsWithoutSupport(t *testing.T) {
	f := newFixture(t, lookup.WithCache(opaqueCache{cache.NewMemory()}))

	rec := f.do(http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, "unavailable", decode[map[string]string](t, rec)["status"])

	rec = f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodPost, "/api/v1/lookup/global?q=x", "").Code)
}

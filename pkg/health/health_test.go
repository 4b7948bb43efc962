package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"empty", nil, StatusUp},
		{"all up", map[string]Check{"a": up, "b": up}, StatusUp},
		{"degraded", map[string]Check{"a": up, "redis": func(context.Context) ComponentHealth {
			return FromError(errors.New("refused"), true)
		}}, StatusDegraded},
		{"down wins", map[string]Check{
			"redis":    func(context.Context) ComponentHealth { return FromError(errors.New("refused"), true) },
			"geonames": func(context.Context) ComponentHealth { return FromError(errors.New("no index"), false) },
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for n, ch := range tt.checks {
				c.Register(n, ch)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("usgs", func(context.Context) ComponentHealth { return FromError(nil, false) })
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("geonames", func(context.Context) ComponentHealth { return FromError(errors.New("missing"), false) })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "missing", report.Components["geonames"].Message)
	assert.Equal(t, []string{"geonames", "usgs"}, c.Names())
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alive"`)
}

func TestStatusOrdering(t *testing.T) {
	assert.True(t, StatusDown.worse(StatusDegraded))
	assert.True(t, StatusDegraded.worse(StatusUp))
	assert.False(t, StatusUp.worse(StatusUp))
}

package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/metrics"
)

func gnsDoc(id, name, cc string) index.Document {
	return index.Document{ID: id, Fields: []searcher.Field{
		{Name: "UFI", Value: id},
		{Name: "LAT", Value: "48.85"},
		{Name: "LONG", Value: "2.35"},
		{Name: "DSG", Value: "PPL"},
		{Name: "CC1", Value: cc},
		{Name: "FULL_NAME_ND_RO", Value: name},
	}}
}

func buildIndex(t *testing.T, docs ...index.Document) string {
	t.Helper()
	dir := t.TempDir()
	e, err := index.New(dir)
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, e.Add(d))
	}
	require.NoError(t, e.Flush())
	require.NoError(t, e.Close())
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Postgres.Enabled = false
	cfg.Cache.Backend = config.CacheMemory
	cfg.Gazetteers.Geonames.IndexPath = ""
	cfg.Gazetteers.USGS.IndexPath = ""
	return cfg
}

func TestBuildWithoutIndexesServesEmpty(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.Error(t, a.Global.OpenErr)
	require.Error(t, a.National.OpenErr)

	entries := a.Service.LookupGlobal(context.Background(), "paris", 10, "")
	assert.Empty(t, entries)

	checker := health.NewChecker()
	a.RegisterHealth(checker)
	report := checker.Run(context.Background())
	assert.Equal(t, health.StatusDegraded, report.Components["gazetteer_geonames"].Status)
	assert.Equal(t, health.StatusDegraded, report.Components["gazetteer_usgs"].Status)
	assert.NotContains(t, report.Components, "redis")
}

func TestBuildOpensSegmentIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gazetteers.Geonames.IndexPath = buildIndex(t,
		gnsDoc("-1", "Paris", "FR"),
		gnsDoc("-2", "Paris", "US"),
		gnsDoc("-3", "Paris Island", "US"),
		gnsDoc("-4", "Lyon", "FR"),
	)

	reg := prometheus.NewRegistry()
	a, err := Build(context.Background(), cfg, WithMetrics(metrics.New(reg)))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Global.OpenErr)
	entries := a.Service.LookupGlobal(context.Background(), "paris", 10, "")
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, gazetteer.SourceGeonames, e.Source)
		assert.Contains(t, e.ItemName, "Paris")
	}

	checker := health.NewChecker()
	a.RegisterHealth(checker)
	report := checker.Run(context.Background())
	assert.Equal(t, health.StatusUp, report.Components["gazetteer_geonames"].Status)
}

func TestBuildRejectsSchemaMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gazetteers.Geonames.IndexPath = buildIndex(t, index.Document{ID: "1", Fields: []searcher.Field{
		{Name: "UFI", Value: "1"},
		{Name: "NAME", Value: "Paris"},
	}})

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
}

func TestBuildPostgresBackendWithoutPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gazetteers.USGS.Backend = config.BackendPostgres
	cfg.Gazetteers.USGS.Table = "gnis"

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	require.Error(t, a.National.OpenErr)
	assert.Contains(t, a.National.OpenErr.Error(), "postgres")
}

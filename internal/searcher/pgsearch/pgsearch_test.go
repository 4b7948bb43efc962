package pgsearch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
)

func TestNewRejectsBadTableNames(t *testing.T) {
	for _, name := range []string{"", "usgs; DROP TABLE x", "a.b.c", "1abc", `"quoted"`} {
		_, err := New(nil, name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, name)
	}
	s, err := New(nil, "gaz.usgs_documents")
	require.NoError(t, err)
	assert.Equal(t, `"gaz"."usgs_documents"`, s.table)
}

func TestBuildSearchGlobal(t *testing.T) {
	stmt, args := buildSearch(`"geonames"`, query.BuildGlobal("o'hare", "us"), 25)

	assert.Equal(t, []any{"FULL_NAME_ND_RO", "o'hare", 1.0, "CC1", "us", 1000.0, 25}, args)
	assert.NotContains(t, stmt, "o'hare")
	assert.NotContains(t, stmt, "FULL_NAME_ND_RO")
	assert.Contains(t, stmt, "fields->>$1")
	assert.Contains(t, stmt, "WHERE (to_tsvector('simple', coalesce(fields->>$1, '')) @@ phraseto_tsquery('simple', $2)) AND")
	assert.Contains(t, stmt, "LIMIT $7")
}

func TestBuildSearchNationalUsesOr(t *testing.T) {
	stmt, args := buildSearch(`"usgs"`, query.BuildNational("springfield"), 10)
	where := stmt[strings.Index(stmt, "WHERE"):]
	assert.Contains(t, where, ") OR (")
	assert.Len(t, args, 7)
}

func TestOrderFields(t *testing.T) {
	fields, err := orderFields([]byte(`{"B":"2","A":"1","Z":"9","C":"3"}`), []string{"B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []searcher.Field{
		{Name: "B", Value: "2"}, {Name: "A", Value: "1"}, {Name: "C", Value: "3"}, {Name: "Z", Value: "9"},
	}, fields)
}

// TestPostgres runs against a live database named by GZ_TEST_POSTGRES_DSN.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("GZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GZ_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))

	table := fmt.Sprintf("gz_test_%d", time.Now().UnixNano())
	s, err := New(db, table)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	defer db.ExecContext(context.Background(), "DROP TABLE "+s.table)

	doc := func(id, name, mapName string) []searcher.Field {
		return []searcher.Field{
			{Name: "FEATURE_ID", Value: id},
			{Name: "FEATURE_NAME", Value: name},
			{Name: "MAP_NAME", Value: mapName},
		}
	}
	first, err := s.Insert(ctx, doc("1", "Springfield", "Decatur"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, doc("2", "Lake", "Springfield"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, doc("3", "Decatur", "Decatur"))
	require.NoError(t, err)

	res, err := s.Search(ctx, query.BuildNational("springfield"), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)
	assert.Len(t, res.Hits, 2)
	assert.Greater(t, res.MaxScore, 0.0)

	fields, err := s.Fetch(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, doc("1", "Springfield", "Decatur"), fields)

	_, err = s.Fetch(ctx, "999999")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	names, err := s.FieldNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FEATURE_ID", "FEATURE_NAME", "MAP_NAME"}, names)
}

// Package pgsearch serves a gazetteer from a PostgreSQL table using the
// built-in full-text search. Each row stores one document as a JSONB object
// of field values plus the field order needed for positional mapping.
//
//	CREATE TABLE <table> (
//	    doc_id      BIGSERIAL PRIMARY KEY,
//	    fields      JSONB NOT NULL,
//	    field_order TEXT[] NOT NULL
//	);
package pgsearch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type Searcher struct {
	db    *sql.DB
	table string
}

var (
	_ searcher.Searcher       = (*Searcher)(nil)
	_ searcher.SchemaReporter = (*Searcher)(nil)
)

func New(db *sql.DB, table string) (*Searcher, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: table name %q", apperrors.ErrInvalidInput, table)
	}
	return &Searcher{db: db, table: quoteTable(table)}, nil
}

func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// EnsureSchema creates the table and a GIN index over the document fields.
func (s *Searcher) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	doc_id      BIGSERIAL PRIMARY KEY,
	fields      JSONB NOT NULL,
	field_order TEXT[] NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating gazetteer table: %w", err)
	}
	return nil
}

// Insert stores one document and returns its identifier.
func (s *Searcher) Insert(ctx context.Context, fields []searcher.Field) (string, error) {
	values := make(map[string]string, len(fields))
	order := make([]string, len(fields))
	for i, f := range fields {
		values[f.Name] = f.Value
		order[i] = f.Name
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (fields, field_order) VALUES ($1, $2) RETURNING doc_id`, s.table),
		data, pq.Array(order),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// buildSearch renders q as SQL. Every clause contributes
// boost * ts_rank when its phrase matches the field; required clauses are
// ANDed into the filter, optional ones ORed when nothing is required. Field
// names and values are always bound parameters.
func buildSearch(table string, q *query.Query, rows int) (string, []any) {
	var (
		args    []any
		scores  []string
		must    []string
		should  []string
		nextArg = func(v any) string {
			args = append(args, v)
			return "$" + strconv.Itoa(len(args))
		}
	)
	for _, c := range q.Clauses {
		field := nextArg(c.Field)
		value := nextArg(c.Value)
		boost := c.Boost
		if boost == 0 {
			boost = 1
		}
		vec := fmt.Sprintf("to_tsvector('simple', coalesce(fields->>%s, ''))", field)
		tsq := fmt.Sprintf("phraseto_tsquery('simple', %s)", value)
		match := fmt.Sprintf("(%s @@ %s)", vec, tsq)
		scores = append(scores, fmt.Sprintf("CASE WHEN %s THEN %s * ts_rank(%s, %s) ELSE 0 END",
			match, nextArg(boost), vec, tsq))
		if c.Occur == query.Must {
			must = append(must, match)
		} else {
			should = append(should, match)
		}
	}
	where := strings.Join(must, " AND ")
	if len(must) == 0 {
		where = strings.Join(should, " OR ")
	}
	limit := nextArg(rows)
	stmt := fmt.Sprintf(`SELECT doc_id, score, COUNT(*) OVER () AS total, MAX(score) OVER () AS max_score
FROM (SELECT doc_id, (%s)::float8 AS score FROM %s WHERE %s) matched
ORDER BY score DESC, doc_id
LIMIT %s`, strings.Join(scores, " + "), table, where, limit)
	return stmt, args
}

func (s *Searcher) Search(ctx context.Context, q *query.Query, rows int) (*searcher.Result, error) {
	result := &searcher.Result{Hits: []searcher.Hit{}}
	if q == nil || len(q.Clauses) == 0 || rows <= 0 {
		return result, nil
	}
	stmt, args := buildSearch(s.table, q, rows)
	rs, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rs.Close()
	for rs.Next() {
		var (
			id    int64
			hit   searcher.Hit
			total int
		)
		if err := rs.Scan(&id, &hit.Score, &total, &result.MaxScore); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hit.DocID = strconv.FormatInt(id, 10)
		result.TotalHits = total
		result.Hits = append(result.Hits, hit)
	}
	if err := rs.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// classify marks query-syntax failures so callers can tell them from I/O.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "42" {
		return fmt.Errorf("%w: %v", apperrors.ErrQuerySyntax, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrIndexUnavailable, err)
}

func (s *Searcher) Fetch(ctx context.Context, docID string) ([]searcher.Field, error) {
	id, err := strconv.ParseInt(docID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
	}
	var (
		raw   []byte
		order []string
	)
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT fields, field_order FROM %s WHERE doc_id = $1`, s.table), id,
	).Scan(&raw, pq.Array(&order))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
	}
	if err != nil {
		return nil, classify(err)
	}
	return orderFields(raw, order)
}

// orderFields lays out the JSON values in field_order; keys missing from the
// order follow in name order.
func orderFields(raw []byte, order []string) ([]searcher.Field, error) {
	values := make(map[string]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	fields := make([]searcher.Field, 0, len(values))
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		seen[name] = struct{}{}
		fields = append(fields, searcher.Field{Name: name, Value: values[name]})
	}
	var rest []string
	for name := range values {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		fields = append(fields, searcher.Field{Name: name, Value: values[name]})
	}
	return fields, nil
}

func (s *Searcher) FieldNames(ctx context.Context) ([]string, error) {
	var order []string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT field_order FROM %s ORDER BY doc_id LIMIT 1`, s.table),
	).Scan(pq.Array(&order))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s is empty", apperrors.ErrIndexUnavailable, s.table)
	}
	if err != nil {
		return nil, classify(err)
	}
	return order, nil
}

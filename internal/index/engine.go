// Package index is the field-aware full-text engine behind the segment
// gazetteer backend. Documents are ordered named fields; queries are scored
// with per-field BM25. A read-only engine serves the lookup layer; a writable
// one builds fixture and offline indexes.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/memindex"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
)

type Document = memindex.Document

var (
	_ searcher.Searcher       = (*Engine)(nil)
	_ searcher.SchemaReporter = (*Engine)(nil)
)

type Engine struct {
	dir      string
	readOnly bool
	mem      *memindex.MemoryIndex
	writer   *segment.Writer
	logger   *slog.Logger

	mu          sync.RWMutex
	readers     []*segment.Reader
	totalDocs   int64
	fieldTotals map[string]int64
	fields      []string
}

// Open loads every segment in dir for read-only serving. A missing directory
// or one without segments is ErrIndexUnavailable.
func Open(dir string) (*Engine, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrIndexUnavailable, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", apperrors.ErrIndexUnavailable, dir)
	}
	e := newEngine(dir)
	e.readOnly = true
	if err := e.loadSegments(); err != nil {
		return nil, err
	}
	if len(e.readers) == 0 {
		return nil, fmt.Errorf("%w: no %s segments in %s", apperrors.ErrIndexUnavailable, segment.Extension, dir)
	}
	return e, nil
}

// New opens dir for building, creating it if needed and loading any
// existing segments.
func New(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	e := newEngine(dir)
	if err := e.loadSegments(); err != nil {
		return nil, err
	}
	return e, nil
}

func newEngine(dir string) *Engine {
	return &Engine{
		dir:         dir,
		mem:         memindex.New(),
		writer:      segment.NewWriter(dir),
		logger:      slog.Default().With("component", "index", "dir", dir),
		fieldTotals: make(map[string]int64),
	}
}

// Add indexes a document in memory; Flush persists it.
func (e *Engine) Add(doc Document) error {
	if e.readOnly {
		return fmt.Errorf("index %s is read-only", e.dir)
	}
	if e.stored(doc.ID) {
		return fmt.Errorf("duplicate document id %q", doc.ID)
	}
	if err := e.mem.Add(doc); err != nil {
		return err
	}
	stored, _ := e.mem.Doc(doc.ID)
	e.mu.Lock()
	e.totalDocs++
	for f, n := range stored.Lengths {
		e.fieldTotals[f] += int64(n)
	}
	e.addFields(e.mem.FieldNames())
	e.mu.Unlock()
	return nil
}

func (e *Engine) stored(docID string) bool {
	if _, ok := e.mem.Doc(docID); ok {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.readers {
		if r.Has(docID) {
			return true
		}
	}
	return false
}

// addFields merges names into the schema in first-seen order. Caller holds mu.
func (e *Engine) addFields(names []string) {
	for _, n := range names {
		found := false
		for _, f := range e.fields {
			if f == n {
				found = true
				break
			}
		}
		if !found {
			e.fields = append(e.fields, n)
		}
	}
}

// Flush writes the in-memory documents to a new segment.
func (e *Engine) Flush() error {
	entries, docs := e.mem.Snapshot()
	if len(docs) == 0 {
		return nil
	}
	name, err := e.writer.Write(entries, docs, e.mem.FieldNames())
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.dir, name))
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	// Swap under the lock so searches never see a document twice or not at all.
	e.mu.Lock()
	e.readers = append(e.readers, reader)
	e.mem.Reset()
	e.mu.Unlock()
	e.logger.Info("segment flushed", "segment", name, "terms", reader.Terms(), "docs", reader.DocCount())
	return nil
}

func (e *Engine) loadSegments() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", apperrors.ErrIndexUnavailable, e.dir, err)
	}
	names := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		reader, err := segment.OpenReader(filepath.Join(e.dir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping", "segment", name, "error", err)
			continue
		}
		e.readers = append(e.readers, reader)
		e.totalDocs += int64(reader.DocCount())
		for f, n := range reader.FieldTotals() {
			e.fieldTotals[f] += n
		}
		e.addFields(reader.Fields())
	}
	e.logger.Info("segments loaded", "segments", len(e.readers), "docs", e.totalDocs)
	return nil
}

// Search scores every document matching q. A clause matches a document when
// all of its value's terms occur in the clause field. Required clauses must
// all match; without required clauses at least one optional clause must.
func (e *Engine) Search(ctx context.Context, q *query.Query, rows int) (*searcher.Result, error) {
	if q == nil || len(q.Clauses) == 0 {
		return &searcher.Result{Hits: []searcher.Hit{}}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var (
		scores   map[string]float64
		required bool
		optional = make(map[string]float64)
	)
	for _, c := range q.Clauses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matched, err := e.scoreClause(c)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case query.Must:
			if !required {
				scores = matched
				required = true
				continue
			}
			for docID, s := range scores {
				if add, ok := matched[docID]; ok {
					scores[docID] = s + add
				} else {
					delete(scores, docID)
				}
			}
		default:
			for docID, s := range matched {
				optional[docID] += s
			}
		}
	}
	if !required {
		scores = optional
	} else {
		for docID := range scores {
			scores[docID] += optional[docID]
		}
	}
	return rank(scores, rows), nil
}

// scoreClause returns boost * Σ BM25 over the clause terms for every
// document containing all of them. Caller holds mu.
func (e *Engine) scoreClause(c query.Clause) (map[string]float64, error) {
	terms := tokenizer.Terms(c.Value)
	if len(terms) == 0 {
		return map[string]float64{}, nil
	}
	boost := c.Boost
	if boost == 0 {
		boost = 1
	}
	avgLen := 0.0
	if e.totalDocs > 0 {
		avgLen = float64(e.fieldTotals[c.Field]) / float64(e.totalDocs)
	}

	var scores map[string]float64
	for i, term := range terms {
		postings, err := e.postings(c.Field, term)
		if err != nil {
			return nil, err
		}
		idf := computeIDF(e.totalDocs, int64(len(postings)))
		next := make(map[string]float64, len(postings))
		for _, p := range postings {
			if i > 0 {
				if _, ok := scores[p.DocID]; !ok {
					continue
				}
			}
			fieldLen := e.fieldLength(p.DocID, c.Field)
			next[p.DocID] = scores[p.DocID] + idf*computeTFNorm(float64(p.Frequency), float64(fieldLen), avgLen)
		}
		scores = next
		if len(scores) == 0 {
			break
		}
	}
	for docID, s := range scores {
		scores[docID] = boost * s
	}
	return scores, nil
}

// postings gathers a field/term posting list across memory and segments.
func (e *Engine) postings(field, term string) (memindex.PostingList, error) {
	all := e.mem.Search(field, term)
	for _, r := range e.readers {
		p, err := r.Search(field, term)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", filepath.Base(r.Path()), err)
		}
		all = append(all, p...)
	}
	return all, nil
}

func (e *Engine) fieldLength(docID, field string) int {
	if d, ok := e.mem.Doc(docID); ok {
		return d.Lengths[field]
	}
	for _, r := range e.readers {
		if n, ok := r.FieldLength(docID, field); ok {
			return n
		}
	}
	return 0
}

// Fetch returns the stored fields of docID in stored order.
func (e *Engine) Fetch(ctx context.Context, docID string) ([]searcher.Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d, ok := e.mem.Doc(docID); ok {
		return d.Fields, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.readers {
		fields, ok, err := r.Fetch(docID)
		if err != nil {
			return nil, err
		}
		if ok {
			return fields, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
}

// FieldNames reports the stored field names in first-seen order.
func (e *Engine) FieldNames(context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.fields) == 0 {
		return nil, errors.New("index has no documents")
	}
	return append([]string(nil), e.fields...), nil
}

func (e *Engine) DocCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalDocs
}

// Close releases segment files. A writable engine flushes first.
func (e *Engine) Close() error {
	var errs []error
	if !e.readOnly {
		if err := e.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.readers = nil
	return errors.Join(errs...)
}

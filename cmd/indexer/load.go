package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher/pgsearch"
)

// sink receives one gazetteer record at a time, fields in file order.
type sink interface {
	add(ctx context.Context, fields []searcher.Field) error
	close() error
}

type segmentSink struct {
	engine     *index.Engine
	next       int
	flushEvery int
}

func newSegmentSink(dir string, flushEvery int) (*segmentSink, error) {
	e, err := index.New(dir)
	if err != nil {
		return nil, err
	}
	return &segmentSink{engine: e, next: int(e.DocCount()), flushEvery: flushEvery}, nil
}

func (s *segmentSink) add(_ context.Context, fields []searcher.Field) error {
	s.next++
	if err := s.engine.Add(index.Document{ID: strconv.Itoa(s.next), Fields: fields}); err != nil {
		return err
	}
	if s.flushEvery > 0 && s.next%s.flushEvery == 0 {
		return s.engine.Flush()
	}
	return nil
}

func (s *segmentSink) close() error { return s.engine.Close() }

type tableSink struct {
	table *pgsearch.Searcher
}

func (s *tableSink) add(ctx context.Context, fields []searcher.Field) error {
	_, err := s.table.Insert(ctx, fields)
	return err
}

func (s *tableSink) close() error { return nil }

// load reads a delimited gazetteer export whose first row names the fields.
// Empty values are kept so positional schemas still line up.
func load(ctx context.Context, r io.Reader, delim rune, dst sink) (int, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errors.New("empty input: missing header row")
		}
		return 0, fmt.Errorf("reading header: %w", err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("line %d: %w", n+2, err)
		}
		fields := make([]searcher.Field, len(names))
		for i, name := range names {
			fields[i] = searcher.Field{Name: name}
			if i < len(rec) {
				fields[i].Value = rec[i]
			}
		}
		if err := dst.add(ctx, fields); err != nil {
			return n, fmt.Errorf("line %d: %w", n+2, err)
		}
		n++
	}
}

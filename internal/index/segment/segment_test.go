package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/memindex"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
)

func buildSegment(t *testing.T) string {
	t.Helper()
	m := memindex.New()
	require.NoError(t, m.Add(memindex.Document{ID: "1", Fields: []searcher.Field{
		{Name: "FEATURE_ID", Value: "1234"},
		{Name: "FEATURE_NAME", Value: "Springfield"},
	}}))
	require.NoError(t, m.Add(memindex.Document{ID: "2", Fields: []searcher.Field{
		{Name: "FEATURE_ID", Value: "99"},
		{Name: "FEATURE_NAME", Value: "West Springfield"},
	}}))
	entries, docs := m.Snapshot()

	dir := t.TempDir()
	name, err := NewWriter(dir).Write(entries, docs, m.FieldNames())
	require.NoError(t, err)
	assert.Equal(t, Extension, filepath.Ext(name))
	return filepath.Join(dir, name)
}

func TestWriteAndRead(t *testing.T) {
	r, err := OpenReader(buildSegment(t))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.DocCount())
	assert.Equal(t, []string{"FEATURE_ID", "FEATURE_NAME"}, r.Fields())

	postings, err := r.Search("FEATURE_NAME", "springfield")
	require.NoError(t, err)
	assert.Len(t, postings, 2)

	postings, err = r.Search("FEATURE_NAME", "west")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "2", postings[0].DocID)

	postings, err = r.Search("FEATURE_ID", "springfield")
	require.NoError(t, err)
	assert.Nil(t, postings)

	fields, ok, err := r.Fetch("2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "West Springfield", fields[1].Value)

	_, ok, err = r.Fetch("3")
	assert.NoError(t, err)
	assert.False(t, ok)

	n, ok := r.FieldLength("2", "FEATURE_NAME")
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3), r.FieldTotals()["FEATURE_NAME"])
}

func TestOpenRejectsCorruption(t *testing.T) {
	path := buildSegment(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-FooterSize-2] ^= 0xff
	bad := filepath.Join(t.TempDir(), "bad"+Extension)
	require.NoError(t, os.WriteFile(bad, corrupt, 0o644))
	_, err = OpenReader(bad)
	assert.ErrorContains(t, err, "checksum")

	magic := append([]byte(nil), data...)
	magic[0] = 0
	require.NoError(t, os.WriteFile(bad, magic, 0o644))
	_, err = OpenReader(bad)
	assert.ErrorContains(t, err, "magic")
}

func TestWriteEmpty(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(nil, nil, nil)
	assert.Error(t, err)
}

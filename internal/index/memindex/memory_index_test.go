package memindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
)

func doc(id string, kv ...string) Document {
	d := Document{ID: id}
	for i := 0; i+1 < len(kv); i += 2 {
		d.Fields = append(d.Fields, searcher.Field{Name: kv[i], Value: kv[i+1]})
	}
	return d
}

func TestAddAndSearch(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(doc("1", "FEATURE_NAME", "Springfield", "MAP_NAME", "Springfield East")))
	require.NoError(t, m.Add(doc("2", "FEATURE_NAME", "East Springfield")))

	postings := m.Search("FEATURE_NAME", "springfield")
	require.Len(t, postings, 2)
	assert.Equal(t, "1", postings[0].DocID)
	assert.Equal(t, 1, postings[0].Frequency)

	assert.Len(t, m.Search("MAP_NAME", "springfield"), 1)
	assert.Empty(t, m.Search("MAP_NAME", "shelbyville"))

	d, ok := m.Doc("1")
	require.True(t, ok)
	assert.Equal(t, 2, d.Lengths["MAP_NAME"])
	assert.Equal(t, []string{"FEATURE_NAME", "MAP_NAME"}, m.FieldNames())
	assert.Equal(t, 2, m.DocCount())
}

func TestAddRejectsDuplicatesAndMissingIDs(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(doc("1", "A", "x")))
	assert.Error(t, m.Add(doc("1", "A", "y")))
	assert.Error(t, m.Add(doc("", "A", "y")))
	assert.Len(t, m.Search("A", "y"), 0)
}

func TestSnapshotOrdering(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(doc("b", "Z", "beta", "A", "alpha")))
	require.NoError(t, m.Add(doc("a", "A", "alpha")))

	entries, docs := m.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Field)
	assert.Len(t, entries[0].Postings, 2)
	assert.Equal(t, "a", entries[0].Postings[0].DocID)
	assert.Equal(t, []string{"b", "a"}, []string{docs[0].ID, docs[1].ID})

	m.Reset()
	assert.Equal(t, 0, m.DocCount())
	assert.Empty(t, m.FieldNames())
}

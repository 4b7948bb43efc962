// Package memindex is the mutable, in-memory half of the gazetteer index:
// field-scoped postings plus stored documents, snapshotted into segments.
package memindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/tokenizer"
)

type termKey struct {
	field string
	term  string
}

type MemoryIndex struct {
	mu         sync.RWMutex
	index      map[termKey]map[string]*Posting
	docs       map[string]*StoredDoc
	order      []string
	fieldNames []string
	fieldSeen  map[string]struct{}
}

func New() *MemoryIndex {
	m := &MemoryIndex{}
	m.reset()
	return m
}

func (m *MemoryIndex) reset() {
	m.index = make(map[termKey]map[string]*Posting)
	m.docs = make(map[string]*StoredDoc)
	m.order = nil
	m.fieldNames = nil
	m.fieldSeen = make(map[string]struct{})
}

// Add tokenizes and indexes every field of doc. Document IDs must be unique.
func (m *MemoryIndex) Add(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no id")
	}
	stored := &StoredDoc{
		ID:      doc.ID,
		Fields:  append(doc.Fields[:0:0], doc.Fields...),
		Lengths: make(map[string]int, len(doc.Fields)),
	}
	termData := make(map[termKey]*Posting)
	for _, f := range doc.Fields {
		tokens := tokenizer.Tokenize(f.Value)
		stored.Lengths[f.Name] += len(tokens)
		for _, tok := range tokens {
			k := termKey{field: f.Name, term: tok.Term}
			p, ok := termData[k]
			if !ok {
				p = &Posting{DocID: doc.ID}
				termData[k] = p
			}
			p.Frequency++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.docs[doc.ID]; dup {
		return fmt.Errorf("duplicate document id %q", doc.ID)
	}
	for k, p := range termData {
		if _, ok := m.index[k]; !ok {
			m.index[k] = make(map[string]*Posting)
		}
		m.index[k][doc.ID] = p
	}
	for _, f := range doc.Fields {
		if _, ok := m.fieldSeen[f.Name]; !ok {
			m.fieldSeen[f.Name] = struct{}{}
			m.fieldNames = append(m.fieldNames, f.Name)
		}
	}
	m.docs[doc.ID] = stored
	m.order = append(m.order, doc.ID)
	return nil
}

// Search returns the postings of term in field, ordered by document ID.
func (m *MemoryIndex) Search(field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.index[termKey{field: field, term: term}]
	if !ok {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, p := range docs {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DocID < result[j].DocID })
	return result
}

// Doc returns a stored document.
func (m *MemoryIndex) Doc(id string) (StoredDoc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return StoredDoc{}, false
	}
	return *d, true
}

// Snapshot returns term entries sorted by field then term, and stored
// documents in insertion order.
func (m *MemoryIndex) Snapshot() ([]TermEntry, []StoredDoc) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for k, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, p := range docs {
			postings = append(postings, *p)
		}
		sort.Slice(postings, func(i, j int) bool { return postings[i].DocID < postings[j].DocID })
		entries = append(entries, TermEntry{Field: k.field, Term: k.term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})
	docs := make([]StoredDoc, 0, len(m.order))
	for _, id := range m.order {
		docs = append(docs, *m.docs[id])
	}
	return entries, docs
}

// FieldNames lists field names in first-seen order.
func (m *MemoryIndex) FieldNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.fieldNames...)
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index/memindex"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
)

// Reader serves one segment read-only. It is safe for concurrent use.
type Reader struct {
	file   *os.File
	path   string
	header Header
	dict   Dictionary
	docs   map[string]int
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	hb := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hb, 0); err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	header := decodeHeader(hb)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file %s: bad magic bytes %x", path, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("segment %s: unsupported version %d", path, header.Version)
	}

	dictData := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictData, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary of %s: %w", path, err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer of %s: %w", path, err)
	}
	if crc32.ChecksumIEEE(dictData) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("segment %s: dictionary checksum mismatch", path)
	}

	var dict Dictionary
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary of %s: %w", path, err)
	}
	docs := make(map[string]int, len(dict.Docs))
	for i, d := range dict.Docs {
		docs[d.ID] = i
	}
	return &Reader{file: f, path: path, header: header, dict: dict, docs: docs}, nil
}

// Search returns the postings of term in field, or nil.
func (r *Reader) Search(field, term string) (memindex.PostingList, error) {
	terms := r.dict.Terms
	idx := sort.Search(len(terms), func(i int) bool {
		if terms[i].Field != field {
			return terms[i].Field >= field
		}
		return terms[i].Term >= term
	})
	if idx >= len(terms) || terms[idx].Field != field || terms[idx].Term != term {
		return nil, nil
	}
	entry := terms[idx]
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings memindex.PostingList
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// Has reports whether the segment stores docID.
func (r *Reader) Has(docID string) bool {
	_, ok := r.docs[docID]
	return ok
}

// FieldLength returns the token count of field in docID.
func (r *Reader) FieldLength(docID, field string) (int, bool) {
	i, ok := r.docs[docID]
	if !ok {
		return 0, false
	}
	return r.dict.Docs[i].Lengths[field], true
}

// Fetch reads the stored fields of docID.
func (r *Reader) Fetch(docID string) ([]searcher.Field, bool, error) {
	i, ok := r.docs[docID]
	if !ok {
		return nil, false, nil
	}
	entry := r.dict.Docs[i]
	data := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(data, r.header.DocsOffset+entry.Offset); err != nil {
		return nil, true, fmt.Errorf("reading document %q: %w", docID, err)
	}
	var fields []searcher.Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, true, fmt.Errorf("parsing document %q: %w", docID, err)
	}
	return fields, true, nil
}

// FieldTotals sums per-field token counts over all documents.
func (r *Reader) FieldTotals() map[string]int64 {
	totals := make(map[string]int64)
	for _, d := range r.dict.Docs {
		for f, n := range d.Lengths {
			totals[f] += int64(n)
		}
	}
	return totals
}

func (r *Reader) Fields() []string { return r.dict.Fields }

func (r *Reader) Terms() int { return len(r.dict.Terms) }

func (r *Reader) DocCount() int { return len(r.dict.Docs) }

func (r *Reader) Path() string { return r.path }

func (r *Reader) Close() error {
	return r.file.Close()
}

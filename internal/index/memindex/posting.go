package memindex

import "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"

// Posting records how often a term occurs in one field of one document.
type Posting struct {
	DocID     string `json:"d"`
	Frequency int    `json:"f"`
}

type PostingList []Posting

// TermEntry is the posting list of one term within one field.
type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// Document is a gazetteer record as supplied to the index: an identifier and
// its named fields in stored order.
type Document struct {
	ID     string
	Fields []searcher.Field
}

// StoredDoc is a document plus its per-field token counts.
type StoredDoc struct {
	ID      string           `json:"id"`
	Fields  []searcher.Field `json:"fields"`
	Lengths map[string]int   `json:"lengths"`
}

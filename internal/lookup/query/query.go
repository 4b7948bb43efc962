// Package query builds structured gazetteer queries from caller input and
// renders them in Lucene classic query syntax. The rendered string doubles as
// the result-cache key.
package query

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field names of the global (GNS) and national (GNIS) index schemas.
const (
	FieldFullNameND  = "FULL_NAME_ND_RO"
	FieldCountryCode = "CC1"
	FieldFeatureName = "FEATURE_NAME"
	FieldMapName     = "MAP_NAME"
)

// CountryBoost is the ranking weight attached to the country-code clause.
const CountryBoost = 1000

type Occur int

const (
	Must Occur = iota
	Should
)

// Clause matches Value against a single index field.
type Clause struct {
	Field string
	Value string
	Occur Occur
	Boost float64
}

// Query is an ordered set of field clauses. Must clauses are all required;
// when there are none, at least one Should clause has to match.
type Query struct {
	Clauses []Clause
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases and trims a search term.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Fold normalizes a term and strips combining marks, matching the
// no-diacritics name fields.
func Fold(term string) string {
	folded, _, err := transform.String(stripMarks, Normalize(term))
	if err != nil {
		return Normalize(term)
	}
	return folded
}

// BuildGlobal targets the global names gazetteer. A non-empty country code
// adds a required, boosted clause on the country field.
func BuildGlobal(term, countryCode string) *Query {
	q := &Query{Clauses: []Clause{{Field: FieldFullNameND, Value: Fold(term), Occur: Must, Boost: 1}}}
	if cc := Normalize(countryCode); cc != "" {
		q.Clauses = append(q.Clauses, Clause{Field: FieldCountryCode, Value: cc, Occur: Must, Boost: CountryBoost})
	}
	return q
}

// BuildNational targets the national features gazetteer, matching either the
// feature name or the map name.
func BuildNational(term string) *Query {
	value := Normalize(term)
	return &Query{Clauses: []Clause{
		{Field: FieldFeatureName, Value: value, Occur: Should, Boost: 1},
		{Field: FieldMapName, Value: value, Occur: Should, Boost: 1},
	}}
}

// Fields lists the distinct fields referenced by the query, in clause order.
func (q *Query) Fields() []string {
	seen := make(map[string]struct{}, len(q.Clauses))
	fields := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		if _, ok := seen[c.Field]; ok {
			continue
		}
		seen[c.Field] = struct{}{}
		fields = append(fields, c.Field)
	}
	return fields
}

// String renders the query with every clause value escaped.
func (q *Query) String() string {
	var must, should int
	for _, c := range q.Clauses {
		if c.Occur == Must {
			must++
		} else {
			should++
		}
	}
	mixed := must > 0 && should > 0
	sep := " OR "
	if must > 0 {
		sep = " AND "
	}
	if mixed {
		sep = " "
	}

	var b strings.Builder
	for i, c := range q.Clauses {
		if i > 0 {
			b.WriteString(sep)
		}
		if mixed && c.Occur == Must {
			b.WriteByte('+')
		}
		b.WriteString(c.Field)
		b.WriteByte(':')
		b.WriteString(Escape(c.Value))
		if c.Boost != 0 && c.Boost != 1 {
			b.WriteByte('^')
			b.WriteString(strconv.FormatFloat(c.Boost, 'f', -1, 64))
		}
	}
	return b.String()
}

// Escape backslash-escapes query-syntax metacharacters and whitespace so the
// value is read as a single literal term.
func Escape(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if isSpecial(r) || unicode.IsSpace(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSpecial(r rune) bool {
	switch r {
	case '+', '-', '&', '|', '!', '(', ')', '{', '}', '[', ']', '^', '"', '~', '*', '?', ':', '\\', '/':
		return true
	}
	return false
}

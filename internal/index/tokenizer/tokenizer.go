// Package tokenizer splits gazetteer field values into index terms. Terms are
// lower-cased with diacritics folded and split on anything that is not a
// letter or digit. Place names are short and meaningful in every word, so
// there is no stemming or stop-word removal.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Token struct {
	Term     string
	Position int
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Tokenize returns the terms of text in order.
func Tokenize(text string) []Token {
	text = strings.ToLower(text)
	if folded, _, err := transform.String(fold, text); err == nil {
		text = folded
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, len(words))
	for i, word := range words {
		tokens[i] = Token{Term: word, Position: i}
	}
	return tokens
}

// Terms returns only the term strings of Tokenize(text).
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

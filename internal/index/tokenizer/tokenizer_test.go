package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Springfield", []string{"springfield"}},
		{"New York", []string{"new", "york"}},
		{"Saint-Étienne", []string{"saint", "etienne"}},
		{"St. John's", []string{"st", "john", "s"}},
		{"  ", []string{}},
		{"Ḩalab 2", []string{"halab", "2"}},
		{"of the", []string{"of", "the"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.in))
		})
	}
}

func TestPositions(t *testing.T) {
	tokens := Tokenize("fort worth texas")
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
	}
}

func BenchmarkTokenize(b *testing.B) {
	name := "Sankt Johann im Pongau Bezirkshauptmannschaft"
	for i := 0; i < b.N; i++ {
		Tokenize(name)
	}
}

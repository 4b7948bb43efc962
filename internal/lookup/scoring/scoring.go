// Package scoring rescales raw engine relevance onto [0,1], prunes
// low-confidence candidates and computes the auxiliary name similarity score.
package scoring

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
)

const (
	// DegenerateScore is assigned when a batch has no score spread.
	DegenerateScore = 0.001
	DefaultCutoff   = 0.75
)

// MaxRaw returns the highest raw score in the batch.
func MaxRaw(entries []gazetteer.Entry) float64 {
	maxScore := 0.0
	for i := range entries {
		maxScore = math.Max(maxScore, entries[i].Score(gazetteer.ScoreRawLucene))
	}
	return maxScore
}

// Normalize rewrites each entry's lucene score as (raw-min)/(max-min), clamped
// to [0,1]. A batch without spread (max == min, or every raw score equal to
// max, as with a single entry) gets DegenerateScore for every entry. The raw
// score is kept under rawlucene.
func Normalize(entries []gazetteer.Entry, minScore, maxScore float64) {
	if len(entries) == 0 {
		return
	}
	degenerate := maxScore-minScore <= 0 || allEqual(entries, maxScore)
	for i := range entries {
		e := &entries[i]
		raw, ok := e.ScoreMap[gazetteer.ScoreRawLucene]
		if !ok {
			raw = e.Score(gazetteer.ScoreLucene)
			e.ScoreMap[gazetteer.ScoreRawLucene] = raw
		}
		if degenerate {
			e.ScoreMap[gazetteer.ScoreLucene] = DegenerateScore
			continue
		}
		e.ScoreMap[gazetteer.ScoreLucene] = clamp((raw - minScore) / (maxScore - minScore))
	}
}

func allEqual(entries []gazetteer.Entry, maxScore float64) bool {
	for i := range entries {
		if entries[i].Score(gazetteer.ScoreRawLucene) != maxScore {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

// Prune drops entries whose lucene score is strictly below cutoff. Order is
// preserved; the returned slice shares the input's backing array.
func Prune(entries []gazetteer.Entry, cutoff float64) []gazetteer.Entry {
	kept := entries[:0]
	for _, e := range entries {
		if e.Score(gazetteer.ScoreLucene) >= cutoff {
			kept = append(kept, e)
		}
	}
	return kept
}

// Similarity is 1 - levenshtein(a, b)/max(len(a), len(b)) over runes.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

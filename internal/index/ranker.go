package index

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
)

const (
	k1 = 1.2
	b  = 0.75
)

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, fieldLength float64, avgFieldLength float64) float64 {
	if avgFieldLength == 0 {
		return 0
	}
	lengthRatio := fieldLength / avgFieldLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// rank orders scored documents best first, ties by document ID, and cuts the
// list at rows.
func rank(scores map[string]float64, rows int) *searcher.Result {
	hits := make([]searcher.Hit, 0, len(scores))
	for docID, score := range scores {
		hits = append(hits, searcher.Hit{DocID: docID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	result := &searcher.Result{TotalHits: len(hits)}
	if len(hits) > 0 {
		result.MaxScore = hits[0].Score
	}
	if rows >= 0 && len(hits) > rows {
		hits = hits[:rows]
	}
	result.Hits = hits
	return result
}

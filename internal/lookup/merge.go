package lookup

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
)

// merge keeps the limit best entries across lists by normalized score,
// highest first. Ties order by source then item ID so output is stable.
func merge(lists [][]gazetteer.Entry, limit int) []gazetteer.Entry {
	h := &entryHeap{}
	heap.Init(h)
	for _, entries := range lists {
		for _, e := range entries {
			heap.Push(h, e)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]gazetteer.Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(gazetteer.Entry)
	}
	return result
}

// entryHeap is a min-heap: the root is the weakest entry kept so far.
type entryHeap []gazetteer.Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	si, sj := h[i].Score(gazetteer.ScoreLucene), h[j].Score(gazetteer.ScoreLucene)
	if si != sj {
		return si < sj
	}
	if h[i].Source != h[j].Source {
		return h[i].Source > h[j].Source
	}
	return h[i].ItemID > h[j].ItemID
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(gazetteer.Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

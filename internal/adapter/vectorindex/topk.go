package vectorindex

import (
	"container/heap"
	"sort"

	"txtvec/internal/domain"
)

// ranks reports whether a outranks b: higher score first, then lower id.
func ranks(a, b domain.SearchHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// hitHeap keeps the current worst hit at the root.
type hitHeap []domain.SearchHit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return ranks(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(domain.SearchHit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK collects the k best hits offered to it.
type topK struct {
	k int
	h hitHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(hitHeap, 0, k)}
}

func (t *topK) offer(hit domain.SearchHit) {
	if len(t.h) < t.k {
		heap.Push(&t.h, hit)
		return
	}
	if ranks(hit, t.h[0]) {
		t.h[0] = hit
		heap.Fix(&t.h, 0)
	}
}

// result returns the collected hits best first.
func (t *topK) result() []domain.SearchHit {
	out := make([]domain.SearchHit, len(t.h))
	copy(out, t.h)
	sort.Slice(out, func(i, j int) bool { return ranks(out[i], out[j]) })
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

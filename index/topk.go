package index

import (
	"container/heap"
	"sort"

	"github.com/Silversoul-07/cloudforge/distance"
)

// Candidate is a scored position in an index.
type Candidate struct {
	Pos   int
	Score float32
}

// TopK keeps the k best candidates seen so far. The heap root is the worst
// retained candidate; ties are broken by position so earlier inserts win.
type TopK struct {
	k      int
	metric distance.Metric
	items  []Candidate
}

var _ heap.Interface = (*TopK)(nil)

// NewTopK creates a selector retaining k candidates.
func NewTopK(k int, metric distance.Metric) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, metric: metric, items: make([]Candidate, 0, k)}
}

// worse reports whether a ranks after b.
func (t *TopK) worse(a, b Candidate) bool {
	if a.Score != b.Score {
		return t.metric.Better(b.Score, a.Score)
	}
	return a.Pos > b.Pos
}

// Len returns the number of elements in the heap.
func (t *TopK) Len() int { return len(t.items) }

// Less orders the heap worst-first.
func (t *TopK) Less(i, j int) bool { return t.worse(t.items[i], t.items[j]) }

// Swap swaps the elements with indexes i and j.
func (t *TopK) Swap(i, j int) { t.items[i], t.items[j] = t.items[j], t.items[i] }

// Push adds x to the heap. Use Offer instead.
func (t *TopK) Push(x any) { t.items = append(t.items, x.(Candidate)) }

// Pop removes the worst element. Use Sorted instead.
func (t *TopK) Pop() any {
	old := t.items
	n := len(old)
	item := old[n-1]
	t.items = old[:n-1]
	return item
}

// Offer considers a candidate.
func (t *TopK) Offer(pos int, score float32) {
	if t.k == 0 {
		return
	}

	c := Candidate{Pos: pos, Score: score}
	if len(t.items) < t.k {
		heap.Push(t, c)
		return
	}
	if t.worse(t.items[0], c) {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}

// Sorted returns the retained candidates best first.
func (t *TopK) Sorted() []Candidate {
	out := make([]Candidate, len(t.items))
	copy(out, t.items)
	sort.Slice(out, func(i, j int) bool { return t.worse(out[j], out[i]) })
	return out
}

package memq

import "github.com/kiranshivaraju/sketchforge/pkg/models"

// entry is one job held by the scheduler.
type entry struct {
	job   *models.Job
	seq   uint64
	index int
}

// readyHeap orders waiting jobs by priority descending, then creation time
// ascending, then enqueue sequence.
type readyHeap []*entry

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	a, b := h[i].job, h[j].job
	if a.Options.Priority != b.Options.Priority {
		return a.Options.Priority > b.Options.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

package session

import (
	"container/heap"
	"time"
)

// deadlineEntry is one entry in the expiry-ordered heap. The heap is a
// cache of each live session's lease deadline so tick need not scan every
// session; the store record, not the heap, is authoritative.
type deadlineEntry struct {
	sessionID uint64
	deadline  time.Time
	index     int
}

type deadlineHeap []*deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x interface{}) {
	e := x.(*deadlineEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*deadlineHeap)(nil)

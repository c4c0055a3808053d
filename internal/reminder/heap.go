package reminder

// item is a heap entry. index is maintained by the heap so superseded
// triggers can be removed in O(log n).
type item struct {
	trigger Trigger
	seq     uint64
	index   int
}

// triggerHeap implements heap.Interface ordered by FireAt, then admission order.
type triggerHeap []*item

func (h triggerHeap) Len() int { return len(h) }

func (h triggerHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.trigger.FireAt.Equal(b.trigger.FireAt) {
		return a.trigger.FireAt.Before(b.trigger.FireAt)
	}
	return a.seq < b.seq
}

func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *triggerHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

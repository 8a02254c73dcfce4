package nnet

// timerHeap is a container/heap min-heap of *timer ordered by (expiration,
// seq) — the seq tie-break gives a stable, deterministic order among timers
// sharing a microsecond, standing in for the original's incidental
// pointer-address ordering (Open Question (f)). Grounded on the teacher's
// own timedHeap shape: an index-tracking Swap lets heap.Remove run in
// O(log n) for cancellation instead of a linear scan.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].expiration != h[j].expiration {
		return h[i].expiration < h[j].expiration
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

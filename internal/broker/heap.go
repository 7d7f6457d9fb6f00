package broker

// submitHeap orders pendingSubmit entries by (dueMs, seq), giving
// scheduled-time order with insertion order as the tie-break.
type submitHeap []pendingSubmit

func (h submitHeap) Len() int { return len(h) }
func (h submitHeap) Less(i, j int) bool {
	if h[i].dueMs != h[j].dueMs {
		return h[i].dueMs < h[j].dueMs
	}
	return h[i].seq < h[j].seq
}
func (h submitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *submitHeap) Push(x interface{}) { *h = append(*h, x.(pendingSubmit)) }
func (h *submitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// cancelHeap orders pendingCancel entries by (dueMs, seq).
type cancelHeap []pendingCancel

func (h cancelHeap) Len() int { return len(h) }
func (h cancelHeap) Less(i, j int) bool {
	if h[i].dueMs != h[j].dueMs {
		return h[i].dueMs < h[j].dueMs
	}
	return h[i].seq < h[j].seq
}
func (h cancelHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cancelHeap) Push(x interface{}) { *h = append(*h, x.(pendingCancel)) }
func (h *cancelHeap) Pop() interface{} {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

package taskqueue

// taskHeap implements container/heap.Interface over *Task, ordered solely by
// Instruction (so an ADD always surfaces before an UPDATE for the same
// record, a typed enum comparison, never a string tag) and then by insertion
// order. ScheduledAfter is not part of the sort key: it is a separate
// eligibility gate Queue.Get consults on the popped head, not a priority.
// Folding it into Less would let a backed-off ADD get outranked by a
// zero-delay UPDATE for the same record, breaking ADD-before-UPDATE.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Instruction != b.Instruction {
		return a.Instruction < b.Instruction
	}
	return a.seq < b.seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

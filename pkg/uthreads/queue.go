package uthreads

// tidQueue is a FIFO of thread ids.
type tidQueue struct {
	items []int
}

func (q *tidQueue) Push(tid int) {
	q.items = append(q.items, tid)
}

// Pop removes and returns the head of the queue.
func (q *tidQueue) Pop() (int, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	tid := q.items[0]
	q.items = q.items[1:]
	return tid, true
}

// Remove deletes every occurrence of tid, keeping the order of the rest.
func (q *tidQueue) Remove(tid int) bool {
	kept := q.items[:0]
	removed := false
	for _, id := range q.items {
		if id == tid {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	q.items = kept
	return removed
}

func (q *tidQueue) Contains(tid int) bool {
	for _, id := range q.items {
		if id == tid {
			return true
		}
	}
	return false
}

func (q *tidQueue) Len() int { return len(q.items) }

// Snapshot returns a copy of the queue in order.
func (q *tidQueue) Snapshot() []int {
	return append([]int(nil), q.items...)
}

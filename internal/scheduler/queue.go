package scheduler

import "container/heap"

// dueQueue is a min-heap of entries ordered by next due time.
type dueQueue []*entry

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].nextDue.Equal(q[j].nextDue) {
		return q[i].symbol < q[j].symbol
	}
	return q[i].nextDue.Before(q[j].nextDue)
}

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *dueQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

func (q dueQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

var _ heap.Interface = (*dueQueue)(nil)

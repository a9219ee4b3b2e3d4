package core

import (
	"container/heap"
	"sync"
	"time"
)

// Prioritized is implemented by tasks that carry a priority. Higher values
// run first under the default PriorityQueue ordering.
type Prioritized interface {
	Priority() int
}

// PriorityLess orders Prioritized tasks highest first. Tasks that do not
// implement Prioritized have priority 0.
func PriorityLess(a, b Runnable) bool {
	return priorityOf(a) > priorityOf(b)
}

func priorityOf(r Runnable) int {
	if p, ok := r.(Prioritized); ok {
		return p.Priority()
	}
	return 0
}

type priorityItem struct {
	task     Runnable
	sequence uint64 // For stability
	index    int    // For heap
}

// priorityHeap implements heap.Interface
type priorityHeap struct {
	items []*priorityItem
	less  func(a, b Runnable) bool
}

func (h *priorityHeap) Len() int { return len(h.items) }

// Less orders by the configured comparator, then by sequence (FIFO).
func (h *priorityHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if h.less(a.task, b.task) {
		return true
	}
	if h.less(b.task, a.task) {
		return false
	}
	return a.sequence < b.sequence
}

func (h *priorityHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *priorityHeap) Push(x any) {
	item := x.(*priorityItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *priorityHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	h.items = old[0 : n-1]
	return item
}

// PriorityQueue is an unbounded TaskQueue ordered by a comparator, FIFO
// among tasks that compare equal.
type PriorityQueue struct {
	mu           sync.Mutex
	pq           priorityHeap
	nextSequence uint64
	notEmpty     chan struct{}
}

// NewPriorityQueue creates a priority queue. A nil less uses PriorityLess.
func NewPriorityQueue(less func(a, b Runnable) bool) *PriorityQueue {
	if less == nil {
		less = PriorityLess
	}
	return &PriorityQueue{
		pq:       priorityHeap{items: make([]*priorityItem, 0, defaultQueueCap), less: less},
		notEmpty: make(chan struct{}, 1),
	}
}

func (q *PriorityQueue) signal() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

func (q *PriorityQueue) Offer(r Runnable) bool {
	if r == nil {
		return false
	}
	q.mu.Lock()
	heap.Push(&q.pq, &priorityItem{task: r, sequence: q.nextSequence})
	q.nextSequence++
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *PriorityQueue) TryPoll() (Runnable, bool) {
	q.mu.Lock()
	if q.pq.Len() == 0 {
		q.mu.Unlock()
		return nil, false
	}
	item := heap.Pop(&q.pq).(*priorityItem)
	remaining := q.pq.Len()
	q.mu.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return item.task, true
}

func (q *PriorityQueue) Take(interrupt <-chan struct{}) (Runnable, error) {
	return pollBlocking(q.TryPoll, q.notEmpty, 0, false, interrupt)
}

func (q *PriorityQueue) Poll(timeout time.Duration, interrupt <-chan struct{}) (Runnable, error) {
	return pollBlocking(q.TryPoll, q.notEmpty, timeout, true, interrupt)
}

func (q *PriorityQueue) Remove(r Runnable) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.pq.items {
		if item.task == r {
			heap.Remove(&q.pq, item.index)
			return true
		}
	}
	return false
}

func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Len()
}

func (q *PriorityQueue) IsEmpty() bool {
	return q.Len() == 0
}

// DrainAll removes every task, returned in priority order.
func (q *PriorityQueue) DrainAll() []Runnable {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pq.Len() == 0 {
		return nil
	}
	drained := make([]Runnable, 0, q.pq.Len())
	for q.pq.Len() > 0 {
		drained = append(drained, heap.Pop(&q.pq).(*priorityItem).task)
	}
	q.pq.items = make([]*priorityItem, 0, defaultQueueCap)
	return drained
}

// Snapshot returns the queued tasks in heap order without removing them.
func (q *PriorityQueue) Snapshot() []Runnable {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Runnable, len(q.pq.items))
	for i, item := range q.pq.items {
		out[i] = item.task
	}
	return out
}

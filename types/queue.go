package types

import "sync"

// Queue is an ordered, non-blocking hand-off between any number of producers and one consumer.
//
// Producers never wait on the consumer; once Limit items are pending, Push refuses new ones.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int

	wake chan struct{}
}

// NewQueue creates a queue that holds at most limit pending items. A limit of 0 or less means no limit.
func NewQueue[T any](limit int) *Queue[T] {
	return &Queue[T]{
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// Push appends v, and reports false if the queue was full and v was dropped.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return true
}

// Wake fires at least once after every Push. A wakeup can find the queue empty.
func (q *Queue[T]) Wake() <-chan struct{} {
	return q.wake
}

// Drain takes all pending items, in push order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

package transfer

import (
	"container/list"
	"sync"
)

// Queue is an unbounded FIFO. Get blocks until an item arrives or the
// queue is closed.
type Queue[T any] struct {
	items  *list.List
	mutex  *sync.Mutex
	ready  *sync.Cond
	closed bool
}

func NewQueue[T any]() *Queue[T] {
	mutex := &sync.Mutex{}
	return &Queue[T]{items: list.New(), mutex: mutex, ready: sync.NewCond(mutex)}
}

// Add appends v; it reports false once the queue is closed.
func (q *Queue[T]) Add(v T) bool {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		return false
	}
	q.items.PushBack(v)
	q.mutex.Unlock()
	q.ready.Signal()
	return true
}

// Get removes the oldest item. ok is false once the queue is closed;
// items still queued at that point are dropped.
func (q *Queue[T]) Get() (v T, ok bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.ready.Wait()
	}
	if q.closed {
		return v, false
	}
	e := q.items.Front()
	q.items.Remove(e)
	return e.Value.(T), true
}

// Remove drops every queued item matching and returns them.
func (q *Queue[T]) Remove(match func(T) bool) []T {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	var removed []T
	for e := q.items.Front(); e != nil; {
		next := e.Next()
		if v := e.Value.(T); match(v) {
			q.items.Remove(e)
			removed = append(removed, v)
		}
		e = next
	}
	return removed
}

func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.items.Len()
}

// Close wakes every waiting Get.
func (q *Queue[T]) Close() {
	q.mutex.Lock()
	q.closed = true
	q.mutex.Unlock()
	q.ready.Broadcast()
}

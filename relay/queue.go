// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import "sync"

// queue is a concurrency-safe bounded channel whose sends never block.
type queue[T any] struct {
	c      chan T
	mu     sync.RWMutex
	closed bool
}

func newQueue[T any](size int) *queue[T] {
	return &queue[T]{c: make(chan T, size)}
}

// send enqueues the value, returning false if the queue is full or closed.
func (q *queue[T]) send(value T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.c <- value:
		return true
	default:
		return false
	}
}

// recv returns the receive side; it is closed once the queue is closed.
func (q *queue[T]) recv() <-chan T {
	return q.c
}

func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.c)
		q.closed = true
	}
}

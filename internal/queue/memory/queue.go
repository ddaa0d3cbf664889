// Package memory provides the bounded in-memory work queue feeding the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan scanner.ScanRequest
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan scanner.ScanRequest, capacity),
	}
}

// Enqueue pushes a request into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req scanner.ScanRequest) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next request. Once the queue is closed and drained it
// returns scanner.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (scanner.ScanRequest, error) {
	select {
	case <-ctx.Done():
		return scanner.ScanRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return scanner.ScanRequest{}, scanner.ErrQueueClosed
		}
		return req, nil
	}
}

// Close stops accepting work. Items already queued can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

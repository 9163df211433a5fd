// Package dispatch is the hand-off point between the host's calling thread
// and the persistence workers: a fixed-capacity queue whose enqueue never
// blocks and never performs I/O.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/vietddude/geyserpg/internal/core/domain"
	"github.com/vietddude/geyserpg/internal/pipeline/metrics"
)

// Policy selects what happens when the queue is full.
type Policy string

const (
	// DropNewest discards the incoming batch.
	DropNewest Policy = "drop_newest"
	// DropOldest evicts the oldest queued batch to make room.
	DropOldest Policy = "drop_oldest"
)

var (
	// ErrQueueFull is returned when the overflow policy dropped the incoming
	// batch. It is a backpressure signal, never propagated to the host.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrClosed is returned once the queue is shut down.
	ErrClosed = errors.New("dispatch queue closed")
)

// Queue is a bounded multi-producer/multi-consumer batch queue.
type Queue struct {
	ch     chan *domain.Batch
	policy Policy

	mu     sync.Mutex
	closed bool
}

// New creates a queue with the given capacity and overflow policy.
func New(capacity int, policy Policy) *Queue {
	return &Queue{
		ch:     make(chan *domain.Batch, capacity),
		policy: policy,
	}
}

// TryEnqueue offers a batch without blocking. When the queue is full the
// overflow policy applies: DropNewest returns ErrQueueFull and the caller
// owns the rejected batch; DropOldest evicts and returns the displaced batch.
// Either way the producer call returns within a bounded, I/O-free window.
func (q *Queue) TryEnqueue(batch *domain.Batch) (evicted *domain.Batch, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	select {
	case q.ch <- batch:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return nil, nil
	default:
	}

	metrics.QueueDrops.WithLabelValues(string(batch.Kind), string(q.policy)).Inc()

	if q.policy == DropNewest {
		return nil, ErrQueueFull
	}

	// DropOldest: evict one, then retry once. A consumer may have raced us
	// and drained the queue, in which case the send simply succeeds.
	select {
	case evicted = <-q.ch:
	default:
	}
	select {
	case q.ch <- batch:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return evicted, nil
	default:
		// Capacity vanished again only if another producer refilled it
		// within this critical section, which the mutex prevents.
		return evicted, ErrQueueFull
	}
}

// Dequeue blocks until a batch is available, the context is cancelled, or the
// queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Batch, error) {
	select {
	case batch, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops intake. Consumers drain remaining batches and then receive
// ErrClosed. Safe to call once producers have stopped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	return len(q.ch)
}

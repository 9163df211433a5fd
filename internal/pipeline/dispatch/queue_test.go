package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

func newBatch() *domain.Batch {
	b := domain.NewBatch(domain.KindAccount)
	b.Accounts = append(b.Accounts, &domain.AccountUpdate{WriteVersion: 1})
	return b
}

func TestTryEnqueueDequeue(t *testing.T) {
	q := New(4, DropNewest)

	b := newBatch()
	if _, err := q.TryEnqueue(b); err != nil {
		t.Fatalf("TryEnqueue failed: %v", err)
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("dequeued batch %s, want %s", got.ID, b.ID)
	}
}

func TestDropNewestPolicy(t *testing.T) {
	q := New(2, DropNewest)

	first, second := newBatch(), newBatch()
	q.TryEnqueue(first)
	q.TryEnqueue(second)

	rejected := newBatch()
	evicted, err := q.TryEnqueue(rejected)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if evicted != nil {
		t.Errorf("drop-newest must not evict, got batch %s", evicted.ID)
	}

	// Queue contents are untouched.
	got, _ := q.Dequeue(context.Background())
	if got.ID != first.ID {
		t.Errorf("expected first batch preserved, got %s", got.ID)
	}
}

func TestDropOldestPolicy(t *testing.T) {
	q := New(2, DropOldest)

	first, second, third := newBatch(), newBatch(), newBatch()
	q.TryEnqueue(first)
	q.TryEnqueue(second)

	evicted, err := q.TryEnqueue(third)
	if err != nil {
		t.Fatalf("drop-oldest enqueue failed: %v", err)
	}
	if evicted == nil || evicted.ID != first.ID {
		t.Fatalf("expected oldest batch evicted, got %v", evicted)
	}

	got, _ := q.Dequeue(context.Background())
	if got.ID != second.ID {
		t.Errorf("expected second batch at head, got %s", got.ID)
	}
}

func TestProducerNeverBlocks(t *testing.T) {
	// Full queue with no consumer at all: every enqueue must return well
	// within the producer latency bound.
	q := New(1, DropNewest)
	q.TryEnqueue(newBatch())

	const bound = time.Millisecond
	for i := 0; i < 100; i++ {
		start := time.Now()
		_, err := q.TryEnqueue(newBatch())
		elapsed := time.Since(start)
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
		if elapsed > bound {
			t.Fatalf("enqueue %d took %s, bound is %s", i, elapsed, bound)
		}
	}
}

func TestDequeueCancellable(t *testing.T) {
	q := New(1, DropNewest)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after cancellation")
	}
}

func TestCloseDrainsThenErrClosed(t *testing.T) {
	q := New(4, DropNewest)
	b := newBatch()
	q.TryEnqueue(b)
	q.Close()

	if _, err := q.TryEnqueue(newBatch()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on enqueue after close, got %v", err)
	}

	// Queued batch still drains.
	got, err := q.Dequeue(context.Background())
	if err != nil || got.ID != b.ID {
		t.Fatalf("expected queued batch to drain, got %v / %v", got, err)
	}

	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed once drained, got %v", err)
	}
}

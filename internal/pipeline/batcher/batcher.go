// Package batcher groups individual records into bounded batches, closed by
// record count or by age, whichever comes first. Each record kind accumulates
// independently so a burst in one kind cannot delay flushing another.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/geyserpg/internal/core/domain"
	"github.com/vietddude/geyserpg/internal/pipeline/metrics"
)

// Handoff receives each closed batch. It must not block; ownership of the
// batch transfers to the callee.
type Handoff func(*domain.Batch)

type kindAccumulator struct {
	mu   sync.Mutex
	open *domain.Batch
}

// Accumulator owns the open batch per record kind. Push never blocks on
// accumulation: closing a batch only swaps pointers, and the hand-off is
// required to be non-blocking.
type Accumulator struct {
	maxSize int
	maxAge  time.Duration
	handoff Handoff

	kinds map[domain.RecordKind]*kindAccumulator

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates an accumulator flushing into handoff.
func New(maxSize int, maxAge time.Duration, handoff Handoff) *Accumulator {
	a := &Accumulator{
		maxSize: maxSize,
		maxAge:  maxAge,
		handoff: handoff,
		kinds:   make(map[domain.RecordKind]*kindAccumulator, len(domain.Kinds)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, kind := range domain.Kinds {
		a.kinds[kind] = &kindAccumulator{}
	}
	return a
}

// Start runs the age-based flusher until the context is cancelled or Stop is
// called.
func (a *Accumulator) Start(ctx context.Context) {
	interval := a.maxAge / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-ticker.C:
				a.flushAged()
			}
		}
	}()
}

// Stop halts the flusher and closes out any open batches.
func (a *Accumulator) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
	a.Flush()
}

// PushAccount appends an account update to the open account batch.
func (a *Accumulator) PushAccount(update *domain.AccountUpdate) {
	a.push(domain.KindAccount, func(b *domain.Batch) {
		b.Accounts = append(b.Accounts, update)
	})
}

// PushTransaction appends a transaction record to the open transaction batch.
func (a *Accumulator) PushTransaction(record *domain.TransactionRecord) {
	a.push(domain.KindTransaction, func(b *domain.Batch) {
		b.Transactions = append(b.Transactions, record)
	})
}

// PushSlot appends a slot status update to the open slot batch.
func (a *Accumulator) PushSlot(update *domain.SlotStatusUpdate) {
	a.push(domain.KindSlot, func(b *domain.Batch) {
		b.Slots = append(b.Slots, update)
	})
}

// PushTokenAccount appends a token-owner index row to the open token batch.
func (a *Accumulator) PushTokenAccount(row domain.TokenAccountRow) {
	a.push(domain.KindTokenAccount, func(b *domain.Batch) {
		b.TokenAccounts = append(b.TokenAccounts, row)
	})
}

func (a *Accumulator) push(kind domain.RecordKind, add func(*domain.Batch)) {
	acc := a.kinds[kind]

	acc.mu.Lock()
	if acc.open == nil {
		acc.open = domain.NewBatch(kind)
	}
	add(acc.open)

	var closed *domain.Batch
	if acc.open.Len() >= a.maxSize {
		closed = acc.open
		acc.open = nil
	}
	acc.mu.Unlock()

	if closed != nil {
		a.close(closed)
	}
}

// flushAged closes every open batch older than maxAge.
func (a *Accumulator) flushAged() {
	for _, kind := range domain.Kinds {
		acc := a.kinds[kind]

		acc.mu.Lock()
		var closed *domain.Batch
		if acc.open != nil && acc.open.Age() >= a.maxAge {
			closed = acc.open
			acc.open = nil
		}
		acc.mu.Unlock()

		if closed != nil {
			a.close(closed)
		}
	}
}

// Flush closes every open batch regardless of size or age. Used at end of
// startup replay and at shutdown.
func (a *Accumulator) Flush() {
	for _, kind := range domain.Kinds {
		acc := a.kinds[kind]

		acc.mu.Lock()
		closed := acc.open
		acc.open = nil
		acc.mu.Unlock()

		if closed != nil && closed.Len() > 0 {
			a.close(closed)
		}
	}
}

func (a *Accumulator) close(batch *domain.Batch) {
	metrics.BatchSize.WithLabelValues(string(batch.Kind)).Observe(float64(batch.Len()))
	a.handoff(batch)
}

// Package worker runs the persistence workers. Each worker owns one store
// connection and a supervisor that makes retry, backoff, and reconnection an
// explicit, observable state machine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/geyserpg/internal/core/domain"
	"github.com/vietddude/geyserpg/internal/infra/storage"
	"github.com/vietddude/geyserpg/internal/pipeline/metrics"
)

// State is the supervisor's connection state.
type State string

const (
	StateHealthy      State = "healthy"
	StateDegraded     State = "degraded"
	StateReconnecting State = "reconnecting"
	StateFatal        State = "fatal"
)

// ErrFatal is returned once a worker has exceeded its retry budget. The
// worker stops consuming; the pool keeps running with reduced capacity.
var ErrFatal = errors.New("worker exceeded retry budget")

// Drop reasons recorded with dead-lettered batches.
const (
	DropPermanent = "permanent_error"
	DropExhausted = "retry_exhausted"
	DropShutdown  = "shutdown"
	DropOverflow  = "queue_overflow"
)

// DropSink observes every batch the pipeline abandons. Implementations must
// not block for long; recording loss is best effort.
type DropSink interface {
	RecordDrop(ctx context.Context, batch *domain.Batch, reason string, err error)
}

// NopDropSink discards drop notifications.
type NopDropSink struct{}

func (NopDropSink) RecordDrop(context.Context, *domain.Batch, string, error) {}

// RetryPolicy bounds the supervisor's retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Backoff returns the delay before the given retry (0-indexed):
// base * 2^attempt, capped.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BackoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if delay > p.BackoffCap {
		return p.BackoffCap
	}
	return delay
}

// Supervisor wraps one worker's store interaction. State transitions:
// Healthy -> Degraded(attempt) -> Reconnecting -> Healthy, or Fatal once
// MaxAttempts is exceeded.
type Supervisor struct {
	id     string
	store  storage.BatchStore
	policy RetryPolicy
	drops  DropSink

	mu    sync.Mutex
	state State
}

// NewSupervisor creates a supervisor in the Healthy state.
func NewSupervisor(id string, store storage.BatchStore, policy RetryPolicy, drops DropSink) *Supervisor {
	s := &Supervisor{id: id, store: store, policy: policy, drops: drops}
	s.setState(StateHealthy)
	return s
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != "" {
		metrics.WorkerState.WithLabelValues(s.id, string(prev)).Set(0)
	}
	metrics.WorkerState.WithLabelValues(s.id, string(state)).Set(1)
}

// Execute persists the batch, retrying transient failures with exponential
// backoff and recreating the connection after connection-level failures.
// Permanent failures drop the batch immediately. Returns ErrFatal when the
// retry budget is exhausted.
func (s *Supervisor) Execute(ctx context.Context, batch *domain.Batch) error {
	var lastErr error

	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		batch.Attempts++
		start := time.Now()
		err := s.store.WriteBatch(ctx, batch)
		if err == nil {
			metrics.PersistLatency.WithLabelValues(string(batch.Kind)).Observe(time.Since(start).Seconds())
			metrics.PersistedRecords.WithLabelValues(string(batch.Kind)).Add(float64(batch.Len()))
			s.setState(StateHealthy)
			return nil
		}
		lastErr = err

		if storage.IsPermanent(err) {
			slog.Error("Dropping batch on permanent store error",
				"worker", s.id, "batch", batch.ID, "kind", batch.Kind,
				"records", batch.Len(), "error", err)
			metrics.DroppedBatches.WithLabelValues(string(batch.Kind), DropPermanent).Inc()
			s.drops.RecordDrop(ctx, batch, DropPermanent, err)
			s.setState(StateHealthy)
			return err
		}

		s.setState(StateDegraded)
		metrics.RetriesTotal.WithLabelValues(s.id).Inc()
		slog.Warn("Transient store error, will retry",
			"worker", s.id, "batch", batch.ID, "attempt", batch.Attempts,
			"max_attempts", s.policy.MaxAttempts, "error", err)

		if attempt == s.policy.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			// Shutdown grace expired mid-retry; the in-flight batch is lost
			// and must be accounted for like any other drop.
			metrics.DroppedBatches.WithLabelValues(string(batch.Kind), DropShutdown).Inc()
			s.drops.RecordDrop(ctx, batch, DropShutdown, lastErr)
			slog.Warn("Dropping in-flight batch, cancelled during backoff",
				"worker", s.id, "batch", batch.ID, "kind", batch.Kind,
				"records", batch.Len(), "attempts", batch.Attempts, "error", lastErr)
			return ctx.Err()
		case <-time.After(s.policy.Backoff(attempt)):
		}

		if storage.IsConnectionLost(err) {
			s.setState(StateReconnecting)
			metrics.ReconnectsTotal.WithLabelValues(s.id).Inc()
			if rerr := s.store.Reconnect(ctx); rerr != nil {
				slog.Warn("Reconnect failed", "worker", s.id, "error", rerr)
				// The failed reconnect consumes this retry; the next loop
				// iteration backs off again before another attempt.
			}
		}
	}

	s.setState(StateFatal)
	metrics.FatalWorkers.Inc()
	metrics.DroppedBatches.WithLabelValues(string(batch.Kind), DropExhausted).Inc()
	s.drops.RecordDrop(ctx, batch, DropExhausted, lastErr)
	slog.Error("Worker exceeded retry budget, going fatal",
		"worker", s.id, "batch", batch.ID, "attempts", batch.Attempts, "error", lastErr)
	return fmt.Errorf("%w: %v", ErrFatal, lastErr)
}

package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/geyserpg/internal/core/domain"
	redisclient "github.com/vietddude/geyserpg/internal/infra/redis"
	"github.com/vietddude/geyserpg/internal/pipeline/batcher"
	"github.com/vietddude/geyserpg/internal/pipeline/dedup"
	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
	"github.com/vietddude/geyserpg/internal/pipeline/metrics"
	"github.com/vietddude/geyserpg/internal/pipeline/worker"
)

// releaseSink receives records whose slot is safe to persist and feeds them
// into the per-kind accumulators. Write-version dedup runs here, after the
// fork is resolved, so a stale version buffered on a dead fork never shadows
// the surviving write.
type releaseSink struct {
	cache *dedup.WriteVersionCache
	acc   *batcher.Accumulator
}

func (s *releaseSink) ReleaseAccount(update *domain.AccountUpdate) {
	if !s.cache.Accept(update.Pubkey, update.WriteVersion) {
		metrics.DedupDiscards.Inc()
		return
	}
	s.acc.PushAccount(update)
	if update.IsTokenAccount() {
		s.acc.PushTokenAccount(update.TokenRow())
	}
}

func (s *releaseSink) ReleaseTransaction(record *domain.TransactionRecord) {
	s.acc.PushTransaction(record)
}

// queueHandoff adapts the dispatch queue to the accumulator's hand-off
// contract: it never blocks, and it owns the drop accounting when the queue
// is full or already closed.
type queueHandoff struct {
	queue *dispatch.Queue
	drops *dropRecorder
	log   *slog.Logger
}

func (h *queueHandoff) handoff(batch *domain.Batch) {
	evicted, err := h.queue.TryEnqueue(batch)
	if evicted != nil {
		h.drop(evicted, worker.DropOverflow)
	}
	switch {
	case errors.Is(err, dispatch.ErrClosed):
		h.drop(batch, worker.DropShutdown)
	case err != nil:
		h.drop(batch, worker.DropOverflow)
	}
	metrics.QueueDepth.Set(float64(h.queue.Len()))
}

func (h *queueHandoff) drop(batch *domain.Batch, reason string) {
	metrics.DroppedBatches.WithLabelValues(string(batch.Kind), reason).Inc()
	h.log.Warn("Dropping batch",
		"batch_id", batch.ID, "kind", batch.Kind, "records", batch.Len(), "reason", reason)
	h.drops.record(batch, reason, nil)
}

// deadLetterWriter is the slice of the Redis sink the recorder needs.
type deadLetterWriter interface {
	Record(ctx context.Context, dl *redisclient.DeadLetter) error
}

// deadLetterBuffer bounds entries waiting for the background writer. Drops
// beyond it keep their log line and metric but lose the Redis record.
const deadLetterBuffer = 256

// dropRecorder funnels every abandoned batch to the dead-letter sink when
// Redis is configured, and always to the log. The host's calling thread can
// trigger a drop (a size-closed batch meeting a full queue), so record hands
// the entry to a background writer and returns without touching the network;
// worker and shutdown paths use recordSync and wait for the write.
type dropRecorder struct {
	sink deadLetterWriter
	log  *slog.Logger

	pending chan *redisclient.DeadLetter
	wg      sync.WaitGroup
}

func newDropRecorder(sink deadLetterWriter, log *slog.Logger) *dropRecorder {
	r := &dropRecorder{sink: sink, log: log}
	if sink != nil {
		r.pending = make(chan *redisclient.DeadLetter, deadLetterBuffer)
		r.wg.Add(1)
		go r.writeLoop()
	}
	return r
}

func newDeadLetter(batch *domain.Batch, reason string, cause error) *redisclient.DeadLetter {
	dl := &redisclient.DeadLetter{
		BatchID:   batch.ID,
		Kind:      batch.Kind,
		Records:   batch.Len(),
		Attempts:  batch.Attempts,
		Reason:    reason,
		DroppedAt: time.Now(),
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	return dl
}

// record queues the dead letter for the background writer. Never blocks.
func (r *dropRecorder) record(batch *domain.Batch, reason string, cause error) {
	if r.sink == nil {
		return
	}
	select {
	case r.pending <- newDeadLetter(batch, reason, cause):
	default:
		metrics.DeadLetterOverflow.Inc()
		r.log.Warn("Dead-letter buffer full, loss event logged only",
			"batch_id", batch.ID, "kind", batch.Kind, "reason", reason)
	}
}

// recordSync writes the dead letter before returning. Only for callers off
// the host's calling thread.
func (r *dropRecorder) recordSync(batch *domain.Batch, reason string, cause error) {
	if r.sink == nil {
		return
	}
	r.write(newDeadLetter(batch, reason, cause))
}

// RecordDrop implements the worker pool's drop sink.
func (r *dropRecorder) RecordDrop(_ context.Context, batch *domain.Batch, reason string, cause error) {
	r.recordSync(batch, reason, cause)
}

func (r *dropRecorder) writeLoop() {
	defer r.wg.Done()
	for dl := range r.pending {
		r.write(dl)
	}
}

func (r *dropRecorder) write(dl *redisclient.DeadLetter) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.sink.Record(ctx, dl); err != nil {
		r.log.Warn("Failed to record dead letter", "batch_id", dl.BatchID, "error", err)
	}
}

// close flushes pending entries and stops the background writer.
func (r *dropRecorder) close() {
	if r.pending != nil {
		close(r.pending)
		r.wg.Wait()
	}
}

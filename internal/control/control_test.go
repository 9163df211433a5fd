package control

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/geyserpg/internal/core/domain"
	redisclient "github.com/vietddude/geyserpg/internal/infra/redis"
	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
	"github.com/vietddude/geyserpg/internal/pipeline/worker"
)

// stallingSink never answers until released, like a Redis that accepted the
// connection and went silent.
type stallingSink struct {
	release chan struct{}
}

func (s *stallingSink) Record(ctx context.Context, _ *redisclient.DeadLetter) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type captureSink struct {
	mu      sync.Mutex
	letters []*redisclient.DeadLetter
}

func (s *captureSink) Record(_ context.Context, dl *redisclient.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, dl)
	return nil
}

func (s *captureSink) all() []*redisclient.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*redisclient.DeadLetter(nil), s.letters...)
}

func TestDropRecordingNeverBlocksCaller(t *testing.T) {
	sink := &stallingSink{release: make(chan struct{})}
	r := newDropRecorder(sink, slog.Default())
	defer func() {
		close(sink.release)
		r.close()
	}()

	batch := domain.NewBatch(domain.KindAccount)
	start := time.Now()
	for i := 0; i < deadLetterBuffer+16; i++ {
		r.record(batch, worker.DropOverflow, nil)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("recording %d drops took %s with the sink stalled; record must not wait on Redis",
			deadLetterBuffer+16, elapsed)
	}
}

func TestDropRecordingReachesSink(t *testing.T) {
	sink := &captureSink{}
	r := newDropRecorder(sink, slog.Default())

	batch := domain.NewBatch(domain.KindSlot)
	r.record(batch, worker.DropOverflow, nil)
	r.close()

	letters := sink.all()
	if len(letters) != 1 {
		t.Fatalf("recorded %d dead letters, want 1", len(letters))
	}
	if letters[0].BatchID != batch.ID || letters[0].Reason != worker.DropOverflow {
		t.Fatalf("dead letter = %+v, want batch %s reason %s", letters[0], batch.ID, worker.DropOverflow)
	}
}

func TestHandoffDistinguishesShutdownFromOverflow(t *testing.T) {
	sink := &captureSink{}
	r := newDropRecorder(sink, slog.Default())

	queue := dispatch.New(1, dispatch.DropNewest)
	h := &queueHandoff{queue: queue, drops: r, log: slog.Default()}

	h.handoff(domain.NewBatch(domain.KindAccount))
	h.handoff(domain.NewBatch(domain.KindAccount)) // queue full
	queue.Close()
	h.handoff(domain.NewBatch(domain.KindAccount)) // queue closed
	r.close()

	letters := sink.all()
	if len(letters) != 2 {
		t.Fatalf("recorded %d dead letters, want 2", len(letters))
	}
	if letters[0].Reason != worker.DropOverflow {
		t.Errorf("full-queue drop recorded as %q, want %q", letters[0].Reason, worker.DropOverflow)
	}
	if letters[1].Reason != worker.DropShutdown {
		t.Errorf("closed-queue drop recorded as %q, want %q", letters[1].Reason, worker.DropShutdown)
	}
}

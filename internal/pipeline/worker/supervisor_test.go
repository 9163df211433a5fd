package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/geyserpg/internal/core/domain"
	"github.com/vietddude/geyserpg/internal/infra/storage"
	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
)

// stubStore scripts WriteBatch outcomes: each call consumes the next error
// from the script; nil means success. An exhausted script always succeeds.
type stubStore struct {
	mu         sync.Mutex
	script     []error
	written    []*domain.Batch
	reconnects int
}

func (s *stubStore) WriteBatch(ctx context.Context, batch *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) > 0 {
		err := s.script[0]
		s.script = s.script[1:]
		if err != nil {
			return err
		}
	}
	s.written = append(s.written, batch)
	return nil
}

func (s *stubStore) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) writtenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

type captureDrops struct {
	mu      sync.Mutex
	reasons []string
}

func (c *captureDrops) RecordDrop(_ context.Context, _ *domain.Batch, reason string, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffCap: 4 * time.Millisecond}
}

func transient() error {
	return &storage.TransientError{Err: errors.New("timeout")}
}

func connLost() error {
	return &storage.TransientError{Err: errors.New("connection reset"), ConnectionLost: true}
}

func permanent() error {
	return &storage.PermanentError{Err: errors.New("constraint violation")}
}

func TestBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BackoffBase: 100 * time.Millisecond, BackoffCap: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{9, time.Second},
	}
	for _, tt := range tests {
		if got := policy.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestExecuteSuccess(t *testing.T) {
	store := &stubStore{}
	sup := NewSupervisor("w", store, fastPolicy(), NopDropSink{})

	batch := domain.NewBatch(domain.KindAccount)
	if err := sup.Execute(context.Background(), batch); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sup.State() != StateHealthy {
		t.Errorf("state = %s, want healthy", sup.State())
	}
	if batch.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", batch.Attempts)
	}
}

func TestExecuteRetriesTransient(t *testing.T) {
	store := &stubStore{script: []error{transient(), nil}}
	sup := NewSupervisor("w", store, fastPolicy(), NopDropSink{})

	batch := domain.NewBatch(domain.KindTransaction)
	if err := sup.Execute(context.Background(), batch); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if batch.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", batch.Attempts)
	}
	if store.writtenCount() != 1 {
		t.Errorf("written = %d, want exactly 1 (no double apply)", store.writtenCount())
	}
	if sup.State() != StateHealthy {
		t.Errorf("state = %s, want healthy after recovery", sup.State())
	}
}

func TestExecuteReconnectsOnConnectionLoss(t *testing.T) {
	store := &stubStore{script: []error{connLost(), nil}}
	sup := NewSupervisor("w", store, fastPolicy(), NopDropSink{})

	batch := domain.NewBatch(domain.KindAccount)
	if err := sup.Execute(context.Background(), batch); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if store.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", store.reconnects)
	}
	if store.writtenCount() != 1 {
		t.Errorf("written = %d, want exactly 1", store.writtenCount())
	}
}

func TestExecuteDropsPermanentImmediately(t *testing.T) {
	store := &stubStore{script: []error{permanent()}}
	drops := &captureDrops{}
	sup := NewSupervisor("w", store, fastPolicy(), drops)

	batch := domain.NewBatch(domain.KindAccount)
	err := sup.Execute(context.Background(), batch)
	if !storage.IsPermanent(err) {
		t.Fatalf("expected permanent error returned, got %v", err)
	}
	if batch.Attempts != 1 {
		t.Errorf("attempts = %d, permanent errors must not be retried", batch.Attempts)
	}
	if len(drops.reasons) != 1 || drops.reasons[0] != DropPermanent {
		t.Errorf("drops = %v, want [%s]", drops.reasons, DropPermanent)
	}
	if sup.State() != StateHealthy {
		t.Errorf("state = %s, a dropped batch is not a connection problem", sup.State())
	}
}

func TestExecuteFatalAfterBudget(t *testing.T) {
	store := &stubStore{script: []error{transient(), transient(), transient()}}
	drops := &captureDrops{}
	sup := NewSupervisor("w", store, fastPolicy(), drops)

	batch := domain.NewBatch(domain.KindSlot)
	err := sup.Execute(context.Background(), batch)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if sup.State() != StateFatal {
		t.Errorf("state = %s, want fatal", sup.State())
	}
	if batch.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", batch.Attempts)
	}
	if len(drops.reasons) != 1 || drops.reasons[0] != DropExhausted {
		t.Errorf("drops = %v, want [%s]", drops.reasons, DropExhausted)
	}
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	store := &stubStore{script: []error{transient(), transient(), transient()}}
	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Hour, BackoffCap: time.Hour}
	drops := &captureDrops{}
	sup := NewSupervisor("w", store, policy, drops)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := sup.Execute(ctx, domain.NewBatch(domain.KindAccount))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	// The in-flight batch does not vanish silently.
	if len(drops.reasons) != 1 || drops.reasons[0] != DropShutdown {
		t.Errorf("drops = %v, want [%s]", drops.reasons, DropShutdown)
	}
}

// scriptedFactory builds stores whose first write fails per worker index.
func scriptedFactory(stores *[]*stubStore, mu *sync.Mutex, scripts map[int][]error) storage.StoreFactory {
	return func(ctx context.Context) (storage.BatchStore, error) {
		mu.Lock()
		defer mu.Unlock()
		idx := len(*stores)
		s := &stubStore{script: scripts[idx]}
		*stores = append(*stores, s)
		return s, nil
	}
}

func TestPoolProcessesAllBatches(t *testing.T) {
	var stores []*stubStore
	var mu sync.Mutex

	queue := dispatch.New(64, dispatch.DropNewest)
	pool := NewPool(3, queue, scriptedFactory(&stores, &mu, nil), fastPolicy(), nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}

	const batches = 20
	for i := 0; i < batches; i++ {
		if _, err := queue.TryEnqueue(domain.NewBatch(domain.KindAccount)); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	queue.Close()
	if !pool.Drain(5 * time.Second) {
		t.Fatal("drain timed out")
	}

	mu.Lock()
	total := 0
	for _, s := range stores {
		total += s.writtenCount()
	}
	mu.Unlock()
	if total != batches {
		t.Errorf("written %d batches, want %d", total, batches)
	}
}

func TestPoolDegradesOnFatalWorker(t *testing.T) {
	var stores []*stubStore
	var mu sync.Mutex

	// Worker 0's store always fails; it must go fatal while worker 1
	// keeps the pipeline alive.
	alwaysFail := make([]error, 64)
	for i := range alwaysFail {
		alwaysFail[i] = transient()
	}
	scripts := map[int][]error{0: alwaysFail}

	queue := dispatch.New(64, dispatch.DropNewest)
	pool := NewPool(2, queue, scriptedFactory(&stores, &mu, scripts), fastPolicy(), nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool start failed: %v", err)
	}

	const batches = 10
	for i := 0; i < batches; i++ {
		queue.TryEnqueue(domain.NewBatch(domain.KindAccount))
	}

	queue.Close()
	if !pool.Drain(5 * time.Second) {
		t.Fatal("drain timed out")
	}

	if pool.FatalCount() != 1 {
		t.Errorf("fatal workers = %d, want 1", pool.FatalCount())
	}

	mu.Lock()
	total := 0
	for _, s := range stores {
		total += s.writtenCount()
	}
	mu.Unlock()
	// The fatal worker loses at most the one batch it was executing.
	if total < batches-1 {
		t.Errorf("written %d batches, want at least %d", total, batches-1)
	}
}

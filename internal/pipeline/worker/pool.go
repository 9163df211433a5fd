package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/geyserpg/internal/infra/storage"
	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
)

// Pool runs N independent persistence workers. Each worker binds to one store
// connection for its entire lifetime; ordering is guaranteed only by the
// upstream write-version and slot gating, never across workers.
type Pool struct {
	queue   *dispatch.Queue
	factory storage.StoreFactory
	policy  RetryPolicy
	drops   DropSink
	count   int

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	supervisors []*Supervisor
	stores      []storage.BatchStore
}

// NewPool creates a pool of count workers consuming from queue.
func NewPool(count int, queue *dispatch.Queue, factory storage.StoreFactory, policy RetryPolicy, drops DropSink) *Pool {
	if drops == nil {
		drops = NopDropSink{}
	}
	return &Pool{
		queue:   queue,
		factory: factory,
		policy:  policy,
		drops:   drops,
		count:   count,
	}
}

// Start opens one store connection per worker and launches the worker loops.
// Any connection failure aborts the start, so a misconfigured store fails
// plugin load instead of degrading silently.
func (p *Pool) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.count; i++ {
		store, err := p.factory(runCtx)
		if err != nil {
			cancel()
			p.closeStores()
			return fmt.Errorf("worker %d: failed to open store: %w", i, err)
		}

		id := fmt.Sprintf("worker_%02d", i)
		sup := NewSupervisor(id, store, p.policy, p.drops)

		p.mu.Lock()
		p.stores = append(p.stores, store)
		p.supervisors = append(p.supervisors, sup)
		p.mu.Unlock()

		p.wg.Add(1)
		go p.run(runCtx, id, sup)
	}

	slog.Info("Worker pool started", "workers", p.count)
	return nil
}

func (p *Pool) run(ctx context.Context, id string, sup *Supervisor) {
	defer p.wg.Done()

	for {
		batch, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, dispatch.ErrClosed) {
				slog.Debug("Queue closed, worker exiting", "worker", id)
			}
			return
		}

		if err := sup.Execute(ctx, batch); errors.Is(err, ErrFatal) {
			// Stop consuming; remaining workers carry the load.
			return
		}
	}
}

// Drain waits up to grace for the workers to finish the queued and in-flight
// batches after the queue has been closed, then cancels them. Returns false
// if the grace period expired.
func (p *Pool) Drain(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.shutdown()
		return true
	case <-time.After(grace):
		slog.Warn("Shutdown grace period expired, interrupting workers", "grace", grace)
		p.shutdown()
		p.wg.Wait()
		return false
	}
}

func (p *Pool) shutdown() {
	if p.cancel != nil {
		p.cancel()
	}
	p.closeStores()
}

func (p *Pool) closeStores() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stores {
		_ = s.Close()
	}
	p.stores = nil
}

// States reports each worker's supervisor state, for health checks.
func (p *Pool) States() map[string]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make(map[string]State, len(p.supervisors))
	for i, sup := range p.supervisors {
		states[fmt.Sprintf("worker_%02d", i)] = sup.State()
	}
	return states
}

// FatalCount returns the number of workers that stopped after exhausting
// their retry budget.
func (p *Pool) FatalCount() int {
	count := 0
	for _, state := range p.States() {
		if state == StateFatal {
			count++
		}
	}
	return count
}

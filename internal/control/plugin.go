// Package control is the plugin core: it implements the host lifecycle
// callbacks and wires them to the ingestion pipeline. The host calls in on
// its execution path; nothing here may block on I/O or return runtime errors
// to the host after a successful load.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/geyserpg/internal/core/config"
	"github.com/vietddude/geyserpg/internal/core/domain"
	coreworker "github.com/vietddude/geyserpg/internal/core/worker"
	redisclient "github.com/vietddude/geyserpg/internal/infra/redis"
	"github.com/vietddude/geyserpg/internal/infra/storage/postgres"
	"github.com/vietddude/geyserpg/internal/pipeline/batcher"
	"github.com/vietddude/geyserpg/internal/pipeline/dedup"
	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
	"github.com/vietddude/geyserpg/internal/pipeline/health"
	"github.com/vietddude/geyserpg/internal/pipeline/metrics"
	"github.com/vietddude/geyserpg/internal/pipeline/selector"
	"github.com/vietddude/geyserpg/internal/pipeline/tracker"
	"github.com/vietddude/geyserpg/internal/pipeline/worker"
)

// ABIVersion is the host plugin interface version this build speaks. A host
// reporting a different version fails OnLoad instead of degrading silently.
const ABIVersion = 1

// ConfigError is returned from OnLoad for configuration or version problems.
// It is the only error surface exposed to the host.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Plugin is the ingestion pipeline behind the host callbacks. Zero value is
// unloaded; OnLoad builds and starts everything, OnUnload tears it down.
type Plugin struct {
	cfg config.AppConfig
	log *slog.Logger

	selector *selector.AccountSelector
	tracker  *tracker.Tracker
	acc      *batcher.Accumulator
	queue    *dispatch.Queue
	pool     *worker.Pool

	healthServer *health.Server
	redisClient  *redisclient.Client
	pruner       *coreworker.Pruner
	drops        *dropRecorder

	cancel context.CancelFunc

	mu           sync.Mutex
	loaded       bool
	startupDone  bool
	startupSlots map[uint64]struct{}
}

// NewPlugin returns an unloaded plugin.
func NewPlugin() *Plugin {
	return &Plugin{
		log:          slog.Default(),
		startupSlots: make(map[uint64]struct{}),
	}
}

// OnLoad validates the host version and configuration, runs migrations,
// connects one store per worker, and starts the pipeline. Any failure leaves
// the plugin unloaded; the host must treat it as a load error.
func (p *Plugin) OnLoad(ctx context.Context, hostABIVersion int, cfg config.AppConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return &ConfigError{Msg: "plugin already loaded"}
	}
	if hostABIVersion != ABIVersion {
		return &ConfigError{Msg: fmt.Sprintf("host ABI version %d, plugin speaks %d", hostABIVersion, ABIVersion)}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Msg: "invalid configuration", Err: err}
	}
	p.cfg = cfg

	if err := postgres.Migrate(ctx, cfg.Database); err != nil {
		return &ConfigError{Msg: "failed to migrate database", Err: err}
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			p.log.Warn("Failed to connect to Redis, dead-letter recording disabled", "error", err)
		} else {
			p.redisClient = client
		}
	}
	if p.redisClient != nil {
		p.drops = newDropRecorder(redisclient.NewDeadLetterSink(p.redisClient), p.log)
	} else {
		p.drops = newDropRecorder(nil, p.log)
	}

	p.selector = selector.New(cfg.Selector.Accounts, cfg.Selector.Owners)
	p.queue = dispatch.New(cfg.Pipeline.QueueCapacity, cfg.Pipeline.OverflowPolicy)

	handoff := &queueHandoff{
		queue: p.queue,
		drops: p.drops,
		log:   p.log,
	}
	p.acc = batcher.New(cfg.Pipeline.BatchMaxSize, cfg.Pipeline.BatchMaxAge, handoff.handoff)
	p.tracker = tracker.New(&releaseSink{
		cache: dedup.NewWriteVersionCache(),
		acc:   p.acc,
	})

	p.pool = worker.NewPool(
		cfg.Pipeline.WorkerCount,
		p.queue,
		postgres.Factory(cfg.Database),
		worker.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BackoffBase: cfg.Retry.BackoffBase,
			BackoffCap:  cfg.Retry.BackoffCap,
		},
		p.drops,
	)

	runCtx, cancel := context.WithCancel(context.Background())
	if err := p.pool.Start(runCtx); err != nil {
		cancel()
		p.closeRedis()
		return &ConfigError{Msg: "failed to start worker pool", Err: err}
	}
	p.acc.Start(runCtx)
	p.cancel = cancel

	if cfg.Retention.Period > 0 {
		db, err := postgres.Open(runCtx, cfg.Database)
		if err != nil {
			p.log.Warn("Failed to open retention connection, pruning disabled", "error", err)
		} else {
			p.pruner = coreworker.NewPruner(cfg.Retention, db)
			go p.pruner.Start(runCtx)
		}
	}

	monitor := health.NewMonitor(p.pool, p.queue, p.tracker, cfg.Pipeline.QueueCapacity)
	p.healthServer = health.NewServer(monitor, cfg.Server.Port)
	go func() {
		if err := p.healthServer.Start(); err != nil {
			p.log.Error("Health server failed", "error", err)
		}
	}()

	p.loaded = true
	selAccounts, selOwners := p.selector.Size()
	p.log.Info("Plugin loaded",
		"workers", cfg.Pipeline.WorkerCount,
		"queue_capacity", cfg.Pipeline.QueueCapacity,
		"overflow_policy", cfg.Pipeline.OverflowPolicy,
		"select_all", p.selector.SelectAll(),
		"selector_accounts", selAccounts,
		"selector_owners", selOwners)
	return nil
}

// OnUnload drains and stops the pipeline: intake closes, open batches flush,
// workers get the configured grace period, and anything still queued after
// that is dead-lettered.
func (p *Plugin) OnUnload() {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return
	}
	p.loaded = false
	p.mu.Unlock()

	p.log.Info("Plugin unloading")

	p.acc.Stop()
	p.acc.Flush()
	p.queue.Close()

	if !p.pool.Drain(p.cfg.Pipeline.ShutdownGrace) {
		p.log.Warn("Shutdown grace expired with batches in flight")
	}
	p.drainLeftovers()
	p.cancel()
	p.drops.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.healthServer.Stop(ctx); err != nil {
		p.log.Warn("Failed to stop health server", "error", err)
	}
	if p.pruner != nil {
		_ = p.pruner.Close()
	}
	p.closeRedis()
	p.log.Info("Plugin unloaded")
}

// UpdateAccount accepts one account write from the host. Never blocks.
func (p *Plugin) UpdateAccount(update *domain.AccountUpdate) {
	if !p.isLoaded() {
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(domain.KindAccount)).Inc()
	if !p.selector.Selects(update) {
		metrics.SelectorDiscards.Inc()
		return
	}
	p.tracker.AddAccount(update)
}

// NotifyTransaction accepts one confirmed transaction from the host.
func (p *Plugin) NotifyTransaction(record *domain.TransactionRecord) {
	if !p.isLoaded() {
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(domain.KindTransaction)).Inc()
	p.tracker.AddTransaction(record)
}

// UpdateSlotStatus accepts a slot lifecycle event. The update is persisted
// as a slot row and drives the tracker's release/purge decisions. Slots seen
// during startup are held back and written as rooted at end of startup, the
// way snapshot restore reports them.
func (p *Plugin) UpdateSlotStatus(update *domain.SlotStatusUpdate) {
	if !p.isLoaded() {
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(domain.KindSlot)).Inc()

	p.mu.Lock()
	started := p.startupDone
	if !started {
		p.startupSlots[update.Slot] = struct{}{}
	}
	p.mu.Unlock()
	if !started {
		return
	}

	p.acc.PushSlot(update)
	p.tracker.Observe(update)
}

// NotifyEndOfStartup marks the end of snapshot restore: every slot observed
// during startup is recorded as rooted and all open batches are flushed.
func (p *Plugin) NotifyEndOfStartup() {
	if !p.isLoaded() {
		return
	}

	p.mu.Lock()
	if p.startupDone {
		p.mu.Unlock()
		return
	}
	p.startupDone = true
	slots := make([]uint64, 0, len(p.startupSlots))
	for s := range p.startupSlots {
		slots = append(slots, s)
	}
	p.startupSlots = nil
	p.mu.Unlock()

	for _, s := range slots {
		update := &domain.SlotStatusUpdate{Slot: s, Status: domain.SlotRooted}
		p.acc.PushSlot(update)
		p.tracker.Observe(update)
	}
	p.acc.Flush()
	p.log.Info("End of startup", "startup_slots", len(slots))
}

func (p *Plugin) isLoaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *Plugin) closeRedis() {
	if p.redisClient == nil {
		return
	}
	if err := p.redisClient.Close(); err != nil {
		p.log.Warn("Failed to close Redis", "error", err)
	}
	p.redisClient = nil
}

// drainLeftovers dead-letters batches still queued after the grace period.
func (p *Plugin) drainLeftovers() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		batch, err := p.queue.Dequeue(ctx)
		cancel()
		if err != nil || batch == nil {
			return
		}
		metrics.DroppedBatches.WithLabelValues(string(batch.Kind), worker.DropShutdown).Inc()
		p.log.Warn("Dropping unpersisted batch at shutdown",
			"batch_id", batch.ID, "kind", batch.Kind, "records", batch.Len())
		p.drops.recordSync(batch, worker.DropShutdown, nil)
	}
}

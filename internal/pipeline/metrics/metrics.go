package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal tracks host callbacks received, per kind
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geyserpg_notifications_total",
			Help: "Total number of host notifications received",
		},
		[]string{"kind"},
	)

	// DedupDiscards tracks account updates dropped by the write-version cache
	DedupDiscards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geyserpg_dedup_discards_total",
			Help: "Account updates discarded as stale by write-version dedup",
		},
	)

	// SelectorDiscards tracks account updates outside the configured selector
	SelectorDiscards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geyserpg_selector_discards_total",
			Help: "Account updates discarded by the account selector",
		},
	)

	// DeadSlotPurges tracks records purged because their slot went dead
	DeadSlotPurges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geyserpg_dead_slot_purges_total",
			Help: "Buffered records purged because their slot was abandoned",
		},
	)

	// QueueDepth tracks batches waiting in the dispatch queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geyserpg_queue_depth",
			Help: "Batches currently waiting in the dispatch queue",
		},
	)

	// QueueDrops tracks batches dropped by the overflow policy
	QueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geyserpg_queue_drops_total",
			Help: "Batches dropped by the dispatch queue overflow policy",
		},
		[]string{"kind", "policy"},
	)

	// BatchSize observes closed batch sizes per kind
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geyserpg_batch_size",
			Help:    "Records per closed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"kind"},
	)

	// PersistLatency observes store transaction latency per kind
	PersistLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geyserpg_persist_latency_seconds",
			Help:    "Store transaction latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// PersistedRecords tracks records durably committed, per kind
	PersistedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geyserpg_persisted_records_total",
			Help: "Records durably committed to the store",
		},
		[]string{"kind"},
	)

	// RetriesTotal tracks batch retries per worker
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geyserpg_retries_total",
			Help: "Batch store retries",
		},
		[]string{"worker"},
	)

	// ReconnectsTotal tracks connection recreations per worker
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geyserpg_reconnects_total",
			Help: "Store connection recreations",
		},
		[]string{"worker"},
	)

	// DroppedBatches tracks batches abandoned after a permanent error or an
	// exhausted retry budget
	DroppedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geyserpg_dropped_batches_total",
			Help: "Batches dropped without being persisted",
		},
		[]string{"kind", "reason"},
	)

	// DeadLetterOverflow tracks drop events whose dead-letter record was
	// skipped because the recording buffer was full
	DeadLetterOverflow = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geyserpg_dead_letter_overflow_total",
			Help: "Drop events logged but not dead-lettered, recording buffer full",
		},
	)

	// WorkerState tracks each worker's supervisor state (1 = current state)
	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geyserpg_worker_state",
			Help: "Supervisor state per worker (healthy/degraded/reconnecting/fatal)",
		},
		[]string{"worker", "state"},
	)

	// FatalWorkers tracks workers that exhausted their retry budget and stopped
	FatalWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geyserpg_fatal_workers",
			Help: "Workers stopped after exceeding the retry budget",
		},
	)
)

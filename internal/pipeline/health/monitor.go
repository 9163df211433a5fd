package health

import (
	"sort"

	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
	"github.com/vietddude/geyserpg/internal/pipeline/tracker"
	"github.com/vietddude/geyserpg/internal/pipeline/worker"
)

// Monitor aggregates pipeline component state into a health report.
type Monitor struct {
	pool          *worker.Pool
	queue         *dispatch.Queue
	tracker       *tracker.Tracker
	queueCapacity int
}

// NewMonitor creates a health monitor over the running pipeline.
func NewMonitor(pool *worker.Pool, queue *dispatch.Queue, trk *tracker.Tracker, queueCapacity int) *Monitor {
	return &Monitor{
		pool:          pool,
		queue:         queue,
		tracker:       trk,
		queueCapacity: queueCapacity,
	}
}

// CheckHealth builds a point-in-time report. The system is critical when
// every worker is fatal, degraded when any worker is not healthy or the
// queue is over three quarters full.
func (m *Monitor) CheckHealth() PipelineReport {
	states := m.pool.States()
	workers := make([]WorkerHealth, 0, len(states))
	for name, state := range states {
		workers = append(workers, WorkerHealth{Worker: name, State: string(state)})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].Worker < workers[j].Worker })

	fatal := m.pool.FatalCount()
	depth := m.queue.Len()

	status := StatusHealthy
	if fatal > 0 || depth*4 > m.queueCapacity*3 {
		status = StatusDegraded
	}
	for _, w := range workers {
		if w.State != string(worker.StateHealthy) && status == StatusHealthy {
			status = StatusDegraded
		}
	}
	if len(workers) > 0 && fatal == len(workers) {
		status = StatusCritical
	}

	return PipelineReport{
		SystemStatus:  status,
		QueueDepth:    depth,
		QueueCapacity: m.queueCapacity,
		BufferedRows:  m.tracker.Buffered(),
		FatalWorkers:  fatal,
		Workers:       workers,
	}
}

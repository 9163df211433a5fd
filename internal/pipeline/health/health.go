// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// WorkerHealth contains health metrics for a single store worker.
type WorkerHealth struct {
	Worker string `json:"worker"`
	State  string `json:"state"`
}

// PipelineReport contains the full pipeline health report.
type PipelineReport struct {
	SystemStatus  SystemStatus   `json:"system_status"`
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	BufferedRows  int            `json:"buffered_rows"`
	FatalWorkers  int            `json:"fatal_workers"`
	Workers       []WorkerHealth `json:"workers"`
}

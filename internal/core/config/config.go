package config

import (
	"fmt"
	"time"

	redisclient "github.com/vietddude/geyserpg/internal/infra/redis"
	"github.com/vietddude/geyserpg/internal/infra/storage/postgres"
	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
	Retry     RetryConfig        `yaml:"retry"`
	Selector  SelectorConfig     `yaml:"selector"`
	Retention RetentionConfig    `yaml:"retention"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// PipelineConfig sizes the ingestion pipeline.
type PipelineConfig struct {
	WorkerCount    int            `yaml:"worker_count"`
	BatchMaxSize   int            `yaml:"batch_max_size"`
	BatchMaxAge    time.Duration  `yaml:"batch_max_age"`
	QueueCapacity  int            `yaml:"queue_capacity"`
	OverflowPolicy dispatch.Policy `yaml:"overflow_policy"`
	ShutdownGrace  time.Duration  `yaml:"shutdown_grace"`
}

// RetryConfig bounds the per-worker retry/reconnect loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// SelectorConfig optionally narrows which account updates are persisted.
// Empty lists mean "persist everything".
type SelectorConfig struct {
	Accounts []string `yaml:"accounts"`
	Owners   []string `yaml:"owners"`
}

// RetentionConfig bounds how long historical rows are kept. Zero period
// disables pruning; account rows are current state and never pruned.
type RetentionConfig struct {
	Period time.Duration `yaml:"period"`
}

// Validate checks the configuration the pipeline consumes. Plugin load fails
// deterministically on any violation, before a single callback is accepted.
func (c *AppConfig) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url must be set")
	}
	if c.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("pipeline.worker_count must be >= 1, got %d", c.Pipeline.WorkerCount)
	}
	if c.Pipeline.BatchMaxSize < 1 {
		return fmt.Errorf("pipeline.batch_max_size must be >= 1, got %d", c.Pipeline.BatchMaxSize)
	}
	if c.Pipeline.BatchMaxAge <= 0 {
		return fmt.Errorf("pipeline.batch_max_age must be positive, got %s", c.Pipeline.BatchMaxAge)
	}
	if c.Pipeline.QueueCapacity < 1 {
		return fmt.Errorf("pipeline.queue_capacity must be >= 1, got %d", c.Pipeline.QueueCapacity)
	}
	switch c.Pipeline.OverflowPolicy {
	case dispatch.DropNewest, dispatch.DropOldest:
	default:
		return fmt.Errorf("pipeline.overflow_policy must be %q or %q, got %q",
			dispatch.DropNewest, dispatch.DropOldest, c.Pipeline.OverflowPolicy)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffBase <= 0 {
		return fmt.Errorf("retry.backoff_base must be positive, got %s", c.Retry.BackoffBase)
	}
	if c.Retry.BackoffCap < c.Retry.BackoffBase {
		return fmt.Errorf("retry.backoff_cap must be >= retry.backoff_base")
	}
	if c.Retention.Period < 0 {
		return fmt.Errorf("retention.period must not be negative, got %s", c.Retention.Period)
	}
	return nil
}

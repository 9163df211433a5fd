package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/geyserpg/internal/pipeline/dispatch"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with the documented defaults. Validation
// still runs afterwards so explicit bad values fail rather than get patched.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Pipeline.WorkerCount == 0 {
		c.Pipeline.WorkerCount = 4
	}
	if c.Pipeline.BatchMaxSize == 0 {
		c.Pipeline.BatchMaxSize = 256
	}
	if c.Pipeline.BatchMaxAge == 0 {
		c.Pipeline.BatchMaxAge = 200 * time.Millisecond
	}
	if c.Pipeline.QueueCapacity == 0 {
		c.Pipeline.QueueCapacity = 1024
	}
	if c.Pipeline.OverflowPolicy == "" {
		c.Pipeline.OverflowPolicy = dispatch.DropNewest
	}
	if c.Pipeline.ShutdownGrace == 0 {
		c.Pipeline.ShutdownGrace = 10 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BackoffBase == 0 {
		c.Retry.BackoffBase = 500 * time.Millisecond
	}
	if c.Retry.BackoffCap == 0 {
		c.Retry.BackoffCap = 30 * time.Second
	}
}

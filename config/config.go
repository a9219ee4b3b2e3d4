// Package config loads executor and job runner settings from YAML or JSON
// files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swind/go-executor/core"
	"github.com/Swind/go-executor/jobs"
)

// FileConfig is the top-level layout of a configuration file.
type FileConfig struct {
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
	Jobs     JobsConfig     `yaml:"jobs" json:"jobs"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// ExecutorConfig maps onto core.Config. Durations are Go duration strings.
type ExecutorConfig struct {
	Name             string      `yaml:"name" json:"name"`
	CorePoolSize     *int        `yaml:"core_pool_size" json:"core_pool_size"`
	MaxPoolSize      int         `yaml:"max_pool_size" json:"max_pool_size"`
	KeepAlive        string      `yaml:"keep_alive" json:"keep_alive"`
	AllowCoreTimeout bool        `yaml:"allow_core_timeout" json:"allow_core_timeout"`
	Queue            QueueConfig `yaml:"queue" json:"queue"`
	Rejection        string      `yaml:"rejection" json:"rejection"`
}

// QueueConfig selects the task queue. Type is "fifo" (default),
// "synchronous" or "priority". Capacity bounds fifo only; 0 means unbounded.
// A priority queue is unbounded and orders core.Prioritized tasks.
type QueueConfig struct {
	Type     string `yaml:"type" json:"type"`
	Capacity int    `yaml:"capacity" json:"capacity"`
}

type JobsConfig struct {
	Database string      `yaml:"database" json:"database"`
	Retry    RetryConfig `yaml:"retry" json:"retry"`
}

type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries" json:"max_retries"`
	InitialDelay string  `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay" json:"max_delay"`
	BackoffRatio float64 `yaml:"backoff_ratio" json:"backoff_ratio"`
}

type MetricsConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
}

// LoadFile reads a configuration file. The format is chosen by extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate checks values that can be judged without building an executor.
func (f *FileConfig) Validate() error {
	ec := f.Executor
	if ec.CorePoolSize != nil && *ec.CorePoolSize < 0 {
		return fmt.Errorf("executor.core_pool_size must be non-negative")
	}
	if ec.MaxPoolSize < 0 {
		return fmt.Errorf("executor.max_pool_size must be non-negative")
	}
	if ec.Queue.Capacity < 0 {
		return fmt.Errorf("executor.queue.capacity must be non-negative")
	}
	if f.Jobs.Retry.MaxRetries < 0 {
		return fmt.Errorf("jobs.retry.max_retries must be non-negative")
	}
	return nil
}

// ToExecutorConfig converts the executor section into a core.Config,
// starting from core.DefaultConfig.
func (f *FileConfig) ToExecutorConfig() (core.Config, error) {
	ec := f.Executor
	config := core.DefaultConfig()

	if ec.Name != "" {
		config.Name = ec.Name
	}
	if ec.CorePoolSize != nil {
		config.CorePoolSize = *ec.CorePoolSize
	}
	if ec.MaxPoolSize > 0 {
		config.MaxPoolSize = ec.MaxPoolSize
	} else if config.CorePoolSize > config.MaxPoolSize {
		config.MaxPoolSize = config.CorePoolSize
	}
	if ec.KeepAlive != "" {
		d, err := time.ParseDuration(ec.KeepAlive)
		if err != nil {
			return config, fmt.Errorf("invalid keep_alive: %w", err)
		}
		config.KeepAlive = d
	}
	config.AllowCoreThreadTimeOut = ec.AllowCoreTimeout

	q, err := parseQueue(ec.Queue)
	if err != nil {
		return config, err
	}
	config.Queue = q

	h, err := ParseRejection(ec.Rejection)
	if err != nil {
		return config, err
	}
	config.RejectedTaskHandler = h

	return config, nil
}

// Options returns the executor section as functional options.
func (f *FileConfig) Options() ([]core.Option, error) {
	c, err := f.ToExecutorConfig()
	if err != nil {
		return nil, err
	}
	return []core.Option{
		core.WithName(c.Name),
		core.WithPoolSize(c.CorePoolSize, c.MaxPoolSize),
		core.WithKeepAlive(c.KeepAlive),
		core.WithAllowCoreThreadTimeOut(c.AllowCoreThreadTimeOut),
		core.WithQueue(c.Queue),
		core.WithRejectedTaskHandler(c.RejectedTaskHandler),
	}, nil
}

func parseQueue(qc QueueConfig) (core.TaskQueue, error) {
	switch strings.ToLower(qc.Type) {
	case "", "fifo":
		if qc.Capacity == 0 {
			return core.NewUnboundedFIFOQueue(), nil
		}
		return core.NewFIFOQueue(qc.Capacity), nil
	case "synchronous":
		return core.NewSynchronousQueue(), nil
	case "priority":
		return core.NewPriorityQueue(core.PriorityLess), nil
	default:
		return nil, fmt.Errorf("unknown queue type: %s", qc.Type)
	}
}

// ParseRejection maps a policy name to a handler. Empty means abort.
func ParseRejection(name string) (core.RejectedTaskHandler, error) {
	switch strings.ToLower(name) {
	case "", "abort":
		return &core.AbortPolicy{}, nil
	case "caller_runs", "caller-runs":
		return &core.CallerRunsPolicy{}, nil
	case "discard":
		return &core.DiscardPolicy{}, nil
	case "discard_oldest", "discard-oldest":
		return &core.DiscardOldestPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown rejection policy: %s", name)
	}
}

// RetryPolicy converts the jobs.retry section, falling back to
// jobs.DefaultRetryPolicy for unset fields.
func (f *FileConfig) RetryPolicy() (jobs.RetryPolicy, error) {
	rc := f.Jobs.Retry
	p := jobs.DefaultRetryPolicy()

	if rc.MaxRetries > 0 {
		p.MaxRetries = rc.MaxRetries
	}
	if rc.InitialDelay != "" {
		d, err := time.ParseDuration(rc.InitialDelay)
		if err != nil {
			return p, fmt.Errorf("invalid retry initial_delay: %w", err)
		}
		p.InitialDelay = d
	}
	if rc.MaxDelay != "" {
		d, err := time.ParseDuration(rc.MaxDelay)
		if err != nil {
			return p, fmt.Errorf("invalid retry max_delay: %w", err)
		}
		p.MaxDelay = d
	}
	if rc.BackoffRatio > 0 {
		p.BackoffRatio = rc.BackoffRatio
	}
	return p, nil
}

// PollInterval returns the metrics poll interval, or def when unset.
func (f *FileConfig) PollInterval(def time.Duration) (time.Duration, error) {
	if f.Metrics.PollInterval == "" {
		return def, nil
	}
	d, err := time.ParseDuration(f.Metrics.PollInterval)
	if err != nil {
		return def, fmt.Errorf("invalid metrics poll_interval: %w", err)
	}
	return d, nil
}

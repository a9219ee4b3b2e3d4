package core

import (
	"runtime"
	"time"
)

// Launcher starts a worker's run loop. The default runs it on a new
// goroutine. A returned error means the worker could not be started; the
// executor rolls the admission back.
type Launcher func(run func()) error

func goLauncher(run func()) error {
	go run()
	return nil
}

// Option configures a ThreadPoolExecutor.
type Option func(*Config)

// Config holds all configuration options for a ThreadPoolExecutor.
// Handlers left nil are replaced by defaults in NewThreadPoolExecutor.
type Config struct {
	// Name labels logs, metrics and panic reports.
	Name string

	// CorePoolSize is the number of workers kept alive even when idle,
	// unless AllowCoreThreadTimeOut is set.
	CorePoolSize int

	// MaxPoolSize caps the number of workers.
	MaxPoolSize int

	// KeepAlive is how long an idle worker above the core size waits for
	// a task before exiting.
	KeepAlive time.Duration

	// AllowCoreThreadTimeOut applies KeepAlive to core workers too.
	AllowCoreThreadTimeOut bool

	// Queue holds tasks waiting for a worker. Defaults to an unbounded FIFOQueue.
	Queue TaskQueue

	RejectedTaskHandler RejectedTaskHandler
	PanicHandler        PanicHandler
	Metrics             Metrics
	Logger              Logger
	Hooks               Hooks
	Launcher            Launcher
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Name:         "executor",
		CorePoolSize: n,
		MaxPoolSize:  n,
		KeepAlive:    60 * time.Second,
	}
}

// Validate checks the configuration and returns a *ConfigError if invalid.
func (c *Config) Validate() error {
	if c.CorePoolSize < 0 {
		return errConfig("CorePoolSize", "must be >= 0")
	}
	if c.MaxPoolSize <= 0 {
		return errConfig("MaxPoolSize", "must be > 0")
	}
	if c.MaxPoolSize > maxWorkerCapacity {
		return errConfig("MaxPoolSize", "exceeds worker capacity")
	}
	if c.MaxPoolSize < c.CorePoolSize {
		return errConfig("MaxPoolSize", "must be >= CorePoolSize")
	}
	if c.KeepAlive < 0 {
		return errConfig("KeepAlive", "must be >= 0")
	}
	if c.AllowCoreThreadTimeOut && c.KeepAlive <= 0 {
		return errConfig("KeepAlive", "must be > 0 when core workers may time out")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "executor"
	}
	if c.Queue == nil {
		c.Queue = NewUnboundedFIFOQueue()
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &AbortPolicy{}
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.Launcher == nil {
		c.Launcher = goLauncher
	}
}

// WithName sets the executor name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithCorePoolSize sets the core pool size.
func WithCorePoolSize(n int) Option {
	return func(c *Config) { c.CorePoolSize = n }
}

// WithMaxPoolSize sets the maximum pool size.
func WithMaxPoolSize(n int) Option {
	return func(c *Config) { c.MaxPoolSize = n }
}

// WithPoolSize sets the core and maximum pool sizes.
func WithPoolSize(core, maximum int) Option {
	return func(c *Config) {
		c.CorePoolSize = core
		c.MaxPoolSize = maximum
	}
}

// WithKeepAlive sets the idle timeout for culled workers.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAlive = d }
}

// WithAllowCoreThreadTimeOut lets core workers time out as well.
func WithAllowCoreThreadTimeOut(allow bool) Option {
	return func(c *Config) { c.AllowCoreThreadTimeOut = allow }
}

// WithQueue sets the task queue.
func WithQueue(q TaskQueue) Option {
	return func(c *Config) { c.Queue = q }
}

// WithRejectedTaskHandler sets the rejection policy.
func WithRejectedTaskHandler(h RejectedTaskHandler) Option {
	return func(c *Config) { c.RejectedTaskHandler = h }
}

// WithPanicHandler sets the panic handler.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *Config) { c.PanicHandler = h }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithHooks sets the execution and termination hooks.
func WithHooks(h Hooks) Option {
	return func(c *Config) { c.Hooks = h }
}

// WithLauncher replaces the goroutine launcher used to start workers.
func WithLauncher(l Launcher) Option {
	return func(c *Config) { c.Launcher = l }
}

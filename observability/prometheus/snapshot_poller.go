package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
// *core.ThreadPoolExecutor implements it.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// JobSnapshotProvider reports how many jobs are queued or running.
// *jobs.Runner implements it.
type JobSnapshotProvider interface {
	ActiveCount() int
}

// SnapshotPoller periodically exports pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	jobsMu sync.RWMutex
	jobs   map[string]JobSnapshotProvider

	poolSize      *prom.GaugeVec
	poolLargest   *prom.GaugeVec
	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolTasks     *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolRunning   *prom.GaugeVec
	jobsActive    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPoolGauge(name, help string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "executor",
		Name:      name,
		Help:      help,
	}, []string{"pool"})
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval:      interval,
		pools:         make(map[string]PoolSnapshotProvider),
		jobs:          make(map[string]JobSnapshotProvider),
		poolSize:      newPoolGauge("pool_size", "Workers per pool."),
		poolLargest:   newPoolGauge("pool_largest_size", "Largest worker count ever reached per pool."),
		poolQueued:    newPoolGauge("pool_queued", "Queued tasks per pool."),
		poolActive:    newPoolGauge("pool_active", "Workers running a task per pool."),
		poolTasks:     newPoolGauge("pool_tasks", "Approximate tasks ever scheduled per pool."),
		poolCompleted: newPoolGauge("pool_completed_tasks", "Tasks completed per pool."),
		poolRunning:   newPoolGauge("pool_running", "Pool running state (1=running, 0=shut down)."),
		jobsActive: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "executor",
			Name:      "jobs_active",
			Help:      "Jobs queued or running per job runner.",
		}, []string{"runner"}),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolSize, &p.poolLargest, &p.poolQueued, &p.poolActive,
		&p.poolTasks, &p.poolCompleted, &p.poolRunning, &p.jobsActive,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddJobRunner adds or replaces a job runner provider by name.
func (p *SnapshotPoller) AddJobRunner(name string, provider JobSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "jobs")
	p.jobsMu.Lock()
	p.jobs[name] = provider
	p.jobsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce refreshes every gauge from the registered providers.
func (p *SnapshotPoller) CollectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolSize.WithLabelValues(name).Set(float64(stats.PoolSize))
		p.poolLargest.WithLabelValues(name).Set(float64(stats.LargestPoolSize))
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolTasks.WithLabelValues(name).Set(float64(stats.TaskCount))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.CompletedTaskCount))
		if stats.Running() {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()

	p.jobsMu.RLock()
	for name, provider := range p.jobs {
		p.jobsActive.WithLabelValues(name).Set(float64(provider.ActiveCount()))
	}
	p.jobsMu.RUnlock()
}

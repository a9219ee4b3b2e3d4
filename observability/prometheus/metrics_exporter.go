// Package prometheus exports executor metrics and Stats snapshots as
// Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Swind/go-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const unknownLabel = "unknown"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter implements core.Metrics on top of Prometheus vectors. It is
// itself a prom.Collector and registers as a single unit, so two exporters
// built with the same namespace on one registry share their series.
type MetricsExporter struct {
	runSeconds  *prom.HistogramVec
	finished    *prom.CounterVec
	panics      *prom.CounterVec
	rejections  *prom.CounterVec
	queueDepth  *prom.GaugeVec
	queuePeak   *prom.GaugeVec
	poolWorkers *prom.GaugeVec

	mu    sync.Mutex
	peaks map[string]int
}

var (
	_ core.Metrics   = (*MetricsExporter)(nil)
	_ prom.Collector = (*MetricsExporter)(nil)
)

// NewMetricsExporter builds the executor collectors under namespace and
// registers them with reg (the default registerer when nil).
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "executor"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	pool := []string{"pool"}
	m := &MetricsExporter{
		runSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "run_seconds",
			Help:      "Time a worker spent inside Run, panics included.",
			Buckets:   buckets,
		}, pool),
		finished: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "finished_total",
			Help:      "Tasks whose Run returned or panicked on a worker.",
		}, pool),
		panics: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "panics_total",
			Help:      "Tasks whose Run panicked.",
		}, pool),
		rejections: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "rejections_total",
			Help:      "Tasks handed to the rejection handler, by reason.",
		}, []string{"pool", "reason"}),
		queueDepth: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Queue length observed after the last accepted offer.",
		}, pool),
		queuePeak: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth_peak",
			Help:      "Largest queue length observed after an offer.",
		}, pool),
		poolWorkers: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Worker count after the last worker started or exited.",
		}, pool),
		peaks: make(map[string]int),
	}

	return registerCollector(reg, m)
}

func (m *MetricsExporter) vectors() []prom.Collector {
	return []prom.Collector{
		m.runSeconds, m.finished, m.panics, m.rejections,
		m.queueDepth, m.queuePeak, m.poolWorkers,
	}
}

// Describe implements prom.Collector.
func (m *MetricsExporter) Describe(ch chan<- *prom.Desc) {
	for _, c := range m.vectors() {
		c.Describe(ch)
	}
}

// Collect implements prom.Collector.
func (m *MetricsExporter) Collect(ch chan<- prom.Metric) {
	for _, c := range m.vectors() {
		c.Collect(ch)
	}
}

// RecordTaskDuration observes one finished Run.
func (m *MetricsExporter) RecordTaskDuration(poolName string, duration time.Duration) {
	if m == nil {
		return
	}
	pool := normalizeLabel(poolName, unknownLabel)
	m.runSeconds.WithLabelValues(pool).Observe(duration.Seconds())
	m.finished.WithLabelValues(pool).Inc()
}

// RecordTaskPanic counts a panicking Run.
func (m *MetricsExporter) RecordTaskPanic(poolName string, panicInfo any) {
	if m == nil {
		return
	}
	m.panics.WithLabelValues(normalizeLabel(poolName, unknownLabel)).Inc()
}

// RecordQueueDepth sets the current depth and raises the peak when exceeded.
func (m *MetricsExporter) RecordQueueDepth(poolName string, depth int) {
	if m == nil {
		return
	}
	pool := normalizeLabel(poolName, unknownLabel)
	m.queueDepth.WithLabelValues(pool).Set(float64(depth))

	m.mu.Lock()
	defer m.mu.Unlock()
	if depth > m.peaks[pool] {
		m.peaks[pool] = depth
		m.queuePeak.WithLabelValues(pool).Set(float64(depth))
	}
}

// RecordTaskRejected counts a rejection under its reason.
func (m *MetricsExporter) RecordTaskRejected(poolName string, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(poolName, unknownLabel), normalizeLabel(reason, unknownLabel)).Inc()
}

// RecordWorkerCount sets the worker gauge.
func (m *MetricsExporter) RecordWorkerCount(poolName string, workers int) {
	if m == nil {
		return
	}
	m.poolWorkers.WithLabelValues(normalizeLabel(poolName, unknownLabel)).Set(float64(workers))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}

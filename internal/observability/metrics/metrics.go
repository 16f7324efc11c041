// Package metrics exposes Prometheus instruments for the telemetry scheduler
// and background workers.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every instrument with the service name and environment.
type Config struct {
	ServiceName string
	Environment string
}

// SchedulerMetrics covers the telemetry collection/upload loops and the
// device-code cleanup worker.
type SchedulerMetrics struct {
	tickTotal       *prometheus.CounterVec
	batchesUploaded *prometheus.CounterVec
	pendingBatches  prometheus.Gauge
	cleanupDeleted  prometheus.Counter
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics, registering them on first use.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with explicit const labels. Only the first call wins.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest clears the singleton so tests can re-register
// against a fresh registry.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "openhands-enterprise"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	tickTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "openhands_telemetry_tick_total",
			Help:        "Telemetry scheduler ticks by loop and result.",
			ConstLabels: constLabels,
		},
		[]string{"loop", "result"}, // loop: collection | upload; result: ok | skipped | error
	)

	batchesUploaded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "openhands_telemetry_batches_uploaded_total",
			Help:        "Metric batches processed by the upload loop.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // success | failed
	)

	pendingBatches := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "openhands_telemetry_pending_batches",
			Help:        "Metric batches collected but not yet uploaded.",
			ConstLabels: constLabels,
		},
	)

	cleanupDeleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "openhands_device_codes_cleaned_total",
			Help:        "Expired device codes deleted by the cleanup worker.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		tickTotal,
		batchesUploaded,
		pendingBatches,
		cleanupDeleted,
	)

	return &SchedulerMetrics{
		tickTotal:       tickTotal,
		batchesUploaded: batchesUploaded,
		pendingBatches:  pendingBatches,
		cleanupDeleted:  cleanupDeleted,
	}
}

// IncTick records one scheduler tick outcome.
func (m *SchedulerMetrics) IncTick(loop, result string) {
	if m == nil {
		return
	}
	m.tickTotal.WithLabelValues(loop, result).Inc()
}

// IncBatchUploaded records one batch upload outcome.
func (m *SchedulerMetrics) IncBatchUploaded(result string) {
	if m == nil {
		return
	}
	m.batchesUploaded.WithLabelValues(result).Inc()
}

// SetPendingBatches records the current unuploaded batch count.
func (m *SchedulerMetrics) SetPendingBatches(value int) {
	if m == nil {
		return
	}
	m.pendingBatches.Set(float64(value))
}

// AddCleanupDeleted records device codes purged by the cleanup worker.
func (m *SchedulerMetrics) AddCleanupDeleted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(count))
}

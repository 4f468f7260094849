// Package metrics holds the prometheus collectors both engines report to.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine label values.
const (
	EngineTask     = "task"
	EngineWorkflow = "workflow"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec
	NodesTotal        *prometheus.CounterVec
	ScheduledRuns     prometheus.Counter
	WorkersOnline     prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_executions_total",
				Help: "Total number of executions that reached a final state",
			},
			[]string{"engine", "status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_execution_duration_seconds",
				Help:    "Duration of processed executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskflow_queue_depth",
				Help: "Number of executions waiting in the queue",
			},
			[]string{"engine"},
		),
		NodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_workflow_nodes_total",
				Help: "Total number of workflow nodes executed",
			},
			[]string{"node_type", "status"},
		),
		ScheduledRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "taskflow_scheduled_runs_total",
				Help: "Total number of executions started by schedules",
			},
		),
		WorkersOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskflow_workers_online",
				Help: "Number of registered workers that are not offline",
			},
		),
	}
}

func (m *Metrics) ObserveExecution(engine, status string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.ExecutionsTotal.WithLabelValues(engine, status).Inc()
	m.ExecutionDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func (m *Metrics) SetQueueDepth(engine string, depth int) {
	if m == nil {
		return
	}

	m.QueueDepth.WithLabelValues(engine).Set(float64(depth))
}

func (m *Metrics) ObserveNode(nodeType, status string) {
	if m == nil {
		return
	}

	m.NodesTotal.WithLabelValues(nodeType, status).Inc()
}

func (m *Metrics) IncScheduledRun() {
	if m == nil {
		return
	}

	m.ScheduledRuns.Inc()
}

func (m *Metrics) SetWorkersOnline(n int) {
	if m == nil {
		return
	}

	m.WorkersOnline.Set(float64(n))
}

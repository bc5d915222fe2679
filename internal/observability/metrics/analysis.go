package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueSource reports the current queue occupancy.
type QueueSource func() (pending, running int)

// AnalysisMetrics contains the Prometheus metrics of analysis executions.
type AnalysisMetrics struct {
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RowsTotal    prometheus.Counter
	WrittenTotal prometheus.Counter
	ErrorsTotal  *prometheus.CounterVec
	QueuePending prometheus.GaugeFunc
	QueueRunning prometheus.GaugeFunc

	queue atomic.Pointer[QueueSource]
}

// NewAnalysisMetrics creates the analysis metrics and registers them.
func NewAnalysisMetrics(registry prometheus.Registerer) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() {
	m.RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_runs_total",
		Help: "Total number of finished analysis executions by status",
	}, []string{LabelStatus})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_run_duration_seconds",
		Help:    "Wall time of analysis executions in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	m.RowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_rows_total",
		Help: "Total number of rows bound for evaluation",
	})

	m.WrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_results_written_total",
		Help: "Total number of result records written",
	})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_errors_total",
		Help: "Total number of errors by category and component",
	}, []string{LabelCategory, LabelComponent})

	m.QueuePending = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "analysis_queue_pending",
		Help: "Execution requests waiting for a worker",
	}, func() float64 {
		pending, _ := m.queueState()
		return float64(pending)
	})

	m.QueueRunning = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "analysis_queue_running",
		Help: "Executions currently running",
	}, func() float64 {
		_, running := m.queueState()
		return float64(running)
	})
}

// BindQueue sets the source of the queue gauges. Until it is called they
// report zero.
func (m *AnalysisMetrics) BindQueue(src QueueSource) {
	m.queue.Store(&src)
}

func (m *AnalysisMetrics) queueState() (pending, running int) {
	if src := m.queue.Load(); src != nil && *src != nil {
		return (*src)()
	}
	return 0, 0
}

// RecordRun records one finished execution.
func (m *AnalysisMetrics) RecordRun(status string, seconds float64, rows, written int) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
	m.RowsTotal.Add(float64(rows))
	m.WrittenTotal.Add(float64(written))
}

// RecordError counts one categorized error.
func (m *AnalysisMetrics) RecordError(category, component string) {
	m.ErrorsTotal.WithLabelValues(category, component).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RunsTotal.Collect(ch)
	ch <- m.RunDuration
	ch <- m.RowsTotal
	ch <- m.WrittenTotal
	m.ErrorsTotal.Collect(ch)
	ch <- m.QueuePending
	ch <- m.QueueRunning
}

// Describe implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RunsTotal.Describe(ch)
	ch <- m.RunDuration.Desc()
	ch <- m.RowsTotal.Desc()
	ch <- m.WrittenTotal.Desc()
	m.ErrorsTotal.Describe(ch)
	ch <- m.QueuePending.Desc()
	ch <- m.QueueRunning.Desc()
}

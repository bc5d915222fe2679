// Package observability exposes the engine's Prometheus metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guianderson/terrama2/internal/analysis"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/observability/metrics"
)

// Metrics holds all the metric collectors of one engine instance.
type Metrics struct {
	registry *prometheus.Registry
	Analysis *metrics.AnalysisMetrics
	MQTT     *metrics.MQTTMetrics
}

// NewMetrics creates a registry with process, Go runtime and engine
// collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	analysisMetrics, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Analysis: analysisMetrics,
		MQTT:     mqttMetrics,
	}, nil
}

// Registry returns the registry behind Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RunFinished implements analysis.Observer.
func (m *Metrics) RunFinished(_ context.Context, rec analysis.RunRecord) {
	status := metrics.StatusSuccess
	if rec.Status != analysis.StatusSuccess {
		status = metrics.StatusFailed
	}
	m.Analysis.RecordRun(status, rec.Duration().Seconds(), rec.Rows, rec.Written)
}

// BindQueue feeds the queue gauges from svc.
func (m *Metrics) BindQueue(svc *analysis.Service) {
	m.Analysis.BindQueue(func() (int, int) {
		st := svc.Stats()
		return st.Pending, st.Running
	})
}

// ErrorHook counts every built error by category. Register it with
// errors.AddErrorHook.
func (m *Metrics) ErrorHook() errors.ErrorHook {
	return func(ee *errors.EnhancedError) {
		m.Analysis.RecordError(string(ee.Category), ee.GetComponent())
	}
}

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish result label values.
const (
	PublishDelivered = "delivered"
	PublishFailed    = "failed"
	PublishTimeout   = "timeout"
)

// Connection event label values.
const (
	ConnectionLost         = "lost"
	ConnectionReconnecting = "reconnecting"
)

// MQTTMetrics tracks run records published to the MQTT broker.
type MQTTMetrics struct {
	Connected        prometheus.Gauge
	Published        *prometheus.CounterVec
	PublishDuration  prometheus.Histogram
	ConnectionEvents *prometheus.CounterVec
}

// NewMQTTMetrics creates the publishing metrics and registers them.
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_connected",
			Help: "1 while the run-record publisher is connected to the broker",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "run_records_published_total",
			Help: "Run records handed to the MQTT broker by result",
		}, []string{LabelResult}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "run_record_publish_duration_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		ConnectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_connection_events_total",
			Help: "Broker connection losses and reconnect attempts",
		}, []string{LabelEvent}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetConnected records the broker connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

// PublishDone records the result of one publish attempt started at start.
func (m *MQTTMetrics) PublishDone(result string, start time.Time) {
	m.Published.WithLabelValues(result).Inc()
	if result == PublishDelivered {
		m.PublishDuration.Observe(time.Since(start).Seconds())
	}
}

// ConnectionEvent counts a connection loss or reconnect attempt.
func (m *MQTTMetrics) ConnectionEvent(event string) {
	m.ConnectionEvents.WithLabelValues(event).Inc()
	if event == ConnectionLost {
		m.Connected.Set(0)
	}
}

// Describe implements prometheus.Collector.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Connected.Describe(ch)
	m.Published.Describe(ch)
	m.PublishDuration.Describe(ch)
	m.ConnectionEvents.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Connected.Collect(ch)
	m.Published.Collect(ch)
	m.PublishDuration.Collect(ch)
	m.ConnectionEvents.Collect(ch)
}

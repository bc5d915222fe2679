// Package notify publishes finished analysis runs to external systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/guianderson/terrama2/internal/analysis"
	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
	"github.com/guianderson/terrama2/internal/observability/metrics"
)

// Client is the MQTT connection a Publisher writes to.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// pahoClient implements Client on eclipse/paho.
type pahoClient struct {
	settings conf.MQTTSettings
	internal mqtt.Client
	mu       sync.Mutex
	metrics  *metrics.MQTTMetrics
	log      logger.Logger
}

// NewMQTTClient creates an unconnected client. m may be nil.
func NewMQTTClient(settings conf.MQTTSettings, m *metrics.MQTTMetrics, log logger.Logger) Client {
	if settings.Timeout <= 0 {
		settings.Timeout = 5 * time.Second
	}
	return &pahoClient{settings: settings, metrics: m, log: log.Module("mqtt")}
}

func (c *pahoClient) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.settings.Broker)
	opts.SetClientID(c.settings.ClientID)
	opts.SetUsername(c.settings.Username)
	opts.SetPassword(c.settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.settings.Timeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)
	return opts
}

// Connect dials the broker and waits up to the configured timeout.
func (c *pahoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.internal = mqtt.NewClient(c.clientOptions())
	token := c.internal.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settings.Timeout):
		return errors.Newf("connection to MQTT broker timed out after %v", c.settings.Timeout).
			Category(errors.CategoryNetwork).
			Context("broker", c.settings.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("connection error: %w", err)).
			Category(errors.CategoryNetwork).
			Context("broker", c.settings.Broker).
			Build()
	}
	if c.metrics != nil {
		c.metrics.SetConnected(true)
	}
	return nil
}

// Publish sends payload with QoS 1.
func (c *pahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internal == nil || !c.internal.IsConnected() {
		return errors.Newf("not connected to MQTT broker").Category(errors.CategoryMQTTPublish).Build()
	}

	start := time.Now()
	token := c.internal.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settings.Timeout):
		c.publishDone(metrics.PublishTimeout, start)
		return errors.Newf("publish to %s timed out", topic).Category(errors.CategoryMQTTPublish).Build()
	}
	if err := token.Error(); err != nil {
		c.publishDone(metrics.PublishFailed, start)
		return errors.New(err).Category(errors.CategoryMQTTPublish).Context("topic", topic).Build()
	}
	c.publishDone(metrics.PublishDelivered, start)
	return nil
}

func (c *pahoClient) publishDone(result string, start time.Time) {
	if c.metrics != nil {
		c.metrics.PublishDone(result, start)
	}
}

// IsConnected reports whether the broker connection is up.
func (c *pahoClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal != nil && c.internal.IsConnected()
}

// Disconnect closes the broker connection.
func (c *pahoClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internal != nil && c.internal.IsConnected() {
		c.internal.Disconnect(250)
		if c.metrics != nil {
			c.metrics.SetConnected(false)
		}
	}
}

func (c *pahoClient) onConnect(mqtt.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.settings.Broker))
	if c.metrics != nil {
		c.metrics.SetConnected(true)
	}
}

func (c *pahoClient) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.String("broker", c.settings.Broker), logger.Error(err))
	if c.metrics != nil {
		c.metrics.ConnectionEvent(metrics.ConnectionLost)
	}
}

func (c *pahoClient) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	if c.metrics != nil {
		c.metrics.ConnectionEvent(metrics.ConnectionReconnecting)
	}
}

// Publisher publishes every finished run as JSON to <topic>/<analysis id>.
type Publisher struct {
	client  Client
	topic   string
	timeout time.Duration
	log     logger.Logger
}

// NewPublisher returns a Publisher writing below topic.
func NewPublisher(client Client, topic string, timeout time.Duration, log logger.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		client:  client,
		topic:   strings.TrimSuffix(topic, "/"),
		timeout: timeout,
		log:     log.Module("notify"),
	}
}

// Topic returns the topic a run of analysisID is published to.
func (p *Publisher) Topic(analysisID int64) string {
	return fmt.Sprintf("%s/%d", p.topic, analysisID)
}

// RunFinished implements analysis.Observer. Publish failures are logged.
func (p *Publisher) RunFinished(ctx context.Context, rec analysis.RunRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		p.log.Error("failed to encode run record", logger.Int64("analysis_id", rec.AnalysisID), logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.Topic(rec.AnalysisID), payload); err != nil {
		p.log.Warn("failed to publish run record",
			logger.Int64("analysis_id", rec.AnalysisID),
			logger.String("execution_id", rec.ExecutionID),
			logger.Error(err))
	}
}

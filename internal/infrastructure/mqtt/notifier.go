// Package mqtt pushes emergency alerts to field devices subscribed to the
// node's MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

// Config holds broker settings
type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// DefaultConfig returns defaults
func DefaultConfig() Config {
	return Config{
		BrokerURL:   "tcp://localhost:1883",
		ClientID:    "meshcore-alerts",
		TopicPrefix: "mesh/alerts",
		QoS:         1,
		Timeout:     5 * time.Second,
	}
}

// Topic returns the topic an alert of the given severity is published on
func (c Config) Topic(severity mesh.AlertSeverity) string {
	return c.TopicPrefix + "/" + string(severity)
}

// Notifier publishes committed alerts as retained JSON messages
type Notifier struct {
	client paho.Client
	config Config
	logger *zap.Logger
}

// Connect dials the broker
func Connect(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.OnConnect = func(paho.Client) {
		logger.Info("connected to mqtt broker", zap.String("broker", cfg.BrokerURL))
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return NewNotifier(client, cfg, logger), nil
}

// NewNotifier wraps an existing client
func NewNotifier(client paho.Client, cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, config: cfg, logger: logger}
}

// Notify publishes the alert and waits for the broker acknowledgement
func (n *Notifier) Notify(ctx context.Context, alert mesh.EmergencyAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	timeout := n.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	topic := n.config.Topic(alert.Severity)
	token := n.client.Publish(topic, n.config.QoS, true, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish alert %s to %s timed out", alert.ID, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}

	n.logger.Debug("alert published", zap.String("alert_id", alert.ID), zap.String("topic", topic))
	return nil
}

// Close disconnects, allowing in-flight publishes 250ms
func (n *Notifier) Close() {
	n.client.Disconnect(250)
}

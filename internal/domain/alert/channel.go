// Package alert broadcasts emergency alerts to every node and keeps the
// most recent few.
package alert

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
)

// Notifier pushes a committed alert to devices outside the store
type Notifier interface {
	Notify(ctx context.Context, alert mesh.EmergencyAlert) error
}

// Channel is the emergency broadcast channel
type Channel struct {
	store    mesh.Store
	notifier Notifier
	clock    mesh.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewChannel creates a channel. notifier may be nil.
func NewChannel(store mesh.Store, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		store:    store,
		notifier: notifier,
		clock:    mesh.SystemClock,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("alert-channel"),
	}
}

// WithClock replaces the wall clock
func (c *Channel) WithClock(clock mesh.Clock) *Channel {
	c.clock = clock
	return c
}

// Broadcast prepends an active alert and keeps only the newest mesh.MaxAlerts
func (c *Channel) Broadcast(ctx context.Context, message string, severity mesh.AlertSeverity, senderName string) (*mesh.EmergencyAlert, error) {
	ctx, span := c.tracer.Start(ctx, "alert.broadcast",
		trace.WithAttributes(attribute.String("severity", string(severity))))
	defer span.End()

	if strings.TrimSpace(message) == "" {
		return nil, mesh.Invalid("message", "is required")
	}
	if !severity.Valid() {
		return nil, mesh.Invalid("severity", "must be info, warning or critical")
	}

	var alert mesh.EmergencyAlert
	err := mesh.Update(ctx, c.store, func(snap *mesh.Snapshot) error {
		alert = mesh.EmergencyAlert{
			ID:         mesh.NewID("ALT"),
			Message:    strings.TrimSpace(message),
			Severity:   severity,
			SenderName: senderName,
			Timestamp:  c.clock(),
			Active:     true,
		}
		alerts := append([]mesh.EmergencyAlert{alert}, snap.Alerts...)
		if len(alerts) > mesh.MaxAlerts {
			alerts = alerts[:mesh.MaxAlerts]
		}
		snap.Alerts = alerts
		return snap.RecordChange(mesh.AggregateAlert, alert.ID, mesh.EventEmergencyAlertBroadcast,
			alert, "", "")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.metrics.AlertSent(string(severity))
	c.logger.Info("emergency alert broadcast",
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.String("sender", alert.SenderName),
	)

	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, alert); err != nil {
			c.logger.Warn("alert notification failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
	return &alert, nil
}

// Active returns the retained alerts, newest first
func (c *Channel) Active(ctx context.Context) ([]mesh.EmergencyAlert, error) {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Alerts, nil
}

package platform

import (
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/command"
	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/domain/alert"
	"github.com/crisisnet/meshcore/internal/domain/appointment"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/patient"
	"github.com/crisisnet/meshcore/internal/domain/staff"
	"github.com/crisisnet/meshcore/internal/domain/supply"
	"github.com/crisisnet/meshcore/internal/domain/transfer"
	"github.com/crisisnet/meshcore/internal/domain/transport"
	"github.com/crisisnet/meshcore/internal/infrastructure/mqtt"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
)

// NewEngines builds every engine over one store. notifier may be nil.
func NewEngines(store mesh.Store, notifier alert.Notifier, logger *zap.Logger, m *metrics.Metrics) command.Engines {
	return command.Engines{
		Supply:      supply.NewEngine(store, logger, m),
		Transfer:    transfer.NewEngine(store, logger, m),
		Transport:   transport.NewEngine(store, logger, m),
		Appointment: appointment.NewScheduler(store, logger, m),
		Patient:     patient.NewEngine(store, logger, m),
		Alert:       alert.NewChannel(store, notifier, logger, m),
		Staff:       staff.NewDirectory(store, logger),
	}
}

// ConnectNotifier connects the MQTT alert fan-out when a broker is configured.
// It returns a nil notifier and a no-op close when none is set or the broker is unreachable.
func ConnectNotifier(cfg *config.Config, logger *zap.Logger) (alert.Notifier, func()) {
	if cfg.MQTTBrokerURL == "" {
		return nil, func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mqttCfg := mqtt.DefaultConfig()
	mqttCfg.BrokerURL = cfg.MQTTBrokerURL
	mqttCfg.ClientID = cfg.MQTTClientID
	mqttCfg.TopicPrefix = cfg.MQTTTopicPrefix

	n, err := mqtt.Connect(mqttCfg, logger)
	if err != nil {
		logger.Warn("alerts will not reach the mqtt broker", zap.Error(err))
		return nil, func() {}
	}
	return n, n.Close
}

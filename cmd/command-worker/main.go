// Package main provides the command worker entry point.
// Consumes mesh.commands and applies each command to the engines at most once.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/command"
	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/infrastructure/redpanda"
	"github.com/crisisnet/meshcore/internal/observability/logging"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/internal/observability/tracing"
	"github.com/crisisnet/meshcore/internal/platform"
	"github.com/crisisnet/meshcore/pkg/idempotency"
	"github.com/crisisnet/meshcore/pkg/workerpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile, Development: cfg.IsDev(), Service: "command-worker"})
	if err != nil {
		zap.NewExample().Fatal("logger setup failed", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "command-worker",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(prometheus.DefaultRegisterer)

	storage, err := platform.OpenStore(ctx, cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer storage.Close()

	if err := platform.Seed(ctx, storage.Store, cfg, logger); err != nil {
		logger.Fatal("failed to seed store", zap.Error(err))
	}

	inboxCfg := idempotency.DefaultInboxConfig()
	inboxCfg.Terminal = command.Terminal

	var inbox idempotency.Processor
	if storage.Pool != nil {
		pgInbox := idempotency.NewInbox(storage.Pool, inboxCfg, logger)
		pgInbox.StartCleanup()
		defer pgInbox.Stop()
		inbox = pgInbox
	} else {
		logger.Warn("using in-memory inbox; dedupe state is lost on restart")
		inbox = idempotency.NewMemoryInbox(inboxCfg)
	}

	notifier, closeNotifier := platform.ConnectNotifier(cfg, logger)
	defer closeNotifier()

	engines := platform.NewEngines(storage.Store, notifier, logger, m)
	worker := command.NewWorker(command.NewDispatcher(engines), inbox, logger, m)

	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = cfg.CommandWorkers
	poolCfg.Retryable = func(err error) bool { return !command.Terminal(err) }

	workerPool, err := workerpool.New(poolCfg, worker.Process, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workerPool.Start()
	defer workerPool.Stop()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.GroupID = cfg.ConsumerGroup
	consumerCfg.Topics = []string{cfg.CommandTopic}

	// The offset is committed only once the pool reports the command handled
	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		res, err := workerPool.SubmitWait(ctx, &workerpool.Task{
			ID:      string(msg.Key),
			Payload: msg.Value,
			Context: ctx,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			return res.Error
		}
		return nil
	}, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("command worker started",
		zap.String("topic", cfg.CommandTopic),
		zap.Int("workers", cfg.CommandWorkers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	if err := consumer.Stop(); err != nil {
		logger.Warn("consumer stop failed", zap.Error(err))
	}
	logger.Info("command worker stopped", zap.Any("stats", workerPool.Stats()))
}

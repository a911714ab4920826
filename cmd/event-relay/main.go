// Package main provides the event relay entry point.
// Publishes lifecycle events from the Postgres outbox to the mesh.events topic.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/infrastructure/postgres"
	"github.com/crisisnet/meshcore/internal/infrastructure/redpanda"
	"github.com/crisisnet/meshcore/internal/observability/logging"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/internal/observability/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile, Development: cfg.IsDev(), Service: "event-relay"})
	if err != nil {
		zap.NewExample().Fatal("logger setup failed", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.StoreDriver != config.DriverPostgres {
		logger.Fatal("the event relay reads the postgres outbox; set STORE_DRIVER=postgres",
			zap.String("store", cfg.StoreDriver))
	}

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "event-relay",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(prometheus.DefaultRegisterer)

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	logger.Info("connected to database")

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	outbox := postgres.NewOutbox(pool, producer, postgres.DefaultOutboxConfig(), logger, m)
	outbox.Start()

	// Park entries that exhausted their retries and prune published ones
	janitor := time.NewTicker(time.Hour)
	defer janitor.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			outbox.Stop()
			if err := producer.Flush(context.Background()); err != nil {
				logger.Warn("flush failed", zap.Error(err))
			}
			logger.Info("event relay stopped", zap.Any("stats", producer.Stats()))
			return
		case <-janitor.C:
			if n, err := outbox.MoveToDeadLetter(ctx); err != nil {
				logger.Error("dead letter sweep failed", zap.Error(err))
			} else if n > 0 {
				logger.Warn("outbox entries dead-lettered", zap.Int64("count", n))
			}
			if _, err := outbox.CleanupProcessed(ctx, 7*24*time.Hour); err != nil {
				logger.Error("outbox cleanup failed", zap.Error(err))
			}
		}
	}
}

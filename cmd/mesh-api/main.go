// Package main provides the mesh API service entry point.
// Serves the mesh lifecycle engines over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/api/handlers"
	"github.com/crisisnet/meshcore/internal/api/middleware"
	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/observability/logging"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/internal/observability/tracing"
	"github.com/crisisnet/meshcore/internal/platform"
	"github.com/crisisnet/meshcore/pkg/circuitbreaker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Development: cfg.IsDev(),
		Service:     "mesh-api",
	})
	if err != nil {
		zap.NewExample().Fatal("logger setup failed", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "mesh-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
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

	notifier, closeNotifier := platform.ConnectNotifier(cfg, logger)
	defer closeNotifier()

	engines := platform.NewEngines(storage.Store, notifier, logger, m)

	apiKeys := middleware.ParseAPIKeys(cfg.APIKeys)
	if len(apiKeys) == 0 {
		logger.Warn("API_KEYS is empty; /api/v1 is unauthenticated")
	}

	router := handlers.NewRouter(handlers.Deps{
		Store:       storage.Store,
		Supply:      engines.Supply,
		Transfer:    engines.Transfer,
		Transport:   engines.Transport,
		Appointment: engines.Appointment,
		Patient:     engines.Patient,
		Alert:       engines.Alert,
		Staff:       engines.Staff,
		Breakers:    []*circuitbreaker.CircuitBreaker{storage.Store.Breaker()},
		Metrics:     metrics.Handler(),
		APIKeys:     apiKeys,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting mesh API",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

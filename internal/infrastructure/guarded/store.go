// Package guarded decorates a mesh.Store with a circuit breaker so a failing
// database is shed quickly instead of stacking up retries.
package guarded

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/pkg/circuitbreaker"
)

// Store guards an inner store
type Store struct {
	inner   mesh.Store
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

// storeHealthy treats outcomes that say nothing about the database's health as successes
func storeHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, mesh.ErrVersionConflict) ||
		errors.Is(err, mesh.ErrNoSnapshot) ||
		errors.Is(err, mesh.ErrSchemaMismatch) ||
		errors.Is(err, context.Canceled)
}

// New wraps inner. cfg.IsSuccessful and cfg.OnStateChange are set here.
func New(inner mesh.Store, cfg circuitbreaker.Config, logger *zap.Logger, m *metrics.Metrics) (*Store, error) {
	cfg.IsSuccessful = storeHealthy
	cfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.SetBreakerState(name, to.Gauge())
	}
	cb, err := circuitbreaker.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	m.SetBreakerState(cfg.Name, circuitbreaker.StateClosed.Gauge())
	return &Store{inner: inner, breaker: cb, metrics: m}, nil
}

// Load reads through the breaker
func (s *Store) Load(ctx context.Context) (*mesh.Snapshot, error) {
	var snap *mesh.Snapshot
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		snap, err = s.inner.Load(ctx)
		return err
	})
	return snap, err
}

// Save writes through the breaker
func (s *Store) Save(ctx context.Context, snap *mesh.Snapshot) error {
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.inner.Save(ctx, snap)
	})
	if errors.Is(err, mesh.ErrVersionConflict) {
		s.metrics.Conflict()
	}
	return err
}

// Breaker exposes the breaker for readiness checks
func (s *Store) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

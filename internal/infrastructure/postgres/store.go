// Package postgres provides PostgreSQL infrastructure components: the
// versioned snapshot store, the transactional outbox and schema migration.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

// snapshotRow is the single row holding the mesh document
const snapshotRow = 1

// PoolConfig holds connection pool settings
type PoolConfig struct {
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
}

// NewPool parses the URL, applies pool limits and pings the database
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Store persists the snapshot in one row and writes the snapshot's pending
// events to the outbox in the same transaction.
type Store struct {
	pool   *pgxpool.Pool
	topic  string
	logger *zap.Logger
	tracer trace.Tracer
}

// NewStore creates a store. Outbox entries are addressed to eventTopic.
func NewStore(pool *pgxpool.Pool, eventTopic string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		topic:  eventTopic,
		logger: logger,
		tracer: otel.Tracer("postgres-store"),
	}
}

// Load reads and decodes the current snapshot
func (s *Store) Load(ctx context.Context) (*mesh.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "snapshot_load")
	defer span.End()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM mesh_snapshot WHERE id = $1`, snapshotRow,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mesh.ErrNoSnapshot
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return mesh.DecodeSnapshot(data)
}

// Save writes the snapshot if the stored version still equals snap.Version
func (s *Store) Save(ctx context.Context, snap *mesh.Snapshot) error {
	ctx, span := s.tracer.Start(ctx, "snapshot_save",
		trace.WithAttributes(
			attribute.Int64("version", snap.Version),
			attribute.Int("events", len(snap.Changes())),
		))
	defer span.End()

	current := snap.Version
	next := current + 1
	snap.Version = next
	data, err := mesh.EncodeSnapshot(snap)
	snap.Version = current
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	if current == 0 {
		tag, err := tx.Exec(ctx, `
			INSERT INTO mesh_snapshot (id, version, schema_version, document)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, snapshotRow, next, mesh.SchemaVersion, data)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE mesh_snapshot
			SET version = $1, schema_version = $2, document = $3, updated_at = NOW()
			WHERE id = $4 AND version = $5
		`, next, mesh.SchemaVersion, data, snapshotRow, current)
		if err != nil {
			return fmt.Errorf("update snapshot: %w", err)
		}
		affected = tag.RowsAffected()
	}
	if affected == 0 {
		span.SetAttributes(attribute.Bool("conflict", true))
		return mesh.ErrVersionConflict
	}

	snap.StampChanges(next)
	for _, event := range snap.Changes() {
		entry, err := EntryFromEvent(event, s.topic)
		if err != nil {
			return err
		}
		if err := WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	snap.Version = next
	snap.ClearChanges()
	s.logger.Debug("snapshot saved", zap.Int64("version", next))
	return nil
}

// Version returns the committed version, 0 when nothing is stored
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM mesh_snapshot WHERE id = $1`, snapshotRow).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

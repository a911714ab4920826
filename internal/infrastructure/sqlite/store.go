// Package sqlite provides a file-backed snapshot store for a single node
// running without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

const snapshotRow = 1

// Store keeps the snapshot document in one row and appends committed events
// to a local journal table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens (or creates) the database at path
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps the version check and the write in the same critical section
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS mesh_snapshot (
		id INTEGER PRIMARY KEY,
		version INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		document BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS mesh_events (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data BLOB NOT NULL,
		version INTEGER NOT NULL,
		actor_id TEXT,
		hospital_id TEXT,
		created_at TEXT NOT NULL
	);`)
	return err
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads and decodes the current snapshot
func (s *Store) Load(ctx context.Context) (*mesh.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM mesh_snapshot WHERE id = ?`, snapshotRow).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mesh.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return mesh.DecodeSnapshot(data)
}

// Save writes the snapshot if the stored version still equals snap.Version
func (s *Store) Save(ctx context.Context, snap *mesh.Snapshot) error {
	current := snap.Version
	next := current + 1
	snap.Version = next
	data, err := mesh.EncodeSnapshot(snap)
	snap.Version = current
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var res sql.Result
	if current == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO mesh_snapshot (id, version, schema_version, document, updated_at) VALUES (?, ?, ?, ?, ?)`,
			snapshotRow, next, mesh.SchemaVersion, data, now)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE mesh_snapshot SET version = ?, schema_version = ?, document = ?, updated_at = ? WHERE id = ? AND version = ?`,
			next, mesh.SchemaVersion, data, now, snapshotRow, current)
	}
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return mesh.ErrVersionConflict
	}

	snap.StampChanges(next)
	if len(snap.Changes()) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO mesh_events (id, aggregate_id, aggregate_type, event_type, event_data, version, actor_id, hospital_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare journal insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range snap.Changes() {
			if _, err := stmt.ExecContext(ctx, e.ID, e.AggregateID, e.AggregateType, string(e.EventType),
				[]byte(e.EventData), e.Version, e.ActorID, e.HospitalID, e.Timestamp.Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("journal event %s: %w", e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	snap.Version = next
	snap.ClearChanges()
	s.logger.Debug("snapshot saved", zap.Int64("version", next))
	return nil
}

// Events returns journaled events for an aggregate, oldest first
func (s *Store) Events(ctx context.Context, aggregateID string) ([]*mesh.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, version, actor_id, hospital_id, created_at
		FROM mesh_events WHERE aggregate_id = ? ORDER BY version ASC, rowid ASC`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*mesh.Event
	for rows.Next() {
		var (
			e                  mesh.Event
			eventType, created string
			data               []byte
			actor, hospital    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &eventType, &data,
			&e.Version, &actor, &hospital, &created); err != nil {
			return nil, err
		}
		e.EventType = mesh.EventType(eventType)
		e.EventData = data
		e.ActorID = actor.String
		e.HospitalID = hospital.String
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		events = append(events, &e)
	}
	return events, rows.Err()
}

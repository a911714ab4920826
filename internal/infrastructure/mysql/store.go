// Package mysql provides a GORM-backed snapshot store for deployments that
// run on MySQL.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	driver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

const snapshotRow = 1

// SnapshotRecord is the single row holding the mesh document
type SnapshotRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement:false"`
	Version       int64  `gorm:"not null"`
	SchemaVersion int    `gorm:"not null"`
	Document      []byte `gorm:"type:longblob;not null"`
	UpdatedAt     time.Time
}

// TableName pins the table name
func (SnapshotRecord) TableName() string { return "mesh_snapshot" }

// EventRecord is one journaled lifecycle event
type EventRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	AggregateID   string `gorm:"index;size:128;not null"`
	AggregateType string `gorm:"size:64;not null"`
	EventType     string `gorm:"size:64;not null"`
	EventData     []byte `gorm:"type:json;not null"`
	Version       int64  `gorm:"not null"`
	ActorID       string `gorm:"size:64"`
	HospitalID    string `gorm:"size:32"`
	CreatedAt     time.Time
}

// TableName pins the table name
func (EventRecord) TableName() string { return "mesh_events" }

// NewEventRecord maps a committed event to its row
func NewEventRecord(e *mesh.Event) EventRecord {
	return EventRecord{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     string(e.EventType),
		EventData:     []byte(e.EventData),
		Version:       e.Version,
		ActorID:       e.ActorID,
		HospitalID:    e.HospitalID,
		CreatedAt:     e.Timestamp,
	}
}

// Connect opens a pooled connection
func Connect(dsn string, debug bool) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Error)
	if debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(driver.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the store tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SnapshotRecord{},
		&EventRecord{},
	)
}

// Store is a mesh.Store over GORM
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a store
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Load reads and decodes the current snapshot
func (s *Store) Load(ctx context.Context) (*mesh.Snapshot, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).First(&rec, snapshotRow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mesh.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return mesh.DecodeSnapshot(rec.Document)
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

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if current == 0 {
			var count int64
			if err := tx.Model(&SnapshotRecord{}).Where("id = ?", snapshotRow).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return mesh.ErrVersionConflict
			}
			if err := tx.Create(&SnapshotRecord{
				ID:            snapshotRow,
				Version:       next,
				SchemaVersion: mesh.SchemaVersion,
				Document:      data,
			}).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return mesh.ErrVersionConflict
				}
				return err
			}
		} else {
			res := tx.Model(&SnapshotRecord{}).
				Where("id = ? AND version = ?", snapshotRow, current).
				Updates(map[string]interface{}{
					"version":        next,
					"schema_version": mesh.SchemaVersion,
					"document":       data,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return mesh.ErrVersionConflict
			}
		}

		snap.StampChanges(next)
		if len(snap.Changes()) == 0 {
			return nil
		}
		rows := make([]EventRecord, 0, len(snap.Changes()))
		for _, e := range snap.Changes() {
			rows = append(rows, NewEventRecord(e))
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		if errors.Is(err, mesh.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("save snapshot: %w", err)
	}

	snap.Version = next
	snap.ClearChanges()
	s.logger.Debug("snapshot saved", zap.Int64("version", next))
	return nil
}

// Events returns journaled events for an aggregate, oldest first
func (s *Store) Events(ctx context.Context, aggregateID string) ([]EventRecord, error) {
	var rows []EventRecord
	err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&rows).Error
	return rows, err
}

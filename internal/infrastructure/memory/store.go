// Package memory provides a mutex-guarded snapshot store. Snapshots are kept
// encoded so every Load hands out an independent copy.
package memory

import (
	"context"
	"sync"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

// Store is an in-process mesh.Store
type Store struct {
	mu      sync.Mutex
	data    []byte
	version int64
	events  []*mesh.Event
	saves   int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Load decodes the current snapshot
func (s *Store) Load(ctx context.Context) (*mesh.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, mesh.ErrNoSnapshot
	}
	return mesh.DecodeSnapshot(s.data)
}

// Save compares versions and swaps in the new snapshot
func (s *Store) Save(ctx context.Context, snap *mesh.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Version != s.version {
		return mesh.ErrVersionConflict
	}

	next := snap.Version + 1
	snap.Version = next
	data, err := mesh.EncodeSnapshot(snap)
	if err != nil {
		snap.Version = next - 1
		return err
	}

	s.data = data
	s.version = next
	s.saves++
	snap.StampChanges(next)
	s.events = append(s.events, snap.Changes()...)
	snap.ClearChanges()
	return nil
}

// Events returns every event committed so far, oldest first
func (s *Store) Events() []*mesh.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*mesh.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Saves counts successful writes
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Version returns the committed version
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// SetRaw replaces the stored document verbatim without a version check
func (s *Store) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/transport"
	"github.com/crisisnet/meshcore/internal/infrastructure/sqlite"
	"github.com/crisisnet/meshcore/internal/seed"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "mesh.db"), nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmptyStore(t *testing.T) {
	store := openStore(t)
	if _, err := store.Load(context.Background()); !errors.Is(err, mesh.ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveComparesVersions(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := mesh.Bootstrap(ctx, store, seed.Default); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	a, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	b, _ := store.Load(ctx)
	if a.Version != 1 {
		t.Fatalf("expected version 1, got %d", a.Version)
	}

	a.ConnectedPeers = 2
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("expected caller snapshot at version 2, got %d", a.Version)
	}

	b.ConnectedPeers = 3
	if err := store.Save(ctx, b); !errors.Is(err, mesh.ErrVersionConflict) {
		t.Errorf("expected stale save rejected, got %v", err)
	}

	fresh, _ := store.Load(ctx)
	if fresh.ConnectedPeers != 2 {
		t.Errorf("stale write leaked: peers=%d", fresh.ConnectedPeers)
	}
}

func TestEventsAreJournaled(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if _, err := mesh.Bootstrap(ctx, store, seed.Default); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	engine := transport.NewEngine(store, nil, nil)
	job, err := engine.Schedule(ctx, transport.ScheduleInput{
		RequesterID: "U001", OriginHospitalID: "H100", DestinationHospitalID: "H103",
		Type: mesh.TransportSupplyRun, Notes: "Insulin cold chain",
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if _, err := engine.Dispatch(ctx, job.ID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	events, err := store.Events(ctx, job.ID)
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != mesh.EventTransportScheduled || events[1].EventType != mesh.EventTransportDispatched {
		t.Errorf("unexpected order: %s, %s", events[0].EventType, events[1].EventType)
	}
	if events[1].Version <= events[0].Version {
		t.Errorf("expected increasing versions, got %d then %d", events[0].Version, events[1].Version)
	}
}

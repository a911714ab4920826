package mesh_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
)

func seedOne() *mesh.Snapshot {
	s := mesh.NewSnapshot()
	s.Hospitals = append(s.Hospitals, mesh.Hospital{ID: "H100", Name: "Central"})
	s.Supplies = append(s.Supplies, mesh.SupplyStock{ID: "R1", HospitalID: "H100", Item: "Bandages", Quantity: 10})
	return s
}

func TestBootstrapSeedsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	if _, err := store.Load(ctx); !errors.Is(err, mesh.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	calls := 0
	seed := func() *mesh.Snapshot { calls++; return seedOne() }

	snap, err := mesh.Bootstrap(ctx, store, seed)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("expected version 1, got %d", snap.Version)
	}
	if _, err := mesh.Bootstrap(ctx, store, seed); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected seed to run once, ran %d times", calls)
	}
}

func TestUpdateAbortsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := mesh.Bootstrap(ctx, store, seedOne); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	wantErr := mesh.Invalid("quantity", "must be positive")
	err := mesh.Update(ctx, store, func(s *mesh.Snapshot) error {
		s.Supplies[0].Quantity = 0
		return wantErr
	})
	if !mesh.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	snap, _ := store.Load(ctx)
	if snap.Supplies[0].Quantity != 10 {
		t.Errorf("aborted update leaked a write: quantity=%d", snap.Supplies[0].Quantity)
	}
	if store.Version() != 1 {
		t.Errorf("expected version to stay 1, got %d", store.Version())
	}
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := mesh.Bootstrap(ctx, store, seedOne); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	a, _ := store.Load(ctx)
	b, _ := store.Load(ctx)

	a.Supplies[0].Quantity = 5
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	b.Supplies[0].Quantity = 1
	if err := store.Save(ctx, b); !errors.Is(err, mesh.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	snap, _ := store.Load(ctx)
	if snap.Supplies[0].Quantity != 5 {
		t.Errorf("expected winner's write, got %d", snap.Supplies[0].Quantity)
	}
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := mesh.Bootstrap(ctx, store, seedOne); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mesh.UpdateN(ctx, store, 50, func(s *mesh.Snapshot) error {
				s.Supplies[0].Quantity++
				return nil
			})
			if err != nil {
				t.Errorf("update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _ := store.Load(ctx)
	if snap.Supplies[0].Quantity != 14 {
		t.Errorf("expected 14 after four increments, got %d", snap.Supplies[0].Quantity)
	}
}

func TestUpdateRecordsEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := mesh.Bootstrap(ctx, store, seedOne); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	err := mesh.Update(ctx, store, func(s *mesh.Snapshot) error {
		return s.RecordChange(mesh.AggregateSupplyStock, "R1", mesh.EventStockAdjusted,
			mesh.StockAdjustedData{StockID: "R1", Delta: -1}, "U001", "H100")
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Version != 2 {
		t.Errorf("expected event stamped with version 2, got %d", events[0].Version)
	}
	if events[0].ActorID != "U001" {
		t.Errorf("expected actor U001, got %s", events[0].ActorID)
	}
}

func TestDecodeRejectsOtherSchema(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.SetRaw([]byte(`{"schemaVersion": 9, "version": 3, "hospitals": []}`))

	_, err := store.Load(ctx)
	if !errors.Is(err, mesh.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestSnapshotRoundTripKeepsEmptySlices(t *testing.T) {
	data, err := mesh.EncodeSnapshot(mesh.NewSnapshot())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	snap, err := mesh.DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if snap.Alerts == nil || snap.Supplies == nil {
		t.Error("expected empty slices, got nil")
	}
}

func TestSavesKeepPeerCountInStep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	snap, err := mesh.Bootstrap(ctx, store, seedOne)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if snap.ConnectedPeers != 0 {
		t.Errorf("a lone node has no peers, got %d", snap.ConnectedPeers)
	}

	err = mesh.Update(ctx, store, func(s *mesh.Snapshot) error {
		s.Hospitals = append(s.Hospitals,
			mesh.Hospital{ID: "H101", Name: "East"},
			mesh.Hospital{ID: "H102", Name: "West"},
		)
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConnectedPeers != 2 {
		t.Errorf("expected 2 peers after adding nodes, got %d", got.ConnectedPeers)
	}
	if got.LastSync.IsZero() {
		t.Error("expected last sync stamped")
	}
}

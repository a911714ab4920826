package transport_test

import (
	"context"
	"testing"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/transport"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
	"github.com/crisisnet/meshcore/internal/seed"
)

func setup(t *testing.T) (context.Context, *memory.Store, *transport.Engine) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := mesh.Bootstrap(ctx, store, seed.Default); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return ctx, store, transport.NewEngine(store, nil, nil)
}

func TestTransportLifecycle(t *testing.T) {
	ctx, store, engine := setup(t)
	total := func() int {
		snap, _ := store.Load(ctx)
		return snap.TotalStock()
	}()

	tr, err := engine.Schedule(ctx, transport.ScheduleInput{
		RequesterID: "U001", OriginHospitalID: "H100", DestinationHospitalID: "H103",
		Type: mesh.TransportSupplyRun, Notes: "Insulin run",
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if tr.Status != mesh.TransportScheduled {
		t.Fatalf("expected SCHEDULED, got %s", tr.Status)
	}

	if _, err := engine.Complete(ctx, tr.ID); !mesh.IsIllegalState(err) {
		t.Errorf("expected completing a scheduled job to fail, got %v", err)
	}

	dispatched, err := engine.Dispatch(ctx, tr.ID)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if dispatched.Status != mesh.TransportEnRoute || dispatched.DispatchedAt == nil {
		t.Errorf("unexpected dispatch result: %+v", dispatched)
	}

	if _, err := engine.Dispatch(ctx, tr.ID); !mesh.IsIllegalState(err) {
		t.Errorf("expected second dispatch to fail, got %v", err)
	}

	done, err := engine.Complete(ctx, tr.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Status != mesh.TransportCompleted || done.CompletedAt == nil {
		t.Errorf("unexpected completion: %+v", done)
	}

	snap, _ := store.Load(ctx)
	if snap.FindTransport(tr.ID).Status != mesh.TransportCompleted {
		t.Error("completion not persisted")
	}
	if snap.TotalStock() != total {
		t.Error("transport must not touch stock")
	}
}

func TestScheduleValidation(t *testing.T) {
	ctx, _, engine := setup(t)

	tests := []struct {
		name  string
		in    transport.ScheduleInput
		check func(error) bool
	}{
		{"missing origin", transport.ScheduleInput{RequesterID: "U001", Type: mesh.TransportSupplyRun}, mesh.IsValidation},
		{"bad type", transport.ScheduleInput{RequesterID: "U001", OriginHospitalID: "H100", Type: "AIRLIFT"}, mesh.IsValidation},
		{"unknown origin", transport.ScheduleInput{RequesterID: "U001", OriginHospitalID: "H900", Type: mesh.TransportStaffRotation}, mesh.IsNotFound},
		{"unknown destination", transport.ScheduleInput{RequesterID: "U001", OriginHospitalID: "H100", DestinationHospitalID: "H900", Type: mesh.TransportPatientTransfer}, mesh.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Schedule(ctx, tt.in); !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if _, err := engine.Dispatch(ctx, "TR-missing"); !mesh.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

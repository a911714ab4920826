package transfer_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/transfer"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/internal/seed"
)

var fixedNow = time.Date(2025, 11, 21, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (context.Context, *memory.Store, *transfer.Engine, *mesh.Patient) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	snap, err := mesh.Bootstrap(ctx, store, func() *mesh.Snapshot { return seed.Network(fixedNow) })
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	patient := seed.PatientByExternalID(snap, "P1001")
	if patient == nil || patient.HospitalID != "H100" {
		t.Fatalf("expected seeded patient P1001 at H100, got %+v", patient)
	}
	engine := transfer.NewEngine(store, nil, nil).WithClock(func() time.Time { return fixedNow })
	return ctx, store, engine, patient
}

func loadPatient(t *testing.T, ctx context.Context, store *memory.Store, id string) *mesh.Patient {
	t.Helper()
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return snap.FindPatient(id)
}

func TestAcceptMovesPatientOnce(t *testing.T) {
	ctx, store, engine, patient := setup(t)

	tf, err := engine.Request(ctx, transfer.RequestInput{
		PatientID:                 patient.ID,
		CurrentHospitalID:         "H100",
		RequesterID:               "U003",
		Urgency:                   mesh.UrgencyImmediate,
		Reason:                    "Needs surgical referral",
		SuggestedTargetHospitalID: "H103",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if tf.Status != mesh.TransferPending || tf.PatientName != "Mira Joud" {
		t.Fatalf("unexpected transfer: %+v", tf)
	}

	accepted, err := engine.Accept(ctx, tf.ID, "H103")
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.Status != mesh.TransferApproved || accepted.TargetHospitalID != "H103" {
		t.Errorf("unexpected transfer after accept: %+v", accepted)
	}
	if accepted.CurrentHospitalID != "H100" {
		t.Errorf("origin must not change, got %s", accepted.CurrentHospitalID)
	}

	moved := loadPatient(t, ctx, store, patient.ID)
	if moved.HospitalID != "H103" {
		t.Errorf("expected patient at H103, got %s", moved.HospitalID)
	}
	rec := moved.Records[0]
	if rec.Type != mesh.RecordTransfer {
		t.Fatalf("expected TRANSFER record first, got %s", rec.Type)
	}
	if rec.Description != "Transfer Completed. Moved from H100 to H103. Urgency: IMMEDIATE" {
		t.Errorf("unexpected description: %s", rec.Description)
	}
	if rec.Location != "H103" || rec.DoctorName != "System Director" {
		t.Errorf("unexpected record: %+v", rec)
	}
	records := len(moved.Records)

	if _, err := engine.Accept(ctx, tf.ID, "H104"); !mesh.IsIllegalState(err) {
		t.Fatalf("expected illegal state on second accept, got %v", err)
	}
	if _, err := engine.Reject(ctx, tf.ID); !mesh.IsIllegalState(err) {
		t.Fatalf("expected illegal state on reject after accept, got %v", err)
	}

	again := loadPatient(t, ctx, store, patient.ID)
	if again.HospitalID != "H103" || len(again.Records) != records {
		t.Errorf("terminal transfer mutated the patient: %s with %d records", again.HospitalID, len(again.Records))
	}
}

func TestRejectLeavesPatient(t *testing.T) {
	ctx, store, engine, patient := setup(t)

	tf, err := engine.Request(ctx, transfer.RequestInput{
		PatientID: patient.ID, CurrentHospitalID: "H100", RequesterID: "U003", Urgency: mesh.UrgencyStable,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	rejected, err := engine.Reject(ctx, tf.ID)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != mesh.TransferRejected || rejected.ResolvedAt == nil {
		t.Errorf("unexpected transfer: %+v", rejected)
	}
	if _, err := engine.Accept(ctx, tf.ID, "H103"); !mesh.IsIllegalState(err) {
		t.Errorf("expected illegal state, got %v", err)
	}

	after := loadPatient(t, ctx, store, patient.ID)
	if after.HospitalID != "H100" || len(after.Records) != len(patient.Records) {
		t.Errorf("reject must not touch the patient: %+v", after)
	}
}

func TestRequestValidation(t *testing.T) {
	ctx, _, engine, patient := setup(t)

	tests := []struct {
		name  string
		in    transfer.RequestInput
		check func(error) bool
	}{
		{"missing patient", transfer.RequestInput{CurrentHospitalID: "H100", RequesterID: "U003", Urgency: mesh.UrgencyStable}, mesh.IsValidation},
		{"bad urgency", transfer.RequestInput{PatientID: patient.ID, CurrentHospitalID: "H100", RequesterID: "U003", Urgency: "SOON"}, mesh.IsValidation},
		{"unknown patient", transfer.RequestInput{PatientID: "GHOST", CurrentHospitalID: "H100", RequesterID: "U003", Urgency: mesh.UrgencyStable}, mesh.IsNotFound},
		{"unknown suggestion", transfer.RequestInput{PatientID: patient.ID, CurrentHospitalID: "H100", RequesterID: "U003", Urgency: mesh.UrgencyStable, SuggestedTargetHospitalID: "H900"}, mesh.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Request(ctx, tt.in); !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if _, err := engine.Accept(ctx, "TF-missing", "H103"); !mesh.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestIncomingFiltersBySuggestion(t *testing.T) {
	ctx, _, engine, patient := setup(t)

	for _, target := range []string{"H103", "H104", ""} {
		if _, err := engine.Request(ctx, transfer.RequestInput{
			PatientID: patient.ID, CurrentHospitalID: "H100", RequesterID: "U003",
			Urgency: mesh.UrgencyStable, SuggestedTargetHospitalID: target,
		}); err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}

	incoming, err := engine.Incoming(ctx, "H103")
	if err != nil {
		t.Fatalf("incoming failed: %v", err)
	}
	if len(incoming) != 2 {
		t.Fatalf("expected 2 transfers visible to H103, got %d", len(incoming))
	}
	for _, tf := range incoming {
		if strings.HasPrefix(tf.SuggestedTargetHospitalID, "H104") {
			t.Errorf("H104 suggestion leaked: %+v", tf)
		}
	}
}

func TestMetricsCountRequestsApartFromResolutions(t *testing.T) {
	ctx, store, _, patient := setup(t)
	m := metrics.New(prometheus.NewRegistry())
	engine := transfer.NewEngine(store, nil, m).WithClock(func() time.Time { return fixedNow })

	first, err := engine.Request(ctx, transfer.RequestInput{
		PatientID: patient.ID, CurrentHospitalID: "H100", RequesterID: "U003", Urgency: mesh.UrgencyImmediate,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := engine.Request(ctx, transfer.RequestInput{
		PatientID: patient.ID, CurrentHospitalID: "H100", RequesterID: "U003", Urgency: mesh.UrgencyStable,
	}); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if got := testutil.ToFloat64(m.TransferRequests); got != 2 {
		t.Errorf("expected 2 requests counted, got %v", got)
	}
	if got := testutil.CollectAndCount(m.TransferResolutions); got != 0 {
		t.Errorf("opening a transfer must not count as a resolution, got %d series", got)
	}

	if _, err := engine.Reject(ctx, first.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if got := testutil.ToFloat64(m.TransferResolutions.WithLabelValues(string(mesh.TransferRejected))); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.TransferResolutions.WithLabelValues(string(mesh.TransferPending))); got != 0 {
		t.Errorf("PENDING is not a resolution, got %v", got)
	}
	if got := testutil.ToFloat64(m.TransferRequests); got != 2 {
		t.Errorf("resolving must not touch the request count, got %v", got)
	}
}

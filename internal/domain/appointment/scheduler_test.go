package appointment_test

import (
	"context"
	"strings"
	"testing"

	"github.com/crisisnet/meshcore/internal/domain/appointment"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
	"github.com/crisisnet/meshcore/internal/seed"
)

func setup(t *testing.T) (context.Context, *memory.Store, *appointment.Scheduler, *mesh.Patient) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	snap, err := mesh.Bootstrap(ctx, store, seed.Default)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	patient := seed.PatientByExternalID(snap, "P1004")
	if patient == nil {
		t.Fatal("seeded patient P1004 missing")
	}
	return ctx, store, appointment.NewScheduler(store, nil, nil), patient
}

func book(t *testing.T, ctx context.Context, s *appointment.Scheduler, patientID string) *mesh.MedicalRecord {
	t.Helper()
	rec, err := s.Book(ctx, patientID, "Wound check", "2025-11-25")
	if err != nil {
		t.Fatalf("book failed: %v", err)
	}
	return rec
}

func TestBookPrependsPendingRecord(t *testing.T) {
	ctx, store, s, patient := setup(t)
	rec := book(t, ctx, s, patient.ID)

	if rec.Description != "Requested: Wound check" || rec.DoctorName != "Pending Assignment" || rec.Location != "TBD" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Metadata == nil || rec.Metadata.Status != mesh.AppointmentPending || rec.Metadata.OriginalDate != "2025-11-25" {
		t.Errorf("unexpected metadata: %+v", rec.Metadata)
	}

	snap, _ := store.Load(ctx)
	stored := snap.FindPatient(patient.ID)
	if stored.Records[0].ID != rec.ID {
		t.Error("expected new appointment at index 0")
	}
	if len(stored.Records) != len(patient.Records)+1 {
		t.Errorf("expected one extra record, got %d", len(stored.Records))
	}
}

func TestBookValidation(t *testing.T) {
	ctx, _, s, patient := setup(t)

	if _, err := s.Book(ctx, patient.ID, "", "2025-11-25"); !mesh.IsValidation(err) {
		t.Errorf("expected missing reason rejected, got %v", err)
	}
	if _, err := s.Book(ctx, patient.ID, "Checkup", ""); !mesh.IsValidation(err) {
		t.Errorf("expected missing date rejected, got %v", err)
	}
	if _, err := s.Book(ctx, patient.ID, "Checkup", "soon"); !mesh.IsValidation(err) {
		t.Errorf("expected bad date rejected, got %v", err)
	}
	if _, err := s.Book(ctx, "GHOST", "Checkup", "2025-11-25"); !mesh.IsNotFound(err) {
		t.Errorf("expected unknown patient, got %v", err)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	ctx, _, s, patient := setup(t)
	rec := book(t, ctx, s, patient.ID)

	for i := 0; i < 2; i++ {
		confirmed, err := s.Confirm(ctx, patient.ID, rec.ID)
		if err != nil {
			t.Fatalf("confirm %d failed: %v", i, err)
		}
		if confirmed.Metadata.Status != mesh.AppointmentConfirmed {
			t.Errorf("expected CONFIRMED, got %s", confirmed.Metadata.Status)
		}
		if confirmed.Description != "Confirmed: Wound check" {
			t.Errorf("unexpected description: %s", confirmed.Description)
		}
	}

	if _, err := s.Postpone(ctx, appointment.PostponeInput{PatientID: patient.ID, RecordID: rec.ID, NewDate: "2025-12-01"}); !mesh.IsIllegalState(err) {
		t.Errorf("expected postpone after confirm to fail, got %v", err)
	}
	if _, err := s.Cancel(ctx, patient.ID, rec.ID); !mesh.IsIllegalState(err) {
		t.Errorf("expected cancel after confirm to fail, got %v", err)
	}
}

func TestPostponeRewritesDateAndDoctor(t *testing.T) {
	ctx, store, s, patient := setup(t)
	rec := book(t, ctx, s, patient.ID)

	postponed, err := s.Postpone(ctx, appointment.PostponeInput{
		PatientID: patient.ID, RecordID: rec.ID, NewDate: "2025-12-02", NewDoctorID: "U009",
	})
	if err != nil {
		t.Fatalf("postpone failed: %v", err)
	}

	if postponed.Date != "2025-12-02" || postponed.Metadata.Status != mesh.AppointmentPostponed {
		t.Errorf("unexpected record: %+v", postponed)
	}
	want := "Postponed to 2025-12-02. Reassigned to Dr. Dr. Faiz Almas. Requested: Wound check"
	if postponed.Description != want {
		t.Errorf("expected %q, got %q", want, postponed.Description)
	}
	if postponed.DoctorName != "Dr. Faiz Almas" {
		t.Errorf("expected doctor rewritten, got %s", postponed.DoctorName)
	}
	if postponed.Metadata.OriginalDate != "2025-11-25" {
		t.Errorf("original date must be kept, got %s", postponed.Metadata.OriginalDate)
	}

	snap, _ := store.Load(ctx)
	if got := snap.FindPatient(patient.ID).AssignedDoctorID; got != "U009" {
		t.Errorf("expected assigned doctor U009, got %s", got)
	}

	if _, err := s.Postpone(ctx, appointment.PostponeInput{PatientID: patient.ID, RecordID: rec.ID, NewDate: "2025-12-09"}); !mesh.IsIllegalState(err) {
		t.Errorf("expected second postpone to fail, got %v", err)
	}
	again := snap.FindPatient(patient.ID).FindRecord(rec.ID)
	if strings.Count(again.Description, "Postponed to") != 1 {
		t.Errorf("postpone prefix duplicated: %s", again.Description)
	}
}

func TestPostponeKeepsPatientReason(t *testing.T) {
	ctx, store, s, patient := setup(t)

	rec, err := s.Book(ctx, patient.ID, "Postponed surgery review. Bring X-rays", "2025-11-25")
	if err != nil {
		t.Fatalf("book failed: %v", err)
	}
	postponed, err := s.Postpone(ctx, appointment.PostponeInput{PatientID: patient.ID, RecordID: rec.ID, NewDate: "2025-12-01"})
	if err != nil {
		t.Fatalf("postpone failed: %v", err)
	}
	want := "Postponed to 2025-12-01. Requested: Postponed surgery review. Bring X-rays"
	if postponed.Description != want {
		t.Errorf("expected %q, got %q", want, postponed.Description)
	}

	// A pending record that already carries a written prefix has it replaced
	stale, err := s.Book(ctx, patient.ID, "Wound check", "2025-11-26")
	if err != nil {
		t.Fatalf("book failed: %v", err)
	}
	err = mesh.Update(ctx, store, func(snap *mesh.Snapshot) error {
		r := snap.FindPatient(patient.ID).FindRecord(stale.ID)
		r.Description = "Postponed to 2025-11-30. Reassigned to Dr. Dr. Faiz Almas. Requested: Wound check"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.Postpone(ctx, appointment.PostponeInput{PatientID: patient.ID, RecordID: stale.ID, NewDate: "2025-12-03"})
	if err != nil {
		t.Fatalf("postpone failed: %v", err)
	}
	if want := "Postponed to 2025-12-03. Requested: Wound check"; again.Description != want {
		t.Errorf("expected %q, got %q", want, again.Description)
	}
}

func TestCancelAndWrongRecordType(t *testing.T) {
	ctx, _, s, patient := setup(t)
	rec := book(t, ctx, s, patient.ID)

	cancelled, err := s.Cancel(ctx, patient.ID, rec.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Metadata.Status != mesh.AppointmentCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Metadata.Status)
	}
	if _, err := s.Confirm(ctx, patient.ID, rec.ID); !mesh.IsIllegalState(err) {
		t.Errorf("expected confirm after cancel to fail, got %v", err)
	}

	note := patient.Records[len(patient.Records)-1]
	if note.Type != mesh.RecordNote {
		t.Fatalf("expected seeded NOTE record, got %s", note.Type)
	}
	if _, err := s.Confirm(ctx, patient.ID, note.ID); !mesh.IsIllegalState(err) {
		t.Errorf("expected NOTE record rejected, got %v", err)
	}
	if _, err := s.Confirm(ctx, patient.ID, "APT-missing"); !mesh.IsNotFound(err) {
		t.Errorf("expected unknown record, got %v", err)
	}

	list, err := s.List(ctx, patient.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 appointment, got %d", len(list))
	}
}

package staff_test

import (
	"context"
	"testing"
	"time"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/staff"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
	"github.com/crisisnet/meshcore/internal/seed"
)

func setup(t *testing.T) (context.Context, *staff.Directory) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	seeded := time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC)
	if _, err := mesh.Bootstrap(ctx, store, func() *mesh.Snapshot { return seed.Network(seeded) }); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	later := seeded.Add(3 * time.Hour)
	return ctx, staff.NewDirectory(store, nil).WithClock(func() time.Time { return later })
}

func TestDirectorLookup(t *testing.T) {
	ctx, dir := setup(t)

	want := map[string]string{"H100": "U001", "H101": "U005", "H102": "U007", "H103": "U009", "H104": "U011"}
	for hospital, id := range want {
		d, err := dir.Director(ctx, hospital)
		if err != nil {
			t.Fatalf("director %s failed: %v", hospital, err)
		}
		if d.ID != id {
			t.Errorf("%s: expected %s, got %s", hospital, id, d.ID)
		}
	}
	if _, err := dir.Director(ctx, "H999"); !mesh.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateStatusStampsCheckIn(t *testing.T) {
	ctx, dir := setup(t)

	m, err := dir.UpdateStatus(ctx, "U004", mesh.StaffAvailable)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if m.Status != mesh.StaffAvailable {
		t.Errorf("expected AVAILABLE, got %s", m.Status)
	}
	if !m.LastCheckIn.Equal(time.Date(2025, 11, 20, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("expected check-in stamped, got %s", m.LastCheckIn)
	}

	available, err := dir.Available(ctx, "H100", mesh.RoleDoctor)
	if err != nil {
		t.Fatalf("available failed: %v", err)
	}
	if len(available) != 2 {
		t.Errorf("expected U003 and U004 available, got %d", len(available))
	}

	if _, err := dir.UpdateStatus(ctx, "U004", "ASLEEP"); !mesh.IsValidation(err) {
		t.Errorf("expected bad status rejected, got %v", err)
	}
	if _, err := dir.UpdateStatus(ctx, "U999", mesh.StaffBusy); !mesh.IsNotFound(err) {
		t.Errorf("expected unknown staff, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	ctx, dir := setup(t)

	m, err := dir.Register(ctx, staff.RegisterInput{Name: "Nurse Hala", Role: mesh.RoleNurse, HospitalID: "H101"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if m.Status != mesh.StaffAvailable || m.ID == "" {
		t.Errorf("unexpected member: %+v", m)
	}

	members, err := dir.ListByHospital(ctx, "H101")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(members) != 3 {
		t.Errorf("expected 3 members at H101, got %d", len(members))
	}

	if _, err := dir.Register(ctx, staff.RegisterInput{ID: "U001", Name: "Dup", Role: mesh.RoleDoctor, HospitalID: "H100"}); !mesh.IsValidation(err) {
		t.Errorf("expected duplicate id rejected, got %v", err)
	}
	if _, err := dir.Register(ctx, staff.RegisterInput{Name: "X", Role: "janitor", HospitalID: "H100"}); !mesh.IsValidation(err) {
		t.Errorf("expected bad role rejected, got %v", err)
	}
	if _, err := dir.Register(ctx, staff.RegisterInput{Name: "X", Role: mesh.RoleNurse, HospitalID: "H999"}); !mesh.IsNotFound(err) {
		t.Errorf("expected unknown hospital, got %v", err)
	}
}

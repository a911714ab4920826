// Package staff maintains the directory of people acting for each node.
package staff

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

const kind = "staff"

// Directory reads and updates staff members
type Directory struct {
	store  mesh.Store
	clock  mesh.Clock
	logger *zap.Logger
}

// NewDirectory creates a directory backed by store
func NewDirectory(store mesh.Store, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, clock: mesh.SystemClock, logger: logger}
}

// WithClock replaces the wall clock
func (d *Directory) WithClock(c mesh.Clock) *Directory {
	d.clock = c
	return d
}

// RegisterInput describes a new staff member. ID is generated when empty.
type RegisterInput struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Role       mesh.StaffRole `json:"role"`
	HospitalID string         `json:"hospitalId"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
}

// Register adds a member as AVAILABLE
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*mesh.StaffMember, error) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nil, mesh.Invalid("name", "is required")
	case !in.Role.Valid():
		return nil, mesh.Invalid("role", "must be doctor, director or nurse")
	case in.HospitalID == "":
		return nil, mesh.Invalid("hospitalId", "is required")
	}

	var member mesh.StaffMember
	err := mesh.Update(ctx, d.store, func(snap *mesh.Snapshot) error {
		if snap.FindHospital(in.HospitalID) == nil {
			return mesh.NotFound("hospital", in.HospitalID)
		}
		id := in.ID
		if id == "" {
			id = mesh.NewID("U")
		} else if snap.FindStaff(id) != nil {
			return mesh.Invalid("id", "already registered")
		}
		member = mesh.StaffMember{
			ID:          id,
			Name:        strings.TrimSpace(in.Name),
			Role:        in.Role,
			HospitalID:  in.HospitalID,
			Email:       in.Email,
			Phone:       in.Phone,
			Status:      mesh.StaffAvailable,
			LastCheckIn: d.clock(),
		}
		snap.Staff = append(snap.Staff, member)
		return snap.RecordChange(mesh.AggregateStaff, member.ID, mesh.EventStaffRegistered,
			member, member.ID, member.HospitalID)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("staff registered",
		zap.String("staff_id", member.ID),
		zap.String("hospital_id", member.HospitalID),
		zap.String("role", string(member.Role)),
	)
	return &member, nil
}

// UpdateStatus sets presence and stamps the check-in time
func (d *Directory) UpdateStatus(ctx context.Context, id string, status mesh.StaffStatus) (*mesh.StaffMember, error) {
	if !status.Valid() {
		return nil, mesh.Invalid("status", "unknown status "+string(status))
	}

	var member mesh.StaffMember
	err := mesh.Update(ctx, d.store, func(snap *mesh.Snapshot) error {
		m := snap.FindStaff(id)
		if m == nil {
			return mesh.NotFound(kind, id)
		}
		from := m.Status
		m.Status = status
		m.LastCheckIn = d.clock()
		member = *m
		return snap.RecordChange(mesh.AggregateStaff, m.ID, mesh.EventStaffStatusChanged,
			mesh.StatusChangedData{From: string(from), To: string(status)}, m.ID, m.HospitalID)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("staff status changed",
		zap.String("staff_id", member.ID),
		zap.String("status", string(member.Status)),
	)
	return &member, nil
}

// Get returns one member
func (d *Directory) Get(ctx context.Context, id string) (*mesh.StaffMember, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	m := snap.FindStaff(id)
	if m == nil {
		return nil, mesh.NotFound(kind, id)
	}
	return m, nil
}

// ListByHospital returns the members of a node, or everyone when hospitalID is empty
func (d *Directory) ListByHospital(ctx context.Context, hospitalID string) ([]mesh.StaffMember, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filter(snap.Staff, func(m mesh.StaffMember) bool {
		return hospitalID == "" || m.HospitalID == hospitalID
	}), nil
}

// Director returns the director of a node
func (d *Directory) Director(ctx context.Context, hospitalID string) (*mesh.StaffMember, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Staff {
		if snap.Staff[i].HospitalID == hospitalID && snap.Staff[i].Role == mesh.RoleDirector {
			return &snap.Staff[i], nil
		}
	}
	return nil, mesh.NotFound("director", hospitalID)
}

// Available returns AVAILABLE members of a node with the given role
func (d *Directory) Available(ctx context.Context, hospitalID string, role mesh.StaffRole) ([]mesh.StaffMember, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filter(snap.Staff, func(m mesh.StaffMember) bool {
		return m.HospitalID == hospitalID && m.Role == role && m.Status == mesh.StaffAvailable
	}), nil
}

func filter(members []mesh.StaffMember, keep func(mesh.StaffMember) bool) []mesh.StaffMember {
	out := make([]mesh.StaffMember, 0)
	for _, m := range members {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

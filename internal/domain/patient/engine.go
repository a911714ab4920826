// Package patient implements edits to a patient's chart outside the
// appointment and transfer workflows.
package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
)

const (
	selfReportedSuffix = " (Self-Reported)"
	selfDoctor         = "Self"
	remoteLocation     = "Remote"
)

// Engine applies chart edits to patients in the snapshot
type Engine struct {
	store   mesh.Store
	clock   mesh.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewEngine creates a patient engine backed by store
func NewEngine(store mesh.Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		clock:   mesh.SystemClock,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("patient-engine"),
	}
}

// WithClock replaces the wall clock
func (e *Engine) WithClock(c mesh.Clock) *Engine {
	e.clock = c
	return e
}

// ConditionReportedData is the payload of a PatientConditionReported event
type ConditionReportedData struct {
	Condition string `json:"condition"`
	RecordID  string `json:"recordId"`
}

// AddCondition appends a self-reported condition to the patient's list and
// prepends a NOTE record describing it.
func (e *Engine) AddCondition(ctx context.Context, patientID, condition string) (*mesh.Patient, error) {
	ctx, span := e.tracer.Start(ctx, "patient.add_condition",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	condition = strings.TrimSpace(condition)
	switch {
	case patientID == "":
		return nil, mesh.Invalid("patientId", "is required")
	case condition == "":
		return nil, mesh.Invalid("condition", "is required")
	}

	var out mesh.Patient
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		p := snap.FindPatient(patientID)
		if p == nil {
			return mesh.NotFound("patient", patientID)
		}
		now := e.clock()
		rec := mesh.MedicalRecord{
			ID:          mesh.NewID("RPT"),
			Date:        now.Format(time.RFC3339),
			Type:        mesh.RecordNote,
			Description: fmt.Sprintf("Patient self-reported condition: %s", condition),
			DoctorName:  selfDoctor,
			Location:    remoteLocation,
		}
		p.Conditions = append(p.Conditions, condition+selfReportedSuffix)
		p.PrependRecord(rec)
		p.LastUpdated = now
		out = *p
		return snap.RecordChange(mesh.AggregatePatient, p.ID, mesh.EventConditionReported,
			ConditionReportedData{Condition: condition, RecordID: rec.ID}, p.ID, p.HospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.PatientUpdated("condition")
	e.logger.Info("patient condition reported",
		zap.String("patient_id", out.ID),
		zap.String("hospital_id", out.HospitalID),
	)
	return &out, nil
}

// DoctorAssignedData is the payload of a PatientDoctorAssigned event
type DoctorAssignedData struct {
	FromDoctorID string `json:"fromDoctorId,omitempty"`
	ToDoctorID   string `json:"toDoctorId"`
}

// AssignDoctor makes doctorID the patient's primary clinician. Only doctors
// and directors may hold the assignment.
func (e *Engine) AssignDoctor(ctx context.Context, patientID, doctorID string) (*mesh.Patient, error) {
	ctx, span := e.tracer.Start(ctx, "patient.assign_doctor",
		trace.WithAttributes(
			attribute.String("patient_id", patientID),
			attribute.String("doctor_id", doctorID),
		))
	defer span.End()

	switch {
	case patientID == "":
		return nil, mesh.Invalid("patientId", "is required")
	case doctorID == "":
		return nil, mesh.Invalid("doctorId", "is required")
	}

	var (
		out  mesh.Patient
		from string
	)
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		p := snap.FindPatient(patientID)
		if p == nil {
			return mesh.NotFound("patient", patientID)
		}
		doc := snap.FindStaff(doctorID)
		if doc == nil {
			return mesh.NotFound("staff member", doctorID)
		}
		if doc.Role != mesh.RoleDoctor && doc.Role != mesh.RoleDirector {
			return mesh.Invalid("doctorId", fmt.Sprintf("%s is a %s", doctorID, doc.Role))
		}

		from = p.AssignedDoctorID
		p.AssignedDoctorID = doctorID
		p.LastUpdated = e.clock()
		out = *p
		return snap.RecordChange(mesh.AggregatePatient, p.ID, mesh.EventDoctorAssigned,
			DoctorAssignedData{FromDoctorID: from, ToDoctorID: doctorID}, doctorID, p.HospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.PatientUpdated("doctor")
	e.logger.Info("patient doctor assigned",
		zap.String("patient_id", out.ID),
		zap.String("from_doctor_id", from),
		zap.String("doctor_id", doctorID),
	)
	return &out, nil
}

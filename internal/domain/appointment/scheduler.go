// Package appointment manages APPOINTMENT records on a patient's history.
// An appointment starts PENDING and moves once to CONFIRMED, POSTPONED or
// CANCELLED.
package appointment

import (
	"context"
	"fmt"
	"regexp"
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
	kind = "appointment"

	requestedPrefix = "Requested:"
	confirmedPrefix = "Confirmed:"
	pendingDoctor   = "Pending Assignment"
	pendingLocation = "TBD"
)

var (
	// Only a prefix this scheduler wrote, directly ahead of the status label
	postponedPrefix = regexp.MustCompile(`^Postponed to \S+\. (?:Reassigned to .*?\. )?((?:Requested|Confirmed):)`)
	dateLayouts     = []string{"2006-01-02", "2006-01-02T15:04", time.RFC3339}
)

// Scheduler owns the appointment state machine
type Scheduler struct {
	store   mesh.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewScheduler creates a scheduler backed by store
func NewScheduler(store mesh.Store, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:   store,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("appointment-scheduler"),
	}
}

func validDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Book prepends a PENDING appointment request to the patient's records
func (s *Scheduler) Book(ctx context.Context, patientID, reason, requestedDate string) (*mesh.MedicalRecord, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.book",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, mesh.Invalid("reason", "is required")
	}
	if requestedDate == "" {
		return nil, mesh.Invalid("requestedDate", "is required")
	}
	if !validDate(requestedDate) {
		return nil, mesh.Invalid("requestedDate", "must be a date")
	}

	var rec mesh.MedicalRecord
	err := mesh.Update(ctx, s.store, func(snap *mesh.Snapshot) error {
		patient := snap.FindPatient(patientID)
		if patient == nil {
			return mesh.NotFound("patient", patientID)
		}
		rec = mesh.MedicalRecord{
			ID:          mesh.NewID("APT"),
			Date:        requestedDate,
			Type:        mesh.RecordAppointment,
			Description: requestedPrefix + " " + strings.TrimSpace(reason),
			DoctorName:  pendingDoctor,
			Location:    pendingLocation,
			Metadata: &mesh.RecordMetadata{
				Status:       mesh.AppointmentPending,
				OriginalDate: requestedDate,
			},
		}
		patient.PrependRecord(rec)
		return snap.RecordChange(mesh.AggregatePatient, patient.ID, mesh.EventAppointmentBooked,
			rec, patient.ID, patient.HospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.AppointmentMoved(string(mesh.AppointmentPending))
	s.logger.Info("appointment booked",
		zap.String("patient_id", patientID),
		zap.String("record_id", rec.ID),
		zap.String("date", rec.Date),
	)
	return &rec, nil
}

// Confirm moves a PENDING appointment to CONFIRMED. Confirming an already
// confirmed appointment succeeds without further change.
func (s *Scheduler) Confirm(ctx context.Context, patientID, recordID string) (*mesh.MedicalRecord, error) {
	var rec mesh.MedicalRecord
	err := s.transition(ctx, "appointment.confirm", patientID, recordID, mesh.AppointmentConfirmed,
		func(snap *mesh.Snapshot, patient *mesh.Patient, r *mesh.MedicalRecord) error {
			if r.Metadata.Status == mesh.AppointmentConfirmed {
				r.Description = strings.Replace(r.Description, requestedPrefix, confirmedPrefix, 1)
				rec = *r
				return nil
			}
			if r.Metadata.Status != mesh.AppointmentPending {
				return mesh.IllegalTransition(kind, r.ID, r.Metadata.Status, mesh.AppointmentConfirmed)
			}
			r.Metadata.Status = mesh.AppointmentConfirmed
			r.Description = strings.Replace(r.Description, requestedPrefix, confirmedPrefix, 1)
			rec = *r
			return snap.RecordChange(mesh.AggregatePatient, patient.ID, mesh.EventAppointmentConfirmed,
				mesh.StatusChangedData{From: string(mesh.AppointmentPending), To: string(mesh.AppointmentConfirmed)},
				"", patient.HospitalID)
		})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PostponeInput moves an appointment to a new date and optionally a new doctor
type PostponeInput struct {
	PatientID     string `json:"patientId"`
	RecordID      string `json:"recordId"`
	NewDate       string `json:"newDate"`
	NewDoctorID   string `json:"newDoctorId,omitempty"`
	NewDoctorName string `json:"newDoctorName,omitempty"`
}

// PostponedData is the payload of an AppointmentPostponed event
type PostponedData struct {
	RecordID    string `json:"recordId"`
	NewDate     string `json:"newDate"`
	NewDoctorID string `json:"newDoctorId,omitempty"`
	DoctorName  string `json:"doctorName,omitempty"`
}

// Postpone moves a PENDING appointment to POSTPONED at NewDate
func (s *Scheduler) Postpone(ctx context.Context, in PostponeInput) (*mesh.MedicalRecord, error) {
	if in.NewDate == "" {
		return nil, mesh.Invalid("newDate", "is required")
	}
	if !validDate(in.NewDate) {
		return nil, mesh.Invalid("newDate", "must be a date")
	}

	var rec mesh.MedicalRecord
	err := s.transition(ctx, "appointment.postpone", in.PatientID, in.RecordID, mesh.AppointmentPostponed,
		func(snap *mesh.Snapshot, patient *mesh.Patient, r *mesh.MedicalRecord) error {
			if r.Metadata.Status != mesh.AppointmentPending {
				return mesh.IllegalTransition(kind, r.ID, r.Metadata.Status, mesh.AppointmentPostponed)
			}

			doctorName := in.NewDoctorName
			if in.NewDoctorID != "" {
				doctor := snap.FindStaff(in.NewDoctorID)
				if doctor == nil {
					return mesh.NotFound("staff", in.NewDoctorID)
				}
				if doctorName == "" {
					doctorName = doctor.Name
				}
			}

			prefix := fmt.Sprintf("Postponed to %s. ", in.NewDate)
			if doctorName != "" {
				prefix += fmt.Sprintf("Reassigned to Dr. %s. ", doctorName)
				r.DoctorName = doctorName
				if in.NewDoctorID != "" {
					patient.AssignedDoctorID = in.NewDoctorID
				}
			}
			r.Description = prefix + postponedPrefix.ReplaceAllString(r.Description, "${1}")
			r.Date = in.NewDate
			r.Metadata.Status = mesh.AppointmentPostponed
			rec = *r

			return snap.RecordChange(mesh.AggregatePatient, patient.ID, mesh.EventAppointmentPostponed,
				PostponedData{RecordID: r.ID, NewDate: in.NewDate, NewDoctorID: in.NewDoctorID, DoctorName: doctorName},
				in.NewDoctorID, patient.HospitalID)
		})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Cancel moves a PENDING appointment to CANCELLED
func (s *Scheduler) Cancel(ctx context.Context, patientID, recordID string) (*mesh.MedicalRecord, error) {
	var rec mesh.MedicalRecord
	err := s.transition(ctx, "appointment.cancel", patientID, recordID, mesh.AppointmentCancelled,
		func(snap *mesh.Snapshot, patient *mesh.Patient, r *mesh.MedicalRecord) error {
			if r.Metadata.Status != mesh.AppointmentPending {
				return mesh.IllegalTransition(kind, r.ID, r.Metadata.Status, mesh.AppointmentCancelled)
			}
			r.Metadata.Status = mesh.AppointmentCancelled
			rec = *r
			return snap.RecordChange(mesh.AggregatePatient, patient.ID, mesh.EventAppointmentCancelled,
				mesh.StatusChangedData{From: string(mesh.AppointmentPending), To: string(mesh.AppointmentCancelled)},
				"", patient.HospitalID)
		})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the patient's appointment records, newest first
func (s *Scheduler) List(ctx context.Context, patientID string) ([]mesh.MedicalRecord, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	patient := snap.FindPatient(patientID)
	if patient == nil {
		return nil, mesh.NotFound("patient", patientID)
	}
	out := make([]mesh.MedicalRecord, 0)
	for _, r := range patient.Records {
		if r.Type == mesh.RecordAppointment {
			out = append(out, r)
		}
	}
	return out, nil
}

type applyFunc func(snap *mesh.Snapshot, patient *mesh.Patient, rec *mesh.MedicalRecord) error

// transition locates the appointment record and runs apply inside one update
func (s *Scheduler) transition(ctx context.Context, op, patientID, recordID string, to mesh.AppointmentStatus, apply applyFunc) error {
	ctx, span := s.tracer.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("patient_id", patientID),
			attribute.String("record_id", recordID),
		))
	defer span.End()

	err := mesh.Update(ctx, s.store, func(snap *mesh.Snapshot) error {
		patient := snap.FindPatient(patientID)
		if patient == nil {
			return mesh.NotFound("patient", patientID)
		}
		rec := patient.FindRecord(recordID)
		if rec == nil {
			return mesh.NotFound("record", recordID)
		}
		if rec.Type != mesh.RecordAppointment {
			return mesh.IllegalTransition(kind, rec.ID, rec.Type, to)
		}
		if rec.Metadata == nil {
			rec.Metadata = &mesh.RecordMetadata{Status: mesh.AppointmentPending}
		}
		return apply(snap, patient, rec)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.metrics.AppointmentMoved(string(to))
	s.logger.Info("appointment updated",
		zap.String("patient_id", patientID),
		zap.String("record_id", recordID),
		zap.String("status", string(to)),
	)
	return nil
}

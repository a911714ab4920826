// Package transfer implements patient transfer requests between nodes.
package transfer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
)

const (
	kind = "patient transfer"

	// systemDoctor signs the TRANSFER record written on acceptance
	systemDoctor = "System Director"
)

// Engine owns the patient transfer state machine
type Engine struct {
	store   mesh.Store
	clock   mesh.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewEngine creates a transfer engine backed by store
func NewEngine(store mesh.Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		clock:   mesh.SystemClock,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("transfer-engine"),
	}
}

// WithClock replaces the wall clock
func (e *Engine) WithClock(c mesh.Clock) *Engine {
	e.clock = c
	return e
}

// RequestInput describes a new transfer
type RequestInput struct {
	PatientID                 string       `json:"patientId"`
	PatientName               string       `json:"patientName,omitempty"`
	CurrentHospitalID         string       `json:"currentHospitalId"`
	RequesterID               string       `json:"requesterId"`
	Urgency                   mesh.Urgency `json:"urgency"`
	Reason                    string       `json:"reason"`
	SuggestedTargetHospitalID string       `json:"suggestedTargetHospitalId,omitempty"`
	TargetHospitalType        string       `json:"targetHospitalType,omitempty"`
}

// Request records a PENDING transfer
func (e *Engine) Request(ctx context.Context, in RequestInput) (*mesh.PatientTransferRequest, error) {
	ctx, span := e.tracer.Start(ctx, "transfer.request",
		trace.WithAttributes(attribute.String("patient_id", in.PatientID)))
	defer span.End()

	switch {
	case in.PatientID == "":
		return nil, mesh.Invalid("patientId", "is required")
	case in.CurrentHospitalID == "":
		return nil, mesh.Invalid("currentHospitalId", "is required")
	case in.RequesterID == "":
		return nil, mesh.Invalid("requesterId", "is required")
	case !in.Urgency.Valid():
		return nil, mesh.Invalid("urgency", "must be IMMEDIATE or STABLE")
	}

	var created mesh.PatientTransferRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		patient := snap.FindPatient(in.PatientID)
		if patient == nil {
			return mesh.NotFound("patient", in.PatientID)
		}
		if snap.FindHospital(in.CurrentHospitalID) == nil {
			return mesh.NotFound("hospital", in.CurrentHospitalID)
		}
		if in.SuggestedTargetHospitalID != "" && snap.FindHospital(in.SuggestedTargetHospitalID) == nil {
			return mesh.NotFound("hospital", in.SuggestedTargetHospitalID)
		}

		name := in.PatientName
		if name == "" {
			name = patient.Name
		}
		created = mesh.PatientTransferRequest{
			ID:                        mesh.NewID("TF"),
			PatientID:                 in.PatientID,
			PatientName:               name,
			CurrentHospitalID:         in.CurrentHospitalID,
			SuggestedTargetHospitalID: in.SuggestedTargetHospitalID,
			TargetHospitalType:        in.TargetHospitalType,
			RequesterID:               in.RequesterID,
			Urgency:                   in.Urgency,
			Reason:                    in.Reason,
			Status:                    mesh.TransferPending,
			Timestamp:                 e.clock(),
		}
		snap.TransferRequests = append([]mesh.PatientTransferRequest{created}, snap.TransferRequests...)
		return snap.RecordChange(mesh.AggregateTransfer, created.ID, mesh.EventTransferRequested,
			created, in.RequesterID, in.CurrentHospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.TransferRequested()
	e.logger.Info("patient transfer requested",
		zap.String("transfer_id", created.ID),
		zap.String("patient_id", created.PatientID),
		zap.String("hospital_id", created.CurrentHospitalID),
		zap.String("urgency", string(created.Urgency)),
	)
	return &created, nil
}

// AcceptedData is the payload of a PatientTransferAccepted event
type AcceptedData struct {
	PatientID        string `json:"patientId"`
	FromHospitalID   string `json:"fromHospitalId"`
	TargetHospitalID string `json:"targetHospitalId"`
	TransferRecordID string `json:"transferRecordId"`
}

// Accept approves a pending transfer, moves the patient to targetHospitalID
// and prepends a TRANSFER record to the patient's history.
func (e *Engine) Accept(ctx context.Context, transferID, targetHospitalID string) (*mesh.PatientTransferRequest, error) {
	ctx, span := e.tracer.Start(ctx, "transfer.accept",
		trace.WithAttributes(
			attribute.String("transfer_id", transferID),
			attribute.String("target_hospital_id", targetHospitalID),
		))
	defer span.End()

	if targetHospitalID == "" {
		return nil, mesh.Invalid("targetHospitalId", "is required")
	}

	var out mesh.PatientTransferRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		tf := snap.FindTransfer(transferID)
		if tf == nil {
			return mesh.NotFound(kind, transferID)
		}
		if tf.Status != mesh.TransferPending {
			return mesh.IllegalTransition(kind, tf.ID, tf.Status, mesh.TransferApproved)
		}
		if snap.FindHospital(targetHospitalID) == nil {
			return mesh.NotFound("hospital", targetHospitalID)
		}
		patient := snap.FindPatient(tf.PatientID)
		if patient == nil {
			return mesh.NotFound("patient", tf.PatientID)
		}

		now := e.clock()
		from := patient.HospitalID
		rec := mesh.MedicalRecord{
			ID:          mesh.NewID("REC"),
			Date:        now.Format(time.RFC3339),
			Type:        mesh.RecordTransfer,
			Description: fmt.Sprintf("Transfer Completed. Moved from %s to %s. Urgency: %s", from, targetHospitalID, tf.Urgency),
			DoctorName:  systemDoctor,
			Location:    targetHospitalID,
		}
		patient.HospitalID = targetHospitalID
		patient.LastUpdated = now
		patient.PrependRecord(rec)

		tf.Status = mesh.TransferApproved
		tf.TargetHospitalID = targetHospitalID
		tf.ResolvedAt = &now
		out = *tf

		return snap.RecordChange(mesh.AggregateTransfer, tf.ID, mesh.EventTransferAccepted,
			AcceptedData{
				PatientID:        tf.PatientID,
				FromHospitalID:   from,
				TargetHospitalID: targetHospitalID,
				TransferRecordID: rec.ID,
			}, "", targetHospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.TransferResolved(string(mesh.TransferApproved))
	e.logger.Info("patient transfer accepted",
		zap.String("transfer_id", out.ID),
		zap.String("patient_id", out.PatientID),
		zap.String("target_hospital_id", out.TargetHospitalID),
	)
	return &out, nil
}

// Reject closes a pending transfer without touching the patient
func (e *Engine) Reject(ctx context.Context, transferID string) (*mesh.PatientTransferRequest, error) {
	ctx, span := e.tracer.Start(ctx, "transfer.reject",
		trace.WithAttributes(attribute.String("transfer_id", transferID)))
	defer span.End()

	var out mesh.PatientTransferRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		tf := snap.FindTransfer(transferID)
		if tf == nil {
			return mesh.NotFound(kind, transferID)
		}
		if tf.Status != mesh.TransferPending {
			return mesh.IllegalTransition(kind, tf.ID, tf.Status, mesh.TransferRejected)
		}
		now := e.clock()
		tf.Status = mesh.TransferRejected
		tf.ResolvedAt = &now
		out = *tf
		return snap.RecordChange(mesh.AggregateTransfer, tf.ID, mesh.EventTransferRejected,
			mesh.StatusChangedData{From: string(mesh.TransferPending), To: string(mesh.TransferRejected)},
			"", tf.CurrentHospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.TransferResolved(string(mesh.TransferRejected))
	e.logger.Info("patient transfer rejected", zap.String("transfer_id", out.ID))
	return &out, nil
}

// Incoming lists pending transfers a node could accept: those suggested for it
// and those with no suggestion.
func (e *Engine) Incoming(ctx context.Context, hospitalID string) ([]mesh.PatientTransferRequest, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]mesh.PatientTransferRequest, 0)
	for _, tf := range snap.TransferRequests {
		if tf.Status != mesh.TransferPending || tf.CurrentHospitalID == hospitalID {
			continue
		}
		if tf.SuggestedTargetHospitalID == "" || tf.SuggestedTargetHospitalID == hospitalID {
			out = append(out, tf)
		}
	}
	return out, nil
}

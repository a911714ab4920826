// Package transport implements convoy scheduling and dispatch. Transport
// jobs never touch the stock ledger.
package transport

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
)

const kind = "transport"

// Engine owns the transport state machine: SCHEDULED -> EN_ROUTE -> COMPLETED
type Engine struct {
	store   mesh.Store
	clock   mesh.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewEngine creates a transport engine backed by store
func NewEngine(store mesh.Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		clock:   mesh.SystemClock,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("transport-engine"),
	}
}

// WithClock replaces the wall clock
func (e *Engine) WithClock(c mesh.Clock) *Engine {
	e.clock = c
	return e
}

// ScheduleInput describes a new convoy job
type ScheduleInput struct {
	RequesterID           string             `json:"requesterId"`
	OriginHospitalID      string             `json:"originHospitalId"`
	DestinationHospitalID string             `json:"destinationHospitalId,omitempty"`
	Type                  mesh.TransportType `json:"type"`
	Notes                 string             `json:"notes"`
}

// Schedule records a SCHEDULED job
func (e *Engine) Schedule(ctx context.Context, in ScheduleInput) (*mesh.TransportRequest, error) {
	ctx, span := e.tracer.Start(ctx, "transport.schedule",
		trace.WithAttributes(attribute.String("origin_hospital_id", in.OriginHospitalID)))
	defer span.End()

	switch {
	case in.RequesterID == "":
		return nil, mesh.Invalid("requesterId", "is required")
	case in.OriginHospitalID == "":
		return nil, mesh.Invalid("originHospitalId", "is required")
	case !in.Type.Valid():
		return nil, mesh.Invalid("type", "must be SUPPLY_RUN, PATIENT_TRANSFER or STAFF_ROTATION")
	}

	var created mesh.TransportRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		if snap.FindHospital(in.OriginHospitalID) == nil {
			return mesh.NotFound("hospital", in.OriginHospitalID)
		}
		if in.DestinationHospitalID != "" && snap.FindHospital(in.DestinationHospitalID) == nil {
			return mesh.NotFound("hospital", in.DestinationHospitalID)
		}
		created = mesh.TransportRequest{
			ID:                    mesh.NewID("TR"),
			RequesterID:           in.RequesterID,
			OriginHospitalID:      in.OriginHospitalID,
			DestinationHospitalID: in.DestinationHospitalID,
			Type:                  in.Type,
			Notes:                 in.Notes,
			Status:                mesh.TransportScheduled,
			Timestamp:             e.clock(),
		}
		snap.TransportRequests = append([]mesh.TransportRequest{created}, snap.TransportRequests...)
		return snap.RecordChange(mesh.AggregateTransport, created.ID, mesh.EventTransportScheduled,
			created, in.RequesterID, in.OriginHospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.TransportMoved(string(mesh.TransportScheduled))
	e.logger.Info("transport scheduled",
		zap.String("transport_id", created.ID),
		zap.String("origin_hospital_id", created.OriginHospitalID),
		zap.String("type", string(created.Type)),
	)
	return &created, nil
}

// Dispatch moves a SCHEDULED job EN_ROUTE
func (e *Engine) Dispatch(ctx context.Context, transportID string) (*mesh.TransportRequest, error) {
	return e.advance(ctx, "transport.dispatch", transportID,
		mesh.TransportScheduled, mesh.TransportEnRoute, mesh.EventTransportDispatched)
}

// Complete closes an EN_ROUTE job
func (e *Engine) Complete(ctx context.Context, transportID string) (*mesh.TransportRequest, error) {
	return e.advance(ctx, "transport.complete", transportID,
		mesh.TransportEnRoute, mesh.TransportCompleted, mesh.EventTransportCompleted)
}

func (e *Engine) advance(ctx context.Context, op, transportID string, from, to mesh.TransportStatus, event mesh.EventType) (*mesh.TransportRequest, error) {
	ctx, span := e.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("transport_id", transportID)))
	defer span.End()

	var out mesh.TransportRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		tr := snap.FindTransport(transportID)
		if tr == nil {
			return mesh.NotFound(kind, transportID)
		}
		if tr.Status != from {
			return mesh.IllegalTransition(kind, tr.ID, tr.Status, to)
		}
		now := e.clock()
		tr.Status = to
		switch to {
		case mesh.TransportEnRoute:
			tr.DispatchedAt = &now
		case mesh.TransportCompleted:
			tr.CompletedAt = &now
		}
		out = *tr
		return snap.RecordChange(mesh.AggregateTransport, tr.ID, event,
			mesh.StatusChangedData{From: string(from), To: string(to)}, "", tr.OriginHospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.TransportMoved(string(to))
	e.logger.Info("transport advanced",
		zap.String("transport_id", out.ID),
		zap.String("status", string(out.Status)),
	)
	return &out, nil
}

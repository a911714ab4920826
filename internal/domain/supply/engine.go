// Package supply implements the supply request lifecycle and the stock
// ledger movements applied when a request is resolved.
package supply

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
)

// DateLayout is the calendar format used for requiredByDate
const DateLayout = "2006-01-02"

const kind = "supply request"

// Engine owns the supply request state machine
type Engine struct {
	store   mesh.Store
	clock   mesh.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewEngine creates a supply engine backed by store
func NewEngine(store mesh.Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		clock:   mesh.SystemClock,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("supply-engine"),
	}
}

// WithClock replaces the wall clock
func (e *Engine) WithClock(c mesh.Clock) *Engine {
	e.clock = c
	return e
}

// CreateInput describes a new supply request
type CreateInput struct {
	ItemName         string              `json:"itemName"`
	Quantity         int                 `json:"quantity"`
	RequesterID      string              `json:"requesterId"`
	RequesterName    string              `json:"requesterName,omitempty"`
	HospitalID       string              `json:"hospitalId"`
	TargetHospitalID string              `json:"targetHospitalId,omitempty"`
	Severity         mesh.Severity       `json:"severity"`
	ResourceTypes    []mesh.ResourceType `json:"resourceTypes,omitempty"`
	PatientID        string              `json:"patientId,omitempty"`
	PatientName      string              `json:"patientName,omitempty"`
	Reason           string              `json:"reason,omitempty"`
	RequiredByDate   string              `json:"requiredByDate,omitempty"`
}

func (in *CreateInput) validate() error {
	if strings.TrimSpace(in.ItemName) == "" {
		return mesh.Invalid("itemName", "is required")
	}
	if in.Quantity <= 0 {
		return mesh.Invalid("quantity", "must be positive")
	}
	if in.RequesterID == "" {
		return mesh.Invalid("requesterId", "is required")
	}
	if in.HospitalID == "" {
		return mesh.Invalid("hospitalId", "is required")
	}
	if !in.Severity.Valid() {
		return mesh.Invalid("severity", "must be low, medium or critical")
	}
	for _, t := range in.ResourceTypes {
		if !t.Valid() {
			return mesh.Invalid("resourceTypes", "unknown tag "+string(t))
		}
	}
	if in.RequiredByDate != "" {
		if _, err := time.Parse(DateLayout, in.RequiredByDate); err != nil {
			return mesh.Invalid("requiredByDate", "must be YYYY-MM-DD")
		}
	}
	return nil
}

// Create records a PENDING request. The target defaults to the origin node.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*mesh.SupplyRequest, error) {
	ctx, span := e.tracer.Start(ctx, "supply.create")
	defer span.End()
	start := time.Now()

	if err := in.validate(); err != nil {
		return nil, err
	}

	var created mesh.SupplyRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		if snap.FindHospital(in.HospitalID) == nil {
			return mesh.NotFound("hospital", in.HospitalID)
		}
		target := in.TargetHospitalID
		if target == "" {
			target = in.HospitalID
		}
		if target != mesh.TargetBroadcast && snap.FindHospital(target) == nil {
			return mesh.NotFound("hospital", target)
		}

		requesterName := in.RequesterName
		if requesterName == "" {
			if member := snap.FindStaff(in.RequesterID); member != nil {
				requesterName = member.Name
			}
		}
		patientName := in.PatientName
		if in.PatientID != "" {
			patient := snap.FindPatient(in.PatientID)
			if patient == nil {
				return mesh.NotFound("patient", in.PatientID)
			}
			if patientName == "" {
				patientName = patient.Name
			}
		}

		now := e.clock()
		requiredBy := in.RequiredByDate
		if requiredBy == "" {
			requiredBy = now.Add(in.Severity.LeadTime()).Format(DateLayout)
		}

		created = mesh.SupplyRequest{
			ID:               mesh.NewID("SR"),
			ItemName:         strings.TrimSpace(in.ItemName),
			Quantity:         in.Quantity,
			Requester:        in.RequesterID,
			RequesterName:    requesterName,
			HospitalID:       in.HospitalID,
			TargetHospitalID: target,
			Status:           mesh.RequestPending,
			Severity:         in.Severity,
			ResourceTypes:    append([]mesh.ResourceType(nil), in.ResourceTypes...),
			PatientID:        in.PatientID,
			PatientName:      patientName,
			Reason:           in.Reason,
			RequiredByDate:   requiredBy,
			Timestamp:        now,
		}
		snap.SupplyRequests = append([]mesh.SupplyRequest{created}, snap.SupplyRequests...)
		return snap.RecordChange(mesh.AggregateSupplyRequest, created.ID, mesh.EventSupplyRequestCreated,
			created, in.RequesterID, in.HospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("supply_request_id", created.ID))
	e.metrics.SupplyCreated()
	e.metrics.ObserveSince("supply.create", start)
	e.logger.Info("supply request created",
		zap.String("request_id", created.ID),
		zap.String("hospital_id", created.HospitalID),
		zap.String("target_hospital_id", created.TargetHospitalID),
		zap.String("item", created.ItemName),
		zap.Int("quantity", created.Quantity),
		zap.String("severity", string(created.Severity)),
	)
	return &created, nil
}

// Broadcast widens a request to every node and resets it to PENDING
func (e *Engine) Broadcast(ctx context.Context, requestID string) (*mesh.SupplyRequest, error) {
	ctx, span := e.tracer.Start(ctx, "supply.broadcast",
		trace.WithAttributes(attribute.String("supply_request_id", requestID)))
	defer span.End()

	var out mesh.SupplyRequest
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		req := snap.FindSupplyRequest(requestID)
		if req == nil {
			return mesh.NotFound(kind, requestID)
		}
		from := req.Status
		req.TargetHospitalID = mesh.TargetBroadcast
		req.Status = mesh.RequestPending
		out = *req
		return snap.RecordChange(mesh.AggregateSupplyRequest, req.ID, mesh.EventSupplyRequestBroadcast,
			mesh.StatusChangedData{From: string(from), To: string(mesh.RequestPending)}, req.Requester, req.HospitalID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.Info("supply request broadcast",
		zap.String("request_id", out.ID),
		zap.String("hospital_id", out.HospitalID),
	)
	return &out, nil
}

// ResolveInput moves a request to a new status
type ResolveInput struct {
	RequestID          string             `json:"requestId"`
	Status             mesh.RequestStatus `json:"status"`
	ApproverID         string             `json:"approverId,omitempty"`
	ApproverName       string             `json:"approverName,omitempty"`
	ExternalEntityName string             `json:"externalEntityName,omitempty"`
}

// Resolution is the outcome of Resolve
type Resolution struct {
	Request  *mesh.SupplyRequest        `json:"request"`
	Debited  *StockMovement             `json:"debited,omitempty"`
	Credited *StockMovement             `json:"credited,omitempty"`
	Warnings []StockInsufficientWarning `json:"warnings,omitempty"`
}

// ResolvedData is the payload of a SupplyRequestResolved event
type ResolvedData struct {
	From               mesh.RequestStatus `json:"from"`
	To                 mesh.RequestStatus `json:"to"`
	ApproverID         string             `json:"approverId,omitempty"`
	ExternalEntityName string             `json:"externalEntityName,omitempty"`
}

// Resolve applies a status change and, for APPROVED and FULFILLED_EXTERNAL,
// the matching stock movement. The movement is applied at most once per
// request; a loser of a concurrent resolution gets ConcurrencyConflictError.
func (e *Engine) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	ctx, span := e.tracer.Start(ctx, "supply.resolve",
		trace.WithAttributes(
			attribute.String("supply_request_id", in.RequestID),
			attribute.String("status", string(in.Status)),
		))
	defer span.End()
	start := time.Now()

	if !in.Status.Valid() {
		return nil, mesh.Invalid("status", "unknown status "+string(in.Status))
	}
	if in.Status == mesh.RequestApproved && in.ApproverID == "" {
		return nil, mesh.Invalid("approverId", "is required to approve")
	}

	var res *Resolution
	attempt := 0
	err := mesh.Update(ctx, e.store, func(snap *mesh.Snapshot) error {
		attempt++
		res = &Resolution{}

		req := snap.FindSupplyRequest(in.RequestID)
		if req == nil {
			return mesh.NotFound(kind, in.RequestID)
		}
		if in.Status.MovesStock() && req.Settled() {
			if attempt > 1 {
				return &mesh.ConcurrencyConflictError{Kind: kind, ID: req.ID}
			}
			return mesh.IllegalTransition(kind, req.ID, req.Status, in.Status)
		}

		switch in.Status {
		case mesh.RequestFulfilledExternal:
			res.Credited = credit(snap, req, nil)
		case mesh.RequestApproved:
			approver := snap.FindStaff(in.ApproverID)
			if approver == nil {
				return mesh.NotFound("staff", in.ApproverID)
			}
			move, tmpl, warn := debit(snap, req, approver.HospitalID)
			res.Debited = move
			if warn != nil {
				res.Warnings = append(res.Warnings, *warn)
			}
			if req.HospitalID != approver.HospitalID {
				res.Credited = credit(snap, req, tmpl)
			}
		}

		from := req.Status
		req.Status = in.Status
		if in.ApproverID != "" {
			req.ApproverID = in.ApproverID
		}
		if in.ApproverName != "" {
			req.ApproverName = in.ApproverName
		}
		if in.ExternalEntityName != "" {
			req.ExternalEntityName = in.ExternalEntityName
		}
		if in.Status.MovesStock() {
			now := e.clock()
			req.SettledAt = &now
		}

		out := *req
		res.Request = &out
		return e.recordResolution(snap, &out, from, in, res)
	})
	if err != nil {
		if mesh.IsConcurrencyConflict(err) {
			e.metrics.Conflict()
		}
		span.RecordError(err)
		return nil, err
	}

	e.metrics.SupplyResolved(string(in.Status))
	e.metrics.ObserveSince("supply.resolve", start)
	if res.Debited != nil {
		e.metrics.StockMoved("debit", res.Debited.Units)
	}
	if res.Credited != nil {
		e.metrics.StockMoved("credit", res.Credited.Units)
	}
	for _, w := range res.Warnings {
		e.metrics.Insufficient()
		e.logger.Warn("stock insufficient for supply request",
			zap.String("request_id", w.RequestID),
			zap.String("hospital_id", w.HospitalID),
			zap.String("stock_id", w.StockID),
			zap.String("item", w.Item),
			zap.Int("requested", w.Requested),
			zap.Int("available", w.Available),
		)
	}
	e.logger.Info("supply request resolved",
		zap.String("request_id", res.Request.ID),
		zap.String("status", string(res.Request.Status)),
		zap.String("approver_id", res.Request.ApproverID),
	)
	return res, nil
}

func (e *Engine) recordResolution(snap *mesh.Snapshot, req *mesh.SupplyRequest, from mesh.RequestStatus, in ResolveInput, res *Resolution) error {
	actorHospital := req.HospitalID
	if approver := snap.FindStaff(in.ApproverID); approver != nil {
		actorHospital = approver.HospitalID
	}

	err := snap.RecordChange(mesh.AggregateSupplyRequest, req.ID, mesh.EventSupplyRequestResolved,
		ResolvedData{From: from, To: req.Status, ApproverID: in.ApproverID, ExternalEntityName: in.ExternalEntityName},
		in.ApproverID, actorHospital)
	if err != nil {
		return err
	}

	for _, m := range []struct {
		move *StockMovement
		sign int
	}{{res.Debited, -1}, {res.Credited, 1}} {
		if m.move == nil {
			continue
		}
		err := snap.RecordChange(mesh.AggregateSupplyStock, m.move.StockID, mesh.EventStockAdjusted,
			mesh.StockAdjustedData{
				StockID:    m.move.StockID,
				HospitalID: m.move.HospitalID,
				Item:       m.move.Item,
				Delta:      m.sign * m.move.Units,
				Quantity:   m.move.Quantity,
				RequestID:  req.ID,
				Created:    m.move.Created,
			}, in.ApproverID, m.move.HospitalID)
		if err != nil {
			return err
		}
	}

	for _, w := range res.Warnings {
		if err := snap.RecordChange(mesh.AggregateSupplyRequest, req.ID, mesh.EventStockInsufficient,
			w, in.ApproverID, w.HospitalID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns one request
func (e *Engine) Get(ctx context.Context, requestID string) (*mesh.SupplyRequest, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	req := snap.FindSupplyRequest(requestID)
	if req == nil {
		return nil, mesh.NotFound(kind, requestID)
	}
	return req, nil
}

// Visible lists requests a node can see: its own, those targeted at it and
// every broadcast request.
func (e *Engine) Visible(ctx context.Context, hospitalID string) ([]mesh.SupplyRequest, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]mesh.SupplyRequest, 0)
	for _, req := range snap.SupplyRequests {
		if hospitalID == "" || req.HospitalID == hospitalID || req.TargetHospitalID == hospitalID || req.IsBroadcast() {
			out = append(out, req)
		}
	}
	return out, nil
}

// Package command carries engine operations over the mesh.commands topic so
// field nodes can act on the network without an HTTP round trip.
package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/crisisnet/meshcore/internal/domain/alert"
	"github.com/crisisnet/meshcore/internal/domain/appointment"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/patient"
	"github.com/crisisnet/meshcore/internal/domain/staff"
	"github.com/crisisnet/meshcore/internal/domain/supply"
	"github.com/crisisnet/meshcore/internal/domain/transfer"
	"github.com/crisisnet/meshcore/internal/domain/transport"
)

// Type names an engine operation
type Type string

const (
	SupplyCreate    Type = "supply.create"
	SupplyBroadcast Type = "supply.broadcast"
	SupplyResolve   Type = "supply.resolve"

	TransferRequest Type = "transfer.request"
	TransferAccept  Type = "transfer.accept"
	TransferReject  Type = "transfer.reject"

	TransportSchedule Type = "transport.schedule"
	TransportDispatch Type = "transport.dispatch"
	TransportComplete Type = "transport.complete"

	AppointmentBook     Type = "appointment.book"
	AppointmentConfirm  Type = "appointment.confirm"
	AppointmentPostpone Type = "appointment.postpone"
	AppointmentCancel   Type = "appointment.cancel"

	PatientCondition Type = "patient.condition"
	PatientAssign    Type = "patient.assign"

	AlertBroadcast Type = "alert.broadcast"

	StaffRegister Type = "staff.register"
	StaffStatus   Type = "staff.status"
)

// Command is one operation submitted by a node. ID is unique per node and
// is what makes redelivery safe.
type Command struct {
	ID      string          `json:"id" validate:"required"`
	Type    Type            `json:"type" validate:"required"`
	NodeID  string          `json:"nodeId" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses and validates a command envelope
func Decode(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, mesh.Invalid("command", err.Error())
	}
	if err := validate.Struct(&cmd); err != nil {
		return nil, mesh.Invalid("command", err.Error())
	}
	return &cmd, nil
}

var validate = validator.New()

// Reference payloads
type (
	supplyRef struct {
		RequestID string `json:"requestId" validate:"required"`
	}
	transferAccept struct {
		TransferID       string `json:"transferId" validate:"required"`
		TargetHospitalID string `json:"targetHospitalId" validate:"required"`
	}
	transferRef struct {
		TransferID string `json:"transferId" validate:"required"`
	}
	transportRef struct {
		TransportID string `json:"transportId" validate:"required"`
	}
	appointmentBook struct {
		PatientID string `json:"patientId" validate:"required"`
		Reason    string `json:"reason"`
		Date      string `json:"date" validate:"required"`
	}
	appointmentRef struct {
		PatientID string `json:"patientId" validate:"required"`
		RecordID  string `json:"recordId" validate:"required"`
	}
	patientCondition struct {
		PatientID string `json:"patientId" validate:"required"`
		Condition string `json:"condition" validate:"required"`
	}
	patientAssign struct {
		PatientID string `json:"patientId" validate:"required"`
		DoctorID  string `json:"doctorId" validate:"required"`
	}
	alertBroadcast struct {
		Message    string             `json:"message" validate:"required"`
		Severity   mesh.AlertSeverity `json:"severity" validate:"required"`
		SenderName string             `json:"senderName"`
	}
	staffStatus struct {
		StaffID string           `json:"staffId" validate:"required"`
		Status  mesh.StaffStatus `json:"status" validate:"required"`
	}
)

type handlerFunc func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// Dispatcher routes commands to the engine that owns them
type Dispatcher struct {
	handlers map[Type]handlerFunc
}

// Engines groups the engines a Dispatcher drives
type Engines struct {
	Supply      *supply.Engine
	Transfer    *transfer.Engine
	Transport   *transport.Engine
	Appointment *appointment.Scheduler
	Patient     *patient.Engine
	Alert       *alert.Channel
	Staff       *staff.Directory
}

// NewDispatcher registers a handler for every command type
func NewDispatcher(e Engines) *Dispatcher {
	d := &Dispatcher{handlers: make(map[Type]handlerFunc)}

	d.handlers[SupplyCreate] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[supply.CreateInput](p)
		if err != nil {
			return nil, err
		}
		return e.Supply.Create(ctx, *in)
	}
	d.handlers[SupplyBroadcast] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[supplyRef](p)
		if err != nil {
			return nil, err
		}
		return e.Supply.Broadcast(ctx, in.RequestID)
	}
	d.handlers[SupplyResolve] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[supply.ResolveInput](p)
		if err != nil {
			return nil, err
		}
		return e.Supply.Resolve(ctx, *in)
	}

	d.handlers[TransferRequest] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[transfer.RequestInput](p)
		if err != nil {
			return nil, err
		}
		return e.Transfer.Request(ctx, *in)
	}
	d.handlers[TransferAccept] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[transferAccept](p)
		if err != nil {
			return nil, err
		}
		return e.Transfer.Accept(ctx, in.TransferID, in.TargetHospitalID)
	}
	d.handlers[TransferReject] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[transferRef](p)
		if err != nil {
			return nil, err
		}
		return e.Transfer.Reject(ctx, in.TransferID)
	}

	d.handlers[TransportSchedule] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[transport.ScheduleInput](p)
		if err != nil {
			return nil, err
		}
		return e.Transport.Schedule(ctx, *in)
	}
	d.handlers[TransportDispatch] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[transportRef](p)
		if err != nil {
			return nil, err
		}
		return e.Transport.Dispatch(ctx, in.TransportID)
	}
	d.handlers[TransportComplete] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[transportRef](p)
		if err != nil {
			return nil, err
		}
		return e.Transport.Complete(ctx, in.TransportID)
	}

	d.handlers[AppointmentBook] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[appointmentBook](p)
		if err != nil {
			return nil, err
		}
		return e.Appointment.Book(ctx, in.PatientID, in.Reason, in.Date)
	}
	d.handlers[AppointmentConfirm] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[appointmentRef](p)
		if err != nil {
			return nil, err
		}
		return e.Appointment.Confirm(ctx, in.PatientID, in.RecordID)
	}
	d.handlers[AppointmentPostpone] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[appointment.PostponeInput](p)
		if err != nil {
			return nil, err
		}
		return e.Appointment.Postpone(ctx, *in)
	}
	d.handlers[AppointmentCancel] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[appointmentRef](p)
		if err != nil {
			return nil, err
		}
		return e.Appointment.Cancel(ctx, in.PatientID, in.RecordID)
	}

	d.handlers[PatientCondition] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[patientCondition](p)
		if err != nil {
			return nil, err
		}
		return e.Patient.AddCondition(ctx, in.PatientID, in.Condition)
	}
	d.handlers[PatientAssign] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[patientAssign](p)
		if err != nil {
			return nil, err
		}
		return e.Patient.AssignDoctor(ctx, in.PatientID, in.DoctorID)
	}

	d.handlers[AlertBroadcast] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[alertBroadcast](p)
		if err != nil {
			return nil, err
		}
		return e.Alert.Broadcast(ctx, in.Message, in.Severity, in.SenderName)
	}

	d.handlers[StaffRegister] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[staff.RegisterInput](p)
		if err != nil {
			return nil, err
		}
		return e.Staff.Register(ctx, *in)
	}
	d.handlers[StaffStatus] = func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		in, err := decode[staffStatus](p)
		if err != nil {
			return nil, err
		}
		return e.Staff.UpdateStatus(ctx, in.StaffID, in.Status)
	}

	return d
}

// Dispatch runs cmd and returns the engine's result as JSON
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) (json.RawMessage, error) {
	h, ok := d.handlers[cmd.Type]
	if !ok {
		return nil, mesh.Invalid("type", fmt.Sprintf("unknown command %q", cmd.Type))
	}
	out, err := h(ctx, cmd.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// Types lists the registered command types
func (d *Dispatcher) Types() []Type {
	types := make([]Type, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	return types
}

func decode[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return nil, mesh.Invalid("payload", "is required")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, mesh.Invalid("payload", err.Error())
	}
	if err := validate.Struct(&v); err != nil {
		return nil, mesh.Invalid("payload", err.Error())
	}
	return &v, nil
}

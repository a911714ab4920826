package mesh

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	EventSupplyRequestCreated    EventType = "SupplyRequestCreated"
	EventSupplyRequestBroadcast  EventType = "SupplyRequestBroadcast"
	EventSupplyRequestResolved   EventType = "SupplyRequestResolved"
	EventStockAdjusted           EventType = "StockAdjusted"
	EventStockInsufficient       EventType = "StockInsufficient"
	EventTransferRequested       EventType = "PatientTransferRequested"
	EventTransferAccepted        EventType = "PatientTransferAccepted"
	EventTransferRejected        EventType = "PatientTransferRejected"
	EventTransportScheduled      EventType = "TransportScheduled"
	EventTransportDispatched     EventType = "TransportDispatched"
	EventTransportCompleted      EventType = "TransportCompleted"
	EventAppointmentBooked       EventType = "AppointmentBooked"
	EventAppointmentConfirmed    EventType = "AppointmentConfirmed"
	EventAppointmentPostponed    EventType = "AppointmentPostponed"
	EventAppointmentCancelled    EventType = "AppointmentCancelled"
	EventConditionReported       EventType = "PatientConditionReported"
	EventDoctorAssigned          EventType = "PatientDoctorAssigned"
	EventEmergencyAlertBroadcast EventType = "EmergencyAlertBroadcast"
	EventStaffRegistered         EventType = "StaffRegistered"
	EventStaffStatusChanged      EventType = "StaffStatusChanged"
)

// Aggregate types carried on events
const (
	AggregateSupplyRequest = "SupplyRequest"
	AggregateSupplyStock   = "SupplyStock"
	AggregateTransfer      = "PatientTransfer"
	AggregateTransport     = "Transport"
	AggregatePatient       = "Patient"
	AggregateAlert         = "EmergencyAlert"
	AggregateStaff         = "StaffMember"
)

// Event is a lifecycle fact recorded alongside the snapshot save that caused it
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int64           `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	ActorID       string          `json:"actor_id,omitempty"`
	HospitalID    string          `json:"hospital_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateType, aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithActor sets audit fields
func (e *Event) WithActor(actorID, hospitalID string) *Event {
	e.ActorID = actorID
	e.HospitalID = hospitalID
	return e
}

// StockAdjustedData describes one ledger movement
type StockAdjustedData struct {
	StockID    string `json:"stock_id"`
	HospitalID string `json:"hospital_id"`
	Item       string `json:"item"`
	Delta      int    `json:"delta"`
	Quantity   int    `json:"quantity"`
	RequestID  string `json:"request_id"`
	Created    bool   `json:"created,omitempty"`
}

// StatusChangedData is the payload for plain state transitions
type StatusChangedData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

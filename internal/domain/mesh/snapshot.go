package mesh

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion tags every persisted snapshot. Loading a snapshot with any
// other tag fails with ErrSchemaMismatch.
const SchemaVersion = 10

// Snapshot is the full state of the network at one version
type Snapshot struct {
	SchemaVersion     int                      `json:"schemaVersion"`
	Version           int64                    `json:"version"`
	Hospitals         []Hospital               `json:"hospitals"`
	Staff             []StaffMember            `json:"staff"`
	Patients          []Patient                `json:"patients"`
	Supplies          []SupplyStock            `json:"supplies"`
	SupplyRequests    []SupplyRequest          `json:"supplyRequests"`
	TransportRequests []TransportRequest       `json:"transportRequests"`
	TransferRequests  []PatientTransferRequest `json:"transferRequests"`
	Alerts            []EmergencyAlert         `json:"alerts"`
	ConnectedPeers    int                      `json:"connectedPeers"`
	LastSync          time.Time                `json:"lastSync"`

	changes []*Event
}

// NewSnapshot returns an empty snapshot at the current schema
func NewSnapshot() *Snapshot {
	s := &Snapshot{SchemaVersion: SchemaVersion}
	s.normalize()
	return s
}

// Changes returns events recorded since load
func (s *Snapshot) Changes() []*Event { return s.changes }

// ClearChanges drops recorded events
func (s *Snapshot) ClearChanges() { s.changes = nil }

// RecordChange appends an event that will be persisted with the next save
func (s *Snapshot) RecordChange(aggregateType, aggregateID string, eventType EventType, data interface{}, actorID, hospitalID string) error {
	event, err := NewEvent(aggregateType, aggregateID, eventType, data)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	event.WithActor(actorID, hospitalID)
	s.changes = append(s.changes, event)
	return nil
}

// StampChanges assigns the committed snapshot version to pending events
func (s *Snapshot) StampChanges(version int64) {
	for _, e := range s.changes {
		e.Version = version
	}
}

// FindHospital returns the hospital with id, or nil
func (s *Snapshot) FindHospital(id string) *Hospital {
	for i := range s.Hospitals {
		if s.Hospitals[i].ID == id {
			return &s.Hospitals[i]
		}
	}
	return nil
}

// FindStaff returns the staff member with id, or nil
func (s *Snapshot) FindStaff(id string) *StaffMember {
	for i := range s.Staff {
		if s.Staff[i].ID == id {
			return &s.Staff[i]
		}
	}
	return nil
}

// FindPatient returns the patient with id, or nil
func (s *Snapshot) FindPatient(id string) *Patient {
	for i := range s.Patients {
		if s.Patients[i].ID == id {
			return &s.Patients[i]
		}
	}
	return nil
}

// FindSupplyRequest returns the supply request with id, or nil
func (s *Snapshot) FindSupplyRequest(id string) *SupplyRequest {
	for i := range s.SupplyRequests {
		if s.SupplyRequests[i].ID == id {
			return &s.SupplyRequests[i]
		}
	}
	return nil
}

// FindTransfer returns the patient transfer with id, or nil
func (s *Snapshot) FindTransfer(id string) *PatientTransferRequest {
	for i := range s.TransferRequests {
		if s.TransferRequests[i].ID == id {
			return &s.TransferRequests[i]
		}
	}
	return nil
}

// FindTransport returns the transport request with id, or nil
func (s *Snapshot) FindTransport(id string) *TransportRequest {
	for i := range s.TransportRequests {
		if s.TransportRequests[i].ID == id {
			return &s.TransportRequests[i]
		}
	}
	return nil
}

// StockAt returns every line held by hospitalID
func (s *Snapshot) StockAt(hospitalID string) []*SupplyStock {
	var lines []*SupplyStock
	for i := range s.Supplies {
		if s.Supplies[i].HospitalID == hospitalID {
			lines = append(lines, &s.Supplies[i])
		}
	}
	return lines
}

// TotalStock sums the quantity of every line in the network
func (s *Snapshot) TotalStock() int {
	total := 0
	for _, line := range s.Supplies {
		total += line.Quantity
	}
	return total
}

// AddStock appends a line and returns a pointer into the slice
func (s *Snapshot) AddStock(line SupplyStock) *SupplyStock {
	s.Supplies = append(s.Supplies, line)
	return &s.Supplies[len(s.Supplies)-1]
}

// refreshPeers keeps ConnectedPeers at the number of other nodes in the mesh
func (s *Snapshot) refreshPeers() {
	s.ConnectedPeers = 0
	if n := len(s.Hospitals); n > 1 {
		s.ConnectedPeers = n - 1
	}
}

func (s *Snapshot) normalize() {
	if s.Hospitals == nil {
		s.Hospitals = []Hospital{}
	}
	if s.Staff == nil {
		s.Staff = []StaffMember{}
	}
	if s.Patients == nil {
		s.Patients = []Patient{}
	}
	if s.Supplies == nil {
		s.Supplies = []SupplyStock{}
	}
	if s.SupplyRequests == nil {
		s.SupplyRequests = []SupplyRequest{}
	}
	if s.TransportRequests == nil {
		s.TransportRequests = []TransportRequest{}
	}
	if s.TransferRequests == nil {
		s.TransferRequests = []PatientTransferRequest{}
	}
	if s.Alerts == nil {
		s.Alerts = []EmergencyAlert{}
	}
	for i := range s.Patients {
		if s.Patients[i].Records == nil {
			s.Patients[i].Records = []MedicalRecord{}
		}
	}
}

// EncodeSnapshot serializes s as a single JSON document
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersion
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: encoding v%d, current v%d", ErrSchemaMismatch, s.SchemaVersion, SchemaVersion)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a document written by EncodeSnapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var header struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode snapshot header: %w", err)
	}
	if header.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: stored v%d, current v%d", ErrSchemaMismatch, header.SchemaVersion, SchemaVersion)
	}

	s := &Snapshot{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s.normalize()
	return s, nil
}

// Clone returns a deep copy without pending events
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data)
}

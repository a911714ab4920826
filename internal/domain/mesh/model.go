// Package mesh holds the shared network snapshot, its entities, the storage
// contract and the error taxonomy used by every lifecycle engine.
package mesh

import (
	"strings"
	"time"
)

// HospitalType classifies a node in the network
type HospitalType string

const (
	HospitalGeneral  HospitalType = "General"
	HospitalField    HospitalType = "Field"
	HospitalClinic   HospitalType = "Clinic"
	HospitalReferral HospitalType = "Referral"
	HospitalOutreach HospitalType = "Outreach"
)

// Coordinates is a WGS84 position
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Hospital is a node. Immutable after seeding.
type Hospital struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Province    string       `json:"province"`
	Type        HospitalType `json:"type"`
	Capacity    int          `json:"capacity"`
	Coordinates Coordinates  `json:"coordinates"`
}

// StaffRole is the role a staff member acts under
type StaffRole string

const (
	RoleDoctor   StaffRole = "doctor"
	RoleDirector StaffRole = "director"
	RoleNurse    StaffRole = "nurse"
)

// Valid reports whether r is a known role
func (r StaffRole) Valid() bool {
	switch r {
	case RoleDoctor, RoleDirector, RoleNurse:
		return true
	}
	return false
}

// StaffStatus is a staff member's presence
type StaffStatus string

const (
	StaffAvailable   StaffStatus = "AVAILABLE"
	StaffBusy        StaffStatus = "BUSY"
	StaffUnreachable StaffStatus = "UNREACHABLE"
	StaffOffDuty     StaffStatus = "OFF_DUTY"
)

// Valid reports whether s is a known presence status
func (s StaffStatus) Valid() bool {
	switch s {
	case StaffAvailable, StaffBusy, StaffUnreachable, StaffOffDuty:
		return true
	}
	return false
}

// StaffMember is a person who can act on behalf of a node
type StaffMember struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Role        StaffRole   `json:"role"`
	HospitalID  string      `json:"hospitalId"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Status      StaffStatus `json:"status"`
	LastCheckIn time.Time   `json:"lastCheckIn"`
}

// SupplyCategory groups stock lines
type SupplyCategory string

const (
	CategoryMedicine SupplyCategory = "MEDICINE"
	CategoryTools    SupplyCategory = "TOOLS"
	CategoryFood     SupplyCategory = "FOOD"
	CategoryWater    SupplyCategory = "WATER"
	CategoryBlood    SupplyCategory = "BLOOD"
)

// ResourceType is a coarse tag used to match requests to stock lines when
// item names differ.
type ResourceType string

const (
	ResourceMedicine ResourceType = "Medicine"
	ResourceTools    ResourceType = "Tools"
	ResourceBlood    ResourceType = "Blood"
	ResourceFood     ResourceType = "Food"
	ResourceWater    ResourceType = "Water"
)

// Valid reports whether t is one of the known tags
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceMedicine, ResourceTools, ResourceBlood, ResourceFood, ResourceWater:
		return true
	}
	return false
}

// ResourceTypeFor maps a stock category to its tag
func ResourceTypeFor(c SupplyCategory) ResourceType {
	switch c {
	case CategoryMedicine:
		return ResourceMedicine
	case CategoryBlood:
		return ResourceBlood
	case CategoryFood:
		return ResourceFood
	case CategoryWater:
		return ResourceWater
	default:
		return ResourceTools
	}
}

// SupplyStock is one inventory line held by a node. HospitalID is empty for a
// catalog item not yet present anywhere.
type SupplyStock struct {
	ID                string         `json:"id"`
	HospitalID        string         `json:"hospitalId,omitempty"`
	Item              string         `json:"item"`
	Category          SupplyCategory `json:"category"`
	Quantity          int            `json:"quantity"`
	Unit              string         `json:"unit"`
	CriticalThreshold int            `json:"criticalThreshold"`
	Tags              []ResourceType `json:"tags,omitempty"`
	ExpiryDate        string         `json:"expiryDate,omitempty"`
	BatchNum          string         `json:"batchNum,omitempty"`
	DailyUsage        int            `json:"dailyUsage,omitempty"`
}

// IsCritical reports whether the line is at or below its threshold
func (s *SupplyStock) IsCritical() bool {
	return s.Quantity <= s.CriticalThreshold
}

// HasTag reports whether the line carries tag t
func (s *SupplyStock) HasTag(t ResourceType) bool {
	for _, tag := range s.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// Debit removes qty units, clamping at zero. It returns the units actually removed.
func (s *SupplyStock) Debit(qty int) int {
	if qty <= 0 {
		return 0
	}
	if qty > s.Quantity {
		removed := s.Quantity
		s.Quantity = 0
		return removed
	}
	s.Quantity -= qty
	return qty
}

// Credit adds qty units
func (s *SupplyStock) Credit(qty int) {
	if qty > 0 {
		s.Quantity += qty
	}
}

// TargetBroadcast widens a supply request to every node
const TargetBroadcast = "BROADCAST"

// RequestStatus is the lifecycle state of a supply request
type RequestStatus string

const (
	RequestPending           RequestStatus = "PENDING"
	RequestApproved          RequestStatus = "APPROVED"
	RequestInProgress        RequestStatus = "IN_PROGRESS"
	RequestFulfilled         RequestStatus = "FULFILLED"
	RequestFulfilledExternal RequestStatus = "FULFILLED_EXTERNAL"
)

// Valid reports whether s is a known request status
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestInProgress, RequestFulfilled, RequestFulfilledExternal:
		return true
	}
	return false
}

// MovesStock reports whether entering s applies a stock side effect
func (s RequestStatus) MovesStock() bool {
	return s == RequestApproved || s == RequestFulfilledExternal
}

// Severity of a supply request
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityCritical:
		return true
	}
	return false
}

// LeadTime is how far ahead of creation a request of this severity is due
func (s Severity) LeadTime() time.Duration {
	switch s {
	case SeverityCritical:
		return 24 * time.Hour
	case SeverityMedium:
		return 3 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// SupplyRequest asks a node (or every node) for stock
type SupplyRequest struct {
	ID                 string         `json:"id"`
	ItemName           string         `json:"itemName"`
	Quantity           int            `json:"quantity"`
	Requester          string         `json:"requester"`
	RequesterName      string         `json:"requesterName,omitempty"`
	HospitalID         string         `json:"hospitalId"`
	TargetHospitalID   string         `json:"targetHospitalId"`
	Status             RequestStatus  `json:"status"`
	Severity           Severity       `json:"severity"`
	ResourceTypes      []ResourceType `json:"resourceTypes,omitempty"`
	PatientID          string         `json:"patientId,omitempty"`
	PatientName        string         `json:"patientName,omitempty"`
	Reason             string         `json:"reason,omitempty"`
	RequiredByDate     string         `json:"requiredByDate"`
	Timestamp          time.Time      `json:"timestamp"`
	ApproverID         string         `json:"approverId,omitempty"`
	ApproverName       string         `json:"approverName,omitempty"`
	ExternalEntityName string         `json:"externalEntityName,omitempty"`
	SettledAt          *time.Time     `json:"settledAt,omitempty"`
}

// IsBroadcast reports whether any node may respond
func (r *SupplyRequest) IsBroadcast() bool {
	return r.TargetHospitalID == TargetBroadcast
}

// Settled reports whether the stock side effect has already been applied
func (r *SupplyRequest) Settled() bool {
	return r.SettledAt != nil
}

// Urgency of a patient transfer
type Urgency string

const (
	UrgencyImmediate Urgency = "IMMEDIATE"
	UrgencyStable    Urgency = "STABLE"
)

// Valid reports whether u is a known urgency
func (u Urgency) Valid() bool {
	return u == UrgencyImmediate || u == UrgencyStable
}

// TransferStatus is the lifecycle state of a patient transfer
type TransferStatus string

const (
	TransferPending  TransferStatus = "PENDING"
	TransferApproved TransferStatus = "APPROVED"
	TransferRejected TransferStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed
func (s TransferStatus) Terminal() bool {
	return s == TransferApproved || s == TransferRejected
}

// PatientTransferRequest relocates a patient record between nodes.
// CurrentHospitalID is where the request originated and never changes.
type PatientTransferRequest struct {
	ID                        string         `json:"id"`
	PatientID                 string         `json:"patientId"`
	PatientName               string         `json:"patientName"`
	CurrentHospitalID         string         `json:"currentHospitalId"`
	TargetHospitalID          string         `json:"targetHospitalId,omitempty"`
	SuggestedTargetHospitalID string         `json:"suggestedTargetHospitalId,omitempty"`
	TargetHospitalType        string         `json:"targetHospitalType,omitempty"`
	RequesterID               string         `json:"requesterId"`
	Urgency                   Urgency        `json:"urgency"`
	Reason                    string         `json:"reason"`
	Status                    TransferStatus `json:"status"`
	Timestamp                 time.Time      `json:"timestamp"`
	ResolvedAt                *time.Time     `json:"resolvedAt,omitempty"`
}

// TransportType is the kind of convoy job
type TransportType string

const (
	TransportSupplyRun       TransportType = "SUPPLY_RUN"
	TransportPatientTransfer TransportType = "PATIENT_TRANSFER"
	TransportStaffRotation   TransportType = "STAFF_ROTATION"
)

// Valid reports whether t is a known transport type
func (t TransportType) Valid() bool {
	switch t {
	case TransportSupplyRun, TransportPatientTransfer, TransportStaffRotation:
		return true
	}
	return false
}

// TransportStatus only moves forward
type TransportStatus string

const (
	TransportScheduled TransportStatus = "SCHEDULED"
	TransportEnRoute   TransportStatus = "EN_ROUTE"
	TransportCompleted TransportStatus = "COMPLETED"
)

// TransportRequest is a logistics job independent of the stock ledger
type TransportRequest struct {
	ID                    string          `json:"id"`
	RequesterID           string          `json:"requesterId"`
	OriginHospitalID      string          `json:"originHospitalId"`
	DestinationHospitalID string          `json:"destinationHospitalId,omitempty"`
	Type                  TransportType   `json:"type"`
	Notes                 string          `json:"notes"`
	Status                TransportStatus `json:"status"`
	Timestamp             time.Time       `json:"timestamp"`
	DispatchedAt          *time.Time      `json:"dispatchedAt,omitempty"`
	CompletedAt           *time.Time      `json:"completedAt,omitempty"`
}

// CriticalStatus is a patient's clinical acuity
type CriticalStatus string

const (
	PatientCritical   CriticalStatus = "CRITICAL"
	PatientUnstable   CriticalStatus = "UNSTABLE"
	PatientStable     CriticalStatus = "STABLE"
	PatientRecovering CriticalStatus = "RECOVERING"
	PatientDischarged CriticalStatus = "DISCHARGED"
	PatientDeceased   CriticalStatus = "DECEASED"
)

// RecordType is the kind of medical record entry
type RecordType string

const (
	RecordDiagnosis    RecordType = "DIAGNOSIS"
	RecordTreatment    RecordType = "TREATMENT"
	RecordVaccination  RecordType = "VACCINATION"
	RecordNote         RecordType = "NOTE"
	RecordLetter       RecordType = "LETTER"
	RecordAppointment  RecordType = "APPOINTMENT"
	RecordPrescription RecordType = "PRESCRIPTION"
	RecordTransfer     RecordType = "TRANSFER"
)

// AppointmentStatus lives in the metadata of APPOINTMENT records
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentPostponed AppointmentStatus = "POSTPONED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

// RecordMetadata carries the mutable part of an appointment record
type RecordMetadata struct {
	Status       AppointmentStatus `json:"status,omitempty"`
	OriginalDate string            `json:"originalDate,omitempty"`
}

// MedicalRecord is immutable once created, except Metadata.Status (and the
// fields the appointment scheduler rewrites) on APPOINTMENT records.
type MedicalRecord struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Type        RecordType      `json:"type"`
	Description string          `json:"description"`
	DoctorName  string          `json:"doctorName"`
	Location    string          `json:"location"`
	Metadata    *RecordMetadata `json:"metadata,omitempty"`
}

// AppointmentStatus returns the record's appointment state, or "" for other record types
func (r *MedicalRecord) AppointmentStatus() AppointmentStatus {
	if r.Type != RecordAppointment || r.Metadata == nil {
		return ""
	}
	return r.Metadata.Status
}

// Patient owns a reverse-chronological record list
type Patient struct {
	ID                  string          `json:"id"`
	ExternalID          string          `json:"externalId,omitempty"`
	Name                string          `json:"name"`
	DateOfBirth         string          `json:"dateOfBirth"`
	BloodType           string          `json:"bloodType,omitempty"`
	Allergies           []string        `json:"allergies"`
	Conditions          []string        `json:"conditions"`
	ActivePrescriptions []string        `json:"activePrescriptions"`
	HospitalID          string          `json:"hospitalId"`
	AssignedDoctorID    string          `json:"assignedDoctorId"`
	Status              CriticalStatus  `json:"status"`
	LastUpdated         time.Time       `json:"lastUpdated"`
	Records             []MedicalRecord `json:"records"`
}

// PrependRecord adds rec at index 0
func (p *Patient) PrependRecord(rec MedicalRecord) {
	p.Records = append([]MedicalRecord{rec}, p.Records...)
}

// FindRecord returns the record with the given id
func (p *Patient) FindRecord(id string) *MedicalRecord {
	for i := range p.Records {
		if p.Records[i].ID == id {
			return &p.Records[i]
		}
	}
	return nil
}

// AlertSeverity tags an emergency alert
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Valid reports whether s is a known alert severity
func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertInfo, AlertWarning, AlertCritical:
		return true
	}
	return false
}

// MaxAlerts bounds the alert history
const MaxAlerts = 5

// EmergencyAlert is broadcast to every node
type EmergencyAlert struct {
	ID         string        `json:"id"`
	Message    string        `json:"message"`
	Severity   AlertSeverity `json:"severity"`
	SenderName string        `json:"senderName"`
	Timestamp  time.Time     `json:"timestamp"`
	Active     bool          `json:"active"`
}

// normalizeName folds an item name for comparison
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

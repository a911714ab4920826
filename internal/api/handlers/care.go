package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crisisnet/meshcore/internal/domain/appointment"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/staff"
)

// BookRequest is the body of POST /patients/{patientID}/appointments
type BookRequest struct {
	Reason string `json:"reason" validate:"required"`
	Date   string `json:"date" validate:"required"`
}

// PostponeRequest is the body of POST .../{recordID}/postpone
type PostponeRequest struct {
	NewDate       string `json:"newDate" validate:"required"`
	NewDoctorID   string `json:"newDoctorId"`
	NewDoctorName string `json:"newDoctorName"`
}

// ConditionRequest is the body of POST /patients/{patientID}/conditions
type ConditionRequest struct {
	Condition string `json:"condition" validate:"required"`
}

// AssignDoctorRequest is the body of PUT /patients/{patientID}/doctor
type AssignDoctorRequest struct {
	DoctorID string `json:"doctorId" validate:"required"`
}

// AlertRequest is the body of POST /alerts
type AlertRequest struct {
	Message    string             `json:"message" validate:"required"`
	Severity   mesh.AlertSeverity `json:"severity" validate:"required,oneof=info warning critical"`
	SenderName string             `json:"senderName"`
}

// StatusRequest is the body of PUT /staff/{id}/status
type StatusRequest struct {
	Status mesh.StaffStatus `json:"status" validate:"required"`
}

// ListAppointments handles GET /patients/{patientID}/appointments
func (a *API) ListAppointments(w http.ResponseWriter, r *http.Request) {
	recs, err := a.deps.Appointment.List(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, recs)
}

// BookAppointment handles POST /patients/{patientID}/appointments
func (a *API) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var body BookRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	rec, err := a.deps.Appointment.Book(r.Context(), chi.URLParam(r, "patientID"), body.Reason, body.Date)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, rec)
}

// ConfirmAppointment handles POST .../{recordID}/confirm
func (a *API) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	rec, err := a.deps.Appointment.Confirm(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "recordID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// PostponeAppointment handles POST .../{recordID}/postpone
func (a *API) PostponeAppointment(w http.ResponseWriter, r *http.Request) {
	var body PostponeRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	rec, err := a.deps.Appointment.Postpone(r.Context(), appointment.PostponeInput{
		PatientID:     chi.URLParam(r, "patientID"),
		RecordID:      chi.URLParam(r, "recordID"),
		NewDate:       body.NewDate,
		NewDoctorID:   body.NewDoctorID,
		NewDoctorName: body.NewDoctorName,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// CancelAppointment handles POST .../{recordID}/cancel
func (a *API) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	rec, err := a.deps.Appointment.Cancel(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "recordID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// AddCondition handles POST /patients/{patientID}/conditions
func (a *API) AddCondition(w http.ResponseWriter, r *http.Request) {
	var body ConditionRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.deps.Patient.AddCondition(r.Context(), chi.URLParam(r, "patientID"), body.Condition)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, p)
}

// AssignDoctor handles PUT /patients/{patientID}/doctor
func (a *API) AssignDoctor(w http.ResponseWriter, r *http.Request) {
	var body AssignDoctorRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.deps.Patient.AssignDoctor(r.Context(), chi.URLParam(r, "patientID"), body.DoctorID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, p)
}

// ActiveAlerts handles GET /alerts
func (a *API) ActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.deps.Alert.Active(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, alerts)
}

// BroadcastAlert handles POST /alerts
func (a *API) BroadcastAlert(w http.ResponseWriter, r *http.Request) {
	var body AlertRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	alert, err := a.deps.Alert.Broadcast(r.Context(), body.Message, body.Severity, body.SenderName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, alert)
}

// ListStaff handles GET /staff?hospitalId=
func (a *API) ListStaff(w http.ResponseWriter, r *http.Request) {
	members, err := a.deps.Staff.ListByHospital(r.Context(), r.URL.Query().Get("hospitalId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, members)
}

// RegisterStaff handles POST /staff
func (a *API) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	var in staff.RegisterInput
	if err := a.decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.deps.Staff.Register(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, m)
}

// GetStaff handles GET /staff/{id}
func (a *API) GetStaff(w http.ResponseWriter, r *http.Request) {
	m, err := a.deps.Staff.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, m)
}

// UpdateStaffStatus handles PUT /staff/{id}/status
func (a *API) UpdateStaffStatus(w http.ResponseWriter, r *http.Request) {
	var body StatusRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.deps.Staff.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, m)
}

// Director handles GET /hospitals/{id}/director
func (a *API) Director(w http.ResponseWriter, r *http.Request) {
	m, err := a.deps.Staff.Director(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, m)
}

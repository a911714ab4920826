package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/transfer"
	"github.com/crisisnet/meshcore/internal/domain/transport"
)

// AcceptRequest is the body of POST /transfers/{id}/accept
type AcceptRequest struct {
	TargetHospitalID string `json:"targetHospitalId" validate:"required"`
}

// IncomingTransfers handles GET /transfers?hospitalId=
func (a *API) IncomingTransfers(w http.ResponseWriter, r *http.Request) {
	hospitalID := r.URL.Query().Get("hospitalId")
	if hospitalID == "" {
		a.writeError(w, r, mesh.Invalid("hospitalId", "is required"))
		return
	}
	out, err := a.deps.Transfer.Incoming(r.Context(), hospitalID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, out)
}

// RequestTransfer handles POST /transfers
func (a *API) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	var in transfer.RequestInput
	if err := a.decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	tr, err := a.deps.Transfer.Request(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, tr)
}

// AcceptTransfer handles POST /transfers/{id}/accept
func (a *API) AcceptTransfer(w http.ResponseWriter, r *http.Request) {
	var body AcceptRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	tr, err := a.deps.Transfer.Accept(r.Context(), chi.URLParam(r, "id"), body.TargetHospitalID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tr)
}

// RejectTransfer handles POST /transfers/{id}/reject
func (a *API) RejectTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := a.deps.Transfer.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tr)
}

// ScheduleTransport handles POST /transports
func (a *API) ScheduleTransport(w http.ResponseWriter, r *http.Request) {
	var in transport.ScheduleInput
	if err := a.decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	tr, err := a.deps.Transport.Schedule(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, tr)
}

// DispatchTransport handles POST /transports/{id}/dispatch
func (a *API) DispatchTransport(w http.ResponseWriter, r *http.Request) {
	tr, err := a.deps.Transport.Dispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tr)
}

// CompleteTransport handles POST /transports/{id}/complete
func (a *API) CompleteTransport(w http.ResponseWriter, r *http.Request) {
	tr, err := a.deps.Transport.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tr)
}

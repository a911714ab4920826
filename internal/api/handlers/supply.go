package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/supply"
)

// ResolveRequest is the body of POST /supply-requests/{id}/resolve
type ResolveRequest struct {
	Status             mesh.RequestStatus `json:"status" validate:"required"`
	ApproverID         string             `json:"approverId"`
	ApproverName       string             `json:"approverName"`
	ExternalEntityName string             `json:"externalEntityName"`
}

// ListSupplyRequests handles GET /supply-requests?hospitalId=
func (a *API) ListSupplyRequests(w http.ResponseWriter, r *http.Request) {
	hospitalID := r.URL.Query().Get("hospitalId")
	if hospitalID == "" {
		a.writeError(w, r, mesh.Invalid("hospitalId", "is required"))
		return
	}
	reqs, err := a.deps.Supply.Visible(r.Context(), hospitalID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reqs)
}

// CreateSupplyRequest handles POST /supply-requests
func (a *API) CreateSupplyRequest(w http.ResponseWriter, r *http.Request) {
	var in supply.CreateInput
	if err := a.decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	req, err := a.deps.Supply.Create(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, req)
}

// GetSupplyRequest handles GET /supply-requests/{id}
func (a *API) GetSupplyRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.deps.Supply.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, req)
}

// BroadcastSupplyRequest handles POST /supply-requests/{id}/broadcast
func (a *API) BroadcastSupplyRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.deps.Supply.Broadcast(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, req)
}

// ResolveSupplyRequest handles POST /supply-requests/{id}/resolve. The
// response carries the stock movements and any insufficiency warnings.
func (a *API) ResolveSupplyRequest(w http.ResponseWriter, r *http.Request) {
	var body ResolveRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.deps.Supply.Resolve(r.Context(), supply.ResolveInput{
		RequestID:          chi.URLParam(r, "id"),
		Status:             body.Status,
		ApproverID:         body.ApproverID,
		ApproverName:       body.ApproverName,
		ExternalEntityName: body.ExternalEntityName,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/pkg/circuitbreaker"
)

// Health handles GET /health
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "mesh-api",
		"version": "1.0.0",
	})
}

// ReadyResponse reports store reachability and breaker states
type ReadyResponse struct {
	Ready    bool                          `json:"ready"`
	Version  int64                         `json:"version"`
	Breakers []circuitbreaker.HealthStatus `json:"breakers,omitempty"`
	Error    string                        `json:"error,omitempty"`
}

// Ready handles GET /ready. Any open breaker or unreadable store is not ready.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: true, Breakers: circuitbreaker.Health(a.deps.Breakers...)}
	for _, b := range resp.Breakers {
		if !b.Healthy {
			resp.Ready = false
		}
	}

	snap, err := a.deps.Store.Load(r.Context())
	switch {
	case err == nil:
		resp.Version = snap.Version
	case errors.Is(err, mesh.ErrNoSnapshot):
		resp.Ready = false
		resp.Error = "store not seeded"
	default:
		resp.Ready = false
		resp.Error = err.Error()
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	a.writeJSON(w, code, resp)
}

// Package handlers exposes the mesh engines over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/api/middleware"
	"github.com/crisisnet/meshcore/internal/domain/alert"
	"github.com/crisisnet/meshcore/internal/domain/appointment"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/patient"
	"github.com/crisisnet/meshcore/internal/domain/staff"
	"github.com/crisisnet/meshcore/internal/domain/supply"
	"github.com/crisisnet/meshcore/internal/domain/transfer"
	"github.com/crisisnet/meshcore/internal/domain/transport"
	"github.com/crisisnet/meshcore/pkg/circuitbreaker"
)

// Deps wires the router
type Deps struct {
	Store       mesh.Store
	Supply      *supply.Engine
	Transfer    *transfer.Engine
	Transport   *transport.Engine
	Appointment *appointment.Scheduler
	Patient     *patient.Engine
	Alert       *alert.Channel
	Staff       *staff.Directory

	Breakers []*circuitbreaker.CircuitBreaker
	Metrics  http.Handler
	// APIKeys maps key to client. Empty disables authentication.
	APIKeys map[string]string
	Logger  *zap.Logger
}

// API holds the engine handlers
type API struct {
	deps     Deps
	logger   *zap.Logger
	validate *validator.Validate
}

// New creates the handler set
func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &API{deps: d, logger: d.Logger, validate: v}
}

// NewRouter builds the full service router
func NewRouter(d Deps) http.Handler {
	a := New(d)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(a.logger))
	r.Use(middleware.Logger(a.logger))
	r.Use(middleware.Tracing("mesh-api"))

	r.Get("/health", a.Health)
	r.Get("/ready", a.Ready)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if len(d.APIKeys) > 0 {
			r.Use(middleware.APIKeyAuth(d.APIKeys))
		}
		a.Mount(r)
	})
	return r
}

// Mount registers the engine routes on r
func (a *API) Mount(r chi.Router) {
	r.Get("/state", a.State)

	r.Route("/supply-requests", func(r chi.Router) {
		r.Get("/", a.ListSupplyRequests)
		r.Post("/", a.CreateSupplyRequest)
		r.Get("/{id}", a.GetSupplyRequest)
		r.Post("/{id}/broadcast", a.BroadcastSupplyRequest)
		r.Post("/{id}/resolve", a.ResolveSupplyRequest)
	})

	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", a.IncomingTransfers)
		r.Post("/", a.RequestTransfer)
		r.Post("/{id}/accept", a.AcceptTransfer)
		r.Post("/{id}/reject", a.RejectTransfer)
	})

	r.Route("/transports", func(r chi.Router) {
		r.Post("/", a.ScheduleTransport)
		r.Post("/{id}/dispatch", a.DispatchTransport)
		r.Post("/{id}/complete", a.CompleteTransport)
	})

	r.Route("/patients/{patientID}/appointments", func(r chi.Router) {
		r.Get("/", a.ListAppointments)
		r.Post("/", a.BookAppointment)
		r.Post("/{recordID}/confirm", a.ConfirmAppointment)
		r.Post("/{recordID}/postpone", a.PostponeAppointment)
		r.Post("/{recordID}/cancel", a.CancelAppointment)
	})
	r.Post("/patients/{patientID}/conditions", a.AddCondition)
	r.Put("/patients/{patientID}/doctor", a.AssignDoctor)

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", a.ActiveAlerts)
		r.Post("/", a.BroadcastAlert)
	})

	r.Route("/staff", func(r chi.Router) {
		r.Get("/", a.ListStaff)
		r.Post("/", a.RegisterStaff)
		r.Get("/{id}", a.GetStaff)
		r.Put("/{id}/status", a.UpdateStaffStatus)
	})

	r.Get("/hospitals/{id}/director", a.Director)
}

// State handles GET /state
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	snap, err := a.deps.Store.Load(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snap)
}

// decode reads a JSON body into v and runs its validate tags
func (a *API) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return mesh.Invalid("body", "invalid JSON: "+err.Error())
	}
	if err := a.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return mesh.Invalid(fe.Field(), fmt.Sprintf("failed %q", fe.Tag()))
		}
		return mesh.Invalid("body", err.Error())
	}
	return nil
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("encode response failed", zap.Error(err))
	}
}

// StatusFor maps an engine error to its HTTP status
func StatusFor(err error) int {
	switch {
	case mesh.IsValidation(err):
		return http.StatusBadRequest
	case mesh.IsNotFound(err):
		return http.StatusNotFound
	case mesh.IsIllegalState(err), mesh.IsConcurrencyConflict(err), errors.Is(err, mesh.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal server error"
	}
	a.writeJSON(w, code, map[string]string{"error": message})
}

// Package api provides the HTTP API handlers and routing for the rucat
// server: accepting REST commands and translating them into conditional
// state edits on the engine store. The API server never touches the
// resource client — only the state monitor does.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/HaoYang670/rucat/internal/apperrors"
	"github.com/HaoYang670/rucat/internal/engine"
	"github.com/HaoYang670/rucat/internal/health"
	"github.com/HaoYang670/rucat/internal/observability"
	"github.com/HaoYang670/rucat/internal/store"
)

// maxRequestBodySize limits request bodies to 1MB to prevent memory
// exhaustion.
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains the HTTP handlers for the engine API.
type Handler struct {
	store   store.EngineStore
	metrics *observability.Metrics
	health  *health.Checker
}

// NewHandler creates a new API handler.
func NewHandler(s store.EngineStore, metrics *observability.Metrics, healthChecker *health.Checker) *Handler {
	return &Handler{store: s, metrics: metrics, health: healthChecker}
}

// createEngineRequest is the JSON body for POST /engine.
type createEngineRequest struct {
	Name       string            `json:"name"`
	EngineType string            `json:"engine_type"`
	Version    string            `json:"version"`
	Configs    map[string]string `json:"configs"`
}

// createEngineResponse is the JSON body returned by POST /engine.
type createEngineResponse struct {
	ID string `json:"id"`
}

// engineResponse is the JSON body returned by GET /engine/{id}.
type engineResponse struct {
	Name       string            `json:"name"`
	EngineType string            `json:"engine_type"`
	Version    string            `json:"version"`
	State      string            `json:"state"`
	Configs    map[string]string `json:"configs"`
	CreateTime string            `json:"create_time"`
}

func toEngineResponse(rec *engine.Record) engineResponse {
	return engineResponse{
		Name:       rec.Name,
		EngineType: string(rec.EngineType),
		Version:    rec.Version,
		State:      string(rec.State),
		Configs:    rec.Configs,
		CreateTime: rec.CreateTime.UTC().Format(time.RFC3339),
	}
}

// engineRef is one element of the bare array GET /engines returns.
type engineRef struct {
	ID string `json:"id"`
}

// CreateEngine handles POST /engine.
func (h *Handler) CreateEngine(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var body createEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := engine.CreateRequest{
		Name:       body.Name,
		EngineType: engine.Type(body.EngineType),
		Version:    body.Version,
		Configs:    body.Configs,
	}
	if err := req.Validate(); err != nil {
		h.handleError(w, r, err)
		return
	}

	rec := engine.New(engine.NewID(), req, time.Now().UTC())
	if err := h.store.Insert(r.Context(), rec); err != nil {
		h.handleError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordEngineCreated(r.Context(), string(rec.EngineType))
	}

	slog.InfoContext(r.Context(), "engine created", "engine_id", rec.ID, "engine_type", rec.EngineType)
	h.writeJSON(w, http.StatusCreated, createEngineResponse{ID: rec.ID})
}

// GetEngine handles GET /engine/{id}.
func (h *Handler) GetEngine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "engine id is required")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toEngineResponse(rec))
}

// ListEngines handles GET /engines, returning a bare array of engine refs.
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	refs := make([]engineRef, len(ids))
	for i, id := range ids {
		refs[i] = engineRef{ID: id}
	}
	h.writeJSON(w, http.StatusOK, refs)
}

// StopEngine handles POST /engine/{id}/stop. CASes from any of
// {WaitToStart, StartInProgress, Running} to its stop-image, retrying on a
// CAS race the way the original engine router's retry loop does, since the
// observed state it should retry from may have changed between the read
// and the write.
func (h *Handler) StopEngine(w http.ResponseWriter, r *http.Request) {
	h.casRetryEndpoint(w, r, "stop", engine.StopTarget)
}

// RestartEngine handles POST /engine/{id}/restart.
func (h *Handler) RestartEngine(w http.ResponseWriter, r *http.Request) {
	h.casRetryEndpoint(w, r, "restart", engine.RestartTarget)
}

// casRetryEndpoint implements the CAS-retry-loop pattern shared by stop and
// restart: read the current state, compute the target via targetFor, CAS,
// and retry against the freshly observed state on conflict.
func (h *Handler) casRetryEndpoint(w http.ResponseWriter, r *http.Request, action string, targetFor func(engine.State) (engine.State, bool)) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "engine id is required")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	observed := rec.State

	for {
		to, ok := targetFor(observed)
		if !ok {
			h.handleError(w, r, apperrors.ConflictState("engine", string(observed),
				"engine "+id+" is in "+string(observed)+" state, cannot be "+action+"ped"))
			return
		}

		err := h.store.CASState(r.Context(), id, observed, to, "")
		if err == nil {
			if h.metrics != nil {
				h.metrics.RecordTransition(r.Context(), string(rec.EngineType), string(to))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var appErr *apperrors.Error
		if !asAppError(err, &appErr) || appErr.Observed == "" {
			h.handleError(w, r, err)
			return
		}

		if h.metrics != nil {
			h.metrics.RecordCASConflict(r.Context(), string(rec.EngineType))
		}
		observed = engine.State(appErr.Observed)
	}
}

// DeleteEngine handles DELETE /engine/{id}: conditional removal only from
// {WaitToStart, Terminated, ErrorClean}.
func (h *Handler) DeleteEngine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "engine id is required")
		return
	}

	allowed := []engine.State{engine.WaitToStart, engine.Terminated, engine.ErrorClean}
	var engineType string
	if h.metrics != nil {
		if rec, err := h.store.Get(r.Context(), id); err == nil {
			engineType = string(rec.EngineType)
		}
	}
	if err := h.store.DeleteIfState(r.Context(), id, allowed); err != nil {
		h.handleError(w, r, err)
		return
	}

	if h.metrics != nil && engineType != "" {
		h.metrics.RecordEngineRemoved(r.Context(), engineType)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps a service-layer error to an HTTP status code.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.WarnContext(r.Context(), "client error", "error", err, "path", r.URL.Path, "status", status)
	}

	var appErr *apperrors.Error
	if asAppError(err, &appErr) && appErr.Observed != "" {
		h.writeJSON(w, status, map[string]string{"error": err.Error(), "observed": appErr.Observed})
		return
	}
	h.writeError(w, status, err.Error())
}

// asAppError is errors.As inlined to keep this file free of a second errors
// import alongside apperrors' own.
func asAppError(err error, target **apperrors.Error) bool {
	for err != nil {
		if e, ok := err.(*apperrors.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

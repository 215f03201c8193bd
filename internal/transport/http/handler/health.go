package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rifas-api/internal/domain"
)

// StatusReporter exposes the availability tracker's view of the store.
type StatusReporter interface {
	Status() domain.SystemStatus
}

// HealthHandler handles health-check and system status endpoints.
type HealthHandler struct {
	status StatusReporter
}

func NewHealthHandler(status StatusReporter) *HealthHandler { return &HealthHandler{status: status} }

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if action == "ping" {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
		return
	}
	writeError(w, http.StatusBadRequest, "unknown action")
}

// Status reports whether mutating operations can currently reach the store.
func (h *HealthHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status())
}

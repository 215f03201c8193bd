package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rifas-api/internal/application/export"
)

// ExportHandler serves participant CSV downloads and archives them to object storage.
type ExportHandler struct {
	svc export.Service
}

func NewExportHandler(svc export.Service) *ExportHandler { return &ExportHandler{svc: svc} }

// Download streams the participant list as CSV.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	filename, err := h.svc.WriteCSV(r.Context(), chi.URLParam(r, "id"), &buf)
	if err != nil {
		httpError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *ExportHandler) Publish(w http.ResponseWriter, r *http.Request) {
	archive, err := h.svc.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, archive)
}

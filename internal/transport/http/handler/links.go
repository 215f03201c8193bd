package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rifas-api/internal/application/link"
	"github.com/rifas-api/internal/domain"
)

// LinkHandler handles custom single-use links.
type LinkHandler struct {
	svc link.Service
}

func NewLinkHandler(svc link.Service) *LinkHandler { return &LinkHandler{svc: svc} }

func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.svc.Create(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "linkId")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "link deleted"})
}

// Check tells the participant page whether a link can still be used.
// A used link answers 410 with the redeemer snapshot.
func (h *LinkHandler) Check(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Redeem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "linkId"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

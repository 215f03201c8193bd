package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rifas-api/internal/application/raffle"
	"github.com/rifas-api/internal/domain"
)

// RaffleHandler handles raffle administration and the public raffle view.
type RaffleHandler struct {
	svc raffle.Service
}

func NewRaffleHandler(svc raffle.Service) *RaffleHandler { return &RaffleHandler{svc: svc} }

// List returns raffles newest first; ?archived=true lists the archive.
func (h *RaffleHandler) List(w http.ResponseWriter, r *http.Request) {
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))
	listing, err := h.svc.List(r.Context(), archived)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *RaffleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRaffleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RaffleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rf, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rf)
}

func (h *RaffleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "raffle deleted"})
}

func (h *RaffleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Pause)
}

func (h *RaffleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resume)
}

func (h *RaffleHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Archive)
}

func (h *RaffleHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Unarchive)
}

// Finish draws the winner and closes the raffle.
func (h *RaffleHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Finish)
}

func (h *RaffleHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*domain.Raffle, error)) {
	rf, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rf)
}

func (h *RaffleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RaffleHandler) Participants(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Public is the participant page: taken numbers without personal data.
func (h *RaffleHandler) Public(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.PublicView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

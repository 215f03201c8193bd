package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rifas-api/internal/application/link"
	"github.com/rifas-api/internal/application/reservation"
	"github.com/rifas-api/internal/domain"
)

// ReserveBody is the public reservation payload. AcceptPartial is the
// participant's consent to keep whatever is still free when some of the
// requested numbers were taken meanwhile.
type ReserveBody struct {
	Numbers       []int                     `json:"numbers"`
	Participant   domain.ParticipantProfile `json:"participant"`
	LinkID        string                    `json:"link_id,omitempty"`
	AcceptPartial bool                      `json:"accept_partial,omitempty"`
}

// ReservationEnvelope is the successful reservation response.
type ReservationEnvelope struct {
	Committed    []int                `json:"committed"`
	Rejected     []int                `json:"rejected"`
	Participants []domain.Participant `json:"participants"`
	Link         *domain.CustomLink   `json:"link,omitempty"`
}

// ReservationHandler handles participant reservations, with or without a custom link.
type ReservationHandler struct {
	reservations reservation.Service
	links        link.Service
}

func NewReservationHandler(reservations reservation.Service, links link.Service) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, links: links}
}

func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var body ReserveBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raffleID := chi.URLParam(r, "id")

	if body.LinkID != "" {
		red, err := h.links.ReserveWithLink(r.Context(), raffleID, body.LinkID, link.RedeemRequest{
			Numbers:       body.Numbers,
			Participant:   body.Participant,
			AcceptPartial: body.AcceptPartial,
		})
		var batch *domain.BatchWriteError
		if err != nil && red != nil && errors.As(err, &batch) {
			writeBatchError(w, err, batch, red.Link)
			return
		}
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, envelope(red.Reservation, red.Link))
		return
	}

	res, err := h.reservations.Reserve(r.Context(), reservation.ReserveRequest{
		RaffleID:      raffleID,
		Numbers:       body.Numbers,
		Participant:   body.Participant,
		AcceptPartial: body.AcceptPartial,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope(res, nil))
}

func envelope(res *reservation.Result, l *domain.CustomLink) ReservationEnvelope {
	env := ReservationEnvelope{Link: l}
	if res != nil {
		env.Committed = res.Committed
		env.Rejected = res.Rejected
		env.Participants = res.Participants
	}
	if env.Rejected == nil {
		env.Rejected = []int{}
	}
	return env
}

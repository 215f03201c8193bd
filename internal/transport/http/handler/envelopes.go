package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rifas-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorEnvelope carries a machine-readable code plus whatever data the
// caller needs to recover (the partial offer, the used link, the split of a
// broken batch).
type ErrorEnvelope struct {
	Error       string             `json:"error"`
	Code        string             `json:"code,omitempty"`
	Field       string             `json:"field,omitempty"`
	Available   []int              `json:"available,omitempty"`
	Unavailable []int              `json:"unavailable,omitempty"`
	Committed   []int              `json:"committed,omitempty"`
	Failed      []int              `json:"failed,omitempty"`
	Link        *domain.CustomLink `json:"link,omitempty"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Bearer    string    `json:"Bearer"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CountEnvelope reports how many records a bulk operation touched.
type CountEnvelope struct {
	Updated int `json:"updated"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// httpError maps service errors onto status codes in one place.
func httpError(w http.ResponseWriter, err error) {
	var (
		used    *domain.LinkUsedError
		offer   *domain.PartialOfferError
		batch   *domain.BatchWriteError
		invalid *domain.ValidationError
	)
	switch {
	case errors.As(err, &used):
		writeJSON(w, http.StatusGone, ErrorEnvelope{Error: err.Error(), Code: "link_used", Link: used.Link})
	case errors.As(err, &offer):
		writeJSON(w, http.StatusConflict, ErrorEnvelope{
			Error:       err.Error(),
			Code:        "partial_offer",
			Available:   offer.Available,
			Unavailable: offer.Unavailable,
		})
	case errors.As(err, &batch):
		writeBatchError(w, err, batch, nil)
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: err.Error(), Code: "validation", Field: invalid.Field})
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorEnvelope{Error: err.Error(), Code: "store_unavailable"})
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorEnvelope{Error: err.Error(), Code: conflictCode(err)})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeBatchError reports exactly which numbers committed; l is the link the
// committed numbers were reserved through, if any.
func writeBatchError(w http.ResponseWriter, err error, batch *domain.BatchWriteError, l *domain.CustomLink) {
	writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{
		Error:     err.Error(),
		Code:      "write_failed_mid_batch",
		Committed: batch.Committed,
		Failed:    batch.Failed,
		Link:      l,
	})
}

func conflictCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAllNumbersTaken):
		return "all_numbers_taken"
	case errors.Is(err, domain.ErrRedemptionInProgress):
		return "redemption_in_progress"
	case errors.Is(err, domain.ErrRaffleClosed):
		return "raffle_closed"
	case errors.Is(err, domain.ErrAlreadyFinished):
		return "already_finished"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNumberTaken):
		return "number_taken"
	}
	return "conflict"
}

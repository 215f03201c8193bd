package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rifas-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestHTTPError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"validation", &domain.ValidationError{Field: "numbers", Reason: "empty"}, http.StatusBadRequest, "validation"},
		{"bad request", fmt.Errorf("x: %w", domain.ErrBadRequest), http.StatusBadRequest, ""},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized, ""},
		{"not found", fmt.Errorf("raffle: %w", domain.ErrNotFound), http.StatusNotFound, ""},
		{"store offline", &domain.StoreError{Op: "get", Table: "raffles", Unavailable: true, Err: errors.New("dial")}, http.StatusServiceUnavailable, "store_unavailable"},
		{"all taken", domain.ErrAllNumbersTaken, http.StatusConflict, "all_numbers_taken"},
		{"in progress", domain.ErrRedemptionInProgress, http.StatusConflict, "redemption_in_progress"},
		{"closed", domain.ErrRaffleClosed, http.StatusConflict, "raffle_closed"},
		{"finished", domain.ErrAlreadyFinished, http.StatusConflict, "already_finished"},
		{"transition", domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"plain conflict", domain.ErrConflict, http.StatusConflict, "conflict"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			httpError(rr, tc.err)
			assert.Equal(t, tc.want, rr.Code)
			var env ErrorEnvelope
			decodeBody(t, rr, &env)
			assert.Equal(t, tc.code, env.Code)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestHTTPError_InternalErrorIsNotLeaked(t *testing.T) {
	rr := httptest.NewRecorder()
	httpError(rr, errors.New("dynamodb: secret table arn"))
	assert.NotContains(t, rr.Body.String(), "arn")
}

func TestHTTPError_PartialOfferCarriesSubset(t *testing.T) {
	rr := httptest.NewRecorder()
	httpError(rr, &domain.PartialOfferError{Available: []int{3}, Unavailable: []int{5, 7}})
	assert.Equal(t, http.StatusConflict, rr.Code)
	var env ErrorEnvelope
	decodeBody(t, rr, &env)
	assert.Equal(t, "partial_offer", env.Code)
	assert.Equal(t, []int{3}, env.Available)
	assert.Equal(t, []int{5, 7}, env.Unavailable)
}

func TestHTTPError_UsedLinkIsGone(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	link := &domain.CustomLink{LinkID: "l1", Used: true, UsedAt: &at, UsedBy: &domain.Redeemer{Name: "Ana", Numbers: []int{4}}}
	rr := httptest.NewRecorder()
	httpError(rr, fmt.Errorf("redeem: %w", &domain.LinkUsedError{Link: link}))
	assert.Equal(t, http.StatusGone, rr.Code)
	var env ErrorEnvelope
	decodeBody(t, rr, &env)
	assert.Equal(t, "link_used", env.Code)
	if assert.NotNil(t, env.Link) && assert.NotNil(t, env.Link.UsedBy) {
		assert.Equal(t, "Ana", env.Link.UsedBy.Name)
	}
}

func TestHTTPError_BatchFailureReportsSplit(t *testing.T) {
	rr := httptest.NewRecorder()
	err := &domain.BatchWriteError{
		Committed: []int{1},
		Failed:    []int{2},
		Err:       &domain.StoreError{Op: "insert", Unavailable: true, Err: errors.New("timeout")},
	}
	httpError(rr, err)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var env ErrorEnvelope
	decodeBody(t, rr, &env)
	assert.Equal(t, []int{1}, env.Committed)
	assert.Equal(t, []int{2}, env.Failed)
}

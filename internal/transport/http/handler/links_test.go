package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rifas-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLinkCreate_Created(t *testing.T) {
	svc := &mockLinkSvc{}
	svc.On("Create", mock.Anything, "r1", domain.CreateLinkRequest{Limit: 3}).
		Return(&domain.CustomLink{LinkID: "l1", RaffleID: "r1", Limit: 3, URL: "https://rifa.example?rifa=r1&limit=3&linkId=l1"}, nil)
	h := NewLinkHandler(svc)

	rr := httptest.NewRecorder()
	h.Create(rr, withChiParams(jsonReq(t, http.MethodPost, "/v1/raffles/r1/links", domain.CreateLinkRequest{Limit: 3}), "id", "r1"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var got domain.CustomLink
	decodeBody(t, rr, &got)
	assert.Contains(t, got.URL, "linkId=l1")
	svc.AssertExpectations(t)
}

func TestLinkCreate_Validation(t *testing.T) {
	svc := &mockLinkSvc{}
	svc.On("Create", mock.Anything, "r1", domain.CreateLinkRequest{Limit: 0}).
		Return(nil, &domain.ValidationError{Field: "limit", Reason: "min=1"})
	h := NewLinkHandler(svc)

	rr := httptest.NewRecorder()
	h.Create(rr, withChiParams(jsonReq(t, http.MethodPost, "/v1/raffles/r1/links", domain.CreateLinkRequest{}), "id", "r1"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLinkCheck_Fresh(t *testing.T) {
	svc := &mockLinkSvc{}
	svc.On("Redeem", mock.Anything, "r1", "l1").Return(&domain.CustomLink{LinkID: "l1", Limit: 2}, nil)
	h := NewLinkHandler(svc)

	rr := httptest.NewRecorder()
	h.Check(rr, withChiParams(httptest.NewRequest(http.MethodGet, "/v1/raffles/r1/links/l1", nil), "id", "r1", "linkId", "l1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestLinkDelete_NotFound(t *testing.T) {
	svc := &mockLinkSvc{}
	svc.On("Delete", mock.Anything, "r1", "nope").Return(domain.ErrNotFound)
	h := NewLinkHandler(svc)

	rr := httptest.NewRecorder()
	h.Delete(rr, withChiParams(httptest.NewRequest(http.MethodDelete, "/v1/raffles/r1/links/nope", nil), "id", "r1", "linkId", "nope"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

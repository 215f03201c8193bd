package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rifas-api/internal/application/raffle"
	"github.com/rifas-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// --- mock ---

type mockRaffleSvc struct{ mock.Mock }

func (m *mockRaffleSvc) raffle(args mock.Arguments) (*domain.Raffle, error) {
	if r, _ := args.Get(0).(*domain.Raffle); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRaffleSvc) Create(ctx context.Context, req domain.CreateRaffleRequest) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, req))
}

func (m *mockRaffleSvc) Get(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

func (m *mockRaffleSvc) List(ctx context.Context, archived bool) (*raffle.Listing, error) {
	args := m.Called(ctx, archived)
	if l, _ := args.Get(0).(*raffle.Listing); l != nil {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRaffleSvc) Stats(ctx context.Context, raffleID string) (*domain.RaffleStats, error) {
	args := m.Called(ctx, raffleID)
	if s, _ := args.Get(0).(*domain.RaffleStats); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRaffleSvc) PublicView(ctx context.Context, raffleID string) (*domain.PublicRaffle, error) {
	args := m.Called(ctx, raffleID)
	if p, _ := args.Get(0).(*domain.PublicRaffle); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRaffleSvc) Participants(ctx context.Context, raffleID string) ([]domain.Participant, error) {
	args := m.Called(ctx, raffleID)
	list, _ := args.Get(0).([]domain.Participant)
	return list, args.Error(1)
}

func (m *mockRaffleSvc) Pause(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

func (m *mockRaffleSvc) Resume(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

func (m *mockRaffleSvc) Archive(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

func (m *mockRaffleSvc) Unarchive(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

func (m *mockRaffleSvc) Delete(ctx context.Context, raffleID string) error {
	return m.Called(ctx, raffleID).Error(0)
}

func (m *mockRaffleSvc) Finish(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

// --- tests ---

func TestRaffleCreate_InvalidBody(t *testing.T) {
	svc := &mockRaffleSvc{}
	h := NewRaffleHandler(svc)
	r := httptest.NewRequest(http.MethodPost, "/v1/raffles", nil)
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRaffleCreate_Created(t *testing.T) {
	svc := &mockRaffleSvc{}
	req := domain.CreateRaffleRequest{Name: "Rifa Solidária", Size: 100}
	svc.On("Create", mock.Anything, req).Return(&domain.Raffle{RaffleID: "r1", Name: req.Name, Size: 100, Status: domain.RaffleActive}, nil)
	h := NewRaffleHandler(svc)

	rr := httptest.NewRecorder()
	h.Create(rr, jsonReq(t, http.MethodPost, "/v1/raffles", req))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var got domain.Raffle
	decodeBody(t, rr, &got)
	assert.Equal(t, "r1", got.RaffleID)
	svc.AssertExpectations(t)
}

func TestRaffleList_ArchivedQuery(t *testing.T) {
	svc := &mockRaffleSvc{}
	svc.On("List", mock.Anything, true).Return(&raffle.Listing{Raffles: []domain.Raffle{{RaffleID: "old"}}, Cached: true}, nil)
	h := NewRaffleHandler(svc)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/v1/raffles?archived=true", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got raffle.Listing
	decodeBody(t, rr, &got)
	assert.True(t, got.Cached)
	assert.Len(t, got.Raffles, 1)
	svc.AssertExpectations(t)
}

func TestRaffleFinish_AlreadyFinished(t *testing.T) {
	svc := &mockRaffleSvc{}
	svc.On("Finish", mock.Anything, "r1").Return(nil, domain.ErrAlreadyFinished)
	h := NewRaffleHandler(svc)

	rr := httptest.NewRecorder()
	h.Finish(rr, withChiParams(httptest.NewRequest(http.MethodPost, "/v1/raffles/r1/finish", nil), "id", "r1"))

	assert.Equal(t, http.StatusConflict, rr.Code)
	svc.AssertExpectations(t)
}

func TestRafflePause_UsesPathID(t *testing.T) {
	svc := &mockRaffleSvc{}
	svc.On("Pause", mock.Anything, "r9").Return(&domain.Raffle{RaffleID: "r9", Status: domain.RafflePaused}, nil)
	h := NewRaffleHandler(svc)

	rr := httptest.NewRecorder()
	h.Pause(rr, withChiParams(httptest.NewRequest(http.MethodPost, "/v1/raffles/r9/pause", nil), "id", "r9"))

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestRafflePublic_StoreNotReady(t *testing.T) {
	svc := &mockRaffleSvc{}
	svc.On("PublicView", mock.Anything, "r1").Return(nil, domain.ErrStoreUnavailable)
	h := NewRaffleHandler(svc)

	rr := httptest.NewRecorder()
	h.Public(rr, withChiParams(httptest.NewRequest(http.MethodGet, "/v1/raffles/r1/public", nil), "id", "r1"))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRaffleGet_NotFound(t *testing.T) {
	svc := &mockRaffleSvc{}
	svc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)
	h := NewRaffleHandler(svc)

	rr := httptest.NewRecorder()
	h.Get(rr, withChiParams(httptest.NewRequest(http.MethodGet, "/v1/raffles/missing", nil), "id", "missing"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

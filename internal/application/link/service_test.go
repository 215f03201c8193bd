package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rifas-api/internal/application/availability"
	"github.com/rifas-api/internal/application/reservation"
	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     Service
	store   *memory.Store
	tracker *availability.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith builds the service over links, or the memory links when nil.
func newFixtureWith(t *testing.T, wrap func(*memory.LinkRepo) Store) *fixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, store.Raffles().Put(ctx, &domain.Raffle{
			RaffleID: id, Name: "Rifa", Size: 50, Status: domain.RaffleActive, CreatedAt: time.Now().UTC(),
		}))
	}
	tracker := availability.NewTracker(true, "memory", store, nil, nil)
	reservations := reservation.NewService(store.Raffles(), store.Participants(), tracker, nil, 100, nil, nil)
	var links Store = store.Links()
	if wrap != nil {
		links = wrap(store.Links())
	}
	svc := NewService(links, store.Raffles(), store.Participants(), reservations, tracker, "https://rifas.test", time.Minute, nil, nil)
	return &fixture{svc: svc, store: store, tracker: tracker}
}

func (f *fixture) participants(t *testing.T) []domain.Participant {
	t.Helper()
	list, err := f.store.Participants().ListByRaffle(context.Background(), "r1")
	require.NoError(t, err)
	return list
}

var carla = domain.ParticipantProfile{Name: "Carla", Phone: "11988887777", Email: "carla@example.com"}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 3})
	require.NoError(t, err)
	assert.False(t, link.Used)
	assert.Equal(t, "https://rifas.test?rifa=r1&limit=3&linkId="+link.LinkID, link.URL)

	_, err = f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 101})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Create(ctx, "missing", domain.CreateLinkRequest{Limit: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.svc.List(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].URL)
}

func TestCreate_FinishedRaffle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := domain.RaffleFinished
	_, err := f.store.Raffles().Update(ctx, "r1", domain.RafflePatch{Status: &st})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 1})
	assert.ErrorIs(t, err, domain.ErrAlreadyFinished)
}

func TestReserveWithLink_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 2})
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, "r1", link.LinkID)
	require.NoError(t, err)

	out, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{10, 11}, Participant: carla})
	require.NoError(t, err)
	assert.True(t, out.Link.Used)
	assert.Equal(t, []int{10, 11}, out.Link.UsedBy.Numbers)
	assert.Equal(t, []int{10, 11}, out.Reservation.Committed)
	for _, p := range f.participants(t) {
		require.NotNil(t, p.LinkID)
		assert.Equal(t, link.LinkID, *p.LinkID)
	}

	_, err = f.svc.Redeem(ctx, "r1", link.LinkID)
	var used *domain.LinkUsedError
	require.ErrorAs(t, err, &used)
	assert.Equal(t, "Carla", used.Link.UsedBy.Name)
	require.NotNil(t, used.Link.UsedAt)

	_, err = f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{12}, Participant: carla})
	assert.ErrorIs(t, err, domain.ErrLinkAlreadyUsed)
	assert.Len(t, f.participants(t), 2, "no reservation may carry a used link")
}

func TestReserveWithLink_LimitBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 1})
	require.NoError(t, err)

	_, err = f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{1, 2}, Participant: carla})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.store.Links().Get(ctx, link.LinkID)
	require.NoError(t, err)
	assert.False(t, got.Used)
	assert.Empty(t, got.ClaimToken, "lease released")
}

func TestReserveWithLink_FailedReservationKeepsLinkUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Participants().Insert(ctx, &domain.Participant{ParticipantID: "x", RaffleID: "r1", Number: 5}))
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 1})
	require.NoError(t, err)

	_, err = f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{5}, Participant: carla})
	assert.ErrorIs(t, err, domain.ErrAllNumbersTaken)

	out, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{6}, Participant: carla})
	require.NoError(t, err)
	assert.True(t, out.Link.Used)
}

func TestReserveWithLink_PartialDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Participants().Insert(ctx, &domain.Participant{ParticipantID: "x", RaffleID: "r1", Number: 4}))
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 3})
	require.NoError(t, err)

	_, err = f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{3, 4, 5}, Participant: carla})
	var offer *domain.PartialOfferError
	require.ErrorAs(t, err, &offer)
	assert.Equal(t, []int{3, 5}, offer.Available)

	got, err := f.store.Links().Get(ctx, link.LinkID)
	require.NoError(t, err)
	assert.False(t, got.Used)
}

func TestReserveWithLink_ConcurrentRedeemers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 1})
	require.NoError(t, err)

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{n}, Participant: carla})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, domain.ErrRedemptionInProgress) || errors.Is(err, domain.ErrLinkAlreadyUsed), err)
		}(i + 1)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, f.participants(t), 1)
}

func TestReserveWithLink_StaleLeaseTakenOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 1})
	require.NoError(t, err)

	// a crashed redeemer left a lease behind
	old := time.Now().Add(-time.Hour)
	_, err = f.store.Links().Claim(ctx, link.LinkID, "abandoned", old, old.Add(-time.Minute))
	require.NoError(t, err)

	out, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{9}, Participant: carla})
	require.NoError(t, err)
	assert.True(t, out.Link.Used)
}

func TestLink_OtherRaffle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r2", domain.CreateLinkRequest{Limit: 1})
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, "r1", link.LinkID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "r1", link.LinkID), domain.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, "r2", link.LinkID))
}

func TestRedeem_StoreOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 1})
	require.NoError(t, err)

	f.store.SetUnavailable(true)
	_, err = f.svc.Redeem(ctx, "r1", link.LinkID)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{1}, Participant: carla})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// stuckLinks fails Complete a set number of times; landed makes the first
// failure happen after the write went through.
type stuckLinks struct {
	*memory.LinkRepo
	mu       sync.Mutex
	failures int
	landed   bool
}

func (s *stuckLinks) Complete(ctx context.Context, linkID, token string, redeemer domain.Redeemer, at time.Time) (*domain.CustomLink, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	landed := s.landed
	s.landed = false
	s.mu.Unlock()
	if !fail {
		return s.LinkRepo.Complete(ctx, linkID, token, redeemer, at)
	}
	if landed {
		if _, err := s.LinkRepo.Complete(ctx, linkID, token, redeemer, at); err != nil {
			return nil, err
		}
	}
	return nil, &domain.StoreError{Op: "complete", Table: "custom_links", Err: errors.New("timeout after send")}
}

func TestReserveWithLink_CompleteRetried(t *testing.T) {
	stuck := &stuckLinks{failures: 1}
	f := newFixtureWith(t, func(r *memory.LinkRepo) Store { stuck.LinkRepo = r; return stuck })
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 2})
	require.NoError(t, err)

	out, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{1, 2}, Participant: carla})
	require.NoError(t, err)
	assert.True(t, out.Link.Used)
	assert.Equal(t, []int{1, 2}, out.Link.UsedBy.Numbers)
}

func TestReserveWithLink_CompleteLandedDespiteError(t *testing.T) {
	stuck := &stuckLinks{failures: 1, landed: true}
	f := newFixtureWith(t, func(r *memory.LinkRepo) Store { stuck.LinkRepo = r; return stuck })
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 2})
	require.NoError(t, err)

	out, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{1}, Participant: carla})
	require.NoError(t, err)
	assert.True(t, out.Link.Used)
}

func TestReserveWithLink_LinkNotMarkedStaysUsed(t *testing.T) {
	stuck := &stuckLinks{failures: completeAttempts}
	f := newFixtureWith(t, func(r *memory.LinkRepo) Store { stuck.LinkRepo = r; return stuck })
	ctx := context.Background()
	link, err := f.svc.Create(ctx, "r1", domain.CreateLinkRequest{Limit: 2})
	require.NoError(t, err)

	out, err := f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{1, 2}, Participant: carla})
	var batch *domain.BatchWriteError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []int{1, 2}, batch.Committed)
	assert.Empty(t, batch.Failed)
	require.NotNil(t, out)
	assert.Equal(t, []int{1, 2}, out.Reservation.Committed)
	assert.True(t, out.Link.Used)
	assert.Len(t, f.participants(t), 2)

	// the stored flag never landed, but the committed rows still burn the link
	stored, err := f.store.Links().Get(ctx, link.LinkID)
	require.NoError(t, err)
	assert.False(t, stored.Used)

	_, err = f.svc.Redeem(ctx, "r1", link.LinkID)
	var used *domain.LinkUsedError
	require.ErrorAs(t, err, &used)
	assert.Equal(t, []int{1, 2}, used.Link.UsedBy.Numbers)

	// once the lease has expired the link is burned instead of reused
	old := time.Now().Add(-time.Hour)
	_, err = f.store.Links().Claim(ctx, link.LinkID, "abandoned", old, time.Now().Add(time.Second))
	require.NoError(t, err)
	_, err = f.svc.ReserveWithLink(ctx, "r1", link.LinkID, RedeemRequest{Numbers: []int{3}, Participant: carla})
	require.ErrorAs(t, err, &used)
	assert.Len(t, f.participants(t), 2, "no reservation may carry a used link")

	stored, err = f.store.Links().Get(ctx, link.LinkID)
	require.NoError(t, err)
	assert.True(t, stored.Used)
	assert.Equal(t, "Carla", stored.UsedBy.Name)
}

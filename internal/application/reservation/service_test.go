package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rifas-api/internal/application/availability"
	"github.com/rifas-api/internal/application/notification"
	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fixture struct {
	svc     Service
	store   *memory.Store
	tracker *availability.Tracker
	notes   notification.Service
}

func newFixture(t *testing.T, size int, participants ParticipantStore) *fixture {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Raffles().Put(context.Background(), &domain.Raffle{
		RaffleID: "r1", Name: "Rifa", Size: size, Status: domain.RaffleActive, CreatedAt: time.Now().UTC(),
	}))
	if participants == nil {
		participants = store.Participants()
	}
	tracker := availability.NewTracker(true, "memory", store, nil, nil)
	notes := notification.NewService(store.Notifications(), tracker, notification.Alerts{}, nil, nil)
	return &fixture{
		svc:     NewService(store.Raffles(), participants, tracker, notes, 100, nil, nil),
		store:   store,
		tracker: tracker,
		notes:   notes,
	}
}

func (f *fixture) notifications(t *testing.T, typ domain.NotificationType) []domain.Notification {
	t.Helper()
	list, err := f.notes.List(context.Background(), domain.NotificationFilter{Type: typ})
	require.NoError(t, err)
	return list
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	list, err := f.store.Participants().ListByRaffle(context.Background(), "r1")
	require.NoError(t, err)
	return len(list)
}

var (
	alice = domain.ParticipantProfile{Name: "Alice", Phone: "(11) 99999-0001", Email: "alice@example.com"}
	bob   = domain.ParticipantProfile{Name: "Bob", Phone: "11 99999-0002"}
)

// flakyParticipants injects failures in front of the memory store.
type flakyParticipants struct {
	*memory.ParticipantRepo
	mu        sync.Mutex
	failOn    map[int]error
	lieOn     map[int]bool
	staleList bool
	listCalls int
}

func (f *flakyParticipants) Insert(ctx context.Context, p *domain.Participant) error {
	f.mu.Lock()
	failErr, fail := f.failOn[p.Number]
	lie := f.lieOn[p.Number]
	f.mu.Unlock()
	if fail {
		return failErr
	}
	if err := f.ParticipantRepo.Insert(ctx, p); err != nil {
		return err
	}
	if lie {
		return &domain.StoreError{Op: "insert", Table: "participants", Err: errors.New("connection reset by peer")}
	}
	return nil
}

func (f *flakyParticipants) ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error) {
	f.mu.Lock()
	f.listCalls++
	stale := f.staleList && f.listCalls == 1
	f.mu.Unlock()
	if stale {
		return nil, nil
	}
	return f.ParticipantRepo.ListByRaffle(ctx, raffleID)
}

// --- tests ---

func TestReserve_Scenario(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{1, 2}, Participant: alice})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Committed)
	assert.Empty(t, res.Rejected)

	res, err = f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{2, 3}, Participant: bob, AcceptPartial: true})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.Committed)
	assert.Equal(t, []int{2}, res.Rejected)

	conc := f.notifications(t, domain.NotificationConcurrency)
	require.Len(t, conc, 1)
	assert.Equal(t, []int{2}, conc[0].Data.Concurrency.Numbers)
	assert.Equal(t, "Bob", conc[0].Data.Concurrency.ParticipantName)
	assert.Equal(t, "r1", conc[0].RaffleID)
	assert.Equal(t, domain.PriorityHigh, conc[0].Priority)

	assert.Len(t, f.notifications(t, domain.NotificationNewParticipation), 3)
}

func TestReserve_CancelledCallerDoesNotTakeStoreOffline(t *testing.T) {
	f := newFixture(t, 10, nil)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Reserve(cancelled, ReserveRequest{RaffleID: "r1", Numbers: []int{1}, Participant: alice})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, f.tracker.Ready())

	res, err := f.svc.Reserve(context.Background(), ReserveRequest{RaffleID: "r1", Numbers: []int{1}, Participant: bob})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Committed)
}

func TestReserve_PartialOfferDeclined(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{4}, Participant: alice})
	require.NoError(t, err)
	before := f.count(t)
	notesBefore := len(f.notifications(t, ""))

	_, err = f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{3, 4, 5}, Participant: bob})
	var offer *domain.PartialOfferError
	require.ErrorAs(t, err, &offer)
	assert.Equal(t, []int{3, 5}, offer.Available)
	assert.Equal(t, []int{4}, offer.Unavailable)
	assert.ErrorIs(t, err, domain.ErrPartialFulfillmentDeclined)

	assert.Equal(t, before, f.count(t))
	assert.Len(t, f.notifications(t, ""), notesBefore)
}

func TestReserve_AllNumbersTaken(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{1, 2}, Participant: alice})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{1, 2}, Participant: bob, AcceptPartial: true})
	assert.ErrorIs(t, err, domain.ErrAllNumbersTaken)
	assert.Equal(t, 2, f.count(t))
}

func TestReserve_StoreNotConfigured(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Raffles().Put(context.Background(), &domain.Raffle{RaffleID: "r1", Size: 10, Status: domain.RaffleActive}))
	tracker := availability.NewTracker(false, "", nil, nil, nil)
	svc := NewService(store.Raffles(), store.Participants(), tracker, nil, 100, nil, nil)

	_, err := svc.Reserve(context.Background(), ReserveRequest{RaffleID: "r1", Numbers: []int{1}, Participant: alice})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	list, err := store.Participants().ListByRaffle(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReserve_Validation(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()
	cases := map[string]ReserveRequest{
		"no numbers":      {RaffleID: "r1", Participant: alice},
		"duplicate":       {RaffleID: "r1", Numbers: []int{1, 1}, Participant: alice},
		"out of range":    {RaffleID: "r1", Numbers: []int{11}, Participant: alice},
		"zero":            {RaffleID: "r1", Numbers: []int{0}, Participant: alice},
		"over limit":      {RaffleID: "r1", Numbers: []int{1, 2, 3}, Participant: alice, Limit: 2},
		"missing phone":   {RaffleID: "r1", Numbers: []int{1}, Participant: domain.ParticipantProfile{Name: "x"}},
		"malformed email": {RaffleID: "r1", Numbers: []int{1}, Participant: domain.ParticipantProfile{Name: "x", Phone: "1", Email: "nope"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Reserve(ctx, req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 0, f.count(t))
}

func TestReserve_RaffleNotActive(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()
	paused := domain.RafflePaused
	_, err := f.store.Raffles().Update(ctx, "r1", domain.RafflePatch{Status: &paused})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{1}, Participant: alice})
	assert.ErrorIs(t, err, domain.ErrRaffleClosed)
}

func TestReserve_ConcurrentWritersOneWinner(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{5, 6}, Participant: bob, AcceptPartial: true})
			if err != nil {
				return
			}
			mu.Lock()
			committed += len(res.Committed)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, committed)
	list, err := f.store.Participants().ListByRaffle(ctx, "r1")
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, p := range list {
		assert.False(t, seen[p.Number], "number %d committed twice", p.Number)
		seen[p.Number] = true
	}
}

func TestReserve_LostRaceAtStore(t *testing.T) {
	flaky := &flakyParticipants{staleList: true}
	f := newFixture(t, 10, flaky)
	flaky.ParticipantRepo = f.store.Participants()
	ctx := context.Background()
	require.NoError(t, f.store.Participants().Insert(ctx, &domain.Participant{ParticipantID: "other", RaffleID: "r1", Number: 2}))

	res, err := f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{2, 3}, Participant: bob})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.Committed)
	assert.Equal(t, []int{2}, res.Rejected)
	assert.Len(t, f.notifications(t, domain.NotificationConcurrency), 1)
}

func TestReserve_MidBatchFailure(t *testing.T) {
	flaky := &flakyParticipants{failOn: map[int]error{
		2: &domain.StoreError{Op: "insert", Table: "participants", Err: errors.New("throughput exceeded")},
	}}
	f := newFixture(t, 10, flaky)
	flaky.ParticipantRepo = f.store.Participants()

	res, err := f.svc.Reserve(context.Background(), ReserveRequest{RaffleID: "r1", Numbers: []int{1, 2, 3}, Participant: alice})
	var bwe *domain.BatchWriteError
	require.ErrorAs(t, err, &bwe)
	assert.ErrorIs(t, err, domain.ErrWriteFailedMidBatch)
	assert.Equal(t, []int{1, 3}, bwe.Committed)
	assert.Equal(t, []int{2}, bwe.Failed)
	require.NotNil(t, res)
	assert.Equal(t, []int{1, 3}, res.Committed)
	assert.Equal(t, 2, f.count(t))
}

func TestReserve_StoreGoesOfflineMidBatch(t *testing.T) {
	flaky := &flakyParticipants{failOn: map[int]error{
		2: &domain.StoreError{Op: "insert", Table: "participants", Unavailable: true, Err: errors.New("dial tcp: timeout")},
	}}
	f := newFixture(t, 10, flaky)
	flaky.ParticipantRepo = f.store.Participants()

	_, err := f.svc.Reserve(context.Background(), ReserveRequest{RaffleID: "r1", Numbers: []int{1, 2, 3, 4}, Participant: alice})
	var bwe *domain.BatchWriteError
	require.ErrorAs(t, err, &bwe)
	assert.Equal(t, []int{1}, bwe.Committed)
	assert.Equal(t, []int{2, 3, 4}, bwe.Failed)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestReserve_UncertainWriteIsVerified(t *testing.T) {
	flaky := &flakyParticipants{lieOn: map[int]bool{1: true}}
	f := newFixture(t, 10, flaky)
	flaky.ParticipantRepo = f.store.Participants()

	res, err := f.svc.Reserve(context.Background(), ReserveRequest{RaffleID: "r1", Numbers: []int{1}, Participant: alice})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Committed)
}

func TestReserve_DuplicateSuspicion(t *testing.T) {
	f := newFixture(t, 10, nil)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{1, 2}, Participant: alice})
	require.NoError(t, err)
	assert.Empty(t, f.notifications(t, domain.NotificationDuplicateSuspicion))

	again := alice
	again.Phone = "11999990001"
	_, err = f.svc.Reserve(ctx, ReserveRequest{RaffleID: "r1", Numbers: []int{7}, Participant: again})
	require.NoError(t, err)

	dup := f.notifications(t, domain.NotificationDuplicateSuspicion)
	require.Len(t, dup, 1)
	assert.Equal(t, 3, dup[0].Data.DuplicateSuspicion.TotalNumbers)
}

func TestReserve_NotificationFailureDoesNotFail(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Raffles().Put(context.Background(), &domain.Raffle{RaffleID: "r1", Size: 10, Status: domain.RaffleActive}))
	tracker := availability.NewTracker(true, "memory", store, nil, nil)
	svc := NewService(store.Raffles(), store.Participants(), tracker, failingRecorder{}, 100, nil, nil)

	res, err := svc.Reserve(context.Background(), ReserveRequest{RaffleID: "r1", Numbers: []int{1}, Participant: alice})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Committed)
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, n *domain.Notification) error {
	return errors.New("notifications table missing")
}

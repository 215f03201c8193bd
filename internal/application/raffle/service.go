package raffle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/pkg/id"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/pkg/validate"
)

type RaffleStore interface {
	Put(ctx context.Context, r *domain.Raffle) error
	Get(ctx context.Context, raffleID string) (*domain.Raffle, error)
	List(ctx context.Context) ([]domain.Raffle, error)
	Update(ctx context.Context, raffleID string, patch domain.RafflePatch, allowed ...domain.RaffleStatus) (*domain.Raffle, error)
	Delete(ctx context.Context, raffleID string) error
}

type ParticipantStore interface {
	ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error)
	DeleteByRaffle(ctx context.Context, raffleID string) error
}

type LinkStore interface {
	DeleteByRaffle(ctx context.Context, raffleID string) error
}

// Cache holds the last admin listing for degraded mode. It is never written
// to as a record of truth.
type Cache interface {
	Save(ctx context.Context, raffles []domain.Raffle) error
	Load(ctx context.Context) ([]domain.Raffle, error)
}

type Tracker interface {
	Ready() bool
	Track(err error) error
}

// Listing is an admin raffle listing; Cached marks a degraded-mode answer.
type Listing struct {
	Raffles []domain.Raffle `json:"raffles"`
	Cached  bool            `json:"cached"`
}

type Service interface {
	Create(ctx context.Context, req domain.CreateRaffleRequest) (*domain.Raffle, error)
	Get(ctx context.Context, raffleID string) (*domain.Raffle, error)
	List(ctx context.Context, archived bool) (*Listing, error)
	Stats(ctx context.Context, raffleID string) (*domain.RaffleStats, error)
	PublicView(ctx context.Context, raffleID string) (*domain.PublicRaffle, error)
	Participants(ctx context.Context, raffleID string) ([]domain.Participant, error)
	Pause(ctx context.Context, raffleID string) (*domain.Raffle, error)
	Resume(ctx context.Context, raffleID string) (*domain.Raffle, error)
	Archive(ctx context.Context, raffleID string) (*domain.Raffle, error)
	Unarchive(ctx context.Context, raffleID string) (*domain.Raffle, error)
	Delete(ctx context.Context, raffleID string) error
	Finish(ctx context.Context, raffleID string) (*domain.Raffle, error)
}

type service struct {
	raffles      RaffleStore
	participants ParticipantStore
	links        LinkStore
	cache        Cache
	tracker      Tracker
	log          *logger.Logger
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService wires the raffle lifecycle. rng drives the winner draw; nil
// seeds one from the runtime.
func NewService(raffles RaffleStore, participants ParticipantStore, links LinkStore, cache Cache, tracker Tracker, rng *rand.Rand, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &service{
		raffles:      raffles,
		participants: participants,
		links:        links,
		cache:        cache,
		tracker:      tracker,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		rng:          rng,
	}
}

func (s *service) ready() error {
	if !s.tracker.Ready() {
		return fmt.Errorf("remote store not ready: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func (s *service) Create(ctx context.Context, req domain.CreateRaffleRequest) (*domain.Raffle, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	now := s.now()
	r := &domain.Raffle{
		RaffleID:  id.New(),
		Name:      req.Name,
		Size:      req.Size,
		Status:    domain.RaffleActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tracker.Track(s.raffles.Put(ctx, r)); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *service) Get(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	r, err := s.raffles.Get(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	return r, nil
}

// List answers from the store when it is reachable and refreshes the cache;
// otherwise it falls back to the last cached listing.
func (s *service) List(ctx context.Context, archived bool) (*Listing, error) {
	if s.tracker.Ready() {
		all, err := s.raffles.List(ctx)
		err = s.tracker.Track(err)
		if err == nil {
			if s.cache != nil {
				if cerr := s.cache.Save(ctx, all); cerr != nil {
					s.log.Warn(ctx, "raffle cache refresh failed", cerr)
				}
			}
			return &Listing{Raffles: filterArchived(all, archived)}, nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, err
		}
		s.log.Warn(ctx, "raffle listing falling back to cache", err)
	}
	if s.cache == nil {
		return nil, fmt.Errorf("no cached raffles: %w", domain.ErrStoreUnavailable)
	}
	cached, err := s.cache.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("no cached raffles (%v): %w", err, domain.ErrStoreUnavailable)
	}
	return &Listing{Raffles: filterArchived(cached, archived), Cached: true}, nil
}

func filterArchived(all []domain.Raffle, archived bool) []domain.Raffle {
	out := make([]domain.Raffle, 0, len(all))
	for _, r := range all {
		if r.Archived == archived {
			out = append(out, r)
		}
	}
	return out
}

func (s *service) Participants(ctx context.Context, raffleID string) ([]domain.Participant, error) {
	if _, err := s.Get(ctx, raffleID); err != nil {
		return nil, err
	}
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *service) Stats(ctx context.Context, raffleID string) (*domain.RaffleStats, error) {
	r, err := s.Get(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	return &domain.RaffleStats{
		RaffleID:     r.RaffleID,
		Participants: len(list),
		Size:         r.Size,
		Percentage:   math.Round(float64(len(list))/float64(r.Size)*1000) / 10,
	}, nil
}

// PublicView is participant-facing, so it is never served from cache.
func (s *service) PublicView(ctx context.Context, raffleID string) (*domain.PublicRaffle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	r, err := s.Get(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	view := &domain.PublicRaffle{
		RaffleID: r.RaffleID,
		Name:     r.Name,
		Size:     r.Size,
		Status:   r.Status,
		Taken:    make([]int, 0, len(list)),
	}
	for _, p := range list {
		view.Taken = append(view.Taken, p.Number)
	}
	if r.Winner != nil {
		n := r.Winner.Number
		view.Winner = &n
	}
	return view, nil
}

func (s *service) update(ctx context.Context, raffleID string, patch domain.RafflePatch, allowed ...domain.RaffleStatus) (*domain.Raffle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	r, err := s.raffles.Update(ctx, raffleID, patch, allowed...)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *service) Pause(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	now := s.now()
	st := domain.RafflePaused
	return s.update(ctx, raffleID, domain.RafflePatch{Status: &st, PausedAt: &now}, domain.RaffleActive)
}

func (s *service) Resume(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	st := domain.RaffleActive
	return s.update(ctx, raffleID, domain.RafflePatch{Status: &st}, domain.RafflePaused)
}

func (s *service) Archive(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	now := s.now()
	archived := true
	return s.update(ctx, raffleID, domain.RafflePatch{Archived: &archived, ArchivedAt: &now}, domain.RaffleFinished)
}

func (s *service) Unarchive(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	archived := false
	return s.update(ctx, raffleID, domain.RafflePatch{Archived: &archived}, domain.RaffleFinished)
}

// Delete refuses an active raffle that already has participants, then
// removes the raffle's participants and links before the raffle itself.
func (s *service) Delete(ctx context.Context, raffleID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	r, err := s.Get(ctx, raffleID)
	if err != nil {
		return err
	}
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return err
	}
	if r.Status == domain.RaffleActive && len(list) > 0 {
		return fmt.Errorf("active raffle with %d participants cannot be deleted: %w", len(list), domain.ErrConflict)
	}
	if err := s.tracker.Track(s.participants.DeleteByRaffle(ctx, raffleID)); err != nil {
		return err
	}
	if err := s.tracker.Track(s.links.DeleteByRaffle(ctx, raffleID)); err != nil {
		return err
	}
	return s.tracker.Track(s.raffles.Delete(ctx, raffleID))
}

// Finish draws the winner uniformly over current participants and stores it
// together with the finished status. Only an active raffle can be finished;
// the store rejects a second finish.
func (s *service) Finish(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	r, err := s.Get(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case domain.RaffleFinished:
		return nil, domain.ErrAlreadyFinished
	case domain.RaffleActive:
	default:
		return nil, fmt.Errorf("raffle is %s: %w", r.Status, domain.ErrInvalidTransition)
	}
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("raffle has no participants: %w", domain.ErrInvalidTransition)
	}

	picked := list[s.draw(len(list))]
	winner := domain.Winner{Number: picked.Number, Participant: picked.Profile}
	now := s.now()
	st := domain.RaffleFinished
	finished, err := s.update(ctx, raffleID, domain.RafflePatch{Status: &st, Winner: &winner, FinishedAt: &now},
		domain.RaffleActive)
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"raffle_id": raffleID, "winning_number": winner.Number}), "raffle finished")
	return finished, nil
}

func (s *service) draw(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

// Package link issues single-use custom links and redeems them exactly once.
//
// Redemption takes a short lease on the link with a conditional write, runs
// the reservation, and only then flips the link to used. A failed
// reservation releases the lease so the participant can retry. A link whose
// numbers are already on the store counts as used even if the used flag
// never landed.
package link

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/rifas-api/internal/application/reservation"
	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/pkg/id"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/pkg/metrics"
	"github.com/rifas-api/internal/pkg/validate"
	"go.uber.org/multierr"
)

type Store interface {
	Put(ctx context.Context, link *domain.CustomLink) error
	Get(ctx context.Context, linkID string) (*domain.CustomLink, error)
	ListByRaffle(ctx context.Context, raffleID string) ([]domain.CustomLink, error)
	Delete(ctx context.Context, linkID string) error
	Claim(ctx context.Context, linkID, token string, now, staleBefore time.Time) (*domain.CustomLink, error)
	Complete(ctx context.Context, linkID, token string, redeemer domain.Redeemer, at time.Time) (*domain.CustomLink, error)
	Release(ctx context.Context, linkID, token string) error
}

type RaffleStore interface {
	Get(ctx context.Context, raffleID string) (*domain.Raffle, error)
}

type ParticipantStore interface {
	ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error)
}

const completeAttempts = 3

type Tracker interface {
	Ready() bool
	Track(err error) error
}

// Redemption is the outcome of a link-scoped reservation.
type Redemption struct {
	Link        *domain.CustomLink  `json:"link"`
	Reservation *reservation.Result `json:"reservation"`
}

type RedeemRequest struct {
	Numbers       []int
	Participant   domain.ParticipantProfile
	AcceptPartial bool
}

type Service interface {
	Create(ctx context.Context, raffleID string, req domain.CreateLinkRequest) (*domain.CustomLink, error)
	List(ctx context.Context, raffleID string) ([]domain.CustomLink, error)
	Delete(ctx context.Context, raffleID, linkID string) error
	Redeem(ctx context.Context, raffleID, linkID string) (*domain.CustomLink, error)
	ReserveWithLink(ctx context.Context, raffleID, linkID string, req RedeemRequest) (*Redemption, error)
}

type service struct {
	links        Store
	raffles      RaffleStore
	participants ParticipantStore
	reservations reservation.Service
	tracker      Tracker
	baseURL      string
	claimTTL     time.Duration
	log          *logger.Logger
	metrics      *metrics.Raffle
	now          func() time.Time
}

func NewService(links Store, raffles RaffleStore, participants ParticipantStore, reservations reservation.Service, tracker Tracker, baseURL string, claimTTL time.Duration, log *logger.Logger, m *metrics.Raffle) Service {
	if log == nil {
		log = logger.Nop()
	}
	if claimTTL <= 0 {
		claimTTL = 2 * time.Minute
	}
	return &service{
		links:        links,
		raffles:      raffles,
		participants: participants,
		reservations: reservations,
		tracker:      tracker,
		baseURL:      baseURL,
		claimTTL:     claimTTL,
		log:          log,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) ready() error {
	if !s.tracker.Ready() {
		return fmt.Errorf("remote store not ready: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func (s *service) Create(ctx context.Context, raffleID string, req domain.CreateLinkRequest) (*domain.CustomLink, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	raffle, err := s.raffles.Get(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	if raffle.Status == domain.RaffleFinished {
		return nil, domain.ErrAlreadyFinished
	}
	link := &domain.CustomLink{
		LinkID:    id.New(),
		RaffleID:  raffleID,
		Limit:     req.Limit,
		CreatedAt: s.now(),
	}
	if err := s.tracker.Track(s.links.Put(ctx, link)); err != nil {
		return nil, err
	}
	return s.withURL(link), nil
}

func (s *service) List(ctx context.Context, raffleID string) ([]domain.CustomLink, error) {
	links, err := s.links.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	for i := range links {
		s.withURL(&links[i])
	}
	return links, nil
}

func (s *service) Delete(ctx context.Context, raffleID, linkID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.get(ctx, raffleID, linkID); err != nil {
		return err
	}
	return s.tracker.Track(s.links.Delete(ctx, linkID))
}

// Redeem is the access check: a used link is a terminal *domain.LinkUsedError
// carrying the redeemer snapshot.
func (s *service) Redeem(ctx context.Context, raffleID, linkID string) (*domain.CustomLink, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	link, err := s.get(ctx, raffleID, linkID)
	if err != nil {
		return nil, err
	}
	if link.Used {
		s.metrics.IncRedemption("already_used")
		return nil, &domain.LinkUsedError{Link: link}
	}
	prior, err := s.attributed(ctx, raffleID, linkID)
	if err != nil {
		return nil, err
	}
	if len(prior) > 0 {
		s.metrics.IncRedemption("already_used")
		return nil, &domain.LinkUsedError{Link: usedFrom(link, prior)}
	}
	return s.withURL(link), nil
}

// ReserveWithLink reserves numbers bounded by the link's limit and burns the
// link only after at least one number is committed.
func (s *service) ReserveWithLink(ctx context.Context, raffleID, linkID string, req RedeemRequest) (*Redemption, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx = s.log.WithField(s.log.WithRaffleID(ctx, raffleID), "link_id", linkID)
	if _, err := s.get(ctx, raffleID, linkID); err != nil {
		return nil, err
	}

	token := id.New()
	now := s.now()
	link, err := s.links.Claim(ctx, linkID, token, now, now.Add(-s.claimTTL))
	if err := s.tracker.Track(err); err != nil {
		s.metrics.IncRedemption(outcome(err))
		return nil, err
	}

	prior, err := s.attributed(ctx, raffleID, linkID)
	if err != nil {
		s.release(ctx, linkID, token)
		return nil, err
	}
	if len(prior) > 0 {
		s.metrics.IncRedemption("already_used")
		return nil, &domain.LinkUsedError{Link: s.burn(ctx, link, token, prior)}
	}

	linkRef := link.LinkID
	res, rerr := s.reservations.Reserve(ctx, reservation.ReserveRequest{
		RaffleID:      raffleID,
		Numbers:       req.Numbers,
		Participant:   req.Participant,
		LinkID:        &linkRef,
		Limit:         link.Limit,
		AcceptPartial: req.AcceptPartial,
	})
	if res == nil || len(res.Committed) == 0 {
		s.release(ctx, linkID, token)
		s.metrics.IncRedemption("released")
		return nil, rerr
	}

	redeemer := domain.Redeemer{
		Name:    req.Participant.Name,
		Phone:   req.Participant.Phone,
		Email:   req.Participant.Email,
		Numbers: append([]int(nil), res.Committed...),
	}
	used, err := s.complete(ctx, linkID, token, redeemer)
	if err != nil {
		s.log.Error(ctx, "numbers committed but link not marked used", err)
		s.metrics.IncRedemption("unmarked")
		werr := &domain.BatchWriteError{Committed: res.Committed, Err: fmt.Errorf("mark link used: %w", err)}
		var berr *domain.BatchWriteError
		if errors.As(rerr, &berr) {
			werr.Failed = berr.Failed
			werr.Err = multierr.Combine(werr.Err, berr.Err)
		}
		return &Redemption{Link: usedFrom(link, res.Participants), Reservation: res}, werr
	}
	s.metrics.IncRedemption("redeemed")
	return &Redemption{Link: s.withURL(used), Reservation: res}, rerr
}

// complete flips the link to used, re-reading after each failure since the
// write may have landed before the error surfaced.
func (s *service) complete(ctx context.Context, linkID, token string, redeemer domain.Redeemer) (*domain.CustomLink, error) {
	var errs error
	for attempt := 0; attempt < completeAttempts; attempt++ {
		used, err := s.links.Complete(ctx, linkID, token, redeemer, s.now())
		if err = s.tracker.Track(err); err == nil {
			return used, nil
		}
		errs = multierr.Append(errs, err)
		current, gerr := s.links.Get(ctx, linkID)
		if gerr != nil {
			errs = multierr.Append(errs, s.tracker.Track(gerr))
			continue
		}
		if current.Used {
			return current, nil
		}
		if current.ClaimToken != token || ctx.Err() != nil {
			break
		}
	}
	return nil, errs
}

// burn marks a link used on behalf of reservations that committed without
// the flag landing. The returned link is used even if the write fails.
func (s *service) burn(ctx context.Context, link *domain.CustomLink, token string, prior []domain.Participant) *domain.CustomLink {
	snapshot := usedFrom(link, prior)
	used, err := s.complete(ctx, link.LinkID, token, *snapshot.UsedBy)
	if err != nil {
		s.log.Warn(ctx, "link with committed numbers still not marked used", err)
		s.release(ctx, link.LinkID, token)
		return snapshot
	}
	return used
}

func (s *service) release(ctx context.Context, linkID, token string) {
	if err := s.tracker.Track(s.links.Release(ctx, linkID, token)); err != nil {
		s.log.Warn(ctx, "release link lease failed; it expires on its own", err)
	}
}

// attributed returns the raffle's participants that reserved through linkID.
func (s *service) attributed(ctx context.Context, raffleID, linkID string) ([]domain.Participant, error) {
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	var out []domain.Participant
	for _, p := range list {
		if p.LinkID != nil && *p.LinkID == linkID {
			out = append(out, p)
		}
	}
	return out, nil
}

// usedFrom rebuilds the redeemer snapshot from the rows a link produced.
func usedFrom(link *domain.CustomLink, rows []domain.Participant) *domain.CustomLink {
	out := *link
	out.Used = true
	out.ClaimToken = ""
	out.ClaimedAt = nil
	if len(rows) == 0 {
		return &out
	}
	by := domain.Redeemer{
		Name:  rows[0].Profile.Name,
		Phone: rows[0].Profile.Phone,
		Email: rows[0].Profile.Email,
	}
	at := rows[0].ReservedAt
	for _, p := range rows {
		by.Numbers = append(by.Numbers, p.Number)
		if p.ReservedAt.After(at) {
			at = p.ReservedAt
		}
	}
	sort.Ints(by.Numbers)
	out.UsedBy = &by
	out.UsedAt = &at
	return &out
}

// get loads a link and hides links that belong to another raffle.
func (s *service) get(ctx context.Context, raffleID, linkID string) (*domain.CustomLink, error) {
	link, err := s.links.Get(ctx, linkID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	if link.RaffleID != raffleID {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	return link, nil
}

// withURL fills the shareable URL the participant opens.
func (s *service) withURL(link *domain.CustomLink) *domain.CustomLink {
	link.URL = fmt.Sprintf("%s?rifa=%s&limit=%d&linkId=%s",
		s.baseURL, url.QueryEscape(link.RaffleID), link.Limit, url.QueryEscape(link.LinkID))
	return link
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrLinkAlreadyUsed):
		return "already_used"
	case errors.Is(err, domain.ErrRedemptionInProgress):
		return "in_progress"
	default:
		return "error"
	}
}

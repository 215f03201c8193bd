// Package reservation commits raffle numbers optimistically: it reads fresh
// state, writes each number independently, and relies on the store's
// (raffle, number) uniqueness to reject the losing writer.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rifas-api/internal/application/notification"
	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/pkg/id"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/pkg/metrics"
	"github.com/rifas-api/internal/pkg/validate"
	"go.uber.org/multierr"
)

type RaffleStore interface {
	Get(ctx context.Context, raffleID string) (*domain.Raffle, error)
}

type ParticipantStore interface {
	Insert(ctx context.Context, p *domain.Participant) error
	ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error)
}

type Tracker interface {
	Ready() bool
	Track(err error) error
}

// Recorder appends admin notifications.
type Recorder interface {
	Record(ctx context.Context, n *domain.Notification) error
}

type ReserveRequest struct {
	RaffleID    string
	Numbers     []int
	Participant domain.ParticipantProfile
	LinkID      *string
	// Limit bounds len(Numbers); zero means the per-session maximum.
	Limit int
	// AcceptPartial is the caller's consent to commit only the numbers that
	// are still free when some were taken meanwhile.
	AcceptPartial bool
}

// Result lists what was written. Rejected holds numbers found taken on the
// fresh read or lost to a concurrent writer.
type Result struct {
	Committed    []int                `json:"committed"`
	Rejected     []int                `json:"rejected"`
	Participants []domain.Participant `json:"participants"`
}

type Service interface {
	Reserve(ctx context.Context, req ReserveRequest) (*Result, error)
}

type service struct {
	raffles      RaffleStore
	participants ParticipantStore
	tracker      Tracker
	notes        Recorder
	maxPerCall   int
	log          *logger.Logger
	metrics      *metrics.Raffle
	now          func() time.Time
}

func NewService(raffles RaffleStore, participants ParticipantStore, tracker Tracker, notes Recorder, maxPerCall int, log *logger.Logger, m *metrics.Raffle) Service {
	if log == nil {
		log = logger.Nop()
	}
	if maxPerCall <= 0 {
		maxPerCall = domain.MaxLinkLimit
	}
	return &service{
		raffles:      raffles,
		participants: participants,
		tracker:      tracker,
		notes:        notes,
		maxPerCall:   maxPerCall,
		log:          log,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Reserve commits as many requested numbers as the store accepts. On a
// mid-batch failure it returns both the Result and a *domain.BatchWriteError.
func (s *service) Reserve(ctx context.Context, req ReserveRequest) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if !s.tracker.Ready() {
		return nil, fmt.Errorf("remote store not ready: %w", domain.ErrStoreUnavailable)
	}
	ctx = s.log.WithRaffleID(ctx, req.RaffleID)

	raffle, err := s.raffles.Get(ctx, req.RaffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	if !raffle.Accepting() {
		return nil, fmt.Errorf("raffle is %s: %w", raffle.Status, domain.ErrRaffleClosed)
	}
	for _, n := range req.Numbers {
		if n < 1 || n > raffle.Size {
			return nil, &domain.ValidationError{Field: "numbers", Reason: fmt.Sprintf("%d outside 1..%d", n, raffle.Size)}
		}
	}

	existing, err := s.participants.ListByRaffle(ctx, req.RaffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	available, unavailable := partition(req.Numbers, existing)
	if len(available) == 0 {
		return nil, fmt.Errorf("numbers %s: %w", joinInts(unavailable), domain.ErrAllNumbersTaken)
	}
	if len(unavailable) > 0 && !req.AcceptPartial {
		return nil, &domain.PartialOfferError{Available: available, Unavailable: unavailable}
	}

	res := &Result{Rejected: append([]int(nil), unavailable...)}
	var failed []int
	var errs error
	for i, n := range available {
		if !s.tracker.Ready() {
			failed = append(failed, available[i:]...)
			errs = multierr.Append(errs, fmt.Errorf("store went offline before number %d: %w", n, domain.ErrStoreUnavailable))
			break
		}
		p := &domain.Participant{
			ParticipantID: id.New(),
			RaffleID:      req.RaffleID,
			Number:        n,
			Profile:       req.Participant,
			LinkID:        req.LinkID,
			ReservedAt:    s.now(),
		}
		err := s.insert(ctx, p)
		switch {
		case err == nil:
			res.Committed = append(res.Committed, n)
			res.Participants = append(res.Participants, *p)
		case errors.Is(err, domain.ErrNumberTaken):
			res.Rejected = append(res.Rejected, n)
		default:
			failed = append(failed, n)
			errs = multierr.Append(errs, fmt.Errorf("number %d: %w", n, err))
		}
	}
	sort.Ints(res.Rejected)
	s.metrics.AddCommitted(len(res.Committed))
	s.metrics.AddConflicts(len(res.Rejected))

	s.notify(ctx, req, res, existing)

	if len(failed) > 0 {
		s.log.Warn(ctx, "reservation batch partially failed", errs)
		return res, &domain.BatchWriteError{Committed: res.Committed, Failed: failed, Err: errs}
	}
	if len(res.Committed) == 0 {
		return nil, fmt.Errorf("numbers %s: %w", joinInts(res.Rejected), domain.ErrAllNumbersTaken)
	}
	return res, nil
}

// insert writes p and, when the outcome is uncertain, re-reads the store to
// learn whether our record landed.
func (s *service) insert(ctx context.Context, p *domain.Participant) error {
	err := s.tracker.Track(s.participants.Insert(ctx, p))
	if err == nil || errors.Is(err, domain.ErrNumberTaken) {
		return err
	}
	current, lerr := s.participants.ListByRaffle(ctx, p.RaffleID)
	if lerr != nil {
		return multierr.Append(err, s.tracker.Track(lerr))
	}
	for _, c := range current {
		if c.Number != p.Number {
			continue
		}
		if c.ParticipantID == p.ParticipantID {
			s.log.Info(ctx, "insert reported failure but record was committed")
			return nil
		}
		return fmt.Errorf("number %d: %w", p.Number, domain.ErrNumberTaken)
	}
	return err
}

// notify records admin notifications; failures are logged and never change
// the reservation outcome.
func (s *service) notify(ctx context.Context, req ReserveRequest, res *Result, before []domain.Participant) {
	if s.notes == nil {
		return
	}
	for i := range res.Participants {
		if err := s.notes.Record(ctx, notification.NewParticipation(&res.Participants[i])); err != nil {
			s.log.Warn(ctx, "new participation notification failed", err)
		}
	}
	if len(res.Rejected) > 0 {
		if err := s.notes.Record(ctx, notification.Concurrency(req.RaffleID, req.Participant, res.Rejected)); err != nil {
			s.log.Warn(ctx, "concurrency notification failed", err)
		}
	}
	if len(res.Committed) == 0 {
		return
	}
	phone := normalizePhone(req.Participant.Phone)
	prior := 0
	for _, p := range before {
		if normalizePhone(p.Profile.Phone) == phone {
			prior++
		}
	}
	if prior > 0 {
		n := notification.DuplicateSuspicion(req.RaffleID, req.Participant, prior+len(res.Committed))
		if err := s.notes.Record(ctx, n); err != nil {
			s.log.Warn(ctx, "duplicate suspicion notification failed", err)
		}
	}
}

func (s *service) validate(req ReserveRequest) error {
	if err := validate.Struct(req.Participant); err != nil {
		return err
	}
	if len(req.Numbers) == 0 {
		return &domain.ValidationError{Field: "numbers", Reason: "at least one number is required"}
	}
	limit := req.Limit
	if limit <= 0 || limit > s.maxPerCall {
		limit = s.maxPerCall
	}
	if len(req.Numbers) > limit {
		return &domain.ValidationError{Field: "numbers", Reason: fmt.Sprintf("at most %d numbers allowed", limit)}
	}
	seen := make(map[int]struct{}, len(req.Numbers))
	for _, n := range req.Numbers {
		if _, dup := seen[n]; dup {
			return &domain.ValidationError{Field: "numbers", Reason: fmt.Sprintf("number %d requested twice", n)}
		}
		seen[n] = struct{}{}
	}
	return nil
}

// partition splits requested into free and taken, keeping request order.
func partition(requested []int, existing []domain.Participant) (available, unavailable []int) {
	taken := make(map[int]struct{}, len(existing))
	for _, p := range existing {
		taken[p.Number] = struct{}{}
	}
	for _, n := range requested {
		if _, ok := taken[n]; ok {
			unavailable = append(unavailable, n)
			continue
		}
		available = append(available, n)
	}
	return available, unavailable
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

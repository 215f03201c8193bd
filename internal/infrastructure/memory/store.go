// Package memory is an in-process store with the same uniqueness and
// conditional-write semantics as the DynamoDB adapter.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rifas-api/internal/domain"
)

type participantKey struct {
	raffleID string
	number   int
}

// Store holds every table behind one mutex.
type Store struct {
	mu            sync.Mutex
	unavailable   bool
	raffles       map[string]domain.Raffle
	participants  map[participantKey]domain.Participant
	links         map[string]domain.CustomLink
	notifications map[string]domain.Notification
}

func NewStore() *Store {
	return &Store{
		raffles:       map[string]domain.Raffle{},
		participants:  map[participantKey]domain.Participant{},
		links:         map[string]domain.CustomLink{},
		notifications: map[string]domain.Notification{},
	}
}

// SetUnavailable makes every subsequent call fail as an unreachable store.
func (s *Store) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx, "ping", "memory")
}

// check must be called with mu held.
func (s *Store) check(ctx context.Context, op, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unavailable {
		return &domain.StoreError{Op: op, Table: table, Unavailable: true, Err: fmt.Errorf("memory store offline")}
	}
	return nil
}

func (s *Store) Raffles() *RaffleRepo             { return &RaffleRepo{s: s} }
func (s *Store) Participants() *ParticipantRepo   { return &ParticipantRepo{s: s} }
func (s *Store) Links() *LinkRepo                 { return &LinkRepo{s: s} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s: s} }

func notFound(what string) error {
	return fmt.Errorf("%s not found: %w", what, domain.ErrNotFound)
}

// RaffleRepo mirrors dynamo.RaffleRepo.
type RaffleRepo struct{ s *Store }

func (r *RaffleRepo) Put(ctx context.Context, raffle *domain.Raffle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "put", "raffles"); err != nil {
		return err
	}
	if _, ok := r.s.raffles[raffle.RaffleID]; ok {
		return fmt.Errorf("raffle %s exists: %w", raffle.RaffleID, domain.ErrConflict)
	}
	r.s.raffles[raffle.RaffleID] = *raffle
	return nil
}

func (r *RaffleRepo) Get(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "get", "raffles"); err != nil {
		return nil, err
	}
	raffle, ok := r.s.raffles[raffleID]
	if !ok {
		return nil, notFound("raffle")
	}
	return &raffle, nil
}

func (r *RaffleRepo) List(ctx context.Context) ([]domain.Raffle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "scan", "raffles"); err != nil {
		return nil, err
	}
	out := make([]domain.Raffle, 0, len(r.s.raffles))
	for _, raffle := range r.s.raffles {
		out = append(out, raffle)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RaffleID > out[j].RaffleID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RaffleRepo) Update(ctx context.Context, raffleID string, patch domain.RafflePatch, allowed ...domain.RaffleStatus) (*domain.Raffle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "update", "raffles"); err != nil {
		return nil, err
	}
	raffle, ok := r.s.raffles[raffleID]
	if !ok {
		return nil, notFound("raffle")
	}
	if len(allowed) > 0 && !statusIn(raffle.Status, allowed) {
		if raffle.Status == domain.RaffleFinished {
			return nil, domain.ErrAlreadyFinished
		}
		return nil, fmt.Errorf("raffle is %s: %w", raffle.Status, domain.ErrInvalidTransition)
	}
	patch.Apply(&raffle)
	raffle.UpdatedAt = time.Now().UTC()
	r.s.raffles[raffleID] = raffle
	return &raffle, nil
}

func (r *RaffleRepo) Delete(ctx context.Context, raffleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "delete", "raffles"); err != nil {
		return err
	}
	delete(r.s.raffles, raffleID)
	return nil
}

func statusIn(s domain.RaffleStatus, allowed []domain.RaffleStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// ParticipantRepo enforces one participant per (raffle, number).
type ParticipantRepo struct{ s *Store }

func (r *ParticipantRepo) Insert(ctx context.Context, p *domain.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "insert", "participants"); err != nil {
		return err
	}
	k := participantKey{p.RaffleID, p.Number}
	if _, taken := r.s.participants[k]; taken {
		return fmt.Errorf("number %d: %w", p.Number, domain.ErrNumberTaken)
	}
	r.s.participants[k] = *p
	return nil
}

func (r *ParticipantRepo) ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "query", "participants"); err != nil {
		return nil, err
	}
	var out []domain.Participant
	for k, p := range r.s.participants {
		if k.raffleID == raffleID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *ParticipantRepo) DeleteByRaffle(ctx context.Context, raffleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "batch_delete", "participants"); err != nil {
		return err
	}
	for k := range r.s.participants {
		if k.raffleID == raffleID {
			delete(r.s.participants, k)
		}
	}
	return nil
}

// LinkRepo mirrors the lease-based redemption of dynamo.LinkRepo.
type LinkRepo struct{ s *Store }

func (r *LinkRepo) Put(ctx context.Context, link *domain.CustomLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "put", "custom_links"); err != nil {
		return err
	}
	if _, ok := r.s.links[link.LinkID]; ok {
		return fmt.Errorf("link %s exists: %w", link.LinkID, domain.ErrConflict)
	}
	stored := *link
	stored.URL = ""
	r.s.links[link.LinkID] = stored
	return nil
}

func (r *LinkRepo) Get(ctx context.Context, linkID string) (*domain.CustomLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "get", "custom_links"); err != nil {
		return nil, err
	}
	link, ok := r.s.links[linkID]
	if !ok {
		return nil, notFound("link")
	}
	return &link, nil
}

func (r *LinkRepo) ListByRaffle(ctx context.Context, raffleID string) ([]domain.CustomLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "query", "custom_links"); err != nil {
		return nil, err
	}
	var out []domain.CustomLink
	for _, l := range r.s.links {
		if l.RaffleID == raffleID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LinkID > out[j].LinkID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *LinkRepo) Delete(ctx context.Context, linkID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "delete", "custom_links"); err != nil {
		return err
	}
	delete(r.s.links, linkID)
	return nil
}

func (r *LinkRepo) DeleteByRaffle(ctx context.Context, raffleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "batch_delete", "custom_links"); err != nil {
		return err
	}
	for id, l := range r.s.links {
		if l.RaffleID == raffleID {
			delete(r.s.links, id)
		}
	}
	return nil
}

func (r *LinkRepo) Claim(ctx context.Context, linkID, token string, now, staleBefore time.Time) (*domain.CustomLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "claim", "custom_links"); err != nil {
		return nil, err
	}
	link, ok := r.s.links[linkID]
	if !ok {
		return nil, notFound("link")
	}
	if link.Used {
		used := link
		return nil, &domain.LinkUsedError{Link: &used}
	}
	if link.ClaimToken != "" && link.ClaimedAt != nil && !link.ClaimedAt.Before(staleBefore) {
		return nil, domain.ErrRedemptionInProgress
	}
	link.ClaimToken = token
	link.ClaimedAt = &now
	r.s.links[linkID] = link
	return &link, nil
}

func (r *LinkRepo) Complete(ctx context.Context, linkID, token string, redeemer domain.Redeemer, at time.Time) (*domain.CustomLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "complete", "custom_links"); err != nil {
		return nil, err
	}
	link, ok := r.s.links[linkID]
	if !ok || link.Used || link.ClaimToken != token {
		return nil, fmt.Errorf("lease on link %s lost: %w", linkID, domain.ErrRedemptionInProgress)
	}
	link.Used = true
	link.UsedAt = &at
	link.UsedBy = &redeemer
	link.ClaimToken = ""
	link.ClaimedAt = nil
	r.s.links[linkID] = link
	return &link, nil
}

func (r *LinkRepo) Release(ctx context.Context, linkID, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "release", "custom_links"); err != nil {
		return err
	}
	link, ok := r.s.links[linkID]
	if !ok || link.ClaimToken != token {
		return nil
	}
	link.ClaimToken = ""
	link.ClaimedAt = nil
	r.s.links[linkID] = link
	return nil
}

// NotificationRepo is the append-mostly admin feed.
type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "put", "admin_notifications"); err != nil {
		return err
	}
	r.s.notifications[n.NotificationID] = *n
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "get", "admin_notifications"); err != nil {
		return nil, err
	}
	n, ok := r.s.notifications[notificationID]
	if !ok {
		return nil, notFound("notification")
	}
	return &n, nil
}

func (r *NotificationRepo) List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "scan", "admin_notifications"); err != nil {
		return nil, err
	}
	return r.list(f), nil
}

func (r *NotificationRepo) list(f domain.NotificationFilter) []domain.Notification {
	var out []domain.Notification
	for _, n := range r.s.notifications {
		if f.Match(&n) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].NotificationID > out[j].NotificationID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "mark_read", "admin_notifications"); err != nil {
		return err
	}
	n, ok := r.s.notifications[notificationID]
	if !ok {
		return notFound("notification")
	}
	r.s.notifications[notificationID] = markRead(n, at)
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "mark_read", "admin_notifications"); err != nil {
		return 0, err
	}
	count := 0
	for id, n := range r.s.notifications {
		if !n.Read {
			r.s.notifications[id] = markRead(n, at)
			count++
		}
	}
	return count, nil
}

func markRead(n domain.Notification, at time.Time) domain.Notification {
	n.Read = true
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	return n
}

func (r *NotificationRepo) Delete(ctx context.Context, notificationID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx, "delete", "admin_notifications"); err != nil {
		return err
	}
	if _, ok := r.s.notifications[notificationID]; !ok {
		return notFound("notification")
	}
	delete(r.s.notifications, notificationID)
	return nil
}

package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/infrastructure/smtp"
	"github.com/rifas-api/internal/infrastructure/sns"
	"github.com/rifas-api/internal/pkg/id"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/pkg/metrics"
)

// DefaultLimit caps a listing when the caller gives none.
const DefaultLimit = 50

type Store interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID string, at time.Time) error
	MarkAllRead(ctx context.Context, at time.Time) (int, error)
	Delete(ctx context.Context, notificationID string) error
}

// Tracker reports store outcomes to the availability tracker.
type Tracker interface {
	Track(err error) error
}

// Alerts routes urgent notifications to the admin out of band. Empty
// destinations disable that channel.
type Alerts struct {
	SMS   sns.SMSSender
	Phone string
	Mail  smtp.Mailer
	Email string
}

type Service interface {
	Record(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error)
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context) (int, error)
	Delete(ctx context.Context, notificationID string) error
}

type service struct {
	store   Store
	tracker Tracker
	alerts  Alerts
	log     *logger.Logger
	metrics *metrics.Raffle
	now     func() time.Time
}

func NewService(store Store, tracker Tracker, alerts Alerts, log *logger.Logger, m *metrics.Raffle) Service {
	if log == nil {
		log = logger.Nop()
	}
	return &service{store: store, tracker: tracker, alerts: alerts, log: log, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends n to the feed. Urgent notifications are also pushed to the
// admin; delivery failures there are logged, never returned.
func (s *service) Record(ctx context.Context, n *domain.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if n.NotificationID == "" {
		n.NotificationID = id.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	if err := s.tracker.Track(s.store.Put(ctx, n)); err != nil {
		return err
	}
	s.metrics.IncNotification(string(n.Type))
	if n.Priority.Urgent() {
		s.dispatch(ctx, n)
	}
	return nil
}

func (s *service) dispatch(ctx context.Context, n *domain.Notification) {
	ctx = s.log.WithField(ctx, "notification_id", n.NotificationID)
	if s.alerts.SMS != nil && s.alerts.Phone != "" {
		if err := s.alerts.SMS.SendSMS(ctx, s.alerts.Phone, n.Title+": "+n.Message); err != nil {
			s.log.Warn(ctx, "admin sms alert failed", err)
		}
	}
	if s.alerts.Mail != nil && s.alerts.Email != "" {
		if err := s.alerts.Mail.SendEmail(s.alerts.Email, n.Title, n.Message); err != nil {
			s.log.Warn(ctx, "admin email alert failed", err)
		}
	}
}

func (s *service) List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	list, err := s.store.List(ctx, f)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	n, err := s.store.Get(ctx, notificationID)
	if err := s.tracker.Track(err); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkRead is idempotent: read_at keeps the first time it was set.
func (s *service) MarkRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	if err := s.tracker.Track(s.store.MarkRead(ctx, notificationID, s.now())); err != nil {
		return nil, err
	}
	n, err := s.store.Get(ctx, notificationID)
	return n, s.tracker.Track(err)
}

func (s *service) MarkAllRead(ctx context.Context) (int, error) {
	count, err := s.store.MarkAllRead(ctx, s.now())
	return count, s.tracker.Track(err)
}

func (s *service) Delete(ctx context.Context, notificationID string) error {
	return s.tracker.Track(s.store.Delete(ctx, notificationID))
}

// NewParticipation is recorded once per committed number.
func NewParticipation(p *domain.Participant) *domain.Notification {
	pid := p.ParticipantID
	return &domain.Notification{
		Type:  domain.NotificationNewParticipation,
		Title: "Nova Participação",
		Message: fmt.Sprintf("Novo participante %s (%s) reservou o número %d na rifa.",
			p.Profile.Name, p.Profile.Phone, p.Number),
		Data: domain.NotificationData{NewParticipation: &domain.NewParticipationData{
			ParticipantName: p.Profile.Name,
			Phone:           p.Profile.Phone,
			Number:          p.Number,
		}},
		RaffleID:      p.RaffleID,
		ParticipantID: &pid,
		Priority:      domain.PriorityNormal,
	}
}

// Concurrency reports numbers another participant took first.
func Concurrency(raffleID string, profile domain.ParticipantProfile, numbers []int) *domain.Notification {
	return &domain.Notification{
		Type:  domain.NotificationConcurrency,
		Title: "Concorrência de Números Detectada",
		Message: fmt.Sprintf("O participante %s (%s) tentou reservar os números %s na rifa, mas eles já estavam ocupados.",
			profile.Name, profile.Phone, joinNumbers(numbers)),
		Data: domain.NotificationData{Concurrency: &domain.ConcurrencyData{
			ParticipantName: profile.Name,
			Phone:           profile.Phone,
			Numbers:         append([]int(nil), numbers...),
		}},
		RaffleID: raffleID,
		Priority: domain.PriorityHigh,
	}
}

// DuplicateSuspicion flags a phone holding several numbers in one raffle.
func DuplicateSuspicion(raffleID string, profile domain.ParticipantProfile, total int) *domain.Notification {
	return &domain.Notification{
		Type:  domain.NotificationDuplicateSuspicion,
		Title: "Possível Duplicidade Detectada",
		Message: fmt.Sprintf("O participante %s (%s) pode ter reservado múltiplos números (%d no total) na rifa.",
			profile.Name, profile.Phone, total),
		Data: domain.NotificationData{DuplicateSuspicion: &domain.DuplicateSuspicionData{
			ParticipantName: profile.Name,
			Phone:           profile.Phone,
			TotalNumbers:    total,
		}},
		RaffleID: raffleID,
		Priority: domain.PriorityNormal,
	}
}

func joinNumbers(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

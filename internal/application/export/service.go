// Package export renders a raffle's participants as CSV and archives the
// file in object storage.
package export

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rifas-api/internal/domain"
)

const header = "Número,Nome,Telefone,Email,Data da Reserva"

type ParticipantStore interface {
	ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error)
}

type RaffleStore interface {
	Get(ctx context.Context, raffleID string) (*domain.Raffle, error)
}

// ObjectStore uploads export files; s3infra.Store satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Tracker interface {
	Track(err error) error
}

// Archive describes a published export.
type Archive struct {
	Key         string `json:"key"`
	Location    string `json:"location"`
	DownloadURL string `json:"download_url,omitempty"`
	Rows        int    `json:"rows"`
}

type Service interface {
	WriteCSV(ctx context.Context, raffleID string, w io.Writer) (filename string, err error)
	Publish(ctx context.Context, raffleID string) (*Archive, error)
}

type service struct {
	raffles      RaffleStore
	participants ParticipantStore
	objects      ObjectStore
	tracker      Tracker
	loc          *time.Location
	linkTTL      time.Duration
	now          func() time.Time
}

// NewService renders reservation dates in loc (UTC when nil). objects may be
// nil, in which case Publish is unavailable.
func NewService(raffles RaffleStore, participants ParticipantStore, objects ObjectStore, tracker Tracker, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		raffles:      raffles,
		participants: participants,
		objects:      objects,
		tracker:      tracker,
		loc:          loc,
		linkTTL:      15 * time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) load(ctx context.Context, raffleID string) (*domain.Raffle, []domain.Participant, error) {
	raffle, err := s.raffles.Get(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, nil, err
	}
	list, err := s.participants.ListByRaffle(ctx, raffleID)
	if err := s.tracker.Track(err); err != nil {
		return nil, nil, err
	}
	return raffle, list, nil
}

func (s *service) WriteCSV(ctx context.Context, raffleID string, w io.Writer) (string, error) {
	raffle, list, err := s.load(ctx, raffleID)
	if err != nil {
		return "", err
	}
	if err := s.render(w, list); err != nil {
		return "", err
	}
	return Filename(raffle.Name), nil
}

// Publish uploads the CSV under exports/<raffleId>/<timestamp>.csv.
func (s *service) Publish(ctx context.Context, raffleID string) (*Archive, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("export storage not configured: %w", domain.ErrBadRequest)
	}
	_, list, err := s.load(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.render(&buf, list); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("exports/%s/%s.csv", raffleID, s.now().Format("20060102T150405Z"))
	location, err := s.objects.Upload(ctx, key, &buf, "text/csv; charset=utf-8")
	if err != nil {
		return nil, err
	}
	archive := &Archive{Key: key, Location: location, Rows: len(list)}
	if u, err := s.objects.PresignedURL(ctx, key, s.linkTTL); err == nil {
		archive.DownloadURL = u
	}
	return archive, nil
}

func (s *service) render(w io.Writer, list []domain.Participant) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(header)
	for _, p := range list {
		fmt.Fprintf(bw, "\n%d,%s,%s,%s,%s",
			p.Number,
			quote(p.Profile.Name),
			quote(p.Profile.Phone),
			quote(p.Profile.Email),
			quote(p.ReservedAt.In(s.loc).Format("02/01/2006, 15:04:05")),
		)
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Filename is the download name for a raffle's participant export.
func Filename(raffleName string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(raffleName), "-"))
	if slug == "" {
		slug = "rifa"
	}
	return "participantes-" + slug + ".csv"
}

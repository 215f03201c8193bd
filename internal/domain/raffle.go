package domain

import "time"

type RaffleStatus string

const (
	RaffleActive   RaffleStatus = "active"
	RafflePaused   RaffleStatus = "paused"
	RaffleFinished RaffleStatus = "finished"
)

const (
	MinRaffleSize = 10
	MaxRaffleSize = 10000
)

type Raffle struct {
	RaffleID   string       `json:"id" dynamodbav:"raffle_id"`
	Name       string       `json:"name" dynamodbav:"name"`
	Size       int          `json:"size" dynamodbav:"size"`
	Status     RaffleStatus `json:"status" dynamodbav:"status"`
	Archived   bool         `json:"archived" dynamodbav:"archived"`
	Winner     *Winner      `json:"winner,omitempty" dynamodbav:"winner,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty" dynamodbav:"finished_at,omitempty"`
	PausedAt   *time.Time   `json:"paused_at,omitempty" dynamodbav:"paused_at,omitempty"`
	ArchivedAt *time.Time   `json:"archived_at,omitempty" dynamodbav:"archived_at,omitempty"`
	CreatedAt  time.Time    `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time    `json:"updated" dynamodbav:"updated_at"`
}

// Winner is the immutable draw result attached at the finished transition.
type Winner struct {
	Number      int                `json:"number" dynamodbav:"number"`
	Participant ParticipantProfile `json:"participant" dynamodbav:"participant"`
}

// Accepting reports whether the raffle takes new reservations.
func (r *Raffle) Accepting() bool { return r.Status == RaffleActive }

type CreateRaffleRequest struct {
	Name string `json:"name" validate:"required"`
	Size int    `json:"size" validate:"min=10,max=10000"`
}

// RaffleStats summarises how full a raffle is.
type RaffleStats struct {
	RaffleID     string  `json:"raffle_id"`
	Participants int     `json:"participants"`
	Size         int     `json:"size"`
	Percentage   float64 `json:"percentage"`
}

// PublicRaffle is the participant-facing view: no personal data, only taken numbers.
type PublicRaffle struct {
	RaffleID string       `json:"id"`
	Name     string       `json:"name"`
	Size     int          `json:"size"`
	Status   RaffleStatus `json:"status"`
	Taken    []int        `json:"taken"`
	Winner   *int         `json:"winning_number,omitempty"`
}

// RafflePatch lists the mutable raffle fields; nil fields are left unchanged.
type RafflePatch struct {
	Status     *RaffleStatus
	Archived   *bool
	Winner     *Winner
	PausedAt   *time.Time
	ArchivedAt *time.Time
	FinishedAt *time.Time
}

// Apply copies the set fields onto r.
func (p RafflePatch) Apply(r *Raffle) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Archived != nil {
		r.Archived = *p.Archived
	}
	if p.Winner != nil {
		w := *p.Winner
		r.Winner = &w
	}
	if p.PausedAt != nil {
		r.PausedAt = p.PausedAt
	}
	if p.ArchivedAt != nil {
		r.ArchivedAt = p.ArchivedAt
	}
	if p.FinishedAt != nil {
		r.FinishedAt = p.FinishedAt
	}
}

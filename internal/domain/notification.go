package domain

import (
	"errors"
	"time"
)

type NotificationType string

const (
	NotificationNewParticipation   NotificationType = "new_participation"
	NotificationConcurrency        NotificationType = "concurrency"
	NotificationDuplicateSuspicion NotificationType = "duplicate_suspicion"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Urgent reports whether the priority warrants an out-of-band admin alert.
func (p Priority) Urgent() bool { return p == PriorityHigh || p == PriorityCritical }

type Notification struct {
	NotificationID string           `json:"id" dynamodbav:"notification_id"`
	Type           NotificationType `json:"type" dynamodbav:"type"`
	Title          string           `json:"title" dynamodbav:"title"`
	Message        string           `json:"message" dynamodbav:"message"`
	Data           NotificationData `json:"data" dynamodbav:"data"`
	RaffleID       string           `json:"raffle_id" dynamodbav:"raffle_id"`
	ParticipantID  *string          `json:"participant_id,omitempty" dynamodbav:"participant_id,omitempty"`
	Priority       Priority         `json:"priority" dynamodbav:"priority"`
	Read           bool             `json:"read" dynamodbav:"read"`
	ReadAt         *time.Time       `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	CreatedAt      time.Time        `json:"created" dynamodbav:"created_at"`
}

// NotificationData is a union keyed by Notification.Type: exactly one variant is set.
type NotificationData struct {
	NewParticipation   *NewParticipationData   `json:"new_participation,omitempty" dynamodbav:"new_participation,omitempty"`
	Concurrency        *ConcurrencyData        `json:"concurrency,omitempty" dynamodbav:"concurrency,omitempty"`
	DuplicateSuspicion *DuplicateSuspicionData `json:"duplicate_suspicion,omitempty" dynamodbav:"duplicate_suspicion,omitempty"`
}

type NewParticipationData struct {
	ParticipantName string `json:"participant_name" dynamodbav:"participant_name"`
	Phone           string `json:"phone" dynamodbav:"phone"`
	Number          int    `json:"number" dynamodbav:"number"`
}

type ConcurrencyData struct {
	ParticipantName string `json:"participant_name" dynamodbav:"participant_name"`
	Phone           string `json:"phone" dynamodbav:"phone"`
	Numbers         []int  `json:"numbers" dynamodbav:"numbers"`
}

type DuplicateSuspicionData struct {
	ParticipantName string `json:"participant_name" dynamodbav:"participant_name"`
	Phone           string `json:"phone" dynamodbav:"phone"`
	TotalNumbers    int    `json:"total_numbers" dynamodbav:"total_numbers"`
}

var errPayloadMismatch = errors.New("notification payload does not match type")

// Validate checks that the payload variant matches the notification type.
func (n *Notification) Validate() error {
	set := 0
	var matches bool
	if n.Data.NewParticipation != nil {
		set++
		matches = n.Type == NotificationNewParticipation
	}
	if n.Data.Concurrency != nil {
		set++
		matches = n.Type == NotificationConcurrency
	}
	if n.Data.DuplicateSuspicion != nil {
		set++
		matches = n.Type == NotificationDuplicateSuspicion
	}
	if set != 1 || !matches {
		return errPayloadMismatch
	}
	return nil
}

// NotificationFilter narrows a notification listing. Zero values mean "any".
type NotificationFilter struct {
	UnreadOnly bool
	Type       NotificationType
	Priority   Priority
	RaffleID   string
	Limit      int
}

// Match reports whether n passes every set filter field.
func (f NotificationFilter) Match(n *Notification) bool {
	if f.UnreadOnly && n.Read {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Priority != "" && n.Priority != f.Priority {
		return false
	}
	if f.RaffleID != "" && n.RaffleID != f.RaffleID {
		return false
	}
	return true
}

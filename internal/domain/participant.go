package domain

import "time"

// ParticipantProfile is the personal data a participant submits with a reservation.
type ParticipantProfile struct {
	Name  string `json:"name" dynamodbav:"name" validate:"required"`
	Phone string `json:"phone" dynamodbav:"phone" validate:"required"`
	Email string `json:"email,omitempty" dynamodbav:"email,omitempty" validate:"omitempty,email"`
}

// Participant binds one raffle number to one participant.
type Participant struct {
	ParticipantID string             `json:"id" dynamodbav:"participant_id"`
	RaffleID      string             `json:"raffle_id" dynamodbav:"raffle_id"`
	Number        int                `json:"number" dynamodbav:"number"`
	Profile       ParticipantProfile `json:"participant" dynamodbav:"profile"`
	LinkID        *string            `json:"link_id,omitempty" dynamodbav:"link_id,omitempty"`
	ReservedAt    time.Time          `json:"reserved_at" dynamodbav:"reserved_at"`
}

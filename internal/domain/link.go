package domain

import "time"

const (
	MinLinkLimit = 1
	MaxLinkLimit = 100
)

// Redeemer is the snapshot stored on a custom link when it is redeemed.
type Redeemer struct {
	Name    string `json:"name" dynamodbav:"name"`
	Phone   string `json:"phone" dynamodbav:"phone"`
	Email   string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Numbers []int  `json:"numbers" dynamodbav:"numbers"`
}

// CustomLink is a single-use access token scoped to a raffle with a selection limit.
// Used goes false to true once; ClaimToken/ClaimedAt hold the short redemption lease.
type CustomLink struct {
	LinkID     string     `json:"id" dynamodbav:"link_id"`
	RaffleID   string     `json:"raffle_id" dynamodbav:"raffle_id"`
	Limit      int        `json:"limit" dynamodbav:"limit"`
	Used       bool       `json:"used" dynamodbav:"used"`
	UsedAt     *time.Time `json:"used_at,omitempty" dynamodbav:"used_at,omitempty"`
	UsedBy     *Redeemer  `json:"used_by,omitempty" dynamodbav:"used_by,omitempty"`
	ClaimToken string     `json:"-" dynamodbav:"claim_token,omitempty"`
	ClaimedAt  *time.Time `json:"-" dynamodbav:"-"`
	URL        string     `json:"url,omitempty" dynamodbav:"-"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
}

type CreateLinkRequest struct {
	Limit int `json:"limit" validate:"min=1,max=100"`
}

package domain

import (
	"fmt"
	"time"
)

// Channel is the delivery path of an OTP challenge.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel maps a route or body value to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("unknown channel %q: %w", s, ErrBadRequest)
	}
}

// Challenge is one issued OTP for a (user, channel) pair. At most one
// challenge per pair has IsExpired == false.
type Challenge struct {
	ChallengeID string    `json:"id" dynamodbav:"challenge_id"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Channel     Channel   `json:"channel" dynamodbav:"channel"`
	Destination string    `json:"destination" dynamodbav:"destination"`
	Code        string    `json:"-" dynamodbav:"code"`
	IsExpired   bool      `json:"is_expired" dynamodbav:"is_expired"`
	ExpiresAt   time.Time `json:"expired_at" dynamodbav:"expires_at"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Live reports whether the challenge can still be matched at now.
func (c *Challenge) Live(now time.Time) bool {
	return !c.IsExpired && now.Before(c.ExpiresAt)
}

// ChallengeResponse is the public projection returned after an OTP request.
type ChallengeResponse struct {
	ChallengeID string    `json:"id"`
	UserID      string    `json:"user_id"`
	Channel     Channel   `json:"channel"`
	Destination string    `json:"destination"`
	IsExpired   bool      `json:"is_expired"`
	ExpiresAt   time.Time `json:"expired_at"`
	CreatedAt   time.Time `json:"created_at"`
	Delivered   bool      `json:"delivered"`
}

type OTPRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

type OTPVerifyRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

// VerifyOutcome is the result of checking a submitted code.
type VerifyOutcome int

const (
	OutcomeNoActiveChallenge VerifyOutcome = iota
	OutcomeMismatched
	OutcomeMatched
)

func (o VerifyOutcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeMismatched:
		return "mismatched"
	default:
		return "no_active_challenge"
	}
}

package http

import (
	"context"
	"io"
	"time"

	"github.com/dishdash-auth/internal/domain"
	"github.com/dishdash-auth/internal/infrastructure/smtp"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// SwapTokens replaces the token triple only if the stored access token
	// still equals prev; otherwise it returns domain.ErrConflict.
	SwapTokens(ctx context.Context, userID string, prev *string, next *domain.TokenPair) error
	ClearTokens(ctx context.Context, userID string) error
	SoftDelete(ctx context.Context, userID string) error
}

// ChallengeRepository is the minimal interface the router requires from an OTP challenge store.
type ChallengeRepository interface {
	Latest(ctx context.Context, userID string, channel domain.Channel) (*domain.Challenge, error)
	Supersede(ctx context.Context, c *domain.Challenge) error
	MarkExpired(ctx context.Context, c *domain.Challenge) error
}

// ProfileRepository is the minimal interface the router requires from a profile store.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Put(ctx context.Context, p *domain.Profile) error
}

// ObjectStore is the minimal interface the router requires from an object storage backend.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Mailer sends email notifications.
type Mailer interface {
	SendEmail(ctx context.Context, msg smtp.Message) error
}

// SMSSender sends text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/dishdash-auth/internal/application/notification"
	"github.com/dishdash-auth/internal/domain"
	"github.com/dishdash-auth/internal/pkg/id"
	"github.com/dishdash-auth/internal/pkg/validate"
)

const (
	codeMin = 100000
	codeMax = 999999
	// supersedeAttempts bounds retries when a concurrent request moved the
	// (user, channel) head between our read and our write.
	supersedeAttempts = 3
)

type Service interface {
	Request(ctx context.Context, channel domain.Channel, req domain.OTPRequest) (*domain.ChallengeResponse, error)
	Verify(ctx context.Context, channel domain.Channel, req domain.OTPVerifyRequest) (domain.VerifyOutcome, error)
}

// challengeStore persists challenges. Supersede atomically expires the live
// challenge of (c.UserID, c.Channel), if any, and stores c; it returns
// domain.ErrConflict when a concurrent writer got there first. MarkExpired
// flips is_expired from false to true and returns domain.ErrConflict when
// the challenge was already expired.
type challengeStore interface {
	Latest(ctx context.Context, userID string, channel domain.Channel) (*domain.Challenge, error)
	Supersede(ctx context.Context, c *domain.Challenge) error
	MarkExpired(ctx context.Context, c *domain.Challenge) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// CodeGenerator yields a 6-digit numeric code.
type CodeGenerator func() (string, error)

type service struct {
	challenges challengeStore
	users      userStore
	dispatcher notification.Dispatcher
	ttl        time.Duration
	generate   CodeGenerator
	now        func() time.Time
}

type ServiceDeps struct {
	ChallengeRepo challengeStore
	UserRepo      userStore
	Dispatcher    notification.Dispatcher
	TTL           time.Duration
	// Generate and Now default to crypto/rand codes and time.Now.
	Generate CodeGenerator
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		challenges: deps.ChallengeRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		ttl:        deps.TTL,
		generate:   deps.Generate,
		now:        deps.Now,
	}
	if s.generate == nil {
		s.generate = RandomCode
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RandomCode draws uniformly from [100000, 999999].
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

func (s *service) Request(ctx context.Context, channel domain.Channel, req domain.OTPRequest) (*domain.ChallengeResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if err := validateDestination(channel, req.Destination); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
	}

	code, err := s.generate()
	if err != nil {
		return nil, err
	}

	var c *domain.Challenge
	for attempt := 1; ; attempt++ {
		now := s.now().UTC()
		c = &domain.Challenge{
			ChallengeID: id.New(),
			UserID:      u.UserID,
			Channel:     channel,
			Destination: req.Destination,
			Code:        code,
			ExpiresAt:   now.Add(s.ttl),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.challenges.Supersede(ctx, c)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == supersedeAttempts {
			return nil, fmt.Errorf("store %s challenge: %w", channel, err)
		}
	}

	delivered := true
	if err := s.dispatcher.Dispatch(ctx, notification.Message{Channel: channel, Destination: c.Destination, Code: code}); err != nil {
		delivered = false
		slog.Warn("otp delivery failed",
			"channel", channel,
			"user_id", c.UserID,
			"challenge_id", c.ChallengeID,
			"destination", notification.MaskDestination(c.Destination),
			"err", err,
		)
	}

	return &domain.ChallengeResponse{
		ChallengeID: c.ChallengeID,
		UserID:      c.UserID,
		Channel:     c.Channel,
		Destination: c.Destination,
		IsExpired:   c.IsExpired,
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   c.CreatedAt,
		Delivered:   delivered,
	}, nil
}

func (s *service) Verify(ctx context.Context, channel domain.Channel, req domain.OTPVerifyRequest) (domain.VerifyOutcome, error) {
	if err := validate.Struct(req); err != nil {
		return domain.OutcomeNoActiveChallenge, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	c, err := s.challenges.Latest(ctx, req.UserID, channel)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeNoActiveChallenge, nil
	}
	if err != nil {
		return domain.OutcomeNoActiveChallenge, err
	}
	if !c.Live(s.now()) {
		return domain.OutcomeNoActiveChallenge, nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(req.Code)) != 1 {
		return domain.OutcomeMismatched, nil
	}
	err = s.challenges.MarkExpired(ctx, c)
	if errors.Is(err, domain.ErrConflict) {
		// Consumed or superseded by a concurrent request.
		return domain.OutcomeNoActiveChallenge, nil
	}
	if err != nil {
		return domain.OutcomeNoActiveChallenge, err
	}
	return domain.OutcomeMatched, nil
}

func validateDestination(channel domain.Channel, dest string) error {
	var tag string
	switch channel {
	case domain.ChannelEmail:
		tag = "email"
	case domain.ChannelSMS:
		tag = "e164"
	default:
		return fmt.Errorf("unknown channel %q: %w", channel, domain.ErrBadRequest)
	}
	if err := validate.Var(dest, tag); err != nil {
		return fmt.Errorf("invalid %s destination: %w", channel, domain.ErrBadRequest)
	}
	return nil
}

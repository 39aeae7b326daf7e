package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dishdash-auth/internal/domain"
	"github.com/dishdash-auth/internal/pkg/id"
	"github.com/dishdash-auth/internal/pkg/password"
	pkgtoken "github.com/dishdash-auth/internal/pkg/token"
	"github.com/dishdash-auth/internal/pkg/validate"
)

// LoginResult carries the pair handed to the client. Reissued is true when
// a new pair was minted (HTTP 201) and false when the still-valid stored
// pair was returned (HTTP 202).
// maxPasswordBytes is bcrypt's input limit. It counts bytes, not runes.
const maxPasswordBytes = 72

type LoginResult struct {
	Pair     domain.TokenPair
	Reissued bool
}

type Service interface {
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.PublicUser, error)
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, username, authorization string) error
	Deactivate(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*domain.PublicUser, error)
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SoftDelete(ctx context.Context, userID string) error
}

type tokenIssuer interface {
	Issue(ctx context.Context, u *domain.User) (*domain.TokenPair, error)
	IsValid(u *domain.User) bool
	Invalidate(ctx context.Context, u *domain.User) error
}

type service struct {
	users             userStore
	tokens            tokenIssuer
	hasher            password.Hasher
	requireTokenMatch bool
	now               func() time.Time
}

type ServiceDeps struct {
	UserRepo userStore
	Tokens   tokenIssuer
	Hasher   password.Hasher
	// RequireTokenMatch makes Logout compare the bearer token with the
	// stored access token.
	RequireTokenMatch bool
	Now               func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:             deps.UserRepo,
		tokens:            deps.Tokens,
		hasher:            deps.Hasher,
		requireTokenMatch: deps.RequireTokenMatch,
		now:               deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.PublicUser, error) {
	req.Username = normalizeUsername(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, fmt.Errorf("password longer than %d bytes: %w", maxPasswordBytes, domain.ErrBadRequest)
	}

	// The store enforces uniqueness; these reads only give a precise message.
	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return domain.NewPublicUser(u), nil
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	req.Username = normalizeUsername(req.Username)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	u, err := s.activeUser(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Verify(req.Password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	if pair := u.TokenPair(); pair != nil && !pair.AccessTokenExpiry.Before(s.now()) {
		return &LoginResult{Pair: *pair, Reissued: false}, nil
	}

	pair, err := s.tokens.Issue(ctx, u)
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent login replaced the pair first; hand out the winner's.
		winner, gerr := s.users.Get(ctx, u.UserID)
		if gerr != nil {
			return nil, gerr
		}
		if p := winner.TokenPair(); p != nil && s.tokens.IsValid(winner) {
			return &LoginResult{Pair: *p, Reissued: false}, nil
		}
		return nil, fmt.Errorf("concurrent login: %w", domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &LoginResult{Pair: *pair, Reissued: true}, nil
}

func (s *service) Logout(ctx context.Context, username, authorization string) error {
	presented, ok := pkgtoken.FromBearer(authorization)
	if !ok {
		return fmt.Errorf("authorization header must be 'Bearer <token>': %w", domain.ErrBadRequest)
	}
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("username required: %w", domain.ErrBadRequest)
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
		}
		return err
	}
	if s.requireTokenMatch {
		if u.AccessToken == nil || subtle.ConstantTimeCompare([]byte(*u.AccessToken), []byte(presented)) != 1 {
			return fmt.Errorf("bearer token does not match: %w", domain.ErrUnauthorized)
		}
	}
	return s.tokens.Invalidate(ctx, u)
}

func (s *service) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.users.Get(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
		}
		return err
	}
	return s.users.SoftDelete(ctx, userID)
}

func (s *service) Me(ctx context.Context, userID string) (*domain.PublicUser, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
	}
	return domain.NewPublicUser(u), nil
}

func (s *service) activeUser(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if u.IsDeleted {
		return nil, fmt.Errorf("user does not exist: %w", domain.ErrNotFound)
	}
	return u, nil
}

// normalizeUsername is applied on every path that looks a user up by name,
// so the stored form and the lookup key always agree.
func normalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

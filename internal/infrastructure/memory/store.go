// Package memory is a process-local store with the same atomicity
// guarantees as the Dynamo and Postgres stores. It backs STORE_DRIVER=memory
// for local development and the service tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dishdash-auth/internal/domain"
)

type Store struct {
	mu         sync.Mutex
	users      map[string]domain.User
	byUsername map[string]string
	byEmail    map[string]string
	challenges map[string][]domain.Challenge // keyed by user#channel, oldest first
	profiles   map[string]domain.Profile
	now        func() time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		challenges: make(map[string][]domain.Challenge),
		profiles:   make(map[string]domain.Profile),
		now:        time.Now,
	}
}

// Users, Challenges and Profiles expose the store under the repository
// shapes the services expect.
func (s *Store) Users() *UserRepo           { return &UserRepo{s} }
func (s *Store) Challenges() *ChallengeRepo { return &ChallengeRepo{s} }
func (s *Store) Profiles() *ProfileRepo     { return &ProfileRepo{s} }

type UserRepo struct{ s *Store }

func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := r.s.byUsername[u.Username]; ok {
		return fmt.Errorf("username already taken: %w", domain.ErrConflict)
	}
	if _, ok := r.s.byEmail[email]; ok {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if _, ok := r.s.users[u.UserID]; ok {
		return fmt.Errorf("user id already exists: %w", domain.ErrConflict)
	}
	r.s.users[u.UserID] = cloneUser(*u)
	r.s.byUsername[u.Username] = u.UserID
	r.s.byEmail[email] = u.UserID
	return nil
}

func (r *UserRepo) Get(_ context.Context, userID string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.getUser(userID)
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	userID, ok := r.s.byUsername[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.s.getUser(userID)
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	userID, ok := r.s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.s.getUser(userID)
}

func (r *UserRepo) SwapTokens(_ context.Context, userID string, prev *string, next *domain.TokenPair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if !sameToken(u.AccessToken, prev) {
		return fmt.Errorf("token pair changed concurrently: %w", domain.ErrConflict)
	}
	u.SetTokens(next)
	u.UpdatedAt = r.s.now().UTC()
	r.s.users[userID] = u
	return nil
}

func (r *UserRepo) ClearTokens(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.SetTokens(nil)
	u.UpdatedAt = r.s.now().UTC()
	r.s.users[userID] = u
	return nil
}

func (r *UserRepo) SoftDelete(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsDeleted = true
	u.SetTokens(nil)
	u.UpdatedAt = r.s.now().UTC()
	r.s.users[userID] = u
	return nil
}

func (s *Store) getUser(userID string) (*domain.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

type ChallengeRepo struct{ s *Store }

func challengeKey(userID string, ch domain.Channel) string {
	return userID + "#" + string(ch)
}

func (r *ChallengeRepo) Latest(_ context.Context, userID string, ch domain.Channel) (*domain.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := r.s.challenges[challengeKey(userID, ch)]
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	c := list[len(list)-1]
	return &c, nil
}

func (r *ChallengeRepo) Supersede(_ context.Context, c *domain.Challenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := challengeKey(c.UserID, c.Channel)
	list := r.s.challenges[key]
	for i := range list {
		if !list[i].IsExpired {
			list[i].IsExpired = true
			list[i].UpdatedAt = c.CreatedAt
		}
	}
	r.s.challenges[key] = append(list, *c)
	return nil
}

func (r *ChallengeRepo) MarkExpired(_ context.Context, c *domain.Challenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := r.s.challenges[challengeKey(c.UserID, c.Channel)]
	for i := range list {
		if list[i].ChallengeID != c.ChallengeID {
			continue
		}
		if list[i].IsExpired {
			return fmt.Errorf("challenge already expired: %w", domain.ErrConflict)
		}
		list[i].IsExpired = true
		list[i].UpdatedAt = r.s.now().UTC()
		c.IsExpired = true
		return nil
	}
	return domain.ErrNotFound
}

// All returns every challenge of (userID, ch), oldest first.
func (r *ChallengeRepo) All(userID string, ch domain.Channel) []domain.Challenge {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.Challenge(nil), r.s.challenges[challengeKey(userID, ch)]...)
}

type ProfileRepo struct{ s *Store }

func (r *ProfileRepo) Get(_ context.Context, userID string) (*domain.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *ProfileRepo) Put(_ context.Context, p *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.profiles[p.UserID] = *p
	return nil
}

func sameToken(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// cloneUser copies u so callers never share token pointers with the store.
func cloneUser(u domain.User) domain.User {
	u.SetTokens(u.TokenPair())
	return u
}

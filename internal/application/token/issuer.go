package token

import (
	"context"
	"fmt"
	"time"

	"github.com/dishdash-auth/internal/domain"
	jwtinfra "github.com/dishdash-auth/internal/infrastructure/jwt"
)

// Store persists the token triple on the user row. SwapTokens is a
// single-row compare-and-swap: it fails with domain.ErrConflict when the
// stored access token no longer equals prev (nil meaning "logged out").
type Store interface {
	SwapTokens(ctx context.Context, userID string, prev *string, next *domain.TokenPair) error
	ClearTokens(ctx context.Context, userID string) error
}

// Signer mints signed bearer tokens.
type Signer interface {
	Sign(userID, username string, typ jwtinfra.TokenType, now time.Time) (string, time.Time, error)
}

// Issuer owns the token lifecycle of a user: issue, validity check and
// invalidation. The stored pair is overwritten, never versioned.
type Issuer struct {
	store  Store
	signer Signer
	now    func() time.Time
}

func NewIssuer(store Store, signer Signer) *Issuer {
	return &Issuer{store: store, signer: signer, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue mints a fresh pair for u and persists it. On success u carries the
// new pair. domain.ErrConflict means a concurrent writer replaced the pair
// first; u is left untouched in that case.
func (i *Issuer) Issue(ctx context.Context, u *domain.User) (*domain.TokenPair, error) {
	now := i.now().UTC()
	access, expiry, err := i.signer.Sign(u.UserID, u.Username, jwtinfra.TokenAccess, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, _, err := i.signer.Sign(u.UserID, u.Username, jwtinfra.TokenRefresh, now)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	pair := &domain.TokenPair{Access: access, Refresh: refresh, AccessTokenExpiry: expiry.UTC()}
	if err := i.store.SwapTokens(ctx, u.UserID, u.AccessToken, pair); err != nil {
		return nil, err
	}
	u.SetTokens(pair)
	u.UpdatedAt = now
	return pair, nil
}

// IsValid reports whether the stored access token has not yet expired.
func (i *Issuer) IsValid(u *domain.User) bool {
	return u.AccessTokenExpiry != nil && u.AccessTokenExpiry.After(i.now())
}

// Invalidate clears the pair, returning the user to the logged-out state.
func (i *Issuer) Invalidate(ctx context.Context, u *domain.User) error {
	if err := i.store.ClearTokens(ctx, u.UserID); err != nil {
		return err
	}
	u.SetTokens(nil)
	u.UpdatedAt = i.now().UTC()
	return nil
}

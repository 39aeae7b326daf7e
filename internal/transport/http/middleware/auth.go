package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/dishdash-auth/internal/domain"
	jwtinfra "github.com/dishdash-auth/internal/infrastructure/jwt"
	pkgtoken "github.com/dishdash-auth/internal/pkg/token"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// Verifier validates a bearer token's signature and expiry.
type Verifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// UserLookup loads the user a token was issued to.
type UserLookup interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// Auth returns middleware that validates the Bearer JWT and injects claims
// into context. When users is non-nil the token must also still be the
// user's stored access token, so logout and deactivation revoke it.
func Auth(verifier Verifier, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := pkgtoken.FromBearer(r.Header.Get("Authorization"))
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := verifier.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if users != nil {
				u, err := users.Get(r.Context(), claims.UserID)
				if err != nil || u.IsDeleted || u.AccessToken == nil ||
					subtle.ConstantTimeCompare([]byte(*u.AccessToken), []byte(tokenStr)) != 1 {
					writeJSONError(w, http.StatusUnauthorized, "token revoked")
					return
				}
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

// WithClaims stores claims in ctx the way Auth does.
func WithClaims(ctx context.Context, c *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}

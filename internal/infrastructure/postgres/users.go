package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dishdash-auth/internal/domain"
	"github.com/jackc/pgx/v5"
)

const userColumns = `user_id, username, email, password_hash, refresh_token, access_token,
	access_token_expiry, is_deleted, created_at, updated_at`

type UserRepo struct {
	db  DB
	now func() time.Time
}

func NewUserRepo(db DB) *UserRepo {
	return &UserRepo{db: db, now: time.Now}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.UserID, u.Username, strings.ToLower(u.Email), u.PasswordHash,
		u.RefreshToken, u.AccessToken, u.AccessTokenExpiry, u.IsDeleted, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("username or email already registered: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

// SwapTokens replaces the token triple only if the stored access token is
// still prev (NULL when prev is nil).
func (r *UserRepo) SwapTokens(ctx context.Context, userID string, prev *string, next *domain.TokenPair) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET access_token = $2, refresh_token = $3, access_token_expiry = $4, updated_at = $5
		WHERE user_id = $1 AND access_token IS NOT DISTINCT FROM $6`,
		userID, next.Access, next.Refresh, next.AccessTokenExpiry, r.now().UTC(), prev,
	)
	if err != nil {
		return fmt.Errorf("swap tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, userID); err != nil {
			return err
		}
		return fmt.Errorf("token pair changed concurrently: %w", domain.ErrConflict)
	}
	return nil
}

func (r *UserRepo) ClearTokens(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users
		SET access_token = NULL, refresh_token = NULL, access_token_expiry = NULL, updated_at = $2
		WHERE user_id = $1`, userID, r.now().UTC())
}

func (r *UserRepo) SoftDelete(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users
		SET is_deleted = TRUE, access_token = NULL, refresh_token = NULL, access_token_expiry = NULL, updated_at = $2
		WHERE user_id = $1`, userID, r.now().UTC())
}

func (r *UserRepo) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) queryOne(ctx context.Context, sql string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, sql, arg).Scan(
		&u.UserID, &u.Username, &u.Email, &u.PasswordHash, &u.RefreshToken, &u.AccessToken,
		&u.AccessTokenExpiry, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

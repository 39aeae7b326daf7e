package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dishdash-auth/internal/domain"
	"github.com/jackc/pgx/v5"
)

const challengeColumns = `challenge_id, user_id, channel, destination, code, is_expired,
	expires_at, created_at, updated_at`

type ChallengeRepo struct {
	db  DB
	now func() time.Time
}

func NewChallengeRepo(db DB) *ChallengeRepo {
	return &ChallengeRepo{db: db, now: time.Now}
}

func (r *ChallengeRepo) Latest(ctx context.Context, userID string, ch domain.Channel) (*domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRow(ctx, `
		SELECT `+challengeColumns+`
		FROM otp_challenges
		WHERE user_id = $1 AND channel = $2
		ORDER BY seq DESC
		LIMIT 1`, userID, string(ch),
	).Scan(&c.ChallengeID, &c.UserID, &c.Channel, &c.Destination, &c.Code, &c.IsExpired,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no challenge: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select challenge: %w", err)
	}
	return &c, nil
}

// Supersede serialises on a transaction-scoped advisory lock per
// (user, channel), expires every live challenge and inserts c. The partial
// unique index otp_challenges_one_live backs the lock.
func (r *ChallengeRepo) Supersede(ctx context.Context, c *domain.Challenge) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.UserID+"#"+string(c.Channel)); err != nil {
			return fmt.Errorf("lock challenges: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE otp_challenges
			SET is_expired = TRUE, updated_at = $3
			WHERE user_id = $1 AND channel = $2 AND NOT is_expired`,
			c.UserID, string(c.Channel), c.CreatedAt,
		); err != nil {
			return fmt.Errorf("expire challenges: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO otp_challenges (`+challengeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ChallengeID, c.UserID, string(c.Channel), c.Destination, c.Code, c.IsExpired,
			c.ExpiresAt, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return err
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("challenge superseded concurrently: %w", domain.ErrConflict)
	}
	return err
}

func (r *ChallengeRepo) MarkExpired(ctx context.Context, c *domain.Challenge) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE otp_challenges
		SET is_expired = TRUE, updated_at = $2
		WHERE challenge_id = $1 AND NOT is_expired`, c.ChallengeID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("expire challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge already expired: %w", domain.ErrConflict)
	}
	c.IsExpired = true
	return nil
}

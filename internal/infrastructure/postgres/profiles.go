package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dishdash-auth/internal/domain"
	"github.com/jackc/pgx/v5"
)

type ProfileRepo struct {
	db DB
}

func NewProfileRepo(db DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.QueryRow(ctx, `
		SELECT user_id, display_name, phone, image_key, image_url, created_at, updated_at
		FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.DisplayName, &p.Phone, &p.ImageKey, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

func (r *ProfileRepo) Put(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name, phone, image_key, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			phone = EXCLUDED.phone,
			image_key = EXCLUDED.image_key,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.DisplayName, p.Phone, p.ImageKey, p.ImageURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

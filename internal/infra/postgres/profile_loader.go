package postgres

import (
	"context"
	"errors"
	"fmt"

	"daily-leaderboard-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileLoader reads display names from the user_profiles table.
type ProfileLoader struct {
	pool *pgxpool.Pool
}

func NewProfileLoader(pool *pgxpool.Pool) *ProfileLoader {
	return &ProfileLoader{pool: pool}
}

func (l *ProfileLoader) LoadDisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := l.pool.QueryRow(ctx, `SELECT display_name FROM user_profiles WHERE id=$1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	return name, nil
}

// UpsertProfile writes a display name; used by seeding and tests.
func (l *ProfileLoader) UpsertProfile(ctx context.Context, userID, displayName string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO user_profiles (id, display_name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = now()`,
		userID, displayName)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

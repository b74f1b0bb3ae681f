package cli

import (
	"context"
	"fmt"

	"daily-leaderboard-service/internal/config"
	pginfra "daily-leaderboard-service/internal/infra/postgres"
	redisinfra "daily-leaderboard-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type profileWriter interface {
	UpsertProfile(ctx context.Context, userID, displayName string) error
}

type nameInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NewProfileCmd groups commands that edit user_profiles.
func NewProfileCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage display names shown on the leaderboard",
	}

	var userID, name string
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or rename a profile and drop its cached name",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			loader := pginfra.NewProfileLoader(pool)

			var cache nameInvalidator
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				_, sharedTTL, _ := cfg.NameTTLs()
				cache = redisinfra.NewNameCache(client, loader, sharedTTL)
			}
			if err := setProfile(ctx, loader, cache, userID, name); err != nil {
				return err
			}
			logger.Info("profile updated", zap.String("user_id", userID))
			return nil
		},
	}
	set.Flags().StringVar(&userID, "user", "", "user id")
	set.Flags().StringVar(&name, "name", "", "display name")
	_ = set.MarkFlagRequired("user")
	_ = set.MarkFlagRequired("name")
	cmd.AddCommand(set)
	return cmd
}

// setProfile writes the profile first so a concurrent read cannot refill the
// cache with the old name after it was dropped.
func setProfile(ctx context.Context, profiles profileWriter, cache nameInvalidator, userID, name string) error {
	if userID == "" || name == "" {
		return fmt.Errorf("user and name are required")
	}
	if err := profiles.UpsertProfile(ctx, userID, name); err != nil {
		return err
	}
	if cache == nil {
		return nil
	}
	if err := cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("invalidate cached name: %w", err)
	}
	return nil
}

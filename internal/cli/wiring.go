package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"daily-leaderboard-service/internal/app"
	"daily-leaderboard-service/internal/config"
	"daily-leaderboard-service/internal/domain"
	"daily-leaderboard-service/internal/infra/memory"
	pginfra "daily-leaderboard-service/internal/infra/postgres"
	redisinfra "daily-leaderboard-service/internal/infra/redis"
	"daily-leaderboard-service/internal/observability"
	"daily-leaderboard-service/internal/scoring"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// pruner drops aggregates of days older than the retention window.
type pruner interface {
	DeleteBefore(ctx context.Context, day domain.DayKey) (int64, error)
}

type backend struct {
	service *app.LeaderboardService
	pruner  pruner
	closers []func()
}

func (r *backend) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildBackend connects the configured backends and assembles the service.
func buildBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	rt := &backend{}

	offset, err := scoring.ParseOffset(cfg.Leaderboard.UTCOffset)
	if err != nil {
		return nil, err
	}
	policy := scoring.NewDayPolicy(offset, cfg.Grace())
	retention := cfg.Retention()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		db = bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL))), pgdialect.New())
		rt.closers = append(rt.closers, func() { _ = db.Close() })
	}

	var loader memory.DirectoryLoader = memory.NewStaticDirectory(cfg.Identity.Names)
	if pool != nil {
		loader = pginfra.NewProfileLoader(pool)
	}
	localTTL, sharedTTL, missTTL := cfg.NameTTLs()
	var names app.IdentityLookup
	if redisClient != nil {
		names = redisinfra.NewNameCache(redisClient, loader, sharedTTL)
	} else {
		names = memory.NewNameCache(loader, localTTL, missTTL)
	}

	var store app.AggregateStore
	switch cfg.StoreKind() {
	case config.StorePostgres:
		pgStore := pginfra.NewAggregateStore(db)
		store, rt.pruner = pgStore, pgStore
	case config.StoreRedis:
		store = redisinfra.NewAggregateStore(redisClient, cfg.DedupeTTL(), retention)
	default:
		memStore := memory.NewAggregateStore()
		store, rt.pruner = memStore, memStore
	}

	var ledger app.EventLedger
	switch {
	case pool != nil:
		ledger = pginfra.NewEventLedger(pool)
	case redisClient != nil:
		ledger = redisinfra.NewEventLedger(redisClient, retention)
	default:
		ledger = memory.NewEventLedger()
	}

	var queue app.ReconcileQueue = memory.NewReconcileQueue()
	if redisClient != nil {
		queue = redisinfra.NewReconcileQueue(redisClient)
	}

	placeholder := cfg.Identity.PlaceholderName
	rt.service = app.NewLeaderboardService(store, ledger, names, policy,
		app.WithLogger(logger),
		app.WithReconcileQueue(queue),
		app.WithPlaceholderName(placeholder),
		app.WithLookupConcurrency(cfg.Identity.LookupConcurrency),
	)
	logger.Info("leaderboard runtime ready",
		zap.String("store", cfg.StoreKind()),
		zap.String("utc_offset", policy.Location().String()),
		zap.Duration("grace", policy.Grace()),
	)
	return rt, nil
}

// pruneLoop removes expired days once an hour until ctx is done.
func pruneLoop(ctx context.Context, rt *backend, retentionDays int, logger *zap.Logger) {
	if rt.pruner == nil {
		return
	}
	if retentionDays == 0 {
		retentionDays = 7
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		cutoff := rt.service.Policy().DayKeyOf(rt.service.Now().AddDate(0, 0, -retentionDays))
		if removed, err := rt.pruner.DeleteBefore(ctx, cutoff); err != nil {
			logger.Warn("retention prune failed", zap.Error(err))
		} else if removed > 0 {
			logger.Info("pruned expired aggregates", zap.String("before", cutoff.String()), zap.Int64("removed", removed))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
}

package config

import (
	"fmt"
	"os"
	"time"

	"daily-leaderboard-service/internal/scoring"
	"gopkg.in/yaml.v3"
)

// Store kinds accepted by leaderboard.store.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// TTL is the lifetime of display names cached in Redis; empty falls
		// back to identity.cache_ttl.
		TTL string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Identity struct {
		CacheTTL          string            `yaml:"cache_ttl"`
		MissTTL           string            `yaml:"miss_ttl"`
		PlaceholderName   string            `yaml:"placeholder_name"`
		LookupConcurrency int               `yaml:"lookup_concurrency"`
		Names             map[string]string `yaml:"names"`
	} `yaml:"identity"`
	Leaderboard struct {
		UTCOffset     string `yaml:"utc_offset"`
		Grace         string `yaml:"grace"`
		DedupeTTL     string `yaml:"dedupe_ttl"`
		RetentionDays int    `yaml:"retention_days"`
		Store         string `yaml:"store"`
	} `yaml:"leaderboard"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StoreKind resolves the aggregate backend. An empty value picks postgres
// when a URL is set, then redis, then memory.
func (c Config) StoreKind() string {
	if c.Leaderboard.Store != "" {
		return c.Leaderboard.Store
	}
	switch {
	case c.Postgres.URL != "":
		return StorePostgres
	case c.Redis.Addr != "":
		return StoreRedis
	default:
		return StoreMemory
	}
}

// Validate checks the fields that would otherwise fail late at startup.
func (c Config) Validate() error {
	switch c.StoreKind() {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("leaderboard.store redis requires redis.addr")
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("leaderboard.store postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown leaderboard.store %q", c.Leaderboard.Store)
	}
	if _, err := scoring.ParseOffset(c.Leaderboard.UTCOffset); err != nil {
		return err
	}
	if dedupe, floor := c.DedupeTTL(), MinDedupeTTL(c.Grace()); dedupe < floor {
		return fmt.Errorf("leaderboard.dedupe_ttl %s must be at least %s (one day plus twice the grace)", dedupe, floor)
	}
	if c.Leaderboard.RetentionDays < 0 {
		return fmt.Errorf("leaderboard.retention_days must not be negative")
	}
	if c.Identity.LookupConcurrency < 0 {
		return fmt.Errorf("identity.lookup_concurrency must not be negative")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Grace is the late-arrival window, 10m unless configured.
func (c Config) Grace() time.Duration {
	return TTLDuration(c.Leaderboard.Grace, 10*time.Minute)
}

// DedupeTTL is how long Redis remembers applied event ids, 48h unless configured.
func (c Config) DedupeTTL() time.Duration {
	return TTLDuration(c.Leaderboard.DedupeTTL, 48*time.Hour)
}

// MinDedupeTTL is the shortest dedupe window that outlives a writable day.
// A day accepts writes from grace before its start (future-stamped answers)
// until grace after its end, and a redelivery can arrive at the very end.
func MinDedupeTTL(grace time.Duration) time.Duration {
	return 24*time.Hour + 2*grace
}

// NameTTLs returns the name-cache lifetimes: the in-process ttl, the ttl of
// names kept in Redis, and how long a missing profile is remembered.
func (c Config) NameTTLs() (local, shared, miss time.Duration) {
	local = TTLDuration(c.Identity.CacheTTL, 10*time.Minute)
	shared = TTLDuration(c.Redis.TTL, local)
	miss = TTLDuration(c.Identity.MissTTL, 30*time.Second)
	return local, shared, miss
}

// Retention converts retention_days into a duration, defaulting to a week.
func (c Config) Retention() time.Duration {
	days := c.Leaderboard.RetentionDays
	if days == 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

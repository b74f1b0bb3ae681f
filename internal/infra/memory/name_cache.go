package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"daily-leaderboard-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// DirectoryLoader fetches display names from the identity/profile store.
type DirectoryLoader interface {
	LoadDisplayName(ctx context.Context, userID string) (string, error)
}

// NameCache is an in-process display-name cache for leaderboard reads.
// Resolved names live for ttl; users without a profile are remembered for the
// shorter missTTL so anonymous participants do not hit the profile store on
// every read. Other loader errors are never cached.
type NameCache struct {
	loader  DirectoryLoader
	ttl     time.Duration
	missTTL time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	mu      sync.RWMutex
	entries map[string]nameEntry
}

type nameEntry struct {
	name      string
	missing   bool
	expiresAt time.Time
}

// NewNameCache builds a cache. missTTL <= 0 disables negative caching.
func NewNameCache(loader DirectoryLoader, ttl, missTTL time.Duration) *NameCache {
	return &NameCache{
		loader:  loader,
		ttl:     ttl,
		missTTL: missTTL,
		clock:   time.Now,
		entries: make(map[string]nameEntry),
	}
}

func (c *NameCache) GetDisplayName(ctx context.Context, userID string) (string, error) {
	if entry, ok := c.lookup(userID); ok {
		return entry.resolve()
	}

	result, err, _ := c.sf.Do(userID, func() (interface{}, error) {
		if entry, ok := c.lookup(userID); ok {
			return entry, nil
		}
		name, err := c.loader.LoadDisplayName(ctx, userID)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			entry := nameEntry{missing: true}
			c.store(userID, entry, c.missTTL)
			return entry, nil
		case err != nil:
			return nil, err
		}
		entry := nameEntry{name: name}
		c.store(userID, entry, c.ttl)
		return entry, nil
	})
	if err != nil {
		return "", err
	}
	return result.(nameEntry).resolve()
}

func (c *NameCache) lookup(userID string) (nameEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nameEntry{}, false
	}
	return entry, true
}

func (c *NameCache) store(userID string, entry nameEntry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	entry.expiresAt = c.clock().Add(ttl + spread(userID, ttl))
	c.mu.Lock()
	c.entries[userID] = entry
	c.mu.Unlock()
}

func (e nameEntry) resolve() (string, error) {
	if e.missing {
		return "", domain.ErrUserNotFound
	}
	return e.name, nil
}

// spread derives up to 10% of extra ttl from the user id, so entries loaded
// by the same leaderboard read do not all expire together.
func spread(userID string, ttl time.Duration) time.Duration {
	limit := uint64(ttl / 10)
	if limit == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return time.Duration(h.Sum64() % (limit + 1))
}

// StaticDirectory is a loader backed by a fixed map, configured from
// identity.names when no profile database is available.
type StaticDirectory struct {
	names map[string]string
}

func NewStaticDirectory(names map[string]string) *StaticDirectory {
	return &StaticDirectory{names: names}
}

func (d *StaticDirectory) LoadDisplayName(_ context.Context, userID string) (string, error) {
	if name, ok := d.names[userID]; ok {
		return name, nil
	}
	return "", domain.ErrUserNotFound
}

// GetDisplayName lets the directory serve lookups without a cache in front.
func (d *StaticDirectory) GetDisplayName(ctx context.Context, userID string) (string, error) {
	return d.LoadDisplayName(ctx, userID)
}

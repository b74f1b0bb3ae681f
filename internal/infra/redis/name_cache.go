package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DirectoryLoader fetches display names from the identity/profile store.
type DirectoryLoader interface {
	LoadDisplayName(ctx context.Context, userID string) (string, error)
}

// NameCache caches display names in Redis and falls back to a loader on miss.
// Names are stored as: SET identity:name:{userID} {displayName} EX ttl
type NameCache struct {
	client *redis.Client
	loader DirectoryLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewNameCache(client *redis.Client, loader DirectoryLoader, ttl time.Duration) *NameCache {
	return &NameCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *NameCache) GetDisplayName(ctx context.Context, userID string) (string, error) {
	key := c.nameKey(userID)

	name, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}

	result, err, _ := c.sf.Do(userID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		name, err := c.client.Get(ctx, key).Result()
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, redis.Nil) {
			// cache unavailable: serve straight from the loader
			return c.loader.LoadDisplayName(ctx, userID)
		}

		name, err = c.loader.LoadDisplayName(ctx, userID)
		if err != nil {
			return "", err
		}
		_ = c.client.Set(ctx, key, name, c.ttlWithJitter()).Err()
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops a cached name, e.g. after a profile rename.
func (c *NameCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.nameKey(userID)).Err()
}

func (c *NameCache) nameKey(userID string) string {
	return "identity:name:" + userID
}

func (c *NameCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

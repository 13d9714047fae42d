package api

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"spendlens/internal/warehouse"
)

// rollupTTL bounds how stale the transactions endpoint may serve data.
const rollupTTL = 2 * time.Minute

// rollupCache is a thread-safe TTL cache for per-user transaction rollups.
// A singleflight.Group coalesces concurrent computations for the same user,
// so a burst of requests costs one warehouse round trip.
type rollupCache struct {
	store *gocache.Cache
	group singleflight.Group
}

func newRollupCache() *rollupCache {
	return &rollupCache{
		store: gocache.New(rollupTTL, 5*time.Minute),
	}
}

// get returns the cached rollups for userID, computing them via fetch on miss.
func (c *rollupCache) get(ctx context.Context, userID string, fetch func(context.Context) ([]warehouse.TransactionRollup, error)) ([]warehouse.TransactionRollup, error) {
	if v, ok := c.store.Get(userID); ok {
		return v.([]warehouse.TransactionRollup), nil
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		// Re-check: another flight may have filled the cache while we queued.
		if v, ok := c.store.Get(userID); ok {
			return v.([]warehouse.TransactionRollup), nil
		}
		rollups, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store.Set(userID, rollups, gocache.DefaultExpiration)
		return rollups, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]warehouse.TransactionRollup), nil
}

// invalidate drops a user's cached rollups after a write touches their items.
func (c *rollupCache) invalidate(userID string) {
	c.store.Delete(userID)
}

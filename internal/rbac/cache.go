package rbac

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/shard"
)

const DefaultCacheTTL = 15 * time.Minute

// Cache memoises permission decisions. Invalidation is wholesale: it bumps
// an epoch and every entry written under an older epoch becomes invisible.
// Set is a no-op when epoch is no longer current, so a decision computed
// across an invalidation is never stored.
type Cache interface {
	Get(ctx context.Context, userID int64, code string) (allowed bool, ok bool)
	Set(ctx context.Context, userID int64, code string, allowed bool, epoch uint64)
	Epoch(ctx context.Context) uint64
	InvalidateAll(ctx context.Context)
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
	epoch     uint64
}

// MemoryCache is a process-local Cache. Expired entries are dropped when
// read; there is no background sweep.
type MemoryCache struct {
	entries *shard.Map[cacheEntry]
	epoch   atomic.Uint64
	ttl     time.Duration
	clock   clock.Clock
}

func NewMemoryCache(ttl time.Duration, clk clock.Clock) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryCache{
		entries: shard.New[cacheEntry](),
		ttl:     ttl,
		clock:   clk,
	}
}

func cacheKey(userID int64, code string) string {
	return strconv.FormatInt(userID, 10) + "|" + code
}

func (c *MemoryCache) Get(_ context.Context, userID int64, code string) (bool, bool) {
	now := c.clock.Now()
	current := c.epoch.Load()

	var hit, allowed bool
	c.entries.Update(cacheKey(userID, code), func(e cacheEntry, ok bool) (cacheEntry, bool) {
		if !ok {
			return e, false
		}
		if e.epoch != current || !now.Before(e.expiresAt) {
			return e, false
		}
		hit, allowed = true, e.allowed
		return e, true
	})
	return allowed, hit
}

func (c *MemoryCache) Set(_ context.Context, userID int64, code string, allowed bool, epoch uint64) {
	if epoch != c.epoch.Load() {
		return
	}
	entry := cacheEntry{
		allowed:   allowed,
		expiresAt: c.clock.Now().Add(c.ttl),
		epoch:     epoch,
	}
	c.entries.Store(cacheKey(userID, code), entry)
}

func (c *MemoryCache) Epoch(context.Context) uint64 {
	return c.epoch.Load()
}

func (c *MemoryCache) InvalidateAll(context.Context) {
	c.epoch.Add(1)
	c.entries.Clear()
}

func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Package redis shares permission decisions across service instances.
package redis

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/frahmantamala/rbac-service/internal/core/cache"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

// PermissionCache keeps decisions under epoch-scoped keys:
//
//	{prefix}:perm:{epoch}:{userID}:{code} -> "1" | "0"
//
// InvalidateAll increments {prefix}:perm:epoch, which orphans every older key
// until its TTL runs out. Redis failures degrade to cache misses. When the
// increment itself fails, reads and writes stay disabled for one TTL so no
// entry from before the lost invalidation can be served.
type PermissionCache struct {
	client        *goredis.Client
	prefix        string
	ttl           time.Duration
	clock         clock.Clock
	degradedUntil atomic.Int64
	logger        *slog.Logger
}

var _ rbac.Cache = (*PermissionCache)(nil)

func NewPermissionCache(client *goredis.Client, prefix string, ttl time.Duration, clk clock.Clock, logger *slog.Logger) *PermissionCache {
	if ttl <= 0 {
		ttl = rbac.DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &PermissionCache{
		client: client,
		prefix: cache.Key(prefix, "perm"),
		ttl:    ttl,
		clock:  clk,
		logger: logger,
	}
}

func (c *PermissionCache) epochKey() string {
	return cache.Key(c.prefix, "epoch")
}

func (c *PermissionCache) entryKey(epoch uint64, userID int64, code string) string {
	return cache.Key(c.prefix, strconv.FormatUint(epoch, 10), strconv.FormatInt(userID, 10), code)
}

func (c *PermissionCache) degraded() bool {
	return c.clock.Now().UnixNano() < c.degradedUntil.Load()
}

func (c *PermissionCache) readEpoch(ctx context.Context) (uint64, error) {
	v, err := c.client.Get(ctx, c.epochKey()).Uint64()
	if err == goredis.Nil {
		return 0, nil
	}
	return v, err
}

// Epoch returns the current epoch, or 0 when it cannot be read. Set re-reads
// the epoch before writing, so a 0 from a failed read never stores anything
// once the real epoch has moved on.
func (c *PermissionCache) Epoch(ctx context.Context) uint64 {
	v, err := c.readEpoch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "permission cache epoch read failed", "error", err)
	}
	return v
}

func (c *PermissionCache) Get(ctx context.Context, userID int64, code string) (bool, bool) {
	if c.degraded() {
		return false, false
	}
	epoch, err := c.readEpoch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "permission cache epoch read failed", "error", err)
		return false, false
	}
	v, err := c.client.Get(ctx, c.entryKey(epoch, userID, code)).Result()
	if err != nil {
		if err != goredis.Nil {
			c.logger.WarnContext(ctx, "permission cache read failed", "error", err)
		}
		return false, false
	}
	return v == "1", true
}

// Set stores the decision only while epoch is still current. The check and
// the write run in one WATCH transaction on the epoch key.
func (c *PermissionCache) Set(ctx context.Context, userID int64, code string, allowed bool, epoch uint64) {
	if c.degraded() {
		return
	}
	value := "0"
	if allowed {
		value = "1"
	}
	err := c.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, c.epochKey()).Uint64()
		if err != nil && err != goredis.Nil {
			return err
		}
		if current != epoch {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, c.entryKey(epoch, userID, code), value, c.ttl)
			return nil
		})
		return err
	}, c.epochKey())
	if err != nil && err != goredis.TxFailedErr {
		c.logger.WarnContext(ctx, "permission cache write failed", "error", err)
	}
}

func (c *PermissionCache) InvalidateAll(ctx context.Context) {
	if err := c.client.Incr(ctx, c.epochKey()).Err(); err != nil {
		until := c.clock.Now().Add(c.ttl)
		c.degradedUntil.Store(until.UnixNano())
		c.logger.ErrorContext(ctx, "permission cache invalidation failed, bypassing cache",
			"error", err, "until", until)
	}
}

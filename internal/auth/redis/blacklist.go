// Package redis keeps revoked tokens in Redis so every instance rejects them.
package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/core/cache"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
)

// Blacklist layout:
//
//	{prefix}:blacklist:token:{sha256} -> "1"        (TTL = token lifetime left)
//	{prefix}:blacklist:user:{userID}  -> unix ms    (TTL = longest refresh lifetime)
type Blacklist struct {
	client *goredis.Client
	prefix string
	clock  clock.Clock
}

var _ auth.Blacklist = (*Blacklist)(nil)

func NewBlacklist(client *goredis.Client, prefix string, clk clock.Clock) *Blacklist {
	if clk == nil {
		clk = clock.System()
	}
	return &Blacklist{
		client: client,
		prefix: cache.Key(prefix, "blacklist"),
		clock:  clk,
	}
}

func (b *Blacklist) tokenKey(key string) string {
	return cache.Key(b.prefix, "token", key)
}

func (b *Blacklist) userKey(userID int64) string {
	return cache.Key(b.prefix, "user", strconv.FormatInt(userID, 10))
}

// Add uses SETNX so concurrent refreshes of one token have a single winner.
func (b *Blacklist) Add(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(b.clock.Now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return b.client.SetNX(ctx, b.tokenKey(key), "1", ttl).Result()
}

func (b *Blacklist) Contains(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.tokenKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// raiseCutoff stores ARGV[1] unless a later cutoff is already present.
var raiseCutoff = goredis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]))
local cutoff = tonumber(ARGV[1])
if current and current >= cutoff then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RevokeUser records cutoff for userID. An earlier cutoff never replaces a
// later one.
func (b *Blacklist) RevokeUser(ctx context.Context, userID int64, cutoff time.Time, ttl time.Duration) error {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return raiseCutoff.Run(ctx, b.client, []string{b.userKey(userID)}, cutoff.UnixMilli(), ttl.Milliseconds()).Err()
}

func (b *Blacklist) UserCutoff(ctx context.Context, userID int64) (time.Time, bool, error) {
	ms, err := b.client.Get(ctx, b.userKey(userID)).Int64()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

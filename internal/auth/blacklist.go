package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/frahmantamala/rbac-service/internal/core/clock"
)

const blacklistCleanupInterval = 10 * time.Minute

// MemoryBlacklist is a process-local Blacklist backed by go-cache. Entries
// disappear once the token they cover would have expired anyway.
type MemoryBlacklist struct {
	tokens  *gocache.Cache
	cutoffs *gocache.Cache
	clock   clock.Clock

	cutoffMu sync.Mutex
}

var _ Blacklist = (*MemoryBlacklist)(nil)

func NewMemoryBlacklist(clk clock.Clock) *MemoryBlacklist {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryBlacklist{
		tokens:  gocache.New(gocache.NoExpiration, blacklistCleanupInterval),
		cutoffs: gocache.New(gocache.NoExpiration, blacklistCleanupInterval),
		clock:   clk,
	}
}

func (b *MemoryBlacklist) ttlUntil(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(b.clock.Now())
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (b *MemoryBlacklist) Add(_ context.Context, key string, expiresAt time.Time) (bool, error) {
	if err := b.tokens.Add(key, struct{}{}, b.ttlUntil(expiresAt)); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, key string) (bool, error) {
	_, found := b.tokens.Get(key)
	return found, nil
}

func (b *MemoryBlacklist) RevokeUser(_ context.Context, userID int64, cutoff time.Time, ttl time.Duration) error {
	key := strconv.FormatInt(userID, 10)
	b.cutoffMu.Lock()
	defer b.cutoffMu.Unlock()
	if current, found := b.cutoffs.Get(key); found && current.(time.Time).After(cutoff) {
		return nil
	}
	b.cutoffs.Set(key, cutoff, ttl)
	return nil
}

func (b *MemoryBlacklist) UserCutoff(_ context.Context, userID int64) (time.Time, bool, error) {
	v, found := b.cutoffs.Get(strconv.FormatInt(userID, 10))
	if !found {
		return time.Time{}, false, nil
	}
	return v.(time.Time), true, nil
}

func (b *MemoryBlacklist) Len() int {
	return b.tokens.ItemCount()
}

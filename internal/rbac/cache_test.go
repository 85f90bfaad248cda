package rbac_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

var _ = Describe("MemoryCache", func() {
	var (
		ctx   context.Context
		clk   *clock.Fake
		cache *rbac.MemoryCache
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(epoch)
		cache = rbac.NewMemoryCache(time.Minute, clk)
	})

	It("misses on an empty cache", func() {
		_, ok := cache.Get(ctx, 1, "user:view")
		Expect(ok).To(BeFalse())
	})

	It("remembers allow and deny decisions", func() {
		e := cache.Epoch(ctx)
		cache.Set(ctx, 1, "user:view", true, e)
		cache.Set(ctx, 1, "user:edit", false, e)

		allowed, ok := cache.Get(ctx, 1, "user:view")
		Expect(ok).To(BeTrue())
		Expect(allowed).To(BeTrue())

		allowed, ok = cache.Get(ctx, 1, "user:edit")
		Expect(ok).To(BeTrue())
		Expect(allowed).To(BeFalse())

		_, ok = cache.Get(ctx, 2, "user:view")
		Expect(ok).To(BeFalse())
	})

	It("expires entries after the ttl", func() {
		cache.Set(ctx, 1, "user:view", true, cache.Epoch(ctx))

		clk.Advance(59 * time.Second)
		_, ok := cache.Get(ctx, 1, "user:view")
		Expect(ok).To(BeTrue())

		clk.Advance(time.Second)
		_, ok = cache.Get(ctx, 1, "user:view")
		Expect(ok).To(BeFalse())
		Expect(cache.Len()).To(BeZero())
	})

	It("forgets everything on invalidation", func() {
		cache.Set(ctx, 1, "user:view", true, cache.Epoch(ctx))
		cache.Set(ctx, 2, "user:view", true, cache.Epoch(ctx))

		cache.InvalidateAll(ctx)

		_, ok := cache.Get(ctx, 1, "user:view")
		Expect(ok).To(BeFalse())
		Expect(cache.Len()).To(BeZero())
	})

	It("refuses writes computed before an invalidation", func() {
		stale := cache.Epoch(ctx)
		cache.InvalidateAll(ctx)

		cache.Set(ctx, 1, "user:view", true, stale)

		_, ok := cache.Get(ctx, 1, "user:view")
		Expect(ok).To(BeFalse())
	})

	It("falls back to the default ttl", func() {
		c := rbac.NewMemoryCache(0, clk)
		c.Set(ctx, 1, "user:view", true, c.Epoch(ctx))

		clk.Advance(rbac.DefaultCacheTTL - time.Second)
		_, ok := c.Get(ctx, 1, "user:view")
		Expect(ok).To(BeTrue())
	})
})

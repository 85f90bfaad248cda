package cache_test

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/cache"
)

var _ = Describe("NewRedisClient", func() {
	var mr *miniredis.Miniredis

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)
	})

	It("connects to a reachable server", func() {
		client, err := cache.NewRedisClient(context.Background(), internal.RedisConfig{Addr: mr.Addr()})
		Expect(err).NotTo(HaveOccurred())
		defer client.Close()

		Expect(client.Set(context.Background(), "k", "v", 0).Err()).To(Succeed())
		Expect(mr.Exists("k")).To(BeTrue())
	})

	It("fails fast when the server is unreachable", func() {
		addr := mr.Addr()
		mr.Close()

		_, err := cache.NewRedisClient(context.Background(), internal.RedisConfig{Addr: addr})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Key", func() {
	It("joins parts under the prefix", func() {
		Expect(cache.Key("rbac", "perm", "1")).To(Equal("rbac:perm:1"))
		Expect(cache.Key("", "perm", "1")).To(Equal("perm:1"))
	})
})

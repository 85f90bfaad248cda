package rbac_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/rbac-service/internal"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

var _ = Describe("Engine", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture()
	})

	AfterEach(func() {
		f.close()
	})

	Describe("CheckPermission", func() {
		It("rejects malformed codes", func() {
			for _, code := range []string{"", "user", "user:", ":view", "user:*", "*:*", "user:view:all", "1user:view"} {
				_, err := f.engine.CheckPermission(f.ctx, 1, code)
				Expect(err).To(HaveOccurred(), code)
				appErr, ok := errors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(errors.ErrCodeInvalidPermissionCode))
			}
		})

		It("normalises case and whitespace before checking", func() {
			alice := f.user("alice")
			f.grantRole(alice, "viewer", "user:view")

			Expect(f.allowed(alice, "  USER:View ")).To(BeTrue())
		})

		It("denies unknown and non-positive users without error", func() {
			Expect(f.allowed(0, "user:view")).To(BeFalse())
			Expect(f.allowed(-5, "user:view")).To(BeFalse())
			Expect(f.allowed(999, "user:view")).To(BeFalse())
		})

		It("allows a direct match only", func() {
			alice := f.user("alice")
			f.grantRole(alice, "viewer", "user:view")

			Expect(f.allowed(alice, "user:view")).To(BeTrue())
			Expect(f.allowed(alice, "user:edit")).To(BeFalse())
			Expect(f.allowed(alice, "report:view")).To(BeFalse())
		})

		It("expands an action wildcard", func() {
			alice := f.user("alice")
			f.grantRole(alice, "user_manager", "user:*")

			Expect(f.allowed(alice, "user:view")).To(BeTrue())
			Expect(f.allowed(alice, "user:delete")).To(BeTrue())
			Expect(f.allowed(alice, "report:view")).To(BeFalse())
		})

		It("expands a resource wildcard", func() {
			alice := f.user("alice")
			f.grantRole(alice, "auditor", "*:view")

			Expect(f.allowed(alice, "report:view")).To(BeTrue())
			Expect(f.allowed(alice, "report:edit")).To(BeFalse())
		})

		It("expands a full wildcard", func() {
			alice := f.user("alice")
			f.grantRole(alice, "root", "*:*")

			Expect(f.allowed(alice, "anything:goes")).To(BeTrue())
		})

		It("lets the admin role through without any permission rows", func() {
			alice := f.user("alice")
			f.grantRole(alice, rbac.AdminRoleCode)

			Expect(f.allowed(alice, "billing:refund")).To(BeTrue())
			Expect(f.allowed(alice, "nothing_defined:here")).To(BeTrue())
		})

		It("lets an admin scoped permission through", func() {
			alice := f.user("alice")
			f.grantRole(alice, "ops", "admin:access")

			Expect(f.allowed(alice, "billing:refund")).To(BeTrue())
		})

		It("ignores disabled roles", func() {
			alice := f.user("alice")
			role := f.grantRole(alice, "viewer", "user:view")

			disabled := rbac.RoleDisabled
			_, err := f.service.UpdateRole(f.ctx, role.ID, rbac.UpdateRoleDTO{Status: &disabled})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.allowed(alice, "user:view")).To(BeFalse())
		})

		It("ignores revoked grants", func() {
			alice := f.user("alice")
			role := f.grantRole(alice, "viewer", "user:view")
			perm, err := f.repo.GetPermissionByCode(f.ctx, "user:view")
			Expect(err).NotTo(HaveOccurred())

			_, err = f.service.RevokePermission(f.ctx, role.ID, perm.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.allowed(alice, "user:view")).To(BeFalse())
		})

		It("denies everything to a disabled user", func() {
			alice := f.user("alice")
			f.grantRole(alice, rbac.AdminRoleCode)
			f.disableUser(alice)
			f.engine.Invalidate(f.ctx)

			Expect(f.allowed(alice, "user:view")).To(BeFalse())
		})
	})

	Describe("caching", func() {
		It("serves repeated checks from the cache until it expires", func() {
			alice := f.user("alice")
			role := f.grantRole(alice, "viewer", "user:view")

			Expect(f.allowed(alice, "user:view")).To(BeTrue())
			Expect(f.cache.Len()).To(Equal(1))

			// Bypass the service so nothing invalidates.
			Expect(f.db.Model(&rbacDatamodel.UserRole{}).
				Where("user_id = ? AND role_id = ?", alice, role.ID).
				Update("status", rbacDatamodel.StatusOff).Error).To(Succeed())
			Expect(f.allowed(alice, "user:view")).To(BeTrue())

			f.clock.Advance(rbac.DefaultCacheTTL + time.Second)
			Expect(f.allowed(alice, "user:view")).To(BeFalse())
		})

		It("drops cached decisions when an assignment is revoked", func() {
			alice := f.user("alice")
			role := f.grantRole(alice, "viewer", "user:view")
			Expect(f.allowed(alice, "user:view")).To(BeTrue())

			revoked, err := f.service.RevokeRole(f.ctx, alice, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked).To(BeTrue())

			Expect(f.allowed(alice, "user:view")).To(BeFalse())
		})

		It("does not leak a cached denial after a new assignment", func() {
			admin := f.role(rbac.AdminRoleCode)
			manage := f.permission("user:manage")
			_, err := f.service.GrantPermission(f.ctx, admin.ID, manage.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			alice := f.user("alice")
			f.grantRole(alice, "viewer", "user:view")

			Expect(f.allowed(alice, "user:view")).To(BeTrue())
			Expect(f.allowed(alice, "user:manage")).To(BeFalse())

			_, err = f.service.AssignRole(f.ctx, alice, admin.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.allowed(alice, "user:manage")).To(BeTrue())
		})

		It("does not hand a check started after an assignment the result of one started before it", func() {
			alice := f.user("alice")
			viewer := f.role("viewer")
			perm := f.permission("user:view")
			_, err := f.service.GrantPermission(f.ctx, viewer.ID, perm.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			repo := &stallingRepository{RepositoryAPI: f.repo, entered: make(chan struct{}), release: make(chan struct{})}
			engine := rbac.NewEngine(rbac.NewResolver(repo), f.cache, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

			first := make(chan bool, 1)
			go func() {
				defer GinkgoRecover()
				ok, err := engine.CheckPermission(f.ctx, alice, "user:view")
				Expect(err).NotTo(HaveOccurred())
				first <- ok
			}()
			Eventually(repo.entered).Should(BeClosed())

			_, err = f.service.AssignRole(f.ctx, alice, viewer.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			second := make(chan bool, 1)
			go func() {
				defer GinkgoRecover()
				ok, err := engine.CheckPermission(f.ctx, alice, "user:view")
				Expect(err).NotTo(HaveOccurred())
				second <- ok
			}()
			Eventually(second).Should(Receive(BeTrue()))

			close(repo.release)
			Eventually(first).Should(Receive(BeFalse()))

			ok, err := engine.CheckPermission(f.ctx, alice, "user:view")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Authorize", func() {
		It("returns a forbidden error on denial", func() {
			alice := f.user("alice")
			f.grantRole(alice, "viewer", "user:view")

			Expect(f.engine.Authorize(f.ctx, alice, "user:view")).To(Succeed())
			err := f.engine.Authorize(f.ctx, alice, "user:delete")
			Expect(err).To(MatchError(errors.ErrPermissionDenied))
		})
	})

	Describe("HasAnyPermission", func() {
		It("passes when one of the codes is held", func() {
			alice := f.user("alice")
			f.grantRole(alice, "viewer", "user:view")

			ok, err := f.engine.HasAnyPermission(f.ctx, alice, "user:delete", "user:view")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = f.engine.HasAnyPermission(f.ctx, alice, "user:delete", "role:view")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})

// stallingRepository parks the first RolesForUser call after it has read the
// store, until release is closed.
type stallingRepository struct {
	rbac.RepositoryAPI
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *stallingRepository) RolesForUser(ctx context.Context, userID int64, activeOnly bool) ([]*rbacDatamodel.Role, error) {
	roles, err := r.RepositoryAPI.RolesForUser(ctx, userID, activeOnly)
	stall := false
	r.once.Do(func() { stall = true })
	if stall {
		close(r.entered)
		<-r.release
	}
	return roles, err
}

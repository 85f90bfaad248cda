package rbac_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

var _ = Describe("Queries", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture()
	})

	AfterEach(func() {
		f.close()
	})

	Describe("search", func() {
		It("finds roles by name or code", func() {
			f.role("viewer")
			f.role("editor")
			f.role("auditor")

			roles, err := f.service.SearchRoles(f.ctx, rbac.SearchQuery{Keyword: " Tor "})
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(2))

			roles, err = f.service.SearchRoles(f.ctx, rbac.SearchQuery{Keyword: "tor", Limit: 1, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(1))
			Expect(roles[0].RoleCode).To(Equal("auditor"))
		})

		It("finds permissions by resource or action", func() {
			f.permission("report:view")
			f.permission("report:export")
			f.permission("user:view")

			perms, err := f.service.SearchPermissions(f.ctx, rbac.SearchQuery{Keyword: "report"})
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(2))

			perms, err = f.service.SearchPermissions(f.ctx, rbac.SearchQuery{Keyword: "view"})
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(2))
		})

		It("requires a keyword and bounds the page", func() {
			_, err := f.service.SearchRoles(f.ctx, rbac.SearchQuery{Keyword: "  "})
			Expect(fieldCode(err)).To(Equal(string(errors.ErrCodeValidationFailed)))

			_, err = f.service.SearchRoles(f.ctx, rbac.SearchQuery{Keyword: "a", Limit: rbac.MaxSearchLimit + 1})
			Expect(err).To(HaveOccurred())

			_, err = f.service.SearchPermissions(f.ctx, rbac.SearchQuery{Keyword: "a", Offset: -1})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("types", func() {
		It("sorts resources by name and actions by common verb order", func() {
			for _, code := range []string{"user:delete", "report:export", "report:view", "invoice:create", "invoice:archive", "audit:approve"} {
				f.permission(code)
			}

			resources, err := f.service.ResourceTypes(f.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(Equal([]string{"audit", "invoice", "report", "user"}))

			actions, err := f.service.ActionTypes(f.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(Equal([]string{"view", "create", "delete", "export", "approve", "archive"}))
		})

		It("returns empty lists without permissions", func() {
			resources, err := f.service.ResourceTypes(f.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(BeEmpty())
		})
	})

	Describe("statistics", func() {
		It("counts roles by status with their active links", func() {
			alice := f.user("alice")
			f.grantRole(alice, "viewer", "report:view", "report:export")
			editor := f.role("editor")
			disabled := rbac.RoleDisabled
			_, err := f.service.UpdateRole(f.ctx, editor.ID, rbac.UpdateRoleDTO{Status: &disabled})
			Expect(err).NotTo(HaveOccurred())

			stats, err := f.service.RoleStatistics(f.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalRoles).To(Equal(2))
			Expect(stats.EnabledRoles).To(Equal(1))
			Expect(stats.DisabledRoles).To(Equal(1))
			Expect(stats.Roles[0].RoleCode).To(Equal("viewer"))
			Expect(stats.Roles[0].PermissionCount).To(BeEquivalentTo(2))
			Expect(stats.Roles[0].UserCount).To(BeEquivalentTo(1))
		})

		It("groups permissions by resource and action", func() {
			for _, code := range []string{"report:export", "report:view", "user:view"} {
				f.permission(code)
			}

			stats, err := f.service.PermissionStatistics(f.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalPermissions).To(Equal(3))
			Expect(stats.ResourceCount).To(Equal(2))
			Expect(stats.ActionCount).To(Equal(2))
			Expect(stats.Resources["report"]).To(Equal(rbac.ResourceUsage{PermissionCount: 2, Actions: []string{"view", "export"}}))
			Expect(stats.Actions["view"]).To(Equal(rbac.ActionUsage{PermissionCount: 2, Resources: []string{"report", "user"}}))
		})
	})
})

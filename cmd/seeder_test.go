package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/database"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport/rest"
)

func newTestDependencies() *Dependencies {
	cfg := internal.DefaultConfig()
	cfg.Environment = "test"
	cfg.Security.BCryptCost = bcrypt.MinCost
	cfg.Observability.Metrics.Enabled = false

	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	db, err := database.OpenInMemory(clk.Now)
	Expect(err).NotTo(HaveOccurred())

	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &Dependencies{
		Config: &cfg,
		DB:     db,
		Logger: lg,
		Clock:  clk,
		Bus:    events.NewEventBus(lg),
	}
	Expect(wireServices(deps)).To(Succeed())
	DeferCleanup(deps.Close)
	return deps
}

var _ = Describe("runSeed", func() {
	var (
		ctx  context.Context
		deps *Dependencies
	)

	BeforeEach(func() {
		ctx = context.Background()
		deps = newTestDependencies()
	})

	seededAdmin := func() int64 {
		u, err := deps.Users.FindByLogin(ctx, defaultAdminUsername)
		Expect(err).NotTo(HaveOccurred())
		Expect(u).NotTo(BeNil())
		return u.ID
	}

	It("creates the admin and viewer roles with their permissions", func() {
		Expect(runSeed(ctx, deps, false)).To(Succeed())

		admin, err := deps.RBAC.GetRoleByCode(ctx, rbac.AdminRoleCode)
		Expect(err).NotTo(HaveOccurred())
		perms, err := deps.RBAC.PermissionsForRole(ctx, admin.ID, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(perms).To(HaveLen(len(rest.ManagementPermissions)))

		viewer, err := deps.RBAC.GetRoleByCode(ctx, viewerRoleCode)
		Expect(err).NotTo(HaveOccurred())
		perms, err = deps.RBAC.PermissionsForRole(ctx, viewer.ID, true)
		Expect(err).NotTo(HaveOccurred())
		codes := make([]string, 0, len(perms))
		for _, p := range perms {
			codes = append(codes, p.PermissionCode)
		}
		Expect(codes).To(ConsistOf(rest.PermUserView, rest.PermRoleView, rest.PermPermissionView))
	})

	It("gives the seeded admin account every management permission", func() {
		Expect(runSeed(ctx, deps, false)).To(Succeed())
		id := seededAdmin()

		for _, code := range rest.ManagementPermissions {
			allowed, err := deps.Engine.CheckPermission(ctx, id, code)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue(), code)
		}
	})

	It("can be run repeatedly without duplicating rows", func() {
		Expect(runSeed(ctx, deps, false)).To(Succeed())
		Expect(runSeed(ctx, deps, false)).To(Succeed())

		roles, err := deps.RBAC.ListRoles(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(roles).To(HaveLen(2))

		admin, err := deps.RBAC.GetRoleByCode(ctx, rbac.AdminRoleCode)
		Expect(err).NotTo(HaveOccurred())
		users, err := deps.RBAC.UsersForRole(ctx, admin.ID, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(1))
	})

	It("rebuilds assignments and grants after clearing them", func() {
		Expect(runSeed(ctx, deps, false)).To(Succeed())
		id := seededAdmin()

		Expect(clearLinks(ctx, deps.DB)).To(Succeed())
		deps.Engine.Invalidate(ctx)
		allowed, err := deps.Engine.CheckPermission(ctx, id, rest.PermRoleDelete)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())

		Expect(runSeed(ctx, deps, true)).To(Succeed())
		allowed, err = deps.Engine.CheckPermission(ctx, id, rest.PermRoleDelete)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
	})

	It("takes the admin account from the environment", func() {
		GinkgoT().Setenv("SEED_ADMIN_USERNAME", "root")
		GinkgoT().Setenv("SEED_ADMIN_EMAIL", "root@example.com")

		Expect(runSeed(ctx, deps, false)).To(Succeed())
		u, err := deps.Users.FindByLogin(ctx, "root@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).NotTo(BeNil())
		Expect(u.Username).To(Equal("root"))
	})
})

var _ = Describe("setupRoutes", func() {
	It("serves the seeded admin through login and a guarded route", func() {
		ctx := context.Background()
		deps := newTestDependencies()
		Expect(runSeed(ctx, deps, false)).To(Succeed())

		router := chi.NewRouter()
		setupRoutes(router, deps)

		rec := httptest.NewRecorder()
		body := `{"login":"` + defaultAdminUsername + `","password":"` + defaultAdminPassword + `"}`
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body)))
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

		var login struct {
			AccessToken string `json:"access_token"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &login)).To(Succeed())
		Expect(login.AccessToken).NotTo(BeEmpty())

		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("loadConfig", func() {
	It("reads and validates config.yml", func() {
		GinkgoT().Setenv("APP_ENV", "")
		GinkgoT().Setenv("DOCKER_ENV", "")

		cfg, err := loadConfig("..")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.Driver).To(Equal("postgres"))
		Expect(cfg.Authorization.CacheBackend).To(Equal("memory"))
		Expect(cfg.Security.AccessTokenDuration).To(Equal(15 * time.Minute))
		Expect(cfg.Observability.Logging.Format).To(Equal("text"))
	})
})

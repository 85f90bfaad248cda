package user_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/database"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/user"
	"github.com/frahmantamala/rbac-service/internal/user/postgres"
)

type staticAccess struct {
	roles []string
	perms []string
}

func (s staticAccess) RoleCodes(context.Context, int64) ([]string, error)       { return s.roles, nil }
func (s staticAccess) PermissionCodes(context.Context, int64) ([]string, error) { return s.perms, nil }

var _ = Describe("Handler", func() {
	var (
		db     *gorm.DB
		svc    *user.Service
		router chi.Router
		caller int64
	)

	BeforeEach(func() {
		clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
		var err error
		db, err = database.OpenInMemory(clk.Now)
		Expect(err).NotTo(HaveOccurred())
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc = user.NewService(postgres.NewUserRepository(db), database.NewTxManager(db), plainHasher{}, nil, nil, clk, logger)

		me, err := svc.CreateUser(context.Background(), user.CreateUserDTO{Username: "operator", Email: "op@example.com", Password: strongPassword})
		Expect(err).NotTo(HaveOccurred())
		caller = me.ID

		h := user.NewHandler(transport.NewBaseHandler(logger), svc, staticAccess{roles: []string{"viewer"}, perms: []string{"user:view"}})
		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if caller > 0 {
					r = r.WithContext(internal.ContextWithUserID(r.Context(), caller))
				}
				next.ServeHTTP(w, r)
			})
		})
		router.Get("/users/me", h.GetCurrentUser)
		router.Get("/users/me/permissions", h.GetCurrentPermissions)
		router.Put("/users/me/password", h.ChangeOwnPassword)
		router.Get("/users", h.ListUsers)
		router.Post("/users", h.CreateUser)
		router.Post("/users/batch", h.CreateUsers)
		router.Get("/users/statistics", h.Statistics)
		router.Patch("/users/{id}/status", h.UpdateStatus)
	})

	AfterEach(func() {
		Expect(database.Close(db)).To(Succeed())
	})

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
		return rec
	}

	It("returns the caller's profile without the password hash", func() {
		rec := do(http.MethodGet, "/users/me", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("plain:"))

		var profile user.ProfileResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &profile)).To(Succeed())
		Expect(profile.User.Username).To(Equal("operator"))
		Expect(profile.Roles).To(ConsistOf("viewer"))
		Expect(profile.Permissions).To(ConsistOf("user:view"))
	})

	It("rejects anonymous callers", func() {
		caller = 0
		rec := do(http.MethodGet, "/users/me/permissions", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("creates users and lists them", func() {
		rec := do(http.MethodPost, "/users", map[string]string{"username": "alice", "email": "alice@example.com", "password": strongPassword})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec = do(http.MethodGet, "/users?limit=1&offset=1", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var list user.ListUsersResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(Succeed())
		Expect(list.Total).To(Equal(int64(2)))
		Expect(list.Users).To(HaveLen(1))
		Expect(list.Users[0].Username).To(Equal("alice"))

		rec = do(http.MethodGet, "/users?limit=abc", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("creates users in a batch and counts them", func() {
		rec := do(http.MethodPost, "/users/batch", map[string][]map[string]string{"users": {
			{"username": "alice", "email": "alice@example.com", "password": strongPassword},
			{"username": "bob", "email": "bob@example.com", "password": strongPassword},
		}})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var created user.UsersResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		Expect(created.Users).To(HaveLen(2))

		rec = do(http.MethodPost, "/users/batch", map[string][]map[string]string{"users": {}})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = do(http.MethodGet, "/users/statistics", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var stats user.Statistics
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats).To(Equal(user.Statistics{TotalUsers: 3, EnabledUsers: 3}))
	})

	It("does not let callers disable themselves", func() {
		rec := do(http.MethodPatch, "/users/"+strconv.FormatInt(caller, 10)+"/status", map[string]int{"status": 0})
		Expect(rec.Code).To(Equal(http.StatusConflict))
	})

	It("disables another user", func() {
		alice, err := svc.CreateUser(context.Background(), user.CreateUserDTO{Username: "alice", Email: "alice@example.com", Password: strongPassword})
		Expect(err).NotTo(HaveOccurred())

		rec := do(http.MethodPatch, "/users/"+strconv.FormatInt(alice.ID, 10)+"/status", map[string]int{"status": 0})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var u user.User
		Expect(json.Unmarshal(rec.Body.Bytes(), &u)).To(Succeed())
		Expect(u.Status).To(Equal(user.StatusDisabled))
	})

	It("changes the caller's password", func() {
		rec := do(http.MethodPut, "/users/me/password", map[string]string{"old_password": strongPassword, "new_password": "N3w#Password"})
		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})
})

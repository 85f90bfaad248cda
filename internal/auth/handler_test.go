package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/transport/middleware"
	"github.com/frahmantamala/rbac-service/internal/user"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			RemainingMinutes int `json:"remaining_minutes"`
		} `json:"details"`
	} `json:"error"`
}

var _ = Describe("Handler", func() {
	var (
		f      *fixture
		alice  *user.User
		router chi.Router
	)

	BeforeEach(func() {
		f = newFixture()
		alice = f.user("alice")

		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		base := transport.NewBaseHandler(lg)
		h := auth.NewHandler(base, f.service)
		authz := auth.NewRBACAuthorization(f.engine, lg)

		router = chi.NewRouter()
		router.Post("/auth/login", h.Login)
		router.Post("/auth/refresh", h.RefreshToken)
		router.Post("/auth/logout", h.Logout)
		router.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(f.service, base))
			r.Post("/auth/logout-all", h.LogoutAll)
			r.With(authz.Middleware("user:update")).Post("/users/{id}/revoke-tokens", h.RevokeUserTokens)
			r.With(authz.RequireAdmin()).Get("/admin", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})

	AfterEach(func() {
		f.close()
	})

	do := func(method, path, token string, body interface{}) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decodeError := func(rec *httptest.ResponseRecorder) errorBody {
		var body errorBody
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	login := func() auth.LoginResult {
		rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"login": "alice", "password": testPassword})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var res auth.LoginResult
		Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
		return res
	}

	Describe("POST /auth/login", func() {
		It("returns the token pair and the user", func() {
			res := login()
			Expect(res.TokenType).To(Equal("Bearer"))
			Expect(res.AccessToken).NotTo(BeEmpty())
			Expect(res.User.Username).To(Equal("alice"))
			Expect(res.User.Roles).To(BeEmpty())
		})

		It("answers 401 INVALID_CREDENTIALS for a wrong password", func() {
			rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"login": "alice", "password": "nope"})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeError(rec).Error.Code).To(Equal("INVALID_CREDENTIALS"))
		})

		It("reports the remaining lockout", func() {
			for i := 0; i < 3; i++ {
				do(http.MethodPost, "/auth/login", "", map[string]interface{}{"login": "alice", "password": "nope"})
			}
			rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"login": "alice", "password": testPassword})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			body := decodeError(rec)
			Expect(body.Error.Code).To(Equal("ACCOUNT_LOCKED"))
			Expect(body.Error.Details.RemainingMinutes).To(Equal(30))
		})

		It("answers 400 for a missing password", func() {
			rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"login": "alice"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /auth/refresh", func() {
		It("rotates the refresh token once", func() {
			res := login()
			rec := do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": res.RefreshToken})
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": res.RefreshToken})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeError(rec).Error.Code).To(Equal("INVALID_TOKEN"))
		})

		It("requires a refresh token", func() {
			rec := do(http.MethodPost, "/auth/refresh", "", map[string]string{})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /auth/logout", func() {
		It("revokes the bearer and refresh tokens", func() {
			res := login()
			rec := do(http.MethodPost, "/auth/logout", res.AccessToken, map[string]string{"refresh_token": res.RefreshToken})
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			rec = do(http.MethodPost, "/auth/logout-all", res.AccessToken, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			rec = do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": res.RefreshToken})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("works without a body", func() {
			res := login()
			Expect(do(http.MethodPost, "/auth/logout", res.AccessToken, nil).Code).To(Equal(http.StatusNoContent))
		})

		It("requires a bearer token", func() {
			rec := do(http.MethodPost, "/auth/logout", "", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeError(rec).Error.Code).To(Equal("MISSING_TOKEN"))
		})
	})

	Describe("POST /auth/logout-all", func() {
		It("ends every session of the caller", func() {
			first := login()
			second := login()
			Expect(do(http.MethodPost, "/auth/logout-all", first.AccessToken, nil).Code).To(Equal(http.StatusNoContent))
			Expect(do(http.MethodPost, "/auth/logout-all", second.AccessToken, nil).Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("POST /users/{id}/revoke-tokens", func() {
		var operator auth.LoginResult

		BeforeEach(func() {
			op := f.user("operator")
			f.grantRole(op.ID, "support", "user:update")
			rec := do(http.MethodPost, "/auth/login", "", map[string]string{"login": "operator", "password": testPassword})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(rec.Body.Bytes(), &operator)).To(Succeed())
		})

		It("revokes the target's sessions for callers holding user:update", func() {
			target := login()
			rec := do(http.MethodPost, "/users/"+strconv.FormatInt(alice.ID, 10)+"/revoke-tokens", operator.AccessToken, nil)
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			_, err := f.service.VerifyToken(f.ctx, target.AccessToken)
			Expect(err).To(HaveOccurred())
			_, err = f.service.VerifyToken(f.ctx, operator.AccessToken)
			Expect(err).NotTo(HaveOccurred())
		})

		It("denies callers without the permission", func() {
			target := login()
			rec := do(http.MethodPost, "/users/"+strconv.FormatInt(alice.ID, 10)+"/revoke-tokens", target.AccessToken, nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decodeError(rec).Error.Code).To(Equal("PERMISSION_DENIED"))
		})

		It("answers 404 for unknown users", func() {
			rec := do(http.MethodPost, "/users/9999/revoke-tokens", operator.AccessToken, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("RequireAdmin", func() {
		It("passes admin role holders and denies everyone else", func() {
			res := login()
			Expect(do(http.MethodGet, "/admin", res.AccessToken, nil).Code).To(Equal(http.StatusForbidden))

			f.grantRole(alice.ID, rbac.AdminRoleCode)
			Expect(do(http.MethodGet, "/admin", res.AccessToken, nil).Code).To(Equal(http.StatusNoContent))
		})

		It("rejects requests without a token", func() {
			Expect(do(http.MethodGet, "/admin", "", nil).Code).To(Equal(http.StatusUnauthorized))
		})
	})
})

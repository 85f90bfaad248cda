package rbac_test

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

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ = Describe("Handler", func() {
	var (
		f      *fixture
		router chi.Router
		caller int64
	)

	BeforeEach(func() {
		f = newFixture()
		caller = f.user("operator")

		base := transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
		h := rbac.NewHandler(base, f.service, f.engine)

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if caller > 0 {
					r = r.WithContext(internal.ContextWithUserID(r.Context(), caller))
				}
				next.ServeHTTP(w, r)
			})
		})
		router.Get("/roles", h.ListRoles)
		router.Post("/roles", h.CreateRole)
		router.Post("/roles/batch", h.CreateRoles)
		router.Get("/roles/search", h.SearchRoles)
		router.Get("/roles/statistics", h.RoleStatistics)
		router.Post("/roles/{id}/users/revoke", h.RevokeUsers)
		router.Get("/permissions/action-types", h.ActionTypes)
		router.Get("/roles/{id}", h.GetRole)
		router.Delete("/roles/{id}", h.DeleteRole)
		router.Post("/roles/{id}/users", h.AssignUsers)
		router.Put("/roles/{id}/users/{userID}", h.AssignRole)
		router.Delete("/roles/{id}/users/{userID}", h.RevokeRole)
		router.Get("/permissions/tree", h.PermissionTree)
		router.Get("/authz/check", h.CheckPermission)
	})

	AfterEach(func() {
		f.close()
	})

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(method, path, reader)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decodeError := func(rec *httptest.ResponseRecorder) errorBody {
		var body errorBody
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	It("creates and fetches a role", func() {
		rec := do(http.MethodPost, "/roles", map[string]string{"role_name": "Viewer", "role_code": "viewer"})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var role rbac.Role
		Expect(json.Unmarshal(rec.Body.Bytes(), &role)).To(Succeed())
		Expect(role.RoleCode).To(Equal("viewer"))

		rec = do(http.MethodGet, "/roles/"+strconv.FormatInt(role.ID, 10), nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("rejects unknown fields in the body", func() {
		rec := do(http.MethodPost, "/roles", map[string]string{"role_name": "Viewer", "role_code": "viewer", "color": "red"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps a bad id to 400 and a missing role to 404", func() {
		rec := do(http.MethodGet, "/roles/abc", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(decodeError(rec).Error.Code).To(Equal(string(internal.ErrCodeValidationFailed)))

		rec = do(http.MethodGet, "/roles/999", nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(decodeError(rec).Error.Code).To(Equal(string(internal.ErrCodeRoleNotFound)))
	})

	It("answers a blocked delete with 409", func() {
		alice := f.user("alice")
		role := f.grantRole(alice, "viewer")

		rec := do(http.MethodDelete, "/roles/"+strconv.FormatInt(role.ID, 10), nil)
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(decodeError(rec).Error.Code).To(Equal(string(internal.ErrCodeRoleInUse)))

		rec = do(http.MethodDelete, "/roles/"+strconv.FormatInt(role.ID, 10)+"?force=true", nil)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})

	It("records the caller as the assigner", func() {
		alice := f.user("alice")
		role := f.role("viewer")

		rec := do(http.MethodPut, "/roles/"+strconv.FormatInt(role.ID, 10)+"/users/"+strconv.FormatInt(alice, 10), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var a rbac.Assignment
		Expect(json.Unmarshal(rec.Body.Bytes(), &a)).To(Succeed())
		Expect(a.AssignedBy).NotTo(BeNil())
		Expect(*a.AssignedBy).To(Equal(caller))
	})

	It("refuses self assignment through the caller", func() {
		role := f.role("viewer")
		rec := do(http.MethodPut, "/roles/"+strconv.FormatInt(role.ID, 10)+"/users/"+strconv.FormatInt(caller, 10), nil)
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(decodeError(rec).Error.Code).To(Equal(string(internal.ErrCodeSelfAssignment)))
	})

	It("assigns users in a batch and revokes idempotently", func() {
		role := f.role("viewer")
		alice, bob := f.user("alice"), f.user("bob")
		path := "/roles/" + strconv.FormatInt(role.ID, 10)

		rec := do(http.MethodPost, path+"/users", map[string][]int64{"user_ids": {alice, bob}})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var result rbac.BatchResult
		Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
		Expect(result.Applied).To(Equal(2))

		for _, want := range []bool{true, false} {
			rec = do(http.MethodDelete, path+"/users/"+strconv.FormatInt(alice, 10), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var revoke rbac.RevokeResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &revoke)).To(Succeed())
			Expect(revoke.Revoked).To(Equal(want))
		}
	})

	Describe("CheckPermission", func() {
		check := func(query string) (*httptest.ResponseRecorder, rbac.CheckPermissionResponse) {
			rec := do(http.MethodGet, "/authz/check?"+query, nil)
			var body rbac.CheckPermissionResponse
			if rec.Code == http.StatusOK {
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			}
			return rec, body
		}

		It("checks the caller by default", func() {
			f.grantRole(caller, "viewer", "user:view")

			rec, body := check("permission=user:view")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body.Allowed).To(BeTrue())
			Expect(body.UserID).To(Equal(caller))

			_, body = check("permission=user:delete")
			Expect(body.Allowed).To(BeFalse())
		})

		It("rejects malformed codes", func() {
			rec, _ := check("permission=nonsense")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("needs the audit permission to check someone else", func() {
			alice := f.user("alice")
			query := "permission=user:view&user_id=" + strconv.FormatInt(alice, 10)

			rec, _ := check(query)
			Expect(rec.Code).To(Equal(http.StatusForbidden))

			f.grantRole(caller, "auditor", rbac.PermissionAuditView)
			rec, body := check(query)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body.UserID).To(Equal(alice))
			Expect(body.Allowed).To(BeFalse())
		})

		It("requires an authenticated caller", func() {
			caller = 0
			rec, _ := check("permission=user:view")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	It("groups permissions by resource", func() {
		f.permission("user:view")
		f.permission("report:view")

		rec := do(http.MethodGet, "/permissions/tree", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var tree rbac.PermissionTreeResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &tree)).To(Succeed())
		Expect(tree.Resources).To(HaveLen(2))
	})

	It("creates roles in a batch and rolls back on a conflict", func() {
		rec := do(http.MethodPost, "/roles/batch", map[string][]map[string]string{"roles": {
			{"role_name": "Viewer", "role_code": "viewer"},
			{"role_name": "Editor", "role_code": "editor"},
		}})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var created rbac.RolesResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		Expect(created.Roles).To(HaveLen(2))

		rec = do(http.MethodPost, "/roles/batch", map[string][]map[string]string{"roles": {
			{"role_name": "Auditor", "role_code": "auditor"},
			{"role_name": "Viewer", "role_code": "viewer"},
		}})
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(decodeError(rec).Error.Code).To(Equal(string(internal.ErrCodeDuplicateRole)))

		rec = do(http.MethodGet, "/roles/search?keyword=auditor", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var found rbac.RolesResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &found)).To(Succeed())
		Expect(found.Roles).To(BeEmpty())
	})

	It("rejects a search without a keyword or with a malformed limit", func() {
		rec := do(http.MethodGet, "/roles/search", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = do(http.MethodGet, "/roles/search?keyword=view&limit=ten", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("revokes a role from several users", func() {
		alice, bob := f.user("alice"), f.user("bob")
		role := f.grantRole(alice, "viewer")

		rec := do(http.MethodPost, "/roles/"+strconv.FormatInt(role.ID, 10)+"/users/revoke", map[string][]int64{"user_ids": {alice, bob}})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var result rbac.BatchResult
		Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
		Expect(result).To(Equal(rbac.BatchResult{Applied: 1, Skipped: 1}))

		rec = do(http.MethodGet, "/roles/statistics", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var stats rbac.RoleStatistics
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.TotalRoles).To(Equal(1))
		Expect(stats.Roles[0].UserCount).To(BeZero())
	})

	It("lists action types", func() {
		f.permission("report:export")
		f.permission("report:view")

		rec := do(http.MethodGet, "/permissions/action-types", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var types rbac.TypesResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &types)).To(Succeed())
		Expect(types.Types).To(Equal([]string{"view", "export"}))
	})
})

package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/core/metrics"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/transport/middleware"
	"github.com/frahmantamala/rbac-service/internal/transport/swagger"
	"github.com/frahmantamala/rbac-service/internal/user"
)

// Permission codes guarding the management API. The seeder creates all of
// them.
const (
	PermUserView         = "user:view"
	PermUserCreate       = "user:create"
	PermUserUpdate       = "user:update"
	PermRoleView         = "role:view"
	PermRoleCreate       = "role:create"
	PermRoleUpdate       = "role:update"
	PermRoleDelete       = "role:delete"
	PermRoleAssign       = "role:assign"
	PermPermissionView   = "permission:view"
	PermPermissionCreate = "permission:create"
	PermPermissionUpdate = "permission:update"
	PermPermissionDelete = "permission:delete"
	PermPermissionGrant  = "permission:grant"
)

// ManagementPermissions lists every code above, in seeding order.
var ManagementPermissions = []string{
	PermUserView, PermUserCreate, PermUserUpdate,
	PermRoleView, PermRoleCreate, PermRoleUpdate, PermRoleDelete, PermRoleAssign,
	PermPermissionView, PermPermissionCreate, PermPermissionUpdate, PermPermissionDelete, PermPermissionGrant,
}

type Dependencies struct {
	Logger          *slog.Logger
	Production      bool
	AllowedOrigins  string
	LoginRateLimit  int
	LoginRateWindow time.Duration
	TrustProxy      bool
	Metrics         *metrics.Metrics
	MetricsPath     string
	OpenAPIPath     string
	HealthChecks    map[string]Check

	Sessions   middleware.TokenVerifier
	Authorizer auth.PermissionAuthorizer

	AuthHandler *auth.Handler
	UserHandler *user.Handler
	RBACHandler *rbac.Handler
}

func RegisterAllRoutes(router *chi.Mux, deps Dependencies) {
	base := transport.NewBaseHandler(deps.Logger)
	healthHandler := NewHealthHandler(base, deps.HealthChecks)
	authz := auth.NewRBACAuthorization(deps.Authorizer, deps.Logger)
	require := authz.Middleware

	router.Use(middleware.RequestID)
	if deps.TrustProxy {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.SecureHeaders(deps.Production, deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(deps.Metrics.Middleware)

	if deps.MetricsPath != "" {
		router.Handle(deps.MetricsPath, deps.Metrics.Handler())
	}
	if deps.OpenAPIPath != "" {
		router.Get(swagger.SpecURL, func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, deps.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if deps.AuthHandler != nil {
			r.Route("/auth", func(ar chi.Router) {
				ar.Group(func(lr chi.Router) {
					if deps.LoginRateLimit > 0 {
						lr.Use(httprate.Limit(deps.LoginRateLimit, deps.LoginRateWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
					}
					lr.Post("/login", deps.AuthHandler.Login)
					lr.Post("/refresh", deps.AuthHandler.RefreshToken)
				})
				ar.Post("/logout", deps.AuthHandler.Logout)
				ar.With(middleware.Authenticate(deps.Sessions, base)).Post("/logout-all", deps.AuthHandler.LogoutAll)
			})
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Authenticate(deps.Sessions, base))

			if uh := deps.UserHandler; uh != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/me", uh.GetCurrentUser)
					ur.Get("/me/permissions", uh.GetCurrentPermissions)
					ur.Put("/me/password", uh.ChangeOwnPassword)

					ur.With(require(PermUserView)).Get("/", uh.ListUsers)
					ur.With(require(PermUserCreate)).Post("/", uh.CreateUser)
					ur.With(require(PermUserCreate)).Post("/batch", uh.CreateUsers)
					ur.With(require(PermUserView)).Get("/statistics", uh.Statistics)
					ur.With(middleware.SelfOrPermission(deps.Authorizer, base, "id", PermUserView)).Get("/{id}", uh.GetUser)
					ur.With(require(PermUserUpdate)).Put("/{id}", uh.UpdateUser)
					ur.With(require(PermUserUpdate)).Patch("/{id}/status", uh.UpdateStatus)
					if deps.AuthHandler != nil {
						ur.With(require(PermUserUpdate)).Post("/{id}/revoke-tokens", deps.AuthHandler.RevokeUserTokens)
					}
					if deps.RBACHandler != nil {
						ur.With(middleware.SelfOrPermission(deps.Authorizer, base, "id", PermRoleView)).Get("/{id}/roles", deps.RBACHandler.ListUserRoles)
					}
				})
			}

			if rh := deps.RBACHandler; rh != nil {
				pr.Route("/roles", func(rr chi.Router) {
					rr.With(require(PermRoleView)).Get("/", rh.ListRoles)
					rr.With(require(PermRoleCreate)).Post("/", rh.CreateRole)
					rr.With(require(PermRoleCreate)).Post("/batch", rh.CreateRoles)
					rr.With(require(PermRoleView)).Get("/search", rh.SearchRoles)
					rr.With(require(PermRoleView)).Get("/statistics", rh.RoleStatistics)
					rr.With(require(PermRoleView)).Get("/{id}", rh.GetRole)
					rr.With(require(PermRoleUpdate)).Put("/{id}", rh.UpdateRole)
					rr.With(require(PermRoleDelete)).Delete("/{id}", rh.DeleteRole)

					rr.With(require(PermRoleView)).Get("/{id}/users", rh.ListRoleUsers)
					rr.With(require(PermRoleAssign)).Post("/{id}/users", rh.AssignUsers)
					rr.With(require(PermRoleAssign)).Post("/{id}/users/revoke", rh.RevokeUsers)
					rr.With(require(PermRoleAssign)).Put("/{id}/users/{userID}", rh.AssignRole)
					rr.With(require(PermRoleAssign)).Delete("/{id}/users/{userID}", rh.RevokeRole)

					rr.With(require(PermRoleView)).Get("/{id}/permissions", rh.ListRolePermissions)
					rr.With(require(PermPermissionGrant)).Post("/{id}/permissions", rh.GrantPermissions)
					rr.With(require(PermPermissionGrant)).Post("/{id}/permissions/revoke", rh.RevokePermissions)
					rr.With(require(PermPermissionGrant)).Put("/{id}/permissions/{permissionID}", rh.GrantPermission)
					rr.With(require(PermPermissionGrant)).Delete("/{id}/permissions/{permissionID}", rh.RevokePermission)
				})

				pr.Route("/permissions", func(pmr chi.Router) {
					pmr.With(require(PermPermissionView)).Get("/", rh.ListPermissions)
					pmr.With(require(PermPermissionCreate)).Post("/", rh.CreatePermission)
					pmr.With(require(PermPermissionCreate)).Post("/batch", rh.CreatePermissions)
					pmr.With(require(PermPermissionView)).Get("/tree", rh.PermissionTree)
					pmr.With(require(PermPermissionView)).Get("/search", rh.SearchPermissions)
					pmr.With(require(PermPermissionView)).Get("/resource-types", rh.ResourceTypes)
					pmr.With(require(PermPermissionView)).Get("/action-types", rh.ActionTypes)
					pmr.With(require(PermPermissionView)).Get("/statistics", rh.PermissionStatistics)
					pmr.With(require(PermPermissionView)).Get("/{id}", rh.GetPermission)
					pmr.With(require(PermPermissionUpdate)).Put("/{id}", rh.UpdatePermission)
					pmr.With(require(PermPermissionDelete)).Delete("/{id}", rh.DeletePermission)
					pmr.With(require(PermPermissionView)).Get("/{id}/roles", rh.ListPermissionRoles)
				})

				pr.Get("/authz/check", rh.CheckPermission)
			}
		})
	})
}

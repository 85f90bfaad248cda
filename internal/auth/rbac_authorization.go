package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/transport"
)

type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
	logger     *slog.Logger
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
		logger:      logger,
	}
}

// Check runs next only when the caller on the context holds any of codes.
func (ra *RBACAuthorization) Check(next http.HandlerFunc, codes ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := internal.UserIDFromContext(r.Context())
		if !ok {
			ra.logger.Warn("authorization check failed: user not found in context", "path", r.URL.Path)
			ra.WriteAppError(w, internal.ErrMissingToken)
			return
		}

		allowed, err := ra.authorizer.HasAnyPermission(r.Context(), userID, codes...)
		if err != nil {
			ra.logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", userID, "permissions", codes)
			ra.HandleServiceError(w, err)
			return
		}

		if !allowed {
			ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", userID,
				"required_permissions", codes)
			ra.WriteAppError(w, internal.ErrPermissionDenied)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// Middleware is Check in chi middleware form.
func (ra *RBACAuthorization) Middleware(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, codes...)
	}
}

// RequireAdmin passes holders of the admin:access permission, which the
// engine also grants to the admin role.
func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.Middleware("admin:access")
}

package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

// SelfOrPermission lets a caller through when the {param} URL parameter is
// their own user id, and otherwise requires any of codes.
func SelfOrPermission(authorizer auth.PermissionAuthorizer, base *transport.BaseHandler, param string, codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, ok := internal.UserIDFromContext(r.Context())
			if !ok {
				base.WriteAppError(w, internal.ErrMissingToken)
				return
			}

			if target, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64); err == nil && target == callerID {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := authorizer.HasAnyPermission(r.Context(), callerID, codes...)
			if err != nil {
				base.HandleServiceError(w, err)
				return
			}
			if !allowed {
				logger.From(r.Context()).Warn("access denied: insufficient permissions", "required_permissions", codes)
				base.WriteAppError(w, internal.ErrPermissionDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

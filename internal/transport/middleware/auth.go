package middleware

import (
	"context"
	"net/http"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*auth.Claims, error)
}

// Authenticate verifies the bearer token and puts the caller on the request
// context and on the context logger.
func Authenticate(verifier TokenVerifier, base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := base.ExtractTokenFromHeader(r)
			if token == "" {
				logger.From(r.Context()).Debug("missing authorization token", "path", r.URL.Path)
				base.WriteAppError(w, internal.ErrMissingToken)
				return
			}

			claims, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				logger.From(r.Context()).Info("token rejected", "path", r.URL.Path)
				base.HandleServiceError(w, err)
				return
			}

			ctx := internal.ContextWithPrincipal(r.Context(), &internal.Principal{
				UserID:   claims.UserID,
				Username: claims.Username,
				Roles:    claims.Roles,
			})
			ctx = logger.With(ctx, "user_id", claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package rbac

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
	"github.com/frahmantamala/rbac-service/internal/core/metrics"
)

// Engine makes permission decisions and owns the decision cache.
type Engine struct {
	resolver *Resolver
	cache    Cache
	flight   singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEngine(resolver *Resolver, cache Cache, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// CheckPermission reports whether userID currently holds code. code is
// trimmed and lower-cased before validation.
func (e *Engine) CheckPermission(ctx context.Context, userID int64, code string) (bool, error) {
	code = validation.NormalizePermissionCode(code)
	if appErr := validation.ValidatePermissionCode(code); appErr != nil {
		return false, appErr
	}
	if userID <= 0 {
		return false, nil
	}

	if allowed, ok := e.cache.Get(ctx, userID, code); ok {
		e.metrics.PermissionCheck("cache", allowed)
		return allowed, nil
	}

	// A check that starts after an invalidation must not share a lookup
	// that began before it.
	epoch := e.cache.Epoch(ctx)
	key := strconv.FormatUint(epoch, 10) + "|" + strconv.FormatInt(userID, 10) + "|" + code
	v, err, _ := e.flight.Do(key, func() (interface{}, error) {
		allowed, err := e.decide(ctx, userID, code)
		if err != nil {
			return false, err
		}
		e.cache.Set(ctx, userID, code, allowed, epoch)
		return allowed, nil
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "permission check failed", "user_id", userID, "permission", code, "error", err)
		return false, errors.NewBusinessLogicError("failed to check permission", err)
	}

	allowed := v.(bool)
	e.metrics.PermissionCheck("store", allowed)
	return allowed, nil
}

// Authorize is CheckPermission that turns a denial into a FORBIDDEN error.
func (e *Engine) Authorize(ctx context.Context, userID int64, code string) error {
	allowed, err := e.CheckPermission(ctx, userID, code)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.ErrPermissionDenied
	}
	return nil
}

// HasAnyPermission passes when any of codes is held.
func (e *Engine) HasAnyPermission(ctx context.Context, userID int64, codes ...string) (bool, error) {
	for _, code := range codes {
		allowed, err := e.CheckPermission(ctx, userID, code)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops every cached decision.
func (e *Engine) Invalidate(ctx context.Context) {
	e.cache.InvalidateAll(ctx)
	e.metrics.CacheInvalidated()
	e.logger.DebugContext(ctx, "permission cache invalidated")
}

func (e *Engine) decide(ctx context.Context, userID int64, code string) (bool, error) {
	roles, err := e.resolver.ActiveRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}
	for _, role := range roles {
		if role.IsAdmin() {
			return true, nil
		}
	}

	perms, err := e.resolver.PermissionsOf(ctx, roles)
	if err != nil {
		return false, err
	}

	for _, p := range perms {
		if p.IsAdmin() || p.PermissionCode == code {
			return true, nil
		}
	}

	resource, action := SplitCode(code)
	for _, p := range perms {
		if p.Grants(resource, action) {
			return true, nil
		}
	}
	return false, nil
}

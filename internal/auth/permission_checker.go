package auth

import "context"

// PermissionAuthorizer decides whether a user holds a permission code.
// *rbac.Engine satisfies it.
type PermissionAuthorizer interface {
	CheckPermission(ctx context.Context, userID int64, code string) (bool, error)
	HasAnyPermission(ctx context.Context, userID int64, codes ...string) (bool, error)
}

package rbac

import (
	"context"

	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
)

// Resolver answers "which roles and permissions are live for this user"
// straight from the store. Every read filters on status.
type Resolver struct {
	repo RepositoryAPI
}

func NewResolver(repo RepositoryAPI) *Resolver {
	return &Resolver{repo: repo}
}

// ActiveRoles returns enabled roles held through active assignments. A
// missing or disabled user has none.
func (r *Resolver) ActiveRoles(ctx context.Context, userID int64) ([]*Role, error) {
	u, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Status != userDatamodel.StatusEnabled {
		return []*Role{}, nil
	}

	roles, err := r.repo.RolesForUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return rolesFromDataModel(roles), nil
}

// ActivePermissions returns permissions granted to an enabled role through
// active grants.
func (r *Resolver) ActivePermissions(ctx context.Context, roleID int64) ([]*Permission, error) {
	perms, err := r.repo.PermissionsForRoles(ctx, []int64{roleID}, true)
	if err != nil {
		return nil, err
	}
	return permissionsFromDataModel(perms), nil
}

// PermissionsOf returns the de-duplicated active permissions of roles.
func (r *Resolver) PermissionsOf(ctx context.Context, roles []*Role) ([]*Permission, error) {
	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	perms, err := r.repo.PermissionsForRoles(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	return permissionsFromDataModel(perms), nil
}

func (r *Resolver) UserPermissions(ctx context.Context, userID int64) ([]*Permission, error) {
	roles, err := r.ActiveRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []*Permission{}, nil
	}
	return r.PermissionsOf(ctx, roles)
}

// RoleCodes returns the codes of the user's active roles, used for token
// claims.
func (r *Resolver) RoleCodes(ctx context.Context, userID int64) ([]string, error) {
	roles, err := r.ActiveRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(roles))
	for _, role := range roles {
		codes = append(codes, role.RoleCode)
	}
	return codes, nil
}

// PermissionCodes returns the codes of the user's live permissions,
// wildcard definitions included as stored.
func (r *Resolver) PermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	perms, err := r.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.PermissionCode)
	}
	return codes, nil
}

package rbac

import (
	"context"

	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
)

// RepositoryAPI is the entity store for roles, permissions and the links
// between them. Single-row getters return nil, nil when the row is missing.
// Every method resolves the transaction from ctx when one is open.
type RepositoryAPI interface {
	GetRoleByID(ctx context.Context, id int64) (*rbacDatamodel.Role, error)
	GetRoleByCode(ctx context.Context, code string) (*rbacDatamodel.Role, error)
	ListRoles(ctx context.Context, enabledOnly bool) ([]*rbacDatamodel.Role, error)
	CreateRole(ctx context.Context, role *rbacDatamodel.Role) error
	UpdateRole(ctx context.Context, role *rbacDatamodel.Role) error
	DeleteRole(ctx context.Context, id int64) error

	GetPermissionByID(ctx context.Context, id int64) (*rbacDatamodel.Permission, error)
	GetPermissionByCode(ctx context.Context, code string) (*rbacDatamodel.Permission, error)
	ListPermissions(ctx context.Context, resourceType string) ([]*rbacDatamodel.Permission, error)
	CreatePermission(ctx context.Context, permission *rbacDatamodel.Permission) error
	UpdatePermission(ctx context.Context, permission *rbacDatamodel.Permission) error
	DeletePermission(ctx context.Context, id int64) error

	GetUser(ctx context.Context, id int64) (*userDatamodel.User, error)

	FindAssignment(ctx context.Context, userID, roleID int64) (*rbacDatamodel.UserRole, error)
	CreateAssignment(ctx context.Context, assignment *rbacDatamodel.UserRole) error
	// SetAssignmentStatus moves a row from one status to another and reports
	// whether a row matched.
	SetAssignmentStatus(ctx context.Context, userID, roleID int64, from, to int16) (bool, error)
	DeleteAssignmentsForRole(ctx context.Context, roleID int64) error

	FindGrant(ctx context.Context, roleID, permissionID int64) (*rbacDatamodel.RolePermission, error)
	CreateGrant(ctx context.Context, grant *rbacDatamodel.RolePermission) error
	SetGrantStatus(ctx context.Context, roleID, permissionID int64, from, to int16) (bool, error)
	DeleteGrantsForRole(ctx context.Context, roleID int64) error
	DeleteGrantsForPermission(ctx context.Context, permissionID int64) error

	// RolesForUser with activeOnly keeps active assignments of enabled roles.
	RolesForUser(ctx context.Context, userID int64, activeOnly bool) ([]*rbacDatamodel.Role, error)
	// PermissionsForRoles with activeOnly keeps active grants of enabled
	// roles. The result has no duplicates.
	PermissionsForRoles(ctx context.Context, roleIDs []int64, activeOnly bool) ([]*rbacDatamodel.Permission, error)
	// UsersForRole with activeOnly keeps active assignments.
	UsersForRole(ctx context.Context, roleID int64, activeOnly bool) ([]*userDatamodel.User, error)
	// RolesForPermission with activeOnly keeps active grants.
	RolesForPermission(ctx context.Context, permissionID int64, activeOnly bool) ([]*rbacDatamodel.Role, error)

	// SearchRoles matches keyword case-insensitively inside name or code.
	SearchRoles(ctx context.Context, keyword string, limit, offset int) ([]*rbacDatamodel.Role, error)
	// SearchPermissions matches keyword case-insensitively inside name, code,
	// resource type or action type.
	SearchPermissions(ctx context.Context, keyword string, limit, offset int) ([]*rbacDatamodel.Permission, error)
	ResourceTypes(ctx context.Context) ([]string, error)
	ActionTypes(ctx context.Context) ([]string, error)
	// RoleUsage returns every role with its active grant and assignment counts.
	RoleUsage(ctx context.Context) ([]RoleUsage, error)
}

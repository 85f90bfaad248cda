package postgres

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-service/internal/core/database"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

type RBACRepository struct {
	db *gorm.DB
}

func NewRBACRepository(db *gorm.DB) rbac.RepositoryAPI {
	return &RBACRepository{db: db}
}

func (r *RBACRepository) conn(ctx context.Context) *gorm.DB {
	return database.GetDB(ctx, r.db)
}

// first loads one row into dest and maps "not found" to ok=false.
func first(q *gorm.DB, dest interface{}) (bool, error) {
	err := q.Take(dest).Error
	if err != nil {
		if database.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ----------------- ROLES -----------------

func (r *RBACRepository) GetRoleByID(ctx context.Context, id int64) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	ok, err := first(r.conn(ctx).Where("id = ?", id), &role)
	if !ok {
		return nil, err
	}
	return &role, nil
}

func (r *RBACRepository) GetRoleByCode(ctx context.Context, code string) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	ok, err := first(r.conn(ctx).Where("role_code = ?", code), &role)
	if !ok {
		return nil, err
	}
	return &role, nil
}

func (r *RBACRepository) ListRoles(ctx context.Context, enabledOnly bool) ([]*rbacDatamodel.Role, error) {
	var roles []*rbacDatamodel.Role
	q := r.conn(ctx).Order("id ASC")
	if enabledOnly {
		q = q.Where("status = ?", rbacDatamodel.StatusOn)
	}
	err := q.Find(&roles).Error
	return roles, err
}

func (r *RBACRepository) CreateRole(ctx context.Context, role *rbacDatamodel.Role) error {
	return r.conn(ctx).Create(role).Error
}

func (r *RBACRepository) UpdateRole(ctx context.Context, role *rbacDatamodel.Role) error {
	return r.conn(ctx).Save(role).Error
}

func (r *RBACRepository) DeleteRole(ctx context.Context, id int64) error {
	return r.conn(ctx).Where("id = ?", id).Delete(&rbacDatamodel.Role{}).Error
}

// ----------------- PERMISSIONS -----------------

func (r *RBACRepository) GetPermissionByID(ctx context.Context, id int64) (*rbacDatamodel.Permission, error) {
	var p rbacDatamodel.Permission
	ok, err := first(r.conn(ctx).Where("id = ?", id), &p)
	if !ok {
		return nil, err
	}
	return &p, nil
}

func (r *RBACRepository) GetPermissionByCode(ctx context.Context, code string) (*rbacDatamodel.Permission, error) {
	var p rbacDatamodel.Permission
	ok, err := first(r.conn(ctx).Where("permission_code = ?", code), &p)
	if !ok {
		return nil, err
	}
	return &p, nil
}

func (r *RBACRepository) ListPermissions(ctx context.Context, resourceType string) ([]*rbacDatamodel.Permission, error) {
	var perms []*rbacDatamodel.Permission
	q := r.conn(ctx).Order("resource_type ASC, action_type ASC")
	if resourceType != "" {
		q = q.Where("resource_type = ?", resourceType)
	}
	err := q.Find(&perms).Error
	return perms, err
}

func (r *RBACRepository) CreatePermission(ctx context.Context, p *rbacDatamodel.Permission) error {
	return r.conn(ctx).Create(p).Error
}

func (r *RBACRepository) UpdatePermission(ctx context.Context, p *rbacDatamodel.Permission) error {
	return r.conn(ctx).Save(p).Error
}

func (r *RBACRepository) DeletePermission(ctx context.Context, id int64) error {
	return r.conn(ctx).Where("id = ?", id).Delete(&rbacDatamodel.Permission{}).Error
}

func (r *RBACRepository) GetUser(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	ok, err := first(r.conn(ctx).Where("id = ?", id), &u)
	if !ok {
		return nil, err
	}
	return &u, nil
}

// ----------------- ASSIGNMENTS -----------------

func (r *RBACRepository) FindAssignment(ctx context.Context, userID, roleID int64) (*rbacDatamodel.UserRole, error) {
	var a rbacDatamodel.UserRole
	ok, err := first(r.conn(ctx).Where("user_id = ? AND role_id = ?", userID, roleID), &a)
	if !ok {
		return nil, err
	}
	return &a, nil
}

func (r *RBACRepository) CreateAssignment(ctx context.Context, a *rbacDatamodel.UserRole) error {
	return r.conn(ctx).Create(a).Error
}

func (r *RBACRepository) SetAssignmentStatus(ctx context.Context, userID, roleID int64, from, to int16) (bool, error) {
	res := r.conn(ctx).Model(&rbacDatamodel.UserRole{}).
		Where("user_id = ? AND role_id = ? AND status = ?", userID, roleID, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *RBACRepository) DeleteAssignmentsForRole(ctx context.Context, roleID int64) error {
	return r.conn(ctx).Where("role_id = ?", roleID).Delete(&rbacDatamodel.UserRole{}).Error
}

// ----------------- GRANTS -----------------

func (r *RBACRepository) FindGrant(ctx context.Context, roleID, permissionID int64) (*rbacDatamodel.RolePermission, error) {
	var g rbacDatamodel.RolePermission
	ok, err := first(r.conn(ctx).Where("role_id = ? AND permission_id = ?", roleID, permissionID), &g)
	if !ok {
		return nil, err
	}
	return &g, nil
}

func (r *RBACRepository) CreateGrant(ctx context.Context, g *rbacDatamodel.RolePermission) error {
	return r.conn(ctx).Create(g).Error
}

func (r *RBACRepository) SetGrantStatus(ctx context.Context, roleID, permissionID int64, from, to int16) (bool, error) {
	res := r.conn(ctx).Model(&rbacDatamodel.RolePermission{}).
		Where("role_id = ? AND permission_id = ? AND status = ?", roleID, permissionID, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *RBACRepository) DeleteGrantsForRole(ctx context.Context, roleID int64) error {
	return r.conn(ctx).Where("role_id = ?", roleID).Delete(&rbacDatamodel.RolePermission{}).Error
}

func (r *RBACRepository) DeleteGrantsForPermission(ctx context.Context, permissionID int64) error {
	return r.conn(ctx).Where("permission_id = ?", permissionID).Delete(&rbacDatamodel.RolePermission{}).Error
}

// ----------------- RELATIONSHIPS -----------------

func (r *RBACRepository) RolesForUser(ctx context.Context, userID int64, activeOnly bool) ([]*rbacDatamodel.Role, error) {
	var roles []*rbacDatamodel.Role
	q := r.conn(ctx).
		Select("roles.*").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID)
	if activeOnly {
		q = q.Where("user_roles.status = ? AND roles.status = ?", rbacDatamodel.StatusOn, rbacDatamodel.StatusOn)
	}
	err := q.Order("roles.id ASC").Find(&roles).Error
	return roles, err
}

func (r *RBACRepository) PermissionsForRoles(ctx context.Context, roleIDs []int64, activeOnly bool) ([]*rbacDatamodel.Permission, error) {
	if len(roleIDs) == 0 {
		return []*rbacDatamodel.Permission{}, nil
	}
	var perms []*rbacDatamodel.Permission
	q := r.conn(ctx).
		Distinct("permissions.*").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id IN ?", roleIDs)
	if activeOnly {
		q = q.Joins("JOIN roles ON roles.id = role_permissions.role_id").
			Where("role_permissions.status = ? AND roles.status = ?", rbacDatamodel.StatusOn, rbacDatamodel.StatusOn)
	}
	err := q.Order("permissions.id ASC").Find(&perms).Error
	return perms, err
}

func (r *RBACRepository) UsersForRole(ctx context.Context, roleID int64, activeOnly bool) ([]*userDatamodel.User, error) {
	var users []*userDatamodel.User
	q := r.conn(ctx).
		Select("users.*").
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("user_roles.role_id = ?", roleID)
	if activeOnly {
		q = q.Where("user_roles.status = ?", rbacDatamodel.StatusOn)
	}
	err := q.Order("users.id ASC").Find(&users).Error
	return users, err
}

func (r *RBACRepository) RolesForPermission(ctx context.Context, permissionID int64, activeOnly bool) ([]*rbacDatamodel.Role, error) {
	var roles []*rbacDatamodel.Role
	q := r.conn(ctx).
		Select("roles.*").
		Joins("JOIN role_permissions ON role_permissions.role_id = roles.id").
		Where("role_permissions.permission_id = ?", permissionID)
	if activeOnly {
		q = q.Where("role_permissions.status = ?", rbacDatamodel.StatusOn)
	}
	err := q.Order("roles.id ASC").Find(&roles).Error
	return roles, err
}

// ----------------- SEARCH & STATISTICS -----------------

func likePattern(keyword string) string {
	return "%" + strings.ToLower(strings.TrimSpace(keyword)) + "%"
}

func (r *RBACRepository) SearchRoles(ctx context.Context, keyword string, limit, offset int) ([]*rbacDatamodel.Role, error) {
	like := likePattern(keyword)
	var roles []*rbacDatamodel.Role
	err := r.conn(ctx).
		Where("LOWER(role_name) LIKE ? OR LOWER(role_code) LIKE ?", like, like).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&roles).Error
	return roles, err
}

func (r *RBACRepository) SearchPermissions(ctx context.Context, keyword string, limit, offset int) ([]*rbacDatamodel.Permission, error) {
	like := likePattern(keyword)
	var perms []*rbacDatamodel.Permission
	err := r.conn(ctx).
		Where("LOWER(permission_name) LIKE ? OR LOWER(permission_code) LIKE ? OR resource_type LIKE ? OR action_type LIKE ?", like, like, like, like).
		Order("resource_type ASC, action_type ASC").
		Limit(limit).
		Offset(offset).
		Find(&perms).Error
	return perms, err
}

func (r *RBACRepository) ResourceTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := r.conn(ctx).Model(&rbacDatamodel.Permission{}).
		Distinct("resource_type").
		Order("resource_type ASC").
		Pluck("resource_type", &types).Error
	return types, err
}

func (r *RBACRepository) ActionTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := r.conn(ctx).Model(&rbacDatamodel.Permission{}).
		Distinct("action_type").
		Order("action_type ASC").
		Pluck("action_type", &types).Error
	return types, err
}

func (r *RBACRepository) RoleUsage(ctx context.Context) ([]rbac.RoleUsage, error) {
	var rows []rbac.RoleUsage
	err := r.conn(ctx).Model(&rbacDatamodel.Role{}).
		Select(`roles.id AS role_id, roles.role_code, roles.role_name, roles.status,
			(SELECT COUNT(*) FROM role_permissions rp WHERE rp.role_id = roles.id AND rp.status = ?) AS permission_count,
			(SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = roles.id AND ur.status = ?) AS user_count`,
			rbacDatamodel.StatusOn, rbacDatamodel.StatusOn).
		Order("roles.id ASC").
		Scan(&rows).Error
	return rows, err
}

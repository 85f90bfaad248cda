package rbac

import (
	"strings"
	"time"

	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
)

const (
	AdminRoleCode        = "admin"
	AdminPermissionScope = "admin:"
	Wildcard             = "*"
)

type RoleStatus int16

const (
	RoleDisabled RoleStatus = RoleStatus(rbacDatamodel.StatusOff)
	RoleEnabled  RoleStatus = RoleStatus(rbacDatamodel.StatusOn)
)

func (s RoleStatus) Valid() bool {
	return s == RoleDisabled || s == RoleEnabled
}

func (s RoleStatus) String() string {
	if s == RoleEnabled {
		return "enabled"
	}
	return "disabled"
}

// LinkStatus is the state of an assignment or a grant.
type LinkStatus int16

const (
	LinkRevoked LinkStatus = LinkStatus(rbacDatamodel.StatusOff)
	LinkActive  LinkStatus = LinkStatus(rbacDatamodel.StatusOn)
)

type Role struct {
	ID          int64      `json:"id"`
	RoleName    string     `json:"role_name"`
	RoleCode    string     `json:"role_code"`
	Description string     `json:"description,omitempty"`
	Status      RoleStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r *Role) IsEnabled() bool {
	return r.Status == RoleEnabled
}

func (r *Role) IsAdmin() bool {
	return r.RoleCode == AdminRoleCode
}

type Permission struct {
	ID             int64     `json:"id"`
	PermissionName string    `json:"permission_name"`
	PermissionCode string    `json:"permission_code"`
	ResourceType   string    `json:"resource_type"`
	ActionType     string    `json:"action_type"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAdmin reports whether the permission lives in the admin scope, which
// bypasses every other check.
func (p *Permission) IsAdmin() bool {
	return strings.HasPrefix(p.PermissionCode, AdminPermissionScope)
}

// Grants reports whether p satisfies resource:action, exactly or through a
// wildcard segment.
func (p *Permission) Grants(resource, action string) bool {
	resourceOK := p.ResourceType == resource || p.ResourceType == Wildcard
	actionOK := p.ActionType == action || p.ActionType == Wildcard
	return resourceOK && actionOK
}

type Assignment struct {
	UserID     int64      `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	Status     LinkStatus `json:"status"`
}

type Grant struct {
	RoleID       int64      `json:"role_id"`
	PermissionID int64      `json:"permission_id"`
	GrantedAt    time.Time  `json:"granted_at"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	Status       LinkStatus `json:"status"`
}

// SplitCode splits a validated resource:action code.
func SplitCode(code string) (resource, action string) {
	resource, action, _ = strings.Cut(code, ":")
	return resource, action
}

func RoleToDataModel(r *Role) *rbacDatamodel.Role {
	return &rbacDatamodel.Role{
		ID:          r.ID,
		RoleName:    r.RoleName,
		RoleCode:    r.RoleCode,
		Description: r.Description,
		Status:      int16(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func RoleFromDataModel(r *rbacDatamodel.Role) *Role {
	return &Role{
		ID:          r.ID,
		RoleName:    r.RoleName,
		RoleCode:    r.RoleCode,
		Description: r.Description,
		Status:      RoleStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func PermissionToDataModel(p *Permission) *rbacDatamodel.Permission {
	return &rbacDatamodel.Permission{
		ID:             p.ID,
		PermissionName: p.PermissionName,
		PermissionCode: p.PermissionCode,
		ResourceType:   p.ResourceType,
		ActionType:     p.ActionType,
		Description:    p.Description,
		CreatedAt:      p.CreatedAt,
	}
}

func PermissionFromDataModel(p *rbacDatamodel.Permission) *Permission {
	return &Permission{
		ID:             p.ID,
		PermissionName: p.PermissionName,
		PermissionCode: p.PermissionCode,
		ResourceType:   p.ResourceType,
		ActionType:     p.ActionType,
		Description:    p.Description,
		CreatedAt:      p.CreatedAt,
	}
}

func AssignmentFromDataModel(a *rbacDatamodel.UserRole) *Assignment {
	return &Assignment{
		UserID:     a.UserID,
		RoleID:     a.RoleID,
		AssignedAt: a.AssignedAt,
		AssignedBy: a.AssignedBy,
		Status:     LinkStatus(a.Status),
	}
}

func GrantFromDataModel(g *rbacDatamodel.RolePermission) *Grant {
	return &Grant{
		RoleID:       g.RoleID,
		PermissionID: g.PermissionID,
		GrantedAt:    g.GrantedAt,
		GrantedBy:    g.GrantedBy,
		Status:       LinkStatus(g.Status),
	}
}

func rolesFromDataModel(in []*rbacDatamodel.Role) []*Role {
	out := make([]*Role, 0, len(in))
	for _, r := range in {
		out = append(out, RoleFromDataModel(r))
	}
	return out
}

func permissionsFromDataModel(in []*rbacDatamodel.Permission) []*Permission {
	out := make([]*Permission, 0, len(in))
	for _, p := range in {
		out = append(out, PermissionFromDataModel(p))
	}
	return out
}

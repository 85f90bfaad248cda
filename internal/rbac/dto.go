package rbac

type CreateRoleDTO struct {
	RoleName    string      `json:"role_name"`
	RoleCode    string      `json:"role_code"`
	Description string      `json:"description"`
	Status      *RoleStatus `json:"status,omitempty"`
}

// UpdateRoleDTO fields left nil are unchanged.
type UpdateRoleDTO struct {
	RoleName    *string     `json:"role_name,omitempty"`
	RoleCode    *string     `json:"role_code,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *RoleStatus `json:"status,omitempty"`
}

type CreatePermissionDTO struct {
	PermissionName string `json:"permission_name"`
	PermissionCode string `json:"permission_code"`
	ResourceType   string `json:"resource_type"`
	ActionType     string `json:"action_type"`
	Description    string `json:"description"`
}

type UpdatePermissionDTO struct {
	PermissionName *string `json:"permission_name,omitempty"`
	PermissionCode *string `json:"permission_code,omitempty"`
	ResourceType   *string `json:"resource_type,omitempty"`
	ActionType     *string `json:"action_type,omitempty"`
	Description    *string `json:"description,omitempty"`
}

type AssignUsersDTO struct {
	UserIDs []int64 `json:"user_ids"`
}

type GrantPermissionsDTO struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

type CreateRolesDTO struct {
	Roles []CreateRoleDTO `json:"roles"`
}

type CreatePermissionsDTO struct {
	Permissions []CreatePermissionDTO `json:"permissions"`
}

// SearchQuery pages a keyword search. A zero Limit means DefaultSearchLimit.
type SearchQuery struct {
	Keyword string
	Limit   int
	Offset  int
}

// BatchResult counts the links a batch changed and the ones it left alone
// because they were already in the requested state.
type BatchResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Status   int16  `json:"status"`
}

type PermissionGroup struct {
	ResourceType string        `json:"resource_type"`
	Permissions  []*Permission `json:"permissions"`
}

type RolesResponse struct {
	Roles []*Role `json:"roles"`
}

type PermissionsResponse struct {
	Permissions []*Permission `json:"permissions"`
}

type UsersResponse struct {
	Users []UserSummary `json:"users"`
}

type PermissionTreeResponse struct {
	Resources []PermissionGroup `json:"resources"`
}

type TypesResponse struct {
	Types []string `json:"types"`
}

// RoleUsage is one role with its active grant and assignment counts.
type RoleUsage struct {
	RoleID          int64  `json:"role_id"`
	RoleCode        string `json:"role_code"`
	RoleName        string `json:"role_name"`
	Status          int16  `json:"status"`
	PermissionCount int64  `json:"permission_count"`
	UserCount       int64  `json:"user_count"`
}

type RoleStatistics struct {
	TotalRoles    int         `json:"total_roles"`
	EnabledRoles  int         `json:"enabled_roles"`
	DisabledRoles int         `json:"disabled_roles"`
	Roles         []RoleUsage `json:"roles"`
}

type ResourceUsage struct {
	PermissionCount int      `json:"permission_count"`
	Actions         []string `json:"actions"`
}

type ActionUsage struct {
	PermissionCount int      `json:"permission_count"`
	Resources       []string `json:"resources"`
}

type PermissionStatistics struct {
	TotalPermissions int                      `json:"total_permissions"`
	ResourceCount    int                      `json:"resource_count"`
	ActionCount      int                      `json:"action_count"`
	Resources        map[string]ResourceUsage `json:"resources"`
	Actions          map[string]ActionUsage   `json:"actions"`
}

type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

type CheckPermissionResponse struct {
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

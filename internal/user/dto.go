package user

type CreateUserDTO struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Status   *Status `json:"status,omitempty"`
}

type CreateUsersDTO struct {
	Users []CreateUserDTO `json:"users"`
}

// UpdateUserDTO fields left nil are unchanged.
type UpdateUserDTO struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type UpdateStatusDTO struct {
	Status *Status `json:"status"`
}

type ListUsersResponse struct {
	Users  []*User `json:"users"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// ProfileResponse is the caller's own view: the account plus its live role
// and permission codes.
type ProfileResponse struct {
	User        *User    `json:"user"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions,omitempty"`
}

type PermissionCodesResponse struct {
	Permissions []string `json:"permissions"`
}

type UsersResponse struct {
	Users []*User `json:"users"`
}

type Statistics struct {
	TotalUsers    int64 `json:"total_users"`
	EnabledUsers  int64 `json:"enabled_users"`
	DisabledUsers int64 `json:"disabled_users"`
}

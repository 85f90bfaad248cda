package rbac

import "time"

// Role status and link (assignment, grant) status share 0/1 storage.
const (
	StatusOff int16 = 0
	StatusOn  int16 = 1
)

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	RoleName    string    `gorm:"column:role_name;size:32;not null"`
	RoleCode    string    `gorm:"column:role_code;size:32;uniqueIndex;not null"`
	Description string    `gorm:"column:description;size:255"`
	Status      int16     `gorm:"column:status;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string {
	return "roles"
}

// Permission rows have no update timestamp.
type Permission struct {
	ID             int64     `gorm:"primaryKey"`
	PermissionName string    `gorm:"column:permission_name;size:64;not null"`
	PermissionCode string    `gorm:"column:permission_code;size:64;uniqueIndex;not null"`
	ResourceType   string    `gorm:"column:resource_type;size:32;index;not null"`
	ActionType     string    `gorm:"column:action_type;size:16;not null"`
	Description    string    `gorm:"column:description;size:255"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string {
	return "permissions"
}

type UserRole struct {
	UserID     int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	RoleID     int64     `gorm:"column:role_id;primaryKey;autoIncrement:false;index"`
	AssignedAt time.Time `gorm:"column:assigned_at;not null"`
	AssignedBy *int64    `gorm:"column:assigned_by"`
	Status     int16     `gorm:"column:status;not null"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

type RolePermission struct {
	RoleID       int64     `gorm:"column:role_id;primaryKey;autoIncrement:false"`
	PermissionID int64     `gorm:"column:permission_id;primaryKey;autoIncrement:false;index"`
	GrantedAt    time.Time `gorm:"column:granted_at;not null"`
	GrantedBy    *int64    `gorm:"column:granted_by"`
	Status       int16     `gorm:"column:status;not null"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

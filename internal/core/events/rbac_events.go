package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleCreated       = "rbac.role.created"
	EventTypeRoleUpdated       = "rbac.role.updated"
	EventTypeRoleDeleted       = "rbac.role.deleted"
	EventTypePermissionCreated = "rbac.permission.created"
	EventTypePermissionUpdated = "rbac.permission.updated"
	EventTypePermissionDeleted = "rbac.permission.deleted"
	EventTypeRoleAssigned      = "rbac.role.assigned"
	EventTypeRoleRevoked       = "rbac.role.revoked"
	EventTypePermissionGranted = "rbac.permission.granted"
	EventTypePermissionRevoked = "rbac.permission.revoked"

	EventTypeUserCreated         = "user.created"
	EventTypeUserUpdated         = "user.updated"
	EventTypeUserStatusChanged   = "user.status_changed"
	EventTypeUserPasswordChanged = "user.password_changed"

	EventTypeLoginSucceeded = "auth.login.succeeded"
	EventTypeLoginFailed    = "auth.login.failed"
	EventTypeLogout         = "auth.logout"
	EventTypeTokensRevoked  = "auth.tokens.revoked"
)

// KnownTypes lists every event type the service publishes.
var KnownTypes = []string{
	EventTypeRoleCreated, EventTypeRoleUpdated, EventTypeRoleDeleted,
	EventTypePermissionCreated, EventTypePermissionUpdated, EventTypePermissionDeleted,
	EventTypeRoleAssigned, EventTypeRoleRevoked,
	EventTypePermissionGranted, EventTypePermissionRevoked,
	EventTypeUserCreated, EventTypeUserUpdated, EventTypeUserStatusChanged, EventTypeUserPasswordChanged,
	EventTypeLoginSucceeded, EventTypeLoginFailed, EventTypeLogout, EventTypeTokensRevoked,
}

func newBase(eventType string, at time.Time, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}
}

// RoleEvent covers role and permission definition changes.
type RoleEvent struct {
	BaseEvent
	EntityID int64  `json:"entity_id"`
	Code     string `json:"code"`
	ActorID  *int64 `json:"actor_id,omitempty"`
}

func NewDefinitionEvent(eventType string, at time.Time, entityID int64, code string, actorID *int64) *RoleEvent {
	return &RoleEvent{
		BaseEvent: newBase(eventType, at, map[string]interface{}{
			"entity_id": entityID,
			"code":      code,
			"actor_id":  actorID,
		}),
		EntityID: entityID,
		Code:     code,
		ActorID:  actorID,
	}
}

// LinkEvent covers assignment and grant changes. Left is the user for
// assignments and the role for grants.
type LinkEvent struct {
	BaseEvent
	LeftID      int64  `json:"left_id"`
	RightID     int64  `json:"right_id"`
	ActorID     *int64 `json:"actor_id,omitempty"`
	Reactivated bool   `json:"reactivated"`
}

func NewAssignmentEvent(eventType string, at time.Time, userID, roleID int64, actorID *int64, reactivated bool) *LinkEvent {
	return &LinkEvent{
		BaseEvent: newBase(eventType, at, map[string]interface{}{
			"user_id":     userID,
			"role_id":     roleID,
			"actor_id":    actorID,
			"reactivated": reactivated,
		}),
		LeftID:      userID,
		RightID:     roleID,
		ActorID:     actorID,
		Reactivated: reactivated,
	}
}

func NewGrantEvent(eventType string, at time.Time, roleID, permissionID int64, actorID *int64, reactivated bool) *LinkEvent {
	return &LinkEvent{
		BaseEvent: newBase(eventType, at, map[string]interface{}{
			"role_id":       roleID,
			"permission_id": permissionID,
			"actor_id":      actorID,
			"reactivated":   reactivated,
		}),
		LeftID:      roleID,
		RightID:     permissionID,
		ActorID:     actorID,
		Reactivated: reactivated,
	}
}

type UserEvent struct {
	BaseEvent
	UserID int64 `json:"user_id"`
}

func NewUserEvent(eventType string, at time.Time, userID int64, data map[string]interface{}) *UserEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["user_id"] = userID
	return &UserEvent{
		BaseEvent: newBase(eventType, at, data),
		UserID:    userID,
	}
}

// AuthEvent records session activity. UserID is zero for failed logins of
// unknown accounts.
type AuthEvent struct {
	BaseEvent
	UserID  int64  `json:"user_id"`
	LoginID string `json:"login_id,omitempty"`
	IP      string `json:"ip,omitempty"`
}

func NewAuthEvent(eventType string, at time.Time, userID int64, loginID, ip string) *AuthEvent {
	return &AuthEvent{
		BaseEvent: newBase(eventType, at, map[string]interface{}{
			"user_id":  userID,
			"login_id": loginID,
			"ip":       ip,
		}),
		UserID:  userID,
		LoginID: loginID,
		IP:      ip,
	}
}

package rbac

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/transport"
)

// PermissionAuditView is required to check another user's permissions.
const PermissionAuditView = "permission:view"

type ServiceAPI interface {
	CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error)
	GetRole(ctx context.Context, id int64) (*Role, error)
	ListRoles(ctx context.Context, enabledOnly bool) ([]*Role, error)
	UpdateRole(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error)
	DeleteRole(ctx context.Context, id int64, force bool) error

	CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error)
	GetPermission(ctx context.Context, id int64) (*Permission, error)
	ListPermissions(ctx context.Context, resourceType string) ([]*Permission, error)
	PermissionTree(ctx context.Context) ([]PermissionGroup, error)
	UpdatePermission(ctx context.Context, id int64, dto UpdatePermissionDTO) (*Permission, error)
	DeletePermission(ctx context.Context, id int64, force bool) error

	AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64) (*Assignment, error)
	AssignUsers(ctx context.Context, roleID int64, userIDs []int64, assignedBy *int64) (*BatchResult, error)
	RevokeRole(ctx context.Context, userID, roleID int64) (bool, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64) (*Grant, error)
	GrantPermissions(ctx context.Context, roleID int64, permissionIDs []int64, grantedBy *int64) (*BatchResult, error)
	RevokePermission(ctx context.Context, roleID, permissionID int64) (bool, error)

	UsersForRole(ctx context.Context, roleID int64, activeOnly bool) ([]UserSummary, error)
	RolesForPermission(ctx context.Context, permissionID int64, activeOnly bool) ([]*Role, error)
	RolesForUser(ctx context.Context, userID int64, activeOnly bool) ([]*Role, error)
	PermissionsForRole(ctx context.Context, roleID int64, activeOnly bool) ([]*Permission, error)

	CreateRoles(ctx context.Context, dtos []CreateRoleDTO) ([]*Role, error)
	CreatePermissions(ctx context.Context, dtos []CreatePermissionDTO) ([]*Permission, error)
	RevokeUsers(ctx context.Context, roleID int64, userIDs []int64) (*BatchResult, error)
	RevokePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (*BatchResult, error)

	SearchRoles(ctx context.Context, q SearchQuery) ([]*Role, error)
	SearchPermissions(ctx context.Context, q SearchQuery) ([]*Permission, error)
	ResourceTypes(ctx context.Context) ([]string, error)
	ActionTypes(ctx context.Context) ([]string, error)
	RoleStatistics(ctx context.Context) (*RoleStatistics, error)
	PermissionStatistics(ctx context.Context) (*PermissionStatistics, error)
}

type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID int64, code string) (bool, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Checker PermissionChecker
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, checker PermissionChecker) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Checker:     checker,
	}
}

func actor(r *http.Request) *int64 {
	if id, ok := internal.UserIDFromContext(r.Context()); ok {
		return &id
	}
	return nil
}

func (h *Handler) searchQuery(w http.ResponseWriter, r *http.Request) (SearchQuery, bool) {
	q := SearchQuery{Keyword: r.URL.Query().Get("keyword")}
	var ok bool
	if q.Limit, ok = h.IntQuery(w, r, "limit", 0); !ok {
		return q, false
	}
	if q.Offset, ok = h.IntQuery(w, r, "offset", 0); !ok {
		return q, false
	}
	return q, true
}

// ----------------- ROLES -----------------

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context(), h.BoolQuery(r, "enabled_only", false))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	role, err := h.Service.CreateRole(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("CreateRole: service error", "error", err, "role_code", dto.RoleCode)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) SearchRoles(w http.ResponseWriter, r *http.Request) {
	q, ok := h.searchQuery(w, r)
	if !ok {
		return
	}
	roles, err := h.Service.SearchRoles(r.Context(), q)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

func (h *Handler) RoleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.RoleStatistics(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) CreateRoles(w http.ResponseWriter, r *http.Request) {
	var dto CreateRolesDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	roles, err := h.Service.CreateRoles(r.Context(), dto.Roles)
	if err != nil {
		h.Logger.Warn("CreateRoles: service error", "error", err, "count", len(dto.Roles))
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, RolesResponse{Roles: roles})
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	role, err := h.Service.GetRole(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto UpdateRoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	role, err := h.Service.UpdateRole(r.Context(), id, dto)
	if err != nil {
		h.Logger.Warn("UpdateRole: service error", "error", err, "role_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteRole(r.Context(), id, h.BoolQuery(r, "force", false)); err != nil {
		h.Logger.Warn("DeleteRole: service error", "error", err, "role_id", id)
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRoleUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	users, err := h.Service.UsersForRole(r.Context(), id, h.BoolQuery(r, "active_only", true))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (h *Handler) AssignUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto AssignUsersDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	result, err := h.Service.AssignUsers(r.Context(), id, dto.UserIDs, actor(r))
	if err != nil {
		h.Logger.Warn("AssignUsers: service error", "error", err, "role_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) RevokeUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto AssignUsersDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	result, err := h.Service.RevokeUsers(r.Context(), id, dto.UserIDs)
	if err != nil {
		h.Logger.Warn("RevokeUsers: service error", "error", err, "role_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.IDParam(w, r, "userID")
	if !ok {
		return
	}

	assignment, err := h.Service.AssignRole(r.Context(), userID, roleID, actor(r))
	if err != nil {
		h.Logger.Warn("AssignRole: service error", "error", err, "role_id", roleID, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, assignment)
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.IDParam(w, r, "userID")
	if !ok {
		return
	}

	revoked, err := h.Service.RevokeRole(r.Context(), userID, roleID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RevokeResponse{Revoked: revoked})
}

func (h *Handler) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	perms, err := h.Service.PermissionsForRole(r.Context(), id, h.BoolQuery(r, "active_only", true))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

func (h *Handler) GrantPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto GrantPermissionsDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	result, err := h.Service.GrantPermissions(r.Context(), id, dto.PermissionIDs, actor(r))
	if err != nil {
		h.Logger.Warn("GrantPermissions: service error", "error", err, "role_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) RevokePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto GrantPermissionsDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	result, err := h.Service.RevokePermissions(r.Context(), id, dto.PermissionIDs)
	if err != nil {
		h.Logger.Warn("RevokePermissions: service error", "error", err, "role_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := h.IDParam(w, r, "permissionID")
	if !ok {
		return
	}

	grant, err := h.Service.GrantPermission(r.Context(), roleID, permissionID, actor(r))
	if err != nil {
		h.Logger.Warn("GrantPermission: service error", "error", err, "role_id", roleID, "permission_id", permissionID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, grant)
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := h.IDParam(w, r, "permissionID")
	if !ok {
		return
	}

	revoked, err := h.Service.RevokePermission(r.Context(), roleID, permissionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RevokeResponse{Revoked: revoked})
}

// ----------------- PERMISSIONS -----------------

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.ListPermissions(r.Context(), r.URL.Query().Get("resource_type"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

func (h *Handler) PermissionTree(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Service.PermissionTree(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionTreeResponse{Resources: groups})
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	perm, err := h.Service.CreatePermission(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("CreatePermission: service error", "error", err, "permission_code", dto.PermissionCode)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, perm)
}

func (h *Handler) SearchPermissions(w http.ResponseWriter, r *http.Request) {
	q, ok := h.searchQuery(w, r)
	if !ok {
		return
	}
	perms, err := h.Service.SearchPermissions(r.Context(), q)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

func (h *Handler) ResourceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ResourceTypes(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, TypesResponse{Types: types})
}

func (h *Handler) ActionTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ActionTypes(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, TypesResponse{Types: types})
}

func (h *Handler) PermissionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.PermissionStatistics(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) CreatePermissions(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionsDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	perms, err := h.Service.CreatePermissions(r.Context(), dto.Permissions)
	if err != nil {
		h.Logger.Warn("CreatePermissions: service error", "error", err, "count", len(dto.Permissions))
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, PermissionsResponse{Permissions: perms})
}

func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	perm, err := h.Service.GetPermission(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
}

func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto UpdatePermissionDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	perm, err := h.Service.UpdatePermission(r.Context(), id, dto)
	if err != nil {
		h.Logger.Warn("UpdatePermission: service error", "error", err, "permission_id", id)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
}

func (h *Handler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.DeletePermission(r.Context(), id, h.BoolQuery(r, "force", false)); err != nil {
		h.Logger.Warn("DeletePermission: service error", "error", err, "permission_id", id)
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPermissionRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	roles, err := h.Service.RolesForPermission(r.Context(), id, h.BoolQuery(r, "active_only", true))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

// ----------------- USERS & DECISIONS -----------------

func (h *Handler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	roles, err := h.Service.RolesForUser(r.Context(), id, h.BoolQuery(r, "active_only", true))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

// CheckPermission answers GET /authz/check?permission=code[&user_id=n]. The
// caller is checked by default; naming another user needs permission:view.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	callerID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	target := callerID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.WriteAppError(w, internal.NewValidationFieldError("user_id", "user_id must be a positive integer", internal.ErrCodeInvalidID))
			return
		}
		target = id
	}

	if target != callerID {
		allowed, err := h.Checker.CheckPermission(r.Context(), callerID, PermissionAuditView)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		if !allowed {
			h.WriteAppError(w, internal.ErrPermissionDenied)
			return
		}
	}

	code := r.URL.Query().Get("permission")
	allowed, err := h.Checker.CheckPermission(r.Context(), target, code)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, CheckPermissionResponse{UserID: target, Permission: code, Allowed: allowed})
}

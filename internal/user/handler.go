package user

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/transport"
)

type ServiceAPI interface {
	CreateUser(ctx context.Context, dto CreateUserDTO) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, filter ListFilter) ([]*User, int64, error)
	UpdateUser(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error)
	SetStatus(ctx context.Context, id int64, status Status) (*User, error)
	ChangePassword(ctx context.Context, id int64, dto ChangePasswordDTO) error
	CreateUsers(ctx context.Context, dtos []CreateUserDTO) ([]*User, error)
	Statistics(ctx context.Context) (*Statistics, error)
}

// AccessReader reports a user's live role and permission codes.
type AccessReader interface {
	RoleCodes(ctx context.Context, userID int64) ([]string, error)
	PermissionCodes(ctx context.Context, userID int64) ([]string, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Access  AccessReader
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI, access AccessReader) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
		Access:      access,
	}
}

func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.Logger.Warn("user not found in context", "path", r.URL.Path)
		h.WriteAppError(w, internal.ErrMissingToken)
		return 0, false
	}
	return id, true
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}

	u, err := h.Service.GetUser(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	roles, err := h.Access.RoleCodes(r.Context(), id)
	if err != nil {
		h.Logger.Error("GetCurrentUser: role lookup failed", "user_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	perms, err := h.Access.PermissionCodes(r.Context(), id)
	if err != nil {
		h.Logger.Error("GetCurrentUser: permission lookup failed", "user_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ProfileResponse{User: u, Roles: roles, Permissions: perms})
}

// GetCurrentPermissions handles GET /users/me/permissions
func (h *Handler) GetCurrentPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	perms, err := h.Access.PermissionCodes(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionCodesResponse{Permissions: perms})
}

// ChangeOwnPassword handles PUT /users/me/password
func (h *Handler) ChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var dto ChangePasswordDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if err := h.Service.ChangePassword(r.Context(), id, dto); err != nil {
		h.Logger.Warn("ChangeOwnPassword: service error", "user_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	u, err := h.Service.CreateUser(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("CreateUser: service error", "username", dto.Username, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) CreateUsers(w http.ResponseWriter, r *http.Request) {
	var dto CreateUsersDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	users, err := h.Service.CreateUsers(r.Context(), dto.Users)
	if err != nil {
		h.Logger.Warn("CreateUsers: service error", "count", len(dto.Users), "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, UsersResponse{Users: users})
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Statistics(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	u, err := h.Service.GetUser(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// ListUsers handles GET /users?status=&q=&limit=&offset=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Keyword: q.Get("q")}

	var ok bool
	if filter.Limit, ok = h.IntQuery(w, r, "limit", 0); !ok {
		return
	}
	if filter.Offset, ok = h.IntQuery(w, r, "offset", 0); !ok {
		return
	}
	if raw := q.Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("status", "status must be 0 or 1", internal.ErrCodeInvalidStatus))
			return
		}
		status := Status(n)
		filter.Status = &status
	}

	users, total, err := h.Service.ListUsers(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	limit := filter.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	h.WriteJSON(w, http.StatusOK, ListUsersResponse{Users: users, Total: total, Limit: limit, Offset: filter.Offset})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto UpdateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	u, err := h.Service.UpdateUser(r.Context(), id, dto)
	if err != nil {
		h.Logger.Warn("UpdateUser: service error", "user_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// UpdateStatus handles PATCH /users/{id}/status. Callers cannot disable
// themselves.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto UpdateStatusDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if dto.Status == nil {
		h.WriteAppError(w, internal.NewValidationFieldError("status", "status is required", internal.ErrCodeValidationFailed))
		return
	}
	if caller, ok := internal.UserIDFromContext(r.Context()); ok && caller == id && *dto.Status == StatusDisabled {
		h.WriteAppError(w, internal.NewConflictError("users cannot disable themselves", internal.ErrCodeSelfDisable))
		return
	}

	u, err := h.Service.SetStatus(r.Context(), id, *dto.Status)
	if err != nil {
		h.Logger.Warn("UpdateStatus: service error", "user_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

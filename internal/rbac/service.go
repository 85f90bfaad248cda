package rbac

import (
	"context"
	"log/slog"
	"strings"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
	"github.com/frahmantamala/rbac-service/internal/core/database"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	"github.com/frahmantamala/rbac-service/internal/core/events"
)

// Invalidator drops cached permission decisions. Engine implements it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type linkOutcome int

const (
	linkCreated linkOutcome = iota
	linkReactivated
	linkSkipped
)

// Service manages roles, permissions, assignments and grants. Every mutation
// runs in one transaction; the permission cache is invalidated and an event
// published only after it commits.
type Service struct {
	repo        RepositoryAPI
	tx          database.TxManager
	invalidator Invalidator
	publisher   events.Publisher
	clock       clock.Clock
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, tx database.TxManager, invalidator Invalidator, publisher events.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		repo:        repo,
		tx:          tx,
		invalidator: invalidator,
		publisher:   publisher,
		clock:       clk,
		logger:      logger,
	}
}

func (s *Service) storeError(ctx context.Context, msg string, err error) error {
	if _, ok := errors.IsAppError(err); ok {
		return err
	}
	s.logger.ErrorContext(ctx, msg, "error", err)
	return errors.NewBusinessLogicError(msg, err)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func actorFrom(ctx context.Context) *int64 {
	if id, ok := errors.UserIDFromContext(ctx); ok {
		return &id
	}
	return nil
}

// ----------------- ROLES -----------------

func (s *Service) CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	created, err := s.createRole(ctx, dto)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "role created", "role_id", created.ID, "role_code", created.RoleCode)
	s.publish(ctx, events.NewDefinitionEvent(events.EventTypeRoleCreated, s.clock.Now(), created.ID, created.RoleCode, actorFrom(ctx)))
	return created, nil
}

// createRole validates and inserts one role. It publishes nothing, so batch
// callers can hold events until their transaction commits.
func (s *Service) createRole(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	role := &Role{
		RoleName:    strings.TrimSpace(dto.RoleName),
		RoleCode:    strings.ToLower(strings.TrimSpace(dto.RoleCode)),
		Description: strings.TrimSpace(dto.Description),
		Status:      RoleEnabled,
	}
	if dto.Status != nil {
		role.Status = *dto.Status
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetRoleByCode(ctx, role.RoleCode)
	if err != nil {
		return nil, s.storeError(ctx, "failed to look up role", err)
	}
	if existing != nil {
		return nil, errors.NewConflictError("role code already exists", errors.ErrCodeDuplicateRole)
	}

	data := RoleToDataModel(role)
	if err := s.repo.CreateRole(ctx, data); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.NewConflictError("role code already exists", errors.ErrCodeDuplicateRole)
		}
		return nil, s.storeError(ctx, "failed to create role", err)
	}
	return RoleFromDataModel(data), nil
}

func validateRole(role *Role) error {
	if appErr := validation.ValidateRoleName(role.RoleName); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateRoleCode(role.RoleCode); appErr != nil {
		return appErr
	}
	if !role.Status.Valid() {
		return errors.NewValidationFieldError("status", "status must be 0 or 1", errors.ErrCodeInvalidStatus)
	}
	return nil
}

func (s *Service) getRole(ctx context.Context, id int64) (*rbacDatamodel.Role, error) {
	if appErr := validation.ValidateID("role_id", id); appErr != nil {
		return nil, appErr
	}
	role, err := s.repo.GetRoleByID(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "failed to get role", err)
	}
	if role == nil {
		return nil, errors.NewNotFoundError("role not found", errors.ErrCodeRoleNotFound)
	}
	return role, nil
}

func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	role, err := s.getRole(ctx, id)
	if err != nil {
		return nil, err
	}
	return RoleFromDataModel(role), nil
}

func (s *Service) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	role, err := s.repo.GetRoleByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		return nil, s.storeError(ctx, "failed to get role", err)
	}
	if role == nil {
		return nil, errors.NewNotFoundError("role not found", errors.ErrCodeRoleNotFound)
	}
	return RoleFromDataModel(role), nil
}

func (s *Service) ListRoles(ctx context.Context, enabledOnly bool) ([]*Role, error) {
	roles, err := s.repo.ListRoles(ctx, enabledOnly)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list roles", err)
	}
	return rolesFromDataModel(roles), nil
}

// UpdateRole applies dto. A change of code or status invalidates the
// permission cache because both feed permission decisions.
func (s *Service) UpdateRole(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error) {
	var (
		updated *Role
		changed bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		data, err := s.getRole(txCtx, id)
		if err != nil {
			return err
		}
		role := RoleFromDataModel(data)
		before := *role

		if dto.RoleName != nil {
			role.RoleName = strings.TrimSpace(*dto.RoleName)
		}
		if dto.RoleCode != nil {
			role.RoleCode = strings.ToLower(strings.TrimSpace(*dto.RoleCode))
		}
		if dto.Description != nil {
			role.Description = strings.TrimSpace(*dto.Description)
		}
		if dto.Status != nil {
			role.Status = *dto.Status
		}
		if err := validateRole(role); err != nil {
			return err
		}

		if role.RoleCode != before.RoleCode {
			existing, err := s.repo.GetRoleByCode(txCtx, role.RoleCode)
			if err != nil {
				return s.storeError(txCtx, "failed to look up role", err)
			}
			if existing != nil && existing.ID != role.ID {
				return errors.NewConflictError("role code already exists", errors.ErrCodeDuplicateRole)
			}
		}

		next := RoleToDataModel(role)
		if err := s.repo.UpdateRole(txCtx, next); err != nil {
			if database.IsUniqueViolation(err) {
				return errors.NewConflictError("role code already exists", errors.ErrCodeDuplicateRole)
			}
			return s.storeError(txCtx, "failed to update role", err)
		}

		updated = RoleFromDataModel(next)
		changed = role.RoleCode != before.RoleCode || role.Status != before.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "role updated", "role_id", updated.ID, "role_code", updated.RoleCode, "status", updated.Status.String())
	s.publish(ctx, events.NewDefinitionEvent(events.EventTypeRoleUpdated, s.clock.Now(), updated.ID, updated.RoleCode, actorFrom(ctx)))
	return updated, nil
}

// DeleteRole removes a role. Without force any assignment row, active or
// revoked, blocks the delete. With force the role's assignments and grants
// go first, in the same transaction.
func (s *Service) DeleteRole(ctx context.Context, id int64, force bool) error {
	var code string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.getRole(txCtx, id)
		if err != nil {
			return err
		}
		code = role.RoleCode

		if !force {
			users, err := s.repo.UsersForRole(txCtx, id, false)
			if err != nil {
				return s.storeError(txCtx, "failed to list role users", err)
			}
			if len(users) > 0 {
				names := make([]string, 0, 3)
				for i := 0; i < len(users) && i < 3; i++ {
					names = append(names, users[i].Username)
				}
				return errors.NewDependencyConflictError("role is assigned to users", errors.ErrCodeRoleInUse, names, len(users))
			}
		}

		if err := s.repo.DeleteAssignmentsForRole(txCtx, id); err != nil {
			return s.storeError(txCtx, "failed to delete role assignments", err)
		}
		if err := s.repo.DeleteGrantsForRole(txCtx, id); err != nil {
			return s.storeError(txCtx, "failed to delete role grants", err)
		}
		if err := s.repo.DeleteRole(txCtx, id); err != nil {
			return s.storeError(txCtx, "failed to delete role", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "role deleted", "role_id", id, "role_code", code, "force", force)
	s.publish(ctx, events.NewDefinitionEvent(events.EventTypeRoleDeleted, s.clock.Now(), id, code, actorFrom(ctx)))
	return nil
}

// ----------------- PERMISSIONS -----------------

func normalizePermission(p *Permission) {
	p.PermissionName = strings.TrimSpace(p.PermissionName)
	p.PermissionCode = strings.ToLower(strings.TrimSpace(p.PermissionCode))
	p.ResourceType = strings.ToLower(strings.TrimSpace(p.ResourceType))
	p.ActionType = strings.ToLower(strings.TrimSpace(p.ActionType))
	p.Description = strings.TrimSpace(p.Description)
}

func validatePermission(p *Permission) error {
	if appErr := validation.ValidatePermissionDefinition(p.PermissionName, p.PermissionCode, p.ResourceType, p.ActionType); appErr != nil {
		return appErr
	}
	return nil
}

func (s *Service) CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error) {
	created, err := s.createPermission(ctx, dto)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "permission created", "permission_id", created.ID, "permission_code", created.PermissionCode)
	s.publish(ctx, events.NewDefinitionEvent(events.EventTypePermissionCreated, s.clock.Now(), created.ID, created.PermissionCode, actorFrom(ctx)))
	return created, nil
}

func (s *Service) createPermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error) {
	perm := &Permission{
		PermissionName: dto.PermissionName,
		PermissionCode: dto.PermissionCode,
		ResourceType:   dto.ResourceType,
		ActionType:     dto.ActionType,
		Description:    dto.Description,
	}
	normalizePermission(perm)
	if err := validatePermission(perm); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetPermissionByCode(ctx, perm.PermissionCode)
	if err != nil {
		return nil, s.storeError(ctx, "failed to look up permission", err)
	}
	if existing != nil {
		return nil, errors.NewConflictError("permission code already exists", errors.ErrCodeDuplicatePermission)
	}

	data := PermissionToDataModel(perm)
	if err := s.repo.CreatePermission(ctx, data); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.NewConflictError("permission code already exists", errors.ErrCodeDuplicatePermission)
		}
		return nil, s.storeError(ctx, "failed to create permission", err)
	}
	return PermissionFromDataModel(data), nil
}

func (s *Service) getPermission(ctx context.Context, id int64) (*rbacDatamodel.Permission, error) {
	if appErr := validation.ValidateID("permission_id", id); appErr != nil {
		return nil, appErr
	}
	perm, err := s.repo.GetPermissionByID(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "failed to get permission", err)
	}
	if perm == nil {
		return nil, errors.NewNotFoundError("permission not found", errors.ErrCodePermissionNotFound)
	}
	return perm, nil
}

func (s *Service) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	perm, err := s.getPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	return PermissionFromDataModel(perm), nil
}

// ListPermissions returns every permission, or those of one resource type.
func (s *Service) ListPermissions(ctx context.Context, resourceType string) ([]*Permission, error) {
	perms, err := s.repo.ListPermissions(ctx, strings.ToLower(strings.TrimSpace(resourceType)))
	if err != nil {
		return nil, s.storeError(ctx, "failed to list permissions", err)
	}
	return permissionsFromDataModel(perms), nil
}

// PermissionTree groups permissions by resource type, in resource order.
func (s *Service) PermissionTree(ctx context.Context) ([]PermissionGroup, error) {
	perms, err := s.ListPermissions(ctx, "")
	if err != nil {
		return nil, err
	}

	groups := make([]PermissionGroup, 0)
	index := make(map[string]int)
	for _, p := range perms {
		i, ok := index[p.ResourceType]
		if !ok {
			i = len(groups)
			index[p.ResourceType] = i
			groups = append(groups, PermissionGroup{ResourceType: p.ResourceType})
		}
		groups[i].Permissions = append(groups[i].Permissions, p)
	}
	return groups, nil
}

func (s *Service) UpdatePermission(ctx context.Context, id int64, dto UpdatePermissionDTO) (*Permission, error) {
	var (
		updated     *Permission
		codeChanged bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		data, err := s.getPermission(txCtx, id)
		if err != nil {
			return err
		}
		perm := PermissionFromDataModel(data)
		previousCode := perm.PermissionCode

		if dto.PermissionName != nil {
			perm.PermissionName = *dto.PermissionName
		}
		if dto.PermissionCode != nil {
			perm.PermissionCode = *dto.PermissionCode
		}
		if dto.ResourceType != nil {
			perm.ResourceType = *dto.ResourceType
		}
		if dto.ActionType != nil {
			perm.ActionType = *dto.ActionType
		}
		if dto.Description != nil {
			perm.Description = *dto.Description
		}
		normalizePermission(perm)
		if err := validatePermission(perm); err != nil {
			return err
		}

		codeChanged = perm.PermissionCode != previousCode
		if codeChanged {
			existing, err := s.repo.GetPermissionByCode(txCtx, perm.PermissionCode)
			if err != nil {
				return s.storeError(txCtx, "failed to look up permission", err)
			}
			if existing != nil && existing.ID != perm.ID {
				return errors.NewConflictError("permission code already exists", errors.ErrCodeDuplicatePermission)
			}
		}

		next := PermissionToDataModel(perm)
		if err := s.repo.UpdatePermission(txCtx, next); err != nil {
			if database.IsUniqueViolation(err) {
				return errors.NewConflictError("permission code already exists", errors.ErrCodeDuplicatePermission)
			}
			return s.storeError(txCtx, "failed to update permission", err)
		}
		updated = PermissionFromDataModel(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if codeChanged {
		s.invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "permission updated", "permission_id", updated.ID, "permission_code", updated.PermissionCode)
	s.publish(ctx, events.NewDefinitionEvent(events.EventTypePermissionUpdated, s.clock.Now(), updated.ID, updated.PermissionCode, actorFrom(ctx)))
	return updated, nil
}

// DeletePermission mirrors DeleteRole over grants. Blocking roles are named
// in the conflict.
func (s *Service) DeletePermission(ctx context.Context, id int64, force bool) error {
	var code string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		perm, err := s.getPermission(txCtx, id)
		if err != nil {
			return err
		}
		code = perm.PermissionCode

		if !force {
			roles, err := s.repo.RolesForPermission(txCtx, id, false)
			if err != nil {
				return s.storeError(txCtx, "failed to list permission roles", err)
			}
			if len(roles) > 0 {
				names := make([]string, 0, 3)
				for i := 0; i < len(roles) && i < 3; i++ {
					names = append(names, roles[i].RoleName)
				}
				return errors.NewDependencyConflictError("permission is granted to roles", errors.ErrCodePermissionInUse, names, len(roles))
			}
		}

		if err := s.repo.DeleteGrantsForPermission(txCtx, id); err != nil {
			return s.storeError(txCtx, "failed to delete permission grants", err)
		}
		if err := s.repo.DeletePermission(txCtx, id); err != nil {
			return s.storeError(txCtx, "failed to delete permission", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "permission deleted", "permission_id", id, "permission_code", code, "force", force)
	s.publish(ctx, events.NewDefinitionEvent(events.EventTypePermissionDeleted, s.clock.Now(), id, code, actorFrom(ctx)))
	return nil
}

// ----------------- ASSIGNMENTS -----------------

func (s *Service) requireUser(ctx context.Context, id int64, what string) error {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return s.storeError(ctx, "failed to get user", err)
	}
	if u == nil {
		return errors.NewNotFoundError(what+" not found", errors.ErrCodeUserNotFound)
	}
	return nil
}

func (s *Service) requireEnabledRole(ctx context.Context, id int64) error {
	role, err := s.getRole(ctx, id)
	if err != nil {
		return err
	}
	if role.Status != rbacDatamodel.StatusOn {
		return errors.NewConflictError("role is disabled", errors.ErrCodeRoleDisabled)
	}
	return nil
}

// assign is the find-then-branch step shared by AssignRole and AssignUsers.
// It must run inside a transaction. With skipActive an already active row is
// reported as skipped instead of a conflict.
func (s *Service) assign(ctx context.Context, userID, roleID int64, assignedBy *int64, skipActive bool) (*Assignment, linkOutcome, error) {
	if appErr := validation.ValidateID("user_id", userID); appErr != nil {
		return nil, 0, appErr
	}
	if assignedBy != nil && *assignedBy == userID {
		return nil, 0, errors.NewConflictError("users cannot assign roles to themselves", errors.ErrCodeSelfAssignment)
	}
	if err := s.requireUser(ctx, userID, "user"); err != nil {
		return nil, 0, err
	}
	if assignedBy != nil {
		if err := s.requireUser(ctx, *assignedBy, "assigning user"); err != nil {
			return nil, 0, err
		}
	}
	if err := s.requireEnabledRole(ctx, roleID); err != nil {
		return nil, 0, err
	}

	existing, err := s.repo.FindAssignment(ctx, userID, roleID)
	if err != nil {
		return nil, 0, s.storeError(ctx, "failed to find assignment", err)
	}

	duplicate := errors.NewConflictError("role is already assigned to user", errors.ErrCodeDuplicateAssignment)

	if existing != nil {
		if existing.Status == rbacDatamodel.StatusOn {
			if skipActive {
				return AssignmentFromDataModel(existing), linkSkipped, nil
			}
			return nil, 0, duplicate
		}
		ok, err := s.repo.SetAssignmentStatus(ctx, userID, roleID, rbacDatamodel.StatusOff, rbacDatamodel.StatusOn)
		if err != nil {
			return nil, 0, s.storeError(ctx, "failed to reactivate assignment", err)
		}
		if !ok {
			return nil, 0, duplicate
		}
		existing.Status = rbacDatamodel.StatusOn
		return AssignmentFromDataModel(existing), linkReactivated, nil
	}

	row := &rbacDatamodel.UserRole{
		UserID:     userID,
		RoleID:     roleID,
		AssignedAt: s.clock.Now(),
		AssignedBy: assignedBy,
		Status:     rbacDatamodel.StatusOn,
	}
	if err := s.repo.CreateAssignment(ctx, row); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, 0, duplicate
		}
		return nil, 0, s.storeError(ctx, "failed to create assignment", err)
	}
	return AssignmentFromDataModel(row), linkCreated, nil
}

// AssignRole gives userID the role. A revoked assignment is reactivated in
// place and keeps its original assigned_at and assigned_by.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64) (*Assignment, error) {
	var (
		assignment *Assignment
		outcome    linkOutcome
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		assignment, outcome, err = s.assign(txCtx, userID, roleID, assignedBy, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "role assigned", "user_id", userID, "role_id", roleID, "reactivated", outcome == linkReactivated)
	s.publish(ctx, events.NewAssignmentEvent(events.EventTypeRoleAssigned, s.clock.Now(), userID, roleID, assignedBy, outcome == linkReactivated))
	return assignment, nil
}

// AssignUsers assigns the role to every user in one transaction. Users that
// already hold the role are skipped; any other failure rolls back the batch.
func (s *Service) AssignUsers(ctx context.Context, roleID int64, userIDs []int64, assignedBy *int64) (*BatchResult, error) {
	if len(userIDs) == 0 {
		return nil, errors.NewValidationFieldError("user_ids", "user_ids must not be empty", errors.ErrCodeValidationFailed)
	}

	result := &BatchResult{}
	var reactivated []int64
	var created []int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, userID := range dedupe(userIDs) {
			_, outcome, err := s.assign(txCtx, userID, roleID, assignedBy, true)
			if err != nil {
				return err
			}
			switch outcome {
			case linkSkipped:
				result.Skipped++
			case linkReactivated:
				result.Applied++
				reactivated = append(reactivated, userID)
			default:
				result.Applied++
				created = append(created, userID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied > 0 {
		s.invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "role assigned to users", "role_id", roleID, "applied", result.Applied, "skipped", result.Skipped)
	now := s.clock.Now()
	for _, id := range created {
		s.publish(ctx, events.NewAssignmentEvent(events.EventTypeRoleAssigned, now, id, roleID, assignedBy, false))
	}
	for _, id := range reactivated {
		s.publish(ctx, events.NewAssignmentEvent(events.EventTypeRoleAssigned, now, id, roleID, assignedBy, true))
	}
	return result, nil
}

// RevokeRole reports whether an active assignment was revoked. A missing or
// already revoked assignment is not an error.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID int64) (bool, error) {
	if appErr := validation.ValidateID("user_id", userID); appErr != nil {
		return false, appErr
	}
	if appErr := validation.ValidateID("role_id", roleID); appErr != nil {
		return false, appErr
	}

	var revoked bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		revoked, err = s.repo.SetAssignmentStatus(txCtx, userID, roleID, rbacDatamodel.StatusOn, rbacDatamodel.StatusOff)
		if err != nil {
			return s.storeError(txCtx, "failed to revoke assignment", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !revoked {
		return false, nil
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "role revoked", "user_id", userID, "role_id", roleID)
	s.publish(ctx, events.NewAssignmentEvent(events.EventTypeRoleRevoked, s.clock.Now(), userID, roleID, actorFrom(ctx), false))
	return true, nil
}

// ----------------- GRANTS -----------------

func (s *Service) grant(ctx context.Context, roleID, permissionID int64, grantedBy *int64, skipActive bool) (*Grant, linkOutcome, error) {
	if _, err := s.getRole(ctx, roleID); err != nil {
		return nil, 0, err
	}
	if _, err := s.getPermission(ctx, permissionID); err != nil {
		return nil, 0, err
	}
	if grantedBy != nil {
		if err := s.requireUser(ctx, *grantedBy, "granting user"); err != nil {
			return nil, 0, err
		}
	}

	existing, err := s.repo.FindGrant(ctx, roleID, permissionID)
	if err != nil {
		return nil, 0, s.storeError(ctx, "failed to find grant", err)
	}

	duplicate := errors.NewConflictError("permission is already granted to role", errors.ErrCodeDuplicateGrant)

	if existing != nil {
		if existing.Status == rbacDatamodel.StatusOn {
			if skipActive {
				return GrantFromDataModel(existing), linkSkipped, nil
			}
			return nil, 0, duplicate
		}
		ok, err := s.repo.SetGrantStatus(ctx, roleID, permissionID, rbacDatamodel.StatusOff, rbacDatamodel.StatusOn)
		if err != nil {
			return nil, 0, s.storeError(ctx, "failed to reactivate grant", err)
		}
		if !ok {
			return nil, 0, duplicate
		}
		existing.Status = rbacDatamodel.StatusOn
		return GrantFromDataModel(existing), linkReactivated, nil
	}

	row := &rbacDatamodel.RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
		GrantedAt:    s.clock.Now(),
		GrantedBy:    grantedBy,
		Status:       rbacDatamodel.StatusOn,
	}
	if err := s.repo.CreateGrant(ctx, row); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, 0, duplicate
		}
		return nil, 0, s.storeError(ctx, "failed to create grant", err)
	}
	return GrantFromDataModel(row), linkCreated, nil
}

func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64) (*Grant, error) {
	var (
		g       *Grant
		outcome linkOutcome
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		g, outcome, err = s.grant(txCtx, roleID, permissionID, grantedBy, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "permission granted", "role_id", roleID, "permission_id", permissionID, "reactivated", outcome == linkReactivated)
	s.publish(ctx, events.NewGrantEvent(events.EventTypePermissionGranted, s.clock.Now(), roleID, permissionID, grantedBy, outcome == linkReactivated))
	return g, nil
}

func (s *Service) GrantPermissions(ctx context.Context, roleID int64, permissionIDs []int64, grantedBy *int64) (*BatchResult, error) {
	if len(permissionIDs) == 0 {
		return nil, errors.NewValidationFieldError("permission_ids", "permission_ids must not be empty", errors.ErrCodeValidationFailed)
	}

	result := &BatchResult{}
	type applied struct {
		id          int64
		reactivated bool
	}
	var done []applied
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, permissionID := range dedupe(permissionIDs) {
			_, outcome, err := s.grant(txCtx, roleID, permissionID, grantedBy, true)
			if err != nil {
				return err
			}
			if outcome == linkSkipped {
				result.Skipped++
				continue
			}
			result.Applied++
			done = append(done, applied{id: permissionID, reactivated: outcome == linkReactivated})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied > 0 {
		s.invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "permissions granted to role", "role_id", roleID, "applied", result.Applied, "skipped", result.Skipped)
	now := s.clock.Now()
	for _, a := range done {
		s.publish(ctx, events.NewGrantEvent(events.EventTypePermissionGranted, now, roleID, a.id, grantedBy, a.reactivated))
	}
	return result, nil
}

func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	if appErr := validation.ValidateID("role_id", roleID); appErr != nil {
		return false, appErr
	}
	if appErr := validation.ValidateID("permission_id", permissionID); appErr != nil {
		return false, appErr
	}

	var revoked bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		revoked, err = s.repo.SetGrantStatus(txCtx, roleID, permissionID, rbacDatamodel.StatusOn, rbacDatamodel.StatusOff)
		if err != nil {
			return s.storeError(txCtx, "failed to revoke grant", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !revoked {
		return false, nil
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "permission revoked", "role_id", roleID, "permission_id", permissionID)
	s.publish(ctx, events.NewGrantEvent(events.EventTypePermissionRevoked, s.clock.Now(), roleID, permissionID, actorFrom(ctx), false))
	return true, nil
}

// ----------------- LISTINGS -----------------

func (s *Service) UsersForRole(ctx context.Context, roleID int64, activeOnly bool) ([]UserSummary, error) {
	if _, err := s.getRole(ctx, roleID); err != nil {
		return nil, err
	}
	users, err := s.repo.UsersForRole(ctx, roleID, activeOnly)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list role users", err)
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{ID: u.ID, Username: u.Username, Email: u.Email, Status: u.Status})
	}
	return out, nil
}

func (s *Service) RolesForPermission(ctx context.Context, permissionID int64, activeOnly bool) ([]*Role, error) {
	if _, err := s.getPermission(ctx, permissionID); err != nil {
		return nil, err
	}
	roles, err := s.repo.RolesForPermission(ctx, permissionID, activeOnly)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list permission roles", err)
	}
	return rolesFromDataModel(roles), nil
}

func (s *Service) RolesForUser(ctx context.Context, userID int64, activeOnly bool) ([]*Role, error) {
	if err := s.requireUser(ctx, userID, "user"); err != nil {
		return nil, err
	}
	roles, err := s.repo.RolesForUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list user roles", err)
	}
	return rolesFromDataModel(roles), nil
}

// PermissionsForRole lists the role's permissions. activeOnly keeps active
// grants and yields nothing for a disabled role.
func (s *Service) PermissionsForRole(ctx context.Context, roleID int64, activeOnly bool) ([]*Permission, error) {
	if _, err := s.getRole(ctx, roleID); err != nil {
		return nil, err
	}
	perms, err := s.repo.PermissionsForRoles(ctx, []int64{roleID}, activeOnly)
	if err != nil {
		return nil, s.storeError(ctx, "failed to list role permissions", err)
	}
	return permissionsFromDataModel(perms), nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package rbac

import (
	"context"
	"fmt"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	"github.com/frahmantamala/rbac-service/internal/core/events"
)

// MaxBatchSize bounds every batch create and batch revoke.
const MaxBatchSize = 100

func checkBatch(field string, n int) error {
	if n == 0 {
		return errors.NewValidationFieldError(field, field+" must not be empty", errors.ErrCodeValidationFailed)
	}
	if n > MaxBatchSize {
		return errors.NewValidationFieldError(field, fmt.Sprintf("%s must not hold more than %d entries", field, MaxBatchSize), errors.ErrCodeValidationFailed)
	}
	return nil
}

// itemError names the batch entry that failed. The code and status of err
// are kept.
func itemError(field string, i int, err error) error {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		return err
	}
	return appErr.WithMessage(fmt.Sprintf("%s[%d]: %s", field, i, appErr.GetDetailedMessage()))
}

// CreateRoles creates every role or none. Codes repeated inside the batch
// conflict like codes already stored.
func (s *Service) CreateRoles(ctx context.Context, dtos []CreateRoleDTO) ([]*Role, error) {
	if err := checkBatch("roles", len(dtos)); err != nil {
		return nil, err
	}

	created := make([]*Role, 0, len(dtos))
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for i, dto := range dtos {
			role, err := s.createRole(txCtx, dto)
			if err != nil {
				return itemError("roles", i, err)
			}
			created = append(created, role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "roles created", "count", len(created))
	now := s.clock.Now()
	for _, role := range created {
		s.publish(ctx, events.NewDefinitionEvent(events.EventTypeRoleCreated, now, role.ID, role.RoleCode, actorFrom(ctx)))
	}
	return created, nil
}

// CreatePermissions creates every permission or none.
func (s *Service) CreatePermissions(ctx context.Context, dtos []CreatePermissionDTO) ([]*Permission, error) {
	if err := checkBatch("permissions", len(dtos)); err != nil {
		return nil, err
	}

	created := make([]*Permission, 0, len(dtos))
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for i, dto := range dtos {
			perm, err := s.createPermission(txCtx, dto)
			if err != nil {
				return itemError("permissions", i, err)
			}
			created = append(created, perm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "permissions created", "count", len(created))
	now := s.clock.Now()
	for _, perm := range created {
		s.publish(ctx, events.NewDefinitionEvent(events.EventTypePermissionCreated, now, perm.ID, perm.PermissionCode, actorFrom(ctx)))
	}
	return created, nil
}

// RevokeUsers revokes the role from every listed user in one transaction.
// Users without an active assignment are counted as skipped.
func (s *Service) RevokeUsers(ctx context.Context, roleID int64, userIDs []int64) (*BatchResult, error) {
	if err := checkBatch("user_ids", len(userIDs)); err != nil {
		return nil, err
	}

	result := &BatchResult{}
	var revoked []int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.getRole(txCtx, roleID); err != nil {
			return err
		}
		for _, userID := range dedupe(userIDs) {
			if appErr := validation.ValidateID("user_id", userID); appErr != nil {
				return appErr
			}
			ok, err := s.repo.SetAssignmentStatus(txCtx, userID, roleID, rbacDatamodel.StatusOn, rbacDatamodel.StatusOff)
			if err != nil {
				return s.storeError(txCtx, "failed to revoke assignment", err)
			}
			if !ok {
				result.Skipped++
				continue
			}
			result.Applied++
			revoked = append(revoked, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied > 0 {
		s.invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "role revoked from users", "role_id", roleID, "applied", result.Applied, "skipped", result.Skipped)
	now := s.clock.Now()
	for _, id := range revoked {
		s.publish(ctx, events.NewAssignmentEvent(events.EventTypeRoleRevoked, now, id, roleID, actorFrom(ctx), false))
	}
	return result, nil
}

// RevokePermissions revokes every listed permission from the role in one
// transaction. Permissions without an active grant are counted as skipped.
func (s *Service) RevokePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (*BatchResult, error) {
	if err := checkBatch("permission_ids", len(permissionIDs)); err != nil {
		return nil, err
	}

	result := &BatchResult{}
	var revoked []int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.getRole(txCtx, roleID); err != nil {
			return err
		}
		for _, permissionID := range dedupe(permissionIDs) {
			if appErr := validation.ValidateID("permission_id", permissionID); appErr != nil {
				return appErr
			}
			ok, err := s.repo.SetGrantStatus(txCtx, roleID, permissionID, rbacDatamodel.StatusOn, rbacDatamodel.StatusOff)
			if err != nil {
				return s.storeError(txCtx, "failed to revoke grant", err)
			}
			if !ok {
				result.Skipped++
				continue
			}
			result.Applied++
			revoked = append(revoked, permissionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied > 0 {
		s.invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "permissions revoked from role", "role_id", roleID, "applied", result.Applied, "skipped", result.Skipped)
	now := s.clock.Now()
	for _, id := range revoked {
		s.publish(ctx, events.NewGrantEvent(events.EventTypePermissionRevoked, now, roleID, id, actorFrom(ctx), false))
	}
	return result, nil
}

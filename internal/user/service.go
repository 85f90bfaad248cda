package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
	"github.com/frahmantamala/rbac-service/internal/core/database"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/core/events"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxBatchSize     = 100
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// PermissionInvalidator drops cached permission decisions when a user's
// status changes.
type PermissionInvalidator interface {
	Invalidate(ctx context.Context)
}

type Service struct {
	repo        RepositoryAPI
	tx          database.TxManager
	hasher      PasswordHasher
	invalidator PermissionInvalidator
	publisher   events.Publisher
	clock       clock.Clock
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, tx database.TxManager, hasher PasswordHasher, invalidator PermissionInvalidator, publisher events.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		repo:        repo,
		tx:          tx,
		hasher:      hasher,
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

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkUnique rejects a username or email already held by another user.
// excludeID is the user being updated, or zero.
func (s *Service) checkUnique(ctx context.Context, username, email string, excludeID int64) error {
	if username != "" {
		existing, err := s.repo.GetByUsername(ctx, username)
		if err != nil {
			return s.storeError(ctx, "failed to look up username", err)
		}
		if existing != nil && existing.ID != excludeID {
			return errors.NewConflictError("username already exists", errors.ErrCodeDuplicateUser)
		}
	}
	if email != "" {
		existing, err := s.repo.GetByEmail(ctx, email)
		if err != nil {
			return s.storeError(ctx, "failed to look up email", err)
		}
		if existing != nil && existing.ID != excludeID {
			return errors.NewConflictError("email already exists", errors.ErrCodeDuplicateUser)
		}
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, dto CreateUserDTO) (*User, error) {
	created, err := s.createUser(ctx, dto)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user created", "user_id", created.ID, "username", created.Username)
	s.publishCreated(ctx, created)
	return created, nil
}

func (s *Service) publishCreated(ctx context.Context, u *User) {
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserCreated, s.clock.Now(), u.ID, map[string]interface{}{
		"username": u.Username,
	}))
}

func (s *Service) createUser(ctx context.Context, dto CreateUserDTO) (*User, error) {
	u := &User{
		Username: strings.TrimSpace(dto.Username),
		Email:    normalizeEmail(dto.Email),
		Status:   StatusEnabled,
	}
	if dto.Status != nil {
		u.Status = *dto.Status
	}

	if appErr := validation.ValidateUsername(u.Username); appErr != nil {
		return nil, appErr
	}
	if appErr := validation.ValidateEmail(u.Email); appErr != nil {
		return nil, appErr
	}
	if appErr := validation.ValidatePassword(dto.Password); appErr != nil {
		return nil, appErr
	}
	if !u.Status.Valid() {
		return nil, errors.NewValidationFieldError("status", "status must be 0 or 1", errors.ErrCodeInvalidStatus)
	}
	if err := s.checkUnique(ctx, u.Username, u.Email, 0); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, s.storeError(ctx, "failed to hash password", err)
	}
	u.PasswordHash = hash

	data := ToDataModel(u)
	if err := s.repo.Create(ctx, data); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.NewConflictError("username or email already exists", errors.ErrCodeDuplicateUser)
		}
		return nil, s.storeError(ctx, "failed to create user", err)
	}

	return FromDataModel(data), nil
}

// CreateUsers creates every user or none.
func (s *Service) CreateUsers(ctx context.Context, dtos []CreateUserDTO) ([]*User, error) {
	if len(dtos) == 0 {
		return nil, errors.NewValidationFieldError("users", "users must not be empty", errors.ErrCodeValidationFailed)
	}
	if len(dtos) > MaxBatchSize {
		return nil, errors.NewValidationFieldError("users", fmt.Sprintf("users must not hold more than %d entries", MaxBatchSize), errors.ErrCodeValidationFailed)
	}

	created := make([]*User, 0, len(dtos))
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for i, dto := range dtos {
			u, err := s.createUser(txCtx, dto)
			if err != nil {
				if appErr, ok := errors.IsAppError(err); ok {
					return appErr.WithMessage(fmt.Sprintf("users[%d]: %s", i, appErr.GetDetailedMessage()))
				}
				return err
			}
			created = append(created, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "users created", "count", len(created))
	for _, u := range created {
		s.publishCreated(ctx, u)
	}
	return created, nil
}

// Statistics counts users by status.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "failed to count users", err)
	}
	stats := &Statistics{
		EnabledUsers:  counts[int16(StatusEnabled)],
		DisabledUsers: counts[int16(StatusDisabled)],
	}
	stats.TotalUsers = stats.EnabledUsers + stats.DisabledUsers
	return stats, nil
}

func (s *Service) getUser(ctx context.Context, id int64) (*userDatamodel.User, error) {
	if appErr := validation.ValidateID("user_id", id); appErr != nil {
		return nil, appErr
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "failed to get user", err)
	}
	if u == nil {
		return nil, errors.NewNotFoundError("user not found", errors.ErrCodeUserNotFound)
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(u), nil
}

// FindByLogin resolves a username, or an email when loginID contains "@".
// A missing user is nil with no error.
func (s *Service) FindByLogin(ctx context.Context, loginID string) (*User, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return nil, nil
	}

	var (
		u   *userDatamodel.User
		err error
	)
	if strings.Contains(loginID, "@") {
		u, err = s.repo.GetByEmail(ctx, normalizeEmail(loginID))
	} else {
		u, err = s.repo.GetByUsername(ctx, loginID)
	}
	if err != nil {
		return nil, s.storeError(ctx, "failed to look up user", err)
	}
	if u == nil {
		return nil, nil
	}
	return FromDataModel(u), nil
}

func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]*User, int64, error) {
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	v := validation.NewValidator()
	v.Field("limit", int64(filter.Limit)).
		MinInt(1, errors.ErrCodeValidationFailed).
		MaxInt(MaxListLimit, errors.ErrCodeValidationFailed)
	v.Field("offset", int64(filter.Offset)).
		MinInt(0, errors.ErrCodeValidationFailed)
	if appErr := v.Validate(); appErr != nil {
		return nil, 0, appErr
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, errors.NewValidationFieldError("status", "status must be 0 or 1", errors.ErrCodeInvalidStatus)
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, s.storeError(ctx, "failed to list users", err)
	}
	return fromDataModels(users), total, nil
}

// UpdateUser changes username or email, re-checking format and uniqueness
// against every other user.
func (s *Service) UpdateUser(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error) {
	var updated *User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		data, err := s.getUser(txCtx, id)
		if err != nil {
			return err
		}
		u := FromDataModel(data)

		var username, email string
		if dto.Username != nil {
			username = strings.TrimSpace(*dto.Username)
			if appErr := validation.ValidateUsername(username); appErr != nil {
				return appErr
			}
			u.Username = username
		}
		if dto.Email != nil {
			email = normalizeEmail(*dto.Email)
			if appErr := validation.ValidateEmail(email); appErr != nil {
				return appErr
			}
			u.Email = email
		}
		if err := s.checkUnique(txCtx, username, email, id); err != nil {
			return err
		}

		next := ToDataModel(u)
		if err := s.repo.Update(txCtx, next); err != nil {
			if database.IsUniqueViolation(err) {
				return errors.NewConflictError("username or email already exists", errors.ErrCodeDuplicateUser)
			}
			return s.storeError(txCtx, "failed to update user", err)
		}
		updated = FromDataModel(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user updated", "user_id", id)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserUpdated, s.clock.Now(), id, nil))
	return updated, nil
}

// SetStatus enables or disables a user. A real change invalidates every
// cached permission decision.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (*User, error) {
	if !status.Valid() {
		return nil, errors.NewValidationFieldError("status", "status must be 0 or 1", errors.ErrCodeInvalidStatus)
	}

	var (
		updated *User
		changed bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.getUser(txCtx, id); err != nil {
			return err
		}
		var err error
		changed, err = s.repo.SetStatus(txCtx, id, int16(status))
		if err != nil {
			return s.storeError(txCtx, "failed to update user status", err)
		}
		data, err := s.getUser(txCtx, id)
		if err != nil {
			return err
		}
		updated = FromDataModel(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	s.logger.InfoContext(ctx, "user status changed", "user_id", id, "status", status.String())
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserStatusChanged, s.clock.Now(), id, map[string]interface{}{
		"status": status.String(),
	}))
	return updated, nil
}

func (s *Service) EnableUser(ctx context.Context, id int64) (*User, error) {
	return s.SetStatus(ctx, id, StatusEnabled)
}

func (s *Service) DisableUser(ctx context.Context, id int64) (*User, error) {
	return s.SetStatus(ctx, id, StatusDisabled)
}

// ChangePassword requires the current password and a new one that passes
// the password policy and differs from it.
func (s *Service) ChangePassword(ctx context.Context, id int64, dto ChangePasswordDTO) error {
	if dto.OldPassword == "" {
		return errors.NewValidationFieldError("old_password", "old_password is required", errors.ErrCodeValidationFailed)
	}
	if appErr := validation.ValidatePassword(dto.NewPassword); appErr != nil {
		return appErr
	}

	data, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(data.PasswordHash, dto.OldPassword); err != nil {
		return errors.NewUnauthorizedError("current password is incorrect", errors.ErrCodeInvalidCredentials)
	}
	if dto.NewPassword == dto.OldPassword {
		return errors.NewValidationFieldError("new_password", "new password must differ from the current one", errors.ErrCodeSamePassword)
	}

	hash, err := s.hasher.Hash(dto.NewPassword)
	if err != nil {
		return s.storeError(ctx, "failed to hash password", err)
	}
	if err := s.repo.SetPasswordHash(ctx, id, hash); err != nil {
		return s.storeError(ctx, "failed to update password", err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", id)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserPasswordChanged, s.clock.Now(), id, nil))
	return nil
}

package auth

import (
	"context"
	"log/slog"
	"strings"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/metrics"
	"github.com/frahmantamala/rbac-service/internal/user"
)

type PasswordVerifier interface {
	Compare(hash, password string) error
	CompareDummy(password string)
}

// CredentialVerifier checks a login id and password against the user store.
// Every rejection except a lockout is the same INVALID_CREDENTIALS error; the
// log line carries the real reason.
type CredentialVerifier struct {
	users   UserFinder
	hasher  PasswordVerifier
	lockout *LockoutTracker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCredentialVerifier(users UserFinder, hasher PasswordVerifier, lockout *LockoutTracker, m *metrics.Metrics, logger *slog.Logger) *CredentialVerifier {
	return &CredentialVerifier{
		users:   users,
		hasher:  hasher,
		lockout: lockout,
		metrics: m,
		logger:  logger,
	}
}

func (v *CredentialVerifier) Authenticate(ctx context.Context, loginID, password, ip string) (*user.User, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" || password == "" {
		return nil, errors.NewValidationError("login and password are required", errors.ErrCodeValidationFailed)
	}

	key := LockoutKey(loginID, ip)
	if remaining := v.lockout.Locked(key); remaining > 0 {
		v.metrics.LoginAttempt("locked")
		v.logger.WarnContext(ctx, "login rejected: locked out", "login", loginID, "ip", ip, "remaining", remaining)
		return nil, errors.NewAccountLockedError(RemainingMinutes(remaining))
	}

	u, err := v.users.FindByLogin(ctx, loginID)
	if err != nil {
		v.metrics.LoginAttempt("error")
		return nil, err
	}

	switch {
	case u == nil:
		v.hasher.CompareDummy(password)
		return nil, v.fail(ctx, key, loginID, ip, "user not found")
	case v.hasher.Compare(u.PasswordHash, password) != nil:
		return nil, v.fail(ctx, key, loginID, ip, "wrong password")
	case !u.IsEnabled():
		return nil, v.fail(ctx, key, loginID, ip, "account disabled")
	}

	v.lockout.Reset(key)
	v.metrics.LoginAttempt("success")
	return u, nil
}

func (v *CredentialVerifier) fail(ctx context.Context, key, loginID, ip, reason string) error {
	locked := v.lockout.RecordFailure(key)
	v.metrics.LoginAttempt("invalid")
	v.logger.WarnContext(ctx, "login failed", "login", loginID, "ip", ip, "reason", reason, "locked", locked)
	return errors.ErrInvalidCredentials
}

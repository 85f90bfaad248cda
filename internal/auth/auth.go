package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/rbac-service/internal/user"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	BearerType       = "Bearer"
)

var ErrMissingSigningSecret = errors.New("auth: jwt signing secret is required in production")

// Claims represents JWT token claims
type Claims struct {
	UserID            int64    `json:"user_id"`
	Username          string   `json:"username"`
	Email             string   `json:"email"`
	Roles             []string `json:"roles"`
	TokenType         string   `json:"token_type"`
	DeviceFingerprint string   `json:"device_fingerprint"`
	RememberMe        bool     `json:"remember_me"`
	IssuedAtMs        int64    `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// IssuedAtTime is the millisecond issue time that revocation cutoffs are
// compared against. Tokens without iat_ms fall back to iat.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAtMs > 0 {
		return time.UnixMilli(c.IssuedAtMs)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// UserFinder is the slice of the user service the session engine needs.
// Both methods report a missing user as (nil, nil) or a NOT_FOUND error.
type UserFinder interface {
	FindByLogin(ctx context.Context, loginID string) (*user.User, error)
	GetUser(ctx context.Context, id int64) (*user.User, error)
}

// RoleResolver supplies the role and permission snapshots embedded in tokens
// and login responses.
type RoleResolver interface {
	RoleCodes(ctx context.Context, userID int64) ([]string, error)
	PermissionCodes(ctx context.Context, userID int64) ([]string, error)
}

// Blacklist stores revoked tokens by TokenKey until they would have expired,
// plus per-user revocation cutoffs.
type Blacklist interface {
	// Add records key and reports whether this call inserted it. A false
	// result means the key was already present.
	Add(ctx context.Context, key string, expiresAt time.Time) (bool, error)
	Contains(ctx context.Context, key string) (bool, error)
	// RevokeUser makes every token of userID issued at or before cutoff
	// invalid. The record lives for ttl.
	RevokeUser(ctx context.Context, userID int64, cutoff time.Time, ttl time.Duration) error
	UserCutoff(ctx context.Context, userID int64) (time.Time, bool, error)
}

// TokenKey is the blacklist key for a raw token.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LoginResult is what a successful login returns to the caller.
type LoginResult struct {
	TokenPair
	User LoginUser `json:"user"`
}

type LoginUser struct {
	ID          int64       `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Status      user.Status `json:"status"`
	Roles       []string    `json:"roles"`
	Permissions []string    `json:"permissions"`
}

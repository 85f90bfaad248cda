package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/metrics"
	"github.com/frahmantamala/rbac-service/internal/user"
)

const (
	DefaultAccessTTL     = 15 * time.Minute
	DefaultRefreshTTL    = 7 * 24 * time.Hour
	DefaultRememberMeTTL = 30 * 24 * time.Hour
	DefaultIssuer        = "rbac-service"
)

type TokenConfig struct {
	Secret        string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	Production    bool
}

// TokenAuthority issues and checks HS256 session tokens.
type TokenAuthority struct {
	secret    []byte
	cfg       TokenConfig
	parser    *jwt.Parser
	lenient   *jwt.Parser
	users     UserFinder
	blacklist Blacklist
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewTokenAuthority(cfg TokenConfig, users UserFinder, blacklist Blacklist, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) (*TokenAuthority, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = DefaultRememberMeTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if clk == nil {
		clk = clock.System()
	}

	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		if cfg.Production {
			return nil, ErrMissingSigningSecret
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("auth: generate signing secret: %w", err)
		}
		logger.Warn("jwt secret not configured, using a random per-process secret")
	}

	return &TokenAuthority{
		secret: secret,
		cfg:    cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(clk.Now),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
		lenient: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		users:     users,
		blacklist: blacklist,
		clock:     clk,
		metrics:   m,
		logger:    logger,
	}, nil
}

func (a *TokenAuthority) AccessTTL() time.Duration { return a.cfg.AccessTTL }

func (a *TokenAuthority) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *TokenAuthority) claimsFor(u *user.User, roles []string, tokenType, fingerprint string, rememberMe bool, issuedAt, expiresAt time.Time) *Claims {
	if roles == nil {
		roles = []string{}
	}
	return &Claims{
		UserID:            u.ID,
		Username:          u.Username,
		Email:             u.Email,
		Roles:             roles,
		TokenType:         tokenType,
		DeviceFingerprint: fingerprint,
		RememberMe:        rememberMe,
		IssuedAtMs:        issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
}

// GenerateTokens issues a fresh access and refresh token for u with a new
// device fingerprint.
func (a *TokenAuthority) GenerateTokens(ctx context.Context, u *user.User, roles []string, rememberMe bool) (*TokenPair, error) {
	return a.issue(ctx, u, roles, uuid.NewString(), rememberMe)
}

func (a *TokenAuthority) issue(ctx context.Context, u *user.User, roles []string, fingerprint string, rememberMe bool) (pair *TokenPair, err error) {
	defer func() { a.metrics.TokenOperation("issue", err) }()

	now := a.clock.Now()
	accessExp := now.Add(a.cfg.AccessTTL)
	refreshTTL := a.cfg.RefreshTTL
	if rememberMe {
		refreshTTL = a.cfg.RememberMeTTL
	}
	refreshExp := now.Add(refreshTTL)

	access, err := a.sign(a.claimsFor(u, roles, TokenTypeAccess, fingerprint, rememberMe, now, accessExp))
	if err != nil {
		return nil, errors.NewBusinessLogicError("failed to sign access token", err)
	}
	refresh, err := a.sign(a.claimsFor(u, roles, TokenTypeRefresh, fingerprint, rememberMe, now, refreshExp))
	if err != nil {
		return nil, errors.NewBusinessLogicError("failed to sign refresh token", err)
	}

	a.logger.DebugContext(ctx, "tokens issued", "user_id", u.ID, "remember_me", rememberMe)
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        BearerType,
		ExpiresIn:        int64(a.cfg.AccessTTL / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (a *TokenAuthority) keyFunc(*jwt.Token) (interface{}, error) {
	return a.secret, nil
}

// parse checks the blacklist, signature, issuer, expiry, token type and the
// user's revocation cutoff. Every failure is ErrInvalidToken; the reason is
// only logged.
func (a *TokenAuthority) parse(ctx context.Context, raw, tokenType string) (*Claims, error) {
	if raw == "" {
		return nil, errors.ErrInvalidToken
	}

	revoked, err := a.blacklist.Contains(ctx, TokenKey(raw))
	if err != nil {
		a.logger.ErrorContext(ctx, "blacklist lookup failed", "error", err)
		return nil, errors.ErrInvalidToken
	}
	if revoked {
		a.logger.DebugContext(ctx, "token rejected: revoked")
		return nil, errors.ErrInvalidToken
	}

	claims := &Claims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, a.keyFunc); err != nil {
		a.logger.DebugContext(ctx, "token rejected: parse", "error", err)
		return nil, errors.ErrInvalidToken
	}
	if claims.TokenType != tokenType || claims.UserID <= 0 || claims.IssuedAt == nil {
		a.logger.DebugContext(ctx, "token rejected: claims", "token_type", claims.TokenType, "user_id", claims.UserID)
		return nil, errors.ErrInvalidToken
	}

	cutoff, ok, err := a.blacklist.UserCutoff(ctx, claims.UserID)
	if err != nil {
		a.logger.ErrorContext(ctx, "revocation cutoff lookup failed", "user_id", claims.UserID, "error", err)
		return nil, errors.ErrInvalidToken
	}
	if ok && !claims.IssuedAtTime().After(cutoff) {
		a.logger.DebugContext(ctx, "token rejected: issued before revocation", "user_id", claims.UserID)
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

func (a *TokenAuthority) enabledUser(ctx context.Context, userID int64) (*user.User, error) {
	u, err := a.users.GetUser(ctx, userID)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, errors.ErrInvalidToken
		}
		a.logger.ErrorContext(ctx, "token user lookup failed", "user_id", userID, "error", err)
		return nil, errors.ErrInvalidToken
	}
	if u == nil || !u.IsEnabled() {
		a.logger.DebugContext(ctx, "token rejected: user missing or disabled", "user_id", userID)
		return nil, errors.ErrInvalidToken
	}
	return u, nil
}

// VerifyToken validates an access token and returns its claims.
func (a *TokenAuthority) VerifyToken(ctx context.Context, raw string) (claims *Claims, err error) {
	defer func() { a.metrics.TokenOperation("verify", err) }()

	claims, err = a.parse(ctx, raw, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	if _, err = a.enabledUser(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return claims, nil
}

// RefreshToken consumes a refresh token and issues a new pair. A refresh
// token is single use: whichever caller blacklists it first wins.
func (a *TokenAuthority) RefreshToken(ctx context.Context, raw string, roles RoleResolver) (pair *TokenPair, err error) {
	defer func() { a.metrics.TokenOperation("refresh", err) }()

	claims, err := a.parse(ctx, raw, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	u, err := a.enabledUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	inserted, err := a.blacklist.Add(ctx, TokenKey(raw), claims.ExpiresAt.Time)
	if err != nil {
		a.logger.ErrorContext(ctx, "blacklist write failed", "error", err)
		return nil, errors.ErrInvalidToken
	}
	if !inserted {
		a.logger.WarnContext(ctx, "refresh token reused", "user_id", u.ID)
		return nil, errors.ErrInvalidToken
	}

	codes, err := roles.RoleCodes(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return a.issue(ctx, u, codes, claims.DeviceFingerprint, claims.RememberMe)
}

// Revoke blacklists each token whose signature verifies, expired or not,
// until its own expiry. Malformed and foreign tokens are skipped.
func (a *TokenAuthority) Revoke(ctx context.Context, tokens ...string) (err error) {
	defer func() { a.metrics.TokenOperation("revoke", err) }()

	now := a.clock.Now()
	for _, raw := range tokens {
		if raw == "" {
			continue
		}
		claims := &Claims{}
		if _, perr := a.lenient.ParseWithClaims(raw, claims, a.keyFunc); perr != nil {
			a.logger.DebugContext(ctx, "revoke skipped: unverifiable token", "error", perr)
			continue
		}
		if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(now) {
			continue
		}
		if _, err = a.blacklist.Add(ctx, TokenKey(raw), claims.ExpiresAt.Time); err != nil {
			return errors.NewBusinessLogicError("failed to revoke token", err)
		}
	}
	return nil
}

// RevokeAll invalidates every token issued to userID up to and including
// the current millisecond.
func (a *TokenAuthority) RevokeAll(ctx context.Context, userID int64) (err error) {
	defer func() { a.metrics.TokenOperation("revoke_all", err) }()

	cutoff := a.clock.Now().Truncate(time.Millisecond)
	ttl := a.cfg.RememberMeTTL
	if a.cfg.RefreshTTL > ttl {
		ttl = a.cfg.RefreshTTL
	}
	if err = a.blacklist.RevokeUser(ctx, userID, cutoff, ttl); err != nil {
		return errors.NewBusinessLogicError("failed to revoke user tokens", err)
	}
	return nil
}

// ClaimsOf reads the claims of a token without validating anything but the
// signature. Used to attribute logout events.
func (a *TokenAuthority) ClaimsOf(raw string) (*Claims, bool) {
	claims := &Claims{}
	if _, err := a.lenient.ParseWithClaims(raw, claims, a.keyFunc); err != nil {
		return nil, false
	}
	return claims, true
}

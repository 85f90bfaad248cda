package auth

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/user"
)

// ServiceAPI is what the HTTP layer needs from the session service.
type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO, ip string) (*LoginResult, error)
	Logout(ctx context.Context, tokens ...string) error
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	VerifyToken(ctx context.Context, token string) (*Claims, error)
	RevokeAllTokens(ctx context.Context, userID int64) error
	CurrentUser(ctx context.Context, token string) (*user.User, error)
}

// Service is the session façade over the credential verifier and the token
// authority.
type Service struct {
	verifier  *CredentialVerifier
	tokens    *TokenAuthority
	users     UserFinder
	roles     RoleResolver
	publisher events.Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

var _ ServiceAPI = (*Service)(nil)

func NewService(verifier *CredentialVerifier, tokens *TokenAuthority, users UserFinder, roles RoleResolver, publisher events.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		verifier:  verifier,
		tokens:    tokens,
		users:     users,
		roles:     roles,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
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

// Login authenticates dto and returns a token pair with the user's current
// roles and permissions.
func (s *Service) Login(ctx context.Context, dto LoginDTO, ip string) (*LoginResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.verifier.Authenticate(ctx, dto.Login, dto.Password, ip)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeUnauthorized) {
			s.publish(ctx, events.NewAuthEvent(events.EventTypeLoginFailed, s.clock.Now(), 0, dto.Login, ip))
		}
		return nil, err
	}

	roles, err := s.roles.RoleCodes(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	perms, err := s.roles.PermissionCodes(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.GenerateTokens(ctx, u, roles, dto.RememberMe)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", u.ID, "ip", ip, "remember_me", dto.RememberMe)
	s.publish(ctx, events.NewAuthEvent(events.EventTypeLoginSucceeded, s.clock.Now(), u.ID, dto.Login, ip))

	return &LoginResult{
		TokenPair: *pair,
		User: LoginUser{
			ID:          u.ID,
			Username:    u.Username,
			Email:       u.Email,
			Status:      u.Status,
			Roles:       roles,
			Permissions: perms,
		},
	}, nil
}

// Logout revokes the given tokens. Tokens that do not verify are ignored.
func (s *Service) Logout(ctx context.Context, tokens ...string) error {
	if err := s.tokens.Revoke(ctx, tokens...); err != nil {
		return err
	}

	for _, raw := range tokens {
		if claims, ok := s.tokens.ClaimsOf(raw); ok {
			s.logger.InfoContext(ctx, "logout", "user_id", claims.UserID)
			s.publish(ctx, events.NewAuthEvent(events.EventTypeLogout, s.clock.Now(), claims.UserID, claims.Username, ""))
			break
		}
	}
	return nil
}

func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.tokens.RefreshToken(ctx, refreshToken, s.roles)
}

func (s *Service) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	return s.tokens.VerifyToken(ctx, token)
}

// RevokeAllTokens invalidates every outstanding token of userID.
func (s *Service) RevokeAllTokens(ctx context.Context, userID int64) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return errors.NewNotFoundError("user not found", errors.ErrCodeUserNotFound)
	}
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "all tokens revoked", "user_id", userID)
	s.publish(ctx, events.NewAuthEvent(events.EventTypeTokensRevoked, s.clock.Now(), userID, u.Username, ""))
	return nil
}

// CurrentUser returns the live user behind an access token.
func (s *Service) CurrentUser(ctx context.Context, token string) (*user.User, error) {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, claims.UserID)
}

// Register revokes a user's sessions when their password changes or their
// account is disabled.
func (s *Service) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeUserPasswordChanged, s.revokeOnUserEvent)
	bus.Subscribe(events.EventTypeUserStatusChanged, s.revokeOnUserEvent)
}

func (s *Service) revokeOnUserEvent(ctx context.Context, event events.Event) error {
	ue, ok := event.(*events.UserEvent)
	if !ok {
		return nil
	}
	if event.EventType() == events.EventTypeUserStatusChanged && ue.Data["status"] != user.StatusDisabled.String() {
		return nil
	}
	return s.tokens.RevokeAll(ctx, ue.UserID)
}

package auth

import (
	errors "github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
// Login is a username or an email address.
type LoginDTO struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutDTO optionally carries the refresh token so both halves of the pair
// are revoked.
type LogoutDTO struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("login", d.Login).Required().MaxLength(64, errors.ErrCodeValidationFailed)
	v.Field("password", d.Password).Required().MaxLength(128, errors.ErrCodeValidationFailed)
	return validation.Err(v.Validate())
}

func (d RefreshTokenDTO) Validate() error {
	if d.RefreshToken == "" {
		return errors.NewValidationFieldError("refresh_token", "refresh_token is required", errors.ErrCodeValidationFailed)
	}
	return nil
}

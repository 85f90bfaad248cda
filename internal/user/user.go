package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
)

type Status int16

const (
	StatusDisabled Status = Status(userDatamodel.StatusDisabled)
	StatusEnabled  Status = Status(userDatamodel.StatusEnabled)
)

func (s Status) Valid() bool {
	return s == StatusDisabled || s == StatusEnabled
}

func (s Status) String() string {
	if s == StatusEnabled {
		return "enabled"
	}
	return "disabled"
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsEnabled() bool {
	return u.Status == StatusEnabled
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       int16(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       Status(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func fromDataModels(in []*userDatamodel.User) []*User {
	out := make([]*User, 0, len(in))
	for _, u := range in {
		out = append(out, FromDataModel(u))
	}
	return out
}

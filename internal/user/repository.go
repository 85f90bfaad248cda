package user

import (
	"context"

	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
)

// ListFilter narrows ListUsers. A nil Status means any status.
type ListFilter struct {
	Status  *Status
	Keyword string
	Limit   int
	Offset  int
}

// RepositoryAPI returns nil, nil for rows that do not exist.
type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	List(ctx context.Context, filter ListFilter) ([]*userDatamodel.User, int64, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	Update(ctx context.Context, u *userDatamodel.User) error
	SetStatus(ctx context.Context, id int64, status int16) (bool, error)
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	// CountByStatus maps each stored status to its number of users.
	CountByStatus(ctx context.Context) (map[int16]int64, error)
}

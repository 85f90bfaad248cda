package postgres

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-service/internal/core/database"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) conn(ctx context.Context) *gorm.DB {
	return database.GetDB(ctx, r.db)
}

func (r *UserRepository) take(q *gorm.DB) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := q.Take(&u).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	return r.take(r.conn(ctx).Where("id = ?", id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error) {
	return r.take(r.conn(ctx).Where("username = ?", username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	return r.take(r.conn(ctx).Where("email = ?", strings.ToLower(email)))
}

// List matches Keyword as a substring of username or email and returns the
// page together with the total number of matches.
func (r *UserRepository) List(ctx context.Context, filter user.ListFilter) ([]*userDatamodel.User, int64, error) {
	q := r.conn(ctx).Model(&userDatamodel.User{})
	if filter.Status != nil {
		q = q.Where("status = ?", int16(*filter.Status))
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		q = q.Where("(LOWER(username) LIKE ? OR email LIKE ?)", like, like)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []*userDatamodel.User
	page := q.Order("id ASC").Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if err := page.Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	return r.conn(ctx).Create(u).Error
}

func (r *UserRepository) Update(ctx context.Context, u *userDatamodel.User) error {
	return r.conn(ctx).Save(u).Error
}

// SetStatus reports whether the stored status changed.
func (r *UserRepository) SetStatus(ctx context.Context, id int64, status int16) (bool, error) {
	res := r.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ? AND status <> ?", id, status).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return r.conn(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Update("password_hash", hash).Error
}

func (r *UserRepository) CountByStatus(ctx context.Context) (map[int16]int64, error) {
	var rows []struct {
		Status int16
		Total  int64
	}
	err := r.conn(ctx).Model(&userDatamodel.User{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[int16]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

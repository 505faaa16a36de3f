package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// UserRepo reads the user directory
type UserRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewUserRepo creates a new UserRepo
func NewUserRepo(db *gorm.DB, rdb *redis.Client) *UserRepo {
	return &UserRepo{db: db, rdb: rdb}
}

// Create creates a new user
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = entity.NowUnixMilli()
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetById gets user by Id, returns nil when absent
func (r *UserRepo) GetById(ctx context.Context, id int64) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByIds gets users by Ids
func (r *UserRepo) GetByIds(ctx context.Context, ids []int64) ([]*entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*entity.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetMapByIds gets users by Ids keyed by id
func (r *UserRepo) GetMapByIds(ctx context.Context, ids []int64) (map[int64]*entity.User, error) {
	users, err := r.GetByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]*entity.User, len(users))
	for _, u := range users {
		m[u.Id] = u
	}
	return m, nil
}

// Exists checks if user exists
func (r *UserRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/model"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Exists(ctx context.Context, id uint) (bool, error)
	UpdateName(ctx context.Context, id uint, name string) error
	UpdateAvatar(ctx context.Context, id uint, avatar, thumbnail string) error
	// SetPushToken 绑定推送 token；同一 token 若被其他用户持有则先解绑
	SetPushToken(ctx context.Context, id uint, token *string) error
	ClearPushToken(ctx context.Context, token string) error
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *userRepository) UpdateName(ctx context.Context, id uint, name string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("name", name).Error
}

func (r *userRepository) UpdateAvatar(ctx context.Context, id uint, avatar, thumbnail string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]any{"avatar": avatar, "avatar_thumbnail": thumbnail}).Error
}

func (r *userRepository) SetPushToken(ctx context.Context, id uint, token *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if token != nil {
			if err := tx.Model(&model.User{}).
				Where("push_token = ? AND id <> ?", *token, id).
				Update("push_token", nil).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.User{}).Where("id = ?", id).Update("push_token", token).Error
	})
}

func (r *userRepository) ClearPushToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("push_token = ?", token).Update("push_token", nil).Error
}

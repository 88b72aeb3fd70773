package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/model"
)

// CategoryRepository 分类仓储接口
type CategoryRepository interface {
	List(ctx context.Context) ([]*model.Category, error)
	GetByID(ctx context.Context, id uint) (*model.Category, error)
	Exists(ctx context.Context, id uint) (bool, error)
	Create(ctx context.Context, c *model.Category) error
	Delete(ctx context.Context, id uint) error
	CountListings(ctx context.Context, id uint) (int64, error)
}

type categoryRepository struct{ db *gorm.DB }

func NewCategoryRepository(db *gorm.DB) CategoryRepository { return &categoryRepository{db: db} }

func (r *categoryRepository) List(ctx context.Context) ([]*model.Category, error) {
	var res []*model.Category
	err := r.db.WithContext(ctx).Order("title ASC, id ASC").Find(&res).Error
	return res, err
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*model.Category, error) {
	var c model.Category
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *categoryRepository) Create(ctx context.Context, c *model.Category) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *categoryRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Category{}, id).Error
}

func (r *categoryRepository) CountListings(ctx context.Context, id uint) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Listing{}).Where("category_id = ?", id).Count(&cnt).Error
	return cnt, err
}

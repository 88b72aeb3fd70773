package service

import (
	"context"
	"strings"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
)

// CategoryService 分类服务（写操作仅管理员）
type CategoryService interface {
	List(ctx context.Context) ([]*model.Category, error)
	Create(ctx context.Context, actor Actor, title string) (*model.Category, error)
	Delete(ctx context.Context, actor Actor, id uint) error
}

type categoryService struct {
	categories repository.CategoryRepository
}

func NewCategoryService(categories repository.CategoryRepository) CategoryService {
	return &categoryService{categories: categories}
}

func (s *categoryService) List(ctx context.Context) ([]*model.Category, error) {
	return s.categories.List(ctx)
}

func (s *categoryService) Create(ctx context.Context, actor Actor, title string) (*model.Category, error) {
	if err := ensureStaff(actor); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("title", "This field may not be blank.")
	}
	c := &model.Category{Title: title}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *categoryService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := ensureStaff(actor); err != nil {
		return err
	}
	if _, err := s.categories.GetByID(ctx, id); err != nil {
		return notFound(err)
	}
	n, err := s.categories.CountListings(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	return s.categories.Delete(ctx, id)
}

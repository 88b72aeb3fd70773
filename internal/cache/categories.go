// Package cache provides Redis cache-aside decorators for read-heavy repositories.
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/logger"
)

const categoryListKey = "categories:list"

// CategoryRepository 分类列表缓存（cache-aside，写入后删除缓存）
type CategoryRepository struct {
	repository.CategoryRepository
	cache *redis.Client
	ttl   time.Duration

	dbLoads atomic.Int64
}

var _ repository.CategoryRepository = (*CategoryRepository)(nil)

type categorySnapshot struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func NewCategoryRepository(next repository.CategoryRepository, cache *redis.Client, ttl time.Duration) *CategoryRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CategoryRepository{CategoryRepository: next, cache: cache, ttl: ttl}
}

func (r *CategoryRepository) List(ctx context.Context) ([]*model.Category, error) {
	if data, err := r.cache.Get(ctx, categoryListKey).Bytes(); err == nil {
		var snaps []categorySnapshot
		if uErr := json.Unmarshal(data, &snaps); uErr == nil {
			out := make([]*model.Category, len(snaps))
			for i, s := range snaps {
				out[i] = &model.Category{ID: s.ID, Title: s.Title}
			}
			return out, nil
		}
	} else if err != redis.Nil {
		logger.Warn("category cache read failed", zap.Error(err))
	}

	r.dbLoads.Add(1)
	rows, err := r.CategoryRepository.List(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]categorySnapshot, len(rows))
	for i, c := range rows {
		snaps[i] = categorySnapshot{ID: c.ID, Title: c.Title}
	}
	if payload, err := json.Marshal(snaps); err == nil {
		_ = r.cache.Set(ctx, categoryListKey, payload, r.ttl).Err()
	}
	return rows, nil
}

func (r *CategoryRepository) Create(ctx context.Context, c *model.Category) error {
	if err := r.CategoryRepository.Create(ctx, c); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id uint) error {
	if err := r.CategoryRepository.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CategoryRepository) invalidate(ctx context.Context) {
	if err := r.cache.Del(ctx, categoryListKey).Err(); err != nil {
		logger.Warn("category cache invalidate failed", zap.Error(err))
	}
}

// DBLoads reports how many list calls reached the underlying repository.
func (r *CategoryRepository) DBLoads() int64 { return r.dbLoads.Load() }

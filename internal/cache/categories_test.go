package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/internal/testutil"
)

func setupCache(t *testing.T) (*CategoryRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.NewTestDB(t)
	return NewCategoryRepository(repository.NewCategoryRepository(db), rdb, time.Minute), mr
}

func TestCategoryCache_ListHitsDatabaseOnce(t *testing.T) {
	repo, mr := setupCache(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Category{Title: "bikes"}))

	for i := 0; i < 3; i++ {
		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "bikes", list[0].Title)
	}
	assert.EqualValues(t, 1, repo.DBLoads())
	assert.True(t, mr.Exists(categoryListKey))

	mr.FastForward(2 * time.Minute)
	_, err := repo.List(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.DBLoads())
}

func TestCategoryCache_WritesInvalidate(t *testing.T) {
	repo, mr := setupCache(t)
	ctx := context.Background()

	_, err := repo.List(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(categoryListKey))

	c := &model.Category{Title: "tools"}
	require.NoError(t, repo.Create(ctx, c))
	assert.False(t, mr.Exists(categoryListKey))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, c.ID))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCategoryCache_RedisDownFallsBack(t *testing.T) {
	repo, mr := setupCache(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Category{Title: "bikes"}))
	mr.Close()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

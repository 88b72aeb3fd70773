package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/marketplace/internal/testutil"
)

func TestCategoryService(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	staff := testutil.CreateStaff(t, env.db, "admin")
	user := testutil.CreateUser(t, env.db, "user")
	admin := Actor{ID: staff.ID, IsStaff: true}

	_, err := env.categories.Create(ctx, Actor{ID: user.ID}, "bikes")
	assert.True(t, errors.Is(err, ErrForbidden))

	bikes, err := env.categories.Create(ctx, admin, "bikes")
	require.NoError(t, err)
	tools, err := env.categories.Create(ctx, admin, "tools")
	require.NoError(t, err)

	testutil.CreateListing(t, env.db, user, bikes, "bike", 10)
	assert.True(t, errors.Is(env.categories.Delete(ctx, admin, bikes.ID), ErrConflict))
	assert.True(t, errors.Is(env.categories.Delete(ctx, Actor{ID: user.ID}, tools.ID), ErrForbidden))
	require.NoError(t, env.categories.Delete(ctx, admin, tools.ID))
	assert.True(t, errors.Is(env.categories.Delete(ctx, admin, tools.ID), ErrNotFound))

	list, err := env.categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bikes", list[0].Title)
}

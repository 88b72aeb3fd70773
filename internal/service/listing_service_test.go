package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/marketplace/internal/testutil"
)

func TestListingService_CreateWithImages(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, env.db, "seller")
	cat := testutil.CreateCategory(t, env.db, "bikes")

	lat, lon := 52.52, 13.405
	l, err := env.listings.Create(ctx, Actor{ID: u.ID}, ListingInput{
		Title: " Bike ", Price: 99.5, CategoryID: cat.ID, Latitude: &lat, Longitude: &lon,
	}, []Upload{pngUpload(t, "a.png"), pngUpload(t, "b.png")})
	require.NoError(t, err)
	assert.Equal(t, "Bike", l.Title)
	assert.Equal(t, u.ID, l.UserID)
	require.Len(t, l.Images, 2)
	for _, img := range l.Images {
		assert.FileExists(t, filepath.Join(env.store.Root(), img.ThumbnailCard))
		assert.FileExists(t, filepath.Join(env.store.Root(), img.ThumbnailDetail))
	}
}

func TestListingService_Validation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, env.db, "seller")
	cat := testutil.CreateCategory(t, env.db, "bikes")
	badLat := 91.0

	cases := []struct {
		name  string
		in    ListingInput
		field string
	}{
		{"negative price", ListingInput{Title: "x", Price: -1, CategoryID: cat.ID}, "price"},
		{"too many decimals", ListingInput{Title: "x", Price: 1.234, CategoryID: cat.ID}, "price"},
		{"price overflow", ListingInput{Title: "x", Price: 1e9, CategoryID: cat.ID}, "price"},
		{"unknown category", ListingInput{Title: "x", Price: 1, CategoryID: cat.ID + 100}, "category"},
		{"blank title", ListingInput{Title: "  ", Price: 1, CategoryID: cat.ID}, "title"},
		{"long title", ListingInput{Title: strings.Repeat("t", 256), Price: 1, CategoryID: cat.ID}, "title"},
		{"latitude range", ListingInput{Title: "x", Price: 1, CategoryID: cat.ID, Latitude: &badLat}, "latitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.listings.Create(ctx, Actor{ID: u.ID}, tc.in, nil)
			var v *ValidationError
			require.True(t, errors.As(err, &v), "got %v", err)
			assert.Contains(t, v.Fields, tc.field)
		})
	}

	page, err := env.listings.List(ctx, ListingQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestListingService_BadImageLeavesNothingBehind(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, env.db, "seller")
	cat := testutil.CreateCategory(t, env.db, "bikes")

	_, err := env.listings.Create(ctx, Actor{ID: u.ID}, ListingInput{Title: "x", Price: 1, CategoryID: cat.ID},
		[]Upload{pngUpload(t, "ok.png"), {Filename: "bad.png", Reader: strings.NewReader("garbage")}})
	var v *ValidationError
	require.True(t, errors.As(err, &v))
	assert.Contains(t, v.Fields, "images")

	var files []string
	require.NoError(t, filepath.Walk(env.store.Root(), func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, p)
		}
		return err
	}))
	assert.Empty(t, files)
}

func TestListingService_UpsertAndOwnership(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, "owner")
	other := testutil.CreateUser(t, env.db, "other")
	cat := testutil.CreateCategory(t, env.db, "bikes")
	l := testutil.CreateListing(t, env.db, owner, cat, "orig", 10)

	updated, created, err := env.listings.Upsert(ctx, Actor{ID: owner.ID}, l.ID, ListingInput{Title: "renamed", Price: 0, CategoryID: cat.ID}, []Upload{pngUpload(t, "a.png")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, l.ID, updated.ID)
	assert.Equal(t, "renamed", updated.Title)
	assert.Len(t, updated.Images, 1)

	_, _, err = env.listings.Upsert(ctx, Actor{ID: other.ID}, l.ID, ListingInput{Title: "hijack", Price: 1, CategoryID: cat.ID}, nil)
	assert.True(t, errors.Is(err, ErrForbidden))

	fresh, created, err := env.listings.Upsert(ctx, Actor{ID: other.ID}, 9999, ListingInput{Title: "new", Price: 1, CategoryID: cat.ID}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, other.ID, fresh.UserID)

	assert.True(t, errors.Is(env.listings.Delete(ctx, Actor{ID: other.ID}, l.ID), ErrForbidden))
	require.NoError(t, env.listings.Delete(ctx, Actor{ID: owner.ID}, l.ID))
	_, err = env.listings.Get(ctx, l.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListingService_MineAndPaging(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, env.db, "a")
	b := testutil.CreateUser(t, env.db, "b")
	cat := testutil.CreateCategory(t, env.db, "bikes")
	for i := 0; i < 3; i++ {
		testutil.CreateListing(t, env.db, a, cat, "a-item", float64(i))
	}
	testutil.CreateListing(t, env.db, b, cat, "b-item", 1)

	page, err := env.listings.Mine(ctx, Actor{ID: a.ID}, ListingQuery{Page: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.PageSize)
	assert.Len(t, page.Items, 1)
}

func TestListingService_Images(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db, "owner")
	other := testutil.CreateUser(t, env.db, "other")
	cat := testutil.CreateCategory(t, env.db, "bikes")
	l := testutil.CreateListing(t, env.db, owner, cat, "x", 1)

	_, err := env.listings.AddImage(ctx, Actor{ID: other.ID}, l.ID, pngUpload(t, "a.png"))
	assert.True(t, errors.Is(err, ErrForbidden))

	img, err := env.listings.AddImage(ctx, Actor{ID: owner.ID}, l.ID, pngUpload(t, "a.png"))
	require.NoError(t, err)
	require.NotZero(t, img.ID)

	imgs, err := env.listings.ListImages(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, imgs, 1)

	assert.True(t, errors.Is(env.listings.DeleteImage(ctx, Actor{ID: other.ID}, l.ID, img.ID), ErrForbidden))
	require.NoError(t, env.listings.DeleteImage(ctx, Actor{ID: owner.ID}, l.ID, img.ID))
	assert.NoFileExists(t, filepath.Join(env.store.Root(), img.Image))
	assert.True(t, errors.Is(env.listings.DeleteImage(ctx, Actor{ID: owner.ID}, l.ID, img.ID), ErrNotFound))

	_, err = env.listings.ListImages(ctx, 4242)
	assert.True(t, errors.Is(err, ErrNotFound))
}

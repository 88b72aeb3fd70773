package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/testutil"
)

func TestListingRepository_SaveCreatesWithImages(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "alice")
	cat := testutil.CreateCategory(t, db, "bikes")

	l := &model.Listing{Title: "road bike", Price: 120, CategoryID: cat.ID, UserID: owner.ID}
	imgs := []model.ListingImage{{Image: "a.jpg"}, {Image: "b.jpg"}}
	require.NoError(t, repo.Save(ctx, l, imgs))
	require.NotZero(t, l.ID)

	got, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "road bike", got.Title)
	require.Len(t, got.Images, 2)
	assert.Equal(t, "a.jpg", got.Images[0].Image)
	require.NotNil(t, got.User)
	assert.Equal(t, "alice", got.User.Name)
	require.NotNil(t, got.Category)
	assert.Equal(t, "bikes", got.Category.Title)
}

func TestListingRepository_SaveUpdatesAndAppendsImages(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "alice")
	cat := testutil.CreateCategory(t, db, "bikes")
	l := testutil.CreateListing(t, db, owner, cat, "old", 10)
	require.NoError(t, repo.AddImages(ctx, []model.ListingImage{{ListingID: l.ID, Image: "first.jpg"}}))

	desc := "fresh tyres"
	upd := &model.Listing{ID: l.ID, Title: "new", Price: 0, CategoryID: cat.ID, UserID: owner.ID, Description: &desc}
	require.NoError(t, repo.Save(ctx, upd, []model.ListingImage{{Image: "second.jpg"}}))

	got, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, 0.0, got.Price)
	require.NotNil(t, got.Description)
	assert.Equal(t, "fresh tyres", *got.Description)
	assert.Len(t, got.Images, 2)
}

func TestListingRepository_SaveRollsBackOnImageFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "alice")
	cat := testutil.CreateCategory(t, db, "bikes")

	require.NoError(t, db.Exec("CREATE TRIGGER fail_images BEFORE INSERT ON listing_images BEGIN SELECT RAISE(ABORT, 'boom'); END").Error)

	l := &model.Listing{Title: "x", Price: 1, CategoryID: cat.ID, UserID: owner.ID}
	err := repo.Save(ctx, l, []model.ListingImage{{Image: "a.jpg"}})
	require.Error(t, err)

	var cnt int64
	require.NoError(t, db.Model(&model.Listing{}).Count(&cnt).Error)
	assert.Zero(t, cnt)
}

func TestListingRepository_QueryPipeline(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "Bob Builder")
	bikes := testutil.CreateCategory(t, db, "bikes")
	tools := testutil.CreateCategory(t, db, "tools")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(owner *model.User, cat *model.Category, title string, price float64, age int) *model.Listing {
		l := testutil.CreateListing(t, db, owner, cat, title, price)
		require.NoError(t, db.Model(l).Update("created_at", base.Add(time.Duration(age)*time.Hour)).Error)
		return l
	}
	cheapBike := mk(alice, bikes, "Cheap bike", 50, 1)
	fancyBike := mk(alice, bikes, "Fancy BIKE", 900, 2)
	hammer := mk(bob, tools, "Hammer", 15, 3)

	t.Run("default newest first", func(t *testing.T) {
		res, total, err := repo.Query(ctx, ListingFilter{Limit: 30})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Equal(t, []uint{hammer.ID, fancyBike.ID, cheapBike.ID}, listingIDs(res))
	})

	t.Run("category filter and price ordering", func(t *testing.T) {
		res, total, err := repo.Query(ctx, ListingFilter{CategoryID: &bikes.ID, Ordering: "-price", Limit: 30})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Equal(t, []uint{fancyBike.ID, cheapBike.ID}, listingIDs(res))
	})

	t.Run("search is case-insensitive", func(t *testing.T) {
		res, _, err := repo.Query(ctx, ListingFilter{Search: "bike", Ordering: "price", Limit: 30})
		require.NoError(t, err)
		assert.Equal(t, []uint{cheapBike.ID, fancyBike.ID}, listingIDs(res))
	})

	t.Run("search matches owner name", func(t *testing.T) {
		res, _, err := repo.Query(ctx, ListingFilter{Search: "builder", Limit: 30})
		require.NoError(t, err)
		assert.Equal(t, []uint{hammer.ID}, listingIDs(res))
	})

	t.Run("search combined with owner filter", func(t *testing.T) {
		res, _, err := repo.Query(ctx, ListingFilter{UserID: &bob.ID, Search: "bike", Limit: 30})
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("unknown ordering falls back to default", func(t *testing.T) {
		res, _, err := repo.Query(ctx, ListingFilter{Ordering: "title; DROP TABLE listings", Limit: 30})
		require.NoError(t, err)
		assert.Equal(t, []uint{hammer.ID, fancyBike.ID, cheapBike.ID}, listingIDs(res))
	})

	t.Run("pagination", func(t *testing.T) {
		res, total, err := repo.Query(ctx, ListingFilter{Ordering: "price", Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Equal(t, []uint{cheapBike.ID}, listingIDs(res))
	})
}

func TestListingRepository_DeleteReturnsImages(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "alice")
	cat := testutil.CreateCategory(t, db, "bikes")
	l := testutil.CreateListing(t, db, owner, cat, "x", 1)
	require.NoError(t, repo.AddImages(ctx, []model.ListingImage{{ListingID: l.ID, Image: "a.jpg", ThumbnailCard: "a_card.jpg"}}))

	imgs, err := repo.Delete(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, []string{"a.jpg", "a_card.jpg"}, imgs[0].Paths())

	_, err = repo.GetByID(ctx, l.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, err = repo.Delete(ctx, l.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListingRepository_Images(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "alice")
	cat := testutil.CreateCategory(t, db, "bikes")
	l1 := testutil.CreateListing(t, db, owner, cat, "one", 1)
	l2 := testutil.CreateListing(t, db, owner, cat, "two", 1)
	require.NoError(t, repo.AddImages(ctx, []model.ListingImage{{ListingID: l1.ID, Image: "a.jpg"}, {ListingID: l1.ID, Image: "b.jpg"}}))

	imgs, err := repo.ListImages(ctx, l1.ID)
	require.NoError(t, err)
	require.Len(t, imgs, 2)

	_, err = repo.GetImage(ctx, l2.ID, imgs[0].ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, repo.DeleteImage(ctx, imgs[0].ID))
	imgs, err = repo.ListImages(ctx, l1.ID)
	require.NoError(t, err)
	assert.Len(t, imgs, 1)

	owner2, err := repo.GetOwnerID(ctx, l2.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, owner2)
}

func listingIDs(ls []*model.Listing) []uint {
	out := make([]uint, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

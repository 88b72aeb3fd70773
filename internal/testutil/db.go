// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/marketplace/internal/model"
)

var seq atomic.Int64

// NewTestDB opens a migrated in-memory sqlite database bound to a single connection.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=on"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// CreateUser inserts a user with a unique email derived from name.
func CreateUser(t testing.TB, db *gorm.DB, name string) *model.User {
	t.Helper()
	u := &model.User{
		Email:        fmt.Sprintf("%s-%d@example.com", name, seq.Add(1)),
		Name:         name,
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreateStaff(t testing.TB, db *gorm.DB, name string) *model.User {
	t.Helper()
	u := CreateUser(t, db, name)
	require.NoError(t, db.Model(u).Update("is_staff", true).Error)
	u.IsStaff = true
	return u
}

func CreateCategory(t testing.TB, db *gorm.DB, title string) *model.Category {
	t.Helper()
	c := &model.Category{Title: title}
	require.NoError(t, db.Create(c).Error)
	return c
}

func CreateListing(t testing.TB, db *gorm.DB, owner *model.User, cat *model.Category, title string, price float64) *model.Listing {
	t.Helper()
	l := &model.Listing{Title: title, Price: price, CategoryID: cat.ID, UserID: owner.ID}
	require.NoError(t, db.Omit("Category", "User", "Images").Create(l).Error)
	return l
}

// CreateMessage inserts a message sent at the given time.
func CreateMessage(t testing.TB, db *gorm.DB, from, to *model.User, text string, sentAt time.Time) *model.Message {
	t.Helper()
	m := &model.Message{FromUserID: from.ID, ToUserID: to.ID, Text: text, SentAt: sentAt.UTC()}
	require.NoError(t, db.Omit("FromUser", "ToUser", "UsedForReplyMessage", "AttachedListing", "Files", "Forwards").Create(m).Error)
	return m
}

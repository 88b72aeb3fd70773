package model

import "time"

// User 用户（email 为身份标识）
type User struct {
	ID              uint    `gorm:"primaryKey"`
	Email           string  `gorm:"type:varchar(254);uniqueIndex;not null"`
	Name            string  `gorm:"type:varchar(255);not null;default:''"`
	PasswordHash    string  `gorm:"type:varchar(255);not null"`
	PushToken       *string `gorm:"type:varchar(255);uniqueIndex"` // unique when set, NULL otherwise
	Avatar          string  `gorm:"type:varchar(255)"`
	AvatarThumbnail string  `gorm:"type:varchar(255)"`
	IsStaff         bool    `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (User) TableName() string { return "users" }

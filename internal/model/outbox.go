package model

import (
	"time"

	"gorm.io/datatypes"
)

// PushStatus 推送外发盒状态
type PushStatus string

const (
	PushPending    PushStatus = "pending"
	PushProcessing PushStatus = "processing"
	PushDone       PushStatus = "done"
	PushFailed     PushStatus = "failed"
)

// PushNotification 推送外发盒：与业务写在同一事务，由 worker 异步投递
type PushNotification struct {
	ID          uint           `gorm:"primaryKey"`
	UserID      uint           `gorm:"not null;index"`
	Token       string         `gorm:"type:varchar(255);not null"`
	Title       string         `gorm:"type:varchar(255)"`
	Body        string         `gorm:"type:text"`
	Data        datatypes.JSON `gorm:"type:json"`
	Status      PushStatus     `gorm:"type:varchar(16);not null;index:idx_push_status_created,priority:1"`
	Error       string         `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"index:idx_push_status_created,priority:2"`
	ProcessedAt *time.Time
}

func (PushNotification) TableName() string { return "push_outbox" }

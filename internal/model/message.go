package model

import "time"

// Message 私信
type Message struct {
	ID                    uint      `gorm:"primaryKey"`
	FromUserID            uint      `gorm:"not null;index:idx_msg_from_sent,priority:1"`
	FromUser              *User     `gorm:"constraint:OnDelete:CASCADE"`
	ToUserID              uint      `gorm:"not null;index:idx_msg_to_sent,priority:1"`
	ToUser                *User     `gorm:"constraint:OnDelete:CASCADE"`
	Text                  string    `gorm:"type:text;not null;default:''"`
	SentAt                time.Time `gorm:"not null;index:idx_msg_from_sent,priority:2;index:idx_msg_to_sent,priority:2"`
	UsedForReplyMessageID *uint     `gorm:"index"`
	UsedForReplyMessage   *Message  `gorm:"constraint:OnDelete:SET NULL"`
	AttachedListingID     *uint     `gorm:"index"`
	AttachedListing       *Listing  `gorm:"constraint:OnDelete:SET NULL"`
	IsDeletedForFromUser  bool      `gorm:"not null;default:false"`
	IsDeletedForToUser    bool      `gorm:"not null;default:false"`
	IsEdited              bool      `gorm:"not null;default:false"`
	IsRead                bool      `gorm:"not null;default:false"`

	Files    []MessageFile   `gorm:"constraint:OnDelete:CASCADE"`
	Forwards []SentOnMessage `gorm:"foreignKey:MessageParentID;constraint:OnDelete:CASCADE"`
}

func (Message) TableName() string { return "messages" }

// VisibleTo 按删除标记判断消息对某用户是否可见
func (m *Message) VisibleTo(userID uint) bool {
	switch userID {
	case m.FromUserID:
		if !m.IsDeletedForFromUser {
			return true
		}
		// self-addressed messages are visible while either side is kept
		return m.ToUserID == userID && !m.IsDeletedForToUser
	case m.ToUserID:
		return !m.IsDeletedForToUser
	}
	return false
}

// Counterparty returns the other participant of the message as seen by userID.
func (m *Message) Counterparty(userID uint) uint {
	if m.FromUserID == userID {
		return m.ToUserID
	}
	return m.FromUserID
}

// MessageFile 消息附件
type MessageFile struct {
	ID           uint   `gorm:"primaryKey"`
	MessageID    uint   `gorm:"not null;index"`
	File         string `gorm:"type:varchar(255);not null"`
	OriginalName string `gorm:"type:varchar(255)"`
	Size         int64
	CreatedAt    time.Time
}

func (MessageFile) TableName() string { return "message_files" }

// SentOnMessage 转发关系：MessageParent 转发了 Message
type SentOnMessage struct {
	ID              uint      `gorm:"primaryKey"`
	MessageParentID uint      `gorm:"not null;uniqueIndex:ux_forward_pair;index:idx_forward_order,priority:1"`
	MessageID       uint      `gorm:"not null;uniqueIndex:ux_forward_pair"`
	Message         *Message  `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	ForwardedSentAt time.Time `gorm:"not null;index:idx_forward_order,priority:2"` // copy of Message.SentAt for ordering
}

func (SentOnMessage) TableName() string { return "sent_on_messages" }

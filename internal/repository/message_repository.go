package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/marketplace/internal/model"
)

// MaxForwardDepth 嵌套转发的最大渲染层数
const MaxForwardDepth = 3

// TxHook runs inside the send transaction after the message row and its children are written.
type TxHook func(tx *gorm.DB, m *model.Message) error

// MessageRepository 私信仓储接口
type MessageRepository interface {
	// Create 在一个事务内写入消息、附件、转发关系，并执行 hook（例如写推送外发盒）
	Create(ctx context.Context, m *model.Message, files []model.MessageFile, forwards []*model.Message, hook TxHook) error
	GetByID(ctx context.Context, id uint) (*model.Message, error)
	FindByIDs(ctx context.Context, ids []uint) ([]*model.Message, error)
	// FindForwardable 返回 ids 中 userID 作为发送方或接收方的消息
	FindForwardable(ctx context.Context, userID uint, ids []uint) ([]*model.Message, error)

	List(ctx context.Context, userID uint, offset, limit int) ([]*model.Message, int64, error)
	Thread(ctx context.Context, userID, otherID uint, offset, limit int) ([]*model.Message, int64, error)
	// ChatList 每个会话对象只返回一条对 userID 可见的最新消息
	ChatList(ctx context.Context, userID uint, offset, limit int) ([]*model.Message, int64, error)

	UpdateText(ctx context.Context, id uint, text string) error
	MarkRead(ctx context.Context, userID uint, ids []uint, fromUserID *uint) (int64, error)
	DeleteForMe(ctx context.Context, userID uint, ids []uint) (int64, error)
	DeleteForAll(ctx context.Context, ids []uint) (int64, error)
}

type messageRepository struct{ db *gorm.DB }

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func visibleTo(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((messages.from_user_id = ? AND messages.is_deleted_for_from_user = ?) OR (messages.to_user_id = ? AND messages.is_deleted_for_to_user = ?))",
			userID, false, userID, false)
	}
}

func orderForwards(tx *gorm.DB) *gorm.DB {
	return tx.Order("forwarded_sent_at ASC, id ASC")
}

// withMessageRelations preloads everything a rendered message needs,
// following forwarded messages down to MaxForwardDepth levels.
func withMessageRelations(db *gorm.DB) *gorm.DB {
	db = db.
		Preload("FromUser").
		Preload("ToUser").
		Preload("Files").
		Preload("AttachedListing.Images").
		Preload("UsedForReplyMessage")

	prefix := ""
	for depth := 1; depth <= MaxForwardDepth; depth++ {
		fw := prefix + "Forwards"
		msg := fw + ".Message"
		db = db.
			Preload(fw, orderForwards).
			Preload(msg).
			Preload(msg + ".FromUser").
			Preload(msg + ".ToUser").
			Preload(msg + ".Files")
		prefix = msg + "."
	}
	return db
}

func (r *messageRepository) Create(ctx context.Context, m *model.Message, files []model.MessageFile, forwards []*model.Message, hook TxHook) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			return err
		}
		if len(files) > 0 {
			for i := range files {
				files[i].MessageID = m.ID
			}
			if err := tx.Create(&files).Error; err != nil {
				return err
			}
		}
		if len(forwards) > 0 {
			links := make([]model.SentOnMessage, 0, len(forwards))
			for _, f := range forwards {
				links = append(links, model.SentOnMessage{
					MessageParentID: m.ID,
					MessageID:       f.ID,
					ForwardedSentAt: f.SentAt,
				})
			}
			if err := tx.Omit(clause.Associations).Create(&links).Error; err != nil {
				return err
			}
		}
		if hook != nil {
			return hook(tx, m)
		}
		return nil
	})
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*model.Message, error) {
	var m model.Message
	if err := withMessageRelations(r.db.WithContext(ctx)).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) FindByIDs(ctx context.Context, ids []uint) ([]*model.Message, error) {
	var res []*model.Message
	if len(ids) == 0 {
		return res, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *messageRepository) FindForwardable(ctx context.Context, userID uint, ids []uint) ([]*model.Message, error) {
	var res []*model.Message
	if len(ids) == 0 {
		return res, nil
	}
	err := r.db.WithContext(ctx).
		Scopes(visibleTo(userID)).
		Where("messages.id IN ?", ids).
		Order("sent_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) page(q *gorm.DB, offset, limit int) ([]*model.Message, int64, error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var res []*model.Message
	err := withMessageRelations(q).
		Order("messages.sent_at DESC, messages.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

func (r *messageRepository) List(ctx context.Context, userID uint, offset, limit int) ([]*model.Message, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Message{}).Scopes(visibleTo(userID))
	return r.page(q, offset, limit)
}

func (r *messageRepository) Thread(ctx context.Context, userID, otherID uint, offset, limit int) ([]*model.Message, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Message{}).
		Scopes(visibleTo(userID)).
		Where("((messages.from_user_id = ? AND messages.to_user_id = ?) OR (messages.from_user_id = ? AND messages.to_user_id = ?))",
			userID, otherID, otherID, userID)
	return r.page(q, offset, limit)
}

const chatRankSelect = `messages.id, ROW_NUMBER() OVER (
	PARTITION BY
		CASE WHEN messages.from_user_id < messages.to_user_id THEN messages.from_user_id ELSE messages.to_user_id END,
		CASE WHEN messages.from_user_id < messages.to_user_id THEN messages.to_user_id ELSE messages.from_user_id END
	ORDER BY messages.sent_at DESC, messages.id DESC
) AS rn`

func (r *messageRepository) ChatList(ctx context.Context, userID uint, offset, limit int) ([]*model.Message, int64, error) {
	db := r.db.WithContext(ctx)
	ranked := db.Model(&model.Message{}).Select(chatRankSelect).Scopes(visibleTo(userID))
	latest := db.Table("(?) AS ranked", ranked).Select("ranked.id").Where("ranked.rn = 1")

	q := db.Model(&model.Message{}).Where("messages.id IN (?)", latest)
	return r.page(q, offset, limit)
}

func (r *messageRepository) UpdateText(ctx context.Context, id uint, text string) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).
		Updates(map[string]any{"text": text, "is_edited": true}).Error
}

func (r *messageRepository) MarkRead(ctx context.Context, userID uint, ids []uint, fromUserID *uint) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("to_user_id = ? AND is_read = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if fromUserID != nil {
		q = q.Where("from_user_id = ?", *fromUserID)
	}
	res := q.Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *messageRepository) DeleteForMe(ctx context.Context, userID uint, ids []uint) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Message{}).
			Where("id IN ? AND from_user_id = ?", ids, userID).
			Update("is_deleted_for_from_user", true)
		if res.Error != nil {
			return res.Error
		}
		affected += res.RowsAffected

		res = tx.Model(&model.Message{}).
			Where("id IN ? AND to_user_id = ?", ids, userID).
			Update("is_deleted_for_to_user", true)
		if res.Error != nil {
			return res.Error
		}
		affected += res.RowsAffected
		return nil
	})
	return affected, err
}

func (r *messageRepository) DeleteForAll(ctx context.Context, ids []uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_deleted_for_from_user": true, "is_deleted_for_to_user": true})
	return res.RowsAffected, res.Error
}

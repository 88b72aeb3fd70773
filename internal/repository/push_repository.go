package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/model"
)

// PushRepository 推送外发盒仓储接口
type PushRepository interface {
	// WithTx 返回绑定到事务的仓储，用于与业务写入同事务落地
	WithTx(tx *gorm.DB) PushRepository
	Enqueue(ctx context.Context, n *model.PushNotification) error
	// Claim 领取一批 pending 记录并置为 processing
	Claim(ctx context.Context, limit int) ([]*model.PushNotification, error)
	// Release 将未发出的 processing 记录退回 pending
	Release(ctx context.Context, ids []uint) error
	MarkDone(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	CountByStatus(ctx context.Context, status model.PushStatus) (int64, error)
}

type pushRepository struct{ db *gorm.DB }

func NewPushRepository(db *gorm.DB) PushRepository { return &pushRepository{db: db} }

func (r *pushRepository) WithTx(tx *gorm.DB) PushRepository { return &pushRepository{db: tx} }

func (r *pushRepository) Enqueue(ctx context.Context, n *model.PushNotification) error {
	if n.Status == "" {
		n.Status = model.PushPending
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *pushRepository) Claim(ctx context.Context, limit int) ([]*model.PushNotification, error) {
	var batch []*model.PushNotification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// sqlite 不支持行锁，单连接下天然串行
		lock := ""
		if tx.Dialector.Name() == "postgres" {
			lock = " FOR UPDATE SKIP LOCKED"
		}
		if err := tx.Raw(`
			SELECT * FROM push_outbox
			WHERE status = ?
			ORDER BY created_at, id
			LIMIT ?`+lock, model.PushPending, limit).
			Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]uint, len(batch))
		for i, n := range batch {
			ids[i] = n.ID
			n.Status = model.PushProcessing
		}
		return tx.Model(&model.PushNotification{}).Where("id IN ?", ids).Update("status", model.PushProcessing).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *pushRepository) Release(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.PushNotification{}).
		Where("id IN ? AND status = ?", ids, model.PushProcessing).
		Update("status", model.PushPending).Error
}

func (r *pushRepository) MarkDone(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.PushNotification{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.PushDone, "processed_at": time.Now().UTC()}).Error
}

func (r *pushRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).Model(&model.PushNotification{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.PushFailed, "error": reason, "processed_at": time.Now().UTC()}).Error
}

func (r *pushRepository) CountByStatus(ctx context.Context, status model.PushStatus) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.PushNotification{}).Where("status = ?", status).Count(&cnt).Error
	return cnt, err
}

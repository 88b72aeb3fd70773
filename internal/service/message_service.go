package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/media"
	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/realtime"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/logger"
	"github.com/d60-Lab/marketplace/pkg/tracing"
)

// Broadcaster 分组广播（realtime.Hub 实现）
type Broadcaster interface {
	Broadcast(ctx context.Context, group string, event any) error
}

// SendMessageInput 发消息参数
type SendMessageInput struct {
	ToUserID              uint
	Text                  string
	UsedForReplyMessageID *uint
	AttachedListingID     *uint
	ForwardedMessageIDs   []uint
}

// MessageService 私信服务
type MessageService interface {
	List(ctx context.Context, actor Actor, page int) (*Paged[*model.Message], error)
	Get(ctx context.Context, actor Actor, id uint) (*model.Message, error)
	Thread(ctx context.Context, actor Actor, otherID uint, page int) (*Paged[*model.Message], error)
	// ChatList 每个会话对象一条最新可见消息，按发送时间倒序
	ChatList(ctx context.Context, actor Actor, page int) (*Paged[*model.Message], error)

	// Send 在一个事务内写入消息、附件、转发关系与推送外发盒，提交后广播
	Send(ctx context.Context, actor Actor, in SendMessageInput, files []Upload) (*model.Message, error)
	Update(ctx context.Context, actor Actor, id uint, text string) (*model.Message, error)

	MarkRead(ctx context.Context, actor Actor, ids []uint, fromUserID *uint) (int64, error)
	DeleteForMe(ctx context.Context, actor Actor, ids []uint) (int64, error)
	// DeleteForAll 仅原发送者可操作，任一 id 不满足则整体拒绝
	DeleteForAll(ctx context.Context, actor Actor, ids []uint) (int64, error)
}

type messageService struct {
	messages    repository.MessageRepository
	users       repository.UserRepository
	listings    repository.ListingRepository
	outbox      repository.PushRepository
	media       *media.Processor
	broadcaster Broadcaster
	mapper      dto.Mapper
	pushEnabled bool
	pageSize    int
	now         func() time.Time
}

// MessageServiceOptions 可选依赖
type MessageServiceOptions struct {
	Outbox      repository.PushRepository
	Broadcaster Broadcaster
	Mapper      dto.Mapper
	PushEnabled bool
	PageSize    int
}

func NewMessageService(messages repository.MessageRepository, users repository.UserRepository, listings repository.ListingRepository, processor *media.Processor, opts MessageServiceOptions) MessageService {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	return &messageService{
		messages:    messages,
		users:       users,
		listings:    listings,
		outbox:      opts.Outbox,
		media:       processor,
		broadcaster: opts.Broadcaster,
		mapper:      opts.Mapper,
		pushEnabled: opts.PushEnabled && opts.Outbox != nil,
		pageSize:    opts.PageSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *messageService) paged(items []*model.Message, total int64, page int) *Paged[*model.Message] {
	return &Paged[*model.Message]{Items: items, Total: total, Page: page, PageSize: s.pageSize}
}

func (s *messageService) List(ctx context.Context, actor Actor, page int) (*Paged[*model.Message], error) {
	page, offset := pageOffset(page, s.pageSize)
	items, total, err := s.messages.List(ctx, actor.ID, offset, s.pageSize)
	if err != nil {
		return nil, err
	}
	return s.paged(items, total, page), nil
}

func (s *messageService) Get(ctx context.Context, actor Actor, id uint) (*model.Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !m.VisibleTo(actor.ID) {
		return nil, ErrNotFound
	}
	return m, nil
}

func (s *messageService) Thread(ctx context.Context, actor Actor, otherID uint, page int) (*Paged[*model.Message], error) {
	ok, err := s.users.Exists(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	page, offset := pageOffset(page, s.pageSize)
	items, total, err := s.messages.Thread(ctx, actor.ID, otherID, offset, s.pageSize)
	if err != nil {
		return nil, err
	}
	return s.paged(items, total, page), nil
}

func (s *messageService) ChatList(ctx context.Context, actor Actor, page int) (*Paged[*model.Message], error) {
	page, offset := pageOffset(page, s.pageSize)
	items, total, err := s.messages.ChatList(ctx, actor.ID, offset, s.pageSize)
	if err != nil {
		return nil, err
	}
	return s.paged(items, total, page), nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *messageService) Send(ctx context.Context, actor Actor, in SendMessageInput, files []Upload) (*model.Message, error) {
	ctx, span := tracing.Tracer().Start(ctx, "MessageService.Send")
	defer span.End()
	span.SetAttributes(attribute.Int64("message.from_user_id", int64(actor.ID)), attribute.Int64("message.to_user_id", int64(in.ToUserID)))

	m, err := s.send(ctx, actor, in, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("message.id", int64(m.ID)), attribute.Int("message.forwards", len(m.Forwards)))
	return m, nil
}

func (s *messageService) send(ctx context.Context, actor Actor, in SendMessageInput, files []Upload) (*model.Message, error) {
	v := &ValidationError{}
	var recipient *model.User
	switch {
	case in.ToUserID == 0:
		v.Add("to_user", "This field is required.")
	default:
		u, err := s.users.GetByID(ctx, in.ToUserID)
		if err != nil {
			if notFound(err) != ErrNotFound {
				return nil, err
			}
			v.Add("to_user", "Invalid pk - object does not exist.")
		}
		recipient = u
	}

	if id := in.UsedForReplyMessageID; id != nil {
		reply, err := s.messages.GetByID(ctx, *id)
		if err != nil && notFound(err) != ErrNotFound {
			return nil, err
		}
		if reply == nil || !reply.VisibleTo(actor.ID) {
			v.Add("used_for_reply_message", "Invalid pk - object does not exist.")
		}
	}

	if id := in.AttachedListingID; id != nil {
		if _, err := s.listings.GetOwnerID(ctx, *id); err != nil {
			if notFound(err) != ErrNotFound {
				return nil, err
			}
			v.Add("attached_listing", "Invalid pk - object does not exist.")
		}
	}

	// ids the composer neither sent nor received are dropped
	forwards, err := s.messages.FindForwardable(ctx, actor.ID, uniqueIDs(in.ForwardedMessageIDs))
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Text) == "" && len(files) == 0 && len(forwards) == 0 {
		v.Add("non_field_errors", "A message needs text, files or forwarded messages.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	rows := make([]model.MessageFile, 0, len(files))
	var stored []string
	for _, f := range files {
		rel, size, err := s.media.SaveFile("messages", f.Filename, f.Reader)
		if err != nil {
			s.discard(stored)
			return nil, uploadError("files", err)
		}
		stored = append(stored, rel)
		rows = append(rows, model.MessageFile{File: rel, OriginalName: f.Filename, Size: size})
	}

	sender, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		s.discard(stored)
		return nil, notFound(err)
	}

	m := &model.Message{
		FromUserID:            actor.ID,
		ToUserID:              in.ToUserID,
		Text:                  in.Text,
		SentAt:                s.now(),
		UsedForReplyMessageID: in.UsedForReplyMessageID,
		AttachedListingID:     in.AttachedListingID,
	}
	var hook repository.TxHook
	// notes to self are not pushed
	if s.pushEnabled && recipient.ID != actor.ID && recipient.PushToken != nil {
		hook = s.enqueuePush(ctx, sender, recipient)
	}
	if err := s.messages.Create(ctx, m, rows, forwards, hook); err != nil {
		s.discard(stored)
		return nil, err
	}

	full, err := s.messages.GetByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, full)
	return full, nil
}

func (s *messageService) discard(stored []string) {
	if len(stored) > 0 {
		s.media.Store().Delete(stored...)
	}
}

// enqueuePush writes the push outbox row inside the send transaction.
func (s *messageService) enqueuePush(ctx context.Context, sender, recipient *model.User) repository.TxHook {
	return func(tx *gorm.DB, m *model.Message) error {
		title := sender.Name
		if title == "" {
			title = sender.Email
		}
		body := m.Text
		if strings.TrimSpace(body) == "" {
			body = "Sent an attachment"
		}
		data, err := json.Marshal(map[string]uint{"message_id": m.ID, "from_user_id": m.FromUserID})
		if err != nil {
			return err
		}
		return s.outbox.WithTx(tx).Enqueue(ctx, &model.PushNotification{
			UserID: recipient.ID,
			Token:  *recipient.PushToken,
			Title:  title,
			Body:   body,
			Data:   datatypes.JSON(data),
		})
	}
}

func (s *messageService) broadcast(ctx context.Context, m *model.Message) {
	if s.broadcaster == nil {
		return
	}
	event := dto.MessageEvent{Type: "message", Message: s.mapper.Message(m)}
	groups := []string{realtime.UserGroup(m.FromUserID)}
	if m.ToUserID != m.FromUserID {
		groups = append(groups, realtime.UserGroup(m.ToUserID))
	}
	for _, g := range groups {
		if err := s.broadcaster.Broadcast(ctx, g, event); err != nil {
			logger.Warn("broadcast message failed", zap.Uint("message_id", m.ID), zap.String("group", g), zap.Error(err))
		}
	}
}

func (s *messageService) Update(ctx context.Context, actor Actor, id uint, text string) (*model.Message, error) {
	m, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if m.FromUserID != actor.ID {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(text) == "" {
		return nil, invalid("text", "This field may not be blank.")
	}
	if err := s.messages.UpdateText(ctx, id, text); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

func (s *messageService) MarkRead(ctx context.Context, actor Actor, ids []uint, fromUserID *uint) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 && fromUserID == nil {
		return 0, invalid("non_field_errors", "Provide ids or from_user.")
	}
	return s.messages.MarkRead(ctx, actor.ID, ids, fromUserID)
}

func (s *messageService) DeleteForMe(ctx context.Context, actor Actor, ids []uint) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, invalid("ids", "This list may not be empty.")
	}
	return s.messages.DeleteForMe(ctx, actor.ID, ids)
}

func (s *messageService) DeleteForAll(ctx context.Context, actor Actor, ids []uint) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, invalid("ids", "This list may not be empty.")
	}
	msgs, err := s.messages.FindByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(msgs) != len(ids) {
		return 0, ErrNotFound
	}
	for _, m := range msgs {
		if !m.VisibleTo(actor.ID) {
			return 0, ErrNotFound
		}
		if m.FromUserID != actor.ID {
			return 0, ErrForbidden
		}
	}
	return s.messages.DeleteForAll(ctx, ids)
}

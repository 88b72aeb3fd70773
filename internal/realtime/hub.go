package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/pkg/logger"
)

// UserGroup 每个用户的私有分组名
func UserGroup(userID uint) string {
	return fmt.Sprintf("user-%d", userID)
}

// Hub tracks which sessions belong to which group and delivers layer events to them.
type Hub struct {
	layer ChannelLayer

	mu     sync.RWMutex
	groups map[string]map[*Session]struct{}
}

func NewHub(layer ChannelLayer) *Hub {
	return &Hub{layer: layer, groups: make(map[string]map[*Session]struct{})}
}

// Start 订阅传输层；返回停止函数
func (h *Hub) Start(ctx context.Context) (func(context.Context) error, error) {
	return h.layer.Subscribe(ctx, h.deliver)
}

// Broadcast 将事件序列化后发布到分组
func (h *Hub) Broadcast(ctx context.Context, group string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.layer.Publish(ctx, group, payload)
}

func (h *Hub) Join(group string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*Session]struct{})
		h.groups[group] = members
	}
	members[s] = struct{}{}
}

func (h *Hub) Leave(group string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(group, s)
}

func (h *Hub) leaveLocked(group string, s *Session) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// GroupSize reports the number of local sessions in a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) deliver(group string, payload []byte) {
	var slow []*Session
	h.mu.RLock()
	for s := range h.groups[group] {
		if !s.enqueue(payload) {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		logger.Warn("drop slow websocket session", zap.Uint("user_id", s.userID), zap.String("group", group))
		h.drop(s)
	}
}

// drop removes the session from every group and closes its send buffer.
func (h *Hub) drop(s *Session) {
	h.mu.Lock()
	for _, g := range s.groups {
		h.leaveLocked(g, s)
	}
	h.mu.Unlock()
	s.closeSend()
}

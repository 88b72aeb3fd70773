// Package realtime fans events out to WebSocket sessions grouped by name.
package realtime

import (
	"context"
	"sync"
)

// DeliverFunc receives every event published on the layer.
type DeliverFunc func(group string, payload []byte)

// ChannelLayer 组播传输层：进程内或 Redis pub/sub
type ChannelLayer interface {
	Publish(ctx context.Context, group string, payload []byte) error
	// Subscribe 开始投递；返回停止函数
	Subscribe(ctx context.Context, deliver DeliverFunc) (func(context.Context) error, error)
}

// LocalLayer delivers publishes synchronously inside the current process.
type LocalLayer struct {
	mu      sync.RWMutex
	deliver DeliverFunc
}

func NewLocalLayer() *LocalLayer { return &LocalLayer{} }

func (l *LocalLayer) Publish(_ context.Context, group string, payload []byte) error {
	l.mu.RLock()
	deliver := l.deliver
	l.mu.RUnlock()
	if deliver != nil {
		deliver(group, payload)
	}
	return nil
}

func (l *LocalLayer) Subscribe(_ context.Context, deliver DeliverFunc) (func(context.Context) error, error) {
	l.mu.Lock()
	l.deliver = deliver
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.deliver = nil
		l.mu.Unlock()
		return nil
	}, nil
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/pkg/logger"
)

type envelope struct {
	Group string          `json:"group"`
	Event json.RawMessage `json:"event"`
}

// RedisLayer 通过单个 Redis 频道在多个 API 进程间共享分组
type RedisLayer struct {
	rdb     *redis.Client
	channel string
}

func NewRedisLayer(rdb *redis.Client, channel string) *RedisLayer {
	return &RedisLayer{rdb: rdb, channel: channel}
}

func (l *RedisLayer) Publish(ctx context.Context, group string, payload []byte) error {
	data, err := json.Marshal(envelope{Group: group, Event: payload})
	if err != nil {
		return err
	}
	return l.rdb.Publish(ctx, l.channel, data).Err()
}

func (l *RedisLayer) Subscribe(ctx context.Context, deliver DeliverFunc) (func(context.Context) error, error) {
	ps := l.rdb.Subscribe(ctx, l.channel)
	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", l.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("drop malformed channel layer envelope", zap.Error(err))
				continue
			}
			deliver(env.Group, env.Event)
		}
	}()

	return func(ctx context.Context) error {
		err := ps.Close()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return err
	}, nil
}

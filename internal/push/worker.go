package push

import (
	"context"
	"errors"
	"sync"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/logger"
)

// Worker 轮询推送外发盒并投递到 Expo；失败不重试，停止时未发出的记录退回 pending
type Worker struct {
	outbox  repository.PushRepository
	users   repository.UserRepository
	sender  Sender
	limiter *rate.Limiter

	workers      int
	claimLimit   int
	pollInterval time.Duration
}

func NewWorker(outbox repository.PushRepository, users repository.UserRepository, sender Sender, workers, claimLimit int, pollInterval time.Duration, ratePerSec float64) *Worker {
	if workers <= 0 {
		workers = 2
	}
	if claimLimit <= 0 {
		claimLimit = MaxBatch
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Worker{
		outbox:       outbox,
		users:        users,
		sender:       sender,
		limiter:      rate.NewLimiter(limit, MaxBatch),
		workers:      workers,
		claimLimit:   claimLimit,
		pollInterval: pollInterval,
	}
}

// Start 启动若干 worker 轮询处理外发盒；返回停止函数
func (w *Worker) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("push outbox processing failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claims one batch of pending notifications and delivers it.
// It returns the number of notifications handled.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.outbox.Claim(ctx, w.claimLimit)
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(batch); start += MaxBatch {
		end := start + MaxBatch
		if end > len(batch) {
			end = len(batch)
		}
		w.deliver(ctx, batch[start:end])
	}
	return len(batch), nil
}

func (w *Worker) deliver(ctx context.Context, chunk []*model.PushNotification) {
	if err := w.limiter.WaitN(ctx, len(chunk)); err != nil {
		// nothing was sent; the next claim picks these up again
		w.release(chunk)
		return
	}

	// results are recorded even if the worker is stopping
	bg := context.WithoutCancel(ctx)
	msgs := make([]expo.PushMessage, 0, len(chunk))
	sendable := make([]*model.PushNotification, 0, len(chunk))
	for _, n := range chunk {
		tok, err := expo.NewExponentPushToken(n.Token)
		if err != nil {
			w.markFailed(bg, n, err.Error())
			continue
		}
		data, err := pushData(n.Data)
		if err != nil {
			w.markFailed(bg, n, err.Error())
			continue
		}
		msgs = append(msgs, expo.PushMessage{
			To:    []expo.ExponentPushToken{tok},
			Title: n.Title,
			Body:  n.Body,
			Sound: "default",
			Data:  data,
		})
		sendable = append(sendable, n)
	}
	if len(msgs) == 0 {
		return
	}

	responses, err := w.sender.PublishMultiple(msgs)
	if err != nil {
		logger.Warn("expo push send failed", zap.Int("count", len(msgs)), zap.Error(err))
		for _, n := range sendable {
			w.markFailed(bg, n, err.Error())
		}
		return
	}

	for i, n := range sendable {
		resp := responses[i]
		err := resp.ValidateResponse()
		if err == nil {
			if err := w.outbox.MarkDone(bg, n.ID); err != nil {
				logger.Error("mark push done failed", zap.Uint("id", n.ID), zap.Error(err))
			}
			continue
		}
		var gone *expo.DeviceNotRegisteredError
		if errors.As(err, &gone) {
			if err := w.users.ClearPushToken(bg, n.Token); err != nil {
				logger.Error("clear stale push token failed", zap.Uint("user_id", n.UserID), zap.Error(err))
			}
		}
		reason := err.Error()
		if code := resp.Details["error"]; code != "" {
			reason = code
		}
		w.markFailed(bg, n, reason)
	}
}

func (w *Worker) markFailed(ctx context.Context, n *model.PushNotification, reason string) {
	if err := w.outbox.MarkFailed(ctx, n.ID, reason); err != nil {
		logger.Error("mark push failed failed", zap.Uint("id", n.ID), zap.Error(err))
	}
}

func (w *Worker) release(chunk []*model.PushNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ids := make([]uint, len(chunk))
	for i, n := range chunk {
		ids[i] = n.ID
	}
	if err := w.outbox.Release(ctx, ids); err != nil {
		logger.Error("release push batch failed", zap.Int("count", len(ids)), zap.Error(err))
	}
}

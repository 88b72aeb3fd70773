package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"github.com/d60-Lab/marketplace/config"
	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/push"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/internal/service"
	"github.com/d60-Lab/marketplace/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

// discardSender accepts every push without network I/O.
type discardSender struct{}

func (discardSender) PublishMultiple(msgs []expo.PushMessage) ([]expo.PushResponse, error) {
	out := make([]expo.PushResponse, len(msgs))
	for i := range out {
		out[i].Status = "ok"
	}
	return out, nil
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	PEERS := envInt("PEERS", 2000) // counterparties of the hub user
	PER := envInt("PER", 20)       // messages per conversation
	SENDS := envInt("SENDS", 500)  // service-level sends to measure
	CONC := envInt("CONC", 8)      // concurrent senders
	QUERIES := envInt("QUERIES", 50)
	PAGE := cfg.Page.MessageSize

	// clean tables for a reproducible run (ok for local bench)
	_ = db.Exec("TRUNCATE TABLE push_outbox, sent_on_messages, message_files, messages, listing_images, listings, categories, users RESTART IDENTITY CASCADE").Error

	hub := model.User{Email: "hub@example.com", Name: "hub", PasswordHash: "x"}
	mustDo(db.Create(&hub).Error)
	peers := make([]model.User, PEERS)
	for i := range peers {
		id := uuid.NewString()[:8]
		tok := fmt.Sprintf("ExponentPushToken[%s]", id)
		peers[i] = model.User{Email: id + "@example.com", Name: "u" + id, PasswordHash: "x", PushToken: &tok}
	}
	mustDo(db.CreateInBatches(&peers, 1000).Error)

	// PER messages per conversation, alternating direction
	base := time.Now().Add(-time.Duration(PEERS*PER) * time.Second)
	batch := make([]model.Message, 0, 1000)
	seq := 0
	flush := func() {
		if len(batch) > 0 {
			mustDo(db.Create(&batch).Error)
			batch = batch[:0]
		}
	}
	for i := range peers {
		for j := 0; j < PER; j++ {
			from, to := hub.ID, peers[i].ID
			if j%2 == 1 {
				from, to = to, from
			}
			seq++
			batch = append(batch, model.Message{FromUserID: from, ToUserID: to, Text: fmt.Sprintf("m%d", seq), SentAt: base.Add(time.Duration(seq) * time.Second)})
			if len(batch) == cap(batch) {
				flush()
			}
		}
	}
	flush()

	messages := repository.NewMessageRepository(db)
	outbox := repository.NewPushRepository(db)
	users := repository.NewUserRepository(db)
	svc := service.NewMessageService(messages, users, repository.NewListingRepository(db), nil, service.MessageServiceOptions{
		Outbox:      outbox,
		PushEnabled: true,
		PageSize:    PAGE,
	})

	// chat list: one window query per call
	chatRecs := make([]time.Duration, 0, QUERIES)
	for i := 0; i < QUERIES; i++ {
		st := time.Now()
		_, _, err := messages.ChatList(ctx, hub.ID, 0, PAGE)
		if err != nil {
			panic(err)
		}
		chatRecs = append(chatRecs, time.Since(st))
	}

	// send path: message + outbox row in one transaction
	sendCh := make(chan time.Duration, SENDS)
	feed := make(chan int, SENDS)
	for i := 0; i < SENDS; i++ {
		feed <- i
	}
	close(feed)
	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < CONC; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				st := time.Now()
				_, err := svc.Send(ctx, service.Actor{ID: hub.ID}, service.SendMessageInput{ToUserID: peers[i%PEERS].ID, Text: "bench"}, nil)
				if err != nil {
					fmt.Println("send failed:", err)
				}
				sendCh <- time.Since(st)
			}
		}()
	}
	wg.Wait()
	close(sendCh)
	sendDur := time.Since(t0)
	sendRecs := make([]time.Duration, 0, SENDS)
	for d := range sendCh {
		sendRecs = append(sendRecs, d)
	}

	// drain outbox through the push worker
	worker := push.NewWorker(outbox, users, discardSender{}, cfg.Push.Workers, cfg.Push.ClaimLimit, 20*time.Millisecond, 0)
	stop := worker.Start()
	drainStart := time.Now()
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		n, err := outbox.CountByStatus(ctx, model.PushPending)
		if err != nil || n == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	drainDur := time.Since(drainStart)
	_ = stop(context.Background())
	done, _ := outbox.CountByStatus(ctx, model.PushDone)

	fmt.Printf("PEERS=%d, PER=%d, SENDS=%d, CONC=%d, PAGE=%d\n", PEERS, PER, SENDS, CONC, PAGE)
	fmt.Printf("Chat list latency: p50=%v, p95=%v, p99=%v\n", pct(chatRecs, 0.50), pct(chatRecs, 0.95), pct(chatRecs, 0.99))
	fmt.Printf("Send total: %v, per op: %v, p50=%v, p95=%v, p99=%v\n",
		sendDur, sendDur/time.Duration(SENDS), pct(sendRecs, 0.50), pct(sendRecs, 0.95), pct(sendRecs, 0.99))
	fmt.Printf("Push outbox drain: %v, done=%d\n", drainDur, done)
}

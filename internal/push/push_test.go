package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/internal/testutil"
)

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"))
	assert.False(t, ValidToken("fcm:abc"))
	assert.False(t, ValidToken(""))
}

func TestPushData(t *testing.T) {
	data, err := pushData([]byte(`{"message_id":12,"from_user_id":3,"kind":"message"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"message_id": "12", "from_user_id": "3", "kind": "message"}, data)

	data, err = pushData(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = pushData([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestExpoClient_PublishMultiple(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/--/api/v2/push/send", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"t1"},{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`))
	}))
	defer srv.Close()

	a, err := expo.NewExponentPushToken("ExponentPushToken[a]")
	require.NoError(t, err)
	b, err := expo.NewExponentPushToken("ExponentPushToken[b]")
	require.NoError(t, err)

	var c Sender = NewExpoClient(srv.URL, "tok")
	responses, err := c.PublishMultiple([]expo.PushMessage{
		{To: []expo.ExponentPushToken{a}, Title: "A", Body: "hi", Sound: "default"},
		{To: []expo.ExponentPushToken{b}, Title: "A", Body: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, responses, 2)
	assert.NoError(t, responses[0].ValidateResponse())

	var gone *expo.DeviceNotRegisteredError
	assert.True(t, errors.As(responses[1].ValidateResponse(), &gone))
}

func TestExpoClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tok, err := expo.NewExponentPushToken("ExponentPushToken[x]")
	require.NoError(t, err)
	_, err = NewExpoClient(srv.URL, "").PublishMultiple([]expo.PushMessage{{To: []expo.ExponentPushToken{tok}, Body: "hi"}})
	assert.Error(t, err)
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []expo.PushMessage
	reply func(msgs []expo.PushMessage) ([]expo.PushResponse, error)
}

func (f *fakeSender) PublishMultiple(msgs []expo.PushMessage) ([]expo.PushResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msgs...)
	f.mu.Unlock()
	return f.reply(msgs)
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func allOK(msgs []expo.PushMessage) ([]expo.PushResponse, error) {
	out := make([]expo.PushResponse, len(msgs))
	for i := range out {
		out[i].Status = "ok"
	}
	return out, nil
}

func TestWorker_ProcessOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	outbox := repository.NewPushRepository(db)
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	alive := testutil.CreateUser(t, db, "alive")
	stale := testutil.CreateUser(t, db, "stale")
	aliveTok, staleTok := "ExponentPushToken[alive]", "ExponentPushToken[stale]"
	require.NoError(t, users.SetPushToken(ctx, alive.ID, &aliveTok))
	require.NoError(t, users.SetPushToken(ctx, stale.ID, &staleTok))

	require.NoError(t, outbox.Enqueue(ctx, &model.PushNotification{UserID: alive.ID, Token: aliveTok, Title: "bob", Body: "hi", Data: datatypes.JSON(`{"message_id":1}`)}))
	require.NoError(t, outbox.Enqueue(ctx, &model.PushNotification{UserID: stale.ID, Token: staleTok, Title: "bob", Body: "hi"}))

	sender := &fakeSender{reply: func(msgs []expo.PushMessage) ([]expo.PushResponse, error) {
		out, _ := allOK(msgs)
		for i, m := range msgs {
			if string(m.To[0]) == staleTok {
				out[i].Status = "error"
				out[i].Details = map[string]string{"error": "DeviceNotRegistered"}
			}
		}
		return out, nil
	}}
	w := NewWorker(outbox, users, sender, 1, 10, time.Millisecond, 0)

	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "default", sender.sent[0].Sound)
	assert.Equal(t, map[string]string{"message_id": "1"}, sender.sent[0].Data)

	done, _ := outbox.CountByStatus(ctx, model.PushDone)
	failed, _ := outbox.CountByStatus(ctx, model.PushFailed)
	assert.EqualValues(t, 1, done)
	assert.EqualValues(t, 1, failed)

	u, err := users.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, u.PushToken)
	u, err = users.GetByID(ctx, alive.ID)
	require.NoError(t, err)
	assert.NotNil(t, u.PushToken)

	// nothing is retried
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, sender.count())
}

func TestWorker_SendErrorMarksFailed(t *testing.T) {
	db := testutil.NewTestDB(t)
	outbox := repository.NewPushRepository(db)
	users := repository.NewUserRepository(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "a")
	require.NoError(t, outbox.Enqueue(ctx, &model.PushNotification{UserID: u.ID, Token: "ExponentPushToken[a]"}))
	require.NoError(t, outbox.Enqueue(ctx, &model.PushNotification{UserID: u.ID, Token: "not-a-token"}))

	sender := &fakeSender{reply: func([]expo.PushMessage) ([]expo.PushResponse, error) { return nil, errors.New("network down") }}
	w := NewWorker(outbox, users, sender, 1, 10, time.Millisecond, 0)
	_, err := w.ProcessOnce(ctx)
	require.NoError(t, err)

	failed, _ := outbox.CountByStatus(ctx, model.PushFailed)
	assert.EqualValues(t, 2, failed)
	assert.Equal(t, 1, sender.count())
}

func TestWorker_StopReleasesUnsentBatch(t *testing.T) {
	db := testutil.NewTestDB(t)
	outbox := repository.NewPushRepository(db)
	users := repository.NewUserRepository(db)
	u := testutil.CreateUser(t, db, "a")
	for i := 0; i < 2; i++ {
		require.NoError(t, outbox.Enqueue(context.Background(), &model.PushNotification{UserID: u.ID, Token: "ExponentPushToken[a]"}))
	}

	sender := &fakeSender{reply: allOK}
	w := NewWorker(outbox, users, sender, 1, 10, time.Millisecond, 0.001)
	// spend the burst so the next batch has to wait far past the deadline
	require.True(t, w.limiter.AllowN(time.Now(), MaxBatch))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, sender.count())

	pending, _ := outbox.CountByStatus(context.Background(), model.PushPending)
	processing, _ := outbox.CountByStatus(context.Background(), model.PushProcessing)
	assert.EqualValues(t, 2, pending)
	assert.Zero(t, processing)
}

func TestWorker_StartDrainsOutbox(t *testing.T) {
	db := testutil.NewTestDB(t)
	outbox := repository.NewPushRepository(db)
	users := repository.NewUserRepository(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "a")
	require.NoError(t, outbox.Enqueue(ctx, &model.PushNotification{UserID: u.ID, Token: "ExponentPushToken[a]"}))

	sender := &fakeSender{reply: allOK}
	stop := NewWorker(outbox, users, sender, 2, 10, 5*time.Millisecond, 1000).Start()
	assert.Eventually(t, func() bool {
		done, _ := outbox.CountByStatus(ctx, model.PushDone)
		return done == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop(context.Background()))
}

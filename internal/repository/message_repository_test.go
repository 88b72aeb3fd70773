package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/testutil"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func TestMessageRepository_CreateWithChildren(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")

	x1 := testutil.CreateMessage(t, db, a, b, "first", at(1))
	x2 := testutil.CreateMessage(t, db, b, a, "second", at(2))

	var hooked uint
	m := &model.Message{FromUserID: a.ID, ToUserID: c.ID, Text: "fwd", SentAt: at(3)}
	err := repo.Create(ctx, m, []model.MessageFile{{File: "f.pdf", OriginalName: "f.pdf", Size: 3}},
		[]*model.Message{x2, x1},
		func(tx *gorm.DB, m *model.Message) error { hooked = m.ID; return nil })
	require.NoError(t, err)
	assert.Equal(t, m.ID, hooked)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "f.pdf", got.Files[0].OriginalName)
	require.Len(t, got.Forwards, 2)
	// forwards are rendered by the forwarded message's sent_at
	assert.Equal(t, x1.ID, got.Forwards[0].MessageID)
	assert.Equal(t, x2.ID, got.Forwards[1].MessageID)
	require.NotNil(t, got.Forwards[0].Message)
	assert.Equal(t, "first", got.Forwards[0].Message.Text)
	require.NotNil(t, got.FromUser)
	assert.Equal(t, "a", got.FromUser.Name)
}

func TestMessageRepository_CreateHookErrorRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	m := &model.Message{FromUserID: a.ID, ToUserID: b.ID, Text: "hi", SentAt: at(0)}
	err := repo.Create(context.Background(), m, []model.MessageFile{{File: "f"}}, nil,
		func(*gorm.DB, *model.Message) error { return errors.New("outbox down") })
	require.Error(t, err)

	var msgs, files int64
	db.Model(&model.Message{}).Count(&msgs)
	db.Model(&model.MessageFile{}).Count(&files)
	assert.Zero(t, msgs)
	assert.Zero(t, files)
}

func TestMessageRepository_NestedForwardsStopAtMaxDepth(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	prev := testutil.CreateMessage(t, db, a, b, "level-0", at(0))
	for i := 1; i <= MaxForwardDepth+1; i++ {
		m := &model.Message{FromUserID: a.ID, ToUserID: b.ID, SentAt: at(i)}
		require.NoError(t, repo.Create(ctx, m, nil, []*model.Message{prev}, nil))
		prev = m
	}

	got, err := repo.GetByID(ctx, prev.ID)
	require.NoError(t, err)
	cur := got
	for depth := 1; depth <= MaxForwardDepth; depth++ {
		require.Len(t, cur.Forwards, 1, "depth %d", depth)
		require.NotNil(t, cur.Forwards[0].Message)
		cur = cur.Forwards[0].Message
	}
	assert.Empty(t, cur.Forwards)
}

func TestMessageRepository_ChatListOnePerCounterparty(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")
	d := testutil.CreateUser(t, db, "d")

	testutil.CreateMessage(t, db, a, b, "a->b", at(1))
	reply := testutil.CreateMessage(t, db, b, a, "b->a", at(2))
	testutil.CreateMessage(t, db, c, a, "c->a old", at(3))
	cLatest := testutil.CreateMessage(t, db, a, c, "a->c", at(5))
	dOnly := testutil.CreateMessage(t, db, d, a, "d->a", at(4))
	// not involving a
	testutil.CreateMessage(t, db, b, c, "b->c", at(9))

	res, total, err := repo.ChatList(ctx, a.ID, 0, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []uint{cLatest.ID, dOnly.ID, reply.ID}, messageIDs(res))

	// hiding the latest message surfaces the previous visible one
	_, err = repo.DeleteForMe(ctx, a.ID, []uint{cLatest.ID})
	require.NoError(t, err)
	res, _, err = repo.ChatList(ctx, a.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "c->a old", res[1].Text)

	// c still sees its own latest message
	res, _, err = repo.ChatList(ctx, c.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b->c", res[0].Text)
	assert.Equal(t, cLatest.ID, res[1].ID)
}

func TestMessageRepository_ListAndThreadRespectVisibility(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")

	m1 := testutil.CreateMessage(t, db, a, b, "1", at(1))
	m2 := testutil.CreateMessage(t, db, b, a, "2", at(2))
	m3 := testutil.CreateMessage(t, db, a, c, "3", at(3))

	res, total, err := repo.List(ctx, a.ID, 0, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []uint{m3.ID, m2.ID, m1.ID}, messageIDs(res))

	res, _, err = repo.Thread(ctx, a.ID, b.ID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint{m2.ID, m1.ID}, messageIDs(res))

	_, err = repo.DeleteForAll(ctx, []uint{m1.ID})
	require.NoError(t, err)
	res, _, err = repo.Thread(ctx, b.ID, a.ID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint{m2.ID}, messageIDs(res))

	res, _, err = repo.List(ctx, c.ID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint{m3.ID}, messageIDs(res))
}

func TestMessageRepository_DeleteForMeOnlyTouchesOwnSide(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")

	sent := testutil.CreateMessage(t, db, a, b, "sent", at(1))
	recv := testutil.CreateMessage(t, db, b, a, "recv", at(2))
	foreign := testutil.CreateMessage(t, db, b, c, "foreign", at(3))

	n, err := repo.DeleteForMe(ctx, a.ID, []uint{sent.ID, recv.ID, foreign.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	msgs, err := repo.FindByIDs(ctx, []uint{sent.ID, recv.ID, foreign.ID})
	require.NoError(t, err)
	byID := map[uint]*model.Message{}
	for _, m := range msgs {
		byID[m.ID] = m
	}
	assert.True(t, byID[sent.ID].IsDeletedForFromUser)
	assert.False(t, byID[sent.ID].IsDeletedForToUser)
	assert.False(t, byID[recv.ID].IsDeletedForFromUser)
	assert.True(t, byID[recv.ID].IsDeletedForToUser)
	assert.False(t, byID[foreign.ID].IsDeletedForFromUser)
	assert.False(t, byID[foreign.ID].IsDeletedForToUser)
}

func TestMessageRepository_MarkRead(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")

	fromB1 := testutil.CreateMessage(t, db, b, a, "1", at(1))
	testutil.CreateMessage(t, db, b, a, "2", at(2))
	fromC := testutil.CreateMessage(t, db, c, a, "3", at(3))
	mine := testutil.CreateMessage(t, db, a, b, "4", at(4))

	// the sender cannot mark its own message read
	n, err := repo.MarkRead(ctx, a.ID, []uint{mine.ID}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.MarkRead(ctx, a.ID, nil, &b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.MarkRead(ctx, a.ID, []uint{fromB1.ID, fromC.ID}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMessageRepository_UpdateTextAndForwardable(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")
	m := testutil.CreateMessage(t, db, a, b, "typo", at(1))
	other := testutil.CreateMessage(t, db, b, c, "private", at(2))

	require.NoError(t, repo.UpdateText(ctx, m.ID, "fixed"))
	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Text)
	assert.True(t, got.IsEdited)

	fw, err := repo.FindForwardable(ctx, a.ID, []uint{m.ID, other.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []uint{m.ID}, messageIDs(fw))
}

func TestMessageRepository_ForwardableSkipsDeleted(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	kept := testutil.CreateMessage(t, db, a, b, "kept", at(1))
	retracted := testutil.CreateMessage(t, db, a, b, "retracted", at(2))
	hidden := testutil.CreateMessage(t, db, a, b, "hidden", at(3))

	_, err := repo.DeleteForAll(ctx, []uint{retracted.ID})
	require.NoError(t, err)
	_, err = repo.DeleteForMe(ctx, b.ID, []uint{hidden.ID})
	require.NoError(t, err)

	fw, err := repo.FindForwardable(ctx, b.ID, []uint{kept.ID, retracted.ID, hidden.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{kept.ID}, messageIDs(fw))

	// the sender still sees the message the recipient hid
	fw, err = repo.FindForwardable(ctx, a.ID, []uint{hidden.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{hidden.ID}, messageIDs(fw))
}

func messageIDs(ms []*model.Message) []uint {
	out := make([]uint, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/marketplace/internal/testutil"
)

func TestAccountService_RegisterAndLogin(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	u, err := env.accounts.Register(ctx, " Alice@Example.com ", "Alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	_, err = env.accounts.Register(ctx, "alice@example.com", "Other", "another-pass")
	var v *ValidationError
	require.True(t, errors.As(err, &v))
	assert.Contains(t, v.Fields, "email")

	got, tok, _, err := env.accounts.Login(ctx, "ALICE@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, tok)

	_, _, _, err = env.accounts.Login(ctx, "alice@example.com", "wrong-password")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	_, _, _, err = env.accounts.Login(ctx, "nobody@example.com", "whatever1")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAccountService_RegisterValidation(t *testing.T) {
	env := newEnv(t)
	_, err := env.accounts.Register(context.Background(), "not-an-email", "", "short")
	var v *ValidationError
	require.True(t, errors.As(err, &v))
	assert.Contains(t, v.Fields, "email")
	assert.Contains(t, v.Fields, "password")
}

func TestAccountService_ProfileAndAvatar(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, env.db, "a")
	actor := Actor{ID: u.ID}

	got, err := env.accounts.UpdateName(ctx, actor, "  Anna ")
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.Name)

	_, err = env.accounts.UpdateName(ctx, actor, " ")
	assert.Error(t, err)

	got, err = env.accounts.SetAvatar(ctx, actor, pngUpload(t, "me.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, got.Avatar)
	assert.NotEmpty(t, got.AvatarThumbnail)

	_, err = env.accounts.SetAvatar(ctx, actor, Upload{Filename: "x.png", Reader: strings.NewReader("nope")})
	var v *ValidationError
	require.True(t, errors.As(err, &v))
	assert.Contains(t, v.Fields, "avatar")
}

func TestAccountService_PushToken(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, env.db, "a")
	b := testutil.CreateUser(t, env.db, "b")

	_, err := env.accounts.SetPushToken(ctx, Actor{ID: a.ID}, "garbage")
	var v *ValidationError
	require.True(t, errors.As(err, &v))

	tok, err := env.accounts.SetPushToken(ctx, Actor{ID: a.ID}, "ExponentPushToken[abc]")
	require.NoError(t, err)
	require.NotNil(t, tok)

	// the token follows the device to its new owner
	_, err = env.accounts.SetPushToken(ctx, Actor{ID: b.ID}, "ExponentPushToken[abc]")
	require.NoError(t, err)
	got, err := env.accounts.GetPushToken(ctx, Actor{ID: a.ID})
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = env.accounts.GetPushToken(ctx, Actor{ID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, got)

	tok, err = env.accounts.SetPushToken(ctx, Actor{ID: b.ID}, "")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

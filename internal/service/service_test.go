package service

import (
	"bytes"
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/media"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/internal/testutil"
	"github.com/d60-Lab/marketplace/pkg/jwtauth"
)

type recordedEvent struct {
	group string
	event any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, group string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{group: group, event: event})
	return nil
}

func (f *fakeBroadcaster) groups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.group
	}
	return out
}

type testEnv struct {
	db          *gorm.DB
	store       *media.LocalStore
	accounts    AccountService
	listings    ListingService
	categories  CategoryService
	messages    MessageService
	broadcaster *fakeBroadcaster
	outbox      repository.PushRepository
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	store, err := media.NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)
	processor := media.NewProcessor(store, 5<<20)

	users := repository.NewUserRepository(db)
	cats := repository.NewCategoryRepository(db)
	listings := repository.NewListingRepository(db)
	outbox := repository.NewPushRepository(db)
	b := &fakeBroadcaster{}

	return &testEnv{
		db:          db,
		store:       store,
		accounts:    NewAccountService(users, jwtauth.NewIssuer("secret", time.Hour), processor),
		listings:    NewListingService(listings, cats, processor, 2),
		categories:  NewCategoryService(cats),
		broadcaster: b,
		outbox:      outbox,
		messages: NewMessageService(repository.NewMessageRepository(db), users, listings, processor, MessageServiceOptions{
			Outbox:      outbox,
			Broadcaster: b,
			Mapper:      dto.Mapper{URL: store.URL},
			PushEnabled: true,
			PageSize:    100,
		}),
	}
}

func pngUpload(t *testing.T, name string) Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(40, 30, color.NRGBA{G: 255, A: 255}), imaging.PNG))
	return Upload{Filename: name, Reader: &buf}
}

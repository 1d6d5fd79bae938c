package userService

import (
	"context"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	users map[int64]model.User
}

func (f *fakeRepo) CreateUser(ctx context.Context, username, email string, isAdmin bool) (model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return model.User{}, repository.ErrAlreadyExists
		}
	}
	u := model.User{ID: int64(len(f.users) + 1), Username: username, Email: email, IsAdmin: isAdmin}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeRepo) GetUserByID(ctx context.Context, userID int64) (model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeRepo) GetUserByChatID(ctx context.Context, chatID int64) (model.User, error) {
	for _, u := range f.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeRepo) SetTelegramChatID(ctx context.Context, userID int64, chatID *int64) error {
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.TelegramChatID = chatID
	f.users[userID] = u
	return nil
}

type fakeCodes struct {
	codes map[string]int64
}

func (f *fakeCodes) SaveLinkCode(ctx context.Context, code string, userID int64, ttl time.Duration) error {
	if _, ok := f.codes[code]; ok {
		return repository.ErrAlreadyExists
	}
	f.codes[code] = userID
	return nil
}

func (f *fakeCodes) ConsumeLinkCode(ctx context.Context, code string) (int64, error) {
	id, ok := f.codes[code]
	if !ok {
		return 0, repository.ErrNotFound
	}
	delete(f.codes, code)
	return id, nil
}

func newService() *UserService {
	return New(&fakeRepo{users: map[int64]model.User{}}, &fakeCodes{codes: map[string]int64{}}, 10*time.Minute)
}

func TestCreateUser(t *testing.T) {
	s := newService()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, " alice ", "alice@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.CreateUser(ctx, "alice", "", false)
	assert.ErrorIs(t, err, service.ErrConflict)

	_, err = s.CreateUser(ctx, "  ", "", false)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestLinkCodeWorksOnce(t *testing.T) {
	s := newService()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "", false)
	require.NoError(t, err)

	code, expiresAt, err := s.IssueLinkCode(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, code, linkCodeLength)
	assert.True(t, expiresAt.After(time.Now()))

	linked, err := s.LinkChat(ctx, code, 777)
	require.NoError(t, err)
	require.NotNil(t, linked.TelegramChatID)
	assert.Equal(t, int64(777), *linked.TelegramChatID)

	_, err = s.LinkChat(ctx, code, 888)
	assert.ErrorIs(t, err, service.ErrNotFound)

	byChat, err := s.ByChat(ctx, 777)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byChat.ID)
}

func TestUnlinkChat(t *testing.T) {
	s := newService()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "", false)
	require.NoError(t, err)
	code, _, err := s.IssueLinkCode(ctx, u.ID)
	require.NoError(t, err)
	_, err = s.LinkChat(ctx, code, 777)
	require.NoError(t, err)

	require.NoError(t, s.UnlinkChat(ctx, 777))

	_, err = s.ByChat(ctx, 777)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.ErrorIs(t, s.UnlinkChat(ctx, 777), service.ErrNotFound)
}

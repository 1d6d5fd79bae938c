package userService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/google/uuid"
)

const (
	linkCodeLength   = 8
	linkCodeAttempts = 3
)

type Repository interface {
	CreateUser(ctx context.Context, username, email string, isAdmin bool) (model.User, error)
	GetUserByID(ctx context.Context, userID int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetUserByChatID(ctx context.Context, chatID int64) (model.User, error)
	SetTelegramChatID(ctx context.Context, userID int64, chatID *int64) error
}

type LinkCodes interface {
	SaveLinkCode(ctx context.Context, code string, userID int64, ttl time.Duration) error
	ConsumeLinkCode(ctx context.Context, code string) (int64, error)
}

type UserService struct {
	repo        Repository
	linkCodes   LinkCodes
	linkCodeTTL time.Duration
}

func New(repo Repository, linkCodes LinkCodes, linkCodeTTL time.Duration) *UserService {
	return &UserService{repo: repo, linkCodes: linkCodes, linkCodeTTL: linkCodeTTL}
}

func (s *UserService) CreateUser(ctx context.Context, username, email string, isAdmin bool) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.User{}, fmt.Errorf("%w: username is required", service.ErrInvalidInput)
	}

	user, err := s.repo.CreateUser(ctx, username, strings.TrimSpace(email), isAdmin)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return model.User{}, fmt.Errorf("%w: user %s already exists", service.ErrConflict, username)
	}
	return user, err
}

func (s *UserService) ByID(ctx context.Context, userID int64) (model.User, error) {
	return mapRepoErr(s.repo.GetUserByID(ctx, userID))
}

func (s *UserService) ByUsername(ctx context.Context, username string) (model.User, error) {
	return mapRepoErr(s.repo.GetUserByUsername(ctx, username))
}

func (s *UserService) ByChat(ctx context.Context, chatID int64) (model.User, error) {
	return mapRepoErr(s.repo.GetUserByChatID(ctx, chatID))
}

// IssueLinkCode returns a one-time code the user sends to the bot with /start.
func (s *UserService) IssueLinkCode(ctx context.Context, userID int64) (code string, expiresAt time.Time, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "UserService.IssueLinkCode"

	for i := 0; i < linkCodeAttempts; i++ {
		code = newLinkCode()
		err = s.linkCodes.SaveLinkCode(ctx, code, userID, s.linkCodeTTL)
		if errors.Is(err, repository.ErrAlreadyExists) {
			slog.Warn("link code collision", slog.String("rqID", rqID), slog.String("op", op))
			continue
		}
		if err != nil {
			return "", time.Time{}, err
		}
		return code, time.Now().Add(s.linkCodeTTL), nil
	}
	return "", time.Time{}, errors.New("can't allocate link code")
}

// LinkChat consumes code and links chatID to the user it was issued for.
func (s *UserService) LinkChat(ctx context.Context, code string, chatID int64) (model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.User{}, fmt.Errorf("%w: link code is required", service.ErrInvalidInput)
	}

	userID, err := s.linkCodes.ConsumeLinkCode(ctx, code)
	if err != nil {
		return mapRepoErr(model.User{}, err)
	}

	if err = s.repo.SetTelegramChatID(ctx, userID, &chatID); err != nil {
		return mapRepoErr(model.User{}, err)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	return mapRepoErr(user, err)
}

func (s *UserService) UnlinkChat(ctx context.Context, chatID int64) error {
	user, err := s.repo.GetUserByChatID(ctx, chatID)
	if err != nil {
		_, err = mapRepoErr(user, err)
		return err
	}
	return s.repo.SetTelegramChatID(ctx, user.ID, nil)
}

func newLinkCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:linkCodeLength])
}

func mapRepoErr(user model.User, err error) (model.User, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, service.ErrNotFound
	}
	return user, err
}

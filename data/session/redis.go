package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/redis/go-redis/v9"
)

const chatSessionTTL = 24 * time.Hour

type RedisSession struct {
	redis *redis.Client
}

func NewRedisSession(redisClient *redis.Client) *RedisSession {
	return &RedisSession{redis: redisClient}
}

func linkCodeKey(code string) string {
	return "tglink:" + code
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("tgsession:%d", chatID)
}

// SaveLinkCode stores a one-time code that links a telegram chat to userID.
func (s *RedisSession) SaveLinkCode(ctx context.Context, code string, userID int64, ttl time.Duration) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	ok, err := s.redis.SetNX(ctx, linkCodeKey(code), userID, ttl).Result()
	if err != nil {
		slog.Error("failed on redis.SetNX", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}
	if !ok {
		return repository.ErrAlreadyExists
	}
	return nil
}

// ConsumeLinkCode returns the user the code was issued for and removes it.
func (s *RedisSession) ConsumeLinkCode(ctx context.Context, code string) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := s.redis.GetDel(ctx, linkCodeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, repository.ErrNotFound
		}
		slog.Error("failed on redis.GetDel", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return 0, err
	}

	userID, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed link code value %q: %w", res, err)
	}
	return userID, nil
}

func (s *RedisSession) GetChatSession(ctx context.Context, chatID int64) (model.ChatSession, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := s.redis.Get(ctx, chatKey(chatID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ChatSession{}, repository.ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.ChatSession{}, err
	}

	var chatSession model.ChatSession
	if err = json.Unmarshal([]byte(res), &chatSession); err != nil {
		slog.Error("can't unmarshall chat session", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.ChatSession{}, err
	}
	return chatSession, nil
}

func (s *RedisSession) SetChatSession(ctx context.Context, chatID int64, chatSession model.ChatSession) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	raw, err := json.Marshal(chatSession)
	if err != nil {
		return err
	}

	if err = s.redis.Set(ctx, chatKey(chatID), raw, chatSessionTTL).Err(); err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}
	return nil
}

func (s *RedisSession) DeleteChatSession(ctx context.Context, chatID int64) error {
	return s.redis.Del(ctx, chatKey(chatID)).Err()
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func priceKey(stockID int64) string {
	return fmt.Sprintf("price:%d", stockID)
}

func (r *RedisCache) SetPrices(ctx context.Context, prices []model.PriceSnapshot) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetPrices", slog.String("rqID", rqID), slog.Int("count", len(prices)))

	if len(prices) == 0 {
		return nil
	}

	pipe := r.redis.Pipeline()
	for _, price := range prices {
		priceJson, err := json.Marshal(price)
		if err != nil {
			slog.Error(
				"can't marshall price in SetPrices",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.Any("price", price),
			)
			return errors.New("can't marshall price")
		}

		pipe.Set(ctx, priceKey(price.StockID), priceJson, r.cfg.Cache.PricesExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetPrices completed", slog.String("rqID", rqID))

	return nil
}

// GetPrice returns repository.ErrNotFound on a cache miss.
func (r *RedisCache) GetPrice(ctx context.Context, stockID int64) (model.PriceSnapshot, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetPrice start", slog.String("rqID", rqID), slog.Int64("stockID", stockID))

	res, err := r.redis.Get(ctx, priceKey(stockID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.PriceSnapshot{}, repository.ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.Int64("stockID", stockID))
		return model.PriceSnapshot{}, err
	}

	price := model.PriceSnapshot{}
	err = json.Unmarshal([]byte(res), &price)
	if err != nil {
		slog.Error(
			"can't unmarshall price in GetPrice",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return model.PriceSnapshot{}, errors.New("can't unmarshall price")
	}

	slog.Debug("GetPrice finished", slog.String("rqID", rqID))

	return price, nil
}

// GetPrices returns the cached prices of stockIDs together with the ids that missed.
func (r *RedisCache) GetPrices(ctx context.Context, stockIDs []int64) (map[int64]model.PriceSnapshot, []int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetPrices start", slog.String("rqID", rqID), slog.Any("stockIDs", stockIDs))

	prices := make(map[int64]model.PriceSnapshot, len(stockIDs))
	if len(stockIDs) == 0 {
		return prices, nil, nil
	}

	keys := make([]string, 0, len(stockIDs))
	for _, id := range stockIDs {
		keys = append(keys, priceKey(id))
	}

	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Error("failed on redis.MGet", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil, stockIDs, err
	}

	missed := make([]int64, 0)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missed = append(missed, stockIDs[i])
			continue
		}

		price := model.PriceSnapshot{}
		if err := json.Unmarshal([]byte(raw), &price); err != nil {
			slog.Warn("can't unmarshall cached price", slog.String("rqID", rqID), slog.String("key", keys[i]), slog.String("err", err.Error()))
			missed = append(missed, stockIDs[i])
			continue
		}
		prices[stockIDs[i]] = price
	}

	slog.Debug("GetPrices finished", slog.String("rqID", rqID), slog.Int("hits", len(prices)), slog.Int("missed", len(missed)))

	return prices, missed, nil
}

func (r *RedisCache) FlushPrice(ctx context.Context, stockID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := r.redis.Del(ctx, priceKey(stockID)).Err()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.Int64("stockID", stockID))
	}
	return err
}

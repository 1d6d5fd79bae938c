package marketDataService

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/ledger"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/alphaVantageModel"
	"github.com/KotFed0t/dividend_tracker/utils"
)

type Repository interface {
	ListHeldStocks(ctx context.Context) ([]model.Stock, error)
	UpsertPrice(ctx context.Context, price model.PriceSnapshot) error
	LatestPrices(ctx context.Context, stockIDs []int64, notBefore time.Time) (map[int64]model.PriceSnapshot, error)
	UpsertDividends(ctx context.Context, dividends []model.Dividend) error
}

type Cache interface {
	GetPrices(ctx context.Context, stockIDs []int64) (map[int64]model.PriceSnapshot, []int64, error)
	SetPrices(ctx context.Context, prices []model.PriceSnapshot) error
}

type QuoteApi interface {
	GetQuote(ctx context.Context, symbol string) (alphaVantageModel.Quote, error)
	GetDividends(ctx context.Context, symbol string) ([]alphaVantageModel.Dividend, error)
}

type MarketDataService struct {
	repo        Repository
	cache       Cache
	quoteApi    QuoteApi
	priceMaxAge time.Duration
	now         func() time.Time
}

func New(repo Repository, cache Cache, quoteApi QuoteApi, priceMaxAge time.Duration) *MarketDataService {
	return &MarketDataService{
		repo:        repo,
		cache:       cache,
		quoteApi:    quoteApi,
		priceMaxAge: priceMaxAge,
		now:         time.Now,
	}
}

// LatestPrices returns the newest usable price per stock. Stocks without a
// price inside the max age are absent from the map.
func (s *MarketDataService) LatestPrices(ctx context.Context, stockIDs []int64) (map[int64]model.PriceSnapshot, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketDataService.LatestPrices"

	notBefore := dateOf(s.now()).Add(-s.priceMaxAge)

	prices, missed, err := s.cache.GetPrices(ctx, stockIDs)
	if err != nil {
		slog.Warn("price cache unavailable, reading from db", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		prices, missed = make(map[int64]model.PriceSnapshot, len(stockIDs)), stockIDs
	}

	for id, p := range prices {
		if p.PriceDate.Before(notBefore) {
			delete(prices, id)
			missed = append(missed, id)
		}
	}

	if len(missed) == 0 {
		return prices, nil
	}

	fromDb, err := s.repo.LatestPrices(ctx, missed, notBefore)
	if err != nil {
		return nil, err
	}

	toCache := make([]model.PriceSnapshot, 0, len(fromDb))
	for id, p := range fromDb {
		prices[id] = p
		toCache = append(toCache, p)
	}

	if err = s.cache.SetPrices(ctx, toCache); err != nil {
		slog.Warn("can't warm price cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	return prices, nil
}

// RefreshPrices stores today's quote of every held stock. It fails only when
// there was something to refresh and nothing succeeded.
func (s *MarketDataService) RefreshPrices(ctx context.Context, progress *model.JobProgress) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketDataService.RefreshPrices"

	slog.Info("RefreshPrices start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("RefreshPrices failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Info("RefreshPrices completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("succeeded", progress.Succeeded), slog.Int("failed", progress.Failed))
		}
	}()

	stocks, err := s.repo.ListHeldStocks(ctx)
	if err != nil {
		return err
	}

	refreshed := make([]model.PriceSnapshot, 0, len(stocks))
	for _, stock := range stocks {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		quote, err := s.quoteApi.GetQuote(ctx, stock.Symbol)
		if err != nil {
			slog.Warn("can't get quote", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", stock.Symbol), slog.String("err", err.Error()))
			progress.Failure(stock.Symbol)
			continue
		}

		price := model.PriceSnapshot{
			StockID:   stock.ID,
			PriceDate: quote.TradingDay,
			LastPrice: quote.Price,
			Currency:  stock.Currency,
		}
		if err = s.repo.UpsertPrice(ctx, price); err != nil {
			progress.Failure(stock.Symbol)
			continue
		}

		refreshed = append(refreshed, price)
		progress.Success()
	}

	if err = s.cache.SetPrices(ctx, refreshed); err != nil {
		slog.Warn("can't cache refreshed prices", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	if len(stocks) > 0 && progress.Succeeded == 0 {
		return fmt.Errorf("no price refreshed out of %d stocks", len(stocks))
	}

	return nil
}

func (s *MarketDataService) RefreshDividends(ctx context.Context, progress *model.JobProgress) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketDataService.RefreshDividends"

	slog.Info("RefreshDividends start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("RefreshDividends failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Info("RefreshDividends completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("succeeded", progress.Succeeded), slog.Int("failed", progress.Failed))
		}
	}()

	stocks, err := s.repo.ListHeldStocks(ctx)
	if err != nil {
		return err
	}

	asOf := dateOf(s.now())
	for _, stock := range stocks {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		history, err := s.quoteApi.GetDividends(ctx, stock.Symbol)
		if err != nil {
			slog.Warn("can't get dividends", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", stock.Symbol), slog.String("err", err.Error()))
			progress.Failure(stock.Symbol)
			continue
		}

		exDates := make([]time.Time, 0, len(history))
		for _, d := range history {
			exDates = append(exDates, d.ExDividendDate)
		}
		frequency := ledger.InferFrequency(exDates, asOf)

		dividends := make([]model.Dividend, 0, len(history))
		for _, d := range history {
			dividends = append(dividends, model.Dividend{
				StockID:        stock.ID,
				Amount:         d.Amount,
				ExDividendDate: d.ExDividendDate,
				PaymentDate:    d.PaymentDate,
				Frequency:      frequency,
			})
		}

		if err = s.repo.UpsertDividends(ctx, dividends); err != nil {
			progress.Failure(stock.Symbol)
			continue
		}

		progress.Success()
	}

	if len(stocks) > 0 && progress.Succeeded == 0 {
		return fmt.Errorf("no dividends refreshed out of %d stocks", len(stocks))
	}

	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

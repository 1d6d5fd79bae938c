package alphaVantageApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/internal/externalApi"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/alphaVantageModel"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const queryPath = "/query"

type AlphaVantageApi struct {
	client  *resty.Client
	limiter *rate.Limiter
	apiKey  string
}

// NewLimiter spreads requestsPerMinute evenly; zero or less disables limiting.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

func New(cfg *config.Config, limiter *rate.Limiter) *AlphaVantageApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.AlphaVantage.Url)
	return &AlphaVantageApi{client: client, limiter: limiter, apiKey: cfg.API.AlphaVantage.Key}
}

func (a *AlphaVantageApi) GetQuote(ctx context.Context, symbol string) (alphaVantageModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AlphaVantageApi.GetQuote"

	slog.Debug("GetQuote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))

	raw := alphaVantageModel.RawGlobalQuote{}
	if err := a.get(ctx, "GLOBAL_QUOTE", symbol, &raw); err != nil {
		return alphaVantageModel.Quote{}, err
	}
	if err := checkThrottle(raw.Throttle); err != nil {
		slog.Warn("alpha vantage declined GetQuote", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return alphaVantageModel.Quote{}, err
	}

	if raw.Quote.Price == "" {
		return alphaVantageModel.Quote{}, externalApi.ErrNotFound
	}

	price, err := decimal.NewFromString(raw.Quote.Price)
	if err != nil {
		return alphaVantageModel.Quote{}, fmt.Errorf("invalid price %q: %w", raw.Quote.Price, err)
	}

	tradingDay, err := time.Parse(model.DateLayout, raw.Quote.LatestTradingDay)
	if err != nil {
		return alphaVantageModel.Quote{}, fmt.Errorf("invalid trading day %q: %w", raw.Quote.LatestTradingDay, err)
	}

	slog.Debug("GetQuote completed", slog.String("rqID", rqID), slog.String("op", op), slog.String("price", price.String()))

	return alphaVantageModel.Quote{
		Symbol:     raw.Quote.Symbol,
		Price:      price,
		TradingDay: tradingDay,
	}, nil
}

// GetDividends returns the dividend history newest first, as the api sends it.
func (a *AlphaVantageApi) GetDividends(ctx context.Context, symbol string) ([]alphaVantageModel.Dividend, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AlphaVantageApi.GetDividends"

	slog.Debug("GetDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))

	raw := alphaVantageModel.RawDividends{}
	if err := a.get(ctx, "DIVIDENDS", symbol, &raw); err != nil {
		return nil, err
	}
	if err := checkThrottle(raw.Throttle); err != nil {
		slog.Warn("alpha vantage declined GetDividends", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	res := make([]alphaVantageModel.Dividend, 0, len(raw.Data))
	for _, d := range raw.Data {
		exDate, err := time.Parse(model.DateLayout, d.ExDividendDate)
		if err != nil {
			slog.Warn("skip dividend with invalid ex date", slog.String("rqID", rqID), slog.String("op", op), slog.String("exDate", d.ExDividendDate))
			continue
		}

		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			slog.Warn("skip dividend with invalid amount", slog.String("rqID", rqID), slog.String("op", op), slog.String("amount", d.Amount))
			continue
		}

		dividend := alphaVantageModel.Dividend{Amount: amount, ExDividendDate: exDate}
		// "None" when the payment date is not announced yet
		if payDate, err := time.Parse(model.DateLayout, d.PaymentDate); err == nil {
			dividend.PaymentDate = &payDate
		}

		res = append(res, dividend)
	}

	slog.Debug("GetDividends completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(res)))

	return res, nil
}

func (a *AlphaVantageApi) get(ctx context.Context, function, symbol string, dst any) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"function": function,
			"symbol":   symbol,
			"apikey":   a.apiKey,
		}).
		Get(queryPath)
	if err != nil {
		slog.Error("error while dialing AlphaVantageApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return externalApi.ErrRateLimited
	}
	if resp.IsError() {
		return fmt.Errorf("alpha vantage %s: unexpected status %d", function, resp.StatusCode())
	}

	if err = json.Unmarshal(resp.Body(), dst); err != nil {
		slog.Error("can't unmarshall alpha vantage response", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	return nil
}

func checkThrottle(t alphaVantageModel.Throttle) error {
	switch {
	case t.Note != "":
		return fmt.Errorf("%w: %s", externalApi.ErrRateLimited, t.Note)
	case t.Information != "":
		return fmt.Errorf("%w: %s", externalApi.ErrRateLimited, t.Information)
	case strings.Contains(strings.ToLower(t.ErrorMessage), "invalid api call"):
		return externalApi.ErrNotFound
	case t.ErrorMessage != "":
		return fmt.Errorf("alpha vantage error: %s", t.ErrorMessage)
	}
	return nil
}

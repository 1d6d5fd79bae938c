package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/converter/dbConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
	"github.com/KotFed0t/dividend_tracker/utils"
)

const stockColumns = `id, symbol, company_name, currency, sector, is_etf, is_active, created_at`

// GetOrCreateStock returns the stock with symbol, inserting it first when it is unknown.
func (r *Postgres) GetOrCreateStock(ctx context.Context, symbol, currency string) (stock model.Stock, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetOrCreateStock"
	query := `
		INSERT INTO stocks(symbol, currency) VALUES($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING ` + stockColumns

	slog.Debug("GetOrCreateStock start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetOrCreateStock failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetOrCreateStock completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("stockID", stock.ID))
		}
	}()

	var dbStock dbModel.Stock
	err = r.txOrDb(ctx).GetContext(ctx, &dbStock, query, symbol, currency)
	if err != nil {
		return model.Stock{}, mapErr(err)
	}

	return dbConverter.ConvertStock(dbStock), nil
}

func (r *Postgres) getStock(ctx context.Context, op, where string, arg any) (stock model.Stock, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT ` + stockColumns + ` FROM stocks WHERE ` + where

	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("arg", arg))
	defer func() {
		if err != nil {
			slog.Error(op+" failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug(op+" completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var dbStock dbModel.Stock
	err = r.txOrDb(ctx).GetContext(ctx, &dbStock, query, arg)
	if err != nil {
		return model.Stock{}, mapErr(err)
	}

	return dbConverter.ConvertStock(dbStock), nil
}

func (r *Postgres) GetStockByID(ctx context.Context, stockID int64) (model.Stock, error) {
	return r.getStock(ctx, "Postgres.GetStockByID", `id = $1`, stockID)
}

func (r *Postgres) GetStockBySymbol(ctx context.Context, symbol string) (model.Stock, error) {
	return r.getStock(ctx, "Postgres.GetStockBySymbol", `symbol = $1`, strings.ToUpper(symbol))
}

// ListHeldStocks returns active stocks that at least one user holds.
func (r *Postgres) ListHeldStocks(ctx context.Context) (stocks []model.Stock, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListHeldStocks"
	query := `
		SELECT ` + stockColumns + ` FROM stocks s
		WHERE s.is_active
		AND EXISTS (SELECT 1 FROM holdings h WHERE h.stock_id = s.id)
		ORDER BY s.symbol
		`

	slog.Debug("ListHeldStocks start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ListHeldStocks failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListHeldStocks completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(stocks)))
		}
	}()

	var dbStocks []dbModel.Stock
	if err = r.txOrDb(ctx).SelectContext(ctx, &dbStocks, query); err != nil {
		return nil, err
	}

	stocks = make([]model.Stock, 0, len(dbStocks))
	for _, s := range dbStocks {
		stocks = append(stocks, dbConverter.ConvertStock(s))
	}
	return stocks, nil
}

func (r *Postgres) UpsertPrice(ctx context.Context, price model.PriceSnapshot) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertPrice"
	query := `
		INSERT INTO stock_prices (stock_id, price_date, last_price, currency, high_52_week, low_52_week)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stock_id, price_date) DO UPDATE SET
			last_price = EXCLUDED.last_price,
			currency = EXCLUDED.currency,
			high_52_week = COALESCE(EXCLUDED.high_52_week, stock_prices.high_52_week),
			low_52_week = COALESCE(EXCLUDED.low_52_week, stock_prices.low_52_week)
		`

	slog.Debug("UpsertPrice start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("price", price), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertPrice failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertPrice completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query,
		price.StockID,
		price.PriceDate,
		price.LastPrice,
		price.Currency,
		price.High52,
		price.Low52,
	)
	return err
}

// LatestPrice returns the most recent price not older than notBefore, nil when there is none.
func (r *Postgres) LatestPrice(ctx context.Context, stockID int64, notBefore time.Time) (price *model.PriceSnapshot, err error) {
	prices, err := r.LatestPrices(ctx, []int64{stockID}, notBefore)
	if err != nil {
		return nil, err
	}
	if p, ok := prices[stockID]; ok {
		return &p, nil
	}
	return nil, nil
}

// LatestPrices returns the newest price per stock in one query; stocks without
// a recent enough price are absent from the map.
func (r *Postgres) LatestPrices(ctx context.Context, stockIDs []int64, notBefore time.Time) (prices map[int64]model.PriceSnapshot, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.LatestPrices"
	query := `
		SELECT DISTINCT ON (stock_id) stock_id, price_date, last_price, currency, high_52_week, low_52_week
		FROM stock_prices
		WHERE stock_id = ANY($1)
		AND price_date >= $2
		ORDER BY stock_id, price_date DESC
		`

	slog.Debug("LatestPrices start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("stockIDs", stockIDs), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("LatestPrices failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("LatestPrices completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("found", len(prices)))
		}
	}()

	prices = make(map[int64]model.PriceSnapshot, len(stockIDs))
	if len(stockIDs) == 0 {
		return prices, nil
	}

	var rows []dbModel.StockPrice
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, stockIDs, notBefore); err != nil {
		return nil, err
	}

	for _, row := range rows {
		prices[row.StockID] = dbConverter.ConvertPrice(row)
	}
	return prices, nil
}

// UpsertDividends stores dividends in a single statement keyed by (stock, ex-dividend date).
func (r *Postgres) UpsertDividends(ctx context.Context, dividends []model.Dividend) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertDividends"

	if len(dividends) == 0 {
		return nil
	}

	slog.Debug("UpsertDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(dividends)))
	defer func() {
		if err != nil {
			slog.Error("UpsertDividends failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertDividends completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	sb := strings.Builder{}
	args := make([]any, 0, len(dividends)*5)

	sb.WriteString(`INSERT INTO dividends (stock_id, amount, ex_dividend_date, payment_date, frequency) VALUES `)

	for i, d := range dividends {
		args = append(args, d.StockID, d.Amount, d.ExDividendDate, d.PaymentDate, string(d.Frequency))

		start := i*5 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			start, start+1, start+2, start+3, start+4,
		))

		if i < len(dividends)-1 {
			sb.WriteString(",")
		}
	}

	sb.WriteString(`
		ON CONFLICT (stock_id, ex_dividend_date) DO UPDATE SET
			amount = EXCLUDED.amount,
			payment_date = EXCLUDED.payment_date,
			frequency = EXCLUDED.frequency;
	`)

	_, err = r.txOrDb(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

// LatestDividends returns the most recent dividend per stock.
func (r *Postgres) LatestDividends(ctx context.Context, stockIDs []int64) (dividends map[int64]model.Dividend, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.LatestDividends"
	query := `
		SELECT DISTINCT ON (stock_id) stock_id, amount, ex_dividend_date, payment_date, frequency
		FROM dividends
		WHERE stock_id = ANY($1)
		ORDER BY stock_id, ex_dividend_date DESC
		`

	slog.Debug("LatestDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("stockIDs", stockIDs), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("LatestDividends failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("LatestDividends completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dividends = make(map[int64]model.Dividend, len(stockIDs))
	if len(stockIDs) == 0 {
		return dividends, nil
	}

	var rows []dbModel.Dividend
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, stockIDs); err != nil {
		return nil, err
	}

	for _, row := range rows {
		dividends[row.StockID] = dbConverter.ConvertDividend(row)
	}
	return dividends, nil
}

// UpcomingDividends lists dividends of the user's holdings going ex between from and to inclusive.
func (r *Postgres) UpcomingDividends(ctx context.Context, userID int64, from, to time.Time) (alerts []model.DividendAlert, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpcomingDividends"
	query := `
		SELECT s.id, s.symbol, s.company_name, s.currency, s.sector, s.is_etf, s.is_active, s.created_at,
			d.amount, d.ex_dividend_date, d.payment_date, d.frequency, h.shares_owned
		FROM holdings h
		JOIN stocks s ON s.id = h.stock_id
		JOIN dividends d ON d.stock_id = h.stock_id
		WHERE h.user_id = $1
		AND d.ex_dividend_date BETWEEN $2 AND $3
		ORDER BY d.ex_dividend_date, s.symbol
		`

	slog.Debug("UpcomingDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpcomingDividends failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpcomingDividends completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(alerts)))
		}
	}()

	var rows []dbModel.UpcomingDividend
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID, from, to); err != nil {
		return nil, err
	}

	alerts = make([]model.DividendAlert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, dbConverter.ConvertUpcomingDividend(row))
	}
	return alerts, nil
}

package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KotFed0t/dividend_tracker/internal/converter/dbConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/shopspring/decimal"
)

const transactionColumns = `
	t.id, t.user_id, t.stock_id, s.symbol, t.transaction_type, t.transaction_date, t.shares,
	t.price_per_share, t.fees, t.cost_basis_method, t.realized_gain_loss, t.notes, t.processed,
	t.created_at, t.updated_at`

// replayOrder is the ledger order: date, buys before other rows of the same day, creation.
const replayOrder = `t.transaction_date, CASE WHEN t.transaction_type = 'BUY' THEN 0 ELSE 1 END, t.created_at, t.id`

func convertTransactions(rows []dbModel.Transaction) []model.Transaction {
	txs := make([]model.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, dbConverter.ConvertTransaction(row))
	}
	return txs
}

func (r *Postgres) CreateTransaction(ctx context.Context, t model.Transaction) (created model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.CreateTransaction"
	query := `
		INSERT INTO transactions (
			user_id, stock_id, transaction_type, transaction_date, shares, price_per_share,
			fees, cost_basis_method, realized_gain_loss, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, processed, created_at, updated_at
		`

	slog.Debug("CreateTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateTransaction completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", created.ID))
		}
	}()

	created = t
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query,
		t.UserID,
		t.StockID,
		string(t.Type),
		t.Date,
		t.Shares,
		t.Price,
		t.Fees,
		string(t.CostBasisMethod),
		t.RealizedGainLoss,
		t.Notes,
	).Scan(&created.ID, &created.Processed, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return model.Transaction{}, mapErr(err)
	}

	return created, nil
}

// UpdateTransaction rewrites the editable fields and marks the row unprocessed.
func (r *Postgres) UpdateTransaction(ctx context.Context, t model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdateTransaction"
	query := `
		UPDATE transactions SET
			stock_id = :stock_id,
			transaction_type = :transaction_type,
			transaction_date = :transaction_date,
			shares = :shares,
			price_per_share = :price_per_share,
			fees = :fees,
			cost_basis_method = :cost_basis_method,
			realized_gain_loss = :realized_gain_loss,
			notes = :notes,
			processed = FALSE,
			updated_at = NOW()
		WHERE id = :id AND user_id = :user_id
		`

	slog.Debug("UpdateTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", t.ID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).NamedExecContext(ctx, query, dbModel.Transaction{
		ID:               t.ID,
		UserID:           t.UserID,
		StockID:          t.StockID,
		Type:             string(t.Type),
		Date:             t.Date,
		Shares:           t.Shares,
		Price:            t.Price,
		Fees:             t.Fees,
		CostBasisMethod:  string(t.CostBasisMethod),
		RealizedGainLoss: t.RealizedGainLoss,
		Notes:            t.Notes,
	})
	if err != nil {
		return mapErr(err)
	}
	return requireAffected(res)
}

func (r *Postgres) DeleteTransaction(ctx context.Context, userID, transactionID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteTransaction"
	query := `DELETE FROM transactions WHERE id = $1 AND user_id = $2`

	slog.Debug("DeleteTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", transactionID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, transactionID, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *Postgres) GetTransaction(ctx context.Context, userID, transactionID int64) (t model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransaction"
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN stocks s ON s.id = t.stock_id
		WHERE t.id = $1 AND t.user_id = $2
		`

	slog.Debug("GetTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", transactionID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var row dbModel.Transaction
	if err = r.txOrDb(ctx).GetContext(ctx, &row, query, transactionID, userID); err != nil {
		return model.Transaction{}, mapErr(err)
	}
	return dbConverter.ConvertTransaction(row), nil
}

// ListTransactions returns the user's transactions newest first.
func (r *Postgres) ListTransactions(ctx context.Context, userID int64, filter model.TransactionFilter) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListTransactions"

	sb := strings.Builder{}
	args := []any{userID}
	sb.WriteString(`SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN stocks s ON s.id = t.stock_id
		WHERE t.user_id = $1`)

	if filter.StockID != nil {
		args = append(args, *filter.StockID)
		sb.WriteString(fmt.Sprintf(" AND t.stock_id = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		sb.WriteString(fmt.Sprintf(" AND t.transaction_type = $%d", len(args)))
	}
	if filter.Year != nil {
		args = append(args, *filter.Year)
		sb.WriteString(fmt.Sprintf(" AND EXTRACT(YEAR FROM t.transaction_date) = $%d", len(args)))
	}
	sb.WriteString(` ORDER BY t.transaction_date DESC, t.created_at DESC, t.id DESC`)
	query := sb.String()

	slog.Debug("ListTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("args", args))
	defer func() {
		if err != nil {
			slog.Error("ListTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListTransactions completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(txs)))
		}
	}()

	var rows []dbModel.Transaction
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return convertTransactions(rows), nil
}

// GetPositionHistory returns every row of one position in ledger order.
func (r *Postgres) GetPositionHistory(ctx context.Context, userID, stockID int64) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetPositionHistory"
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN stocks s ON s.id = t.stock_id
		WHERE t.user_id = $1 AND t.stock_id = $2
		ORDER BY ` + replayOrder

	slog.Debug("GetPositionHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID))
	defer func() {
		if err != nil {
			slog.Error("GetPositionHistory failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPositionHistory completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(txs)))
		}
	}()

	var rows []dbModel.Transaction
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID, stockID); err != nil {
		return nil, err
	}
	return convertTransactions(rows), nil
}

// GetUnprocessedTrades returns BUY and SELL rows not yet folded into the holding.
func (r *Postgres) GetUnprocessedTrades(ctx context.Context, userID, stockID int64) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUnprocessedTrades"
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN stocks s ON s.id = t.stock_id
		WHERE t.user_id = $1 AND t.stock_id = $2
		AND t.transaction_type IN ('BUY', 'SELL')
		AND NOT t.processed
		ORDER BY ` + replayOrder

	slog.Debug("GetUnprocessedTrades start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID))
	defer func() {
		if err != nil {
			slog.Error("GetUnprocessedTrades failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUnprocessedTrades completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(txs)))
		}
	}()

	var rows []dbModel.Transaction
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID, stockID); err != nil {
		return nil, err
	}
	return convertTransactions(rows), nil
}

func (r *Postgres) HasProcessedTrades(ctx context.Context, userID, stockID int64) (exists bool, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.HasProcessedTrades"
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND stock_id = $2
			AND transaction_type IN ('BUY', 'SELL')
			AND processed
		)`

	defer func() {
		if err != nil {
			slog.Error("HasProcessedTrades failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	err = r.txOrDb(ctx).GetContext(ctx, &exists, query, userID, stockID)
	return exists, err
}

// CountTrades counts BUY and SELL rows of a position.
func (r *Postgres) CountTrades(ctx context.Context, userID, stockID int64) (count int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.CountTrades"
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND stock_id = $2
		AND transaction_type IN ('BUY', 'SELL')`

	defer func() {
		if err != nil {
			slog.Error("CountTrades failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	err = r.txOrDb(ctx).GetContext(ctx, &count, query, userID, stockID)
	return count, err
}

func (r *Postgres) MarkProcessed(ctx context.Context, userID, stockID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.MarkProcessed"
	query := `
		UPDATE transactions SET processed = TRUE
		WHERE user_id = $1 AND stock_id = $2
		AND transaction_type IN ('BUY', 'SELL')
		AND NOT processed`

	slog.Debug("MarkProcessed start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID))
	defer func() {
		if err != nil {
			slog.Error("MarkProcessed failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("MarkProcessed completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, stockID)
	return err
}

// SetRealizedGain stores gain for a sell, a NULL gain means it could not be determined.
func (r *Postgres) SetRealizedGain(ctx context.Context, transactionID int64, gain decimal.NullDecimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SetRealizedGain"
	query := `UPDATE transactions SET realized_gain_loss = $1, updated_at = NOW() WHERE id = $2 AND transaction_type = 'SELL'`

	slog.Debug("SetRealizedGain start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", transactionID))
	defer func() {
		if err != nil {
			slog.Error("SetRealizedGain failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SetRealizedGain completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, gain, transactionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListSales returns SELL rows matching filter in ledger order, with the owner's username.
func (r *Postgres) ListSales(ctx context.Context, filter model.RecalcFilter) (sales []model.SaleRecord, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListSales"

	sb := strings.Builder{}
	args := make([]any, 0, 2)
	sb.WriteString(`SELECT ` + transactionColumns + `, u.username
		FROM transactions t
		JOIN stocks s ON s.id = t.stock_id
		JOIN users u ON u.id = t.user_id
		WHERE t.transaction_type = 'SELL'`)

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		sb.WriteString(fmt.Sprintf(" AND t.user_id = $%d", len(args)))
	}
	if filter.StockID != nil {
		args = append(args, *filter.StockID)
		sb.WriteString(fmt.Sprintf(" AND t.stock_id = $%d", len(args)))
	}
	sb.WriteString(` ORDER BY t.user_id, t.stock_id, ` + replayOrder)
	query := sb.String()

	slog.Debug("ListSales start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("args", args))
	defer func() {
		if err != nil {
			slog.Error("ListSales failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListSales completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(sales)))
		}
	}()

	var rows []dbModel.Sale
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	sales = make([]model.SaleRecord, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, dbConverter.ConvertSale(row))
	}
	return sales, nil
}

// ListPositions returns every (user, stock) pair with trade rows, optionally for one user.
func (r *Postgres) ListPositions(ctx context.Context, userID *int64) (positions []model.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListPositions"
	query := `
		SELECT DISTINCT user_id, stock_id FROM transactions
		WHERE transaction_type IN ('BUY', 'SELL')
		AND ($1::BIGINT IS NULL OR user_id = $1)
		ORDER BY user_id, stock_id
		`

	defer func() {
		if err != nil {
			slog.Error("ListPositions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListPositions completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(positions)))
		}
	}()

	var rows []dbModel.Position
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	positions = make([]model.Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, model.Position{UserID: row.UserID, StockID: row.StockID})
	}
	return positions, nil
}

// SumRealizedGains totals stored gains of the user's sells. Sales counts only
// sells with a stored gain; sells without one are counted as indeterminate.
func (r *Postgres) SumRealizedGains(ctx context.Context, userID int64, filter model.RealizedGainsFilter) (gains model.RealizedGains, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SumRealizedGains"

	sb := strings.Builder{}
	args := []any{userID}
	sb.WriteString(`
		SELECT
			COALESCE(SUM(realized_gain_loss), 0) AS total,
			COUNT(realized_gain_loss) AS sales,
			COUNT(*) FILTER (WHERE realized_gain_loss IS NULL) AS indeterminate
		FROM transactions
		WHERE user_id = $1 AND transaction_type = 'SELL'`)

	if filter.StockID != nil {
		args = append(args, *filter.StockID)
		sb.WriteString(fmt.Sprintf(" AND stock_id = $%d", len(args)))
	}
	if filter.Year != nil {
		args = append(args, *filter.Year)
		sb.WriteString(fmt.Sprintf(" AND EXTRACT(YEAR FROM transaction_date) = $%d", len(args)))
	}
	query := sb.String()

	slog.Debug("SumRealizedGains start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("args", args))
	defer func() {
		if err != nil {
			slog.Error("SumRealizedGains failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SumRealizedGains completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var row dbModel.RealizedGains
	if err = r.txOrDb(ctx).GetContext(ctx, &row, query, args...); err != nil {
		return model.RealizedGains{}, err
	}

	return model.RealizedGains{
		Total:         row.Total,
		Sales:         row.Sales,
		Indeterminate: row.Indeterminate,
	}, nil
}

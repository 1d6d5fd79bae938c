package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/converter/dbConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
	"github.com/KotFed0t/dividend_tracker/utils"
)

const holdingColumns = `h.user_id, h.stock_id, h.shares_owned, h.average_cost, h.total_shares, h.total_cost, h.notes, h.created_at, h.updated_at`

func (r *Postgres) GetHolding(ctx context.Context, userID, stockID int64) (holding model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetHolding"
	query := `SELECT ` + holdingColumns + ` FROM holdings h WHERE h.user_id = $1 AND h.stock_id = $2`

	slog.Debug("GetHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID))
	defer func() {
		if err != nil {
			slog.Error("GetHolding failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHolding completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var row dbModel.Holding
	if err = r.txOrDb(ctx).GetContext(ctx, &row, query, userID, stockID); err != nil {
		return model.Holding{}, mapErr(err)
	}
	return dbConverter.ConvertHolding(row), nil
}

// UpsertHolding writes the position totals, keeping notes and created_at of an existing row.
func (r *Postgres) UpsertHolding(ctx context.Context, h model.Holding) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertHolding"
	query := `
		INSERT INTO holdings (user_id, stock_id, shares_owned, average_cost, total_shares, total_cost, notes)
		VALUES (:user_id, :stock_id, :shares_owned, :average_cost, :total_shares, :total_cost, :notes)
		ON CONFLICT (user_id, stock_id) DO UPDATE SET
			shares_owned = EXCLUDED.shares_owned,
			average_cost = EXCLUDED.average_cost,
			total_shares = EXCLUDED.total_shares,
			total_cost = EXCLUDED.total_cost,
			updated_at = NOW()
		`

	slog.Debug("UpsertHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("holding", h), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertHolding failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertHolding completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbModel.Holding{
		UserID:      h.UserID,
		StockID:     h.StockID,
		SharesOwned: h.SharesOwned,
		AverageCost: h.AverageCost,
		TotalShares: h.TotalShares,
		TotalCost:   h.TotalCost,
		Notes:       h.Notes,
	})
	return err
}

// DeleteHolding removes the holding row; a missing row is not an error.
func (r *Postgres) DeleteHolding(ctx context.Context, userID, stockID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteHolding"
	query := `DELETE FROM holdings WHERE user_id = $1 AND stock_id = $2`

	slog.Debug("DeleteHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID))
	defer func() {
		if err != nil {
			slog.Error("DeleteHolding failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteHolding completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, stockID)
	return err
}

// ListHoldings returns the user's holdings with their stock, ordered by symbol.
func (r *Postgres) ListHoldings(ctx context.Context, userID int64) (holdings []model.HoldingView, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListHoldings"
	query := `
		SELECT ` + holdingColumns + `, s.symbol, s.company_name, s.currency, s.sector, s.is_etf, s.is_active
		FROM holdings h
		JOIN stocks s ON s.id = h.stock_id
		WHERE h.user_id = $1
		ORDER BY s.symbol
		`

	slog.Debug("ListHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ListHoldings failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListHoldings completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(holdings)))
		}
	}()

	var rows []dbModel.HoldingWithStock
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	holdings = make([]model.HoldingView, 0, len(rows))
	for _, row := range rows {
		holdings = append(holdings, dbConverter.ConvertHoldingWithStock(row))
	}
	return holdings, nil
}

func (r *Postgres) UpdateHoldingNotes(ctx context.Context, userID, stockID int64, notes string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdateHoldingNotes"
	query := `UPDATE holdings SET notes = $1, updated_at = NOW() WHERE user_id = $2 AND stock_id = $3`

	slog.Debug("UpdateHoldingNotes start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID))
	defer func() {
		if err != nil {
			slog.Error("UpdateHoldingNotes failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateHoldingNotes completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, notes, userID, stockID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *Postgres) UpsertSnapshot(ctx context.Context, s model.PortfolioSnapshot) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertSnapshot"
	query := `
		INSERT INTO portfolio_snapshots (
			user_id, snapshot_date, total_value, total_cost, unrealized_gain,
			priced_holdings, total_holdings, annual_dividend_income
		)
		VALUES (
			:user_id, :snapshot_date, :total_value, :total_cost, :unrealized_gain,
			:priced_holdings, :total_holdings, :annual_dividend_income
		)
		ON CONFLICT (user_id, snapshot_date) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			total_cost = EXCLUDED.total_cost,
			unrealized_gain = EXCLUDED.unrealized_gain,
			priced_holdings = EXCLUDED.priced_holdings,
			total_holdings = EXCLUDED.total_holdings,
			annual_dividend_income = EXCLUDED.annual_dividend_income
		`

	slog.Debug("UpsertSnapshot start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", s.UserID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertSnapshot failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertSnapshot completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbModel.PortfolioSnapshot{
		UserID:               s.UserID,
		SnapshotDate:         s.SnapshotDate,
		TotalValue:           s.TotalValue,
		TotalCost:            s.TotalCost,
		UnrealizedGain:       s.UnrealizedGain,
		PricedHoldings:       s.PricedHoldings,
		TotalHoldings:        s.TotalHoldings,
		AnnualDividendIncome: s.AnnualDividendIncome,
	})
	return err
}

// ListSnapshots returns the user's snapshots between from and to, oldest first.
func (r *Postgres) ListSnapshots(ctx context.Context, userID int64, from, to time.Time) (snapshots []model.PortfolioSnapshot, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListSnapshots"
	query := `
		SELECT user_id, snapshot_date, total_value, total_cost, unrealized_gain,
			priced_holdings, total_holdings, annual_dividend_income
		FROM portfolio_snapshots
		WHERE user_id = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date
		`

	slog.Debug("ListSnapshots start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ListSnapshots failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListSnapshots completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(snapshots)))
		}
	}()

	var rows []dbModel.PortfolioSnapshot
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID, from, to); err != nil {
		return nil, err
	}

	snapshots = make([]model.PortfolioSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, dbConverter.ConvertSnapshot(row))
	}
	return snapshots, nil
}

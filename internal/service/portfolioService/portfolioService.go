package portfolioService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/ledger"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/shopspring/decimal"
)

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	LockPosition(ctx context.Context, userID, stockID int64) error
	GetOrCreateStock(ctx context.Context, symbol, currency string) (model.Stock, error)
	GetStockBySymbol(ctx context.Context, symbol string) (model.Stock, error)
	GetHolding(ctx context.Context, userID, stockID int64) (model.Holding, error)
	UpsertHolding(ctx context.Context, h model.Holding) error
	DeleteHolding(ctx context.Context, userID, stockID int64) error
	ListHoldings(ctx context.Context, userID int64) ([]model.HoldingView, error)
	UpdateHoldingNotes(ctx context.Context, userID, stockID int64, notes string) error
	CreateTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, filter model.TransactionFilter) ([]model.Transaction, error)
	GetPositionHistory(ctx context.Context, userID, stockID int64) ([]model.Transaction, error)
	GetUnprocessedTrades(ctx context.Context, userID, stockID int64) ([]model.Transaction, error)
	HasProcessedTrades(ctx context.Context, userID, stockID int64) (bool, error)
	CountTrades(ctx context.Context, userID, stockID int64) (int, error)
	MarkProcessed(ctx context.Context, userID, stockID int64) error
	ListPositions(ctx context.Context, userID *int64) ([]model.Position, error)
	SumRealizedGains(ctx context.Context, userID int64, filter model.RealizedGainsFilter) (model.RealizedGains, error)
	LatestDividends(ctx context.Context, stockIDs []int64) (map[int64]model.Dividend, error)
	ListUserIDsWithHoldings(ctx context.Context) ([]int64, error)
	UpsertSnapshot(ctx context.Context, s model.PortfolioSnapshot) error
	ListSnapshots(ctx context.Context, userID int64, from, to time.Time) ([]model.PortfolioSnapshot, error)
}

type PriceProvider interface {
	LatestPrices(ctx context.Context, stockIDs []int64) (map[int64]model.PriceSnapshot, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, report model.PortfolioReport) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
}

type PortfolioService struct {
	repo            Repository
	prices          PriceProvider
	reportGenerator ReportGenerator
	cloudStorage    CloudStorage
	defaultCurrency string
	now             func() time.Time
}

// New builds the service. cloudStorage may be nil when report sharing is not configured.
func New(repo Repository, prices PriceProvider, reportGenerator ReportGenerator, cloudStorage CloudStorage, defaultCurrency string) *PortfolioService {
	return &PortfolioService{
		repo:            repo,
		prices:          prices,
		reportGenerator: reportGenerator,
		cloudStorage:    cloudStorage,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// Reconcile rebuilds the holding of one (user, stock) from its ledger rows
// under a position lock. Nil is returned when the position is closed.
func (s *PortfolioService) Reconcile(ctx context.Context, userID, stockID int64, mode model.ReconcileMode) (holding *model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.Reconcile"

	slog.Debug("Reconcile start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("stockID", stockID), slog.String("mode", mode.String()))
	defer func() {
		if err != nil {
			slog.Error("Reconcile failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Reconcile completed", slog.String("rqID", rqID), slog.String("op", op), slog.Bool("open", holding != nil))
		}
	}()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPosition(ctx, userID, stockID); err != nil {
			return err
		}

		existing, err := s.repo.GetHolding(ctx, userID, stockID)
		hasHolding := err == nil
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if mode == model.ReconcileIncremental && !hasHolding {
			processed, err := s.repo.HasProcessedTrades(ctx, userID, stockID)
			if err != nil {
				return err
			}
			if processed {
				slog.Info("holding missing for processed rows, rebuilding in full", slog.String("rqID", rqID), slog.String("op", op))
				mode = model.ReconcileFull
			}
		}

		var (
			prev ledger.Position
			rows []model.Transaction
		)
		switch mode {
		case model.ReconcileFull:
			rows, err = s.repo.GetPositionHistory(ctx, userID, stockID)
		default:
			if hasHolding {
				prev = ledger.PositionOf(existing)
			}
			rows, err = s.repo.GetUnprocessedTrades(ctx, userID, stockID)
		}
		if err != nil {
			return err
		}

		pos := ledger.Fold(prev, rows)

		if err = s.repo.MarkProcessed(ctx, userID, stockID); err != nil {
			return err
		}

		h, open := pos.Holding(userID, stockID)
		if !open {
			holding = nil
			return s.repo.DeleteHolding(ctx, userID, stockID)
		}

		if hasHolding {
			h.Notes = existing.Notes
			h.CreatedAt = existing.CreatedAt
		}
		if err = s.repo.UpsertHolding(ctx, h); err != nil {
			return err
		}
		holding = &h
		return nil
	})
	if err != nil {
		return nil, err
	}

	return holding, nil
}

// ReconcileAll rebuilds every position that has trade rows, optionally for one
// user or one stock, and returns how many positions were processed.
func (s *PortfolioService) ReconcileAll(ctx context.Context, filter model.RecalcFilter) (count int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ReconcileAll"

	positions, err := s.repo.ListPositions(ctx, filter.UserID)
	if err != nil {
		return 0, err
	}

	for _, pos := range positions {
		if filter.StockID != nil && pos.StockID != *filter.StockID {
			continue
		}
		if _, err = s.Reconcile(ctx, pos.UserID, pos.StockID, model.ReconcileFull); err != nil {
			return count, fmt.Errorf("reconcile user %d stock %d: %w", pos.UserID, pos.StockID, err)
		}
		count++
	}

	slog.Info("ReconcileAll completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("positions", count))

	return count, nil
}

// Holdings values every holding of the user at its latest price. Holdings
// without a usable price keep their cost but are left out of the value totals.
func (s *PortfolioService) Holdings(ctx context.Context, userID int64) (summary model.PortfolioSummary, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.Holdings"

	slog.Debug("Holdings start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		if err != nil {
			slog.Error("Holdings failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Holdings completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(summary.Holdings)))
		}
	}()

	holdings, err := s.repo.ListHoldings(ctx, userID)
	if err != nil {
		return model.PortfolioSummary{}, err
	}

	stockIDs := make([]int64, 0, len(holdings))
	for _, h := range holdings {
		stockIDs = append(stockIDs, h.StockID)
	}

	prices, err := s.prices.LatestPrices(ctx, stockIDs)
	if err != nil {
		return model.PortfolioSummary{}, err
	}

	dividends, err := s.repo.LatestDividends(ctx, stockIDs)
	if err != nil {
		return model.PortfolioSummary{}, err
	}

	summary = model.PortfolioSummary{
		Holdings:             make([]model.HoldingView, 0, len(holdings)),
		TotalCost:            decimal.Zero,
		TotalValue:           decimal.Zero,
		UnrealizedGain:       decimal.Zero,
		AnnualDividendIncome: decimal.Zero,
	}

	for _, h := range holdings {
		var pricePtr *decimal.Decimal
		if p, ok := prices[h.StockID]; ok {
			price := p
			h.Price = &price
			pricePtr = &price.LastPrice
		}

		h.Unrealized = ledger.Unrealized(h.Holding, pricePtr)
		h.AnnualDividendIncome = decimal.Zero
		if d, ok := dividends[h.StockID]; ok {
			h.AnnualDividendIncome = ledger.AnnualDividendIncome(d.Amount, h.SharesOwned, d.Frequency)
		}

		summary.TotalCost = summary.TotalCost.Add(h.CostBasis())
		summary.AnnualDividendIncome = summary.AnnualDividendIncome.Add(h.AnnualDividendIncome)
		if h.Unrealized.Available {
			summary.PricedHoldings++
			summary.TotalValue = summary.TotalValue.Add(h.Unrealized.MarketValue)
			summary.UnrealizedGain = summary.UnrealizedGain.Add(h.Unrealized.Gain)
		}

		summary.Holdings = append(summary.Holdings, h)
	}

	summary.TotalCost = summary.TotalCost.RoundBank(2)

	return summary, nil
}

func (s *PortfolioService) RealizedGains(ctx context.Context, userID int64, filter model.RealizedGainsFilter) (model.RealizedGains, error) {
	gains, err := s.repo.SumRealizedGains(ctx, userID, filter)
	if err != nil {
		return model.RealizedGains{}, err
	}
	gains.Total = gains.Total.RoundBank(2)
	return gains, nil
}

// RealizedGainsBySymbol resolves symbol first; an unknown symbol has no gains.
func (s *PortfolioService) RealizedGainsBySymbol(ctx context.Context, userID int64, symbol string, year *int) (model.RealizedGains, error) {
	filter := model.RealizedGainsFilter{Year: year}
	if symbol != "" {
		stock, err := s.repo.GetStockBySymbol(ctx, symbol)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.RealizedGains{Total: decimal.Zero}, nil
			}
			return model.RealizedGains{}, err
		}
		filter.StockID = &stock.ID
	}
	return s.RealizedGains(ctx, userID, filter)
}

// OpeningBalance records an existing position as a single BUY. It is only
// allowed while the user has no trades in that stock.
func (s *PortfolioService) OpeningBalance(ctx context.Context, userID int64, symbol string, in model.OpeningBalanceInput) (holding model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.OpeningBalance"

	slog.Debug("OpeningBalance start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("symbol", symbol))
	defer func() {
		if err != nil {
			slog.Error("OpeningBalance failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("OpeningBalance completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	date := in.Date
	if date == "" {
		date = s.now().Format(model.DateLayout)
	}

	t, err := ledger.ParseInput(model.TransactionInput{
		Symbol: symbol,
		Type:   string(model.TransactionBuy),
		Date:   date,
		Shares: in.Shares,
		Price:  in.AverageCost,
		Notes:  in.Notes,
	}, s.now())
	if err != nil {
		return model.Holding{}, err
	}
	t.UserID = userID
	if t.Notes == "" {
		t.Notes = "opening balance"
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		stock, err := s.repo.GetOrCreateStock(ctx, t.Symbol, s.defaultCurrency)
		if err != nil {
			return err
		}
		t.StockID = stock.ID

		if err = s.repo.LockPosition(ctx, userID, stock.ID); err != nil {
			return err
		}

		trades, err := s.repo.CountTrades(ctx, userID, stock.ID)
		if err != nil {
			return err
		}
		if trades > 0 {
			return fmt.Errorf("%w: %s already has ledger history, record a transaction instead", service.ErrConflict, stock.Symbol)
		}

		if _, err = s.repo.CreateTransaction(ctx, t); err != nil {
			return err
		}

		h, err := s.Reconcile(ctx, userID, stock.ID, model.ReconcileFull)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%w: opening balance must hold at least one share", service.ErrInvalidInput)
		}
		holding = *h
		return nil
	})
	if err != nil {
		return model.Holding{}, err
	}

	return holding, nil
}

func (s *PortfolioService) UpdateNotes(ctx context.Context, userID int64, symbol, notes string) error {
	stock, err := s.repo.GetStockBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}

	err = s.repo.UpdateHoldingNotes(ctx, userID, stock.ID, notes)
	if errors.Is(err, repository.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// TakeSnapshots stores today's valuation of every user that holds something.
func (s *PortfolioService) TakeSnapshots(ctx context.Context, progress *model.JobProgress) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.TakeSnapshots"

	slog.Info("TakeSnapshots start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("TakeSnapshots failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Info("TakeSnapshots completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("succeeded", progress.Succeeded), slog.Int("failed", progress.Failed))
		}
	}()

	userIDs, err := s.repo.ListUserIDsWithHoldings(ctx)
	if err != nil {
		return err
	}

	y, m, d := s.now().Date()
	snapshotDate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		summary, err := s.Holdings(ctx, userID)
		if err == nil {
			err = s.repo.UpsertSnapshot(ctx, model.PortfolioSnapshot{
				UserID:               userID,
				SnapshotDate:         snapshotDate,
				TotalValue:           summary.TotalValue,
				TotalCost:            summary.TotalCost,
				UnrealizedGain:       summary.UnrealizedGain,
				PricedHoldings:       summary.PricedHoldings,
				TotalHoldings:        len(summary.Holdings),
				AnnualDividendIncome: summary.AnnualDividendIncome,
			})
		}
		if err != nil {
			slog.Warn("snapshot failed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("err", err.Error()))
			progress.Failure(fmt.Sprintf("user %d", userID))
			continue
		}
		progress.Success()
	}

	return nil
}

func (s *PortfolioService) Snapshots(ctx context.Context, userID int64, from, to time.Time) ([]model.PortfolioSnapshot, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from must not be after to", service.ErrInvalidInput)
	}
	return s.repo.ListSnapshots(ctx, userID, from, to)
}

// PortfolioReport renders the user's holdings and full ledger as a workbook.
func (s *PortfolioService) PortfolioReport(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error) {
	summary, err := s.Holdings(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	txs, err := s.repo.ListTransactions(ctx, userID, model.TransactionFilter{})
	if err != nil {
		return nil, "", err
	}

	return s.reportGenerator.Generate(ctx, model.PortfolioReport{
		Summary:      summary,
		Transactions: txs,
		GeneratedAt:  s.now(),
	})
}

// SharePortfolioReport uploads the report and returns a public link.
func (s *PortfolioService) SharePortfolioReport(ctx context.Context, userID int64) (string, error) {
	if s.cloudStorage == nil {
		return "", service.ErrNotConfigured
	}

	fileBytes, ext, err := s.PortfolioReport(ctx, userID)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("portfolio_%d_%s%s", userID, s.now().Format("20060102_150405"), ext)

	return s.cloudStorage.UploadFile(ctx, bytes.NewReader(fileBytes), filename)
}

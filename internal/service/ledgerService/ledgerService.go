package ledgerService

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/converter/csvConverter"
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
	CreateTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error)
	UpdateTransaction(ctx context.Context, t model.Transaction) error
	DeleteTransaction(ctx context.Context, userID, transactionID int64) error
	GetTransaction(ctx context.Context, userID, transactionID int64) (model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, filter model.TransactionFilter) ([]model.Transaction, error)
	GetPositionHistory(ctx context.Context, userID, stockID int64) ([]model.Transaction, error)
	SetRealizedGain(ctx context.Context, transactionID int64, gain decimal.NullDecimal) error
	ListSales(ctx context.Context, filter model.RecalcFilter) ([]model.SaleRecord, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, userID, stockID int64, mode model.ReconcileMode) (*model.Holding, error)
}

type LedgerService struct {
	repo            Repository
	reconciler      Reconciler
	defaultCurrency string
	now             func() time.Time
}

func New(repo Repository, reconciler Reconciler, defaultCurrency string) *LedgerService {
	return &LedgerService{
		repo:            repo,
		reconciler:      reconciler,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

func (s *LedgerService) Create(ctx context.Context, userID int64, in model.TransactionInput) (res model.TransactionResult, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.Create"

	slog.Debug("Create start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("symbol", in.Symbol))
	defer func() {
		if err != nil {
			slog.Error("Create failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Create completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("id", res.Transaction.ID))
		}
	}()

	t, err := ledger.ParseInput(in, s.now())
	if err != nil {
		return model.TransactionResult{}, err
	}
	t.UserID = userID

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		stock, err := s.repo.GetOrCreateStock(ctx, t.Symbol, s.defaultCurrency)
		if err != nil {
			return fmt.Errorf("resolve stock %s: %w", t.Symbol, err)
		}
		t.StockID = stock.ID

		if err = s.repo.LockPosition(ctx, userID, stock.ID); err != nil {
			return err
		}

		created, err := s.repo.CreateTransaction(ctx, t)
		if err != nil {
			return err
		}
		created.Symbol = stock.Symbol

		warnings, err := s.recomputeSales(ctx, userID, stock.ID, created.Date)
		if err != nil {
			return err
		}

		if _, err = s.reconciler.Reconcile(ctx, userID, stock.ID, model.ReconcileIncremental); err != nil {
			return err
		}

		res, err = s.result(ctx, userID, created.ID, warnings)
		return err
	})
	if err != nil {
		return model.TransactionResult{}, err
	}

	return res, nil
}

// Update rewrites a transaction. Sales on or after the earlier of its old and
// new dates are recalculated, and the touched positions are rebuilt in full.
func (s *LedgerService) Update(ctx context.Context, userID, transactionID int64, in model.TransactionInput) (res model.TransactionResult, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.Update"

	slog.Debug("Update start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("id", transactionID))
	defer func() {
		if err != nil {
			slog.Error("Update failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Update completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	t, err := ledger.ParseInput(in, s.now())
	if err != nil {
		return model.TransactionResult{}, err
	}
	t.ID = transactionID
	t.UserID = userID

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetTransaction(ctx, userID, transactionID)
		if err != nil {
			return mapRepoErr(err)
		}

		stock, err := s.repo.GetOrCreateStock(ctx, t.Symbol, s.defaultCurrency)
		if err != nil {
			return fmt.Errorf("resolve stock %s: %w", t.Symbol, err)
		}
		t.StockID = stock.ID

		touched := []int64{old.StockID}
		if stock.ID != old.StockID {
			touched = append(touched, stock.ID)
			slices.Sort(touched)
		}

		for _, stockID := range touched {
			if err = s.repo.LockPosition(ctx, userID, stockID); err != nil {
				return err
			}
		}

		if err = s.repo.UpdateTransaction(ctx, t); err != nil {
			return mapRepoErr(err)
		}

		from := old.Date
		if t.Date.Before(from) {
			from = t.Date
		}

		warnings := map[int64]string{}
		for _, stockID := range touched {
			w, err := s.recomputeSales(ctx, userID, stockID, from)
			if err != nil {
				return err
			}
			for id, msg := range w {
				warnings[id] = msg
			}

			if _, err = s.reconciler.Reconcile(ctx, userID, stockID, model.ReconcileFull); err != nil {
				return err
			}
		}

		res, err = s.result(ctx, userID, transactionID, warnings)
		return err
	})
	if err != nil {
		return model.TransactionResult{}, err
	}

	return res, nil
}

func (s *LedgerService) Delete(ctx context.Context, userID, transactionID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.Delete"

	slog.Debug("Delete start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int64("id", transactionID))
	defer func() {
		if err != nil {
			slog.Error("Delete failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Delete completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetTransaction(ctx, userID, transactionID)
		if err != nil {
			return mapRepoErr(err)
		}

		if err = s.repo.LockPosition(ctx, userID, old.StockID); err != nil {
			return err
		}

		if err = s.repo.DeleteTransaction(ctx, userID, transactionID); err != nil {
			return mapRepoErr(err)
		}

		if _, err = s.recomputeSales(ctx, userID, old.StockID, old.Date); err != nil {
			return err
		}

		_, err = s.reconciler.Reconcile(ctx, userID, old.StockID, model.ReconcileFull)
		return err
	})
}

func (s *LedgerService) Get(ctx context.Context, userID, transactionID int64) (model.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return model.Transaction{}, mapRepoErr(err)
	}
	return t, nil
}

// List returns the user's transactions, newest first. An unknown symbol yields an empty list.
func (s *LedgerService) List(ctx context.Context, userID int64, query model.TransactionQuery) ([]model.Transaction, error) {
	filter := model.TransactionFilter{Type: query.Type, Year: query.Year}

	if query.Symbol != "" {
		stock, err := s.repo.GetStockBySymbol(ctx, query.Symbol)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return []model.Transaction{}, nil
			}
			return nil, err
		}
		filter.StockID = &stock.ID
	}

	return s.repo.ListTransactions(ctx, userID, filter)
}

// RecalculateGains recomputes and stores the gain of every sale matching
// filter over its full history. Each position is rewritten and rebuilt under
// its lock; a position whose write fails is reported as failed sale by sale.
func (s *LedgerService) RecalculateGains(ctx context.Context, filter model.RecalcFilter, report func(model.RecalcOutcome)) (summary model.RecalcSummary, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.RecalculateGains"

	slog.Info("RecalculateGains start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("RecalculateGains failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Info("RecalculateGains completed", slog.String("rqID", rqID), slog.String("op", op), slog.Any("summary", summary))
		}
	}()

	if report == nil {
		report = func(model.RecalcOutcome) {}
	}

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return model.RecalcSummary{}, err
	}
	summary.Found = len(sales)

	byPosition := make(map[model.Position][]model.SaleRecord)
	positions := make([]model.Position, 0)
	for _, sale := range sales {
		pos := model.Position{UserID: sale.UserID, StockID: sale.StockID}
		if _, ok := byPosition[pos]; !ok {
			positions = append(positions, pos)
		}
		byPosition[pos] = append(byPosition[pos], sale)
	}

	for _, pos := range positions {
		outcomes, err := s.recalculatePosition(ctx, pos, byPosition[pos])
		if err != nil {
			slog.Error("recalculation of position rolled back", slog.String("rqID", rqID), slog.String("op", op),
				slog.Int64("userID", pos.UserID), slog.Int64("stockID", pos.StockID), slog.String("err", err.Error()))

			outcomes = make([]model.RecalcOutcome, 0, len(byPosition[pos]))
			for _, sale := range byPosition[pos] {
				outcomes = append(outcomes, model.RecalcOutcome{
					Transaction: sale.Transaction,
					Username:    sale.Username,
					Status:      model.RecalcFailed,
					Reason:      err.Error(),
				})
			}
		}

		for _, o := range outcomes {
			if o.Status == model.RecalcFailed {
				summary.Errors++
			} else {
				summary.Updated++
			}
			report(o)
		}
	}

	return summary, nil
}

// recalculatePosition rewrites the gains of one position's sales and rebuilds
// the holding in a single transaction under the position lock. Any storage
// error rolls back the whole position.
func (s *LedgerService) recalculatePosition(ctx context.Context, pos model.Position, sales []model.SaleRecord) (outcomes []model.RecalcOutcome, err error) {
	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		outcomes = make([]model.RecalcOutcome, 0, len(sales))

		if err := s.repo.LockPosition(ctx, pos.UserID, pos.StockID); err != nil {
			return err
		}

		history, err := s.repo.GetPositionHistory(ctx, pos.UserID, pos.StockID)
		if err != nil {
			return err
		}

		for _, sale := range sales {
			outcome := model.RecalcOutcome{Transaction: sale.Transaction, Username: sale.Username}

			gain, warning, calcErr := gainFor(history, sale.Transaction)
			if calcErr != nil {
				outcome.Status = model.RecalcFailed
				outcome.Reason = calcErr.Error()
				outcomes = append(outcomes, outcome)
				continue
			}

			if err = s.repo.SetRealizedGain(ctx, sale.ID, gain); err != nil {
				return err
			}

			if gain.Valid {
				outcome.Status = model.RecalcUpdated
				outcome.Gain = gain.Decimal
			} else {
				outcome.Status = model.RecalcNoBasis
				outcome.Reason = warning
			}
			outcomes = append(outcomes, outcome)
		}

		if _, err = s.reconciler.Reconcile(ctx, pos.UserID, pos.StockID, model.ReconcileFull); err != nil {
			return fmt.Errorf("reconcile user %d stock %d: %w", pos.UserID, pos.StockID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// ImportCSV validates every row and stores the valid ones per stock in date
// order. Each touched stock is recalculated and reconciled once.
func (s *LedgerService) ImportCSV(ctx context.Context, userID int64, r io.Reader) (res model.ImportResult, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.ImportCSV"

	slog.Debug("ImportCSV start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		if err != nil {
			slog.Error("ImportCSV failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Info("ImportCSV completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("imported", res.Imported), slog.Int("errors", len(res.Errors)))
		}
	}()

	rows, importErrors, err := csvConverter.ReadTransactions(r)
	if err != nil {
		if errors.Is(err, csvConverter.ErrBadHeader) {
			return model.ImportResult{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err.Error())
		}
		return model.ImportResult{}, err
	}
	res.Errors = importErrors

	today := s.now()
	bySymbol := make(map[string][]model.Transaction)
	symbols := make([]string, 0)

	for _, row := range rows {
		t, err := ledger.ParseInput(row.Input, today)
		if err != nil {
			res.Errors = append(res.Errors, model.ImportError{Line: row.Line, Message: err.Error()})
			continue
		}
		t.UserID = userID

		if _, ok := bySymbol[t.Symbol]; !ok {
			symbols = append(symbols, t.Symbol)
		}
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	for _, symbol := range symbols {
		txs := bySymbol[symbol]
		slices.SortStableFunc(txs, func(a, b model.Transaction) int {
			return a.Date.Compare(b.Date)
		})

		err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
			stock, err := s.repo.GetOrCreateStock(ctx, symbol, s.defaultCurrency)
			if err != nil {
				return fmt.Errorf("resolve stock %s: %w", symbol, err)
			}

			if err = s.repo.LockPosition(ctx, userID, stock.ID); err != nil {
				return err
			}

			for _, t := range txs {
				t.StockID = stock.ID
				if _, err = s.repo.CreateTransaction(ctx, t); err != nil {
					return err
				}
			}

			if _, err = s.recomputeSales(ctx, userID, stock.ID, txs[0].Date); err != nil {
				return err
			}

			_, err = s.reconciler.Reconcile(ctx, userID, stock.ID, model.ReconcileFull)
			return err
		})
		if err != nil {
			return res, err
		}

		res.Imported += len(txs)
	}

	slices.SortStableFunc(res.Errors, func(a, b model.ImportError) int {
		return cmp.Compare(a.Line, b.Line)
	})

	return res, nil
}

// ExportCSV writes all of the user's transactions oldest first.
func (s *LedgerService) ExportCSV(ctx context.Context, userID int64, w io.Writer) error {
	txs, err := s.repo.ListTransactions(ctx, userID, model.TransactionFilter{})
	if err != nil {
		return err
	}

	slices.Reverse(txs)

	return csvConverter.WriteTransactions(w, txs)
}

// recomputeSales stores a fresh gain for every sale of the position dated on
// or after from. It returns the reasons of the sales left indeterminate.
func (s *LedgerService) recomputeSales(ctx context.Context, userID, stockID int64, from time.Time) (map[int64]string, error) {
	history, err := s.repo.GetPositionHistory(ctx, userID, stockID)
	if err != nil {
		return nil, err
	}

	warnings := make(map[int64]string)
	for _, t := range history {
		if t.Type != model.TransactionSell || t.Date.Before(from) {
			continue
		}

		gain, warning, err := gainFor(history, t)
		if err != nil {
			return nil, fmt.Errorf("cost basis of transaction %d: %w", t.ID, err)
		}
		if warning != "" {
			warnings[t.ID] = warning
		}

		if err = s.repo.SetRealizedGain(ctx, t.ID, gain); err != nil {
			return nil, err
		}
	}

	return warnings, nil
}

func (s *LedgerService) result(ctx context.Context, userID, transactionID int64, warnings map[int64]string) (model.TransactionResult, error) {
	t, err := s.repo.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return model.TransactionResult{}, mapRepoErr(err)
	}
	return model.TransactionResult{Transaction: t, Warning: warnings[transactionID]}, nil
}

// gainFor prices a sale against the lots left open by its history. A sale
// without enough history gets a NULL gain and a warning instead of an error.
func gainFor(history []model.Transaction, sale model.Transaction) (decimal.NullDecimal, string, error) {
	lots := ledger.OpenLots(history, sale)

	res, err := ledger.CostBasis(lots, sale.Shares, sale.CostBasisMethod)
	if err != nil {
		if ledger.IsBusinessError(err) {
			return decimal.NullDecimal{}, err.Error(), nil
		}
		return decimal.NullDecimal{}, "", err
	}

	return decimal.NewNullDecimal(ledger.RealizedGain(sale, res.CostBasis)), "", nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

package portfolioService

import (
	"context"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC)

type holdingKey struct{ user, stock int64 }

type fakeRepo struct {
	stocks    map[string]model.Stock
	txs       []model.Transaction
	holdings  map[holdingKey]model.Holding
	dividends map[int64]model.Dividend
	snapshots []model.PortfolioSnapshot
	nextTxID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stocks: map[string]model.Stock{
			"TD.TO":  {ID: 1, Symbol: "TD.TO", Currency: "CAD", IsActive: true},
			"ENB.TO": {ID: 2, Symbol: "ENB.TO", Currency: "CAD", IsActive: true},
		},
		holdings:  map[holdingKey]model.Holding{},
		dividends: map[int64]model.Dividend{},
	}
}

func (f *fakeRepo) add(userID, stockID int64, typ model.TransactionType, date, shares, price, fees string) model.Transaction {
	f.nextTxID++
	d, _ := time.Parse(model.DateLayout, date)
	t := model.Transaction{
		ID:              f.nextTxID,
		UserID:          userID,
		StockID:         stockID,
		Type:            typ,
		Date:            d,
		Shares:          decimal.RequireFromString(shares),
		Price:           decimal.RequireFromString(price),
		Fees:            decimal.RequireFromString(fees),
		CostBasisMethod: model.FIFO,
		CreatedAt:       now.Add(time.Duration(f.nextTxID) * time.Second),
	}
	f.txs = append(f.txs, t)
	return t
}

func (f *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (f *fakeRepo) LockPosition(context.Context, int64, int64) error { return nil }

func (f *fakeRepo) GetOrCreateStock(_ context.Context, symbol, currency string) (model.Stock, error) {
	if s, ok := f.stocks[symbol]; ok {
		return s, nil
	}
	s := model.Stock{ID: int64(len(f.stocks) + 1), Symbol: symbol, Currency: currency, IsActive: true}
	f.stocks[symbol] = s
	return s, nil
}

func (f *fakeRepo) GetStockBySymbol(_ context.Context, symbol string) (model.Stock, error) {
	if s, ok := f.stocks[strings.ToUpper(symbol)]; ok {
		return s, nil
	}
	return model.Stock{}, repository.ErrNotFound
}

func (f *fakeRepo) GetHolding(_ context.Context, userID, stockID int64) (model.Holding, error) {
	h, ok := f.holdings[holdingKey{userID, stockID}]
	if !ok {
		return model.Holding{}, repository.ErrNotFound
	}
	return h, nil
}

func (f *fakeRepo) UpsertHolding(_ context.Context, h model.Holding) error {
	if old, ok := f.holdings[holdingKey{h.UserID, h.StockID}]; ok {
		h.Notes = old.Notes
	}
	f.holdings[holdingKey{h.UserID, h.StockID}] = h
	return nil
}

func (f *fakeRepo) DeleteHolding(_ context.Context, userID, stockID int64) error {
	delete(f.holdings, holdingKey{userID, stockID})
	return nil
}

func (f *fakeRepo) ListHoldings(_ context.Context, userID int64) ([]model.HoldingView, error) {
	out := make([]model.HoldingView, 0)
	for _, s := range f.stocks {
		if h, ok := f.holdings[holdingKey{userID, s.ID}]; ok {
			out = append(out, model.HoldingView{Holding: h, Stock: s})
		}
	}
	slices.SortFunc(out, func(a, b model.HoldingView) int { return strings.Compare(a.Stock.Symbol, b.Stock.Symbol) })
	return out, nil
}

func (f *fakeRepo) UpdateHoldingNotes(_ context.Context, userID, stockID int64, notes string) error {
	h, ok := f.holdings[holdingKey{userID, stockID}]
	if !ok {
		return repository.ErrNotFound
	}
	h.Notes = notes
	f.holdings[holdingKey{userID, stockID}] = h
	return nil
}

func (f *fakeRepo) CreateTransaction(_ context.Context, t model.Transaction) (model.Transaction, error) {
	f.nextTxID++
	t.ID = f.nextTxID
	t.CreatedAt = now.Add(time.Duration(t.ID) * time.Second)
	f.txs = append(f.txs, t)
	return t, nil
}

func (f *fakeRepo) ListTransactions(_ context.Context, userID int64, _ model.TransactionFilter) ([]model.Transaction, error) {
	out := make([]model.Transaction, 0)
	for _, t := range f.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) position(userID, stockID int64, keep func(model.Transaction) bool) []model.Transaction {
	out := make([]model.Transaction, 0)
	for _, t := range f.txs {
		if t.UserID == userID && t.StockID == stockID && keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func isTrade(t model.Transaction) bool {
	return t.Type == model.TransactionBuy || t.Type == model.TransactionSell
}

func (f *fakeRepo) GetPositionHistory(_ context.Context, userID, stockID int64) ([]model.Transaction, error) {
	return f.position(userID, stockID, func(model.Transaction) bool { return true }), nil
}

func (f *fakeRepo) GetUnprocessedTrades(_ context.Context, userID, stockID int64) ([]model.Transaction, error) {
	return f.position(userID, stockID, func(t model.Transaction) bool { return isTrade(t) && !t.Processed }), nil
}

func (f *fakeRepo) HasProcessedTrades(_ context.Context, userID, stockID int64) (bool, error) {
	return len(f.position(userID, stockID, func(t model.Transaction) bool { return isTrade(t) && t.Processed })) > 0, nil
}

func (f *fakeRepo) CountTrades(_ context.Context, userID, stockID int64) (int, error) {
	return len(f.position(userID, stockID, isTrade)), nil
}

func (f *fakeRepo) MarkProcessed(_ context.Context, userID, stockID int64) error {
	for i, t := range f.txs {
		if t.UserID == userID && t.StockID == stockID && isTrade(t) {
			f.txs[i].Processed = true
		}
	}
	return nil
}

func (f *fakeRepo) ListPositions(_ context.Context, userID *int64) ([]model.Position, error) {
	seen := map[model.Position]bool{}
	out := make([]model.Position, 0)
	for _, t := range f.txs {
		p := model.Position{UserID: t.UserID, StockID: t.StockID}
		if (userID == nil || *userID == t.UserID) && isTrade(t) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) SumRealizedGains(_ context.Context, userID int64, filter model.RealizedGainsFilter) (model.RealizedGains, error) {
	res := model.RealizedGains{Total: decimal.Zero}
	for _, t := range f.txs {
		if t.UserID != userID || t.Type != model.TransactionSell {
			continue
		}
		if filter.StockID != nil && t.StockID != *filter.StockID {
			continue
		}
		if filter.Year != nil && t.Date.Year() != *filter.Year {
			continue
		}
		if !t.RealizedGainLoss.Valid {
			res.Indeterminate++
			continue
		}
		res.Sales++
		res.Total = res.Total.Add(t.RealizedGainLoss.Decimal)
	}
	return res, nil
}

func (f *fakeRepo) LatestDividends(_ context.Context, stockIDs []int64) (map[int64]model.Dividend, error) {
	out := map[int64]model.Dividend{}
	for _, id := range stockIDs {
		if d, ok := f.dividends[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (f *fakeRepo) ListUserIDsWithHoldings(context.Context) ([]int64, error) {
	ids := make([]int64, 0)
	for k := range f.holdings {
		if !slices.Contains(ids, k.user) {
			ids = append(ids, k.user)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeRepo) UpsertSnapshot(_ context.Context, s model.PortfolioSnapshot) error {
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeRepo) ListSnapshots(_ context.Context, userID int64, from, to time.Time) ([]model.PortfolioSnapshot, error) {
	out := make([]model.PortfolioSnapshot, 0)
	for _, s := range f.snapshots {
		if s.UserID == userID && !s.SnapshotDate.Before(from) && !s.SnapshotDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakePrices map[int64]model.PriceSnapshot

func (f fakePrices) LatestPrices(_ context.Context, stockIDs []int64) (map[int64]model.PriceSnapshot, error) {
	out := map[int64]model.PriceSnapshot{}
	for _, id := range stockIDs {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeGenerator struct {
	got model.PortfolioReport
}

func (g *fakeGenerator) Generate(_ context.Context, report model.PortfolioReport) ([]byte, string, error) {
	g.got = report
	return []byte("xlsx"), ".xlsx", nil
}

type fakeStorage struct {
	filename string
	body     string
}

func (s *fakeStorage) UploadFile(_ context.Context, reader io.Reader, filename string) (string, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.filename, s.body = filename, string(b)
	return "https://drive.google.com/file/d/abc/view", nil
}

func newService(repo *fakeRepo, prices fakePrices) *PortfolioService {
	svc := New(repo, prices, &fakeGenerator{}, nil, "CAD")
	svc.now = func() time.Time { return now }
	return svc
}

func TestReconcile_FullFromLedger(t *testing.T) {
	repo := newFakeRepo()
	repo.add(1, 1, model.TransactionBuy, "2024-01-01", "100", "10.00", "5")
	repo.add(1, 1, model.TransactionBuy, "2024-02-01", "50", "12.00", "5")
	repo.add(1, 1, model.TransactionSell, "2024-03-01", "120", "15", "0")
	repo.add(1, 1, model.TransactionDividend, "2024-03-15", "0", "0", "0")
	svc := newService(repo, nil)

	h, err := svc.Reconcile(context.Background(), 1, 1, model.ReconcileFull)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, int64(30), h.SharesOwned)
	assert.Equal(t, "1610", h.TotalCost.String())
	// 1610 / 30 = 53.666...
	assert.Equal(t, "53.67", h.AverageCost.StringFixed(2))

	for _, tx := range repo.txs {
		assert.Equal(t, tx.Type != model.TransactionDividend, tx.Processed, "tx %d", tx.ID)
	}
}

func TestReconcile_IncrementalMatchesFull(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	steps := [][]string{
		{"BUY", "2024-01-01", "100", "10.00", "5"},
		{"BUY", "2024-02-01", "50", "12.00", "5"},
		{"SELL", "2024-03-01", "20", "15", "1"},
		{"BUY", "2024-04-01", "7.5", "20.1234", "0"},
	}

	var incremental *model.Holding
	for _, s := range steps {
		repo.add(1, 1, model.TransactionType(s[0]), s[1], s[2], s[3], s[4])
		var err error
		incremental, err = svc.Reconcile(ctx, 1, 1, model.ReconcileIncremental)
		require.NoError(t, err)
	}
	require.NotNil(t, incremental)

	full, err := svc.Reconcile(ctx, 1, 1, model.ReconcileFull)
	require.NoError(t, err)
	require.NotNil(t, full)

	assert.Equal(t, full.SharesOwned, incremental.SharesOwned)
	assert.True(t, full.TotalShares.Equal(incremental.TotalShares))
	assert.True(t, full.TotalCost.Equal(incremental.TotalCost))
	assert.True(t, full.AverageCost.Equal(incremental.AverageCost))

	again, err := svc.Reconcile(ctx, 1, 1, model.ReconcileIncremental)
	require.NoError(t, err)
	assert.True(t, again.TotalCost.Equal(full.TotalCost), "reconcile must be idempotent")
}

func TestReconcile_IncrementalFallsBackWhenHoldingMissing(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	repo.add(1, 1, model.TransactionBuy, "2024-01-01", "10", "10", "0")
	_, err := svc.Reconcile(ctx, 1, 1, model.ReconcileIncremental)
	require.NoError(t, err)

	delete(repo.holdings, holdingKey{1, 1})
	repo.add(1, 1, model.TransactionBuy, "2024-02-01", "10", "20", "0")

	h, err := svc.Reconcile(ctx, 1, 1, model.ReconcileIncremental)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(20), h.SharesOwned)
	assert.Equal(t, "15.00", h.AverageCost.StringFixed(2))
}

func TestReconcile_ClosedPositionRemovesHolding(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	repo.add(1, 1, model.TransactionBuy, "2024-01-01", "10", "10", "0")
	_, err := svc.Reconcile(ctx, 1, 1, model.ReconcileIncremental)
	require.NoError(t, err)
	require.Contains(t, repo.holdings, holdingKey{1, 1})

	repo.add(1, 1, model.TransactionSell, "2024-02-01", "10", "12", "0")
	h, err := svc.Reconcile(ctx, 1, 1, model.ReconcileIncremental)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.NotContains(t, repo.holdings, holdingKey{1, 1})
}

func TestReconcileAll_FiltersByStock(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, nil)

	repo.add(1, 1, model.TransactionBuy, "2024-01-01", "10", "10", "0")
	repo.add(1, 2, model.TransactionBuy, "2024-01-01", "5", "40", "0")
	repo.add(2, 1, model.TransactionBuy, "2024-01-01", "3", "11", "0")

	stockID := int64(1)
	n, err := svc.ReconcileAll(context.Background(), model.RecalcFilter{StockID: &stockID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, repo.holdings, 2)
	assert.NotContains(t, repo.holdings, holdingKey{1, 2})
}

func TestHoldings_UnpricedHoldingIsNotValued(t *testing.T) {
	repo := newFakeRepo()
	repo.holdings[holdingKey{1, 1}] = model.Holding{UserID: 1, StockID: 1, SharesOwned: 10, AverageCost: decimal.RequireFromString("50")}
	repo.holdings[holdingKey{1, 2}] = model.Holding{UserID: 1, StockID: 2, SharesOwned: 4, AverageCost: decimal.RequireFromString("40")}
	repo.dividends[1] = model.Dividend{StockID: 1, Amount: decimal.RequireFromString("1.02"), Frequency: model.FrequencyQuarterly}

	prices := fakePrices{1: {StockID: 1, LastPrice: decimal.RequireFromString("55"), Currency: "CAD"}}
	svc := newService(repo, prices)

	summary, err := svc.Holdings(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, summary.Holdings, 2)

	enb, td := summary.Holdings[0], summary.Holdings[1]
	assert.Equal(t, "ENB.TO", enb.Stock.Symbol)
	assert.False(t, enb.Unrealized.Available)
	assert.Nil(t, enb.Price)

	assert.True(t, td.Unrealized.Available)
	assert.Equal(t, "50.00", td.Unrealized.Gain.StringFixed(2))
	assert.Equal(t, "10.00", td.Unrealized.GainPercent.StringFixed(2))
	assert.Equal(t, "40.80", td.AnnualDividendIncome.StringFixed(2))

	assert.Equal(t, "660.00", summary.TotalCost.StringFixed(2))
	assert.Equal(t, "550.00", summary.TotalValue.StringFixed(2))
	assert.Equal(t, "50.00", summary.UnrealizedGain.StringFixed(2))
	assert.Equal(t, 1, summary.PricedHoldings)
}

func TestRealizedGains_CountsIndeterminateSales(t *testing.T) {
	repo := newFakeRepo()
	s1 := repo.add(1, 1, model.TransactionSell, "2024-03-01", "10", "15", "0")
	repo.add(1, 1, model.TransactionSell, "2024-04-01", "10", "15", "0")
	s3 := repo.add(1, 2, model.TransactionSell, "2023-04-01", "10", "15", "0")
	repo.txs[s1.ID-1].RealizedGainLoss = decimal.NewNullDecimal(decimal.RequireFromString("553.00"))
	repo.txs[s3.ID-1].RealizedGainLoss = decimal.NewNullDecimal(decimal.RequireFromString("-20.50"))
	svc := newService(repo, nil)

	all, err := svc.RealizedGains(context.Background(), 1, model.RealizedGainsFilter{})
	require.NoError(t, err)
	assert.Equal(t, "532.50", all.Total.StringFixed(2))
	assert.Equal(t, 2, all.Sales)
	assert.Equal(t, 1, all.Indeterminate)

	year := 2024
	td, err := svc.RealizedGainsBySymbol(context.Background(), 1, "td.to", &year)
	require.NoError(t, err)
	assert.Equal(t, "553.00", td.Total.StringFixed(2))
	assert.Equal(t, 1, td.Sales)
	assert.Equal(t, 1, td.Indeterminate)

	none, err := svc.RealizedGainsBySymbol(context.Background(), 1, "NOPE", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Sales)
}

func TestOpeningBalance(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	h, err := svc.OpeningBalance(ctx, 1, "ry.to", model.OpeningBalanceInput{
		Shares:      decimal.NewFromInt(25),
		AverageCost: decimal.RequireFromString("101.50"),
		Date:        "2020-01-02",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), h.SharesOwned)
	assert.Equal(t, "101.50", h.AverageCost.StringFixed(2))

	require.Len(t, repo.txs, 1)
	assert.Equal(t, model.TransactionBuy, repo.txs[0].Type)
	assert.Equal(t, "opening balance", repo.txs[0].Notes)

	_, err = svc.OpeningBalance(ctx, 1, "RY.TO", model.OpeningBalanceInput{
		Shares:      decimal.NewFromInt(1),
		AverageCost: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, service.ErrConflict)
}

func TestUpdateNotes(t *testing.T) {
	repo := newFakeRepo()
	repo.holdings[holdingKey{1, 1}] = model.Holding{UserID: 1, StockID: 1, SharesOwned: 1}
	svc := newService(repo, nil)

	require.NoError(t, svc.UpdateNotes(context.Background(), 1, "TD.TO", "long term"))
	assert.Equal(t, "long term", repo.holdings[holdingKey{1, 1}].Notes)

	require.ErrorIs(t, svc.UpdateNotes(context.Background(), 1, "ENB.TO", "x"), service.ErrNotFound)
	require.ErrorIs(t, svc.UpdateNotes(context.Background(), 1, "NOPE", "x"), service.ErrNotFound)
}

func TestTakeSnapshots(t *testing.T) {
	repo := newFakeRepo()
	repo.holdings[holdingKey{1, 1}] = model.Holding{UserID: 1, StockID: 1, SharesOwned: 10, AverageCost: decimal.NewFromInt(50)}
	repo.holdings[holdingKey{2, 2}] = model.Holding{UserID: 2, StockID: 2, SharesOwned: 2, AverageCost: decimal.NewFromInt(40)}
	svc := newService(repo, fakePrices{1: {StockID: 1, LastPrice: decimal.NewFromInt(60)}})

	progress := &model.JobProgress{}
	require.NoError(t, svc.TakeSnapshots(context.Background(), progress))

	assert.Equal(t, 2, progress.Succeeded)
	require.Len(t, repo.snapshots, 2)

	first := repo.snapshots[0]
	assert.Equal(t, int64(1), first.UserID)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), first.SnapshotDate)
	assert.Equal(t, "600.00", first.TotalValue.StringFixed(2))
	assert.Equal(t, "100.00", first.UnrealizedGain.StringFixed(2))
	assert.Equal(t, 1, first.PricedHoldings)

	second := repo.snapshots[1]
	assert.Equal(t, 0, second.PricedHoldings)
	assert.Equal(t, 1, second.TotalHoldings)
	assert.True(t, second.TotalValue.IsZero())
}

func TestSharePortfolioReport(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, fakePrices{})

	_, err := svc.SharePortfolioReport(context.Background(), 1)
	require.ErrorIs(t, err, service.ErrNotConfigured)

	storage := &fakeStorage{}
	svc.cloudStorage = storage

	link, err := svc.SharePortfolioReport(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "https://drive.google.com/file/d/abc/view", link)
	assert.Equal(t, "portfolio_1_20241231_180000.xlsx", storage.filename)
	assert.Equal(t, "xlsx", storage.body)
}

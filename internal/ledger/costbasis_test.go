package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tx(id int64, typ model.TransactionType, date, shares, price, fees string) model.Transaction {
	return model.Transaction{
		ID:              id,
		Type:            typ,
		Date:            day(date),
		Shares:          dec(shares),
		Price:           dec(price),
		Fees:            dec(fees),
		CostBasisMethod: model.FIFO,
		CreatedAt:       created.Add(time.Duration(id) * time.Second),
	}
}

func sell(id int64, date, shares string, method model.CostBasisMethod) model.Transaction {
	t := tx(id, model.TransactionSell, date, shares, "15", "0")
	t.CostBasisMethod = method
	return t
}

// two lots: 100 @ 10.00 + 5 and 50 @ 12.00 + 5
func exampleHistory() []model.Transaction {
	return []model.Transaction{
		tx(1, model.TransactionBuy, "2024-01-01", "100", "10.00", "5"),
		tx(2, model.TransactionBuy, "2024-02-01", "50", "12.00", "5"),
	}
}

func lotsOf(rows []model.Transaction) []Lot {
	lots := make([]Lot, 0, len(rows))
	for _, r := range rows {
		lots = append(lots, NewLot(r))
	}
	return lots
}

func TestNewLot_UnitCostIncludesFees(t *testing.T) {
	lots := lotsOf(exampleHistory())

	assert.Equal(t, "10.05", lots[0].UnitCost.String())
	assert.Equal(t, "12.1", lots[1].UnitCost.String())
	assert.Equal(t, "1005", lots[0].Cost().String())
	assert.Equal(t, "605", lots[1].Cost().String())
}

func TestCostBasis_ExampleScenario(t *testing.T) {
	lots := lotsOf(exampleHistory())

	tests := []struct {
		method   model.CostBasisMethod
		basis    string
		consumed []string
	}{
		{model.FIFO, "1247.00", []string{"100", "20"}},
		{model.LIFO, "1308.50", []string{"50", "70"}},
		{model.Average, "1288.00", nil},
	}

	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			res, err := CostBasis(lots, dec("120"), tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.basis, res.CostBasis.StringFixed(2))

			shares := make([]string, 0, len(res.Consumed))
			for _, c := range res.Consumed {
				shares = append(shares, c.Shares.String())
			}
			if tt.consumed == nil {
				assert.Empty(t, res.Consumed)
			} else {
				assert.Equal(t, tt.consumed, shares)
			}
		})
	}
}

func TestCostBasis_FIFOConsumesOldestFirst(t *testing.T) {
	res, err := CostBasis(lotsOf(exampleHistory()), dec("120"), model.FIFO)
	require.NoError(t, err)
	require.Len(t, res.Consumed, 2)

	assert.Equal(t, int64(1), res.Consumed[0].Lot.TransactionID)
	assert.Equal(t, "1005", res.Consumed[0].Cost.String())
	assert.Equal(t, int64(2), res.Consumed[1].Lot.TransactionID)
	assert.Equal(t, "242", res.Consumed[1].Cost.String())
}

func TestCostBasis_OrderSensitivity(t *testing.T) {
	lots := lotsOf([]model.Transaction{
		tx(1, model.TransactionBuy, "2024-01-01", "10", "10", "0"),
		tx(2, model.TransactionBuy, "2024-01-02", "10", "20", "0"),
	})

	fifo, err := CostBasis(lots, dec("10"), model.FIFO)
	require.NoError(t, err)
	lifo, err := CostBasis(lots, dec("10"), model.LIFO)
	require.NoError(t, err)

	assert.Equal(t, "100.00", fifo.CostBasis.StringFixed(2))
	assert.Equal(t, "200.00", lifo.CostBasis.StringFixed(2))
}

func TestCostBasis_InputOrderDoesNotMatter(t *testing.T) {
	lots := lotsOf(exampleHistory())
	reversed := []Lot{lots[1], lots[0]}

	res, err := CostBasis(reversed, dec("120"), model.FIFO)
	require.NoError(t, err)
	assert.Equal(t, "1247.00", res.CostBasis.StringFixed(2))
}

func TestCostBasis_SameDayTieBrokenByCreationOrder(t *testing.T) {
	first := tx(7, model.TransactionBuy, "2024-01-01", "10", "10", "0")
	second := tx(3, model.TransactionBuy, "2024-01-01", "10", "20", "0")
	first.CreatedAt = created
	second.CreatedAt = created.Add(time.Minute)
	lots := lotsOf([]model.Transaction{second, first})

	for i := 0; i < 3; i++ {
		fifo, err := CostBasis(lots, dec("10"), model.FIFO)
		require.NoError(t, err)
		assert.Equal(t, "100.00", fifo.CostBasis.StringFixed(2))

		lifo, err := CostBasis(lots, dec("10"), model.LIFO)
		require.NoError(t, err)
		assert.Equal(t, "200.00", lifo.CostBasis.StringFixed(2))
	}
}

func TestCostBasis_MethodsAgreeOnSingleUniformLot(t *testing.T) {
	lots := lotsOf([]model.Transaction{tx(1, model.TransactionBuy, "2024-01-01", "10", "15", "3")})

	for _, m := range []model.CostBasisMethod{model.FIFO, model.LIFO, model.Average} {
		res, err := CostBasis(lots, dec("10"), m)
		require.NoError(t, err, m)
		assert.Equal(t, "153.00", res.CostBasis.StringFixed(2), m)
	}
}

func TestCostBasis_InsufficientHistory(t *testing.T) {
	lots := lotsOf(exampleHistory())

	for _, m := range []model.CostBasisMethod{model.FIFO, model.LIFO, model.Average} {
		res, err := CostBasis(lots, dec("200"), m)
		require.Error(t, err, m)
		assert.True(t, errors.Is(err, ErrInsufficientHistory), m)
		assert.True(t, IsBusinessError(err))
		assert.True(t, res.CostBasis.IsZero())
		assert.Empty(t, res.Consumed)

		var ih *InsufficientHistoryError
		require.True(t, errors.As(err, &ih))
		assert.Equal(t, "50", ih.Shortfall.String())
		assert.Equal(t, "150", ih.Available.String())
	}
}

func TestCostBasis_NoLots(t *testing.T) {
	_, err := CostBasis(nil, dec("1"), model.Average)
	assert.ErrorIs(t, err, ErrNoLotsFound)

	_, err = CostBasis(nil, dec("1"), model.FIFO)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCostBasis_Misuse(t *testing.T) {
	lots := lotsOf(exampleHistory())

	_, err := CostBasis(lots, dec("1"), model.CostBasisMethod("HIFO"))
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.False(t, IsBusinessError(err))

	_, err = CostBasis(lots, decimal.Zero, model.FIFO)
	assert.ErrorIs(t, err, ErrNonPositiveShares)
}

func TestCostBasis_DoesNotMutateLots(t *testing.T) {
	lots := lotsOf(exampleHistory())

	_, err := CostBasis(lots, dec("120"), model.FIFO)
	require.NoError(t, err)

	assert.Equal(t, "100", lots[0].Shares.String())
	assert.Equal(t, "50", lots[1].Shares.String())
}

func TestOpenLots_IgnoresSaleItselfAndProcessedFlag(t *testing.T) {
	history := exampleHistory()
	history[0].Processed = true
	sale := sell(3, "2024-03-01", "120", model.FIFO)
	history = append(history, sale)

	res, err := CostBasis(OpenLots(history, sale), sale.Shares, sale.CostBasisMethod)
	require.NoError(t, err)
	assert.Equal(t, "1247.00", res.CostBasis.StringFixed(2))
}

func TestOpenLots_EarlierSalesConsumeLots(t *testing.T) {
	first := sell(3, "2024-03-01", "120", model.FIFO)
	second := sell(4, "2024-04-01", "30", model.LIFO)
	history := append(exampleHistory(), first, second)

	open := OpenLots(history, second)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2), open[0].TransactionID)
	assert.Equal(t, "30", open[0].Shares.String())

	res, err := CostBasis(open, second.Shares, second.CostBasisMethod)
	require.NoError(t, err)
	assert.Equal(t, "363.00", res.CostBasis.StringFixed(2))

	_, err = CostBasis(open, dec("31"), model.FIFO)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestOpenLots_LaterSalesDoNotAffectEarlierOnes(t *testing.T) {
	first := sell(3, "2024-03-01", "120", model.FIFO)
	later := sell(4, "2024-04-01", "30", model.FIFO)
	history := append(exampleHistory(), first, later)

	res, err := CostBasis(OpenLots(history, first), first.Shares, first.CostBasisMethod)
	require.NoError(t, err)
	assert.Equal(t, "1247.00", res.CostBasis.StringFixed(2))
}

func TestOpenLots_ExcludesBuysAfterSaleDate(t *testing.T) {
	sale := sell(3, "2024-01-15", "120", model.FIFO)
	history := append(exampleHistory(), sale)

	_, err := CostBasis(OpenLots(history, sale), sale.Shares, sale.CostBasisMethod)

	var ih *InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
	assert.Equal(t, "20", ih.Shortfall.String())
}

func TestOpenLots_SameDayBuyIsAvailable(t *testing.T) {
	sale := sell(1, "2024-01-01", "10", model.FIFO)
	lateBuy := tx(2, model.TransactionBuy, "2024-01-01", "10", "10", "0")

	res, err := CostBasis(OpenLots([]model.Transaction{sale, lateBuy}, sale), sale.Shares, sale.CostBasisMethod)
	require.NoError(t, err)
	assert.Equal(t, "100.00", res.CostBasis.StringFixed(2))
}

func TestOpenLots_AverageSaleReducesLotsProRata(t *testing.T) {
	history := []model.Transaction{
		tx(1, model.TransactionBuy, "2024-01-01", "100", "10", "0"),
		tx(2, model.TransactionBuy, "2024-01-02", "100", "20", "0"),
		sell(3, "2024-02-01", "100", model.Average),
	}
	next := sell(4, "2024-03-01", "50", model.FIFO)

	open := OpenLots(append(history, next), next)
	require.Len(t, open, 2)
	assert.Equal(t, "50", open[0].Shares.String())
	assert.Equal(t, "50", open[1].Shares.String())

	res, err := CostBasis(open, next.Shares, next.CostBasisMethod)
	require.NoError(t, err)
	assert.Equal(t, "500.00", res.CostBasis.StringFixed(2))
}

func TestOpenLots_AverageSaleKeepsExactShareTotal(t *testing.T) {
	history := []model.Transaction{
		tx(1, model.TransactionBuy, "2024-01-01", "1", "10", "0"),
		tx(2, model.TransactionBuy, "2024-01-02", "1", "10", "0"),
		tx(3, model.TransactionBuy, "2024-01-03", "1", "10", "0"),
		sell(4, "2024-02-01", "2", model.Average),
	}

	for _, method := range []model.CostBasisMethod{model.FIFO, model.LIFO, model.Average} {
		t.Run(method.String(), func(t *testing.T) {
			last := sell(5, "2024-03-01", "1", method)

			open := OpenLots(append(history, last), last)
			shares, _ := sumLots(open)
			assert.Equal(t, "1", shares.String())

			res, err := CostBasis(open, last.Shares, last.CostBasisMethod)
			require.NoError(t, err)
			assert.Equal(t, "10.00", res.CostBasis.StringFixed(2))
		})
	}

	pos := Fold(Position{}, append(history, sell(5, "2024-03-01", "1", model.FIFO)))
	_, stillOpen := pos.Holding(1, 1)
	assert.False(t, stillOpen)
}

func TestCostBasis_Conservation(t *testing.T) {
	sale := sell(3, "2024-03-01", "120", model.FIFO)
	history := append(exampleHistory(), sale)

	res, err := CostBasis(OpenLots(history, sale), sale.Shares, sale.CostBasisMethod)
	require.NoError(t, err)

	later := sell(0, "2024-12-31", "1", model.FIFO)
	remaining := decimal.Zero
	for _, lot := range OpenLots(history, later) {
		remaining = remaining.Add(lot.Cost())
	}

	original := decimal.Zero
	for _, lot := range lotsOf(exampleHistory()) {
		original = original.Add(lot.Cost())
	}

	assert.Equal(t, "363", remaining.String())
	assert.True(t, original.Equal(res.CostBasis.Add(remaining)), "%s + %s != %s", res.CostBasis, remaining, original)
}

package ledger

import (
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRealizedGain(t *testing.T) {
	sale := tx(3, model.TransactionSell, "2024-03-01", "120", "15", "10")

	assert.Equal(t, "543.00", RealizedGain(sale, dec("1247")).StringFixed(2))
	assert.Equal(t, "-1.50", RealizedGain(tx(4, model.TransactionSell, "2024-03-01", "1", "10", "1.5"), dec("10")).StringFixed(2))
}

func TestUnrealized(t *testing.T) {
	h := model.Holding{SharesOwned: 10, AverageCost: dec("50")}

	t.Run("price available", func(t *testing.T) {
		price := dec("60")
		u := Unrealized(h, &price)
		assert.True(t, u.Available)
		assert.Equal(t, "600.00", u.MarketValue.StringFixed(2))
		assert.Equal(t, "100.00", u.Gain.StringFixed(2))
		assert.Equal(t, "20.00", u.GainPercent.StringFixed(2))
	})

	t.Run("loss", func(t *testing.T) {
		price := dec("45")
		u := Unrealized(h, &price)
		assert.Equal(t, "-50.00", u.Gain.StringFixed(2))
		assert.Equal(t, "-10.00", u.GainPercent.StringFixed(2))
	})

	t.Run("no price is not zero gain", func(t *testing.T) {
		u := Unrealized(h, nil)
		assert.False(t, u.Available)
	})

	t.Run("zero cost basis", func(t *testing.T) {
		price := dec("5")
		u := Unrealized(model.Holding{SharesOwned: 3, AverageCost: decimal.Zero}, &price)
		assert.True(t, u.Available)
		assert.Equal(t, "15.00", u.Gain.StringFixed(2))
		assert.True(t, u.GainPercent.IsZero())
	})
}

func TestAnnualDividendIncome(t *testing.T) {
	tests := []struct {
		freq model.DividendFrequency
		want string
	}{
		{model.FrequencyMonthly, "300.00"},
		{model.FrequencyQuarterly, "100.00"},
		{model.FrequencySemiAnnual, "50.00"},
		{model.FrequencyAnnual, "25.00"},
		{model.FrequencyUnknown, "0.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AnnualDividendIncome(dec("0.25"), 100, tt.freq).StringFixed(2), tt.freq)
	}
}

func TestInferFrequency(t *testing.T) {
	asOf := day("2024-12-31")
	every := func(n, months int) []time.Time {
		dates := make([]time.Time, 0, n)
		for i := 0; i < n; i++ {
			dates = append(dates, asOf.AddDate(0, -i*months, -1))
		}
		return dates
	}

	assert.Equal(t, model.FrequencyMonthly, InferFrequency(every(12, 1), asOf))
	assert.Equal(t, model.FrequencyQuarterly, InferFrequency(every(4, 3), asOf))
	assert.Equal(t, model.FrequencySemiAnnual, InferFrequency(every(2, 6), asOf))
	assert.Equal(t, model.FrequencyAnnual, InferFrequency(every(1, 12), asOf))
	assert.Equal(t, model.FrequencyUnknown, InferFrequency(nil, asOf))
	assert.Equal(t, model.FrequencyAnnual, InferFrequency([]time.Time{day("2024-06-01"), day("2022-06-01")}, asOf))
}

package ledger

import (
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RealizedGain is the sale proceeds net of fees minus the cost basis.
func RealizedGain(sale model.Transaction, basis decimal.Decimal) decimal.Decimal {
	return roundMoney(sale.Shares.Mul(sale.Price).Sub(sale.Fees).Sub(basis))
}

// Unrealized prices a holding. A nil price means no market data and yields
// an unavailable result rather than a zero gain.
func Unrealized(h model.Holding, price *decimal.Decimal) model.UnrealizedGain {
	if price == nil {
		return model.UnrealizedGain{}
	}

	shares := decimal.NewFromInt(h.SharesOwned)
	value := shares.Mul(*price)
	cost := h.CostBasis()
	gain := value.Sub(cost)

	percent := decimal.Zero
	if !cost.IsZero() {
		percent = gain.Div(cost).Mul(hundred).RoundBank(2)
	}

	return model.UnrealizedGain{
		Available:   true,
		MarketValue: roundMoney(value),
		Gain:        roundMoney(gain),
		GainPercent: percent,
	}
}

// AnnualDividendIncome projects a year of payments at the current amount.
func AnnualDividendIncome(amount decimal.Decimal, shares int64, frequency model.DividendFrequency) decimal.Decimal {
	return roundMoney(amount.Mul(decimal.NewFromInt(shares)).Mul(decimal.NewFromInt(frequency.PaymentsPerYear())))
}

// InferFrequency guesses the payment frequency from the ex-dividend dates
// that fall within the year before asOf.
func InferFrequency(exDates []time.Time, asOf time.Time) model.DividendFrequency {
	from := asOf.AddDate(-1, 0, 0)
	n := 0
	for _, d := range exDates {
		if d.After(from) && !d.After(asOf) {
			n++
		}
	}

	switch {
	case n >= 10:
		return model.FrequencyMonthly
	case n >= 3 && n <= 5:
		return model.FrequencyQuarterly
	case n == 2:
		return model.FrequencySemiAnnual
	case n == 1:
		return model.FrequencyAnnual
	default:
		return model.FrequencyUnknown
	}
}

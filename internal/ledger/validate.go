package ledger

import (
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
)

const (
	SharesPlaces int32 = 6
	PricePlaces  int32 = 4
	FeesPlaces   int32 = 2
)

// ParseInput turns raw user input into a transaction and validates it.
// today bounds the transaction date.
func ParseInput(in model.TransactionInput, today time.Time) (model.Transaction, error) {
	verr := &ValidationError{}
	t := model.Transaction{
		Symbol: strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Shares: in.Shares,
		Price:  in.Price,
		Fees:   in.Fees,
		Notes:  strings.TrimSpace(in.Notes),
	}

	if t.Symbol == "" {
		verr.add("symbol", "is required")
	}

	typ, err := model.ParseTransactionType(in.Type)
	if err != nil {
		verr.add("type", ErrUnknownType.Error())
	}
	t.Type = typ

	method, err := model.ParseCostBasisMethod(in.CostBasisMethod)
	if err != nil {
		verr.add("cost_basis_method", ErrUnknownMethod.Error())
	}
	t.CostBasisMethod = method

	if strings.TrimSpace(in.Date) == "" {
		verr.add("date", "is required")
	} else if d, err := time.Parse(model.DateLayout, strings.TrimSpace(in.Date)); err != nil {
		verr.add("date", "must be formatted as YYYY-MM-DD")
	} else {
		t.Date = d
	}

	if len(verr.Fields) > 0 {
		return t, verr
	}

	return t, ValidateTransaction(t, today)
}

// ValidateTransaction checks amounts, precision and date of a transaction.
func ValidateTransaction(t model.Transaction, today time.Time) error {
	verr := &ValidationError{}

	trades := t.Type == model.TransactionBuy || t.Type == model.TransactionSell

	switch {
	case trades && !t.Shares.IsPositive():
		verr.add("shares", "must be greater than zero")
	case t.Shares.IsNegative():
		verr.add("shares", "must not be negative")
	case exceedsPlaces(t.Shares, SharesPlaces):
		verr.add("shares", "must have at most 6 decimal places")
	}

	switch {
	case trades && !t.Price.IsPositive():
		verr.add("price", "must be greater than zero")
	case t.Price.IsNegative():
		verr.add("price", "must not be negative")
	case exceedsPlaces(t.Price, PricePlaces):
		verr.add("price", "must have at most 4 decimal places")
	}

	switch {
	case t.Fees.IsNegative():
		verr.add("fees", "must not be negative")
	case exceedsPlaces(t.Fees, FeesPlaces):
		verr.add("fees", "must have at most 2 decimal places")
	}

	if t.Date.IsZero() {
		verr.add("date", "is required")
	} else if t.Date.After(truncateDay(today)) {
		verr.add("date", "must not be in the future")
	}

	if _, err := model.ParseCostBasisMethod(t.CostBasisMethod.String()); err != nil {
		verr.add("cost_basis_method", ErrUnknownMethod.Error())
	}

	return verr.orNil()
}

func exceedsPlaces(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

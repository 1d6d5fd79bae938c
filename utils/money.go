package utils

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the currency's own format, e.g. $1,247.00.
func FormatMoney(amount decimal.Decimal, currency string) string {
	// money.New registers unknown codes with default formatting
	cur := money.New(0, currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).RoundBank(0).IntPart()
	return cur.Formatter().Format(minor)
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stock struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	Currency    string    `json:"currency"`
	Sector      string    `json:"sector"`
	IsETF       bool      `json:"is_etf"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type PriceSnapshot struct {
	StockID   int64               `json:"stock_id"`
	PriceDate time.Time           `json:"price_date"`
	LastPrice decimal.Decimal     `json:"last_price"`
	Currency  string              `json:"currency"`
	High52    decimal.NullDecimal `json:"high_52_week"`
	Low52     decimal.NullDecimal `json:"low_52_week"`
}

type DividendFrequency string

const (
	FrequencyMonthly    DividendFrequency = "Monthly"
	FrequencyQuarterly  DividendFrequency = "Quarterly"
	FrequencySemiAnnual DividendFrequency = "Semi-Annual"
	FrequencyAnnual     DividendFrequency = "Annual"
	FrequencyUnknown    DividendFrequency = "Unknown"
)

// PaymentsPerYear returns 0 for an unknown frequency.
func (f DividendFrequency) PaymentsPerYear() int64 {
	switch f {
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencySemiAnnual:
		return 2
	case FrequencyAnnual:
		return 1
	default:
		return 0
	}
}

type Dividend struct {
	StockID        int64             `json:"stock_id"`
	Amount         decimal.Decimal   `json:"amount"`
	ExDividendDate time.Time         `json:"ex_dividend_date"`
	PaymentDate    *time.Time        `json:"payment_date"`
	Frequency      DividendFrequency `json:"frequency"`
}

// DividendAlert is an upcoming ex-dividend date for a stock a user holds.
type DividendAlert struct {
	Stock    Stock
	Dividend Dividend
	Shares   int64
	Payment  decimal.Decimal
}

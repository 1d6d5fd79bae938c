package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stock struct {
	ID          int64     `db:"id"`
	Symbol      string    `db:"symbol"`
	CompanyName string    `db:"company_name"`
	Currency    string    `db:"currency"`
	Sector      string    `db:"sector"`
	IsETF       bool      `db:"is_etf"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

type StockPrice struct {
	StockID   int64               `db:"stock_id"`
	PriceDate time.Time           `db:"price_date"`
	LastPrice decimal.Decimal     `db:"last_price"`
	Currency  string              `db:"currency"`
	High52    decimal.NullDecimal `db:"high_52_week"`
	Low52     decimal.NullDecimal `db:"low_52_week"`
}

type Dividend struct {
	StockID        int64           `db:"stock_id"`
	Amount         decimal.Decimal `db:"amount"`
	ExDividendDate time.Time       `db:"ex_dividend_date"`
	PaymentDate    *time.Time      `db:"payment_date"`
	Frequency      string          `db:"frequency"`
}

type UpcomingDividend struct {
	Stock
	Amount         decimal.Decimal `db:"amount"`
	ExDividendDate time.Time       `db:"ex_dividend_date"`
	PaymentDate    *time.Time      `db:"payment_date"`
	Frequency      string          `db:"frequency"`
	SharesOwned    int64           `db:"shares_owned"`
}

package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	UserID      int64           `db:"user_id"`
	StockID     int64           `db:"stock_id"`
	SharesOwned int64           `db:"shares_owned"`
	AverageCost decimal.Decimal `db:"average_cost"`
	TotalShares decimal.Decimal `db:"total_shares"`
	TotalCost   decimal.Decimal `db:"total_cost"`
	Notes       string          `db:"notes"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

type HoldingWithStock struct {
	Holding
	Symbol      string `db:"symbol"`
	CompanyName string `db:"company_name"`
	Currency    string `db:"currency"`
	Sector      string `db:"sector"`
	IsETF       bool   `db:"is_etf"`
	IsActive    bool   `db:"is_active"`
}

type PortfolioSnapshot struct {
	UserID               int64           `db:"user_id"`
	SnapshotDate         time.Time       `db:"snapshot_date"`
	TotalValue           decimal.Decimal `db:"total_value"`
	TotalCost            decimal.Decimal `db:"total_cost"`
	UnrealizedGain       decimal.Decimal `db:"unrealized_gain"`
	PricedHoldings       int             `db:"priced_holdings"`
	TotalHoldings        int             `db:"total_holdings"`
	AnnualDividendIncome decimal.Decimal `db:"annual_dividend_income"`
}

package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ReconcileMode int

const (
	ReconcileIncremental ReconcileMode = iota
	ReconcileFull
)

func (m ReconcileMode) String() string {
	if m == ReconcileFull {
		return "full"
	}
	return "incremental"
}

// Holding is the current position of one user in one stock.
type Holding struct {
	UserID      int64           `json:"user_id"`
	StockID     int64           `json:"stock_id"`
	SharesOwned int64           `json:"shares_owned"`
	AverageCost decimal.Decimal `json:"average_cost"`
	TotalShares decimal.Decimal `json:"total_shares"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Notes       string          `json:"notes"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CostBasis is the cost of the whole shares owned at the average cost.
func (h Holding) CostBasis() decimal.Decimal {
	return decimal.NewFromInt(h.SharesOwned).Mul(h.AverageCost)
}

type UnrealizedGain struct {
	Available   bool            `json:"available"`
	MarketValue decimal.Decimal `json:"market_value"`
	Gain        decimal.Decimal `json:"gain"`
	GainPercent decimal.Decimal `json:"gain_percent"`
}

// MarshalJSON writes null amounts when no price is available, so a missing
// quote never reads as a zero gain.
func (u UnrealizedGain) MarshalJSON() ([]byte, error) {
	nullable := func(d decimal.Decimal) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: d, Valid: u.Available}
	}
	return json.Marshal(struct {
		Available   bool                `json:"available"`
		MarketValue decimal.NullDecimal `json:"market_value"`
		Gain        decimal.NullDecimal `json:"gain"`
		GainPercent decimal.NullDecimal `json:"gain_percent"`
	}{
		Available:   u.Available,
		MarketValue: nullable(u.MarketValue),
		Gain:        nullable(u.Gain),
		GainPercent: nullable(u.GainPercent),
	})
}

type HoldingView struct {
	Holding
	Stock                Stock           `json:"stock"`
	Price                *PriceSnapshot  `json:"price"`
	Unrealized           UnrealizedGain  `json:"unrealized"`
	AnnualDividendIncome decimal.Decimal `json:"annual_dividend_income"`
}

type PortfolioSummary struct {
	Holdings             []HoldingView   `json:"holdings"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	TotalValue           decimal.Decimal `json:"total_value"`
	UnrealizedGain       decimal.Decimal `json:"unrealized_gain"`
	PricedHoldings       int             `json:"priced_holdings"`
	AnnualDividendIncome decimal.Decimal `json:"annual_dividend_income"`
}

type OpeningBalanceInput struct {
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Date        string          `json:"date"`
	Notes       string          `json:"notes"`
}

type RealizedGainsFilter struct {
	StockID *int64
	Year    *int
}

type RealizedGains struct {
	Total         decimal.Decimal `json:"total"`
	Sales         int             `json:"sales"`
	Indeterminate int             `json:"indeterminate"`
}

type PortfolioSnapshot struct {
	UserID               int64           `json:"user_id"`
	SnapshotDate         time.Time       `json:"snapshot_date"`
	TotalValue           decimal.Decimal `json:"total_value"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	UnrealizedGain       decimal.Decimal `json:"unrealized_gain"`
	PricedHoldings       int             `json:"priced_holdings"`
	TotalHoldings        int             `json:"total_holdings"`
	AnnualDividendIncome decimal.Decimal `json:"annual_dividend_income"`
}

type RecalcFilter struct {
	UserID  *int64
	StockID *int64
}

type RecalcStatus int

const (
	RecalcUpdated RecalcStatus = iota
	RecalcNoBasis
	RecalcFailed
)

// RecalcOutcome is reported once per sell transaction during gain recalculation.
type RecalcOutcome struct {
	Transaction Transaction
	Username    string
	Status      RecalcStatus
	Gain        decimal.Decimal
	Reason      string
}

type RecalcSummary struct {
	Found   int
	Updated int
	Errors  int
}

// Position is a (user, stock) pair that has ledger rows.
type Position struct {
	UserID  int64
	StockID int64
}

// SaleRecord is a SELL transaction together with its owner's username.
type SaleRecord struct {
	Transaction
	Username string
}

// PortfolioReport is everything a generated report shows for one user.
type PortfolioReport struct {
	Summary      PortfolioSummary
	Transactions []Transaction
	GeneratedAt  time.Time
}

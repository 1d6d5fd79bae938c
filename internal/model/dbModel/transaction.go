package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID               int64               `db:"id"`
	UserID           int64               `db:"user_id"`
	StockID          int64               `db:"stock_id"`
	Symbol           string              `db:"symbol"`
	Type             string              `db:"transaction_type"`
	Date             time.Time           `db:"transaction_date"`
	Shares           decimal.Decimal     `db:"shares"`
	Price            decimal.Decimal     `db:"price_per_share"`
	Fees             decimal.Decimal     `db:"fees"`
	CostBasisMethod  string              `db:"cost_basis_method"`
	RealizedGainLoss decimal.NullDecimal `db:"realized_gain_loss"`
	Notes            string              `db:"notes"`
	Processed        bool                `db:"processed"`
	CreatedAt        time.Time           `db:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at"`
}

type Sale struct {
	Transaction
	Username string `db:"username"`
}

type Position struct {
	UserID  int64 `db:"user_id"`
	StockID int64 `db:"stock_id"`
}

type RealizedGains struct {
	Total         decimal.Decimal `db:"total"`
	Sales         int             `db:"sales"`
	Indeterminate int             `db:"indeterminate"`
}

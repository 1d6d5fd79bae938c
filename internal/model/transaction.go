package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionBuy      TransactionType = "BUY"
	TransactionSell     TransactionType = "SELL"
	TransactionDividend TransactionType = "DIVIDEND"
	TransactionSplit    TransactionType = "SPLIT"
	TransactionMerger   TransactionType = "MERGER"
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TransactionBuy, TransactionSell, TransactionDividend, TransactionSplit, TransactionMerger:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type: %q", s)
	}
}

// CostBasisMethod defines which lots a sale is deemed to consume.
type CostBasisMethod string

const (
	FIFO    CostBasisMethod = "FIFO"
	LIFO    CostBasisMethod = "LIFO"
	Average CostBasisMethod = "AVERAGE"
)

func (m CostBasisMethod) String() string {
	return string(m)
}

// ParseCostBasisMethod parses a method name, an empty string means FIFO.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch m := CostBasisMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return FIFO, nil
	case FIFO, LIFO, Average:
		return m, nil
	default:
		return "", fmt.Errorf("unknown cost basis method: %q", s)
	}
}

type Transaction struct {
	ID               int64               `json:"id"`
	UserID           int64               `json:"user_id"`
	StockID          int64               `json:"stock_id"`
	Symbol           string              `json:"symbol"`
	Type             TransactionType     `json:"type"`
	Date             time.Time           `json:"date"`
	Shares           decimal.Decimal     `json:"shares"`
	Price            decimal.Decimal     `json:"price"`
	Fees             decimal.Decimal     `json:"fees"`
	CostBasisMethod  CostBasisMethod     `json:"cost_basis_method"`
	RealizedGainLoss decimal.NullDecimal `json:"realized_gain_loss"`
	Notes            string              `json:"notes"`
	Processed        bool                `json:"processed"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Total is shares x price + fees.
func (t Transaction) Total() decimal.Decimal {
	return t.Shares.Mul(t.Price).Add(t.Fees)
}

// Before reports whether t comes before o in ledger order: date, then creation order.
func (t Transaction) Before(o Transaction) bool {
	if !t.Date.Equal(o.Date) {
		return t.Date.Before(o.Date)
	}
	if !t.CreatedAt.Equal(o.CreatedAt) {
		return t.CreatedAt.Before(o.CreatedAt)
	}
	return t.ID < o.ID
}

type TransactionInput struct {
	Symbol          string          `json:"symbol"`
	Type            string          `json:"type"`
	Date            string          `json:"date"`
	Shares          decimal.Decimal `json:"shares"`
	Price           decimal.Decimal `json:"price"`
	Fees            decimal.Decimal `json:"fees"`
	CostBasisMethod string          `json:"cost_basis_method"`
	Notes           string          `json:"notes"`
}

type TransactionFilter struct {
	StockID *int64
	Type    *TransactionType
	Year    *int
}

// TransactionResult is a persisted transaction plus the reason its gain
// could not be computed, if any.
type TransactionResult struct {
	Transaction Transaction `json:"transaction"`
	Warning     string      `json:"warning,omitempty"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Errors   []ImportError `json:"errors"`
}

type ImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

const DateLayout = "2006-01-02"

// TransactionQuery filters a user's transaction list by symbol, type and year.
type TransactionQuery struct {
	Symbol string
	Type   *TransactionType
	Year   *int
}

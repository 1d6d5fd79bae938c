package ledger

import (
	"slices"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
)

// Lot is a block of shares opened by a single BUY.
type Lot struct {
	TransactionID int64
	Date          time.Time
	CreatedAt     time.Time
	Shares        decimal.Decimal
	UnitCost      decimal.Decimal
}

// NewLot opens a lot from a BUY. Unit cost is (price x shares + fees) / shares.
func NewLot(t model.Transaction) Lot {
	lot := Lot{
		TransactionID: t.ID,
		Date:          t.Date,
		CreatedAt:     t.CreatedAt,
		Shares:        t.Shares,
	}
	if !t.Shares.IsZero() {
		lot.UnitCost = t.Total().Div(t.Shares)
	}
	return lot
}

func (l Lot) Cost() decimal.Decimal {
	return l.Shares.Mul(l.UnitCost)
}

func (l Lot) before(o Lot) bool {
	if !l.Date.Equal(o.Date) {
		return l.Date.Before(o.Date)
	}
	if !l.CreatedAt.Equal(o.CreatedAt) {
		return l.CreatedAt.Before(o.CreatedAt)
	}
	return l.TransactionID < o.TransactionID
}

type ConsumedLot struct {
	Lot    Lot             `json:"lot"`
	Shares decimal.Decimal `json:"shares"`
	Cost   decimal.Decimal `json:"cost"`
}

type Result struct {
	CostBasis decimal.Decimal
	Consumed  []ConsumedLot
}

// CostBasis prices shares sold against the given lots without changing them.
// The error is either a business outcome (ErrInsufficientHistory,
// ErrNoLotsFound) or a misuse (ErrUnknownMethod, ErrNonPositiveShares);
// on any error the result is empty.
func CostBasis(lots []Lot, shares decimal.Decimal, method model.CostBasisMethod) (Result, error) {
	if !shares.IsPositive() {
		return Result{}, ErrNonPositiveShares
	}

	switch method {
	case model.FIFO, model.LIFO:
		_, consumed, short := take(sortLots(lots), shares, method)
		if short.IsPositive() {
			return Result{}, insufficient(lots, shares, short)
		}
		total := decimal.Zero
		for _, c := range consumed {
			total = total.Add(c.Cost)
		}
		return Result{CostBasis: roundMoney(total), Consumed: consumed}, nil
	case model.Average:
		totalShares, totalCost := sumLots(lots)
		if !totalShares.IsPositive() {
			return Result{}, ErrNoLotsFound
		}
		if shares.GreaterThan(totalShares) {
			return Result{}, insufficient(lots, shares, shares.Sub(totalShares))
		}
		perShare := totalCost.Div(totalShares)
		return Result{CostBasis: roundMoney(shares.Mul(perShare)), Consumed: []ConsumedLot{}}, nil
	default:
		return Result{}, ErrUnknownMethod
	}
}

// OpenLots replays the (user, stock) history and returns the lots still open
// when sale happens: BUYs dated on or before the sale, reduced by every SELL
// that precedes it in ledger order, each priced with its own method.
func OpenLots(history []model.Transaction, sale model.Transaction) []Lot {
	rows := slices.Clone(history)
	slices.SortStableFunc(rows, replayOrder)

	var open []Lot
	for _, t := range rows {
		if sale.ID != 0 && t.ID == sale.ID {
			continue
		}
		switch t.Type {
		case model.TransactionBuy:
			if !t.Date.After(sale.Date) && t.Shares.IsPositive() {
				open = append(open, NewLot(t))
			}
		case model.TransactionSell:
			if t.Before(sale) {
				open, _, _ = take(open, t.Shares, t.CostBasisMethod)
			}
		}
	}

	return open
}

// replayOrder sorts by date with buys ahead of other rows of the same day.
func replayOrder(a, b model.Transaction) int {
	if !a.Date.Equal(b.Date) {
		return a.Date.Compare(b.Date)
	}
	aBuy, bBuy := a.Type == model.TransactionBuy, b.Type == model.TransactionBuy
	if aBuy != bBuy {
		if aBuy {
			return -1
		}
		return 1
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// take consumes shares from lots ordered oldest first and returns what is
// left open, what was consumed and the unmatched remainder.
func take(lots []Lot, shares decimal.Decimal, method model.CostBasisMethod) (open []Lot, consumed []ConsumedLot, short decimal.Decimal) {
	if method == model.Average {
		return takeProRata(lots, shares)
	}

	remaining := shares
	open = slices.Clone(lots)
	consumed = make([]ConsumedLot, 0)

	for i := range open {
		idx := i
		if method == model.LIFO {
			idx = len(open) - 1 - i
		}
		if !remaining.IsPositive() {
			break
		}
		lot := &open[idx]
		if !lot.Shares.IsPositive() {
			continue
		}

		n := decimal.Min(remaining, lot.Shares)
		consumed = append(consumed, ConsumedLot{Lot: *lot, Shares: n, Cost: n.Mul(lot.UnitCost)})
		lot.Shares = lot.Shares.Sub(n)
		remaining = remaining.Sub(n)
	}

	return compact(open), consumed, remaining
}

// takeProRata reduces every lot by the same fraction, which keeps the average unit cost.
func takeProRata(lots []Lot, shares decimal.Decimal) ([]Lot, []ConsumedLot, decimal.Decimal) {
	total, _ := sumLots(lots)
	if !total.IsPositive() {
		return nil, []ConsumedLot{}, shares
	}
	if shares.GreaterThanOrEqual(total) {
		return nil, []ConsumedLot{}, shares.Sub(total)
	}

	left := total.Sub(shares)
	keep := left.Div(total)
	open := make([]Lot, 0, len(lots))
	rounded := decimal.Zero
	largest := -1
	for _, lot := range lots {
		if !lot.Shares.IsPositive() {
			continue
		}
		lot.Shares = lot.Shares.Mul(keep).Round(SharesPlaces)
		rounded = rounded.Add(lot.Shares)
		if largest < 0 || lot.Shares.GreaterThan(open[largest].Shares) {
			largest = len(open)
		}
		open = append(open, lot)
	}
	// the rounding remainder goes to the largest lot so open shares sum to left
	open[largest].Shares = open[largest].Shares.Add(left.Sub(rounded))
	return compact(open), []ConsumedLot{}, decimal.Zero
}

func compact(lots []Lot) []Lot {
	return slices.DeleteFunc(lots, func(l Lot) bool { return !l.Shares.IsPositive() })
}

func sortLots(lots []Lot) []Lot {
	sorted := slices.Clone(lots)
	slices.SortStableFunc(sorted, func(a, b Lot) int {
		switch {
		case a.before(b):
			return -1
		case b.before(a):
			return 1
		}
		return 0
	})
	return sorted
}

func sumLots(lots []Lot) (shares, cost decimal.Decimal) {
	shares, cost = decimal.Zero, decimal.Zero
	for _, lot := range lots {
		if !lot.Shares.IsPositive() {
			continue
		}
		shares = shares.Add(lot.Shares)
		cost = cost.Add(lot.Cost())
	}
	return shares, cost
}

func insufficient(lots []Lot, requested, short decimal.Decimal) error {
	available, _ := sumLots(lots)
	return &InsufficientHistoryError{Requested: requested, Available: available, Shortfall: short}
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

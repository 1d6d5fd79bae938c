package ledger

import (
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
)

// Position holds the running totals a holding is derived from.
type Position struct {
	TotalShares decimal.Decimal
	TotalCost   decimal.Decimal
}

func PositionOf(h model.Holding) Position {
	return Position{TotalShares: h.TotalShares, TotalCost: h.TotalCost}
}

// Fold adds BUY shares and cost and subtracts SELL shares. Sales never
// reduce the accumulated cost; other transaction types are ignored.
func Fold(prev Position, rows []model.Transaction) Position {
	p := prev
	for _, t := range rows {
		switch t.Type {
		case model.TransactionBuy:
			p.TotalShares = p.TotalShares.Add(t.Shares)
			p.TotalCost = p.TotalCost.Add(t.Total())
		case model.TransactionSell:
			p.TotalShares = p.TotalShares.Sub(t.Shares)
		}
	}
	return p
}

// Holding returns the holding for the position, false when the position is closed or oversold.
func (p Position) Holding(userID, stockID int64) (model.Holding, bool) {
	if !p.TotalShares.IsPositive() {
		return model.Holding{}, false
	}
	return model.Holding{
		UserID:      userID,
		StockID:     stockID,
		SharesOwned: p.TotalShares.Floor().IntPart(),
		AverageCost: p.TotalCost.Div(p.TotalShares).RoundBank(2),
		TotalShares: p.TotalShares,
		TotalCost:   p.TotalCost,
	}, true
}

package dbConverter

import (
	"encoding/json"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
)

func ConvertStock(s dbModel.Stock) model.Stock {
	return model.Stock{
		ID:          s.ID,
		Symbol:      s.Symbol,
		CompanyName: s.CompanyName,
		Currency:    s.Currency,
		Sector:      s.Sector,
		IsETF:       s.IsETF,
		IsActive:    s.IsActive,
		CreatedAt:   s.CreatedAt,
	}
}

func ConvertPrice(p dbModel.StockPrice) model.PriceSnapshot {
	return model.PriceSnapshot{
		StockID:   p.StockID,
		PriceDate: p.PriceDate,
		LastPrice: p.LastPrice,
		Currency:  p.Currency,
		High52:    p.High52,
		Low52:     p.Low52,
	}
}

func ConvertDividend(d dbModel.Dividend) model.Dividend {
	return model.Dividend{
		StockID:        d.StockID,
		Amount:         d.Amount,
		ExDividendDate: d.ExDividendDate,
		PaymentDate:    d.PaymentDate,
		Frequency:      model.DividendFrequency(d.Frequency),
	}
}

func ConvertUpcomingDividend(d dbModel.UpcomingDividend) model.DividendAlert {
	return model.DividendAlert{
		Stock: ConvertStock(d.Stock),
		Dividend: model.Dividend{
			StockID:        d.Stock.ID,
			Amount:         d.Amount,
			ExDividendDate: d.ExDividendDate,
			PaymentDate:    d.PaymentDate,
			Frequency:      model.DividendFrequency(d.Frequency),
		},
		Shares: d.SharesOwned,
	}
}

func ConvertTransaction(t dbModel.Transaction) model.Transaction {
	return model.Transaction{
		ID:               t.ID,
		UserID:           t.UserID,
		StockID:          t.StockID,
		Symbol:           t.Symbol,
		Type:             model.TransactionType(t.Type),
		Date:             t.Date,
		Shares:           t.Shares,
		Price:            t.Price,
		Fees:             t.Fees,
		CostBasisMethod:  model.CostBasisMethod(t.CostBasisMethod),
		RealizedGainLoss: t.RealizedGainLoss,
		Notes:            t.Notes,
		Processed:        t.Processed,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func ConvertSale(s dbModel.Sale) model.SaleRecord {
	return model.SaleRecord{Transaction: ConvertTransaction(s.Transaction), Username: s.Username}
}

func ConvertHolding(h dbModel.Holding) model.Holding {
	return model.Holding{
		UserID:      h.UserID,
		StockID:     h.StockID,
		SharesOwned: h.SharesOwned,
		AverageCost: h.AverageCost,
		TotalShares: h.TotalShares,
		TotalCost:   h.TotalCost,
		Notes:       h.Notes,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}

func ConvertHoldingWithStock(h dbModel.HoldingWithStock) model.HoldingView {
	return model.HoldingView{
		Holding: ConvertHolding(h.Holding),
		Stock: model.Stock{
			ID:          h.StockID,
			Symbol:      h.Symbol,
			CompanyName: h.CompanyName,
			Currency:    h.Currency,
			Sector:      h.Sector,
			IsETF:       h.IsETF,
			IsActive:    h.IsActive,
		},
	}
}

func ConvertSnapshot(s dbModel.PortfolioSnapshot) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		UserID:               s.UserID,
		SnapshotDate:         s.SnapshotDate,
		TotalValue:           s.TotalValue,
		TotalCost:            s.TotalCost,
		UnrealizedGain:       s.UnrealizedGain,
		PricedHoldings:       s.PricedHoldings,
		TotalHoldings:        s.TotalHoldings,
		AnnualDividendIncome: s.AnnualDividendIncome,
	}
}

func ConvertUser(u dbModel.User) model.User {
	user := model.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
	if u.TelegramChatID.Valid {
		chatID := u.TelegramChatID.Int64
		user.TelegramChatID = &chatID
	}
	return user
}

func ConvertJob(j dbModel.Job) model.Job {
	job := model.Job{
		ID:          j.ID,
		Type:        model.JobType(j.Type),
		Status:      model.JobStatus(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Processed:   j.Processed,
		Succeeded:   j.Succeeded,
		Failed:      j.Failed,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		DurationMS:  j.DurationMS,
		FailedItems: []string{},
	}
	if len(j.FailedItems) > 0 {
		// a malformed value leaves the list empty
		_ = json.Unmarshal(j.FailedItems, &job.FailedItems)
	}
	if j.StartedAt.Valid {
		started := j.StartedAt.Time
		job.StartedAt = &started
	}
	if j.CompletedAt.Valid {
		completed := j.CompletedAt.Time
		job.CompletedAt = &completed
	}
	return job
}

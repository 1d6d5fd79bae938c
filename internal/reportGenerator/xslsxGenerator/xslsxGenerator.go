package xslsxGenerator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/xuri/excelize/v2"
)

const (
	HoldingsSheet     = "Holdings"
	TransactionsSheet = "Transactions"
)

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

func (g *XSLSXGenerator) Generate(ctx context.Context, report model.PortfolioReport) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("holdings", len(report.Summary.Holdings)))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err = f.SetSheetName("Sheet1", HoldingsSheet); err != nil {
		return nil, "", err
	}

	if err = g.fillHoldings(f, report); err != nil {
		slog.Error("got error while filling holdings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if _, err = f.NewSheet(TransactionsSheet); err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if err = g.fillTransactions(f, report.Transactions); err != nil {
		slog.Error("got error while filling transactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XSLSXGenerator) fillHoldings(f *excelize.File, report model.PortfolioReport) error {
	sheet := HoldingsSheet

	if err := f.MergeCell(sheet, "A1", "I1"); err != nil {
		return err
	}
	_ = f.SetCellStr(sheet, "A1", fmt.Sprintf("Portfolio on %s", report.GeneratedAt.Format(model.DateLayout)))
	if err := applyHeaderStyle(f, sheet, "A1", "A1", "#cfe2f3"); err != nil {
		return err
	}

	headers := []string{"Symbol", "Company", "Shares", "Average cost", "Cost", "Price", "Value", "Gain", "Gain %"}
	if err := f.SetSheetRow(sheet, "A2", &headers); err != nil {
		return err
	}
	if err := applyHeaderStyle(f, sheet, "A2", "I2", "#d9ead3"); err != nil {
		return err
	}

	row := 3
	for _, h := range report.Summary.Holdings {
		_ = f.SetCellStr(sheet, cell("A", row), h.Stock.Symbol)
		_ = f.SetCellStr(sheet, cell("B", row), h.Stock.CompanyName)
		_ = f.SetCellInt(sheet, cell("C", row), int(h.SharesOwned))
		_ = f.SetCellValue(sheet, cell("D", row), h.AverageCost.InexactFloat64())
		_ = f.SetCellValue(sheet, cell("E", row), h.CostBasis().RoundBank(2).InexactFloat64())

		// unpriced holdings keep value columns empty
		if h.Unrealized.Available && h.Price != nil {
			_ = f.SetCellValue(sheet, cell("F", row), h.Price.LastPrice.InexactFloat64())
			_ = f.SetCellValue(sheet, cell("G", row), h.Unrealized.MarketValue.InexactFloat64())
			_ = f.SetCellValue(sheet, cell("H", row), h.Unrealized.Gain.InexactFloat64())
			_ = f.SetCellValue(sheet, cell("I", row), h.Unrealized.GainPercent.InexactFloat64())
		}
		row++
	}

	_ = f.SetCellStr(sheet, cell("A", row), "Total")
	_ = f.SetCellValue(sheet, cell("E", row), report.Summary.TotalCost.InexactFloat64())
	_ = f.SetCellValue(sheet, cell("G", row), report.Summary.TotalValue.InexactFloat64())
	_ = f.SetCellValue(sheet, cell("H", row), report.Summary.UnrealizedGain.InexactFloat64())

	return applyHeaderStyle(f, sheet, cell("A", row), cell("I", row), "#cccccc")
}

func (g *XSLSXGenerator) fillTransactions(f *excelize.File, txs []model.Transaction) error {
	sheet := TransactionsSheet

	headers := []string{"Date", "Symbol", "Type", "Shares", "Price", "Fees", "Total", "Method", "Realized gain", "Notes"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := applyHeaderStyle(f, sheet, "A1", "J1", "#f9cb9c"); err != nil {
		return err
	}

	for i, t := range txs {
		row := i + 2
		_ = f.SetCellStr(sheet, cell("A", row), t.Date.Format(model.DateLayout))
		_ = f.SetCellStr(sheet, cell("B", row), t.Symbol)
		_ = f.SetCellStr(sheet, cell("C", row), string(t.Type))
		_ = f.SetCellValue(sheet, cell("D", row), t.Shares.InexactFloat64())
		_ = f.SetCellValue(sheet, cell("E", row), t.Price.InexactFloat64())
		_ = f.SetCellValue(sheet, cell("F", row), t.Fees.InexactFloat64())
		_ = f.SetCellValue(sheet, cell("G", row), t.Total().RoundBank(2).InexactFloat64())
		_ = f.SetCellStr(sheet, cell("H", row), t.CostBasisMethod.String())
		if t.RealizedGainLoss.Valid {
			_ = f.SetCellValue(sheet, cell("I", row), t.RealizedGainLoss.Decimal.InexactFloat64())
		}
		_ = f.SetCellStr(sheet, cell("J", row), t.Notes)
	}

	return nil
}

func applyHeaderStyle(f *excelize.File, sheet, from, to, color string) error {
	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(sheet, from, to, styleID); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}
	return nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

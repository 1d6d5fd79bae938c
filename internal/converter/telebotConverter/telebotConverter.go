package telebotConverter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/tg/tgCallback"
	"github.com/KotFed0t/dividend_tracker/utils"
	tele "gopkg.in/telebot.v4"
)

// HoldingsResponse renders one page of holdings. page is clamped to the
// available pages.
func HoldingsResponse(summary model.PortfolioSummary, currency string, page, perPage int) (text string, markup *tele.ReplyMarkup, curPage int) {
	markup = &tele.ReplyMarkup{}

	if len(summary.Holdings) == 0 {
		return "📭 You have no open holdings yet.", markup, 0
	}

	if perPage < 1 {
		perPage = 10
	}
	pages := (len(summary.Holdings) + perPage - 1) / perPage
	curPage = min(max(page, 0), pages-1)

	var sb strings.Builder

	sb.WriteString("📊 Portfolio\n")
	sb.WriteString(fmt.Sprintf("💰 Cost: %s\n", utils.FormatMoney(summary.TotalCost, currency)))
	sb.WriteString(fmt.Sprintf("📈 Value: %s (%d of %d priced)\n", utils.FormatMoney(summary.TotalValue, currency), summary.PricedHoldings, len(summary.Holdings)))
	sb.WriteString(fmt.Sprintf("Δ Unrealized: %s\n", utils.FormatMoney(summary.UnrealizedGain, currency)))
	sb.WriteString(fmt.Sprintf("💵 Annual dividends: %s\n\n", utils.FormatMoney(summary.AnnualDividendIncome, currency)))

	from := curPage * perPage
	to := min(from+perPage, len(summary.Holdings))
	for i, h := range summary.Holdings[from:to] {
		cur := h.Stock.Currency
		if cur == "" {
			cur = currency
		}

		sb.WriteString(fmt.Sprintf("%d. %s", from+i+1, h.Stock.Symbol))
		if h.Stock.CompanyName != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", h.Stock.CompanyName))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("   ▸ Shares: %d @ %s\n", h.SharesOwned, utils.FormatMoney(h.AverageCost, cur)))

		if h.Unrealized.Available {
			sb.WriteString(fmt.Sprintf("   ▸ Value: %s\n", utils.FormatMoney(h.Unrealized.MarketValue, cur)))
			sb.WriteString(fmt.Sprintf("   ▸ Gain: %s (%s%%)\n", utils.FormatMoney(h.Unrealized.Gain, cur), h.Unrealized.GainPercent.StringFixed(2)))
		} else {
			sb.WriteString("   ▸ Price unavailable\n")
		}

		if h.Notes != "" {
			sb.WriteString(fmt.Sprintf("   ▸ %s\n", h.Notes))
		}
		sb.WriteString("\n")
	}

	paginationBtns := make([]tele.Btn, 0, 2)
	if curPage > 0 {
		paginationBtns = append(paginationBtns, markup.Data("◀ previous", tgCallback.HoldingsPage, strconv.Itoa(curPage-1)))
	}
	if curPage < pages-1 {
		paginationBtns = append(paginationBtns, markup.Data("next ▶", tgCallback.HoldingsPage, strconv.Itoa(curPage+1)))
	}
	if len(paginationBtns) > 0 {
		markup.Inline(markup.Row(paginationBtns...))
		sb.WriteString(fmt.Sprintf("Page %d/%d", curPage+1, pages))
	}

	return strings.TrimRight(sb.String(), "\n"), markup, curPage
}

func GainsResponse(gains model.RealizedGains, currency string, year *int) string {
	var sb strings.Builder

	if year != nil {
		sb.WriteString(fmt.Sprintf("🧾 Realized gains in %d\n", *year))
	} else {
		sb.WriteString("🧾 Realized gains, all time\n")
	}

	sb.WriteString(fmt.Sprintf("Total: %s\n", utils.FormatMoney(gains.Total, currency)))
	sb.WriteString(fmt.Sprintf("Sales: %d", gains.Sales))

	if gains.Indeterminate > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠ %d sale(s) have no cost basis and are not counted", gains.Indeterminate))
	}

	return sb.String()
}

func DividendAlertsMessage(alerts []model.DividendAlert) string {
	var sb strings.Builder

	sb.WriteString("🔔 Upcoming ex-dividend dates\n\n")
	for _, a := range alerts {
		sb.WriteString(fmt.Sprintf("• %s on %s: %s per share", a.Stock.Symbol, a.Dividend.ExDividendDate.Format(model.DateLayout), utils.FormatMoney(a.Dividend.Amount, a.Stock.Currency)))
		sb.WriteString(fmt.Sprintf(", about %s for your %d shares\n", utils.FormatMoney(a.Payment, a.Stock.Currency), a.Shares))
	}

	return strings.TrimRight(sb.String(), "\n")
}

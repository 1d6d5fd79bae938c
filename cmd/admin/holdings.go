package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
)

type holdingsCmd struct {
	user string
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display a user's holdings" }
func (*holdingsCmd) Usage() string {
	return `admin holdings -user <username>

  Prices come from the latest stored snapshots.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username")
}

func (c *holdingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx = utils.CtxWithRqID(ctx, "")

	user, err := a.repo.GetUserByUsername(ctx, c.user)
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: user %q not found\n", c.user)
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	summary, err := a.portfolio.Holdings(ctx, user.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	printMarkdown(holdingsMarkdown(user.Username, summary, a.cfg.Portfolio.DefaultCurrency))
	return subcommands.ExitSuccess
}

func holdingsMarkdown(username string, summary model.PortfolioSummary, currency string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Holdings of %s\n\n", username)

	if len(summary.Holdings) == 0 {
		b.WriteString("No open holdings.\n")
		return b.String()
	}

	b.WriteString("| Symbol | Shares | Avg cost | Cost | Price | Value | Gain | Gain % |\n")
	b.WriteString("|:---|---:|---:|---:|---:|---:|---:|---:|\n")

	for _, h := range summary.Holdings {
		cur := h.Stock.Currency
		if cur == "" {
			cur = currency
		}

		price, value, gain, pct := "-", "-", "-", "-"
		if h.Unrealized.Available && h.Price != nil {
			price = utils.FormatMoney(h.Price.LastPrice, cur)
			value = utils.FormatMoney(h.Unrealized.MarketValue, cur)
			gain = utils.FormatMoney(h.Unrealized.Gain, cur)
			pct = h.Unrealized.GainPercent.StringFixed(2) + "%"
		}

		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s | %s |\n",
			h.Stock.Symbol,
			h.SharesOwned,
			utils.FormatMoney(h.AverageCost, cur),
			utils.FormatMoney(h.CostBasis(), cur),
			price, value, gain, pct,
		)
	}

	fmt.Fprintf(&b, "\n**Total cost:** %s  \n", utils.FormatMoney(summary.TotalCost, currency))
	fmt.Fprintf(&b, "**Total value:** %s (%d of %d priced)  \n", utils.FormatMoney(summary.TotalValue, currency), summary.PricedHoldings, len(summary.Holdings))
	fmt.Fprintf(&b, "**Unrealized gain:** %s  \n", utils.FormatMoney(summary.UnrealizedGain, currency))
	fmt.Fprintf(&b, "**Annual dividends:** %s\n", utils.FormatMoney(summary.AnnualDividendIncome, currency))

	return b.String()
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

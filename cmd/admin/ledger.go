package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/google/subcommands"
)

type recalculateGainsCmd struct {
	user  string
	stock string
}

func (*recalculateGainsCmd) Name() string { return "recalculate-gains" }
func (*recalculateGainsCmd) Synopsis() string {
	return "recompute realized gain/loss for sell transactions"
}
func (*recalculateGainsCmd) Usage() string {
	return `admin recalculate-gains [-user <username>] [-stock <symbol>]

  Replays each position's ledger and stores the realized gain of every
  matching SELL transaction.
`
}

func (c *recalculateGainsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "only this user's sales")
	f.StringVar(&c.stock, "stock", "", "only sales of this symbol")
}

func (c *recalculateGainsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx = utils.CtxWithRqID(ctx, "")

	filter, ok, err := a.filter(ctx, c.user, c.stock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if !ok {
		printRecalc(os.Stdout, model.RecalcSummary{}, nil)
		return subcommands.ExitSuccess
	}

	var outcomes []model.RecalcOutcome
	summary, err := a.ledger.RecalculateGains(ctx, filter, func(o model.RecalcOutcome) {
		outcomes = append(outcomes, o)
	})
	if err != nil && summary.Found == 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	printRecalc(os.Stdout, summary, outcomes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return subcommands.ExitSuccess
}

func printRecalc(w io.Writer, summary model.RecalcSummary, outcomes []model.RecalcOutcome) {
	fmt.Fprintf(w, "Found %d sell transaction(s)\n", summary.Found)

	for _, o := range outcomes {
		prefix := fmt.Sprintf("%d: %s - %s", o.Transaction.ID, o.Username, o.Transaction.Symbol)

		switch o.Status {
		case model.RecalcUpdated:
			fmt.Fprintf(w, "✓ %s - Gain/Loss: $%s\n", prefix, o.Gain.StringFixed(2))
		case model.RecalcNoBasis:
			fmt.Fprintf(w, "⚠ %s - No cost basis calculated: %s\n", prefix, o.Reason)
		default:
			fmt.Fprintf(w, "✗ %s - %s\n", prefix, o.Reason)
		}
	}

	fmt.Fprintf(w, "Completed! Updated: %d, Errors: %d\n", summary.Updated, summary.Errors)
}

type reconcileCmd struct {
	user  string
	stock string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "rebuild holdings from the transaction ledger" }
func (*reconcileCmd) Usage() string {
	return `admin reconcile [-user <username>] [-stock <symbol>]

  Runs a full reconciliation for every matching position with ledger rows.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "only this user's positions")
	f.StringVar(&c.stock, "stock", "", "only positions in this symbol")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx = utils.CtxWithRqID(ctx, "")

	filter, ok, err := a.filter(ctx, c.user, c.stock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if !ok {
		fmt.Println("Reconciled 0 position(s)")
		return subcommands.ExitSuccess
	}

	count, err := a.portfolio.ReconcileAll(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Reconciled %d position(s)\n", count)
	return subcommands.ExitSuccess
}

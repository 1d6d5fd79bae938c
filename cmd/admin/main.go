package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&recalculateGainsCmd{}, "ledger")
	commander.Register(&reconcileCmd{}, "ledger")
	commander.Register(&holdingsCmd{}, "ledger")
	commander.Register(&createUserCmd{}, "users")
	commander.Register(&issueTokenCmd{}, "users")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

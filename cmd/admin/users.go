package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/auth"
	"github.com/KotFed0t/dividend_tracker/internal/service/userService"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/google/subcommands"
)

type createUserCmd struct {
	username string
	email    string
	admin    bool
}

func (*createUserCmd) Name() string     { return "create-user" }
func (*createUserCmd) Synopsis() string { return "create a user" }
func (*createUserCmd) Usage() string {
	return `admin create-user -username <name> -email <email> [-admin]
`
}

func (c *createUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "unique username")
	f.StringVar(&c.email, "email", "", "unique email")
	f.BoolVar(&c.admin, "admin", false, "grant admin rights")
}

func (c *createUserCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" || c.email == "" {
		fmt.Fprintln(os.Stderr, "Error: -username and -email are required")
		return subcommands.ExitUsageError
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	// link codes are only needed by the bot
	users := userService.New(a.repo, nil, a.cfg.LinkCodeExpiration)

	user, err := users.CreateUser(utils.CtxWithRqID(ctx, ""), c.username, c.email, c.admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Created user %d: %s <%s>\n", user.ID, user.Username, user.Email)
	return subcommands.ExitSuccess
}

type issueTokenCmd struct {
	user string
	ttl  time.Duration
}

func (*issueTokenCmd) Name() string     { return "issue-token" }
func (*issueTokenCmd) Synopsis() string { return "issue an API bearer token for a user" }
func (*issueTokenCmd) Usage() string {
	return `admin issue-token -user <username> [-ttl <duration>]
`
}

func (c *issueTokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username")
	f.DurationVar(&c.ttl, "ttl", 0, "token lifetime, AUTH_TOKEN_TTL when zero")
}

func (c *issueTokenCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	user, err := a.repo.GetUserByUsername(utils.CtxWithRqID(ctx, ""), c.user)
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: user %q not found\n", c.user)
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	token, err := auth.New(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL).Issue(user.ID, c.ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Println(token)
	return subcommands.ExitSuccess
}

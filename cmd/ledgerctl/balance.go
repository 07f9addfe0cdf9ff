package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/ledgerone/warehouse/ledger"
)

type balanceCmd struct {
	env     envFlags
	account string
	date    string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the published balance of an account" }
func (*balanceCmd) Usage() string {
	return `ledgerctl balance -account <id> [-date YYYY-MM-DD]

  Prints the balance at the end of -date, or the closing balance when no
  date is given. Dates without postings carry the previous balance.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	c.env.register(f)
	f.StringVar(&c.account, "account", "", "Account id")
	f.StringVar(&c.date, "date", "", "Date (YYYY-MM-DD), default closing balance")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "-account is required")
		return subcommands.ExitUsageError
	}
	var (
		day    ledger.Date
		hasDay bool
	)
	if c.date != "" {
		d, err := ledger.ParseDate(c.date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
			return subcommands.ExitUsageError
		}
		day, hasDay = d, true
	}

	_, store, _, err := c.env.open()
	if err != nil {
		return failEnv(err)
	}
	defer store.Close()

	series, err := ledger.NewBalanceCache(store).Series(ctx, ledger.AccountID(c.account))
	if err != nil {
		return failEnv(err)
	}

	balance := series.Closing()
	label := "closing"
	if hasDay {
		balance = series.At(day)
		label = day.String()
	}
	fmt.Fprintf(stdout, "%s %s %s %s\n", c.account, label, balance.String(), series[0].Currency)
	return subcommands.ExitSuccess
}

package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
)

type runsCmd struct {
	env   envFlags
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list recent pipeline runs" }
func (*runsCmd) Usage() string {
	return `ledgerctl runs [-n <limit>]

  Lists recorded runs, newest first.
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	c.env.register(f)
	f.IntVar(&c.limit, "n", 20, "Number of runs to show (0 for all)")
}

func (c *runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	_, store, _, err := c.env.open()
	if err != nil {
		return failEnv(err)
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, c.limit)
	if err != nil {
		return failEnv(err)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tEVENTS\tREJECTED\tFATAL\tWARNINGS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), r.Status, r.Events, r.Rejected, r.Fatal, r.Warnings)
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/ledgerone/warehouse/factory"
)

type runCmd struct {
	env envFlags
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "derive, validate and publish the current event snapshot" }
func (*runCmd) Usage() string {
	return `ledgerctl run [-config <file>] [-db <path>] [-v]

  Snapshots the configured event source, derives every table, runs the
  integrity checks and publishes the tables when no violation is fatal.
  The run is recorded in the database and notified like server runs.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) { c.env.register(f) }

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, store, logger, err := c.env.open()
	if err != nil {
		return failEnv(err)
	}
	defer store.Close()

	wiring, err := factory.NewRunner(ctx, cfg, store, nil, logger)
	if err != nil {
		return failEnv(err)
	}
	defer wiring.Close()

	run, err := wiring.Runner.Execute(ctx)
	printRun(stdout, run)
	return exitFor(err)
}

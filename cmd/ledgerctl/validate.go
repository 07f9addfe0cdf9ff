package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/ledgerone/warehouse/export"
	"github.com/ledgerone/warehouse/factory"
)

type validateCmd struct {
	env envFlags
	pdf string
}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "derive and validate the current snapshot without publishing" }
func (*validateCmd) Usage() string {
	return `ledgerctl validate [-config <file>] [-db <path>] [-pdf <file>]

  Runs the pipeline on the configured event source and prints the
  integrity report. Nothing is published or recorded. Exits 1 when the
  report contains fatal violations.
`
}

func (c *validateCmd) SetFlags(f *flag.FlagSet) {
	c.env.register(f)
	f.StringVar(&c.pdf, "pdf", "", "Also write the report as PDF to this file")
}

func (c *validateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	run, runErr := wiring.Runner.DryRun(ctx)
	printRun(stdout, run)

	if c.pdf != "" && run.Result != nil {
		data, err := export.BuildReportPDF(run.Record, run.Result.Report)
		if err != nil {
			return failEnv(err)
		}
		if err := os.WriteFile(c.pdf, data, 0o644); err != nil {
			return failEnv(err)
		}
	}
	return exitFor(runErr)
}

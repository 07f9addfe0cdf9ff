package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/ledgerone/warehouse/config"
	"github.com/ledgerone/warehouse/export"
	"github.com/ledgerone/warehouse/factory"
	"github.com/ledgerone/warehouse/store/sqlite"
)

type exportCmd struct {
	env    envFlags
	format string
	table  string
	out    string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write published tables (xlsx, csv) or an integrity report (pdf)" }
func (*exportCmd) Usage() string {
	return `ledgerctl export -format xlsx|csv|pdf [-table <name>] [-o <file>]

  xlsx writes every published table to one workbook; csv writes the
  published table named by -table. pdf validates the current snapshot
  without publishing and renders its integrity report. Output goes to
  stdout unless -o is given.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	c.env.register(f)
	f.StringVar(&c.format, "format", "xlsx", "Output format: xlsx, csv or pdf")
	f.StringVar(&c.table, "table", "ledger_entries", "Table to write in csv format")
	f.StringVar(&c.out, "o", "", "Output file (default stdout)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	switch c.format {
	case "xlsx", "csv", "pdf":
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q\n", c.format)
		return subcommands.ExitUsageError
	}

	cfg, store, logger, err := c.env.open()
	if err != nil {
		return failEnv(err)
	}
	defer store.Close()

	var buf bytes.Buffer
	if c.format == "pdf" {
		data, err := reportPDF(ctx, cfg, store, logger)
		if err != nil {
			return failEnv(err)
		}
		buf.Write(data)
	} else {
		tables, err := store.Tables(ctx)
		if err != nil {
			return failEnv(err)
		}
		if c.format == "xlsx" {
			data, err := export.BuildWorkbook(tables, nil)
			if err != nil {
				return failEnv(err)
			}
			buf.Write(data)
		} else if err := export.WriteTableCSV(&buf, tables, c.table); err != nil {
			return failEnv(err)
		}
	}

	w := stdout
	if c.out != "" {
		f, err := os.Create(c.out)
		if err != nil {
			return failEnv(err)
		}
		defer f.Close()
		w = f
	}
	if _, err := buf.WriteTo(w); err != nil {
		return failEnv(err)
	}
	return subcommands.ExitSuccess
}

// reportPDF validates the current snapshot and renders the report. Fatal
// violations still produce a report.
func reportPDF(ctx context.Context, cfg config.Config, store *sqlite.Store, logger zerolog.Logger) ([]byte, error) {
	wiring, err := factory.NewRunner(ctx, cfg, store, nil, logger)
	if err != nil {
		return nil, err
	}
	defer wiring.Close()

	run, err := wiring.Runner.DryRun(ctx)
	if run.Result == nil {
		return nil, err
	}
	return export.BuildReportPDF(run.Record, run.Result.Report)
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/ledgerone/warehouse/config"
	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/store/sqlite"
)

// Exit statuses beyond subcommands.ExitSuccess.
const (
	exitFatal       = subcommands.ExitFailure    // 1
	exitEnvironment = subcommands.ExitUsageError // 2
)

// stdout receives command output.
var stdout io.Writer = os.Stdout

// envFlags are shared by every command.
type envFlags struct {
	configPath string
	dbPath     string
	verbose    bool
}

func (e *envFlags) register(f *flag.FlagSet) {
	f.StringVar(&e.configPath, "config", "", "YAML configuration file (default $LEDGERONE_CONFIG)")
	f.StringVar(&e.dbPath, "db", "", "SQLite database path, overrides configuration")
	f.BoolVar(&e.verbose, "v", false, "Log pipeline progress to stderr")
}

func (e *envFlags) load() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if e.dbPath != "" {
		cfg.Database.Path = e.dbPath
	}
	if !e.verbose {
		return cfg, zerolog.Nop(), nil
	}
	cfg.Log.Pretty = true
	return cfg, cfg.Logger(), nil
}

func (e *envFlags) open() (config.Config, *sqlite.Store, zerolog.Logger, error) {
	cfg, logger, err := e.load()
	if err != nil {
		return cfg, nil, logger, err
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return cfg, nil, logger, err
	}
	return cfg, store, logger, nil
}

func failEnv(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return exitEnvironment
}

// exitFor maps a run error to the command exit status.
func exitFor(err error) subcommands.ExitStatus {
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case ledger.IsFatal(err):
		return exitFatal
	default:
		return exitEnvironment
	}
}

// printRun writes a run summary followed by its integrity report.
func printRun(w io.Writer, run *ledger.Run) {
	rec := run.Record
	fmt.Fprintf(w, "run %s: %s\n", rec.RunID, rec.Status)
	fmt.Fprintf(w, "events %d, accepted %d, rejected %d\n", rec.Events, rec.Accepted, rec.Rejected)
	if rec.Fingerprint != "" {
		fmt.Fprintf(w, "fingerprint %s\n", rec.Fingerprint)
	}
	for _, table := range []string{
		ledger.TableLedgerEntries, ledger.TableFactTransactions,
		ledger.TableDailyBalances, ledger.TableMonthlyRevenue,
	} {
		if n, ok := rec.RowCounts[table]; ok {
			fmt.Fprintf(w, "  %-24s %d rows\n", table, n)
		}
	}
	if rec.Status == ledger.RunFailed {
		fmt.Fprintf(w, "error: %s\n", rec.Error)
	}
	if run.Result != nil {
		fmt.Fprintln(w)
		printReport(w, run.Result.Report)
	}
}

func printReport(w io.Writer, report *ledger.Report) {
	if report == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tRESULT\tVIOLATIONS\tDETAILS")
	for _, c := range report.Checks {
		result := "PASS"
		if !c.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Name, result, c.Violations, c.Details)
	}
	tw.Flush()

	if len(report.Violations) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, v := range report.Violations {
		fmt.Fprintf(w, "%-7s %s\n", v.Severity, v.Error())
	}
}

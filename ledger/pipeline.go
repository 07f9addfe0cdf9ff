/*
pipeline.go - End-to-end derivation of one snapshot

PURPOSE:
  Composes the four stages into a single pure function of the snapshot:

    events -> Transform -> Derive balances -> Validate -> Aggregate -> Tables

  The pipeline owns no storage. Publication is the Runner's job and only
  happens for a Result without fatal violations.

IDEMPOTENCE:
  The validator re-derives ledger and balances from a private copy of the
  snapshot and compares fingerprints. Any difference is a fatal
  NonDeterminism violation.

SEE ALSO:
  - runner.go: Snapshot, publish, record, notify
*/
package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Pipeline struct {
	Transformer *Transformer
	Balances    *BalanceEngine
	Validator   *Validator
	Aggregator  *Aggregator
	Logger      zerolog.Logger

	// SkipIdempotence disables the re-derivation check.
	SkipIdempotence bool
}

// NewPipeline returns a pipeline with default stages and severity policy.
func NewPipeline(logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		Transformer: NewTransformer(),
		Balances:    NewBalanceEngine(),
		Validator:   NewValidator(DefaultSeverityPolicy()),
		Aggregator:  NewAggregator(),
		Logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Result is the outcome of one pipeline run. Tables is nil when the report
// blocks publication.
type Result struct {
	Tables   *Tables
	Report   *Report
	Events   int
	Accepted int
	Rejected int
	Duration time.Duration
}

// Run derives every table from events. On fatal violations it returns the
// Result (with its Report) together with a *FatalError.
func (p *Pipeline) Run(ctx context.Context, events []Event) (*Result, error) {
	start := time.Now()
	snapshot := make([]Event, len(events))
	copy(snapshot, events)

	tr, balances, err := p.derive(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	p.Logger.Debug().
		Int("events", len(snapshot)).
		Int("accepted", len(tr.Accepted)).
		Int("rejected", len(snapshot)-len(tr.Accepted)).
		Int("entries", len(tr.Entries)).
		Int("balances", len(balances)).
		Msg("derived ledger")

	in := ValidationInput{
		Events:      snapshot,
		Accepted:    tr.Accepted,
		Rejected:    tr.Rejected,
		Entries:     tr.Entries,
		Balances:    balances,
		Fingerprint: Fingerprint(tr.Entries, balances, nil),
	}
	if !p.SkipIdempotence {
		in.Rederive = func(ctx context.Context) (string, error) {
			again := make([]Event, len(events))
			copy(again, events)
			tr2, balances2, err := p.derive(ctx, again)
			if err != nil {
				return "", err
			}
			return Fingerprint(tr2.Entries, balances2, nil), nil
		}
	}

	report, err := p.Validator.Validate(ctx, in)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Report:   report,
		Events:   len(snapshot),
		Accepted: len(tr.Accepted),
		Rejected: len(snapshot) - len(tr.Accepted),
	}
	if report.HasFatal() {
		res.Duration = time.Since(start)
		p.Logger.Warn().
			Int("fatal", report.Count(SeverityFatal)).
			Int("warnings", report.Count(SeverityWarning)).
			Msg("integrity validation failed")
		return res, report.Err()
	}

	revenue, err := p.Aggregator.Aggregate(ctx, tr.Entries, report)
	if err != nil {
		return res, err
	}

	tables := &Tables{
		LedgerEntries:    tr.Entries,
		FactTransactions: FactTransactions(tr.Entries),
		DailyBalances:    balances,
		MonthlyRevenue:   revenue,
	}
	tables.Fingerprint = TablesFingerprint(tables)
	res.Tables = tables
	res.Duration = time.Since(start)

	p.Logger.Info().
		Int("ledger_entries", len(tables.LedgerEntries)).
		Int("fact_transactions", len(tables.FactTransactions)).
		Int("daily_balances", len(tables.DailyBalances)).
		Int("monthly_revenue", len(tables.MonthlyRevenue)).
		Int("warnings", report.Count(SeverityWarning)).
		Str("fingerprint", tables.Fingerprint).
		Dur("duration", res.Duration).
		Msg("pipeline run complete")
	return res, nil
}

func (p *Pipeline) derive(ctx context.Context, events []Event) (TransformResult, []AccountBalance, error) {
	tr, err := p.Transformer.Transform(ctx, events)
	if err != nil {
		return TransformResult{}, nil, err
	}
	balances, err := p.Balances.Derive(ctx, tr.Entries)
	if err != nil {
		return TransformResult{}, nil, err
	}
	return tr, balances, nil
}

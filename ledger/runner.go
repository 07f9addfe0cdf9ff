/*
runner.go - One pipeline execution against real storage

PURPOSE:
  Takes a snapshot from the EventSource, runs the Pipeline, and publishes
  the derived tables only when the integrity report has no fatal
  violations. Records, notifies and observes every run, published or not.

FLOW:
  1. Snapshot events (point-in-time, immutable)
  2. Pipeline.Run
  3. Fatal report     -> RunBlocked, nothing published
     Clean report     -> Publish all four tables atomically, invalidate cache
  4. RecordRun, NotifyRun, ObserveRun

  Runs are serialized: a second Execute waits for the first to finish.

DRY RUN:
  DryRun performs steps 1 and 2 only. Nothing is published, recorded or
  notified; the status is RunValidated when the report has no fatal
  violations.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Runner struct {
	Source    EventSource
	Publisher Publisher
	Pipeline  *Pipeline

	// Optional collaborators.
	Recorder RunRecorder
	Notifier RunNotifier
	Observer RunObserver
	Cache    *BalanceCache

	Logger zerolog.Logger
	Now    func() time.Time

	mu   sync.Mutex
	last *Run
}

// Run is the outcome of Execute.
type Run struct {
	Record RunRecord
	Result *Result
}

func NewRunner(source EventSource, publisher Publisher, pipeline *Pipeline, logger zerolog.Logger) *Runner {
	return &Runner{
		Source:    source,
		Publisher: publisher,
		Pipeline:  pipeline,
		Logger:    logger.With().Str("component", "runner").Logger(),
		Now:       time.Now,
	}
}

// Execute performs one run. The error is a *FatalError when the report
// blocked publication, or an environment error from storage.
func (r *Runner) Execute(ctx context.Context) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now
	if now == nil {
		now = time.Now
	}
	run := &Run{Record: RunRecord{
		RunID:     uuid.NewString(),
		StartedAt: now().UTC(),
	}}
	log := r.Logger.With().Str("run_id", run.Record.RunID).Logger()

	err := r.execute(ctx, run)
	run.Record.FinishedAt = now().UTC()
	switch {
	case err == nil:
		run.Record.Status = RunPublished
	case errors.Is(err, ErrFatalViolations):
		run.Record.Status = RunBlocked
		run.Record.Error = err.Error()
	default:
		run.Record.Status = RunFailed
		run.Record.Error = err.Error()
	}

	r.finish(ctx, log, run)
	r.last = run
	return run, err
}

func (r *Runner) execute(ctx context.Context, run *Run) error {
	if err := r.derive(ctx, run); err != nil {
		return err
	}
	tables := run.Result.Tables

	if err := r.Publisher.Publish(ctx, tables); err != nil {
		return fmt.Errorf("publish tables: %w", err)
	}
	run.Record.RowCounts = tables.RowCounts()
	run.Record.Fingerprint = tables.Fingerprint
	if r.Cache != nil {
		r.Cache.Invalidate(tables.Fingerprint)
	}
	return nil
}

// derive snapshots the source and runs the pipeline on it.
func (r *Runner) derive(ctx context.Context, run *Run) error {
	events, err := r.Source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot events: %w", err)
	}
	run.Record.Events = len(events)

	res, err := r.Pipeline.Run(ctx, events)
	run.Result = res
	if res != nil {
		run.Record.Accepted = res.Accepted
		run.Record.Rejected = res.Rejected
		run.Record.Fatal = res.Report.Count(SeverityFatal)
		run.Record.Warnings = res.Report.Count(SeverityWarning)
	}
	return err
}

// finish reports the run. Failures here never change the run's status.
func (r *Runner) finish(ctx context.Context, log zerolog.Logger, run *Run) {
	rec := run.Record
	duration := rec.FinishedAt.Sub(rec.StartedAt)

	ev := log.Info()
	if rec.Status != RunPublished {
		ev = log.Warn().Str("error", rec.Error)
	}
	ev.Str("status", string(rec.Status)).
		Int("events", rec.Events).
		Int("rejected", rec.Rejected).
		Int("fatal", rec.Fatal).
		Int("warnings", rec.Warnings).
		Dur("duration", duration).
		Msg("run finished")

	if r.Recorder != nil {
		if err := r.Recorder.RecordRun(ctx, rec); err != nil {
			log.Error().Err(err).Msg("failed to record run")
		}
	}
	if r.Notifier != nil {
		if err := r.Notifier.NotifyRun(ctx, rec); err != nil {
			log.Error().Err(err).Msg("failed to notify run")
		}
	}
	if r.Observer != nil {
		var report *Report
		if run.Result != nil {
			report = run.Result.Report
		}
		r.Observer.ObserveRun(rec, report, duration)
	}
}

// DryRun derives and validates the current snapshot without publishing.
func (r *Runner) DryRun(ctx context.Context) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now
	if now == nil {
		now = time.Now
	}
	run := &Run{Record: RunRecord{
		RunID:     uuid.NewString(),
		StartedAt: now().UTC(),
	}}

	err := r.derive(ctx, run)
	run.Record.FinishedAt = now().UTC()
	switch {
	case err == nil:
		run.Record.Status = RunValidated
		run.Record.Fingerprint = run.Result.Tables.Fingerprint
		run.Record.RowCounts = run.Result.Tables.RowCounts()
	case errors.Is(err, ErrFatalViolations):
		run.Record.Status = RunBlocked
		run.Record.Error = err.Error()
	default:
		run.Record.Status = RunFailed
		run.Record.Error = err.Error()
	}

	r.Logger.Info().
		Str("run_id", run.Record.RunID).
		Str("status", string(run.Record.Status)).
		Int("fatal", run.Record.Fatal).
		Int("warnings", run.Record.Warnings).
		Msg("dry run finished")
	return run, err
}

// Last returns the most recent run of this Runner.
func (r *Runner) Last() (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.last != nil
}

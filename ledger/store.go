/*
store.go - Storage boundaries of the pipeline

PURPOSE:
  Defines what the pipeline reads from and writes to. The pipeline itself is
  pure; the Runner moves data across these interfaces.

KEY INTERFACES:
  EventSource:  Point-in-time snapshot of immutable events
  EventStore:   Append-only event log that is also a source
  Publisher:    Atomic replacement of all derived tables
  TableReader:  Reads of the last published tables
  RunRecorder:  History of pipeline runs
  RunNotifier:  Downstream notification of a finished run
  RunObserver:  Metrics hook

PUBLICATION CONTRACT:
  Publish() replaces ledger_entries, fact_transactions,
  daily_account_balances and monthly_revenue together. Readers see either
  the previous set or the new one, never a mix.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite event log and published tables
  - store/postgres: Read-only upstream EventSource
  - store/file: CSV/JSON/JSONL snapshots
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// EVENTS - Append-only input
// =============================================================================

type EventSource interface {
	// Snapshot returns every event visible at call time. Later appends do not
	// affect a returned snapshot.
	Snapshot(ctx context.Context) ([]Event, error)
}

// EventStore is an append-only event log.
// IMPORTANT: No Update, No Delete.
type EventStore interface {
	EventSource

	// AppendEvents persists events atomically. Returns ErrDuplicateEvent if a
	// non-empty event_id already exists; nothing is written in that case.
	AppendEvents(ctx context.Context, events []Event) error
}

// =============================================================================
// DERIVED TABLES
// =============================================================================

type Publisher interface {
	// Publish replaces all derived tables in one atomic step.
	Publish(ctx context.Context, tables *Tables) error
}

type TableReader interface {
	// LedgerEntries returns published entries; an empty account means all.
	LedgerEntries(ctx context.Context, account AccountID) ([]LedgerEntry, error)
	FactTransactions(ctx context.Context) ([]LedgerEntry, error)
	// DailyBalances returns published balances ordered by account then date;
	// an empty account means all.
	DailyBalances(ctx context.Context, account AccountID) ([]AccountBalance, error)
	MonthlyRevenue(ctx context.Context) ([]MonthlyRevenue, error)
	// PublishedFingerprint returns ErrNotPublished before the first publication.
	PublishedFingerprint(ctx context.Context) (string, error)
}

// =============================================================================
// RUNS
// =============================================================================

type RunStatus string

const (
	RunPublished RunStatus = "published" // tables replaced
	RunBlocked   RunStatus = "blocked"   // fatal violations, nothing published
	RunFailed    RunStatus = "failed"    // environment error
	RunValidated RunStatus = "validated" // dry run, nothing published
)

// RunRecord describes one execution of the Runner.
type RunRecord struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Status      RunStatus      `json:"status"`
	Events      int            `json:"events"`
	Accepted    int            `json:"accepted"`
	Rejected    int            `json:"rejected"`
	Fatal       int            `json:"fatal"`
	Warnings    int            `json:"warnings"`
	RowCounts   map[string]int `json:"row_counts,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

type RunNotifier interface {
	NotifyRun(ctx context.Context, run RunRecord) error
}

type RunObserver interface {
	ObserveRun(run RunRecord, report *Report, duration time.Duration)
}

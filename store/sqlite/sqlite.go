/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

PURPOSE:
  Holds the append-only event log, the four published derived tables and
  the history of pipeline runs in one SQLite database.

INTERFACES IMPLEMENTED:
  ledger.EventStore:  Append-only events, point-in-time snapshots
  ledger.Publisher:   Atomic replacement of derived tables
  ledger.TableReader: Reads of the published tables
  ledger.RunRecorder: pipeline_runs history

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the events table
  - No DELETE statements on the events table (except Reset, for demos)

KEY TABLES:
  events:                 Immutable upstream facts, in arrival order
  ledger_entries:         Published postings (PRIMARY and CONTRA legs)
  fact_transactions:      Published customer-side revenue postings
  daily_account_balances: Published balances per (account, date)
  monthly_revenue:        Published revenue per (period, currency)
  publication:            Fingerprint of the published set (single row)
  pipeline_runs:          One row per Runner execution

PUBLICATION (write-new-then-swap):
  Publish() builds every table as <name>_next, then drops the live tables
  and renames the _next tables into place, all in one transaction. Readers
  see the old set or the new set, never a mix.

AMOUNTS:
  Decimals are stored as TEXT and parsed back with shopspring/decimal, so
  no amount ever passes through a float.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus a single connection so that
  ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/ledgerone.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ledgerone/warehouse/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.EventStore  = (*Store)(nil)
	_ ledger.Publisher   = (*Store)(nil)
	_ ledger.TableReader = (*Store)(nil)
	_ ledger.RunRecorder = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

// derivedTables maps each published table to its column definitions.
var derivedTables = []struct {
	name    string
	columns string
	index   string
}{
	{
		name: ledger.TableLedgerEntries,
		columns: `
			seq INTEGER NOT NULL,
			ledger_entry_id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_ts TEXT NOT NULL,
			user_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			posting_type TEXT NOT NULL CHECK (posting_type IN ('CREDIT', 'DEBIT')),
			leg TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			reference_id TEXT`,
		index: "account_id, seq",
	},
	{
		name: ledger.TableFactTransactions,
		columns: `
			seq INTEGER NOT NULL,
			ledger_entry_id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_ts TEXT NOT NULL,
			user_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			posting_type TEXT NOT NULL CHECK (posting_type IN ('CREDIT', 'DEBIT')),
			leg TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			reference_id TEXT`,
		index: "event_type, seq",
	},
	{
		name: ledger.TableDailyBalances,
		columns: `
			seq INTEGER NOT NULL,
			account_id TEXT NOT NULL,
			date TEXT NOT NULL,
			currency TEXT NOT NULL,
			net_change TEXT NOT NULL,
			balance TEXT NOT NULL,
			PRIMARY KEY (account_id, date)`,
		index: "seq",
	},
	{
		name: ledger.TableMonthlyRevenue,
		columns: `
			seq INTEGER NOT NULL,
			period TEXT NOT NULL,
			currency TEXT NOT NULL,
			gross_revenue TEXT NOT NULL,
			refunds TEXT NOT NULL,
			fee_revenue TEXT NOT NULL,
			net_revenue TEXT NOT NULL,
			PRIMARY KEY (period, currency)`,
		index: "seq",
	},
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Events (append-only input)
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		event_ts TEXT NOT NULL,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		reference_id TEXT,
		ingested_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_event_id ON events(event_id);

	-- Single row describing the published set
	CREATE TABLE IF NOT EXISTS publication (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		fingerprint TEXT NOT NULL,
		published_at TEXT NOT NULL
	);

	-- Run history
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status TEXT NOT NULL,
		events INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		fatal INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		row_counts_json TEXT,
		fingerprint TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	for _, t := range derivedTables {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, t.columns)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_order ON %s(%s)", t.name, t.name, t.index)
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("index %s: %w", t.name, err)
		}
	}
	return nil
}

// =============================================================================
// EVENT STORE (ledger.EventStore interface)
// =============================================================================

// AppendEvents adds events atomically. Returns ledger.ErrDuplicateEvent when
// a non-empty event_id is already stored or repeated in the batch.
func (s *Store) AppendEvents(ctx context.Context, events []ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate ids within the batch first
	ids := make(map[ledger.EventID]bool)
	for _, e := range events {
		if e.EventID == "" {
			continue
		}
		if ids[e.EventID] {
			return ledger.ErrDuplicateEvent
		}
		ids[e.EventID] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ingestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range events {
		if e.EventID != "" {
			var count int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM events WHERE event_id = ?", e.EventID,
			).Scan(&count); err != nil {
				return fmt.Errorf("failed to check event id: %w", err)
			}
			if count > 0 {
				return ledger.ErrDuplicateEvent
			}
		}
		if err := insertEvent(ctx, tx, e, ingestedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AppendUnchecked inserts events without the duplicate check. Upstream
// producers with at-least-once delivery write this way.
func (s *Store) AppendUnchecked(ctx context.Context, events []ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ingestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range events {
		if err := insertEvent(ctx, tx, e, ingestedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertEvent(ctx context.Context, tx *sql.Tx, e ledger.Event, ingestedAt string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(event_id, event_ts, user_id, account_id, event_type, direction, amount, currency, reference_id, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EventID,
		formatTS(e.EventTS),
		e.UserID,
		e.AccountID,
		e.EventType,
		e.Direction,
		e.Amount.String(),
		e.Currency,
		nullString(string(e.ReferenceID)),
		ingestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Snapshot returns every stored event in arrival order.
func (s *Store) Snapshot(ctx context.Context) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_ts, user_id, account_id, event_type, direction, amount, currency, reference_id
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			e      ledger.Event
			ts     string
			amount string
			ref    sql.NullString
		)
		if err := rows.Scan(&e.EventID, &ts, &e.UserID, &e.AccountID, &e.EventType,
			&e.Direction, &amount, &e.Currency, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.EventTS, err = parseTS(ts); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("event %s: bad amount %q: %w", e.EventID, amount, err)
		}
		e.ReferenceID = ledger.EventID(ref.String)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// =============================================================================
// PUBLISHER (ledger.Publisher interface)
// =============================================================================

// Publish replaces all four derived tables in one transaction.
func (s *Store) Publish(ctx context.Context, tables *ledger.Tables) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Build every _next table
	for _, t := range derivedTables {
		next := t.name + "_next"
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+next); err != nil {
			return fmt.Errorf("drop %s: %w", next, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", next, t.columns)); err != nil {
			return fmt.Errorf("create %s: %w", next, err)
		}
	}
	if err := insertEntries(ctx, tx, ledger.TableLedgerEntries+"_next", tables.LedgerEntries); err != nil {
		return err
	}
	if err := insertEntries(ctx, tx, ledger.TableFactTransactions+"_next", tables.FactTransactions); err != nil {
		return err
	}
	if err := insertBalances(ctx, tx, tables.DailyBalances); err != nil {
		return err
	}
	if err := insertRevenue(ctx, tx, tables.MonthlyRevenue); err != nil {
		return err
	}

	// 2. Swap
	for _, t := range derivedTables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.name); err != nil {
			return fmt.Errorf("drop %s: %w", t.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s_next RENAME TO %s", t.name, t.name)); err != nil {
			return fmt.Errorf("swap %s: %w", t.name, err)
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_order ON %s(%s)", t.name, t.name, t.index)
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("index %s: %w", t.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO publication (id, fingerprint, published_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET fingerprint = excluded.fingerprint, published_at = excluded.published_at
	`, tables.Fingerprint, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}

	return tx.Commit()
}

func insertEntries(ctx context.Context, tx *sql.Tx, table string, entries []ledger.LedgerEntry) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s
		(seq, ledger_entry_id, event_id, event_ts, user_id, account_id, event_type, posting_type, leg, amount, currency, reference_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, table))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", table, err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, i,
			e.LedgerEntryID, e.EventID, formatTS(e.EventTS), e.UserID, e.AccountID,
			e.EventType, e.PostingType, e.Leg, e.Amount.String(), e.Currency,
			nullString(string(e.ReferenceID)),
		); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func insertBalances(ctx context.Context, tx *sql.Tx, balances []ledger.AccountBalance) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_account_balances_next (seq, account_id, date, currency, net_change, balance)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare daily_account_balances: %w", err)
	}
	defer stmt.Close()

	for i, b := range balances {
		if _, err := stmt.ExecContext(ctx, i, b.AccountID, b.Date.String(), b.Currency,
			b.NetChange.String(), b.Balance.String()); err != nil {
			return fmt.Errorf("insert daily_account_balances: %w", err)
		}
	}
	return nil
}

func insertRevenue(ctx context.Context, tx *sql.Tx, revenue []ledger.MonthlyRevenue) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_revenue_next (seq, period, currency, gross_revenue, refunds, fee_revenue, net_revenue)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare monthly_revenue: %w", err)
	}
	defer stmt.Close()

	for i, r := range revenue {
		if _, err := stmt.ExecContext(ctx, i, r.Period.String(), r.Currency,
			r.GrossRevenue.String(), r.Refunds.String(), r.FeeRevenue.String(), r.NetRevenue.String()); err != nil {
			return fmt.Errorf("insert monthly_revenue: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TABLE READER (ledger.TableReader interface)
// =============================================================================

// PublishedFingerprint returns ledger.ErrNotPublished before the first Publish.
func (s *Store) PublishedFingerprint(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint(ctx)
}

func (s *Store) fingerprint(ctx context.Context) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, "SELECT fingerprint FROM publication WHERE id = 1").Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrNotPublished
	}
	if err != nil {
		return "", fmt.Errorf("failed to read publication: %w", err)
	}
	return fp, nil
}

func (s *Store) LedgerEntries(ctx context.Context, account ledger.AccountID) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.fingerprint(ctx); err != nil {
		return nil, err
	}
	if account == "" {
		return s.queryEntries(ctx, ledger.TableLedgerEntries, "")
	}
	return s.queryEntries(ctx, ledger.TableLedgerEntries, "WHERE account_id = ?", account)
}

func (s *Store) FactTransactions(ctx context.Context) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.fingerprint(ctx); err != nil {
		return nil, err
	}
	return s.queryEntries(ctx, ledger.TableFactTransactions, "")
}

func (s *Store) queryEntries(ctx context.Context, table, where string, args ...any) ([]ledger.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT ledger_entry_id, event_id, event_ts, user_id, account_id, event_type,
		       posting_type, leg, amount, currency, reference_id
		FROM %s %s
		ORDER BY seq ASC
	`, table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		var (
			e      ledger.LedgerEntry
			ts     string
			amount string
			ref    sql.NullString
		)
		if err := rows.Scan(&e.LedgerEntryID, &e.EventID, &ts, &e.UserID, &e.AccountID,
			&e.EventType, &e.PostingType, &e.Leg, &amount, &e.Currency, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if e.EventTS, err = parseTS(ts); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("entry %s: bad amount %q: %w", e.LedgerEntryID, amount, err)
		}
		e.ReferenceID = ledger.EventID(ref.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) DailyBalances(ctx context.Context, account ledger.AccountID) ([]ledger.AccountBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.fingerprint(ctx); err != nil {
		return nil, err
	}
	return s.queryBalances(ctx, account)
}

func (s *Store) queryBalances(ctx context.Context, account ledger.AccountID) ([]ledger.AccountBalance, error) {
	query := `SELECT account_id, date, currency, net_change, balance FROM daily_account_balances`
	var args []any
	if account != "" {
		query += ` WHERE account_id = ?`
		args = append(args, account)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []ledger.AccountBalance
	for rows.Next() {
		var (
			b                   ledger.AccountBalance
			date, net, balance string
		)
		if err := rows.Scan(&b.AccountID, &date, &b.Currency, &net, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if b.Date, err = ledger.ParseDate(date); err != nil {
			return nil, fmt.Errorf("bad balance date %q: %w", date, err)
		}
		if b.NetChange, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("bad net change %q: %w", net, err)
		}
		if b.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("bad balance %q: %w", balance, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) MonthlyRevenue(ctx context.Context) ([]ledger.MonthlyRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.fingerprint(ctx); err != nil {
		return nil, err
	}
	return s.queryRevenue(ctx)
}

func (s *Store) queryRevenue(ctx context.Context) ([]ledger.MonthlyRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, currency, gross_revenue, refunds, fee_revenue, net_revenue
		FROM monthly_revenue
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly revenue: %w", err)
	}
	defer rows.Close()

	var out []ledger.MonthlyRevenue
	for rows.Next() {
		var (
			r                                 ledger.MonthlyRevenue
			period, gross, refunds, fees, net string
		)
		if err := rows.Scan(&period, &r.Currency, &gross, &refunds, &fees, &net); err != nil {
			return nil, fmt.Errorf("failed to scan monthly revenue: %w", err)
		}
		if r.Period, err = ledger.ParseMonth(period); err != nil {
			return nil, fmt.Errorf("bad period %q: %w", period, err)
		}
		if r.GrossRevenue, r.Refunds, r.FeeRevenue, r.NetRevenue, err = parseDecimals4(gross, refunds, fees, net); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Tables reads the complete published set under one lock, so the result is
// never a mix of two publications.
func (s *Store) Tables(ctx context.Context) (*ledger.Tables, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, err := s.fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	t := &ledger.Tables{Fingerprint: fp}
	if t.LedgerEntries, err = s.queryEntries(ctx, ledger.TableLedgerEntries, ""); err != nil {
		return nil, err
	}
	if t.FactTransactions, err = s.queryEntries(ctx, ledger.TableFactTransactions, ""); err != nil {
		return nil, err
	}
	if t.DailyBalances, err = s.queryBalances(ctx, ""); err != nil {
		return nil, err
	}
	if t.MonthlyRevenue, err = s.queryRevenue(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// =============================================================================
// RUN RECORDER (ledger.RunRecorder interface)
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, run ledger.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, err := json.Marshal(run.RowCounts)
	if err != nil {
		return fmt.Errorf("failed to encode row counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs
		(run_id, started_at, finished_at, status, events, accepted, rejected, fatal, warnings, row_counts_json, fingerprint, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		formatTS(run.StartedAt),
		formatTS(run.FinishedAt),
		run.Status,
		run.Events,
		run.Accepted,
		run.Rejected,
		run.Fatal,
		run.Warnings,
		string(counts),
		nullString(run.Fingerprint),
		nullString(run.Error),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("run %s already recorded", run.RunID)
		}
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ledger.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT run_id, started_at, finished_at, status, events, accepted, rejected,
		       fatal, warnings, row_counts_json, fingerprint, error
		FROM pipeline_runs
		ORDER BY rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []ledger.RunRecord
	for rows.Next() {
		var (
			r                   ledger.RunRecord
			started, finished   string
			counts, fp, errText sql.NullString
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Status, &r.Events, &r.Accepted,
			&r.Rejected, &r.Fatal, &r.Warnings, &counts, &fp, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTS(started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at: %w", r.RunID, err)
		}
		if r.FinishedAt, err = parseTS(finished); err != nil {
			return nil, fmt.Errorf("run %s: bad finished_at: %w", r.RunID, err)
		}
		if counts.Valid && counts.String != "" && counts.String != "null" {
			if err := json.Unmarshal([]byte(counts.String), &r.RowCounts); err != nil {
				return nil, fmt.Errorf("run %s: bad row counts: %w", r.RunID, err)
			}
		}
		r.Fingerprint = fp.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"events", "publication", "pipeline_runs"}
	for _, t := range derivedTables {
		tables = append(tables, t.name)
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseDecimals4(a, b, c, d string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	var out [4]decimal.Decimal
	for i, s := range []string{a, b, c, d} {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return out[0], out[1], out[2], out[3], fmt.Errorf("bad decimal %q: %w", s, err)
		}
		out[i] = v
	}
	return out[0], out[1], out[2], out[3], nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

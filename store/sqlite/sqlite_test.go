package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ev(id string, day int, typ ledger.EventType, dir ledger.Direction, amount, ref string) ledger.Event {
	return ledger.Event{
		EventID:     ledger.EventID(id),
		EventTS:     time.Date(2025, time.May, day, 10, 30, 0, 123000000, time.UTC),
		UserID:      "user-1",
		AccountID:   "acct-1",
		EventType:   typ,
		Direction:   dir,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		ReferenceID: ledger.EventID(ref),
	}
}

func scenario() []ledger.Event {
	return []ledger.Event{
		ev("e1", 1, ledger.EventDeposit, ledger.Credit, "100.00", ""),
		ev("e2", 2, ledger.EventPurchase, ledger.Debit, "40.10", ""),
		ev("e3", 3, ledger.EventRefund, ledger.Credit, "40.10", "e2"),
	}
}

func publishScenario(t *testing.T, store *sqlite.Store) *ledger.Tables {
	ctx := context.Background()
	require.NoError(t, store.AppendEvents(ctx, scenario()))
	events, err := store.Snapshot(ctx)
	require.NoError(t, err)
	res, err := ledger.NewPipeline(zerolog.Nop()).Run(ctx, events)
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, res.Tables))
	return res.Tables
}

// =============================================================================
// EVENTS
// =============================================================================

func TestStore_SnapshotRoundTripsEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.AppendEvents(ctx, scenario()))

	events, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	want := scenario()
	for i := range want {
		assert.Equal(t, want[i].EventID, events[i].EventID)
		assert.True(t, want[i].EventTS.Equal(events[i].EventTS))
		assert.True(t, want[i].Amount.Equal(events[i].Amount))
		assert.Equal(t, want[i].ReferenceID, events[i].ReferenceID)
	}

	n, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_AppendEventsRejectsDuplicatesAtomically(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.AppendEvents(ctx, scenario()[:1]))

	err := store.AppendEvents(ctx, scenario())
	assert.ErrorIs(t, err, ledger.ErrDuplicateEvent)

	n, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.AppendUnchecked(ctx, scenario()[:1]))
	n, err = store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// =============================================================================
// PUBLICATION
// =============================================================================

func TestStore_ReadsBeforePublication(t *testing.T) {
	store := newTestStore(t)

	_, err := store.PublishedFingerprint(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotPublished)
	_, err = store.DailyBalances(context.Background(), "")
	assert.ErrorIs(t, err, ledger.ErrNotPublished)
	_, err = store.Tables(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotPublished)
}

func TestStore_PublishRoundTripsTables(t *testing.T) {
	// GIVEN: Published tables
	ctx := context.Background()
	store := newTestStore(t)
	tables := publishScenario(t, store)

	// WHEN: Reading them back
	entries, err := store.LedgerEntries(ctx, "")
	require.NoError(t, err)
	facts, err := store.FactTransactions(ctx)
	require.NoError(t, err)
	balances, err := store.DailyBalances(ctx, "")
	require.NoError(t, err)
	revenue, err := store.MonthlyRevenue(ctx)
	require.NoError(t, err)

	// THEN: The fingerprint of what was read equals what was published
	read := &ledger.Tables{
		LedgerEntries:    entries,
		FactTransactions: facts,
		DailyBalances:    balances,
		MonthlyRevenue:   revenue,
	}
	assert.Equal(t, tables.Fingerprint, ledger.TablesFingerprint(read))

	fp, err := store.PublishedFingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, tables.Fingerprint, fp)
}

func TestStore_PublishReplacesPreviousTables(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	publishScenario(t, store)

	// Publish a smaller set
	res, err := ledger.NewPipeline(zerolog.Nop()).Run(ctx, scenario()[:1])
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, res.Tables))

	entries, err := store.LedgerEntries(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	balances, err := store.DailyBalances(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Balance.Equal(decimal.NewFromInt(100)))

	revenue, err := store.MonthlyRevenue(ctx)
	require.NoError(t, err)
	require.Len(t, revenue, 1)
	assert.True(t, revenue[0].GrossRevenue.IsZero())
}

func TestStore_FilterByAccount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	publishScenario(t, store)

	entries, err := store.LedgerEntries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, ledger.LegPrimary, e.Leg)
	}

	balances, err := store.DailyBalances(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.True(t, balances[2].Balance.Equal(decimal.RequireFromString("100")))
}

// =============================================================================
// RUNS
// =============================================================================

func TestStore_RecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	start := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []ledger.RunStatus{ledger.RunPublished, ledger.RunBlocked} {
		require.NoError(t, store.RecordRun(ctx, ledger.RunRecord{
			RunID:      string(rune('a' + i)),
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
			Status:     status,
			Events:     4,
			RowCounts:  map[string]int{ledger.TableLedgerEntries: 8},
		}))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].RunID)
	assert.Equal(t, ledger.RunBlocked, runs[0].Status)
	assert.Equal(t, 8, runs[1].RowCounts[ledger.TableLedgerEntries])
	assert.True(t, runs[1].StartedAt.Equal(start))

	err = store.RecordRun(ctx, ledger.RunRecord{RunID: "a"})
	assert.Error(t, err)
}

func TestStore_ListRunsReportsCorruptTimestamps(t *testing.T) {
	// GIVEN: A recorded run whose started_at was overwritten with garbage
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RecordRun(ctx, ledger.RunRecord{
		RunID:      "r1",
		StartedAt:  time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, time.May, 1, 0, 0, 1, 0, time.UTC),
		Status:     ledger.RunPublished,
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "UPDATE pipeline_runs SET started_at = 'not-a-time' WHERE run_id = 'r1'")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	// WHEN: Listing runs
	_, err = store.ListRuns(ctx, 0)

	// THEN: The bad row is an error, not a zero time
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run r1")
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	publishScenario(t, store)

	require.NoError(t, store.Reset(ctx))

	n, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = store.PublishedFingerprint(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotPublished)
}

func TestStore_TablesMatchesPublishedFingerprint(t *testing.T) {
	// GIVEN: Published tables
	ctx := context.Background()
	store := newTestStore(t)
	want := publishScenario(t, store)

	// WHEN: Reading the whole set back
	got, err := store.Tables(ctx)
	require.NoError(t, err)

	// THEN: The content hashes to the published fingerprint
	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	assert.Equal(t, want.RowCounts(), got.RowCounts())
	assert.Equal(t, want.Fingerprint, ledger.TablesFingerprint(got))
}

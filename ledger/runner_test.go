package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/ledger/store"
)

type recordingNotifier struct{ runs []ledger.RunRecord }

func (n *recordingNotifier) NotifyRun(_ context.Context, run ledger.RunRecord) error {
	n.runs = append(n.runs, run)
	return nil
}

type recordingObserver struct{ statuses []ledger.RunStatus }

func (o *recordingObserver) ObserveRun(run ledger.RunRecord, _ *ledger.Report, _ time.Duration) {
	o.statuses = append(o.statuses, run.Status)
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) ([]ledger.Event, error) {
	return nil, errors.New("connection refused")
}

func newTestRunner(t *testing.T, events []ledger.Event) (*ledger.Runner, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.AppendUnchecked(events)
	r := ledger.NewRunner(mem, mem, newTestPipeline(), zerolog.Nop())
	r.Recorder = mem
	r.Cache = ledger.NewBalanceCache(mem)
	return r, mem
}

func TestRunner_PublishesCleanRun(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestRunner(t, scenarioEvents())
	notifier, observer := &recordingNotifier{}, &recordingObserver{}
	r.Notifier, r.Observer = notifier, observer

	run, err := r.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, ledger.RunPublished, run.Record.Status)
	assert.Equal(t, 8, run.Record.RowCounts[ledger.TableLedgerEntries])
	assert.NotEmpty(t, run.Record.RunID)

	fp, err := mem.PublishedFingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.Record.Fingerprint, fp)
	assert.Equal(t, fp, r.Cache.Generation())

	runs, err := mem.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, notifier.runs, 1)
	assert.Equal(t, []ledger.RunStatus{ledger.RunPublished}, observer.statuses)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, run.Record.RunID, last.Record.RunID)
}

func TestRunner_FatalRunPublishesNothing(t *testing.T) {
	// GIVEN: A clean publication followed by an over-refund batch
	ctx := context.Background()
	r, mem := newTestRunner(t, scenarioEvents())
	first, err := r.Execute(ctx)
	require.NoError(t, err)

	mem.AppendUnchecked([]ledger.Event{
		withRef(event("evt-9", at(4, 9, 0), "acct-A", ledger.EventRefund, ledger.Credit, "1"), "evt-2"),
	})

	// WHEN: Running again
	run, err := r.Execute(ctx)

	// THEN: The run is blocked and the previous tables remain
	assert.True(t, ledger.IsFatal(err))
	assert.Equal(t, ledger.RunBlocked, run.Record.Status)
	assert.Equal(t, 1, run.Record.Fatal)
	fp, err := mem.PublishedFingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Record.Fingerprint, fp)
}

func TestRunner_SourceFailure(t *testing.T) {
	mem := store.NewMemory()
	r := ledger.NewRunner(failingSource{}, mem, newTestPipeline(), zerolog.Nop())
	r.Recorder = mem

	run, err := r.Execute(context.Background())

	require.Error(t, err)
	assert.False(t, ledger.IsFatal(err))
	assert.Equal(t, ledger.RunFailed, run.Record.Status)
	assert.Contains(t, run.Record.Error, "connection refused")
	runs, err := mem.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunner_DryRunPublishesNothing(t *testing.T) {
	// GIVEN: A runner over a clean snapshot
	ctx := context.Background()
	r, mem := newTestRunner(t, scenarioEvents())
	notifier := &recordingNotifier{}
	r.Notifier = notifier

	// WHEN: Dry running
	run, err := r.DryRun(ctx)

	// THEN: The tables are derived but neither published nor recorded
	require.NoError(t, err)
	assert.Equal(t, ledger.RunValidated, run.Record.Status)
	assert.NotEmpty(t, run.Record.Fingerprint)
	assert.Equal(t, 8, run.Record.RowCounts[ledger.TableLedgerEntries])

	_, err = mem.PublishedFingerprint(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotPublished)
	runs, err := mem.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, notifier.runs)
	_, ok := r.Last()
	assert.False(t, ok)

	// AND: A later Execute publishes the same fingerprint
	published, err := r.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.Record.Fingerprint, published.Record.Fingerprint)
}

func TestRunner_DryRunBlocked(t *testing.T) {
	events := append(scenarioEvents(),
		withRef(event("evt-9", at(4, 9, 0), "acct-A", ledger.EventRefund, ledger.Credit, "1"), "evt-2"))
	r, _ := newTestRunner(t, events)

	run, err := r.DryRun(context.Background())

	assert.True(t, ledger.IsFatal(err))
	assert.Equal(t, ledger.RunBlocked, run.Record.Status)
	require.NotNil(t, run.Result)
	assert.Len(t, run.Result.Report.ByCheck(ledger.CheckRefundLimit), 1)
}

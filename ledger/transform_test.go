package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
)

func TestTransform_EachEventPostsBalancedLegs(t *testing.T) {
	// GIVEN: The four-event scenario
	// WHEN: Transforming
	// THEN: Every event yields a primary and a contra leg of equal amount

	res, err := ledger.NewTransformer().Transform(context.Background(), scenarioEvents())
	require.NoError(t, err)
	require.Empty(t, res.Rejected)
	require.Len(t, res.Accepted, 4)
	require.Len(t, res.Entries, 8)

	for i := 0; i < len(res.Entries); i += 2 {
		primary, contra := res.Entries[i], res.Entries[i+1]
		assert.Equal(t, ledger.LegPrimary, primary.Leg)
		assert.Equal(t, ledger.LegContra, contra.Leg)
		assert.Equal(t, primary.EventID, contra.EventID)
		assert.True(t, primary.Amount.Equal(contra.Amount))
		assert.Equal(t, primary.PostingType.Opposite(), contra.PostingType)
		assert.True(t, ledger.IsContraAccount(contra.AccountID))
		assert.Equal(t, ledger.AccountID("acct-A"), primary.AccountID)
	}
	assert.Equal(t, ledger.AccountID("contra:fee_revenue:USD"), res.Entries[5].AccountID)
}

func TestTransform_PrimaryPostingFollowsDirection(t *testing.T) {
	res, err := ledger.NewTransformer().Transform(context.Background(), scenarioEvents())
	require.NoError(t, err)

	want := map[ledger.EventID]ledger.Direction{
		"evt-1": ledger.Credit,
		"evt-2": ledger.Debit,
		"evt-3": ledger.Debit,
		"evt-4": ledger.Credit,
	}
	for _, e := range res.Entries {
		if e.Leg == ledger.LegPrimary {
			assert.Equal(t, want[e.EventID], e.PostingType, "event %s", e.EventID)
		}
	}
}

func TestTransform_EntryIDsAreStable(t *testing.T) {
	// GIVEN: The same events in two different input orders
	events := scenarioEvents()
	reversed := make([]ledger.Event, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}

	// WHEN: Transforming both
	a, err := ledger.NewTransformer().Transform(context.Background(), events)
	require.NoError(t, err)
	b, err := ledger.NewTransformer().Transform(context.Background(), reversed)
	require.NoError(t, err)

	// THEN: Output is identical, ids included
	assert.Equal(t, a.Entries, b.Entries)
	assert.NotEqual(t, a.Entries[0].LedgerEntryID, a.Entries[1].LedgerEntryID)
}

func TestTransform_MalformedAmountIsRejectedWithoutAbort(t *testing.T) {
	// GIVEN: A valid deposit and a purchase with amount -5
	events := []ledger.Event{
		event("evt-1", at(1, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "100"),
		event("evt-bad", at(1, 10, 0), "acct-A", ledger.EventPurchase, ledger.Debit, "-5"),
	}

	// WHEN: Transforming
	res, err := ledger.NewTransformer().Transform(context.Background(), events)

	// THEN: The bad event is reported and the good one is posted
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ledger.EventID("evt-bad"), res.Rejected[0].EventID)
	assert.ErrorIs(t, res.Rejected[0], ledger.ErrSchemaViolation)
	assert.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		assert.Equal(t, ledger.EventID("evt-1"), e.EventID)
	}
}

func TestTransform_SchemaRejections(t *testing.T) {
	base := event("evt-x", at(1, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "10")

	tests := []struct {
		name   string
		mutate func(e *ledger.Event)
	}{
		{"missing id", func(e *ledger.Event) { e.EventID = "" }},
		{"missing timestamp", func(e *ledger.Event) { e.EventTS = time.Time{} }},
		{"missing account", func(e *ledger.Event) { e.AccountID = "" }},
		{"unknown event type", func(e *ledger.Event) { e.EventType = "TRANSFER" }},
		{"invalid direction", func(e *ledger.Event) { e.Direction = "SIDEWAYS" }},
		{"zero amount", func(e *ledger.Event) { e.Amount = dec("0") }},
		{"unknown currency", func(e *ledger.Event) { e.Currency = "XXZ" }},
		{"sub-cent amount", func(e *ledger.Event) { e.Amount = dec("10.001") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			res, err := ledger.NewTransformer().Transform(context.Background(), []ledger.Event{e})
			require.NoError(t, err)
			assert.NotEmpty(t, res.Rejected)
			assert.Empty(t, res.Entries)
		})
	}
}

func TestTransform_ZeroDecimalCurrency(t *testing.T) {
	e := event("evt-jpy", at(1, 9, 0), "acct-J", ledger.EventDeposit, ledger.Credit, "1000.5")
	e.Currency = "JPY"

	res, err := ledger.NewTransformer().Transform(context.Background(), []ledger.Event{e})
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Message, "decimal places")
}

func TestTransform_DuplicateEventIDRejectsLaterOccurrence(t *testing.T) {
	first := event("evt-1", at(1, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "100")
	dup := event("evt-1", at(1, 11, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "100")

	res, err := ledger.NewTransformer().Transform(context.Background(), []ledger.Event{dup, first})
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, first.EventTS, res.Accepted[0].EventTS)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "duplicate event_id", res.Rejected[0].Message)
}

func TestTransform_RejectedRecordDoesNotClaimEventID(t *testing.T) {
	// GIVEN: A malformed record followed by a valid event with the same id
	bad := event("x", at(1, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "-1")
	good := event("x", at(2, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "50")

	// WHEN: Transforming
	res, err := ledger.NewTransformer().Transform(context.Background(), []ledger.Event{good, bad})
	require.NoError(t, err)

	// THEN: Only the malformed record is rejected
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, good.EventTS, res.Accepted[0].EventTS)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Message, "non-positive amount")
	assert.Len(t, res.Entries, 2)
}

func TestTransform_CrossCurrencyPostingRejected(t *testing.T) {
	usd := event("evt-1", at(1, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "100")
	eur := event("evt-2", at(2, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "50")
	eur.Currency = "EUR"

	res, err := ledger.NewTransformer().Transform(context.Background(), []ledger.Event{usd, eur})
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ledger.EventID("evt-2"), res.Rejected[0].EventID)
	assert.Contains(t, res.Rejected[0].Message, "account currency USD")
}

func TestTransform_ManyEventsAcrossWorkers(t *testing.T) {
	var events []ledger.Event
	for i := 0; i < 2000; i++ {
		events = append(events, event(
			fmt.Sprintf("evt-%04d", i), at(1+i%28, i%24, i%60),
			fmt.Sprintf("acct-%02d", i%17), ledger.EventDeposit, ledger.Credit, "1.25"))
	}
	tr := ledger.NewTransformer()
	tr.Workers = 4

	res, err := tr.Transform(context.Background(), events)
	require.NoError(t, err)
	assert.Empty(t, res.Rejected)
	assert.Len(t, res.Entries, 4000)
}

func TestTransform_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.NewTransformer().Transform(ctx, scenarioEvents())
	assert.ErrorIs(t, err, context.Canceled)
}

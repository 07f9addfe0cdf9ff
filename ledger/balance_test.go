package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
)

func derive(t *testing.T, events []ledger.Event) (ledger.TransformResult, []ledger.AccountBalance) {
	t.Helper()
	tr, err := ledger.NewTransformer().Transform(context.Background(), events)
	require.NoError(t, err)
	balances, err := ledger.NewBalanceEngine().Derive(context.Background(), tr.Entries)
	require.NoError(t, err)
	return tr, balances
}

func TestDerive_ScenarioBalances(t *testing.T) {
	// GIVEN: Deposit 100, purchase 40 and fee 2 next day, refund 40 after
	// WHEN: Deriving daily balances
	// THEN: Customer balances are 100, 58, 98

	_, balances := derive(t, scenarioEvents())
	acct := customerBalances(balances, "acct-A")
	require.Len(t, acct, 3)

	assert.Equal(t, day(1), acct[0].Date)
	assert.True(t, acct[0].Balance.Equal(dec("100")))
	assert.True(t, acct[1].NetChange.Equal(dec("-42")))
	assert.True(t, acct[1].Balance.Equal(dec("58")))
	assert.True(t, acct[2].Balance.Equal(dec("98")))
	assert.Equal(t, "USD", acct[2].Currency)
}

func TestDerive_OrderedByAccountThenDate(t *testing.T) {
	_, balances := derive(t, scenarioEvents())
	for i := 1; i < len(balances); i++ {
		prev, cur := balances[i-1], balances[i]
		if prev.AccountID == cur.AccountID {
			assert.True(t, prev.Date.Before(cur.Date))
		} else {
			assert.Less(t, string(prev.AccountID), string(cur.AccountID))
		}
	}
}

func TestDerive_ContinuityHoldsForEveryRow(t *testing.T) {
	_, balances := derive(t, scenarioEvents())
	for id, s := range ledger.SeriesByAccount(balances) {
		prev := dec("0")
		for _, row := range s {
			assert.True(t, row.Balance.Equal(prev.Add(row.NetChange)), "account %s on %s", id, row.Date)
			prev = row.Balance
		}
	}
}

func TestDerive_IntraDayOrderDoesNotMatter(t *testing.T) {
	// GIVEN: A debit before a credit on the same day
	events := []ledger.Event{
		event("evt-1", at(1, 8, 0), "acct-B", ledger.EventPurchase, ledger.Debit, "30"),
		event("evt-2", at(1, 20, 0), "acct-B", ledger.EventDeposit, ledger.Credit, "50"),
	}

	// WHEN: Deriving
	_, balances := derive(t, events)

	// THEN: One row with the aggregated net change
	acct := customerBalances(balances, "acct-B")
	require.Len(t, acct, 1)
	assert.True(t, acct[0].NetChange.Equal(dec("20")))
	assert.True(t, acct[0].Balance.Equal(dec("20")))
}

func TestBalanceSeries_NoDriftWithoutActivity(t *testing.T) {
	// GIVEN: Activity on days 1, 2 and 3 only
	_, balances := derive(t, scenarioEvents())
	series := ledger.SeriesByAccount(balances)["acct-A"]

	// THEN: Balances before, between and after activity
	assert.True(t, series.At(ledger.NewDate(2025, time.February, 28)).IsZero())
	assert.True(t, series.At(day(2)).Equal(dec("58")))
	assert.True(t, series.At(day(10)).Equal(series.At(day(3))))
	assert.True(t, series.At(day(31)).Equal(dec("98")))
	assert.True(t, series.Closing().Equal(dec("98")))
}

func TestDerive_FillGapsCarriesBalance(t *testing.T) {
	// GIVEN: Deposits on days 1 and 4
	events := []ledger.Event{
		event("evt-1", at(1, 9, 0), "acct-C", ledger.EventDeposit, ledger.Credit, "10"),
		event("evt-2", at(4, 9, 0), "acct-C", ledger.EventDeposit, ledger.Credit, "5"),
	}
	tr, err := ledger.NewTransformer().Transform(context.Background(), events)
	require.NoError(t, err)

	// WHEN: Deriving with gap filling
	engine := ledger.NewBalanceEngine()
	engine.FillGaps = true
	balances, err := engine.Derive(context.Background(), tr.Entries)
	require.NoError(t, err)

	// THEN: Days 2 and 3 carry the day 1 balance with zero net change
	acct := customerBalances(balances, "acct-C")
	require.Len(t, acct, 4)
	for i, want := range []string{"10", "10", "10", "15"} {
		assert.Equal(t, day(i+1), acct[i].Date)
		assert.True(t, acct[i].Balance.Equal(dec(want)), "day %d", i+1)
	}
	assert.True(t, acct[1].NetChange.IsZero())
}

func TestDailyNetChange_SignsPostings(t *testing.T) {
	tr, _ := derive(t, scenarioEvents())
	net := ledger.DailyNetChange(tr.Entries)

	assert.True(t, net["acct-A"][day(1)].Equal(dec("100")))
	assert.True(t, net["acct-A"][day(2)].Equal(dec("-42")))
	assert.True(t, net["contra:funding:USD"][day(1)].Equal(dec("-100")))
}

func TestDerive_EmptyLedger(t *testing.T) {
	balances, err := ledger.NewBalanceEngine().Derive(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

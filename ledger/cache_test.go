package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/ledger/store"
)

func TestBalanceCache_MatchesRecomputation(t *testing.T) {
	// GIVEN: Published tables for the scenario
	ctx := context.Background()
	res, err := newTestPipeline().Run(ctx, scenarioEvents())
	require.NoError(t, err)
	mem := store.NewMemory()
	require.NoError(t, mem.Publish(ctx, res.Tables))

	cache := ledger.NewBalanceCache(mem)
	cache.Invalidate(res.Tables.Fingerprint)

	// WHEN/THEN: Cached lookups equal the derived series
	series := ledger.SeriesByAccount(res.Tables.DailyBalances)["acct-A"]
	for d := 0; d <= 6; d++ {
		got, err := cache.BalanceAt(ctx, "acct-A", day(1).AddDays(d-1))
		require.NoError(t, err)
		assert.True(t, got.Equal(series.At(day(1).AddDays(d-1))), "day offset %d", d)
	}
}

func TestBalanceCache_InvalidatedOnPublication(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	cache := ledger.NewBalanceCache(mem)

	first, err := newTestPipeline().Run(ctx, scenarioEvents())
	require.NoError(t, err)
	require.NoError(t, mem.Publish(ctx, first.Tables))
	cache.Invalidate(first.Tables.Fingerprint)

	bal, err := cache.BalanceAt(ctx, "acct-A", day(3))
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("98")))

	// A new batch adds a deposit on day 3
	events := append(scenarioEvents(),
		event("evt-5", at(3, 18, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "2"))
	second, err := newTestPipeline().Run(ctx, events)
	require.NoError(t, err)
	require.NoError(t, mem.Publish(ctx, second.Tables))
	cache.Invalidate(second.Tables.Fingerprint)

	bal, err = cache.BalanceAt(ctx, "acct-A", day(3))
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("100")))
	assert.Equal(t, second.Tables.Fingerprint, cache.Generation())
}

func TestBalanceCache_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	res, err := newTestPipeline().Run(ctx, scenarioEvents())
	require.NoError(t, err)
	require.NoError(t, mem.Publish(ctx, res.Tables))

	_, err = ledger.NewBalanceCache(mem).BalanceAt(ctx, "acct-Z", day(1))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestBalanceCache_NothingPublished(t *testing.T) {
	_, err := ledger.NewBalanceCache(store.NewMemory()).BalanceAt(context.Background(), "acct-A", day(1))
	assert.ErrorIs(t, err, ledger.ErrNotPublished)
}

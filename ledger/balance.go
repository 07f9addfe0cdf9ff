/*
balance.go - Daily account balance derivation

PURPOSE:
  Computes, per account, the time-ordered running balance from ledger
  postings. Balances are derived state: they are recomputed from the ledger
  on every run and never written directly.

ALGORITHM:
  1. DailyNetChange: group postings by (account, date) and sum signed
     amounts (CREDIT +, DEBIT -). All postings of a day are aggregated
     before the prefix sum, so intra-day order cannot change the result.
  2. Prefix sum over the account's dates in ascending order.

  balance(a, d) = balance(a, d-1) + net_change(a, d)

CONCURRENCY:
  Accounts are independent. Each account's series is computed by its own
  goroutine (bounded by Workers) and written into a pre-sized slot, so the
  merged output is ordered by account then date regardless of scheduling.

GAPS:
  By default only dates with postings are emitted. With FillGaps every day
  between an account's first and last posting is emitted with a zero net
  change and the carried balance.

SEE ALSO:
  - validate.go: checkContinuity re-verifies the recurrence
  - cache.go: Read-through lookup over published balances
*/
package ledger

import (
	"context"
	"runtime"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// BALANCE ENGINE
// =============================================================================

type BalanceEngine struct {
	Workers  int
	FillGaps bool
}

func NewBalanceEngine() *BalanceEngine {
	return &BalanceEngine{Workers: runtime.GOMAXPROCS(0)}
}

// accountDays holds the aggregated postings of one account.
type accountDays struct {
	Currency string
	Net      map[Date]decimal.Decimal
}

// DailyNetChange sums signed postings per account and day.
func DailyNetChange(entries []LedgerEntry) map[AccountID]map[Date]decimal.Decimal {
	out := make(map[AccountID]map[Date]decimal.Decimal)
	for _, e := range entries {
		days, ok := out[e.AccountID]
		if !ok {
			days = make(map[Date]decimal.Decimal)
			out[e.AccountID] = days
		}
		d := e.Date()
		days[d] = days[d].Add(e.Signed())
	}
	return out
}

// Derive computes the balance series of every account, ordered by account
// then date.
func (b *BalanceEngine) Derive(ctx context.Context, entries []LedgerEntry) ([]AccountBalance, error) {
	partitions := partitionByAccount(entries)

	accounts := make([]AccountID, 0, len(partitions))
	for id := range partitions {
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	series := make([][]AccountBalance, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(b.Workers))
	for i, id := range accounts {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			series[i] = PrefixSum(id, partitions[id].Currency, partitions[id].Net, b.FillGaps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, s := range series {
		total += len(s)
	}
	out := make([]AccountBalance, 0, total)
	for _, s := range series {
		out = append(out, s...)
	}
	return out, nil
}

func partitionByAccount(entries []LedgerEntry) map[AccountID]*accountDays {
	parts := make(map[AccountID]*accountDays)
	for _, e := range entries {
		p, ok := parts[e.AccountID]
		if !ok {
			p = &accountDays{Currency: e.Currency, Net: make(map[Date]decimal.Decimal)}
			parts[e.AccountID] = p
		}
		d := e.Date()
		p.Net[d] = p.Net[d].Add(e.Signed())
	}
	return parts
}

// PrefixSum turns daily net changes of one account into its balance series.
func PrefixSum(account AccountID, currency string, net map[Date]decimal.Decimal, fillGaps bool) []AccountBalance {
	dates := make([]Date, 0, len(net))
	for d := range net {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]AccountBalance, 0, len(dates))
	balance := decimal.Zero
	for i, d := range dates {
		if fillGaps && i > 0 {
			for gap := dates[i-1].AddDays(1); gap.Before(d); gap = gap.AddDays(1) {
				out = append(out, AccountBalance{
					AccountID: account,
					Date:      gap,
					Currency:  currency,
					NetChange: decimal.Zero,
					Balance:   balance,
				})
			}
		}
		balance = balance.Add(net[d])
		out = append(out, AccountBalance{
			AccountID: account,
			Date:      d,
			Currency:  currency,
			NetChange: net[d],
			Balance:   balance,
		})
	}
	return out
}

// =============================================================================
// BALANCE SERIES - Point lookups
// =============================================================================

// BalanceSeries is the date-ordered balance history of one account.
type BalanceSeries []AccountBalance

// At returns the balance at the end of d. Dates without postings carry the
// previous balance; dates before the first posting have a zero balance.
func (s BalanceSeries) At(d Date) decimal.Decimal {
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(d) })
	if i == 0 {
		return decimal.Zero
	}
	return s[i-1].Balance
}

// Closing returns the last balance of the series.
func (s BalanceSeries) Closing() decimal.Decimal {
	if len(s) == 0 {
		return decimal.Zero
	}
	return s[len(s)-1].Balance
}

// SeriesByAccount splits an account-then-date ordered table into series.
func SeriesByAccount(balances []AccountBalance) map[AccountID]BalanceSeries {
	out := make(map[AccountID]BalanceSeries)
	for _, b := range balances {
		out[b.AccountID] = append(out[b.AccountID], b)
	}
	return out
}

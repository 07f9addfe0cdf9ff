/*
revenue.go - Monthly revenue facts

PURPOSE:
  Aggregates validated postings into period-level revenue metrics. The
  aggregator only runs on a ledger whose integrity report has no fatal
  violations.

DEFINITIONS (customer-side PRIMARY legs only):
  gross_revenue = sum of PURCHASE amounts in the month
  refunds       = sum of REFUND amounts in the month
  fee_revenue   = sum of FEE amounts in the month
  net_revenue   = gross_revenue - refunds

  DEPOSIT and INVEST do not contribute. A month with only deposits still
  yields a row with zero metrics so every active month is reported.

SEE ALSO:
  - validate.go: Produces the report gating aggregation
*/
package ledger

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Aggregator struct {
	Workers int
}

func NewAggregator() *Aggregator {
	return &Aggregator{Workers: runtime.GOMAXPROCS(0)}
}

type periodKey struct {
	Period   Month
	Currency string
}

// Aggregate computes monthly revenue ordered by period then currency.
// It returns ErrFatalViolations when report is nil or blocks publication.
func (a *Aggregator) Aggregate(ctx context.Context, entries []LedgerEntry, report *Report) ([]MonthlyRevenue, error) {
	if report == nil {
		return nil, fmt.Errorf("aggregate without validation report: %w", ErrFatalViolations)
	}
	if report.HasFatal() {
		return nil, &FatalError{Report: report}
	}

	groups := groupByPeriod(entries)
	keys := make([]periodKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Period != keys[j].Period {
			return keys[i].Period.Before(keys[j].Period)
		}
		return keys[i].Currency < keys[j].Currency
	})

	out := make([]MonthlyRevenue, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(a.Workers))
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = SumPeriod(k.Period, k.Currency, groups[k])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// groupByPeriod buckets customer-side postings by (month, currency).
func groupByPeriod(entries []LedgerEntry) map[periodKey][]LedgerEntry {
	groups := make(map[periodKey][]LedgerEntry)
	for _, e := range entries {
		if e.Leg != LegPrimary {
			continue
		}
		k := periodKey{Period: e.Date().Month(), Currency: e.Currency}
		groups[k] = append(groups[k], e)
	}
	return groups
}

// SumPeriod computes the metrics of one period from its postings.
func SumPeriod(period Month, currency string, entries []LedgerEntry) MonthlyRevenue {
	r := MonthlyRevenue{
		Period:       period,
		Currency:     currency,
		GrossRevenue: decimal.Zero,
		Refunds:      decimal.Zero,
		FeeRevenue:   decimal.Zero,
	}
	for _, e := range entries {
		if e.Leg != LegPrimary {
			continue
		}
		switch e.EventType {
		case EventPurchase:
			r.GrossRevenue = r.GrossRevenue.Add(e.Amount)
		case EventRefund:
			r.Refunds = r.Refunds.Add(e.Amount)
		case EventFee:
			r.FeeRevenue = r.FeeRevenue.Add(e.Amount)
		}
	}
	r.NetRevenue = r.GrossRevenue.Sub(r.Refunds)
	return r
}

// FactTransactions selects the customer-side postings of revenue-relevant
// event types, in ledger order.
func FactTransactions(entries []LedgerEntry) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(entries)/2)
	for _, e := range entries {
		if e.Leg == LegPrimary && e.EventType.IsFact() {
			out = append(out, e)
		}
	}
	return out
}

// String renders a revenue row for logs and CLI output.
func (r MonthlyRevenue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s gross=%s refunds=%s fees=%s net=%s",
		r.Period, r.Currency, r.GrossRevenue, r.Refunds, r.FeeRevenue, r.NetRevenue)
	return b.String()
}

package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY REPORTS - Reconciliation views over the derived tables
// =============================================================================

// TypeTotal is the count and sum of customer-side postings of one event type
// and posting side.
type TypeTotal struct {
	EventType   EventType
	PostingType Direction
	Currency    string
	Count       int
	Total       decimal.Decimal
}

// EventTypeTotals groups PRIMARY legs by (event_type, posting_type, currency).
func EventTypeTotals(entries []LedgerEntry) []TypeTotal {
	type key struct {
		t   EventType
		p   Direction
		cur string
	}
	totals := make(map[key]*TypeTotal)
	for _, e := range entries {
		if e.Leg != LegPrimary {
			continue
		}
		k := key{e.EventType, e.PostingType, e.Currency}
		t, ok := totals[k]
		if !ok {
			t = &TypeTotal{EventType: e.EventType, PostingType: e.PostingType, Currency: e.Currency, Total: decimal.Zero}
			totals[k] = t
		}
		t.Count++
		t.Total = t.Total.Add(e.Amount)
	}

	out := make([]TypeTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		if out[i].PostingType != out[j].PostingType {
			return out[i].PostingType < out[j].PostingType
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

// AccountClosing is the last known balance of one account.
type AccountClosing struct {
	AccountID AccountID
	Date      Date
	Balance   decimal.Decimal
}

// BalanceSummary describes the closing balances of customer accounts in
// one currency.
type BalanceSummary struct {
	Currency string
	Accounts int
	Min      decimal.Decimal
	Max      decimal.Decimal
	Avg      decimal.Decimal
	Lowest   []AccountClosing
	Highest  []AccountClosing
}

// SummarizeBalances reports closing balance statistics per currency,
// ignoring contra accounts. Lowest and Highest hold at most n accounts.
func SummarizeBalances(balances []AccountBalance, n int) []BalanceSummary {
	byCurrency := make(map[string][]AccountClosing)
	for id, s := range SeriesByAccount(balances) {
		if IsContraAccount(id) || len(s) == 0 {
			continue
		}
		last := s[len(s)-1]
		byCurrency[last.Currency] = append(byCurrency[last.Currency], AccountClosing{
			AccountID: id,
			Date:      last.Date,
			Balance:   last.Balance,
		})
	}

	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	out := make([]BalanceSummary, 0, len(currencies))
	for _, c := range currencies {
		closings := byCurrency[c]
		sort.Slice(closings, func(i, j int) bool {
			if !closings[i].Balance.Equal(closings[j].Balance) {
				return closings[i].Balance.LessThan(closings[j].Balance)
			}
			return closings[i].AccountID < closings[j].AccountID
		})

		sum := decimal.Zero
		for _, a := range closings {
			sum = sum.Add(a.Balance)
		}
		k := max(0, min(n, len(closings)))
		highest := make([]AccountClosing, 0, k)
		for i := len(closings) - 1; i >= len(closings)-k; i-- {
			highest = append(highest, closings[i])
		}
		out = append(out, BalanceSummary{
			Currency: c,
			Accounts: len(closings),
			Min:      closings[0].Balance,
			Max:      closings[len(closings)-1].Balance,
			Avg:      sum.DivRound(decimal.NewFromInt(int64(len(closings))), 2),
			Lowest:   append([]AccountClosing(nil), closings[:k]...),
			Highest:  highest,
		})
	}
	return out
}

package ledger_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerone/warehouse/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func event(id string, ts time.Time, account string, t ledger.EventType, d ledger.Direction, amount string) ledger.Event {
	return ledger.Event{
		EventID:   ledger.EventID(id),
		EventTS:   ts,
		UserID:    ledger.UserID("user-" + account),
		AccountID: ledger.AccountID(account),
		EventType: t,
		Direction: d,
		Amount:    dec(amount),
		Currency:  "USD",
	}
}

func withRef(e ledger.Event, ref string) ledger.Event {
	e.ReferenceID = ledger.EventID(ref)
	return e
}

// scenarioEvents is the four-event lifecycle of one customer account:
// deposit, purchase with fee, full refund.
func scenarioEvents() []ledger.Event {
	return []ledger.Event{
		event("evt-1", at(1, 9, 0), "acct-A", ledger.EventDeposit, ledger.Credit, "100"),
		event("evt-2", at(2, 10, 0), "acct-A", ledger.EventPurchase, ledger.Debit, "40"),
		withRef(event("evt-3", at(2, 10, 5), "acct-A", ledger.EventFee, ledger.Debit, "2"), "evt-2"),
		withRef(event("evt-4", at(3, 12, 0), "acct-A", ledger.EventRefund, ledger.Credit, "40"), "evt-2"),
	}
}

func day(d int) ledger.Date { return ledger.NewDate(2025, time.March, d) }

func customerBalances(balances []ledger.AccountBalance, account ledger.AccountID) []ledger.AccountBalance {
	var out []ledger.AccountBalance
	for _, b := range balances {
		if b.AccountID == account {
			out = append(out, b)
		}
	}
	return out
}

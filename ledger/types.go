/*
Package ledger provides the derivation pipeline of the LedgerOne warehouse.

PURPOSE:
  Turns an immutable snapshot of financial events into a canonical ledger,
  derives per-account daily balances from it, validates the financial
  integrity of both, and aggregates period-level revenue facts. Every run
  rebuilds all derived state from the snapshot; nothing is patched in place.

KEY CONCEPTS IN THIS FILE (types.go):
  - Event: An immutable upstream fact (deposit, purchase, fee, refund, invest)
  - LedgerEntry: A single CREDIT or DEBIT posting derived from one event
  - AccountBalance: Cumulative balance of an account at the end of a day
  - MonthlyRevenue: Period fact aggregated from validated postings
  - Tables: The complete derived set published by a run

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified; derived tables are replaced whole
  2. Precision: Uses decimal.Decimal for every amount and sum
  3. Determinism: Same snapshot in, byte-identical tables out
  4. Double entry: Every event posts balancing legs

USAGE:
  pipeline := ledger.NewPipeline(logger)
  result, err := pipeline.Run(ctx, events)
  if errors.Is(err, ledger.ErrFatalViolations) {
      // result.Report explains why nothing may be published
  }

SEE ALSO:
  - transform.go: Event to posting mapping
  - balance.go: Daily balance derivation
  - validate.go: Integrity checks
  - revenue.go: Monthly revenue facts
  - pipeline.go: End-to-end run
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EventID string
type AccountID string
type UserID string
type LedgerEntryID string

// =============================================================================
// EVENT TYPE / DIRECTION
// =============================================================================

type EventType string

const (
	EventDeposit  EventType = "DEPOSIT"
	EventPurchase EventType = "PURCHASE"
	EventFee      EventType = "FEE"
	EventRefund   EventType = "REFUND"
	EventInvest   EventType = "INVEST"
)

// Valid reports whether t is one of the supported event types.
func (t EventType) Valid() bool {
	switch t {
	case EventDeposit, EventPurchase, EventFee, EventRefund, EventInvest:
		return true
	}
	return false
}

// IsFact reports whether postings of this type belong in fact_transactions.
func (t EventType) IsFact() bool {
	switch t {
	case EventDeposit, EventPurchase, EventFee, EventRefund:
		return true
	}
	return false
}

// RequiresReference reports whether events of this type must link to an
// originating event.
func (t EventType) RequiresReference() bool {
	return t == EventFee || t == EventRefund
}

// ExpectedDirection returns the customer-side posting for the event type.
// INVEST has no fixed direction.
func (t EventType) ExpectedDirection() (Direction, bool) {
	switch t {
	case EventDeposit, EventRefund:
		return Credit, true
	case EventPurchase, EventFee:
		return Debit, true
	}
	return "", false
}

type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

func (d Direction) Valid() bool { return d == Credit || d == Debit }

func (d Direction) Opposite() Direction {
	if d == Credit {
		return Debit
	}
	return Credit
}

// Sign applies the posting direction to an amount: credits add, debits subtract.
func (d Direction) Sign(amount decimal.Decimal) decimal.Decimal {
	if d == Debit {
		return amount.Neg()
	}
	return amount
}

// =============================================================================
// EVENT - Immutable upstream input
// =============================================================================

type Event struct {
	EventID     EventID         `json:"event_id"`
	EventTS     time.Time       `json:"event_ts"`
	UserID      UserID          `json:"user_id"`
	AccountID   AccountID       `json:"account_id"`
	EventType   EventType       `json:"event_type"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ReferenceID EventID         `json:"reference_id,omitempty"`

	// DecodeErrors holds per-column problems found by a lenient reader
	// (column name -> reason). The transformer reports them as rejections.
	DecodeErrors map[string]string `json:"-"`
}

// =============================================================================
// LEDGER ENTRY - One posting against one account
// =============================================================================

// Leg distinguishes the customer-side posting of an event from its
// balancing posting on a system account.
type Leg string

const (
	LegPrimary Leg = "PRIMARY"
	LegContra  Leg = "CONTRA"
)

type LedgerEntry struct {
	LedgerEntryID LedgerEntryID   `json:"ledger_entry_id"`
	EventID       EventID         `json:"event_id"`
	EventTS       time.Time       `json:"event_ts"`
	UserID        UserID          `json:"user_id"`
	AccountID     AccountID       `json:"account_id"`
	EventType     EventType       `json:"event_type"`
	PostingType   Direction       `json:"posting_type"`
	Leg           Leg             `json:"leg"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ReferenceID   EventID         `json:"reference_id,omitempty"`
}

// Signed returns the amount with the posting sign applied.
func (e LedgerEntry) Signed() decimal.Decimal { return e.PostingType.Sign(e.Amount) }

// Date returns the UTC calendar day the posting belongs to.
func (e LedgerEntry) Date() Date { return DateOf(e.EventTS) }

// =============================================================================
// DERIVED STATE
// =============================================================================

// AccountBalance is the cumulative balance of an account at the end of Date.
// It is never written directly; it is derived from ledger entries.
type AccountBalance struct {
	AccountID AccountID
	Date      Date
	Currency  string
	NetChange decimal.Decimal
	Balance   decimal.Decimal
}

type MonthlyRevenue struct {
	Period       Month
	Currency     string
	GrossRevenue decimal.Decimal
	Refunds      decimal.Decimal
	FeeRevenue   decimal.Decimal
	NetRevenue   decimal.Decimal
}

// Tables is the complete set of derived tables produced by one run.
// A Tables value is published whole or not at all.
type Tables struct {
	LedgerEntries    []LedgerEntry
	FactTransactions []LedgerEntry
	DailyBalances    []AccountBalance
	MonthlyRevenue   []MonthlyRevenue
	Fingerprint      string
}

// RowCounts returns the number of rows per output table.
func (t *Tables) RowCounts() map[string]int {
	return map[string]int{
		TableLedgerEntries:    len(t.LedgerEntries),
		TableFactTransactions: len(t.FactTransactions),
		TableDailyBalances:    len(t.DailyBalances),
		TableMonthlyRevenue:   len(t.MonthlyRevenue),
	}
}

// Output table names.
const (
	TableLedgerEntries    = "ledger_entries"
	TableFactTransactions = "fact_transactions"
	TableDailyBalances    = "daily_account_balances"
	TableMonthlyRevenue   = "monthly_revenue"
)

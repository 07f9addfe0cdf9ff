/*
validate.go - Integrity validation of the derived ledger

PURPOSE:
  Runs a fixed battery of checks over ledger entries and derived balances
  and returns a structured Report. The validator never modifies its input.

CHECKS (in report order):
  schema                 Events rejected by the transformer
  row_count              Ledger has at least one posting
  posting_values         amount > 0, posting_type CREDIT|DEBIT
  posting_direction      DEPOSIT=CREDIT, PURCHASE=DEBIT, FEE=DEBIT, REFUND=CREDIT
  orphan_postings        Every entry references an accepted event
  double_entry           Credits equal debits per currency and per event
  balance_continuity     balance(d) = balance(d-1) + net_change(d)
  referential_integrity  FEE/REFUND references resolve to earlier events
  refund_limit           Cumulative refunds never exceed the purchase

REFERENCES:
  References resolve against accepted events only. A reference to an event
  the transformer rejected is dangling; a REFUND whose PURCHASE was rejected
  or is in another currency is unbounded (fatal by default).
  idempotence            Re-derivation yields the same fingerprint

SEVERITY:
  double_entry, balance_continuity and idempotence are always fatal.
  The others take their severity from the SeverityPolicy.

CONCURRENCY:
  balance_continuity runs per account in parallel. double_entry is a single
  reduction over the whole ledger.

SEE ALSO:
  - report.go: Report and CheckResult
  - policy.go: Configurable severities
*/
package ledger

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Validator struct {
	Policy  SeverityPolicy
	Workers int
}

func NewValidator(policy SeverityPolicy) *Validator {
	if policy == nil {
		policy = DefaultSeverityPolicy()
	}
	return &Validator{Policy: policy, Workers: runtime.GOMAXPROCS(0)}
}

// ValidationInput carries everything a run produced before aggregation.
type ValidationInput struct {
	// Events is the full snapshot, including rejected events.
	Events []Event
	// Accepted are the events that produced postings. When nil, Events is used.
	Accepted []Event
	Rejected []Violation
	Entries  []LedgerEntry
	Balances []AccountBalance

	// Fingerprint of Entries and Balances; Rederive recomputes it from the
	// same snapshot. A nil Rederive skips the idempotence check.
	Fingerprint string
	Rederive    func(ctx context.Context) (string, error)
}

// Validate runs the whole battery. The error is non-nil only when ctx is
// canceled or re-derivation fails; integrity findings live in the Report.
func (v *Validator) Validate(ctx context.Context, in ValidationInput) (*Report, error) {
	report := &Report{}

	accepted := in.Accepted
	if accepted == nil {
		accepted = in.Events
	}
	accepted = SortEvents(accepted)

	report.record(CheckSchema, "events conform to the input schema", v.checkSchema(in.Rejected))
	report.record(CheckRowCount, "ledger has at least one row", v.checkRowCount(in.Entries))
	report.record(CheckPostingValues, "amounts are positive and posting_type is CREDIT/DEBIT", v.checkPostingValues(in.Entries))
	report.record(CheckPostingDirection, "event types map to the expected posting_type", v.checkPostingDirection(in.Entries))
	report.record(CheckOrphanPostings, "every ledger entry references an existing event", v.checkOrphans(in.Entries, accepted))
	report.record(CheckDoubleEntry, "credits equal debits", v.checkDoubleEntry(in.Entries))

	continuity, err := v.checkContinuity(ctx, in.Entries, in.Balances)
	if err != nil {
		return nil, err
	}
	report.record(CheckBalanceContinuity, "every balance equals prior balance plus net change", continuity)

	report.record(CheckReferentialIntegrity, "FEE/REFUND references resolve to earlier events", v.checkReferences(accepted, in.Events))
	report.record(CheckRefundLimit, "cumulative refunds do not exceed the purchase amount", v.checkRefundLimit(accepted, in.Events))

	if in.Rederive == nil {
		report.skip(CheckIdempotence, "re-derivation yields identical output", "skipped: no re-derivation")
		return report, nil
	}
	idem, err := v.checkIdempotence(ctx, in)
	if err != nil {
		return nil, err
	}
	report.record(CheckIdempotence, "re-derivation yields identical output", idem)
	return report, nil
}

// =============================================================================
// CHECKS
// =============================================================================

func (v *Validator) checkSchema(rejected []Violation) []Violation {
	out := make([]Violation, 0, len(rejected))
	for _, r := range rejected {
		r.Check = CheckSchema
		r.Kind = KindSchema
		r.Severity = v.Policy.SeverityOf(RuleSchemaRejection)
		out = append(out, r)
	}
	return out
}

func (v *Validator) checkRowCount(entries []LedgerEntry) []Violation {
	if len(entries) > 0 {
		return nil
	}
	return []Violation{{
		Check:    CheckRowCount,
		Kind:     KindSchema,
		Severity: v.Policy.SeverityOf(RuleEmptyLedger),
		Message:  "ledger has no entries",
	}}
}

func (v *Validator) checkPostingValues(entries []LedgerEntry) []Violation {
	var out []Violation
	for _, e := range entries {
		var msg string
		switch {
		case !e.Amount.IsPositive():
			msg = fmt.Sprintf("non-positive amount %s", e.Amount)
		case !e.PostingType.Valid():
			msg = fmt.Sprintf("invalid posting_type %q", e.PostingType)
		case e.Currency == "":
			msg = "missing currency"
		default:
			continue
		}
		out = append(out, Violation{
			Check:         CheckPostingValues,
			Kind:          KindSchema,
			Severity:      SeverityFatal,
			Message:       msg,
			EventID:       e.EventID,
			LedgerEntryID: e.LedgerEntryID,
			AccountID:     e.AccountID,
			Date:          e.Date(),
		})
	}
	return out
}

func (v *Validator) checkPostingDirection(entries []LedgerEntry) []Violation {
	var out []Violation
	for _, e := range entries {
		if e.Leg != LegPrimary {
			continue
		}
		want, ok := e.EventType.ExpectedDirection()
		if !ok || e.PostingType == want {
			continue
		}
		out = append(out, Violation{
			Check:         CheckPostingDirection,
			Kind:          KindSchema,
			Severity:      v.Policy.SeverityOf(RulePostingDirection),
			Message:       fmt.Sprintf("%s posted as %s, expected %s", e.EventType, e.PostingType, want),
			EventID:       e.EventID,
			LedgerEntryID: e.LedgerEntryID,
			AccountID:     e.AccountID,
			Date:          e.Date(),
		})
	}
	return out
}

func (v *Validator) checkOrphans(entries []LedgerEntry, events []Event) []Violation {
	known := make(map[EventID]bool, len(events))
	for _, e := range events {
		known[e.EventID] = true
	}
	var out []Violation
	for _, e := range entries {
		if known[e.EventID] {
			continue
		}
		out = append(out, Violation{
			Check:         CheckOrphanPostings,
			Kind:          KindReferential,
			Severity:      v.Policy.SeverityOf(RuleOrphanPosting),
			Message:       "ledger entry references no existing event",
			EventID:       e.EventID,
			LedgerEntryID: e.LedgerEntryID,
			AccountID:     e.AccountID,
			Date:          e.Date(),
		})
	}
	return out
}

// checkDoubleEntry is the single serialization point of the battery.
func (v *Validator) checkDoubleEntry(entries []LedgerEntry) []Violation {
	type totals struct{ credits, debits decimal.Decimal }
	byCurrency := make(map[string]*totals)
	perEvent := make(map[EventID]decimal.Decimal)
	var eventOrder []EventID

	for _, e := range entries {
		t, ok := byCurrency[e.Currency]
		if !ok {
			t = &totals{}
			byCurrency[e.Currency] = t
		}
		switch e.PostingType {
		case Credit:
			t.credits = t.credits.Add(e.Amount)
		case Debit:
			t.debits = t.debits.Add(e.Amount)
		}
		if _, ok := perEvent[e.EventID]; !ok {
			eventOrder = append(eventOrder, e.EventID)
		}
		perEvent[e.EventID] = perEvent[e.EventID].Add(e.Signed())
	}

	var out []Violation
	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		t := byCurrency[c]
		if t.credits.Equal(t.debits) {
			continue
		}
		out = append(out, Violation{
			Check:    CheckDoubleEntry,
			Kind:     KindBalance,
			Severity: SeverityFatal,
			Message:  fmt.Sprintf("%s credits %s != debits %s", c, t.credits, t.debits),
		})
	}
	for _, id := range eventOrder {
		if net := perEvent[id]; !net.IsZero() {
			out = append(out, Violation{
				Check:    CheckDoubleEntry,
				Kind:     KindBalance,
				Severity: SeverityFatal,
				Message:  fmt.Sprintf("postings of event do not balance (net %s)", net),
				EventID:  id,
			})
		}
	}
	return out
}

func (v *Validator) checkContinuity(ctx context.Context, entries []LedgerEntry, balances []AccountBalance) ([]Violation, error) {
	net := DailyNetChange(entries)
	series := SeriesByAccount(balances)

	accountSet := make(map[AccountID]bool, len(net)+len(series))
	for id := range net {
		accountSet[id] = true
	}
	for id := range series {
		accountSet[id] = true
	}
	accounts := make([]AccountID, 0, len(accountSet))
	for id := range accountSet {
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	results := make([][]Violation, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(v.Workers))
	for i, id := range accounts {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = accountContinuity(id, net[id], series[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Violation
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// accountContinuity checks one account's series against its postings.
func accountContinuity(id AccountID, net map[Date]decimal.Decimal, series BalanceSeries) []Violation {
	var out []Violation
	fail := func(d Date, format string, args ...any) {
		out = append(out, Violation{
			Check:     CheckBalanceContinuity,
			Kind:      KindBalance,
			Severity:  SeverityFatal,
			Message:   fmt.Sprintf(format, args...),
			AccountID: id,
			Date:      d,
		})
	}

	if len(net) == 0 {
		fail(Date{}, "balance series for an account without postings")
		return out
	}

	seen := make(map[Date]bool, len(series))
	prev := decimal.Zero
	for i, row := range series {
		if i > 0 && !series[i-1].Date.Before(row.Date) {
			fail(row.Date, "dates out of order after %s", series[i-1].Date)
		}
		seen[row.Date] = true
		want := net[row.Date]
		if !row.NetChange.Equal(want) {
			fail(row.Date, "net change %s, postings sum to %s", row.NetChange, want)
		}
		if expected := prev.Add(want); !row.Balance.Equal(expected) {
			fail(row.Date, "balance %s, expected %s", row.Balance, expected)
		}
		prev = row.Balance
	}

	missing := make([]Date, 0)
	for d := range net {
		if !seen[d] {
			missing = append(missing, d)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })
	for _, d := range missing {
		fail(d, "postings on a date missing from the balance series")
	}
	return out
}

// rejectedIDs returns ids present in the snapshot but not among accepted
// events.
func rejectedIDs(accepted, snapshot []Event) map[EventID]bool {
	ok := make(map[EventID]bool, len(accepted))
	for _, e := range accepted {
		ok[e.EventID] = true
	}
	out := make(map[EventID]bool)
	for _, e := range snapshot {
		if e.EventID != "" && !ok[e.EventID] {
			out[e.EventID] = true
		}
	}
	return out
}

func (v *Validator) checkReferences(accepted, snapshot []Event) []Violation {
	byID := make(map[EventID]Event, len(accepted))
	for _, e := range accepted {
		byID[e.EventID] = e
	}
	rejected := rejectedIDs(accepted, snapshot)

	var out []Violation
	add := func(e Event, rule Rule, format string, args ...any) {
		out = append(out, Violation{
			Check:     CheckReferentialIntegrity,
			Kind:      KindReferential,
			Severity:  v.Policy.SeverityOf(rule),
			Message:   fmt.Sprintf(format, args...),
			EventID:   e.EventID,
			AccountID: e.AccountID,
			Date:      DateOf(e.EventTS),
		})
	}

	for _, e := range accepted {
		if e.ReferenceID == "" {
			if e.EventType.RequiresReference() {
				add(e, RuleMissingReference, "%s has no reference_id", e.EventType)
			}
			continue
		}
		ref, ok := byID[e.ReferenceID]
		if !ok {
			if rejected[e.ReferenceID] {
				add(e, RuleDanglingReference, "reference_id %s resolves to a rejected event", e.ReferenceID)
			} else {
				add(e, RuleDanglingReference, "reference_id %s does not resolve to an event", e.ReferenceID)
			}
			continue
		}
		if !ref.EventTS.Before(e.EventTS) {
			add(e, RuleReferenceOrder, "referenced event %s is not earlier than the referencing event", ref.EventID)
		}
		if e.EventType == EventRefund && ref.EventType != EventPurchase {
			add(e, RuleRefundTarget, "refund references a %s, not a PURCHASE", ref.EventType)
		}
	}
	return out
}

func (v *Validator) checkRefundLimit(accepted, snapshot []Event) []Violation {
	purchases := make(map[EventID]Event)
	for _, e := range accepted {
		if e.EventType == EventPurchase {
			purchases[e.EventID] = e
		}
	}
	rejected := rejectedIDs(accepted, snapshot)

	refunded := make(map[EventID]decimal.Decimal)
	var out []Violation
	add := func(e Event, rule Rule, format string, args ...any) {
		out = append(out, Violation{
			Check:     CheckRefundLimit,
			Kind:      KindReferential,
			Severity:  v.Policy.SeverityOf(rule),
			Message:   fmt.Sprintf(format, args...),
			EventID:   e.EventID,
			AccountID: e.AccountID,
			Date:      DateOf(e.EventTS),
		})
	}
	for _, e := range accepted {
		if e.EventType != EventRefund || e.ReferenceID == "" {
			continue
		}
		purchase, ok := purchases[e.ReferenceID]
		if !ok {
			if rejected[e.ReferenceID] {
				add(e, RuleRefundUnbounded, "refunded event %s was rejected, refund %s %s cannot be bounded", e.ReferenceID, e.Amount, e.Currency)
			}
			continue
		}
		if purchase.Currency != e.Currency {
			add(e, RuleRefundUnbounded, "refund currency %s differs from purchase %s currency %s", e.Currency, purchase.EventID, purchase.Currency)
			continue
		}
		total := refunded[purchase.EventID].Add(e.Amount)
		refunded[purchase.EventID] = total
		if total.GreaterThan(purchase.Amount) {
			add(e, RuleRefundOverLimit, "cumulative refunds %s exceed purchase %s amount %s", total, purchase.EventID, purchase.Amount)
		}
	}
	return out
}

func (v *Validator) checkIdempotence(ctx context.Context, in ValidationInput) ([]Violation, error) {
	again, err := in.Rederive(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-derivation failed: %w", err)
	}
	if again == in.Fingerprint {
		return nil, nil
	}
	return []Violation{{
		Check:    CheckIdempotence,
		Kind:     KindNonDeterminism,
		Severity: SeverityFatal,
		Message:  fmt.Sprintf("re-derivation fingerprint %s differs from %s", again, in.Fingerprint),
	}}, nil
}

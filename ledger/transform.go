/*
transform.go - Event to ledger posting mapping

PURPOSE:
  Maps every eligible event to its ledger postings. Malformed events are
  rejected and reported as SchemaViolations; the remaining events are still
  transformed (best effort, one bad record never aborts the batch).

POSTINGS:
  Each accepted event produces two legs of the same amount:
    PRIMARY: on the event's account, posting_type = direction
    CONTRA:  on a per-currency system account, opposite posting

  DEPOSIT   -> contra:funding:<CUR>
  PURCHASE  -> contra:merchant:<CUR>
  REFUND    -> contra:merchant:<CUR>
  FEE       -> contra:fee_revenue:<CUR>
  INVEST    -> contra:investments:<CUR>

  The legs of one event always balance, so the whole ledger balances.

IDENTIFIERS:
  ledger_entry_id is a UUIDv5 of (event_id, leg). Re-running on the same
  snapshot yields the same ids.

ORDERING:
  Events are processed in canonical order (event_ts, event_id). Duplicate
  event ids and account currency are resolved in that order, so the input
  order of the snapshot never changes the output. An event id is taken by
  the first accepted occurrence; rejected records do not claim it.

SEE ALSO:
  - validate.go: Cross-checks the produced postings
  - balance.go: Consumes the postings
*/
package ledger

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// EntryNamespace is the UUIDv5 namespace of ledger entry ids.
var EntryNamespace = uuid.MustParse("8d3f6c1e-2b47-5a90-9c1d-4e7f2a6b8c30")

const transformChunk = 512

// ContraAccount returns the system account balancing events of type t.
func ContraAccount(t EventType, currency string) AccountID {
	var name string
	switch t {
	case EventDeposit:
		name = "funding"
	case EventPurchase, EventRefund:
		name = "merchant"
	case EventFee:
		name = "fee_revenue"
	case EventInvest:
		name = "investments"
	default:
		name = strings.ToLower(string(t))
	}
	return AccountID("contra:" + name + ":" + currency)
}

// IsContraAccount reports whether id is a system balancing account.
func IsContraAccount(id AccountID) bool {
	return strings.HasPrefix(string(id), "contra:")
}

// =============================================================================
// TRANSFORMER
// =============================================================================

type Transformer struct {
	// Workers bounds the number of concurrent validation goroutines.
	Workers int

	// Namespace seeds ledger entry ids. Defaults to EntryNamespace.
	Namespace uuid.UUID
}

func NewTransformer() *Transformer {
	return &Transformer{Workers: runtime.GOMAXPROCS(0), Namespace: EntryNamespace}
}

type TransformResult struct {
	Entries  []LedgerEntry
	Accepted []Event
	Rejected []Violation
}

// Transform maps events to postings. The returned error is only non-nil
// when ctx is canceled; data problems are returned in Rejected.
func (t *Transformer) Transform(ctx context.Context, events []Event) (TransformResult, error) {
	ordered := SortEvents(events)

	// 1. Per-event checks are independent of each other.
	problems := make([][]string, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(t.Workers))
	for start := 0; start < len(ordered); start += transformChunk {
		start := start
		end := min(start+transformChunk, len(ordered))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				problems[i] = checkEvent(ordered[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TransformResult{}, err
	}

	// 2. Cross-event checks need the canonical order.
	var (
		res             TransformResult
		seen            = make(map[EventID]bool, len(ordered))
		accountCurrency = make(map[AccountID]string)
	)
	for i, e := range ordered {
		reasons := problems[i]
		if len(reasons) == 0 {
			if seen[e.EventID] {
				reasons = append(reasons, "duplicate event_id")
			} else if cur, ok := accountCurrency[e.AccountID]; ok && cur != e.Currency {
				reasons = append(reasons, fmt.Sprintf("currency %s differs from account currency %s", e.Currency, cur))
			}
		}
		if len(reasons) > 0 {
			for _, reason := range reasons {
				res.Rejected = append(res.Rejected, Violation{
					Check:     CheckSchema,
					Kind:      KindSchema,
					Severity:  defaultSeverities[RuleSchemaRejection],
					Message:   reason,
					EventID:   e.EventID,
					AccountID: e.AccountID,
				})
			}
			continue
		}
		// Only accepted ids count; a malformed record never shadows a good one.
		seen[e.EventID] = true
		if _, ok := accountCurrency[e.AccountID]; !ok {
			accountCurrency[e.AccountID] = e.Currency
		}
		res.Accepted = append(res.Accepted, e)
	}

	// 3. Postings, in event order.
	res.Entries = make([]LedgerEntry, 0, 2*len(res.Accepted))
	for _, e := range res.Accepted {
		res.Entries = append(res.Entries, t.Postings(e)...)
	}
	return res, nil
}

// Postings returns the balanced legs of a single well-formed event.
// It is a pure function of the event.
func (t *Transformer) Postings(e Event) []LedgerEntry {
	primary := LedgerEntry{
		LedgerEntryID: t.EntryID(e.EventID, LegPrimary),
		EventID:       e.EventID,
		EventTS:       e.EventTS.UTC(),
		UserID:        e.UserID,
		AccountID:     e.AccountID,
		EventType:     e.EventType,
		PostingType:   e.Direction,
		Leg:           LegPrimary,
		Amount:        e.Amount,
		Currency:      e.Currency,
		ReferenceID:   e.ReferenceID,
	}
	contra := primary
	contra.LedgerEntryID = t.EntryID(e.EventID, LegContra)
	contra.AccountID = ContraAccount(e.EventType, e.Currency)
	contra.PostingType = e.Direction.Opposite()
	contra.Leg = LegContra
	return []LedgerEntry{primary, contra}
}

// EntryID derives the stable id of one leg of an event.
func (t *Transformer) EntryID(eventID EventID, leg Leg) LedgerEntryID {
	ns := t.Namespace
	if ns == uuid.Nil {
		ns = EntryNamespace
	}
	return LedgerEntryID(uuid.NewSHA1(ns, []byte(string(eventID)+"/"+string(leg))).String())
}

// checkEvent returns every schema problem of a single event.
func checkEvent(e Event) []string {
	var reasons []string
	if e.EventID == "" {
		reasons = append(reasons, "missing event_id")
	}
	if msg, ok := e.DecodeErrors["event_ts"]; ok {
		reasons = append(reasons, msg)
	} else if e.EventTS.IsZero() {
		reasons = append(reasons, "missing event_ts")
	}
	if e.UserID == "" {
		reasons = append(reasons, "missing user_id")
	}
	if e.AccountID == "" {
		reasons = append(reasons, "missing account_id")
	}
	switch {
	case e.EventType == "":
		reasons = append(reasons, "missing event_type")
	case !e.EventType.Valid():
		reasons = append(reasons, fmt.Sprintf("unrecognized event_type %q", e.EventType))
	}
	if !e.Direction.Valid() {
		reasons = append(reasons, fmt.Sprintf("invalid direction %q", e.Direction))
	}
	amountErr, badAmount := e.DecodeErrors["amount"]
	switch {
	case badAmount:
		reasons = append(reasons, amountErr)
	case !e.Amount.IsPositive():
		reasons = append(reasons, fmt.Sprintf("non-positive amount %s", e.Amount))
	}
	cur := money.GetCurrency(e.Currency)
	if cur == nil {
		reasons = append(reasons, fmt.Sprintf("unknown currency %q", e.Currency))
	} else if e.Amount.IsPositive() && !e.Amount.Equal(e.Amount.Round(int32(cur.Fraction))) {
		reasons = append(reasons, fmt.Sprintf("amount %s exceeds %d decimal places of %s", e.Amount, cur.Fraction, e.Currency))
	}
	return reasons
}

// SortEvents returns a copy of events in canonical order.
func SortEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return compareEvents(out[i], out[j]) < 0 })
	return out
}

func compareEvents(a, b Event) int {
	if c := a.EventTS.Compare(b.EventTS); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.EventID), string(b.EventID)); c != 0 {
		return c
	}
	// Identical keys only happen for duplicates; order them by content so the
	// kept occurrence does not depend on snapshot order.
	return strings.Compare(eventKey(a), eventKey(b))
}

func eventKey(e Event) string {
	return strings.Join([]string{
		string(e.UserID), string(e.AccountID), string(e.EventType), string(e.Direction),
		e.Amount.String(), e.Currency, string(e.ReferenceID),
	}, "|")
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

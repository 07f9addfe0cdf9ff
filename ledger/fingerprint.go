package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"time"
)

// Fingerprint returns a SHA-256 digest of the canonical text form of the
// derived tables. Equal fingerprints mean row-for-row identical tables.
// A nil slice contributes nothing.
func Fingerprint(entries []LedgerEntry, balances []AccountBalance, revenue []MonthlyRevenue) string {
	h := sha256.New()
	writeEntries(h, TableLedgerEntries, entries)
	writeBalances(h, balances)
	writeRevenue(h, revenue)
	return hex.EncodeToString(h.Sum(nil))
}

// TablesFingerprint fingerprints a complete derived set, fact table included.
func TablesFingerprint(t *Tables) string {
	h := sha256.New()
	writeEntries(h, TableLedgerEntries, t.LedgerEntries)
	writeEntries(h, TableFactTransactions, t.FactTransactions)
	writeBalances(h, t.DailyBalances)
	writeRevenue(h, t.MonthlyRevenue)
	return hex.EncodeToString(h.Sum(nil))
}

func writeEntries(h hash.Hash, table string, entries []LedgerEntry) {
	fmt.Fprintf(h, "#%s %d\n", table, len(entries))
	for _, e := range entries {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
			e.LedgerEntryID, e.EventID, e.EventTS.UTC().Format(time.RFC3339Nano),
			e.UserID, e.AccountID, e.EventType, e.PostingType, e.Leg,
			e.Amount.String(), e.Currency, e.ReferenceID)
	}
}

func writeBalances(h hash.Hash, balances []AccountBalance) {
	fmt.Fprintf(h, "#%s %d\n", TableDailyBalances, len(balances))
	for _, b := range balances {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s\n", b.AccountID, b.Date, b.Currency, b.NetChange.String(), b.Balance.String())
	}
}

func writeRevenue(h hash.Hash, revenue []MonthlyRevenue) {
	fmt.Fprintf(h, "#%s %d\n", TableMonthlyRevenue, len(revenue))
	for _, r := range revenue {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s\n", r.Period, r.Currency,
			r.GrossRevenue.String(), r.Refunds.String(), r.FeeRevenue.String(), r.NetRevenue.String())
	}
}

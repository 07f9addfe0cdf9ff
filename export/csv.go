package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ledgerone/warehouse/ledger"
)

// TableNames lists the tables WriteTableCSV accepts, in publication order.
func TableNames() []string {
	return []string{
		ledger.TableLedgerEntries,
		ledger.TableFactTransactions,
		ledger.TableDailyBalances,
		ledger.TableMonthlyRevenue,
	}
}

// WriteTableCSV writes one published table with a header row.
func WriteTableCSV(w io.Writer, tables *ledger.Tables, table string) error {
	if tables == nil {
		return ledger.ErrNotPublished
	}

	var (
		header []string
		rows   [][]string
	)
	switch table {
	case ledger.TableLedgerEntries:
		header, rows = entryHeader, entryRows(tables.LedgerEntries)
	case ledger.TableFactTransactions:
		header, rows = entryHeader, entryRows(tables.FactTransactions)
	case ledger.TableDailyBalances:
		header, rows = balanceHeader, balanceRows(tables.DailyBalances)
	case ledger.TableMonthlyRevenue:
		header, rows = revenueHeader, revenueRows(tables.MonthlyRevenue)
	default:
		return fmt.Errorf("unknown table %q", table)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

/*
Package export renders published tables and integrity reports for people
outside the warehouse: XLSX workbooks, a PDF report and CSV files.

SEE ALSO:
  - api/handlers.go: /api/export endpoints
  - cmd/ledgerctl: export subcommand
*/
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/ledgerone/warehouse/ledger"
)

// Sheet names of the workbook.
const (
	SheetSummary = "summary"
	SheetChecks  = "checks"
)

var entryHeader = []string{
	"ledger_entry_id", "event_id", "event_ts", "user_id", "account_id",
	"event_type", "posting_type", "leg", "amount", "currency", "reference_id",
}

var balanceHeader = []string{"account_id", "date", "currency", "net_change", "balance"}

var revenueHeader = []string{"period", "currency", "gross_revenue", "refunds", "fee_revenue", "net_revenue"}

// BuildWorkbook renders every published table plus the integrity checks of
// the run that produced them. Amounts are written as exact decimal text.
func BuildWorkbook(tables *ledger.Tables, report *ledger.Report) ([]byte, error) {
	if tables == nil {
		return nil, ledger.ErrNotPublished
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	counts := tables.RowCounts()
	summary := [][]any{
		{"LedgerOne published tables"},
		{},
		{"Fingerprint", tables.Fingerprint},
		{ledger.TableLedgerEntries, counts[ledger.TableLedgerEntries]},
		{ledger.TableFactTransactions, counts[ledger.TableFactTransactions]},
		{ledger.TableDailyBalances, counts[ledger.TableDailyBalances]},
		{ledger.TableMonthlyRevenue, counts[ledger.TableMonthlyRevenue]},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return nil, err
	}

	if err := writeSheet(f, ledger.TableLedgerEntries, entryHeader, entryRows(tables.LedgerEntries)); err != nil {
		return nil, err
	}
	if err := writeSheet(f, ledger.TableFactTransactions, entryHeader, entryRows(tables.FactTransactions)); err != nil {
		return nil, err
	}
	if err := writeSheet(f, ledger.TableDailyBalances, balanceHeader, balanceRows(tables.DailyBalances)); err != nil {
		return nil, err
	}
	if err := writeSheet(f, ledger.TableMonthlyRevenue, revenueHeader, revenueRows(tables.MonthlyRevenue)); err != nil {
		return nil, err
	}
	if report != nil {
		if err := writeSheet(f, SheetChecks, []string{"check", "passed", "violations", "details"}, checkRows(report)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	out := make([][]any, 0, len(rows)+1)
	out = append(out, stringsToAny(header))
	for _, r := range rows {
		out = append(out, stringsToAny(r))
	}
	return writeRows(f, sheet, out)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// =============================================================================
// ROW RENDERING - Shared with csv.go
// =============================================================================

func entryRows(entries []ledger.LedgerEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			string(e.LedgerEntryID),
			string(e.EventID),
			e.EventTS.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
			string(e.UserID),
			string(e.AccountID),
			string(e.EventType),
			string(e.PostingType),
			string(e.Leg),
			e.Amount.String(),
			e.Currency,
			string(e.ReferenceID),
		})
	}
	return rows
}

func balanceRows(balances []ledger.AccountBalance) [][]string {
	rows := make([][]string, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, []string{
			string(b.AccountID),
			b.Date.String(),
			b.Currency,
			b.NetChange.String(),
			b.Balance.String(),
		})
	}
	return rows
}

func revenueRows(revenue []ledger.MonthlyRevenue) [][]string {
	rows := make([][]string, 0, len(revenue))
	for _, r := range revenue {
		rows = append(rows, []string{
			r.Period.String(),
			r.Currency,
			r.GrossRevenue.String(),
			r.Refunds.String(),
			r.FeeRevenue.String(),
			r.NetRevenue.String(),
		})
	}
	return rows
}

func checkRows(report *ledger.Report) [][]string {
	rows := make([][]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		rows = append(rows, []string{
			c.Name,
			strconv.FormatBool(c.Passed),
			strconv.Itoa(c.Violations),
			c.Details,
		})
	}
	return rows
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Amounts are exact
  decimal strings; timestamps are RFC3339 in UTC; dates are YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/ledgerone/warehouse/ledger"
)

// =============================================================================
// TABLE ROWS
// =============================================================================

type LedgerEntryDTO struct {
	LedgerEntryID string `json:"ledger_entry_id"`
	EventID       string `json:"event_id"`
	EventTS       string `json:"event_ts"`
	UserID        string `json:"user_id"`
	AccountID     string `json:"account_id"`
	EventType     string `json:"event_type"`
	PostingType   string `json:"posting_type"`
	Leg           string `json:"leg"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

type BalanceDTO struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"`
	Currency  string `json:"currency"`
	NetChange string `json:"net_change"`
	Balance   string `json:"balance"`
}

type MonthlyRevenueDTO struct {
	Period       string `json:"period"`
	Currency     string `json:"currency"`
	GrossRevenue string `json:"gross_revenue"`
	Refunds      string `json:"refunds"`
	FeeRevenue   string `json:"fee_revenue"`
	NetRevenue   string `json:"net_revenue"`
}

// AccountBalanceDTO is a point lookup of one account.
type AccountBalanceDTO struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date,omitempty"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
}

type TypeTotalDTO struct {
	EventType   string `json:"event_type"`
	PostingType string `json:"posting_type"`
	Currency    string `json:"currency"`
	Count       int    `json:"count"`
	Total       string `json:"total"`
}

type BalanceSummaryDTO struct {
	Currency string       `json:"currency"`
	Accounts int          `json:"accounts"`
	Min      string       `json:"min"`
	Max      string       `json:"max"`
	Avg      string       `json:"avg"`
	Lowest   []BalanceDTO `json:"lowest"`
	Highest  []BalanceDTO `json:"highest"`
}

type SummaryDTO struct {
	Fingerprint string              `json:"fingerprint"`
	EventTypes  []TypeTotalDTO      `json:"event_types"`
	Balances    []BalanceSummaryDTO `json:"balances"`
}

// =============================================================================
// RUNS AND REPORTS
// =============================================================================

type CheckDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Violations  int    `json:"violations"`
	Details     string `json:"details,omitempty"`
}

type ViolationDTO struct {
	Check         string `json:"check"`
	Kind          string `json:"kind"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
	EventID       string `json:"event_id,omitempty"`
	LedgerEntryID string `json:"ledger_entry_id,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	Date          string `json:"date,omitempty"`
}

type ReportDTO struct {
	Fatal      int            `json:"fatal"`
	Warnings   int            `json:"warnings"`
	Checks     []CheckDTO     `json:"checks"`
	Violations []ViolationDTO `json:"violations"`
}

// RunDTO is a run record, with the report when it is still in memory.
type RunDTO struct {
	ledger.RunRecord
	Report *ReportDTO `json:"report,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// ScenarioDTO represents a fixture dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Events      int    `json:"events"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Run        bool   `json:"run"`
}

type LoadScenarioResponse struct {
	Scenario ScenarioDTO `json:"scenario"`
	Run      *RunDTO     `json:"run,omitempty"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLedgerEntryDTOs(entries []ledger.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = LedgerEntryDTO{
			LedgerEntryID: string(e.LedgerEntryID),
			EventID:       string(e.EventID),
			EventTS:       e.EventTS.UTC().Format(time.RFC3339Nano),
			UserID:        string(e.UserID),
			AccountID:     string(e.AccountID),
			EventType:     string(e.EventType),
			PostingType:   string(e.PostingType),
			Leg:           string(e.Leg),
			Amount:        e.Amount.String(),
			Currency:      e.Currency,
			ReferenceID:   string(e.ReferenceID),
		}
	}
	return out
}

func toBalanceDTO(b ledger.AccountBalance) BalanceDTO {
	return BalanceDTO{
		AccountID: string(b.AccountID),
		Date:      b.Date.String(),
		Currency:  b.Currency,
		NetChange: b.NetChange.String(),
		Balance:   b.Balance.String(),
	}
}

func toBalanceDTOs(balances []ledger.AccountBalance) []BalanceDTO {
	out := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		out[i] = toBalanceDTO(b)
	}
	return out
}

func toClosingDTOs(currency string, closings []ledger.AccountClosing) []BalanceDTO {
	out := make([]BalanceDTO, len(closings))
	for i, c := range closings {
		out[i] = BalanceDTO{
			AccountID: string(c.AccountID),
			Date:      c.Date.String(),
			Currency:  currency,
			Balance:   c.Balance.String(),
		}
	}
	return out
}

func toRevenueDTOs(revenue []ledger.MonthlyRevenue) []MonthlyRevenueDTO {
	out := make([]MonthlyRevenueDTO, len(revenue))
	for i, r := range revenue {
		out[i] = MonthlyRevenueDTO{
			Period:       r.Period.String(),
			Currency:     r.Currency,
			GrossRevenue: r.GrossRevenue.String(),
			Refunds:      r.Refunds.String(),
			FeeRevenue:   r.FeeRevenue.String(),
			NetRevenue:   r.NetRevenue.String(),
		}
	}
	return out
}

func toReportDTO(report *ledger.Report) *ReportDTO {
	if report == nil {
		return nil
	}
	dto := &ReportDTO{
		Fatal:      report.Count(ledger.SeverityFatal),
		Warnings:   report.Count(ledger.SeverityWarning),
		Checks:     make([]CheckDTO, len(report.Checks)),
		Violations: make([]ViolationDTO, len(report.Violations)),
	}
	for i, c := range report.Checks {
		dto.Checks[i] = CheckDTO(c)
	}
	for i, v := range report.Violations {
		vd := ViolationDTO{
			Check:         v.Check,
			Kind:          string(v.Kind),
			Severity:      string(v.Severity),
			Message:       v.Message,
			EventID:       string(v.EventID),
			LedgerEntryID: string(v.LedgerEntryID),
			AccountID:     string(v.AccountID),
		}
		if !v.Date.IsZero() {
			vd.Date = v.Date.String()
		}
		dto.Violations[i] = vd
	}
	return dto
}

func toRunDTO(run *ledger.Run) *RunDTO {
	dto := &RunDTO{RunRecord: run.Record}
	if run.Result != nil {
		dto.Report = toReportDTO(run.Result.Report)
	}
	return dto
}

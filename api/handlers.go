/*
handlers.go - HTTP API handlers for the derivation warehouse

PURPOSE:
  Exposes the published tables, pipeline runs and integrity reports via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the ledger package.

ENDPOINTS:
  Published tables (404 before the first publication):
    GET    /api/ledger-entries?account_id=   Ledger postings
    GET    /api/fact-transactions            Analytical fact table
    GET    /api/balances?account_id=         Daily account balances
    GET    /api/accounts/{id}/balance?date=  Balance at end of a date
    GET    /api/monthly-revenue              Revenue per period and currency
    GET    /api/summary?top=                 Event type totals and balance stats

  Runs:
    POST   /api/runs                         Execute the pipeline now
    GET    /api/runs?limit=                  Run history, newest first
    GET    /api/report                       Integrity report of the last run
    GET    /api/policy                       Effective severity policy

  Exports:
    GET    /api/export/xlsx                  Workbook of published tables
    GET    /api/export/report.pdf            Last run integrity report
    GET    /api/export/{table}.csv           One published table

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Nothing published yet, unknown account or table
  - 409: Run blocked by fatal violations
  - 500: Storage errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Fixture datasets
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ledgerone/warehouse/export"
	"github.com/ledgerone/warehouse/factory"
	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Runner *ledger.Runner
	Cache  *ledger.BalanceCache
	Logger zerolog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. The runner must publish into store.
func NewHandler(store *sqlite.Store, runner *ledger.Runner, cache *ledger.BalanceCache, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:  store,
		Runner: runner,
		Cache:  cache,
		Logger: logger.With().Str("component", "api").Logger(),
	}
}

// Health reports liveness and the published fingerprint, if any.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if fp, err := h.Store.PublishedFingerprint(r.Context()); err == nil {
		resp["fingerprint"] = fp
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PUBLISHED TABLES
// =============================================================================

func (h *Handler) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	account := ledger.AccountID(r.URL.Query().Get("account_id"))
	entries, err := h.Store.LedgerEntries(r.Context(), account)
	if err != nil {
		writeReadError(w, "Failed to read ledger entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

func (h *Handler) ListFactTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.FactTransactions(r.Context())
	if err != nil {
		writeReadError(w, "Failed to read fact transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	account := ledger.AccountID(r.URL.Query().Get("account_id"))
	balances, err := h.Store.DailyBalances(r.Context(), account)
	if err != nil {
		writeReadError(w, "Failed to read balances", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
}

// GetAccountBalance returns the balance at the end of ?date=, or the
// closing balance when no date is given.
func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	account := ledger.AccountID(chi.URLParam(r, "id"))

	series, err := h.Cache.Series(r.Context(), account)
	if err != nil {
		writeReadError(w, "Failed to read balance", err)
		return
	}

	resp := AccountBalanceDTO{
		AccountID: string(account),
		Currency:  series[0].Currency,
		Balance:   series.Closing().String(),
	}
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
		resp.Date = d.String()
		resp.Balance = series.At(d).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	revenue, err := h.Store.MonthlyRevenue(r.Context())
	if err != nil {
		writeReadError(w, "Failed to read monthly revenue", err)
		return
	}
	writeJSON(w, http.StatusOK, toRevenueDTOs(revenue))
}

// GetSummary returns totals per event type and closing balance statistics.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	top := 5
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid top, expected a non-negative integer", err)
			return
		}
		top = n
	}

	tables, err := h.Store.Tables(r.Context())
	if err != nil {
		writeReadError(w, "Failed to read tables", err)
		return
	}

	resp := SummaryDTO{
		Fingerprint: tables.Fingerprint,
		EventTypes:  []TypeTotalDTO{},
		Balances:    []BalanceSummaryDTO{},
	}
	for _, t := range ledger.EventTypeTotals(tables.FactTransactions) {
		resp.EventTypes = append(resp.EventTypes, TypeTotalDTO{
			EventType:   string(t.EventType),
			PostingType: string(t.PostingType),
			Currency:    t.Currency,
			Count:       t.Count,
			Total:       t.Total.String(),
		})
	}
	for _, s := range ledger.SummarizeBalances(tables.DailyBalances, top) {
		resp.Balances = append(resp.Balances, BalanceSummaryDTO{
			Currency: s.Currency,
			Accounts: s.Accounts,
			Min:      s.Min.String(),
			Max:      s.Max.String(),
			Avg:      s.Avg.String(),
			Lowest:   toClosingDTOs(s.Currency, s.Lowest),
			Highest:  toClosingDTOs(s.Currency, s.Highest),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RUNS
// =============================================================================

// TriggerRun executes the pipeline synchronously.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Runner.Execute(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, toRunDTO(run))
	case ledger.IsFatal(err):
		writeJSON(w, http.StatusConflict, toRunDTO(run))
	default:
		h.Logger.Error().Err(err).Str("run_id", run.Record.RunID).Msg("run failed")
		writeJSON(w, http.StatusInternalServerError, toRunDTO(run))
	}
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []ledger.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetReport returns the integrity report of the last run of this process.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.Runner.Last()
	if !ok || run.Result == nil {
		writeError(w, http.StatusNotFound, "No report available", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// GetPolicy returns the severity of every configurable rule.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.SeverityPolicyJSON(h.Runner.Pipeline.Validator.Policy))
}

// =============================================================================
// EXPORTS
// =============================================================================

func (h *Handler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Store.Tables(r.Context())
	if err != nil {
		writeReadError(w, "Failed to read tables", err)
		return
	}

	var report *ledger.Report
	if run, ok := h.Runner.Last(); ok && run.Result != nil && run.Record.Fingerprint == tables.Fingerprint {
		report = run.Result.Report
	}

	data, err := export.BuildWorkbook(tables, report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "ledgerone.xlsx", data)
}

func (h *Handler) ExportReportPDF(w http.ResponseWriter, r *http.Request) {
	run, ok := h.Runner.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "No report available", nil)
		return
	}

	var report *ledger.Report
	if run.Result != nil {
		report = run.Result.Report
	}
	data, err := export.BuildReportPDF(run.Record, report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}
	writeFile(w, "application/pdf", "report-"+run.Record.RunID+".pdf", data)
}

func (h *Handler) ExportTableCSV(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	known := false
	for _, name := range export.TableNames() {
		if name == table {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown table %q", table), nil)
		return
	}

	tables, err := h.Store.Tables(r.Context())
	if err != nil {
		writeReadError(w, "Failed to read tables", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteTableCSV(&buf, tables, table); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write CSV", err)
		return
	}
	writeFile(w, "text/csv", table+".csv", buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeReadError maps read errors of published tables to a status.
func writeReadError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotPublished):
		writeError(w, http.StatusNotFound, "No tables published yet", err)
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found", err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

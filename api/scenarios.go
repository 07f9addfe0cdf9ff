/*
scenarios.go - Fixture datasets for demonstrations and testing

PURPOSE:
  Provides hand-written event sets that exercise specific behaviours of
  the pipeline end to end. Loading a scenario replaces every event and
  every published table of the store.

AVAILABLE SCENARIOS:
  basic:              Deposit, purchase, fee and full refund on one account
  malformed:          basic plus rejected records (negative amount, unknown
                      type, duplicate id); still publishes
  over-refund:        Refunds of 80 and 30 against a purchase of 100; blocked
  dangling-reference: Fee pointing at an event that does not exist
  multi-month:        Two accounts, two currencies, three months

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "over-refund", "run": true}

ADDING NEW SCENARIOS:
  1. Write an events function returning the fixture
  2. Add it to the 'scenarios' slice

NOTE:
  Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerone/warehouse/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ID          string
	Name        string
	Description string
	Events      func() []ledger.Event
}

var scenarios = []scenario{
	{
		ID:          "basic",
		Name:        "Basic",
		Description: "Deposit 100, purchase 40, fee 2, full refund; balances 100/58/98",
		Events:      basicEvents,
	},
	{
		ID:          "malformed",
		Name:        "Malformed Records",
		Description: "Basic plus a negative amount, an unknown type and a duplicate id",
		Events:      malformedEvents,
	},
	{
		ID:          "over-refund",
		Name:        "Refund Over Limit",
		Description: "Refunds of 80 and 30 against a purchase of 100; publication is blocked",
		Events:      overRefundEvents,
	},
	{
		ID:          "dangling-reference",
		Name:        "Dangling Reference",
		Description: "Fee referencing an event that does not exist; warning only",
		Events:      danglingReferenceEvents,
	},
	{
		ID:          "multi-month",
		Name:        "Multi-Month, Multi-Currency",
		Description: "Two accounts in USD and EUR over January to March",
		Events:      multiMonthEvents,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

func (s scenario) dto() ScenarioDTO {
	return ScenarioDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Events:      len(s.Events()),
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.dto()
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.dto())
}

// LoadScenario resets the store, loads the fixture and optionally runs the
// pipeline on it.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Scenario not found", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.Cache.Invalidate("")

	// Fixtures may contain duplicates on purpose.
	if err := h.Store.AppendUnchecked(ctx, s.Events()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()
	h.Logger.Info().Str("scenario", s.ID).Msg("scenario loaded")

	resp := LoadScenarioResponse{Scenario: s.dto()}
	if req.Run {
		run, err := h.Runner.Execute(ctx)
		resp.Run = toRunDTO(run)
		if err != nil && !ledger.IsFatal(err) {
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all events, tables and runs.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.Cache.Invalidate("")

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// FIXTURES
// =============================================================================

func fixtureTS(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2025, month, day, hour, minute, 0, 0, time.UTC)
}

func fixtureEvent(id string, ts time.Time, account string, t ledger.EventType, dir ledger.Direction, amount, currency string) ledger.Event {
	return ledger.Event{
		EventID:   ledger.EventID(id),
		EventTS:   ts,
		UserID:    ledger.UserID("user-" + account),
		AccountID: ledger.AccountID(account),
		EventType: t,
		Direction: dir,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
	}
}

func withReference(e ledger.Event, ref string) ledger.Event {
	e.ReferenceID = ledger.EventID(ref)
	return e
}

func basicEvents() []ledger.Event {
	return []ledger.Event{
		fixtureEvent("evt-001", fixtureTS(time.March, 1, 9, 0), "acc-100", ledger.EventDeposit, ledger.Credit, "100.00", "USD"),
		fixtureEvent("evt-002", fixtureTS(time.March, 2, 10, 0), "acc-100", ledger.EventPurchase, ledger.Debit, "40.00", "USD"),
		withReference(fixtureEvent("evt-003", fixtureTS(time.March, 2, 10, 5), "acc-100", ledger.EventFee, ledger.Debit, "2.00", "USD"), "evt-002"),
		withReference(fixtureEvent("evt-004", fixtureTS(time.March, 3, 14, 30), "acc-100", ledger.EventRefund, ledger.Credit, "40.00", "USD"), "evt-002"),
	}
}

func malformedEvents() []ledger.Event {
	events := basicEvents()
	negative := fixtureEvent("evt-005", fixtureTS(time.March, 3, 15, 0), "acc-100", ledger.EventPurchase, ledger.Debit, "5.00", "USD")
	negative.Amount = negative.Amount.Neg()
	unknown := fixtureEvent("evt-006", fixtureTS(time.March, 3, 16, 0), "acc-100", ledger.EventType("CASHBACK"), ledger.Credit, "1.00", "USD")
	duplicate := fixtureEvent("evt-001", fixtureTS(time.March, 4, 9, 0), "acc-100", ledger.EventDeposit, ledger.Credit, "100.00", "USD")
	return append(events, negative, unknown, duplicate)
}

func overRefundEvents() []ledger.Event {
	return []ledger.Event{
		fixtureEvent("evt-101", fixtureTS(time.April, 1, 9, 0), "acc-200", ledger.EventDeposit, ledger.Credit, "500.00", "USD"),
		fixtureEvent("evt-102", fixtureTS(time.April, 2, 11, 0), "acc-200", ledger.EventPurchase, ledger.Debit, "100.00", "USD"),
		withReference(fixtureEvent("evt-103", fixtureTS(time.April, 3, 12, 0), "acc-200", ledger.EventRefund, ledger.Credit, "80.00", "USD"), "evt-102"),
		withReference(fixtureEvent("evt-104", fixtureTS(time.April, 4, 12, 0), "acc-200", ledger.EventRefund, ledger.Credit, "30.00", "USD"), "evt-102"),
	}
}

func danglingReferenceEvents() []ledger.Event {
	return []ledger.Event{
		fixtureEvent("evt-201", fixtureTS(time.May, 1, 9, 0), "acc-300", ledger.EventDeposit, ledger.Credit, "50.00", "USD"),
		withReference(fixtureEvent("evt-202", fixtureTS(time.May, 2, 9, 0), "acc-300", ledger.EventFee, ledger.Debit, "1.50", "USD"), "evt-999"),
	}
}

func multiMonthEvents() []ledger.Event {
	return []ledger.Event{
		fixtureEvent("evt-301", fixtureTS(time.January, 5, 8, 0), "acc-usd", ledger.EventDeposit, ledger.Credit, "1000.00", "USD"),
		fixtureEvent("evt-302", fixtureTS(time.January, 20, 13, 0), "acc-usd", ledger.EventPurchase, ledger.Debit, "250.00", "USD"),
		withReference(fixtureEvent("evt-303", fixtureTS(time.January, 20, 13, 1), "acc-usd", ledger.EventFee, ledger.Debit, "2.50", "USD"), "evt-302"),
		fixtureEvent("evt-304", fixtureTS(time.February, 3, 9, 30), "acc-usd", ledger.EventInvest, ledger.Debit, "300.00", "USD"),
		withReference(fixtureEvent("evt-305", fixtureTS(time.February, 14, 16, 0), "acc-usd", ledger.EventRefund, ledger.Credit, "50.00", "USD"), "evt-302"),
		fixtureEvent("evt-306", fixtureTS(time.March, 1, 10, 0), "acc-usd", ledger.EventPurchase, ledger.Debit, "120.00", "USD"),
		fixtureEvent("evt-311", fixtureTS(time.January, 7, 8, 0), "acc-eur", ledger.EventDeposit, ledger.Credit, "800.00", "EUR"),
		fixtureEvent("evt-312", fixtureTS(time.February, 10, 12, 0), "acc-eur", ledger.EventPurchase, ledger.Debit, "99.90", "EUR"),
		withReference(fixtureEvent("evt-313", fixtureTS(time.February, 10, 12, 1), "acc-eur", ledger.EventFee, ledger.Debit, "0.99", "EUR"), "evt-312"),
		fixtureEvent("evt-314", fixtureTS(time.March, 28, 18, 45), "acc-eur", ledger.EventPurchase, ledger.Debit, "45.00", "EUR"),
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/metrics"
	"github.com/ledgerone/warehouse/store/sqlite"
)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	cache := ledger.NewBalanceCache(store)
	runner := ledger.NewRunner(store, store, ledger.NewPipeline(zerolog.Nop()), zerolog.Nop())
	runner.Recorder = store
	runner.Cache = cache
	runner.Observer = metrics.New(reg)

	h := NewHandler(store, runner, cache, zerolog.Nop())
	return h, NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func loadScenario(t *testing.T, srv http.Handler, id string) LoadScenarioResponse {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"`+id+`","run":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[LoadScenarioResponse](t, rec)
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestTables_NotPublished(t *testing.T) {
	// GIVEN: A fresh store
	_, srv := newTestServer(t)

	// THEN: Every table read is a 404
	for _, path := range []string{
		"/api/ledger-entries",
		"/api/fact-transactions",
		"/api/balances",
		"/api/monthly-revenue",
		"/api/accounts/acc-100/balance",
		"/api/export/xlsx",
	} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestBasicScenario_PublishesTables(t *testing.T) {
	// GIVEN: The basic scenario loaded and run
	_, srv := newTestServer(t)
	resp := loadScenario(t, srv, "basic")

	// THEN: The run published all four tables
	require.NotNil(t, resp.Run)
	assert.Equal(t, ledger.RunPublished, resp.Run.Status)
	assert.Equal(t, 8, resp.Run.RowCounts[ledger.TableLedgerEntries])
	assert.Zero(t, resp.Run.Report.Fatal)

	// AND: The customer balance series is 100 / 58 / 98
	for date, want := range map[string]string{
		"2025-03-01": "100",
		"2025-03-02": "58",
		"2025-03-03": "98",
		"2025-02-28": "0",
	} {
		rec := do(t, srv, http.MethodGet, "/api/accounts/acc-100/balance?date="+date, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decode[AccountBalanceDTO](t, rec).Balance, date)
	}

	// AND: Revenue nets to zero
	rec := do(t, srv, http.MethodGet, "/api/monthly-revenue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	revenue := decode[[]MonthlyRevenueDTO](t, rec)
	require.Len(t, revenue, 1)
	assert.Equal(t, MonthlyRevenueDTO{
		Period: "2025-03", Currency: "USD",
		GrossRevenue: "40", Refunds: "40", FeeRevenue: "2", NetRevenue: "0",
	}, revenue[0])
}

func TestGetAccountBalance_Closing(t *testing.T) {
	_, srv := newTestServer(t)
	loadScenario(t, srv, "basic")

	rec := do(t, srv, http.MethodGet, "/api/accounts/acc-100/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[AccountBalanceDTO](t, rec)
	assert.Equal(t, "98", got.Balance)
	assert.Equal(t, "USD", got.Currency)
	assert.Empty(t, got.Date)
}

func TestGetAccountBalance_Errors(t *testing.T) {
	_, srv := newTestServer(t)
	loadScenario(t, srv, "basic")

	rec := do(t, srv, http.MethodGet, "/api/accounts/acc-100/balance?date=03/02/2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/accounts/nobody/balance", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLedgerEntries_FilterByAccount(t *testing.T) {
	_, srv := newTestServer(t)
	loadScenario(t, srv, "basic")

	rec := do(t, srv, http.MethodGet, "/api/ledger-entries?account_id=acc-100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]LedgerEntryDTO](t, rec)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, "acc-100", e.AccountID)
		assert.Equal(t, "PRIMARY", e.Leg)
	}
}

func TestMalformedScenario_PublishesWithWarnings(t *testing.T) {
	_, srv := newTestServer(t)
	resp := loadScenario(t, srv, "malformed")

	require.NotNil(t, resp.Run)
	assert.Equal(t, ledger.RunPublished, resp.Run.Status)
	assert.Equal(t, 7, resp.Run.Events)
	assert.Equal(t, 3, resp.Run.Rejected)
	assert.Equal(t, 3, resp.Run.Report.Warnings)
}

func TestOverRefundScenario_BlocksPublication(t *testing.T) {
	// GIVEN: Refunds of 80 and 30 against a purchase of 100
	_, srv := newTestServer(t)
	resp := loadScenario(t, srv, "over-refund")

	// THEN: The run is blocked and reports the refund limit
	require.NotNil(t, resp.Run)
	assert.Equal(t, ledger.RunBlocked, resp.Run.Status)
	require.NotNil(t, resp.Run.Report)
	assert.Equal(t, 1, resp.Run.Report.Fatal)

	var found bool
	for _, v := range resp.Run.Report.Violations {
		if v.Check == ledger.CheckRefundLimit {
			found = true
			assert.Equal(t, "evt-104", v.EventID)
		}
	}
	assert.True(t, found)

	// AND: Nothing is readable
	rec := do(t, srv, http.MethodGet, "/api/balances", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// AND: Triggering again is a conflict
	rec = do(t, srv, http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ledger.RunBlocked, decode[RunDTO](t, rec).Status)
}

func TestBlockedRunKeepsPreviousPublication(t *testing.T) {
	// GIVEN: A published basic scenario
	h, srv := newTestServer(t)
	loadScenario(t, srv, "basic")
	rec := do(t, srv, http.MethodGet, "/health", "")
	fingerprint := decode[map[string]string](t, rec)["fingerprint"]
	require.NotEmpty(t, fingerprint)

	// WHEN: An over-limit refund arrives and the pipeline runs again
	refund := overRefundEvents()[3]
	refund.ReferenceID = "evt-002"
	refund.AccountID = "acc-100"
	refund.EventTS = basicEvents()[3].EventTS.Add(1)
	require.NoError(t, h.Store.AppendEvents(context.Background(), []ledger.Event{refund}))

	rec = do(t, srv, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	// THEN: The previously published tables are still served
	rec = do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, fingerprint, decode[map[string]string](t, rec)["fingerprint"])
	rec = do(t, srv, http.MethodGet, "/api/accounts/acc-100/balance", "")
	assert.Equal(t, "98", decode[AccountBalanceDTO](t, rec).Balance)
}

func TestRunsAndReport(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	loadScenario(t, srv, "basic")
	rec = do(t, srv, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[RunDTO](t, rec)

	// Re-running the same snapshot publishes identical tables.
	rec = do(t, srv, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]ledger.RunRecord](t, rec)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, runs[0].Fingerprint, runs[1].Fingerprint)

	rec = do(t, srv, http.MethodGet, "/api/runs?limit=1", "")
	assert.Len(t, decode[[]ledger.RunRecord](t, rec), 1)

	rec = do(t, srv, http.MethodGet, "/api/runs?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[RunDTO](t, rec)
	require.NotNil(t, report.Report)
	assert.Len(t, report.Report.Checks, 10)
}

func TestGetPolicy(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/policy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	policy := decode[map[string]string](t, rec)
	assert.Equal(t, "fatal", policy["refund_over_limit"])
	assert.Equal(t, "warning", policy["dangling_reference"])
}

func TestGetSummary(t *testing.T) {
	_, srv := newTestServer(t)
	loadScenario(t, srv, "multi-month")

	rec := do(t, srv, http.MethodGet, "/api/summary?top=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[SummaryDTO](t, rec)

	assert.NotEmpty(t, summary.Fingerprint)
	require.Len(t, summary.Balances, 2)
	for _, b := range summary.Balances {
		assert.Equal(t, 1, b.Accounts)
		assert.Len(t, b.Highest, 1)
	}

	rec = do(t, srv, http.MethodGet, "/api/summary?top=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExports(t *testing.T) {
	_, srv := newTestServer(t)
	loadScenario(t, srv, "basic")

	rec := do(t, srv, http.MethodGet, "/api/export/xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ledgerone.xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = do(t, srv, http.MethodGet, "/api/export/report.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	rec = do(t, srv, http.MethodGet, "/api/export/daily_account_balances.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "account_id,date,currency,net_change,balance", lines[0])

	rec = do(t, srv, http.MethodGet, "/api/export/users.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenarios(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"dangling-reference"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[LoadScenarioResponse](t, rec).Run)

	rec = do(t, srv, http.MethodGet, "/api/scenarios/current", "")
	assert.Equal(t, "dangling-reference", decode[ScenarioDTO](t, rec).ID)

	rec = do(t, srv, http.MethodPost, "/api/scenarios/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/scenarios/current", "")
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	loadScenario(t, srv, "basic")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ledgerone_pipeline_runs_total{status="published"} 1`)
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus scrape endpoint
  /api/*                Published tables, runs, exports
  /api/scenarios/*      Fixture datasets (dev only)

SECURITY NOTE:
  No authentication middleware. Run behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured. A nil metrics
// handler serves the default Prometheus registry.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ledger-entries", h.ListLedgerEntries)
		r.Get("/fact-transactions", h.ListFactTransactions)
		r.Get("/balances", h.ListBalances)
		r.Get("/accounts/{id}/balance", h.GetAccountBalance)
		r.Get("/monthly-revenue", h.ListMonthlyRevenue)
		r.Get("/summary", h.GetSummary)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/", h.TriggerRun)
		})
		r.Get("/report", h.GetReport)
		r.Get("/policy", h.GetPolicy)

		r.Route("/export", func(r chi.Router) {
			r.Get("/xlsx", h.ExportWorkbook)
			r.Get("/report.pdf", h.ExportReportPDF)
			r.Get("/{table}.csv", h.ExportTableCSV)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

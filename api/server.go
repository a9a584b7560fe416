/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the web client
  5. identify:   Resolves X-Worker-ID to an active worker (/api only)

ROUTE GROUPS:
  /api/punches, /api/workers      Ingestion, chain audit, registration
  /api/corrections                Correction workflow
  /api/justifications             Vacation / leave approval
  /api/holidays                   Company calendar
  /api/reports                    JSON and .xlsx reports
  /api/schedules/import           Bulk worker import
  /healthz                        Liveness, no identity

SECURITY NOTE:
  X-Worker-ID is trusted as-is. Deploy behind an authenticating proxy
  that sets it.

SEE ALSO:
  - handlers.go, reports.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/punchclock/attendance"
)

// HeaderWorkerID carries the caller's worker id.
const HeaderWorkerID = "X-Worker-ID"

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.App.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderWorkerID},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.identify)

		r.Route("/punches", func(r chi.Router) {
			r.Get("/", h.ListPunches)
			r.Post("/", h.RecordPunch)
		})

		r.Route("/workers", func(r chi.Router) {
			r.Post("/", h.RegisterWorker)
			r.Get("/{id}/chain/verify", h.VerifyChain)
		})

		r.Route("/corrections", func(r chi.Router) {
			r.Post("/", h.SubmitCorrection)
			r.Get("/pending", h.ListPendingCorrections)
			r.Post("/{id}/accept", h.AcceptCorrection)
			r.Post("/{id}/reject", h.RejectCorrection)
		})

		r.Route("/justifications", func(r chi.Router) {
			r.Get("/", h.ListJustifications)
			r.Post("/", h.RequestJustification)
			r.Post("/{id}/approve", h.ApproveJustification)
			r.Post("/{id}/reject", h.RejectJustification)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/period", h.PeriodReport)
			r.Get("/company", h.CompanyReport)
			r.Get("/shifts", h.ShiftReport)
			r.Get("/payroll.xlsx", h.PayrollWorkbook)
			r.Get("/audit.xlsx", h.AuditWorkbook)
			r.Get("/mood.xlsx", h.MoodWorkbook)
		})

		r.Post("/schedules/import", h.ImportSchedules)
	})

	return r
}

// identify loads the acting worker. Inactive workers are still resolved;
// the services refuse them per capability.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderWorkerID))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+HeaderWorkerID+" header", nil)
			return
		}
		actor, err := h.App.Actor(r.Context(), attendance.WorkerID(id))
		if err != nil {
			if attendance.IsNotFound(err) {
				writeError(w, http.StatusUnauthorized, "Unknown worker", nil)
				return
			}
			writeDomainError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

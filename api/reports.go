package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/importer"
)

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// PeriodReport returns one worker's totals with the day breakdown.
// GET /api/reports/period?worker=&from=&to=
func (h *Handler) PeriodReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	target, err := h.subject(ctx, actor, r.URL.Query().Get("worker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := attendance.AuthorizeFor(actor, target, attendance.CapViewOwn, attendance.CapViewCompany); err != nil {
		writeDomainError(w, err)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	totals, err := h.App.Reports.PeriodTotals(ctx, target.ID, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodTotalsDTO(*totals, h.App.Location, true))
}

// CompanyReport returns totals for every worker of a company.
// GET /api/reports/company?company=&from=&to=
func (h *Handler) CompanyReport(w http.ResponseWriter, r *http.Request) {
	company, period, ok := h.companyPeriod(w, r)
	if !ok {
		return
	}
	totals, err := h.App.Reports.CompanyTotals(r.Context(), company, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]PeriodTotalsDTO, 0, len(totals))
	for _, t := range totals {
		dtos = append(dtos, toPeriodTotalsDTO(t, h.App.Location, false))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ShiftReport lists paired shifts for a worker or a whole company.
// GET /api/reports/shifts?worker=|company=&from=&to=
func (h *Handler) ShiftReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	scope, err := h.shiftScope(r, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	shifts, err := h.App.Reports.DayShifts(ctx, scope, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ShiftDTO, 0, len(shifts))
	for _, s := range shifts {
		dtos = append(dtos, toShiftDTO(s, h.App.Location))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PayrollWorkbook downloads the company payroll as .xlsx.
// GET /api/reports/payroll.xlsx?company=&from=&to=
func (h *Handler) PayrollWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company, period, ok := h.companyPeriod(w, r)
	if !ok {
		return
	}
	totals, err := h.App.Reports.CompanyTotals(ctx, company, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	workers, err := h.App.WorkersByID(ctx, &company)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := importer.WritePayroll(&buf, period, totals, workers); err != nil {
		writeDomainError(w, err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("payroll-%s-%s.xlsx", company, period.Start), buf.Bytes())
}

// AuditWorkbook downloads the company shift listing as .xlsx.
// GET /api/reports/audit.xlsx?company=&from=&to=
func (h *Handler) AuditWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company, period, ok := h.companyPeriod(w, r)
	if !ok {
		return
	}
	shifts, err := h.App.Reports.DayShifts(ctx, attendance.Scope{CompanyID: company}, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	workers, err := h.App.WorkersByID(ctx, &company)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := importer.WriteShifts(&buf, shifts, workers, h.App.Location); err != nil {
		writeDomainError(w, err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("audit-%s-%s.xlsx", company, period.Start), buf.Bytes())
}

// MoodWorkbook downloads the mood survey of a company as .xlsx.
// GET /api/reports/mood.xlsx?company=&from=&to=
func (h *Handler) MoodWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company, period, ok := h.companyPeriod(w, r)
	if !ok {
		return
	}
	entries, err := h.App.Reports.MoodEntries(ctx, company, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	workers, err := h.App.WorkersByID(ctx, &company)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := importer.WriteMood(&buf, entries, workers, h.App.Location); err != nil {
		writeDomainError(w, err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("mood-%s-%s.xlsx", company, period.Start), buf.Bytes())
}

// companyPeriod resolves and authorizes the company and period of a
// company-wide report. It writes the error response itself.
func (h *Handler) companyPeriod(w http.ResponseWriter, r *http.Request) (attendance.CompanyID, attendance.Period, bool) {
	actor := mustActor(r)
	company := companyParam(r, actor)
	if company == "" {
		writeError(w, http.StatusBadRequest, "company is required", nil)
		return "", attendance.Period{}, false
	}
	if err := attendance.AuthorizeCompany(actor, company, attendance.CapViewCompany); err != nil {
		writeDomainError(w, err)
		return "", attendance.Period{}, false
	}
	period, err := parsePeriod(r)
	if err != nil {
		writeDomainError(w, err)
		return "", attendance.Period{}, false
	}
	return company, period, true
}

func (h *Handler) shiftScope(r *http.Request, actor attendance.Worker) (attendance.Scope, error) {
	q := r.URL.Query()
	if c := strings.TrimSpace(q.Get("company")); c != "" {
		company := attendance.CompanyID(c)
		if err := attendance.AuthorizeCompany(actor, company, attendance.CapViewCompany); err != nil {
			return attendance.Scope{}, err
		}
		return attendance.Scope{CompanyID: company}, nil
	}
	target, err := h.subject(r.Context(), actor, q.Get("worker"))
	if err != nil {
		return attendance.Scope{}, err
	}
	if err := attendance.AuthorizeFor(actor, target, attendance.CapViewOwn, attendance.CapViewCompany); err != nil {
		return attendance.Scope{}, err
	}
	return attendance.Scope{WorkerID: target.ID}, nil
}

func writeWorkbook(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", importer.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

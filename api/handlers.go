/*
handlers.go - HTTP API handlers for the attendance system

PURPOSE:
  Exposes the attendance services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.
  Authorization happens in the services; handlers only resolve the actor.

ENDPOINTS:
  Punches:
    POST   /api/punches                       Record a live punch
    GET    /api/punches?worker&from&to        List punches
    GET    /api/workers/{id}/chain/verify     Walk a worker's hash chain

  Corrections:
    POST   /api/corrections                   Submit a correction request
    GET    /api/corrections/pending           Open requests visible to actor
    POST   /api/corrections/{id}/accept       Accept (appends a manual punch)
    POST   /api/corrections/{id}/reject       Reject

  Justifications:
    GET    /api/justifications?worker         List a worker's justifications
    POST   /api/justifications                Request vacation / leave
    POST   /api/justifications/{id}/approve
    POST   /api/justifications/{id}/reject

  Holidays:
    GET    /api/holidays?company&from&to
    POST   /api/holidays
    DELETE /api/holidays/{id}

  Workers:
    POST   /api/workers                       Register or update a worker
    POST   /api/schedules/import?company      Bulk import from .xlsx

  Reports: see reports.go

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation, hardware and chronology errors
  - 401: Missing or unknown X-Worker-ID
  - 403: Actor lacks the capability
  - 404: Resource not found
  - 409: State transition, chain conflict, duplicate
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/punchclock/app"
	"github.com/warp/punchclock/attendance"
)

// maxUploadBytes bounds photo bodies and import files.
const maxUploadBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	App *app.App
}

func NewHandler(a *app.App) *Handler {
	return &Handler{App: a}
}

type actorKey struct{}

// Actor returns the worker resolved by the identity middleware.
func Actor(ctx context.Context) (attendance.Worker, bool) {
	w, ok := ctx.Value(actorKey{}).(attendance.Worker)
	return w, ok
}

func withActor(ctx context.Context, w attendance.Worker) context.Context {
	return context.WithValue(ctx, actorKey{}, w)
}

func mustActor(r *http.Request) attendance.Worker {
	w, _ := Actor(r.Context())
	return w
}

// =============================================================================
// PUNCH HANDLERS
// =============================================================================

// RecordPunch ingests a live punch from a device.
// POST /api/punches
func (h *Handler) RecordPunch(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req PunchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	kind, err := attendance.ParsePunchKind(req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	photo, err := decodePhoto(req.Photo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid photo encoding", err)
		return
	}

	p, err := h.App.Ingestor.Punch(r.Context(), actor, attendance.IngestRequest{
		Kind:            kind,
		Latitude:        req.Latitude.Value,
		Longitude:       req.Longitude.Value,
		Photo:           photo,
		ClientTimestamp: req.ClientTimestamp,
		RemoteAddr:      clientIP(r),
		Mood:            attendance.Mood(strings.ToUpper(strings.TrimSpace(req.Mood))),
		MoodComment:     req.MoodComment,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.sendReceipt(r.Context(), actor, *p)
	writeJSON(w, http.StatusCreated, toPunchDTO(*p, h.App.Location))
}

// sendReceipt mails the punch copy. Failures never fail the punch.
func (h *Handler) sendReceipt(ctx context.Context, actor attendance.Worker, p attendance.Punch) {
	if h.App.Receipts == nil {
		return
	}
	var company *attendance.Company
	if actor.CompanyID != "" {
		c, err := h.App.Store.GetCompany(ctx, actor.CompanyID)
		if err == nil {
			company = c
		}
	}
	if err := h.App.Receipts.SendReceipt(ctx, actor, company, p); err != nil {
		h.App.Logger.Warn("receipt not sent", "worker", actor.ID, "punch", p.ID, "error", err)
	}
}

// ListPunches returns every punch (any status) of a worker in a date range.
// GET /api/punches?worker=&from=&to=
func (h *Handler) ListPunches(w http.ResponseWriter, r *http.Request) {
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

	from, to := period.Bounds(h.App.Location)
	punches, err := h.App.Store.PunchesBetween(ctx, target.ID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPunchDTOs(punches, h.App.Location))
}

// VerifyChain recomputes a worker's chain.
// GET /api/workers/{id}/chain/verify
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	target, err := h.subject(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := attendance.AuthorizeFor(actor, target, attendance.CapViewOwn, attendance.CapAuditChain); err != nil {
		writeDomainError(w, err)
		return
	}

	report, err := h.App.Reports.Audit(ctx, target.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !report.Valid {
		h.App.Logger.Error("hash chain integrity violation", "worker", target.ID, "error", report.Broken)
	}
	writeJSON(w, http.StatusOK, toChainReportDTO(*report))
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// SubmitCorrection stores a PENDING correction request.
// POST /api/corrections
func (h *Handler) SubmitCorrection(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req CorrectionRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	proposedAt, err := h.parseTime(req.ProposedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid proposed_at (use RFC3339 or YYYY-MM-DDTHH:MM)", err)
		return
	}

	in := attendance.CorrectionInput{
		WorkerID:     attendance.WorkerID(req.WorkerID),
		Kind:         attendance.CorrectionKind(strings.ToUpper(req.Kind)),
		ProposedAt:   proposedAt,
		ProposedKind: attendance.PunchKind(strings.ToUpper(req.ProposedKind)),
		Reason:       req.Reason,
	}
	if in.WorkerID == "" {
		in.WorkerID = actor.ID
	}
	if req.OriginalPunchID != "" {
		id := attendance.PunchID(req.OriginalPunchID)
		in.OriginalPunchID = &id
	}

	c, err := h.App.Corrections.Submit(r.Context(), actor, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCorrectionDTO(*c, h.App.Location))
}

// ListPendingCorrections returns the company queue for actors who may
// answer any request, otherwise the actor's own.
// GET /api/corrections/pending
func (h *Handler) ListPendingCorrections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	var (
		list []attendance.CorrectionRequest
		err  error
	)
	if actor.Role.Has(attendance.CapRespondAnyCorrection) && actor.CompanyID != "" {
		list, err = h.App.Corrections.PendingForCompany(ctx, actor.CompanyID)
	} else {
		list, err = h.App.Corrections.Pending(ctx, actor.ID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CorrectionDTO, 0, len(list))
	for _, c := range list {
		dtos = append(dtos, toCorrectionDTO(c, h.App.Location))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AcceptCorrection accepts a pending request.
// POST /api/corrections/{id}/accept
func (h *Handler) AcceptCorrection(w http.ResponseWriter, r *http.Request) {
	h.respondCorrection(w, r, attendance.DecisionAccept)
}

// RejectCorrection rejects a pending request.
// POST /api/corrections/{id}/reject
func (h *Handler) RejectCorrection(w http.ResponseWriter, r *http.Request) {
	h.respondCorrection(w, r, attendance.DecisionReject)
}

func (h *Handler) respondCorrection(w http.ResponseWriter, r *http.Request, d attendance.Decision) {
	id := attendance.CorrectionID(chi.URLParam(r, "id"))
	c, err := h.App.Corrections.Respond(r.Context(), mustActor(r), id, d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectionDTO(*c, h.App.Location))
}

// =============================================================================
// JUSTIFICATION HANDLERS
// =============================================================================

// ListJustifications returns every justification of a worker.
// GET /api/justifications?worker=
func (h *Handler) ListJustifications(w http.ResponseWriter, r *http.Request) {
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
	list, err := h.App.Store.ListJustifications(ctx, target.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]JustificationDTO, 0, len(list))
	for _, j := range list {
		dtos = append(dtos, toJustificationDTO(j))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RequestJustification stores a PENDING absence range.
// POST /api/justifications
func (h *Handler) RequestJustification(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req JustificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := attendance.ParseDate(req.Start)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	end, err := attendance.ParseDate(req.End)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	in := attendance.JustificationInput{
		WorkerID: attendance.WorkerID(req.WorkerID),
		Kind:     attendance.JustificationKind(strings.ToUpper(req.Kind)),
		Start:    start,
		End:      end,
		HalfDay:  attendance.HalfDay(strings.ToUpper(req.HalfDay)),
		Comment:  req.Comment,
	}
	if in.WorkerID == "" {
		in.WorkerID = actor.ID
	}

	j, err := h.App.Justifications.Request(r.Context(), actor, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJustificationDTO(*j))
}

// ApproveJustification POST /api/justifications/{id}/approve
func (h *Handler) ApproveJustification(w http.ResponseWriter, r *http.Request) {
	h.decideJustification(w, r, true)
}

// RejectJustification POST /api/justifications/{id}/reject
func (h *Handler) RejectJustification(w http.ResponseWriter, r *http.Request) {
	h.decideJustification(w, r, false)
}

func (h *Handler) decideJustification(w http.ResponseWriter, r *http.Request, approve bool) {
	id := attendance.JustificationID(chi.URLParam(r, "id"))
	j, err := h.App.Justifications.Decide(r.Context(), mustActor(r), id, approve)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJustificationDTO(*j))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns company and global holidays in a range.
// GET /api/holidays?company=&from=&to=
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	period, err := parsePeriod(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	company := companyParam(r, actor)

	list, err := h.App.Calendar.List(r.Context(), actor, company, period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(list))
	for _, hol := range list {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req HolidayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := attendance.ParseDate(req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	company := attendance.CompanyID(req.CompanyID)
	if company == "" {
		company = actor.CompanyID
	}

	hol, err := h.App.Calendar.Add(r.Context(), actor, company, date, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(*hol))
}

// DeleteHoliday DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	id := attendance.HolidayID(chi.URLParam(r, "id"))
	if err := h.App.Calendar.Remove(r.Context(), mustActor(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// RegisterWorker creates or updates a worker and its schedule.
// POST /api/workers
func (h *Handler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	var req CreateWorkerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	company := attendance.CompanyID(req.CompanyID)
	if company == "" {
		company = actor.CompanyID
	}
	if err := attendance.AuthorizeCompany(actor, company, attendance.CapManageWorkers); err != nil {
		writeDomainError(w, err)
		return
	}

	wk := attendance.Worker{
		ID:         attendance.WorkerID(req.ID),
		Name:       req.Name,
		NationalID: req.NationalID,
		Email:      req.Email,
		Title:      req.Title,
		Role:       attendance.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
		CompanyID:  company,
		Active:     req.Active == nil || *req.Active,
	}

	var sched *attendance.Schedule
	if req.Schedule != nil {
		start, err := attendance.ParseClockTime(req.Schedule.ExpectedStart)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		sched = &attendance.Schedule{
			Workdays:      req.Schedule.Workdays,
			ExpectedStart: start,
			DailyHours:    req.Schedule.DailyHours,
		}
	}

	saved, s, err := h.App.Workers.Register(ctx, wk, sched)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(*saved, s))
}

// ImportSchedules registers workers from an uploaded .xlsx.
// POST /api/schedules/import?company= (multipart field "file")
func (h *Handler) ImportSchedules(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing upload field \"file\"", err)
		return
	}
	defer file.Close()

	res, err := h.App.Importer.Import(r.Context(), actor, companyParam(r, actor), file)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResultDTO{Created: res.Created, Updated: res.Updated, Skipped: res.Skipped})
}

// =============================================================================
// HELPERS
// =============================================================================

// subject loads the worker a request is about, defaulting to the actor.
func (h *Handler) subject(ctx context.Context, actor attendance.Worker, id string) (attendance.Worker, error) {
	id = strings.TrimSpace(id)
	if id == "" || attendance.WorkerID(id) == actor.ID {
		return actor, nil
	}
	return h.App.Actor(ctx, attendance.WorkerID(id))
}

func (h *Handler) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, h.App.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid time %q", attendance.ErrInvalidInput, s)
}

func companyParam(r *http.Request, actor attendance.Worker) attendance.CompanyID {
	if c := strings.TrimSpace(r.URL.Query().Get("company")); c != "" {
		return attendance.CompanyID(c)
	}
	return actor.CompanyID
}

// parsePeriod reads from/to query parameters (YYYY-MM-DD, inclusive).
func parsePeriod(r *http.Request) (attendance.Period, error) {
	q := r.URL.Query()
	from, err := attendance.ParseDate(q.Get("from"))
	if err != nil {
		return attendance.Period{}, err
	}
	to, err := attendance.ParseDate(q.Get("to"))
	if err != nil {
		return attendance.Period{}, err
	}
	return attendance.NewPeriod(from, to)
}

// decodePhoto accepts a data URL ("data:image/jpeg;base64,...") or bare base64.
func decodePhoto(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

// clientIP prefers the proxy-forwarded address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

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

// writeDomainError maps attendance errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var hw *attendance.HardwareValidationError
	if errors.As(err, &hw) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Hardware validation failed", Details: err.Error(), Missing: hw.Missing})
		return
	}

	switch {
	case attendance.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, attendance.ErrSelfReview):
		writeError(w, http.StatusForbidden, "Requester cannot decide own request", err)
	case errors.Is(err, attendance.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case attendance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case attendance.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

/*
handlers_test.go - HTTP tests for the API handlers

Tests drive the chi router end to end with httptest against a
memory-backed App and a stub clock.
*/
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/punchclock/app"
	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/config"
	"github.com/warp/punchclock/importer"
	"github.com/warp/punchclock/testutil"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type harness struct {
	t      *testing.T
	app    *app.App
	clock  *testutil.StubClock
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Type = "memory"
	cfg.Photos.Type = "memory"
	cfg.Timezone = "UTC"
	cfg.Log.Level = "error"

	clock := testutil.NewStubClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	a, err := app.NewWithClock(cfg, clock)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx := context.Background()
	require.NoError(t, a.Store.SaveCompany(ctx, attendance.Company{ID: "acme", Name: "Acme", HREmail: "hr@acme.test"}))
	require.NoError(t, a.Store.SaveCompany(ctx, attendance.Company{ID: "other", Name: "Other"}))
	for _, w := range []attendance.Worker{
		{ID: "w1", Name: "Ana", Role: attendance.RoleWorker, CompanyID: "acme", Active: true},
		{ID: "w2", Name: "Bob", Role: attendance.RoleWorker, CompanyID: "acme", Active: true},
		{ID: "boss", Name: "Boss", Role: attendance.RoleEmployer, CompanyID: "acme", Active: true},
		{ID: "insp", Name: "Inspector", Role: attendance.RoleInspector, Active: true},
		{ID: "stranger", Role: attendance.RoleWorker, CompanyID: "other", Active: true},
	} {
		_, _, err := a.Workers.Register(ctx, w, nil)
		require.NoError(t, err)
	}

	return &harness{t: t, app: a, clock: clock, router: NewRouter(NewHandler(a))}
}

func (h *harness) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(HeaderWorkerID, actor)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) punchAt(worker attendance.WorkerID, kind attendance.PunchKind, ts time.Time) *attendance.Punch {
	h.t.Helper()
	p, err := h.app.Ledger.Record(context.Background(), attendance.PunchInput{WorkerID: worker, Kind: kind, Timestamp: ts})
	require.NoError(h.t, err)
	return p
}

func gpsPunch(kind string) PunchRequest {
	lat := decimal.RequireFromString("-33.44891234567")
	lon := decimal.RequireFromString("-70.6692655")
	return PunchRequest{
		Kind:      kind,
		Latitude:  NewCoordinate(lat),
		Longitude: NewCoordinate(lon),
		Photo:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader),
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestIdentity_RequiresKnownWorker(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/corrections/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/corrections/pending", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// PUNCHES
// =============================================================================

func TestRecordPunch_EntryAndChain(t *testing.T) {
	// GIVEN: A worker with a GPS fix and a photo
	// WHEN: They punch in and out
	// THEN: Both punches are chained and the chain verifies

	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/punches", "w1", gpsPunch("entry"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[PunchDTO](t, rec)
	assert.Equal(t, "ENTRY", entry.Kind)
	assert.Equal(t, int64(1), entry.Seq)
	assert.Equal(t, attendance.GenesisHash, entry.PrevHash)
	require.NotNil(t, entry.Latitude)
	assert.True(t, entry.Latitude.Equal(decimal.RequireFromString("-33.4489123")), entry.Latitude.String())
	assert.NotEmpty(t, entry.PhotoRef)

	h.clock.Advance(8 * time.Hour)
	rec = h.do(http.MethodPost, "/api/punches", "w1", gpsPunch("EXIT"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exit := decode[PunchDTO](t, rec)
	assert.Equal(t, entry.SelfHash, exit.PrevHash)

	rec = h.do(http.MethodGet, "/api/workers/w1/chain/verify", "w1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[ChainReportDTO](t, rec)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Length)
	assert.Equal(t, exit.SelfHash, report.Head)

	rec = h.do(http.MethodGet, "/api/punches?from=2025-03-10&to=2025-03-10", "w1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PunchDTO](t, rec), 2)
}

func TestRecordPunch_Rejections(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		actor   string
		body    any
		status  int
		missing []string
	}{
		{"no hardware", "w1", PunchRequest{Kind: "ENTRY"}, http.StatusBadRequest, []string{"gps", "photo"}},
		{"no photo", "w1", func() PunchRequest { p := gpsPunch("ENTRY"); p.Photo = ""; return p }(), http.StatusBadRequest, []string{"photo"}},
		{"unknown kind", "w1", PunchRequest{Kind: "LUNCH"}, http.StatusBadRequest, nil},
		{"bad photo", "w1", func() PunchRequest { p := gpsPunch("ENTRY"); p.Photo = "data:image/png;base64,%%%"; return p }(), http.StatusBadRequest, nil},
		{"unknown field", "w1", map[string]string{"kind": "ENTRY", "when": "now"}, http.StatusBadRequest, nil},
		{"inspector", "insp", gpsPunch("ENTRY"), http.StatusForbidden, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/punches", tt.actor, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.missing != nil {
				assert.Equal(t, tt.missing, decode[ErrorResponse](t, rec).Missing)
			}
		})
	}
}

func TestRecordPunch_BreakNeedsNoHardware(t *testing.T) {
	h := newHarness(t)
	h.punchAt("w1", attendance.PunchEntry, h.clock.Now().Add(-time.Hour))

	rec := h.do(http.MethodPost, "/api/punches", "w1", PunchRequest{Kind: "BREAK_START", Mood: "happy", MoodComment: " fine "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[PunchDTO](t, rec)
	assert.Equal(t, attendance.AddressUnknown, p.Address)
	assert.Nil(t, p.Latitude)
	assert.Equal(t, "HAPPY", p.Mood)
	assert.Equal(t, "fine", p.MoodComment)
}

func TestRecordPunch_NaNCoordinatesMeanNoFix(t *testing.T) {
	// GIVEN: A device that reports NaN when it has no GPS fix
	// WHEN: It sends a break and then an entry with NaN coordinates
	// THEN: The break is recorded at 0,0 and the entry is rejected for missing GPS

	h := newHarness(t)
	h.punchAt("w1", attendance.PunchEntry, h.clock.Now().Add(-time.Hour))

	rec := h.do(http.MethodPost, "/api/punches", "w1", map[string]any{
		"kind": "BREAK_START", "latitude": "NaN", "longitude": "nan",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, decode[PunchDTO](t, rec).Latitude)

	photo := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	rec = h.do(http.MethodPost, "/api/punches", "w2", map[string]any{
		"kind": "ENTRY", "latitude": "NaN", "longitude": "NaN", "photo": photo,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"gps"}, decode[ErrorResponse](t, rec).Missing)

	rec = h.do(http.MethodPost, "/api/punches", "w2", map[string]any{
		"kind": "ENTRY", "latitude": "-33.4", "longitude": -70.6, "photo": photo,
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCoordinate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`-33.4488901`, "-33.4488901", false},
		{`"-70.66"`, "-70.66", false},
		{`"NaN"`, "", false},
		{`null`, "", false},
		{`""`, "", false},
		{`"north"`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c Coordinate
			err := json.Unmarshal([]byte(tt.in), &c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, c.Value)
				return
			}
			require.NotNil(t, c.Value)
			assert.Equal(t, tt.want, c.Value.String())
		})
	}
}

type stubReceipts struct {
	mu   sync.Mutex
	sent []attendance.Punch
	err  error
}

func (s *stubReceipts) SendReceipt(_ context.Context, _ attendance.Worker, c *attendance.Company, p attendance.Punch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
	return s.err
}

func TestRecordPunch_SendsReceiptAndIgnoresFailure(t *testing.T) {
	h := newHarness(t)
	receipts := &stubReceipts{err: errors.New("smtp down")}
	h.app.Receipts = receipts

	rec := h.do(http.MethodPost, "/api/punches", "w1", gpsPunch("ENTRY"))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, receipts.sent, 1)
	assert.Equal(t, attendance.PunchEntry, receipts.sent[0].Kind)
}

func TestVerifyChain_Authorization(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/workers/w2/chain/verify", "w1", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/workers/w2/chain/verify", "boss", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/workers/w2/chain/verify", "insp", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/workers/stranger/chain/verify", "boss", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/workers/ghost/chain/verify", "boss", nil).Code)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func TestCorrections_SubmitAcceptFlow(t *testing.T) {
	// GIVEN: A worker who forgot to punch out
	// WHEN: They request the missing EXIT and the employer accepts it
	// THEN: A manual punch is appended and the request cannot be answered twice

	h := newHarness(t)
	h.punchAt("w1", attendance.PunchEntry, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	h.clock.Set(time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC))

	rec := h.do(http.MethodPost, "/api/corrections", "w1", CorrectionRequestBody{
		Kind: "new", ProposedAt: "2025-03-10T18:00", ProposedKind: "exit", Reason: "forgot to punch out",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decode[CorrectionDTO](t, rec)
	assert.Equal(t, "PENDING", submitted.Status)
	assert.Equal(t, "2025-03-10T18:00:00Z", submitted.ProposedAt)

	rec = h.do(http.MethodGet, "/api/corrections/pending", "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]CorrectionDTO](t, rec), 1)

	rec = h.do(http.MethodGet, "/api/corrections/pending", "w2", nil)
	assert.Empty(t, decode[[]CorrectionDTO](t, rec))

	rec = h.do(http.MethodPost, "/api/corrections/"+submitted.ID+"/accept", "w1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Requester cannot decide own request", decode[ErrorResponse](t, rec).Error)

	rec = h.do(http.MethodPost, "/api/corrections/"+submitted.ID+"/accept", "w2", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decode[ErrorResponse](t, rec).Error)

	rec = h.do(http.MethodPost, "/api/corrections/"+submitted.ID+"/accept", "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[CorrectionDTO](t, rec)
	assert.Equal(t, "ACCEPTED", accepted.Status)
	require.NotNil(t, accepted.ResultPunchID)

	rec = h.do(http.MethodPost, "/api/corrections/"+submitted.ID+"/reject", "boss", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/corrections/missing/accept", "boss", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorrections_ChronologyIsClientError(t *testing.T) {
	h := newHarness(t)
	h.punchAt("w1", attendance.PunchEntry, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	rec := h.do(http.MethodPost, "/api/corrections", "w1", CorrectionRequestBody{
		Kind: "NEW", ProposedAt: "2025-03-10T08:00:00Z", ProposedKind: "EXIT", Reason: "typo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[CorrectionDTO](t, rec).ID

	rec = h.do(http.MethodPost, "/api/corrections/"+id+"/accept", "boss", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/corrections", "w1", CorrectionRequestBody{Kind: "NEW", ProposedAt: "yesterday", Reason: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// JUSTIFICATIONS & HOLIDAYS
// =============================================================================

func TestJustifications_RequestApprove(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/justifications", "w1", JustificationRequest{
		Kind: "vacation", Start: "2025-03-17", End: "2025-03-21",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	j := decode[JustificationDTO](t, rec)
	assert.Equal(t, "PENDING", j.Status)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/justifications/"+j.ID+"/approve", "w1", nil).Code)

	rec = h.do(http.MethodPost, "/api/justifications/"+j.ID+"/approve", "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "APPROVED", decode[JustificationDTO](t, rec).Status)

	rec = h.do(http.MethodGet, "/api/justifications?worker=w1", "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]JustificationDTO](t, rec), 1)

	rec = h.do(http.MethodPost, "/api/justifications", "w1", JustificationRequest{Kind: "VACATION", Start: "2025-03-21", End: "2025-03-17"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHolidays_CRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/holidays", "boss", HolidayRequest{Date: "2025-05-02", Name: "Founders"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[HolidayDTO](t, rec)
	assert.Equal(t, "acme", created.CompanyID)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/holidays", "w1", HolidayRequest{Date: "2025-05-03", Name: "Nap"}).Code)

	rec = h.do(http.MethodGet, "/api/holidays?from=2025-05-01&to=2025-05-31", "w1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]HolidayDTO](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/holidays?from=2025-05-31&to=2025-05-01", "w1", nil).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/holidays/"+created.ID, "boss", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/holidays/"+created.ID, "boss", nil).Code)
}

// =============================================================================
// WORKERS & IMPORT
// =============================================================================

func TestRegisterWorker(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/workers", "boss", CreateWorkerRequest{
		ID: "w3", Name: "Carla", Email: "carla@acme.test",
		Schedule: &ScheduleBody{ExpectedStart: "08:00", DailyHours: 8, Workdays: [7]bool{true, true, true, true, true, true, false}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decode[WorkerDTO](t, rec)
	assert.Equal(t, "WORKER", dto.Role)
	assert.Equal(t, "acme", dto.CompanyID)
	assert.True(t, dto.Active)
	require.NotNil(t, dto.Schedule)
	assert.Equal(t, "08:00", dto.Schedule.ExpectedStart)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/workers", "w1", CreateWorkerRequest{ID: "w4"}).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/workers", "boss", CreateWorkerRequest{ID: "w4", CompanyID: "other"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/workers", "boss", CreateWorkerRequest{ID: "w4", Role: "admin"}).Code)
}

func TestImportSchedules_Multipart(t *testing.T) {
	h := newHarness(t)

	f := excelize.NewFile()
	rows := [][]any{
		{"username", "email", "first", "last", "national id", "title", "start", "mon", "tue", "wed", "thu", "fri", "sat", "sun"},
		{"w9", "w9@acme.test", "Nina", "Soto", "", "Clerk", "07:30", "SI", "SI", "SI", "SI", "SI", "NO", "NO"},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &r))
	}
	var xlsx bytes.Buffer
	require.NoError(t, f.Write(&xlsx))
	f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "schedules.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/schedules/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderWorkerID, "boss")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ImportResultDTO{Created: 1}, decode[ImportResultDTO](t, rec))

	s, err := h.app.Store.GetSchedule(context.Background(), "w9")
	require.NoError(t, err)
	assert.Equal(t, attendance.ClockTime{Hour: 7, Minute: 30}, s.ExpectedStart)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestPeriodReport(t *testing.T) {
	// GIVEN: A full Monday worked 09:00-19:00 on a 9h schedule
	// WHEN: The worker asks for that day
	// THEN: 9h ordinary and 1h overtime-50

	h := newHarness(t)
	h.punchAt("w1", attendance.PunchEntry, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	h.punchAt("w1", attendance.PunchExit, time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC))
	h.clock.Set(time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC))

	rec := h.do(http.MethodGet, "/api/reports/period?from=2025-03-10&to=2025-03-10", "w1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	totals := decode[PeriodTotalsDTO](t, rec)
	assert.Equal(t, 1, totals.DaysWorked)
	assert.Equal(t, "09:00", totals.Ordinary.HHMM)
	assert.Equal(t, "01:00", totals.Overtime50.HHMM)
	require.Len(t, totals.Days, 1)
	assert.Equal(t, "WORKED", totals.Days[0].Kind)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/reports/period?worker=w2&from=2025-03-10&to=2025-03-10", "w1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/reports/period?from=10-03-2025&to=2025-03-10", "w1", nil).Code)
}

func TestCompanyReportsAndWorkbooks(t *testing.T) {
	h := newHarness(t)
	h.punchAt("w1", attendance.PunchEntry, time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC))
	h.punchAt("w1", attendance.PunchExit, time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC))
	h.clock.Set(time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC))
	query := "?from=2025-03-10&to=2025-03-11"

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/reports/company"+query, "w1", nil).Code)

	rec := h.do(http.MethodGet, "/api/reports/company"+query, "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]PeriodTotalsDTO](t, rec), 2, "only WORKER roles are on payroll")

	rec = h.do(http.MethodGet, "/api/reports/shifts"+query+"&company=acme", "insp", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	shifts := decode[[]ShiftDTO](t, rec)
	require.Len(t, shifts, 1)
	assert.Equal(t, "2025-03-10", shifts[0].Date)
	assert.Equal(t, "08:00", shifts[0].Worked.HHMM)
	assert.Equal(t, "CLOSED", shifts[0].Status)

	rec = h.do(http.MethodGet, "/api/reports/payroll.xlsx"+query, "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, importer.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payroll-acme-2025-03-10.xlsx")
	wb, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	rows, err := wb.GetRows("Payroll")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	wb.Close()

	rec = h.do(http.MethodGet, "/api/reports/audit.xlsx"+query+"&company=acme", "insp", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wb, err = excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	rows, err = wb.GetRows("Shifts")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	wb.Close()

	rec = h.do(http.MethodGet, "/api/reports/payroll.xlsx"+query, "insp", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "inspectors have no company of their own")
}

func TestMoodWorkbook(t *testing.T) {
	// GIVEN: A worker who left with a mood and one who left without
	// WHEN: The employer downloads the mood survey
	// THEN: One data row; workers cannot download it

	h := newHarness(t)
	ctx := context.Background()
	for _, in := range []attendance.PunchInput{
		{WorkerID: "w1", Kind: attendance.PunchEntry, Timestamp: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{WorkerID: "w1", Kind: attendance.PunchExit, Timestamp: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), Mood: attendance.MoodNeutral, MoodComment: "ok"},
		{WorkerID: "w2", Kind: attendance.PunchEntry, Timestamp: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{WorkerID: "w2", Kind: attendance.PunchExit, Timestamp: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)},
	} {
		_, err := h.app.Ledger.Record(ctx, in)
		require.NoError(t, err)
	}
	h.clock.Set(time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC))
	query := "?from=2025-03-10&to=2025-03-10"

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/reports/mood.xlsx"+query, "w1", nil).Code)

	rec := h.do(http.MethodGet, "/api/reports/mood.xlsx"+query, "boss", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mood-acme-2025-03-10.xlsx")
	wb, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Mood")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2025-03-10", "18:00", "Ana", "", "", "NEUTRAL", "ok"}, rows[1])
}

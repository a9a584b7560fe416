package importer_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/attendance/store"
	"github.com/warp/punchclock/importer"
	"github.com/warp/punchclock/testutil"
)

var header = []any{"username", "email", "first", "last", "national id", "title", "start", "mon", "tue", "wed", "thu", "fri", "sat", "sun"}

func workbook(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	all := append([][]any{header}, rows...)
	for i, row := range all {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &r))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

type fixture struct {
	ctx      context.Context
	store    *store.Memory
	importer *importer.ScheduleImporter
	boss     attendance.Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	clock := testutil.NewStubClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	logger := attendance.NewNopLogger()
	require.NoError(t, m.SaveCompany(ctx, attendance.Company{ID: "acme", Name: "Acme"}))
	boss := attendance.Worker{ID: "boss", Role: attendance.RoleEmployer, CompanyID: "acme", Active: true}
	require.NoError(t, m.SaveWorker(ctx, boss))

	ws := attendance.NewWorkerService(m, clock, logger)
	return &fixture{ctx: ctx, store: m, importer: importer.NewScheduleImporter(m, ws, logger), boss: boss}
}

func TestImport_CreatesAndUpdates(t *testing.T) {
	// GIVEN: A sheet with a new worker, an existing employer and a blank row
	// WHEN: The employer imports it
	// THEN: One created, one updated, one skipped. The existing worker keeps
	//       its role and daily hours.

	f := newFixture(t)
	require.NoError(t, f.store.SaveWorker(f.ctx, attendance.Worker{ID: "ana", Role: attendance.RoleEmployer, CompanyID: "acme", Active: true}))
	existing := attendance.DefaultSchedule("ana")
	existing.DailyHours = 6
	require.NoError(t, f.store.SaveSchedule(f.ctx, existing))

	buf := workbook(t,
		[]any{"ana", "ana@acme.test", "Ana", "Rojas", "11.111.111-1", "Manager", "08:30", "SI", "SI", "SI", "SI", "NO", "NO", "NO"},
		[]any{"", "", "", "", "", "", "", "", "", "", "", "", "", ""},
		[]any{"bob", "bob@acme.test", "Bob", "Diaz", "22.222.222-2", "Guard", "0.875", "no", "no", "no", "no", "no", "si", "yes"},
	)

	res, err := f.importer.Import(f.ctx, f.boss, "acme", buf)
	require.NoError(t, err)
	assert.Equal(t, importer.ImportResult{Created: 1, Updated: 1, Skipped: 1}, *res)

	ana, err := f.store.GetWorker(f.ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, attendance.RoleEmployer, ana.Role)
	assert.Equal(t, "Ana Rojas", ana.Name)
	assert.Equal(t, "Manager", ana.Title)

	anaSched, err := f.store.GetSchedule(f.ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 6, anaSched.DailyHours)
	assert.Equal(t, attendance.ClockTime{Hour: 8, Minute: 30}, anaSched.ExpectedStart)
	assert.Equal(t, [7]bool{true, true, true, true, false, false, false}, anaSched.Workdays)

	bob, err := f.store.GetWorker(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, attendance.RoleWorker, bob.Role)
	assert.True(t, bob.Active)
	assert.Equal(t, attendance.CompanyID("acme"), bob.CompanyID)

	bobSched, err := f.store.GetSchedule(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, attendance.ClockTime{Hour: 21, Minute: 0}, bobSched.ExpectedStart)
	assert.Equal(t, 9, bobSched.DailyHours)
	assert.Equal(t, [7]bool{false, false, false, false, false, true, true}, bobSched.Workdays)
}

func TestImport_BadRowRejectsWholeFile(t *testing.T) {
	f := newFixture(t)
	buf := workbook(t,
		[]any{"ana", "ana@acme.test", "Ana", "Rojas", "", "", "09:00", "SI", "SI", "SI", "SI", "SI", "NO", "NO"},
		[]any{"bob", "not-an-email", "Bob", "Diaz", "", "", "09:00", "SI", "SI", "SI", "SI", "SI", "NO", "NO"},
	)

	_, err := f.importer.Import(f.ctx, f.boss, "acme", buf)
	var rowErr *importer.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 3, rowErr.Line)
	assert.ErrorIs(t, err, attendance.ErrInvalidInput)

	_, err = f.store.GetWorker(f.ctx, "ana")
	assert.ErrorIs(t, err, attendance.ErrNotFound, "nothing written")
}

func TestImport_UnparseableStartKeepsDefault(t *testing.T) {
	f := newFixture(t)
	buf := workbook(t, []any{"ana", "", "Ana", "", "", "", "morning", "SI", "", "", "", "", "", ""})

	_, err := f.importer.Import(f.ctx, f.boss, "acme", buf)
	require.NoError(t, err)

	s, err := f.store.GetSchedule(f.ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, attendance.DefaultSchedule("ana").ExpectedStart, s.ExpectedStart)
	assert.Equal(t, [7]bool{true}, s.Workdays)
}

func TestImport_Rejections(t *testing.T) {
	f := newFixture(t)

	worker := attendance.Worker{ID: "w1", Role: attendance.RoleWorker, CompanyID: "acme", Active: true}
	_, err := f.importer.Import(f.ctx, worker, "acme", workbook(t))
	assert.ErrorIs(t, err, attendance.ErrForbidden)

	_, err = f.importer.Import(f.ctx, f.boss, "other", workbook(t))
	assert.ErrorIs(t, err, attendance.ErrForbidden)

	_, err = f.importer.Import(f.ctx, f.boss, "acme", strings.NewReader("username,email\n"))
	assert.ErrorIs(t, err, attendance.ErrInvalidInput)
}

// =============================================================================
// EXPORT
// =============================================================================

func readBack(t *testing.T, buf *bytes.Buffer) (string, [][]string) {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return sheet, rows
}

func TestWritePayroll(t *testing.T) {
	period := attendance.Period{Start: attendance.NewDate(2025, 3, 1), End: attendance.NewDate(2025, 3, 31)}
	totals := []attendance.PeriodTotals{
		{WorkerID: "w1", DaysWorked: 20, OrdinarySeconds: 20 * 9 * 3600, Overtime50Seconds: 5400, LateMinutes: 15, AbsenceDays: 1,
			Observations: []string{"1 unjustified absences"}},
		{WorkerID: "w2", Overtime100Seconds: 4 * 3600},
	}
	workers := map[attendance.WorkerID]attendance.Worker{
		"w1": {ID: "w1", Name: "Ana Rojas", NationalID: "11.111.111-1", Title: "Manager"},
	}

	var buf bytes.Buffer
	require.NoError(t, importer.WritePayroll(&buf, period, totals, workers))

	sheet, rows := readBack(t, &buf)
	assert.Equal(t, "Payroll", sheet)
	require.Len(t, rows, 3)
	assert.Equal(t, "Worker", rows[0][0])
	assert.Equal(t, []string{"Ana Rojas", "11.111.111-1", "Manager", "20", "180:00", "01:30", "00:00", "15", "1", "0", "0", "0", "1 unjustified absences"}, rows[1])
	assert.Equal(t, "w2", rows[2][0], "unknown workers fall back to their id")
	assert.Equal(t, "04:00", rows[2][6])
}

func TestWriteShifts(t *testing.T) {
	entry := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	exit := time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC)
	shifts := []attendance.ShiftRecord{
		{WorkerID: "w1", Date: attendance.NewDate(2025, 3, 10), Shift: attendance.Shift{EntryAt: &entry, ExitAt: &exit, Seconds: 8 * 3600, Status: attendance.ShiftClosed}},
		{WorkerID: "w1", Date: attendance.NewDate(2025, 3, 11), Shift: attendance.Shift{EntryAt: &entry, Status: attendance.ShiftMissingExit, Manual: true}},
	}

	var buf bytes.Buffer
	require.NoError(t, importer.WriteShifts(&buf, shifts, map[attendance.WorkerID]attendance.Worker{"w1": {Name: "Ana"}}, time.UTC))

	sheet, rows := readBack(t, &buf)
	assert.Equal(t, "Shifts", sheet)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2025-03-10", "Ana", "", "", "22:00", "06:00", "00:00", "08:00", "CLOSED"}, rows[1])
	assert.Equal(t, "--", rows[2][5])
	assert.Equal(t, "yes", rows[2][9])
}

func TestWriteMood(t *testing.T) {
	punches := []attendance.Punch{
		{WorkerID: "w1", Kind: attendance.PunchExit, Timestamp: time.Date(2025, 3, 10, 18, 5, 0, 0, time.UTC), Mood: attendance.MoodUpset, MoodComment: "long day"},
		{WorkerID: "w2", Kind: attendance.PunchExit, Timestamp: time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC), Mood: attendance.MoodHappy},
	}
	workers := map[attendance.WorkerID]attendance.Worker{
		"w1": {ID: "w1", Name: "Ana Rojas", NationalID: "11.111.111-1", Title: "Manager"},
	}

	var buf bytes.Buffer
	require.NoError(t, importer.WriteMood(&buf, punches, workers, time.UTC))

	sheet, rows := readBack(t, &buf)
	assert.Equal(t, "Mood", sheet)
	require.Len(t, rows, 3)
	assert.Equal(t, "Comment", rows[0][6])
	assert.Equal(t, []string{"2025-03-10", "18:05", "Ana Rojas", "11.111.111-1", "Manager", "UPSET", "long day"}, rows[1])
	assert.Equal(t, "w2", rows[2][2])
	assert.Equal(t, "HAPPY", rows[2][5])
}

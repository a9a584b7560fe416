/*
schedules.go - Bulk worker and schedule import from a spreadsheet

PURPOSE:
  Reads the first sheet of an .xlsx workbook and registers one worker per
  row together with its weekly schedule.

LAYOUT (row 1 is a header and is skipped):
  A username      worker id, rows without one are ignored
  B email
  C first name
  D last name
  E national id
  F title
  G start time    HH:MM, HH:MM:SS, 3:04 PM or an Excel day fraction
  H..N            Monday..Sunday, SI/S/YES/Y/1/TRUE mark a workday

  Every row is parsed before anything is written; one bad row rejects the
  whole file. An unparseable start time keeps the current (or default)
  start. Existing workers keep their role and daily hours.

SEE ALSO:
  - attendance/worker.go: WorkerService.Register
*/
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/punchclock/attendance"
)

const (
	colUsername = iota
	colEmail
	colFirstName
	colLastName
	colNationalID
	colTitle
	colStartTime
	colMonday
)

// RowError points at the offending cell of an import file.
type RowError struct {
	Line  int
	Field string
	Value string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: invalid %s %q", e.Line, e.Field, e.Value)
}

func (e *RowError) Unwrap() error { return attendance.ErrInvalidInput }

// ImportResult counts what an import did.
type ImportResult struct {
	Created int
	Updated int
	Skipped int
}

type scheduleRow struct {
	line     int
	worker   attendance.Worker
	start    *attendance.ClockTime
	workdays [7]bool
}

// ScheduleImporter registers workers from a spreadsheet.
type ScheduleImporter struct {
	store   attendance.Store
	workers *attendance.WorkerService
	logger  attendance.Logger
}

func NewScheduleImporter(store attendance.Store, workers *attendance.WorkerService, logger attendance.Logger) *ScheduleImporter {
	return &ScheduleImporter{store: store, workers: workers, logger: logger}
}

// Import registers every row of r as a worker of company.
func (im *ScheduleImporter) Import(ctx context.Context, actor attendance.Worker, company attendance.CompanyID, r io.Reader) (*ImportResult, error) {
	if err := attendance.AuthorizeCompany(actor, company, attendance.CapManageWorkers); err != nil {
		return nil, err
	}
	if _, err := im.store.GetCompany(ctx, company); err != nil {
		return nil, fmt.Errorf("loading company %s: %w", company, err)
	}

	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	parsed := make([]scheduleRow, 0, len(rows))
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		if cell(cells, colUsername) == "" {
			result.Skipped++
			continue
		}
		row, err := parseRow(i+1, cells)
		if err != nil {
			return nil, err
		}
		row.worker.CompanyID = company
		parsed = append(parsed, row)
	}

	for _, row := range parsed {
		created, err := im.apply(ctx, row)
		if err != nil {
			return result, fmt.Errorf("row %d: %w", row.line, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	im.logger.Info("schedules imported", "company", company, "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
	return result, nil
}

func (im *ScheduleImporter) apply(ctx context.Context, row scheduleRow) (bool, error) {
	w := row.worker
	created := false
	existing, err := im.store.GetWorker(ctx, w.ID)
	switch {
	case err == nil:
		w.Role = existing.Role
		w.Active = existing.Active
	case errors.Is(err, attendance.ErrNotFound):
		w.Role = attendance.RoleWorker
		w.Active = true
		created = true
	default:
		return false, err
	}

	sched := attendance.DefaultSchedule(w.ID)
	current, err := im.store.GetSchedule(ctx, w.ID)
	switch {
	case err == nil:
		sched = *current
	case !errors.Is(err, attendance.ErrNotFound):
		return false, err
	}
	sched.Workdays = row.workdays
	if row.start != nil {
		sched.ExpectedStart = *row.start
	}

	if _, _, err := im.workers.Register(ctx, w, &sched); err != nil {
		return false, err
	}
	return created, nil
}

func readRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: not an xlsx workbook: %v", attendance.ErrInvalidInput, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: no worksheet found", attendance.ErrInvalidInput)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: worksheet is empty", attendance.ErrInvalidInput)
	}
	return rows, nil
}

func parseRow(line int, cells []string) (scheduleRow, error) {
	row := scheduleRow{line: line}
	row.worker = attendance.Worker{
		ID:         attendance.WorkerID(cell(cells, colUsername)),
		Email:      cell(cells, colEmail),
		Name:       strings.TrimSpace(cell(cells, colFirstName) + " " + cell(cells, colLastName)),
		NationalID: cell(cells, colNationalID),
		Title:      cell(cells, colTitle),
	}
	if row.worker.Email != "" && !strings.Contains(row.worker.Email, "@") {
		return row, &RowError{Line: line, Field: "email", Value: row.worker.Email}
	}
	if start, ok := parseStartTime(cell(cells, colStartTime)); ok {
		row.start = &start
	}
	for d := 0; d < 7; d++ {
		row.workdays[d] = isYes(cell(cells, colMonday+d))
	}
	return row, nil
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func isYes(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "SI", "SÍ", "S", "YES", "Y", "1", "TRUE", "X":
		return true
	}
	return false
}

func parseStartTime(v string) (attendance.ClockTime, bool) {
	if v == "" {
		return attendance.ClockTime{}, false
	}
	if ct, err := attendance.ParseClockTime(v); err == nil {
		return ct, true
	}
	for _, layout := range []string{"3:04 PM", "3:04:05 PM", "3:04PM"} {
		if t, err := time.Parse(layout, strings.ToUpper(v)); err == nil {
			return attendance.ClockTime{Hour: t.Hour(), Minute: t.Minute()}, true
		}
	}
	if frac, err := strconv.ParseFloat(v, 64); err == nil && frac >= 0 && frac < 1 {
		minutes := int(frac*24*60 + 0.5)
		if minutes >= 24*60 {
			return attendance.ClockTime{}, false
		}
		return attendance.ClockTime{Hour: minutes / 60, Minute: minutes % 60}, true
	}
	return attendance.ClockTime{}, false
}

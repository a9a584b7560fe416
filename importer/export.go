package importer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/punchclock/attendance"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var payrollHeaders = []any{
	"Worker", "National ID", "Title", "Days worked", "Ordinary", "Overtime 50%", "Overtime 100%",
	"Late minutes", "Absences", "Vacation", "Medical leave", "Administrative", "Observations",
}

var shiftHeaders = []any{
	"Date", "Worker", "National ID", "Title", "Entry", "Exit", "Break", "Worked", "Status", "Manual",
}

var moodHeaders = []any{
	"Date", "Time", "Worker", "National ID", "Title", "Mood", "Comment",
}

// WritePayroll writes one row per worker. Hour figures are HH:MM.
func WritePayroll(w io.Writer, period attendance.Period, totals []attendance.PeriodTotals, workers map[attendance.WorkerID]attendance.Worker) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Payroll"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, payrollHeaders); err != nil {
		return err
	}

	for i, t := range totals {
		wk := workers[t.WorkerID]
		row := []any{
			nameOf(wk, t.WorkerID),
			wk.NationalID,
			wk.Title,
			t.DaysWorked,
			attendance.HHMM(t.OrdinarySeconds),
			attendance.HHMM(t.Overtime50Seconds),
			attendance.HHMM(t.Overtime100Seconds),
			t.LateMinutes,
			t.AbsenceDays,
			t.VacationDays,
			t.MedicalLeaveDays,
			t.AdministrativeDays,
			strings.Join(t.Observations, "; "),
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "L", 14)
	_ = f.SetColWidth(sheet, "M", "M", 60)
	_ = f.SetDocProps(&excelize.DocProperties{Title: "Payroll " + period.String()})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing payroll workbook: %w", err)
	}
	return nil
}

// WriteShifts writes the audit listing, one row per paired shift.
func WriteShifts(w io.Writer, shifts []attendance.ShiftRecord, workers map[attendance.WorkerID]attendance.Worker, loc *time.Location) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Shifts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, shiftHeaders); err != nil {
		return err
	}

	for i, s := range shifts {
		wk := workers[s.WorkerID]
		manual := ""
		if s.Manual {
			manual = "yes"
		}
		row := []any{
			s.Date.String(),
			nameOf(wk, s.WorkerID),
			wk.NationalID,
			wk.Title,
			clock(s.EntryAt, loc),
			clock(s.ExitAt, loc),
			attendance.HHMM(s.BreakSeconds),
			attendance.HHMM(s.Seconds),
			string(s.Status),
			manual,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "J", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing shifts workbook: %w", err)
	}
	return nil
}

// WriteMood writes the mood survey, one row per exit that carried a mood.
func WriteMood(w io.Writer, punches []attendance.Punch, workers map[attendance.WorkerID]attendance.Worker, loc *time.Location) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Mood"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, moodHeaders); err != nil {
		return err
	}

	for i, p := range punches {
		wk := workers[p.WorkerID]
		ts := p.Timestamp.In(loc)
		row := []any{
			ts.Format("2006-01-02"),
			ts.Format("15:04"),
			nameOf(wk, p.WorkerID),
			wk.NationalID,
			wk.Title,
			string(p.Mood),
			p.MoodComment,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 12)
	_ = f.SetColWidth(sheet, "C", "C", 28)
	_ = f.SetColWidth(sheet, "D", "F", 14)
	_ = f.SetColWidth(sheet, "G", "G", 60)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing mood workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []any) error {
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, line int, values []any) error {
	start, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, start, &values)
}

func nameOf(w attendance.Worker, id attendance.WorkerID) string {
	if w.Name != "" {
		return w.Name
	}
	return string(id)
}

func clock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "--"
	}
	return t.In(loc).Format("15:04")
}

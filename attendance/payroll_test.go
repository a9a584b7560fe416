package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/punchclock/attendance"
)

func oneDay(d attendance.Date) attendance.Period {
	return attendance.Period{Start: d, End: d}
}

func TestPeriodTotals_WeekdayOvertime(t *testing.T) {
	// GIVEN: A 9h schedule and an 11h Monday
	// THEN: 9h ordinary, 2h overtime-50, nothing at 100

	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)
	e.clock.Set(at(2025, 3, 11, 12, 0))
	e.punch("w1", attendance.PunchEntry, at(2025, 3, 10, 9, 0))
	e.punch("w1", attendance.PunchExit, at(2025, 3, 10, 20, 0))

	totals, err := e.payroll.PeriodTotals(e.ctx, "w1", oneDay(date(2025, 3, 10)))
	require.NoError(t, err)

	assert.Equal(t, int64(32400), totals.OrdinarySeconds)
	assert.Equal(t, int64(7200), totals.Overtime50Seconds)
	assert.Equal(t, int64(0), totals.Overtime100Seconds)
	assert.Equal(t, 1, totals.DaysWorked)
	assert.Equal(t, 0, totals.LateMinutes)
	assert.Empty(t, totals.Observations)
}

func TestPeriodTotals_SundayIsAllOvertime100(t *testing.T) {
	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)
	e.clock.Set(at(2025, 3, 17, 12, 0))
	e.punch("w1", attendance.PunchEntry, at(2025, 3, 16, 9, 0))
	e.punch("w1", attendance.PunchExit, at(2025, 3, 16, 20, 0))

	totals, err := e.payroll.PeriodTotals(e.ctx, "w1", oneDay(date(2025, 3, 16)))
	require.NoError(t, err)

	assert.Equal(t, int64(0), totals.OrdinarySeconds)
	assert.Equal(t, int64(0), totals.Overtime50Seconds)
	assert.Equal(t, int64(39600), totals.Overtime100Seconds)
}

func TestPeriodTotals_WorkedHolidayKeepsLabel(t *testing.T) {
	// GIVEN: Punches on a holiday
	// THEN: The day is labelled HOLIDAY, counts as worked and pays at 100

	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)
	e.clock.Set(at(2025, 5, 2, 12, 0))
	e.holiday(date(2025, 5, 1), "Labour Day")
	e.punch("w1", attendance.PunchEntry, at(2025, 5, 1, 9, 0))
	e.punch("w1", attendance.PunchExit, at(2025, 5, 1, 13, 0))

	totals, err := e.payroll.PeriodTotals(e.ctx, "w1", oneDay(date(2025, 5, 1)))
	require.NoError(t, err)

	require.Len(t, totals.Days, 1)
	assert.Equal(t, attendance.DayHoliday, totals.Days[0].Kind)
	assert.Equal(t, "Labour Day", totals.Days[0].HolidayName)
	assert.Equal(t, int64(4*3600), totals.Overtime100Seconds)
	assert.Equal(t, 1, totals.DaysWorked)
	assert.Equal(t, 0, totals.LateMinutes, "no lateness on holidays")
}

func TestPeriodTotals_DayClassificationPrecedence(t *testing.T) {
	// GIVEN: Mon worked, Tue vacation, Wed holiday, Thu nothing (today),
	//        Fri nothing (future), Sat and Sun rest
	// THEN: One absence (Thu), Fri UPCOMING, weekend REST

	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)
	e.clock.Set(at(2025, 3, 13, 12, 0))
	e.punch("w1", attendance.PunchEntry, at(2025, 3, 10, 9, 0))
	e.punch("w1", attendance.PunchExit, at(2025, 3, 10, 18, 0))
	e.approve("w1", attendance.JustificationVacation, date(2025, 3, 11), date(2025, 3, 11))
	e.holiday(date(2025, 3, 12), "Local")

	totals, err := e.payroll.PeriodTotals(e.ctx, "w1", attendance.Period{Start: date(2025, 3, 10), End: date(2025, 3, 16)})
	require.NoError(t, err)

	kinds := make([]attendance.DayKind, 0, 7)
	for _, d := range totals.Days {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []attendance.DayKind{
		attendance.DayWorked,
		attendance.DayVacation,
		attendance.DayHoliday,
		attendance.DayAbsent,
		attendance.DayUpcoming,
		attendance.DayRest,
		attendance.DayRest,
	}, kinds)
	assert.Equal(t, 1, totals.AbsenceDays)
	assert.Equal(t, 1, totals.VacationDays)
	assert.Contains(t, totals.Observations, "1 unjustified absences")
	assert.Contains(t, totals.Observations, "1 vacation days")
}

func TestPeriodTotals_OverlappingJustifications_VacationWins(t *testing.T) {
	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)
	e.clock.Set(at(2025, 3, 20, 12, 0))
	e.approve("w1", attendance.JustificationAdministrative, date(2025, 3, 10), date(2025, 3, 10))
	e.approve("w1", attendance.JustificationMedicalLeave, date(2025, 3, 10), date(2025, 3, 11))
	e.approve("w1", attendance.JustificationVacation, date(2025, 3, 10), date(2025, 3, 10))

	totals, err := e.payroll.PeriodTotals(e.ctx, "w1", attendance.Period{Start: date(2025, 3, 10), End: date(2025, 3, 11)})
	require.NoError(t, err)

	assert.Equal(t, attendance.DayVacation, totals.Days[0].Kind)
	assert.Equal(t, attendance.DayMedicalLeave, totals.Days[1].Kind)
	assert.Equal(t, 0, totals.AbsenceDays)
	assert.Equal(t, 0, totals.AdministrativeDays)
}

func TestPeriodTotals_Lateness(t *testing.T) {
	tests := []struct {
		name  string
		entry time.Time
		want  int
	}{
		{"on time", at(2025, 3, 10, 9, 0), 0},
		{"within tolerance", at(2025, 3, 10, 9, 10), 0},
		{"late", at(2025, 3, 10, 9, 25), 15},
		{"early", at(2025, 3, 10, 8, 30), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.worker("w1", attendance.RoleWorker)
			e.clock.Set(at(2025, 3, 11, 12, 0))
			e.punch("w1", attendance.PunchEntry, tt.entry)
			e.punch("w1", attendance.PunchExit, at(2025, 3, 10, 18, 0))

			totals, err := e.payroll.PeriodTotals(e.ctx, "w1", oneDay(date(2025, 3, 10)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, totals.LateMinutes)
		})
	}
}

func TestPeriodTotals_ZeroLateToleranceCountsEveryMinute(t *testing.T) {
	// GIVEN: A calculator configured with no lateness tolerance
	// WHEN: The worker enters five minutes after the expected start
	// THEN: All five minutes count as late

	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)
	e.clock.Set(at(2025, 3, 11, 12, 0))
	e.punch("w1", attendance.PunchEntry, at(2025, 3, 10, 9, 5))
	e.punch("w1", attendance.PunchExit, at(2025, 3, 10, 18, 0))

	rules := attendance.DefaultRules()
	rules.PayrollLateTolerance = 0
	payroll := attendance.NewPayrollCalculator(e.store, e.policy, e.clock, time.UTC, rules)

	totals, err := payroll.PeriodTotals(e.ctx, "w1", oneDay(date(2025, 3, 10)))
	require.NoError(t, err)
	assert.Equal(t, 5, totals.LateMinutes)
}

func TestPeriodTotals_MissingScheduleUsesDefault(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SaveWorker(e.ctx, attendance.Worker{ID: "w1", Role: attendance.RoleWorker, Active: true}))
	e.clock.Set(at(2025, 3, 11, 12, 0))
	e.punch("w1", attendance.PunchEntry, at(2025, 3, 10, 9, 0))
	e.punch("w1", attendance.PunchExit, at(2025, 3, 10, 20, 0))

	totals, err := e.payroll.PeriodTotals(e.ctx, "w1", oneDay(date(2025, 3, 10)))
	require.NoError(t, err)

	assert.True(t, totals.DefaultSchedule)
	assert.True(t, totals.Unassigned)
	assert.Equal(t, int64(32400), totals.OrdinarySeconds)
	assert.Contains(t, totals.Observations, "worker w1 has no company")
	assert.Contains(t, totals.Observations, "worker w1 has no schedule, default schedule applied")
}

func TestPeriodTotals_InvalidPeriod(t *testing.T) {
	e := newEnv(t)
	e.worker("w1", attendance.RoleWorker)

	_, err := e.payroll.PeriodTotals(e.ctx, "w1", attendance.Period{Start: date(2025, 3, 10), End: date(2025, 3, 9)})
	assert.ErrorIs(t, err, attendance.ErrInvalidPeriod)

	_, err = e.payroll.CompanyTotals(e.ctx, "acme", attendance.Period{Start: date(2025, 3, 10), End: date(2025, 3, 9)})
	assert.ErrorIs(t, err, attendance.ErrInvalidPeriod)
}

func TestCompanyTotals_SortedByNameAndScoped(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SaveCompany(e.ctx, attendance.Company{ID: "other", Name: "Other"}))
	for _, w := range []attendance.Worker{
		{ID: "w1", Name: "Zoe", Role: attendance.RoleWorker, CompanyID: "acme", Active: true},
		{ID: "w2", Name: "Ana", Role: attendance.RoleWorker, CompanyID: "acme", Active: true},
		{ID: "w3", Name: "Bob", Role: attendance.RoleWorker, CompanyID: "other", Active: true},
		{ID: "boss", Name: "Boss", Role: attendance.RoleEmployer, CompanyID: "acme", Active: true},
	} {
		require.NoError(t, e.store.SaveWorker(e.ctx, w))
	}

	rows, err := e.payroll.CompanyTotals(e.ctx, "acme", oneDay(date(2025, 3, 8)))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, attendance.WorkerID("w2"), rows[0].WorkerID)
	assert.Equal(t, attendance.WorkerID("w1"), rows[1].WorkerID)

	all, err := e.payroll.CompanyTotals(e.ctx, "", oneDay(date(2025, 3, 8)))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHoursAndHHMM(t *testing.T) {
	assert.Equal(t, "9.5", attendance.Hours(34200).String())
	assert.Equal(t, "09:30", attendance.HHMM(34200))
	assert.Equal(t, "00:00", attendance.HHMM(-5))
	assert.Equal(t, "100:00", attendance.HHMM(360000))
}

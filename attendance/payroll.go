/*
payroll.go - Period Aggregator

PURPOSE:
  Folds day summaries over an inclusive date range into payroll buckets:
  ordinary, overtime-50, overtime-100, lateness minutes and unjustified
  absence days.

DAY CLASSIFICATION (first match wins):
  holiday > worked > vacation > medical leave > administrative day
  > rest day > unjustified absence

  A holiday with punches keeps the HOLIDAY label, but its hours still count
  (all overtime-100) and it counts as a day worked.

BUCKETS (worked days):
  Sunday or holiday -> every net second is overtime-100
  otherwise         -> up to the expected daily hours is ordinary,
                       the remainder is overtime-50

LATENESS:
  Only on scheduled workdays that are neither holiday nor weekend:
  first ENTRY (local) - expected start - PayrollLateTolerance, when positive.

  Days after "today" are UPCOMING and never counted as absences.
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type DayKind string

const (
	DayHoliday        DayKind = "HOLIDAY"
	DayWorked         DayKind = "WORKED"
	DayVacation       DayKind = "VACATION"
	DayMedicalLeave   DayKind = "MEDICAL_LEAVE"
	DayAdministrative DayKind = "ADMINISTRATIVE_DAY"
	DayRest           DayKind = "REST"
	DayAbsent         DayKind = "ABSENT"
	DayUpcoming       DayKind = "UPCOMING"
)

// DayRecord is one date of a period with its payroll contribution.
type DayRecord struct {
	Date               Date
	Kind               DayKind
	Workday            bool
	HolidayName        string
	Summary            *DaySummary
	OrdinarySeconds    int64
	Overtime50Seconds  int64
	Overtime100Seconds int64
	LateMinutes        int
}

// PeriodTotals is the payroll view of one worker over a period.
type PeriodTotals struct {
	WorkerID           WorkerID
	CompanyID          CompanyID
	Unassigned         bool
	DefaultSchedule    bool
	Period             Period
	DaysWorked         int
	OrdinarySeconds    int64
	Overtime50Seconds  int64
	Overtime100Seconds int64
	LateMinutes        int
	AbsenceDays        int
	VacationDays       int
	MedicalLeaveDays   int
	AdministrativeDays int
	AnomalyDays        int
	Days               []DayRecord
	Observations       []string
}

// Hours converts seconds to hours rounded to two decimals.
func Hours(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600)).Round(2)
}

// HHMM formats seconds as zero-padded HH:MM. Hours grow past two digits.
func HHMM(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/3600, (seconds%3600)/60)
}

// PayrollCalculator computes PeriodTotals.
type PayrollCalculator struct {
	store  Store
	policy *SchedulePolicy
	clock  Clock
	loc    *time.Location
	rules  Rules
}

func NewPayrollCalculator(store Store, policy *SchedulePolicy, clock Clock, loc *time.Location, rules Rules) *PayrollCalculator {
	return &PayrollCalculator{
		store:  store,
		policy: policy,
		clock:  clock,
		loc:    loc,
		rules:  rules,
	}
}

// PeriodTotals aggregates one worker over [period.Start, period.End].
func (c *PayrollCalculator) PeriodTotals(ctx context.Context, worker WorkerID, period Period) (*PeriodTotals, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	w, err := c.store.GetWorker(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("loading worker %s: %w", worker, err)
	}

	totals := &PeriodTotals{WorkerID: w.ID, CompanyID: w.CompanyID, Period: period}
	if w.CompanyID == "" {
		totals.Unassigned = true
		totals.Observations = append(totals.Observations,
			(&ConfigurationError{WorkerID: w.ID, Missing: "company"}).Error())
	}

	sched, err := c.policy.Resolve(ctx, w.ID)
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		totals.DefaultSchedule = true
		totals.Observations = append(totals.Observations, cfgErr.Error()+", default schedule applied")
	} else if err != nil {
		return nil, err
	}

	from, to := period.Bounds(c.loc)
	punches, err := c.store.PunchesBetween(ctx, w.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading punches for %s: %w", w.ID, err)
	}
	byDate := make(map[Date][]Punch)
	for _, p := range punches {
		if !p.IsActive() {
			continue
		}
		d := DateOf(p.Timestamp, c.loc)
		byDate[d] = append(byDate[d], p)
	}

	holidays, err := c.store.HolidaysBetween(ctx, w.CompanyID, period)
	if err != nil {
		return nil, fmt.Errorf("loading holidays: %w", err)
	}
	holidayNames := make(map[Date]string, len(holidays))
	for _, h := range holidays {
		holidayNames[h.Date] = h.Name
	}

	justifications, err := c.store.ApprovedJustifications(ctx, w.ID, period)
	if err != nil {
		return nil, fmt.Errorf("loading justifications: %w", err)
	}

	today := DateOf(c.clock.Now(), c.loc)
	expected := int64(sched.ExpectedDuration() / time.Second)

	for _, d := range period.Days() {
		rec := DayRecord{Date: d, Workday: sched.IsWorkday(d)}
		holidayName, isHoliday := holidayNames[d]
		dayPunches := byDate[d]

		var summary *DaySummary
		if len(dayPunches) > 0 {
			s := AggregateDay(d, dayPunches, d.Equal(today))
			summary = &s
			rec.Summary = summary
			if s.HasAnomalies() {
				totals.AnomalyDays++
			}
		}

		switch {
		case isHoliday:
			rec.Kind, rec.HolidayName = DayHoliday, holidayName
			if summary != nil {
				rec.Overtime100Seconds = summary.WorkedSeconds
				totals.DaysWorked++
			}

		case summary != nil:
			rec.Kind = DayWorked
			totals.DaysWorked++
			if d.IsSunday() {
				rec.Overtime100Seconds = summary.WorkedSeconds
			} else {
				rec.OrdinarySeconds = min(summary.WorkedSeconds, expected)
				rec.Overtime50Seconds = summary.WorkedSeconds - rec.OrdinarySeconds
			}
			if rec.Workday && !d.IsWeekend() && summary.FirstEntry != nil {
				rec.LateMinutes = c.lateMinutes(d, sched.ExpectedStart, *summary.FirstEntry)
			}

		case covered(justifications, JustificationVacation, d):
			rec.Kind = DayVacation
			totals.VacationDays++

		case covered(justifications, JustificationMedicalLeave, d):
			rec.Kind = DayMedicalLeave
			totals.MedicalLeaveDays++

		case covered(justifications, JustificationAdministrative, d):
			rec.Kind = DayAdministrative
			totals.AdministrativeDays++

		case !rec.Workday:
			rec.Kind = DayRest

		case d.After(today):
			rec.Kind = DayUpcoming

		default:
			rec.Kind = DayAbsent
			totals.AbsenceDays++
		}

		totals.OrdinarySeconds += rec.OrdinarySeconds
		totals.Overtime50Seconds += rec.Overtime50Seconds
		totals.Overtime100Seconds += rec.Overtime100Seconds
		totals.LateMinutes += rec.LateMinutes
		totals.Days = append(totals.Days, rec)
	}

	totals.Observations = append(totals.Observations, observations(totals)...)
	return totals, nil
}

// CompanyTotals aggregates every active worker of a company, or of every
// company when company is empty. A worker that fails to resolve gets an
// empty row carrying the error as an observation.
func (c *PayrollCalculator) CompanyTotals(ctx context.Context, company CompanyID, period Period) ([]PeriodTotals, error) {
	role := RoleWorker
	filter := WorkerFilter{Role: &role, ActiveOnly: true}
	if company != "" {
		filter.CompanyID = &company
	}
	workers, err := c.store.ListWorkers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].Name < workers[j].Name })

	result := make([]PeriodTotals, 0, len(workers))
	for _, w := range workers {
		t, err := c.PeriodTotals(ctx, w.ID, period)
		if err != nil {
			if errors.Is(err, ErrInvalidPeriod) {
				return nil, err
			}
			result = append(result, PeriodTotals{
				WorkerID:     w.ID,
				CompanyID:    w.CompanyID,
				Unassigned:   w.CompanyID == "",
				Period:       period,
				Observations: []string{err.Error()},
			})
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

func (c *PayrollCalculator) lateMinutes(d Date, start ClockTime, firstEntry time.Time) int {
	late := firstEntry.In(c.loc).Sub(start.On(d, c.loc)) - c.rules.PayrollLateTolerance
	if late <= 0 {
		return 0
	}
	return int(late / time.Minute)
}

// covered reports whether any approved justification of kind covers d.
// Overlapping ranges are not deduplicated; precedence decides the label.
func covered(js []Justification, kind JustificationKind, d Date) bool {
	for _, j := range js {
		if j.Kind == kind && j.Status == ApprovalApproved && j.Covers(d) {
			return true
		}
	}
	return false
}

func observations(t *PeriodTotals) []string {
	var obs []string
	if t.AbsenceDays > 0 {
		obs = append(obs, fmt.Sprintf("%d unjustified absences", t.AbsenceDays))
	}
	if t.VacationDays > 0 {
		obs = append(obs, fmt.Sprintf("%d vacation days", t.VacationDays))
	}
	if t.MedicalLeaveDays > 0 {
		obs = append(obs, fmt.Sprintf("%d medical leave days", t.MedicalLeaveDays))
	}
	if t.AdministrativeDays > 0 {
		obs = append(obs, fmt.Sprintf("%d administrative days", t.AdministrativeDays))
	}
	if t.AnomalyDays > 0 {
		obs = append(obs, fmt.Sprintf("%d days with punch anomalies", t.AnomalyDays))
	}
	return obs
}

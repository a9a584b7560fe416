package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Scope selects the workers a shift listing covers. Exactly one of the
// fields is set.
type Scope struct {
	WorkerID  WorkerID
	CompanyID CompanyID
}

// ShiftRecord is one paired interval for audit display.
type ShiftRecord struct {
	WorkerID WorkerID
	Date     Date
	Shift
}

// Reports is the read surface consumed by report generators.
type Reports struct {
	store   Store
	payroll *PayrollCalculator
	ledger  *Ledger
	clock   Clock
	loc     *time.Location
}

func NewReports(store Store, payroll *PayrollCalculator, ledger *Ledger, clock Clock, loc *time.Location) *Reports {
	return &Reports{store: store, payroll: payroll, ledger: ledger, clock: clock, loc: loc}
}

func (r *Reports) PeriodTotals(ctx context.Context, worker WorkerID, period Period) (*PeriodTotals, error) {
	return r.payroll.PeriodTotals(ctx, worker, period)
}

func (r *Reports) CompanyTotals(ctx context.Context, company CompanyID, period Period) ([]PeriodTotals, error) {
	return r.payroll.CompanyTotals(ctx, company, period)
}

func (r *Reports) VerifyChain(ctx context.Context, worker WorkerID) (bool, error) {
	return r.ledger.VerifyChain(ctx, worker, nil)
}

func (r *Reports) Audit(ctx context.Context, worker WorkerID) (*ChainReport, error) {
	return r.ledger.Audit(ctx, worker)
}

// MoodEntries lists the company's ACTIVE exits that carry a mood, newest
// first.
func (r *Reports) MoodEntries(ctx context.Context, company CompanyID, period Period) ([]Punch, error) {
	if company == "" {
		return nil, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	from, to := period.Bounds(r.loc)
	punches, err := r.store.CompanyPunchesBetween(ctx, company, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading punches: %w", err)
	}

	var out []Punch
	for _, p := range punches {
		if p.Kind == PunchExit && p.IsActive() && p.Mood != MoodNone {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// DayShifts pairs ACTIVE punches across the whole range in timestamp order,
// resetting whenever the worker changes. Shifts may cross midnight; each is
// dated by its entry (or its exit when orphaned). Breaks inside an open
// shift are subtracted from it.
func (r *Reports) DayShifts(ctx context.Context, scope Scope, period Period) ([]ShiftRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	from, to := period.Bounds(r.loc)

	var punches []Punch
	var err error
	switch {
	case scope.WorkerID != "":
		punches, err = r.store.PunchesBetween(ctx, scope.WorkerID, from, to)
	case scope.CompanyID != "":
		punches, err = r.store.CompanyPunchesBetween(ctx, scope.CompanyID, from, to)
	default:
		return nil, fmt.Errorf("%w: scope needs a worker or a company", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("loading punches: %w", err)
	}

	active := make([]Punch, 0, len(punches))
	for _, p := range punches {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].WorkerID != active[j].WorkerID {
			return active[i].WorkerID < active[j].WorkerID
		}
		if active[i].Timestamp.Equal(active[j].Timestamp) {
			return active[i].Seq < active[j].Seq
		}
		return active[i].Timestamp.Before(active[j].Timestamp)
	})

	today := DateOf(r.clock.Now(), r.loc)
	p := shiftPairer{loc: r.loc, today: today}
	for i := range active {
		p.feed(&active[i])
	}
	p.flush()
	return p.records, nil
}

type shiftPairer struct {
	loc        *time.Location
	today      Date
	worker     WorkerID
	open       *Punch
	breakStart *Punch
	breaks     int64
	records    []ShiftRecord
}

func (sp *shiftPairer) feed(p *Punch) {
	if p.WorkerID != sp.worker {
		sp.flush()
		sp.worker = p.WorkerID
	}

	switch p.Kind {
	case PunchEntry:
		if sp.open != nil {
			sp.emit(openShift(sp.open, sp.breaks, ShiftUnresolved), sp.open)
		}
		sp.open, sp.breaks = p, 0

	case PunchExit:
		if sp.open == nil {
			sp.emit(Shift{ExitID: idPtr(p.ID), ExitAt: timePtr(p.Timestamp), Status: ShiftOrphanExit, Manual: p.Manual}, p)
			return
		}
		shift := openShift(sp.open, sp.breaks, ShiftClosed)
		shift.ExitID, shift.ExitAt = idPtr(p.ID), timePtr(p.Timestamp)
		shift.Seconds = netSeconds(p.Timestamp.Sub(sp.open.Timestamp), sp.breaks)
		shift.Manual = shift.Manual || p.Manual
		sp.emit(shift, sp.open)
		sp.open, sp.breaks = nil, 0

	case PunchBreakStart:
		sp.breakStart = p

	case PunchBreakEnd:
		if sp.breakStart != nil && sp.open != nil {
			sp.breaks += int64(p.Timestamp.Sub(sp.breakStart.Timestamp) / time.Second)
		}
		sp.breakStart = nil
	}
}

// flush closes out the current worker's open shift.
func (sp *shiftPairer) flush() {
	if sp.open != nil {
		status := ShiftMissingExit
		if DateOf(sp.open.Timestamp, sp.loc).Equal(sp.today) {
			status = ShiftOpen
		}
		sp.emit(openShift(sp.open, sp.breaks, status), sp.open)
	}
	sp.open, sp.breakStart, sp.breaks = nil, nil, 0
}

func (sp *shiftPairer) emit(s Shift, anchor *Punch) {
	sp.records = append(sp.records, ShiftRecord{
		WorkerID: anchor.WorkerID,
		Date:     DateOf(anchor.Timestamp, sp.loc),
		Shift:    s,
	})
}

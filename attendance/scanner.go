/*
scanner.go - Alerting Scanner

PURPOSE:
  Periodic sweep over active workers. Raises advisory alerts; never
  touches punches except for the forgotten-exit flag.

ALERTS:
  ABSENCE        now > expected start + AbsenceTolerance, no ENTRY today,
                 scheduled workday, not weekend, not holiday, no approved
                 justification.
  EXCESS_HOURS   latest punch today is ENTRY or BREAK_END and the time since
                 the first ENTRY exceeds daily hours + FatigueMargin.
  FORGOTTEN_EXIT (SweepForgottenExits) an ACTIVE ENTRY older than
                 ForgottenExitAfter with no later EXIT.

DEDUPLICATION:
  ABSENCE and EXCESS_HOURS claim an AlertLog row (worker, date, kind)
  before notifying; FORGOTTEN_EXIT sets the punch's own flag first. Only
  the caller that wins the claim notifies, so overlapping runs are safe.
  Notifier failures are logged and not retried here.
*/
package attendance

import (
	"context"
	"fmt"
	"time"
)

type ScanReport struct {
	StartedAt     time.Time
	Checked       int
	Absence       int
	ExcessHours   int
	ForgottenExit int
	Failures      int
}

type Scanner struct {
	store    Store
	policy   *SchedulePolicy
	notifier Notifier
	clock    Clock
	loc      *time.Location
	rules    Rules
	logger   Logger
}

func NewScanner(store Store, policy *SchedulePolicy, notifier Notifier, clock Clock, loc *time.Location, rules Rules, logger Logger) *Scanner {
	return &Scanner{
		store:    store,
		policy:   policy,
		notifier: notifier,
		clock:    clock,
		loc:      loc,
		rules:    rules,
		logger:   logger,
	}
}

// Scan checks absence and excess hours for every active worker.
func (sc *Scanner) Scan(ctx context.Context) (*ScanReport, error) {
	now := sc.clock.Now()
	today := DateOf(now, sc.loc)
	report := &ScanReport{StartedAt: now}

	role := RoleWorker
	workers, err := sc.store.ListWorkers(ctx, WorkerFilter{Role: &role, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}

	companies := make(map[CompanyID]*Company)
	for _, w := range workers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		if err := sc.scanWorker(ctx, w, sc.company(ctx, companies, w.CompanyID), now, today, report); err != nil {
			report.Failures++
			sc.logger.Error("alert scan failed for worker", "worker", w.ID, "error", err)
		}
	}

	sc.logger.Info("alert scan finished",
		"checked", report.Checked, "absence", report.Absence, "excess_hours", report.ExcessHours, "failures", report.Failures)
	return report, nil
}

func (sc *Scanner) scanWorker(ctx context.Context, w Worker, company *Company, now time.Time, today Date, report *ScanReport) error {
	sched, err := sc.policy.lookup(ctx, w.ID)
	if err != nil {
		return err
	}

	from, to := Period{Start: today, End: today}.Bounds(sc.loc)
	punches, err := sc.store.PunchesBetween(ctx, w.ID, from, to)
	if err != nil {
		return fmt.Errorf("loading punches: %w", err)
	}
	active := activeSorted(punches)

	var firstEntry *Punch
	for i := range active {
		if active[i].Kind == PunchEntry {
			firstEntry = &active[i]
			break
		}
	}

	absent, err := sc.shouldAlertAbsence(ctx, w, sched, today, now, firstEntry != nil)
	if err != nil {
		return err
	}
	if absent {
		detail := fmt.Sprintf("no entry by %s (expected %s)", now.In(sc.loc).Format("15:04"), sched.ExpectedStart)
		if sc.claimAndNotify(ctx, AlertAbsence, w, company, today, nil, detail, now) {
			report.Absence++
		}
	}

	if len(active) > 0 && firstEntry != nil {
		last := active[len(active)-1]
		inside := last.Kind == PunchEntry || last.Kind == PunchBreakEnd
		limit := sched.ExpectedDuration() + sc.rules.FatigueMargin
		if elapsed := now.Sub(firstEntry.Timestamp); inside && elapsed > limit {
			detail := fmt.Sprintf("inside for %s since %s", elapsed.Truncate(time.Minute), firstEntry.Timestamp.In(sc.loc).Format("15:04"))
			if sc.claimAndNotify(ctx, AlertExcessHours, w, company, today, &firstEntry.ID, detail, now) {
				report.ExcessHours++
			}
		}
	}
	return nil
}

func (sc *Scanner) shouldAlertAbsence(ctx context.Context, w Worker, sched Schedule, today Date, now time.Time, hasEntry bool) (bool, error) {
	if hasEntry || today.IsWeekend() || !sched.IsWorkday(today) {
		return false, nil
	}
	if !now.After(sched.ExpectedStart.On(today, sc.loc).Add(sc.rules.AbsenceTolerance)) {
		return false, nil
	}

	holidays, err := sc.store.HolidaysBetween(ctx, w.CompanyID, Period{Start: today, End: today})
	if err != nil {
		return false, fmt.Errorf("loading holidays: %w", err)
	}
	if len(holidays) > 0 {
		return false, nil
	}

	justifications, err := sc.store.ApprovedJustifications(ctx, w.ID, Period{Start: today, End: today})
	if err != nil {
		return false, fmt.Errorf("loading justifications: %w", err)
	}
	for _, j := range justifications {
		if j.Status == ApprovalApproved && j.Covers(today) {
			return false, nil
		}
	}
	return true, nil
}

// claimAndNotify returns true when this call won the claim.
func (sc *Scanner) claimAndNotify(ctx context.Context, kind AlertKind, w Worker, company *Company, day Date, punch *PunchID, detail string, now time.Time) bool {
	claimed, err := sc.store.ClaimAlert(ctx, AlertLogEntry{WorkerID: w.ID, Date: day, Kind: kind, CreatedAt: now.UTC()})
	if err != nil {
		sc.logger.Error("claiming alert failed", "worker", w.ID, "kind", kind, "error", err)
		return false
	}
	if !claimed {
		return false
	}
	sc.notify(ctx, Alert{Kind: kind, Worker: w, Company: company, Date: day, PunchID: punch, Detail: detail, At: now})
	return true
}

// SweepForgottenExits reports ENTRY punches left open past the threshold.
func (sc *Scanner) SweepForgottenExits(ctx context.Context) (*ScanReport, error) {
	now := sc.clock.Now()
	report := &ScanReport{StartedAt: now}

	entries, err := sc.store.UnflaggedEntries(ctx, now.Add(-sc.rules.ForgottenExitLookback), now.Add(-sc.rules.ForgottenExitAfter))
	if err != nil {
		return nil, fmt.Errorf("loading open entries: %w", err)
	}

	companies := make(map[CompanyID]*Company)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		closed, err := sc.hasLaterExit(ctx, entry, now)
		if err != nil {
			report.Failures++
			sc.logger.Error("forgotten exit check failed", "punch", entry.ID, "error", err)
			continue
		}
		if closed {
			continue
		}

		marked, err := sc.store.MarkForgottenExitAlerted(ctx, entry.ID)
		if err != nil {
			report.Failures++
			sc.logger.Error("flagging forgotten exit failed", "punch", entry.ID, "error", err)
			continue
		}
		if !marked {
			continue
		}

		w, err := sc.store.GetWorker(ctx, entry.WorkerID)
		if err != nil {
			report.Failures++
			sc.logger.Error("loading worker for forgotten exit failed", "worker", entry.WorkerID, "error", err)
			continue
		}
		id := entry.ID
		sc.notify(ctx, Alert{
			Kind:    AlertForgottenExit,
			Worker:  *w,
			Company: sc.company(ctx, companies, w.CompanyID),
			Date:    DateOf(entry.Timestamp, sc.loc),
			PunchID: &id,
			Detail:  fmt.Sprintf("entry at %s has no exit", entry.Timestamp.In(sc.loc).Format("2006-01-02 15:04")),
			At:      now,
		})
		report.ForgottenExit++
	}

	sc.logger.Info("forgotten exit sweep finished",
		"checked", report.Checked, "alerted", report.ForgottenExit, "failures", report.Failures)
	return report, nil
}

func (sc *Scanner) hasLaterExit(ctx context.Context, entry Punch, now time.Time) (bool, error) {
	later, err := sc.store.PunchesBetween(ctx, entry.WorkerID, entry.Timestamp, now.Add(time.Second))
	if err != nil {
		return false, err
	}
	for _, p := range later {
		if p.IsActive() && p.Kind == PunchExit && p.Timestamp.After(entry.Timestamp) {
			return true, nil
		}
	}
	return false, nil
}

func (sc *Scanner) notify(ctx context.Context, a Alert) {
	if err := sc.notifier.Notify(ctx, a); err != nil {
		sc.logger.Error("alert delivery failed", "worker", a.Worker.ID, "kind", a.Kind, "error", err)
	}
}

// company caches company lookups for one run. Missing companies yield nil.
func (sc *Scanner) company(ctx context.Context, cache map[CompanyID]*Company, id CompanyID) *Company {
	if id == "" {
		return nil
	}
	if c, ok := cache[id]; ok {
		return c
	}
	c, err := sc.store.GetCompany(ctx, id)
	if err != nil {
		sc.logger.Warn("company lookup failed", "company", id, "error", err)
		c = nil
	}
	cache[id] = c
	return c
}

package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/attendance/store"
	"github.com/warp/punchclock/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// env wires the engine on a memory store in UTC. 2025-03-10 is a Monday.
type env struct {
	t        *testing.T
	ctx      context.Context
	store    *store.Memory
	clock    *testutil.StubClock
	ids      *testutil.SequentialIDs
	ledger   *attendance.Ledger
	policy   *attendance.SchedulePolicy
	payroll  *attendance.PayrollCalculator
	notifier *recordingNotifier
	scanner  *attendance.Scanner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m := store.NewMemory()
	clock := testutil.NewStubClock(at(2025, time.March, 10, 12, 0))
	ids := testutil.NewSequentialIDs("id")
	logger := attendance.NewNopLogger()
	policy := attendance.NewSchedulePolicy(m)
	notifier := &recordingNotifier{}
	rules := attendance.DefaultRules()

	e := &env{
		t:        t,
		ctx:      context.Background(),
		store:    m,
		clock:    clock,
		ids:      ids,
		ledger:   attendance.NewLedger(m, clock, ids, logger),
		policy:   policy,
		payroll:  attendance.NewPayrollCalculator(m, policy, clock, time.UTC, rules),
		notifier: notifier,
		scanner:  attendance.NewScanner(m, policy, notifier, clock, time.UTC, rules, logger),
	}
	require.NoError(t, m.SaveCompany(e.ctx, attendance.Company{ID: "acme", Name: "Acme", HREmail: "hr@acme.test"}))
	return e
}

// worker saves an active worker of acme with the default schedule.
func (e *env) worker(id attendance.WorkerID, role attendance.Role) attendance.Worker {
	e.t.Helper()
	w := attendance.Worker{ID: id, Name: string(id), Role: role, CompanyID: "acme", Active: true}
	require.NoError(e.t, e.store.SaveWorker(e.ctx, w))
	require.NoError(e.t, e.store.SaveSchedule(e.ctx, attendance.DefaultSchedule(id)))
	return w
}

func (e *env) punch(worker attendance.WorkerID, kind attendance.PunchKind, ts time.Time) *attendance.Punch {
	e.t.Helper()
	p, err := e.ledger.Record(e.ctx, attendance.PunchInput{WorkerID: worker, Kind: kind, Timestamp: ts})
	require.NoError(e.t, err)
	return p
}

func (e *env) approve(worker attendance.WorkerID, kind attendance.JustificationKind, start, end attendance.Date) {
	e.t.Helper()
	require.NoError(e.t, e.store.SaveJustification(e.ctx, attendance.Justification{
		ID:       attendance.JustificationID(e.ids.New()),
		WorkerID: worker,
		Kind:     kind,
		Start:    start,
		End:      end,
		HalfDay:  attendance.HalfDayFull,
		Status:   attendance.ApprovalApproved,
	}))
}

func (e *env) holiday(d attendance.Date, name string) {
	e.t.Helper()
	require.NoError(e.t, e.store.SaveHoliday(e.ctx, attendance.Holiday{
		ID: attendance.HolidayID(e.ids.New()), Date: d, Name: name,
	}))
}

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return testutil.At(time.UTC, year, month, day, hour, minute)
}

func date(year int, month time.Month, day int) attendance.Date {
	return attendance.NewDate(year, month, day)
}

// mkPunch builds an ACTIVE punch without going through the ledger.
func mkPunch(id string, seq int64, kind attendance.PunchKind, ts time.Time) attendance.Punch {
	return attendance.Punch{
		ID:        attendance.PunchID(id),
		WorkerID:  "w1",
		Seq:       seq,
		Timestamp: ts,
		Kind:      kind,
		Status:    attendance.PunchActive,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []attendance.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a attendance.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) kinds() []attendance.AlertKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]attendance.AlertKind, 0, len(n.alerts))
	for _, a := range n.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

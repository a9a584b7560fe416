package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/store/sqlite"
	"github.com/warp/punchclock/testutil"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveCompany(ctx, attendance.Company{ID: "acme", Name: "Acme", HREmail: "hr@acme.test"}))
	for _, id := range []attendance.WorkerID{"w1", "w2"} {
		require.NoError(t, store.SaveWorker(ctx, attendance.Worker{
			ID: id, Name: string(id), Role: attendance.RoleWorker, CompanyID: "acme", Active: true,
		}))
	}
	return store
}

func newTestLedger(store *sqlite.Store) *attendance.Ledger {
	clock := testutil.NewStubClock(time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC))
	return attendance.NewLedger(store, clock, attendance.UUIDGenerator{}, attendance.NewNopLogger())
}

func march10(hour, minute int) time.Time {
	return time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
}

// =============================================================================
// SCHEMA
// =============================================================================

func TestStore_SchemaIsCurrentAfterNew(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.CheckSchema())
}

// =============================================================================
// PUNCH CHAIN
// =============================================================================

func TestStore_RoundTripsPunchFields(t *testing.T) {
	store := newTestStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	lat := decimal.RequireFromString("-33.4488897")
	lon := decimal.RequireFromString("-70.6692655")
	created, err := ledger.Record(ctx, attendance.PunchInput{
		WorkerID:    "w1",
		Kind:        attendance.PunchEntry,
		Timestamp:   march10(9, 3).Add(123456789 * time.Nanosecond),
		Location:    attendance.NewLocation(lat, lon),
		Address:     "Alameda 123",
		PhotoRef:    "photos/w1/1.jpg",
		Mood:        attendance.MoodHappy,
		MoodComment: "ok",
	})
	require.NoError(t, err)

	got, err := store.GetPunch(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(created.Timestamp))
	assert.Equal(t, created.SelfHash, got.SelfHash)
	assert.Equal(t, attendance.GenesisHash, got.PrevHash)
	assert.True(t, got.Location.Latitude.Equal(lat))
	assert.True(t, got.Location.Longitude.Equal(lon))
	assert.Equal(t, "Alameda 123", got.Address)
	assert.Equal(t, attendance.MoodHappy, got.Mood)
	assert.Equal(t, attendance.PunchActive, got.Status)
	assert.Nil(t, got.SupersededBy)
}

func TestStore_DuplicateSeq_ChainConflict(t *testing.T) {
	// GIVEN: Two writers that read the same (empty) chain head
	// WHEN: Both insert seq 1
	// THEN: The second insert fails with ErrChainConflict

	store := newTestStore(t)
	ctx := context.Background()
	ts := march10(9, 0)
	p := attendance.Punch{
		ID: "a", WorkerID: "w1", Seq: 1, Timestamp: ts, Kind: attendance.PunchEntry, Status: attendance.PunchActive,
		PrevHash: attendance.GenesisHash, SelfHash: attendance.ComputeHash("w1", ts, attendance.PunchEntry, attendance.GenesisHash),
	}
	require.NoError(t, store.AppendPunch(ctx, p))

	p.ID = "b"
	err := store.AppendPunch(ctx, p)
	assert.ErrorIs(t, err, attendance.ErrChainConflict)
	assert.True(t, attendance.IsRetryable(err))
}

func TestStore_UnknownWorker_NotFound(t *testing.T) {
	store := newTestStore(t)
	ledger := newTestLedger(store)

	_, err := ledger.Record(context.Background(), attendance.PunchInput{
		WorkerID: "ghost", Kind: attendance.PunchEntry, Timestamp: march10(9, 0),
	})
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestStore_ConcurrentRecords_ChainStaysLinear(t *testing.T) {
	// GIVEN: Twenty goroutines punching for the same worker
	// WHEN: All complete
	// THEN: Seq is 1..20 and the chain verifies

	store := newTestStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.Record(ctx, attendance.PunchInput{
				WorkerID: "w1", Kind: attendance.PunchBreakStart, Timestamp: march10(9, i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	chain, err := store.Chain(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, chain, 20)
	for i, p := range chain {
		assert.Equal(t, int64(i+1), p.Seq)
	}

	ok, err := ledger.VerifyChain(ctx, "w1", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_TamperedRow_FailsVerification(t *testing.T) {
	// GIVEN: A recorded ENTRY/EXIT pair
	// WHEN: The EXIT row's timestamp is rewritten directly in the database
	// THEN: VerifyChain returns false

	store := newTestStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	_, err := ledger.Record(ctx, attendance.PunchInput{WorkerID: "w1", Kind: attendance.PunchEntry, Timestamp: march10(9, 0)})
	require.NoError(t, err)
	exit, err := ledger.Record(ctx, attendance.PunchInput{WorkerID: "w1", Kind: attendance.PunchExit, Timestamp: march10(18, 0)})
	require.NoError(t, err)

	_, err = store.DB().ExecContext(ctx, `UPDATE punches SET timestamp = ? WHERE id = ?`,
		attendance.CanonicalTimestamp(march10(19, 0)), exit.ID)
	require.NoError(t, err)

	ok, err := ledger.VerifyChain(ctx, "w1", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_WithTx_RollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s attendance.Store) error {
		require.NoError(t, s.SaveCompany(ctx, attendance.Company{ID: "tmp", Name: "Tmp"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetCompany(ctx, "tmp")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestStore_PunchesBetween_HalfOpenRange(t *testing.T) {
	store := newTestStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	for _, ts := range []time.Time{march10(9, 0), march10(13, 0), march10(18, 0)} {
		_, err := ledger.Record(ctx, attendance.PunchInput{WorkerID: "w1", Kind: attendance.PunchBreakStart, Timestamp: ts})
		require.NoError(t, err)
	}

	got, err := store.PunchesBetween(ctx, "w1", march10(9, 0), march10(18, 0))
	require.NoError(t, err)
	assert.Len(t, got, 2, "upper bound is exclusive")

	company, err := store.CompanyPunchesBetween(ctx, "acme", march10(0, 0), march10(23, 59))
	require.NoError(t, err)
	assert.Len(t, company, 3)
}

func TestStore_SupersedeAndForgottenFlag(t *testing.T) {
	store := newTestStore(t)
	ledger := newTestLedger(store)
	ctx := context.Background()

	entry, err := ledger.Record(ctx, attendance.PunchInput{WorkerID: "w1", Kind: attendance.PunchEntry, Timestamp: march10(8, 0)})
	require.NoError(t, err)

	open, err := store.UnflaggedEntries(ctx, march10(0, 0), march10(12, 0))
	require.NoError(t, err)
	require.Len(t, open, 1)

	marked, err := store.MarkForgottenExitAlerted(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = store.MarkForgottenExitAlerted(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	require.NoError(t, store.SupersedePunch(ctx, entry.ID, "replacement"))
	err = store.SupersedePunch(ctx, entry.ID, "replacement-2")
	assert.ErrorIs(t, err, attendance.ErrStateTransition)

	err = store.SupersedePunch(ctx, "missing", "x")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

// =============================================================================
// SUPPORTING TABLES
// =============================================================================

func TestStore_ScheduleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSchedule(ctx, "w1")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	s := attendance.Schedule{
		WorkerID:      "w1",
		Workdays:      [7]bool{true, false, true, false, true, true, false},
		ExpectedStart: attendance.ClockTime{Hour: 8, Minute: 30},
		DailyHours:    8,
	}
	require.NoError(t, store.SaveSchedule(ctx, s))

	got, err := store.GetSchedule(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, s.Workdays, got.Workdays)
	assert.Equal(t, s.ExpectedStart, got.ExpectedStart)
	assert.Equal(t, 8, got.DailyHours)
}

func TestStore_CorrectionsFilteredByCompany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveCompany(ctx, attendance.Company{ID: "other", Name: "Other"}))
	require.NoError(t, store.SaveWorker(ctx, attendance.Worker{ID: "w3", Role: attendance.RoleWorker, CompanyID: "other", Active: true}))

	for i, w := range []attendance.WorkerID{"w1", "w2", "w3"} {
		require.NoError(t, store.SaveCorrection(ctx, attendance.CorrectionRequest{
			ID: attendance.CorrectionID(w), WorkerID: w, RequesterID: w, Kind: attendance.CorrectionNew,
			ProposedAt: march10(9, i), ProposedKind: attendance.PunchEntry, Reason: "forgot",
			Status: attendance.CorrectionPending, CreatedAt: march10(10, i), UpdatedAt: march10(10, i),
		}))
	}

	company := attendance.CompanyID("acme")
	status := attendance.CorrectionPending
	got, err := store.ListCorrections(ctx, attendance.CorrectionFilter{CompanyID: &company, Status: &status})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, attendance.WorkerID("w1"), got[0].WorkerID)
	assert.True(t, got[0].ProposedAt.Equal(march10(9, 0)))
}

func TestStore_AlertClaimAndHolidays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := attendance.NewDate(2025, time.March, 10)

	first, err := store.ClaimAlert(ctx, attendance.AlertLogEntry{WorkerID: "w1", Date: day, Kind: attendance.AlertAbsence})
	require.NoError(t, err)
	second, err := store.ClaimAlert(ctx, attendance.AlertLogEntry{WorkerID: "w1", Date: day, Kind: attendance.AlertAbsence})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	require.NoError(t, store.SaveHoliday(ctx, attendance.Holiday{ID: "h1", Date: day, Name: "Global"}))
	require.NoError(t, store.SaveHoliday(ctx, attendance.Holiday{ID: "h2", CompanyID: "other", Date: day, Name: "Other"}))
	err = store.SaveHoliday(ctx, attendance.Holiday{ID: "h3", Date: day, Name: "Global"})
	assert.ErrorIs(t, err, attendance.ErrDuplicate)

	got, err := store.HolidaysBetween(ctx, "acme", attendance.Period{Start: day, End: day})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Global", got[0].Name)

	h2, err := store.GetHoliday(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, attendance.CompanyID("other"), h2.CompanyID)
	assert.Equal(t, day, h2.Date)

	require.NoError(t, store.DeleteHoliday(ctx, "h1"))
	_, err = store.GetHoliday(ctx, "h1")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
	assert.ErrorIs(t, store.DeleteHoliday(ctx, "h1"), attendance.ErrNotFound)
}

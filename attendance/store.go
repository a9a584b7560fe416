/*
store.go - Persistence interfaces for the attendance engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  PunchStore:         Per-worker hash chain (append + soft-state updates)
  CorrectionStore:    Correction requests
  ScheduleStore:      Per-worker schedule configuration
  JustificationStore: Vacation / medical leave / administrative days
  HolidayCalendar:    Company and global holidays
  AlertLog:           Per-day scanner dedup markers
  WorkerStore:        Workers and companies
  TxStore:            All of the above plus WithTx

APPEND-ONLY CONTRACT:
  Punches are never updated in place or deleted. The only mutations are
  SupersedePunch (ACTIVE -> SUPERSEDED) and MarkForgottenExitAlerted.

CHAIN SLOTS:
  AppendPunch must reject a punch whose (worker, seq) or (worker, prev_hash)
  is already taken with ErrChainConflict. Together with WithTx this makes
  "read head, hash, insert" atomic even across processes.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - attendance/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: The only caller of AppendPunch
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// PUNCHES
// =============================================================================

type PunchStore interface {
	// AppendPunch persists a new punch. This is the ONLY insert.
	AppendPunch(ctx context.Context, p Punch) error

	// ChainHead returns the punch with the highest Seq for the worker,
	// or nil when the worker has no punches.
	ChainHead(ctx context.Context, worker WorkerID) (*Punch, error)

	// LatestActiveEntry returns the ACTIVE ENTRY with the latest timestamp,
	// or nil when none exists.
	LatestActiveEntry(ctx context.Context, worker WorkerID) (*Punch, error)

	GetPunch(ctx context.Context, id PunchID) (*Punch, error)

	// Chain returns every punch of the worker in Seq order.
	Chain(ctx context.Context, worker WorkerID) ([]Punch, error)

	// PunchesBetween returns punches with from <= timestamp < to, any status,
	// ordered by timestamp then Seq.
	PunchesBetween(ctx context.Context, worker WorkerID, from, to time.Time) ([]Punch, error)

	// CompanyPunchesBetween is PunchesBetween for every worker of a company,
	// ordered by worker then timestamp.
	CompanyPunchesBetween(ctx context.Context, company CompanyID, from, to time.Time) ([]Punch, error)

	// SupersedePunch moves an ACTIVE punch to SUPERSEDED.
	SupersedePunch(ctx context.Context, id PunchID, by PunchID) error

	// UnflaggedEntries returns ACTIVE ENTRY punches in [from, to) that have
	// not triggered a forgotten-exit alert.
	UnflaggedEntries(ctx context.Context, from, to time.Time) ([]Punch, error)

	// MarkForgottenExitAlerted sets the flag. Returns false when it was
	// already set, so only one caller notifies.
	MarkForgottenExitAlerted(ctx context.Context, id PunchID) (bool, error)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

type CorrectionFilter struct {
	WorkerID  *WorkerID
	CompanyID *CompanyID
	Status    *CorrectionStatus
}

type CorrectionStore interface {
	SaveCorrection(ctx context.Context, r CorrectionRequest) error
	UpdateCorrection(ctx context.Context, r CorrectionRequest) error
	GetCorrection(ctx context.Context, id CorrectionID) (*CorrectionRequest, error)
	ListCorrections(ctx context.Context, filter CorrectionFilter) ([]CorrectionRequest, error)
}

// =============================================================================
// SCHEDULES
// =============================================================================

type ScheduleStore interface {
	// GetSchedule returns ErrNotFound when the worker has none.
	GetSchedule(ctx context.Context, worker WorkerID) (*Schedule, error)
	SaveSchedule(ctx context.Context, s Schedule) error
}

// =============================================================================
// JUSTIFICATIONS
// =============================================================================

type JustificationStore interface {
	SaveJustification(ctx context.Context, j Justification) error
	UpdateJustification(ctx context.Context, j Justification) error
	GetJustification(ctx context.Context, id JustificationID) (*Justification, error)
	ListJustifications(ctx context.Context, worker WorkerID) ([]Justification, error)

	// ApprovedJustifications returns APPROVED ranges overlapping the period.
	ApprovedJustifications(ctx context.Context, worker WorkerID, period Period) ([]Justification, error)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

type HolidayCalendar interface {
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id HolidayID) error
	GetHoliday(ctx context.Context, id HolidayID) (*Holiday, error)

	// HolidaysBetween returns the company's holidays plus global ones.
	HolidaysBetween(ctx context.Context, company CompanyID, period Period) ([]Holiday, error)
}

// =============================================================================
// ALERT LOG
// =============================================================================

type AlertLog interface {
	// ClaimAlert inserts the entry unless (worker, date, kind) exists.
	// Returns true only for the caller that inserted it.
	ClaimAlert(ctx context.Context, e AlertLogEntry) (bool, error)
	AlertsOn(ctx context.Context, date Date) ([]AlertLogEntry, error)
}

// =============================================================================
// WORKERS AND COMPANIES
// =============================================================================

type WorkerFilter struct {
	CompanyID  *CompanyID
	Role       *Role
	ActiveOnly bool
}

type WorkerStore interface {
	SaveWorker(ctx context.Context, w Worker) error
	GetWorker(ctx context.Context, id WorkerID) (*Worker, error)
	ListWorkers(ctx context.Context, filter WorkerFilter) ([]Worker, error)

	SaveCompany(ctx context.Context, c Company) error
	GetCompany(ctx context.Context, id CompanyID) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

type Store interface {
	PunchStore
	CorrectionStore
	ScheduleStore
	JustificationStore
	HolidayCalendar
	AlertLog
	WorkerStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

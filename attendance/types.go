/*
types.go - Core domain types for the attendance engine

PURPOSE:
  Defines the entities the rest of the engine operates on: punches,
  correction requests, schedules, justifications, holidays, alert log
  entries, workers and companies.

PUNCH LIFECYCLE:
  A punch is created either live (worker action) or by an accepted
  correction request (backdated, Manual=true). It is never deleted.
  The only post-insert mutations are:
    - Status ACTIVE -> SUPERSEDED (with SupersededBy set)
    - ForgottenExitAlerted false -> true

  Timestamp, Kind and WorkerID are immutable. They feed the hash chain
  (see chain.go) and any edit breaks verification for every later punch.

SEE ALSO:
  - ledger.go: The only writer of punches
  - chain.go: Hash computation and verification
  - correction.go: Correction request workflow
*/
package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	WorkerID        string
	CompanyID       string
	PunchID         string
	CorrectionID    string
	JustificationID string
	HolidayID       string
)

// =============================================================================
// PUNCH
// =============================================================================

// PunchKind is the type of swipe event.
type PunchKind string

const (
	PunchEntry      PunchKind = "ENTRY"
	PunchBreakStart PunchKind = "BREAK_START"
	PunchBreakEnd   PunchKind = "BREAK_END"
	PunchExit       PunchKind = "EXIT"
)

func (k PunchKind) Valid() bool {
	switch k {
	case PunchEntry, PunchBreakStart, PunchBreakEnd, PunchExit:
		return true
	}
	return false
}

// RequiresHardware reports whether the kind must carry a GPS fix and a photo.
func (k PunchKind) RequiresHardware() bool {
	return k == PunchEntry || k == PunchExit
}

// ParsePunchKind accepts the canonical names case-insensitively.
func ParsePunchKind(s string) (PunchKind, error) {
	k := PunchKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown punch kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// PunchStatus is the soft state of a punch.
type PunchStatus string

const (
	PunchActive     PunchStatus = "ACTIVE"
	PunchSuperseded PunchStatus = "SUPERSEDED"
	PunchVoided     PunchStatus = "VOIDED"
)

// Mood is the optional self-reported state captured with a punch.
type Mood string

const (
	MoodNone    Mood = ""
	MoodHappy   Mood = "HAPPY"
	MoodNeutral Mood = "NEUTRAL"
	MoodUpset   Mood = "UPSET"
)

func (m Mood) Valid() bool {
	switch m {
	case MoodNone, MoodHappy, MoodNeutral, MoodUpset:
		return true
	}
	return false
}

// Location is a GPS fix in decimal degrees, held at 7 decimal places.
// The zero value (0,0) means "GPS not detected".
type Location struct {
	Latitude  decimal.Decimal
	Longitude decimal.Decimal
}

const coordinatePlaces = 7

// NewLocation rounds both coordinates to 7 decimal places.
func NewLocation(lat, lon decimal.Decimal) Location {
	return Location{
		Latitude:  lat.Round(coordinatePlaces),
		Longitude: lon.Round(coordinatePlaces),
	}
}

// IsZero reports whether the location is the "no fix" sentinel.
func (l Location) IsZero() bool {
	return l.Latitude.IsZero() && l.Longitude.IsZero()
}

func (l Location) String() string {
	return l.Latitude.StringFixed(coordinatePlaces) + "," + l.Longitude.StringFixed(coordinatePlaces)
}

// Punch is one clock-in/out/break event. It is a link in its worker's
// hash chain.
type Punch struct {
	ID       PunchID
	WorkerID WorkerID
	// Seq is the strict per-worker append order, starting at 1.
	Seq       int64
	Timestamp time.Time
	Kind      PunchKind
	Status    PunchStatus

	SupersededBy *PunchID
	Replaces     *PunchID

	Location   Location
	Address    string
	RemoteAddr string
	PhotoRef   string

	Manual bool
	Note   string

	Mood        Mood
	MoodComment string

	ForgottenExitAlerted bool

	PrevHash  string
	SelfHash  string
	CreatedAt time.Time
}

func (p Punch) IsActive() bool { return p.Status == PunchActive }

// =============================================================================
// CORRECTION REQUEST
// =============================================================================

type CorrectionKind string

const (
	CorrectionNew     CorrectionKind = "NEW"
	CorrectionRectify CorrectionKind = "RECTIFY"
)

type CorrectionStatus string

const (
	CorrectionPending  CorrectionStatus = "PENDING"
	CorrectionAccepted CorrectionStatus = "ACCEPTED"
	CorrectionRejected CorrectionStatus = "REJECTED"
)

// CorrectionRequest proposes a new punch or the replacement of an existing one.
type CorrectionRequest struct {
	ID              CorrectionID
	WorkerID        WorkerID
	RequesterID     WorkerID
	Kind            CorrectionKind
	ProposedAt      time.Time
	ProposedKind    PunchKind
	Reason          string
	OriginalPunchID *PunchID
	Status          CorrectionStatus
	RespondedBy     *WorkerID
	RespondedAt     *time.Time
	ResultPunchID   *PunchID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// =============================================================================
// JUSTIFICATIONS
// =============================================================================

type JustificationKind string

const (
	JustificationVacation       JustificationKind = "VACATION"
	JustificationMedicalLeave   JustificationKind = "MEDICAL_LEAVE"
	JustificationAdministrative JustificationKind = "ADMINISTRATIVE_DAY"
)

func (k JustificationKind) Valid() bool {
	switch k {
	case JustificationVacation, JustificationMedicalLeave, JustificationAdministrative:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// HalfDay marks which part of an administrative day is taken.
// The engine treats every approved administrative day as a full justification.
type HalfDay string

const (
	HalfDayFull      HalfDay = "FULL"
	HalfDayMorning   HalfDay = "MORNING"
	HalfDayAfternoon HalfDay = "AFTERNOON"
)

// Justification is an absence-exempting date range. Only APPROVED ranges
// are consulted by the aggregators.
type Justification struct {
	ID        JustificationID
	WorkerID  WorkerID
	Kind      JustificationKind
	Start     Date
	End       Date
	HalfDay   HalfDay
	Status    ApprovalStatus
	Comment   string
	DecidedBy *WorkerID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j Justification) Covers(d Date) bool {
	return Period{Start: j.Start, End: j.End}.Contains(d)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holiday is a non-working day. An empty CompanyID makes it global.
type Holiday struct {
	ID        HolidayID
	CompanyID CompanyID
	Date      Date
	Name      string
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertKind string

const (
	AlertAbsence       AlertKind = "ABSENCE"
	AlertExcessHours   AlertKind = "EXCESS_HOURS"
	AlertForgottenExit AlertKind = "FORGOTTEN_EXIT"
)

// AlertLogEntry is the per-day dedup marker for scanner alerts.
type AlertLogEntry struct {
	WorkerID  WorkerID
	Date      Date
	Kind      AlertKind
	CreatedAt time.Time
}

// =============================================================================
// WORKERS AND COMPANIES
// =============================================================================

type Worker struct {
	ID         WorkerID
	Name       string
	NationalID string
	Email      string
	Title      string
	Role       Role
	CompanyID  CompanyID
	Active     bool
	CreatedAt  time.Time
}

type Company struct {
	ID        CompanyID
	Name      string
	LegalName string
	TaxID     string
	// HREmail receives alert copies for the company's workers.
	HREmail   string
	CreatedAt time.Time
}

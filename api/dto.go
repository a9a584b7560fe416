/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication so the domain types
  can evolve without breaking the device and web clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Timestamps are RFC3339 in the deployment location, dates YYYY-MM-DD,
  coordinates decimal strings with 7 places, hour figures both as
  decimal hours and as HH:MM.

VALIDATION:
  Validation is done by the attendance services, not in DTOs.

SEE ALSO:
  - handlers.go, reports.go: Use these types
*/
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/punchclock/attendance"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PunchRequest is what a device sends when the worker swipes.
type PunchRequest struct {
	Kind      string           `json:"kind"`
	Latitude  Coordinate `json:"latitude,omitzero"`
	Longitude Coordinate `json:"longitude,omitzero"`
	// Photo is a base64 data URL or bare base64.
	Photo           string `json:"photo,omitempty"`
	ClientTimestamp string `json:"client_timestamp,omitempty"`
	Mood            string `json:"mood,omitempty"`
	MoodComment     string `json:"mood_comment,omitempty"`
}

// Coordinate is a decimal degree sent as a JSON number or string. null,
// "" and NaN all mean the device had no fix.
type Coordinate struct {
	Value *decimal.Decimal
}

func NewCoordinate(d decimal.Decimal) Coordinate {
	return Coordinate{Value: &d}
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	if c.Value == nil {
		return []byte("null"), nil
	}
	return c.Value.MarshalJSON()
}

func (c *Coordinate) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" || strings.EqualFold(s, "nan") {
		c.Value = nil
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	c.Value = &d
	return nil
}

// CorrectionRequestBody proposes a missing punch or a rectification.
type CorrectionRequestBody struct {
	WorkerID        string `json:"worker_id,omitempty"`
	Kind            string `json:"kind"`
	ProposedAt      string `json:"proposed_at"`
	ProposedKind    string `json:"proposed_kind,omitempty"`
	Reason          string `json:"reason"`
	OriginalPunchID string `json:"original_punch_id,omitempty"`
}

type JustificationRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
	Kind     string `json:"kind"`
	Start    string `json:"start"`
	End      string `json:"end"`
	HalfDay  string `json:"half_day,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type HolidayRequest struct {
	CompanyID string `json:"company_id,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
}

type ScheduleBody struct {
	ExpectedStart string  `json:"expected_start"`
	DailyHours    int     `json:"daily_hours"`
	Workdays      [7]bool `json:"workdays"`
}

// CreateWorkerRequest registers or updates a worker.
type CreateWorkerRequest struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	NationalID string        `json:"national_id,omitempty"`
	Email      string        `json:"email,omitempty"`
	Title      string        `json:"title,omitempty"`
	Role       string        `json:"role,omitempty"`
	CompanyID  string        `json:"company_id,omitempty"`
	Active     *bool         `json:"active,omitempty"`
	Schedule   *ScheduleBody `json:"schedule,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type PunchDTO struct {
	ID           string           `json:"id"`
	WorkerID     string           `json:"worker_id"`
	Seq          int64            `json:"seq"`
	Timestamp    string           `json:"timestamp"`
	Kind         string           `json:"kind"`
	Status       string           `json:"status"`
	Latitude     *decimal.Decimal `json:"latitude,omitempty"`
	Longitude    *decimal.Decimal `json:"longitude,omitempty"`
	Address      string           `json:"address,omitempty"`
	PhotoRef     string           `json:"photo_ref,omitempty"`
	Manual       bool             `json:"manual"`
	Note         string           `json:"note,omitempty"`
	Mood         string           `json:"mood,omitempty"`
	MoodComment  string           `json:"mood_comment,omitempty"`
	SupersededBy *string          `json:"superseded_by,omitempty"`
	Replaces     *string          `json:"replaces,omitempty"`
	PrevHash     string           `json:"prev_hash"`
	SelfHash     string           `json:"self_hash"`
}

type ChainReportDTO struct {
	WorkerID string         `json:"worker_id"`
	Length   int            `json:"length"`
	Head     string         `json:"head"`
	Valid    bool           `json:"valid"`
	Broken   *BrokenLinkDTO `json:"broken,omitempty"`
}

type BrokenLinkDTO struct {
	PunchID  string `json:"punch_id"`
	Seq      int64  `json:"seq"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Reason   string `json:"reason"`
}

type CorrectionDTO struct {
	ID              string  `json:"id"`
	WorkerID        string  `json:"worker_id"`
	RequesterID     string  `json:"requester_id"`
	Kind            string  `json:"kind"`
	ProposedAt      string  `json:"proposed_at"`
	ProposedKind    string  `json:"proposed_kind"`
	Reason          string  `json:"reason"`
	OriginalPunchID *string `json:"original_punch_id,omitempty"`
	Status          string  `json:"status"`
	RespondedBy     *string `json:"responded_by,omitempty"`
	RespondedAt     *string `json:"responded_at,omitempty"`
	ResultPunchID   *string `json:"result_punch_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type JustificationDTO struct {
	ID        string  `json:"id"`
	WorkerID  string  `json:"worker_id"`
	Kind      string  `json:"kind"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	HalfDay   string  `json:"half_day"`
	Status    string  `json:"status"`
	Comment   string  `json:"comment,omitempty"`
	DecidedBy *string `json:"decided_by,omitempty"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
}

type WorkerDTO struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	NationalID string        `json:"national_id,omitempty"`
	Email      string        `json:"email,omitempty"`
	Title      string        `json:"title,omitempty"`
	Role       string        `json:"role"`
	CompanyID  string        `json:"company_id,omitempty"`
	Active     bool          `json:"active"`
	Schedule   *ScheduleBody `json:"schedule,omitempty"`
}

type ImportResultDTO struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// HoursDTO shows a duration both ways.
type HoursDTO struct {
	Hours decimal.Decimal `json:"hours"`
	HHMM  string          `json:"hhmm"`
}

type DayRecordDTO struct {
	Date           string   `json:"date"`
	Kind           string   `json:"kind"`
	Workday        bool     `json:"workday"`
	HolidayName    string   `json:"holiday_name,omitempty"`
	FirstEntry     *string  `json:"first_entry,omitempty"`
	LastExit       *string  `json:"last_exit,omitempty"`
	Classification string   `json:"classification,omitempty"`
	Anomalies      []string `json:"anomalies,omitempty"`
	Ordinary       HoursDTO `json:"ordinary"`
	Overtime50     HoursDTO `json:"overtime_50"`
	Overtime100    HoursDTO `json:"overtime_100"`
	LateMinutes    int      `json:"late_minutes"`
}

type PeriodTotalsDTO struct {
	WorkerID           string         `json:"worker_id"`
	CompanyID          string         `json:"company_id,omitempty"`
	Unassigned         bool           `json:"unassigned,omitempty"`
	DefaultSchedule    bool           `json:"default_schedule,omitempty"`
	From               string         `json:"from"`
	To                 string         `json:"to"`
	DaysWorked         int            `json:"days_worked"`
	Ordinary           HoursDTO       `json:"ordinary"`
	Overtime50         HoursDTO       `json:"overtime_50"`
	Overtime100        HoursDTO       `json:"overtime_100"`
	LateMinutes        int            `json:"late_minutes"`
	AbsenceDays        int            `json:"absence_days"`
	VacationDays       int            `json:"vacation_days"`
	MedicalLeaveDays   int            `json:"medical_leave_days"`
	AdministrativeDays int            `json:"administrative_days"`
	AnomalyDays        int            `json:"anomaly_days"`
	Observations       []string       `json:"observations,omitempty"`
	Days               []DayRecordDTO `json:"days,omitempty"`
}

type ShiftDTO struct {
	WorkerID string   `json:"worker_id"`
	Date     string   `json:"date"`
	EntryID  *string  `json:"entry_id,omitempty"`
	EntryAt  *string  `json:"entry_at,omitempty"`
	ExitID   *string  `json:"exit_id,omitempty"`
	ExitAt   *string  `json:"exit_at,omitempty"`
	Break    HoursDTO `json:"break"`
	Worked   HoursDTO `json:"worked"`
	Status   string   `json:"status"`
	Manual   bool     `json:"manual"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func hours(seconds int64) HoursDTO {
	return HoursDTO{Hours: attendance.Hours(seconds), HHMM: attendance.HHMM(seconds)}
}

func timeString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func optTime(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := timeString(*t, loc)
	return &s
}

func optString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toPunchDTO(p attendance.Punch, loc *time.Location) PunchDTO {
	dto := PunchDTO{
		ID:           string(p.ID),
		WorkerID:     string(p.WorkerID),
		Seq:          p.Seq,
		Timestamp:    timeString(p.Timestamp, loc),
		Kind:         string(p.Kind),
		Status:       string(p.Status),
		Address:      p.Address,
		PhotoRef:     p.PhotoRef,
		Manual:       p.Manual,
		Note:         p.Note,
		Mood:         string(p.Mood),
		MoodComment:  p.MoodComment,
		SupersededBy: optString(p.SupersededBy),
		Replaces:     optString(p.Replaces),
		PrevHash:     p.PrevHash,
		SelfHash:     p.SelfHash,
	}
	if !p.Location.IsZero() {
		lat, lon := p.Location.Latitude, p.Location.Longitude
		dto.Latitude, dto.Longitude = &lat, &lon
	}
	return dto
}

func toPunchDTOs(ps []attendance.Punch, loc *time.Location) []PunchDTO {
	dtos := make([]PunchDTO, 0, len(ps))
	for _, p := range ps {
		dtos = append(dtos, toPunchDTO(p, loc))
	}
	return dtos
}

func toChainReportDTO(r attendance.ChainReport) ChainReportDTO {
	dto := ChainReportDTO{WorkerID: string(r.WorkerID), Length: r.Length, Head: r.Head, Valid: r.Valid}
	if r.Broken != nil {
		dto.Broken = &BrokenLinkDTO{
			PunchID:  string(r.Broken.PunchID),
			Seq:      r.Broken.Seq,
			Expected: r.Broken.Expected,
			Actual:   r.Broken.Actual,
			Reason:   r.Broken.Reason,
		}
	}
	return dto
}

func toCorrectionDTO(c attendance.CorrectionRequest, loc *time.Location) CorrectionDTO {
	return CorrectionDTO{
		ID:              string(c.ID),
		WorkerID:        string(c.WorkerID),
		RequesterID:     string(c.RequesterID),
		Kind:            string(c.Kind),
		ProposedAt:      timeString(c.ProposedAt, loc),
		ProposedKind:    string(c.ProposedKind),
		Reason:          c.Reason,
		OriginalPunchID: optString(c.OriginalPunchID),
		Status:          string(c.Status),
		RespondedBy:     optString(c.RespondedBy),
		RespondedAt:     optTime(c.RespondedAt, loc),
		ResultPunchID:   optString(c.ResultPunchID),
		CreatedAt:       timeString(c.CreatedAt, loc),
	}
}

func toJustificationDTO(j attendance.Justification) JustificationDTO {
	return JustificationDTO{
		ID:        string(j.ID),
		WorkerID:  string(j.WorkerID),
		Kind:      string(j.Kind),
		Start:     j.Start.String(),
		End:       j.End.String(),
		HalfDay:   string(j.HalfDay),
		Status:    string(j.Status),
		Comment:   j.Comment,
		DecidedBy: optString(j.DecidedBy),
	}
}

func toHolidayDTO(h attendance.Holiday) HolidayDTO {
	return HolidayDTO{ID: string(h.ID), CompanyID: string(h.CompanyID), Date: h.Date.String(), Name: h.Name}
}

func toWorkerDTO(w attendance.Worker, s *attendance.Schedule) WorkerDTO {
	dto := WorkerDTO{
		ID:         string(w.ID),
		Name:       w.Name,
		NationalID: w.NationalID,
		Email:      w.Email,
		Title:      w.Title,
		Role:       string(w.Role),
		CompanyID:  string(w.CompanyID),
		Active:     w.Active,
	}
	if s != nil {
		dto.Schedule = &ScheduleBody{
			ExpectedStart: s.ExpectedStart.String(),
			DailyHours:    s.DailyHours,
			Workdays:      s.Workdays,
		}
	}
	return dto
}

func toPeriodTotalsDTO(t attendance.PeriodTotals, loc *time.Location, withDays bool) PeriodTotalsDTO {
	dto := PeriodTotalsDTO{
		WorkerID:           string(t.WorkerID),
		CompanyID:          string(t.CompanyID),
		Unassigned:         t.Unassigned,
		DefaultSchedule:    t.DefaultSchedule,
		From:               t.Period.Start.String(),
		To:                 t.Period.End.String(),
		DaysWorked:         t.DaysWorked,
		Ordinary:           hours(t.OrdinarySeconds),
		Overtime50:         hours(t.Overtime50Seconds),
		Overtime100:        hours(t.Overtime100Seconds),
		LateMinutes:        t.LateMinutes,
		AbsenceDays:        t.AbsenceDays,
		VacationDays:       t.VacationDays,
		MedicalLeaveDays:   t.MedicalLeaveDays,
		AdministrativeDays: t.AdministrativeDays,
		AnomalyDays:        t.AnomalyDays,
		Observations:       t.Observations,
	}
	if !withDays {
		return dto
	}
	dto.Days = make([]DayRecordDTO, 0, len(t.Days))
	for _, d := range t.Days {
		rec := DayRecordDTO{
			Date:        d.Date.String(),
			Kind:        string(d.Kind),
			Workday:     d.Workday,
			HolidayName: d.HolidayName,
			Ordinary:    hours(d.OrdinarySeconds),
			Overtime50:  hours(d.Overtime50Seconds),
			Overtime100: hours(d.Overtime100Seconds),
			LateMinutes: d.LateMinutes,
		}
		if d.Summary != nil {
			rec.FirstEntry = optTime(d.Summary.FirstEntry, loc)
			rec.LastExit = optTime(d.Summary.LastExit, loc)
			rec.Classification = string(d.Summary.Classification)
			for _, a := range d.Summary.Anomalies {
				rec.Anomalies = append(rec.Anomalies, string(a.Kind))
			}
		}
		dto.Days = append(dto.Days, rec)
	}
	return dto
}

func toShiftDTO(s attendance.ShiftRecord, loc *time.Location) ShiftDTO {
	return ShiftDTO{
		WorkerID: string(s.WorkerID),
		Date:     s.Date.String(),
		EntryID:  optString(s.EntryID),
		EntryAt:  optTime(s.EntryAt, loc),
		ExitID:   optString(s.ExitID),
		ExitAt:   optTime(s.ExitAt, loc),
		Break:    hours(s.BreakSeconds),
		Worked:   hours(s.Seconds),
		Status:   string(s.Status),
		Manual:   s.Manual,
	}
}

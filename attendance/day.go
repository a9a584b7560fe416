/*
day.go - Day Aggregator

PURPOSE:
  Turns one worker's punches for one local calendar day into a summary:
  paired shifts, break time, net worked seconds, anomalies and a
  classification.

PAIRING SCAN (audit view):
  ENTRY, nothing open  -> opens a shift
  ENTRY, shift open    -> "double entry" anomaly, prior shift left unresolved
  EXIT,  shift open    -> closes it
  EXIT,  nothing open  -> "orphan exit" anomaly, day is ERROR
  open at end of scan  -> IN_PROGRESS (live day) or MISSING_EXIT (closed day)

PAYROLL RULE (first-in / last-out):
  Net worked seconds use only the earliest ENTRY and the latest EXIT of the
  day, minus paired break time, floored at zero. The pairing scan above is
  independent of this rule.

  Only ACTIVE punches are considered.
*/
package attendance

import (
	"sort"
	"time"
)

type DayClassification string

const (
	DayEmpty       DayClassification = "EMPTY"
	DaySuccess     DayClassification = "SUCCESS"
	DayWarning     DayClassification = "WARNING"
	DayError       DayClassification = "ERROR"
	DayInProgress  DayClassification = "IN_PROGRESS"
	DayMissingExit DayClassification = "MISSING_EXIT"
)

type AnomalyKind string

const (
	AnomalyDoubleEntry   AnomalyKind = "DOUBLE_ENTRY"
	AnomalyOrphanExit    AnomalyKind = "ORPHAN_EXIT"
	AnomalyUnpairedBreak AnomalyKind = "UNPAIRED_BREAK"
	AnomalyMissingExit   AnomalyKind = "MISSING_EXIT"
)

// Anomaly is a pairing problem recorded as data, never raised.
type Anomaly struct {
	Kind    AnomalyKind
	PunchID PunchID
	At      time.Time
}

type ShiftStatus string

const (
	ShiftClosed      ShiftStatus = "CLOSED"
	ShiftUnresolved  ShiftStatus = "UNRESOLVED"
	ShiftOpen        ShiftStatus = "OPEN"
	ShiftMissingExit ShiftStatus = "MISSING_EXIT"
	ShiftOrphanExit  ShiftStatus = "ORPHAN_EXIT"
)

// Shift is a paired ENTRY -> EXIT interval. Either end may be missing.
type Shift struct {
	EntryID      *PunchID
	EntryAt      *time.Time
	ExitID       *PunchID
	ExitAt       *time.Time
	BreakSeconds int64
	Seconds      int64
	Status       ShiftStatus
	Manual       bool
}

type DaySummary struct {
	Date           Date
	FirstEntry     *time.Time
	LastExit       *time.Time
	GrossSeconds   int64
	BreakSeconds   int64
	WorkedSeconds  int64
	Shifts         []Shift
	Anomalies      []Anomaly
	Classification DayClassification
}

func (s DaySummary) HasAnomalies() bool { return len(s.Anomalies) > 0 }

// AggregateDay summarises one day. live marks the day that is still running
// (today), where an open shift is in progress rather than missing its exit.
func AggregateDay(date Date, punches []Punch, live bool) DaySummary {
	summary := DaySummary{Date: date, Classification: DayEmpty}

	active := activeSorted(punches)
	if len(active) == 0 {
		return summary
	}

	var (
		open       *Punch
		openBreaks int64
		breakStart *Punch
		orphanExit bool
	)

	for i := range active {
		p := active[i]
		switch p.Kind {
		case PunchEntry:
			if open != nil {
				summary.Anomalies = append(summary.Anomalies, Anomaly{Kind: AnomalyDoubleEntry, PunchID: p.ID, At: p.Timestamp})
				summary.Shifts = append(summary.Shifts, openShift(open, openBreaks, ShiftUnresolved))
			}
			open, openBreaks = &active[i], 0
			if summary.FirstEntry == nil {
				summary.FirstEntry = timePtr(p.Timestamp)
			}

		case PunchExit:
			if open != nil {
				shift := openShift(open, openBreaks, ShiftClosed)
				shift.ExitID, shift.ExitAt = idPtr(p.ID), timePtr(p.Timestamp)
				shift.Seconds = netSeconds(p.Timestamp.Sub(open.Timestamp), openBreaks)
				shift.Manual = shift.Manual || p.Manual
				summary.Shifts = append(summary.Shifts, shift)
				open, openBreaks = nil, 0
			} else {
				orphanExit = true
				summary.Anomalies = append(summary.Anomalies, Anomaly{Kind: AnomalyOrphanExit, PunchID: p.ID, At: p.Timestamp})
				summary.Shifts = append(summary.Shifts, Shift{
					ExitID: idPtr(p.ID), ExitAt: timePtr(p.Timestamp), Status: ShiftOrphanExit, Manual: p.Manual,
				})
			}
			if summary.LastExit == nil || p.Timestamp.After(*summary.LastExit) {
				summary.LastExit = timePtr(p.Timestamp)
			}

		case PunchBreakStart:
			if breakStart != nil {
				summary.Anomalies = append(summary.Anomalies, Anomaly{Kind: AnomalyUnpairedBreak, PunchID: breakStart.ID, At: breakStart.Timestamp})
			}
			breakStart = &active[i]

		case PunchBreakEnd:
			if breakStart == nil {
				summary.Anomalies = append(summary.Anomalies, Anomaly{Kind: AnomalyUnpairedBreak, PunchID: p.ID, At: p.Timestamp})
				continue
			}
			secs := int64(p.Timestamp.Sub(breakStart.Timestamp) / time.Second)
			summary.BreakSeconds += secs
			if open != nil {
				openBreaks += secs
			}
			breakStart = nil
		}
	}

	if breakStart != nil && !live {
		summary.Anomalies = append(summary.Anomalies, Anomaly{Kind: AnomalyUnpairedBreak, PunchID: breakStart.ID, At: breakStart.Timestamp})
	}

	trailingOpen := open != nil
	if trailingOpen {
		status := ShiftMissingExit
		if live {
			status = ShiftOpen
		} else {
			summary.Anomalies = append(summary.Anomalies, Anomaly{Kind: AnomalyMissingExit, PunchID: open.ID, At: open.Timestamp})
		}
		summary.Shifts = append(summary.Shifts, openShift(open, openBreaks, status))
	}

	if summary.FirstEntry != nil && summary.LastExit != nil && summary.LastExit.After(*summary.FirstEntry) {
		gross := summary.LastExit.Sub(*summary.FirstEntry)
		summary.GrossSeconds = int64(gross / time.Second)
		summary.WorkedSeconds = netSeconds(gross, summary.BreakSeconds)
	}

	switch {
	case orphanExit:
		summary.Classification = DayError
	case trailingOpen && live:
		summary.Classification = DayInProgress
	case trailingOpen:
		summary.Classification = DayMissingExit
	case len(summary.Anomalies) > 0:
		summary.Classification = DayWarning
	default:
		summary.Classification = DaySuccess
	}
	return summary
}

func activeSorted(punches []Punch) []Punch {
	active := make([]Punch, 0, len(punches))
	for _, p := range punches {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Timestamp.Equal(active[j].Timestamp) {
			return active[i].Seq < active[j].Seq
		}
		return active[i].Timestamp.Before(active[j].Timestamp)
	})
	return active
}

func openShift(entry *Punch, breaks int64, status ShiftStatus) Shift {
	return Shift{
		EntryID:      idPtr(entry.ID),
		EntryAt:      timePtr(entry.Timestamp),
		BreakSeconds: breaks,
		Status:       status,
		Manual:       entry.Manual,
	}
}

func netSeconds(gross time.Duration, breakSeconds int64) int64 {
	net := int64(gross/time.Second) - breakSeconds
	if net < 0 {
		return 0
	}
	return net
}

func timePtr(t time.Time) *time.Time { return &t }
func idPtr(id PunchID) *PunchID      { return &id }

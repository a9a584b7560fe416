package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SCHEDULE - Per-worker weekly configuration
// =============================================================================

const (
	DefaultDailyHours = 9
)

var DefaultExpectedStart = ClockTime{Hour: 9}

// Schedule is the worker's weekly working mask (Mon=0..Sun=6), expected
// start time and expected daily duration.
type Schedule struct {
	WorkerID      WorkerID
	Workdays      [7]bool
	ExpectedStart ClockTime
	DailyHours    int
	UpdatedAt     time.Time
}

// DefaultSchedule is Monday to Friday, 09:00, 9 hours.
func DefaultSchedule(worker WorkerID) Schedule {
	return Schedule{
		WorkerID:      worker,
		Workdays:      [7]bool{true, true, true, true, true, false, false},
		ExpectedStart: DefaultExpectedStart,
		DailyHours:    DefaultDailyHours,
	}
}

func (s Schedule) IsWorkday(d Date) bool {
	return s.Workdays[d.MondayIndex()]
}

func (s Schedule) ExpectedDuration() time.Duration {
	return time.Duration(s.DailyHours) * time.Hour
}

func (s Schedule) Validate() error {
	if s.WorkerID == "" {
		return fmt.Errorf("%w: schedule without worker", ErrInvalidInput)
	}
	if s.DailyHours <= 0 || s.DailyHours > 24 {
		return fmt.Errorf("%w: daily hours %d out of range", ErrInvalidInput, s.DailyHours)
	}
	if s.ExpectedStart.Hour < 0 || s.ExpectedStart.Hour > 23 || s.ExpectedStart.Minute < 0 || s.ExpectedStart.Minute > 59 {
		return fmt.Errorf("%w: expected start %s out of range", ErrInvalidInput, s.ExpectedStart)
	}
	return nil
}

// =============================================================================
// SCHEDULE POLICY - Lookup with default fallback
// =============================================================================

type SchedulePolicy struct {
	store ScheduleStore
}

func NewSchedulePolicy(store ScheduleStore) *SchedulePolicy {
	return &SchedulePolicy{store: store}
}

// Resolve returns the worker's schedule. When none is stored it returns the
// default schedule together with a *ConfigurationError so reports can label
// the worker; callers that only need a value may ignore that error.
func (p *SchedulePolicy) Resolve(ctx context.Context, worker WorkerID) (Schedule, error) {
	s, err := p.store.GetSchedule(ctx, worker)
	if errors.Is(err, ErrNotFound) {
		return DefaultSchedule(worker), &ConfigurationError{WorkerID: worker, Missing: "schedule"}
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("loading schedule for %s: %w", worker, err)
	}
	return *s, nil
}

func (p *SchedulePolicy) IsWorkday(ctx context.Context, worker WorkerID, d Date) (bool, error) {
	s, err := p.lookup(ctx, worker)
	if err != nil {
		return false, err
	}
	return s.IsWorkday(d), nil
}

// ExpectedWindow returns the expected start and daily hours, falling back to
// (09:00, 9) when unset.
func (p *SchedulePolicy) ExpectedWindow(ctx context.Context, worker WorkerID) (ClockTime, int, error) {
	s, err := p.lookup(ctx, worker)
	if err != nil {
		return ClockTime{}, 0, err
	}
	return s.ExpectedStart, s.DailyHours, nil
}

func (p *SchedulePolicy) lookup(ctx context.Context, worker WorkerID) (Schedule, error) {
	s, err := p.Resolve(ctx, worker)
	if errors.Is(err, ErrConfiguration) {
		return s, nil
	}
	return s, err
}

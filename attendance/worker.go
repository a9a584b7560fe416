package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// WorkerService registers workers. Registration and schedule creation are
// one explicit, synchronous step.
type WorkerService struct {
	store  Store
	clock  Clock
	logger Logger
}

func NewWorkerService(store Store, clock Clock, logger Logger) *WorkerService {
	return &WorkerService{store: store, clock: clock, logger: logger}
}

// Register saves the worker and then ensures it has a schedule. A non-nil
// schedule replaces whatever is stored.
func (ws *WorkerService) Register(ctx context.Context, w Worker, schedule *Schedule) (*Worker, *Schedule, error) {
	w.ID = WorkerID(strings.TrimSpace(string(w.ID)))
	if w.ID == "" {
		return nil, nil, fmt.Errorf("%w: worker id is required", ErrInvalidInput)
	}
	if w.Role == "" {
		w.Role = RoleWorker
	}
	if _, err := ParseRole(string(w.Role)); err != nil {
		return nil, nil, err
	}
	if w.CompanyID != "" {
		if _, err := ws.store.GetCompany(ctx, w.CompanyID); err != nil {
			return nil, nil, fmt.Errorf("loading company %s: %w", w.CompanyID, err)
		}
	}

	existing, err := ws.store.GetWorker(ctx, w.ID)
	switch {
	case err == nil:
		w.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrNotFound):
		w.CreatedAt = ws.clock.Now().UTC()
	default:
		return nil, nil, fmt.Errorf("loading worker %s: %w", w.ID, err)
	}

	if err := ws.store.SaveWorker(ctx, w); err != nil {
		return nil, nil, fmt.Errorf("saving worker %s: %w", w.ID, err)
	}

	var sched *Schedule
	if schedule != nil {
		s := *schedule
		s.WorkerID = w.ID
		if err := ws.SetSchedule(ctx, s); err != nil {
			return nil, nil, err
		}
		sched = &s
	} else {
		s, err := ws.EnsureSchedule(ctx, w.ID)
		if err != nil {
			return nil, nil, err
		}
		sched = s
	}

	ws.logger.Info("worker registered", "worker", w.ID, "role", w.Role, "company", w.CompanyID)
	return &w, sched, nil
}

// EnsureSchedule creates the default schedule when the worker has none.
func (ws *WorkerService) EnsureSchedule(ctx context.Context, worker WorkerID) (*Schedule, error) {
	s, err := ws.store.GetSchedule(ctx, worker)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("loading schedule for %s: %w", worker, err)
	}
	def := DefaultSchedule(worker)
	def.UpdatedAt = ws.clock.Now().UTC()
	if err := ws.store.SaveSchedule(ctx, def); err != nil {
		return nil, fmt.Errorf("saving default schedule for %s: %w", worker, err)
	}
	return &def, nil
}

// SetSchedule validates and stores a schedule.
func (ws *WorkerService) SetSchedule(ctx context.Context, s Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.UpdatedAt = ws.clock.Now().UTC()
	if err := ws.store.SaveSchedule(ctx, s); err != nil {
		return fmt.Errorf("saving schedule for %s: %w", s.WorkerID, err)
	}
	return nil
}

package attendance

import (
	"context"
	"fmt"
)

// JustificationService handles the approval lifecycle of vacations,
// medical leaves and administrative days. Aggregators only read APPROVED
// ranges; overlapping ranges are stored as submitted.
type JustificationService struct {
	store  TxStore
	clock  Clock
	ids    IDGenerator
	logger Logger
}

func NewJustificationService(store TxStore, clock Clock, ids IDGenerator, logger Logger) *JustificationService {
	return &JustificationService{store: store, clock: clock, ids: ids, logger: logger}
}

// JustificationInput is a requested absence range.
type JustificationInput struct {
	WorkerID WorkerID
	Kind     JustificationKind
	Start    Date
	End      Date
	HalfDay  HalfDay
	Comment  string
}

// Request stores a PENDING justification.
func (js *JustificationService) Request(ctx context.Context, actor Worker, in JustificationInput) (*Justification, error) {
	target, err := js.store.GetWorker(ctx, in.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("loading worker %s: %w", in.WorkerID, err)
	}
	if err := AuthorizeFor(actor, *target, CapRequestJustification, CapApproveJustification); err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: justification kind %q", ErrInvalidInput, in.Kind)
	}
	if _, err := NewPeriod(in.Start, in.End); err != nil {
		return nil, err
	}
	half := in.HalfDay
	if half == "" {
		half = HalfDayFull
	}
	if half != HalfDayFull && in.Kind != JustificationAdministrative {
		return nil, fmt.Errorf("%w: half days only apply to administrative days", ErrInvalidInput)
	}

	now := js.clock.Now().UTC()
	j := Justification{
		ID:        JustificationID(js.ids.New()),
		WorkerID:  in.WorkerID,
		Kind:      in.Kind,
		Start:     in.Start,
		End:       in.End,
		HalfDay:   half,
		Status:    ApprovalPending,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := js.store.SaveJustification(ctx, j); err != nil {
		return nil, fmt.Errorf("saving justification: %w", err)
	}
	js.logger.Info("justification requested", "justification", j.ID, "worker", j.WorkerID, "kind", j.Kind)
	return &j, nil
}

// Decide approves or rejects a PENDING justification.
func (js *JustificationService) Decide(ctx context.Context, actor Worker, id JustificationID, approve bool) (*Justification, error) {
	j, err := js.store.GetJustification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading justification %s: %w", id, err)
	}
	target, err := js.store.GetWorker(ctx, j.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("loading worker %s: %w", j.WorkerID, err)
	}
	if actor.ID == target.ID {
		return nil, fmt.Errorf("justification %s by %s: %w", id, actor.ID, ErrSelfReview)
	}
	if err := AuthorizeFor(actor, *target, CapApproveJustification, CapApproveJustification); err != nil {
		return nil, err
	}

	to := ApprovalRejected
	if approve {
		to = ApprovalApproved
	}

	var result *Justification
	err = js.store.WithTx(ctx, func(s Store) error {
		current, err := s.GetJustification(ctx, id)
		if err != nil {
			return fmt.Errorf("loading justification %s: %w", id, err)
		}
		if current.Status != ApprovalPending {
			return &StateTransitionError{Entity: "justification", ID: string(current.ID), From: string(current.Status), To: string(to)}
		}

		decider := actor.ID
		current.Status = to
		current.DecidedBy = &decider
		current.UpdatedAt = js.clock.Now().UTC()
		if err := s.UpdateJustification(ctx, *current); err != nil {
			return fmt.Errorf("updating justification: %w", err)
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	js.logger.Info("justification decided", "justification", result.ID, "worker", result.WorkerID, "status", result.Status)
	return result, nil
}

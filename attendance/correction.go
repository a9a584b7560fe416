/*
correction.go - Correction request lifecycle

PURPOSE:
  Punches are never edited. A worker (or a supervisor) proposes either a
  missing punch (NEW) or the replacement of an existing one (RECTIFY).

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  Submit  ──▶  PENDING  ──▶ Accept ──▶ ACCEPTED                    │
  │                  │           NEW:     manual punch appended       │
  │                  │           RECTIFY: original SUPERSEDED,        │
  │                  │                    manual punch appended with  │
  │                  │                    Replaces = original         │
  │                  │                                                │
  │                  └──────▶ Reject ──▶ REJECTED                     │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

  PENDING is the only mutable state. Responding to a request in any other
  state fails with StateTransitionError.

ATOMICITY:
  Acceptance runs as one store transaction under the worker's chain lock:
  status flip, supersede and punch append commit together or not at all.
  A chronology failure on the new punch leaves everything untouched.

WHO MAY RESPOND:
  The target worker, or an actor holding CapRespondAnyCorrection within the
  same company. Nobody answers a request they submitted themselves.
*/
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CorrectionInput is what a requester submits.
type CorrectionInput struct {
	WorkerID        WorkerID
	Kind            CorrectionKind
	ProposedAt      time.Time
	ProposedKind    PunchKind
	Reason          string
	OriginalPunchID *PunchID
}

type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

type CorrectionService struct {
	store  TxStore
	ledger *Ledger
	clock  Clock
	ids    IDGenerator
	logger Logger
}

func NewCorrectionService(store TxStore, ledger *Ledger, clock Clock, ids IDGenerator, logger Logger) *CorrectionService {
	return &CorrectionService{store: store, ledger: ledger, clock: clock, ids: ids, logger: logger}
}

// Submit validates and stores a PENDING request.
func (cs *CorrectionService) Submit(ctx context.Context, actor Worker, in CorrectionInput) (*CorrectionRequest, error) {
	target, err := cs.store.GetWorker(ctx, in.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("loading worker %s: %w", in.WorkerID, err)
	}
	if err := AuthorizeFor(actor, *target, CapSubmitCorrection, CapRespondAnyCorrection); err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrInvalidInput)
	}
	if in.ProposedAt.IsZero() {
		return nil, fmt.Errorf("%w: proposed time is required", ErrInvalidInput)
	}

	switch in.Kind {
	case CorrectionNew:
		if !in.ProposedKind.Valid() {
			return nil, fmt.Errorf("%w: proposed punch kind %q", ErrInvalidInput, in.ProposedKind)
		}
	case CorrectionRectify:
		if in.OriginalPunchID == nil {
			return nil, fmt.Errorf("%w: rectification needs the original punch", ErrInvalidInput)
		}
		original, err := cs.store.GetPunch(ctx, *in.OriginalPunchID)
		if err != nil {
			return nil, fmt.Errorf("loading punch %s: %w", *in.OriginalPunchID, err)
		}
		if original.WorkerID != in.WorkerID {
			return nil, fmt.Errorf("%w: punch %s belongs to another worker", ErrInvalidInput, original.ID)
		}
		if !original.IsActive() {
			return nil, &StateTransitionError{Entity: "punch", ID: string(original.ID), From: string(original.Status), To: string(PunchSuperseded)}
		}
		if in.ProposedKind == "" {
			in.ProposedKind = original.Kind
		}
		if !in.ProposedKind.Valid() {
			return nil, fmt.Errorf("%w: proposed punch kind %q", ErrInvalidInput, in.ProposedKind)
		}
	default:
		return nil, fmt.Errorf("%w: correction kind %q", ErrInvalidInput, in.Kind)
	}

	now := cs.clock.Now().UTC()
	req := CorrectionRequest{
		ID:              CorrectionID(cs.ids.New()),
		WorkerID:        in.WorkerID,
		RequesterID:     actor.ID,
		Kind:            in.Kind,
		ProposedAt:      in.ProposedAt.UTC(),
		ProposedKind:    in.ProposedKind,
		Reason:          strings.TrimSpace(in.Reason),
		OriginalPunchID: in.OriginalPunchID,
		Status:          CorrectionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := cs.store.SaveCorrection(ctx, req); err != nil {
		return nil, fmt.Errorf("saving correction: %w", err)
	}

	cs.logger.Info("correction submitted",
		"correction", req.ID, "worker", req.WorkerID, "requester", req.RequesterID, "kind", req.Kind)
	return &req, nil
}

// Respond accepts or rejects a PENDING request.
func (cs *CorrectionService) Respond(ctx context.Context, actor Worker, id CorrectionID, decision Decision) (*CorrectionRequest, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, fmt.Errorf("%w: decision %q", ErrInvalidInput, decision)
	}

	current, err := cs.store.GetCorrection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading correction %s: %w", id, err)
	}
	target, err := cs.store.GetWorker(ctx, current.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("loading worker %s: %w", current.WorkerID, err)
	}
	if err := AuthorizeFor(actor, *target, CapRespondCorrection, CapRespondAnyCorrection); err != nil {
		return nil, err
	}
	if actor.ID == current.RequesterID {
		return nil, fmt.Errorf("correction %s by %s: %w", id, actor.ID, ErrSelfReview)
	}

	unlock := cs.ledger.locks.lock(current.WorkerID)
	defer unlock()

	var result *CorrectionRequest
	err = cs.store.WithTx(ctx, func(s Store) error {
		req, err := s.GetCorrection(ctx, id)
		if err != nil {
			return fmt.Errorf("loading correction %s: %w", id, err)
		}
		to := CorrectionRejected
		if decision == DecisionAccept {
			to = CorrectionAccepted
		}
		if req.Status != CorrectionPending {
			return &StateTransitionError{Entity: "correction", ID: string(req.ID), From: string(req.Status), To: string(to)}
		}

		if decision == DecisionAccept {
			punch, err := cs.apply(ctx, s, *req, actor)
			if err != nil {
				return err
			}
			req.ResultPunchID = &punch.ID
		}

		now := cs.clock.Now().UTC()
		responder := actor.ID
		req.Status = to
		req.RespondedBy = &responder
		req.RespondedAt = &now
		req.UpdatedAt = now
		if err := s.UpdateCorrection(ctx, *req); err != nil {
			return fmt.Errorf("updating correction: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	cs.logger.Info("correction answered",
		"correction", result.ID, "worker", result.WorkerID, "responder", actor.ID, "status", result.Status)
	return result, nil
}

// apply performs the punch side effects of an accepted request.
func (cs *CorrectionService) apply(ctx context.Context, s Store, req CorrectionRequest, actor Worker) (*Punch, error) {
	in := PunchInput{
		ID:        PunchID(cs.ids.New()),
		WorkerID:  req.WorkerID,
		Kind:      req.ProposedKind,
		Timestamp: req.ProposedAt,
		Manual:    true,
		Note:      fmt.Sprintf("correction %s accepted by %s: %s", req.ID, actor.ID, req.Reason),
	}

	if req.Kind == CorrectionRectify {
		original, err := s.GetPunch(ctx, *req.OriginalPunchID)
		if err != nil {
			return nil, fmt.Errorf("loading punch %s: %w", *req.OriginalPunchID, err)
		}
		if err := s.SupersedePunch(ctx, original.ID, in.ID); err != nil {
			return nil, err
		}
		in.Replaces = &original.ID
		in.Location = original.Location
		in.Address = original.Address
	}

	return cs.ledger.appendPunch(ctx, s, in)
}

// Pending lists the worker's open requests.
func (cs *CorrectionService) Pending(ctx context.Context, worker WorkerID) ([]CorrectionRequest, error) {
	status := CorrectionPending
	return cs.store.ListCorrections(ctx, CorrectionFilter{WorkerID: &worker, Status: &status})
}

// PendingForCompany lists open requests of every worker in the company.
func (cs *CorrectionService) PendingForCompany(ctx context.Context, company CompanyID) ([]CorrectionRequest, error) {
	status := CorrectionPending
	return cs.store.ListCorrections(ctx, CorrectionFilter{CompanyID: &company, Status: &status})
}

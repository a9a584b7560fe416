/*
ledger.go - Append-only, hash-chained punch log

PURPOSE:
  The Ledger is the only writer of punches. Every punch is a link in its
  worker's SHA-256 chain: self_hash covers (worker, timestamp, kind,
  prev_hash) and prev_hash is the previous link's self_hash, or GENESIS.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Corrections append a new punch
     and supersede the old one.
  2. ATOMIC: "read chain head, check chronology, hash, insert" runs inside
     one store transaction. A punch is never visible without its hash.
  3. SERIALIZED PER WORKER: a keyed mutex orders writers of one worker in
     process; the store's unique (worker, seq) and (worker, prev_hash)
     slots reject a racing writer from another process.
  4. CHRONOLOGY: an EXIT may not precede the worker's latest ACTIVE ENTRY.

VERIFICATION:
  VerifyChain recomputes every hash in Seq order and stops at the first
  mismatch. It is an audit operation, not run on every write.

SEE ALSO:
  - chain.go: Hash computation and the pure verifier
  - correction.go: Appends manual punches inside its own transaction
*/
package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PunchInput is everything needed to append a punch.
type PunchInput struct {
	// ID is optional; generated when empty.
	ID          PunchID
	WorkerID    WorkerID
	Kind        PunchKind
	Timestamp   time.Time
	Location    Location
	Address     string
	RemoteAddr  string
	PhotoRef    string
	Manual      bool
	Note        string
	Replaces    *PunchID
	Mood        Mood
	MoodComment string
}

type Ledger struct {
	store  TxStore
	clock  Clock
	ids    IDGenerator
	logger Logger
	locks  *workerLocks
}

func NewLedger(store TxStore, clock Clock, ids IDGenerator, logger Logger) *Ledger {
	return &Ledger{
		store:  store,
		clock:  clock,
		ids:    ids,
		logger: logger,
		locks:  newWorkerLocks(),
	}
}

// Record validates, chains and persists one punch.
func (l *Ledger) Record(ctx context.Context, in PunchInput) (*Punch, error) {
	if err := validatePunchInput(in); err != nil {
		return nil, err
	}

	unlock := l.locks.lock(in.WorkerID)
	defer unlock()

	var created *Punch
	err := l.store.WithTx(ctx, func(s Store) error {
		p, err := l.appendPunch(ctx, s, in)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("punch recorded",
		"worker", created.WorkerID, "punch", created.ID, "kind", created.Kind,
		"seq", created.Seq, "manual", created.Manual)
	return created, nil
}

// appendPunch runs inside a transaction. The caller holds the worker lock.
func (l *Ledger) appendPunch(ctx context.Context, s Store, in PunchInput) (*Punch, error) {
	head, err := s.ChainHead(ctx, in.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}
	prev, seq := GenesisHash, int64(1)
	if head != nil {
		prev, seq = head.SelfHash, head.Seq+1
	}

	if in.Kind == PunchExit {
		entry, err := s.LatestActiveEntry(ctx, in.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("reading latest entry: %w", err)
		}
		if entry != nil && in.Timestamp.Before(entry.Timestamp) {
			return nil, &ChronologyError{
				WorkerID: in.WorkerID,
				ExitAt:   in.Timestamp,
				EntryID:  entry.ID,
				EntryAt:  entry.Timestamp,
			}
		}
	}

	id := in.ID
	if id == "" {
		id = PunchID(l.ids.New())
	}
	ts := in.Timestamp.UTC()
	p := Punch{
		ID:          id,
		WorkerID:    in.WorkerID,
		Seq:         seq,
		Timestamp:   ts,
		Kind:        in.Kind,
		Status:      PunchActive,
		Replaces:    in.Replaces,
		Location:    in.Location,
		Address:     in.Address,
		RemoteAddr:  in.RemoteAddr,
		PhotoRef:    in.PhotoRef,
		Manual:      in.Manual,
		Note:        in.Note,
		Mood:        in.Mood,
		MoodComment: in.MoodComment,
		PrevHash:    prev,
		SelfHash:    ComputeHash(in.WorkerID, ts, in.Kind, prev),
		CreatedAt:   l.clock.Now().UTC(),
	}
	if err := s.AppendPunch(ctx, p); err != nil {
		return nil, fmt.Errorf("appending punch: %w", err)
	}
	return &p, nil
}

// VerifyChain recomputes the worker's chain. When from is set the walk
// starts at that punch, trusting its prev_hash. Returns false on the first
// mismatch.
func (l *Ledger) VerifyChain(ctx context.Context, worker WorkerID, from *PunchID) (bool, error) {
	report, err := l.audit(ctx, worker, from)
	if err != nil {
		return false, err
	}
	return report.Valid, nil
}

// Audit walks the whole chain and names the first broken link.
func (l *Ledger) Audit(ctx context.Context, worker WorkerID) (*ChainReport, error) {
	report, err := l.audit(ctx, worker, nil)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		l.logger.Warn("chain verification failed",
			"worker", worker, "punch", report.Broken.PunchID, "reason", report.Broken.Reason)
	}
	return report, nil
}

func (l *Ledger) audit(ctx context.Context, worker WorkerID, from *PunchID) (*ChainReport, error) {
	punches, err := l.store.Chain(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("loading chain for %s: %w", worker, err)
	}

	start := GenesisHash
	if from != nil {
		idx := -1
		for i, p := range punches {
			if p.ID == *from {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("punch %s in chain of %s: %w", *from, worker, ErrNotFound)
		}
		if idx > 0 {
			start = punches[idx-1].SelfHash
		}
		punches = punches[idx:]
	}

	report := VerifyPunches(worker, punches, start)
	return &report, nil
}

func validatePunchInput(in PunchInput) error {
	if in.WorkerID == "" {
		return fmt.Errorf("%w: punch without worker", ErrInvalidInput)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown punch kind %q", ErrInvalidInput, in.Kind)
	}
	if in.Timestamp.IsZero() {
		return fmt.Errorf("%w: punch without timestamp", ErrInvalidInput)
	}
	if !in.Mood.Valid() {
		return fmt.Errorf("%w: unknown mood %q", ErrInvalidInput, in.Mood)
	}
	return nil
}

// =============================================================================
// WORKER LOCKS - One mutex per worker chain
// =============================================================================

type workerLocks struct {
	mu    sync.Mutex
	locks map[WorkerID]*workerLock
}

type workerLock struct {
	mu   sync.Mutex
	refs int
}

func newWorkerLocks() *workerLocks {
	return &workerLocks{locks: make(map[WorkerID]*workerLock)}
}

// lock blocks until the worker's chain is free and returns the release func.
// Entries are dropped once no goroutine holds or waits on them.
func (wl *workerLocks) lock(worker WorkerID) func() {
	wl.mu.Lock()
	l, ok := wl.locks[worker]
	if !ok {
		l = &workerLock{}
		wl.locks[worker] = l
	}
	l.refs++
	wl.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		wl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(wl.locks, worker)
		}
		wl.mu.Unlock()
	}
}

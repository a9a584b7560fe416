// Package store provides an in-memory attendance.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/punchclock/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a state with a single RWMutex. WithTx holds the write lock
// for the whole callback and restores a snapshot on error.
type Memory struct {
	mu sync.RWMutex
	st *state
}

var _ attendance.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) AppendPunch(ctx context.Context, p attendance.Punch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendPunch(ctx, p)
}

func (m *Memory) ChainHead(ctx context.Context, w attendance.WorkerID) (*attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ChainHead(ctx, w)
}

func (m *Memory) LatestActiveEntry(ctx context.Context, w attendance.WorkerID) (*attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LatestActiveEntry(ctx, w)
}

func (m *Memory) GetPunch(ctx context.Context, id attendance.PunchID) (*attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetPunch(ctx, id)
}

func (m *Memory) Chain(ctx context.Context, w attendance.WorkerID) ([]attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Chain(ctx, w)
}

func (m *Memory) PunchesBetween(ctx context.Context, w attendance.WorkerID, from, to time.Time) ([]attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.PunchesBetween(ctx, w, from, to)
}

func (m *Memory) CompanyPunchesBetween(ctx context.Context, c attendance.CompanyID, from, to time.Time) ([]attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.CompanyPunchesBetween(ctx, c, from, to)
}

func (m *Memory) SupersedePunch(ctx context.Context, id, by attendance.PunchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SupersedePunch(ctx, id, by)
}

func (m *Memory) UnflaggedEntries(ctx context.Context, from, to time.Time) ([]attendance.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.UnflaggedEntries(ctx, from, to)
}

func (m *Memory) MarkForgottenExitAlerted(ctx context.Context, id attendance.PunchID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkForgottenExitAlerted(ctx, id)
}

func (m *Memory) SaveCorrection(ctx context.Context, r attendance.CorrectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveCorrection(ctx, r)
}

func (m *Memory) UpdateCorrection(ctx context.Context, r attendance.CorrectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateCorrection(ctx, r)
}

func (m *Memory) GetCorrection(ctx context.Context, id attendance.CorrectionID) (*attendance.CorrectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCorrection(ctx, id)
}

func (m *Memory) ListCorrections(ctx context.Context, f attendance.CorrectionFilter) ([]attendance.CorrectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCorrections(ctx, f)
}

func (m *Memory) GetSchedule(ctx context.Context, w attendance.WorkerID) (*attendance.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetSchedule(ctx, w)
}

func (m *Memory) SaveSchedule(ctx context.Context, s attendance.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveSchedule(ctx, s)
}

func (m *Memory) SaveJustification(ctx context.Context, j attendance.Justification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveJustification(ctx, j)
}

func (m *Memory) UpdateJustification(ctx context.Context, j attendance.Justification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateJustification(ctx, j)
}

func (m *Memory) GetJustification(ctx context.Context, id attendance.JustificationID) (*attendance.Justification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetJustification(ctx, id)
}

func (m *Memory) ListJustifications(ctx context.Context, w attendance.WorkerID) ([]attendance.Justification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListJustifications(ctx, w)
}

func (m *Memory) ApprovedJustifications(ctx context.Context, w attendance.WorkerID, p attendance.Period) ([]attendance.Justification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ApprovedJustifications(ctx, w, p)
}

func (m *Memory) SaveHoliday(ctx context.Context, h attendance.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveHoliday(ctx, h)
}

func (m *Memory) DeleteHoliday(ctx context.Context, id attendance.HolidayID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteHoliday(ctx, id)
}

func (m *Memory) GetHoliday(ctx context.Context, id attendance.HolidayID) (*attendance.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetHoliday(ctx, id)
}

func (m *Memory) HolidaysBetween(ctx context.Context, c attendance.CompanyID, p attendance.Period) ([]attendance.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.HolidaysBetween(ctx, c, p)
}

func (m *Memory) ClaimAlert(ctx context.Context, e attendance.AlertLogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ClaimAlert(ctx, e)
}

func (m *Memory) AlertsOn(ctx context.Context, d attendance.Date) ([]attendance.AlertLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.AlertsOn(ctx, d)
}

func (m *Memory) SaveWorker(ctx context.Context, w attendance.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveWorker(ctx, w)
}

func (m *Memory) GetWorker(ctx context.Context, id attendance.WorkerID) (*attendance.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetWorker(ctx, id)
}

func (m *Memory) ListWorkers(ctx context.Context, f attendance.WorkerFilter) ([]attendance.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListWorkers(ctx, f)
}

func (m *Memory) SaveCompany(ctx context.Context, c attendance.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveCompany(ctx, c)
}

func (m *Memory) GetCompany(ctx context.Context, id attendance.CompanyID) (*attendance.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCompany(ctx, id)
}

func (m *Memory) ListCompanies(ctx context.Context) ([]attendance.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCompanies(ctx)
}

// =============================================================================
// STATE - Unlocked implementation, also used as the transactional view
// =============================================================================

type alertKey struct {
	worker attendance.WorkerID
	date   attendance.Date
	kind   attendance.AlertKind
}

type state struct {
	punches        map[attendance.PunchID]attendance.Punch
	chains         map[attendance.WorkerID][]attendance.PunchID
	corrections    map[attendance.CorrectionID]attendance.CorrectionRequest
	schedules      map[attendance.WorkerID]attendance.Schedule
	justifications map[attendance.JustificationID]attendance.Justification
	holidays       map[attendance.HolidayID]attendance.Holiday
	alerts         map[alertKey]attendance.AlertLogEntry
	workers        map[attendance.WorkerID]attendance.Worker
	companies      map[attendance.CompanyID]attendance.Company
}

func newState() *state {
	return &state{
		punches:        make(map[attendance.PunchID]attendance.Punch),
		chains:         make(map[attendance.WorkerID][]attendance.PunchID),
		corrections:    make(map[attendance.CorrectionID]attendance.CorrectionRequest),
		schedules:      make(map[attendance.WorkerID]attendance.Schedule),
		justifications: make(map[attendance.JustificationID]attendance.Justification),
		holidays:       make(map[attendance.HolidayID]attendance.Holiday),
		alerts:         make(map[alertKey]attendance.AlertLogEntry),
		workers:        make(map[attendance.WorkerID]attendance.Worker),
		companies:      make(map[attendance.CompanyID]attendance.Company),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.punches {
		c.punches[k] = v
	}
	for k, v := range s.chains {
		c.chains[k] = append([]attendance.PunchID(nil), v...)
	}
	for k, v := range s.corrections {
		c.corrections[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.justifications {
		c.justifications[k] = v
	}
	for k, v := range s.holidays {
		c.holidays[k] = v
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	for k, v := range s.workers {
		c.workers[k] = v
	}
	for k, v := range s.companies {
		c.companies[k] = v
	}
	return c
}

// ----- punches -----

func (s *state) AppendPunch(_ context.Context, p attendance.Punch) error {
	if _, exists := s.punches[p.ID]; exists {
		return fmt.Errorf("punch %s: %w", p.ID, attendance.ErrDuplicate)
	}
	chain := s.chains[p.WorkerID]
	wantSeq, wantPrev := int64(1), attendance.GenesisHash
	if n := len(chain); n > 0 {
		head := s.punches[chain[n-1]]
		wantSeq, wantPrev = head.Seq+1, head.SelfHash
	}
	if p.Seq != wantSeq || p.PrevHash != wantPrev {
		return fmt.Errorf("worker %s seq %d: %w", p.WorkerID, p.Seq, attendance.ErrChainConflict)
	}
	s.punches[p.ID] = p
	s.chains[p.WorkerID] = append(chain, p.ID)
	return nil
}

func (s *state) ChainHead(_ context.Context, w attendance.WorkerID) (*attendance.Punch, error) {
	chain := s.chains[w]
	if len(chain) == 0 {
		return nil, nil
	}
	p := s.punches[chain[len(chain)-1]]
	return &p, nil
}

func (s *state) LatestActiveEntry(_ context.Context, w attendance.WorkerID) (*attendance.Punch, error) {
	var latest *attendance.Punch
	for _, id := range s.chains[w] {
		p := s.punches[id]
		if p.Kind != attendance.PunchEntry || !p.IsActive() {
			continue
		}
		if latest == nil || p.Timestamp.After(latest.Timestamp) {
			cp := p
			latest = &cp
		}
	}
	return latest, nil
}

func (s *state) GetPunch(_ context.Context, id attendance.PunchID) (*attendance.Punch, error) {
	p, ok := s.punches[id]
	if !ok {
		return nil, fmt.Errorf("punch %s: %w", id, attendance.ErrNotFound)
	}
	return &p, nil
}

func (s *state) Chain(_ context.Context, w attendance.WorkerID) ([]attendance.Punch, error) {
	result := make([]attendance.Punch, 0, len(s.chains[w]))
	for _, id := range s.chains[w] {
		result = append(result, s.punches[id])
	}
	return result, nil
}

func (s *state) PunchesBetween(_ context.Context, w attendance.WorkerID, from, to time.Time) ([]attendance.Punch, error) {
	var result []attendance.Punch
	for _, id := range s.chains[w] {
		p := s.punches[id]
		if !p.Timestamp.Before(from) && p.Timestamp.Before(to) {
			result = append(result, p)
		}
	}
	sortByTime(result)
	return result, nil
}

func (s *state) CompanyPunchesBetween(ctx context.Context, c attendance.CompanyID, from, to time.Time) ([]attendance.Punch, error) {
	var result []attendance.Punch
	for _, w := range s.sortedWorkers() {
		if w.CompanyID != c {
			continue
		}
		ps, _ := s.PunchesBetween(ctx, w.ID, from, to)
		result = append(result, ps...)
	}
	return result, nil
}

func (s *state) SupersedePunch(_ context.Context, id, by attendance.PunchID) error {
	p, ok := s.punches[id]
	if !ok {
		return fmt.Errorf("punch %s: %w", id, attendance.ErrNotFound)
	}
	if !p.IsActive() {
		return &attendance.StateTransitionError{Entity: "punch", ID: string(id), From: string(p.Status), To: string(attendance.PunchSuperseded)}
	}
	p.Status = attendance.PunchSuperseded
	p.SupersededBy = &by
	s.punches[id] = p
	return nil
}

func (s *state) UnflaggedEntries(_ context.Context, from, to time.Time) ([]attendance.Punch, error) {
	var result []attendance.Punch
	for _, p := range s.punches {
		if p.Kind == attendance.PunchEntry && p.IsActive() && !p.ForgottenExitAlerted &&
			!p.Timestamp.Before(from) && p.Timestamp.Before(to) {
			result = append(result, p)
		}
	}
	sortByTime(result)
	return result, nil
}

func (s *state) MarkForgottenExitAlerted(_ context.Context, id attendance.PunchID) (bool, error) {
	p, ok := s.punches[id]
	if !ok {
		return false, fmt.Errorf("punch %s: %w", id, attendance.ErrNotFound)
	}
	if p.ForgottenExitAlerted {
		return false, nil
	}
	p.ForgottenExitAlerted = true
	s.punches[id] = p
	return true, nil
}

// ----- corrections -----

func (s *state) SaveCorrection(_ context.Context, r attendance.CorrectionRequest) error {
	if _, exists := s.corrections[r.ID]; exists {
		return fmt.Errorf("correction %s: %w", r.ID, attendance.ErrDuplicate)
	}
	s.corrections[r.ID] = r
	return nil
}

func (s *state) UpdateCorrection(_ context.Context, r attendance.CorrectionRequest) error {
	if _, exists := s.corrections[r.ID]; !exists {
		return fmt.Errorf("correction %s: %w", r.ID, attendance.ErrNotFound)
	}
	s.corrections[r.ID] = r
	return nil
}

func (s *state) GetCorrection(_ context.Context, id attendance.CorrectionID) (*attendance.CorrectionRequest, error) {
	r, ok := s.corrections[id]
	if !ok {
		return nil, fmt.Errorf("correction %s: %w", id, attendance.ErrNotFound)
	}
	return &r, nil
}

func (s *state) ListCorrections(_ context.Context, f attendance.CorrectionFilter) ([]attendance.CorrectionRequest, error) {
	var result []attendance.CorrectionRequest
	for _, r := range s.corrections {
		if f.WorkerID != nil && r.WorkerID != *f.WorkerID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.CompanyID != nil && s.workers[r.WorkerID].CompanyID != *f.CompanyID {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// ----- schedules -----

func (s *state) GetSchedule(_ context.Context, w attendance.WorkerID) (*attendance.Schedule, error) {
	sc, ok := s.schedules[w]
	if !ok {
		return nil, fmt.Errorf("schedule for %s: %w", w, attendance.ErrNotFound)
	}
	return &sc, nil
}

func (s *state) SaveSchedule(_ context.Context, sc attendance.Schedule) error {
	s.schedules[sc.WorkerID] = sc
	return nil
}

// ----- justifications -----

func (s *state) SaveJustification(_ context.Context, j attendance.Justification) error {
	if _, exists := s.justifications[j.ID]; exists {
		return fmt.Errorf("justification %s: %w", j.ID, attendance.ErrDuplicate)
	}
	s.justifications[j.ID] = j
	return nil
}

func (s *state) UpdateJustification(_ context.Context, j attendance.Justification) error {
	if _, exists := s.justifications[j.ID]; !exists {
		return fmt.Errorf("justification %s: %w", j.ID, attendance.ErrNotFound)
	}
	s.justifications[j.ID] = j
	return nil
}

func (s *state) GetJustification(_ context.Context, id attendance.JustificationID) (*attendance.Justification, error) {
	j, ok := s.justifications[id]
	if !ok {
		return nil, fmt.Errorf("justification %s: %w", id, attendance.ErrNotFound)
	}
	return &j, nil
}

func (s *state) ListJustifications(_ context.Context, w attendance.WorkerID) ([]attendance.Justification, error) {
	var result []attendance.Justification
	for _, j := range s.justifications {
		if j.WorkerID == w {
			result = append(result, j)
		}
	}
	sortJustifications(result)
	return result, nil
}

func (s *state) ApprovedJustifications(_ context.Context, w attendance.WorkerID, p attendance.Period) ([]attendance.Justification, error) {
	var result []attendance.Justification
	for _, j := range s.justifications {
		if j.WorkerID != w || j.Status != attendance.ApprovalApproved {
			continue
		}
		if j.End.Before(p.Start) || j.Start.After(p.End) {
			continue
		}
		result = append(result, j)
	}
	sortJustifications(result)
	return result, nil
}

// ----- holidays -----

func (s *state) SaveHoliday(_ context.Context, h attendance.Holiday) error {
	for _, existing := range s.holidays {
		if existing.ID != h.ID && existing.CompanyID == h.CompanyID && existing.Date == h.Date && existing.Name == h.Name {
			return fmt.Errorf("holiday %s on %s: %w", h.Name, h.Date, attendance.ErrDuplicate)
		}
	}
	s.holidays[h.ID] = h
	return nil
}

func (s *state) DeleteHoliday(_ context.Context, id attendance.HolidayID) error {
	if _, ok := s.holidays[id]; !ok {
		return fmt.Errorf("holiday %s: %w", id, attendance.ErrNotFound)
	}
	delete(s.holidays, id)
	return nil
}

func (s *state) GetHoliday(_ context.Context, id attendance.HolidayID) (*attendance.Holiday, error) {
	h, ok := s.holidays[id]
	if !ok {
		return nil, fmt.Errorf("holiday %s: %w", id, attendance.ErrNotFound)
	}
	return &h, nil
}

func (s *state) HolidaysBetween(_ context.Context, c attendance.CompanyID, p attendance.Period) ([]attendance.Holiday, error) {
	var result []attendance.Holiday
	for _, h := range s.holidays {
		if (h.CompanyID == "" || h.CompanyID == c) && p.Contains(h.Date) {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// ----- alert log -----

func (s *state) ClaimAlert(_ context.Context, e attendance.AlertLogEntry) (bool, error) {
	k := alertKey{worker: e.WorkerID, date: e.Date, kind: e.Kind}
	if _, exists := s.alerts[k]; exists {
		return false, nil
	}
	s.alerts[k] = e
	return true, nil
}

func (s *state) AlertsOn(_ context.Context, d attendance.Date) ([]attendance.AlertLogEntry, error) {
	var result []attendance.AlertLogEntry
	for k, e := range s.alerts {
		if k.date == d {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].WorkerID != result[j].WorkerID {
			return result[i].WorkerID < result[j].WorkerID
		}
		return result[i].Kind < result[j].Kind
	})
	return result, nil
}

// ----- workers and companies -----

func (s *state) SaveWorker(_ context.Context, w attendance.Worker) error {
	s.workers[w.ID] = w
	return nil
}

func (s *state) GetWorker(_ context.Context, id attendance.WorkerID) (*attendance.Worker, error) {
	w, ok := s.workers[id]
	if !ok {
		return nil, fmt.Errorf("worker %s: %w", id, attendance.ErrNotFound)
	}
	return &w, nil
}

func (s *state) ListWorkers(_ context.Context, f attendance.WorkerFilter) ([]attendance.Worker, error) {
	var result []attendance.Worker
	for _, w := range s.sortedWorkers() {
		if f.CompanyID != nil && w.CompanyID != *f.CompanyID {
			continue
		}
		if f.Role != nil && w.Role != *f.Role {
			continue
		}
		if f.ActiveOnly && !w.Active {
			continue
		}
		result = append(result, w)
	}
	return result, nil
}

func (s *state) SaveCompany(_ context.Context, c attendance.Company) error {
	s.companies[c.ID] = c
	return nil
}

func (s *state) GetCompany(_ context.Context, id attendance.CompanyID) (*attendance.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", id, attendance.ErrNotFound)
	}
	return &c, nil
}

func (s *state) ListCompanies(_ context.Context) ([]attendance.Company, error) {
	result := make([]attendance.Company, 0, len(s.companies))
	for _, c := range s.companies {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ----- helpers -----

func (s *state) sortedWorkers() []attendance.Worker {
	ws := make([]attendance.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		ws = append(ws, w)
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
	return ws
}

func sortByTime(ps []attendance.Punch) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Timestamp.Equal(ps[j].Timestamp) {
			return ps[i].Seq < ps[j].Seq
		}
		return ps[i].Timestamp.Before(ps[j].Timestamp)
	})
}

func sortJustifications(js []attendance.Justification) {
	sort.Slice(js, func(i, j int) bool {
		if js[i].Start != js[j].Start {
			return js[i].Start.Before(js[j].Start)
		}
		return js[i].ID < js[j].ID
	})
}

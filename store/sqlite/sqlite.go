/*
Package sqlite provides a SQLite-backed implementation of attendance.TxStore.

PURPOSE:
  Implements every persistence interface of the attendance engine on one
  database file. The schema is versioned under migrations/ and applied with
  golang-migrate on New().

APPEND-ONLY ENFORCEMENT:
  The punches table only ever sees:
  - INSERT (AppendPunch)
  - UPDATE of status/superseded_by (SupersedePunch, ACTIVE rows only)
  - UPDATE of forgotten_exit_alerted (0 -> 1 only)
  There is no DELETE on punches.

KEY TABLES:
  punches:        Hash-chained punch log
  corrections:    Correction requests
  schedules:      One weekly schedule per worker
  justifications: Vacation, medical leave and administrative day ranges
  holidays:       Company-specific and global holidays
  alert_log:      One row per (worker, date, kind) alert sent
  workers:        Workers of all roles
  companies:      Employers

CONCURRENCY:
  The pool is limited to one connection and transactions start with
  BEGIN IMMEDIATE, so writers queue on the database lock. Unique
  (worker_id, seq) and (worker_id, prev_hash) indexes reject a second
  writer that read the same chain head.

  Inside WithTx only the Store handed to the callback may be used; the
  outer Store would wait on the single connection forever.

TIMESTAMPS:
  Punch timestamps use attendance.TimestampLayout (fixed-width UTC) so that
  range queries compare text. Dates are stored as YYYY-MM-DD.

USAGE:
  store, err := sqlite.New("./data/punchclock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/store/sqlite/migrations"
)

const dsnParams = "?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements attendance.Store on a queryer.
type repo struct {
	q queryer
}

// Store implements attendance.TxStore using SQLite.
type Store struct {
	repo
	db *sql.DB
}

var (
	_ attendance.TxStore = (*Store)(nil)
	_ attendance.Store   = (*repo)(nil)
)

// Open opens the database without touching the schema.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{repo: repo{q: db}, db: db}, nil
}

// New opens the database and migrates it to the latest schema.
func New(dbPath string) (*Store, error) {
	s, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Migrate applies pending migrations.
func (s *Store) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckSchema reports whether the schema is at the latest version.
func (s *Store) CheckSchema() error {
	return migrations.CheckStatus(s.db)
}

// DB exposes the handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// PUNCHES
// =============================================================================

const punchColumns = `id, worker_id, seq, timestamp, kind, status, superseded_by, replaces,
	latitude, longitude, address, remote_addr, photo_ref, manual, note, mood, mood_comment,
	forgotten_exit_alerted, prev_hash, self_hash, created_at`

func (r *repo) AppendPunch(ctx context.Context, p attendance.Punch) error {
	query := `INSERT INTO punches (` + punchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, query,
		p.ID,
		p.WorkerID,
		p.Seq,
		attendance.CanonicalTimestamp(p.Timestamp),
		p.Kind,
		p.Status,
		nullID(p.SupersededBy),
		nullID(p.Replaces),
		p.Location.Latitude.String(),
		p.Location.Longitude.String(),
		p.Address,
		p.RemoteAddr,
		p.PhotoRef,
		p.Manual,
		p.Note,
		p.Mood,
		p.MoodComment,
		p.ForgottenExitAlerted,
		p.PrevHash,
		p.SelfHash,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("punch %s", p.ID))
	}
	return nil
}

func (r *repo) ChainHead(ctx context.Context, worker attendance.WorkerID) (*attendance.Punch, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+punchColumns+` FROM punches WHERE worker_id = ? ORDER BY seq DESC LIMIT 1`, worker)
	p, err := scanPunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *repo) LatestActiveEntry(ctx context.Context, worker attendance.WorkerID) (*attendance.Punch, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+punchColumns+` FROM punches
		 WHERE worker_id = ? AND kind = ? AND status = ?
		 ORDER BY timestamp DESC, seq DESC LIMIT 1`,
		worker, attendance.PunchEntry, attendance.PunchActive)
	p, err := scanPunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *repo) GetPunch(ctx context.Context, id attendance.PunchID) (*attendance.Punch, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+punchColumns+` FROM punches WHERE id = ?`, id)
	p, err := scanPunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("punch %s: %w", id, attendance.ErrNotFound)
	}
	return p, err
}

func (r *repo) Chain(ctx context.Context, worker attendance.WorkerID) ([]attendance.Punch, error) {
	return r.queryPunches(ctx,
		`SELECT `+punchColumns+` FROM punches WHERE worker_id = ? ORDER BY seq ASC`, worker)
}

func (r *repo) PunchesBetween(ctx context.Context, worker attendance.WorkerID, from, to time.Time) ([]attendance.Punch, error) {
	return r.queryPunches(ctx,
		`SELECT `+punchColumns+` FROM punches
		 WHERE worker_id = ? AND timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC, seq ASC`,
		worker, attendance.CanonicalTimestamp(from), attendance.CanonicalTimestamp(to))
}

func (r *repo) CompanyPunchesBetween(ctx context.Context, company attendance.CompanyID, from, to time.Time) ([]attendance.Punch, error) {
	return r.queryPunches(ctx,
		`SELECT `+prefixed("p.", punchColumns)+` FROM punches p
		 JOIN workers w ON w.id = p.worker_id
		 WHERE w.company_id = ? AND p.timestamp >= ? AND p.timestamp < ?
		 ORDER BY p.worker_id ASC, p.timestamp ASC, p.seq ASC`,
		company, attendance.CanonicalTimestamp(from), attendance.CanonicalTimestamp(to))
}

func (r *repo) SupersedePunch(ctx context.Context, id, by attendance.PunchID) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE punches SET status = ?, superseded_by = ? WHERE id = ? AND status = ?`,
		attendance.PunchSuperseded, by, id, attendance.PunchActive)
	if err != nil {
		return fmt.Errorf("failed to supersede punch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := r.GetPunch(ctx, id)
	if err != nil {
		return err
	}
	return &attendance.StateTransitionError{
		Entity: "punch", ID: string(id), From: string(current.Status), To: string(attendance.PunchSuperseded),
	}
}

func (r *repo) UnflaggedEntries(ctx context.Context, from, to time.Time) ([]attendance.Punch, error) {
	return r.queryPunches(ctx,
		`SELECT `+punchColumns+` FROM punches
		 WHERE kind = ? AND status = ? AND forgotten_exit_alerted = 0
		   AND timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC, seq ASC`,
		attendance.PunchEntry, attendance.PunchActive,
		attendance.CanonicalTimestamp(from), attendance.CanonicalTimestamp(to))
}

func (r *repo) MarkForgottenExitAlerted(ctx context.Context, id attendance.PunchID) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE punches SET forgotten_exit_alerted = 1 WHERE id = ? AND forgotten_exit_alerted = 0`, id)
	if err != nil {
		return false, fmt.Errorf("failed to flag punch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.GetPunch(ctx, id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (r *repo) queryPunches(ctx context.Context, query string, args ...any) ([]attendance.Punch, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var punches []attendance.Punch
	for rows.Next() {
		p, err := scanPunch(rows)
		if err != nil {
			return nil, err
		}
		punches = append(punches, *p)
	}
	return punches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPunch(row rowScanner) (*attendance.Punch, error) {
	var (
		p            attendance.Punch
		timestamp    string
		supersededBy sql.NullString
		replaces     sql.NullString
		latitude     string
		longitude    string
		createdAt    string
	)

	err := row.Scan(
		&p.ID, &p.WorkerID, &p.Seq, &timestamp, &p.Kind, &p.Status, &supersededBy, &replaces,
		&latitude, &longitude, &p.Address, &p.RemoteAddr, &p.PhotoRef, &p.Manual, &p.Note,
		&p.Mood, &p.MoodComment, &p.ForgottenExitAlerted, &p.PrevHash, &p.SelfHash, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan punch: %w", err)
	}

	if p.Timestamp, err = attendance.ParseCanonicalTimestamp(timestamp); err != nil {
		return nil, fmt.Errorf("punch %s: bad timestamp %q: %w", p.ID, timestamp, err)
	}
	p.SupersededBy = punchIDPtr(supersededBy)
	p.Replaces = punchIDPtr(replaces)
	p.Location = attendance.Location{
		Latitude:  parseDecimal(latitude),
		Longitude: parseDecimal(longitude),
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// =============================================================================
// CORRECTIONS
// =============================================================================

const correctionColumns = `id, worker_id, requester_id, kind, proposed_at, proposed_kind, reason,
	original_punch_id, status, responded_by, responded_at, result_punch_id, created_at, updated_at`

func (r *repo) SaveCorrection(ctx context.Context, c attendance.CorrectionRequest) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO corrections (`+correctionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.WorkerID, c.RequesterID, c.Kind,
		attendance.CanonicalTimestamp(c.ProposedAt), c.ProposedKind, c.Reason,
		nullID(c.OriginalPunchID), c.Status, nullID(c.RespondedBy), nullTime(c.RespondedAt),
		nullID(c.ResultPunchID), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("correction %s", c.ID))
	}
	return nil
}

func (r *repo) UpdateCorrection(ctx context.Context, c attendance.CorrectionRequest) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE corrections
		 SET status = ?, responded_by = ?, responded_at = ?, result_punch_id = ?, updated_at = ?
		 WHERE id = ?`,
		c.Status, nullID(c.RespondedBy), nullTime(c.RespondedAt), nullID(c.ResultPunchID),
		formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update correction: %w", err)
	}
	return requireRow(res, fmt.Sprintf("correction %s", c.ID))
}

func (r *repo) GetCorrection(ctx context.Context, id attendance.CorrectionID) (*attendance.CorrectionRequest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM corrections WHERE id = ?`, id)
	c, err := scanCorrection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("correction %s: %w", id, attendance.ErrNotFound)
	}
	return c, err
}

func (r *repo) ListCorrections(ctx context.Context, f attendance.CorrectionFilter) ([]attendance.CorrectionRequest, error) {
	query := `SELECT ` + prefixed("c.", correctionColumns) + ` FROM corrections c
		JOIN workers w ON w.id = c.worker_id WHERE 1 = 1`
	var args []any
	if f.WorkerID != nil {
		query += ` AND c.worker_id = ?`
		args = append(args, *f.WorkerID)
	}
	if f.CompanyID != nil {
		query += ` AND w.company_id = ?`
		args = append(args, *f.CompanyID)
	}
	if f.Status != nil {
		query += ` AND c.status = ?`
		args = append(args, *f.Status)
	}
	query += ` ORDER BY c.created_at ASC, c.id ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var result []attendance.CorrectionRequest
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func scanCorrection(row rowScanner) (*attendance.CorrectionRequest, error) {
	var (
		c           attendance.CorrectionRequest
		proposedAt  string
		original    sql.NullString
		respondedBy sql.NullString
		respondedAt sql.NullString
		result      sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&c.ID, &c.WorkerID, &c.RequesterID, &c.Kind, &proposedAt, &c.ProposedKind, &c.Reason,
		&original, &c.Status, &respondedBy, &respondedAt, &result, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan correction: %w", err)
	}

	c.ProposedAt, _ = attendance.ParseCanonicalTimestamp(proposedAt)
	c.OriginalPunchID = punchIDPtr(original)
	c.ResultPunchID = punchIDPtr(result)
	if respondedBy.Valid {
		w := attendance.WorkerID(respondedBy.String)
		c.RespondedBy = &w
	}
	if respondedAt.Valid {
		t := parseTime(respondedAt.String)
		c.RespondedAt = &t
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (r *repo) GetSchedule(ctx context.Context, worker attendance.WorkerID) (*attendance.Schedule, error) {
	var (
		s         attendance.Schedule
		workdays  string
		start     string
		updatedAt string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT worker_id, workdays, expected_start, daily_hours, updated_at FROM schedules WHERE worker_id = ?`,
		worker,
	).Scan(&s.WorkerID, &workdays, &start, &s.DailyHours, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule for %s: %w", worker, attendance.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	for i := 0; i < len(s.Workdays) && i < len(workdays); i++ {
		s.Workdays[i] = workdays[i] == '1'
	}
	if s.ExpectedStart, err = attendance.ParseClockTime(start); err != nil {
		return nil, fmt.Errorf("schedule for %s: %w", worker, err)
	}
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (r *repo) SaveSchedule(ctx context.Context, s attendance.Schedule) error {
	var mask strings.Builder
	for _, on := range s.Workdays {
		if on {
			mask.WriteByte('1')
		} else {
			mask.WriteByte('0')
		}
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO schedules (worker_id, workdays, expected_start, daily_hours, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(worker_id) DO UPDATE SET
		   workdays = excluded.workdays,
		   expected_start = excluded.expected_start,
		   daily_hours = excluded.daily_hours,
		   updated_at = excluded.updated_at`,
		s.WorkerID, mask.String(), s.ExpectedStart.String(), s.DailyHours, formatTime(s.UpdatedAt),
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("schedule for %s", s.WorkerID))
	}
	return nil
}

// =============================================================================
// JUSTIFICATIONS
// =============================================================================

const justificationColumns = `id, worker_id, kind, start_date, end_date, half_day, status, comment,
	decided_by, created_at, updated_at`

func (r *repo) SaveJustification(ctx context.Context, j attendance.Justification) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO justifications (`+justificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.WorkerID, j.Kind, j.Start.String(), j.End.String(), j.HalfDay, j.Status, j.Comment,
		nullID(j.DecidedBy), formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("justification %s", j.ID))
	}
	return nil
}

func (r *repo) UpdateJustification(ctx context.Context, j attendance.Justification) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE justifications SET status = ?, decided_by = ?, comment = ?, updated_at = ? WHERE id = ?`,
		j.Status, nullID(j.DecidedBy), j.Comment, formatTime(j.UpdatedAt), j.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update justification: %w", err)
	}
	return requireRow(res, fmt.Sprintf("justification %s", j.ID))
}

func (r *repo) GetJustification(ctx context.Context, id attendance.JustificationID) (*attendance.Justification, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+justificationColumns+` FROM justifications WHERE id = ?`, id)
	j, err := scanJustification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("justification %s: %w", id, attendance.ErrNotFound)
	}
	return j, err
}

func (r *repo) ListJustifications(ctx context.Context, worker attendance.WorkerID) ([]attendance.Justification, error) {
	return r.queryJustifications(ctx,
		`SELECT `+justificationColumns+` FROM justifications WHERE worker_id = ? ORDER BY start_date ASC, id ASC`,
		worker)
}

func (r *repo) ApprovedJustifications(ctx context.Context, worker attendance.WorkerID, p attendance.Period) ([]attendance.Justification, error) {
	return r.queryJustifications(ctx,
		`SELECT `+justificationColumns+` FROM justifications
		 WHERE worker_id = ? AND status = ? AND start_date <= ? AND end_date >= ?
		 ORDER BY start_date ASC, id ASC`,
		worker, attendance.ApprovalApproved, p.End.String(), p.Start.String())
}

func (r *repo) queryJustifications(ctx context.Context, query string, args ...any) ([]attendance.Justification, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query justifications: %w", err)
	}
	defer rows.Close()

	var result []attendance.Justification
	for rows.Next() {
		j, err := scanJustification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *j)
	}
	return result, rows.Err()
}

func scanJustification(row rowScanner) (*attendance.Justification, error) {
	var (
		j         attendance.Justification
		start     string
		end       string
		decidedBy sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&j.ID, &j.WorkerID, &j.Kind, &start, &end, &j.HalfDay, &j.Status, &j.Comment,
		&decidedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan justification: %w", err)
	}
	if j.Start, err = attendance.ParseDate(start); err != nil {
		return nil, err
	}
	if j.End, err = attendance.ParseDate(end); err != nil {
		return nil, err
	}
	if decidedBy.Valid {
		w := attendance.WorkerID(decidedBy.String)
		j.DecidedBy = &w
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (r *repo) SaveHoliday(ctx context.Context, h attendance.Holiday) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO holidays (id, company_id, date, name) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET company_id = excluded.company_id, date = excluded.date, name = excluded.name`,
		h.ID, h.CompanyID, h.Date.String(), h.Name,
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("holiday %s on %s", h.Name, h.Date))
	}
	return nil
}

func (r *repo) DeleteHoliday(ctx context.Context, id attendance.HolidayID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	return requireRow(res, fmt.Sprintf("holiday %s", id))
}

func (r *repo) GetHoliday(ctx context.Context, id attendance.HolidayID) (*attendance.Holiday, error) {
	var (
		h    attendance.Holiday
		date string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, company_id, date, name FROM holidays WHERE id = ?`, id,
	).Scan(&h.ID, &h.CompanyID, &date, &h.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("holiday %s: %w", id, attendance.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holiday: %w", err)
	}
	if h.Date, err = attendance.ParseDate(date); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *repo) HolidaysBetween(ctx context.Context, company attendance.CompanyID, p attendance.Period) ([]attendance.Holiday, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, company_id, date, name FROM holidays
		 WHERE (company_id = '' OR company_id = ?) AND date >= ? AND date <= ?
		 ORDER BY date ASC, name ASC`,
		company, p.Start.String(), p.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var result []attendance.Holiday
	for rows.Next() {
		var (
			h    attendance.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &h.CompanyID, &date, &h.Name); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = attendance.ParseDate(date); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// =============================================================================
// ALERT LOG
// =============================================================================

func (r *repo) ClaimAlert(ctx context.Context, e attendance.AlertLogEntry) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_log (worker_id, date, kind, created_at) VALUES (?, ?, ?, ?)`,
		e.WorkerID, e.Date.String(), e.Kind, formatTime(e.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to claim alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repo) AlertsOn(ctx context.Context, d attendance.Date) ([]attendance.AlertLogEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT worker_id, kind, created_at FROM alert_log WHERE date = ? ORDER BY worker_id ASC, kind ASC`,
		d.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query alert log: %w", err)
	}
	defer rows.Close()

	var result []attendance.AlertLogEntry
	for rows.Next() {
		e := attendance.AlertLogEntry{Date: d}
		var createdAt string
		if err := rows.Scan(&e.WorkerID, &e.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// WORKERS AND COMPANIES
// =============================================================================

const workerColumns = `id, name, national_id, email, title, role, company_id, active, created_at`

func (r *repo) SaveWorker(ctx context.Context, w attendance.Worker) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO workers (`+workerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   national_id = excluded.national_id,
		   email = excluded.email,
		   title = excluded.title,
		   role = excluded.role,
		   company_id = excluded.company_id,
		   active = excluded.active`,
		w.ID, w.Name, w.NationalID, w.Email, w.Title, w.Role, w.CompanyID, w.Active, formatTime(w.CreatedAt),
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("worker %s", w.ID))
	}
	return nil
}

func (r *repo) GetWorker(ctx context.Context, id attendance.WorkerID) (*attendance.Worker, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker %s: %w", id, attendance.ErrNotFound)
	}
	return w, err
}

func (r *repo) ListWorkers(ctx context.Context, f attendance.WorkerFilter) ([]attendance.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE 1 = 1`
	var args []any
	if f.CompanyID != nil {
		query += ` AND company_id = ?`
		args = append(args, *f.CompanyID)
	}
	if f.Role != nil {
		query += ` AND role = ?`
		args = append(args, *f.Role)
	}
	if f.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var result []attendance.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

func scanWorker(row rowScanner) (*attendance.Worker, error) {
	var (
		w         attendance.Worker
		createdAt string
	)
	err := row.Scan(&w.ID, &w.Name, &w.NationalID, &w.Email, &w.Title, &w.Role, &w.CompanyID, &w.Active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan worker: %w", err)
	}
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

func (r *repo) SaveCompany(ctx context.Context, c attendance.Company) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO companies (id, name, legal_name, tax_id, hr_email, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   legal_name = excluded.legal_name,
		   tax_id = excluded.tax_id,
		   hr_email = excluded.hr_email`,
		c.ID, c.Name, c.LegalName, c.TaxID, c.HREmail, formatTime(c.CreatedAt),
	)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("company %s", c.ID))
	}
	return nil
}

func (r *repo) GetCompany(ctx context.Context, id attendance.CompanyID) (*attendance.Company, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, name, legal_name, tax_id, hr_email, created_at FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, attendance.ErrNotFound)
	}
	return c, err
}

func (r *repo) ListCompanies(ctx context.Context) ([]attendance.Company, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, legal_name, tax_id, hr_email, created_at FROM companies ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var result []attendance.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func scanCompany(row rowScanner) (*attendance.Company, error) {
	var (
		c         attendance.Company
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.TaxID, &c.HREmail, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// mapWriteError translates constraint violations into engine errors.
func mapWriteError(err error, what string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			if strings.Contains(err.Error(), "punches.worker_id") {
				return fmt.Errorf("%s: %w", what, attendance.ErrChainConflict)
			}
			return fmt.Errorf("%s: %w", what, attendance.ErrDuplicate)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s references a missing row: %w", what, attendance.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, attendance.ErrNotFound)
	}
	return nil
}

// prefixed qualifies a column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

func nullID[T ~string](id *T) sql.NullString {
	if id == nil || *id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func punchIDPtr(s sql.NullString) *attendance.PunchID {
	if !s.Valid || s.String == "" {
		return nil
	}
	id := attendance.PunchID(s.String)
	return &id
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

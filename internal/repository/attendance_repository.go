package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aulatrack/attendance-api/internal/models"
)

const attendanceColumns = `id, class_session_id, student_id, status, arrival_time, notes, recorded_by, recorded_at`

// AttendanceRepository persists per-student attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindByID loads an attendance record by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE id = $1`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindBySessionAndStudent loads the unique record for a (session, student) pair.
func (r *AttendanceRepository) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	return findBySessionAndStudent(ctx, r.db, sessionID, studentID)
}

// findBySessionAndStudent runs the identity lookup against either the pool or
// an open transaction; Reconcile reuses it per tuple.
func findBySessionAndStudent(ctx context.Context, q sqlx.QueryerContext, sessionID, studentID string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE class_session_id = $1 AND student_id = $2`, attendanceColumns)
	var record models.AttendanceRecord
	if err := sqlx.GetContext(ctx, q, &record, query, sessionID, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBySession returns all records for a session ordered by student.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE class_session_id = $1 ORDER BY student_id ASC`, attendanceColumns)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return records, nil
}

// Update overwrites the mutable fields of a record.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.AttendanceRecord) error {
	const query = `UPDATE attendance_records SET status = :status, arrival_time = :arrival_time, notes = :notes, recorded_at = :recorded_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	return nil
}

// StudentHistory returns a student's attendance joined through sessions,
// newest first, optionally bounded by dates.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	query := `SELECT ar.class_session_id, cs.session_date, cs.start_time, ar.status, ar.notes
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.class_session_id
WHERE ar.student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(` AND cs.session_date >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(` AND cs.session_date <= $%d`, len(args))
	}
	query += ` ORDER BY cs.session_date DESC, cs.start_time DESC`
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}

type statusCount struct {
	Status models.AttendanceStatus `db:"status"`
	Count  int                     `db:"count"`
}

// SessionTally counts a session's records grouped by status.
func (r *AttendanceRepository) SessionTally(ctx context.Context, sessionID string) (*models.StatusTally, error) {
	const query = `SELECT status, COUNT(*) AS count FROM attendance_records WHERE class_session_id = $1 GROUP BY status`
	var counts []statusCount
	if err := r.db.SelectContext(ctx, &counts, query, sessionID); err != nil {
		return nil, fmt.Errorf("session attendance tally: %w", err)
	}
	return foldTally(counts), nil
}

// StudentTally counts a student's records grouped by status, joined through
// sessions for the optional date range.
func (r *AttendanceRepository) StudentTally(ctx context.Context, studentID string, from, to *time.Time) (*models.StatusTally, error) {
	query := `SELECT ar.status, COUNT(*) AS count
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.class_session_id
WHERE ar.student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(` AND cs.session_date >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(` AND cs.session_date <= $%d`, len(args))
	}
	query += ` GROUP BY ar.status`
	var counts []statusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance tally: %w", err)
	}
	return foldTally(counts), nil
}

func foldTally(counts []statusCount) *models.StatusTally {
	tally := &models.StatusTally{}
	for _, c := range counts {
		switch c.Status {
		case models.AttendanceStatusPresent:
			tally.Present = c.Count
		case models.AttendanceStatusAbsent:
			tally.Absent = c.Count
		case models.AttendanceStatusLate:
			tally.Late = c.Count
		case models.AttendanceStatusExcused:
			tally.Excused = c.Count
		}
		tally.Total += c.Count
	}
	return tally
}

// Reconcile applies a bulk intake inside one transaction: each entry either
// updates the existing (session, student) record in place or inserts a new
// one. A failing entry is rolled back to its savepoint and reported, leaving
// the remaining entries to proceed.
func (r *AttendanceRepository) Reconcile(ctx context.Context, sessionID, recordedBy string, entries []models.ReconcileEntry) (*models.ReconcileResult, error) {
	result := &models.ReconcileResult{}
	if len(entries) == 0 {
		return result, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance reconcile: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE attendance_records SET status = $1, arrival_time = $2, notes = $3, recorded_at = $4 WHERE id = $5`
	insertQuery := fmt.Sprintf(`INSERT INTO attendance_records (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, attendanceColumns)

	for _, entry := range entries {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `SAVEPOINT reconcile_entry`); err != nil {
			return nil, fmt.Errorf("savepoint attendance reconcile: %w", err)
		}
		existing, err := findBySessionAndStudent(ctx, tx, sessionID, entry.StudentID)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, updateQuery, entry.Status, entry.ArrivalTime, entry.Notes, now, existing.ID)
			if err == nil {
				result.Updated++
			}
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, insertQuery, uuid.NewString(), sessionID, entry.StudentID, entry.Status, entry.ArrivalTime, entry.Notes, recordedBy, now)
			if err == nil {
				result.Created++
			}
		}
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT reconcile_entry`); rbErr != nil {
				return nil, fmt.Errorf("rollback attendance reconcile entry: %w", rbErr)
			}
			result.Errors = append(result.Errors, models.ReconcileError{StudentID: entry.StudentID, Reason: err.Error()})
			continue
		}
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT reconcile_entry`); err != nil {
			return nil, fmt.Errorf("release attendance reconcile savepoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance reconcile: %w", err)
	}
	committed = true
	return result, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aulatrack/attendance-api/internal/models"
)

const sessionColumns = `id, course_group_id, subject_id, teacher_id, period_id, session_date, start_time, end_time, status, topic, notes, closed_at, closed_by, created_at, updated_at`

// SessionRepository persists class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClassSession) (*models.ClassSession, error) {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO class_sessions (%s)
VALUES (:id, :course_group_id, :subject_id, :teacher_id, :period_id, :session_date, :start_time, :end_time, :status, :topic, :notes, :closed_at, :closed_by, :created_at, :updated_at)`, sessionColumns)
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return nil, fmt.Errorf("create class session: %w", err)
	}
	return session, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_sessions WHERE id = $1`, sessionColumns)
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Update persists field changes for a non-terminal session.
func (r *SessionRepository) Update(ctx context.Context, session *models.ClassSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_sessions SET period_id = :period_id, session_date = :session_date, start_time = :start_time, end_time = :end_time, topic = :topic, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update class session: %w", err)
	}
	return nil
}

// TransitionStatus atomically moves a session into the target status when its
// current status is one of the allowed source states. Returns sql.ErrNoRows
// when the guard does not match, leaving stored state untouched.
func (r *SessionRepository) TransitionStatus(ctx context.Context, id string, target models.SessionStatus, from ...models.SessionStatus) (*models.ClassSession, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	query := fmt.Sprintf(`UPDATE class_sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4) RETURNING %s`, sessionColumns)
	var session models.ClassSession
	err := r.db.GetContext(ctx, &session, query, target, time.Now().UTC(), id, pq.Array(sources))
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Close marks a session closed recording when and by whom. Same guard
// semantics as TransitionStatus.
func (r *SessionRepository) Close(ctx context.Context, id, closedBy string) (*models.ClassSession, error) {
	now := time.Now().UTC()
	query := fmt.Sprintf(`UPDATE class_sessions SET status = $1, closed_at = $2, closed_by = $3, updated_at = $2 WHERE id = $4 AND status = ANY($5) RETURNING %s`, sessionColumns)
	sources := []string{string(models.SessionStatusScheduled), string(models.SessionStatusInProgress)}
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, models.SessionStatusClosed, now, closedBy, id, pq.Array(sources)); err != nil {
		return nil, err
	}
	return &session, nil
}

// HasConflicting reports whether the teacher already has a non-cancelled
// session on the date whose half-open [start,end) interval overlaps the given
// one. excludeID skips the session being updated.
func (r *SessionRepository) HasConflicting(ctx context.Context, teacherID string, date time.Time, startTime, endTime, excludeID string) (bool, error) {
	query := `SELECT EXISTS (
SELECT 1 FROM class_sessions
WHERE teacher_id = $1 AND session_date = $2 AND status <> $3
AND start_time < $4 AND end_time > $5`
	args := []interface{}{teacherID, date, models.SessionStatusCancelled, endTime, startTime}
	if excludeID != "" {
		query += ` AND id <> $6`
		args = append(args, excludeID)
	}
	query += `)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check conflicting session: %w", err)
	}
	return exists, nil
}

// ListByTeacher returns a teacher's sessions, optionally bounded by dates.
func (r *SessionRepository) ListByTeacher(ctx context.Context, teacherID string, from, to *time.Time) ([]models.ClassSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_sessions WHERE teacher_id = $1`, sessionColumns)
	args := []interface{}{teacherID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(` AND session_date >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(` AND session_date <= $%d`, len(args))
	}
	query += ` ORDER BY session_date ASC, start_time ASC`
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions by teacher: %w", err)
	}
	return sessions, nil
}

// ListByDate returns all sessions on a date, optionally scoped to a campus
// through the owning course group.
func (r *SessionRepository) ListByDate(ctx context.Context, date time.Time, campusID string) ([]models.ClassSession, error) {
	var sessions []models.ClassSession
	if campusID == "" {
		query := fmt.Sprintf(`SELECT %s FROM class_sessions WHERE session_date = $1 ORDER BY start_time ASC`, sessionColumns)
		if err := r.db.SelectContext(ctx, &sessions, query, date); err != nil {
			return nil, fmt.Errorf("list sessions by date: %w", err)
		}
		return sessions, nil
	}
	const query = `SELECT cs.id, cs.course_group_id, cs.subject_id, cs.teacher_id, cs.period_id, cs.session_date, cs.start_time, cs.end_time, cs.status, cs.topic, cs.notes, cs.closed_at, cs.closed_by, cs.created_at, cs.updated_at
FROM class_sessions cs
JOIN course_groups cg ON cg.id = cs.course_group_id
WHERE cs.session_date = $1 AND cg.campus_id = $2
ORDER BY cs.start_time ASC`
	if err := r.db.SelectContext(ctx, &sessions, query, date, campusID); err != nil {
		return nil, fmt.Errorf("list sessions by date and campus: %w", err)
	}
	return sessions, nil
}

package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulatrack/attendance-api/internal/models"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func sessionRow(id string, status models.SessionStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "course_group_id", "subject_id", "teacher_id", "period_id",
		"session_date", "start_time", "end_time", "status", "topic", "notes",
		"closed_at", "closed_by", "created_at", "updated_at",
	}).AddRow(
		id, "group-1", "subject-1", "teacher-1", nil,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "08:00", "09:30", status, nil, nil,
		nil, nil, now, now,
	)
}

func TestSessionRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	stored, err := repo.Create(context.Background(), &models.ClassSession{
		CourseGroupID: "group-1",
		SubjectID:     "subject-1",
		TeacherID:     "teacher-1",
		SessionDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:     "08:00",
		EndTime:       "09:30",
		Status:        models.SessionStatusScheduled,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("session-99").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "session-99")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestSessionRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE class_sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4) RETURNING")).
		WithArgs(models.SessionStatusInProgress, sqlmock.AnyArg(), "session-1", sqlmock.AnyArg()).
		WillReturnRows(sessionRow("session-1", models.SessionStatusInProgress))

	session, err := repo.TransitionStatus(context.Background(), "session-1", models.SessionStatusInProgress, models.SessionStatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusInProgress, session.Status)
}

func TestSessionRepositoryTransitionStatusGuardMiss(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE class_sessions")).
		WithArgs(models.SessionStatusInProgress, sqlmock.AnyArg(), "session-1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.TransitionStatus(context.Background(), "session-1", models.SessionStatusInProgress, models.SessionStatusScheduled)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestSessionRepositoryClose(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE class_sessions SET status = $1, closed_at = $2, closed_by = $3, updated_at = $2 WHERE id = $4 AND status = ANY($5) RETURNING")).
		WithArgs(models.SessionStatusClosed, sqlmock.AnyArg(), "teacher-1", "session-1", sqlmock.AnyArg()).
		WillReturnRows(sessionRow("session-1", models.SessionStatusClosed))

	session, err := repo.Close(context.Background(), "session-1", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusClosed, session.Status)
}

func TestSessionRepositoryHasConflicting(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("teacher-1", date, models.SessionStatusCancelled, "09:30", "08:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	conflict, err := repo.HasConflicting(context.Background(), "teacher-1", date, "08:00", "09:30", "")
	require.NoError(t, err)
	assert.True(t, conflict)
}

func TestSessionRepositoryHasConflictingExcludesSelf(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND id <> $6")).
		WithArgs("teacher-1", date, models.SessionStatusCancelled, "09:30", "08:00", "session-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	conflict, err := repo.HasConflicting(context.Background(), "teacher-1", date, "08:00", "09:30", "session-1")
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestSessionRepositoryListByTeacherRange(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND session_date >= $2 AND session_date <= $3 ORDER BY session_date ASC, start_time ASC")).
		WithArgs("teacher-1", from, to).
		WillReturnRows(sessionRow("session-1", models.SessionStatusScheduled))

	sessions, err := repo.ListByTeacher(context.Background(), "teacher-1", &from, &to)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-1", sessions[0].ID)
}

func TestSessionRepositoryListByDateCampusScoped(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN course_groups cg ON cg.id = cs.course_group_id")).
		WithArgs(date, "campus-1").
		WillReturnRows(sessionRow("session-1", models.SessionStatusClosed))

	sessions, err := repo.ListByDate(context.Background(), date, "campus-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulatrack/attendance-api/internal/models"
)

func TestChangeLogRepositoryAppendAssignsDefaults(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewChangeLogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_change_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AttendanceChangeLog{
		AttendanceRecordID: "record-1",
		ChangedBy:          "coordinator-1",
		OldStatus:          models.AttendanceStatusAbsent,
		NewStatus:          models.AttendanceStatusExcused,
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.ChangedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeLogRepositoryListByRecord(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewChangeLogRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "attendance_record_id", "changed_by", "changed_at", "old_status", "new_status", "old_notes", "new_notes", "reason"}).
		AddRow("log-2", "record-1", "coordinator-1", now, "absent", "excused", nil, nil, "medical certificate").
		AddRow("log-1", "record-1", "teacher-1", now.Add(-time.Hour), "present", "absent", nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY changed_at DESC")).
		WithArgs("record-1").
		WillReturnRows(rows)

	logs, err := repo.ListByRecord(context.Background(), "record-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-2", logs[0].ID)
	require.NotNil(t, logs[0].Reason)
	assert.Equal(t, "medical certificate", *logs[0].Reason)
}

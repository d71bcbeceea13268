package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aulatrack/attendance-api/internal/models"
)

// ChangeLogRepository is the append-only store of attendance change events.
type ChangeLogRepository struct {
	db *sqlx.DB
}

// NewChangeLogRepository constructs the repository.
func NewChangeLogRepository(db *sqlx.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

// Append writes one immutable change entry.
func (r *ChangeLogRepository) Append(ctx context.Context, log *models.AttendanceChangeLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.ChangedAt.IsZero() {
		log.ChangedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_change_logs (id, attendance_record_id, changed_by, changed_at, old_status, new_status, old_notes, new_notes, reason)
VALUES (:id, :attendance_record_id, :changed_by, :changed_at, :old_status, :new_status, :old_notes, :new_notes, :reason)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("append attendance change log: %w", err)
	}
	return nil
}

// ListByRecord returns change entries for a record, newest first.
func (r *ChangeLogRepository) ListByRecord(ctx context.Context, recordID string) ([]models.AttendanceChangeLog, error) {
	const query = `SELECT id, attendance_record_id, changed_by, changed_at, old_status, new_status, old_notes, new_notes, reason
FROM attendance_change_logs WHERE attendance_record_id = $1 ORDER BY changed_at DESC`
	var logs []models.AttendanceChangeLog
	if err := r.db.SelectContext(ctx, &logs, query, recordID); err != nil {
		return nil, fmt.Errorf("list attendance change logs: %w", err)
	}
	return logs, nil
}

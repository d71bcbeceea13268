package models

import "time"

// SessionStatus represents the lifecycle state of a class session.
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusClosed     SessionStatus = "closed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusInProgress, SessionStatusClosed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further field mutation.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusClosed || s == SessionStatusCancelled
}

// ClassSession represents one scheduled teaching block. Sessions are never
// physically deleted; cancellation is a status.
type ClassSession struct {
	ID            string        `db:"id" json:"id"`
	CourseGroupID string        `db:"course_group_id" json:"course_group_id"`
	SubjectID     string        `db:"subject_id" json:"subject_id"`
	TeacherID     string        `db:"teacher_id" json:"teacher_id"`
	PeriodID      *string       `db:"period_id" json:"period_id,omitempty"`
	SessionDate   time.Time     `db:"session_date" json:"session_date"`
	StartTime     string        `db:"start_time" json:"start_time"`
	EndTime       string        `db:"end_time" json:"end_time"`
	Status        SessionStatus `db:"status" json:"status"`
	Topic         *string       `db:"topic" json:"topic,omitempty"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	ClosedAt      *time.Time    `db:"closed_at" json:"closed_at,omitempty"`
	ClosedBy      *string       `db:"closed_by" json:"closed_by,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

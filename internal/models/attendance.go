package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's recorded attendance for one session.
// At most one record exists per (session, student) pair.
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	ClassSessionID string           `db:"class_session_id" json:"class_session_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Status         AttendanceStatus `db:"status" json:"status"`
	ArrivalTime    *string          `db:"arrival_time" json:"arrival_time,omitempty"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	RecordedBy     string           `db:"recorded_by" json:"recorded_by"`
	RecordedAt     time.Time        `db:"recorded_at" json:"recorded_at"`
}

// AttendanceChangeLog is an append-only audit entry for one correction to an
// attendance record. Never written for the record's initial creation.
type AttendanceChangeLog struct {
	ID                 string           `db:"id" json:"id"`
	AttendanceRecordID string           `db:"attendance_record_id" json:"attendance_record_id"`
	ChangedBy          string           `db:"changed_by" json:"changed_by"`
	ChangedAt          time.Time        `db:"changed_at" json:"changed_at"`
	OldStatus          AttendanceStatus `db:"old_status" json:"old_status"`
	NewStatus          AttendanceStatus `db:"new_status" json:"new_status"`
	OldNotes           *string          `db:"old_notes" json:"old_notes,omitempty"`
	NewNotes           *string          `db:"new_notes" json:"new_notes,omitempty"`
	Reason             *string          `db:"reason" json:"reason,omitempty"`
}

// StatusTally holds raw per-status counts for a set of attendance records.
type StatusTally struct {
	Present int `db:"present" json:"present"`
	Absent  int `db:"absent" json:"absent"`
	Late    int `db:"late" json:"late"`
	Excused int `db:"excused" json:"excused"`
	Total   int `db:"total" json:"total"`
}

// SessionStats summarises attendance for a single session.
type SessionStats struct {
	SessionID string `json:"session_id"`
	StatusTally
	AttendanceRate float64 `json:"attendance_rate"`
}

// StudentStats summarises a student's attendance over an optional date range.
type StudentStats struct {
	StudentID string `json:"student_id"`
	StatusTally
	AttendanceRate float64 `json:"attendance_rate"`
}

// AttendanceHistoryRow captures one entry of a student's history.
type AttendanceHistoryRow struct {
	ClassSessionID string           `db:"class_session_id" json:"class_session_id"`
	SessionDate    time.Time        `db:"session_date" json:"session_date"`
	StartTime      string           `db:"start_time" json:"start_time"`
	Status         AttendanceStatus `db:"status" json:"status"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
}

// DailyReportSession is the per-session block of the daily report.
type DailyReportSession struct {
	SessionID     string        `json:"session_id"`
	CourseGroupID string        `json:"course_group_id"`
	SubjectID     string        `json:"subject_id"`
	Status        SessionStatus `json:"status"`
	StatusTally
	AttendanceRate float64 `json:"attendance_rate"`
}

// DailyReport aggregates session stats across one date, optionally scoped to
// a campus. Sessions without any recorded attendance are excluded from the
// overall rate.
type DailyReport struct {
	Date                   string               `json:"date"`
	CampusID               *string              `json:"campus_id,omitempty"`
	TotalSessions          int                  `json:"total_sessions"`
	SessionsWithAttendance int                  `json:"sessions_with_attendance"`
	OverallAttendanceRate  float64              `json:"overall_attendance_rate"`
	Sessions               []DailyReportSession `json:"session_stats"`
}

// ReconcileEntry is one tuple of a bulk attendance intake.
type ReconcileEntry struct {
	StudentID   string           `json:"student_id"`
	Status      AttendanceStatus `json:"status"`
	ArrivalTime *string          `json:"arrival_time,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
}

// ReconcileError captures one failed tuple of a bulk intake.
type ReconcileError struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// ReconcileResult summarises a bulk intake execution.
type ReconcileResult struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Errors  []ReconcileError `json:"errors,omitempty"`
}

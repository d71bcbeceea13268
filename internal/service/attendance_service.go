package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulatrack/attendance-api/internal/models"
	appErrors "github.com/aulatrack/attendance-api/pkg/errors"
)

type attendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	Update(ctx context.Context, record *models.AttendanceRecord) error
	StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
	SessionTally(ctx context.Context, sessionID string) (*models.StatusTally, error)
	StudentTally(ctx context.Context, studentID string, from, to *time.Time) (*models.StatusTally, error)
	Reconcile(ctx context.Context, sessionID, recordedBy string, entries []models.ReconcileEntry) (*models.ReconcileResult, error)
}

type changeLogRepository interface {
	Append(ctx context.Context, log *models.AttendanceChangeLog) error
	ListByRecord(ctx context.Context, recordID string) ([]models.AttendanceChangeLog, error)
}

// sessionReader is the read-only view of session state the attendance service
// is allowed to consume.
type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	ListByDate(ctx context.Context, date time.Time, campusID string) ([]models.ClassSession, error)
}

// sessionAdvancer keeps the scheduled→in_progress side effect owned by the
// session lifecycle component.
type sessionAdvancer interface {
	AdvanceIfScheduled(ctx context.Context, id string) error
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type intakeObserver interface {
	ObserveBulkIntake(created, updated, failed int)
}

// AttendanceService owns bulk intake, audited corrections and derived stats.
type AttendanceService struct {
	repo      attendanceRepository
	logs      changeLogRepository
	sessions  sessionReader
	lifecycle sessionAdvancer
	cache     reportCache
	cacheTTL  time.Duration
	metrics   intakeObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, logs changeLogRepository, sessions sessionReader, lifecycle sessionAdvancer, cache reportCache, cacheTTL time.Duration, metrics intakeObserver, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		repo:      repo,
		logs:      logs,
		sessions:  sessions,
		lifecycle: lifecycle,
		cache:     cache,
		cacheTTL:  cacheTTL,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	svc.validator.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	return svc
}

// TakeAttendanceItem holds one student tuple of a bulk intake.
type TakeAttendanceItem struct {
	StudentID   string  `json:"student_id" validate:"required"`
	Status      string  `json:"status" validate:"required,attendance_status"`
	ArrivalTime *string `json:"arrival_time" validate:"omitempty,hhmm"`
	Notes       *string `json:"notes"`
}

// TakeAttendanceRequest describes the bulk intake payload.
type TakeAttendanceRequest struct {
	Records []TakeAttendanceItem `json:"records" validate:"required,min=1,dive"`
}

// UpdateAttendanceRequest is the closed patch payload for a single record.
type UpdateAttendanceRequest struct {
	Status      *string `json:"status" validate:"omitempty,attendance_status"`
	ArrivalTime *string `json:"arrival_time" validate:"omitempty,hhmm"`
	Notes       *string `json:"notes"`
	Reason      *string `json:"reason"`
}

// Take records attendance for multiple students in one call. The batch is not
// atomic across tuples; each tuple's write is attempted independently and
// failures are returned alongside the counts. The bulk path never writes
// change logs.
func (s *AttendanceService) Take(ctx context.Context, sessionID string, req TakeAttendanceRequest, recordedBy string) (*models.ReconcileResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.ErrSessionCancelled
	}

	entries := make([]models.ReconcileEntry, len(req.Records))
	for i, item := range req.Records {
		entries[i] = models.ReconcileEntry{
			StudentID:   item.StudentID,
			Status:      models.AttendanceStatus(strings.ToLower(item.Status)),
			ArrivalTime: item.ArrivalTime,
			Notes:       item.Notes,
		}
	}

	result, err := s.repo.Reconcile(ctx, sessionID, recordedBy, entries)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk attendance intake failed")
	}

	if session.Status == models.SessionStatusScheduled {
		if err := s.lifecycle.AdvanceIfScheduled(ctx, sessionID); err != nil {
			s.logger.Warn("failed to advance session after intake", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	s.invalidateReports(ctx)
	if s.metrics != nil {
		s.metrics.ObserveBulkIntake(result.Created, result.Updated, len(result.Errors))
	}
	s.logger.Info("attendance recorded",
		zap.String("session_id", sessionID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Errors)))
	return result, nil
}

// UpdateRecord applies a correction to a single record and unconditionally
// appends one change-log entry, even when the new values equal the old ones.
func (s *AttendanceService) UpdateRecord(ctx context.Context, recordID string, req UpdateAttendanceRequest, changedBy string) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance patch")
	}
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	oldStatus := record.Status
	oldNotes := record.Notes

	if req.Status != nil {
		record.Status = models.AttendanceStatus(strings.ToLower(*req.Status))
	}
	if req.ArrivalTime != nil {
		record.ArrivalTime = req.ArrivalTime
	}
	if req.Notes != nil {
		record.Notes = req.Notes
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}

	entry := &models.AttendanceChangeLog{
		AttendanceRecordID: record.ID,
		ChangedBy:          changedBy,
		OldStatus:          oldStatus,
		NewStatus:          record.Status,
		OldNotes:           oldNotes,
		NewNotes:           record.Notes,
		Reason:             req.Reason,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write attendance change log")
	}

	s.invalidateReports(ctx)
	return record, nil
}

// Excuse marks an absent or late record as excused with a mandatory reason.
func (s *AttendanceService) Excuse(ctx context.Context, recordID, reason, changedBy string) (*models.AttendanceRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "excuse reason required")
	}
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record.Status != models.AttendanceStatusAbsent && record.Status != models.AttendanceStatusLate {
		return nil, appErrors.ErrInvalidExcuseTarget
	}
	status := string(models.AttendanceStatusExcused)
	return s.UpdateRecord(ctx, recordID, UpdateAttendanceRequest{Status: &status, Reason: &reason}, changedBy)
}

// SessionAttendance lists all records for a session.
func (s *AttendanceService) SessionAttendance(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session attendance")
	}
	return records, nil
}

// RecordChangeLogs returns the audit trail of a record, newest first.
func (s *AttendanceService) RecordChangeLogs(ctx context.Context, recordID string) ([]models.AttendanceChangeLog, error) {
	logs, err := s.logs.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change logs")
	}
	return logs, nil
}

// StudentHistory returns a student's attendance entries, newest first.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	rows, err := s.repo.StudentHistory(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance history")
	}
	return rows, nil
}

// SessionStats tallies a session's records and derives its attendance rate.
func (s *AttendanceService) SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	tally, err := s.repo.SessionTally(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute session stats")
	}
	return &models.SessionStats{
		SessionID:      sessionID,
		StatusTally:    *tally,
		AttendanceRate: attendanceRate(tally),
	}, nil
}

// StudentStats tallies a student's records over an optional date range.
func (s *AttendanceService) StudentStats(ctx context.Context, studentID string, from, to *time.Time) (*models.StudentStats, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	tally, err := s.repo.StudentTally(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute student stats")
	}
	return &models.StudentStats{
		StudentID:      studentID,
		StatusTally:    *tally,
		AttendanceRate: attendanceRate(tally),
	}, nil
}

// DailyReport aggregates per-session stats across one date. Sessions without
// any recorded attendance are listed but excluded from the overall rate.
func (s *AttendanceService) DailyReport(ctx context.Context, date time.Time, campusID string) (*models.DailyReport, error) {
	cacheKey := reportCacheKey(date, campusID)
	if s.cache != nil {
		var cached models.DailyReport
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	sessions, err := s.sessions.ListByDate(ctx, date, campusID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions for report")
	}

	report := &models.DailyReport{
		Date:          date.Format(dateLayout),
		TotalSessions: len(sessions),
		Sessions:      make([]models.DailyReportSession, 0, len(sessions)),
	}
	if campusID != "" {
		report.CampusID = &campusID
	}

	rateSum := 0.0
	for _, session := range sessions {
		tally, err := s.repo.SessionTally(ctx, session.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally session for report")
		}
		rate := attendanceRate(tally)
		report.Sessions = append(report.Sessions, models.DailyReportSession{
			SessionID:      session.ID,
			CourseGroupID:  session.CourseGroupID,
			SubjectID:      session.SubjectID,
			Status:         session.Status,
			StatusTally:    *tally,
			AttendanceRate: rate,
		})
		if tally.Total > 0 {
			report.SessionsWithAttendance++
			// Sum the exact rate; per-session rounding would skew the mean.
			rateSum += float64(tally.Present+tally.Late) / float64(tally.Total) * 100
		}
	}
	if report.SessionsWithAttendance > 0 {
		report.OverallAttendanceRate = round2(rateSum / float64(report.SessionsWithAttendance))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, s.cacheTTL); err != nil {
			s.logger.Warn("daily report cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return report, nil
}

func (s *AttendanceService) invalidateReports(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "reports:daily:*"); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func reportCacheKey(date time.Time, campusID string) string {
	if campusID == "" {
		return fmt.Sprintf("reports:daily:%s", date.Format(dateLayout))
	}
	return fmt.Sprintf("reports:daily:%s:%s", date.Format(dateLayout), campusID)
}

// attendanceRate counts late arrivals as attended, rounded to 2 decimals.
func attendanceRate(tally *models.StatusTally) float64 {
	if tally == nil || tally.Total == 0 {
		return 0.0
	}
	return round2(float64(tally.Present+tally.Late) / float64(tally.Total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package service

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulatrack/attendance-api/internal/models"
	appErrors "github.com/aulatrack/attendance-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// Times are stored and compared as zero-padded HH:MM strings, so
// lexicographic order is chronological. The validator must reject
// non-padded input like "9:30".
var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

type sessionRepository interface {
	Create(ctx context.Context, session *models.ClassSession) (*models.ClassSession, error)
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	Update(ctx context.Context, session *models.ClassSession) error
	TransitionStatus(ctx context.Context, id string, target models.SessionStatus, from ...models.SessionStatus) (*models.ClassSession, error)
	Close(ctx context.Context, id, closedBy string) (*models.ClassSession, error)
	HasConflicting(ctx context.Context, teacherID string, date time.Time, startTime, endTime, excludeID string) (bool, error)
	ListByTeacher(ctx context.Context, teacherID string, from, to *time.Time) ([]models.ClassSession, error)
	ListByDate(ctx context.Context, date time.Time, campusID string) ([]models.ClassSession, error)
}

// SessionService owns the class-session state machine and scheduling rules.
type SessionService struct {
	repo      sessionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SessionService{repo: repo, validator: validate, logger: logger}
	svc.validator.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	return svc
}

// CreateSessionRequest describes the payload for scheduling a session.
type CreateSessionRequest struct {
	CourseGroupID string  `json:"course_group_id" validate:"required"`
	SubjectID     string  `json:"subject_id" validate:"required"`
	TeacherID     string  `json:"teacher_id" validate:"required"`
	SessionDate   string  `json:"session_date" validate:"required"`
	StartTime     string  `json:"start_time" validate:"required,hhmm"`
	EndTime       string  `json:"end_time" validate:"required,hhmm"`
	PeriodID      *string `json:"period_id"`
	Topic         *string `json:"topic"`
	Notes         *string `json:"notes"`
}

// UpdateSessionRequest is the closed patch payload for a session. Absent
// fields keep their stored values.
type UpdateSessionRequest struct {
	SessionDate *string `json:"session_date"`
	StartTime   *string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime     *string `json:"end_time" validate:"omitempty,hhmm"`
	PeriodID    *string `json:"period_id"`
	Topic       *string `json:"topic"`
	Notes       *string `json:"notes"`
}

// Create schedules a new session after validating its time range and
// conflict-freedom for the teacher.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	date, err := time.Parse(dateLayout, req.SessionDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.ErrInvalidTimeRange
	}
	conflict, err := s.repo.HasConflicting(ctx, req.TeacherID, date, req.StartTime, req.EndTime, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check scheduling conflicts")
	}
	if conflict {
		return nil, appErrors.ErrSchedulingConflict
	}
	session := &models.ClassSession{
		CourseGroupID: req.CourseGroupID,
		SubjectID:     req.SubjectID,
		TeacherID:     req.TeacherID,
		PeriodID:      req.PeriodID,
		SessionDate:   date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        models.SessionStatusScheduled,
		Topic:         req.Topic,
		Notes:         req.Notes,
	}
	stored, err := s.repo.Create(ctx, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("session scheduled",
		zap.String("session_id", stored.ID),
		zap.String("teacher_id", stored.TeacherID),
		zap.String("date", stored.SessionDate.Format(dateLayout)))
	return stored, nil
}

// Get loads one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.ClassSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Update applies a patch to a non-terminal session, re-validating the time
// range and conflict-freedom whenever the interval changes.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session patch")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, appErrors.ErrSessionLocked
	}

	date := session.SessionDate
	if req.SessionDate != nil {
		parsed, err := time.Parse(dateLayout, *req.SessionDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
		}
		date = parsed
	}
	start := session.StartTime
	if req.StartTime != nil {
		start = *req.StartTime
	}
	end := session.EndTime
	if req.EndTime != nil {
		end = *req.EndTime
	}

	intervalChanged := req.SessionDate != nil || req.StartTime != nil || req.EndTime != nil
	if intervalChanged {
		if end <= start {
			return nil, appErrors.ErrInvalidTimeRange
		}
		conflict, err := s.repo.HasConflicting(ctx, session.TeacherID, date, start, end, session.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check scheduling conflicts")
		}
		if conflict {
			return nil, appErrors.ErrSchedulingConflict
		}
	}

	session.SessionDate = date
	session.StartTime = start
	session.EndTime = end
	if req.PeriodID != nil {
		session.PeriodID = req.PeriodID
	}
	if req.Topic != nil {
		session.Topic = req.Topic
	}
	if req.Notes != nil {
		session.Notes = req.Notes
	}
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return session, nil
}

// Start moves a scheduled session into progress.
func (s *SessionService) Start(ctx context.Context, id string) (*models.ClassSession, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	session, err := s.repo.TransitionStatus(ctx, id, models.SessionStatusInProgress, models.SessionStatusScheduled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only scheduled sessions can be started")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
	}
	return session, nil
}

// Close finishes a scheduled or in-progress session, recording who closed it.
func (s *SessionService) Close(ctx context.Context, id, closedBy string) (*models.ClassSession, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	session, err := s.repo.Close(ctx, id, closedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only scheduled or in-progress sessions can be closed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}
	s.logger.Info("session closed", zap.String("session_id", id), zap.String("closed_by", closedBy))
	return session, nil
}

// Cancel marks a session cancelled. Closed sessions cannot be cancelled;
// cancelling an already-cancelled session is a no-op that succeeds.
func (s *SessionService) Cancel(ctx context.Context, id string) (*models.ClassSession, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	session, err := s.repo.TransitionStatus(ctx, id, models.SessionStatusCancelled,
		models.SessionStatusScheduled, models.SessionStatusInProgress, models.SessionStatusCancelled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "closed sessions cannot be cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	return session, nil
}

// AdvanceIfScheduled moves a scheduled session into progress and is a no-op
// for any other state. Invoked by the attendance service after a bulk intake.
func (s *SessionService) AdvanceIfScheduled(ctx context.Context, id string) error {
	_, err := s.repo.TransitionStatus(ctx, id, models.SessionStatusInProgress, models.SessionStatusScheduled)
	if err != nil && err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance session")
	}
	return nil
}

// ListByTeacher returns a teacher's sessions within an optional date range.
func (s *SessionService) ListByTeacher(ctx context.Context, teacherID string, from, to *time.Time) ([]models.ClassSession, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id required")
	}
	sessions, err := s.repo.ListByTeacher(ctx, teacherID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// ListByDate returns all sessions on a date, optionally scoped to a campus.
func (s *SessionService) ListByDate(ctx context.Context, date time.Time, campusID string) ([]models.ClassSession, error) {
	sessions, err := s.repo.ListByDate(ctx, date, campusID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions by date")
	}
	return sessions, nil
}

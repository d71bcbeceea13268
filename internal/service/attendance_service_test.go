package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aulatrack/attendance-api/internal/models"
	appErrors "github.com/aulatrack/attendance-api/pkg/errors"
)

type attendanceRepoStub struct {
	records        map[string]*models.AttendanceRecord
	updated        []models.AttendanceRecord
	updateErr      error
	reconcileRes   *models.ReconcileResult
	reconcileErr   error
	reconcileCalls int
	entries        []models.ReconcileEntry
	sessionTallies map[string]*models.StatusTally
	studentTally   *models.StatusTally
	history        []models.AttendanceHistoryRow
	listed         []models.AttendanceRecord
}

func (s *attendanceRepoStub) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if record, ok := s.records[id]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceRepoStub) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	return s.listed, nil
}

func (s *attendanceRepoStub) Update(ctx context.Context, record *models.AttendanceRecord) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, *record)
	return nil
}

func (s *attendanceRepoStub) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	return s.history, nil
}

func (s *attendanceRepoStub) SessionTally(ctx context.Context, sessionID string) (*models.StatusTally, error) {
	if tally, ok := s.sessionTallies[sessionID]; ok {
		return tally, nil
	}
	return &models.StatusTally{}, nil
}

func (s *attendanceRepoStub) StudentTally(ctx context.Context, studentID string, from, to *time.Time) (*models.StatusTally, error) {
	if s.studentTally != nil {
		return s.studentTally, nil
	}
	return &models.StatusTally{}, nil
}

func (s *attendanceRepoStub) Reconcile(ctx context.Context, sessionID, recordedBy string, entries []models.ReconcileEntry) (*models.ReconcileResult, error) {
	s.reconcileCalls++
	s.entries = entries
	if s.reconcileErr != nil {
		return nil, s.reconcileErr
	}
	if s.reconcileRes != nil {
		return s.reconcileRes, nil
	}
	return &models.ReconcileResult{Created: len(entries)}, nil
}

type changeLogStub struct {
	appended []models.AttendanceChangeLog
	listed   []models.AttendanceChangeLog
	err      error
}

func (s *changeLogStub) Append(ctx context.Context, log *models.AttendanceChangeLog) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, *log)
	return nil
}

func (s *changeLogStub) ListByRecord(ctx context.Context, recordID string) ([]models.AttendanceChangeLog, error) {
	return s.listed, nil
}

type sessionReaderStub struct {
	sessions  map[string]*models.ClassSession
	byDate    []models.ClassSession
	listCalls int
}

func (s *sessionReaderStub) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	if session, ok := s.sessions[id]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionReaderStub) ListByDate(ctx context.Context, date time.Time, campusID string) ([]models.ClassSession, error) {
	s.listCalls++
	return s.byDate, nil
}

type advancerStub struct {
	calls []string
	err   error
}

func (s *advancerStub) AdvanceIfScheduled(ctx context.Context, id string) error {
	s.calls = append(s.calls, id)
	return s.err
}

type cacheStub struct {
	report  *models.DailyReport
	sets    []string
	deletes []string
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.report == nil {
		return appErrors.ErrCacheMiss
	}
	*dest.(*models.DailyReport) = *s.report
	return nil
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.sets = append(s.sets, key)
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.deletes = append(s.deletes, pattern)
	return nil
}

type metricsStub struct {
	created, updated, failed, calls int
}

func (s *metricsStub) ObserveBulkIntake(created, updated, failed int) {
	s.calls++
	s.created += created
	s.updated += updated
	s.failed += failed
}

func storedRecord(id string, status models.AttendanceStatus) *models.AttendanceRecord {
	return &models.AttendanceRecord{
		ID:             id,
		ClassSessionID: "session-1",
		StudentID:      "student-1",
		Status:         status,
		RecordedBy:     "teacher-1",
		RecordedAt:     time.Now().UTC(),
	}
}

func newAttendanceFixture(sessionStatus models.SessionStatus) (*AttendanceService, *attendanceRepoStub, *changeLogStub, *sessionReaderStub, *advancerStub, *cacheStub, *metricsStub) {
	repo := &attendanceRepoStub{records: map[string]*models.AttendanceRecord{}}
	logs := &changeLogStub{}
	sessions := &sessionReaderStub{sessions: map[string]*models.ClassSession{
		"session-1": storedSession("session-1", sessionStatus),
	}}
	advancer := &advancerStub{}
	cache := &cacheStub{}
	metrics := &metricsStub{}
	service := NewAttendanceService(repo, logs, sessions, advancer, cache, time.Minute, metrics, nil, zap.NewNop())
	return service, repo, logs, sessions, advancer, cache, metrics
}

func TestAttendanceServiceTake(t *testing.T) {
	service, repo, logs, _, advancer, cache, metrics := newAttendanceFixture(models.SessionStatusScheduled)
	repo.reconcileRes = &models.ReconcileResult{Created: 2}

	result, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{
			{StudentID: "student-1", Status: "PRESENT"},
			{StudentID: "student-2", Status: "absent"},
		},
	}, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.Len(t, repo.entries, 2)
	assert.Equal(t, models.AttendanceStatusPresent, repo.entries[0].Status)
	assert.Equal(t, []string{"session-1"}, advancer.calls)
	assert.Empty(t, logs.appended)
	assert.Equal(t, []string{"reports:daily:*"}, cache.deletes)
	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, 2, metrics.created)
}

func TestAttendanceServiceTakeInProgressDoesNotAdvance(t *testing.T) {
	service, _, _, _, advancer, _, _ := newAttendanceFixture(models.SessionStatusInProgress)

	_, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{{StudentID: "student-1", Status: "present"}},
	}, "teacher-1")
	require.NoError(t, err)
	assert.Empty(t, advancer.calls)
}

func TestAttendanceServiceTakeCancelledSession(t *testing.T) {
	service, repo, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusCancelled)

	_, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{{StudentID: "student-1", Status: "present"}},
	}, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionCancelled.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.reconcileCalls)
}

func TestAttendanceServiceTakeSessionNotFound(t *testing.T) {
	service, _, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusScheduled)

	_, err := service.Take(context.Background(), "session-99", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{{StudentID: "student-1", Status: "present"}},
	}, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceTakeRejectsUnknownStatus(t *testing.T) {
	service, repo, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusScheduled)

	_, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{{StudentID: "student-1", Status: "attending"}},
	}, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.reconcileCalls)
}

func TestAttendanceServiceTakeRejectsNonPaddedArrival(t *testing.T) {
	service, repo, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusScheduled)

	arrival := "9:05"
	_, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{{StudentID: "student-1", Status: "late", ArrivalTime: &arrival}},
	}, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.reconcileCalls)
}

func TestAttendanceServiceTakeEmptyBatchRejected(t *testing.T) {
	service, _, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusScheduled)

	_, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{}, "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceTakeSurfacesPartialFailures(t *testing.T) {
	service, repo, _, _, _, _, metrics := newAttendanceFixture(models.SessionStatusInProgress)
	repo.reconcileRes = &models.ReconcileResult{
		Created: 1,
		Errors:  []models.ReconcileError{{StudentID: "ghost", Reason: "foreign key violation"}},
	}

	result, err := service.Take(context.Background(), "session-1", TakeAttendanceRequest{
		Records: []TakeAttendanceItem{
			{StudentID: "student-1", Status: "present"},
			{StudentID: "ghost", Status: "present"},
		},
	}, "teacher-1")
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ghost", result.Errors[0].StudentID)
	assert.Equal(t, 1, metrics.failed)
}

func TestAttendanceServiceUpdateRecordWritesOneChangeLog(t *testing.T) {
	service, repo, logs, _, _, cache, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.records["record-1"] = storedRecord("record-1", models.AttendanceStatusPresent)

	status := "absent"
	reason := "left early"
	record, err := service.UpdateRecord(context.Background(), "record-1", UpdateAttendanceRequest{Status: &status, Reason: &reason}, "coordinator-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusAbsent, record.Status)
	require.Len(t, repo.updated, 1)
	require.Len(t, logs.appended, 1)
	entry := logs.appended[0]
	assert.Equal(t, models.AttendanceStatusPresent, entry.OldStatus)
	assert.Equal(t, models.AttendanceStatusAbsent, entry.NewStatus)
	assert.Equal(t, "coordinator-1", entry.ChangedBy)
	require.NotNil(t, entry.Reason)
	assert.Equal(t, "left early", *entry.Reason)
	assert.Equal(t, []string{"reports:daily:*"}, cache.deletes)
}

func TestAttendanceServiceUpdateRecordNoopStillLogged(t *testing.T) {
	service, repo, logs, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.records["record-1"] = storedRecord("record-1", models.AttendanceStatusPresent)

	_, err := service.UpdateRecord(context.Background(), "record-1", UpdateAttendanceRequest{}, "coordinator-1")
	require.NoError(t, err)
	require.Len(t, logs.appended, 1)
	assert.Equal(t, logs.appended[0].OldStatus, logs.appended[0].NewStatus)
}

func TestAttendanceServiceUpdateRecordNotFound(t *testing.T) {
	service, _, logs, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)

	status := "absent"
	_, err := service.UpdateRecord(context.Background(), "record-99", UpdateAttendanceRequest{Status: &status}, "coordinator-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, logs.appended)
}

func TestAttendanceServiceExcuseAbsent(t *testing.T) {
	service, repo, logs, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.records["record-1"] = storedRecord("record-1", models.AttendanceStatusAbsent)

	record, err := service.Excuse(context.Background(), "record-1", "medical certificate", "coordinator-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusExcused, record.Status)
	require.Len(t, logs.appended, 1)
	assert.Equal(t, models.AttendanceStatusAbsent, logs.appended[0].OldStatus)
	require.NotNil(t, logs.appended[0].Reason)
	assert.Equal(t, "medical certificate", *logs.appended[0].Reason)
}

func TestAttendanceServiceExcusePresentRejected(t *testing.T) {
	service, repo, logs, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.records["record-1"] = storedRecord("record-1", models.AttendanceStatusPresent)

	_, err := service.Excuse(context.Background(), "record-1", "medical certificate", "coordinator-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidExcuseTarget.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updated)
	assert.Empty(t, logs.appended)
}

func TestAttendanceServiceExcuseRequiresReason(t *testing.T) {
	service, repo, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.records["record-1"] = storedRecord("record-1", models.AttendanceStatusAbsent)

	_, err := service.Excuse(context.Background(), "record-1", "   ", "coordinator-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceSessionStatsRate(t *testing.T) {
	service, repo, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.sessionTallies = map[string]*models.StatusTally{
		"session-1": {Present: 18, Late: 2, Absent: 4, Excused: 1, Total: 25},
	}

	stats, err := service.SessionStats(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, 25, stats.Total)
	assert.InDelta(t, 80.0, stats.AttendanceRate, 0.001)
}

func TestAttendanceServiceSessionStatsEmpty(t *testing.T) {
	service, _, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)

	stats, err := service.SessionStats(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.AttendanceRate)
}

func TestAttendanceServiceStudentStatsRounding(t *testing.T) {
	service, repo, _, _, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	repo.studentTally = &models.StatusTally{Present: 1, Absent: 2, Total: 3}

	stats, err := service.StudentStats(context.Background(), "student-1", nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 33.33, stats.AttendanceRate, 0.001)
}

func TestAttendanceServiceDailyReportExcludesEmptySessions(t *testing.T) {
	service, repo, _, sessions, _, cache, _ := newAttendanceFixture(models.SessionStatusClosed)
	sessions.byDate = []models.ClassSession{
		*storedSession("session-1", models.SessionStatusClosed),
		*storedSession("session-2", models.SessionStatusClosed),
		*storedSession("session-3", models.SessionStatusScheduled),
	}
	repo.sessionTallies = map[string]*models.StatusTally{
		"session-1": {Present: 10, Total: 10},
		"session-2": {Present: 6, Absent: 4, Total: 10},
	}

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	report, err := service.DailyReport(context.Background(), date, "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalSessions)
	assert.Equal(t, 2, report.SessionsWithAttendance)
	assert.InDelta(t, 80.0, report.OverallAttendanceRate, 0.001)
	require.Len(t, report.Sessions, 3)
	assert.Equal(t, []string{"reports:daily:2026-03-10"}, cache.sets)
}

func TestAttendanceServiceDailyReportAveragesExactRates(t *testing.T) {
	service, repo, _, sessions, _, _, _ := newAttendanceFixture(models.SessionStatusClosed)
	sessions.byDate = []models.ClassSession{
		*storedSession("session-1", models.SessionStatusClosed),
		*storedSession("session-2", models.SessionStatusClosed),
		*storedSession("session-3", models.SessionStatusClosed),
	}
	repo.sessionTallies = map[string]*models.StatusTally{
		"session-1": {Present: 1, Absent: 31, Total: 32},
		"session-2": {Present: 1, Absent: 31, Total: 32},
		"session-3": {Present: 1, Absent: 22, Total: 23},
	}

	// Exact rates 3.125, 3.125 and 4.347826...; their mean is 3.532609,
	// rounding to 3.53. Averaging the already-rounded per-session rates
	// (3.13, 3.13, 4.35) would give 3.54 instead.
	report, err := service.DailyReport(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.InDelta(t, 3.53, report.OverallAttendanceRate, 0.001)
	assert.InDelta(t, 3.13, report.Sessions[0].AttendanceRate, 0.001)
	assert.InDelta(t, 4.35, report.Sessions[2].AttendanceRate, 0.001)
}

func TestAttendanceServiceDailyReportServedFromCache(t *testing.T) {
	service, _, _, sessions, _, cache, _ := newAttendanceFixture(models.SessionStatusClosed)
	cache.report = &models.DailyReport{Date: "2026-03-10", TotalSessions: 4}

	report, err := service.DailyReport(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, 4, report.TotalSessions)
	assert.Equal(t, 0, sessions.listCalls)
}

func TestAttendanceServiceDailyReportCampusKey(t *testing.T) {
	service, _, _, _, _, cache, _ := newAttendanceFixture(models.SessionStatusClosed)

	report, err := service.DailyReport(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "campus-1")
	require.NoError(t, err)
	require.NotNil(t, report.CampusID)
	assert.Equal(t, "campus-1", *report.CampusID)
	assert.Equal(t, []string{"reports:daily:2026-03-10:campus-1"}, cache.sets)
}

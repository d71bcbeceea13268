package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aulatrack/attendance-api/internal/models"
	"github.com/aulatrack/attendance-api/internal/service"
	appErrors "github.com/aulatrack/attendance-api/pkg/errors"
	"github.com/aulatrack/attendance-api/pkg/response"
)

type attendanceService interface {
	Take(ctx context.Context, sessionID string, req service.TakeAttendanceRequest, recordedBy string) (*models.ReconcileResult, error)
	UpdateRecord(ctx context.Context, recordID string, req service.UpdateAttendanceRequest, changedBy string) (*models.AttendanceRecord, error)
	Excuse(ctx context.Context, recordID, reason, changedBy string) (*models.AttendanceRecord, error)
	SessionAttendance(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	RecordChangeLogs(ctx context.Context, recordID string) ([]models.AttendanceChangeLog, error)
	StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
	SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error)
	StudentStats(ctx context.Context, studentID string, from, to *time.Time) (*models.StudentStats, error)
}

// AttendanceHandler exposes attendance intake and correction endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler builds a new handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Take godoc
// @Summary Record attendance for a session in bulk
// @Tags Attendance
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body service.TakeAttendanceRequest true "Attendance tuples"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/attendance [post]
func (h *AttendanceHandler) Take(c *gin.Context) {
	var req service.TakeAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	result, err := h.service.Take(c.Request.Context(), c.Param("sessionId"), req, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListForSession godoc
// @Summary List attendance records for a session
// @Tags Attendance
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/attendance [get]
func (h *AttendanceHandler) ListForSession(c *gin.Context) {
	records, err := h.service.SessionAttendance(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Update godoc
// @Summary Correct a single attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param recordId path string true "Record ID"
// @Param payload body service.UpdateAttendanceRequest true "Record patch"
// @Success 200 {object} response.Envelope
// @Router /attendance/{recordId} [patch]
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req service.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance patch"))
		return
	}
	record, err := h.service.UpdateRecord(c.Request.Context(), c.Param("recordId"), req, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

type excuseRequest struct {
	Reason string `json:"reason"`
}

// Excuse godoc
// @Summary Excuse an absent or late record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param recordId path string true "Record ID"
// @Param payload body excuseRequest true "Excuse reason"
// @Success 200 {object} response.Envelope
// @Router /attendance/{recordId}/excuse [post]
func (h *AttendanceHandler) Excuse(c *gin.Context) {
	var req excuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid excuse payload"))
		return
	}
	record, err := h.service.Excuse(c.Request.Context(), c.Param("recordId"), req.Reason, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ChangeLogs godoc
// @Summary List the audit trail of a record
// @Tags Attendance
// @Produce json
// @Param recordId path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{recordId}/logs [get]
func (h *AttendanceHandler) ChangeLogs(c *gin.Context) {
	logs, err := h.service.RecordChangeLogs(c.Request.Context(), c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// StudentHistory godoc
// @Summary List a student's attendance history
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/attendance [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	from, to, err := parseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.service.StudentHistory(c.Request.Context(), c.Param("studentId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// SessionStats godoc
// @Summary Attendance statistics for a session
// @Tags Attendance
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/stats [get]
func (h *AttendanceHandler) SessionStats(c *gin.Context) {
	stats, err := h.service.SessionStats(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// StudentStats godoc
// @Summary Attendance statistics for a student
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/stats [get]
func (h *AttendanceHandler) StudentStats(c *gin.Context) {
	from, to, err := parseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.service.StudentStats(c.Request.Context(), c.Param("studentId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

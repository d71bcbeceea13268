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

type sessionService interface {
	Create(ctx context.Context, req service.CreateSessionRequest) (*models.ClassSession, error)
	Get(ctx context.Context, id string) (*models.ClassSession, error)
	Update(ctx context.Context, id string, req service.UpdateSessionRequest) (*models.ClassSession, error)
	Start(ctx context.Context, id string) (*models.ClassSession, error)
	Close(ctx context.Context, id, closedBy string) (*models.ClassSession, error)
	Cancel(ctx context.Context, id string) (*models.ClassSession, error)
	ListByTeacher(ctx context.Context, teacherID string, from, to *time.Time) ([]models.ClassSession, error)
	ListByDate(ctx context.Context, date time.Time, campusID string) ([]models.ClassSession, error)
}

// SessionHandler exposes class-session lifecycle endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Create godoc
// @Summary Schedule a class session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get one class session
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Update godoc
// @Summary Patch a non-terminal session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Session patch"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId} [patch]
func (h *SessionHandler) Update(c *gin.Context) {
	var req service.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session patch"))
		return
	}
	session, err := h.service.Update(c.Request.Context(), c.Param("sessionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Start godoc
// @Summary Start a scheduled session
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	session, err := h.service.Start(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Close godoc
// @Summary Close a session
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	session, err := h.service.Close(c.Request.Context(), c.Param("sessionId"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel godoc
// @Summary Cancel a session
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	session, err := h.service.Cancel(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// List godoc
// @Summary List sessions for a date
// @Tags Sessions
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param campusId query string false "Campus ID filter"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sessions, err := h.service.ListByDate(c.Request.Context(), date, c.Query("campusId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// ListForTeacher godoc
// @Summary List a teacher's sessions
// @Tags Sessions
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/sessions [get]
func (h *SessionHandler) ListForTeacher(c *gin.Context) {
	from, to, err := parseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sessions, err := h.service.ListByTeacher(c.Request.Context(), c.Param("teacherId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

func parseDateParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	return date, nil
}

func parseDateRange(rawFrom, rawTo string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if rawFrom != "" {
		parsed, err := time.Parse("2006-01-02", rawFrom)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
		}
		from = &parsed
	}
	if rawTo != "" {
		parsed, err := time.Parse("2006-01-02", rawTo)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
		}
		to = &parsed
	}
	return from, to, nil
}

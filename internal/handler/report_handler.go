package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aulatrack/attendance-api/internal/models"
	"github.com/aulatrack/attendance-api/pkg/export"
	"github.com/aulatrack/attendance-api/pkg/response"
)

type reportService interface {
	DailyReport(ctx context.Context, date time.Time, campusID string) (*models.DailyReport, error)
}

// ReportHandler exposes the daily attendance report and its exports.
type ReportHandler struct {
	service reportService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewReportHandler builds a new handler.
func NewReportHandler(service reportService, csv *export.CSVExporter, pdf *export.PDFExporter) *ReportHandler {
	return &ReportHandler{service: service, csv: csv, pdf: pdf}
}

// Daily godoc
// @Summary Daily attendance report
// @Tags Reports
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param campusId query string false "Campus ID filter"
// @Success 200 {object} response.Envelope
// @Router /reports/daily [get]
func (h *ReportHandler) Daily(c *gin.Context) {
	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.DailyReport(c.Request.Context(), date, c.Query("campusId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export the daily report as CSV or PDF
// @Tags Reports
// @Produce octet-stream
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param campusId query string false "Campus ID filter"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} byte
// @Router /reports/daily/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.DailyReport(c.Request.Context(), date, c.Query("campusId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	dataset := reportDataset(report)
	title := fmt.Sprintf("Daily attendance %s", report.Date)

	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		payload, err := h.pdf.Render(dataset, title)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="daily-report-%s.pdf"`, report.Date))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="daily-report-%s.csv"`, report.Date))
		c.Data(http.StatusOK, "text/csv", payload)
	}
}

func reportDataset(report *models.DailyReport) export.Dataset {
	headers := []string{"session_id", "course_group_id", "subject_id", "status", "present", "absent", "late", "excused", "total", "attendance_rate"}
	rows := make([]map[string]string, len(report.Sessions))
	for i, session := range report.Sessions {
		rows[i] = map[string]string{
			"session_id":      session.SessionID,
			"course_group_id": session.CourseGroupID,
			"subject_id":      session.SubjectID,
			"status":          string(session.Status),
			"present":         strconv.Itoa(session.Present),
			"absent":          strconv.Itoa(session.Absent),
			"late":            strconv.Itoa(session.Late),
			"excused":         strconv.Itoa(session.Excused),
			"total":           strconv.Itoa(session.Total),
			"attendance_rate": strconv.FormatFloat(session.AttendanceRate, 'f', 2, 64),
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

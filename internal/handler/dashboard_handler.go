package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/donor-reports-dashboard/internal/dto"
	"github.com/noah-isme/donor-reports-dashboard/internal/models"
	"github.com/noah-isme/donor-reports-dashboard/internal/service"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
	"github.com/noah-isme/donor-reports-dashboard/pkg/response"
)

type dashboardSession interface {
	View() dto.DashboardView
	Progress() dto.ProgressView
	Reports() dto.ReportTableView
	SelectFile(upload service.FileUpload) (*models.PendingFile, error)
	RemoveFile()
	GenerateReports(ctx context.Context) (*models.UploadResult, error)
	ToggleRefresh(ctx context.Context)
	SetSearch(ctx context.Context, query string)
	SetPage(ctx context.Context, page int)
	Dismiss(kind models.NotificationKind) error
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// DashboardHandler exposes the per-session dashboard actions.
type DashboardHandler struct {
	validator *validator.Validate
	// maxBody caps multipart bodies well above the file limit so the
	// service, not the transport, reports oversized files.
	maxBody int64
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(validate *validator.Validate, maxUploadBytes int64) *DashboardHandler {
	if validate == nil {
		validate = validator.New()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 * 1024 * 1024
	}
	return &DashboardHandler{validator: validate, maxBody: 4*maxUploadBytes + 1<<20}
}

// Show godoc
// @Summary Dashboard state
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Show(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	response.OK(c, session.View())
}

// SelectFile godoc
// @Summary Select a spreadsheet for upload
// @Tags Dashboard
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Excel or CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /dashboard/file [post]
func (h *DashboardHandler) SelectFile(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrFileTooLarge)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	if _, err := session.SelectFile(service.FileUpload{
		Filename:     fileHeader.Filename,
		Size:         fileHeader.Size,
		DeclaredType: fileHeader.Header.Get("Content-Type"),
		Content:      file,
	}); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session.View())
}

// RemoveFile godoc
// @Summary Remove the selected spreadsheet
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/file [delete]
func (h *DashboardHandler) RemoveFile(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	session.RemoveFile()
	response.OK(c, session.View())
}

// Generate godoc
// @Summary Upload the selected spreadsheet and start report generation
// @Tags Dashboard
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /dashboard/generate [post]
func (h *DashboardHandler) Generate(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	result, err := session.GenerateReports(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, session.View(), nil, map[string]interface{}{
		"task_ids": result.TaskIDs,
		"message":  result.Message,
	})
}

// Progress godoc
// @Summary Report generation progress
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/progress [get]
func (h *DashboardHandler) Progress(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	response.OK(c, session.Progress())
}

// Reports godoc
// @Summary Current page of donor reports
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/reports [get]
func (h *DashboardHandler) Reports(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	h.respondReports(c, session)
}

// SetPage godoc
// @Summary Move the report table to a page
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.SetPageRequest true "Page"
// @Success 200 {object} response.Envelope
// @Router /dashboard/reports/page [put]
func (h *DashboardHandler) SetPage(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	var req dto.SetPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "page is required"))
		return
	}
	session.SetPage(c.Request.Context(), req.Page)
	h.respondReports(c, session)
}

// SetSearch godoc
// @Summary Filter the report table
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.SearchRequest true "Search"
// @Success 200 {object} response.Envelope
// @Router /dashboard/reports/search [put]
func (h *DashboardHandler) SetSearch(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "search query too long"))
		return
	}
	session.SetSearch(c.Request.Context(), req.Query)
	h.respondReports(c, session)
}

// Refresh godoc
// @Summary Refetch the current report page
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/reports/refresh [post]
func (h *DashboardHandler) Refresh(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	session.ToggleRefresh(c.Request.Context())
	h.respondReports(c, session)
}

// Download godoc
// @Summary Download a generated donor report
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /dashboard/reports/download [get]
func (h *DashboardHandler) Download(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	download, err := session.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close() //nolint:errcheck

	contentType := download.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, download.ContentLength, contentType, download.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": download.Filename}),
		"Cache-Control":       "no-store",
	})
}

// Dismiss godoc
// @Summary Dismiss a notification banner
// @Tags Dashboard
// @Param kind path string true "success, error or completed"
// @Success 204
// @Router /dashboard/notifications/{kind} [delete]
func (h *DashboardHandler) Dismiss(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrSessionRequired)
		return
	}
	if err := session.Dismiss(models.NotificationKind(c.Param("kind"))); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *DashboardHandler) respondReports(c *gin.Context, session dashboardSession) {
	reports := session.Reports()
	pagination := reports.Pagination
	response.JSON(c, http.StatusOK, reports, &pagination)
}

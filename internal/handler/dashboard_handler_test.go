package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/donor-reports-dashboard/internal/dto"
	"github.com/noah-isme/donor-reports-dashboard/internal/middleware"
	"github.com/noah-isme/donor-reports-dashboard/internal/models"
	"github.com/noah-isme/donor-reports-dashboard/internal/service"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
	"github.com/noah-isme/donor-reports-dashboard/pkg/response"
)

type dashboardSessionMock struct {
	selected    *service.FileUpload
	selectBody  string
	selectErr   error
	removed     bool
	generateRes *models.UploadResult
	generateErr error
	toggled     bool
	search      string
	page        int
	dismissed   models.NotificationKind
	dismissErr  error
	download    *service.ReportDownload
	downloadErr error
}

func (m *dashboardSessionMock) View() dto.DashboardView {
	return dto.DashboardView{SessionID: "s1", RequiredColumns: service.RequiredColumns}
}

func (m *dashboardSessionMock) Progress() dto.ProgressView {
	return dto.ProgressView{
		PollSnapshot: models.PollSnapshot{State: models.PollerStateRunning, Progress: 70},
		Mounted:      true,
		Label:        "70% Complete",
	}
}

func (m *dashboardSessionMock) Reports() dto.ReportTableView {
	return dto.ReportTableView{
		Rows:        []dto.ReportRowView{{FullName: "Ann Lee", DonorID: "D1"}},
		Pagination:  models.Pagination{Page: 3, PageSize: 10, TotalCount: 25, TotalPages: 3},
		SearchQuery: m.search,
	}
}

func (m *dashboardSessionMock) SelectFile(upload service.FileUpload) (*models.PendingFile, error) {
	m.selected = &upload
	data, _ := io.ReadAll(upload.Content)
	m.selectBody = string(data)
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	return &models.PendingFile{Name: upload.Filename}, nil
}

func (m *dashboardSessionMock) RemoveFile() { m.removed = true }

func (m *dashboardSessionMock) GenerateReports(ctx context.Context) (*models.UploadResult, error) {
	return m.generateRes, m.generateErr
}

func (m *dashboardSessionMock) ToggleRefresh(ctx context.Context) { m.toggled = true }

func (m *dashboardSessionMock) SetSearch(ctx context.Context, query string) { m.search = query }

func (m *dashboardSessionMock) SetPage(ctx context.Context, page int) { m.page = page }

func (m *dashboardSessionMock) Dismiss(kind models.NotificationKind) error {
	m.dismissed = kind
	return m.dismissErr
}

func (m *dashboardSessionMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withSession(c *gin.Context, session dashboardSession) {
	c.Set(middleware.ContextDashboardKey, session)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestDashboardHandlerRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)

	c, w := newGinContext(http.MethodGet, "/dashboard", nil)
	handler.Show(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SESSION_REQUIRED", decodeEnvelope(t, w).Error.Code)
}

func TestDashboardHandlerShow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)

	c, w := newGinContext(http.MethodGet, "/dashboard", nil)
	withSession(c, &dashboardSessionMock{})
	handler.Show(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessionId":"s1"`)
	assert.Contains(t, w.Body.String(), "Donor Email")
}

func TestDashboardHandlerSelectFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	body, contentType := multipartBody(t, "donors.csv", "text/csv", "Donor ID\n1\n")
	c, w := newGinContext(http.MethodPost, "/dashboard/file", body.Bytes())
	c.Request.Header.Set("Content-Type", contentType)
	withSession(c, session)
	handler.SelectFile(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, session.selected)
	assert.Equal(t, "donors.csv", session.selected.Filename)
	assert.Equal(t, "text/csv", session.selected.DeclaredType)
	assert.Equal(t, int64(11), session.selected.Size)
	assert.Equal(t, "Donor ID\n1\n", session.selectBody)
}

func TestDashboardHandlerSelectFileRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{selectErr: appErrors.ErrUnsupportedFileType}

	body, contentType := multipartBody(t, "photo.png", "image/png", "x")
	c, w := newGinContext(http.MethodPost, "/dashboard/file", body.Bytes())
	c.Request.Header.Set("Content-Type", contentType)
	withSession(c, session)
	handler.SelectFile(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "Only Excel (.xlsx, .xls) and CSV (.csv) files are allowed.", env.Error.Message)
}

func TestDashboardHandlerSelectFileMissingPart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	c, w := newGinContext(http.MethodPost, "/dashboard/file", nil)
	withSession(c, session)
	handler.SelectFile(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, session.selected)
}

func TestDashboardHandlerRemoveFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	c, w := newGinContext(http.MethodDelete, "/dashboard/file", nil)
	withSession(c, session)
	handler.RemoveFile(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, session.removed)
}

func TestDashboardHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{generateRes: &models.UploadResult{TaskIDs: []string{"t1"}}}

	c, w := newGinContext(http.MethodPost, "/dashboard/generate", nil)
	withSession(c, session)
	handler.Generate(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, []interface{}{"t1"}, env.Meta["task_ids"])
}

func TestDashboardHandlerGenerateErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)

	for _, tc := range []struct {
		err    error
		status int
	}{
		{appErrors.ErrNoPendingFile, http.StatusConflict},
		{appErrors.Clone(appErrors.ErrUpstream, "File upload failed."), http.StatusBadGateway},
	} {
		c, w := newGinContext(http.MethodPost, "/dashboard/generate", nil)
		withSession(c, &dashboardSessionMock{generateErr: tc.err})
		handler.Generate(c)
		assert.Equal(t, tc.status, w.Code)
	}
}

func TestDashboardHandlerProgress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)

	c, w := newGinContext(http.MethodGet, "/dashboard/progress", nil)
	withSession(c, &dashboardSessionMock{})
	handler.Progress(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"70% Complete"`)
}

func TestDashboardHandlerSetPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	payload, _ := json.Marshal(dto.SetPageRequest{Page: 4})
	c, w := newGinContext(http.MethodPut, "/dashboard/reports/page", payload)
	withSession(c, session)
	handler.SetPage(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, session.page)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 3, env.Pagination.TotalPages)
}

func TestDashboardHandlerSetPageValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	c, w := newGinContext(http.MethodPut, "/dashboard/reports/page", []byte(`{}`))
	withSession(c, session)
	handler.SetPage(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, session.page)
}

func TestDashboardHandlerSetSearch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	c, w := newGinContext(http.MethodPut, "/dashboard/reports/search", []byte(`{"query":"ann"}`))
	withSession(c, session)
	handler.SetSearch(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ann", session.search)

	long, _ := json.Marshal(dto.SearchRequest{Query: strings.Repeat("a", 300)})
	c, w = newGinContext(http.MethodPut, "/dashboard/reports/search", long)
	withSession(c, session)
	handler.SetSearch(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ann", session.search)
}

func TestDashboardHandlerRefresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	c, w := newGinContext(http.MethodPost, "/dashboard/reports/refresh", nil)
	withSession(c, session)
	handler.Refresh(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, session.toggled)
}

func TestDashboardHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{download: &service.ReportDownload{
		Body:          io.NopCloser(strings.NewReader("%PDF-1.4")),
		Filename:      "donor_42.pdf",
		ContentType:   "application/pdf",
		ContentLength: 8,
	}}

	c, w := newGinContext(http.MethodGet, "/dashboard/reports/download?token=abc", nil)
	withSession(c, session)
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename=donor_42.pdf`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", w.Body.String())
}

func TestDashboardHandlerDownloadErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)

	c, w := newGinContext(http.MethodGet, "/dashboard/reports/download", nil)
	withSession(c, &dashboardSessionMock{})
	handler.Download(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/dashboard/reports/download?token=bad", nil)
	withSession(c, &dashboardSessionMock{downloadErr: appErrors.ErrNotFound})
	handler.Download(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardHandlerDismiss(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(nil, 0)
	session := &dashboardSessionMock{}

	c, w := newGinContext(http.MethodDelete, "/dashboard/notifications/error", nil)
	c.Params = gin.Params{{Key: "kind", Value: "error"}}
	withSession(c, session)
	handler.Dismiss(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, w.Body.String())
	assert.Equal(t, models.NotificationError, session.dismissed)
}

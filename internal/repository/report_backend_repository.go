package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/donor-reports-dashboard/internal/models"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
	"github.com/noah-isme/donor-reports-dashboard/pkg/middleware/requestid"
)

// Endpoint labels used for backend call metrics.
const (
	EndpointUpload     = "upload"
	EndpointTaskStatus = "task_status"
	EndpointReportList = "report_list"
	EndpointReportFile = "report_file"
)

const maxErrorBody = 4096

type backendCallObserver interface {
	ObserveBackendCall(endpoint, outcome string, duration time.Duration)
}

// ReportStream is an open report file body; callers must close Body.
type ReportStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// ReportBackendRepository talks to the external report generation service.
type ReportBackendRepository struct {
	baseURL  string
	base     *url.URL
	http     *http.Client
	observer backendCallObserver
}

// NewReportBackendRepository validates baseURL and builds a client. A zero timeout keeps the transport default.
func NewReportBackendRepository(baseURL string, timeout time.Duration, observer backendCallObserver) (*ReportBackendRepository, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url host")
	}
	return &ReportBackendRepository{
		baseURL:  baseURL,
		base:     u,
		http:     &http.Client{Timeout: timeout},
		observer: observer,
	}, nil
}

// Upload submits one spreadsheet as multipart field "file".
func (r *ReportBackendRepository) Upload(ctx context.Context, filename, mimeType string, content io.Reader) (*models.UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := r.newRequest(ctx, http.MethodPost, "/api/reports/upload/", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result models.UploadResult
	if err := r.doJSON(req, EndpointUpload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TaskStatus reads the state of one report generation task.
func (r *ReportBackendRepository) TaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/api/reports/status/"+url.PathEscape(taskID)+"/", nil)
	if err != nil {
		return nil, err
	}
	var status models.TaskStatus
	if err := r.doJSON(req, EndpointTaskStatus, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListDonorReports fetches one page of generated donor reports filtered by search.
func (r *ReportBackendRepository) ListDonorReports(ctx context.Context, page int, search string) (*models.DonorReportPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("search", search)
	req, err := r.newRequest(ctx, http.MethodGet, "/api/reports/donor-reports-list/?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var result models.DonorReportPage
	if err := r.doJSON(req, EndpointReportList, &result); err != nil {
		return nil, err
	}
	if result.Results == nil {
		result.Results = []models.DonorReportRow{}
	}
	return &result, nil
}

// OpenReport opens a report file. Relative URLs resolve against the backend base URL.
func (r *ReportBackendRepository) OpenReport(ctx context.Context, reportURL string) (*ReportStream, error) {
	ref, err := url.Parse(reportURL)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid report url")
	}
	target := r.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	r.decorate(req)

	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		r.observe(EndpointReportFile, "error", start)
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		r.observe(EndpointReportFile, "error", start)
		return nil, readUpstreamError(resp)
	}
	r.observe(EndpointReportFile, "ok", start)
	return &ReportStream{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

func (r *ReportBackendRepository) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	r.decorate(req)
	return req, nil
}

func (r *ReportBackendRepository) decorate(req *http.Request) {
	if id := requestid.FromContext(req.Context()); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}
}

func (r *ReportBackendRepository) doJSON(req *http.Request, endpoint string, out interface{}) error {
	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		r.observe(endpoint, "error", start)
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.observe(endpoint, "error", start)
		return readUpstreamError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		r.observe(endpoint, "malformed", start)
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "malformed backend response")
	}
	r.observe(endpoint, "ok", start)
	return nil
}

func (r *ReportBackendRepository) observe(endpoint, outcome string, start time.Time) {
	if r.observer == nil {
		return
	}
	r.observer.ObserveBackendCall(endpoint, outcome, time.Since(start))
}

// StatusError is the cause attached to UPSTREAM_ERROR for non-2xx backend responses.
type StatusError struct {
	StatusCode int
	Body       string
	// Message is the backend's own explanation, empty when it gave none.
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status=%d body=%s", e.StatusCode, e.Body)
}

// BackendMessage returns the explanation the backend attached to a failed call, if any.
func BackendMessage(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return ""
}

// readUpstreamError prefers the backend's "error" key, then "message".
func readUpstreamError(resp *http.Response) error {
	blob, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(blob, &payload) == nil {
		if payload.Error != "" {
			cause.Message = payload.Error
		} else {
			cause.Message = payload.Message
		}
	}
	message := cause.Message
	if message == "" {
		message = appErrors.ErrUpstream.Message
	}
	return appErrors.Wrap(cause, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

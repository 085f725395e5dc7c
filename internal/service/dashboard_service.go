package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/donor-reports-dashboard/internal/dto"
	"github.com/noah-isme/donor-reports-dashboard/internal/models"
	"github.com/noah-isme/donor-reports-dashboard/internal/repository"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
)

// Banner texts shown by the dashboard.
const (
	MessageFileAccepted        = "File validated and ready for upload!"
	MessageUploadSucceeded     = "File uploaded successfully! Report generation in progress."
	MessageUploadFailed        = "File upload failed."
	MessageGenerationCompleted = "Report generation completed successfully!"
)

// RequiredColumns lists the spreadsheet headers the backend expects.
var RequiredColumns = []string{
	"Donor ID",
	"Donation ID",
	"Donor First Name",
	"Donor Last Name",
	"Donor Email",
	"Donation Amount",
	"Date of Donation",
	"Time of Donation",
	"Cause ID",
	"Cause",
}

type uploadWorkflow interface {
	Accept(upload FileUpload) (*models.PendingFile, error)
	Submit(ctx context.Context, file *models.PendingFile) (*models.UploadResult, error)
	Discard(file *models.PendingFile)
}

type linkSigner interface {
	Sign(subject, target string) (string, time.Time, error)
	Verify(token string) (subject, target string, err error)
}

type reportOpener interface {
	OpenReport(ctx context.Context, reportURL string) (*repository.ReportStream, error)
}

// DashboardConfig holds presentation behaviour.
type DashboardConfig struct {
	NotificationTTL   time.Duration
	RefreshOnComplete bool
	DownloadPath      string
}

// ReportDownload is an open report ready to be streamed to the browser.
type ReportDownload struct {
	Body          io.ReadCloser
	Filename      string
	ContentType   string
	ContentLength int64
}

// Dashboard owns the state of one dashboard page: the pending file, the task
// handles of the last submission, the refresh toggle and the banners. It
// drives its ProgressPoller and ReportTable.
type Dashboard struct {
	id      string
	uploads uploadWorkflow
	poller  *ProgressPoller
	table   *ReportTable
	signer  linkSigner
	opener  reportOpener
	logger  *zap.Logger
	cfg     DashboardConfig
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// actions serialises user actions; mu guards the fields below.
	actions       sync.Mutex
	mu            sync.Mutex
	pending       *models.PendingFile
	taskIDs       []string
	refresh       bool
	notifications map[models.NotificationKind]models.Notification
	closed        bool
}

// NewDashboard builds a dashboard. Background work stops when ctx is done or Close is called.
func NewDashboard(ctx context.Context, id string, uploads uploadWorkflow, poller *ProgressPoller, table *ReportTable, signer linkSigner, opener reportOpener, logger *zap.Logger, cfg DashboardConfig) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NotificationTTL <= 0 {
		cfg.NotificationTTL = 6 * time.Second
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/dashboard/reports/download"
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	return &Dashboard{
		id:            id,
		uploads:       uploads,
		poller:        poller,
		table:         table,
		signer:        signer,
		opener:        opener,
		logger:        logger.With(zap.String("session_id", id)),
		cfg:           cfg,
		now:           time.Now,
		ctx:           sessionCtx,
		cancel:        cancel,
		taskIDs:       []string{},
		notifications: make(map[models.NotificationKind]models.Notification),
	}
}

// ID returns the session identifier.
func (d *Dashboard) ID() string {
	return d.id
}

// Mount loads the first page of reports.
func (d *Dashboard) Mount(ctx context.Context) {
	d.table.Mount(ctx, "", false)
}

// SelectFile validates and stages a new pending file. A rejected file leaves
// the current pending file in place.
func (d *Dashboard) SelectFile(upload FileUpload) (*models.PendingFile, error) {
	d.actions.Lock()
	defer d.actions.Unlock()

	pending, err := d.uploads.Accept(upload)
	if err != nil {
		d.raise(models.NotificationError, appErrors.FromError(err).Message)
		return nil, err
	}

	d.mu.Lock()
	previous := d.pending
	d.pending = pending
	d.mu.Unlock()

	d.uploads.Discard(previous)
	d.raise(models.NotificationSuccess, MessageFileAccepted)
	return pending, nil
}

// RemoveFile drops the pending file without contacting the backend.
func (d *Dashboard) RemoveFile() {
	d.actions.Lock()
	defer d.actions.Unlock()

	d.mu.Lock()
	previous := d.pending
	d.pending = nil
	delete(d.notifications, models.NotificationSuccess)
	d.mu.Unlock()

	d.uploads.Discard(previous)
}

// GenerateReports submits the pending file and, when the backend returns
// task handles, restarts the progress poller on them.
func (d *Dashboard) GenerateReports(ctx context.Context) (*models.UploadResult, error) {
	d.actions.Lock()
	defer d.actions.Unlock()

	d.mu.Lock()
	pending := d.pending
	d.mu.Unlock()
	if pending == nil {
		return nil, appErrors.ErrNoPendingFile
	}

	result, err := d.uploads.Submit(ctx, pending)
	if err != nil {
		message := repository.BackendMessage(err)
		if message == "" {
			message = MessageUploadFailed
		}
		d.raise(models.NotificationError, message)
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
	}

	d.mu.Lock()
	d.taskIDs = append([]string{}, result.TaskIDs...)
	d.pending = nil
	d.mu.Unlock()
	d.uploads.Discard(pending)
	d.raise(models.NotificationSuccess, MessageUploadSucceeded)

	if len(result.TaskIDs) == 0 {
		d.logger.Sugar().Infow("upload returned no task handles", "message", result.Message)
		return result, nil
	}
	if err := d.poller.Start(d.ctx, result.TaskIDs, d.generationCompleted); err != nil {
		d.logger.Sugar().Warnw("failed to start progress poller", "error", err)
	}
	return result, nil
}

func (d *Dashboard) generationCompleted(snap models.PollSnapshot) {
	d.raise(models.NotificationCompleted, MessageGenerationCompleted)
	if !d.cfg.RefreshOnComplete {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.refresh = !d.refresh
	refresh := d.refresh
	d.mu.Unlock()
	d.table.SetRefreshTrigger(d.ctx, refresh)
}

// ToggleRefresh flips the refresh trigger, which refetches the current page.
func (d *Dashboard) ToggleRefresh(ctx context.Context) {
	d.actions.Lock()
	defer d.actions.Unlock()

	d.mu.Lock()
	d.refresh = !d.refresh
	refresh := d.refresh
	d.mu.Unlock()
	d.table.SetRefreshTrigger(ctx, refresh)
}

// SetSearch updates the report filter.
func (d *Dashboard) SetSearch(ctx context.Context, query string) {
	d.actions.Lock()
	defer d.actions.Unlock()
	d.table.SetSearch(ctx, query)
}

// SetPage moves the report table to the requested page, clamped to range.
func (d *Dashboard) SetPage(ctx context.Context, page int) {
	d.actions.Lock()
	defer d.actions.Unlock()
	d.table.SetPage(ctx, page)
}

// Dismiss hides the banner of the given kind.
func (d *Dashboard) Dismiss(kind models.NotificationKind) error {
	if !kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown notification kind %q", kind))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifications, kind)
	return nil
}

// View renders the complete dashboard state.
func (d *Dashboard) View() dto.DashboardView {
	progress := d.Progress()
	reports := d.Reports()

	d.mu.Lock()
	defer d.mu.Unlock()
	view := dto.DashboardView{
		SessionID:       d.id,
		CanGenerate:     d.pending != nil,
		TaskIDs:         append([]string{}, d.taskIDs...),
		SearchQuery:     reports.SearchQuery,
		RefreshTrigger:  d.refresh,
		Notifications:   d.visibleLocked(),
		RequiredColumns: append([]string{}, RequiredColumns...),
		Progress:        progress,
		Reports:         reports,
	}
	if d.pending != nil {
		pending := *d.pending
		view.PendingFile = &pending
	}
	return view
}

// Progress renders the poller snapshot.
func (d *Dashboard) Progress() dto.ProgressView {
	snap := d.poller.Snapshot()
	return dto.ProgressView{
		PollSnapshot: snap,
		Mounted:      snap.State != models.PollerStateIdle,
		Label:        fmt.Sprintf("%d%% Complete", snap.Progress),
	}
}

// Reports renders the current table page with signed download links.
func (d *Dashboard) Reports() dto.ReportTableView {
	rows, pagination := d.table.Rows()
	view := dto.ReportTableView{
		Rows:        make([]dto.ReportRowView, 0, len(rows)),
		Pagination:  pagination,
		SearchQuery: d.table.Search(),
	}
	for _, row := range rows {
		rv := dto.ReportRowView{
			FullName: row.FullName,
			DonorID:  row.DonorID,
			Email:    row.Email,
			Filename: reportFilename(row.ReportURL),
		}
		if row.ReportURL != "" {
			token, _, err := d.signer.Sign(d.id, row.ReportURL)
			if err != nil {
				d.logger.Sugar().Warnw("failed to sign report link", "donor_id", row.DonorID, "error", err)
			} else {
				rv.DownloadURL = d.cfg.DownloadPath + "?token=" + url.QueryEscape(token)
			}
		}
		view.Rows = append(view.Rows, rv)
	}
	return view
}

// ResolveDownload opens the report behind a link this dashboard handed out.
func (d *Dashboard) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	subject, target, err := d.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "download link invalid or expired")
	}
	if subject != d.id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link belongs to another session")
	}
	stream, err := d.opener.OpenReport(ctx, target)
	if err != nil {
		return nil, err
	}
	return &ReportDownload{
		Body:          stream.Body,
		Filename:      reportFilename(target),
		ContentType:   stream.ContentType,
		ContentLength: stream.ContentLength,
	}, nil
}

// StagedKey names the staged blob of the pending file, if any.
func (d *Dashboard) StagedKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return ""
	}
	return d.pending.StagedAs
}

// Close stops the poller and discards the pending file.
func (d *Dashboard) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	d.cancel()
	d.poller.Stop()
	d.uploads.Discard(pending)
}

func (d *Dashboard) raise(kind models.NotificationKind, message string) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications[kind] = models.Notification{
		Kind:      kind,
		Message:   message,
		RaisedAt:  now,
		ExpiresAt: now.Add(d.cfg.NotificationTTL),
	}
}

func (d *Dashboard) visibleLocked() []models.Notification {
	now := d.now()
	visible := make([]models.Notification, 0, len(d.notifications))
	for kind, n := range d.notifications {
		if !n.Visible(now) {
			delete(d.notifications, kind)
			continue
		}
		visible = append(visible, n)
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].RaisedAt.Equal(visible[j].RaisedAt) {
			return visible[i].Kind < visible[j].Kind
		}
		return visible[i].RaisedAt.Before(visible[j].RaisedAt)
	})
	return visible
}

// reportFilename is the final path segment of a report URL.
func reportFilename(reportURL string) string {
	u, err := url.Parse(reportURL)
	if err != nil {
		return "report"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "report"
	}
	return name
}

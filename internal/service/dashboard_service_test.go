package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/donor-reports-dashboard/internal/models"
	"github.com/noah-isme/donor-reports-dashboard/internal/repository"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
	"github.com/noah-isme/donor-reports-dashboard/pkg/storage"
)

type reportOpenerStub struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *reportOpenerStub) OpenReport(ctx context.Context, reportURL string) (*repository.ReportStream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, reportURL)
	if o.err != nil {
		return nil, o.err
	}
	return &repository.ReportStream{
		Body:          io.NopCloser(strings.NewReader("%PDF")),
		ContentType:   "application/pdf",
		ContentLength: 4,
	}, nil
}

type dashboardHarness struct {
	dashboard *Dashboard
	uploader  *uploaderStub
	statuses  *statusFetcherStub
	lister    *reportListerStub
	opener    *reportOpenerStub
	area      *storage.StagingArea
	signer    *storage.LinkSigner
}

func newDashboardHarness(t *testing.T, id string, cfg DashboardConfig) *dashboardHarness {
	t.Helper()
	area, err := storage.NewStagingArea(t.TempDir())
	require.NoError(t, err)
	h := &dashboardHarness{
		uploader: &uploaderStub{result: &models.UploadResult{TaskIDs: []string{"t1", "t2"}}},
		statuses: &statusFetcherStub{respond: func(int, string) (*models.TaskStatus, error) {
			return &models.TaskStatus{Status: models.TaskStateSuccess, Progress: 100}, nil
		}},
		lister: &reportListerStub{count: 25},
		opener: &reportOpenerStub{},
		area:   area,
		signer: storage.NewLinkSigner("secret", time.Hour),
	}
	uploads := NewUploadService(area, h.uploader, nil, nil, nil, UploadServiceConfig{})
	poller := NewProgressPoller(h.statuses, nil, nil, ProgressPollerConfig{Interval: 5 * time.Millisecond})
	table := NewReportTable(h.lister, nil, ReportTableConfig{PageSize: 10})
	h.dashboard = NewDashboard(context.Background(), id, uploads, poller, table, h.signer, h.opener, nil, cfg)
	h.dashboard.Mount(context.Background())
	t.Cleanup(h.dashboard.Close)
	return h
}

func csvUpload(name, body string) FileUpload {
	return FileUpload{Filename: name, Size: int64(len(body)), DeclaredType: "text/csv", Content: strings.NewReader(body)}
}

func notificationMessage(view []models.Notification, kind models.NotificationKind) string {
	for _, n := range view {
		if n.Kind == kind {
			return n.Message
		}
	}
	return ""
}

func TestDashboardSelectFileAcceptsSpreadsheet(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})

	pending, err := h.dashboard.SelectFile(csvUpload("donors.csv", "Donor ID\n1\n"))
	require.NoError(t, err)

	view := h.dashboard.View()
	require.NotNil(t, view.PendingFile)
	assert.Equal(t, pending.Name, view.PendingFile.Name)
	assert.True(t, view.CanGenerate)
	assert.Equal(t, MessageFileAccepted, notificationMessage(view.Notifications, models.NotificationSuccess))
	assert.Equal(t, RequiredColumns, view.RequiredColumns)
	assert.Equal(t, 0, h.uploader.Calls())
}

func TestDashboardRejectedFileKeepsPendingFile(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)

	_, err = h.dashboard.SelectFile(FileUpload{Filename: "photo.png", Size: 1, DeclaredType: "image/png", Content: strings.NewReader("x")})
	require.True(t, errors.Is(err, appErrors.ErrUnsupportedFileType))

	view := h.dashboard.View()
	require.NotNil(t, view.PendingFile)
	assert.Equal(t, "donors.csv", view.PendingFile.Name)
	assert.Equal(t, "Only Excel (.xlsx, .xls) and CSV (.csv) files are allowed.", notificationMessage(view.Notifications, models.NotificationError))
	assert.Equal(t, 0, h.uploader.Calls())
}

func TestDashboardOversizedFileRaisesError(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})

	_, err := h.dashboard.SelectFile(FileUpload{Filename: "big.xlsx", Size: 6 * 1024 * 1024, Content: strings.NewReader("x")})
	require.True(t, errors.Is(err, appErrors.ErrFileTooLarge))
	view := h.dashboard.View()
	assert.Equal(t, "File size exceeds 5MB.", notificationMessage(view.Notifications, models.NotificationError))
	assert.Nil(t, view.PendingFile)
	assert.False(t, view.CanGenerate)
}

func TestDashboardReplacingFileDiscardsPreviousBlob(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	first, err := h.dashboard.SelectFile(csvUpload("first.csv", "a"))
	require.NoError(t, err)
	_, err = h.dashboard.SelectFile(csvUpload("second.csv", "b"))
	require.NoError(t, err)

	_, err = h.area.Open(first.StagedAs)
	require.Error(t, err)
	assert.Equal(t, "second.csv", h.dashboard.View().PendingFile.Name)
}

func TestDashboardRemoveFile(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	pending, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)

	h.dashboard.RemoveFile()

	view := h.dashboard.View()
	assert.Nil(t, view.PendingFile)
	assert.Empty(t, notificationMessage(view.Notifications, models.NotificationSuccess))
	_, err = h.area.Open(pending.StagedAs)
	require.Error(t, err)
	assert.Equal(t, 0, h.uploader.Calls())
}

func TestDashboardGenerateRequiresPendingFile(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})

	_, err := h.dashboard.GenerateReports(context.Background())
	require.True(t, errors.Is(err, appErrors.ErrNoPendingFile))
	assert.Equal(t, 0, h.uploader.Calls())
}

func TestDashboardGenerateFailureMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "backend explanation",
			err:  appErrors.Wrap(&repository.StatusError{StatusCode: 400, Message: "Missing column: Cause"}, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "Missing column: Cause"),
			want: "Missing column: Cause",
		},
		{
			name: "transport failure",
			err:  appErrors.Wrap(errors.New("connection refused"), appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message),
			want: MessageUploadFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newDashboardHarness(t, "s1", DashboardConfig{})
			h.uploader.err = tc.err
			_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
			require.NoError(t, err)

			_, err = h.dashboard.GenerateReports(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUpstream))

			view := h.dashboard.View()
			assert.Equal(t, tc.want, notificationMessage(view.Notifications, models.NotificationError))
			assert.NotNil(t, view.PendingFile)
			assert.False(t, view.Progress.Mounted)
		})
	}
}

func TestDashboardGenerateRoundTripRefreshesTable(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{RefreshOnComplete: true})
	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "Donor ID\n1\n"))
	require.NoError(t, err)
	callsBefore := len(h.lister.Calls())

	result, err := h.dashboard.GenerateReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, result.TaskIDs)

	view := h.dashboard.View()
	assert.Nil(t, view.PendingFile)
	assert.Equal(t, []string{"t1", "t2"}, view.TaskIDs)
	assert.Equal(t, MessageUploadSucceeded, notificationMessage(view.Notifications, models.NotificationSuccess))
	assert.True(t, view.Progress.Mounted)

	require.Eventually(t, func() bool {
		return notificationMessage(h.dashboard.View().Notifications, models.NotificationCompleted) != ""
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(h.lister.Calls()) == callsBefore+1 }, time.Second, time.Millisecond)

	view = h.dashboard.View()
	assert.Equal(t, MessageGenerationCompleted, notificationMessage(view.Notifications, models.NotificationCompleted))
	assert.True(t, view.RefreshTrigger)
	assert.Equal(t, models.PollerStateCompleted, view.Progress.State)
	assert.Equal(t, "100% Complete", view.Progress.Label)
}

func TestDashboardCompletionWithoutAutoRefresh(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{RefreshOnComplete: false})
	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)
	callsBefore := len(h.lister.Calls())

	_, err = h.dashboard.GenerateReports(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.dashboard.Progress().State == models.PollerStateCompleted
	}, time.Second, time.Millisecond)

	assert.False(t, h.dashboard.View().RefreshTrigger)
	assert.Len(t, h.lister.Calls(), callsBefore)
}

func TestDashboardEmptyTaskListDoesNotMountPoller(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	h.uploader.result = &models.UploadResult{Message: "File uploaded successfully"}
	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)

	_, err = h.dashboard.GenerateReports(context.Background())
	require.NoError(t, err)

	progress := h.dashboard.Progress()
	assert.False(t, progress.Mounted)
	assert.Equal(t, models.PollerStateIdle, progress.State)
	assert.Equal(t, 0, h.statuses.Calls())
}

func TestDashboardNotificationsExpire(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{NotificationTTL: 6 * time.Second})
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := base
	h.dashboard.now = func() time.Time { return now }

	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)

	now = base.Add(5 * time.Second)
	assert.Len(t, h.dashboard.View().Notifications, 1)

	now = base.Add(6 * time.Second)
	assert.Empty(t, h.dashboard.View().Notifications)
}

func TestDashboardRaisingReplacesSameKind(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	_, err := h.dashboard.SelectFile(FileUpload{Filename: "a.png", Size: 1, DeclaredType: "image/png", Content: strings.NewReader("x")})
	require.Error(t, err)
	_, err = h.dashboard.SelectFile(FileUpload{Filename: "b.xlsx", Size: 6 * 1024 * 1024, Content: strings.NewReader("x")})
	require.Error(t, err)

	notifications := h.dashboard.View().Notifications
	require.Len(t, notifications, 1)
	assert.Equal(t, "File size exceeds 5MB.", notifications[0].Message)
}

func TestDashboardDismiss(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)

	require.NoError(t, h.dashboard.Dismiss(models.NotificationSuccess))
	assert.Empty(t, h.dashboard.View().Notifications)

	err = h.dashboard.Dismiss("warning")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDashboardSearchAndPaging(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})

	h.dashboard.SetPage(context.Background(), 3)
	h.dashboard.SetSearch(context.Background(), "ann")

	calls := h.lister.Calls()
	assert.Equal(t, listCall{Page: 3, Search: "ann"}, calls[len(calls)-1])
	reports := h.dashboard.Reports()
	assert.Equal(t, "ann", reports.SearchQuery)
	assert.Equal(t, 3, reports.Pagination.Page)

	h.dashboard.ToggleRefresh(context.Background())
	assert.Len(t, h.lister.Calls(), len(calls)+1)
	assert.True(t, h.dashboard.View().RefreshTrigger)
}

func TestDashboardDownloadLinks(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})

	reports := h.dashboard.Reports()
	require.Len(t, reports.Rows, 1)
	row := reports.Rows[0]
	assert.Equal(t, "p1.pdf", row.Filename)
	require.True(t, strings.HasPrefix(row.DownloadURL, "/dashboard/reports/download?token="))

	parsed, err := url.Parse(row.DownloadURL)
	require.NoError(t, err)
	token := parsed.Query().Get("token")

	download, err := h.dashboard.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.Body.Close() //nolint:errcheck
	assert.Equal(t, "p1.pdf", download.Filename)
	assert.Equal(t, "application/pdf", download.ContentType)
	assert.Equal(t, []string{"/media/reports/p1.pdf"}, h.opener.opened)
}

func TestDashboardDownloadRejectsForeignAndInvalidTokens(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})

	foreign, _, err := h.signer.Sign("s2", "/media/reports/other.pdf")
	require.NoError(t, err)
	_, err = h.dashboard.ResolveDownload(context.Background(), foreign)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = h.dashboard.ResolveDownload(context.Background(), "garbage")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, h.opener.opened)
}

func TestDashboardCloseStopsPollingAndDiscardsFile(t *testing.T) {
	h := newDashboardHarness(t, "s1", DashboardConfig{})
	h.statuses.respond = func(int, string) (*models.TaskStatus, error) {
		return &models.TaskStatus{Status: models.TaskStatePending, Progress: 10}, nil
	}
	_, err := h.dashboard.SelectFile(csvUpload("donors.csv", "a"))
	require.NoError(t, err)
	_, err = h.dashboard.GenerateReports(context.Background())
	require.NoError(t, err)
	pending, err := h.dashboard.SelectFile(csvUpload("next.csv", "b"))
	require.NoError(t, err)

	h.dashboard.Close()

	select {
	case <-h.dashboard.poller.Done():
	case <-time.After(time.Second):
		t.Fatal("poller kept running after close")
	}
	_, err = h.area.Open(pending.StagedAs)
	require.Error(t, err)
}

func TestReportFilename(t *testing.T) {
	assert.Equal(t, "donor_42.pdf", reportFilename("http://localhost:8000/media/reports/donor_42.pdf?x=1"))
	assert.Equal(t, "report", reportFilename("http://localhost:8000/"))
	assert.Equal(t, "report", reportFilename(""))
}

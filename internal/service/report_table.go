package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/donor-reports-dashboard/internal/models"
)

type donorReportLister interface {
	ListDonorReports(ctx context.Context, page int, search string) (*models.DonorReportPage, error)
}

// ReportTableConfig holds table sizing.
type ReportTableConfig struct {
	PageSize int
}

// ReportTable is the paginated, searchable list of generated donor reports.
// Every change of page, search or refresh trigger refetches from the backend.
type ReportTable struct {
	lister donorReportLister
	logger *zap.Logger
	cfg    ReportTableConfig

	mu      sync.Mutex
	page    int
	search  string
	refresh bool
	rows    []models.DonorReportRow
	count   int
	issued  uint64
}

// NewReportTable constructs a table positioned on page 1 with no rows.
func NewReportTable(lister donorReportLister, logger *zap.Logger, cfg ReportTableConfig) *ReportTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	return &ReportTable{
		lister: lister,
		logger: logger,
		cfg:    cfg,
		page:   1,
		rows:   []models.DonorReportRow{},
	}
}

// Mount performs the initial fetch.
func (t *ReportTable) Mount(ctx context.Context, search string, refresh bool) {
	t.mu.Lock()
	t.search = search
	t.refresh = refresh
	t.mu.Unlock()
	t.fetch(ctx)
}

// SetPage clamps requested into the valid range and fetches it. It reports
// false, without fetching, when the clamped page is already current.
func (t *ReportTable) SetPage(ctx context.Context, requested int) bool {
	t.mu.Lock()
	target := clampPage(requested, totalPages(t.count, t.cfg.PageSize))
	if target == t.page {
		t.mu.Unlock()
		return false
	}
	t.page = target
	t.mu.Unlock()
	t.fetch(ctx)
	return true
}

// SetSearch changes the filter and refetches. The current page is kept.
func (t *ReportTable) SetSearch(ctx context.Context, search string) bool {
	t.mu.Lock()
	if search == t.search {
		t.mu.Unlock()
		return false
	}
	t.search = search
	t.mu.Unlock()
	t.fetch(ctx)
	return true
}

// SetRefreshTrigger refetches when the trigger value changes.
func (t *ReportTable) SetRefreshTrigger(ctx context.Context, refresh bool) bool {
	t.mu.Lock()
	if refresh == t.refresh {
		t.mu.Unlock()
		return false
	}
	t.refresh = refresh
	t.mu.Unlock()
	t.fetch(ctx)
	return true
}

// Rows returns the rows currently displayed and the pagination cursor.
func (t *ReportTable) Rows() ([]models.DonorReportRow, models.Pagination) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := append([]models.DonorReportRow{}, t.rows...)
	return rows, models.Pagination{
		Page:       t.page,
		PageSize:   t.cfg.PageSize,
		TotalCount: t.count,
		TotalPages: totalPages(t.count, t.cfg.PageSize),
	}
}

// Search returns the active filter.
func (t *ReportTable) Search() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.search
}

// fetch loads the current (page, search). Only the most recently issued
// fetch may replace the rows; failures keep the previous rows.
func (t *ReportTable) fetch(ctx context.Context) {
	t.mu.Lock()
	t.issued++
	seq := t.issued
	page, search := t.page, t.search
	t.mu.Unlock()

	result, err := t.lister.ListDonorReports(ctx, page, search)

	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.issued {
		t.logger.Sugar().Debugw("discarding superseded report list", "page", page, "search", search)
		return
	}
	if err != nil {
		t.logger.Sugar().Warnw("failed to fetch donor reports", "page", page, "search", search, "error", err)
		return
	}
	t.rows = append([]models.DonorReportRow{}, result.Results...)
	t.count = result.Count
}

func totalPages(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

func clampPage(requested, pages int) int {
	upper := pages
	if upper < 1 {
		upper = 1
	}
	if requested < 1 {
		return 1
	}
	if requested > upper {
		return upper
	}
	return requested
}

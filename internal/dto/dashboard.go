package dto

import "github.com/noah-isme/donor-reports-dashboard/internal/models"

// DashboardView is the full state a dashboard page renders from.
type DashboardView struct {
	SessionID       string                `json:"sessionId"`
	PendingFile     *models.PendingFile   `json:"pendingFile,omitempty"`
	CanGenerate     bool                  `json:"canGenerate"`
	TaskIDs         []string              `json:"taskIds"`
	SearchQuery     string                `json:"searchQuery"`
	RefreshTrigger  bool                  `json:"refreshTrigger"`
	Notifications   []models.Notification `json:"notifications"`
	RequiredColumns []string              `json:"requiredColumns"`
	Progress        ProgressView          `json:"progress"`
	Reports         ReportTableView       `json:"reports"`
}

// ProgressView renders the linear progress indicator.
type ProgressView struct {
	models.PollSnapshot
	Mounted bool   `json:"mounted"`
	Label   string `json:"label"`
}

// ReportTableView is one rendered page of donor reports.
type ReportTableView struct {
	Rows        []ReportRowView   `json:"rows"`
	Pagination  models.Pagination `json:"pagination"`
	SearchQuery string            `json:"searchQuery"`
}

// ReportRowView is a table row with its signed download link.
type ReportRowView struct {
	FullName    string `json:"fullName"`
	DonorID     string `json:"donorId"`
	Email       string `json:"email"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
}

// SetPageRequest captures PUT /dashboard/reports/page.
type SetPageRequest struct {
	Page int `json:"page" validate:"required"`
}

// SearchRequest captures PUT /dashboard/reports/search.
type SearchRequest struct {
	Query string `json:"query" validate:"max=256"`
}

package models

// DonorReportRow is one generated report as listed by the backend.
type DonorReportRow struct {
	FullName  string `json:"full_name"`
	DonorID   string `json:"donor_id"`
	Email     string `json:"email"`
	ReportURL string `json:"report_url"`
}

// DonorReportPage is one page of the backend listing.
type DonorReportPage struct {
	Results []DonorReportRow `json:"results"`
	Count   int              `json:"count"`
}

// Pagination describes the report table cursor.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

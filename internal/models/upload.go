package models

import "time"

// PendingFile is the single spreadsheet held by a dashboard session between
// validation and submission.
type PendingFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	StagedAs   string    `json:"-"`
	SelectedAt time.Time `json:"selectedAt"`
}

// UploadResult is the backend's answer to a spreadsheet submission.
type UploadResult struct {
	TaskIDs []string `json:"task_ids"`
	Message string   `json:"message,omitempty"`
}

package models

import "time"

// NotificationKind identifies a banner slot; at most one banner per kind is visible.
type NotificationKind string

const (
	NotificationSuccess   NotificationKind = "success"
	NotificationError     NotificationKind = "error"
	NotificationCompleted NotificationKind = "completed"
)

// Valid reports whether the kind names a known banner slot.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationSuccess, NotificationError, NotificationCompleted:
		return true
	default:
		return false
	}
}

// Notification is a transient banner.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	RaisedAt  time.Time        `json:"raisedAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// Visible reports whether the banner is still showing at now.
func (n Notification) Visible(now time.Time) bool {
	return now.Before(n.ExpiresAt)
}

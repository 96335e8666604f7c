// Package notify turns newly added live documents into transient alerts.
package notify

import (
	"time"

	"github.com/google/uuid"

	"fleetguard/internal/feed"
)

// Severity drives how an alert is presented.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one queued alert.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	Severity  Severity   `json:"severity"`
	Message   string     `json:"message"`
	Topic     feed.Topic `json:"topic"`
	DocID     string     `json:"doc_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

package models

import "time"

// Alert kinds shown on the admin alerts panel.
const (
	AlertNoEligibleProviders = "no_eligible_providers"
	AlertAcceptanceTimeout   = "acceptance_timeout"
	AlertNotificationFailed  = "notification_failed"
)

// AdminAlert is a non-fatal condition an admin should look at.
type AdminAlert struct {
	ID             string     `json:"id"`
	RequestID      *string    `json:"request_id,omitempty"`
	Kind           string     `json:"kind"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

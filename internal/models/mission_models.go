package models

import "time"

// AssignmentMethod records how a provider got bound to a request.
type AssignmentMethod string

const (
	MethodAdminManual AssignmentMethod = "admin_manual"
	MethodAutoMatch   AssignmentMethod = "auto_match"
)

// Mission is the assignment record of a request. At most one exists per
// request and its provider, once set, never changes.
type Mission struct {
	ID                 string           `json:"id"`
	RequestID          string           `json:"request_id"`
	EligibleProviders  []string         `json:"eligible_providers"`
	NotifiedCount      int              `json:"notified_count"`
	DeclinedProviders  []string         `json:"declined_providers"`
	AssignedProviderID *string          `json:"assigned_provider_id,omitempty"`
	AssignmentMethod   AssignmentMethod `json:"assignment_method"`
	AssignedAt         *time.Time       `json:"assigned_at,omitempty"`
	ResponseDeadline   *time.Time       `json:"response_deadline,omitempty"`
	SentNotifications  int              `json:"sent_notifications"`
	ResponsesReceived  int              `json:"responses_received"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Notified returns the providers that have been offered the mission so far.
func (m *Mission) Notified() []string {
	n := m.NotifiedCount
	if n > len(m.EligibleProviders) {
		n = len(m.EligibleProviders)
	}
	return m.EligibleProviders[:n]
}

// WasNotified reports whether providerID was offered the mission.
func (m *Mission) WasNotified(providerID string) bool {
	for _, id := range m.Notified() {
		if id == providerID {
			return true
		}
	}
	return false
}

// HasDeclined reports whether providerID already declined.
func (m *Mission) HasDeclined(providerID string) bool {
	for _, id := range m.DeclinedProviders {
		if id == providerID {
			return true
		}
	}
	return false
}

// Remaining returns ranked candidates not offered yet.
func (m *Mission) Remaining() []string {
	if m.NotifiedCount >= len(m.EligibleProviders) {
		return nil
	}
	return m.EligibleProviders[m.NotifiedCount:]
}

// ManualAssignRequest is the admin manual pick.
type ManualAssignRequest struct {
	ProviderID string `json:"provider_id" validate:"required,uuid"`
}

// BulkAssignRequest lists requests to auto-assign.
type BulkAssignRequest struct {
	RequestIDs []string `json:"request_ids" validate:"required,min=1,max=200,dive,uuid"`
}

// AssignmentResult mirrors the autoAssignMission/assignMissionManually reply.
type AssignmentResult struct {
	RequestID         string        `json:"request_id"`
	Success           bool          `json:"success"`
	Status            RequestStatus `json:"status,omitempty"`
	ProviderIDs       []string      `json:"provider_ids,omitempty"`
	NotificationsSent int           `json:"notifications_sent"`
	Error             string        `json:"error,omitempty"`
	Code              string        `json:"code,omitempty"`
	Mission           *Mission      `json:"mission,omitempty"`
}

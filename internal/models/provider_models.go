package models

import "time"

// ProviderStatus is the moderation state of a provider.
type ProviderStatus string

const (
	ProviderPendingValidation ProviderStatus = "pending_validation"
	ProviderActive            ProviderStatus = "active"
	ProviderSuspended         ProviderStatus = "suspended"
	ProviderInTraining        ProviderStatus = "in_training"
	ProviderDeactivated       ProviderStatus = "deactivated"
)

// Provider is a service professional that can be bound to requests.
type Provider struct {
	ID               string         `json:"id"`
	BusinessName     string         `json:"business_name"`
	Email            string         `json:"email"`
	IsVerified       bool           `json:"is_verified"`
	Status           ProviderStatus `json:"status"`
	Rating           float64        `json:"rating"`
	PerformanceScore float64        `json:"performance_score"`
	Coverage         string         `json:"coverage"`
	PostalCodes      []string       `json:"postal_codes"`
	HourlyRate       float64        `json:"hourly_rate"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsEligible reports whether the provider may be assigned at all.
func (p *Provider) IsEligible() bool {
	return p.IsVerified && p.Status == ProviderActive
}

// Eligibility returns an IneligibleProviderError when the provider cannot be assigned.
func (p *Provider) Eligibility() error {
	if !p.IsVerified {
		return &IneligibleProviderError{ProviderID: p.ID, Reason: "provider is not verified"}
	}
	if p.Status != ProviderActive {
		return &IneligibleProviderError{ProviderID: p.ID, Reason: "provider status is " + string(p.Status)}
	}
	return nil
}

// ProviderMatch is a provider annotated for a specific request.
type ProviderMatch struct {
	Provider      *Provider `json:"provider"`
	LocationMatch bool      `json:"location_match"`
	TextMatch     bool      `json:"text_match"`
}

// ProviderStatusUpdateRequest is an admin moderation action.
type ProviderStatusUpdateRequest struct {
	Status     ProviderStatus `json:"status" validate:"required,oneof=pending_validation active suspended in_training deactivated"`
	IsVerified *bool          `json:"is_verified,omitempty"`
}

package models

import (
	"time"
)

// Urgency is the client-declared priority of a request.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// PaymentStatus tracks the money side of a request.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentBlocked  PaymentStatus = "blocked"
	PaymentRefunded PaymentStatus = "refunded"
)

// ServiceRequest is a client's booking request for a family service.
type ServiceRequest struct {
	ID                 string        `json:"id"`
	ClientID           string        `json:"client_id"`
	ClientName         string        `json:"client_name"`
	ClientEmail        string        `json:"client_email"`
	ClientPhone        string        `json:"client_phone,omitempty"`
	ServiceType        string        `json:"service_type"`
	Description        string        `json:"description,omitempty"`
	Location           string        `json:"location"`
	PostalCode         string        `json:"postal_code,omitempty"`
	City               string        `json:"city,omitempty"`
	PreferredDate      time.Time     `json:"preferred_date"`
	WindowStart        string        `json:"window_start,omitempty"`
	WindowEnd          string        `json:"window_end,omitempty"`
	Urgency            Urgency       `json:"urgency"`
	Budget             *float64      `json:"budget,omitempty"`
	Status             RequestStatus `json:"status"`
	AssignedProviderID *string       `json:"assigned_provider_id,omitempty"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	PaymentIntentID    *string       `json:"payment_intent_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// CreateServiceRequest is the client submission payload.
type CreateServiceRequest struct {
	ClientName    string    `json:"client_name" validate:"required"`
	ClientEmail   string    `json:"client_email" validate:"required,email"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	ServiceType   string    `json:"service_type" validate:"required"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location" validate:"required"`
	PostalCode    string    `json:"postal_code,omitempty"`
	City          string    `json:"city,omitempty"`
	PreferredDate time.Time `json:"preferred_date" validate:"required"`
	WindowStart   string    `json:"window_start,omitempty" validate:"omitempty,datetime=15:04"`
	WindowEnd     string    `json:"window_end,omitempty" validate:"omitempty,datetime=15:04"`
	Urgency       Urgency   `json:"urgency" validate:"omitempty,oneof=low normal high urgent"`
	Budget        *float64  `json:"budget,omitempty" validate:"omitempty,gt=0"`
}

// RequestFilter narrows admin listings.
type RequestFilter struct {
	Status      *RequestStatus
	ServiceType string
	ClientID    string
	ProviderID  string
}

// ConfirmRequest carries the client's payment method when confirming.
type ConfirmRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// DisputeRequest describes an issue raised by either party.
type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ResolveDisputeRequest is the admin's resolution of a dispute.
type ResolveDisputeRequest struct {
	Outcome RequestStatus `json:"outcome" validate:"required,oneof=confirmed completed"`
	Note    string        `json:"note,omitempty"`
}

// RequestEvent is one entry of the append-only request history.
type RequestEvent struct {
	ID         int64          `json:"id"`
	RequestID  string         `json:"request_id"`
	Kind       string         `json:"kind"`
	FromStatus *RequestStatus `json:"from_status,omitempty"`
	ToStatus   *RequestStatus `json:"to_status,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Event kinds.
const (
	EventTransition = "transition"
	EventAssignment = "assignment"
	EventDecline    = "decline"
	EventTimeout    = "timeout"
)

// SystemActor is recorded for transitions made without a human.
const SystemActor = "system"

// ErrorResponse is the JSON body of every failed call.
type ErrorResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

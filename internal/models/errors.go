package models

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("requested resource not found")
var ErrForbidden = errors.New("user does not have permission to access this resource")
var ErrConflict = errors.New("resource conflict, item already exists")
var ErrInvalidToken = errors.New("token not found or expired")
var ErrInvalidCredentials = errors.New("invalid credentials") // email or password provided does not match database record

// Assignment and lifecycle errors.
var (
	ErrIneligibleProvider     = errors.New("provider is not eligible for assignment")
	ErrMissionAlreadyAssigned = errors.New("mission already assigned to a provider")
	ErrNoEligibleProviders    = errors.New("no eligible providers found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrStatusConflict         = errors.New("request status changed concurrently")
	ErrNotOffered             = errors.New("mission was not offered to this provider")
	ErrNotificationDelivery   = errors.New("notification delivery failed")
	ErrTransientStore         = errors.New("store temporarily unavailable")
	ErrPaymentFailed          = errors.New("payment failed")
)

// IneligibleProviderError explains why a provider cannot be assigned.
type IneligibleProviderError struct {
	ProviderID string
	Reason     string
}

func (e *IneligibleProviderError) Error() string {
	return fmt.Sprintf("provider %s is not eligible: %s", e.ProviderID, e.Reason)
}

func (e *IneligibleProviderError) Unwrap() error { return ErrIneligibleProvider }

// InvalidTransitionError names the rejected move.
type InvalidTransitionError struct {
	From RequestStatus
	To   RequestStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid request status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotificationDeliveryError is logged, never returned to end users.
type NotificationDeliveryError struct {
	Template  string
	Recipient string
	Err       error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Template, e.Recipient, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() []error { return []error{ErrNotificationDelivery, e.Err} }

// TransientStoreError wraps network or backend failures the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() []error { return []error{ErrTransientStore, e.Err} }

// ErrorCode returns a stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIneligibleProvider):
		return "ineligible_provider"
	case errors.Is(err, ErrMissionAlreadyAssigned):
		return "mission_already_assigned"
	case errors.Is(err, ErrNoEligibleProviders):
		return "no_eligible_providers"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStatusConflict):
		return "status_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransientStore):
		return "transient_store"
	case errors.Is(err, ErrNotOffered):
		return "not_offered"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	}
	return "internal"
}

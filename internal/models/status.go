package models

import (
	"fmt"
	"time"
)

// RequestStatus is the lifecycle state of a service request.
type RequestStatus string

const (
	StatusNew                        RequestStatus = "new"
	StatusSearchingProvider          RequestStatus = "searching_provider"
	StatusAwaitingClientConfirmation RequestStatus = "awaiting_client_confirmation"
	StatusConfirmed                  RequestStatus = "confirmed"
	StatusInProgress                 RequestStatus = "in_progress"
	StatusCompleted                  RequestStatus = "completed"
	StatusUnmatched                  RequestStatus = "unmatched"
	StatusDispute                    RequestStatus = "dispute"
	StatusCancelled                  RequestStatus = "cancelled"
)

// AllStatuses lists every status in board order.
var AllStatuses = []RequestStatus{
	StatusNew,
	StatusSearchingProvider,
	StatusAwaitingClientConfirmation,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusUnmatched,
	StatusDispute,
	StatusCancelled,
}

// transitions is the single source of truth for legal status moves.
// cancelled and dispute are reachable from every non-terminal state and are
// handled in CanTransitionTo.
var transitions = map[RequestStatus][]RequestStatus{
	StatusNew:                        {StatusSearchingProvider, StatusUnmatched, StatusAwaitingClientConfirmation},
	StatusSearchingProvider:          {StatusAwaitingClientConfirmation, StatusUnmatched},
	StatusAwaitingClientConfirmation: {StatusConfirmed},
	StatusConfirmed:                  {StatusInProgress},
	StatusInProgress:                 {StatusCompleted},
	StatusUnmatched:                  {StatusSearchingProvider, StatusAwaitingClientConfirmation},
	StatusDispute:                    {StatusConfirmed, StatusCompleted},
}

// ParseRequestStatus accepts only canonical spellings.
func ParseRequestStatus(s string) (RequestStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// IsTerminal reports whether no transition may leave the status.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsAssigned reports whether a request in this status must have a provider bound.
func (s RequestStatus) IsAssigned() bool {
	switch s {
	case StatusAwaitingClientConfirmation, StatusConfirmed, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether from -> to is a legal move.
func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	if s.IsTerminal() || s == to {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	if to == StatusDispute {
		return s != StatusDispute
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ApplyTransition moves the request to status "to", stamping timestamps.
// updated_at always strictly increases even when the clock does not.
func (r *ServiceRequest) ApplyTransition(to RequestStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{From: r.Status, To: to}
	}

	next := now.UTC()
	if !next.After(r.UpdatedAt) {
		next = r.UpdatedAt.Add(time.Microsecond)
	}

	r.Status = to
	r.UpdatedAt = next
	switch to {
	case StatusInProgress:
		r.StartedAt = &next
	case StatusCompleted:
		r.CompletedAt = &next
	case StatusCancelled, StatusUnmatched, StatusSearchingProvider:
		r.AssignedProviderID = nil
	}
	return nil
}

// CheckAssignment verifies the provider binding invariant.
// Disputes keep whatever binding they were raised with.
func (r *ServiceRequest) CheckAssignment() error {
	if r.Status == StatusDispute {
		return nil
	}
	bound := r.AssignedProviderID != nil && *r.AssignedProviderID != ""
	if bound != r.Status.IsAssigned() {
		return fmt.Errorf("request %s: status %s with provider bound=%v", r.ID, r.Status, bound)
	}
	return nil
}

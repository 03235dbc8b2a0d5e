package models

import "errors"

// Sentinel errors for the platform core. Callers classify with errors.Is;
// the HTTP layer maps each one to a distinct status and message.
var (
	// ErrNoTenantBound means data access was attempted outside a bound
	// tenant context. This must not happen in correct code and is
	// surfaced as an internal error, never silently defaulted.
	ErrNoTenantBound = errors.New("no tenant bound to context")

	// ErrTenantBlocked means the resolver found the tenant flagged
	// blocked; the request gets a "service suspended" response.
	ErrTenantBlocked = errors.New("tenant is blocked")

	ErrOrderNotFound    = errors.New("order not found")
	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrAlertNotFound    = errors.New("alert not found")

	// ErrInvalidTransition is a state-machine guard failure. It is a
	// business rejection: returned to the caller, never retried.
	ErrInvalidTransition = errors.New("invalid order transition")

	// ErrAlreadyAssigned is returned to the loser of a dispatch race:
	// a delivery already exists for the order.
	ErrAlreadyAssigned = errors.New("order already assigned to a driver")

	// ErrNotReady means the order is not in the READY status.
	ErrNotReady = errors.New("order is not ready")

	// ErrRatingExists rejects a duplicate rating submission.
	ErrRatingExists = errors.New("order already rated")

	// ErrNotDelivered rejects a rating before the order is delivered.
	ErrNotDelivered = errors.New("order is not delivered yet")

	// ErrForbidden means the actor's role fails a transition guard.
	ErrForbidden = errors.New("actor not allowed to perform this action")
)

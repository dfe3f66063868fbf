package appointments

import "errors"

var (
	// ErrValidation is returned for missing fields, past dates and blank reasons.
	ErrValidation = errors.New("appointments: validation failed")

	// ErrNotFound is returned when no turno matches the token or id.
	ErrNotFound = errors.New("appointments: appointment not found")

	// ErrInvalidTransition is returned when confirming a cancelled turno.
	ErrInvalidTransition = errors.New("appointments: invalid status transition")

	// ErrForbidden is returned when a user tries to cancel someone else's turno.
	ErrForbidden = errors.New("appointments: appointment belongs to another user")

	// ErrDuplicateToken is returned by repositories on a token collision.
	ErrDuplicateToken = errors.New("appointments: duplicate confirmation token")

	// errStaleStatus signals a lost compare-and-set race inside the service.
	errStaleStatus = errors.New("appointments: status changed concurrently")
)

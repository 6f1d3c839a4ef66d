package errs

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvalidTransition is returned when a requested ticket status change
	// is not an edge of the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid ticket status transition")

	// ErrInvalidPhone is returned when a phone number cannot be normalized
	// into a messaging address.
	ErrInvalidPhone = errors.New("invalid phone number")
)

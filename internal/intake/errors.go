package intake

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when candidates were dropped because the selection was full.
	ErrCapacityExceeded = errors.New("selection is full")
	// ErrUnsupportedFormat wraps every candidate skipped for its extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrSubmitInProgress is returned by Submit while a request is in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// TransportError covers network failures, non-2xx statuses and undecodable bodies.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError is a well-formed response with success=false.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return "extract failed: " + e.Message
}

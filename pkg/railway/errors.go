package railway

import "errors"

var (
	// ErrNotFound is returned when a train, station or schedule stop does not exist
	ErrNotFound = errors.New("not found")

	// ErrExternalServiceUnavailable covers any failure of the ML predictor
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	ErrPersistence = errors.New("persistence failure")

	ErrAuthentication = errors.New("authentication failure")
)

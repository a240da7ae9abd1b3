package console

import "errors"

var (
	// ErrNotConfigured is returned by a Client without a base URL
	ErrNotConfigured = errors.New("command API not configured")

	// ErrCommandRejected is returned when the server answered success=false
	ErrCommandRejected = errors.New("command rejected by server")

	// ErrInvalidResponse is returned when the server answer has an unexpected shape
	ErrInvalidResponse = errors.New("invalid command API response")

	// ErrCircuitOpen is returned while the circuit breaker is open
	ErrCircuitOpen = errors.New("command API circuit breaker is open")
)

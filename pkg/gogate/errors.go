package gogate

import "errors"

var (
	// ErrRecordNotFound is returned when an account has no access record yet
	ErrRecordNotFound = errors.New("access record not found")

	// ErrStoreUnavailable is returned when the record store is unreachable
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidAccount is returned for an empty or malformed account id
	ErrInvalidAccount = errors.New("invalid account")

	// ErrCircuitOpen is returned when the lookup circuit breaker is open
	ErrCircuitOpen = errors.New("record store circuit open")
)

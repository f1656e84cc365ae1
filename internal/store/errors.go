package store

import "errors"

var (
	// ErrNotFound is returned when a key is absent from the config store.
	ErrNotFound = errors.New("store: key not found")

	// ErrMalformed is returned when a stored document fails to decode.
	// Callers treat malformed documents the same as absent ones.
	ErrMalformed = errors.New("store: malformed document")

	// ErrUnavailable is returned when the config store cannot be reached,
	// including when the circuit breaker is open.
	ErrUnavailable = errors.New("store: unavailable")
)

// IsMiss reports whether err means "no usable document" rather than a store
// failure. Misses are skipped during resolution; failures abort the request.
func IsMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed)
}

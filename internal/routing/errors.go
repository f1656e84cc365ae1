package routing

import "errors"

var (
	// ErrRouteNotFound is returned when no enabled route matches the
	// request's host and path.
	ErrRouteNotFound = errors.New("no route matches host and path")
)

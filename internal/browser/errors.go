// File: internal/browser/errors.go
package browser

import "errors"

var (
	// ErrStopped is returned by session primitives after a cooperative stop
	// request or a browser disconnect. Callers treat it as "wind down", not
	// as an operation failure.
	ErrStopped = errors.New("browser session stopped")

	// ErrNotFound is returned when a page element cannot be located within
	// its wait budget.
	ErrNotFound = errors.New("element not found")
)

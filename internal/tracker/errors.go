// Package tracker is the HTTP client for the upstream Jira-compatible
// issue tracker. It implements the two collaborator contracts the SLA
// engine consumes: fetching an issue's temporal history and listing the
// global status catalog.
package tracker

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested issue key does not exist.
var ErrNotFound = errors.New("tracker: issue not found")

// Error represents an upstream failure with the HTTP status code and
// the server's error message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker: upstream error (%d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsRateLimited returns true if the error is a 429.
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

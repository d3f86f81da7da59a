package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrInvalidJSON is wrapped when a successful response body does not parse.
	ErrInvalidJSON = errors.New("response is not valid JSON")
)

// PortalError describes a call that produced no result.
type PortalError struct {
	StatusCode int
	Class      ErrorClass
	Method     string
	Path       string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("portal %s error (status %d) %s %s: %v",
			e.Class, e.StatusCode, e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("portal %s error (status %d) %s %s",
		e.Class, e.StatusCode, e.Method, e.Path)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PortalError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 from the portal.
func IsUnauthorized(err error) bool {
	var perr *PortalError
	return errors.As(err, &perr) && perr.Class == ErrorClassAuth
}

// ClassOf returns the class of a PortalError, or "" for other errors.
func ClassOf(err error) ErrorClass {
	var perr *PortalError
	if errors.As(err, &perr) {
		return perr.Class
	}
	return ""
}

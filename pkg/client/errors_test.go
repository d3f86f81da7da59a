package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPortalError_Error(t *testing.T) {
	err := &PortalError{StatusCode: 404, Class: ErrorClassClient, Method: "GET", Path: "/x"}
	if got := err.Error(); !strings.Contains(got, "portal client error (status 404) GET /x") {
		t.Errorf("Error() = %q", got)
	}

	wrapped := &PortalError{Class: ErrorClassNetwork, Method: "POST", Path: "/y", Err: errors.New("refused")}
	if got := wrapped.Error(); !strings.HasSuffix(got, ": refused") {
		t.Errorf("Error() = %q, want wrapped cause", got)
	}
}

func TestPortalError_Unwrap(t *testing.T) {
	err := fmt.Errorf("fetch page: %w", &PortalError{Class: ErrorClassDecode, Err: ErrInvalidJSON})

	if !errors.Is(err, ErrInvalidJSON) {
		t.Error("errors.Is should reach ErrInvalidJSON through PortalError")
	}
	if ClassOf(err) != ErrorClassDecode {
		t.Errorf("ClassOf() = %q, want decode", ClassOf(err))
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Error("ClassOf() of a plain error should be empty")
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(&PortalError{StatusCode: 401, Class: ErrorClassAuth}) {
		t.Error("401 should be unauthorized")
	}
	if IsUnauthorized(&PortalError{StatusCode: 403, Class: ErrorClassClient}) {
		t.Error("403 should not be unauthorized")
	}
	if IsUnauthorized(nil) {
		t.Error("nil should not be unauthorized")
	}
}

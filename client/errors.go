package client

import (
	"errors"
	"fmt"

	errs "github.com/jrsteele09/go-telemed-client/internal/errors"
)

// ErrSessionExpired matches every *SessionExpiredError via errors.Is.
var ErrSessionExpired = errs.ErrSessionExpired

// APIError is a well-formed response reporting a logical failure. Field names
// the offending form field when the server provided one.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
	Code     string
	Field    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Endpoint, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// HasField reports whether the error should be shown inline on a form field
// instead of as a banner.
func (e *APIError) HasField() bool {
	return e.Field != ""
}

// SessionExpiredError is returned for an authoritative 401. The expiry
// handler has already been invoked; callers should stop and not retry.
type SessionExpiredError struct {
	Endpoint string
	Status   int
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, ErrSessionExpired)
}

func (e *SessionExpiredError) Unwrap() error {
	return ErrSessionExpired
}

// ConnectivityError means no interpretable response was received. Stored
// state is untouched and the caller may retry.
type ConnectivityError struct {
	Endpoint string
	Status   int // Non-zero when a response arrived but could not be interpreted
	Message  string
	Err      error
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

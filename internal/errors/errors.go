package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the client packages
var (
	// Storage errors
	ErrNotFound = errors.New("not found")

	// Token errors
	ErrMalformedToken = errors.New("malformed token")

	// Session errors
	ErrSessionExpired = errors.New("session expired")
	ErrNotAuthorised  = errors.New("not authorised for this area")

	// Configuration errors
	ErrMissingBaseURL = errors.New("base URL is required")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

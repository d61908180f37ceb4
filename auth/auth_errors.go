package auth

import (
	"errors"

	errs "github.com/jrsteele09/go-telemed-client/internal/errors"
)

var (
	MissingEmailErr      = errors.New("email is required")
	InvalidEmailErr      = errors.New("email is not valid")
	MissingPasswordErr   = errors.New("password is required")
	PasswordMismatchErr  = errors.New("passwords do not match")
	MissingTokenErr      = errors.New("login response carried no token")
	NotAuthorisedErr     = errs.ErrNotAuthorised
	SSONotConfiguredErr  = errors.New("single sign-on is not configured")
	InvalidStateErr      = errors.New("invalid state parameter")
	MissingCodeErr       = errors.New("missing authorization code")
	MissingIDTokenErr    = errors.New("no ID token in response")
	InvalidNonceErr      = errors.New("invalid nonce")
	AuthorizationFailErr = errors.New("authorization failed")
)

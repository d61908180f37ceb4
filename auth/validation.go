package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/jrsteele09/go-telemed-client/credentials"
)

// Validator checks credentials input before it is sent to the backend. The
// backend validates again; this only saves a round trip for obvious mistakes.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogin checks an email/password pair.
func (v *Validator) ValidateLogin(email, password string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return MissingPasswordErr
	}
	return nil
}

func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return MissingEmailErr
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return InvalidEmailErr
	}
	return nil
}

// ValidateRegistration checks a sign-up form.
func (v *Validator) ValidateRegistration(req RegisterRequest) error {
	if err := v.ValidateLogin(req.Email, req.Password); err != nil {
		return err
	}
	if req.Password != req.ConfirmPassword {
		return PasswordMismatchErr
	}
	switch req.UserType {
	case credentials.UserTypePatient, credentials.UserTypeDoctor:
	default:
		return fmt.Errorf("user type %q cannot self-register", req.UserType)
	}
	return nil
}

// ValidateCallback checks the parameters an identity provider redirected back with.
func (v *Validator) ValidateCallback(expectedState string, p CallbackParams) error {
	if p.Error != "" {
		return fmt.Errorf("%w: %s - %s", AuthorizationFailErr, p.Error, p.ErrorDescription)
	}
	if p.Code == "" {
		return MissingCodeErr
	}
	if p.State == "" || p.State != expectedState {
		return InvalidStateErr
	}
	return nil
}

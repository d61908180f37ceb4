package credentials

import (
	"time"

	errs "github.com/jrsteele09/go-telemed-client/internal/errors"
)

// ErrNotFound is returned by a Repo when no record is stored.
var ErrNotFound = errs.ErrNotFound

// Scope selects which storage a record survives in.
type Scope string

const (
	ScopeSession    Scope = "session"    // Dropped when the process/browser context ends
	ScopePersistent Scope = "persistent" // "Remember me": survives restarts
)

// UserType is the role the backend assigned to the logged in user.
type UserType string

const (
	UserTypePatient UserType = "patient"
	UserTypeDoctor  UserType = "doctor"
	UserTypeAdmin   UserType = "admin"
)

// Area is the part of the application a page belongs to.
type Area string

const (
	AreaPublic  Area = "public"
	AreaPatient Area = "patient"
	AreaDoctor  Area = "doctor"
	AreaAdmin   Area = "admin"
)

// RequiredUserType returns the user type an area demands, or "" for areas
// open to any authenticated user.
func (a Area) RequiredUserType() UserType {
	switch a {
	case AreaPatient:
		return UserTypePatient
	case AreaDoctor:
		return UserTypeDoctor
	case AreaAdmin:
		return UserTypeAdmin
	}
	return ""
}

// Identity is denormalized display data. Authorization is decided server side;
// nothing in this module grants access based on it beyond page routing.
type Identity struct {
	UserID      string   `json:"id"`
	UserType    UserType `json:"user_type"`
	DisplayName string   `json:"name"`
	Email       string   `json:"email"`
}

// Record is the single active credential of a client.
type Record struct {
	Token     string    `json:"token"`
	Scope     Scope     `json:"scope"`
	Identity  Identity  `json:"identity"`
	LoggedIn  bool      `json:"logged_in"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // From the token's exp claim, zero for opaque tokens
}

// LocallyExpired reports whether the token's own exp claim has passed. It is
// a hint only; the server decides whether a session is valid.
func (r Record) LocallyExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

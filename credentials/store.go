package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Store is the single source of truth for "am I authenticated" and "what do I
// attach to requests". One Store exists per application session.
type Store struct {
	mu      sync.RWMutex
	current *Record
	repos   map[Scope]Repo
	logger  zerolog.Logger
	nowTime func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the logger used for repository faults.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store backed by one repo per persistence scope.
func NewStore(sessionRepo, persistentRepo Repo, options ...StoreOption) (*Store, error) {
	if sessionRepo == nil {
		return nil, pkgerrors.New("[NewStore] session repo is required")
	}
	if persistentRepo == nil {
		return nil, pkgerrors.New("[NewStore] persistent repo is required")
	}

	s := &Store{
		repos: map[Scope]Repo{
			ScopeSession:    sessionRepo,
			ScopePersistent: persistentRepo,
		},
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// SetCredentials atomically replaces any prior record. The record is written
// to the repo of the chosen scope and removed from the other one so exactly
// one record is ever active.
func (s *Store) SetCredentials(ctx context.Context, token string, identity Identity, scope Scope) error {
	if strings.TrimSpace(token) == "" {
		return pkgerrors.New("[SetCredentials] token is required")
	}
	if scope != ScopeSession && scope != ScopePersistent {
		return pkgerrors.Errorf("[SetCredentials] unknown scope %q", scope)
	}

	record := Record{
		Token:    token,
		Scope:    scope,
		Identity: identity,
		LoggedIn: true,
		IssuedAt: s.nowTime(),
	}
	if claims, err := ParseTokenClaims(token); err == nil {
		record.ExpiresAt = claims.ExpiresAt
		if record.Identity.UserID == "" {
			record.Identity.UserID = claims.Subject
		}
		if record.Identity.Email == "" {
			record.Identity.Email = claims.Email
		}
		if record.Identity.UserType == "" {
			record.Identity.UserType = claims.UserType
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repos[scope].Save(ctx, record); err != nil {
		return pkgerrors.Wrap(err, "[SetCredentials] failed to persist credentials")
	}
	if err := s.repos[otherScope(scope)].Delete(ctx); err != nil {
		s.logger.Warn().Err(err).Str("scope", string(otherScope(scope))).Msg("Failed to drop credentials from previous scope")
	}
	s.current = &record
	return nil
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// OAuth2Token returns the bearer token in the form golang.org/x/oauth2 uses to
// set Authorization headers, or nil when unauthenticated.
func (s *Store) OAuth2Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Token == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken: s.current.Token,
		TokenType:   "Bearer",
		Expiry:      s.current.ExpiresAt,
	}
}

// Record returns a copy of the active record.
func (s *Store) Record() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Record{}, false
	}
	return *s.current, true
}

// IsAuthenticated is true iff a token is present, the logged in flag is set,
// and the identity's user type matches what the area requires.
func (s *Store) IsAuthenticated(area Area) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Token == "" || !s.current.LoggedIn {
		return false
	}
	required := area.RequiredUserType()
	return required == "" || s.current.Identity.UserType == required
}

// Clear removes the record from memory and from both scopes. Clearing an empty
// store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	var errList []error
	for scope, repo := range s.repos {
		if err := repo.Delete(ctx); err != nil {
			errList = append(errList, pkgerrors.Wrapf(err, "[Clear] %s scope", scope))
		}
	}
	return errors.Join(errList...)
}

// Restore loads a previously persisted record. Persistent storage wins over
// session storage. Finding nothing is not an error.
func (s *Store) Restore(ctx context.Context) error {
	for _, scope := range []Scope{ScopePersistent, ScopeSession} {
		record, err := s.repos[scope].Load(ctx)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "[Restore] failed to load %s credentials", scope)
		}
		if record.Token == "" {
			continue
		}

		s.mu.Lock()
		record.Scope = scope
		s.current = &record
		s.mu.Unlock()
		return nil
	}
	return nil
}

func otherScope(scope Scope) Scope {
	if scope == ScopePersistent {
		return ScopeSession
	}
	return ScopePersistent
}

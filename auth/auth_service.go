// Package auth implements the login, registration, SSO and logout flows and
// the page guard on top of the API client and the session coordinator.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-telemed-client/client"
	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/jrsteele09/go-telemed-client/internal/utils"
	"github.com/jrsteele09/go-telemed-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LoginEndpoint    = "/auth/login"
	RegisterEndpoint = "/auth/register"
	LogoutEndpoint   = "/auth/logout"

	defaultLoginPage = "index.html"
)

// APIClient is the request dispatcher as seen by the auth flows.
type APIClient interface {
	RequestInto(ctx context.Context, endpoint string, opts client.RequestOptions, out any) error
}

// CredentialStore is the credential store as seen by the auth flows.
type CredentialStore interface {
	SetCredentials(ctx context.Context, token string, identity credentials.Identity, scope credentials.Scope) error
	IsAuthenticated(area credentials.Area) bool
	Token() string
}

// ResponseCache is the response cache as seen by the auth flows.
type ResponseCache interface {
	Clear(ctx context.Context)
}

// SessionControl is the expiry coordinator as seen by the auth flows.
type SessionControl interface {
	Reset()
	Logout(ctx context.Context) error
}

// MonitorControl is the session monitor as seen by the auth flows.
type MonitorControl interface {
	Start(ctx context.Context) *session.Handle
	CheckNow(ctx context.Context) error
}

// Deps holds all dependencies for the Service
type Deps struct {
	Client      APIClient
	Credentials CredentialStore
	Cache       ResponseCache
	Session     SessionControl
	Monitor     MonitorControl
	Navigator   session.Navigator
}

// LoginResponse is the data of a successful login.
type LoginResponse struct {
	Token string               `json:"token"`
	User  credentials.Identity `json:"user"`
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	Password        string               `json:"password"`
	ConfirmPassword string               `json:"-"`
	UserType        credentials.UserType `json:"user_type"`
}

type Service struct {
	deps      Deps
	validator *Validator
	sso       *SSO
	loginPage string
	logger    zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithLoginPage(page string) ServiceOption {
	return func(s *Service) {
		s.loginPage = page
	}
}

// WithSSO enables the single sign-on flow.
func WithSSO(sso *SSO) ServiceOption {
	return func(s *Service) {
		s.sso = sso
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Client == nil {
		return nil, errors.New("[NewService] Client is required")
	}
	if deps.Credentials == nil {
		return nil, errors.New("[NewService] Credentials is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("[NewService] Cache is required")
	}
	if deps.Session == nil {
		return nil, errors.New("[NewService] Session is required")
	}
	if deps.Monitor == nil {
		return nil, errors.New("[NewService] Monitor is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewService] Navigator is required")
	}

	s := &Service{
		deps:      deps,
		validator: NewValidator(),
		loginPage: defaultLoginPage,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login authenticates with email and password. remember selects persistent
// storage of the credential. Backend rejections are *client.APIError.
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (credentials.Identity, error) {
	email = strings.TrimSpace(email)
	if err := s.validator.ValidateLogin(email, password); err != nil {
		return credentials.Identity{}, err
	}

	var resp LoginResponse
	err := s.deps.Client.RequestInto(ctx, LoginEndpoint, client.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return credentials.Identity{}, err
	}
	if resp.Token == "" {
		return credentials.Identity{}, MissingTokenErr
	}
	resp.User.Email = utils.FirstNonEmpty(resp.User.Email, email)

	if err := s.establish(ctx, resp.Token, resp.User, remember); err != nil {
		return credentials.Identity{}, err
	}
	s.logger.Info().Str("user_id", resp.User.UserID).Str("user_type", string(resp.User.UserType)).Bool("remember", remember).Msg("Logged in")
	return resp.User, nil
}

// Register creates an account. It does not log the user in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (credentials.Identity, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.ValidateRegistration(req); err != nil {
		return credentials.Identity{}, err
	}
	var user credentials.Identity
	err := s.deps.Client.RequestInto(ctx, RegisterEndpoint, client.RequestOptions{
		Method: http.MethodPost,
		Body:   req,
	}, &user)
	return user, err
}

// establish stores the credential and starts a fresh monitored session.
// Cached responses belong to whoever was logged in before and are dropped,
// along with any still in flight.
func (s *Service) establish(ctx context.Context, token string, identity credentials.Identity, remember bool) error {
	scope := credentials.ScopeSession
	if remember {
		scope = credentials.ScopePersistent
	}
	s.deps.Cache.Clear(ctx)
	if err := s.deps.Credentials.SetCredentials(ctx, token, identity, scope); err != nil {
		return errors.Wrap(err, "[Login] storing credentials")
	}
	s.deps.Session.Reset()
	s.deps.Monitor.Start(context.WithoutCancel(ctx))
	return nil
}

// Logout tells the backend (best effort) and clears all local session state.
func (s *Service) Logout(ctx context.Context) error {
	if s.deps.Credentials.Token() != "" {
		err := s.deps.Client.RequestInto(ctx, LogoutEndpoint, client.RequestOptions{Method: http.MethodPost}, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Backend logout failed, clearing local session anyway")
		}
	}
	return s.deps.Session.Logout(ctx)
}

// Guard is called when a page of area opens. An unauthenticated user is sent
// to the login page and NotAuthorisedErr returned. Otherwise the session is
// checked: an expired session returns the session-expired error (the
// redirect is already under way), an inconclusive check lets the page open.
func (s *Service) Guard(ctx context.Context, area credentials.Area) error {
	if !s.deps.Credentials.IsAuthenticated(area) {
		target := session.RedirectTarget(s.deps.Navigator.CurrentPage(), s.loginPage)
		s.deps.Navigator.Redirect(target)
		return NotAuthorisedErr
	}

	s.deps.Monitor.Start(context.WithoutCancel(ctx))
	err := s.deps.Monitor.CheckNow(ctx)
	if client.IsSessionExpired(err) {
		return err
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Session check inconclusive, opening page")
	}
	return nil
}

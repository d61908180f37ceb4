package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-telemed-client/locale"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SourceMonitor = "monitor"

	defaultRedirectDelay = 2 * time.Second
	defaultLoginPage     = "index.html"
)

// CredentialClearer is the credential store as seen by the coordinator.
type CredentialClearer interface {
	Clear(ctx context.Context) error
}

// CacheClearer is the response cache as seen by the coordinator.
type CacheClearer interface {
	Clear(ctx context.Context)
}

// Messages resolves localized notification text.
type Messages interface {
	Text(key string) string
}

// Stopper is the part of the monitor the coordinator drives.
type Stopper interface {
	Stop()
}

// ExpiryObserver records detected expiries.
type ExpiryObserver interface {
	IncrementSessionExpired(source string)
}

// Deps holds the collaborators a Coordinator cannot work without.
type Deps struct {
	Credentials CredentialClearer
	Cache       CacheClearer
	Navigator   Navigator
	Notifier    Notifier
	Messages    Messages
}

// Coordinator makes sure that whichever component first sees the session end,
// the user gets exactly one notification and one redirect.
type Coordinator struct {
	deps          Deps
	state         *StateMachine
	redirectDelay time.Duration
	loginPage     string
	afterFunc     func(d time.Duration, f func())
	observer      ExpiryObserver
	logger        zerolog.Logger

	mu      sync.Mutex
	monitor Stopper
	warned  bool // Unverified warning shown since the last successful check
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRedirectDelay sets how long the expiry notification is shown before redirecting.
func WithRedirectDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.redirectDelay = d
	}
}

func WithLoginPage(page string) CoordinatorOption {
	return func(c *Coordinator) {
		c.loginPage = page
	}
}

// WithAfterFunc replaces time.AfterFunc (primarily for testing)
func WithAfterFunc(afterFunc func(d time.Duration, f func())) CoordinatorOption {
	return func(c *Coordinator) {
		c.afterFunc = afterFunc
	}
}

func WithExpiryObserver(o ExpiryObserver) CoordinatorOption {
	return func(c *Coordinator) {
		c.observer = o
	}
}

func WithCoordinatorLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(deps Deps, options ...CoordinatorOption) (*Coordinator, error) {
	if deps.Credentials == nil {
		return nil, errors.New("[NewCoordinator] Credentials is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("[NewCoordinator] Cache is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewCoordinator] Navigator is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("[NewCoordinator] Notifier is required")
	}
	if deps.Messages == nil {
		deps.Messages = locale.New(locale.English.String())
	}

	c := &Coordinator{
		deps:          deps,
		state:         NewStateMachine(),
		redirectDelay: defaultRedirectDelay,
		loginPage:     defaultLoginPage,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Attach sets the monitor stopped on expiry and logout.
func (c *Coordinator) Attach(monitor Stopper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitor = monitor
}

func (c *Coordinator) State() State {
	return c.state.Current()
}

// Reset starts a fresh session. Call after every successful login.
func (c *Coordinator) Reset() {
	c.state.Reset()
	c.mu.Lock()
	c.warned = false
	c.mu.Unlock()
}

func (c *Coordinator) MarkValid() {
	if c.state.MarkValid() {
		c.mu.Lock()
		c.warned = false
		c.mu.Unlock()
	}
}

// MarkUnverified is called when the monitor could not confirm the session for
// too long. The user is warned once; nothing is cleared.
func (c *Coordinator) MarkUnverified() {
	c.state.MarkUnverified()

	c.mu.Lock()
	alreadyWarned := c.warned
	c.warned = true
	c.mu.Unlock()
	if alreadyWarned || c.state.Current().Status == StatusInvalid {
		return
	}

	c.logger.Warn().Msg("Session could not be verified")
	c.deps.Notifier.Notify(NotifyWarning, c.deps.Messages.Text(locale.MsgSessionUnverified))
}

// HandleExpired ends the session. Every call clears state; only the first
// since login notifies and redirects.
func (c *Coordinator) HandleExpired(ctx context.Context, source string) {
	first := c.state.Expire()
	c.clearState(ctx)

	if !first {
		c.logger.Debug().Str("source", source).Msg("Session expiry already handled")
		return
	}

	c.logger.Warn().Str("source", source).Msg("Session expired, logging out")
	if c.observer != nil {
		c.observer.IncrementSessionExpired(source)
	}
	c.deps.Notifier.Notify(NotifySessionExpired, c.deps.Messages.Text(locale.MsgSessionExpired))

	target := RedirectTarget(c.deps.Navigator.CurrentPage(), c.loginPage)
	c.afterFunc(c.redirectDelay, func() {
		// A new login during the delay cancels the redirect
		if c.state.Current().Status != StatusInvalid {
			return
		}
		c.deps.Navigator.Redirect(target)
	})
}

// Logout is a user-initiated logout: state is cleared and the user is sent to
// the login page immediately, without an expiry notification. 401s still in
// flight are handled silently.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.state.Expire()
	err := c.clearState(ctx)
	c.logger.Info().Msg("Logged out")
	c.deps.Navigator.Redirect(RedirectTarget(c.deps.Navigator.CurrentPage(), c.loginPage))
	return err
}

func (c *Coordinator) clearState(ctx context.Context) error {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	if monitor != nil {
		monitor.Stop()
	}

	err := c.deps.Credentials.Clear(ctx)
	if err != nil {
		c.logger.Err(err).Msg("Clearing credentials failed")
	}
	c.deps.Cache.Clear(ctx)
	return err
}

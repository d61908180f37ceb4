// Package app constructs the client-side services once per application
// session and wires them together.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-telemed-client/auth"
	"github.com/jrsteele09/go-telemed-client/cache"
	"github.com/jrsteele09/go-telemed-client/cache/redisstore"
	"github.com/jrsteele09/go-telemed-client/client"
	"github.com/jrsteele09/go-telemed-client/config"
	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/jrsteele09/go-telemed-client/credentials/redisrepo"
	"github.com/jrsteele09/go-telemed-client/credentials/repofake"
	"github.com/jrsteele09/go-telemed-client/credentials/sqliterepo"
	"github.com/jrsteele09/go-telemed-client/endpoints"
	"github.com/jrsteele09/go-telemed-client/locale"
	"github.com/jrsteele09/go-telemed-client/metrics"
	"github.com/jrsteele09/go-telemed-client/session"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Options overrides the defaults New derives from configuration.
type Options struct {
	Navigator      session.Navigator  // Defaults to a PageTracker on the login page
	Notifier       session.Notifier   // Defaults to a LogNotifier
	Registerer     prometheus.Registerer
	Logger         *zerolog.Logger
	HTTPClient     *http.Client
	PersistentRepo credentials.Repo // Overrides the configured persistent storage
	CacheStore     cache.Store      // Overrides the configured cache storage
	AfterFunc      func(d time.Duration, f func())
	SSO            *auth.SSO
}

// App holds the single instance of every service for one application session.
type App struct {
	Config      config.Config
	Logger      zerolog.Logger
	Locale      *locale.Locale
	Navigator   session.Navigator
	Credentials *credentials.Store
	Cache       *cache.Cache
	Endpoints   *endpoints.Table
	Metrics     *metrics.Metrics
	Client      *client.Client
	Coordinator *session.Coordinator
	Monitor     *session.Monitor
	Auth        *auth.Service

	cancel  context.CancelFunc
	closers []func() error
}

// New builds the services described by cfg.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log.Logger}
	if opts.Logger != nil {
		a.Logger = *opts.Logger
	}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config

	a.Locale = locale.New(cfg.GetDefaultLanguage())
	a.Endpoints = endpoints.NewTable(cfg.GetCacheablePrefixes())

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	a.Metrics = metrics.New(registerer)

	a.Navigator = opts.Navigator
	if a.Navigator == nil {
		a.Navigator = session.NewPageTracker(cfg.GetLoginPage())
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = session.NewLogNotifier(a.Logger)
	}

	var rdb *redis.Client
	if cfg.GetRedisURL() != "" {
		redisOpts, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			return pkgerrors.Wrap(err, "[app.New] invalid TELEMED_REDIS_URL")
		}
		rdb = redis.NewClient(redisOpts)
		a.closers = append(a.closers, rdb.Close)
	}

	persistent, err := a.persistentRepo(ctx, opts, rdb)
	if err != nil {
		return err
	}
	a.Credentials, err = credentials.NewStore(repofake.NewFakeCredentialsRepo(), persistent, credentials.WithLogger(a.Logger))
	if err != nil {
		return err
	}

	store := opts.CacheStore
	if store == nil {
		if rdb != nil {
			store = redisstore.New(rdb, cfg.GetDeviceID(), cfg.GetCacheTTL())
		} else {
			store = cache.NewMemoryStore(cfg.GetCacheMaxEntries())
		}
	}
	a.Cache = cache.New(store,
		cache.WithTTL(cfg.GetCacheTTL()),
		cache.WithLogger(a.Logger),
		cache.WithObserver(a.Metrics),
	)

	coordinatorOpts := []session.CoordinatorOption{
		session.WithRedirectDelay(cfg.GetRedirectDelay()),
		session.WithLoginPage(cfg.GetLoginPage()),
		session.WithExpiryObserver(a.Metrics),
		session.WithCoordinatorLogger(a.Logger),
	}
	if opts.AfterFunc != nil {
		coordinatorOpts = append(coordinatorOpts, session.WithAfterFunc(opts.AfterFunc))
	}
	a.Coordinator, err = session.NewCoordinator(session.Deps{
		Credentials: a.Credentials,
		Cache:       a.Cache,
		Navigator:   a.Navigator,
		Notifier:    notifier,
		Messages:    a.Locale,
	}, coordinatorOpts...)
	if err != nil {
		return err
	}

	clientOpts := []client.Option{
		client.WithTimeout(cfg.GetRequestTimeout()),
		client.WithExpiryHandler(a.Coordinator),
		client.WithPageContext(a.Navigator),
		client.WithObserver(a.Metrics),
		client.WithLogger(a.Logger),
		client.WithSlowRequestThreshold(cfg.GetSlowRequestThreshold()),
		client.WithLoginPage(cfg.GetLoginPage()),
	}
	if opts.HTTPClient != nil {
		clientOpts = append([]client.Option{client.WithHTTPClient(opts.HTTPClient)}, clientOpts...)
	}
	if cfg.GetRateLimit() > 0 {
		burst := cfg.GetRateBurst()
		if burst < 1 {
			burst = 1
		}
		clientOpts = append(clientOpts, client.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.GetRateLimit()), burst)))
	}
	a.Client, err = client.NewClient(cfg.GetBaseURL(), client.Deps{
		Credentials: a.Credentials,
		Cache:       a.Cache,
		Endpoints:   a.Endpoints,
		Language:    a.Locale,
	}, clientOpts...)
	if err != nil {
		return err
	}

	a.Monitor, err = session.NewMonitor(a.Client, a.Credentials, a.Coordinator,
		session.WithInterval(cfg.GetMonitorInterval()),
		session.WithCooldown(cfg.GetMonitorCooldown()),
		session.WithInconclusivePolicy(cfg.GetInconclusiveBackoff(), cfg.GetMaxInconclusiveChecks()),
		session.WithBypass(cfg.IsSessionEnforcementBypassed()),
		session.WithCheckObserver(a.Metrics),
		session.WithMonitorLogger(a.Logger),
	)
	if err != nil {
		return err
	}
	a.Coordinator.Attach(a.Monitor)

	sso := opts.SSO
	if sso == nil && cfg.GetSSOIssuer() != "" {
		sso, err = auth.NewSSO(ctx, cfg.GetSSOIssuer(), cfg.GetSSOClientID(), cfg.GetSSOClientSecret(), cfg.GetSSORedirectURL())
		if err != nil {
			return err
		}
	}
	authOpts := []auth.ServiceOption{auth.WithLoginPage(cfg.GetLoginPage()), auth.WithLogger(a.Logger)}
	if sso != nil {
		authOpts = append(authOpts, auth.WithSSO(sso))
	}
	a.Auth, err = auth.NewService(auth.Deps{
		Client:      a.Client,
		Credentials: a.Credentials,
		Cache:       a.Cache,
		Session:     a.Coordinator,
		Monitor:     a.Monitor,
		Navigator:   a.Navigator,
	}, authOpts...)
	return err
}

func (a *App) persistentRepo(ctx context.Context, opts Options, rdb *redis.Client) (credentials.Repo, error) {
	switch {
	case opts.PersistentRepo != nil:
		return opts.PersistentRepo, nil
	case rdb != nil:
		return redisrepo.New(rdb, a.Config.GetDeviceID()), nil
	case a.Config.GetCredentialsDBPath() != "":
		repo, err := sqliterepo.Open(ctx, a.Config.GetCredentialsDBPath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	}
	a.Logger.Warn().Msg("No persistent credential storage configured, remember me lasts until exit")
	return repofake.NewFakeCredentialsRepo(), nil
}

// Start restores a remembered login and, if there is one, starts the
// session monitor and the cache janitor. Close stops both.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if err := a.Credentials.Restore(ctx); err != nil {
		return err
	}
	if ttl := a.Config.GetCacheTTL(); ttl > 0 {
		a.Cache.StartCleanup(ctx, ttl)
	}
	if a.Credentials.IsAuthenticated(credentials.AreaPublic) {
		a.Monitor.Start(ctx)
		a.Logger.Info().Msg("Restored previous session")
	}
	return nil
}

// Close stops background work and releases storage connections.
func (a *App) Close() error {
	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	a.closers = nil
	return errors.Join(errList...)
}

// Package client is the single choke point for calls to the telemedicine REST
// backend. It attaches credentials, serves and invalidates the response cache,
// and separates an expired session from logical and connectivity failures.
package client

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-telemed-client/cache"
	"github.com/jrsteele09/go-telemed-client/endpoints"
	errs "github.com/jrsteele09/go-telemed-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultSlowThreshold = 2 * time.Second
	defaultLanguage      = "en"
)

// TokenSource supplies the bearer token for each request (nil when logged out).
type TokenSource interface {
	OAuth2Token() *oauth2.Token
}

// LanguageSource supplies the active display language code.
type LanguageSource interface {
	Code() string
}

// PageContext reports the page the user is on.
type PageContext interface {
	CurrentPage() string
}

// ExpiryHandler is told about every authoritative session expiry.
type ExpiryHandler interface {
	HandleExpired(ctx context.Context, source string)
}

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method string, status int, start time.Time)
}

// Deps holds the collaborators a Client cannot work without.
type Deps struct {
	Credentials TokenSource
	Cache       *cache.Cache
	Endpoints   *endpoints.Table
	Language    LanguageSource // Optional, defaults to English
}

type Client struct {
	baseURL       string
	deps          Deps
	httpClient    *http.Client
	expiry        ExpiryHandler
	page          PageContext
	limiter       *rate.Limiter
	observer      RequestObserver
	logger        zerolog.Logger
	slowThreshold time.Duration
	loginPage     string
	lastStamp     atomic.Int64
	nowTime       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sends requests through hc. Redirect following is always
// disabled so a redirect to the login page can be detected.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.httpClient = &cp
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithExpiryHandler(h ExpiryHandler) Option {
	return func(c *Client) {
		c.expiry = h
	}
}

func WithPageContext(p PageContext) Option {
	return func(c *Client) {
		c.page = p
	}
}

// WithRateLimiter makes every network request wait for the limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSlowRequestThreshold sets the duration past which a request is logged at warn level.
func WithSlowRequestThreshold(d time.Duration) Option {
	return func(c *Client) {
		c.slowThreshold = d
	}
}

// WithLoginPage sets the login entry point used to recognise redirects to login.
func WithLoginPage(page string) Option {
	return func(c *Client) {
		c.loginPage = page
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, deps Deps, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.Wrap(errs.ErrMissingBaseURL, "[NewClient]")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "[NewClient] invalid baseURL")
	}
	if deps.Credentials == nil {
		return nil, errors.New("[NewClient] Credentials is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("[NewClient] Cache is required")
	}
	if deps.Endpoints == nil {
		return nil, errors.New("[NewClient] Endpoints is required")
	}

	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		deps:          deps,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		logger:        log.Logger,
		slowThreshold: defaultSlowThreshold,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c, nil
}

func (c *Client) language() string {
	if c.deps.Language == nil {
		return defaultLanguage
	}
	if code := c.deps.Language.Code(); code != "" {
		return code
	}
	return defaultLanguage
}

func (c *Client) currentPage() string {
	if c.page == nil {
		return ""
	}
	return c.page.CurrentPage()
}

// requestStamp returns a strictly increasing unix-millisecond timestamp.
func (c *Client) requestStamp() int64 {
	for {
		last := c.lastStamp.Load()
		next := c.nowTime().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if c.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

// isLoginRedirect reports whether a Location header points at a login page.
func (c *Client) isLoginRedirect(location string) bool {
	if location == "" {
		return false
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	if strings.Contains(p, "login") {
		return true
	}
	return c.loginPage != "" && path.Base(p) == strings.ToLower(path.Base(c.loginPage))
}

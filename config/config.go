package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	APIConfig
	CacheConfig
	MonitorConfig
	StorageConfig
	SSOConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsSessionEnforcementBypassed() bool
}

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetSlowRequestThreshold() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
	GetDefaultLanguage() string
}

type CacheConfig interface {
	GetCacheablePrefixes() []string
	GetCacheTTL() time.Duration
	GetCacheMaxEntries() int
}

type MonitorConfig interface {
	GetMonitorInterval() time.Duration
	GetMonitorCooldown() time.Duration
	GetMaxInconclusiveChecks() int
	GetInconclusiveBackoff() time.Duration
	GetRedirectDelay() time.Duration
	GetLoginPage() string
}

type StorageConfig interface {
	GetCredentialsDBPath() string
	GetRedisURL() string
	GetDeviceID() string
}

type SSOConfig interface {
	GetSSOIssuer() string
	GetSSOClientID() string
	GetSSOClientSecret() string
	GetSSORedirectURL() string
}

// DefaultCacheablePrefixes are the GET endpoints whose responses are stable
// enough to serve from the response cache.
var DefaultCacheablePrefixes = []string{
	"/users/doctors",
	"/doctors",
	"/specialties",
	"/ehr",
	"/medical-history",
	"/prescriptions",
	"/user-settings",
}

// Settings is the concrete configuration. Field tags match the environment
// variable names read by Load.
type Settings struct {
	AppName               string        `mapstructure:"TELEMED_APP_NAME"`
	Env                   string        `mapstructure:"TELEMED_ENV"`
	LogLevel              string        `mapstructure:"TELEMED_LOG_LEVEL"`
	BaseURL               string        `mapstructure:"TELEMED_BASE_URL"`
	RequestTimeout        time.Duration `mapstructure:"TELEMED_REQUEST_TIMEOUT"`
	SlowRequestThreshold  time.Duration `mapstructure:"TELEMED_SLOW_REQUEST_THRESHOLD"`
	RateLimit             float64       `mapstructure:"TELEMED_RATE_LIMIT"`
	RateBurst             int           `mapstructure:"TELEMED_RATE_BURST"`
	DefaultLanguage       string        `mapstructure:"TELEMED_DEFAULT_LANGUAGE"`
	CacheablePrefixes     []string      `mapstructure:"TELEMED_CACHEABLE_PREFIXES"`
	CacheTTL              time.Duration `mapstructure:"TELEMED_CACHE_TTL"`
	CacheMaxEntries       int           `mapstructure:"TELEMED_CACHE_MAX_ENTRIES"`
	MonitorInterval       time.Duration `mapstructure:"TELEMED_MONITOR_INTERVAL"`
	MonitorCooldown       time.Duration `mapstructure:"TELEMED_MONITOR_COOLDOWN"`
	MaxInconclusiveChecks int           `mapstructure:"TELEMED_MAX_INCONCLUSIVE_CHECKS"`
	InconclusiveBackoff   time.Duration `mapstructure:"TELEMED_INCONCLUSIVE_BACKOFF"`
	RedirectDelay         time.Duration `mapstructure:"TELEMED_REDIRECT_DELAY"`
	LoginPage             string        `mapstructure:"TELEMED_LOGIN_PAGE"`
	CredentialsDBPath     string        `mapstructure:"TELEMED_CREDENTIALS_DB"`
	RedisURL              string        `mapstructure:"TELEMED_REDIS_URL"`
	DeviceID              string        `mapstructure:"TELEMED_DEVICE_ID"`
	SSOIssuer             string        `mapstructure:"TELEMED_SSO_ISSUER"`
	SSOClientID           string        `mapstructure:"TELEMED_SSO_CLIENT_ID"`
	SSOClientSecret       string        `mapstructure:"TELEMED_SSO_CLIENT_SECRET"`
	SSORedirectURL        string        `mapstructure:"TELEMED_SSO_REDIRECT_URL"`
}

var _ Config = (*Settings)(nil)

// Default returns the built-in settings without consulting the environment.
func Default() *Settings {
	return &Settings{
		AppName:               "Telemed Client",
		Env:                   "DEV",
		LogLevel:              "info",
		BaseURL:               "http://localhost:8000/api",
		RequestTimeout:        30 * time.Second,
		SlowRequestThreshold:  2 * time.Second,
		DefaultLanguage:       "en",
		CacheablePrefixes:     append([]string(nil), DefaultCacheablePrefixes...),
		CacheTTL:              10 * time.Minute,
		CacheMaxEntries:       256,
		MonitorInterval:       15 * time.Minute,
		MonitorCooldown:       5 * time.Minute,
		MaxInconclusiveChecks: 4,
		InconclusiveBackoff:   30 * time.Second,
		RedirectDelay:         2 * time.Second,
		LoginPage:             "index.html",
	}
}

// Validate checks the settings are usable.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return errors.New("[Validate] TELEMED_BASE_URL is required")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return errors.Wrap(err, "[Validate] TELEMED_BASE_URL is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("[Validate] TELEMED_BASE_URL must be http or https, got %q", u.Scheme)
	}
	if s.MonitorCooldown > s.MonitorInterval {
		return errors.Errorf("[Validate] monitor cooldown %s exceeds interval %s", s.MonitorCooldown, s.MonitorInterval)
	}
	if s.SSOIssuer != "" && s.SSOClientID == "" {
		return errors.New("[Validate] TELEMED_SSO_CLIENT_ID is required when TELEMED_SSO_ISSUER is set")
	}
	if s.CacheMaxEntries < 0 {
		return errors.New("[Validate] TELEMED_CACHE_MAX_ENTRIES must not be negative")
	}
	return nil
}

func (s *Settings) GetAppName() string  { return s.AppName }
func (s *Settings) GetEnv() string      { return s.Env }
func (s *Settings) GetLogLevel() string { return s.LogLevel }

// IsSessionEnforcementBypassed reports whether the environment is a
// development or test mode that skips background session checks.
func (s *Settings) IsSessionEnforcementBypassed() bool {
	switch strings.ToLower(s.Env) {
	case "dev-bypass", "test":
		return true
	}
	return false
}

func (s *Settings) GetBaseURL() string                     { return strings.TrimRight(s.BaseURL, "/") }
func (s *Settings) GetRequestTimeout() time.Duration       { return s.RequestTimeout }
func (s *Settings) GetSlowRequestThreshold() time.Duration { return s.SlowRequestThreshold }
func (s *Settings) GetRateLimit() float64                  { return s.RateLimit }
func (s *Settings) GetRateBurst() int                      { return s.RateBurst }
func (s *Settings) GetDefaultLanguage() string             { return s.DefaultLanguage }

func (s *Settings) GetCacheablePrefixes() []string { return s.CacheablePrefixes }
func (s *Settings) GetCacheTTL() time.Duration     { return s.CacheTTL }
func (s *Settings) GetCacheMaxEntries() int        { return s.CacheMaxEntries }

func (s *Settings) GetMonitorInterval() time.Duration     { return s.MonitorInterval }
func (s *Settings) GetMonitorCooldown() time.Duration     { return s.MonitorCooldown }
func (s *Settings) GetMaxInconclusiveChecks() int         { return s.MaxInconclusiveChecks }
func (s *Settings) GetInconclusiveBackoff() time.Duration { return s.InconclusiveBackoff }
func (s *Settings) GetRedirectDelay() time.Duration       { return s.RedirectDelay }
func (s *Settings) GetLoginPage() string                  { return s.LoginPage }

func (s *Settings) GetCredentialsDBPath() string { return s.CredentialsDBPath }
func (s *Settings) GetRedisURL() string          { return s.RedisURL }
func (s *Settings) GetDeviceID() string          { return s.DeviceID }

func (s *Settings) GetSSOIssuer() string       { return s.SSOIssuer }
func (s *Settings) GetSSOClientID() string     { return s.SSOClientID }
func (s *Settings) GetSSOClientSecret() string { return s.SSOClientSecret }
func (s *Settings) GetSSORedirectURL() string  { return s.SSORedirectURL }

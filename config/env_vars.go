package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var envKeys = []string{
	"TELEMED_APP_NAME",
	"TELEMED_ENV",
	"TELEMED_LOG_LEVEL",
	"TELEMED_BASE_URL",
	"TELEMED_REQUEST_TIMEOUT",
	"TELEMED_SLOW_REQUEST_THRESHOLD",
	"TELEMED_RATE_LIMIT",
	"TELEMED_RATE_BURST",
	"TELEMED_DEFAULT_LANGUAGE",
	"TELEMED_CACHEABLE_PREFIXES",
	"TELEMED_CACHE_TTL",
	"TELEMED_CACHE_MAX_ENTRIES",
	"TELEMED_MONITOR_INTERVAL",
	"TELEMED_MONITOR_COOLDOWN",
	"TELEMED_MAX_INCONCLUSIVE_CHECKS",
	"TELEMED_INCONCLUSIVE_BACKOFF",
	"TELEMED_REDIRECT_DELAY",
	"TELEMED_LOGIN_PAGE",
	"TELEMED_CREDENTIALS_DB",
	"TELEMED_REDIS_URL",
	"TELEMED_DEVICE_ID",
	"TELEMED_SSO_ISSUER",
	"TELEMED_SSO_CLIENT_ID",
	"TELEMED_SSO_CLIENT_SECRET",
	"TELEMED_SSO_REDIRECT_URL",
}

// Load reads settings from the environment (and an optional config file),
// falling back to Default for anything unset.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("TELEMED_APP_NAME", d.AppName)
	v.SetDefault("TELEMED_ENV", d.Env)
	v.SetDefault("TELEMED_LOG_LEVEL", d.LogLevel)
	v.SetDefault("TELEMED_BASE_URL", d.BaseURL)
	v.SetDefault("TELEMED_REQUEST_TIMEOUT", d.RequestTimeout)
	v.SetDefault("TELEMED_SLOW_REQUEST_THRESHOLD", d.SlowRequestThreshold)
	v.SetDefault("TELEMED_RATE_LIMIT", d.RateLimit)
	v.SetDefault("TELEMED_RATE_BURST", d.RateBurst)
	v.SetDefault("TELEMED_DEFAULT_LANGUAGE", d.DefaultLanguage)
	v.SetDefault("TELEMED_CACHE_TTL", d.CacheTTL)
	v.SetDefault("TELEMED_CACHE_MAX_ENTRIES", d.CacheMaxEntries)
	v.SetDefault("TELEMED_MONITOR_INTERVAL", d.MonitorInterval)
	v.SetDefault("TELEMED_MONITOR_COOLDOWN", d.MonitorCooldown)
	v.SetDefault("TELEMED_MAX_INCONCLUSIVE_CHECKS", d.MaxInconclusiveChecks)
	v.SetDefault("TELEMED_INCONCLUSIVE_BACKOFF", d.InconclusiveBackoff)
	v.SetDefault("TELEMED_REDIRECT_DELAY", d.RedirectDelay)
	v.SetDefault("TELEMED_LOGIN_PAGE", d.LoginPage)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CacheablePrefixes = splitPrefixes(v.GetString("TELEMED_CACHEABLE_PREFIXES"))
	if len(cfg.CacheablePrefixes) == 0 {
		cfg.CacheablePrefixes = append([]string(nil), DefaultCacheablePrefixes...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitPrefixes(raw string) []string {
	var prefixes []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		prefixes = append(prefixes, p)
	}
	return prefixes
}

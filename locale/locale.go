// Package locale tracks the active display language. The language takes part
// in response cache keys because translated fields differ per language.
package locale

import (
	"sync"

	"golang.org/x/text/language"
)

var (
	English = language.English
	Arabic  = language.Arabic
)

// Supported lists the display languages in preference order.
var Supported = []language.Tag{English, Arabic}

var matcher = language.NewMatcher(Supported)

// Locale holds the active display language.
type Locale struct {
	mu      sync.RWMutex
	current language.Tag
}

// New returns a Locale set to the closest supported match of preferred.
func New(preferred string) *Locale {
	return &Locale{current: Match(preferred)}
}

// Match maps an arbitrary language string (an Accept-Language value, a stored
// preference, "ar-EG", ...) to a supported tag. Unknown input yields English.
func Match(preferred string) language.Tag {
	if preferred == "" {
		return English
	}
	tags, _, err := language.ParseAcceptLanguage(preferred)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return Supported[idx]
}

// Set switches the active language and returns the tag actually selected.
func (l *Locale) Set(preferred string) language.Tag {
	tag := Match(preferred)
	l.mu.Lock()
	l.current = tag
	l.mu.Unlock()
	return tag
}

func (l *Locale) Tag() language.Tag {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Code returns the base language code ("en", "ar") sent to the backend.
func (l *Locale) Code() string {
	base, _ := l.Tag().Base()
	return base.String()
}

// IsRTL reports whether the active language is written right to left.
func (l *Locale) IsRTL() bool {
	return l.Tag() == Arabic
}

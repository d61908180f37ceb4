package session

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Navigator is the host's page navigation.
type Navigator interface {
	CurrentPage() string
	Redirect(target string)
}

// NotificationKind selects how a notification is presented.
type NotificationKind string

const (
	NotifySessionExpired NotificationKind = "session-expired"
	NotifyWarning        NotificationKind = "warning"
	NotifyInfo           NotificationKind = "info"
)

// Notifier shows a transient user-facing banner.
type Notifier interface {
	Notify(kind NotificationKind, message string)
}

// PageTracker is a Navigator for hosts without a browser: it remembers the
// current page and records redirects.
type PageTracker struct {
	mu        sync.Mutex
	page      string
	redirects []string
	logger    zerolog.Logger
}

func NewPageTracker(page string) *PageTracker {
	return &PageTracker{page: page, logger: log.Logger}
}

func (p *PageTracker) SetPage(page string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
}

func (p *PageTracker) CurrentPage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

func (p *PageTracker) Redirect(target string) {
	p.mu.Lock()
	from := p.page
	p.redirects = append(p.redirects, target)
	p.mu.Unlock()
	p.logger.Info().Str("from", from).Str("target", target).Msg("Redirect")
}

// Redirects returns every redirect target in order.
func (p *PageTracker) Redirects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.redirects...)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(kind NotificationKind, message string) {
	event := n.logger.Info()
	if kind != NotifyInfo {
		event = n.logger.Warn()
	}
	event.Str("kind", string(kind)).Msg(message)
}

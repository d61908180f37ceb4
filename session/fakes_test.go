package session_test

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/jrsteele09/go-telemed-client/session"
)

type notification struct {
	kind    session.NotificationKind
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(kind session.NotificationKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: kind, message: message})
}

func (n *fakeNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fakeStopper struct {
	mu    sync.Mutex
	stops int
}

func (s *fakeStopper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeStopper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeCache struct {
	mu     sync.Mutex
	clears int
}

func (c *fakeCache) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// deferredTimers captures redirect callbacks so tests decide when they fire.
type deferredTimers struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (d *deferredTimers) afterFunc(delay time.Duration, f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, delay)
	d.pending = append(d.pending, f)
}

func (d *deferredTimers) fire() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

type checkerResponse struct {
	err error
}

// fakeChecker answers identity checks from a queue, repeating the last answer.
type fakeChecker struct {
	mu        sync.Mutex
	responses []checkerResponse
	calls     int
}

func (c *fakeChecker) CheckIdentity(context.Context) (credentials.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.responses) == 0 {
		return credentials.Identity{UserID: "p-1"}, nil
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return credentials.Identity{UserID: "p-1"}, resp.err
}

func (c *fakeChecker) respond(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = nil
	for _, err := range errs {
		c.responses = append(c.responses, checkerResponse{err: err})
	}
}

func (c *fakeChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeAuth struct {
	mu            sync.Mutex
	authenticated bool
	record        credentials.Record
}

func (a *fakeAuth) IsAuthenticated(credentials.Area) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

func (a *fakeAuth) Record() (credentials.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record, a.authenticated
}

func (a *fakeAuth) set(authenticated bool, expiresAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authenticated = authenticated
	a.record = credentials.Record{Token: "t", LoggedIn: authenticated, ExpiresAt: expiresAt}
}

type fakeReporter struct {
	mu         sync.Mutex
	expired    []string
	valid      int
	unverified int
	onExpired  func()
}

func (r *fakeReporter) HandleExpired(_ context.Context, source string) {
	r.mu.Lock()
	r.expired = append(r.expired, source)
	hook := r.onExpired
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *fakeReporter) MarkValid() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid++
}

func (r *fakeReporter) MarkUnverified() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unverified++
}

func (r *fakeReporter) snapshot() (expired []string, valid, unverified int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.expired...), r.valid, r.unverified
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-telemed-client/client"
	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultInterval        = 15 * time.Minute
	defaultCooldown        = 5 * time.Minute
	defaultBackoff         = 30 * time.Second
	defaultMaxInconclusive = 4
)

// IdentityChecker asks the backend whether the current token is still valid.
type IdentityChecker interface {
	CheckIdentity(ctx context.Context) (credentials.Identity, error)
}

// AuthState is the credential store as seen by the monitor.
type AuthState interface {
	IsAuthenticated(area credentials.Area) bool
	Record() (credentials.Record, bool)
}

// Reporter receives the monitor's conclusions. Implemented by Coordinator.
type Reporter interface {
	HandleExpired(ctx context.Context, source string)
	MarkValid()
	MarkUnverified()
}

// CheckObserver records check results.
type CheckObserver interface {
	IncrementMonitorCheck(result string)
}

type checkResult string

const (
	resultValid        checkResult = "valid"
	resultExpired      checkResult = "expired"
	resultInconclusive checkResult = "inconclusive"
	resultThrottled    checkResult = "throttled"
	resultStopped      checkResult = "stopped"
)

// Handle cancels the exact loop Start scheduled.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the loop. It does not wait for a running check to return.
func (h *Handle) Stop() {
	h.cancel()
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Monitor periodically confirms the session with the backend so a revoked
// session is noticed while the user is idle.
type Monitor struct {
	checker  IdentityChecker
	auth     AuthState
	reporter Reporter

	interval        time.Duration
	cooldown        time.Duration
	backoff         time.Duration
	maxInconclusive int
	bypass          bool
	observer        CheckObserver
	logger          zerolog.Logger
	nowTime         func() time.Time

	mu        sync.Mutex
	handle    *Handle
	lastCheck time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithCooldown skips ticks that come within d of the previous check.
func WithCooldown(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.cooldown = d
	}
}

// WithInconclusivePolicy sets the first retry delay after an inconclusive
// check and how many consecutive inconclusive checks are tolerated before the
// session is reported unverified.
func WithInconclusivePolicy(backoff time.Duration, maxChecks int) MonitorOption {
	return func(m *Monitor) {
		m.backoff = backoff
		m.maxInconclusive = maxChecks
	}
}

// WithBypass disables the monitor (development and test environments).
func WithBypass(bypass bool) MonitorOption {
	return func(m *Monitor) {
		m.bypass = bypass
	}
}

func WithCheckObserver(o CheckObserver) MonitorOption {
	return func(m *Monitor) {
		m.observer = o
	}
}

func WithMonitorLogger(logger zerolog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.nowTime = nowFunc
	}
}

func NewMonitor(checker IdentityChecker, auth AuthState, reporter Reporter, options ...MonitorOption) (*Monitor, error) {
	if checker == nil {
		return nil, errors.New("[NewMonitor] checker is required")
	}
	if auth == nil {
		return nil, errors.New("[NewMonitor] auth is required")
	}
	if reporter == nil {
		return nil, errors.New("[NewMonitor] reporter is required")
	}

	m := &Monitor{
		checker:         checker,
		auth:            auth,
		reporter:        reporter,
		interval:        defaultInterval,
		cooldown:        defaultCooldown,
		backoff:         defaultBackoff,
		maxInconclusive: defaultMaxInconclusive,
		logger:          log.Logger,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.interval <= 0 {
		return nil, errors.New("[NewMonitor] interval must be positive")
	}
	if m.maxInconclusive < 1 {
		m.maxInconclusive = 1
	}
	return m, nil
}

// Start schedules periodic checks and returns their handle. It returns nil
// when the monitor is bypassed or nobody is logged in, and the existing
// handle when already running.
func (m *Monitor) Start(ctx context.Context) *Handle {
	if m.bypass {
		m.logger.Debug().Msg("Session monitor bypassed")
		return nil
	}
	if !m.auth.IsAuthenticated(credentials.AreaPublic) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return m.handle
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	m.handle = h
	go m.run(runCtx, h)

	m.logger.Debug().Dur("interval", m.interval).Msg("Session monitor started")
	return h
}

// Stop cancels the running loop, if any. Safe to call repeatedly and from
// inside a check.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return
	}
	m.handle.cancel()
	m.handle = nil
	m.logger.Debug().Msg("Session monitor stopped")
}

// Running reports whether a loop is scheduled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// CheckNow performs an immediate check, as page navigation does. A later
// tick within the cooldown is skipped.
func (m *Monitor) CheckNow(ctx context.Context) error {
	if m.bypass {
		return nil
	}
	_, err := m.check(ctx)
	return err
}

func (m *Monitor) run(ctx context.Context, h *Handle) {
	defer func() {
		m.mu.Lock()
		if m.handle == h {
			m.handle = nil
		}
		m.mu.Unlock()
		close(h.done)
	}()

	failures := 0
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := m.interval
		switch m.tick(ctx) {
		case resultExpired, resultStopped:
			return
		case resultInconclusive:
			failures++
			if failures >= m.maxInconclusive {
				m.logger.Warn().Int("failures", failures).Msg("Session could not be verified, resuming normal interval")
				m.reporter.MarkUnverified()
				failures = 0
			} else {
				delay = m.retryDelay(failures)
			}
		default:
			failures = 0
		}
		timer.Reset(delay)
	}
}

// retryDelay doubles the backoff per consecutive failure, capped at the interval.
func (m *Monitor) retryDelay(failures int) time.Duration {
	delay := m.backoff
	for i := 1; i < failures && delay < m.interval; i++ {
		delay *= 2
	}
	if delay <= 0 || delay > m.interval {
		return m.interval
	}
	return delay
}

func (m *Monitor) tick(ctx context.Context) checkResult {
	if !m.auth.IsAuthenticated(credentials.AreaPublic) {
		return resultStopped
	}

	now := m.nowTime()
	m.mu.Lock()
	last := m.lastCheck
	m.mu.Unlock()

	record, _ := m.auth.Record()
	if m.cooldown > 0 && !last.IsZero() && now.Sub(last) < m.cooldown && !record.LocallyExpired(now) {
		m.observe(resultThrottled)
		return resultThrottled
	}

	result, _ := m.check(ctx)
	return result
}

func (m *Monitor) check(ctx context.Context) (checkResult, error) {
	m.mu.Lock()
	m.lastCheck = m.nowTime()
	m.mu.Unlock()

	_, err := m.checker.CheckIdentity(ctx)
	switch {
	case err == nil:
		m.reporter.MarkValid()
		m.observe(resultValid)
		return resultValid, nil
	case client.IsSessionExpired(err):
		m.reporter.HandleExpired(context.WithoutCancel(ctx), SourceMonitor)
		m.observe(resultExpired)
		return resultExpired, err
	case ctx.Err() != nil:
		return resultStopped, err
	default:
		m.logger.Warn().Err(err).Msg("Session check inconclusive")
		m.observe(resultInconclusive)
		return resultInconclusive, err
	}
}

func (m *Monitor) observe(result checkResult) {
	if m.observer != nil {
		m.observer.IncrementMonitorCheck(string(result))
	}
}

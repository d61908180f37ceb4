package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-telemed-client/client"
	"github.com/jrsteele09/go-telemed-client/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	errUnreachable = &client.ConnectivityError{Endpoint: client.IdentityEndpoint, Message: "request failed", Err: errors.New("connection refused")}
	errExpired     = &client.SessionExpiredError{Endpoint: client.IdentityEndpoint, Status: 401}
)

type monitorFixture struct {
	checker  *fakeChecker
	auth     *fakeAuth
	reporter *fakeReporter
	monitor  *session.Monitor
}

func setupMonitor(t *testing.T, options ...session.MonitorOption) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		checker:  &fakeChecker{},
		auth:     &fakeAuth{},
		reporter: &fakeReporter{},
	}
	f.auth.set(true, time.Time{})

	options = append([]session.MonitorOption{
		session.WithInterval(5 * time.Millisecond),
		session.WithCooldown(0),
		session.WithMonitorLogger(zerolog.Nop()),
	}, options...)

	var err error
	f.monitor, err = session.NewMonitor(f.checker, f.auth, f.reporter, options...)
	require.NoError(t, err)
	t.Cleanup(f.monitor.Stop)
	return f
}

func waitDone(t *testing.T, h *session.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor loop did not exit")
	}
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := session.NewMonitor(nil, &fakeAuth{}, &fakeReporter{})
	require.ErrorContains(t, err, "checker is required")
	_, err = session.NewMonitor(&fakeChecker{}, nil, &fakeReporter{})
	require.ErrorContains(t, err, "auth is required")
	_, err = session.NewMonitor(&fakeChecker{}, &fakeAuth{}, nil)
	require.ErrorContains(t, err, "reporter is required")
	_, err = session.NewMonitor(&fakeChecker{}, &fakeAuth{}, &fakeReporter{}, session.WithInterval(0))
	require.ErrorContains(t, err, "interval must be positive")
}

func TestMonitor_StartNoOps(t *testing.T) {
	ctx := context.Background()

	t.Run("bypassed environment", func(t *testing.T) {
		f := setupMonitor(t, session.WithBypass(true))
		require.Nil(t, f.monitor.Start(ctx))
		require.False(t, f.monitor.Running())
		require.NoError(t, f.monitor.CheckNow(ctx))
		require.Zero(t, f.checker.count())
	})

	t.Run("not logged in", func(t *testing.T) {
		f := setupMonitor(t)
		f.auth.set(false, time.Time{})
		require.Nil(t, f.monitor.Start(ctx))
		require.False(t, f.monitor.Running())
	})

	t.Run("already running", func(t *testing.T) {
		f := setupMonitor(t)
		h := f.monitor.Start(ctx)
		require.NotNil(t, h)
		require.Same(t, h, f.monitor.Start(ctx))
	})
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	f := setupMonitor(t, session.WithInterval(time.Hour))
	h := f.monitor.Start(context.Background())
	require.True(t, f.monitor.Running())

	f.monitor.Stop()
	f.monitor.Stop()
	waitDone(t, h)
	require.False(t, f.monitor.Running())
	require.Zero(t, f.checker.count())

	h2 := f.monitor.Start(context.Background())
	require.NotSame(t, h, h2, "a stopped monitor can be started again")
}

func TestMonitor_PeriodicChecks(t *testing.T) {
	f := setupMonitor(t)
	f.monitor.Start(context.Background())

	require.Eventually(t, func() bool {
		_, valid, _ := f.reporter.snapshot()
		return valid >= 3
	}, time.Second, time.Millisecond)
	expired, _, unverified := f.reporter.snapshot()
	require.Empty(t, expired)
	require.Zero(t, unverified)
}

func TestMonitor_ExpiryEndsLoop(t *testing.T) {
	f := setupMonitor(t)
	f.checker.respond(errExpired)
	// The coordinator stops the monitor from inside the check.
	f.reporter.onExpired = f.monitor.Stop

	h := f.monitor.Start(context.Background())
	waitDone(t, h)

	expired, valid, _ := f.reporter.snapshot()
	require.Equal(t, []string{session.SourceMonitor}, expired)
	require.Zero(t, valid)
	require.Equal(t, 1, f.checker.count())
}

func TestMonitor_LoggedOutEndsLoop(t *testing.T) {
	f := setupMonitor(t)
	h := f.monitor.Start(context.Background())
	f.auth.set(false, time.Time{})
	waitDone(t, h)
}

func TestMonitor_InconclusiveChecks(t *testing.T) {
	f := setupMonitor(t,
		session.WithInterval(20*time.Millisecond),
		session.WithInconclusivePolicy(time.Millisecond, 3),
	)
	f.checker.respond(errUnreachable)
	f.monitor.Start(context.Background())

	require.Eventually(t, func() bool {
		_, _, unverified := f.reporter.snapshot()
		return unverified >= 1
	}, time.Second, time.Millisecond)

	expired, valid, _ := f.reporter.snapshot()
	require.Empty(t, expired, "inconclusive checks never end the session")
	require.Zero(t, valid)
	require.GreaterOrEqual(t, f.checker.count(), 3)
	require.True(t, f.monitor.Running())

	t.Run("recovers after a successful check", func(t *testing.T) {
		f.checker.respond(nil)
		require.Eventually(t, func() bool {
			_, valid, _ := f.reporter.snapshot()
			return valid >= 1
		}, time.Second, time.Millisecond)
	})
}

func TestMonitor_Cooldown(t *testing.T) {
	ctx := context.Background()
	f := setupMonitor(t, session.WithCooldown(time.Hour))

	require.NoError(t, f.monitor.CheckNow(ctx))
	require.Equal(t, 1, f.checker.count())

	f.monitor.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 1, f.checker.count(), "ticks within the cooldown are skipped")

	t.Run("locally expired token is checked anyway", func(t *testing.T) {
		f.auth.set(true, time.Now().Add(-time.Minute))
		require.Eventually(t, func() bool { return f.checker.count() > 1 }, time.Second, time.Millisecond)
	})
}

func TestMonitor_CheckNowReturnsClassification(t *testing.T) {
	ctx := context.Background()
	f := setupMonitor(t)

	f.checker.respond(errUnreachable)
	err := f.monitor.CheckNow(ctx)
	require.True(t, client.IsConnectivity(err))

	f.checker.respond(errExpired)
	err = f.monitor.CheckNow(ctx)
	require.True(t, client.IsSessionExpired(err))
	expired, _, _ := f.reporter.snapshot()
	require.Equal(t, []string{session.SourceMonitor}, expired)
}

package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/jrsteele09/go-telemed-client/credentials/repofake"
	"github.com/jrsteele09/go-telemed-client/locale"
	"github.com/jrsteele09/go-telemed-client/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type coordinatorFixture struct {
	store       *credentials.Store
	persistent  *repofake.FakeCredentialsRepo
	cache       *fakeCache
	navigator   *session.PageTracker
	notifier    *fakeNotifier
	monitor     *fakeStopper
	timers      *deferredTimers
	locale      *locale.Locale
	coordinator *session.Coordinator
}

func setupCoordinator(t *testing.T, page string) *coordinatorFixture {
	t.Helper()
	ctx := context.Background()

	persistent := repofake.NewFakeCredentialsRepo()
	store, err := credentials.NewStore(repofake.NewFakeCredentialsRepo(), persistent)
	require.NoError(t, err)
	require.NoError(t, store.SetCredentials(ctx, "token-T", credentials.Identity{UserID: "p-1", UserType: credentials.UserTypePatient}, credentials.ScopePersistent))

	f := &coordinatorFixture{
		store:      store,
		persistent: persistent,
		cache:      &fakeCache{},
		navigator:  session.NewPageTracker(page),
		notifier:   &fakeNotifier{},
		monitor:    &fakeStopper{},
		timers:     &deferredTimers{},
		locale:     locale.New("en"),
	}
	f.coordinator, err = session.NewCoordinator(session.Deps{
		Credentials: store,
		Cache:       f.cache,
		Navigator:   f.navigator,
		Notifier:    f.notifier,
		Messages:    f.locale,
	},
		session.WithAfterFunc(f.timers.afterFunc),
		session.WithRedirectDelay(2*time.Second),
		session.WithCoordinatorLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	f.coordinator.Attach(f.monitor)
	return f
}

func TestNewCoordinator_Validation(t *testing.T) {
	store, err := credentials.NewStore(repofake.NewFakeCredentialsRepo(), repofake.NewFakeCredentialsRepo())
	require.NoError(t, err)
	full := session.Deps{Credentials: store, Cache: &fakeCache{}, Navigator: session.NewPageTracker(""), Notifier: &fakeNotifier{}}

	tests := []struct {
		name    string
		mutate  func(d *session.Deps)
		wantErr string
	}{
		{"credentials", func(d *session.Deps) { d.Credentials = nil }, "Credentials is required"},
		{"cache", func(d *session.Deps) { d.Cache = nil }, "Cache is required"},
		{"navigator", func(d *session.Deps) { d.Navigator = nil }, "Navigator is required"},
		{"notifier", func(d *session.Deps) { d.Notifier = nil }, "Notifier is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			_, err := session.NewCoordinator(deps)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err = session.NewCoordinator(full)
	require.NoError(t, err, "messages default to English")
}

func TestCoordinator_HandleExpired(t *testing.T) {
	ctx := context.Background()
	f := setupCoordinator(t, "patient/dashboard.html")

	f.coordinator.HandleExpired(ctx, "dispatcher")

	require.Equal(t, session.State{Status: session.StatusInvalid, Notified: true}, f.coordinator.State())
	require.Equal(t, 1, f.monitor.count())
	require.Empty(t, f.store.Token())
	_, err := f.persistent.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrNotFound)
	require.Equal(t, 1, f.cache.count())

	require.Equal(t, []notification{{kind: session.NotifySessionExpired, message: "Your session has expired. Please log in again."}}, f.notifier.notifications())

	require.Empty(t, f.navigator.Redirects(), "redirect waits for the notification delay")
	require.Equal(t, []time.Duration{2 * time.Second}, f.timers.delays)
	f.timers.fire()
	require.Equal(t, []string{"../index.html"}, f.navigator.Redirects())

	t.Run("later detections are silent", func(t *testing.T) {
		f.coordinator.HandleExpired(ctx, "monitor")
		f.timers.fire()
		require.Len(t, f.notifier.notifications(), 1)
		require.Len(t, f.navigator.Redirects(), 1)
		require.Equal(t, 2, f.cache.count(), "state is still cleared")
	})
}

func TestCoordinator_ConcurrentExpiriesNotifyOnce(t *testing.T) {
	ctx := context.Background()
	f := setupCoordinator(t, "doctor/patients/record.html")

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			f.coordinator.HandleExpired(ctx, "dispatcher")
			return nil
		})
	}
	require.NoError(t, g.Wait())
	f.timers.fire()

	require.Len(t, f.notifier.notifications(), 1)
	require.Equal(t, []string{"../../index.html"}, f.navigator.Redirects())
	require.Equal(t, 3, f.cache.count())
	require.Empty(t, f.store.Token())
}

func TestCoordinator_LocalizedNotification(t *testing.T) {
	f := setupCoordinator(t, "index.html")
	f.locale.Set("ar")

	f.coordinator.HandleExpired(context.Background(), "dispatcher")
	notes := f.notifier.notifications()
	require.Len(t, notes, 1)
	require.Equal(t, "انتهت صلاحية جلستك. يرجى تسجيل الدخول مرة أخرى.", notes[0].message)
}

func TestCoordinator_ResetRearmsLatch(t *testing.T) {
	ctx := context.Background()
	f := setupCoordinator(t, "patient/dashboard.html")

	f.coordinator.HandleExpired(ctx, "dispatcher")
	f.coordinator.Reset()
	require.Equal(t, session.State{Status: session.StatusUnknown}, f.coordinator.State())

	t.Run("pending redirect from the old session is dropped", func(t *testing.T) {
		f.timers.fire()
		require.Empty(t, f.navigator.Redirects())
	})

	f.coordinator.HandleExpired(ctx, "dispatcher")
	f.timers.fire()
	require.Len(t, f.notifier.notifications(), 2)
	require.Len(t, f.navigator.Redirects(), 1)
}

func TestCoordinator_Logout(t *testing.T) {
	ctx := context.Background()
	f := setupCoordinator(t, "patient/dashboard.html")

	require.NoError(t, f.coordinator.Logout(ctx))
	require.Empty(t, f.notifier.notifications())
	require.Equal(t, []string{"../index.html"}, f.navigator.Redirects(), "logout redirects immediately")
	require.Equal(t, 1, f.monitor.count())
	require.Empty(t, f.store.Token())

	f.coordinator.HandleExpired(ctx, "dispatcher")
	f.timers.fire()
	require.Empty(t, f.notifier.notifications(), "in-flight 401 after logout stays silent")
	require.Len(t, f.navigator.Redirects(), 1)

	t.Run("credential clear failure is returned", func(t *testing.T) {
		f.persistent.Fail = errors.New("disk full")
		require.Error(t, f.coordinator.Logout(ctx))
	})
}

func TestCoordinator_MarkUnverified(t *testing.T) {
	f := setupCoordinator(t, "index.html")

	f.coordinator.MarkValid()
	require.Equal(t, session.StatusValid, f.coordinator.State().Status)

	f.coordinator.MarkUnverified()
	f.coordinator.MarkUnverified()
	require.Equal(t, session.StatusUnknown, f.coordinator.State().Status)
	require.Equal(t, []notification{{kind: session.NotifyWarning, message: "We could not confirm your session. Check your connection."}}, f.notifier.notifications())
	require.NotEmpty(t, f.store.Token(), "an unverified session keeps its credentials")

	f.coordinator.MarkValid()
	f.coordinator.MarkUnverified()
	require.Len(t, f.notifier.notifications(), 2, "a successful check re-arms the warning")

	f.coordinator.HandleExpired(context.Background(), "dispatcher")
	f.coordinator.MarkValid()
	f.coordinator.MarkUnverified()
	require.Len(t, f.notifier.notifications(), 3, "only the expiry notification is added once invalid")
}

package credentials_test

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/jrsteele09/go-telemed-client/credentials/repofake"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

	patient = credentials.Identity{
		UserID:      "p-1",
		UserType:    credentials.UserTypePatient,
		DisplayName: "Omar Haddad",
		Email:       "omar@example.com",
	}
)

type storeFixture struct {
	sessionRepo    *repofake.FakeCredentialsRepo
	persistentRepo *repofake.FakeCredentialsRepo
	store          *credentials.Store
}

func setupStore(t *testing.T) *storeFixture {
	t.Helper()
	sr := repofake.NewFakeCredentialsRepo()
	pr := repofake.NewFakeCredentialsRepo()
	store, err := credentials.NewStore(sr, pr, credentials.WithNowTime(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return &storeFixture{sessionRepo: sr, persistentRepo: pr, store: store}
}

func signedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestNewStore_RequiresRepos(t *testing.T) {
	_, err := credentials.NewStore(nil, repofake.NewFakeCredentialsRepo())
	require.Error(t, err)
	require.Contains(t, err.Error(), "session repo is required")

	_, err = credentials.NewStore(repofake.NewFakeCredentialsRepo(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "persistent repo is required")
}

func TestStore_SetCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("session scope", func(t *testing.T) {
		f := setupStore(t)
		require.NoError(t, f.store.SetCredentials(ctx, "opaque-token", patient, credentials.ScopeSession))

		require.Equal(t, "opaque-token", f.store.Token())
		require.True(t, f.sessionRepo.Stored())
		require.False(t, f.persistentRepo.Stored())

		record, ok := f.store.Record()
		require.True(t, ok)
		require.True(t, record.LoggedIn)
		require.Equal(t, fixedNow, record.IssuedAt)
		require.True(t, record.ExpiresAt.IsZero())
	})

	t.Run("switching scope drops the old one", func(t *testing.T) {
		f := setupStore(t)
		require.NoError(t, f.store.SetCredentials(ctx, "first", patient, credentials.ScopeSession))
		require.NoError(t, f.store.SetCredentials(ctx, "second", patient, credentials.ScopePersistent))

		require.Equal(t, "second", f.store.Token())
		require.False(t, f.sessionRepo.Stored())
		require.True(t, f.persistentRepo.Stored())
	})

	t.Run("jwt claims fill expiry and missing identity fields", func(t *testing.T) {
		f := setupStore(t)
		exp := fixedNow.Add(time.Hour).Truncate(time.Second)
		token := signedToken(t, jwtlib.MapClaims{
			"sub":       "d-9",
			"email":     "doc@example.com",
			"user_type": "doctor",
			"exp":       exp.Unix(),
		})

		require.NoError(t, f.store.SetCredentials(ctx, token, credentials.Identity{DisplayName: "Dr. Lina"}, credentials.ScopeSession))

		record, _ := f.store.Record()
		require.True(t, exp.Equal(record.ExpiresAt))
		require.Equal(t, "d-9", record.Identity.UserID)
		require.Equal(t, credentials.UserTypeDoctor, record.Identity.UserType)
		require.Equal(t, "Dr. Lina", record.Identity.DisplayName)
		require.True(t, f.store.IsAuthenticated(credentials.AreaDoctor))
	})

	t.Run("rejects empty token and unknown scope", func(t *testing.T) {
		f := setupStore(t)
		require.Error(t, f.store.SetCredentials(ctx, " ", patient, credentials.ScopeSession))
		require.Error(t, f.store.SetCredentials(ctx, "tok", patient, credentials.Scope("cookie")))
		require.Empty(t, f.store.Token())
	})

	t.Run("repo failure leaves store untouched", func(t *testing.T) {
		f := setupStore(t)
		f.persistentRepo.Fail = errors.New("disk full")
		err := f.store.SetCredentials(ctx, "tok", patient, credentials.ScopePersistent)
		require.Error(t, err)
		require.Empty(t, f.store.Token())
	})
}

func TestStore_IsAuthenticated(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	require.False(t, f.store.IsAuthenticated(credentials.AreaPublic))

	require.NoError(t, f.store.SetCredentials(ctx, "tok", patient, credentials.ScopeSession))

	tests := []struct {
		area credentials.Area
		want bool
	}{
		{credentials.AreaPublic, true},
		{credentials.AreaPatient, true},
		{credentials.AreaDoctor, false},
		{credentials.AreaAdmin, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.area), func(t *testing.T) {
			require.Equal(t, tt.want, f.store.IsAuthenticated(tt.area))
		})
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)
	require.NoError(t, f.store.SetCredentials(ctx, "tok", patient, credentials.ScopePersistent))

	require.NoError(t, f.store.Clear(ctx))
	firstToken := f.store.Token()
	_, firstOK := f.store.Record()

	require.NoError(t, f.store.Clear(ctx))
	_, secondOK := f.store.Record()

	require.Empty(t, firstToken)
	require.Empty(t, f.store.Token())
	require.Equal(t, firstOK, secondOK)
	require.False(t, f.sessionRepo.Stored())
	require.False(t, f.persistentRepo.Stored())
	require.Nil(t, f.store.OAuth2Token())
	require.False(t, f.store.IsAuthenticated(credentials.AreaPublic))
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("persistent record wins", func(t *testing.T) {
		f := setupStore(t)
		require.NoError(t, f.sessionRepo.Save(ctx, credentials.Record{Token: "session", LoggedIn: true}))
		require.NoError(t, f.persistentRepo.Save(ctx, credentials.Record{Token: "remembered", LoggedIn: true}))

		require.NoError(t, f.store.Restore(ctx))
		record, ok := f.store.Record()
		require.True(t, ok)
		require.Equal(t, "remembered", record.Token)
		require.Equal(t, credentials.ScopePersistent, record.Scope)
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := setupStore(t)
		require.NoError(t, f.store.Restore(ctx))
		_, ok := f.store.Record()
		require.False(t, ok)
	})

	t.Run("repo failure is reported", func(t *testing.T) {
		f := setupStore(t)
		f.persistentRepo.Fail = errors.New("locked")
		require.Error(t, f.store.Restore(ctx))
	})
}

func TestStore_OAuth2Token(t *testing.T) {
	f := setupStore(t)
	require.NoError(t, f.store.SetCredentials(context.Background(), "tok", patient, credentials.ScopeSession))

	tok := f.store.OAuth2Token()
	require.NotNil(t, tok)
	require.Equal(t, "tok", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
}

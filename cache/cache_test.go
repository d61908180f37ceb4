package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-telemed-client/cache"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

var errUnavailable = errors.New("quota exceeded")

func (failingStore) Get(context.Context, string) (*cache.Entry, error) { return nil, errUnavailable }
func (failingStore) Set(context.Context, *cache.Entry) error            { return errUnavailable }
func (failingStore) Delete(context.Context, string) error               { return errUnavailable }
func (failingStore) DeleteByType(context.Context, cache.DataType) error { return errUnavailable }
func (failingStore) Clear(context.Context) error                        { return errUnavailable }

type countingObserver struct {
	hits   int
	misses int
}

func (o *countingObserver) CacheHit(cache.DataType) { o.hits++ }
func (o *countingObserver) CacheMiss()              { o.misses++ }

func TestKey(t *testing.T) {
	base := cache.Key("get", "/users/doctors", "en", nil)
	require.Equal(t, "GET /users/doctors|en|-", base)

	require.NotEqual(t, base, cache.Key("GET", "/users/doctors", "ar", nil), "language must change the key")
	require.NotEqual(t,
		cache.Key("GET", "/users/doctors", "en", []byte(`{"specialty":"cardiology"}`)),
		cache.Key("GET", "/users/doctors", "en", []byte(`{"specialty":"dermatology"}`)),
	)
	require.Equal(t,
		cache.Key("GET", "/users/doctors", "en", []byte(`{"a":1}`)),
		cache.Key("GET", "/users/doctors", "en", []byte(`{"a":1}`)),
	)
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	c := cache.New(cache.NewMemoryStore(0), cache.WithObserver(obs))

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	c.Set(ctx, "k", []byte(`{"id":1}`), cache.DataTypeDoctorsList)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.JSONEq(t, `{"id":1}`, string(v))

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)

	require.Equal(t, 1, obs.hits)
	require.Equal(t, 2, obs.misses)
}

func TestCache_ClearByType(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0))

	c.Set(ctx, "doctors", []byte(`1`), cache.DataTypeDoctorsList)
	c.Set(ctx, "availability", []byte(`2`), cache.DataTypeDoctorAvailability)
	c.Set(ctx, "rx", []byte(`3`), cache.DataTypePrescriptions)

	c.ClearByType(ctx, cache.DataTypeDoctorAvailability)

	_, ok := c.Get(ctx, "availability")
	require.False(t, ok)
	_, ok = c.Get(ctx, "doctors")
	require.True(t, ok)
	_, ok = c.Get(ctx, "rx")
	require.True(t, ok)

	c.Clear(ctx)
	_, ok = c.Get(ctx, "doctors")
	require.False(t, ok)
}

func TestCache_SetIfCurrentDropsWritesFromBeforeClear(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemoryStore(0))

	stale := c.Generation()
	c.Clear(ctx)
	require.NotEqual(t, stale, c.Generation())

	require.False(t, c.SetIfCurrent(ctx, stale, "GET /prescriptions|en|-", []byte(`[1]`), cache.DataTypePrescriptions))
	_, ok := c.Get(ctx, "GET /prescriptions|en|-")
	require.False(t, ok)

	require.True(t, c.SetIfCurrent(ctx, c.Generation(), "GET /prescriptions|en|-", []byte(`[2]`), cache.DataTypePrescriptions))
	v, ok := c.Get(ctx, "GET /prescriptions|en|-")
	require.True(t, ok)
	require.JSONEq(t, `[2]`, string(v))
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(0)
	c := cache.New(store, cache.WithTTL(time.Minute), cache.WithNowTime(func() time.Time { return now }))

	c.Set(ctx, "k", []byte(`1`), cache.DataTypeGeneral)
	now = now.Add(30 * time.Second)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
	require.Zero(t, store.Len(), "expired entry is removed on read")
}

func TestCache_UnknownDataTypeFallsBackToGeneral(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	c := cache.New(store)

	c.Set(ctx, "k", []byte(`1`), cache.DataType("bogus"))
	entry, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, cache.DataTypeGeneral, entry.DataType)
}

func TestCache_StoreFaultsAreMisses(t *testing.T) {
	ctx := context.Background()
	c := cache.New(failingStore{})

	require.NotPanics(t, func() {
		c.Set(ctx, "k", []byte(`1`), cache.DataTypeGeneral)
		c.ClearByType(ctx, cache.DataTypeGeneral)
		c.Delete(ctx, "k")
		c.Clear(ctx)
	})
	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemoryStore_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(2)
	c := cache.New(store, cache.WithNowTime(func() time.Time { return now }))

	c.Set(ctx, "first", []byte(`1`), cache.DataTypeGeneral)
	now = now.Add(time.Second)
	c.Set(ctx, "second", []byte(`2`), cache.DataTypeGeneral)
	now = now.Add(time.Second)
	c.Set(ctx, "third", []byte(`3`), cache.DataTypeGeneral)

	require.Equal(t, 2, store.Len())
	_, ok := c.Get(ctx, "first")
	require.False(t, ok)
	_, ok = c.Get(ctx, "third")
	require.True(t, ok)

	// Overwriting an existing key does not evict.
	c.Set(ctx, "third", []byte(`33`), cache.DataTypeGeneral)
	require.Equal(t, 2, store.Len())
}

func TestCache_StartCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := cache.NewMemoryStore(0)
	c := cache.New(store, cache.WithTTL(time.Millisecond))
	c.Set(ctx, "k", []byte(`1`), cache.DataTypeGeneral)

	c.StartCleanup(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

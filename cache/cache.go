// Package cache holds successful GET responses so stable, non-urgent data is
// not fetched twice. Caching is an optimization only: every storage fault is
// logged and reported as a miss.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// Observer receives hit/miss notifications (metrics).
type Observer interface {
	CacheHit(dataType DataType)
	CacheMiss()
}

type Cache struct {
	// mu orders writes against Clear; generation counts Clear calls
	mu         sync.RWMutex
	generation uint64

	store    Store
	ttl      time.Duration
	logger   zerolog.Logger
	observer Observer
	nowTime  func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL expires entries older than ttl. Zero keeps entries until invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Cache) {
		c.nowTime = nowFunc
	}
}

func New(store Store, options ...Option) *Cache {
	c := &Cache{
		store:   store,
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Key derives the cache key of a request. The language is part of the key
// because translated fields differ per language; the body digest keeps
// parameterized requests apart.
func Key(method, endpoint, language string, body []byte) string {
	digest := "-"
	if len(body) > 0 {
		sum := blake2b.Sum256(body)
		digest = hex.EncodeToString(sum[:])
	}
	return strings.ToUpper(method) + " " + endpoint + "|" + language + "|" + digest
}

// Get returns the cached value for key. Expired entries are removed lazily.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		}
		c.miss()
		return nil, false
	}

	if c.ttl > 0 && c.nowTime().Sub(entry.CreatedAt) > c.ttl {
		c.Delete(ctx, key)
		c.miss()
		return nil, false
	}

	if c.observer != nil {
		c.observer.CacheHit(entry.DataType)
	}
	return entry.Value, true
}

// Generation identifies the cache contents since the last Clear. Capture it
// before sending a request and pass it to SetIfCurrent with the response.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Set stores value under key tagged with dataType.
func (c *Cache) Set(ctx context.Context, key string, value []byte, dataType DataType) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.set(ctx, key, value, dataType)
}

// SetIfCurrent stores value only if the cache was not cleared since
// generation was read. A response that was in flight when the session ended
// belongs to that session and is dropped.
func (c *Cache) SetIfCurrent(ctx context.Context, generation uint64, key string, value []byte, dataType DataType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if generation != c.generation {
		c.logger.Debug().Str("key", key).Msg("Dropping response fetched before the cache was cleared")
		return false
	}
	c.set(ctx, key, value, dataType)
	return true
}

func (c *Cache) set(ctx context.Context, key string, value []byte, dataType DataType) {
	if !dataType.Valid() {
		dataType = DataTypeGeneral
	}
	entry := &Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		DataType:  dataType,
		CreatedAt: c.nowTime(),
	}
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Str("data_type", string(dataType)).Msg("Cache write failed")
	}
}

// Delete removes one entry (forced refresh).
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache delete failed")
	}
}

// ClearByType removes all entries tagged with dataType.
func (c *Cache) ClearByType(ctx context.Context, dataType DataType) {
	if err := c.store.DeleteByType(ctx, dataType); err != nil {
		c.logger.Warn().Err(err).Str("data_type", string(dataType)).Msg("Cache invalidation failed")
		return
	}
	c.logger.Debug().Str("data_type", string(dataType)).Msg("Cache invalidated")
}

// Clear drops every entry and starts a new generation.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Cache clear failed")
	}
}

// StartCleanup periodically removes expired entries from a MemoryStore. It
// stops when ctx is cancelled. Other stores expire entries themselves.
func (c *Cache) StartCleanup(ctx context.Context, interval time.Duration) {
	mem, ok := c.store.(*MemoryStore)
	if !ok || c.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mem.DeleteOlderThan(c.nowTime().Add(-c.ttl))
			}
		}
	}()
}

func (c *Cache) miss() {
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

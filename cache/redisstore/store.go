// Package redisstore is a cache.Store shared through Redis, used when several
// client processes on one host should share cached reference data.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-telemed-client/cache"
	"github.com/redis/go-redis/v9"
)

const (
	entryKeyPrefix = "telemed:cache:entry:"
	typeKeyPrefix  = "telemed:cache:type:"
)

var _ cache.Store = (*Store)(nil)

type Store struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// New creates a Store. namespace separates devices sharing one Redis (use the
// device id); ttl lets Redis expire entries on its own. Users of one device
// share the namespace, so the cache must be cleared on every login.
func New(client *redis.Client, namespace string, ttl time.Duration) *Store {
	return &Store{client: client, namespace: namespace, ttl: ttl}
}

func (s *Store) entryKey(key string) string {
	return entryKeyPrefix + s.namespace + ":" + key
}

func (s *Store) typeKey(dataType cache.DataType) string {
	return typeKeyPrefix + s.namespace + ":" + string(dataType)
}

func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("redis_cache_get_failed: %w", err)
	}
	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("redis_cache_decode_failed: %w", err)
	}
	return &entry, nil
}

func (s *Store) Set(ctx context.Context, entry *cache.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis_cache_encode_failed: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(entry.Key), raw, s.ttl)
	pipe.SAdd(ctx, s.typeKey(entry.DataType), entry.Key)
	if s.ttl > 0 {
		// The index lives as long as its newest entry
		pipe.Expire(ctx, s.typeKey(entry.DataType), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis_cache_set_failed: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("redis_cache_delete_failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteByType(ctx context.Context, dataType cache.DataType) error {
	typeKey := s.typeKey(dataType)
	keys, err := s.client.SMembers(ctx, typeKey).Result()
	if err != nil {
		return fmt.Errorf("redis_cache_members_failed: %w", err)
	}

	toDelete := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		toDelete = append(toDelete, s.entryKey(k))
	}
	toDelete = append(toDelete, typeKey)

	if err := s.client.Del(ctx, toDelete...).Err(); err != nil {
		return fmt.Errorf("redis_cache_invalidate_failed: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	var errList []error
	for _, dt := range cache.DataTypes {
		if err := s.DeleteByType(ctx, dt); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

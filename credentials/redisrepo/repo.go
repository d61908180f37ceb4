// Package redisrepo keeps the "remember me" credential record in Redis, for
// deployments where several page hosts share one device identity.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "telemed:credentials:"

var _ credentials.Repo = (*Repo)(nil)

type Repo struct {
	client  *redis.Client
	key     string
	nowTime func() time.Time
}

// New creates a repo for deviceID. An empty deviceID gets a random one, which
// makes the record unreachable after a restart; pass a stable id to persist.
func New(client *redis.Client, deviceID string) *Repo {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return &Repo{
		client:  client,
		key:     keyPrefix + deviceID,
		nowTime: time.Now,
	}
}

// Save stores the record. Records with a known token expiry get a matching
// TTL so Redis drops them once the token is useless anyway.
func (r *Repo) Save(ctx context.Context, record credentials.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis_credentials_encode_failed: %w", err)
	}

	var ttl time.Duration
	if !record.ExpiresAt.IsZero() {
		ttl = record.ExpiresAt.Sub(r.nowTime())
		if ttl <= 0 {
			return r.Delete(ctx)
		}
	}

	if err := r.client.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis_credentials_set_failed: %w", err)
	}
	return nil
}

func (r *Repo) Load(ctx context.Context) (credentials.Record, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return credentials.Record{}, credentials.ErrNotFound
		}
		return credentials.Record{}, fmt.Errorf("redis_credentials_get_failed: %w", err)
	}

	var record credentials.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return credentials.Record{}, fmt.Errorf("redis_credentials_decode_failed: %w", err)
	}
	return record, nil
}

func (r *Repo) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis_credentials_delete_failed: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reconsumeralization/modernmen-sub011/pkg/cache"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

const (
	snapshotPayloadField  = "payload"
	snapshotLoadedAtField = "loaded_at"
)

// DirectoryCacheRepository keeps the directory snapshot in a Redis hash. The load time sits
// beside the payload so a reader can judge freshness before decoding.
type DirectoryCacheRepository struct {
	client redis.UniversalClient
	key    string
}

// NewDirectoryCacheRepository stores the snapshot under "<namespace>:directory:snapshot".
func NewDirectoryCacheRepository(client redis.UniversalClient, namespace string) *DirectoryCacheRepository {
	return &DirectoryCacheRepository{client: client, key: cache.Key(strings.TrimSuffix(namespace, ":"), "directory", "snapshot")}
}

// Key reports the Redis key in use.
func (r *DirectoryCacheRepository) Key() string {
	return r.key
}

// Load decodes the cached snapshot into dest and returns when it was loaded from the source.
// An absent entry or a nil client yields ErrCacheMiss.
func (r *DirectoryCacheRepository) Load(ctx context.Context, dest any) (time.Time, error) {
	if r.client == nil {
		return time.Time{}, appErrors.ErrCacheMiss
	}
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis hgetall %s: %w", r.key, err)
	}
	payload, ok := fields[snapshotPayloadField]
	if !ok {
		return time.Time{}, appErrors.ErrCacheMiss
	}
	loadedAt, err := time.Parse(time.RFC3339Nano, fields[snapshotLoadedAtField])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s of %s: %w", snapshotLoadedAtField, r.key, err)
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return loadedAt, nil
}

// Save replaces the snapshot in one transaction and sets its expiry.
func (r *DirectoryCacheRepository) Save(ctx context.Context, snapshot any, loadedAt time.Time, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.key, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key,
			snapshotPayloadField, payload,
			snapshotLoadedAtField, loadedAt.UTC().Format(time.RFC3339Nano),
		)
		if ttl > 0 {
			pipe.Expire(ctx, r.key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", r.key, err)
	}
	return nil
}

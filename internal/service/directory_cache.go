package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// DirectorySnapshotStore persists directory snapshots so API replicas and the audit CLI
// can skip the source on start.
type DirectorySnapshotStore interface {
	Load(ctx context.Context, dest any) (time.Time, error)
	Save(ctx context.Context, snapshot any, loadedAt time.Time, ttl time.Duration) error
}

// DirectoryCache shares the loaded directory through a snapshot store. A nil cache always misses.
type DirectoryCache struct {
	store   DirectorySnapshotStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewDirectoryCache constructs the cache. Snapshots older than ttl are ignored on load.
func NewDirectoryCache(store DirectorySnapshotStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *DirectoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryCache{store: store, metrics: metrics, ttl: ttl, logger: logger, now: time.Now}
}

// Load returns the shared snapshot when one exists and is younger than the ttl.
func (c *DirectoryCache) Load(ctx context.Context) (DirectorySnapshot, bool) {
	if c == nil || c.store == nil {
		return DirectorySnapshot{}, false
	}
	start := time.Now()
	var snapshot DirectorySnapshot
	loadedAt, err := c.store.Load(ctx, &snapshot)
	fresh := err == nil && c.now().Sub(loadedAt) < c.ttl
	c.metrics.RecordCacheOperation(fresh, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("directory cache read failed", zap.Error(err))
		}
		return DirectorySnapshot{}, false
	}
	if !fresh {
		c.logger.Debug("directory cache stale", zap.Time("loadedAt", loadedAt))
		return DirectorySnapshot{}, false
	}
	snapshot.LoadedAt = loadedAt
	return snapshot, true
}

// Store publishes snapshot. A failed write is logged; the caller's in-memory copy stays authoritative.
func (c *DirectoryCache) Store(ctx context.Context, snapshot DirectorySnapshot) {
	if c == nil || c.store == nil {
		return
	}
	start := time.Now()
	err := c.store.Save(ctx, snapshot, snapshot.LoadedAt, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("directory cache write failed", zap.Error(err))
	}
}

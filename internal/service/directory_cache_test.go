package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

type memorySnapshotStore struct {
	payload  []byte
	loadedAt time.Time
	saves    int
	failLoad error
}

func (m *memorySnapshotStore) Load(_ context.Context, dest any) (time.Time, error) {
	if m.failLoad != nil {
		return time.Time{}, m.failLoad
	}
	if m.payload == nil {
		return time.Time{}, appErrors.ErrCacheMiss
	}
	return m.loadedAt, json.Unmarshal(m.payload, dest)
}

func (m *memorySnapshotStore) Save(_ context.Context, snapshot any, loadedAt time.Time, _ time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	m.payload = payload
	m.loadedAt = loadedAt
	m.saves++
	return nil
}

func TestDirectoryCacheSharesRefresh(t *testing.T) {
	store := &memorySnapshotStore{}
	cache := NewDirectoryCache(store, NewMetricsService(), time.Hour, nil)

	first := NewDirectoryService(&staticDirectory{resources: fixtureResources(), services: fixtureServices()}, cache, nil)
	_, err := first.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)

	empty := &staticDirectory{}
	second := NewDirectoryService(empty, cache, nil)
	resources, err := second.Resources(context.Background())
	require.NoError(t, err)
	assert.Len(t, resources, 3, "served from the shared snapshot, not the empty source")
}

func TestDirectoryCacheIgnoresStaleAndBrokenEntries(t *testing.T) {
	store := &memorySnapshotStore{}
	cache := NewDirectoryCache(store, nil, time.Minute, nil)
	cache.Store(context.Background(), DirectorySnapshot{Resources: fixtureResources(), LoadedAt: time.Now().Add(-time.Hour)})

	_, ok := cache.Load(context.Background())
	assert.False(t, ok)

	store.failLoad = errors.New("connection refused")
	_, ok = cache.Load(context.Background())
	assert.False(t, ok)

	var nilCache *DirectoryCache
	_, ok = nilCache.Load(context.Background())
	assert.False(t, ok)
	nilCache.Store(context.Background(), DirectorySnapshot{})
}

package service

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// DirectorySource supplies staff and catalog records. Postgres and YAML files both implement it.
type DirectorySource interface {
	ListResources(ctx context.Context) ([]models.Resource, error)
	ListServices(ctx context.Context) ([]models.Service, error)
}

// DirectoryListener is told which resources changed after a refresh.
type DirectoryListener interface {
	OnDirectoryChange(ctx context.Context, changed []string)
}

// DirectorySnapshot is the cached form of the directory.
type DirectorySnapshot struct {
	Resources []models.Resource `json:"resources"`
	Services  []models.Service  `json:"services"`
	LoadedAt  time.Time         `json:"loadedAt"`
}

// DirectoryRefreshResult reports a refresh.
type DirectoryRefreshResult struct {
	Resources int       `json:"resources"`
	Services  int       `json:"services"`
	Changed   []string  `json:"changed"`
	LoadedAt  time.Time `json:"loadedAt"`
}

// DirectoryService keeps read-only staff and service records in memory. The engine
// never writes them; refreshes pull from the source and share the result through the cache.
type DirectoryService struct {
	source    DirectorySource
	cache     *DirectoryCache
	logger    *zap.Logger
	listeners []DirectoryListener
	now       func() time.Time

	mu        sync.RWMutex
	loaded    bool
	resources map[string]models.Resource
	services  map[string]models.Service
	loadedAt  time.Time
}

// NewDirectoryService constructs the directory.
func NewDirectoryService(source DirectorySource, cache *DirectoryCache, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		source:    source,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		resources: make(map[string]models.Resource),
		services:  make(map[string]models.Service),
	}
}

// AddListener registers a change listener.
func (s *DirectoryService) AddListener(l DirectoryListener) {
	s.listeners = append(s.listeners, l)
}

func (s *DirectoryService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	if snapshot, ok := s.cache.Load(ctx); ok {
		s.install(snapshot)
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// Refresh pulls the directory from its source, replaces the in-memory copy, writes the
// cache and notifies listeners of changed resources.
func (s *DirectoryService) Refresh(ctx context.Context) (*DirectoryRefreshResult, error) {
	resources, err := s.source.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	services, err := s.source.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	snapshot := DirectorySnapshot{Resources: resources, Services: services, LoadedAt: s.now().UTC()}

	s.mu.RLock()
	wasLoaded := s.loaded
	previous := s.resources
	s.mu.RUnlock()

	var changed []string
	if wasLoaded {
		changed = changedResources(previous, resources)
	}
	s.install(snapshot)
	s.cache.Store(ctx, snapshot)

	s.logger.Info("directory refreshed",
		zap.Int("resources", len(resources)),
		zap.Int("services", len(services)),
		zap.Strings("changed", changed),
	)
	if len(changed) > 0 {
		for _, l := range s.listeners {
			l.OnDirectoryChange(ctx, changed)
		}
	}
	return &DirectoryRefreshResult{
		Resources: len(resources),
		Services:  len(services),
		Changed:   changed,
		LoadedAt:  snapshot.LoadedAt,
	}, nil
}

func (s *DirectoryService) install(snapshot DirectorySnapshot) {
	resources := make(map[string]models.Resource, len(snapshot.Resources))
	for _, r := range snapshot.Resources {
		resources[r.ID] = r
	}
	services := make(map[string]models.Service, len(snapshot.Services))
	for _, svc := range snapshot.Services {
		services[svc.ID] = svc
	}
	s.mu.Lock()
	s.resources = resources
	s.services = services
	s.loadedAt = snapshot.LoadedAt
	s.loaded = true
	s.mu.Unlock()
}

// changedResources lists ids added, removed or modified between two directory versions.
func changedResources(before map[string]models.Resource, after []models.Resource) []string {
	seen := make(map[string]bool, len(after))
	var changed []string
	for _, r := range after {
		seen[r.ID] = true
		old, ok := before[r.ID]
		if !ok || !reflect.DeepEqual(old, r) {
			changed = append(changed, r.ID)
		}
	}
	for id := range before {
		if !seen[id] {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed
}

// Resource returns a resource by id, active or not.
func (s *DirectoryService) Resource(ctx context.Context, id string) (*models.Resource, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[id]
	if !ok {
		return nil, appErrors.WithDetails(appErrors.ErrResourceNotFound, map[string]any{"resourceId": id})
	}
	return &res, nil
}

// Service returns a catalog entry by id.
func (s *DirectoryService) Service(ctx context.Context, id string) (*models.Service, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, appErrors.WithDetails(appErrors.ErrServiceNotFound, map[string]any{"serviceId": id})
	}
	return &svc, nil
}

// Resources returns every resource sorted by id.
func (s *DirectoryService) Resources(ctx context.Context) ([]models.Resource, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Qualified returns the active resources holding every skill, sorted by id.
func (s *DirectoryService) Qualified(ctx context.Context, skills ...string) ([]models.Resource, error) {
	all, err := s.Resources(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Active && r.HasSkills(skills...) {
			out = append(out, r)
		}
	}
	return out, nil
}

// SkillOf returns the skill a booking requires: its component's tag for split parts,
// otherwise the service tag. Unknown services report false.
func (s *DirectoryService) SkillOf(b models.Booking) (string, bool) {
	s.mu.RLock()
	svc, ok := s.services[b.ServiceID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if b.Component != "" {
		for _, c := range svc.Components {
			if c.Name == b.Component {
				return c.SkillTag, true
			}
		}
	}
	return svc.SkillTag, true
}

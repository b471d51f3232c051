package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
)

// fixtureNow is the day before fixtureDate, early morning.
var fixtureNow = time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)

const fixtureDate = "2025-03-10"

type staticDirectory struct {
	mu        sync.Mutex
	resources []models.Resource
	services  []models.Service
}

func (d *staticDirectory) ListResources(context.Context) ([]models.Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Resource(nil), d.resources...), nil
}

func (d *staticDirectory) ListServices(context.Context) ([]models.Service, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Service(nil), d.services...), nil
}

type fakeConflictReader struct {
	repo *fakeCalendarRepo
}

func (r fakeConflictReader) GetByID(_ context.Context, id string) (*models.ConflictRecord, error) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	for i := len(r.repo.conflicts) - 1; i >= 0; i-- {
		if r.repo.conflicts[i].ID == id {
			rec := r.repo.conflicts[i]
			return &rec, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r fakeConflictReader) List(_ context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, int, error) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	latest := make(map[string]models.ConflictRecord)
	for _, c := range r.repo.conflicts {
		latest[c.ID] = c
	}
	var out []models.ConflictRecord
	for _, c := range latest {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

type memoryWaitlist struct {
	mu      sync.Mutex
	entries map[string]models.WaitlistEntry
}

func newMemoryWaitlist() *memoryWaitlist {
	return &memoryWaitlist{entries: make(map[string]models.WaitlistEntry)}
}

func (m *memoryWaitlist) Save(_ context.Context, entry *models.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = *entry
	return nil
}

func (m *memoryWaitlist) GetByID(_ context.Context, id string) (*models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memoryWaitlist) List(_ context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WaitlistEntry
	for _, e := range m.entries {
		if filter.CustomerID != "" && e.Request.CustomerID != filter.CustomerID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if e.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Request, out[j].Request
		if a.Urgency.Rank() != b.Urgency.Rank() {
			return a.Urgency.Rank() > b.Urgency.Rank()
		}
		if !a.ArrivedAt.Equal(b.ArrivedAt) {
			return a.ArrivedAt.Before(b.ArrivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memoryResolutions struct {
	mu    sync.Mutex
	items map[string]models.Resolution
}

func newMemoryResolutions() *memoryResolutions {
	return &memoryResolutions{items: make(map[string]models.Resolution)}
}

func (m *memoryResolutions) Upsert(_ context.Context, res *models.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[res.ID] = *res
	return nil
}

func (m *memoryResolutions) GetByID(_ context.Context, id string) (*models.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &res, nil
}

func (m *memoryResolutions) FindPendingByConflict(_ context.Context, conflictID string) (*models.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range m.items {
		if res.ConflictID == conflictID && res.Pending() {
			found := res
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryResolutions) ListPending(context.Context) ([]models.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Resolution
	for _, res := range m.items {
		if res.Pending() {
			out = append(out, res)
		}
	}
	return out, nil
}

func (m *memoryResolutions) HasOutcome(_ context.Context, conflictID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range m.items {
		if res.ConflictID == conflictID && res.Status != models.ResolutionSuperseded {
			return true, nil
		}
	}
	return false, nil
}

// fixtureResources: two stylists who cut and one colorist.
func fixtureResources() []models.Resource {
	return []models.Resource{
		{ID: "colorist-1", Name: "Cora", Skills: []string{"color"}, Active: true},
		{ID: "stylist-1", Name: "Sam", Skills: []string{"cut", "color"}, Active: true},
		{ID: "stylist-2", Name: "Alex", Skills: []string{"cut"}, Active: true},
	}
}

func fixtureServices() []models.Service {
	return []models.Service{
		{ID: "cut", Name: "Haircut", DurationMinutes: 60, SkillTag: "cut", Price: decimal.NewFromInt(50)},
		{ID: "color", Name: "Colour", DurationMinutes: 90, SkillTag: "color", Price: decimal.NewFromInt(120)},
		{
			ID: "cut-color", Name: "Cut and colour", DurationMinutes: 150, SkillTag: "color", Splittable: true,
			Price: decimal.NewFromInt(150),
			Components: []models.ServiceComponent{
				{Name: "cut", DurationMinutes: 60, SkillTag: "cut"},
				{Name: "color", DurationMinutes: 90, SkillTag: "color"},
			},
		},
	}
}

type engineFixture struct {
	repo         *fakeCalendarRepo
	store        *CalendarStore
	directory    *DirectoryService
	availability *AvailabilityService
	conflicts    *ConflictService
	optimizer    *Optimizer
	waitlistRepo *memoryWaitlist
	waitlist     *WaitlistService
	resolutions  *memoryResolutions
	resolver     *ResolverService
	bookings     *BookingService
	balancer     *BalancerService
}

type fixtureOptions struct {
	resources   []models.Resource
	autoApply   bool
	autoConfirm bool
}

// newEngineFixture wires the engine over in-memory stores with business hours
// 09:00-18:00 UTC and the clock frozen at fixtureNow.
func newEngineFixture(t *testing.T, opts fixtureOptions) *engineFixture {
	t.Helper()
	if opts.resources == nil {
		opts.resources = fixtureResources()
	}
	business := config.BusinessConfig{Timezone: "UTC", Open: "09:00", Close: "18:00", SlotGranularity: 15}
	hoursCfg, err := NewBusinessHours(business)
	require.NoError(t, err)

	repo := newFakeCalendarRepo()
	store := NewCalendarStore(repo, repo, nil)
	directory := NewDirectoryService(&staticDirectory{resources: opts.resources, services: fixtureServices()}, nil, nil)
	availability := NewAvailabilityService(store, directory, NewWorkingHours(hoursCfg), business)
	detector := NewConflictDetector(decimal.Zero)
	detector.now = func() time.Time { return fixtureNow }
	conflicts := NewConflictService(detector, availability, store, fakeConflictReader{repo: repo}, nil)

	optimizer := NewOptimizer(availability, directory, store, config.SchedulerConfig{
		MaxCandidateAttempts: 5,
		WeightProximity:      0.5,
		WeightBalance:        0.3,
		WeightUrgency:        0.2,
	}, nil, nil)
	optimizer.now = func() time.Time { return fixtureNow }

	notifier := NewNotificationService(nil, nil)
	waitlistRepo := newMemoryWaitlist()
	waitlist := NewWaitlistService(waitlistRepo, optimizer, store, notifier, nil, time.Hour, time.UTC, nil)
	waitlist.now = func() time.Time { return fixtureNow }

	resolutions := newMemoryResolutions()
	resolver := NewResolverService(store, availability, directory, optimizer, conflicts, resolutions, notifier, nil, opts.autoApply, nil)
	resolver.now = func() time.Time { return fixtureNow }

	bookings := NewBookingService(optimizer, waitlist, store, directory, notifier, nil, nil, opts.autoConfirm, nil)
	bookings.now = func() time.Time { return fixtureNow }

	balancer := NewBalancerService(store, availability, directory, notifier, nil, config.BalancerConfig{Threshold: 0.2, HorizonDays: 1}, nil)
	balancer.now = func() time.Time { return fixtureNow }

	return &engineFixture{
		repo:         repo,
		store:        store,
		directory:    directory,
		availability: availability,
		conflicts:    conflicts,
		optimizer:    optimizer,
		waitlistRepo: waitlistRepo,
		waitlist:     waitlist,
		resolutions:  resolutions,
		resolver:     resolver,
		bookings:     bookings,
		balancer:     balancer,
	}
}

// seed imports bookings onto their resource-days.
func (f *engineFixture) seed(t *testing.T, bookings ...models.Booking) {
	t.Helper()
	for _, b := range bookings {
		key := models.DayKey{ResourceID: b.ResourceID, Date: b.Date}
		require.NoError(t, f.store.WithDay(context.Background(), key, func(day *DayTx) error {
			return day.Import(b)
		}))
	}
}

func fixtureBooking(id, resourceID, start string, status models.BookingStatus) models.Booking {
	return models.Booking{
		ID:           id,
		ResourceID:   resourceID,
		ServiceID:    "cut",
		CustomerID:   "cust-" + id,
		Date:         fixtureDate,
		Interval:     models.NewInterval(models.MustMinute(start), 60),
		Status:       status,
		Urgency:      models.UrgencyNormal,
		CustomerTier: models.TierStandard,
		Price:        decimal.NewFromInt(50),
		CreatedAt:    fixtureNow,
	}
}

func minutePtr(raw string) *models.Minute {
	m := models.MustMinute(raw)
	return &m
}

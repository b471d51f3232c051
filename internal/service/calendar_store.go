package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// CalendarPersister loads and commits whole resource-days.
type CalendarPersister interface {
	LoadDay(ctx context.Context, key models.DayKey) (models.DaySnapshot, error)
	SaveDay(ctx context.Context, bookings []models.Booking, conflicts []models.ConflictRecord) error
}

// BookingLocator finds the resource-day of a booking that is not cached yet.
type BookingLocator interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
}

// DayInspector re-checks a resource-day inside its lock, after every mutation and before commit.
type DayInspector interface {
	Inspect(ctx context.Context, key models.DayKey, bookings []models.Booking) (Detection, error)
}

// DayChange describes one committed resource-day mutation.
type DayChange struct {
	Key     models.DayKey
	Freed   bool
	Changed []models.Booking
	Opened  []models.ConflictRecord
	Closed  []models.ConflictRecord
}

// MutationListener is notified after a commit, outside every lock.
type MutationListener interface {
	OnDayChange(ctx context.Context, change DayChange)
}

type calendarDay struct {
	mu        sync.Mutex
	loaded    bool
	bookings  []models.Booking
	conflicts map[string]models.ConflictRecord
}

// CalendarStore is the single source of truth for bookings. Each resource-day has its
// own lock; multi-day operations lock keys in DayKey order.
type CalendarStore struct {
	repo      CalendarPersister
	locator   BookingLocator
	inspector DayInspector
	listeners []MutationListener
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	days  map[models.DayKey]*calendarDay
	index map[string]models.DayKey
}

// NewCalendarStore constructs the store.
func NewCalendarStore(repo CalendarPersister, locator BookingLocator, logger *zap.Logger) *CalendarStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarStore{
		repo:    repo,
		locator: locator,
		logger:  logger,
		now:     time.Now,
		days:    make(map[models.DayKey]*calendarDay),
		index:   make(map[string]models.DayKey),
	}
}

// SetInspector installs the conflict inspector run before every commit.
func (s *CalendarStore) SetInspector(inspector DayInspector) {
	s.inspector = inspector
}

// SetMetrics enables commit instrumentation.
func (s *CalendarStore) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// AddListener registers a post-commit listener.
func (s *CalendarStore) AddListener(l MutationListener) {
	s.listeners = append(s.listeners, l)
}

func (s *CalendarStore) day(key models.DayKey) *calendarDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[key]
	if !ok {
		d = &calendarDay{}
		s.days[key] = d
	}
	return d
}

// lockDays locks the given days in order. A day evicted between lookup and lock is
// looked up again.
func (s *CalendarStore) lockDays(keys []models.DayKey) []*calendarDay {
	for {
		days := make([]*calendarDay, len(keys))
		for i, key := range keys {
			days[i] = s.day(key)
			days[i].mu.Lock()
		}
		s.mu.Lock()
		stale := false
		for i, key := range keys {
			if s.days[key] != days[i] {
				stale = true
				break
			}
		}
		s.mu.Unlock()
		if !stale {
			return days
		}
		unlockDays(days)
	}
}

func unlockDays(days []*calendarDay) {
	for i := len(days) - 1; i >= 0; i-- {
		days[i].mu.Unlock()
	}
}

// ensureLoaded must be called with d.mu held.
func (s *CalendarStore) ensureLoaded(ctx context.Context, key models.DayKey, d *calendarDay) error {
	if d.loaded {
		return nil
	}
	snapshot, err := s.repo.LoadDay(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	sortBookings(snapshot.Bookings)
	d.bookings = snapshot.Bookings
	d.conflicts = make(map[string]models.ConflictRecord, len(snapshot.Conflicts))
	for _, c := range snapshot.Conflicts {
		d.conflicts[c.ID] = c
	}
	d.loaded = true
	s.mu.Lock()
	for _, b := range d.bookings {
		s.index[b.ID] = key
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns a consistent copy of a resource-day.
func (s *CalendarStore) Snapshot(ctx context.Context, key models.DayKey) (models.DaySnapshot, error) {
	d := s.lockDays([]models.DayKey{key})[0]
	defer d.mu.Unlock()
	if err := s.ensureLoaded(ctx, key, d); err != nil {
		return models.DaySnapshot{}, err
	}
	snapshot := models.DaySnapshot{
		Key:       key,
		Bookings:  append([]models.Booking(nil), d.bookings...),
		Conflicts: make([]models.ConflictRecord, 0, len(d.conflicts)),
	}
	for _, c := range d.conflicts {
		snapshot.Conflicts = append(snapshot.Conflicts, c)
	}
	sort.Slice(snapshot.Conflicts, func(i, j int) bool { return snapshot.Conflicts[i].ID < snapshot.Conflicts[j].ID })
	return snapshot, nil
}

// Locate returns the resource-day currently holding a booking.
func (s *CalendarStore) Locate(ctx context.Context, bookingID string) (models.DayKey, error) {
	s.mu.Lock()
	key, ok := s.index[bookingID]
	s.mu.Unlock()
	if ok {
		return key, nil
	}
	if s.locator == nil {
		return models.DayKey{}, appErrors.WithDetails(appErrors.ErrBookingNotFound, map[string]any{"bookingId": bookingID})
	}
	b, err := s.locator.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DayKey{}, appErrors.WithDetails(appErrors.ErrBookingNotFound, map[string]any{"bookingId": bookingID})
		}
		return models.DayKey{}, fmt.Errorf("locate booking %s: %w", bookingID, err)
	}
	return models.DayKey{ResourceID: b.ResourceID, Date: b.Date}, nil
}

// GetBooking returns the current state of a booking.
func (s *CalendarStore) GetBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	key, err := s.Locate(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	snapshot, err := s.Snapshot(ctx, key)
	if err != nil {
		return models.Booking{}, err
	}
	for _, b := range snapshot.Bookings {
		if b.ID == bookingID {
			return b, nil
		}
	}
	return models.Booking{}, appErrors.WithDetails(appErrors.ErrBookingNotFound, map[string]any{"bookingId": bookingID})
}

// WithDay runs fn against a single resource-day under its lock.
func (s *CalendarStore) WithDay(ctx context.Context, key models.DayKey, fn func(*DayTx) error) error {
	return s.WithDays(ctx, []models.DayKey{key}, func(tx *CalendarTx) error {
		day, err := tx.Day(key)
		if err != nil {
			return err
		}
		return fn(day)
	})
}

// WithDays locks the given resource-days in order, hands fn working copies, re-runs
// the inspector on every day, verifies the no-overlap invariant and persists the
// result in one transaction. Nothing becomes visible when fn, the inspector, the
// invariant check or persistence fails.
func (s *CalendarStore) WithDays(ctx context.Context, keys []models.DayKey, fn func(*CalendarTx) error) error {
	changes, err := s.commit(ctx, keys, fn)
	if err != nil {
		return err
	}
	for _, change := range changes {
		for _, l := range s.listeners {
			l.OnDayChange(ctx, change)
		}
	}
	return nil
}

func (s *CalendarStore) commit(ctx context.Context, keys []models.DayKey, fn func(*CalendarTx) error) ([]DayChange, error) {
	started := time.Now()
	keys = uniqueKeys(keys)
	days := s.lockDays(keys)
	defer unlockDays(days)

	now := s.now().UTC()
	tx := &CalendarTx{days: make(map[models.DayKey]*DayTx, len(keys)), now: now}
	for i, key := range keys {
		if err := s.ensureLoaded(ctx, key, days[i]); err != nil {
			return nil, err
		}
		tx.days[key] = newDayTx(key, days[i], now)
	}

	if err := fn(tx); err != nil {
		return nil, err
	}

	var (
		bookingWrites  []models.Booking
		conflictWrites []models.ConflictRecord
		changes        []DayChange
	)
	for i, key := range keys {
		day := tx.days[key]
		change := DayChange{Key: key}
		if s.inspector != nil {
			detection, err := s.inspector.Inspect(ctx, key, day.bookings)
			if err != nil {
				return nil, fmt.Errorf("inspect %s: %w", key, err)
			}
			day.applyDetection(detection, &change)
		}
		if err := verifyNoOverlap(day.bookings); err != nil {
			return nil, err
		}
		for _, b := range day.bookings {
			if day.dirty[b.ID] {
				bookingWrites = append(bookingWrites, b)
				change.Changed = append(change.Changed, b)
			}
		}
		for id := range day.conflictDirty {
			conflictWrites = append(conflictWrites, day.conflicts[id])
		}
		change.Freed = freedCapacity(days[i].bookings, day.bookings)
		if len(change.Changed) > 0 || len(change.Opened) > 0 || len(change.Closed) > 0 || len(day.removed) > 0 {
			changes = append(changes, change)
		}
	}

	if err := s.repo.SaveDay(ctx, bookingWrites, conflictWrites); err != nil {
		return nil, fmt.Errorf("persist calendar: %w", err)
	}
	s.metrics.ObserveCommit(time.Since(started))

	s.mu.Lock()
	for i, key := range keys {
		day := tx.days[key]
		days[i].bookings = day.bookings
		days[i].conflicts = day.conflicts
		for _, b := range day.bookings {
			s.index[b.ID] = key
		}
	}
	s.mu.Unlock()

	s.logger.Debug("calendar commit", zap.Int("days", len(keys)), zap.Int("bookings", len(bookingWrites)), zap.Int("conflicts", len(conflictWrites)))
	return changes, nil
}

// Evict drops cached resource-days dated before `before` that nobody holds.
func (s *CalendarStore) Evict(before string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, d := range s.days {
		if key.Date >= before || !d.mu.TryLock() {
			continue
		}
		for _, b := range d.bookings {
			if s.index[b.ID] == key {
				delete(s.index, b.ID)
			}
		}
		delete(s.days, key)
		d.mu.Unlock()
		evicted++
	}
	return evicted
}

func uniqueKeys(keys []models.DayKey) []models.DayKey {
	seen := make(map[models.DayKey]bool, len(keys))
	out := make([]models.DayKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// verifyNoOverlap enforces that occupying bookings of a day are pairwise disjoint.
func verifyNoOverlap(bookings []models.Booking) error {
	occupying := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.Occupies() {
			occupying = append(occupying, b)
		}
	}
	sortBookings(occupying)
	for i := 1; i < len(occupying); i++ {
		if occupying[i].Start < occupying[i-1].End {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "bookings would overlap"), map[string]any{
				"resourceId":          occupying[i].ResourceID,
				"date":                occupying[i].Date,
				"conflictingBookings": []string{occupying[i-1].ID, occupying[i].ID},
			})
		}
	}
	return nil
}

// freedCapacity reports whether an interval that was occupied before is no longer held
// by the same booking.
func freedCapacity(before, after []models.Booking) bool {
	now := make(map[string]models.Booking, len(after))
	for _, b := range after {
		now[b.ID] = b
	}
	for _, b := range before {
		if !b.Status.Occupies() {
			continue
		}
		a, ok := now[b.ID]
		if !ok || !a.Status.Occupies() || a.Interval != b.Interval {
			return true
		}
	}
	return false
}

// CalendarTx gives fn access to the locked resource-days.
type CalendarTx struct {
	days map[models.DayKey]*DayTx
	now  time.Time
}

// Day returns the working copy of a locked resource-day.
func (t *CalendarTx) Day(key models.DayKey) (*DayTx, error) {
	day, ok := t.days[key]
	if !ok {
		return nil, fmt.Errorf("resource-day %s is not locked by this transaction", key)
	}
	return day, nil
}

// Now is the commit timestamp.
func (t *CalendarTx) Now() time.Time {
	return t.now
}

// Move transfers a booking between two locked days keeping its id.
func (t *CalendarTx) Move(id string, from, to models.DayKey, iv models.Interval) (models.Booking, error) {
	src, err := t.Day(from)
	if err != nil {
		return models.Booking{}, err
	}
	dst, err := t.Day(to)
	if err != nil {
		return models.Booking{}, err
	}
	b, err := src.Remove(id)
	if err != nil {
		return models.Booking{}, err
	}
	b.ResourceID = to.ResourceID
	b.Date = to.Date
	b.Interval = iv
	if err := dst.Insert(b); err != nil {
		return models.Booking{}, err
	}
	return b, nil
}

// DayTx is the mutable working copy of one resource-day.
type DayTx struct {
	key           models.DayKey
	now           time.Time
	bookings      []models.Booking
	conflicts     map[string]models.ConflictRecord
	dirty         map[string]bool
	removed       map[string]bool
	conflictDirty map[string]bool
}

func newDayTx(key models.DayKey, d *calendarDay, now time.Time) *DayTx {
	conflicts := make(map[string]models.ConflictRecord, len(d.conflicts))
	for id, c := range d.conflicts {
		conflicts[id] = c
	}
	return &DayTx{
		key:           key,
		now:           now,
		bookings:      append([]models.Booking(nil), d.bookings...),
		conflicts:     conflicts,
		dirty:         make(map[string]bool),
		removed:       make(map[string]bool),
		conflictDirty: make(map[string]bool),
	}
}

// Key identifies the resource-day.
func (d *DayTx) Key() models.DayKey { return d.key }

// Bookings returns a copy of every booking of the day.
func (d *DayTx) Bookings() []models.Booking {
	return append([]models.Booking(nil), d.bookings...)
}

// Occupying returns the bookings currently holding their interval.
func (d *DayTx) Occupying() []models.Booking {
	out := make([]models.Booking, 0, len(d.bookings))
	for _, b := range d.bookings {
		if b.Status.Occupies() {
			out = append(out, b)
		}
	}
	return out
}

// Get returns a booking by id.
func (d *DayTx) Get(id string) (models.Booking, bool) {
	for _, b := range d.bookings {
		if b.ID == id {
			return b, true
		}
	}
	return models.Booking{}, false
}

// Insert adds a booking, failing with ErrReservationRaceLost when it would overlap an
// occupying booking.
func (d *DayTx) Insert(b models.Booking) error {
	if b.Status.Occupies() {
		for _, o := range d.bookings {
			if o.Status.Occupies() && o.ID != b.ID && o.Overlaps(b.Interval) {
				return appErrors.WithDetails(appErrors.ErrReservationRaceLost, map[string]any{
					"resourceId":          d.key.ResourceID,
					"date":                d.key.Date,
					"conflictingBookings": []string{o.ID},
				})
			}
		}
	}
	return d.Import(b)
}

// Import adds a booking without the overlap check. The inspector displaces whatever
// it collides with before commit.
func (d *DayTx) Import(b models.Booking) error {
	if !b.Interval.Valid() {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "booking interval is empty or spans midnight"), map[string]any{
			"interval": b.Interval.String(),
		})
	}
	if _, exists := d.Get(b.ID); exists {
		return fmt.Errorf("booking %s already on %s", b.ID, d.key)
	}
	b.ResourceID = d.key.ResourceID
	b.Date = d.key.Date
	if b.CreatedAt.IsZero() {
		b.CreatedAt = d.now
	}
	b.UpdatedAt = d.now
	d.bookings = append(d.bookings, b)
	sortBookings(d.bookings)
	d.dirty[b.ID] = true
	delete(d.removed, b.ID)
	return nil
}

// Update replaces a booking with the same id.
func (d *DayTx) Update(b models.Booking) error {
	for i := range d.bookings {
		if d.bookings[i].ID == b.ID {
			b.UpdatedAt = d.now
			d.bookings[i] = b
			sortBookings(d.bookings)
			d.dirty[b.ID] = true
			return nil
		}
	}
	return appErrors.WithDetails(appErrors.ErrBookingNotFound, map[string]any{"bookingId": b.ID, "date": d.key.Date})
}

// SetStatus transitions a booking, enforcing the lifecycle.
func (d *DayTx) SetStatus(id string, status models.BookingStatus, reason string) (models.Booking, error) {
	b, ok := d.Get(id)
	if !ok {
		return models.Booking{}, appErrors.WithDetails(appErrors.ErrBookingNotFound, map[string]any{"bookingId": id})
	}
	if !b.Status.CanTransition(status) {
		return models.Booking{}, appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]any{
			"bookingId": id,
			"from":      b.Status,
			"to":        status,
		})
	}
	if status != models.BookingConflicted {
		b.PriorStatus = ""
	}
	b.Status = status
	if reason != "" {
		b.CancelReason = &reason
	}
	if err := d.Update(b); err != nil {
		return models.Booking{}, err
	}
	return b, nil
}

// Remove takes a booking off this day, used when it moves to another resource-day.
func (d *DayTx) Remove(id string) (models.Booking, error) {
	for i, b := range d.bookings {
		if b.ID == id {
			d.bookings = append(d.bookings[:i:i], d.bookings[i+1:]...)
			delete(d.dirty, id)
			d.removed[id] = true
			return b, nil
		}
	}
	return models.Booking{}, appErrors.WithDetails(appErrors.ErrBookingNotFound, map[string]any{"bookingId": id})
}

// Conflict returns a conflict record of the day.
func (d *DayTx) Conflict(id string) (models.ConflictRecord, bool) {
	c, ok := d.conflicts[id]
	return c, ok
}

// Conflicts returns the day's records sorted by id.
func (d *DayTx) Conflicts() []models.ConflictRecord {
	out := make([]models.ConflictRecord, 0, len(d.conflicts))
	for _, c := range d.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetConflict stores an updated conflict record.
func (d *DayTx) SetConflict(c models.ConflictRecord) {
	d.conflicts[c.ID] = c
	d.conflictDirty[c.ID] = true
}

func (d *DayTx) ignored(conflictID string) bool {
	rec, ok := d.conflicts[conflictID]
	return ok && rec.Status == models.ConflictIgnored
}

func (d *DayTx) overlapsOccupying(b models.Booking) bool {
	for _, o := range d.bookings {
		if o.ID != b.ID && o.Status.Occupies() && o.Overlaps(b.Interval) {
			return true
		}
	}
	return false
}

// applyDetection marks displaced bookings conflicted, restores bookings no longer
// displaced or covered by an ignored conflict, and reconciles the day's conflict
// records with the detection.
func (d *DayTx) applyDetection(det Detection, change *DayChange) {
	for i := range d.bookings {
		b := &d.bookings[i]
		recID, displaced := det.Displaced[b.ID]
		if displaced && d.ignored(recID) && !d.overlapsOccupying(*b) {
			// the operator accepted the exception
			displaced = false
		}
		switch {
		case displaced && b.Status.Occupies():
			b.PriorStatus = b.Status
			b.Status = models.BookingConflicted
			b.UpdatedAt = d.now
			d.dirty[b.ID] = true
		case !displaced && b.Status == models.BookingConflicted:
			restore := b.PriorStatus
			if restore == "" {
				restore = models.BookingTentative
			}
			b.Status = restore
			b.PriorStatus = ""
			b.UpdatedAt = d.now
			d.dirty[b.ID] = true
		}
	}

	detected := make(map[string]bool, len(det.Records))
	for _, rec := range det.Records {
		detected[rec.ID] = true
		existing, ok := d.conflicts[rec.ID]
		switch {
		case !ok:
			d.SetConflict(rec)
			change.Opened = append(change.Opened, rec)
		case existing.Status == models.ConflictIgnored:
		case existing.Status == models.ConflictResolved:
			rec.ResolutionID = nil
			d.SetConflict(rec)
			change.Opened = append(change.Opened, rec)
		default:
			updated := existing
			updated.Severity = rec.Severity
			updated.DisplacedIDs = rec.DisplacedIDs
			updated.RevenueAtRisk = rec.RevenueAtRisk
			updated.Reason = rec.Reason
			if !sameConflict(existing, updated) {
				d.SetConflict(updated)
			}
		}
	}
	for id, existing := range d.conflicts {
		if existing.Status != models.ConflictOpen || detected[id] {
			continue
		}
		closedAt := d.now
		existing.Status = models.ConflictResolved
		existing.ClosedAt = &closedAt
		d.SetConflict(existing)
		change.Closed = append(change.Closed, existing)
	}
	sort.Slice(change.Closed, func(i, j int) bool { return change.Closed[i].ID < change.Closed[j].ID })
}

func sameConflict(a, b models.ConflictRecord) bool {
	if a.Severity != b.Severity || a.Reason != b.Reason || !a.RevenueAtRisk.Equal(b.RevenueAtRisk) {
		return false
	}
	if len(a.DisplacedIDs) != len(b.DisplacedIDs) {
		return false
	}
	for i := range a.DisplacedIDs {
		if a.DisplacedIDs[i] != b.DisplacedIDs[i] {
			return false
		}
	}
	return true
}

// Transition moves one booking to status under its resource-day lock.
func (s *CalendarStore) Transition(ctx context.Context, bookingID string, status models.BookingStatus, reason string) (models.Booking, error) {
	key, err := s.Locate(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	err = s.WithDay(ctx, key, func(day *DayTx) error {
		_, err := day.SetStatus(bookingID, status, reason)
		return err
	})
	if err != nil {
		return models.Booking{}, err
	}
	return s.GetBooking(ctx, bookingID)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// ConflictReader lists persisted conflict records.
type ConflictReader interface {
	GetByID(ctx context.Context, id string) (*models.ConflictRecord, error)
	List(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, int, error)
}

// ConflictService runs the detector inside calendar locks and exposes conflict records.
type ConflictService struct {
	detector     *ConflictDetector
	availability *AvailabilityService
	store        *CalendarStore
	repo         ConflictReader
	logger       *zap.Logger
}

// NewConflictService wires the detector as the store's inspector.
func NewConflictService(detector *ConflictDetector, availability *AvailabilityService, store *CalendarStore, repo ConflictReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ConflictService{
		detector:     detector,
		availability: availability,
		store:        store,
		repo:         repo,
		logger:       logger,
	}
	store.SetInspector(svc)
	return svc
}

// Inspect implements DayInspector. Staff constraints are recomputed on every call.
func (s *ConflictService) Inspect(ctx context.Context, key models.DayKey, bookings []models.Booking) (Detection, error) {
	dc, err := s.availability.DayContext(ctx, key)
	if err != nil {
		return Detection{}, err
	}
	return s.detector.Detect(dc, bookings), nil
}

// List returns persisted conflict records.
func (s *ConflictService) List(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns the current state of a conflict record.
func (s *ConflictService) Get(ctx context.Context, id string) (*models.ConflictRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrConflictNotFound, map[string]any{"conflictId": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	snapshot, err := s.store.Snapshot(ctx, models.DayKey{ResourceID: rec.ResourceID, Date: rec.Date})
	if err != nil {
		return nil, err
	}
	for _, c := range snapshot.Conflicts {
		if c.ID == id {
			current := c
			return &current, nil
		}
	}
	return rec, nil
}

// Ignore closes an open conflict. A displaced booking returns to its prior status
// unless that would overlap an occupying booking: the loser of a double booking stays
// conflicted until it is rescheduled or cancelled.
func (s *ConflictService) Ignore(ctx context.Context, id, operatorID string) (*models.ConflictRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var out models.ConflictRecord
	key := models.DayKey{ResourceID: rec.ResourceID, Date: rec.Date}
	err = s.store.WithDay(ctx, key, func(day *DayTx) error {
		current, ok := day.Conflict(id)
		if !ok {
			return appErrors.WithDetails(appErrors.ErrConflictNotFound, map[string]any{"conflictId": id})
		}
		if !current.Open() {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "conflict is already closed"), map[string]any{
				"conflictId": id,
				"status":     current.Status,
			})
		}
		closedAt := day.now
		current.Status = models.ConflictIgnored
		current.ClosedAt = &closedAt
		day.SetConflict(current)
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("conflict ignored", zap.String("conflict_id", id), zap.String("operator_id", operatorID))
	return &out, nil
}

// DetectProposed runs the detector over a proposed set merged with the calendar without
// mutating anything. Only records touching a proposed booking are returned.
func (s *ConflictService) DetectProposed(ctx context.Context, proposed []models.Booking) ([]models.ConflictRecord, error) {
	byDay := make(map[models.DayKey][]models.Booking)
	proposedIDs := make(map[string]bool, len(proposed))
	for i, b := range proposed {
		if !b.Interval.Valid() {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "booking interval is empty or spans midnight"), map[string]any{
				"index": i,
			})
		}
		if _, err := models.ParseDate(b.Date, nil); err != nil {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, err.Error()), map[string]any{"index": i})
		}
		if b.ID == "" {
			b.ID = fmt.Sprintf("proposed-%d", i+1)
		}
		if b.Status == "" {
			b.Status = models.BookingTentative
		}
		proposedIDs[b.ID] = true
		key := models.DayKey{ResourceID: b.ResourceID, Date: b.Date}
		byDay[key] = append(byDay[key], b)
	}

	keys := make([]models.DayKey, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var out []models.ConflictRecord
	for _, key := range keys {
		snapshot, err := s.store.Snapshot(ctx, key)
		if err != nil {
			return nil, err
		}
		dc, err := s.availability.DayContext(ctx, key)
		if err != nil {
			return nil, err
		}
		bookings := make([]models.Booking, 0, len(snapshot.Bookings)+len(byDay[key]))
		for _, b := range snapshot.Bookings {
			if !proposedIDs[b.ID] {
				bookings = append(bookings, b)
			}
		}
		bookings = append(bookings, byDay[key]...)
		for _, rec := range s.detector.Detect(dc, bookings).Records {
			for _, id := range rec.BookingIDs {
				if proposedIDs[id] {
					out = append(out, rec)
					break
				}
			}
		}
	}
	if out == nil {
		out = []models.ConflictRecord{}
	}
	return out, nil
}

// Redetect re-runs the inspector on each resource-day, one lock at a time. Used when
// staff constraints change after bookings were made.
func (s *ConflictService) Redetect(ctx context.Context, keys []models.DayKey) error {
	var errs []error
	for _, key := range keys {
		if err := s.store.WithDay(ctx, key, func(*DayTx) error { return nil }); err != nil {
			s.logger.Warn("redetect failed", zap.String("resource_id", key.ResourceID), zap.String("date", key.Date), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

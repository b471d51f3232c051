package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// WaitlistStore persists waitlist entries. List returns them in rank order.
type WaitlistStore interface {
	Save(ctx context.Context, entry *models.WaitlistEntry) error
	GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, error)
}

// WaitlistService holds requests that could not be placed and offers them freed
// capacity in rank order: urgency, then arrival.
type WaitlistService struct {
	repo      WaitlistStore
	optimizer *Optimizer
	store     *CalendarStore
	notifier  *NotificationService
	metrics   *MetricsService
	offerTTL  time.Duration
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time

	sweepMu sync.Mutex
}

// NewWaitlistService constructs the waitlist manager.
func NewWaitlistService(repo WaitlistStore, optimizer *Optimizer, store *CalendarStore, notifier *NotificationService, metrics *MetricsService, offerTTL time.Duration, location *time.Location, logger *zap.Logger) *WaitlistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if offerTTL <= 0 {
		offerTTL = 2 * time.Hour
	}
	if location == nil {
		location = time.UTC
	}
	return &WaitlistService{
		repo:      repo,
		optimizer: optimizer,
		store:     store,
		notifier:  notifier,
		metrics:   metrics,
		offerTTL:  offerTTL,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *WaitlistService) today() string {
	return s.now().In(s.location).Format(models.DateLayout)
}

// Enqueue parks a request. The entry expires after the last date it tolerates.
func (s *WaitlistService) Enqueue(ctx context.Context, req models.PlacementRequest, reason string) (*models.WaitlistEntry, error) {
	last, err := req.LastDate()
	if err != nil {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, err.Error()), map[string]any{"preferredDate": req.PreferredDate})
	}
	now := s.now().UTC()
	if req.ArrivedAt.IsZero() {
		req.ArrivedAt = now
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	entry := &models.WaitlistEntry{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    models.WaitlistWaiting,
		Reason:    reason,
		ExpiresOn: last,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save waitlist entry")
	}
	s.logger.Info("request waitlisted",
		zap.String("waitlist_id", entry.ID),
		zap.String("customer_id", req.CustomerID),
		zap.String("service_id", req.ServiceID),
		zap.String("reason", reason),
	)
	return entry, nil
}

// List returns entries in rank order with derived position and wait days. Position is
// only given to entries still waiting.
func (s *WaitlistService) List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	today := s.today()
	position := 0
	for i := range entries {
		if entries[i].Status == models.WaitlistWaiting {
			position++
			entries[i].Position = position
		}
		created := entries[i].CreatedAt.In(s.location).Format(models.DateLayout)
		if days, err := models.DaysBetween(created, today); err == nil && days > 0 {
			entries[i].WaitDays = days
		}
	}
	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	return entries, nil
}

// Get returns one entry.
func (s *WaitlistService) Get(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrWaitlistNotFound, map[string]any{"waitlistId": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	return entry, nil
}

// Sweep releases lapsed offers, expires entries past their window and offers freed
// capacity to waiting entries in rank order. A failing entry is skipped, never fatal.
func (s *WaitlistService) Sweep(ctx context.Context) (*models.SweepReport, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	entries, err := s.repo.List(ctx, models.WaitlistFilter{Statuses: []models.WaitlistStatus{models.WaitlistWaiting, models.WaitlistOffered}})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	report := &models.SweepReport{Offered: []string{}, Expired: []string{}, Released: []string{}}
	now := s.now()
	today := s.today()

	released := make(map[string]bool)
	for i := range entries {
		entry := &entries[i]
		if !entry.OfferExpired(now) {
			continue
		}
		if err := s.releaseOffer(ctx, entry, "offer expired"); err != nil {
			s.logger.Warn("release offer failed", zap.String("waitlist_id", entry.ID), zap.Error(err))
			report.Skipped++
			continue
		}
		report.Released = append(report.Released, entry.ID)
		released[entry.ID] = true
	}

	waiting := 0
	for i := range entries {
		entry := &entries[i]
		if entry.Status != models.WaitlistWaiting {
			continue
		}
		if today > entry.ExpiresOn {
			entry.Status = models.WaitlistExpired
			entry.Reason = "date range elapsed"
			entry.UpdatedAt = now.UTC()
			if err := s.repo.Save(ctx, entry); err != nil {
				s.logger.Warn("expire waitlist entry failed", zap.String("waitlist_id", entry.ID), zap.Error(err))
				report.Skipped++
				continue
			}
			s.notifier.WaitlistExpired(ctx, entry)
			report.Expired = append(report.Expired, entry.ID)
			continue
		}
		if released[entry.ID] {
			// the slot it held goes to someone else first
			waiting++
			continue
		}
		offered, err := s.offer(ctx, entry)
		if err != nil {
			s.logger.Warn("waitlist placement failed", zap.String("waitlist_id", entry.ID), zap.Error(err))
			report.Skipped++
			waiting++
			continue
		}
		if !offered {
			waiting++
			continue
		}
		report.Offered = append(report.Offered, entry.ID)
	}
	s.metrics.SetWaitlistDepth(waiting)
	s.logger.Info("waitlist sweep",
		zap.Int("offered", len(report.Offered)),
		zap.Int("expired", len(report.Expired)),
		zap.Int("released", len(report.Released)),
		zap.Int("waiting", waiting),
	)
	return report, nil
}

// offer places the entry as a tentative hold and records the offer.
func (s *WaitlistService) offer(ctx context.Context, entry *models.WaitlistEntry) (bool, error) {
	req := entry.Request
	req.Source = models.SourceWaitlist
	today := s.today()
	if req.PreferredDate < today {
		// the window start moved past; keep the remaining tolerance
		if days, err := models.DaysBetween(req.PreferredDate, today); err == nil {
			req.PreferredDate = today
			req.Flexibility.DateRangeDays -= days
			req.PreferredStart = nil
		}
	}
	attempt, err := s.optimizer.Place(ctx, req, models.BookingTentative)
	if err != nil {
		return false, err
	}
	if attempt.Booking == nil {
		return false, nil
	}
	hold := *attempt.Booking
	expires := s.now().UTC().Add(s.offerTTL)
	entry.Status = models.WaitlistOffered
	entry.OfferBookingID = &hold.ID
	entry.OfferExpiresAt = &expires
	entry.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, entry); err != nil {
		if _, cancelErr := s.store.Transition(ctx, hold.ID, models.BookingCancelled, "waitlist offer not recorded"); cancelErr != nil {
			s.logger.Error("orphaned waitlist hold", zap.String("booking_id", hold.ID), zap.Error(cancelErr))
		}
		return false, err
	}
	s.notifier.WaitlistOffer(ctx, entry, hold)
	s.logger.Info("waitlist offer",
		zap.String("waitlist_id", entry.ID),
		zap.String("booking_id", hold.ID),
		zap.String("resource_id", hold.ResourceID),
		zap.String("date", hold.Date),
	)
	return true, nil
}

// releaseOffer cancels the hold and returns the entry to the queue.
func (s *WaitlistService) releaseOffer(ctx context.Context, entry *models.WaitlistEntry, reason string) error {
	if entry.OfferBookingID != nil {
		if err := s.cancelHold(ctx, *entry.OfferBookingID, reason); err != nil {
			return err
		}
	}
	entry.Status = models.WaitlistWaiting
	entry.OfferBookingID = nil
	entry.OfferExpiresAt = nil
	entry.UpdatedAt = s.now().UTC()
	return s.repo.Save(ctx, entry)
}

// cancelHold cancels a hold booking unless it already reached a terminal status.
func (s *WaitlistService) cancelHold(ctx context.Context, bookingID, reason string) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, appErrors.ErrBookingNotFound) {
			return nil
		}
		return err
	}
	if b.Status.Terminal() {
		return nil
	}
	_, err = s.store.Transition(ctx, bookingID, models.BookingCancelled, reason)
	return err
}

// Accept confirms the held booking of an outstanding offer.
func (s *WaitlistService) Accept(ctx context.Context, id string) (*models.WaitlistEntry, *models.Booking, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status != models.WaitlistOffered || entry.OfferBookingID == nil {
		return nil, nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "no outstanding offer"), map[string]any{
			"waitlistId": id,
			"status":     entry.Status,
		})
	}
	if entry.OfferExpired(s.now()) {
		if err := s.releaseOffer(ctx, entry, "offer expired"); err != nil {
			return nil, nil, err
		}
		return nil, nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "offer expired"), map[string]any{"waitlistId": id})
	}
	booking, err := s.store.Transition(ctx, *entry.OfferBookingID, models.BookingConfirmed, "")
	if err != nil {
		return nil, nil, err
	}
	entry.Status = models.WaitlistBooked
	entry.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save waitlist entry")
	}
	s.notifier.BookingConfirmed(ctx, booking)
	return entry, &booking, nil
}

// Decline withdraws an entry, cancelling any hold it has.
func (s *WaitlistService) Decline(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status.Terminal() {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "waitlist entry is closed"), map[string]any{
			"waitlistId": id,
			"status":     entry.Status,
		})
	}
	if entry.OfferBookingID != nil {
		if err := s.cancelHold(ctx, *entry.OfferBookingID, "waitlist offer declined"); err != nil {
			return nil, err
		}
	}
	entry.Status = models.WaitlistCancelled
	entry.Reason = "declined by customer"
	entry.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save waitlist entry")
	}
	return entry, nil
}

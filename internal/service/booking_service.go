package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// Placement outcomes of an intake request.
const (
	ResultPlaced     = "placed"
	ResultConflicted = "conflicted"
	ResultWaitlisted = "waitlisted"
)

// PlacementResult is the answer to a booking request: a booking, a conflict reference
// or a waitlist entry, with a message the caller can show.
type PlacementResult struct {
	RequestID     string                 `json:"requestId,omitempty"`
	Outcome       string                 `json:"outcome"`
	Booking       *models.Booking        `json:"booking,omitempty"`
	Conflict      *models.ConflictRecord `json:"conflict,omitempty"`
	WaitlistEntry *models.WaitlistEntry  `json:"waitlistEntry,omitempty"`
	Message       string                 `json:"message"`
}

// DirectBooking is a front-desk booking at an explicit resource and time.
type DirectBooking struct {
	CustomerID   string              `validate:"required"`
	ServiceID    string              `validate:"required"`
	ResourceID   string              `validate:"required"`
	Date         string              `validate:"required"`
	Start        models.Minute       `validate:"min=0,max=1439"`
	Confirmed    bool
	Paid         bool
	Urgency      models.Urgency      `validate:"omitempty,oneof=low normal high urgent"`
	CustomerTier models.CustomerTier `validate:"omitempty,oneof=standard gold vip"`
	Flexibility  models.Flexibility
}

// BookingService is the intake facade: it validates requests, runs the optimizer and
// falls back to the waitlist.
type BookingService struct {
	optimizer   *Optimizer
	waitlist    *WaitlistService
	store       *CalendarStore
	directory   *DirectoryService
	notifier    *NotificationService
	metrics     *MetricsService
	validate    *validator.Validate
	autoConfirm bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewBookingService constructs the intake service.
func NewBookingService(optimizer *Optimizer, waitlist *WaitlistService, store *CalendarStore, directory *DirectoryService, notifier *NotificationService, metrics *MetricsService, validate *validator.Validate, autoConfirm bool, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		optimizer:   optimizer,
		waitlist:    waitlist,
		store:       store,
		directory:   directory,
		notifier:    notifier,
		metrics:     metrics,
		validate:    validate,
		autoConfirm: autoConfirm,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *BookingService) normalise(req models.PlacementRequest) models.PlacementRequest {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ArrivedAt.IsZero() {
		req.ArrivedAt = s.now().UTC()
	}
	if req.Urgency == "" {
		req.Urgency = models.UrgencyNormal
	}
	if req.CustomerTier == "" {
		req.CustomerTier = models.TierStandard
	}
	if req.Source == "" {
		req.Source = models.SourceOptimizer
	}
	return req
}

// Submit places one request or waitlists it. Placement never overlaps an existing booking.
func (s *BookingService) Submit(ctx context.Context, req models.PlacementRequest) (*PlacementResult, error) {
	req = s.normalise(req)
	status := models.BookingTentative
	if s.autoConfirm {
		status = models.BookingConfirmed
	}
	attempt, err := s.optimizer.Place(ctx, req, status)
	if err != nil {
		s.metrics.RecordPlacement(OutcomeRejected, req.Source)
		return nil, err
	}
	if attempt.Booking != nil {
		s.metrics.RecordPlacement(OutcomePlaced, req.Source)
		result := &PlacementResult{
			RequestID: req.RequestID,
			Outcome:   ResultPlaced,
			Booking:   attempt.Booking,
			Message:   "booking " + string(attempt.Booking.Status),
		}
		switch attempt.Booking.Status {
		case models.BookingConfirmed:
			s.notifier.BookingConfirmed(ctx, *attempt.Booking)
		case models.BookingConflicted:
			result.Outcome = ResultConflicted
			result.Message = "conflict requires staff review"
		}
		return result, nil
	}

	entry, err := s.waitlist.Enqueue(ctx, req, attempt.Reason)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPlacement(OutcomeWaitlisted, req.Source)
	return &PlacementResult{
		RequestID:     req.RequestID,
		Outcome:       ResultWaitlisted,
		WaitlistEntry: entry,
		Message:       "no slot available, added to waitlist",
	}, nil
}

// SubmitBatch places requests by descending urgency, then ascending arrival. Results are
// returned in input order; a malformed request yields an error entry without stopping
// the rest of the batch.
func (s *BookingService) SubmitBatch(ctx context.Context, reqs []models.PlacementRequest) ([]PlacementResult, []error) {
	normalised := make([]models.PlacementRequest, len(reqs))
	for i, r := range reqs {
		normalised[i] = s.normalise(r)
	}
	results := make([]PlacementResult, len(reqs))
	errs := make([]error, len(reqs))
	for _, i := range BatchOrder(normalised) {
		res, err := s.Submit(ctx, normalised[i])
		if err != nil {
			errs[i] = err
			results[i] = PlacementResult{RequestID: normalised[i].RequestID, Message: appErrors.FromError(err).Message}
			continue
		}
		results[i] = *res
	}
	return results, errs
}

// Direct records a front-desk booking as asked. An overlap is not rejected: the
// detector displaces the weaker booking and the result references the conflict.
func (s *BookingService) Direct(ctx context.Context, in DirectBooking) (*PlacementResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if _, err := models.ParseDate(in.Date, nil); err != nil {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, err.Error()), map[string]any{"date": in.Date})
	}
	svc, err := s.directory.Service(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.Resource(ctx, in.ResourceID); err != nil {
		return nil, err
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = models.UrgencyNormal
	}
	tier := in.CustomerTier
	if tier == "" {
		tier = models.TierStandard
	}
	status := models.BookingTentative
	if in.Confirmed {
		status = models.BookingConfirmed
	}
	booking := models.Booking{
		ID:           uuid.NewString(),
		ResourceID:   in.ResourceID,
		ServiceID:    svc.ID,
		CustomerID:   in.CustomerID,
		Date:         in.Date,
		Interval:     models.NewInterval(in.Start, svc.DurationMinutes),
		Status:       status,
		Priority:     models.PriorityScore(urgency, tier, in.Paid),
		Urgency:      urgency,
		CustomerTier: tier,
		Paid:         in.Paid,
		Price:        svc.Price,
		Flexibility:  in.Flexibility,
		Source:       models.SourceDirect,
	}
	key := models.DayKey{ResourceID: in.ResourceID, Date: in.Date}
	if err := s.store.WithDay(ctx, key, func(day *DayTx) error {
		return day.Import(booking)
	}); err != nil {
		return nil, err
	}

	snapshot, err := s.store.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	result := &PlacementResult{Outcome: ResultPlaced, Message: "booking " + string(status)}
	for i := range snapshot.Bookings {
		if snapshot.Bookings[i].ID == booking.ID {
			b := snapshot.Bookings[i]
			result.Booking = &b
		}
	}
	for i := range snapshot.Conflicts {
		c := snapshot.Conflicts[i]
		if !c.Open() {
			continue
		}
		for _, id := range c.BookingIDs {
			if id == booking.ID {
				result.Outcome = ResultConflicted
				result.Conflict = &c
				result.Message = "conflict requires staff review"
			}
		}
	}
	s.metrics.RecordPlacement(result.Outcome, models.SourceDirect)
	if result.Booking != nil && result.Booking.Status == models.BookingConfirmed {
		s.notifier.BookingConfirmed(ctx, *result.Booking)
	}
	return result, nil
}

// Get returns a booking.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Confirm moves a tentative booking to confirmed. A conflicted booking is settled by its
// resolution, not by confirming it over the booking that displaced it.
func (s *BookingService) Confirm(ctx context.Context, id string) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingConflicted {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]any{
			"bookingId": id,
			"from":      current.Status,
			"to":        models.BookingConfirmed,
		})
	}
	b, err := s.store.Transition(ctx, id, models.BookingConfirmed, "")
	if err != nil {
		return nil, err
	}
	s.notifier.BookingConfirmed(ctx, b)
	return &b, nil
}

// Cancel retires a booking. Freed capacity triggers a waitlist sweep through the store listeners.
func (s *BookingService) Cancel(ctx context.Context, id, reason string) (*models.Booking, error) {
	if reason == "" {
		reason = "cancelled"
	}
	b, err := s.store.Transition(ctx, id, models.BookingCancelled, reason)
	if err != nil {
		return nil, err
	}
	s.notifier.BookingCancelled(ctx, b)
	s.logger.Info("booking cancelled", zap.String("booking_id", id), zap.String("reason", reason))
	return &b, nil
}

// Complete marks a confirmed booking as done.
func (s *BookingService) Complete(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.store.Transition(ctx, id, models.BookingCompleted, "")
	if err != nil {
		return nil, err
	}
	return &b, nil
}

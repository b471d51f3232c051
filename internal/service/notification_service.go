package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/events"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
	"github.com/reconsumeralization/modernmen-sub011/pkg/middleware/requestid"
)

// NotificationService turns engine outcomes into events for the notification collaborator.
// Publishing is best effort: a broker failure is logged and never fails the mutation that
// caused it, which is already committed.
type NotificationService struct {
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(publisher events.Publisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	return &NotificationService{publisher: publisher, logger: logger, now: time.Now}
}

func (s *NotificationService) publish(ctx context.Context, event models.Event) {
	if s == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	event.RequestID = requestid.FromContext(ctx)
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.FromContext(ctx, s.logger).Warn("publish event failed",
			zap.String("type", string(event.Type)),
			zap.String("subject", event.Subject),
			zap.Error(err),
		)
	}
}

func bookingEvent(kind models.EventType, b models.Booking) models.Event {
	return models.Event{
		Type:       kind,
		CustomerID: b.CustomerID,
		ResourceID: b.ResourceID,
		Date:       b.Date,
		Subject:    b.ID,
		Data: map[string]any{
			"serviceId": b.ServiceID,
			"start":     b.Start.String(),
			"end":       b.End.String(),
			"status":    b.Status,
		},
	}
}

// BookingConfirmed announces a confirmed booking.
func (s *NotificationService) BookingConfirmed(ctx context.Context, b models.Booking) {
	s.publish(ctx, bookingEvent(models.EventBookingConfirmed, b))
}

// BookingCancelled announces a cancellation.
func (s *NotificationService) BookingCancelled(ctx context.Context, b models.Booking) {
	event := bookingEvent(models.EventBookingCancelled, b)
	if b.CancelReason != nil {
		event.Data["reason"] = *b.CancelReason
	}
	s.publish(ctx, event)
}

// BookingReassigned announces a booking moved to another resource at the same time.
func (s *NotificationService) BookingReassigned(ctx context.Context, b models.Booking, fromResource string) {
	event := bookingEvent(models.EventBookingReassigned, b)
	event.Data["fromResourceId"] = fromResource
	s.publish(ctx, event)
}

// ConflictDetected announces a newly opened conflict record.
func (s *NotificationService) ConflictDetected(ctx context.Context, rec models.ConflictRecord) {
	s.publish(ctx, models.Event{
		Type:       models.EventConflictDetected,
		ResourceID: rec.ResourceID,
		Date:       rec.Date,
		Subject:    rec.ID,
		Data: map[string]any{
			"type":          rec.Type,
			"severity":      rec.Severity,
			"bookingIds":    []string(rec.BookingIDs),
			"displacedIds":  []string(rec.DisplacedIDs),
			"revenueAtRisk": rec.RevenueAtRisk.String(),
		},
	})
}

// ResolutionPending asks operators to review a resolution.
func (s *NotificationService) ResolutionPending(ctx context.Context, res *models.Resolution) {
	s.publish(ctx, models.Event{
		Type:    models.EventResolutionPending,
		Subject: res.ID,
		Data: map[string]any{
			"conflictId": res.ConflictID,
			"severity":   res.Severity,
			"candidates": len(res.Candidates),
		},
	})
}

// ResolutionApplied announces an applied remediation.
func (s *NotificationService) ResolutionApplied(ctx context.Context, res *models.Resolution, affected models.Booking) {
	data := map[string]any{
		"conflictId": res.ConflictID,
		"action":     res.Action,
	}
	if c, ok := res.ChosenCandidate(); ok && c.Compensation != nil {
		data["compensation"] = c.Compensation
	}
	s.publish(ctx, models.Event{
		Type:       models.EventResolutionApplied,
		CustomerID: affected.CustomerID,
		ResourceID: affected.ResourceID,
		Date:       affected.Date,
		Subject:    res.ID,
		Data:       data,
	})
}

// WaitlistOffer tells a waiting customer a slot is held for them.
func (s *NotificationService) WaitlistOffer(ctx context.Context, entry *models.WaitlistEntry, hold models.Booking) {
	data := map[string]any{
		"bookingId": hold.ID,
		"start":     hold.Start.String(),
		"end":       hold.End.String(),
	}
	if entry.OfferExpiresAt != nil {
		data["expiresAt"] = entry.OfferExpiresAt.UTC().Format(time.RFC3339)
	}
	s.publish(ctx, models.Event{
		Type:       models.EventWaitlistOffer,
		CustomerID: entry.Request.CustomerID,
		ResourceID: hold.ResourceID,
		Date:       hold.Date,
		Subject:    entry.ID,
		Data:       data,
	})
}

// WaitlistExpired tells the customer their request window elapsed.
func (s *NotificationService) WaitlistExpired(ctx context.Context, entry *models.WaitlistEntry) {
	s.publish(ctx, models.Event{
		Type:       models.EventWaitlistExpired,
		CustomerID: entry.Request.CustomerID,
		Subject:    entry.ID,
		Data:       map[string]any{"serviceId": entry.Request.ServiceID, "expiresOn": entry.ExpiresOn},
	})
}

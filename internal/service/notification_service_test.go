package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/middleware/requestid"
)

type capturePublisher struct {
	events []models.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event models.Event) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func TestNotificationCarriesRequestID(t *testing.T) {
	pub := &capturePublisher{}
	svc := NewNotificationService(pub, nil)
	svc.now = func() time.Time { return fixtureNow }

	ctx := requestid.WithValue(context.Background(), "req-42")
	svc.BookingConfirmed(ctx, fixtureBooking("b-1", "stylist-1", "10:00", models.BookingConfirmed))

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, models.EventBookingConfirmed, evt.Type)
	assert.Equal(t, "req-42", evt.RequestID)
	assert.Equal(t, "b-1", evt.Subject)
	assert.Equal(t, "10:00", evt.Data["start"])
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, fixtureNow.UTC(), evt.OccurredAt)
}

func TestNotificationSwallowsBrokerErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	svc := NewNotificationService(pub, nil)

	assert.NotPanics(t, func() {
		svc.BookingCancelled(context.Background(), fixtureBooking("b-1", "stylist-1", "10:00", models.BookingCancelled))
	})
	require.Len(t, pub.events, 1)
	assert.Empty(t, pub.events[0].RequestID)
}

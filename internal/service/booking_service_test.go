package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

func TestBookingSubmitAutoConfirms(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{autoConfirm: true})

	result, err := f.bookings.Submit(context.Background(), cutRequest("r-1"))
	require.NoError(t, err)
	assert.Equal(t, ResultPlaced, result.Outcome)
	require.NotNil(t, result.Booking)
	assert.Equal(t, models.BookingConfirmed, result.Booking.Status)
	assert.Equal(t, "stylist-1", result.Booking.ResourceID)
	assert.Equal(t, "10:00", result.Booking.Start.String())
}

func TestBookingSubmitWaitlistsWhenNothingFits(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	f.seed(t, fixtureBooking("busy", "stylist-1", "10:00", models.BookingConfirmed))

	req := cutRequest("r-1")
	req.Flexibility = models.Flexibility{}
	result, err := f.bookings.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ResultWaitlisted, result.Outcome)
	assert.Nil(t, result.Booking)
	require.NotNil(t, result.WaitlistEntry)
	assert.Equal(t, models.WaitlistWaiting, result.WaitlistEntry.Status)
	assert.Equal(t, fixtureDate, result.WaitlistEntry.ExpiresOn)
}

func TestBookingSubmitBatchPlacesUrgentFirst(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})

	normal := cutRequest("normal")
	normal.Flexibility = models.Flexibility{}
	normal.ArrivedAt = fixtureNow
	urgent := cutRequest("urgent")
	urgent.Flexibility = models.Flexibility{}
	urgent.Urgency = models.UrgencyUrgent
	urgent.ArrivedAt = fixtureNow.Add(time.Minute)
	bad := cutRequest("bad")
	bad.ServiceID = "perm"

	results, errs := f.bookings.SubmitBatch(context.Background(), []models.PlacementRequest{normal, urgent, bad})
	require.Len(t, results, 3)
	require.Len(t, errs, 3)

	assert.NoError(t, errs[0])
	assert.Equal(t, "normal", results[0].RequestID)
	assert.Equal(t, ResultWaitlisted, results[0].Outcome)

	assert.NoError(t, errs[1])
	assert.Equal(t, ResultPlaced, results[1].Outcome)
	require.NotNil(t, results[1].Booking)
	assert.Equal(t, models.UrgencyUrgent, results[1].Booking.Urgency)

	assert.True(t, errors.Is(errs[2], appErrors.ErrServiceNotFound))
}

func TestBookingDirectOverlapReturnsConflict(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	held := fixtureBooking("held", "stylist-1", "10:00", models.BookingConfirmed)
	held.Paid = true
	f.seed(t, held)

	result, err := f.bookings.Direct(context.Background(), DirectBooking{
		CustomerID: "walk-in",
		ServiceID:  "cut",
		ResourceID: "stylist-1",
		Date:       fixtureDate,
		Start:      models.MustMinute("10:30"),
		Confirmed:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, ResultConflicted, result.Outcome)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, models.ConflictDoubleBooking, result.Conflict.Type)
	assert.Equal(t, models.SeverityHigh, result.Conflict.Severity)
	require.NotNil(t, result.Booking)
	assert.Equal(t, models.BookingConflicted, result.Booking.Status)
	assert.Equal(t, []string{result.Booking.ID}, []string(result.Conflict.DisplacedIDs))

	kept, err := f.bookings.Get(context.Background(), "held")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, kept.Status)

	_, err = f.bookings.Confirm(context.Background(), result.Booking.ID)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestBookingDirectValidation(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})

	_, err := f.bookings.Direct(context.Background(), DirectBooking{CustomerID: "c", ServiceID: "cut", Date: fixtureDate})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.bookings.Direct(context.Background(), DirectBooking{
		CustomerID: "c", ServiceID: "perm", ResourceID: "stylist-1", Date: fixtureDate, Start: models.MustMinute("10:00"),
	})
	assert.True(t, errors.Is(err, appErrors.ErrServiceNotFound))

	_, err = f.bookings.Direct(context.Background(), DirectBooking{
		CustomerID: "c", ServiceID: "cut", ResourceID: "stylist-1", Date: "10/03/2025", Start: models.MustMinute("10:00"),
	})
	assert.True(t, errors.Is(err, appErrors.ErrConstraintViolation))
}

func TestBookingLifecycle(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	f.seed(t, fixtureBooking("b-1", "stylist-1", "10:00", models.BookingTentative))

	confirmed, err := f.bookings.Confirm(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)

	completed, err := f.bookings.Complete(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, completed.Status)

	_, err = f.bookings.Cancel(context.Background(), "b-1", "")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.bookings.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrBookingNotFound))
}

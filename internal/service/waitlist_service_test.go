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

// waitlistedCut leaves one rigid request on the waitlist behind a confirmed booking.
func waitlistedCut(t *testing.T, f *engineFixture) *models.WaitlistEntry {
	t.Helper()
	f.seed(t, fixtureBooking("busy", "stylist-1", "10:00", models.BookingConfirmed))
	req := cutRequest("r-1")
	req.Flexibility = models.Flexibility{}
	result, err := f.bookings.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ResultWaitlisted, result.Outcome)
	return result.WaitlistEntry
}

func TestWaitlistOfferAfterCancellation(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	entry := waitlistedCut(t, f)

	report, err := f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Offered)

	_, err = f.bookings.Cancel(context.Background(), "busy", "customer called")
	require.NoError(t, err)

	report, err = f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{entry.ID}, report.Offered)

	offered, err := f.waitlist.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistOffered, offered.Status)
	require.NotNil(t, offered.OfferBookingID)
	require.NotNil(t, offered.OfferExpiresAt)
	assert.Equal(t, fixtureNow.Add(time.Hour).UTC(), *offered.OfferExpiresAt)

	hold, err := f.store.GetBooking(context.Background(), *offered.OfferBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingTentative, hold.Status)
	assert.Equal(t, models.SourceWaitlist, hold.Source)
	assert.Equal(t, "10:00", hold.Start.String())

	accepted, booking, err := f.waitlist.Accept(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistBooked, accepted.Status)
	assert.Equal(t, models.BookingConfirmed, booking.Status)
	assert.Equal(t, hold.ID, booking.ID)
}

func TestWaitlistExpiredOfferReleasesHold(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	entry := waitlistedCut(t, f)
	_, err := f.bookings.Cancel(context.Background(), "busy", "")
	require.NoError(t, err)

	_, err = f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	offered, err := f.waitlist.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	holdID := *offered.OfferBookingID

	f.waitlist.now = func() time.Time { return fixtureNow.Add(2 * time.Hour) }
	report, err := f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{entry.ID}, report.Released)
	assert.Empty(t, report.Offered)

	released, err := f.waitlist.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, released.Status)
	assert.Nil(t, released.OfferBookingID)

	hold, err := f.store.GetBooking(context.Background(), holdID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, hold.Status)

	_, _, err = f.waitlist.Accept(context.Background(), entry.ID)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestWaitlistSweepExpiresElapsedEntries(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	req := cutRequest("late")
	req.PreferredDate = "2025-03-08"
	entry, err := f.waitlist.Enqueue(context.Background(), req, "no slot")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-08", entry.ExpiresOn)

	report, err := f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{entry.ID}, report.Expired)

	expired, err := f.waitlist.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistExpired, expired.Status)
}

func TestWaitlistDecline(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	entry := waitlistedCut(t, f)

	declined, err := f.waitlist.Decline(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistCancelled, declined.Status)

	_, err = f.waitlist.Decline(context.Background(), entry.ID)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.waitlist.Decline(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrWaitlistNotFound))
}

func TestWaitlistListRanksByUrgencyThenArrival(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	early := cutRequest("early")
	early.ArrivedAt = fixtureNow.Add(-48 * time.Hour)
	urgent := cutRequest("urgent")
	urgent.Urgency = models.UrgencyUrgent
	urgent.ArrivedAt = fixtureNow

	f.waitlist.now = func() time.Time { return fixtureNow.Add(-48 * time.Hour) }
	first, err := f.waitlist.Enqueue(context.Background(), early, "no slot")
	require.NoError(t, err)
	f.waitlist.now = func() time.Time { return fixtureNow }
	second, err := f.waitlist.Enqueue(context.Background(), urgent, "no slot")
	require.NoError(t, err)

	entries, err := f.waitlist.List(context.Background(), models.WaitlistFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, 0, entries[0].WaitDays)
	assert.Equal(t, first.ID, entries[1].ID)
	assert.Equal(t, 2, entries[1].Position)
	assert.Equal(t, 2, entries[1].WaitDays)
}

func TestWaitlistOffersHigherRankFirstAndPassesOnExpiry(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	f.seed(t, fixtureBooking("busy", "stylist-1", "10:00", models.BookingConfirmed))

	routine := cutRequest("routine")
	routine.Flexibility = models.Flexibility{}
	routine.ArrivedAt = fixtureNow.Add(-24 * time.Hour)
	urgent := cutRequest("urgent")
	urgent.Flexibility = models.Flexibility{}
	urgent.Urgency = models.UrgencyUrgent
	urgent.CustomerTier = models.TierVIP

	first, err := f.waitlist.Enqueue(context.Background(), routine, "no slot")
	require.NoError(t, err)
	second, err := f.waitlist.Enqueue(context.Background(), urgent, "no slot")
	require.NoError(t, err)

	_, err = f.bookings.Cancel(context.Background(), "busy", "customer called")
	require.NoError(t, err)

	report, err := f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, report.Offered)

	waiting, err := f.waitlist.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, waiting.Status)
	assert.Nil(t, waiting.OfferBookingID)

	f.waitlist.now = func() time.Time { return fixtureNow.Add(2 * time.Hour) }
	report, err = f.waitlist.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, report.Released)
	assert.Equal(t, []string{first.ID}, report.Offered)

	passedOn, err := f.waitlist.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistOffered, passedOn.Status)
	require.NotNil(t, passedOn.OfferBookingID)
	hold, err := f.store.GetBooking(context.Background(), *passedOn.OfferBookingID)
	require.NoError(t, err)
	assert.Equal(t, "stylist-1", hold.ResourceID)
	assert.Equal(t, "10:00", hold.Start.String())

	lapsed, err := f.waitlist.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, lapsed.Status)
}

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/internal/service"
)

type stubLister struct {
	bookings []models.Booking
	filter   models.BookingFilter
}

func (s *stubLister) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.filter = filter
	return s.bookings, nil
}

type stubDays struct{}

func (stubDays) DayContext(_ context.Context, key models.DayKey) (service.DayContext, error) {
	return service.DayContext{
		Key:      key,
		Resource: &models.Resource{ID: key.ResourceID, Skills: []string{"cut"}, Active: true},
		Windows:  []models.Interval{models.NewInterval(models.MustMinute("09:00"), 540)},
	}, nil
}

func booking(id, resource, start string) models.Booking {
	return models.Booking{
		ID:         id,
		ResourceID: resource,
		ServiceID:  "cut",
		Date:       "2025-03-10",
		Interval:   models.NewInterval(models.MustMinute(start), 60),
		Status:     models.BookingConfirmed,
		Price:      decimal.NewFromInt(50),
	}
}

func TestAuditReportsOverlapsPerDay(t *testing.T) {
	lister := &stubLister{bookings: []models.Booking{
		booking("b-1", "stylist-1", "10:00"),
		booking("b-2", "stylist-1", "10:30"),
		booking("b-3", "stylist-2", "10:00"),
	}}

	report, err := audit(context.Background(), lister, stubDays{}, service.NewConflictDetector(decimal.Zero), models.BookingFilter{From: "2025-03-10", To: "2025-03-10"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Days)
	assert.Equal(t, 3, report.Bookings)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, models.ConflictDoubleBooking, report.Conflicts[0].Type)
	assert.Equal(t, "stylist-1", report.Conflicts[0].ResourceID)
	assert.Len(t, lister.filter.Statuses, 3)

	var out bytes.Buffer
	require.NoError(t, write(&out, "yaml", report))
	assert.Contains(t, out.String(), "conflicts:")
	assert.Error(t, write(&out, "xml", report))
}

func TestAuditRejectsBadRange(t *testing.T) {
	_, err := audit(context.Background(), &stubLister{}, stubDays{}, service.NewConflictDetector(decimal.Zero), models.BookingFilter{From: "yesterday", To: "2025-03-10"})
	assert.Error(t, err)
}

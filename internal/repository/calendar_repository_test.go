package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var bookingColumnNames = []string{"id", "resource_id", "service_id", "customer_id", "booking_date", "start_minute", "end_minute",
	"status", "prior_status", "priority", "urgency", "customer_tier", "paid", "price", "flex_date_range_days", "flex_time_hours",
	"flex_resource", "component", "parent_booking_id", "rescheduled_from", "source", "cancel_reason", "created_at", "updated_at"}

var conflictColumnNames = []string{"id", "type", "severity", "resource_id", "conflict_date", "booking_ids", "displaced_ids",
	"revenue_at_risk", "reason", "status", "resolution_id", "detected_at", "closed_at"}

func TestCalendarRepositoryLoadDay(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM bookings WHERE resource_id = \\$1 AND booking_date = \\$2").
		WithArgs("stylist-1", "2025-03-03").
		WillReturnRows(sqlmock.NewRows(bookingColumnNames).
			AddRow("b-1", "stylist-1", "svc-cut", "c-1", "2025-03-03", 540, 570, "confirmed", "", 0.7, "normal", "gold", true,
				"45.00", 1, 2.0, true, "", nil, nil, "optimizer", nil, now, now))
	mock.ExpectQuery("SELECT .* FROM conflicts WHERE resource_id = \\$1 AND conflict_date = \\$2").
		WithArgs("stylist-1", "2025-03-03").
		WillReturnRows(sqlmock.NewRows(conflictColumnNames).
			AddRow("cf-1", "double_booking", "high", "stylist-1", "2025-03-03", "{b-1,b-2}", "{b-2}", "30.00", "overlap", "open", nil, now, nil))

	snapshot, err := repo.LoadDay(context.Background(), models.DayKey{ResourceID: "stylist-1", Date: "2025-03-03"})
	require.NoError(t, err)
	require.Len(t, snapshot.Bookings, 1)
	b := snapshot.Bookings[0]
	assert.Equal(t, models.MustMinute("09:00"), b.Start)
	assert.Equal(t, models.MustMinute("09:30"), b.End)
	assert.True(t, b.Price.Equal(decimal.RequireFromString("45")))
	assert.True(t, b.ResourceFlexible)
	require.Len(t, snapshot.Conflicts, 1)
	assert.Equal(t, []string{"b-1", "b-2"}, []string(snapshot.Conflicts[0].BookingIDs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositorySaveDayCommitsTogether(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO conflicts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SaveDay(context.Background(),
		[]models.Booking{{ID: "b-1", ResourceID: "stylist-1", Date: "2025-03-03", Status: models.BookingConfirmed, Price: decimal.NewFromInt(45)}},
		[]models.ConflictRecord{{ID: "cf-1", Type: models.ConflictDoubleBooking, Status: models.ConflictOpen, BookingIDs: []string{"b-1"}}},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositorySaveDayRollsBack(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.SaveDay(context.Background(), []models.Booking{{ID: "b-1"}}, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery("SELECT .* FROM bookings WHERE 1=1 AND booking_date >= \\$1 AND booking_date <= \\$2 AND status = ANY\\(\\$3\\)").
		WillReturnRows(sqlmock.NewRows(bookingColumnNames))

	out, err := repo.List(context.Background(), models.BookingFilter{
		From:     "2025-03-01",
		To:       "2025-03-07",
		Statuses: []models.BookingStatus{models.BookingConfirmed},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListActiveDates(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery("SELECT DISTINCT booking_date FROM bookings").
		WithArgs("stylist-1", "2025-03-03").
		WillReturnRows(sqlmock.NewRows([]string{"booking_date"}).AddRow("2025-03-03").AddRow("2025-03-05"))

	dates, err := repo.ListActiveDates(context.Background(), "stylist-1", "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-03", "2025-03-05"}, dates)
}

func TestConflictRepositoryListPaginates(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM conflicts WHERE 1=1 AND status = \\$1 .* LIMIT 20 OFFSET 0").
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows(conflictColumnNames).
			AddRow("cf-1", "staff_unavailable", "medium", "stylist-1", "2025-03-03", "{b-1}", "{b-1}", "0", "outside hours", "open", nil, now, nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM conflicts WHERE 1=1 AND status = \\$1").
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.ConflictFilter{Status: models.ConflictOpen})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, models.ConflictStaffUnavailable, records[0].Type)
}

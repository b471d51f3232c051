package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/database"
)

// CalendarRepository loads and commits whole resource-days for the calendar store.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs the repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// LoadDay returns every booking and conflict record of a resource-day.
func (r *CalendarRepository) LoadDay(ctx context.Context, key models.DayKey) (models.DaySnapshot, error) {
	snapshot := models.DaySnapshot{Key: key}
	bookingQuery := `SELECT ` + bookingColumns + ` FROM bookings WHERE resource_id = $1 AND booking_date = $2 ORDER BY start_minute, id`
	if err := r.db.SelectContext(ctx, &snapshot.Bookings, bookingQuery, key.ResourceID, key.Date); err != nil {
		return snapshot, fmt.Errorf("load bookings for %s: %w", key, err)
	}
	conflictQuery := `SELECT ` + conflictColumns + ` FROM conflicts WHERE resource_id = $1 AND conflict_date = $2 ORDER BY id`
	if err := r.db.SelectContext(ctx, &snapshot.Conflicts, conflictQuery, key.ResourceID, key.Date); err != nil {
		return snapshot, fmt.Errorf("load conflicts for %s: %w", key, err)
	}
	return snapshot, nil
}

// SaveDay writes changed bookings and conflict records in one transaction.
func (r *CalendarRepository) SaveDay(ctx context.Context, bookings []models.Booking, conflicts []models.ConflictRecord) error {
	if len(bookings) == 0 && len(conflicts) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := upsertBookings(ctx, tx, bookings); err != nil {
			return err
		}
		return upsertConflicts(ctx, tx, conflicts)
	})
}

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

const bookingColumns = `id, resource_id, service_id, customer_id, booking_date, start_minute, end_minute, status, prior_status,
	priority, urgency, customer_tier, paid, price, flex_date_range_days, flex_time_hours, flex_resource, component,
	parent_booking_id, rescheduled_from, source, cancel_reason, created_at, updated_at`

const upsertBookingQuery = `INSERT INTO bookings (` + bookingColumns + `)
	VALUES (:id, :resource_id, :service_id, :customer_id, :booking_date, :start_minute, :end_minute, :status, :prior_status,
	:priority, :urgency, :customer_tier, :paid, :price, :flex_date_range_days, :flex_time_hours, :flex_resource, :component,
	:parent_booking_id, :rescheduled_from, :source, :cancel_reason, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE
	SET resource_id = EXCLUDED.resource_id,
	    booking_date = EXCLUDED.booking_date,
	    start_minute = EXCLUDED.start_minute,
	    end_minute = EXCLUDED.end_minute,
	    status = EXCLUDED.status,
	    prior_status = EXCLUDED.prior_status,
	    priority = EXCLUDED.priority,
	    paid = EXCLUDED.paid,
	    cancel_reason = EXCLUDED.cancel_reason,
	    updated_at = EXCLUDED.updated_at`

// BookingRepository reads bookings outside the calendar store's lock scope.
// Writes go through CalendarRepository.SaveDay.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetByID returns a single booking.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// List returns bookings matching filter ordered by date, resource and start.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if filter.From != "" {
		conditions = append(conditions, fmt.Sprintf("booking_date >= $%d", len(args)+1))
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, fmt.Sprintf("booking_date <= $%d", len(args)+1))
		args = append(args, filter.To)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(statuses))
	}
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s ORDER BY booking_date, resource_id, start_minute, id`,
		bookingColumns, strings.Join(conditions, " AND "))

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ListActiveDates returns the dates from `from` onward on which the resource holds
// bookings that still matter to the detector.
func (r *BookingRepository) ListActiveDates(ctx context.Context, resourceID, from string) ([]string, error) {
	const query = `SELECT DISTINCT booking_date FROM bookings
		WHERE resource_id = $1 AND booking_date >= $2 AND status IN ('tentative', 'confirmed', 'conflicted')
		ORDER BY booking_date`
	var dates []string
	if err := r.db.SelectContext(ctx, &dates, query, resourceID, from); err != nil {
		return nil, fmt.Errorf("list active dates: %w", err)
	}
	return dates, nil
}

func upsertBookings(ctx context.Context, tx *sqlx.Tx, bookings []models.Booking) error {
	for i := range bookings {
		if _, err := tx.NamedExecContext(ctx, upsertBookingQuery, &bookings[i]); err != nil {
			return fmt.Errorf("upsert booking %s: %w", bookings[i].ID, err)
		}
	}
	return nil
}

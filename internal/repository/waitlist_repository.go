package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

type waitlistRow struct {
	ID             string         `db:"id"`
	CustomerID     string         `db:"customer_id"`
	ServiceID      string         `db:"service_id"`
	Request        types.JSONText `db:"request"`
	UrgencyRank    int            `db:"urgency_rank"`
	ArrivedAt      time.Time      `db:"arrived_at"`
	Status         string         `db:"status"`
	Reason         string         `db:"reason"`
	OfferBookingID *string        `db:"offer_booking_id"`
	OfferExpiresAt *time.Time     `db:"offer_expires_at"`
	ExpiresOn      string         `db:"expires_on"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func newWaitlistRow(entry *models.WaitlistEntry) (waitlistRow, error) {
	request, err := json.Marshal(entry.Request)
	if err != nil {
		return waitlistRow{}, fmt.Errorf("encode waitlist request: %w", err)
	}
	return waitlistRow{
		ID:             entry.ID,
		CustomerID:     entry.Request.CustomerID,
		ServiceID:      entry.Request.ServiceID,
		Request:        types.JSONText(request),
		UrgencyRank:    entry.Request.Urgency.Rank(),
		ArrivedAt:      entry.Request.ArrivedAt,
		Status:         string(entry.Status),
		Reason:         entry.Reason,
		OfferBookingID: entry.OfferBookingID,
		OfferExpiresAt: entry.OfferExpiresAt,
		ExpiresOn:      entry.ExpiresOn,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}, nil
}

func (row waitlistRow) toModel() (models.WaitlistEntry, error) {
	entry := models.WaitlistEntry{
		ID:             row.ID,
		Status:         models.WaitlistStatus(row.Status),
		Reason:         row.Reason,
		OfferBookingID: row.OfferBookingID,
		OfferExpiresAt: row.OfferExpiresAt,
		ExpiresOn:      row.ExpiresOn,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Request, &entry.Request); err != nil {
		return entry, fmt.Errorf("decode waitlist request %s: %w", row.ID, err)
	}
	return entry, nil
}

const waitlistColumns = `id, customer_id, service_id, request, urgency_rank, arrived_at, status, reason, offer_booking_id,
	offer_expires_at, expires_on, created_at, updated_at`

// WaitlistRepository persists waitlist entries. Rank order is urgency desc, arrival asc.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Save inserts or updates an entry.
func (r *WaitlistRepository) Save(ctx context.Context, entry *models.WaitlistEntry) error {
	row, err := newWaitlistRow(entry)
	if err != nil {
		return err
	}
	const query = `INSERT INTO waitlist_entries (` + waitlistColumns + `)
		VALUES (:id, :customer_id, :service_id, :request, :urgency_rank, :arrived_at, :status, :reason, :offer_booking_id,
		:offer_expires_at, :expires_on, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    reason = EXCLUDED.reason,
		    offer_booking_id = EXCLUDED.offer_booking_id,
		    offer_expires_at = EXCLUDED.offer_expires_at,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save waitlist entry: %w", err)
	}
	return nil
}

// GetByID returns one entry.
func (r *WaitlistRepository) GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var row waitlistRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`, id); err != nil {
		return nil, err
	}
	entry, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns entries in rank order.
func (r *WaitlistRepository) List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(statuses))
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)+1))
		args = append(args, filter.CustomerID)
	}
	query := fmt.Sprintf(`SELECT %s FROM waitlist_entries WHERE %s ORDER BY urgency_rank DESC, arrived_at, id`,
		waitlistColumns, strings.Join(conditions, " AND "))

	var rows []waitlistRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	out := make([]models.WaitlistEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

const conflictColumns = `id, type, severity, resource_id, conflict_date, booking_ids, displaced_ids, revenue_at_risk, reason,
	status, resolution_id, detected_at, closed_at`

const upsertConflictQuery = `INSERT INTO conflicts (` + conflictColumns + `)
	VALUES (:id, :type, :severity, :resource_id, :conflict_date, :booking_ids, :displaced_ids, :revenue_at_risk, :reason,
	:status, :resolution_id, :detected_at, :closed_at)
	ON CONFLICT (id) DO UPDATE
	SET severity = EXCLUDED.severity,
	    displaced_ids = EXCLUDED.displaced_ids,
	    revenue_at_risk = EXCLUDED.revenue_at_risk,
	    reason = EXCLUDED.reason,
	    status = EXCLUDED.status,
	    resolution_id = EXCLUDED.resolution_id,
	    closed_at = EXCLUDED.closed_at`

// ConflictRepository reads conflict records for the review surface and audits.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository constructs the repository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// GetByID returns a single conflict record.
func (r *ConflictRepository) GetByID(ctx context.Context, id string) (*models.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = $1`
	var record models.ConflictRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns conflicts matching filter, most severe and most recent first.
func (r *ConflictRepository) List(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("conflict_date = $%d", len(args)+1))
		args = append(args, filter.Date)
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM conflicts WHERE %s
		ORDER BY CASE severity WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END DESC, detected_at DESC, id
		LIMIT %d OFFSET %d`, conflictColumns, where, size, offset)
	var records []models.ConflictRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list conflicts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM conflicts WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count conflicts: %w", err)
	}
	return records, total, nil
}

func upsertConflicts(ctx context.Context, tx *sqlx.Tx, records []models.ConflictRecord) error {
	for i := range records {
		if _, err := tx.NamedExecContext(ctx, upsertConflictQuery, &records[i]); err != nil {
			return fmt.Errorf("upsert conflict %s: %w", records[i].ID, err)
		}
	}
	return nil
}

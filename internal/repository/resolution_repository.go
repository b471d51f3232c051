package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

type resolutionRow struct {
	ID         string         `db:"id"`
	ConflictID string         `db:"conflict_id"`
	Action     string         `db:"action"`
	Severity   string         `db:"severity"`
	Candidates types.JSONText `db:"candidates"`
	Chosen     sql.NullInt64  `db:"chosen"`
	Status     string         `db:"status"`
	DecidedBy  *string        `db:"decided_by"`
	Note       string         `db:"note"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
	AppliedAt  *time.Time     `db:"applied_at"`
}

func newResolutionRow(res *models.Resolution) (resolutionRow, error) {
	candidates, err := json.Marshal(res.Candidates)
	if err != nil {
		return resolutionRow{}, fmt.Errorf("encode candidates: %w", err)
	}
	row := resolutionRow{
		ID:         res.ID,
		ConflictID: res.ConflictID,
		Action:     string(res.Action),
		Severity:   string(res.Severity),
		Candidates: types.JSONText(candidates),
		Status:     string(res.Status),
		DecidedBy:  res.DecidedBy,
		Note:       res.Note,
		CreatedAt:  res.CreatedAt,
		UpdatedAt:  res.UpdatedAt,
		AppliedAt:  res.AppliedAt,
	}
	if res.Chosen != nil {
		row.Chosen = sql.NullInt64{Int64: int64(*res.Chosen), Valid: true}
	}
	return row, nil
}

func (row resolutionRow) toModel() (*models.Resolution, error) {
	res := &models.Resolution{
		ID:         row.ID,
		ConflictID: row.ConflictID,
		Action:     models.ResolutionAction(row.Action),
		Severity:   models.Severity(row.Severity),
		Status:     models.ResolutionStatus(row.Status),
		DecidedBy:  row.DecidedBy,
		Note:       row.Note,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		AppliedAt:  row.AppliedAt,
	}
	if len(row.Candidates) > 0 {
		if err := json.Unmarshal(row.Candidates, &res.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates of %s: %w", row.ID, err)
		}
	}
	if row.Chosen.Valid {
		chosen := int(row.Chosen.Int64)
		res.Chosen = &chosen
	}
	return res, nil
}

const resolutionColumns = `id, conflict_id, action, severity, candidates, chosen, status, decided_by, note, created_at, updated_at, applied_at`

// ResolutionRepository persists proposed and applied resolutions.
type ResolutionRepository struct {
	db *sqlx.DB
}

// NewResolutionRepository constructs the repository.
func NewResolutionRepository(db *sqlx.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// Upsert stores the resolution, replacing candidates and decision state.
func (r *ResolutionRepository) Upsert(ctx context.Context, res *models.Resolution) error {
	row, err := newResolutionRow(res)
	if err != nil {
		return err
	}
	const query = `INSERT INTO resolutions (` + resolutionColumns + `)
		VALUES (:id, :conflict_id, :action, :severity, :candidates, :chosen, :status, :decided_by, :note, :created_at, :updated_at, :applied_at)
		ON CONFLICT (id) DO UPDATE
		SET action = EXCLUDED.action,
		    severity = EXCLUDED.severity,
		    candidates = EXCLUDED.candidates,
		    chosen = EXCLUDED.chosen,
		    status = EXCLUDED.status,
		    decided_by = EXCLUDED.decided_by,
		    note = EXCLUDED.note,
		    updated_at = EXCLUDED.updated_at,
		    applied_at = EXCLUDED.applied_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert resolution: %w", err)
	}
	return nil
}

// GetByID returns a resolution.
func (r *ResolutionRepository) GetByID(ctx context.Context, id string) (*models.Resolution, error) {
	var row resolutionRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+resolutionColumns+` FROM resolutions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// FindPendingByConflict returns the undecided resolution of a conflict, if any.
func (r *ResolutionRepository) FindPendingByConflict(ctx context.Context, conflictID string) (*models.Resolution, error) {
	var row resolutionRow
	query := `SELECT ` + resolutionColumns + ` FROM resolutions
		WHERE conflict_id = $1 AND status IN ('proposed', 'pending_review') ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, conflictID); err != nil {
		return nil, err
	}
	return row.toModel()
}

// HasOutcome reports whether a conflict has a resolution that is undecided, applied or
// rejected. Superseded proposals do not count.
func (r *ResolutionRepository) HasOutcome(ctx context.Context, conflictID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM resolutions
		WHERE conflict_id = $1 AND status IN ('proposed', 'pending_review', 'applied', 'rejected'))`
	if err := r.db.GetContext(ctx, &exists, query, conflictID); err != nil {
		return false, fmt.Errorf("check resolutions of %s: %w", conflictID, err)
	}
	return exists, nil
}

// ListPending returns resolutions awaiting operator review, oldest first.
func (r *ResolutionRepository) ListPending(ctx context.Context) ([]models.Resolution, error) {
	var rows []resolutionRow
	query := `SELECT ` + resolutionColumns + ` FROM resolutions WHERE status = 'pending_review' ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list pending resolutions: %w", err)
	}
	out := make([]models.Resolution, 0, len(rows))
	for _, row := range rows {
		res, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}

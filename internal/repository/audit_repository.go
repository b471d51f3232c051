package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// AuditRepository records operator decisions.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit record.
func (r *AuditRepository) Create(ctx context.Context, entry *models.OperatorAudit) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO operator_audit (id, operator_id, action, subject, subject_id, payload, ip_address, user_agent, created_at)
		VALUES (:id, :operator_id, :action, :subject, :subject_id, :payload, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create operator audit: %w", err)
	}
	return nil
}

// ListBySubject returns audit records of one subject, newest first.
func (r *AuditRepository) ListBySubject(ctx context.Context, subject, subjectID string) ([]models.OperatorAudit, error) {
	const query = `SELECT id, operator_id, action, subject, subject_id, payload, ip_address, user_agent, created_at
		FROM operator_audit WHERE subject = $1 AND subject_id = $2 ORDER BY created_at DESC`
	var out []models.OperatorAudit
	if err := r.db.SelectContext(ctx, &out, query, subject, subjectID); err != nil {
		return nil, fmt.Errorf("list operator audit: %w", err)
	}
	return out, nil
}

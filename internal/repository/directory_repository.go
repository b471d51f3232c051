package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

type resourceRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Skills      pq.StringArray `db:"skills"`
	Rules       types.JSONText `db:"rules"`
	Breaks      types.JSONText `db:"breaks"`
	Overrides   types.JSONText `db:"overrides"`
	Preferences types.JSONText `db:"preferences"`
	Active      bool           `db:"active"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (row resourceRow) toModel() (models.Resource, error) {
	res := models.Resource{
		ID:        row.ID,
		Name:      row.Name,
		Skills:    []string(row.Skills),
		Active:    row.Active,
		UpdatedAt: row.UpdatedAt,
	}
	for _, part := range []struct {
		raw  types.JSONText
		dest interface{}
	}{
		{row.Rules, &res.Rules},
		{row.Breaks, &res.Breaks},
		{row.Overrides, &res.Overrides},
		{row.Preferences, &res.Preferences},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dest); err != nil {
			return res, fmt.Errorf("decode resource %s: %w", row.ID, err)
		}
	}
	return res, nil
}

type serviceRow struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	DurationMinutes int             `db:"duration_minutes"`
	SkillTag        string          `db:"skill_tag"`
	Splittable      bool            `db:"splittable"`
	Components      types.JSONText  `db:"components"`
	Price           decimal.Decimal `db:"price"`
}

func (row serviceRow) toModel() (models.Service, error) {
	svc := models.Service{
		ID:              row.ID,
		Name:            row.Name,
		DurationMinutes: row.DurationMinutes,
		SkillTag:        row.SkillTag,
		Splittable:      row.Splittable,
		Price:           row.Price,
	}
	if len(row.Components) > 0 {
		if err := json.Unmarshal(row.Components, &svc.Components); err != nil {
			return svc, fmt.Errorf("decode service %s: %w", row.ID, err)
		}
	}
	return svc, nil
}

// DirectoryRepository reads the staff directory and service catalog maintained by
// the personnel and services collaborators.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ListResources returns every resource, active or not.
func (r *DirectoryRepository) ListResources(ctx context.Context) ([]models.Resource, error) {
	const query = `SELECT id, name, skills, rules, breaks, overrides, preferences, active, updated_at FROM resources ORDER BY id`
	var rows []resourceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	out := make([]models.Resource, 0, len(rows))
	for _, row := range rows {
		res, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// ListServices returns the service catalog.
func (r *DirectoryRepository) ListServices(ctx context.Context) ([]models.Service, error) {
	const query = `SELECT id, name, duration_minutes, skill_tag, splittable, components, price FROM services ORDER BY id`
	var rows []serviceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out := make([]models.Service, 0, len(rows))
	for _, row := range rows {
		svc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"medkit/internal/models"
)

type ComponentRepository interface {
	Create(ctx context.Context, c *models.Component) error
	GetByID(ctx context.Context, id string) (*models.Component, error)
	// GetForUpdate locks and returns the components that exist among ids.
	GetForUpdate(ctx context.Context, ids []string) ([]*models.Component, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
	UpdateState(ctx context.Context, c *models.Component) error
	List(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error)
	CountScrappedByMonth(ctx context.Context, from, to time.Time) ([]models.MonthlyCount, error)
}

type componentRepo struct {
	db DBTX
}

func NewComponentRepo(db DBTX) ComponentRepository {
	return &componentRepo{db: db}
}

const componentColumns = "id, type, model_number, batch_number, status, kit_id, created_at, updated_at, discarded_at"

func scanComponent(row rowScanner) (*models.Component, error) {
	c := &models.Component{}
	err := row.Scan(&c.ID, &c.Type, &c.ModelNumber, &c.BatchNumber, &c.Status, &c.KitID, &c.CreatedAt, &c.UpdatedAt, &c.DiscardedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func collectComponents(rows pgx.Rows) ([]*models.Component, error) {
	defer rows.Close()

	var out []*models.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *componentRepo) Create(ctx context.Context, c *models.Component) error {
	query := `
		INSERT INTO components (id, type, model_number, batch_number, status, kit_id, created_at, updated_at, discarded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query, c.ID, string(c.Type), c.ModelNumber, c.BatchNumber, string(c.Status), c.KitID, c.CreatedAt, c.UpdatedAt, c.DiscardedAt)
	return duplicateKey(err, "components_pkey", c.ID, "id", "component already exists")
}

func (r *componentRepo) GetByID(ctx context.Context, id string) (*models.Component, error) {
	query := `SELECT ` + componentColumns + ` FROM components WHERE id = $1`
	c, err := scanComponent(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrComponentNotFound
	}
	return c, err
}

func (r *componentRepo) GetForUpdate(ctx context.Context, ids []string) ([]*models.Component, error) {
	query := `SELECT ` + componentColumns + ` FROM components WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	return collectComponents(rows)
}

func (r *componentRepo) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM components WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *componentRepo) UpdateState(ctx context.Context, c *models.Component) error {
	query := `
		UPDATE components
		SET status = $1, kit_id = $2, discarded_at = $3, updated_at = $4
		WHERE id = $5
	`
	tag, err := r.db.Exec(ctx, query, string(c.Status), c.KitID, c.DiscardedAt, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrComponentNotFound
	}
	return nil
}

func (r *componentRepo) List(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error) {
	qb := psql.Select(componentColumns).From("components").OrderBy("created_at", "id")
	if filter.Type != nil {
		qb = qb.Where(sq.Eq{"type": string(*filter.Type)})
	}
	if filter.Status != nil {
		qb = qb.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.BatchNumber != "" {
		qb = qb.Where(sq.Eq{"batch_number": filter.BatchNumber})
	}
	if filter.KitID != "" {
		qb = qb.Where(sq.Eq{"kit_id": filter.KitID})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build components query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectComponents(rows)
}

func (r *componentRepo) CountScrappedByMonth(ctx context.Context, from, to time.Time) ([]models.MonthlyCount, error) {
	query := `
		SELECT to_char(date_trunc('month', discarded_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month, count(*) AS count
		FROM components
		WHERE discarded_at >= $1 AND discarded_at < $2
		GROUP BY 1
		ORDER BY 1
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	return collectMonthlyCounts(rows)
}

func collectMonthlyCounts(rows pgx.Rows) ([]models.MonthlyCount, error) {
	defer rows.Close()

	var out []models.MonthlyCount
	for rows.Next() {
		var mc models.MonthlyCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

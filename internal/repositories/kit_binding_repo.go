package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"medkit/internal/models"
)

type KitBindingRepository interface {
	Create(ctx context.Context, b *models.KitBinding) error
	ListByKit(ctx context.Context, kitID string) ([]*models.KitBinding, error)
	// CloseByKit stamps unbound_at on every open binding of the kit.
	CloseByKit(ctx context.Context, kitID string, at time.Time) (int64, error)
	ListAll(ctx context.Context) ([]*models.KitBinding, error)
}

type kitBindingRepo struct {
	db DBTX
}

func NewKitBindingRepo(db DBTX) KitBindingRepository {
	return &kitBindingRepo{db: db}
}

const bindingColumns = "id, component_id, component_type, kit_id, bound_at, unbound_at"

func collectBindings(rows pgx.Rows) ([]*models.KitBinding, error) {
	defer rows.Close()

	var out []*models.KitBinding
	for rows.Next() {
		b := &models.KitBinding{}
		if err := rows.Scan(&b.ID, &b.ComponentID, &b.ComponentType, &b.KitID, &b.BoundAt, &b.UnboundAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *kitBindingRepo) Create(ctx context.Context, b *models.KitBinding) error {
	query := `
		INSERT INTO kit_bindings (component_id, component_type, kit_id, bound_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.db.QueryRow(ctx, query, b.ComponentID, string(b.ComponentType), b.KitID, b.BoundAt).Scan(&b.ID)
}

func (r *kitBindingRepo) ListByKit(ctx context.Context, kitID string) ([]*models.KitBinding, error) {
	query := `SELECT ` + bindingColumns + ` FROM kit_bindings WHERE kit_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, kitID)
	if err != nil {
		return nil, err
	}
	return collectBindings(rows)
}

func (r *kitBindingRepo) CloseByKit(ctx context.Context, kitID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE kit_bindings SET unbound_at = $1 WHERE kit_id = $2 AND unbound_at IS NULL`, at, kitID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *kitBindingRepo) ListAll(ctx context.Context) ([]*models.KitBinding, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bindingColumns+` FROM kit_bindings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectBindings(rows)
}

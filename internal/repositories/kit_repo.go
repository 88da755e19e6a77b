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

type KitRepository interface {
	Create(ctx context.Context, kit *models.Kit) error
	GetByID(ctx context.Context, id string) (*models.Kit, error)
	// GetForUpdate locks and returns the kits that exist among ids.
	GetForUpdate(ctx context.Context, ids []string) ([]*models.Kit, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, kit *models.Kit) error
	List(ctx context.Context, filter models.KitFilter) ([]*models.Kit, error)
	// NextSerial reserves the next kit serial for the given UTC day.
	NextSerial(ctx context.Context, day time.Time) (int, error)
}

type kitRepo struct {
	db DBTX
}

func NewKitRepo(db DBTX) KitRepository {
	return &kitRepo{db: db}
}

const kitColumns = "id, status, distributor_id, distributor_name, dispense_date, created_at, updated_at"

func scanKit(row rowScanner) (*models.Kit, error) {
	k := &models.Kit{}
	err := row.Scan(&k.ID, &k.Status, &k.DistributorID, &k.DistributorName, &k.DispenseDate, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func collectKits(rows pgx.Rows) ([]*models.Kit, error) {
	defer rows.Close()

	var out []*models.Kit
	for rows.Next() {
		k, err := scanKit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *kitRepo) Create(ctx context.Context, kit *models.Kit) error {
	query := `
		INSERT INTO kits (id, status, distributor_id, distributor_name, dispense_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, kit.ID, string(kit.Status), kit.DistributorID, kit.DistributorName, kit.DispenseDate, kit.CreatedAt, kit.UpdatedAt)
	return duplicateKey(err, "kits_pkey", kit.ID, "kit_id", "kit already exists")
}

func (r *kitRepo) GetByID(ctx context.Context, id string) (*models.Kit, error) {
	query := `SELECT ` + kitColumns + ` FROM kits WHERE id = $1`
	k, err := scanKit(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrKitNotFound
	}
	return k, err
}

func (r *kitRepo) GetForUpdate(ctx context.Context, ids []string) ([]*models.Kit, error) {
	query := `SELECT ` + kitColumns + ` FROM kits WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	return collectKits(rows)
}

func (r *kitRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM kits WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *kitRepo) Update(ctx context.Context, kit *models.Kit) error {
	query := `
		UPDATE kits
		SET status = $1, distributor_id = $2, distributor_name = $3, dispense_date = $4, updated_at = $5
		WHERE id = $6
	`
	tag, err := r.db.Exec(ctx, query, string(kit.Status), kit.DistributorID, kit.DistributorName, kit.DispenseDate, kit.UpdatedAt, kit.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrKitNotFound
	}
	return nil
}

func (r *kitRepo) List(ctx context.Context, filter models.KitFilter) ([]*models.Kit, error) {
	qb := psql.Select(kitColumns).From("kits").OrderBy("created_at", "id")
	if filter.Status != nil {
		qb = qb.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.DistributorID != "" {
		qb = qb.Where(sq.Eq{"distributor_id": filter.DistributorID})
	}
	if filter.CreatedFrom != nil {
		qb = qb.Where(sq.GtOrEq{"created_at": *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		qb = qb.Where(sq.Lt{"created_at": *filter.CreatedTo})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build kits query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectKits(rows)
}

func (r *kitRepo) NextSerial(ctx context.Context, day time.Time) (int, error) {
	query := `
		INSERT INTO kit_serials (day, last) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last = kit_serials.last + 1
		RETURNING last
	`
	var serial int
	err := r.db.QueryRow(ctx, query, day.UTC().Format(time.DateOnly)).Scan(&serial)
	return serial, err
}

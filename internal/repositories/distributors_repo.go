package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"medkit/internal/models"
)

type DistributorRepository interface {
	Create(ctx context.Context, distributor *models.Distributor) error
	GetByID(ctx context.Context, id string) (*models.Distributor, error)
	Update(ctx context.Context, distributor *models.Distributor) error
	SetStatus(ctx context.Context, id string, status models.DistributorStatus) error
	List(ctx context.Context, status *models.DistributorStatus, limit, offset int) ([]*models.Distributor, error)
}

type distributorRepo struct {
	db DBTX
}

func NewDistributorRepo(db DBTX) DistributorRepository {
	return &distributorRepo{db: db}
}

const distributorColumns = "id, name, email, tel, address, city, contact_person, status, created_at, updated_at"

func scanDistributor(row rowScanner) (*models.Distributor, error) {
	d := &models.Distributor{}
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Tel, &d.Address, &d.City, &d.ContactPerson, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *distributorRepo) Create(ctx context.Context, distributor *models.Distributor) error {
	query := `
		INSERT INTO distributors (id, name, email, tel, address, city, contact_person, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query, distributor.ID, distributor.Name, distributor.Email, distributor.Tel, distributor.Address,
		distributor.City, distributor.ContactPerson, string(distributor.Status), distributor.CreatedAt, distributor.UpdatedAt)
	return duplicateKey(err, "distributors_pkey", distributor.ID, "id", "distributor already exists")
}

func (r *distributorRepo) GetByID(ctx context.Context, id string) (*models.Distributor, error) {
	query := `SELECT ` + distributorColumns + ` FROM distributors WHERE id = $1`
	d, err := scanDistributor(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrDistributorNotFound
	}
	return d, err
}

func (r *distributorRepo) Update(ctx context.Context, distributor *models.Distributor) error {
	query := `
		UPDATE distributors
		SET name = $1, email = $2, tel = $3, address = $4, city = $5, contact_person = $6, updated_at = $7
		WHERE id = $8
	`
	tag, err := r.db.Exec(ctx, query, distributor.Name, distributor.Email, distributor.Tel, distributor.Address,
		distributor.City, distributor.ContactPerson, distributor.UpdatedAt, distributor.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDistributorNotFound
	}
	return nil
}

func (r *distributorRepo) SetStatus(ctx context.Context, id string, status models.DistributorStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE distributors SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDistributorNotFound
	}
	return nil
}

func (r *distributorRepo) List(ctx context.Context, status *models.DistributorStatus, limit, offset int) ([]*models.Distributor, error) {
	qb := psql.Select(distributorColumns).From("distributors").OrderBy("name", "id")
	if status != nil {
		qb = qb.Where(sq.Eq{"status": string(*status)})
	}
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	if offset > 0 {
		qb = qb.Offset(uint64(offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distributors query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var distributors []*models.Distributor
	for rows.Next() {
		d, err := scanDistributor(rows)
		if err != nil {
			return nil, err
		}
		distributors = append(distributors, d)
	}
	return distributors, rows.Err()
}

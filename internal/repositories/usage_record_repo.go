package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"medkit/internal/models"
)

type UsageRecordRepository interface {
	Create(ctx context.Context, u *models.UsageRecord) error
	// ListOpenByKits returns the open records of the given kits.
	ListOpenByKits(ctx context.Context, kitIDs []string) ([]*models.UsageRecord, error)
	Close(ctx context.Context, id uuid.UUID, end time.Time) error
	// HistoryByComponent joins the binding log with usage records, oldest first.
	HistoryByComponent(ctx context.Context, componentID string) ([]*models.UsageRecord, error)
	// CountUsedComponentsByMonth counts bound components of kits whose
	// usage record closed in each month of [from, to).
	CountUsedComponentsByMonth(ctx context.Context, from, to time.Time) ([]models.MonthlyCount, error)
	ListAll(ctx context.Context) ([]*models.UsageRecord, error)
}

type usageRecordRepo struct {
	db DBTX
}

func NewUsageRecordRepo(db DBTX) UsageRecordRepository {
	return &usageRecordRepo{db: db}
}

func collectUsageRecords(rows pgx.Rows, withName bool) ([]*models.UsageRecord, error) {
	defer rows.Close()

	var out []*models.UsageRecord
	for rows.Next() {
		u := &models.UsageRecord{}
		dest := []any{&u.ID, &u.KitID, &u.DistributorID, &u.StartTime, &u.EndTime}
		if withName {
			dest = append(dest, &u.DistributorName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usageRecordRepo) Create(ctx context.Context, u *models.UsageRecord) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	query := `
		INSERT INTO usage_records (id, kit_id, distributor_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, u.ID, u.KitID, u.DistributorID, u.StartTime, u.EndTime)
	return err
}

func (r *usageRecordRepo) ListOpenByKits(ctx context.Context, kitIDs []string) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, kit_id, distributor_id, start_time, end_time
		FROM usage_records
		WHERE kit_id = ANY($1) AND end_time IS NULL
		ORDER BY kit_id
	`
	rows, err := r.db.Query(ctx, query, kitIDs)
	if err != nil {
		return nil, err
	}
	return collectUsageRecords(rows, false)
}

func (r *usageRecordRepo) Close(ctx context.Context, id uuid.UUID, end time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE usage_records SET end_time = $1 WHERE id = $2 AND end_time IS NULL`, end, id)
	return err
}

func (r *usageRecordRepo) HistoryByComponent(ctx context.Context, componentID string) ([]*models.UsageRecord, error) {
	query := `
		SELECT u.id, u.kit_id, u.distributor_id, u.start_time, u.end_time, d.name
		FROM usage_records u
		JOIN distributors d ON d.id = u.distributor_id
		WHERE u.kit_id IN (SELECT kit_id FROM kit_bindings WHERE component_id = $1)
		ORDER BY u.start_time ASC, u.id
	`
	rows, err := r.db.Query(ctx, query, componentID)
	if err != nil {
		return nil, err
	}
	return collectUsageRecords(rows, true)
}

func (r *usageRecordRepo) CountUsedComponentsByMonth(ctx context.Context, from, to time.Time) ([]models.MonthlyCount, error) {
	query := `
		SELECT to_char(date_trunc('month', u.end_time AT TIME ZONE 'UTC'), 'YYYY-MM') AS month, count(b.id) AS count
		FROM usage_records u
		JOIN kit_bindings b ON b.kit_id = u.kit_id
		WHERE u.end_time >= $1 AND u.end_time < $2
		GROUP BY 1
		ORDER BY 1
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	return collectMonthlyCounts(rows)
}

func (r *usageRecordRepo) ListAll(ctx context.Context) ([]*models.UsageRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT id, kit_id, distributor_id, start_time, end_time FROM usage_records ORDER BY start_time, id`)
	if err != nil {
		return nil, err
	}
	return collectUsageRecords(rows, false)
}

package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"medkit/internal/models"

	"github.com/google/uuid"
)

type AuditLogsRepository interface {
	// Create a new audit log entry
	Create(ctx context.Context, auditLog *models.AuditLog) error

	// List audit logs with filtering options, newest first
	List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsRepo struct {
	db DBTX
}

func NewAuditLogsRepo(db DBTX) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

func (r *auditLogsRepo) Create(ctx context.Context, auditLog *models.AuditLog) error {
	if auditLog.CreatedAt.IsZero() {
		auditLog.CreatedAt = time.Now().UTC()
	}
	if auditLog.ID == uuid.Nil {
		auditLog.ID = uuid.New()
	}

	var details []byte
	if auditLog.Details != nil {
		var err error
		details, err = json.Marshal(auditLog.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, old_status, new_status, details, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		auditLog.ID,
		string(auditLog.EntityType),
		auditLog.EntityID,
		auditLog.Action,
		auditLog.OldStatus,
		auditLog.NewStatus,
		details,
		auditLog.ChangedBy,
		auditLog.CreatedAt,
	)
	return err
}

func (r *auditLogsRepo) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}

	qb := psql.
		Select("id, entity_type, entity_id, action, old_status, new_status, details, changed_by, created_at").
		From("audit_logs").
		OrderBy("created_at DESC", "id")

	if filters.EntityType != nil {
		qb = qb.Where(sq.Eq{"entity_type": string(*filters.EntityType)})
	}
	if filters.EntityID != nil {
		qb = qb.Where(sq.Eq{"entity_id": *filters.EntityID})
	}
	if filters.Action != nil {
		qb = qb.Where(sq.Eq{"action": *filters.Action})
	}
	if filters.ChangedBy != nil {
		qb = qb.Where(sq.Eq{"changed_by": *filters.ChangedBy})
	}
	if filters.StartDate != nil {
		qb = qb.Where(sq.GtOrEq{"created_at": *filters.StartDate})
	}
	if filters.EndDate != nil {
		qb = qb.Where(sq.LtOrEq{"created_at": *filters.EndDate})
	}
	if filters.Limit > 0 {
		qb = qb.Limit(uint64(filters.Limit))
	}
	if filters.Offset > 0 {
		qb = qb.Offset(uint64(filters.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit log query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		auditLog := &models.AuditLog{}
		var details []byte
		if err := rows.Scan(
			&auditLog.ID,
			&auditLog.EntityType,
			&auditLog.EntityID,
			&auditLog.Action,
			&auditLog.OldStatus,
			&auditLog.NewStatus,
			&details,
			&auditLog.ChangedBy,
			&auditLog.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &auditLog.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		logs = append(logs, auditLog)
	}
	return logs, rows.Err()
}

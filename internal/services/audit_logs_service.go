package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medkit/internal/common"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

type AuditLogsService interface {
	ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
	ValidateAuditFilters(filters *models.AuditLogFilters) error
}

type auditLogsService struct {
	store repositories.Store
	opts  options
}

func NewAuditLogsService(store repositories.Store, opts ...Option) AuditLogsService {
	return &auditLogsService{store: store, opts: newOptions(opts)}
}

func (s *auditLogsService) ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	const op = "services.audit.List"

	if filters == nil {
		filters = &models.AuditLogFilters{}
	}
	if err := s.ValidateAuditFilters(filters); err != nil {
		return nil, err
	}

	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	logs, err := s.store.Repos().Audit.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	return logs, nil
}

// ValidateAuditFilters validates and normalizes audit log filters
func (s *auditLogsService) ValidateAuditFilters(filters *models.AuditLogFilters) error {
	if filters.EntityType != nil {
		switch *filters.EntityType {
		case models.EntityComponent, models.EntityKit, models.EntityDistributor:
		default:
			return models.NewValidationError("entity_type", "must be one of component, kit, distributor")
		}
	}

	if filters.StartDate != nil && filters.EndDate != nil {
		if err := common.ValidateDateRange(*filters.StartDate, *filters.EndDate); err != nil {
			return models.NewValidationError("date_range", err.Error())
		}
	}

	limit, offset, err := common.ValidatePaginationParams(filters.Limit, filters.Offset)
	if err != nil {
		return models.NewValidationError("offset", err.Error())
	}
	filters.Limit, filters.Offset = limit, offset
	return nil
}

// logTransition appends an audit entry inside the caller's transaction,
// attributed to the operator on ctx.
func logTransition(ctx context.Context, r repositories.Repos, at time.Time, entry *models.AuditLog) error {
	if entry == nil {
		return errors.New("nil audit entry")
	}
	entry.ChangedBy = common.OperatorPtr(ctx)
	entry.CreatedAt = at
	if err := r.Audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit %s %s: %w", entry.EntityType, entry.EntityID, err)
	}
	return nil
}

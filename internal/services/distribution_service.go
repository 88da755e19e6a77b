package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

type DistributionService interface {
	DistributeKits(ctx context.Context, params models.DistributeParams) (*models.DistributeResult, error)
	CollectKits(ctx context.Context, params models.CollectParams) (*models.CollectResult, error)
}

type distributionService struct {
	store repositories.Store
	opts  options
}

func NewDistributionService(store repositories.Store, opts ...Option) DistributionService {
	return &distributionService{store: store, opts: newOptions(opts)}
}

func hasNoOpenRecord(open map[string]*models.UsageRecord, kits map[string]*models.Kit) kitInspector {
	return func(id string) *models.KitStateIssue {
		if _, ok := open[id]; ok {
			return &models.KitStateIssue{KitID: id, Status: kits[id].Status, Reason: "kit has an open usage record"}
		}
		return nil
	}
}

func hasOpenRecord(open map[string]*models.UsageRecord, kits map[string]*models.Kit) kitInspector {
	return func(id string) *models.KitStateIssue {
		if _, ok := open[id]; !ok {
			return &models.KitStateIssue{KitID: id, Status: kits[id].Status, Reason: "kit has no open usage record"}
		}
		return nil
	}
}

// lockKits loads and locks the kits together with their open usage records.
func lockKits(ctx context.Context, r repositories.Repos, ids []string) (map[string]*models.Kit, map[string]*models.UsageRecord, error) {
	kits, err := r.Kits.GetForUpdate(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	open, err := r.Usage.ListOpenByKits(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return lo.KeyBy(kits, func(k *models.Kit) string { return k.ID }),
		lo.KeyBy(open, func(u *models.UsageRecord) string { return u.KitID }),
		nil
}

func (s *distributionService) DistributeKits(ctx context.Context, params models.DistributeParams) (*models.DistributeResult, error) {
	const op = "services.distribution.Distribute"

	ids := normalizeIDs(params.KitIDs)
	distributorID := strings.TrimSpace(params.DistributorID)

	verr := &models.ValidationError{}
	if len(ids) == 0 {
		verr.Add("", "kit_ids", "at least one kit id is required")
	}
	if distributorID == "" {
		verr.Add("", "distributor_id", "distributor id is required")
	}
	if verr.HasIssues() {
		return nil, verr
	}

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	now := s.opts.now()
	start := now
	if params.StartTime != nil {
		start = params.StartTime.UTC()
	}
	result := &models.DistributeResult{Distributed: ids}

	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		distributor, err := r.Distributors.GetByID(ctx, distributorID)
		if errors.Is(err, models.ErrDistributorNotFound) {
			verr := &models.ValidationError{}
			verr.Add(distributorID, "distributor_id", "distributor not found")
			return verr
		}
		if err != nil {
			return err
		}
		if !distributor.IsActive() {
			return &models.DistributorInactiveError{DistributorID: distributor.ID}
		}

		kits, open, err := lockKits(ctx, r, ids)
		if err != nil {
			return err
		}
		inspect := also(checkKit(kits, models.KitStatusAvailable), hasNoOpenRecord(open, kits))
		if err := requireAll(ids, inspect); err != nil {
			return err
		}

		for _, id := range ids {
			kit := kits[id]
			kit.Status = models.KitStatusInUse
			kit.DistributorID = &distributor.ID
			kit.DistributorName = &distributor.Name
			kit.DispenseDate = &start
			kit.UpdatedAt = now
			if err := r.Kits.Update(ctx, kit); err != nil {
				return err
			}

			record := &models.UsageRecord{
				KitID:           id,
				DistributorID:   distributor.ID,
				StartTime:       start,
				DistributorName: distributor.Name,
			}
			if err := r.Usage.Create(ctx, record); err != nil {
				return err
			}
			result.UsageRecords = append(result.UsageRecords, record)

			entry := models.NewAuditLog(models.EntityKit, id, models.ActionDistribute,
				string(models.KitStatusAvailable), string(models.KitStatusInUse),
				models.JSONB{"distributor_id": distributor.ID, "usage_record_id": record.ID.String(), "start_time": start.Format(time.RFC3339)})
			if err := logTransition(ctx, r, now, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			logger.Warn(ctx, "distribution rejected", logger.Strings("kit_ids", ids), logger.String("reason", err.Error()))
			return nil, err
		}
		logger.Error(ctx, "distribution failed", logger.Strings("kit_ids", ids), logger.ErrorF(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info(ctx, "kits distributed",
		logger.Strings("kit_ids", ids),
		logger.String("distributor_id", distributorID),
	)
	return result, nil
}

func (s *distributionService) CollectKits(ctx context.Context, params models.CollectParams) (*models.CollectResult, error) {
	const op = "services.distribution.Collect"

	ids := normalizeIDs(params.KitIDs)
	if len(ids) == 0 {
		return nil, models.NewValidationError("kit_ids", "at least one kit id is required")
	}

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	now := s.opts.now()
	end := now
	if params.EndTime != nil {
		end = params.EndTime.UTC()
	}
	result := &models.CollectResult{Collected: ids}

	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		kits, open, err := lockKits(ctx, r, ids)
		if err != nil {
			return err
		}
		inspect := also(checkKit(kits, models.KitStatusInUse), hasOpenRecord(open, kits))
		if err := requireAll(ids, inspect); err != nil {
			return err
		}

		verr := &models.ValidationError{}
		for _, id := range ids {
			if end.Before(open[id].StartTime) {
				verr.Add(id, "end_time", fmt.Sprintf("end time is before the usage start %s", open[id].StartTime.Format(time.RFC3339)))
			}
		}
		if verr.HasIssues() {
			return verr
		}

		for _, id := range ids {
			record := open[id]
			if err := r.Usage.Close(ctx, record.ID, end); err != nil {
				return err
			}
			record.EndTime = &end
			result.UsageRecords = append(result.UsageRecords, record)

			kit := kits[id]
			kit.Status = models.KitStatusUsed
			kit.UpdatedAt = now
			if err := r.Kits.Update(ctx, kit); err != nil {
				return err
			}

			entry := models.NewAuditLog(models.EntityKit, id, models.ActionCollect,
				string(models.KitStatusInUse), string(models.KitStatusUsed),
				models.JSONB{"usage_record_id": record.ID.String(), "end_time": end.Format(time.RFC3339)})
			if err := logTransition(ctx, r, now, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			logger.Warn(ctx, "collection rejected", logger.Strings("kit_ids", ids), logger.String("reason", err.Error()))
			return nil, err
		}
		logger.Error(ctx, "collection failed", logger.Strings("kit_ids", ids), logger.ErrorF(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.opts.invalidateDiscardRates(ctx)
	logger.Info(ctx, "kits collected", logger.Strings("kit_ids", ids))
	return result, nil
}

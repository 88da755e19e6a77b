package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

type DisassemblyService interface {
	DisassembleKit(ctx context.Context, kitID string, opts models.DisassembleOptions) (*models.DisassembleResult, error)
	DisassembleKits(ctx context.Context, kitIDs []string, opts models.DisassembleOptions) (*models.BulkOperationResult, error)
}

type disassemblyService struct {
	store repositories.Store
	opts  options
}

func NewDisassemblyService(store repositories.Store, opts ...Option) DisassemblyService {
	return &disassemblyService{store: store, opts: newOptions(opts)}
}

var disassemblable = []models.KitStatus{models.KitStatusAvailable, models.KitStatusUsed}

func (s *disassemblyService) DisassembleKit(ctx context.Context, kitID string, opts models.DisassembleOptions) (*models.DisassembleResult, error) {
	kitID = strings.TrimSpace(kitID)
	if kitID == "" {
		return nil, models.NewValidationError("kit_id", "kit id is required")
	}
	return s.disassemble(ctx, kitID, normalizeIDs(opts.ScrapComponentIDs), true)
}

// DisassembleKits runs one transaction per kit. Scrap ids are matched
// against each kit's own components.
func (s *disassemblyService) DisassembleKits(ctx context.Context, kitIDs []string, opts models.DisassembleOptions) (*models.BulkOperationResult, error) {
	ids := normalizeIDs(kitIDs)
	if len(ids) == 0 {
		return nil, models.NewValidationError("kit_ids", "at least one kit id is required")
	}
	scrap := normalizeIDs(opts.ScrapComponentIDs)

	result := &models.BulkOperationResult{
		OperationID: uuid.NewString(),
		TotalItems:  len(ids),
		StartTime:   s.opts.now(),
	}
	result.Succeeded, result.Failed = eachIndependently(ids, func(id string) (string, error) {
		_, err := s.disassemble(ctx, id, scrap, false)
		return id, err
	})
	result.Finish(s.opts.now())

	logger.Info(ctx, "batch disassembly finished",
		logger.String("operation_id", result.OperationID),
		logger.String("status", result.Status),
		logger.Int("succeeded", len(result.Succeeded)),
		logger.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// disassemble releases one kit in its own transaction. With strictScrap an
// id in scrap that is not bound to the kit is a validation error; otherwise
// it is left for another kit of the batch.
func (s *disassemblyService) disassemble(ctx context.Context, kitID string, scrap []string, strictScrap bool) (*models.DisassembleResult, error) {
	const op = "services.disassembly.Disassemble"

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	result := &models.DisassembleResult{KitID: kitID, Released: []string{}, Scrapped: []string{}, Preserved: []string{}}

	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		found, err := r.Kits.GetForUpdate(ctx, []string{kitID})
		if err != nil {
			return err
		}
		kits := lo.KeyBy(found, func(k *models.Kit) string { return k.ID })
		if err := requireAll([]string{kitID}, checkKit(kits, disassemblable...)); err != nil {
			return err
		}
		kit := kits[kitID]

		bindings, err := r.Bindings.ListByKit(ctx, kitID)
		if err != nil {
			return err
		}
		bound := lo.FilterMap(bindings, func(b *models.KitBinding, _ int) (string, bool) {
			return b.ComponentID, b.UnboundAt == nil
		})

		if strictScrap {
			if stray, _ := lo.Difference(scrap, bound); len(stray) > 0 {
				verr := &models.ValidationError{}
				for _, id := range stray {
					verr.Add(id, "scrap_component_ids", "component is not bound to kit "+kitID)
				}
				return verr
			}
		}

		components, err := r.Components.GetForUpdate(ctx, bound)
		if err != nil {
			return err
		}

		now := s.opts.now()
		for _, c := range components {
			from := c.Status
			switch {
			case c.Status == models.ComponentStatusScrapped:
				result.Preserved = append(result.Preserved, c.ID)
			case slices.Contains(scrap, c.ID):
				c.Status = models.ComponentStatusScrapped
				c.DiscardedAt = &now
				result.Scrapped = append(result.Scrapped, c.ID)
			default:
				c.Status = models.ComponentStatusAvailable
				result.Released = append(result.Released, c.ID)
			}
			c.KitID = nil
			c.UpdatedAt = now
			if err := r.Components.UpdateState(ctx, c); err != nil {
				return err
			}
			if from != c.Status {
				entry := models.NewAuditLog(models.EntityComponent, c.ID, models.ActionDisassemble, string(from), string(c.Status), models.JSONB{"kit_id": kitID})
				if err := logTransition(ctx, r, now, entry); err != nil {
					return err
				}
			}
		}

		if _, err := r.Bindings.CloseByKit(ctx, kitID, now); err != nil {
			return err
		}

		from := kit.Status
		kit.Status = models.KitStatusDisassembled
		kit.UpdatedAt = now
		if err := r.Kits.Update(ctx, kit); err != nil {
			return err
		}
		return logTransition(ctx, r, now, models.NewAuditLog(models.EntityKit, kitID, models.ActionDisassemble, string(from), string(kit.Status),
			models.JSONB{"released": result.Released, "scrapped": result.Scrapped, "preserved": result.Preserved}))
	})
	if err != nil {
		if isDomainError(err) {
			logger.Warn(ctx, "disassembly rejected", logger.String("kit_id", kitID), logger.String("reason", err.Error()))
			return nil, err
		}
		logger.Error(ctx, "disassembly failed", logger.String("kit_id", kitID), logger.ErrorF(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(result.Scrapped) > 0 {
		s.opts.invalidateDiscardRates(ctx)
	}
	logger.Info(ctx, "kit disassembled",
		logger.String("kit_id", kitID),
		logger.Int("released", len(result.Released)),
		logger.Int("scrapped", len(result.Scrapped)),
	)
	return result, nil
}

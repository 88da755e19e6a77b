package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

type ComponentService interface {
	CreateComponents(ctx context.Context, params models.CreateComponentsParams) (*models.CreateComponentsResult, error)
	SetComponentStatus(ctx context.Context, id string, status models.ComponentStatus) (*models.Component, error)
	GetComponent(ctx context.Context, id string) (*models.Component, error)
	ListComponents(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error)
}

type componentService struct {
	store repositories.Store
	opts  options
}

func NewComponentService(store repositories.Store, opts ...Option) ComponentService {
	return &componentService{store: store, opts: newOptions(opts)}
}

// Manual status changes. in-kit is entered and left only through assembly
// and disassembly; scrapped is terminal.
var componentTransitions = map[models.ComponentStatus][]models.ComponentStatus{
	models.ComponentStatusAvailable:    {models.ComponentStatusAvailable, models.ComponentStatusRefurbishing, models.ComponentStatusScrapped},
	models.ComponentStatusRefurbishing: {models.ComponentStatusAvailable, models.ComponentStatusRefurbishing, models.ComponentStatusScrapped},
}

func canTransition(from, to models.ComponentStatus) bool {
	return slices.Contains(componentTransitions[from], to)
}

func validateComponentBatch(params models.CreateComponentsParams) *models.ValidationError {
	verr := &models.ValidationError{}

	if _, ok := models.ModelCatalog[params.Type]; !ok {
		verr.Add("", "type", fmt.Sprintf("unknown component type %q", params.Type))
	}
	if strings.TrimSpace(params.BatchNumber) == "" {
		verr.Add("", "batch_number", "batch number is required")
	}
	if len(params.Items) == 0 {
		verr.Add("", "items", "at least one item is required")
	}

	seen := make(map[string]bool, len(params.Items))
	for i, item := range params.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			verr.Add("", fmt.Sprintf("items[%d].id", i), "id is required")
			continue
		}
		if seen[id] {
			verr.Add(id, "id", "duplicate id in batch")
		}
		seen[id] = true
		if !params.Type.IsValidModel(item.ModelNumber) {
			verr.Add(id, "model_number", fmt.Sprintf("model %q is not in the %s catalog", item.ModelNumber, params.Type))
		}
	}
	return verr
}

func (s *componentService) CreateComponents(ctx context.Context, params models.CreateComponentsParams) (*models.CreateComponentsResult, error) {
	const op = "services.component.CreateBatch"

	if verr := validateComponentBatch(params); verr.HasIssues() {
		return nil, verr
	}

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	ids := lo.Map(params.Items, func(it models.ComponentItem, _ int) string { return strings.TrimSpace(it.ID) })
	batch := strings.TrimSpace(params.BatchNumber)
	now := s.opts.now()
	created := make([]*models.Component, 0, len(params.Items))

	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		existing, err := r.Components.ExistingIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			verr := &models.ValidationError{}
			for _, id := range existing {
				verr.Add(id, "id", "component already exists")
			}
			return verr
		}

		for i, item := range params.Items {
			c := &models.Component{
				ID:          ids[i],
				Type:        params.Type,
				ModelNumber: item.ModelNumber,
				BatchNumber: batch,
				Status:      models.ComponentStatusAvailable,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := r.Components.Create(ctx, c); err != nil {
				return err
			}
			entry := models.NewAuditLog(models.EntityComponent, c.ID, models.ActionCreate, "", string(c.Status),
				models.JSONB{"type": string(c.Type), "model_number": c.ModelNumber, "batch_number": batch})
			if err := logTransition(ctx, r, now, entry); err != nil {
				return err
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		logger.Error(ctx, "create components failed",
			logger.String("type", string(params.Type)),
			logger.String("batch_number", batch),
			logger.ErrorF(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info(ctx, "components created",
		logger.String("type", string(params.Type)),
		logger.String("batch_number", batch),
		logger.Int("count", len(created)),
	)
	return &models.CreateComponentsResult{Created: created}, nil
}

func (s *componentService) SetComponentStatus(ctx context.Context, id string, status models.ComponentStatus) (*models.Component, error) {
	const op = "services.component.SetStatus"

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, models.NewValidationError("id", "component id is required")
	}

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	var (
		updated  *models.Component
		scrapped bool
	)
	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		found, err := r.Components.GetForUpdate(ctx, []string{id})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return models.ErrComponentNotFound
		}
		c := found[0]

		if !canTransition(c.Status, status) {
			return &models.InvalidTransitionError{ComponentID: c.ID, From: c.Status, To: status}
		}
		if c.Status == status {
			updated = c
			return nil
		}

		now := s.opts.now()
		from := c.Status
		c.Status = status
		c.UpdatedAt = now
		if status == models.ComponentStatusScrapped {
			c.DiscardedAt = &now
		}
		if err := r.Components.UpdateState(ctx, c); err != nil {
			return err
		}
		updated = c
		scrapped = status == models.ComponentStatusScrapped
		return logTransition(ctx, r, now, models.NewAuditLog(models.EntityComponent, c.ID, models.ActionStatusChange, string(from), string(status), nil))
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		logger.Error(ctx, "set component status failed", logger.String("component_id", id), logger.ErrorF(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if scrapped {
		s.opts.invalidateDiscardRates(ctx)
	}
	return updated, nil
}

func (s *componentService) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	c, err := s.store.Repos().Components.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, models.ErrComponentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("services.component.Get: %w", err)
	}
	return c, nil
}

func (s *componentService) ListComponents(ctx context.Context, filter models.ComponentFilter) ([]*models.Component, error) {
	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	list, err := s.store.Repos().Components.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("services.component.List: %w", err)
	}
	if list == nil {
		list = []*models.Component{}
	}
	return list, nil
}

// isDomainError reports whether err is one of the lifecycle errors callers
// are expected to act on, as opposed to an infrastructure failure.
func isDomainError(err error) bool {
	for _, target := range []error{
		models.ErrValidation,
		models.ErrInvalidTransition,
		models.ErrInvalidKitState,
		models.ErrIncompleteKit,
		models.ErrUnavailableComponents,
		models.ErrDistributorInactive,
		models.ErrComponentNotFound,
		models.ErrKitNotFound,
		models.ErrDistributorNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

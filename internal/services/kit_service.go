package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

const maxKitIDAttempts = 10

type KitService interface {
	CreateKit(ctx context.Context, params models.CreateKitParams) (*models.CreateKitResult, error)
	CreateKits(ctx context.Context, params []models.CreateKitParams) (*models.BulkOperationResult, error)
	GetKit(ctx context.Context, id string) (*models.Kit, error)
	ListKits(ctx context.Context, filter models.KitFilter) ([]*models.Kit, error)
}

type kitService struct {
	store repositories.Store
	opts  options
}

func NewKitService(store repositories.Store, opts ...Option) KitService {
	return &kitService{store: store, opts: newOptions(opts)}
}

func (s *kitService) CreateKit(ctx context.Context, params models.CreateKitParams) (*models.CreateKitResult, error) {
	const op = "services.kit.Create"

	if missing := params.Components.Missing(); len(missing) > 0 {
		return nil, &models.IncompleteKitError{Missing: missing}
	}

	refs := make(models.KitComponents, len(models.RequiredComponentTypes))
	for _, t := range models.RequiredComponentTypes {
		refs[t] = strings.TrimSpace(params.Components[t])
	}
	kitID := strings.TrimSpace(params.KitID)

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	now := s.opts.now()
	var kit *models.Kit

	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		if kitID != "" {
			exists, err := r.Kits.Exists(ctx, kitID)
			if err != nil {
				return err
			}
			if exists {
				verr := &models.ValidationError{}
				verr.Add(kitID, "kit_id", "kit already exists")
				return verr
			}
		}

		ids := lo.Map(models.RequiredComponentTypes, func(t models.ComponentType, _ int) string { return refs[t] })
		found, err := r.Components.GetForUpdate(ctx, lo.Uniq(ids))
		if err != nil {
			return err
		}
		byID := lo.KeyBy(found, func(c *models.Component) string { return c.ID })

		if unavailable := checkAssembly(refs, byID); len(unavailable) > 0 {
			return &models.UnavailableComponentsError{Components: unavailable}
		}

		if kitID == "" {
			kitID, err = nextKitID(ctx, r.Kits, now)
			if err != nil {
				return err
			}
		}

		kit = &models.Kit{
			ID:         kitID,
			Status:     models.KitStatusAvailable,
			Components: refs,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := r.Kits.Create(ctx, kit); err != nil {
			return err
		}

		for _, t := range models.RequiredComponentTypes {
			c := byID[refs[t]]
			c.Status = models.ComponentStatusInKit
			c.KitID = &kit.ID
			c.UpdatedAt = now
			if err := r.Components.UpdateState(ctx, c); err != nil {
				return err
			}
			if err := r.Bindings.Create(ctx, &models.KitBinding{
				ComponentID:   c.ID,
				ComponentType: t,
				KitID:         kit.ID,
				BoundAt:       now,
			}); err != nil {
				return err
			}
			entry := models.NewAuditLog(models.EntityComponent, c.ID, models.ActionAssemble,
				string(models.ComponentStatusAvailable), string(models.ComponentStatusInKit), models.JSONB{"kit_id": kit.ID})
			if err := logTransition(ctx, r, now, entry); err != nil {
				return err
			}
		}

		details := models.JSONB{}
		for t, id := range refs {
			details[string(t)] = id
		}
		return logTransition(ctx, r, now, models.NewAuditLog(models.EntityKit, kit.ID, models.ActionAssemble, "", string(kit.Status), details))
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		logger.Error(ctx, "kit assembly failed", logger.String("kit_id", kitID), logger.ErrorF(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info(ctx, "kit assembled", logger.String("kit_id", kit.ID))
	return &models.CreateKitResult{KitID: kit.ID, Kit: kit}, nil
}

// CreateKits assembles every requested kit in its own transaction. A kit
// that cannot be assembled is reported by its index and does not stop the
// others.
func (s *kitService) CreateKits(ctx context.Context, params []models.CreateKitParams) (*models.BulkOperationResult, error) {
	if len(params) == 0 {
		return nil, models.NewValidationError("kits", "at least one kit is required")
	}

	result := &models.BulkOperationResult{
		OperationID: uuid.NewString(),
		TotalItems:  len(params),
		StartTime:   s.opts.now(),
	}
	result.Succeeded, result.Failed = eachIndependently(params, func(p models.CreateKitParams) (string, error) {
		res, err := s.CreateKit(ctx, p)
		if err != nil {
			return strings.TrimSpace(p.KitID), err
		}
		return res.KitID, nil
	})
	result.Finish(s.opts.now())

	logger.Info(ctx, "batch kit assembly finished",
		logger.String("operation_id", result.OperationID),
		logger.String("status", result.Status),
		logger.Int("succeeded", len(result.Succeeded)),
		logger.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// checkAssembly lists every slot whose component cannot be bound: unknown,
// of another type, referenced by two slots, or not available.
func checkAssembly(refs models.KitComponents, byID map[string]*models.Component) []models.UnavailableComponent {
	uses := lo.CountValues(lo.Values(refs))

	var out []models.UnavailableComponent
	for _, t := range models.RequiredComponentTypes {
		id := refs[t]
		c, ok := byID[id]
		switch {
		case !ok:
			out = append(out, models.UnavailableComponent{Type: t, ComponentID: id, Reason: "component not found"})
		case c.Type != t:
			out = append(out, models.UnavailableComponent{Type: t, ComponentID: id, Status: c.Status,
				Reason: fmt.Sprintf("component is a %s", c.Type)})
		case uses[id] > 1:
			out = append(out, models.UnavailableComponent{Type: t, ComponentID: id, Status: c.Status,
				Reason: "component referenced more than once"})
		case c.Status != models.ComponentStatusAvailable:
			out = append(out, models.UnavailableComponent{Type: t, ComponentID: id, Status: c.Status,
				Reason: fmt.Sprintf("component is %s", c.Status)})
		}
	}
	return out
}

// nextKitID reserves serials for the creation day until one is free. A
// serial can already be taken by a caller-supplied id of the same shape.
func nextKitID(ctx context.Context, kits repositories.KitRepository, now time.Time) (string, error) {
	for range maxKitIDAttempts {
		serial, err := kits.NextSerial(ctx, now)
		if err != nil {
			return "", fmt.Errorf("reserve kit serial: %w", err)
		}
		id := models.FormatKitID(now, serial)
		exists, err := kits.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free kit id for %s after %d attempts", now.Format(time.DateOnly), maxKitIDAttempts)
}

func (s *kitService) GetKit(ctx context.Context, id string) (*models.Kit, error) {
	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	repos := s.store.Repos()
	kit, err := repos.Kits.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, models.ErrKitNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("services.kit.Get: %w", err)
	}
	if err := attachComponents(ctx, repos.Bindings, kit); err != nil {
		return nil, fmt.Errorf("services.kit.Get: %w", err)
	}
	return kit, nil
}

func (s *kitService) ListKits(ctx context.Context, filter models.KitFilter) ([]*models.Kit, error) {
	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	repos := s.store.Repos()
	kits, err := repos.Kits.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("services.kit.List: %w", err)
	}
	for _, kit := range kits {
		if err := attachComponents(ctx, repos.Bindings, kit); err != nil {
			return nil, fmt.Errorf("services.kit.List: %w", err)
		}
	}
	if kits == nil {
		kits = []*models.Kit{}
	}
	return kits, nil
}

// attachComponents fills kit.Components from the binding log. For a
// disassembled kit this is the last set of components it held.
func attachComponents(ctx context.Context, bindings repositories.KitBindingRepository, kit *models.Kit) error {
	list, err := bindings.ListByKit(ctx, kit.ID)
	if err != nil {
		return err
	}
	kit.Components = make(models.KitComponents, len(list))
	for _, b := range list {
		kit.Components[b.ComponentType] = b.ComponentID
	}
	return nil
}

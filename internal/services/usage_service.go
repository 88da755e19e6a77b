package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medkit/internal/models"
	"medkit/internal/repositories"
)

type UsageService interface {
	// GetUsageHistory returns every usage record of every kit the component
	// was ever bound to, oldest first.
	GetUsageHistory(ctx context.Context, componentID string) ([]*models.UsageRecord, error)
}

type usageService struct {
	store repositories.Store
	opts  options
}

func NewUsageService(store repositories.Store, opts ...Option) UsageService {
	return &usageService{store: store, opts: newOptions(opts)}
}

func (s *usageService) GetUsageHistory(ctx context.Context, componentID string) ([]*models.UsageRecord, error) {
	const op = "services.usage.History"

	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return nil, models.NewValidationError("component_id", "component id is required")
	}

	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	repos := s.store.Repos()
	if _, err := repos.Components.GetByID(ctx, componentID); err != nil {
		if errors.Is(err, models.ErrComponentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	history, err := repos.Usage.HistoryByComponent(ctx, componentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if history == nil {
		history = []*models.UsageRecord{}
	}
	return history, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"medkit/internal/caching"
	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

const distributorCacheTTL = 10 * time.Minute

type DistributorService interface {
	Create(ctx context.Context, distributor *models.Distributor) error
	GetByID(ctx context.Context, id string) (*models.Distributor, error)
	Update(ctx context.Context, distributor *models.Distributor) error
	SetStatus(ctx context.Context, id string, status models.DistributorStatus) (*models.Distributor, error)
	List(ctx context.Context, status *models.DistributorStatus, limit, offset int) ([]*models.Distributor, error)
}

type distributorService struct {
	store repositories.Store
	cache caching.CacheService
	opts  options
}

// NewDistributorService builds the directory service. cache may be nil.
func NewDistributorService(store repositories.Store, cache caching.CacheService, opts ...Option) DistributorService {
	return &distributorService{store: store, cache: cache, opts: newOptions(opts)}
}

func validateDistributor(d *models.Distributor) error {
	verr := &models.ValidationError{}
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	if d.Name == "" {
		verr.Add(d.ID, "name", "distributor name is required")
	}
	if d.Email != "" {
		if _, err := mail.ParseAddress(d.Email); err != nil {
			verr.Add(d.ID, "email", "invalid email address")
		}
	}
	if verr.HasIssues() {
		return verr
	}
	return nil
}

func (s *distributorService) Create(ctx context.Context, distributor *models.Distributor) error {
	const op = "services.distributor.Create"

	if err := validateDistributor(distributor); err != nil {
		return err
	}
	distributor.ID = strings.TrimSpace(distributor.ID)
	if distributor.ID == "" {
		distributor.ID = uuid.NewString()
	}
	if distributor.Status == "" {
		distributor.Status = models.DistributorStatusActive
	}
	now := s.opts.now()
	distributor.CreatedAt = now
	distributor.UpdatedAt = now

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		if _, err := r.Distributors.GetByID(ctx, distributor.ID); err == nil {
			verr := &models.ValidationError{}
			verr.Add(distributor.ID, "id", "distributor already exists")
			return verr
		} else if !errors.Is(err, models.ErrDistributorNotFound) {
			return err
		}
		if err := r.Distributors.Create(ctx, distributor); err != nil {
			return err
		}
		return logTransition(ctx, r, now, models.NewAuditLog(models.EntityDistributor, distributor.ID, models.ActionCreate,
			"", string(distributor.Status), models.JSONB{"name": distributor.Name}))
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *distributorService) GetByID(ctx context.Context, id string) (*models.Distributor, error) {
	id = strings.TrimSpace(id)

	if s.cache != nil {
		cached, err := s.cache.GetDistributor(ctx, id)
		if err != nil {
			logger.Warn(ctx, "distributor cache read failed", logger.String("distributor_id", id), logger.ErrorF(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	d, err := s.store.Repos().Distributors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrDistributorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("services.distributor.Get: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetDistributor(ctx, d, distributorCacheTTL); err != nil {
			logger.Warn(ctx, "distributor cache write failed", logger.String("distributor_id", id), logger.ErrorF(err))
		}
	}
	return d, nil
}

func (s *distributorService) Update(ctx context.Context, distributor *models.Distributor) error {
	const op = "services.distributor.Update"

	if err := validateDistributor(distributor); err != nil {
		return err
	}

	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	now := s.opts.now()
	distributor.UpdatedAt = now
	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		if err := r.Distributors.Update(ctx, distributor); err != nil {
			return err
		}
		return logTransition(ctx, r, now, models.NewAuditLog(models.EntityDistributor, distributor.ID, models.ActionUpdate, "", "",
			models.JSONB{"name": distributor.Name, "city": distributor.City}))
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.evict(ctx, distributor.ID)
	return nil
}

// SetStatus activates or deactivates a distributor. Distributors are never
// removed; deactivation only blocks new distributions.
func (s *distributorService) SetStatus(ctx context.Context, id string, status models.DistributorStatus) (*models.Distributor, error) {
	const op = "services.distributor.SetStatus"

	id = strings.TrimSpace(id)
	ctx, cancel := s.opts.writeCtx(ctx)
	defer cancel()

	now := s.opts.now()
	var updated *models.Distributor
	err := s.store.InTx(ctx, func(r repositories.Repos) error {
		d, err := r.Distributors.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from := d.Status
		if err := r.Distributors.SetStatus(ctx, id, status); err != nil {
			return err
		}
		d.Status = status
		updated = d
		if from == status {
			return nil
		}
		return logTransition(ctx, r, now, models.NewAuditLog(models.EntityDistributor, id, models.ActionStatusChange, string(from), string(status), nil))
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.evict(ctx, id)
	return updated, nil
}

func (s *distributorService) List(ctx context.Context, status *models.DistributorStatus, limit, offset int) ([]*models.Distributor, error) {
	ctx, cancel := s.opts.readCtx(ctx)
	defer cancel()

	list, err := s.store.Repos().Distributors.List(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("services.distributor.List: %w", err)
	}
	if list == nil {
		list = []*models.Distributor{}
	}
	return list, nil
}

func (s *distributorService) evict(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteDistributor(ctx, id); err != nil {
		logger.Warn(ctx, "distributor cache eviction failed", logger.String("distributor_id", id), logger.ErrorF(err))
	}
}

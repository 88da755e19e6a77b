package analytics

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/samber/lo"

	"medkit/internal/caching"
	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
)

const (
	MaxMonths   = 120
	monthLayout = "2006-01"
)

// DiscardRateService computes per-month scrap ratios over a trailing window
// of calendar months ending with the current one.
type DiscardRateService struct {
	store   repositories.Store
	cache   caching.CacheService
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewDiscardRateService builds the aggregator. cache may be nil; now
// defaults to the wall clock.
func NewDiscardRateService(store repositories.Store, cache caching.CacheService, ttl, timeout time.Duration, now func() time.Time) *DiscardRateService {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DiscardRateService{store: store, cache: cache, ttl: ttl, timeout: timeout, now: now}
}

// Window returns the first instant of the oldest month and the exclusive
// end of the current month.
func Window(now time.Time, months int) (from, to time.Time) {
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return current.AddDate(0, -(months - 1), 0), current.AddDate(0, 1, 0)
}

func validateMonths(months int) error {
	if months < 1 || months > MaxMonths {
		return models.NewValidationError("months", fmt.Sprintf("months must be between 1 and %d", MaxMonths))
	}
	return nil
}

// DiscardRate returns exactly months entries, oldest first. Store errors
// surface here; the sequence itself only does arithmetic.
func (s *DiscardRateService) DiscardRate(ctx context.Context, months int) (iter.Seq[models.MonthlyDiscardRate], error) {
	if err := validateMonths(months); err != nil {
		return nil, err
	}

	now := s.now()
	anchor := now.UTC().Format(monthLayout)

	if s.cache != nil {
		cached, err := s.cache.GetDiscardRates(ctx, anchor, months)
		if err != nil {
			logger.Warn(ctx, "discard rate cache read failed", logger.ErrorF(err))
		} else if len(cached) == months {
			return slices.Values(cached), nil
		}
	}

	seq, err := s.compute(ctx, now, months)
	if err != nil {
		return nil, err
	}
	s.cacheRates(ctx, anchor, months, seq)
	return seq, nil
}

// Refresh recomputes the window for the current month and overwrites the
// cached copy.
func (s *DiscardRateService) Refresh(ctx context.Context, months int) error {
	if err := validateMonths(months); err != nil {
		return err
	}
	now := s.now()
	seq, err := s.compute(ctx, now, months)
	if err != nil {
		return err
	}
	s.cacheRates(ctx, now.UTC().Format(monthLayout), months, seq)
	return nil
}

func (s *DiscardRateService) cacheRates(ctx context.Context, anchor string, months int, seq iter.Seq[models.MonthlyDiscardRate]) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetDiscardRates(ctx, anchor, months, slices.Collect(seq), s.ttl); err != nil {
		logger.Warn(ctx, "discard rate cache write failed", logger.ErrorF(err))
	}
}

func (s *DiscardRateService) compute(ctx context.Context, now time.Time, months int) (iter.Seq[models.MonthlyDiscardRate], error) {
	const op = "analytics.DiscardRate"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	from, to := Window(now, months)
	repos := s.store.Repos()

	scrapped, err := repos.Components.CountScrappedByMonth(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: scrapped: %w", op, err)
	}
	used, err := repos.Usage.CountUsedComponentsByMonth(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: used: %w", op, err)
	}

	return Rates(from, months, byMonth(scrapped), byMonth(used)), nil
}

func byMonth(counts []models.MonthlyCount) map[string]int {
	return lo.SliceToMap(counts, func(c models.MonthlyCount) (string, int) { return c.Month, c.Count })
}

// Rates lazily yields one entry per month starting at from. A month with
// no outcomes has rate 0.
func Rates(from time.Time, months int, scrapped, used map[string]int) iter.Seq[models.MonthlyDiscardRate] {
	return func(yield func(models.MonthlyDiscardRate) bool) {
		for i := range months {
			month := from.AddDate(0, i, 0).Format(monthLayout)
			sc, us := scrapped[month], used[month]
			rate := 0.0
			if total := sc + us; total > 0 {
				rate = float64(sc) / float64(total)
			}
			if !yield(models.MonthlyDiscardRate{Month: month, Rate: rate, Used: us, Scrapped: sc}) {
				return
			}
		}
	}
}

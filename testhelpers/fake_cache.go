package testhelpers

import (
	"context"
	"slices"
	"sync"
	"time"

	"medkit/internal/caching"
	"medkit/internal/models"
)

// FakeCache is an in-memory caching.CacheService. Set Err to make every
// call fail the way an unreachable Redis would.
type FakeCache struct {
	mu           sync.Mutex
	rates        map[string][]models.MonthlyDiscardRate
	distributors map[string]models.Distributor

	Err     error
	Hits    int
	Misses  int
	Writes  int
	Deletes int
}

var _ caching.CacheService = (*FakeCache)(nil)

func NewFakeCache() *FakeCache {
	return &FakeCache{
		rates:        map[string][]models.MonthlyDiscardRate{},
		distributors: map[string]models.Distributor{},
	}
}

func (f *FakeCache) GetDiscardRates(ctx context.Context, anchorMonth string, months int) ([]models.MonthlyDiscardRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	rates, ok := f.rates[caching.DiscardRateKey(anchorMonth, months)]
	if !ok {
		f.Misses++
		return nil, nil
	}
	f.Hits++
	return slices.Clone(rates), nil
}

func (f *FakeCache) SetDiscardRates(ctx context.Context, anchorMonth string, months int, rates []models.MonthlyDiscardRate, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Writes++
	f.rates[caching.DiscardRateKey(anchorMonth, months)] = slices.Clone(rates)
	return nil
}

func (f *FakeCache) InvalidateDiscardRates(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Deletes += len(f.rates)
	f.rates = map[string][]models.MonthlyDiscardRate{}
	return nil
}

func (f *FakeCache) GetDistributor(ctx context.Context, id string) (*models.Distributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	d, ok := f.distributors[id]
	if !ok {
		f.Misses++
		return nil, nil
	}
	f.Hits++
	return &d, nil
}

func (f *FakeCache) SetDistributor(ctx context.Context, distributor *models.Distributor, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Writes++
	f.distributors[distributor.ID] = *distributor
	return nil
}

func (f *FakeCache) DeleteDistributor(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Deletes++
	delete(f.distributors, id)
	return nil
}

func (f *FakeCache) Ping(ctx context.Context) error {
	return f.Err
}

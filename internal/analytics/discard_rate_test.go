package analytics_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkit/internal/analytics"
	"medkit/internal/models"
	"medkit/testhelpers"
)

var march2024 = time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return march2024 }

func seedScrap(t *testing.T, store *testhelpers.MemStore, id string, at time.Time) {
	t.Helper()
	err := store.Repos().Components.Create(context.Background(), &models.Component{
		ID:          id,
		Type:        models.ComponentTypePhone,
		ModelNumber: "P-Model-1",
		Status:      models.ComponentStatusScrapped,
		CreatedAt:   at,
		UpdatedAt:   at,
		DiscardedAt: lo.ToPtr(at),
	})
	require.NoError(t, err)
}

func seedUsedKit(t *testing.T, store *testhelpers.MemStore, kitID string, components int, end time.Time) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repos()
	for i := range components {
		require.NoError(t, repos.Bindings.Create(ctx, &models.KitBinding{
			ComponentID:   kitID + "-c" + string(rune('a'+i)),
			ComponentType: models.ComponentTypePhone,
			KitID:         kitID,
			BoundAt:       end.AddDate(0, 0, -10),
		}))
	}
	require.NoError(t, repos.Usage.Create(ctx, &models.UsageRecord{
		KitID:         kitID,
		DistributorID: "D1",
		StartTime:     end.AddDate(0, 0, -5),
		EndTime:       lo.ToPtr(end),
	}))
}

func TestWindow(t *testing.T) {
	from, to := analytics.Window(march2024, 3)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), to)

	from, _ = analytics.Window(march2024, 1)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), from)
}

func TestRates(t *testing.T) {
	from := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	got := slices.Collect(analytics.Rates(from, 3,
		map[string]int{"2023-12": 1, "2024-01": 0},
		map[string]int{"2023-12": 3, "2024-01": 4},
	))

	require.Len(t, got, 3)
	assert.Equal(t, models.MonthlyDiscardRate{Month: "2023-12", Rate: 0.25, Used: 3, Scrapped: 1}, got[0])
	assert.Equal(t, models.MonthlyDiscardRate{Month: "2024-01", Rate: 0, Used: 4, Scrapped: 0}, got[1])
	assert.Equal(t, models.MonthlyDiscardRate{Month: "2024-02", Rate: 0}, got[2])
}

func TestRatesStopsEarly(t *testing.T) {
	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	var seen []string
	for r := range analytics.Rates(from, 12, nil, nil) {
		seen = append(seen, r.Month)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"2024-01", "2024-02"}, seen)
}

func TestDiscardRate_MonthsOutOfRange(t *testing.T) {
	svc := analytics.NewDiscardRateService(testhelpers.NewMemStore(), nil, time.Minute, 0, fixedNow)

	for _, months := range []int{0, -1, 121} {
		_, err := svc.DiscardRate(context.Background(), months)
		assert.ErrorIs(t, err, models.ErrValidation, "months=%d", months)
	}
}

func TestDiscardRate_ComputesWindow(t *testing.T) {
	store := testhelpers.NewMemStore()
	seedScrap(t, store, "H-old", time.Date(2023, time.December, 20, 0, 0, 0, 0, time.UTC))
	seedScrap(t, store, "H-jan", time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC))
	seedUsedKit(t, store, "K1", 3, time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC))
	seedUsedKit(t, store, "K2", 2, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC))

	svc := analytics.NewDiscardRateService(store, nil, time.Minute, 0, fixedNow)
	seq, err := svc.DiscardRate(context.Background(), 3)
	require.NoError(t, err)

	got := slices.Collect(seq)
	require.Len(t, got, 3)
	assert.Equal(t, models.MonthlyDiscardRate{Month: "2024-01", Rate: 0.25, Used: 3, Scrapped: 1}, got[0])
	assert.Equal(t, models.MonthlyDiscardRate{Month: "2024-02"}, got[1])
	assert.Equal(t, models.MonthlyDiscardRate{Month: "2024-03", Rate: 0, Used: 2}, got[2])
}

func TestDiscardRate_StoreFailure(t *testing.T) {
	store := testhelpers.NewMemStore()
	boom := errors.New("connection reset")
	store.FailOn("usage.CountUsedComponentsByMonth", boom)

	svc := analytics.NewDiscardRateService(store, nil, time.Minute, 0, fixedNow)
	_, err := svc.DiscardRate(context.Background(), 6)
	assert.ErrorIs(t, err, boom)
}

func TestDiscardRate_UsesCache(t *testing.T) {
	store := testhelpers.NewMemStore()
	cache := testhelpers.NewFakeCache()
	svc := analytics.NewDiscardRateService(store, cache, time.Minute, 0, fixedNow)
	ctx := context.Background()

	first, err := svc.DiscardRate(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, slices.Collect(first), 2)
	assert.Equal(t, 1, cache.Writes)
	assert.Equal(t, 1, cache.Misses)

	// A failing store proves the second read is served from cache.
	store.FailOn("components.CountScrappedByMonth", errors.New("down"))
	second, err := svc.DiscardRate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, slices.Collect(first), slices.Collect(second))
	assert.Equal(t, 1, cache.Hits)
}

func TestDiscardRate_CacheErrorsBypassed(t *testing.T) {
	cache := testhelpers.NewFakeCache()
	cache.Err = errors.New("redis unavailable")
	svc := analytics.NewDiscardRateService(testhelpers.NewMemStore(), cache, time.Minute, 0, fixedNow)

	seq, err := svc.DiscardRate(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, slices.Collect(seq), 4)
}

func TestRefresh_OverwritesCache(t *testing.T) {
	store := testhelpers.NewMemStore()
	cache := testhelpers.NewFakeCache()
	svc := analytics.NewDiscardRateService(store, cache, time.Minute, 0, fixedNow)
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx, 1))
	seedScrap(t, store, "H-mar", time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, svc.Refresh(ctx, 1))

	cached, err := cache.GetDiscardRates(ctx, "2024-03", 1)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, 1, cached[0].Scrapped)
	assert.Equal(t, 1.0, cached[0].Rate)
	assert.Equal(t, 2, cache.Writes)
}

package services

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"medkit/internal/models"
)

func (s *LifecycleSuite) openRecords(kitIDs ...string) []*models.UsageRecord {
	open, err := s.store.Repos().Usage.ListOpenByKits(s.ctx, kitIDs)
	s.Require().NoError(err)
	return open
}

func (s *LifecycleSuite) TestDistribute_AllOrNothing() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.createDistributor("D2", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.assembleKit("K2", "2")
	s.distribute("D1", "K2")

	_, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1", "K2"}, DistributorID: "D2"})

	var kerr *models.InvalidKitStateError
	s.Require().ErrorAs(err, &kerr)
	s.Equal([]string{"K2"}, kerr.KitIDs())

	k1 := s.kit("K1")
	s.Equal(models.KitStatusAvailable, k1.Status)
	s.Nil(k1.DistributorID)
	s.Empty(s.openRecords("K1"))

	k2 := s.kit("K2")
	s.Equal(models.KitStatusInUse, k2.Status)
	s.Equal("D1", *k2.DistributorID)
}

func (s *LifecycleSuite) TestDistribute_NamesEveryOffender() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")

	_, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K404", "K1", "K405"}, DistributorID: "D1"})

	var kerr *models.InvalidKitStateError
	s.Require().ErrorAs(err, &kerr)
	s.Equal([]string{"K404", "K405"}, kerr.KitIDs())
	s.Equal(models.KitStatusAvailable, s.kit("K1").Status)
}

func (s *LifecycleSuite) TestDistribute_Distributor() {
	s.createDistributor("D-off", models.DistributorStatusInactive)
	s.assembleKit("K1", "1")

	_, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1"}, DistributorID: "D-off"})
	var derr *models.DistributorInactiveError
	s.Require().ErrorAs(err, &derr)
	s.Equal("D-off", derr.DistributorID)

	_, err = s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1"}, DistributorID: "D-404"})
	s.ErrorIs(err, models.ErrValidation)

	_, err = s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{" "}, DistributorID: ""})
	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Len(verr.Issues, 2)

	s.Equal(models.KitStatusAvailable, s.kit("K1").Status)
}

func (s *LifecycleSuite) TestDistribute_ConcurrentCallersOneWins() {
	for _, id := range []string{"D1", "D2", "D3", "D4"} {
		s.createDistributor(id, models.DistributorStatusActive)
	}
	s.assembleKit("K1", "1")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	for _, d := range []string{"D1", "D2", "D3", "D4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1"}, DistributorID: d})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if isDomainError(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
	s.Equal(3, rejected)
	s.Len(s.openRecords("K1"), 1)
}

func (s *LifecycleSuite) TestDistributeCollect_RoundTrip() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.assembleKit("K2", "2")

	start := time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC)
	dist, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{
		KitIDs:        []string{"K1", "K2"},
		DistributorID: "D1",
		StartTime:     &start,
	})
	s.Require().NoError(err)
	s.Len(dist.UsageRecords, 2)
	for _, id := range []string{"K1", "K2"} {
		k := s.kit(id)
		s.Equal(models.KitStatusInUse, k.Status)
		s.Equal("Distributor D1", *k.DistributorName)
		s.Equal(start, *k.DispenseDate)
	}

	s.advance(72 * time.Hour)
	col, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1", "K2"}})
	s.Require().NoError(err)
	s.Len(col.UsageRecords, 2)

	all, err := s.store.Repos().Usage.ListAll(s.ctx)
	s.Require().NoError(err)
	perKit := lo.CountValuesBy(all, func(u *models.UsageRecord) string { return u.KitID })
	s.Equal(map[string]int{"K1": 1, "K2": 1}, perKit)
	for _, u := range all {
		s.Require().NotNil(u.EndTime)
		s.False(u.EndTime.Before(u.StartTime))
		s.Equal(s.now, *u.EndTime)
	}
	s.Equal(models.KitStatusUsed, s.kit("K1").Status)
	s.Empty(s.openRecords("K1", "K2"))
}

func (s *LifecycleSuite) TestCollect_EndBeforeStart() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.distribute("D1", "K1")

	end := s.now.Add(-time.Minute)
	_, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1"}, EndTime: &end})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("K1", verr.Issues[0].ID)
	s.Equal(models.KitStatusInUse, s.kit("K1").Status)
	s.Len(s.openRecords("K1"), 1)
}

func (s *LifecycleSuite) TestCollect_AllOrNothing() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.assembleKit("K2", "2")
	s.distribute("D1", "K1")

	_, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1", "K2"}})

	var kerr *models.InvalidKitStateError
	s.Require().ErrorAs(err, &kerr)
	s.Equal([]string{"K2"}, kerr.KitIDs())
	s.Equal(models.KitStatusInUse, s.kit("K1").Status)
	s.Len(s.openRecords("K1"), 1)
}

func (s *LifecycleSuite) TestDistribute_StoreFailureLeavesKitsUntouched() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.assembleKit("K2", "2")
	s.store.FailOn("usage.Create", errBoom)

	_, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1", "K2"}, DistributorID: "D1"})
	s.Require().ErrorIs(err, errBoom)
	s.Contains(err.Error(), "services.distribution.Distribute")

	s.Equal(models.KitStatusAvailable, s.kit("K1").Status)
	s.Equal(models.KitStatusAvailable, s.kit("K2").Status)
}

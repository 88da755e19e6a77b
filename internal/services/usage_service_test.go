package services

import (
	"time"

	"medkit/internal/models"
)

func (s *LifecycleSuite) cycle(kitID string, set models.KitComponents, distributorID string, days int) {
	_, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{KitID: kitID, Components: set})
	s.Require().NoError(err)
	s.distribute(distributorID, kitID)
	s.advance(time.Duration(days) * 24 * time.Hour)
	_, err = s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{kitID}})
	s.Require().NoError(err)
	_, err = s.disassembly.DisassembleKit(s.ctx, kitID, models.DisassembleOptions{})
	s.Require().NoError(err)
	s.advance(time.Hour)
}

func (s *LifecycleSuite) TestUsageHistory_AcrossReassembly() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.createDistributor("D2", models.DistributorStatusActive)
	set := s.componentSet("1")

	s.cycle("K1", set, "D1", 3)

	// Swap the phone so the second kit shares everything but that slot.
	second := models.KitComponents{}
	for t, id := range set {
		second[t] = id
	}
	s.createComponent(models.ComponentTypePhone, "P-new")
	second[models.ComponentTypePhone] = "P-new"
	s.cycle("K2", second, "D2", 2)

	history, err := s.usage.GetUsageHistory(s.ctx, set[models.ComponentTypeBox])
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("K1", history[0].KitID)
	s.Equal("Distributor D1", history[0].DistributorName)
	s.Equal("K2", history[1].KitID)
	s.Equal("Distributor D2", history[1].DistributorName)
	s.True(history[0].StartTime.Before(history[1].StartTime))

	phoneHistory, err := s.usage.GetUsageHistory(s.ctx, set[models.ComponentTypePhone])
	s.Require().NoError(err)
	s.Require().Len(phoneHistory, 1)
	s.Equal("K1", phoneHistory[0].KitID)
}

func (s *LifecycleSuite) TestUsageHistory_EmptyAndUnknown() {
	s.createComponent(models.ComponentTypeBox, "B1")

	history, err := s.usage.GetUsageHistory(s.ctx, "B1")
	s.Require().NoError(err)
	s.NotNil(history)
	s.Empty(history)

	_, err = s.usage.GetUsageHistory(s.ctx, "B404")
	s.ErrorIs(err, models.ErrComponentNotFound)

	_, err = s.usage.GetUsageHistory(s.ctx, " ")
	s.ErrorIs(err, models.ErrValidation)
}

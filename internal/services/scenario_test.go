package services

import (
	"time"

	"medkit/internal/models"
)

func (s *LifecycleSuite) TestKitLifecycleScenario() {
	set := models.KitComponents{
		models.ComponentTypeHeadphone:   "H1",
		models.ComponentTypeLeftSensor:  "S1",
		models.ComponentTypeRightSensor: "S2",
		models.ComponentTypePhone:       "P1",
		models.ComponentTypeSimCard:     "SIM1",
		models.ComponentTypeBox:         "B1",
	}
	for t, id := range set {
		s.createComponent(t, id)
	}
	s.requireComponentsStatus(set, models.ComponentStatusAvailable)
	s.createDistributor("D1", models.DistributorStatusActive)

	_, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{KitID: "K1", Components: set})
	s.Require().NoError(err)
	s.Equal(models.KitStatusAvailable, s.kit("K1").Status)
	s.requireComponentsStatus(set, models.ComponentStatusInKit)

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1"}, DistributorID: "D1", StartTime: &start})
	s.Require().NoError(err)
	s.Equal(models.KitStatusInUse, s.kit("K1").Status)
	open := s.openRecords("K1")
	s.Require().Len(open, 1)
	s.Nil(open[0].EndTime)

	end := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	s.now = end
	collected, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1"}, EndTime: &end})
	s.Require().NoError(err)
	s.Equal(models.KitStatusUsed, s.kit("K1").Status)
	s.Require().Len(collected.UsageRecords, 1)
	s.Equal(end, *collected.UsageRecords[0].EndTime)
	s.Empty(s.openRecords("K1"))

	_, err = s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.Require().NoError(err)
	s.Equal(models.KitStatusDisassembled, s.kit("K1").Status)
	s.requireComponentsStatus(set, models.ComponentStatusAvailable)

	history, err := s.usage.GetUsageHistory(s.ctx, "SIM1")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("K1", history[0].KitID)
	s.Equal("Distributor D1", history[0].DistributorName)
	s.Equal(start, history[0].StartTime)
	s.Equal(end, *history[0].EndTime)
}

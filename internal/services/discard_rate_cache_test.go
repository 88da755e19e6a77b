package services

import (
	"slices"
	"time"

	"medkit/internal/analytics"
	"medkit/internal/models"
)

func (s *LifecycleSuite) currentDiscardRate(rates *analytics.DiscardRateService) models.MonthlyDiscardRate {
	seq, err := rates.DiscardRate(s.ctx, 1)
	s.Require().NoError(err)
	got := slices.Collect(seq)
	s.Require().Len(got, 1)
	return got[0]
}

func (s *LifecycleSuite) TestDiscardRate_ScrapBetweenReads() {
	rates := analytics.NewDiscardRateService(s.store, s.cache, time.Hour, 0, func() time.Time { return s.now })
	s.createComponent(models.ComponentTypePhone, "P1")

	s.Equal(0, s.currentDiscardRate(rates).Scrapped)
	s.Equal(0, s.currentDiscardRate(rates).Scrapped)
	s.Equal(1, s.cache.Hits)

	_, err := s.components.SetComponentStatus(s.ctx, "P1", models.ComponentStatusScrapped)
	s.Require().NoError(err)

	got := s.currentDiscardRate(rates)
	s.Equal(1, got.Scrapped)
	s.Equal(1.0, got.Rate)
}

func (s *LifecycleSuite) TestDiscardRate_CollectAndDisassemblyInvalidate() {
	rates := analytics.NewDiscardRateService(s.store, s.cache, time.Hour, 0, func() time.Time { return s.now })
	s.createDistributor("D1", models.DistributorStatusActive)
	set := s.assembleKit("K1", "1")
	s.distribute("D1", "K1")

	s.Equal(0, s.currentDiscardRate(rates).Used)

	s.advance(24 * time.Hour)
	_, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1"}})
	s.Require().NoError(err)
	s.Equal(len(models.RequiredComponentTypes), s.currentDiscardRate(rates).Used)

	_, err = s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{
		ScrapComponentIDs: []string{set[models.ComponentTypeBox]},
	})
	s.Require().NoError(err)
	s.Equal(1, s.currentDiscardRate(rates).Scrapped)
}

func (s *LifecycleSuite) TestDiscardRate_InvalidationFailureIsBypassed() {
	s.createComponent(models.ComponentTypePhone, "P1")
	s.cache.Err = errBoom

	c, err := s.components.SetComponentStatus(s.ctx, "P1", models.ComponentStatusScrapped)
	s.Require().NoError(err)
	s.Equal(models.ComponentStatusScrapped, c.Status)
}

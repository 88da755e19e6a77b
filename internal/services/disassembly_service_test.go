package services

import (
	"time"

	"github.com/samber/lo"

	"medkit/internal/models"
)

func (s *LifecycleSuite) TestDisassembleKits_BestEffort() {
	s.createDistributor("D1", models.DistributorStatusActive)
	setA := s.assembleKit("KA", "A")
	setB := s.assembleKit("KB", "B")
	s.distribute("D1", "KB")

	res, err := s.disassembly.DisassembleKits(s.ctx, []string{"KA", "KB"}, models.DisassembleOptions{})
	s.Require().NoError(err)

	s.Equal(models.BulkStatusPartial, res.Status)
	s.Equal(2, res.TotalItems)
	s.Equal([]string{"KA"}, res.Succeeded)
	s.Require().Len(res.Failed, 1)
	s.Equal("KB", res.Failed[0].ItemID)
	s.Equal("kit is In-use", res.Failed[0].Reason)
	s.NotNil(res.CompletionTime)

	s.Equal(models.KitStatusDisassembled, s.kit("KA").Status)
	s.requireComponentsStatus(setA, models.ComponentStatusAvailable)
	for _, id := range setA {
		s.Nil(s.component(id).KitID)
	}

	s.Equal(models.KitStatusInUse, s.kit("KB").Status)
	s.requireComponentsStatus(setB, models.ComponentStatusInKit)
}

func (s *LifecycleSuite) TestDisassembleKits_AllFail() {
	res, err := s.disassembly.DisassembleKits(s.ctx, []string{"K404"}, models.DisassembleOptions{})
	s.Require().NoError(err)
	s.Equal(models.BulkStatusFailed, res.Status)
	s.Empty(res.Succeeded)
	s.Equal("kit not found", res.Failed[0].Reason)

	_, err = s.disassembly.DisassembleKits(s.ctx, nil, models.DisassembleOptions{})
	s.ErrorIs(err, models.ErrValidation)
}

func (s *LifecycleSuite) TestDisassembleKit_ScrapOption() {
	s.createDistributor("D1", models.DistributorStatusActive)
	set := s.assembleKit("K1", "1")
	s.distribute("D1", "K1")
	s.advance(24 * time.Hour)
	_, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1"}})
	s.Require().NoError(err)

	phone := set[models.ComponentTypePhone]
	res, err := s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{ScrapComponentIDs: []string{phone}})
	s.Require().NoError(err)
	s.Equal([]string{phone}, res.Scrapped)
	s.Len(res.Released, 5)
	s.Empty(res.Preserved)

	scrapped := s.component(phone)
	s.Equal(models.ComponentStatusScrapped, scrapped.Status)
	s.Require().NotNil(scrapped.DiscardedAt)
	s.Equal(s.now, *scrapped.DiscardedAt)

	for t, id := range set {
		if t != models.ComponentTypePhone {
			s.Equal(models.ComponentStatusAvailable, s.component(id).Status)
		}
	}
}

func (s *LifecycleSuite) TestDisassembleKit_ScrapIDMustBelongToKit() {
	set := s.assembleKit("K1", "1")
	s.createComponent(models.ComponentTypePhone, "P-loose")

	_, err := s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{ScrapComponentIDs: []string{"P-loose"}})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("P-loose", verr.Issues[0].ID)
	s.Equal(models.KitStatusAvailable, s.kit("K1").Status)
	s.requireComponentsStatus(set, models.ComponentStatusInKit)
}

func (s *LifecycleSuite) TestDisassembleKit_RejectsInUseAndMissing() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.distribute("D1", "K1")

	_, err := s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.ErrorIs(err, models.ErrInvalidKitState)

	_, err = s.disassembly.DisassembleKit(s.ctx, "K404", models.DisassembleOptions{})
	var kerr *models.InvalidKitStateError
	s.Require().ErrorAs(err, &kerr)
	s.Equal("kit not found", kerr.Kits[0].Reason)
}

func (s *LifecycleSuite) TestDisassembleKit_TwiceFails() {
	s.assembleKit("K1", "1")

	_, err := s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.Require().NoError(err)

	_, err = s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.ErrorIs(err, models.ErrInvalidKitState)
}

func (s *LifecycleSuite) TestDisassembleKit_ClosesBindings() {
	set := s.assembleKit("K1", "1")
	s.advance(time.Hour)

	_, err := s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.Require().NoError(err)

	bindings, err := s.store.Repos().Bindings.ListByKit(s.ctx, "K1")
	s.Require().NoError(err)
	s.Len(bindings, len(set))
	for _, b := range bindings {
		s.Require().NotNil(b.UnboundAt)
		s.Equal(s.now, *b.UnboundAt)
	}

	// Components are free for a new kit and the old kit keeps its last composition.
	_, err = s.kits.CreateKit(s.ctx, models.CreateKitParams{KitID: "K2", Components: set})
	s.Require().NoError(err)
	s.Equal(set, s.kit("K1").Components)
	s.ElementsMatch(lo.Values(set), lo.Values(s.kit("K2").Components))
}

func (s *LifecycleSuite) TestDisassembleKit_StoreFailureRollsBack() {
	set := s.assembleKit("K1", "1")
	s.store.FailOn("bindings.CloseByKit", errBoom)

	_, err := s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.Require().ErrorIs(err, errBoom)

	s.Equal(models.KitStatusAvailable, s.kit("K1").Status)
	s.requireComponentsStatus(set, models.ComponentStatusInKit)
}

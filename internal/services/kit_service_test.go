package services

import (
	"fmt"

	"github.com/samber/lo"

	"medkit/internal/models"
)

func (s *LifecycleSuite) TestCreateKit_BindsAllSix() {
	for trial := range 5 {
		kitID := fmt.Sprintf("K%d", trial)
		set := s.componentSet(fmt.Sprint(trial))

		res, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{KitID: kitID, Components: set})
		s.Require().NoError(err)
		s.Equal(kitID, res.KitID)
		s.Equal(models.KitStatusAvailable, res.Kit.Status)

		for _, id := range set {
			c := s.component(id)
			s.Equal(models.ComponentStatusInKit, c.Status)
			s.Require().NotNil(c.KitID)
			s.Equal(kitID, *c.KitID)
		}
		s.Equal(set, s.kit(kitID).Components)

		// Any overlap with a bound component must be refused.
		overlap := s.componentSet(fmt.Sprintf("%d-retry", trial))
		reused := models.RequiredComponentTypes[trial%len(models.RequiredComponentTypes)]
		overlap[reused] = set[reused]

		_, err = s.kits.CreateKit(s.ctx, models.CreateKitParams{Components: overlap})
		var uerr *models.UnavailableComponentsError
		s.Require().ErrorAs(err, &uerr)
		s.Require().Len(uerr.Components, 1)
		s.Equal(set[reused], uerr.Components[0].ComponentID)
		s.Equal(models.ComponentStatusInKit, uerr.Components[0].Status)

		for t, id := range overlap {
			if t != reused {
				s.Equal(models.ComponentStatusAvailable, s.component(id).Status)
			}
		}
	}
}

func (s *LifecycleSuite) TestCreateKit_Incomplete() {
	set := s.componentSet("1")
	delete(set, models.ComponentTypeBox)
	set[models.ComponentTypeSimCard] = "  "

	_, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{KitID: "K1", Components: set})

	var ierr *models.IncompleteKitError
	s.Require().ErrorAs(err, &ierr)
	s.ElementsMatch([]models.ComponentType{models.ComponentTypeBox, models.ComponentTypeSimCard}, ierr.Missing)
}

func (s *LifecycleSuite) TestCreateKit_ReportsEverySlot() {
	set := s.componentSet("1")
	_, err := s.components.SetComponentStatus(s.ctx, set[models.ComponentTypeHeadphone], models.ComponentStatusRefurbishing)
	s.Require().NoError(err)
	set[models.ComponentTypeBox] = set[models.ComponentTypePhone]
	set[models.ComponentTypeSimCard] = "nope"

	_, err = s.kits.CreateKit(s.ctx, models.CreateKitParams{Components: set})

	var uerr *models.UnavailableComponentsError
	s.Require().ErrorAs(err, &uerr)
	slots := lo.Map(uerr.Components, func(u models.UnavailableComponent, _ int) models.ComponentType { return u.Type })
	s.ElementsMatch([]models.ComponentType{
		models.ComponentTypePhone,
		models.ComponentTypeSimCard,
		models.ComponentTypeHeadphone,
		models.ComponentTypeBox,
	}, slots)
}

func (s *LifecycleSuite) TestCreateKit_GeneratesSerialIDs() {
	first, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{Components: s.componentSet("1")})
	s.Require().NoError(err)
	s.Equal("MR010124001", first.KitID)

	second, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{Components: s.componentSet("2")})
	s.Require().NoError(err)
	s.Equal("MR010124002", second.KitID)
}

func (s *LifecycleSuite) TestCreateKit_SkipsCallerTakenSerial() {
	s.assembleKit("MR010124001", "1")

	res, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{Components: s.componentSet("2")})
	s.Require().NoError(err)
	s.Equal("MR010124002", res.KitID)
}

func (s *LifecycleSuite) TestCreateKit_DuplicateKitID() {
	s.assembleKit("K1", "1")

	_, err := s.kits.CreateKit(s.ctx, models.CreateKitParams{KitID: "K1", Components: s.componentSet("2")})
	s.ErrorIs(err, models.ErrValidation)
}

func (s *LifecycleSuite) TestGetKit_NotFound() {
	_, err := s.kits.GetKit(s.ctx, "K404")
	s.ErrorIs(err, models.ErrKitNotFound)
}

func (s *LifecycleSuite) TestListKits_ByStatus() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.assembleKit("K2", "2")
	s.distribute("D1", "K2")

	inUse := models.KitStatusInUse
	list, err := s.kits.ListKits(s.ctx, models.KitFilter{Status: &inUse})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("K2", list[0].ID)
	s.Len(list[0].Components, len(models.RequiredComponentTypes))

	all, err := s.kits.ListKits(s.ctx, models.KitFilter{})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *LifecycleSuite) TestCreateKits_BestEffort() {
	first := s.componentSet("1")
	incomplete := s.componentSet("2")
	delete(incomplete, models.ComponentTypeBox)
	second := s.componentSet("3")

	res, err := s.kits.CreateKits(s.ctx, []models.CreateKitParams{
		{KitID: "K1", Components: first},
		{KitID: "K2", Components: incomplete},
		{KitID: "K3", Components: second},
		{KitID: " K4 ", Components: first},
	})
	s.Require().NoError(err)

	s.Equal(models.BulkStatusPartial, res.Status)
	s.Equal(4, res.TotalItems)
	s.Equal([]string{"K1", "K3"}, res.Succeeded)
	s.Require().Len(res.Failed, 2)

	s.Equal(1, res.Failed[0].Index)
	s.Equal("K2", res.Failed[0].ItemID)
	s.Equal([]models.ComponentType{models.ComponentTypeBox}, res.Failed[0].Missing)
	s.Empty(res.Failed[0].Unavailable)

	s.Equal(3, res.Failed[1].Index)
	s.Equal("K4", res.Failed[1].ItemID)
	s.Equal("some components are not available", res.Failed[1].Reason)
	s.Len(res.Failed[1].Unavailable, len(models.RequiredComponentTypes))

	s.Equal(first, s.kit("K1").Components)
	s.Equal(second, s.kit("K3").Components)
	s.requireComponentsStatus(incomplete, models.ComponentStatusAvailable)
}

func (s *LifecycleSuite) TestCreateKits_AllFail() {
	res, err := s.kits.CreateKits(s.ctx, []models.CreateKitParams{{KitID: "K1"}})
	s.Require().NoError(err)
	s.Equal(models.BulkStatusFailed, res.Status)
	s.Empty(res.Succeeded)
	s.Len(res.Failed[0].Missing, len(models.RequiredComponentTypes))

	_, err = s.kits.CreateKits(s.ctx, nil)
	s.ErrorIs(err, models.ErrValidation)
}

func (s *LifecycleSuite) TestCreateKits_StoreFailureOnlyFailsThatKit() {
	s.store.FailOn("bindings.Create", errBoom)
	res, err := s.kits.CreateKits(s.ctx, []models.CreateKitParams{{KitID: "K1", Components: s.componentSet("1")}})
	s.Require().NoError(err)
	s.Equal(models.BulkStatusFailed, res.Status)
	s.Equal("K1", res.Failed[0].ItemID)
}

package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"medkit/internal/models"
)

func (s *LifecycleSuite) TestCreateComponents_AvailableWithCatalogModels() {
	faker := gofakeit.New(42)

	for trial := range 20 {
		t := models.RequiredComponentTypes[faker.IntN(len(models.RequiredComponentTypes))]
		items := make([]models.ComponentItem, 1+faker.IntN(5))
		for i := range items {
			items[i] = models.ComponentItem{
				ID:          fmt.Sprintf("%s-%d-%d", t, trial, i),
				ModelNumber: faker.RandomString(models.ModelCatalog[t]),
			}
		}

		res, err := s.components.CreateComponents(s.ctx, models.CreateComponentsParams{
			Type:        t,
			BatchNumber: faker.Regex("[A-Z]{2}-[0-9]{4}"),
			Items:       items,
		})
		s.Require().NoError(err)
		s.Require().Len(res.Created, len(items))

		for _, c := range res.Created {
			s.Equal(models.ComponentStatusAvailable, c.Status)
			s.Equal(t, c.Type)
			s.Contains(models.ModelCatalog[t], c.ModelNumber)
			s.Nil(c.KitID)
		}
	}
}

func (s *LifecycleSuite) TestCreateComponents_ListsEveryOffender() {
	_, err := s.components.CreateComponents(s.ctx, models.CreateComponentsParams{
		Type:        models.ComponentTypePhone,
		BatchNumber: "B-1",
		Items: []models.ComponentItem{
			{ID: "P1", ModelNumber: "P-Model-1"},
			{ID: "P2", ModelNumber: "SIM-Model-1"},
			{ID: "P1", ModelNumber: "P-Model-2"},
			{ID: " ", ModelNumber: "P-Model-1"},
		},
	})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Len(verr.Issues, 3)
	s.ErrorIs(err, models.ErrValidation)

	_, err = s.components.GetComponent(s.ctx, "P1")
	s.ErrorIs(err, models.ErrComponentNotFound)
}

func (s *LifecycleSuite) TestCreateComponents_RejectsUnknownTypeAndMissingBatch() {
	_, err := s.components.CreateComponents(s.ctx, models.CreateComponentsParams{
		Type:  models.ComponentType("charger"),
		Items: []models.ComponentItem{{ID: "C1", ModelNumber: "X"}},
	})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	fields := make([]string, 0, len(verr.Issues))
	for _, issue := range verr.Issues {
		fields = append(fields, issue.Field)
	}
	s.Contains(fields, "type")
	s.Contains(fields, "batch_number")
}

func (s *LifecycleSuite) TestCreateComponents_ExistingIDRejectsWholeBatch() {
	s.createComponent(models.ComponentTypePhone, "P1")

	_, err := s.components.CreateComponents(s.ctx, models.CreateComponentsParams{
		Type:        models.ComponentTypePhone,
		BatchNumber: "B-2",
		Items: []models.ComponentItem{
			{ID: "P2", ModelNumber: "P-Model-1"},
			{ID: "P1", ModelNumber: "P-Model-1"},
		},
	})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Require().Len(verr.Issues, 1)
	s.Equal("P1", verr.Issues[0].ID)

	_, err = s.components.GetComponent(s.ctx, "P2")
	s.ErrorIs(err, models.ErrComponentNotFound)
}

func (s *LifecycleSuite) TestCreateComponents_StoreFailureRollsBack() {
	boom := errors.New("disk full")
	s.store.FailOn("components.Create", boom)

	_, err := s.components.CreateComponents(s.ctx, models.CreateComponentsParams{
		Type:        models.ComponentTypeBox,
		BatchNumber: "B-3",
		Items:       []models.ComponentItem{{ID: "B1", ModelNumber: "Box-Model-1"}},
	})
	s.Require().ErrorIs(err, boom)
	s.Contains(err.Error(), "services.component.CreateBatch")

	list, err := s.components.ListComponents(s.ctx, models.ComponentFilter{})
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *LifecycleSuite) TestSetComponentStatus_Transitions() {
	s.createComponent(models.ComponentTypeHeadphone, "H1")

	c, err := s.components.SetComponentStatus(s.ctx, "H1", models.ComponentStatusRefurbishing)
	s.Require().NoError(err)
	s.Equal(models.ComponentStatusRefurbishing, c.Status)

	c, err = s.components.SetComponentStatus(s.ctx, "H1", models.ComponentStatusAvailable)
	s.Require().NoError(err)
	s.Equal(models.ComponentStatusAvailable, c.Status)

	s.advance(time.Hour)
	c, err = s.components.SetComponentStatus(s.ctx, "H1", models.ComponentStatusScrapped)
	s.Require().NoError(err)
	s.Equal(models.ComponentStatusScrapped, c.Status)
	s.Require().NotNil(c.DiscardedAt)
	s.Equal(s.now, *c.DiscardedAt)

	_, err = s.components.SetComponentStatus(s.ctx, "H1", models.ComponentStatusAvailable)
	var terr *models.InvalidTransitionError
	s.Require().ErrorAs(err, &terr)
	s.Equal(models.ComponentStatusScrapped, terr.From)
	s.Equal(models.ComponentStatusAvailable, terr.To)
}

func (s *LifecycleSuite) TestSetComponentStatus_InKitIsManagedByAssembly() {
	set := s.assembleKit("K1", "1")

	_, err := s.components.SetComponentStatus(s.ctx, set[models.ComponentTypePhone], models.ComponentStatusScrapped)
	s.ErrorIs(err, models.ErrInvalidTransition)

	s.createComponent(models.ComponentTypePhone, "P9")
	_, err = s.components.SetComponentStatus(s.ctx, "P9", models.ComponentStatusInKit)
	s.ErrorIs(err, models.ErrInvalidTransition)

	_, err = s.components.SetComponentStatus(s.ctx, "missing", models.ComponentStatusAvailable)
	s.ErrorIs(err, models.ErrComponentNotFound)
}

func (s *LifecycleSuite) TestListComponents_Filters() {
	s.componentSet("1")
	s.createComponent(models.ComponentTypePhone, "P2")

	phone := models.ComponentTypePhone
	list, err := s.components.ListComponents(s.ctx, models.ComponentFilter{Type: &phone})
	s.Require().NoError(err)
	s.Len(list, 2)

	list, err = s.components.ListComponents(s.ctx, models.ComponentFilter{BatchNumber: "BATCH-P2"})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("P2", list[0].ID)
}

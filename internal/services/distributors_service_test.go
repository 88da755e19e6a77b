package services

import (
	"errors"

	"medkit/internal/models"
)

func (s *LifecycleSuite) TestDistributors_CreateValidates() {
	err := s.distributors.Create(s.ctx, &models.Distributor{Name: " ", Email: "not-an-email"})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Len(verr.Issues, 2)

	d := &models.Distributor{Name: "North Clinic"}
	s.Require().NoError(s.distributors.Create(s.ctx, d))
	s.NotEmpty(d.ID)
	s.Equal(models.DistributorStatusActive, d.Status)

	err = s.distributors.Create(s.ctx, &models.Distributor{ID: d.ID, Name: "Again"})
	s.ErrorIs(err, models.ErrValidation)
}

func (s *LifecycleSuite) TestDistributors_ReadThroughCache() {
	s.createDistributor("D1", models.DistributorStatusActive)

	first, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)
	s.Equal(1, s.cache.Misses)
	s.Equal(1, s.cache.Writes)

	second, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)
	s.Equal(1, s.cache.Hits)
	s.Equal(first.Name, second.Name)

	_, err = s.distributors.GetByID(s.ctx, "D404")
	s.ErrorIs(err, models.ErrDistributorNotFound)
}

func (s *LifecycleSuite) TestDistributors_StatusChangeEvictsAndBlocksDistribution() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")

	_, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)

	d, err := s.distributors.SetStatus(s.ctx, "D1", models.DistributorStatusInactive)
	s.Require().NoError(err)
	s.Equal(models.DistributorStatusInactive, d.Status)
	s.Equal(1, s.cache.Deletes)

	fresh, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)
	s.False(fresh.IsActive())

	_, err = s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1"}, DistributorID: "D1"})
	s.ErrorIs(err, models.ErrDistributorInactive)

	_, err = s.distributors.SetStatus(s.ctx, "D404", models.DistributorStatusActive)
	s.ErrorIs(err, models.ErrDistributorNotFound)
}

func (s *LifecycleSuite) TestDistributors_UpdateAndList() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.createDistributor("D2", models.DistributorStatusInactive)

	d, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)
	d.City = "Pune"
	s.Require().NoError(s.distributors.Update(s.ctx, d))

	got, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)
	s.Equal("Pune", got.City)

	active := models.DistributorStatusActive
	list, err := s.distributors.List(s.ctx, &active, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("D1", list[0].ID)
}

func (s *LifecycleSuite) TestDistributors_CacheFailureIsBypassed() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.cache.Err = errors.New("redis down")

	d, err := s.distributors.GetByID(s.ctx, "D1")
	s.Require().NoError(err)
	s.Equal("D1", d.ID)

	_, err = s.distributors.SetStatus(s.ctx, "D1", models.DistributorStatusInactive)
	s.NoError(err)
}

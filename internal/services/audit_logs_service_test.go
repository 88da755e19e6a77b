package services

import (
	"time"

	"github.com/samber/lo"

	"medkit/internal/models"
)

func (s *LifecycleSuite) TestAuditTrail_RecordsKitLifecycle() {
	s.createDistributor("D1", models.DistributorStatusActive)
	s.assembleKit("K1", "1")
	s.distribute("D1", "K1")
	s.advance(time.Hour)
	_, err := s.distribution.CollectKits(s.ctx, models.CollectParams{KitIDs: []string{"K1"}})
	s.Require().NoError(err)
	_, err = s.disassembly.DisassembleKit(s.ctx, "K1", models.DisassembleOptions{})
	s.Require().NoError(err)

	kit := models.EntityKit
	logs, err := s.audit.ListAuditLogs(s.ctx, &models.AuditLogFilters{EntityType: &kit, EntityID: lo.ToPtr("K1")})
	s.Require().NoError(err)

	actions := lo.Map(logs, func(l *models.AuditLog, _ int) string { return l.Action })
	s.Equal([]string{models.ActionDisassemble, models.ActionCollect, models.ActionDistribute, models.ActionAssemble}, actions)
	for _, l := range logs {
		s.Require().NotNil(l.ChangedBy)
		s.Equal("operator-1", *l.ChangedBy)
	}
	s.Equal(lo.ToPtr(string(models.KitStatusUsed)), logs[0].OldStatus)
	s.Equal(lo.ToPtr(string(models.KitStatusDisassembled)), logs[0].NewStatus)
}

func (s *LifecycleSuite) TestAuditTrail_RejectedOperationLeavesNoEntry() {
	s.assembleKit("K1", "1")

	_, err := s.distribution.DistributeKits(s.ctx, models.DistributeParams{KitIDs: []string{"K1"}, DistributorID: "D404"})
	s.Require().Error(err)

	logs, err := s.audit.ListAuditLogs(s.ctx, &models.AuditLogFilters{Action: lo.ToPtr(models.ActionDistribute)})
	s.Require().NoError(err)
	s.Empty(logs)
}

func (s *LifecycleSuite) TestValidateAuditFilters() {
	bogus := models.EntityType("tenant")
	err := s.audit.ValidateAuditFilters(&models.AuditLogFilters{EntityType: &bogus})
	s.ErrorIs(err, models.ErrValidation)

	start, end := s.now, s.now.Add(-time.Hour)
	err = s.audit.ValidateAuditFilters(&models.AuditLogFilters{StartDate: &start, EndDate: &end})
	s.ErrorIs(err, models.ErrValidation)

	f := &models.AuditLogFilters{}
	s.Require().NoError(s.audit.ValidateAuditFilters(f))
	s.Positive(f.Limit)
}

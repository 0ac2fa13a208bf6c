package protectednames_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/dependencies/mocks"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/protectednames"
	"github.com/ernie/portal-repository/internal/storage"
	"github.com/ernie/portal-repository/internal/testutil"
)

type RegistrySuite struct {
	suite.Suite
	store    *storage.Store
	clock    *mocks.MockClock
	registry *protectednames.Registry
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store, s.clock = testutil.NewStore(s.T())
	cache := countcache.New(countcache.NewMemory(16, time.Minute), testutil.NopLogger())
	s.registry = protectednames.NewRegistry(s.store, cache, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *RegistrySuite) player(guid, name string) string {
	res, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: guid, Username: name})
	s.Require().NoError(err)
	return res.PlayerID
}

func (s *RegistrySuite) TestCreateRejectsCaseInsensitiveDuplicate() {
	owner := s.player("guid-owner", "Admin")

	_, err := s.registry.Create(s.ctx, owner, "Admin", nil)
	s.Require().NoError(err)

	_, err = s.registry.Create(s.ctx, owner, "admin", nil)
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *RegistrySuite) TestCreateValidation() {
	owner := s.player("guid-owner", "Admin")

	_, err := s.registry.Create(s.ctx, owner, "   ", nil)
	s.ErrorIs(err, domain.ErrInvalidInput)

	_, err = s.registry.Create(s.ctx, "missing", "Admin", nil)
	s.ErrorIs(err, domain.ErrNotFound)

	pn, err := s.registry.Create(s.ctx, owner, "  Admin ", nil)
	s.Require().NoError(err)
	s.Equal("Admin", pn.Name)
}

func (s *RegistrySuite) TestUsageReportFlagsImpersonation() {
	owner := s.player("guid-owner", "Admin")
	s.clock.Advance(time.Hour)
	imp := s.player("guid-imp", "admin")
	s.clock.Advance(time.Hour)
	s.player("guid-imp", "ADMIN")
	s.player("guid-bystander", "Someone")

	pn, err := s.registry.Create(s.ctx, owner, "Admin", nil)
	s.Require().NoError(err)

	report, err := s.registry.GetUsageReport(s.ctx, pn.ID)
	s.Require().NoError(err)
	s.Equal(owner, report.Owner.ID)
	s.Require().Len(report.Usages, 2)

	s.Equal(imp, report.Usages[0].Player.ID)
	s.False(report.Usages[0].IsOwner)
	s.Equal(2, report.Usages[0].UsageCount)
	s.WithinDuration(testutil.Epoch.Add(2*time.Hour), report.Usages[0].LastUsed, 0)

	s.Equal(owner, report.Usages[1].Player.ID)
	s.True(report.Usages[1].IsOwner)
	s.Equal(1, report.Usages[1].UsageCount)

	impersonators := protectednames.Impersonators(report)
	s.Require().Len(impersonators, 1)
	s.Equal(imp, impersonators[0].Player.ID)
}

func (s *RegistrySuite) TestUsageReportWithNoUsages() {
	owner := s.player("guid-owner", "SomethingElse")
	pn, err := s.registry.Create(s.ctx, owner, "Reserved", nil)
	s.Require().NoError(err)

	report, err := s.registry.GetUsageReport(s.ctx, pn.ID)
	s.Require().NoError(err)
	s.Equal(owner, report.Owner.ID)
	s.Empty(report.Usages)

	_, err = s.registry.GetUsageReport(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *RegistrySuite) TestListUsesInvalidatedTotal() {
	owner := s.player("guid-owner", "Admin")
	_, err := s.registry.Create(s.ctx, owner, "One", nil)
	s.Require().NoError(err)

	page, err := s.registry.List(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), page.TotalCount)
	s.Equal(protectednames.DefaultLimit, page.Limit)

	two, err := s.registry.Create(s.ctx, owner, "Two", nil)
	s.Require().NoError(err)

	page, err = s.registry.List(s.ctx, 0, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), page.TotalCount)
	s.Len(page.Names, 1)

	s.Require().NoError(s.registry.Delete(s.ctx, two.ID))
	page, err = s.registry.List(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), page.TotalCount)

	s.ErrorIs(s.registry.Delete(s.ctx, two.ID), domain.ErrNotFound)

	_, err = s.registry.List(s.ctx, -1, 10)
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *RegistrySuite) TestListForPlayer() {
	owner := s.player("guid-owner", "Admin")
	other := s.player("guid-other", "Other")
	_, err := s.registry.Create(s.ctx, owner, "Admin", nil)
	s.Require().NoError(err)

	names, err := s.registry.ListForPlayer(s.ctx, owner)
	s.Require().NoError(err)
	s.Len(names, 1)

	names, err = s.registry.ListForPlayer(s.ctx, other)
	s.Require().NoError(err)
	s.Empty(names)
}

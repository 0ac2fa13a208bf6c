package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ernie/portal-repository/internal/dependencies/mocks"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
	"github.com/ernie/portal-repository/internal/testutil"
)

type ProtectedNamesSuite struct {
	suite.Suite
	store *storage.Store
	clock *mocks.MockClock
	ctx   context.Context
	owner string
}

func TestProtectedNamesSuite(t *testing.T) {
	suite.Run(t, new(ProtectedNamesSuite))
}

func (s *ProtectedNamesSuite) SetupTest() {
	s.store, s.clock = testutil.NewStore(s.T())
	s.ctx = context.Background()
	res, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: "guid-owner", Username: "Admin"})
	s.Require().NoError(err)
	s.owner = res.PlayerID
}

func (s *ProtectedNamesSuite) TestCreateConflictsCaseInsensitively() {
	by := "moderator"
	pn, err := s.store.CreateProtectedName(s.ctx, s.owner, "Admin", &by)
	s.Require().NoError(err)
	s.Equal("Admin", pn.Name)
	s.Require().NotNil(pn.CreatedByUserProfile)

	_, err = s.store.CreateProtectedName(s.ctx, s.owner, "admin", nil)
	s.ErrorIs(err, domain.ErrConflict)

	_, err = s.store.CreateProtectedName(s.ctx, "missing", "Other", nil)
	s.ErrorIs(err, domain.ErrNotFound)

	count, err := s.store.CountProtectedNames(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *ProtectedNamesSuite) TestGetAndDelete() {
	pn, err := s.store.CreateProtectedName(s.ctx, s.owner, "Admin", nil)
	s.Require().NoError(err)

	got, err := s.store.GetProtectedName(s.ctx, pn.ID)
	s.Require().NoError(err)
	s.Equal(pn.Name, got.Name)
	s.Nil(got.CreatedByUserProfile)

	owned, err := s.store.ListProtectedNamesForPlayer(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Len(owned, 1)

	s.Require().NoError(s.store.DeleteProtectedName(s.ctx, pn.ID))
	s.ErrorIs(s.store.DeleteProtectedName(s.ctx, pn.ID), domain.ErrNotFound)

	_, err = s.store.GetProtectedName(s.ctx, pn.ID)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *ProtectedNamesSuite) TestListPaginates() {
	for _, name := range []string{"Charlie", "alpha", "Bravo"} {
		_, err := s.store.CreateProtectedName(s.ctx, s.owner, name, nil)
		s.Require().NoError(err)
	}

	page, err := s.store.ListProtectedNames(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("Bravo", page[0].Name)

	all, err := s.store.ListProtectedNames(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *ProtectedNamesSuite) TestGetAliasUsageGroupsByPlayer() {
	s.clock.Advance(time.Hour)
	imp, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: "guid-imp", Username: "ADMIN"})
	s.Require().NoError(err)
	s.clock.Advance(time.Hour)
	_, err = s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: "guid-imp", Username: "admin"})
	s.Require().NoError(err)

	usages, err := s.store.GetAliasUsage(s.ctx, "Admin")
	s.Require().NoError(err)
	s.Require().Len(usages, 2)

	s.Equal(imp.PlayerID, usages[0].Player.ID)
	s.Equal(2, usages[0].UsageCount)
	s.WithinDuration(testutil.Epoch.Add(2*time.Hour), usages[0].LastUsed, 0)

	s.Equal(s.owner, usages[1].Player.ID)
	s.Equal(1, usages[1].UsageCount)
	s.WithinDuration(testutil.Epoch, usages[1].LastUsed, 0)
}

func (s *ProtectedNamesSuite) TestGetAliasUsageNoMatches() {
	usages, err := s.store.GetAliasUsage(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(usages)
}

func (s *ProtectedNamesSuite) TestCreateConflictsForNonASCIICase() {
	_, err := s.store.CreateProtectedName(s.ctx, s.owner, "Ärger", nil)
	s.Require().NoError(err)

	_, err = s.store.CreateProtectedName(s.ctx, s.owner, "ärger", nil)
	s.ErrorIs(err, domain.ErrConflict)

	_, err = s.store.CreateProtectedName(s.ctx, s.owner, "ΣΟΦΙΑ", nil)
	s.Require().NoError(err)
	_, err = s.store.CreateProtectedName(s.ctx, s.owner, "σοφια", nil)
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *ProtectedNamesSuite) TestGetAliasUsageFoldsNonASCIICase() {
	imp, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: "guid-imp", Username: "ärger"})
	s.Require().NoError(err)
	_, err = s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: "guid-other", Username: "Arger"})
	s.Require().NoError(err)

	usages, err := s.store.GetAliasUsage(s.ctx, "ÄRGER")
	s.Require().NoError(err)
	s.Require().Len(usages, 1)
	s.Equal(imp.PlayerID, usages[0].Player.ID)
}

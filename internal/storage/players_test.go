package storage_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ernie/portal-repository/internal/dependencies/mocks"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
	"github.com/ernie/portal-repository/internal/testutil"
)

const testGUID = "ABCD0123456789ABCDEF012345671234"

type PlayersSuite struct {
	suite.Suite
	store *storage.Store
	clock *mocks.MockClock
	ctx   context.Context
}

func TestPlayersSuite(t *testing.T) {
	suite.Run(t, new(PlayersSuite))
}

func (s *PlayersSuite) SetupTest() {
	s.store, s.clock = testutil.NewStore(s.T())
	s.ctx = context.Background()
}

func (s *PlayersSuite) sight(guid, name, ip string) *storage.SightingResult {
	res, err := s.store.RecordSighting(s.ctx, domain.Sighting{
		GameType:  domain.GameTypeCoD4,
		GUID:      guid,
		Username:  name,
		IPAddress: ip,
	})
	s.Require().NoError(err)
	return res
}

func (s *PlayersSuite) TestFirstSightingCreatesPlayer() {
	res := s.sight(testGUID, "Foo", "10.0.0.1")
	s.True(res.Created)
	s.True(res.NewAlias)

	p, err := s.store.GetPlayer(s.ctx, res.PlayerID, domain.IncludeAll())
	s.Require().NoError(err)
	s.Equal(domain.GameTypeCoD4, p.GameType)
	s.Equal(testGUID, p.GUID)
	s.Equal("Foo", p.Username)
	s.Equal("10.0.0.1", p.IPAddress)
	s.WithinDuration(testutil.Epoch, p.FirstSeen, 0)
	s.WithinDuration(testutil.Epoch, p.LastSeen, 0)
	s.Require().Len(p.Aliases, 1)
	s.Equal(1, p.Aliases[0].ConfidenceScore)
	s.Require().Len(p.IPAddresses, 1)
	s.Equal(1, p.IPAddresses[0].ConfidenceScore)
}

func (s *PlayersSuite) TestRepeatSightingsMergeAliases() {
	first := s.sight(testGUID, "Foo", "10.0.0.1")
	s.clock.Advance(time.Minute)
	second := s.sight(testGUID, "Foo", "10.0.0.1")
	s.clock.Advance(time.Minute)
	third := s.sight(testGUID, "Bar", "10.0.0.2")

	s.Equal(first.PlayerID, second.PlayerID)
	s.Equal(first.PlayerID, third.PlayerID)
	s.False(second.Created)
	s.False(second.NewAlias)
	s.True(third.NewAlias)

	aliases, err := s.store.ListAliases(s.ctx, first.PlayerID)
	s.Require().NoError(err)
	s.Require().Len(aliases, 2)
	scores := map[string]int{}
	for _, a := range aliases {
		scores[a.Name] = a.ConfidenceScore
	}
	s.Equal(map[string]int{"Foo": 2, "Bar": 1}, scores)

	p, err := s.store.GetPlayer(s.ctx, first.PlayerID, domain.PlayerInclude{IPAddresses: true})
	s.Require().NoError(err)
	s.Equal("Bar", p.Username)
	s.Equal("10.0.0.2", p.IPAddress)
	s.WithinDuration(testutil.Epoch, p.FirstSeen, 0)
	s.WithinDuration(testutil.Epoch.Add(2*time.Minute), p.LastSeen, 0)
	s.Len(p.IPAddresses, 2)
}

func (s *PlayersSuite) TestConfidenceScoreEqualsSightingCount() {
	var id string
	for i := 0; i < 5; i++ {
		id = s.sight(testGUID, "Foo", "").PlayerID
	}
	aliases, err := s.store.ListAliases(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(aliases, 1)
	s.Equal(5, aliases[0].ConfidenceScore)
}

func (s *PlayersSuite) TestConcurrentDuplicateSightings() {
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.RecordSighting(s.ctx, domain.Sighting{
				GameType: domain.GameTypeCoD4, GUID: testGUID, Username: "Foo",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	count, err := s.store.CountPlayers(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	p, err := s.store.GetPlayerByGameTypeAndGUID(s.ctx, domain.GameTypeCoD4, testGUID, domain.PlayerInclude{Aliases: true})
	s.Require().NoError(err)
	s.Require().Len(p.Aliases, 1)
	s.Equal(n, p.Aliases[0].ConfidenceScore)
}

func (s *PlayersSuite) TestInvalidAddressIgnored() {
	res := s.sight(testGUID, "Foo", "10.0.0.1")
	s.sight(testGUID, "Foo", "not-an-ip")

	p, err := s.store.GetPlayer(s.ctx, res.PlayerID, domain.PlayerInclude{IPAddresses: true})
	s.Require().NoError(err)
	s.Equal("10.0.0.1", p.IPAddress)
	s.Len(p.IPAddresses, 1)
}

func (s *PlayersSuite) TestAddressWithPortIsNormalized() {
	res := s.sight(testGUID, "Foo", "10.0.0.1:28960")
	p, err := s.store.GetPlayer(s.ctx, res.PlayerID, domain.PlayerInclude{})
	s.Require().NoError(err)
	s.Equal("10.0.0.1", p.IPAddress)
}

func (s *PlayersSuite) TestBlankUsernameKeepsCurrentName() {
	res := s.sight(testGUID, "Foo", "")
	s.sight(testGUID, "  ", "")

	p, err := s.store.GetPlayer(s.ctx, res.PlayerID, domain.PlayerInclude{Aliases: true})
	s.Require().NoError(err)
	s.Equal("Foo", p.Username)
	s.Len(p.Aliases, 1)
}

func (s *PlayersSuite) TestRecordSightingValidation() {
	_, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: "quake", GUID: testGUID})
	s.ErrorIs(err, domain.ErrInvalidInput)

	_, err = s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: " "})
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *PlayersSuite) TestSameGUIDDifferentGameTypesAreDistinct() {
	a := s.sight(testGUID, "Foo", "")
	b, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeRust, GUID: testGUID, Username: "Foo"})
	s.Require().NoError(err)
	s.NotEqual(a.PlayerID, b.PlayerID)
	s.True(b.Created)
}

func (s *PlayersSuite) TestCreatePlayerConflict() {
	p, err := s.store.CreatePlayer(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: testGUID, Username: "Foo"})
	s.Require().NoError(err)
	s.Equal("Foo", p.Username)

	_, err = s.store.CreatePlayer(s.ctx, domain.Sighting{GameType: domain.GameTypeCoD4, GUID: testGUID, Username: "Other"})
	s.ErrorIs(err, domain.ErrConflict)

	count, err := s.store.CountPlayers(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *PlayersSuite) TestGetPlayerNotFound() {
	_, err := s.store.GetPlayer(s.ctx, "missing", domain.PlayerInclude{})
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.store.GetPlayerByGameTypeAndGUID(s.ctx, domain.GameTypeCoD4, testGUID, domain.PlayerInclude{})
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.store.ListAliases(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PlayersSuite) TestGetRelatedPlayers() {
	target := s.sight("guid-target", "Target", "10.0.0.1")
	current := s.sight("guid-current", "SameIP", "10.0.0.1")
	historic := s.sight("guid-historic", "Moved", "10.0.0.1")
	s.sight("guid-historic", "Moved", "10.0.0.9")
	s.sight("guid-other", "Stranger", "10.0.0.2")

	related, err := s.store.GetRelatedPlayers(s.ctx, target.PlayerID)
	s.Require().NoError(err)

	ids := []string{}
	for _, p := range related {
		ids = append(ids, p.ID)
	}
	s.ElementsMatch([]string{current.PlayerID, historic.PlayerID}, ids)
}

func (s *PlayersSuite) TestGetRelatedPlayersWithoutAddress() {
	res := s.sight(testGUID, "Foo", "")
	related, err := s.store.GetRelatedPlayers(s.ctx, res.PlayerID)
	s.Require().NoError(err)
	s.Empty(related)

	_, err = s.store.GetRelatedPlayers(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PlayersSuite) TestCountPlayersByGameType() {
	for i := 0; i < 3; i++ {
		s.sight(fmt.Sprintf("guid-%d", i), "Foo", "")
	}
	_, err := s.store.RecordSighting(s.ctx, domain.Sighting{GameType: domain.GameTypeRust, GUID: "rust-1", Username: "R"})
	s.Require().NoError(err)

	gt := domain.GameTypeCoD4
	count, err := s.store.CountPlayers(s.ctx, &gt)
	s.Require().NoError(err)
	s.Equal(int64(3), count)

	count, err = s.store.CountPlayers(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(int64(4), count)
}

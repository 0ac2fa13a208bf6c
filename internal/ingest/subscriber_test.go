package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/suite"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/ingest"
	"github.com/ernie/portal-repository/internal/search"
	"github.com/ernie/portal-repository/internal/storage"
	"github.com/ernie/portal-repository/internal/testutil"
)

type SubscriberSuite struct {
	suite.Suite
	ns         *server.Server
	conn       *nats.Conn
	store      *storage.Store
	cache      *countcache.Cache
	events     *testutil.RecordingSink
	subscriber *ingest.Subscriber
	ctx        context.Context
}

func TestSubscriberSuite(t *testing.T) {
	suite.Run(t, new(SubscriberSuite))
}

func (s *SubscriberSuite) SetupTest() {
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	s.Require().NoError(err)
	go ns.Start()
	s.Require().True(ns.ReadyForConnections(5 * time.Second))
	s.ns = ns

	s.store, _ = testutil.NewStore(s.T())
	s.cache = countcache.New(countcache.NewMemory(16, time.Minute), testutil.NopLogger())
	s.events = &testutil.RecordingSink{}
	s.ctx = context.Background()

	s.subscriber = ingest.NewSubscriber(ingest.Config{URL: ns.ClientURL()}, s.store, s.cache, s.events, nil, testutil.NopLogger())
	s.Require().NoError(s.subscriber.Start(s.ctx))

	s.conn, err = nats.Connect(ns.ClientURL())
	s.Require().NoError(err)
}

func (s *SubscriberSuite) TearDownTest() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.subscriber.Stop()
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

func (s *SubscriberSuite) publish(m ingest.SightingMessage) (*ingest.Reply, error) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return ingest.Publish(ctx, s.conn, ingest.DefaultSubject, m)
}

func (s *SubscriberSuite) TestSightingCreatesPlayer() {
	reply, err := s.publish(ingest.SightingMessage{GameType: "cod4", GUID: "guid-a", Username: "Foo", IPAddress: "10.0.0.1"})
	s.Require().NoError(err)
	s.True(reply.Created)
	s.NotEmpty(reply.PlayerID)

	p, err := s.store.GetPlayer(s.ctx, reply.PlayerID, domain.PlayerInclude{Aliases: true})
	s.Require().NoError(err)
	s.Equal("Foo", p.Username)
	s.Equal("10.0.0.1", p.IPAddress)

	again, err := s.publish(ingest.SightingMessage{GameType: "COD4", GUID: "guid-a", Username: "Bar"})
	s.Require().NoError(err)
	s.False(again.Created)
	s.Equal(reply.PlayerID, again.PlayerID)

	s.Len(s.events.OfType(domain.EventPlayerCreated), 1)
	aliases := s.events.OfType(domain.EventAliasAdded)
	s.Require().Len(aliases, 1)
	s.Equal(domain.AliasAddedEvent{PlayerID: reply.PlayerID, Name: "Bar"}, aliases[0].Data)
}

func (s *SubscriberSuite) TestRejectsMalformedAndInvalid() {
	msg, err := s.conn.Request(ingest.DefaultSubject, []byte("{not json"), 5*time.Second)
	s.Require().NoError(err)
	s.Contains(string(msg.Data), "malformed sighting")

	reply, err := s.publish(ingest.SightingMessage{GameType: "quake", GUID: "guid-a"})
	s.Error(err)
	s.Require().NotNil(reply)
	s.NotEmpty(reply.Error)

	count, err := s.store.CountPlayers(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *SubscriberSuite) TestCreationInvalidatesPlayerCount() {
	svc := search.NewService(s.store, s.cache, testutil.NopLogger())
	total, err := svc.TotalPlayers(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(total)

	_, err = s.publish(ingest.SightingMessage{GameType: "rust", GUID: "guid-r", Username: "R"})
	s.Require().NoError(err)

	total, err = svc.TotalPlayers(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
}

func (s *SubscriberSuite) TestFireAndForget() {
	data := []byte(`{"game_type":"cod2","guid":"guid-f","username":"Quiet"}`)
	s.Require().NoError(s.conn.Publish(ingest.DefaultSubject, data))
	s.Require().NoError(s.conn.Flush())

	s.Eventually(func() bool {
		_, err := s.store.GetPlayerByGameTypeAndGUID(s.ctx, domain.GameTypeCoD2, "guid-f", domain.PlayerInclude{})
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

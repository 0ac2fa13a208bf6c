package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/dependencies/clock"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
)

const (
	DefaultSubject = "portal.sightings"
	DefaultQueue   = "portal-repository"

	handleTimeout = 10 * time.Second
)

// Config holds the NATS connection settings. An empty URL disables ingest.
type Config struct {
	URL     string
	Subject string
	Queue   string
}

// SightingMessage is the JSON body of a sighting published on the subject
type SightingMessage struct {
	GameType  string `json:"game_type"`
	GUID      string `json:"guid"`
	Username  string `json:"username"`
	IPAddress string `json:"ip_address"`
}

// Reply is sent back when the publisher used request/reply
type Reply struct {
	PlayerID string `json:"player_id,omitempty"`
	Created  bool   `json:"created"`
	Error    string `json:"error,omitempty"`
}

// Recorder records sightings
type Recorder interface {
	RecordSighting(ctx context.Context, sighting domain.Sighting) (*storage.SightingResult, error)
}

// Invalidator drops cached counts
type Invalidator interface {
	Invalidate(ctx context.Context, scope string)
}

// Subscriber consumes sightings from a NATS queue group. Every instance in
// the group receives a share of the messages.
type Subscriber struct {
	cfg      Config
	recorder Recorder
	counts   Invalidator
	events   domain.EventSink
	clock    clock.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
	ctx  context.Context
}

// NewSubscriber creates a subscriber; call Start to connect
func NewSubscriber(cfg Config, recorder Recorder, counts Invalidator, events domain.EventSink, clk clock.Clock, logger *slog.Logger) *Subscriber {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if events == nil {
		events = domain.NopSink{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{cfg: cfg, recorder: recorder, counts: counts, events: events, clock: clk, logger: logger}
}

// Start connects and joins the queue group
func (s *Subscriber) Start(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL,
		nats.Name("portal-repository"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	sub, err := conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.handle)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribing to %s: %w", s.cfg.Subject, err)
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return fmt.Errorf("flushing subscription: %w", err)
	}
	s.conn = conn
	s.sub = sub

	s.logger.Info("sighting ingest started", "subject", s.cfg.Subject, "queue", s.cfg.Queue)
	return nil
}

// Stop drains in-flight messages and closes the connection
func (s *Subscriber) Stop() {
	s.mu.Lock()
	conn := s.conn
	s.conn, s.sub = nil, nil
	s.mu.Unlock()
	if conn == nil {
		return
	}

	s.logger.Info("sighting ingest: stopping")
	closed := make(chan struct{})
	conn.SetClosedHandler(func(*nats.Conn) { close(closed) })
	if err := conn.Drain(); err != nil {
		s.logger.Warn("nats drain failed", "error", err)
		conn.Close()
		return
	}
	select {
	case <-closed:
	case <-time.After(handleTimeout):
		conn.Close()
	}
}

func (s *Subscriber) handle(msg *nats.Msg) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, handleTimeout)
	defer cancel()

	reply := s.process(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("encoding sighting reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("sending sighting reply", "error", err)
	}
}

func (s *Subscriber) process(ctx context.Context, data []byte) Reply {
	var m SightingMessage
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("malformed sighting", "error", err)
		return Reply{Error: "malformed sighting: " + err.Error()}
	}

	sighting := domain.Sighting{
		GameType:  domain.GameType(m.GameType),
		GUID:      m.GUID,
		Username:  m.Username,
		IPAddress: m.IPAddress,
	}
	result, err := s.recorder.RecordSighting(ctx, sighting)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.logger.Warn("rejected sighting", "error", err)
		} else {
			s.logger.Error("recording sighting", "error", err)
		}
		return Reply{Error: err.Error()}
	}

	Announce(ctx, result, sighting, s.counts, s.events, s.clock)
	return Reply{PlayerID: result.PlayerID, Created: result.Created}
}

// Announce publishes the events a recorded sighting produced and drops the
// player counts it made stale
func Announce(ctx context.Context, result *storage.SightingResult, sighting domain.Sighting, counts Invalidator, events domain.EventSink, clk clock.Clock) {
	now := clk.Now()
	if result.Created {
		counts.Invalidate(ctx, countcache.ScopePlayers)
		gameType, _ := domain.ParseGameType(string(sighting.GameType))
		events.Publish(domain.Event{
			Type:      domain.EventPlayerCreated,
			Timestamp: now,
			Data: domain.PlayerCreatedEvent{
				PlayerID: result.PlayerID,
				GameType: gameType,
				Username: sighting.Username,
			},
		})
		return
	}
	if result.NewAlias {
		events.Publish(domain.Event{
			Type:      domain.EventAliasAdded,
			Timestamp: now,
			Data: domain.AliasAddedEvent{
				PlayerID: result.PlayerID,
				Name:     sighting.Username,
			},
		})
	}
}

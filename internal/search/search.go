package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// PlayerStore is the slice of the identity store the planner reads
type PlayerStore interface {
	QueryPlayers(ctx context.Context, q storage.PlayerQuery) ([]domain.Player, int64, error)
	CountPlayers(ctx context.Context, gameType *domain.GameType) (int64, error)
}

// Counter serves approximate counts
type Counter interface {
	Count(ctx context.Context, scope string, params any, load countcache.Loader) (int64, error)
}

// Query is a player search request. Term is free text for SearchPlayers and
// an address or address fragment for SearchByIP.
type Query struct {
	GameType *domain.GameType
	Term     string
	Order    domain.PlayerOrder
	Offset   int
	Limit    int
}

// countParams is hashed into the count cache key
type countParams struct {
	GameType string
}

// Service resolves player searches
type Service struct {
	store  PlayerStore
	counts Counter
	logger *slog.Logger
}

// NewService creates a search service
func NewService(store PlayerStore, counts Counter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, counts: counts, logger: logger}
}

// SearchPlayers resolves a free-text term against players
func (s *Service) SearchPlayers(ctx context.Context, q Query) (*domain.PlayerPage, error) {
	return s.run(ctx, q, planTerm(q.Term))
}

// SearchByIP resolves an address or address fragment against players
func (s *Service) SearchByIP(ctx context.Context, q Query) (*domain.PlayerPage, error) {
	return s.run(ctx, q, planIP(q.Term))
}

func (s *Service) run(ctx context.Context, q Query, matches []storage.Match) (*domain.PlayerPage, error) {
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset %d: %w", q.Offset, domain.ErrInvalidInput)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	order := q.Order
	if order == "" {
		order = domain.DefaultPlayerOrder
	}

	players, filtered, err := s.store.QueryPlayers(ctx, storage.PlayerQuery{
		GameType: q.GameType,
		Matches:  matches,
		Order:    order,
		Offset:   q.Offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	page := &domain.PlayerPage{
		FilteredCount: filtered,
		Offset:        q.Offset,
		Limit:         limit,
		Players:       players,
	}

	// Without a filter the exact count is already in hand
	if len(matches) == 0 {
		page.TotalCount = filtered
		return page, nil
	}

	total, err := s.TotalPlayers(ctx, q.GameType)
	if err != nil {
		return nil, err
	}
	page.TotalCount = total
	return page, nil
}

// TotalPlayers returns the cached player count for a game type, or across
// all game types when gameType is nil
func (s *Service) TotalPlayers(ctx context.Context, gameType *domain.GameType) (int64, error) {
	params := countParams{}
	if gameType != nil {
		params.GameType = string(*gameType)
	}
	return s.counts.Count(ctx, countcache.ScopePlayers, params, func(ctx context.Context) (int64, error) {
		s.logger.Debug("counting players", "game_type", params.GameType)
		return s.store.CountPlayers(ctx, gameType)
	})
}

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ernie/portal-repository/internal/domain"
)

// MatchKind is a single player predicate the query builder knows how to express
type MatchKind int

const (
	MatchGUIDExact MatchKind = iota
	MatchGUIDPrefix
	MatchGUIDContains
	MatchUsernamePrefix
	MatchUsernameContains
	MatchAliasContains
	MatchIPExact
	MatchIPContains
	MatchIPHistoryExact
	MatchIPHistoryContains
)

// Match pairs a predicate with the user-supplied value it tests
type Match struct {
	Kind  MatchKind
	Value string
}

// PlayerQuery selects a page of players. Matches are OR'ed together, so the
// result is the set union of the players each match selects, each player
// appearing once. No matches selects every player.
type PlayerQuery struct {
	GameType *domain.GameType
	Matches  []Match
	Order    domain.PlayerOrder
	Offset   int
	Limit    int // <= 0 returns all rows
}

func (m Match) clause() (string, any, error) {
	switch m.Kind {
	case MatchGUIDExact:
		return `p.guid = ? COLLATE UNICASE`, m.Value, nil
	case MatchGUIDPrefix:
		return `p.guid LIKE ? ESCAPE '\'`, prefixPattern(m.Value), nil
	case MatchGUIDContains:
		return `p.guid LIKE ? ESCAPE '\'`, containsPattern(m.Value), nil
	case MatchUsernamePrefix:
		return `p.username LIKE ? ESCAPE '\'`, prefixPattern(m.Value), nil
	case MatchUsernameContains:
		return `p.username LIKE ? ESCAPE '\'`, containsPattern(m.Value), nil
	case MatchAliasContains:
		return `EXISTS (SELECT 1 FROM player_aliases a WHERE a.player_id = p.id AND a.name LIKE ? ESCAPE '\')`,
			containsPattern(m.Value), nil
	case MatchIPExact:
		return `p.ip_address = ?`, m.Value, nil
	case MatchIPContains:
		return `p.ip_address LIKE ? ESCAPE '\'`, containsPattern(m.Value), nil
	case MatchIPHistoryExact:
		return `EXISTS (SELECT 1 FROM player_ip_addresses i WHERE i.player_id = p.id AND i.address = ?)`, m.Value, nil
	case MatchIPHistoryContains:
		return `EXISTS (SELECT 1 FROM player_ip_addresses i WHERE i.player_id = p.id AND i.address LIKE ? ESCAPE '\')`,
			containsPattern(m.Value), nil
	default:
		return "", nil, fmt.Errorf("unknown match kind %d", m.Kind)
	}
}

func orderClause(o domain.PlayerOrder) (string, error) {
	switch o {
	case domain.OrderUsernameAsc:
		return `p.username COLLATE UNICASE ASC, p.id`, nil
	case domain.OrderUsernameDesc:
		return `p.username COLLATE UNICASE DESC, p.id`, nil
	case domain.OrderFirstSeenAsc:
		return `p.first_seen ASC, p.id`, nil
	case domain.OrderFirstSeenDesc:
		return `p.first_seen DESC, p.id`, nil
	case domain.OrderLastSeenAsc:
		return `p.last_seen ASC, p.id`, nil
	case domain.OrderLastSeenDesc, "":
		return `p.last_seen DESC, p.id`, nil
	default:
		return "", fmt.Errorf("order %q: %w", o, domain.ErrInvalidInput)
	}
}

// whereClause builds the shared WHERE for the page and count queries
func (q PlayerQuery) whereClause() (string, []any, error) {
	var conditions []string
	var args []any

	if q.GameType != nil {
		conditions = append(conditions, `p.game_type = ?`)
		args = append(args, *q.GameType)
	}

	if len(q.Matches) > 0 {
		ors := make([]string, 0, len(q.Matches))
		for _, m := range q.Matches {
			clause, arg, err := m.clause()
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, clause)
			args = append(args, arg)
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}

// QueryPlayers returns the requested page and the exact number of players
// matching the query before pagination.
func (s *Store) QueryPlayers(ctx context.Context, q PlayerQuery) ([]domain.Player, int64, error) {
	where, args, err := q.whereClause()
	if err != nil {
		return nil, 0, err
	}
	order, err := orderClause(q.Order)
	if err != nil {
		return nil, 0, err
	}

	var filtered int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players p `+where, args...).Scan(&filtered); err != nil {
		return nil, 0, fmt.Errorf("counting players: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playerColumns+` FROM players p `+where+`
		ORDER BY `+order+`
		LIMIT ? OFFSET ?
	`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying players: %w", err)
	}
	players, err := scanPlayers(rows)
	if err != nil {
		return nil, 0, err
	}
	return players, filtered, nil
}

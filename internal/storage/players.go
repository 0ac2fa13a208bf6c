package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/google/uuid"
)

// SightingResult describes what RecordSighting changed
type SightingResult struct {
	PlayerID string
	Created  bool // a new player was created
	NewAlias bool // the username had not been seen for this player before
}

// RecordSighting resolves a sighting to a player, creating it on first sight
// and otherwise refreshing last_seen/username/ip_address. The alias and IP
// history rows are merged with ON CONFLICT upserts keyed on (player_id, value)
// so concurrent duplicate sightings never produce duplicate rows.
func (s *Store) RecordSighting(ctx context.Context, sighting domain.Sighting) (*SightingResult, error) {
	if err := sighting.Validate(); err != nil {
		return nil, err
	}
	gameType, _ := domain.ParseGameType(string(sighting.GameType))
	guid := strings.TrimSpace(sighting.GUID)
	username := strings.TrimSpace(sighting.Username)
	address, hasAddress := domain.NormalizeIPAddress(sighting.IPAddress)
	now := formatTimestamp(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	result := &SightingResult{}
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM players WHERE game_type = ? AND guid = ? COLLATE UNICASE
	`, gameType, guid).Scan(&result.PlayerID)

	if errors.Is(err, sql.ErrNoRows) {
		newID := uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO players (id, game_type, guid, username, ip_address, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, newID, gameType, guid, username, address, now, now)
		if err != nil {
			return nil, fmt.Errorf("creating player: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM players WHERE game_type = ? AND guid = ? COLLATE UNICASE
		`, gameType, guid).Scan(&result.PlayerID); err != nil {
			return nil, fmt.Errorf("reading created player: %w", err)
		}
		result.Created = result.PlayerID == newID
	} else if err != nil {
		return nil, fmt.Errorf("finding player: %w", err)
	} else {
		// Blank username or unparseable address keep the current values
		_, err = tx.ExecContext(ctx, `
			UPDATE players SET
				last_seen = ?,
				username = CASE WHEN ? = '' THEN username ELSE ? END,
				ip_address = CASE WHEN ? = '' THEN ip_address ELSE ? END
			WHERE id = ?
		`, now, username, username, address, address, result.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("updating player: %w", err)
		}
	}

	if username != "" {
		var score int
		err = tx.QueryRowContext(ctx, `
			INSERT INTO player_aliases (player_id, name, added, last_used, confidence_score)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(player_id, name) DO UPDATE SET
				last_used = excluded.last_used,
				confidence_score = confidence_score + 1
			RETURNING confidence_score
		`, result.PlayerID, username, now, now).Scan(&score)
		if err != nil {
			return nil, fmt.Errorf("recording alias: %w", err)
		}
		result.NewAlias = score == 1
	}

	if hasAddress {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_ip_addresses (player_id, address, added, last_used, confidence_score)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(player_id, address) DO UPDATE SET
				last_used = excluded.last_used,
				confidence_score = confidence_score + 1
		`, result.PlayerID, address, now, now)
		if err != nil {
			return nil, fmt.Errorf("recording ip address: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

// CreatePlayer creates a player without merging. Fails with ErrConflict when
// the (game type, guid) pair already exists; use RecordSighting to
// create-or-update.
func (s *Store) CreatePlayer(ctx context.Context, sighting domain.Sighting) (*domain.Player, error) {
	if err := sighting.Validate(); err != nil {
		return nil, err
	}
	gameType, _ := domain.ParseGameType(string(sighting.GameType))
	guid := strings.TrimSpace(sighting.GUID)

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM players WHERE game_type = ? AND guid = ? COLLATE UNICASE)
	`, gameType, guid).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("player %s/%s already exists: %w", gameType, guid, domain.ErrConflict)
	}

	// The existence check and insert are not atomic; the loser of a race
	// sees Created == false
	result, err := s.RecordSighting(ctx, domain.Sighting{
		GameType:  gameType,
		GUID:      guid,
		Username:  sighting.Username,
		IPAddress: sighting.IPAddress,
	})
	if err != nil {
		return nil, err
	}
	if !result.Created {
		return nil, fmt.Errorf("player %s/%s already exists: %w", gameType, guid, domain.ErrConflict)
	}
	return s.GetPlayer(ctx, result.PlayerID, domain.PlayerInclude{})
}

// GetPlayer finds a player by ID, loading the requested related collections
func (s *Store) GetPlayer(ctx context.Context, id string, include domain.PlayerInclude) (*domain.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `
		SELECT `+playerColumns+` FROM players p WHERE p.id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadIncludes(ctx, &p, include); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlayerByGameTypeAndGUID finds a player by its game identity
func (s *Store) GetPlayerByGameTypeAndGUID(ctx context.Context, gameType domain.GameType, guid string, include domain.PlayerInclude) (*domain.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `
		SELECT `+playerColumns+` FROM players p WHERE p.game_type = ? AND p.guid = ? COLLATE UNICASE
	`, gameType, strings.TrimSpace(guid)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s/%s: %w", gameType, guid, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadIncludes(ctx, &p, include); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) loadIncludes(ctx context.Context, p *domain.Player, include domain.PlayerInclude) error {
	var err error
	if include.Aliases {
		if p.Aliases, err = s.listAliases(ctx, p.ID); err != nil {
			return err
		}
	}
	if include.IPAddresses {
		if p.IPAddresses, err = s.listIPAddresses(ctx, p.ID); err != nil {
			return err
		}
	}
	if include.Tags {
		if p.Tags, err = s.listPlayerTags(ctx, p.ID); err != nil {
			return err
		}
	}
	if include.ProtectedNames {
		if p.ProtectedNames, err = s.listProtectedNamesForPlayer(ctx, p.ID); err != nil {
			return err
		}
	}
	if include.RelatedPlayers {
		if p.RelatedPlayers, err = s.relatedPlayers(ctx, p.ID, p.IPAddress); err != nil {
			return err
		}
	}
	return nil
}

// playerExists returns ErrNotFound when no player has the ID
func (s *Store) playerExists(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM players WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("player %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListAliases returns every name a player has used, most recent first
func (s *Store) ListAliases(ctx context.Context, playerID string) ([]domain.PlayerAlias, error) {
	if err := s.playerExists(ctx, playerID); err != nil {
		return nil, err
	}
	return s.listAliases(ctx, playerID)
}

func (s *Store) listAliases(ctx context.Context, playerID string) ([]domain.PlayerAlias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, name, added, last_used, confidence_score
		FROM player_aliases WHERE player_id = ?
		ORDER BY last_used DESC, name
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := []domain.PlayerAlias{}
	for rows.Next() {
		var a domain.PlayerAlias
		if err := rows.Scan(&a.PlayerID, &a.Name, &a.Added, &a.LastUsed, &a.ConfidenceScore); err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// ListIPAddresses returns every address a player has used, most recent first
func (s *Store) ListIPAddresses(ctx context.Context, playerID string) ([]domain.PlayerIPAddress, error) {
	if err := s.playerExists(ctx, playerID); err != nil {
		return nil, err
	}
	return s.listIPAddresses(ctx, playerID)
}

func (s *Store) listIPAddresses(ctx context.Context, playerID string) ([]domain.PlayerIPAddress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, address, added, last_used, confidence_score
		FROM player_ip_addresses WHERE player_id = ?
		ORDER BY last_used DESC, address
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := []domain.PlayerIPAddress{}
	for rows.Next() {
		var a domain.PlayerIPAddress
		if err := rows.Scan(&a.PlayerID, &a.Address, &a.Added, &a.LastUsed, &a.ConfidenceScore); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// GetRelatedPlayers returns other players that share the given player's
// current IP address, either as their own current address or in their
// address history.
func (s *Store) GetRelatedPlayers(ctx context.Context, playerID string) ([]domain.Player, error) {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT ip_address FROM players WHERE id = ?`, playerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", playerID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.relatedPlayers(ctx, playerID, current)
}

func (s *Store) relatedPlayers(ctx context.Context, playerID, address string) ([]domain.Player, error) {
	if address == "" {
		return []domain.Player{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playerColumns+`
		FROM players p
		WHERE p.id != ? AND (
			p.ip_address = ?
			OR EXISTS (SELECT 1 FROM player_ip_addresses a WHERE a.player_id = p.id AND a.address = ?)
		)
		ORDER BY p.last_seen DESC, p.id
	`, playerID, address, address)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

// CountPlayers counts players, optionally restricted to one game type
func (s *Store) CountPlayers(ctx context.Context, gameType *domain.GameType) (int64, error) {
	var count int64
	var err error
	if gameType != nil {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE game_type = ?`, *gameType).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count)
	}
	return count, err
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/google/uuid"
)

// CreateProtectedName binds name to a player. The player must exist and no
// protected name may already use the name, compared case-insensitively.
func (s *Store) CreateProtectedName(ctx context.Context, playerID, name string, createdBy *string) (*domain.ProtectedName, error) {
	if err := s.playerExists(ctx, playerID); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM protected_names WHERE name = ? COLLATE UNICASE)
	`, name).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("protected name %q: %w", name, domain.ErrConflict)
	}

	pn := domain.ProtectedName{
		ID:                   uuid.NewString(),
		Name:                 name,
		PlayerID:             playerID,
		CreatedOn:            s.now(),
		CreatedByUserProfile: createdBy,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO protected_names (id, name, player_id, created_on, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, pn.ID, pn.Name, pn.PlayerID, formatTimestamp(pn.CreatedOn), nullString(createdBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("protected name %q: %w", name, domain.ErrConflict)
		}
		return nil, fmt.Errorf("creating protected name: %w", err)
	}
	return &pn, nil
}

// GetProtectedName finds a protected name by ID
func (s *Store) GetProtectedName(ctx context.Context, id string) (*domain.ProtectedName, error) {
	pn, err := scanProtectedName(s.db.QueryRowContext(ctx, `
		SELECT id, name, player_id, created_on, created_by FROM protected_names WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("protected name %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &pn, nil
}

// ListProtectedNames returns a page of protected names ordered by name
func (s *Store) ListProtectedNames(ctx context.Context, offset, limit int) ([]domain.ProtectedName, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, player_id, created_on, created_by
		FROM protected_names
		ORDER BY name COLLATE UNICASE, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanProtectedNames(rows)
}

// ListProtectedNamesForPlayer returns the names a player owns
func (s *Store) ListProtectedNamesForPlayer(ctx context.Context, playerID string) ([]domain.ProtectedName, error) {
	if err := s.playerExists(ctx, playerID); err != nil {
		return nil, err
	}
	return s.listProtectedNamesForPlayer(ctx, playerID)
}

func (s *Store) listProtectedNamesForPlayer(ctx context.Context, playerID string) ([]domain.ProtectedName, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, player_id, created_on, created_by
		FROM protected_names WHERE player_id = ?
		ORDER BY name COLLATE UNICASE, id
	`, playerID)
	if err != nil {
		return nil, err
	}
	return scanProtectedNames(rows)
}

func scanProtectedNames(rows *sql.Rows) ([]domain.ProtectedName, error) {
	defer rows.Close()

	names := []domain.ProtectedName{}
	for rows.Next() {
		pn, err := scanProtectedName(rows)
		if err != nil {
			return nil, err
		}
		names = append(names, pn)
	}
	return names, rows.Err()
}

// CountProtectedNames counts all protected names
func (s *Store) CountProtectedNames(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM protected_names`).Scan(&count)
	return count, err
}

// DeleteProtectedName removes a protected name
func (s *Store) DeleteProtectedName(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM protected_names WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("protected name %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// AliasUsage aggregates one player's alias rows for a name
type AliasUsage struct {
	Player     domain.Player
	UsageCount int
	LastUsed   time.Time
}

// GetAliasUsage groups every alias row whose name equals name
// (case-insensitively) by owning player. Players are ordered by most recent
// use.
func (s *Store) GetAliasUsage(ctx context.Context, name string) ([]AliasUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playerColumns+`, COUNT(*) AS usage_count, MAX(a.last_used) AS last_used
		FROM player_aliases a
		JOIN players p ON p.id = a.player_id
		WHERE a.name = ? COLLATE UNICASE
		GROUP BY p.id
		ORDER BY MAX(a.last_used) DESC, p.id
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := []AliasUsage{}
	for rows.Next() {
		var u AliasUsage
		var gameType, lastUsed string
		if err := rows.Scan(&u.Player.ID, &gameType, &u.Player.GUID, &u.Player.Username, &u.Player.IPAddress,
			&u.Player.FirstSeen, &u.Player.LastSeen, &u.UsageCount, &lastUsed); err != nil {
			return nil, err
		}
		u.Player.GameType = domain.GameType(gameType)
		if u.LastUsed, err = parseTimestamp(lastUsed); err != nil {
			return nil, fmt.Errorf("parsing last_used %q: %w", lastUsed, err)
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

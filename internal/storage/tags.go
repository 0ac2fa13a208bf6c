package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/google/uuid"
)

// tagChunkSize bounds how many staged writes run between cancellation checks
const tagChunkSize = 500

// CreateTag creates a tag definition; names are unique case-insensitively
func (s *Store) CreateTag(ctx context.Context, name, description string, userDefined bool) (*domain.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is required: %w", domain.ErrInvalidInput)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tags WHERE name = ? COLLATE UNICASE)
	`, name).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("tag %q: %w", name, domain.ErrConflict)
	}

	tag := domain.Tag{ID: uuid.NewString(), Name: name, Description: description, UserDefined: userDefined}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, description, user_defined) VALUES (?, ?, ?, ?)
	`, tag.ID, tag.Name, tag.Description, tag.UserDefined)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("tag %q: %w", name, domain.ErrConflict)
		}
		return nil, fmt.Errorf("creating tag: %w", err)
	}
	return &tag, nil
}

// EnsureSystemTags creates the named system tags if they are missing
func (s *Store) EnsureSystemTags(ctx context.Context, names ...string) error {
	for _, name := range names {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tags (id, name, description, user_defined)
			SELECT ?, ?, 'system', FALSE
			WHERE NOT EXISTS (SELECT 1 FROM tags WHERE name = ? COLLATE UNICASE)
		`, uuid.NewString(), name, name)
		if err != nil {
			return fmt.Errorf("ensuring tag %q: %w", name, err)
		}
	}
	return nil
}

// GetTagByName finds a tag by name, case-insensitively
func (s *Store) GetTagByName(ctx context.Context, name string) (*domain.Tag, error) {
	var tag domain.Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, user_defined FROM tags WHERE name = ? COLLATE UNICASE
	`, name).Scan(&tag.ID, &tag.Name, &tag.Description, &tag.UserDefined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// GetTag finds a tag by ID
func (s *Store) GetTag(ctx context.Context, id string) (*domain.Tag, error) {
	var tag domain.Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, user_defined FROM tags WHERE id = ?
	`, id).Scan(&tag.ID, &tag.Name, &tag.Description, &tag.UserDefined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// ListTags returns all tag definitions ordered by name
func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, user_defined FROM tags ORDER BY name COLLATE UNICASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Description, &tag.UserDefined); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// CountPlayersWithTag counts the players carrying a tag
func (s *Store) CountPlayersWithTag(ctx context.Context, tagID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM player_tags WHERE tag_id = ?`, tagID).Scan(&count)
	return count, err
}

// AssignTag assigns a tag to a player. ErrConflict if already assigned.
func (s *Store) AssignTag(ctx context.Context, playerID, tagID string, assignedBy *string) (*domain.PlayerTag, error) {
	if err := s.playerExists(ctx, playerID); err != nil {
		return nil, err
	}
	tag, err := s.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM player_tags WHERE player_id = ? AND tag_id = ?)
	`, playerID, tagID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("player %s already tagged %q: %w", playerID, tag.Name, domain.ErrConflict)
	}

	pt := domain.PlayerTag{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		TagID:      tagID,
		TagName:    tag.Name,
		Assigned:   s.now(),
		AssignedBy: assignedBy,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO player_tags (id, player_id, tag_id, assigned, assigned_by) VALUES (?, ?, ?, ?, ?)
	`, pt.ID, pt.PlayerID, pt.TagID, formatTimestamp(pt.Assigned), nullString(assignedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("player %s already tagged %q: %w", playerID, tag.Name, domain.ErrConflict)
		}
		return nil, fmt.Errorf("assigning tag: %w", err)
	}
	return &pt, nil
}

// RemovePlayerTag deletes a tag assignment
func (s *Store) RemovePlayerTag(ctx context.Context, playerTagID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM player_tags WHERE id = ?`, playerTagID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("player tag %s: %w", playerTagID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) listPlayerTags(ctx context.Context, playerID string) ([]domain.PlayerTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.id, pt.player_id, pt.tag_id, t.name, pt.assigned, pt.assigned_by
		FROM player_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.player_id = ?
		ORDER BY t.name COLLATE UNICASE
	`, playerID)
	if err != nil {
		return nil, err
	}
	return scanPlayerTags(rows)
}

// ListPlayerTagsForTags returns every assignment of the given tags
func (s *Store) ListPlayerTagsForTags(ctx context.Context, tagIDs ...string) ([]domain.PlayerTag, error) {
	if len(tagIDs) == 0 {
		return []domain.PlayerTag{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tagIDs)), ",")
	args := make([]any, len(tagIDs))
	for i, id := range tagIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.id, pt.player_id, pt.tag_id, t.name, pt.assigned, pt.assigned_by
		FROM player_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.tag_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	return scanPlayerTags(rows)
}

func scanPlayerTags(rows *sql.Rows) ([]domain.PlayerTag, error) {
	defer rows.Close()

	tags := []domain.PlayerTag{}
	for rows.Next() {
		pt, err := scanPlayerTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, pt)
	}
	return tags, rows.Err()
}

// PlayerActivity is the slice of a player the cohort job needs
type PlayerActivity struct {
	PlayerID string
	LastSeen time.Time
}

// ListPlayerActivity returns the last-seen time of every player
func (s *Store) ListPlayerActivity(ctx context.Context) ([]PlayerActivity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, last_seen FROM players ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := []PlayerActivity{}
	for rows.Next() {
		var a PlayerActivity
		if err := rows.Scan(&a.PlayerID, &a.LastSeen); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}

// TagAddition is a staged player tag insert
type TagAddition struct {
	PlayerID string
	TagID    string
}

// ApplyTagChanges removes and adds player tags in one transaction. The
// context is checked between chunks; on cancellation or any error the
// transaction rolls back and the previous assignments remain.
func (s *Store) ApplyTagChanges(ctx context.Context, removals []string, additions []TagAddition) error {
	now := formatTimestamp(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for i, id := range removals {
		if i%tagChunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM player_tags WHERE id = ?`, id); err != nil {
			return fmt.Errorf("removing player tag: %w", err)
		}
	}

	for i, add := range additions {
		if i%tagChunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO player_tags (id, player_id, tag_id, assigned) VALUES (?, ?, ?, ?)
			ON CONFLICT(player_id, tag_id) DO NOTHING
		`, uuid.NewString(), add.PlayerID, add.TagID, now)
		if err != nil {
			return fmt.Errorf("adding player tag: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

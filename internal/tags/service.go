package tags

import (
	"context"
	"log/slog"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
)

// Store is the persistence the tag service and reconciler need
type Store interface {
	CreateTag(ctx context.Context, name, description string, userDefined bool) (*domain.Tag, error)
	GetTagByName(ctx context.Context, name string) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)
	CountPlayersWithTag(ctx context.Context, tagID string) (int64, error)
	AssignTag(ctx context.Context, playerID, tagID string, assignedBy *string) (*domain.PlayerTag, error)
	RemovePlayerTag(ctx context.Context, playerTagID string) error
	ListPlayerActivity(ctx context.Context) ([]storage.PlayerActivity, error)
	ListPlayerTagsForTags(ctx context.Context, tagIDs ...string) ([]domain.PlayerTag, error)
	ApplyTagChanges(ctx context.Context, removals []string, additions []storage.TagAddition) error
}

// Counter serves approximate counts
type Counter interface {
	Count(ctx context.Context, scope string, params any, load countcache.Loader) (int64, error)
	Invalidate(ctx context.Context, scope string)
}

type tagCountParams struct {
	TagID string
}

// Service manages tag definitions and manual assignments
type Service struct {
	store  Store
	counts Counter
	logger *slog.Logger
}

// NewService creates a tag service
func NewService(store Store, counts Counter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, counts: counts, logger: logger}
}

// CreateTag creates a tag definition
func (s *Service) CreateTag(ctx context.Context, name, description string, userDefined bool) (*domain.Tag, error) {
	tag, err := s.store.CreateTag(ctx, name, description, userDefined)
	if err != nil {
		return nil, err
	}
	s.logger.Info("tag created", "id", tag.ID, "name", tag.Name)
	return tag, nil
}

// ListTags returns every tag with its (cached) player count
func (s *Service) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if tags[i].PlayerCount, err = s.CountPlayersWithTag(ctx, tags[i].ID); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

// CountPlayersWithTag returns the cached number of players carrying a tag
func (s *Service) CountPlayersWithTag(ctx context.Context, tagID string) (int64, error) {
	return s.counts.Count(ctx, countcache.ScopeTags, tagCountParams{TagID: tagID}, func(ctx context.Context) (int64, error) {
		return s.store.CountPlayersWithTag(ctx, tagID)
	})
}

// AssignTag assigns a tag to a player
func (s *Service) AssignTag(ctx context.Context, playerID, tagID string, assignedBy *string) (*domain.PlayerTag, error) {
	pt, err := s.store.AssignTag(ctx, playerID, tagID, assignedBy)
	if err != nil {
		return nil, err
	}
	s.counts.Invalidate(ctx, countcache.ScopeTags)
	return pt, nil
}

// RemovePlayerTag removes a tag assignment
func (s *Service) RemovePlayerTag(ctx context.Context, playerTagID string) error {
	if err := s.store.RemovePlayerTag(ctx, playerTagID); err != nil {
		return err
	}
	s.counts.Invalidate(ctx, countcache.ScopeTags)
	return nil
}

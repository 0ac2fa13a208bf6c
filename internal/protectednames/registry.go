package protectednames

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Store is the persistence the registry needs
type Store interface {
	CreateProtectedName(ctx context.Context, playerID, name string, createdBy *string) (*domain.ProtectedName, error)
	GetProtectedName(ctx context.Context, id string) (*domain.ProtectedName, error)
	ListProtectedNames(ctx context.Context, offset, limit int) ([]domain.ProtectedName, error)
	ListProtectedNamesForPlayer(ctx context.Context, playerID string) ([]domain.ProtectedName, error)
	CountProtectedNames(ctx context.Context) (int64, error)
	DeleteProtectedName(ctx context.Context, id string) error
	GetAliasUsage(ctx context.Context, name string) ([]storage.AliasUsage, error)
	GetPlayer(ctx context.Context, id string, include domain.PlayerInclude) (*domain.Player, error)
}

// Counter serves approximate counts
type Counter interface {
	Count(ctx context.Context, scope string, params any, load countcache.Loader) (int64, error)
	Invalidate(ctx context.Context, scope string)
}

// Page is a page of protected names. TotalCount is served from cache.
type Page struct {
	TotalCount int64                  `json:"total_count"`
	Offset     int                    `json:"offset"`
	Limit      int                    `json:"limit"`
	Names      []domain.ProtectedName `json:"protected_names"`
}

// Registry reserves display names to players and reports impersonation
type Registry struct {
	store  Store
	counts Counter
	logger *slog.Logger
}

// NewRegistry creates a protected-name registry
func NewRegistry(store Store, counts Counter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, counts: counts, logger: logger}
}

// Create reserves name for playerID
func (r *Registry) Create(ctx context.Context, playerID, name string, createdBy *string) (*domain.ProtectedName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("protected name is required: %w", domain.ErrInvalidInput)
	}

	pn, err := r.store.CreateProtectedName(ctx, playerID, name, createdBy)
	if err != nil {
		return nil, err
	}
	r.counts.Invalidate(ctx, countcache.ScopeProtectedNames)
	r.logger.Info("protected name created", "id", pn.ID, "name", pn.Name, "player_id", playerID)
	return pn, nil
}

// Get returns a protected name by ID
func (r *Registry) Get(ctx context.Context, id string) (*domain.ProtectedName, error) {
	return r.store.GetProtectedName(ctx, id)
}

// Delete removes a protected name
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteProtectedName(ctx, id); err != nil {
		return err
	}
	r.counts.Invalidate(ctx, countcache.ScopeProtectedNames)
	r.logger.Info("protected name deleted", "id", id)
	return nil
}

// List returns a page of protected names ordered by name
func (r *Registry) List(ctx context.Context, offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset %d: %w", offset, domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	names, err := r.store.ListProtectedNames(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := r.counts.Count(ctx, countcache.ScopeProtectedNames, struct{}{}, r.store.CountProtectedNames)
	if err != nil {
		return nil, err
	}
	return &Page{TotalCount: total, Offset: offset, Limit: limit, Names: names}, nil
}

// ListForPlayer returns the names a player owns
func (r *Registry) ListForPlayer(ctx context.Context, playerID string) ([]domain.ProtectedName, error) {
	return r.store.ListProtectedNamesForPlayer(ctx, playerID)
}

// GetUsageReport cross-references a protected name with every player that
// has used it as an alias. Usages are ordered by most recent use.
func (r *Registry) GetUsageReport(ctx context.Context, id string) (*domain.ProtectedNameUsageReport, error) {
	pn, err := r.store.GetProtectedName(ctx, id)
	if err != nil {
		return nil, err
	}
	owner, err := r.store.GetPlayer(ctx, pn.PlayerID, domain.PlayerInclude{})
	if err != nil {
		return nil, fmt.Errorf("loading owner: %w", err)
	}
	aliases, err := r.store.GetAliasUsage(ctx, pn.Name)
	if err != nil {
		return nil, fmt.Errorf("loading alias usage: %w", err)
	}

	report := &domain.ProtectedNameUsageReport{
		ProtectedName: *pn,
		Owner:         *owner,
		Usages:        make([]domain.ProtectedNameUsage, 0, len(aliases)),
	}
	for _, a := range aliases {
		report.Usages = append(report.Usages, domain.ProtectedNameUsage{
			Player:     a.Player,
			IsOwner:    a.Player.ID == pn.PlayerID,
			LastUsed:   a.LastUsed,
			UsageCount: a.UsageCount,
		})
	}
	return report, nil
}

// Impersonators returns the usages in a report not made by the owner
func Impersonators(report *domain.ProtectedNameUsageReport) []domain.ProtectedNameUsage {
	out := []domain.ProtectedNameUsage{}
	for _, u := range report.Usages {
		if !u.IsOwner {
			out = append(out, u)
		}
	}
	return out
}

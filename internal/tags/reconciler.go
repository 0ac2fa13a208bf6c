package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/dependencies/clock"
	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/storage"
)

// Cohort tag defaults
const (
	DefaultActiveTag    = "active-players"
	DefaultInactiveTag  = "inactive-player"
	DefaultActiveWindow = 14 * 24 * time.Hour
)

// ReconcileConfig names the cohort tags and the activity window
type ReconcileConfig struct {
	ActiveTag    string
	InactiveTag  string
	ActiveWindow time.Duration
}

// DefaultReconcileConfig returns the standard cohort settings
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		ActiveTag:    DefaultActiveTag,
		InactiveTag:  DefaultInactiveTag,
		ActiveWindow: DefaultActiveWindow,
	}
}

// Report summarizes one reconciliation run
type Report struct {
	Active   int           `json:"active"`
	Inactive int           `json:"inactive"`
	Added    int           `json:"added"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Reconciler assigns exactly one cohort tag to every player based on
// last-seen time
type Reconciler struct {
	store  Store
	counts Counter
	events domain.EventSink
	clock  clock.Clock
	cfg    ReconcileConfig
	logger *slog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(store Store, counts Counter, events domain.EventSink, clk clock.Clock, cfg ReconcileConfig, logger *slog.Logger) *Reconciler {
	if events == nil {
		events = domain.NopSink{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, counts: counts, events: events, clock: clk, cfg: cfg, logger: logger}
}

// lookupTag resolves a system tag. A missing system tag cannot be repaired
// by retrying.
func (r *Reconciler) lookupTag(ctx context.Context, name string) (*domain.Tag, error) {
	tag, err := r.store.GetTagByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("system tag %q does not exist: %w", name, domain.ErrConfigurationFatal)
	}
	return tag, err
}

// Reconcile recomputes the cohort tag set. Every read happens before any
// write; the writes commit in one transaction, so a failed or cancelled run
// leaves the previous assignments intact and can be retried from scratch.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	start := r.clock.Now()

	active, err := r.lookupTag(ctx, r.cfg.ActiveTag)
	if err != nil {
		return nil, err
	}
	inactive, err := r.lookupTag(ctx, r.cfg.InactiveTag)
	if err != nil {
		return nil, err
	}

	activity, err := r.store.ListPlayerActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing player activity: %w", err)
	}

	cutoff := start.Add(-r.cfg.ActiveWindow)
	isActive := make(map[string]bool, len(activity))
	report := &Report{}
	for _, a := range activity {
		if !a.LastSeen.Before(cutoff) {
			isActive[a.PlayerID] = true
			report.Active++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, a := range activity {
		if !isActive[a.PlayerID] {
			isActive[a.PlayerID] = false
			report.Inactive++
		}
	}

	existing, err := r.store.ListPlayerTagsForTags(ctx, active.ID, inactive.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cohort tags: %w", err)
	}

	hasActive := make(map[string]bool)
	hasInactive := make(map[string]bool)
	var removals []string
	for _, pt := range existing {
		wantActive, known := isActive[pt.PlayerID]
		switch pt.TagID {
		case active.ID:
			if known && wantActive {
				hasActive[pt.PlayerID] = true
				continue
			}
		case inactive.ID:
			if known && !wantActive {
				hasInactive[pt.PlayerID] = true
				continue
			}
		}
		removals = append(removals, pt.ID)
	}

	var additions []storage.TagAddition
	for _, a := range activity {
		switch {
		case isActive[a.PlayerID] && !hasActive[a.PlayerID]:
			additions = append(additions, storage.TagAddition{PlayerID: a.PlayerID, TagID: active.ID})
		case !isActive[a.PlayerID] && !hasInactive[a.PlayerID]:
			additions = append(additions, storage.TagAddition{PlayerID: a.PlayerID, TagID: inactive.ID})
		}
	}

	if len(removals) > 0 || len(additions) > 0 {
		if err := r.store.ApplyTagChanges(ctx, removals, additions); err != nil {
			return nil, fmt.Errorf("applying tag changes: %w", err)
		}
		r.counts.Invalidate(ctx, countcache.ScopeTags)
	}

	report.Added = len(additions)
	report.Removed = len(removals)
	report.Duration = r.clock.Now().Sub(start)

	r.logger.Info("tags reconciled",
		"active", report.Active,
		"inactive", report.Inactive,
		"added", report.Added,
		"removed", report.Removed)

	r.events.Publish(domain.Event{
		Type:      domain.EventTagsReconciled,
		Timestamp: r.clock.Now(),
		Data: domain.TagsReconciledEvent{
			Active:   report.Active,
			Inactive: report.Inactive,
			Added:    report.Added,
			Removed:  report.Removed,
		},
	})
	return report, nil
}

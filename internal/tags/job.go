package tags

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ernie/portal-repository/internal/domain"
)

// ErrRunInProgress is returned when a run is requested while one is active
var ErrRunInProgress = errors.New("tag reconciliation already running")

// DefaultInterval is the time between scheduled runs
const DefaultInterval = 24 * time.Hour

// Job runs the reconciler once at start and then on every interval tick.
// Runs never overlap within a process.
type Job struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger

	running sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewJob creates a scheduled reconciliation job
func NewJob(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// RunOnce runs a reconciliation now. Returns ErrRunInProgress if another
// run holds the lock.
func (j *Job) RunOnce(ctx context.Context) (*Report, error) {
	if !j.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer j.running.Unlock()
	return j.reconciler.Reconcile(ctx)
}

// Start launches the schedule loop
func (j *Job) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.loop(ctx)
}

// Stop ends the schedule loop and waits for an in-flight run to finish
func (j *Job) Stop() {
	j.logger.Info("tag reconciliation: stopping")
	close(j.done)
	j.wg.Wait()
}

func (j *Job) loop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Stop cancels a run in flight
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-j.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	j.tick(ctx)

	for {
		select {
		case <-j.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	_, err := j.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		j.logger.Info("skipping scheduled tag reconciliation, run in progress")
	case errors.Is(err, context.Canceled):
		j.logger.Info("tag reconciliation cancelled")
	case errors.Is(err, domain.ErrConfigurationFatal):
		j.logger.Error("tag reconciliation aborted, system tags missing", "error", err)
	default:
		j.logger.Error("tag reconciliation failed", "error", err)
	}
}

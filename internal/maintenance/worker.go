// Package maintenance runs the periodic housekeeping jobs: expiring rate-limit
// windows, pruning old session records and re-forwarding wishlist signups.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultSchedule = "@every 5m"
	wishlistBatch   = 50
)

// Sweeper drops expired limiter windows and returns how many were removed.
type Sweeper interface {
	Sweep() int
}

// SessionPruner deletes session records older than ttl.
type SessionPruner interface {
	PruneSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// WishlistRetrier re-forwards signups the webhook has not accepted yet.
type WishlistRetrier interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// Config controls when and how aggressively jobs run.
type Config struct {
	Schedule         string
	SessionRecordTTL time.Duration
}

// Deps are the components the worker tends. Nil members are skipped.
type Deps struct {
	Limiters []Sweeper
	Sessions SessionPruner
	Wishlist WishlistRetrier
}

// Worker runs housekeeping on a cron schedule.
type Worker struct {
	cfg  Config
	deps Deps
	cron *cron.Cron
}

// cronParser accepts standard 5-field expressions, an optional seconds field
// and descriptors such as "@every 5m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New validates the schedule and builds a worker. It does not start it.
func New(cfg Config, deps Deps) (*Worker, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	w := &Worker{
		cfg:  cfg,
		deps: deps,
		cron: cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
	}
	if _, err := w.cron.AddFunc(cfg.Schedule, func() { w.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
	}
	return w, nil
}

// Start runs the schedule until ctx is done, then waits for a running job to
// finish.
func (w *Worker) Start(ctx context.Context) {
	w.cron.Start()
	slog.Info("maintenance worker started", "schedule", w.cfg.Schedule, "session_ttl", w.cfg.SessionRecordTTL)

	go func() {
		<-ctx.Done()
		stopped := w.cron.Stop()
		<-stopped.Done()
		slog.Info("maintenance worker shutting down", "reason", ctx.Err())
	}()
}

// RunOnce executes every job a single time.
func (w *Worker) RunOnce(ctx context.Context) {
	w.sweepLimiters()
	w.pruneSessions(ctx)
	w.retryWishlist(ctx)
}

func (w *Worker) sweepLimiters() {
	removed := 0
	for _, l := range w.deps.Limiters {
		if l != nil {
			removed += l.Sweep()
		}
	}
	if removed > 0 {
		slog.Debug("maintenance swept rate-limit windows", "removed", removed)
	}
}

func (w *Worker) pruneSessions(ctx context.Context) {
	if w.deps.Sessions == nil || w.cfg.SessionRecordTTL <= 0 {
		return
	}
	deleted, err := w.deps.Sessions.PruneSessions(ctx, w.cfg.SessionRecordTTL)
	if err != nil {
		slog.Error("maintenance failed to prune session records", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("maintenance pruned session records", "count", deleted)
	}
}

func (w *Worker) retryWishlist(ctx context.Context) {
	if w.deps.Wishlist == nil {
		return
	}
	delivered, err := w.deps.Wishlist.RetryPending(ctx, wishlistBatch)
	if err != nil {
		slog.Warn("maintenance wishlist retry incomplete", "delivered", delivered, "error", err)
		return
	}
	if delivered > 0 {
		slog.Info("maintenance forwarded pending wishlist entries", "count", delivered)
	}
}

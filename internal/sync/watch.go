package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/remote"
)

// DefaultWatchInterval is the polling interval when WatchOpts leaves it
// unset.
const DefaultWatchInterval = 5 * time.Minute

// WatchOpts configures Watch.
type WatchOpts struct {
	Interval time.Duration
	// Notifications, when non-nil, triggers a cycle for every change feed
	// event. A closed channel falls back to polling only.
	Notifications <-chan remote.Notification
	// OnCycle, when non-nil, receives the outcome of every cycle.
	OnCycle func(*Result, error)
}

// Watch runs a cycle immediately, then on every tick and every change
// notification, until ctx is done. Ticks are skipped while offline, and
// watch cycles respect retry backoff. Cycle failures are logged, never
// returned.
func (e *Engine) Watch(ctx context.Context, opts WatchOpts) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	e.logger.Info("sync watch started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	notifications := opts.Notifications

	e.watchCycle(ctx, opts, "startup")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync watch stopped")
			return nil
		case <-ticker.C:
			e.watchCycle(ctx, opts, "tick")
		case n, ok := <-notifications:
			if !ok {
				e.logger.Warn("change feed closed, polling only")
				notifications = nil

				continue
			}

			drain(notifications)
			e.logger.Debug("change notification",
				slog.String("entity_type", n.EntityType.String()),
				slog.String("cursor", n.Cursor),
			)
			e.watchCycle(ctx, opts, "notification")
		}
	}
}

func (e *Engine) watchCycle(ctx context.Context, opts WatchOpts, trigger string) {
	if e.modes.Current() != mode.Connected {
		e.logger.Debug("offline, skipping sync", slog.String("trigger", trigger))
		return
	}

	res, err := e.RunOnce(ctx, RunOpts{})

	switch {
	case err == nil, errors.Is(err, ErrOffline), ctx.Err() != nil:
	default:
		e.logger.Error("sync cycle failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}

	if opts.OnCycle != nil {
		opts.OnCycle(res, err)
	}
}

// drain discards notifications that queued up behind the one being
// handled; a single cycle covers them all.
func drain(ch <-chan remote.Notification) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

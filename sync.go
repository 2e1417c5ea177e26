package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/config"
	"github.com/tonimelisma/mediavault/internal/remote"
	"github.com/tonimelisma/mediavault/internal/sync"
)

// lastStatusKey holds the status snapshot of the most recent cycle so that
// `status` can report it from a different process.
const lastStatusKey = "sync.last_status"

// notificationBuffer bounds relayed change notifications; the engine
// coalesces whatever queues up.
const notificationBuffer = 16

// Websocket resubscribe backoff bounds.
const (
	resubscribeInitial = 2 * time.Second
	resubscribeMax     = 5 * time.Minute
)

func newSyncCmd() *cobra.Command {
	var watch, force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the local catalog with the remote vault",
		Long: `Run one sync cycle: push every unsynced local record and queued delete,
then pull the remote change feed. Conflicts are resolved last-writer-wins and
recorded in the conflict log (see 'mediavault conflicts').

With --watch, keep running: sync on startup, on every interval tick, and on
every remote change notification. The daemon holds a lock next to the
catalog database. Running 'mediavault sync' while it is up asks the daemon
for an immediate forced cycle instead of syncing twice. Edits to the config
file are picked up without a restart.

Changes that keep failing back off exponentially. --force retries them now.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch {
				return runSyncWatch(cmd)
			}

			return runSyncOnce(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "sync continuously")
	cmd.Flags().BoolVar(&force, "force", false, "retry changes still inside their backoff window")
	cmd.MarkFlagsMutuallyExclusive("watch", "force")

	return cmd
}

func runSyncOnce(cmd *cobra.Command, force bool) error {
	cc := mustCLIContext(cmd.Context())

	lock, daemonPID, err := lockOrHandOff(cc.Cfg.Catalog.DBPath)
	if err != nil {
		return err
	}

	if lock == nil {
		cc.Statusf("A sync daemon (PID %d) is running; requested an immediate sync from it.\n", daemonPID)
		return nil
	}
	defer lock.Release()

	// Another one-shot may signal the lock holder; only the daemon acts on it.
	signal.Ignore(syscall.SIGHUP)

	return withSession(cmd, func(sess *Session, cc *CLIContext) error {
		engine, err := sess.Engine()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		res, runErr := engine.RunOnce(ctx, sync.RunOpts{Force: force})
		saveStatus(ctx, sess, engine, cc.Logger)

		if errors.Is(runErr, sync.ErrOffline) {
			return fmt.Errorf("catalog is offline (mode %s); run 'mediavault mode connected' or check the remote", sess.Modes.Current())
		}

		if cc.Flags.JSON {
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printSyncResult(cmd.OutOrStdout(), res)
		}

		if runErr != nil {
			return runErr
		}

		if !res.Success {
			return fmt.Errorf("sync finished with %d error(s)", len(res.Errors))
		}

		return nil
	})
}

func runSyncWatch(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	lock, err := acquireSyncLock(cc.Cfg.Catalog.DBPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	sess, err := NewSession(cmd.Context(), cc, sessionOpts{})
	if err != nil {
		return err
	}
	defer sess.Close()

	engine, err := sess.Engine()
	if err != nil {
		return err
	}

	signals := &daemonSignals{
		engine:  engine,
		persist: func() { saveStatus(cmd.Context(), sess, engine, logger) },
		logger:  logger,
		exit:    os.Exit,
	}
	ctx := signals.run(cmd.Context())

	holder := config.NewHolder(cc.Cfg, cc.Cfg.Path)
	reloaded := make(chan *config.Resolved, 1)

	go func() {
		err := config.Watch(ctx, holder, cc.reload, logger, func(r *config.Resolved) {
			select {
			case reloaded <- r:
			default:
			}
		})
		if err != nil {
			logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
		}
	}()

	var notifications <-chan remote.Notification
	if cc.Cfg.Sync.Websocket {
		notifications = relayNotifications(ctx, sess.Remote, logger)
	}

	cc.Statusf("Watching for changes (mode %s). Press Ctrl-C to stop.\n", sess.Modes.Current())

	onCycle := func(res *sync.Result, err error) {
		saveStatus(ctx, sess, engine, logger)

		if err == nil && res != nil && (res.ItemsPushed > 0 || res.ItemsPulled > 0 || res.Conflicts > 0) {
			cc.Statusf("%s  %s\n", time.Now().Format(time.TimeOnly), summarizeResult(res))
		}
	}

	return watchLoop(ctx, engine, holder, reloaded, notifications, onCycle, logger)
}

// watchLoop runs the engine watch and restarts it when a config reload
// changes the sync interval.
func watchLoop(
	ctx context.Context, engine *sync.Engine, holder *config.Holder,
	reloaded <-chan *config.Resolved, notifications <-chan remote.Notification,
	onCycle func(*sync.Result, error), logger *slog.Logger,
) error {
	for {
		interval := holder.Config().Sync.IntervalDuration()
		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)

		go func() {
			done <- engine.Watch(watchCtx, sync.WatchOpts{
				Interval:      interval,
				Notifications: notifications,
				OnCycle:       onCycle,
			})
		}()

		if !waitForIntervalChange(ctx, reloaded, interval, logger) {
			cancel()
			return <-done
		}

		cancel()

		if err := <-done; err != nil {
			return err
		}
	}
}

// waitForIntervalChange blocks until a reload changes the interval (true)
// or ctx is done (false).
func waitForIntervalChange(ctx context.Context, reloaded <-chan *config.Resolved, interval time.Duration, logger *slog.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case r := <-reloaded:
			if d := r.Sync.IntervalDuration(); d != interval {
				logger.Info("sync interval changed, restarting watch",
					slog.Duration("from", interval),
					slog.Duration("to", d),
				)

				return true
			}
		}
	}
}

// relayNotifications keeps a websocket change feed open for the life of
// ctx, resubscribing with backoff whenever the connection drops. The
// returned channel is closed when ctx is done.
func relayNotifications(ctx context.Context, client *remote.Client, logger *slog.Logger) <-chan remote.Notification {
	out := make(chan remote.Notification, notificationBuffer)

	go func() {
		defer close(out)

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = resubscribeInitial
		bo.MaxInterval = resubscribeMax
		bo.MaxElapsedTime = 0

		for ctx.Err() == nil {
			feed, err := client.Subscribe(ctx)
			if err != nil {
				wait := bo.NextBackOff()
				logger.Debug("change feed unavailable",
					slog.String("error", err.Error()),
					slog.Duration("retry_in", wait),
				)

				if !sleepCtx(ctx, wait) {
					return
				}

				continue
			}

			bo.Reset()
			logger.Info("change feed connected")

			for n := range feed {
				select {
				case out <- n:
				default:
					// The engine is busy; it will pick this change up anyway.
				}
			}

			logger.Info("change feed disconnected")
		}
	}()

	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// saveStatus persists the engine status with a fresh pending count.
func saveStatus(ctx context.Context, sess *Session, engine *sync.Engine, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	snap, err := engine.RefreshStatus(ctx)
	if err != nil {
		logger.Warn("refreshing sync status", slog.String("error", err.Error()))
	}

	data, err := json.Marshal(snap)
	if err != nil {
		logger.Warn("encoding sync status", slog.String("error", err.Error()))
		return
	}

	if err := sess.Store.SetValue(ctx, lastStatusKey, string(data)); err != nil {
		logger.Warn("saving sync status", slog.String("error", err.Error()))
	}
}

// loadStatus returns the status saved by the last cycle, or nil if no
// cycle has run yet.
func loadStatus(ctx context.Context, sess *Session) (*sync.StatusSnapshot, error) {
	raw, ok, err := sess.Store.GetValue(ctx, lastStatusKey)
	if err != nil || !ok {
		return nil, err
	}

	var snap sync.StatusSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding saved sync status: %w", err)
	}

	return &snap, nil
}

func summarizeResult(res *sync.Result) string {
	s := fmt.Sprintf("pushed %d, pulled %d", res.ItemsPushed, res.ItemsPulled)

	if res.Deferred > 0 {
		s += fmt.Sprintf(", deferred %d", res.Deferred)
	}

	if res.Conflicts > 0 {
		s += fmt.Sprintf(", %d conflict(s)", res.Conflicts)
	}

	return s
}

func printSyncResult(w io.Writer, res *sync.Result) {
	outcome := "Sync complete"
	if !res.Success {
		outcome = "Sync finished with errors"
	}

	fmt.Fprintf(w, "%s: %s (%s)\n", outcome, summarizeResult(res), res.Duration.Round(time.Millisecond))

	for _, e := range res.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

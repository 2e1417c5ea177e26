package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonimelisma/mediavault/internal/sync"
)

// cycleRunner is the part of the sync engine the daemon signals drive.
type cycleRunner interface {
	RunOnce(ctx context.Context, opts sync.RunOpts) (*sync.Result, error)
	Status() sync.StatusSnapshot
}

// daemonSignals maps process signals onto the sync daemon:
//
//   - SIGHUP runs a forced cycle (a one-shot `sync` handing off to us)
//   - the first SIGINT or SIGTERM interrupts the running cycle and stops
//   - a second stop signal exits at once
//
// persist runs after every forced cycle and before the daemon stops, so that
// `status` from another process sees the latest state.
type daemonSignals struct {
	engine  cycleRunner
	persist func()
	logger  *slog.Logger
	exit    func(code int)
}

// run delivers process signals to serve until parent is done. The returned
// context is the daemon's: it is cancelled by the first stop signal.
func (d *daemonSignals) run(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigs)
		d.serve(parent, ctx, cancel, sigs)
	}()

	return ctx
}

// serve handles sigs until parent is done. Forced cycles run under the
// daemon context ctx, which cancel stops.
func (d *daemonSignals) serve(
	parent, ctx context.Context, cancel context.CancelFunc, sigs <-chan os.Signal,
) {
	for {
		var sig os.Signal

		select {
		case <-parent.Done():
			return
		case sig = <-sigs:
		}

		if sig == syscall.SIGHUP {
			if ctx.Err() == nil {
				go d.forcedCycle(ctx)
			}

			continue
		}

		if ctx.Err() != nil {
			d.logger.Warn("received second stop signal, exiting now",
				slog.String("signal", sig.String()),
			)
			d.exit(1)

			return
		}

		snap := d.engine.Status()

		d.logger.Info("stopping sync daemon",
			slog.String("signal", sig.String()),
			slog.String("state", string(snap.State)),
			slog.Int("pending", snap.PendingCount),
		)

		if snap.State == sync.StateSyncing {
			d.logger.Info("interrupting running sync cycle, unfinished changes stay queued")
		}

		cancel()
		d.persist()
	}
}

func (d *daemonSignals) forcedCycle(ctx context.Context) {
	d.logger.Info("received SIGHUP, running forced sync")

	res, err := d.engine.RunOnce(ctx, sync.RunOpts{Force: true})

	switch {
	case err != nil && ctx.Err() == nil:
		d.logger.Warn("forced sync failed", slog.String("error", err.Error()))
	case err == nil && res != nil:
		d.logger.Info("forced sync finished", slog.String("summary", summarizeResult(res)))
	}

	d.persist()
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/store"
)

// DefaultPageSize is the change feed page size.
const DefaultPageSize = 200

// ErrOffline is returned when a cycle is requested, or interrupted, while
// the catalog is not in Connected mode.
var ErrOffline = errors.New("sync: offline")

// errSwitchedStandalone is the cancellation cause of a cycle interrupted by
// a mode change.
var errSwitchedStandalone = errors.New("sync: switched to standalone mode")

// cycleKey is the singleflight key; there is only ever one cycle.
const cycleKey = "cycle"

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Store    *store.Store
	Remote   Remote // satisfied by *remote.Client
	Modes    Modes  // satisfied by *mode.Manager
	Logger   *slog.Logger
	Retry    RetryConfig
	PageSize int              // change feed page size; 0 uses DefaultPageSize
	Now      func() time.Time // optional clock; defaults to time.Now
}

// RunOpts holds per-cycle options for RunOnce.
type RunOpts struct {
	// Force pushes changes that are still inside their backoff window.
	Force bool
}

// Result summarizes one sync cycle. It is returned for every cycle,
// including failed and interrupted ones.
type Result struct {
	Success     bool          `json:"success"`
	ItemsPushed int           `json:"items_pushed"`
	ItemsPulled int           `json:"items_pulled"`
	Deferred    int           `json:"deferred"`
	Conflicts   int           `json:"conflicts"`
	Errors      []string      `json:"errors"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Engine runs push/pull cycles between the Local Store and the remote.
// At most one cycle runs at a time; concurrent requests share it.
type Engine struct {
	store    *store.Store
	remote   Remote
	modes    Modes
	logger   *slog.Logger
	retry    RetryConfig
	pageSize int
	nowFunc  func() time.Time

	group  singleflight.Group
	status *statusTracker

	mu          stdsync.Mutex
	cancelCycle context.CancelCauseFunc

	unsubscribe func()
}

// NewEngine creates an engine and starts following mode changes. Call
// Close to stop.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("sync: store is required")
	}

	if cfg.Remote == nil {
		return nil, errors.New("sync: remote is required")
	}

	if cfg.Modes == nil {
		return nil, errors.New("sync: mode manager is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	initial := StateIdle
	if cfg.Modes.Current() != mode.Connected {
		initial = StateOffline
	}

	e := &Engine{
		store:    cfg.Store,
		remote:   cfg.Remote,
		modes:    cfg.Modes,
		logger:   cfg.Logger,
		retry:    cfg.Retry.withDefaults(),
		pageSize: cfg.PageSize,
		nowFunc:  cfg.Now,
		status:   newStatusTracker(initial),
	}

	e.unsubscribe = cfg.Modes.Subscribe(e.onModeChange)

	return e, nil
}

// Close stops following mode changes. An in-flight cycle is not affected.
func (e *Engine) Close() error {
	e.unsubscribe()
	return nil
}

func (e *Engine) now() time.Time {
	return e.nowFunc().UTC()
}

// onModeChange cancels the in-flight cycle when the catalog leaves
// Connected mode. It runs synchronously inside Mode Manager broadcasts.
func (e *Engine) onModeChange(s mode.State) {
	if s.Mode == mode.Connected {
		if e.status.get().State == StateOffline {
			e.status.setState(StateIdle)
		}

		return
	}

	e.mu.Lock()
	cancel := e.cancelCycle
	e.mu.Unlock()

	if cancel != nil {
		e.logger.Info("mode changed, canceling sync cycle", slog.String("mode", s.Mode.String()))
		cancel(errSwitchedStandalone)
	}

	e.status.setState(StateOffline)
}

// Status returns the current status snapshot.
func (e *Engine) Status() StatusSnapshot {
	return e.status.get()
}

// Subscribe registers fn to receive every status change. The returned
// function unregisters it. fn runs on the goroutine that changed the
// status and must not block.
func (e *Engine) Subscribe(fn func(StatusSnapshot)) (unsubscribe func()) {
	return e.status.subscribe(fn)
}

// PendingCount returns the number of unsynced records plus queued deletes.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	dirty, err := e.store.CountUnsynced(ctx)
	if err != nil {
		return 0, err
	}

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	for i := range pending {
		if pending[i].Operation == catalog.OpDelete {
			dirty++
		}
	}

	return dirty, nil
}

// RefreshStatus recomputes the pending count in the status snapshot.
func (e *Engine) RefreshStatus(ctx context.Context) (StatusSnapshot, error) {
	n, err := e.PendingCount(ctx)
	if err != nil {
		return e.Status(), err
	}

	e.status.update(func(s *StatusSnapshot) { s.PendingCount = n })

	return e.Status(), nil
}

// RunOnce runs one push/pull cycle. When the catalog is not Connected it
// returns ErrOffline without touching the network. Concurrent calls share
// the running cycle and receive the same Result; the options of the call
// that started the cycle apply.
//
// The returned error is non-nil only when the cycle could not run to
// completion: offline, canceled, or a store or unexpected remote failure.
// Per-item remote failures are reported in Result.Errors.
func (e *Engine) RunOnce(ctx context.Context, opts RunOpts) (*Result, error) {
	if e.modes.Current() != mode.Connected {
		e.status.setState(StateOffline)

		return &Result{StartedAt: e.now(), Errors: []string{ErrOffline.Error()}}, ErrOffline
	}

	ch := e.group.DoChan(cycleKey, func() (any, error) {
		return e.runCycle(ctx, opts)
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(*Result)
		if r.Shared {
			e.logger.Debug("sync request joined running cycle")
		}

		return res, r.Err
	case <-ctx.Done():
		return &Result{StartedAt: e.now(), Errors: []string{ctx.Err().Error()}}, ctx.Err()
	}
}

func (e *Engine) runCycle(parent context.Context, opts RunOpts) (*Result, error) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	e.mu.Lock()
	e.cancelCycle = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancelCycle = nil
		e.mu.Unlock()
	}()

	// A mode change between the RunOnce check and here is not seen by the
	// subscriber cancel; check again now that cancellation is armed.
	if e.modes.Current() != mode.Connected {
		cancel(errSwitchedStandalone)
	}

	res := &Result{StartedAt: e.now(), Errors: []string{}}
	e.status.setState(StateSyncing)

	e.logger.Info("sync cycle started", slog.Bool("force", opts.Force))

	err := e.push(ctx, opts, res)
	if err == nil {
		err = e.pull(ctx, res)
	}

	res.Duration = e.now().Sub(res.StartedAt)

	return e.finish(ctx, res, err)
}

// finish classifies the cycle outcome and publishes the final status.
func (e *Engine) finish(ctx context.Context, res *Result, err error) (*Result, error) {
	// Pending count uses a fresh context so an interrupted cycle still
	// reports accurate numbers.
	pending, perr := e.PendingCount(context.WithoutCancel(ctx))
	if perr != nil {
		e.logger.Warn("counting pending changes", slog.String("error", perr.Error()))
	}

	state := StateError
	var outErr error

	switch {
	case errors.Is(context.Cause(ctx), errSwitchedStandalone):
		state = StateOffline
		outErr = ErrOffline
		res.addError("sync interrupted: %v", errSwitchedStandalone)
	case ctx.Err() != nil:
		outErr = fmt.Errorf("sync: cycle canceled: %w", ctx.Err())
		res.addError("sync canceled: %v", ctx.Err())
	case err != nil:
		outErr = err
		res.addError("%v", err)
	case len(res.Errors) == 0:
		state = StateSuccess
		res.Success = true
	}

	e.status.update(func(s *StatusSnapshot) {
		s.State = state
		s.PendingCount = pending
		s.Errors = res.Errors
		s.LastResult = res

		if res.Success {
			at := res.StartedAt.Add(res.Duration)
			s.LastSuccessAt = &at
		}
	})

	e.logger.Info("sync cycle finished",
		slog.String("state", string(state)),
		slog.Int("pushed", res.ItemsPushed),
		slog.Int("pulled", res.ItemsPulled),
		slog.Int("deferred", res.Deferred),
		slog.Int("conflicts", res.Conflicts),
		slog.Int("errors", len(res.Errors)),
		slog.Duration("duration", res.Duration),
	)

	return res, outErr
}

// isNetwork reports whether err is a remote failure the cycle can absorb.
func isNetwork(err error) bool {
	var netErr *catalog.NetworkError
	return errors.As(err, &netErr)
}

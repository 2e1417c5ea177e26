// Package repo is the mode-aware repository layer. It exposes one facade
// per entity type with the same operations in both modes, validates and
// normalizes input, and dispatches to the backend selected for the current
// mode.
package repo

import (
	"log/slog"
	"sync/atomic"

	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/store"
)

// Modes is the part of the Mode Manager the repositories depend on.
type Modes interface {
	Current() mode.Mode
	Subscribe(fn func(mode.State)) (unsubscribe func())
}

// Repositories groups the entity facades.
type Repositories struct {
	Media       *Media
	Actors      *Actors
	Collections *Collections

	resolver *resolver
}

// New builds the repositories over the local store. remote may be nil, in
// which case Connected mode still writes locally and leaves pushing to the
// sync engine.
func New(s *store.Store, remote Remote, modes Modes, logger *slog.Logger) *Repositories {
	local := newLocalBackend(s, logger)

	var rb Backend
	if remote != nil {
		rb = newRemoteBackend(local, remote, logger)
	}

	r := newResolver(local, rb, modes, logger)

	return &Repositories{
		Media:       &Media{r: r, now: s.Now},
		Actors:      &Actors{r: r, now: s.Now},
		Collections: &Collections{r: r, now: s.Now},
		resolver:    r,
	}
}

// Mode returns the mode the active backend was selected for.
func (r *Repositories) Mode() mode.Mode {
	return r.resolver.active.Load().mode
}

// Close stops following mode changes.
func (r *Repositories) Close() {
	r.resolver.unsubscribe()
}

// selection pairs the active backend with the mode it serves.
type selection struct {
	backend Backend
	mode    mode.Mode
}

// resolver swaps the active backend whenever the Mode Manager reports a
// change. Reads of the active backend are lock-free.
type resolver struct {
	local       Backend
	remote      Backend
	logger      *slog.Logger
	active      atomic.Pointer[selection]
	unsubscribe func()
}

func newResolver(local, remote Backend, modes Modes, logger *slog.Logger) *resolver {
	r := &resolver{local: local, remote: remote, logger: logger}
	r.set(modes.Current())
	r.unsubscribe = modes.Subscribe(func(s mode.State) { r.set(s.Mode) })

	return r
}

func (r *resolver) set(m mode.Mode) {
	b := r.local

	if m == mode.Connected {
		if r.remote != nil {
			b = r.remote
		} else {
			r.logger.Warn("connected mode without a remote client, writing locally")
		}
	}

	prev := r.active.Swap(&selection{backend: b, mode: m})
	if prev == nil || prev.mode != m {
		r.logger.Debug("repository backend selected", slog.String("mode", m.String()))
	}
}

func (r *resolver) backend() Backend {
	return r.active.Load().backend
}

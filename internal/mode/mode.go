// Package mode owns the Standalone/Connected choice: it persists the
// preferred mode and remote URL, probes remote reachability, and notifies
// subscribers synchronously whenever the effective state changes.
package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Mode is the operating mode of the catalog.
type Mode string

// Modes.
const (
	Standalone Mode = "standalone"
	Connected  Mode = "connected"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Standalone, Connected:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("mode: unknown mode %q (want standalone or connected)", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// KV keys owned by the manager.
const (
	KeyPreferred = "mode.preferred"
	KeyRemoteURL = "mode.remote_url"
)

// DefaultProbeTimeout bounds the reachability probe in AutoSelect.
const DefaultProbeTimeout = 3 * time.Second

// ErrNoRemoteURL is returned when Connected mode is requested without a
// remote URL configured.
var ErrNoRemoteURL = errors.New("mode: no remote URL configured")

// KV is the durable key-value store the manager persists into.
type KV interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
}

// Prober checks whether a remote backend is reachable.
type Prober interface {
	Probe(ctx context.Context, baseURL string, timeout time.Duration) bool
}

// State is a snapshot of the manager. Mode is the effective mode; Preferred
// is the persisted choice, which can differ after a failed probe.
type State struct {
	Mode      Mode   `json:"mode"`
	Preferred Mode   `json:"preferred"`
	RemoteURL string `json:"remote_url,omitempty"`
}

type subscriber struct {
	id int
	fn func(State)
}

// Manager is the single owner of mode state. All other components read it
// through Current/State or react through Subscribe.
type Manager struct {
	kv           KV
	prober       Prober
	logger       *slog.Logger
	probeTimeout time.Duration

	mu    sync.RWMutex
	state State

	// notifyMu serializes broadcasts so that subscribers observe state
	// changes in the order they were made.
	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     []subscriber
	nextID   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// New reads the persisted preference and remote URL once and returns a
// manager whose effective mode is Standalone until AutoSelect or SetMode
// runs.
func New(ctx context.Context, kv KV, prober Prober, logger *slog.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		kv:           kv,
		prober:       prober,
		logger:       logger,
		probeTimeout: DefaultProbeTimeout,
		state:        State{Mode: Standalone, Preferred: Standalone},
	}

	for _, opt := range opts {
		opt(m)
	}

	pref, ok, err := kv.GetValue(ctx, KeyPreferred)
	if err != nil {
		return nil, fmt.Errorf("mode: reading preference: %w", err)
	}

	if ok {
		parsed, perr := ParseMode(pref)
		if perr != nil {
			logger.Warn("ignoring invalid persisted mode", slog.String("value", pref))
		} else {
			m.state.Preferred = parsed
		}
	}

	remoteURL, _, err := kv.GetValue(ctx, KeyRemoteURL)
	if err != nil {
		return nil, fmt.Errorf("mode: reading remote URL: %w", err)
	}

	m.state.RemoteURL = remoteURL

	return m, nil
}

// Current returns the effective mode.
func (m *Manager) Current() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Mode
}

// State returns the full mode state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// CheckAvailability reports whether the remote at baseURL answers its
// health endpoint within timeout. Every failure is reported as false.
func (m *Manager) CheckAvailability(ctx context.Context, baseURL string, timeout time.Duration) bool {
	if baseURL == "" {
		return false
	}

	return m.prober.Probe(ctx, baseURL, timeout)
}

// AutoSelect applies the persisted preference. A Connected preference is
// honored only when the remote answers the probe; otherwise the effective
// mode becomes Standalone and the preference is kept for next time.
func (m *Manager) AutoSelect(ctx context.Context) Mode {
	st := m.State()
	effective := st.Preferred

	if effective == Connected {
		if !m.CheckAvailability(ctx, st.RemoteURL, m.probeTimeout) {
			m.logger.Warn("remote unreachable, running standalone",
				slog.String("remote_url", st.RemoteURL),
				slog.Duration("timeout", m.probeTimeout),
			)

			effective = Standalone
		}
	}

	m.apply(func(s *State) { s.Mode = effective })

	m.logger.Info("mode selected",
		slog.String("mode", effective.String()),
		slog.String("preferred", st.Preferred.String()),
	)

	return effective
}

// SetMode persists mode as the preference, makes it effective, and
// notifies subscribers before returning.
func (m *Manager) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	if mode == Connected && m.State().RemoteURL == "" {
		return ErrNoRemoteURL
	}

	if err := m.kv.SetValue(ctx, KeyPreferred, string(mode)); err != nil {
		return fmt.Errorf("mode: persisting preference: %w", err)
	}

	m.apply(func(s *State) {
		s.Mode = mode
		s.Preferred = mode
	})

	m.logger.Info("mode changed", slog.String("mode", mode.String()))

	return nil
}

// SetRemoteURL validates and persists the remote base URL.
func (m *Manager) SetRemoteURL(ctx context.Context, raw string) error {
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("mode: invalid remote URL %q: want http(s)://host", raw)
		}
	}

	if err := m.kv.SetValue(ctx, KeyRemoteURL, raw); err != nil {
		return fmt.Errorf("mode: persisting remote URL: %w", err)
	}

	m.apply(func(s *State) { s.RemoteURL = raw })

	return nil
}

// Subscribe registers fn to be called synchronously with the new state on
// every change. The returned function unregisters it. fn must not call
// SetMode or SetRemoteURL.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()

		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// apply mutates the state and broadcasts the result. Subscribers run
// outside the state lock so they may call Current or State.
func (m *Manager) apply(mutate func(*State)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	mutate(&m.state)
	st := m.state
	m.mu.Unlock()

	m.subsMu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()

	for _, s := range subs {
		s.fn(st)
	}
}

package sync

import (
	stdsync "sync"
	"time"
)

// State is the engine's externally visible status.
type State string

// Engine states. Idle → Syncing → Success | Error, and any state can move
// to Offline when the catalog leaves Connected mode.
const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateError   State = "error"
	StateOffline State = "offline"
)

// StatusSnapshot is a point-in-time copy of the engine status.
type StatusSnapshot struct {
	State         State      `json:"state"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	PendingCount  int        `json:"pending_count"`
	Errors        []string   `json:"errors,omitempty"`
	LastResult    *Result    `json:"last_result,omitempty"`
}

type statusSub struct {
	id int
	fn func(StatusSnapshot)
}

// statusTracker holds the current snapshot and broadcasts every change.
type statusTracker struct {
	mu   stdsync.Mutex
	snap StatusSnapshot

	notifyMu stdsync.Mutex
	subsMu   stdsync.Mutex
	subs     []statusSub
	nextID   int
}

func newStatusTracker(initial State) *statusTracker {
	return &statusTracker{snap: StatusSnapshot{State: initial}}
}

func (s *statusTracker) get() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneSnapshot(s.snap)
}

// update applies mutate and notifies subscribers in order, outside the
// snapshot lock.
func (s *statusTracker) update(mutate func(*StatusSnapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	mutate(&s.snap)
	snap := cloneSnapshot(s.snap)
	s.mu.Unlock()

	s.subsMu.Lock()
	subs := make([]statusSub, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *statusTracker) setState(st State) {
	s.update(func(snap *StatusSnapshot) { snap.State = st })
}

func (s *statusTracker) subscribe(fn func(StatusSnapshot)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, statusSub{id: id, fn: fn})

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()

		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func cloneSnapshot(s StatusSnapshot) StatusSnapshot {
	if s.LastSuccessAt != nil {
		t := *s.LastSuccessAt
		s.LastSuccessAt = &t
	}

	if s.Errors != nil {
		s.Errors = append([]string(nil), s.Errors...)
	}

	if s.LastResult != nil {
		r := *s.LastResult
		r.Errors = append([]string(nil), r.Errors...)
		s.LastResult = &r
	}

	return s
}

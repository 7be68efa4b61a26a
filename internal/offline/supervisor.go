package offline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// ReloadSignal tells one page consumer that control transferred to a
// new generation. It fires at most once per subscriber lifetime, so a
// page reloads exactly once no matter how updates race.
type ReloadSignal struct {
	once sync.Once
	ch   chan struct{}
}

// C is closed when the subscriber should reload.
func (r *ReloadSignal) C() <-chan struct{} { return r.ch }

func (r *ReloadSignal) fire() {
	r.once.Do(func() { close(r.ch) })
}

// Supervisor owns the active and waiting managers and the update
// handshake: a new generation installs into the waiting slot and takes
// over either on SkipWaiting or, for the first generation, immediately.
type Supervisor struct {
	mu      sync.Mutex
	active  *Manager
	waiting *Manager
	seen    map[string]bool
	subs    []*ReloadSignal
	logger  *slog.Logger
}

func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{seen: make(map[string]bool), logger: logger}
}

// Register installs a manager. The first registration activates
// immediately; later ones wait for SkipWaiting. A generation name that
// was ever used before is rejected: every deploy must introduce a
// strictly new name or stale bundles would survive eviction.
func (s *Supervisor) Register(ctx context.Context, m *Manager) error {
	s.mu.Lock()
	if s.seen[m.Generation()] {
		s.mu.Unlock()
		return fmt.Errorf("generation name %q already used", m.Generation())
	}
	s.seen[m.Generation()] = true
	s.mu.Unlock()

	if err := m.Install(ctx); err != nil {
		return fmt.Errorf("install generation %q: %w", m.Generation(), err)
	}

	s.mu.Lock()
	first := s.active == nil
	if !first {
		s.waiting = m
	}
	s.mu.Unlock()

	if !first {
		s.logger.Info("offline.supervisor.waiting", "generation", m.Generation())
		return nil
	}

	if err := m.Activate(ctx); err != nil {
		return fmt.Errorf("activate generation %q: %w", m.Generation(), err)
	}
	s.mu.Lock()
	s.active = m
	s.mu.Unlock()
	s.logger.Info("offline.supervisor.activated", "generation", m.Generation())
	return nil
}

// SkipWaiting promotes the waiting generation immediately instead of
// waiting for every consumer to close, then signals all subscribers to
// reload once.
func (s *Supervisor) SkipWaiting(ctx context.Context) error {
	s.mu.Lock()
	w := s.waiting
	s.mu.Unlock()
	if w == nil {
		return nil
	}

	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate generation %q: %w", w.Generation(), err)
	}

	s.mu.Lock()
	s.active = w
	s.waiting = nil
	subs := append([]*ReloadSignal(nil), s.subs...)
	s.mu.Unlock()

	s.logger.Info("offline.supervisor.controller_change", "generation", w.Generation())
	for _, sub := range subs {
		sub.fire()
	}
	return nil
}

// Subscribe returns a reload signal for one page consumer.
func (s *Supervisor) Subscribe() *ReloadSignal {
	sig := &ReloadSignal{ch: make(chan struct{})}
	s.mu.Lock()
	s.subs = append(s.subs, sig)
	s.mu.Unlock()
	return sig
}

// Active returns the currently serving manager, nil before the first
// activation.
func (s *Supervisor) Active() *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Waiting returns the installed-but-not-yet-active manager, if any.
func (s *Supervisor) Waiting() *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// ServeHTTP delegates to the active manager; all open consumers are
// served by whatever generation is active right now.
func (s *Supervisor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := s.Active()
	if m == nil {
		http.Error(w, "no active asset cache", http.StatusServiceUnavailable)
		return
	}
	m.ServeHTTP(w, r)
}

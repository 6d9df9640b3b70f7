package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relaycraft/multimc/internal/backend"
	"github.com/relaycraft/multimc/internal/config"
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/metrics"
	"github.com/relaycraft/multimc/internal/store"
	"github.com/relaycraft/multimc/internal/zone"
)

// ProxyState is the process-wide shared state every session and
// supervisor goroutine reads and mutates: the backend registry, the
// identifier mapping tables, the chunk zoner, the position store, the
// tag cache, and the live player set.
type ProxyState struct {
	Cfg      *config.Config
	Backends *backend.Registry
	Tables   *mapping.Tables
	Zoner    zone.Zoner
	Store    *store.Store
	Tags     *TagCache
	Pipeline *Pipeline

	alive    int32 // atomic bool
	shutdown chan struct{}

	mu      sync.RWMutex
	players map[string]*ClientSession
}

// NewProxyState wires the shared collections together.
func NewProxyState(cfg *config.Config, backends *backend.Registry, zoner zone.Zoner, st *store.Store) *ProxyState {
	s := &ProxyState{
		Cfg:      cfg,
		Backends: backends,
		Tables:   mapping.New(),
		Zoner:    zoner,
		Store:    st,
		Tags:     &TagCache{},
		players:  make(map[string]*ClientSession),
		alive:    1,
		shutdown: make(chan struct{}),
	}
	s.Pipeline = NewPipeline(s)
	return s
}

// Alive reports whether the proxy is still accepting/serving sessions.
func (s *ProxyState) Alive() bool { return atomic.LoadInt32(&s.alive) != 0 }

// Shutdown marks the proxy as shutting down, kicks every connected
// client, and signals the accept loop to return.
func (s *ProxyState) Shutdown() {
	if !atomic.CompareAndSwapInt32(&s.alive, 1, 0) {
		return
	}
	for _, sess := range s.Players() {
		sess.Kick("Server shut down")
	}
	close(s.shutdown)
}

// ShutdownRequested is closed once Shutdown has run, so the process
// main can unwind its context.
func (s *ProxyState) ShutdownRequested() <-chan struct{} { return s.shutdown }

// AddPlayer registers a session under its player name.
func (s *ProxyState) AddPlayer(sess *ClientSession) {
	s.mu.Lock()
	s.players[sess.Name] = sess
	n := len(s.players)
	s.mu.Unlock()
	metrics.SetActiveSessions(n)
}

// RemovePlayer unregisters a session by name.
func (s *ProxyState) RemovePlayer(name string) {
	s.mu.Lock()
	delete(s.players, name)
	n := len(s.players)
	s.mu.Unlock()
	metrics.SetActiveSessions(n)
}

// Players returns a snapshot of currently connected sessions.
func (s *ProxyState) Players() []*ClientSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ClientSession, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out
}

// PlayerByName looks up a connected session by player name.
func (s *ProxyState) PlayerByName(name string) (*ClientSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[name]
	return p, ok
}

// PlayerNames returns the connected players' names, for internal/console
// and the chat pass's /list command.
func (s *ProxyState) PlayerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.players))
	for name := range s.players {
		out = append(out, name)
	}
	return out
}

// SwitchPlayer runs the same /switch logic the chat pass exposes
// in-game, for internal/console's operator prompt.
func (s *ProxyState) SwitchPlayer(name string, backend mapping.BackendID) error {
	sess, ok := s.PlayerByName(name)
	if !ok {
		return fmt.Errorf("relay: no connected player named %q", name)
	}
	return switchSessionBackend(sess, backend)
}

// KickPlayer disconnects one player with an operator-attributed reason,
// for internal/console.
func (s *ProxyState) KickPlayer(name, by, why string) error {
	sess, ok := s.PlayerByName(name)
	if !ok {
		return fmt.Errorf("relay: no connected player named %q", name)
	}
	sess.Kick(fmt.Sprintf("Kicked by %s because %s", by, why))
	return nil
}

// switchSessionBackend dials (if needed) and promotes backend to active
// for sess, shared by the chat pass's /switch and ProxyState.SwitchPlayer
// so console and in-game command handling never drift apart.
func switchSessionBackend(sess *ClientSession, backend mapping.BackendID) error {
	if _, warm := sess.connFor(backend); !warm {
		if err := sess.AddDummy(context.Background(), backend); err != nil {
			return err
		}
	}
	return sess.SwapDummy(backend)
}

// BackendRegistry exposes the configured backend set to internal/console.
func (s *ProxyState) BackendRegistry() *backend.Registry { return s.Backends }

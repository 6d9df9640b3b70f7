// Package backend holds the static set of configured simulation servers
// and the shared connect primitive used both for the one active backend
// connection and for dummy connections. Dial retries are paced with
// exponential backoff, and a repeatedly-failing backend trips a circuit
// breaker so a session start or swap against a known-dead backend fails
// fast instead of waiting out a full dial timeout.
package backend

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/a3ak/circuitbreaker"
	"github.com/jpillora/backoff"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
)

// Server is one configured simulation server.
type Server struct {
	ID      mapping.BackendID
	Name    string
	Address string
}

// Registry is the static set of configured backends.
type Registry struct {
	servers map[mapping.BackendID]Server
	order   []mapping.BackendID
	cb      *circuitbreaker.CBManager
}

// New builds a Registry from an ordered list of servers and initializes
// a circuit breaker per backend name.
func New(servers []Server, cbConf circuitbreaker.CircuitBreakerConf) *Registry {
	r := &Registry{
		servers: make(map[mapping.BackendID]Server, len(servers)),
		cb:      circuitbreaker.NewCBManager(),
	}
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		r.servers[s.ID] = s
		r.order = append(r.order, s.ID)
		names = append(names, s.Name)
	}
	r.cb.InitCircuitBreakers(names, cbConf)
	return r
}

// All returns every configured backend id, in configuration order.
func (r *Registry) All() []mapping.BackendID {
	out := make([]mapping.BackendID, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the Server for an id.
func (r *Registry) Get(id mapping.BackendID) (Server, bool) {
	s, ok := r.servers[id]
	return s, ok
}

// ErrCircuitOpen is returned by Connect when the backend's circuit
// breaker is currently open.
type ErrCircuitOpen struct {
	Backend mapping.BackendID
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("backend %d: circuit breaker open", e.Backend)
}

// Connect dials one backend, retrying with exponential backoff up to
// maxAttempts (0 means try exactly once). It reports failures to the
// circuit breaker and refuses to dial at all while the breaker for this
// backend is open.
func (r *Registry) Connect(ctx context.Context, id mapping.BackendID, maxAttempts int) (net.Conn, error) {
	srv, ok := r.servers[id]
	if !ok {
		return nil, fmt.Errorf("backend %d: not configured", id)
	}

	if allow, _ := r.cb.AllowRequest(srv.Name); !allow {
		return nil, &ErrCircuitOpen{Backend: id}
	}

	b := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 10 * time.Second}
	var lastErr error
	for attempt := 0; maxAttempts <= 0 || attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		dialer := net.Dialer{Timeout: 10 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", srv.Address)
		if err == nil {
			r.cb.ReportSuccess(srv.Name)
			return conn, nil
		}

		lastErr = err
		r.cb.ReportFailure(srv.Name)
		logging.L().Warningf("backend %d (%s): dial attempt %d failed: %v", id, srv.Name, attempt+1, err)

		if maxAttempts <= 0 {
			// single caller-paced attempt; let the caller decide whether to retry
			break
		}
	}
	return nil, fmt.Errorf("backend %d (%s): %w", id, srv.Name, lastErr)
}

// Stats reports the circuit breaker state of every backend, for the
// admin status feed.
func (r *Registry) Stats() map[string]any {
	return r.cb.GetCircuitBreakerStats()
}

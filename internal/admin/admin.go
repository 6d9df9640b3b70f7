// Package admin serves the operator's HTTP surface: Prometheus metrics,
// a one-shot JSON status document, and a websocket feed that pushes the
// same status to connected dashboards on a fixed cadence.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/jpillora/sizestr"
	"github.com/tomasen/realip"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/metrics"
	"github.com/relaycraft/multimc/internal/relay"
)

// statusPushPeriod paces the websocket feed.
const statusPushPeriod = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// SessionStatus is one connected player's row in the status document.
type SessionStatus struct {
	Name          string `json:"name"`
	UUID          string `json:"uuid"`
	ActiveBackend uint64 `json:"active_backend"`
	BytesRead     string `json:"bytes_read"`
	BytesWritten  string `json:"bytes_written"`
}

// Status is the full document served at /status and pushed over /ws.
type Status struct {
	Alive    bool            `json:"alive"`
	Players  []SessionStatus `json:"players"`
	Backends map[string]any  `json:"backends"`
}

// Server is the admin HTTP listener.
type Server struct {
	state *relay.ProxyState
	http  *http.Server
}

// New builds the admin server around a ProxyState.
func New(state *relay.ProxyState) *Server {
	return &Server{state: state}
}

// ListenAndServe binds the admin listener and serves until ctx is
// cancelled. Every request is access-logged with the caller's real IP
// (the admin port commonly sits behind a load balancer that rewrites
// RemoteAddr).
func (s *Server) ListenAndServe(ctx context.Context, addr, metricPath string) error {
	mux := http.NewServeMux()
	mux.Handle(metricPath, metrics.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)

	handler := realIPMiddleware(requestlog.Wrap(mux))
	s.http = &http.Server{Addr: addr, Handler: handler}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	logging.L().Infof("admin listening on %s", addr)
	err = s.http.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// realIPMiddleware rewrites RemoteAddr to the client's real IP before
// the request-logging wrapper formats its line.
func realIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.RemoteAddr = realip.FromRequest(r)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) buildStatus() *Status {
	players := s.state.Players()
	st := &Status{
		Alive:    s.state.Alive(),
		Players:  make([]SessionStatus, 0, len(players)),
		Backends: s.state.Backends.Stats(),
	}
	for _, p := range players {
		conn := p.ClientConn()
		st.Players = append(st.Players, SessionStatus{
			Name:          p.Name,
			UUID:          p.ClientUUID.String(),
			ActiveBackend: uint64(p.ActiveBackend()),
			BytesRead:     sizestr.ToString(conn.BytesRead()),
			BytesWritten:  sizestr.ToString(conn.BytesWritten()),
		})
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.buildStatus()); err != nil {
		logging.L().Warningf("admin: status encode: %v", err)
	}
}

// handleWS upgrades to a websocket and pushes the status document until
// the peer goes away or the proxy shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warningf("admin: websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	defer wsConn.Close()

	// drain (and discard) client frames so control messages are processed
	go func() {
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPushPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !s.state.Alive() {
			return
		}
		wsConn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := wsConn.WriteJSON(s.buildStatus()); err != nil {
			return
		}
	}
}

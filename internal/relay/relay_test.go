package relay

import (
	"testing"

	"github.com/a3ak/circuitbreaker"
	"github.com/prep/socketpair"
	"github.com/stretchr/testify/require"

	"github.com/relaycraft/multimc/internal/backend"
	"github.com/relaycraft/multimc/internal/config"
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/protocol"
)

func newTestState(t *testing.T) *ProxyState {
	t.Helper()
	cfg := &config.Config{Protocol: 754, Brand: "multimc"}
	reg := backend.New([]backend.Server{
		{ID: 0, Name: "alpha", Address: "127.0.0.1:0"},
		{ID: 1, Name: "beta", Address: "127.0.0.1:0"},
	}, circuitbreaker.CircuitBreakerConf{})
	return NewProxyState(cfg, reg, nil, nil)
}

// newTestSession builds a session over an in-memory socket pair and
// returns the peer end, which plays the part of the real client.
func newTestSession(t *testing.T, state *ProxyState) (*ClientSession, *protocol.Conn) {
	t.Helper()
	ours, theirs, err := socketpair.New("unix")
	require.NoError(t, err)
	sess := newClientSession(state, "Notch", mapping.DeriveClientUUID("Notch"), protocol.NewConn(ours), false)
	t.Cleanup(func() { theirs.Close() })
	t.Cleanup(sess.Close)
	return sess, protocol.NewConn(theirs)
}

// newTestBackendConn builds a backend connection over an in-memory
// socket pair and returns the peer end, which plays the backend.
func newTestBackendConn(t *testing.T, id mapping.BackendID, playerEID int32) (*BackendConn, *protocol.Conn) {
	t.Helper()
	ours, theirs, err := socketpair.New("unix")
	require.NoError(t, err)
	bc := newBackendConn(id, protocol.NewConn(ours), playerEID)
	t.Cleanup(func() { ours.Close(); theirs.Close() })
	peer := protocol.NewConn(theirs)
	peer.SetState(protocol.StatePlay)
	return bc, peer
}

func frameFor(t *testing.T, dir protocol.Direction, kind protocol.Kind, p protocol.Packet) *protocol.Frame {
	t.Helper()
	id, ok := protocol.IDOf(dir, kind)
	require.True(t, ok)
	return &protocol.Frame{ID: id, Body: p.Encode()}
}

func clientboundCtx(sess *ClientSession, bc *BackendConn, kind protocol.Kind, p protocol.Packet) *PassContext {
	id, _ := protocol.IDOf(protocol.ClientBound, kind)
	lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, &protocol.Frame{ID: id, Body: p.Encode()})
	return &PassContext{Dir: protocol.ClientBound, Session: sess, Source: bc.ID, SourceConn: bc, Packet: lp}
}

func serverboundCtx(sess *ClientSession, kind protocol.Kind, p protocol.Packet) *PassContext {
	id, _ := protocol.IDOf(protocol.ServerBound, kind)
	lp := protocol.NewLazyPacket(protocol.ServerBound, protocol.StatePlay, &protocol.Frame{ID: id, Body: p.Encode()})
	return &PassContext{Dir: protocol.ServerBound, Session: sess, Packet: lp}
}

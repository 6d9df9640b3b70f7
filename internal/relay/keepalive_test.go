package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycraft/multimc/internal/protocol"
)

func TestBackendKeepAliveIsAnsweredAtSource(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, peer := newTestBackendConn(t, 0, 500)

	ctx := clientboundCtx(sess, bc, protocol.KindServerKeepAlive, &protocol.KeepAlive{ID: 0xDEAD})
	require.NoError(t, state.Pipeline.Run(ctx))

	assert.True(t, ctx.Drop, "backend keep-alive must never reach the client")

	frame, err := peer.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, protocol.KindClientKeepAlive, protocol.KindOf(protocol.ServerBound, frame.ID))

	lp := protocol.NewLazyPacket(protocol.ServerBound, protocol.StatePlay, frame)
	pk, err := lp.Packet()
	require.NoError(t, err)
	assert.Equal(t, int64(0xDEAD), pk.(*protocol.KeepAlive).ID, "reply must echo the backend's id")
}

func TestClientKeepAliveStampsAndDrops(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)

	before := sess.lastKeepAliveMillis()
	time.Sleep(2 * time.Millisecond)

	ctx := serverboundCtx(sess, protocol.KindClientKeepAlive, &protocol.KeepAlive{ID: 1})
	require.NoError(t, state.Pipeline.Run(ctx))

	assert.True(t, ctx.Drop, "client keep-alive is consumed by the proxy, not forwarded")
	assert.GreaterOrEqual(t, sess.lastKeepAliveMillis(), before)
}

func TestSupervisorKeepAlivePing(t *testing.T) {
	state := newTestState(t)
	sess, clientPeer := newTestSession(t, state)

	now := time.Now().UnixMilli()
	require.NoError(t, sess.sendServerKeepAlive(now))

	frame, err := clientPeer.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, protocol.KindServerKeepAlive, protocol.KindOf(protocol.ClientBound, frame.ID))

	lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
	pk, err := lp.Packet()
	require.NoError(t, err)
	assert.Equal(t, now, pk.(*protocol.KeepAlive).ID)
}

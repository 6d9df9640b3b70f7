package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycraft/multimc/internal/protocol"
)

func TestSwapDummyRebindsPlayerMapping(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)

	alpha, _ := newTestBackendConn(t, 0, 100)
	beta, _ := newTestBackendConn(t, 1, 200)

	playerProxyID := state.Tables.RegisterEntity(0, 100, 0)
	sess.mu.Lock()
	sess.active = alpha
	sess.dummies[1] = beta
	sess.mu.Unlock()

	require.NoError(t, sess.SwapDummy(1))

	assert.EqualValues(t, 1, sess.ActiveBackend())
	demoted, ok := sess.connFor(0)
	require.True(t, ok)
	assert.Same(t, alpha, demoted, "old active becomes a dummy")

	backend, eid, ok := state.Tables.MapEntityProxyToServer(playerProxyID)
	require.True(t, ok)
	assert.EqualValues(t, 1, backend, "player's proxy id now resolves to the new backend")
	assert.Equal(t, int32(200), eid, "and to the new backend's eid for this player")
}

func TestSwapDummyRoutesOwnEntityActionToNewBackend(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)

	alpha, _ := newTestBackendConn(t, 0, 100)
	beta, _ := newTestBackendConn(t, 1, 200)

	playerProxyID := state.Tables.RegisterEntity(0, 100, 0)
	sess.mu.Lock()
	sess.active = alpha
	sess.dummies[1] = beta
	sess.mu.Unlock()
	require.NoError(t, sess.SwapDummy(1))

	act := &protocol.EntityAction{EntityID: playerProxyID, Rest: []byte{0}}
	ctx := serverboundCtx(sess, protocol.KindEntityAction, act)
	require.NoError(t, state.Pipeline.Run(ctx))

	require.False(t, ctx.Drop)
	assert.True(t, ctx.Routed)
	assert.EqualValues(t, 1, ctx.DestBackend)
}

func TestSwapToUnknownBackendFails(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	require.Error(t, sess.SwapDummy(1), "no warm dummy to promote")
}

func TestCloseRemovesSessionFromState(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	state.AddPlayer(sess)

	_, ok := state.PlayerByName("Notch")
	require.True(t, ok)

	sess.Close()
	<-sess.Done()

	_, ok = state.PlayerByName("Notch")
	assert.False(t, ok)
	assert.False(t, sess.Alive())
}

func TestGarbageCollectReclaimsUnreferencedIDs(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	state.AddPlayer(sess)

	seen := state.Tables.RegisterEntity(0, 1, 0)
	sess.addKnownEntity(seen)
	orphan := state.Tables.RegisterEntity(0, 2, 0)

	sweepOrphanedEntities(state)

	_, _, ok := state.Tables.MapEntityProxyToServer(seen)
	assert.True(t, ok, "a referenced id survives the sweep")
	_, _, ok = state.Tables.MapEntityProxyToServer(orphan)
	assert.False(t, ok, "an unreferenced id is reclaimed")
}

func TestTagSyncForwardsOnlyFirst(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	alpha, _ := newTestBackendConn(t, 0, 100)
	beta, _ := newTestBackendConn(t, 1, 200)

	ctx := clientboundCtx(sess, alpha, protocol.KindTags, &protocol.Tags{Raw: []byte{1, 2}})
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.False(t, ctx.Drop, "first tag table forwards")

	ctx = clientboundCtx(sess, beta, protocol.KindTags, &protocol.Tags{Raw: []byte{3, 4}})
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.True(t, ctx.Drop, "later tag tables are suppressed")
}

func TestChatCommandInterceptsListAndPassesOtherChat(t *testing.T) {
	state := newTestState(t)
	sess, clientPeer := newTestSession(t, state)
	state.AddPlayer(sess)

	ctx := serverboundCtx(sess, protocol.KindClientChat, &protocol.Chat{ClientText: "/list"})
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.True(t, ctx.Drop, "/list is answered by the proxy")

	frame, err := clientPeer.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindServerChat, protocol.KindOf(protocol.ClientBound, frame.ID))

	ctx = serverboundCtx(sess, protocol.KindClientChat, &protocol.Chat{ClientText: "/tp 0 64 0"})
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.False(t, ctx.Drop, "unrecognized slash commands fall through to the backend")

	ctx = serverboundCtx(sess, protocol.KindClientChat, &protocol.Chat{ClientText: "hello"})
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.False(t, ctx.Drop, "plain chat falls through")
}

func TestStopRequiresOperator(t *testing.T) {
	state := newTestState(t)
	sess, clientPeer := newTestSession(t, state)

	ctx := serverboundCtx(sess, protocol.KindClientChat, &protocol.Chat{ClientText: "/stop"})
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.True(t, ctx.Drop)
	assert.True(t, state.Alive(), "a non-operator cannot stop the proxy")

	// drain the refusal message
	_, err := clientPeer.ReadFrame()
	require.NoError(t, err)
}

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycraft/multimc/internal/protocol"
	"github.com/relaycraft/multimc/internal/zone"
)

// Two backends send the same chunk; the client must see exactly one
// load and, after both unload, exactly one unload. Refcount trace:
// 0->1 forward, 1->2 drop, 2->1 drop, 1->0 forward.
func TestChunkDedupAcrossBackends(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	alpha, _ := newTestBackendConn(t, 0, 100)
	beta, _ := newTestBackendConn(t, 1, 200)

	c := zone.ChunkCoord{X: 0, Z: 0}

	assert.True(t, sess.chunkArrived(alpha, c, false), "first load forwards")
	assert.Equal(t, 1, sess.chunkRefcount(c))

	assert.False(t, sess.chunkArrived(beta, c, false), "duplicate load drops")
	assert.Equal(t, 2, sess.chunkRefcount(c))

	assert.False(t, sess.chunkUnloaded(alpha, c), "first unload drops while beta still holds it")
	assert.Equal(t, 1, sess.chunkRefcount(c))

	assert.True(t, sess.chunkUnloaded(beta, c), "last unload forwards")
	assert.Equal(t, 0, sess.chunkRefcount(c))
}

func TestChunkSubtypesForwardIndependently(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	alpha, _ := newTestBackendConn(t, 0, 100)
	beta, _ := newTestBackendConn(t, 1, 200)

	c := zone.ChunkCoord{X: 3, Z: -2}

	assert.True(t, sess.chunkArrived(alpha, c, false))
	assert.True(t, sess.chunkArrived(beta, c, true), "first update-light forwards even after chunk-data")
	assert.False(t, sess.chunkArrived(alpha, c, true), "second update-light drops")
	assert.Equal(t, 2, sess.chunkRefcount(c), "refcount counts backends, not subtypes")
}

func TestUnloadWithoutLoadIsDropped(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	alpha, _ := newTestBackendConn(t, 0, 100)

	assert.False(t, sess.chunkUnloaded(alpha, zone.ChunkCoord{X: 9, Z: 9}))
}

func TestChunkRefcountPassDropsDuplicates(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	alpha, _ := newTestBackendConn(t, 0, 100)
	beta, _ := newTestBackendConn(t, 1, 200)

	cd := &protocol.ChunkData{ChunkX: 5, ChunkZ: 5, Rest: []byte{1, 2, 3}}

	ctx := clientboundCtx(sess, alpha, protocol.KindChunkData, cd)
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.False(t, ctx.Drop, "first delivery forwards")

	ctx = clientboundCtx(sess, beta, protocol.KindChunkData, cd)
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.True(t, ctx.Drop, "second backend's copy drops")

	ul := &protocol.UnloadChunk{ChunkX: 5, ChunkZ: 5}
	ctx = clientboundCtx(sess, alpha, protocol.KindUnloadChunk, ul)
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.True(t, ctx.Drop, "unload drops while the other backend holds the chunk")

	ctx = clientboundCtx(sess, beta, protocol.KindUnloadChunk, ul)
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.False(t, ctx.Drop, "final unload forwards")
}

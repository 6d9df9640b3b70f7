package relay

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycraft/multimc/internal/protocol"
	"github.com/relaycraft/multimc/internal/store"
	"github.com/relaycraft/multimc/internal/zone"
)

func TestDummyKeepAliveAnsweredNotForwarded(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, peer := newTestBackendConn(t, 1, 200)

	frame := frameFor(t, protocol.ClientBound, protocol.KindServerKeepAlive, &protocol.KeepAlive{ID: 99})
	sess.handleDummyFrame(bc, frame)

	reply, err := peer.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, protocol.KindClientKeepAlive, protocol.KindOf(protocol.ServerBound, reply.ID))

	lp := protocol.NewLazyPacket(protocol.ServerBound, protocol.StatePlay, reply)
	pk, err := lp.Packet()
	require.NoError(t, err)
	assert.Equal(t, int64(99), pk.(*protocol.KeepAlive).ID)
}

func TestDummyForwardsFirstChunkOnly(t *testing.T) {
	state := newTestState(t)
	sess, clientPeer := newTestSession(t, state)
	active, _ := newTestBackendConn(t, 0, 100)
	dummy, _ := newTestBackendConn(t, 1, 200)

	// active backend delivered the chunk first
	require.True(t, sess.chunkArrived(active, zone.ChunkCoord{X: 4, Z: 4}, false))

	frame := frameFor(t, protocol.ClientBound, protocol.KindChunkData, &protocol.ChunkData{ChunkX: 4, ChunkZ: 4})
	sess.handleDummyFrame(dummy, frame)

	// a fresh chunk only the dummy's backend has goes through
	fresh := frameFor(t, protocol.ClientBound, protocol.KindChunkData, &protocol.ChunkData{ChunkX: 8, ChunkZ: 8})
	sess.handleDummyFrame(dummy, fresh)

	got, err := clientPeer.ReadFrame()
	require.NoError(t, err)
	lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, got)
	pk, err := lp.Packet()
	require.NoError(t, err)
	cd := pk.(*protocol.ChunkData)
	assert.Equal(t, int32(8), cd.ChunkX, "only the unseen chunk reached the client")
}

func TestDummyForwardsMappedEntityTraffic(t *testing.T) {
	state := newTestState(t)
	sess, clientPeer := newTestSession(t, state)
	dummy, _ := newTestBackendConn(t, 1, 200)

	spawn := &protocol.SpawnEntity{EntityID: 60, EntityType: protocol.EntityTypeHorse, ObjectUUID: uuid.New()}
	frame := frameFor(t, protocol.ClientBound, protocol.KindSpawnLivingEntity, spawn)
	sess.handleDummyFrame(dummy, frame)

	got, err := clientPeer.ReadFrame()
	require.NoError(t, err)
	lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, got)
	pk, err := lp.Packet()
	require.NoError(t, err)
	assert.Equal(t, int32(1), pk.(*protocol.SpawnEntity).EntityID, "dummy spawns reach the client remapped")
}

func TestDummyAbsorbsUnmappedMetadata(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	dummy, peer := newTestBackendConn(t, 1, 200)

	md := &protocol.EntityMetadata{EntityID: 12345}
	frame := frameFor(t, protocol.ClientBound, protocol.KindEntityMetadata, md)
	sess.handleDummyFrame(dummy, frame)

	// nothing written back to the dummy either
	peer.Close()
	assert.True(t, sess.Alive())
}

func TestDummyPositionDriftTriggersCorrection(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	dummy, peer := newTestBackendConn(t, 1, 200)

	sess.mu.Lock()
	sess.position = store.Position{X: 0, Y: 64, Z: 0}
	sess.mu.Unlock()

	pos := &protocol.PlayerPositionAndLook{X: 120, Y: 64, Z: -30, TeleportID: 5, HasTeleportID: true}
	frame := frameFor(t, protocol.ClientBound, protocol.KindPlayerPositionAndLook, pos)
	sess.handleDummyFrame(dummy, frame)

	confirm, err := peer.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, protocol.KindTeleportConfirm, protocol.KindOf(protocol.ServerBound, confirm.ID))

	correction, err := peer.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, protocol.KindClientPluginMessage, protocol.KindOf(protocol.ServerBound, correction.ID))

	lp := protocol.NewLazyPacket(protocol.ServerBound, protocol.StatePlay, correction)
	pk, err := lp.Packet()
	require.NoError(t, err)
	assert.Equal(t, positionSetChannel, pk.(*protocol.PluginMessage).Channel)
}

func TestDummyPositionWithinToleranceConfirmsOnly(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	dummy, peer := newTestBackendConn(t, 1, 200)

	sess.mu.Lock()
	sess.position = store.Position{X: 10, Y: 64, Z: 10}
	sess.mu.Unlock()

	pos := &protocol.PlayerPositionAndLook{X: 10.2, Y: 64, Z: 9.9, TeleportID: 6, HasTeleportID: true}
	frame := frameFor(t, protocol.ClientBound, protocol.KindPlayerPositionAndLook, pos)
	sess.handleDummyFrame(dummy, frame)

	confirm, err := peer.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindTeleportConfirm, protocol.KindOf(protocol.ServerBound, confirm.ID))
}

package relay

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycraft/multimc/internal/protocol"
)

func TestSpawnAllocatesProxyIDAndDestroyReleasesIt(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, _ := newTestBackendConn(t, 0, 100)

	spawn := &protocol.SpawnEntity{EntityID: 42, EntityType: protocol.EntityTypeHorse, ObjectUUID: uuid.New()}
	ctx := clientboundCtx(sess, bc, protocol.KindSpawnLivingEntity, spawn)
	require.NoError(t, state.Pipeline.Run(ctx))
	require.False(t, ctx.Drop)

	pk, err := ctx.Packet.Packet()
	require.NoError(t, err)
	got := pk.(*protocol.SpawnEntity)
	assert.Equal(t, int32(1), got.EntityID, "first proxy id is 1")

	entType, ok := state.Tables.EntityType(1)
	require.True(t, ok)
	assert.Equal(t, protocol.EntityTypeHorse, entType)

	destroy := &protocol.DestroyEntities{EntityIDs: []int32{42}}
	ctx = clientboundCtx(sess, bc, protocol.KindDestroyEntities, destroy)
	require.NoError(t, state.Pipeline.Run(ctx))
	require.False(t, ctx.Drop)

	pk, err = ctx.Packet.Packet()
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, pk.(*protocol.DestroyEntities).EntityIDs)

	_, _, ok = state.Tables.MapEntityProxyToServer(1)
	assert.False(t, ok, "mapping is gone after destroy")

	// a later spawn from a different backend eid can legally reuse id 1
	respawn := &protocol.SpawnEntity{EntityID: 99, EntityType: protocol.EntityTypeWolf}
	ctx = clientboundCtx(sess, bc, protocol.KindSpawnLivingEntity, respawn)
	require.NoError(t, state.Pipeline.Run(ctx))
	pk, err = ctx.Packet.Packet()
	require.NoError(t, err)
	assert.Equal(t, int32(1), pk.(*protocol.SpawnEntity).EntityID)
}

func TestSpawnPlayerReusesExistingMapping(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, _ := newTestBackendConn(t, 0, 100)

	existing := state.Tables.RegisterEntity(0, 100, 0)

	spawn := &protocol.SpawnEntity{EntityID: 100}
	ctx := clientboundCtx(sess, bc, protocol.KindSpawnPlayer, spawn)
	require.NoError(t, state.Pipeline.Run(ctx))

	pk, err := ctx.Packet.Packet()
	require.NoError(t, err)
	assert.Equal(t, existing, pk.(*protocol.SpawnEntity).EntityID)
}

func TestSecondaryReferenceKeepsOffsetConvention(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, _ := newTestBackendConn(t, 0, 100)

	shooter := state.Tables.RegisterEntity(0, 7, 0)

	arrow := &protocol.SpawnEntity{EntityID: 50, EntityType: protocol.EntityTypeArrow, Data: 7 + 1}
	ctx := clientboundCtx(sess, bc, protocol.KindSpawnEntity, arrow)
	require.NoError(t, state.Pipeline.Run(ctx))
	require.False(t, ctx.Drop)

	pk, err := ctx.Packet.Packet()
	require.NoError(t, err)
	assert.Equal(t, shooter+1, pk.(*protocol.SpawnEntity).Data, "data keeps the +1 offset in proxy space")
}

func TestSecondaryReferenceWithoutMappingDrops(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, _ := newTestBackendConn(t, 0, 100)

	arrow := &protocol.SpawnEntity{EntityID: 50, EntityType: protocol.EntityTypeArrow, Data: 999}
	ctx := clientboundCtx(sess, bc, protocol.KindSpawnEntity, arrow)
	require.NoError(t, state.Pipeline.Run(ctx))
	assert.True(t, ctx.Drop)
}

func TestServerboundActionRoutesToOwningBackend(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)

	// entity owned by backend 1, which is a dummy from this session's view
	proxyID := state.Tables.RegisterEntity(1, 555, 0)

	act := &protocol.EntityAction{EntityID: proxyID, Rest: []byte{0}}
	ctx := serverboundCtx(sess, protocol.KindEntityAction, act)
	require.NoError(t, state.Pipeline.Run(ctx))

	require.False(t, ctx.Drop)
	assert.True(t, ctx.Routed)
	assert.EqualValues(t, 1, ctx.DestBackend)

	pk, err := ctx.Packet.Packet()
	require.NoError(t, err)
	assert.Equal(t, int32(555), pk.(*protocol.EntityAction).EntityID)
}

func TestStaleServerboundReferenceIsDropped(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)

	interact := &protocol.InteractEntity{EntityID: 77, Rest: []byte{0}}
	ctx := serverboundCtx(sess, protocol.KindInteractEntity, interact)
	require.NoError(t, state.Pipeline.Run(ctx))

	assert.True(t, ctx.Drop, "reference to a destroyed entity vanishes silently")
	assert.False(t, ctx.Routed)
}

func TestMetadataEntityRefRemap(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, _ := newTestBackendConn(t, 0, 100)

	hook := state.Tables.RegisterEntity(0, 10, protocol.EntityTypeFishingBobber)
	target := state.Tables.RegisterEntity(0, 20, 0)

	// index 7 is the fishing-hook target on protocol 754
	value, err := protocol.RewriteMetadataEntityRef([]byte{20}, func(v int32) int32 { return v })
	require.NoError(t, err)
	md := &protocol.EntityMetadata{
		EntityID: 10,
		Entries:  []protocol.MetadataEntry{{Index: 7, Type: 1, Value: value}},
	}
	ctx := clientboundCtx(sess, bc, protocol.KindEntityMetadata, md)
	require.NoError(t, state.Pipeline.Run(ctx))
	require.False(t, ctx.Drop)

	pk, err := ctx.Packet.Packet()
	require.NoError(t, err)
	got := pk.(*protocol.EntityMetadata)
	assert.Equal(t, hook, got.EntityID)

	assert.Equal(t, byte(target), got.Entries[0].Value[0], "embedded target id is rewritten to proxy space")
}

func TestWellKnownModifierUUIDPassesThrough(t *testing.T) {
	state := newTestState(t)
	sess, _ := newTestSession(t, state)
	bc, _ := newTestBackendConn(t, 0, 100)

	proxyID := state.Tables.RegisterEntity(0, 30, 0)
	known := uuid.MustParse("662a6b8d-da3e-4c1c-8813-96ea6097278d")
	custom := uuid.New()

	props := &protocol.EntityProperties{
		EntityID: 30,
		Properties: []protocol.EntityProperty{{
			Key:   "generic.movement_speed",
			Value: 0.7,
			Modifiers: []protocol.PropertyModifier{
				{UUID: known, Amount: 0.3, Operation: 2},
				{UUID: custom, Amount: 0.1, Operation: 0},
			},
		}},
	}
	ctx := clientboundCtx(sess, bc, protocol.KindEntityProperties, props)
	require.NoError(t, state.Pipeline.Run(ctx))
	require.False(t, ctx.Drop)

	pk, err := ctx.Packet.Packet()
	require.NoError(t, err)
	got := pk.(*protocol.EntityProperties)
	assert.Equal(t, proxyID, got.EntityID)
	assert.Equal(t, known, got.Properties[0].Modifiers[0].UUID, "protocol-defined modifier uuid is untouched")
	assert.NotEqual(t, custom, got.Properties[0].Modifiers[1].UUID, "backend-issued modifier uuid is remapped")
}

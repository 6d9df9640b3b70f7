package mapping

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityRoundTrip(t *testing.T) {
	tb := New()
	proxyID := tb.MapEntityServerToProxy(BackendID(1), 42)

	backend, eid, ok := tb.MapEntityProxyToServer(proxyID)
	require.True(t, ok)
	assert.Equal(t, BackendID(1), backend)
	assert.Equal(t, int32(42), eid)
}

func TestEntityServerToProxyIsStable(t *testing.T) {
	tb := New()
	a := tb.MapEntityServerToProxy(BackendID(1), 42)
	b := tb.MapEntityServerToProxy(BackendID(1), 42)
	assert.Equal(t, a, b, "same backend pair must map to the same proxy id")
}

func TestEntityBijectivity(t *testing.T) {
	tb := New()
	a := tb.MapEntityServerToProxy(BackendID(1), 1)
	b := tb.MapEntityServerToProxy(BackendID(2), 1) // same backend-local eid, different backend
	assert.NotEqual(t, a, b, "ids from different backends must not collide")
}

func TestSpawnAndDestroyReusesID(t *testing.T) {
	tb := New()
	proxyID := tb.RegisterEntity(BackendID(0), 42, 100 /* e.g. horse */)
	assert.Equal(t, int32(1), proxyID)

	entType, ok := tb.EntityType(proxyID)
	require.True(t, ok)
	assert.Equal(t, int32(100), entType)

	removed, ok := tb.RemoveEntityByServer(BackendID(0), 42)
	require.True(t, ok)
	assert.Equal(t, proxyID, removed)

	_, ok = tb.EntityType(proxyID)
	assert.False(t, ok, "type cache entry must be released with the mapping")

	// a brand new spawn can legally reuse the freed id
	reused := tb.RegisterEntity(BackendID(0), 99, 0)
	assert.Equal(t, proxyID, reused)
}

func TestMissingMappingIsAMiss(t *testing.T) {
	tb := New()
	_, _, ok := tb.MapEntityProxyToServer(77)
	assert.False(t, ok)
}

func TestUUIDRoundTrip(t *testing.T) {
	tb := New()
	backendUUID := uuid.New()
	clientUUID := tb.MapUUIDServerToClient(BackendID(1), backendUUID)

	backend, gotBackendUUID, ok := tb.MapUUIDClientToServer(clientUUID)
	require.True(t, ok)
	assert.Equal(t, BackendID(1), backend)
	assert.Equal(t, backendUUID, gotBackendUUID)
}

func TestDeriveClientUUIDIsDeterministic(t *testing.T) {
	a := DeriveClientUUID("Notch")
	b := DeriveClientUUID("Notch")
	assert.Equal(t, a, b)

	c := DeriveClientUUID("Dinnerbone")
	assert.NotEqual(t, a, c)
}

func TestRemoveUUID(t *testing.T) {
	tb := New()
	clientUUID := DeriveClientUUID("Notch")
	tb.RegisterClientUUID(clientUUID, BackendID(0), uuid.New())

	assert.True(t, tb.RemoveUUID(clientUUID))
	assert.False(t, tb.RemoveUUID(clientUUID), "second remove is a no-op, not an error")
}

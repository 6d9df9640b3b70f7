// Package mapping holds the proxy-wide bidirectional identifier tables:
// entity ids, player/object uuids, and the entity-type cache the
// identifier-rewriting pass needs to interpret mid-life packets. Each
// bijection is two plain maps kept in sync by the table's own methods,
// behind one mutex whose critical section is a single packet's rewrite.
package mapping

import (
	"sync"

	"github.com/google/uuid"

	"github.com/relaycraft/multimc/internal/ids"
)

// BackendID names one backend simulation server.
type BackendID uint64

// EntityKey is a backend's own notion of an entity id.
type EntityKey struct {
	Backend BackendID
	EID     int32
}

// UUIDKey is a backend's own notion of a uuid (object or player).
type UUIDKey struct {
	Backend BackendID
	UUID    uuid.UUID
}

// EntityData is cached alongside an entity mapping; several mid-life
// packets (entity-metadata) need to know the entity's type to know which
// metadata indices carry embedded references.
type EntityData struct {
	EntityType int32
}

// Tables is the proxy-wide mapping state. One mutex guards all three
// maps — the critical section for a single packet's rewrite is short
// enough that splitting the entity and uuid locks is not worth the
// complexity unless contention is ever observed.
type Tables struct {
	mu sync.Mutex

	eidGen *ids.Generator

	eidByProxy   map[int32]EntityKey
	eidByBackend map[EntityKey]int32
	entityData   map[int32]EntityData

	uuidByClient   map[uuid.UUID]UUIDKey
	uuidByBackend  map[UUIDKey]uuid.UUID
}

// New returns an empty Tables.
func New() *Tables {
	return &Tables{
		eidGen:        ids.NewGenerator(),
		eidByProxy:    make(map[int32]EntityKey),
		eidByBackend:  make(map[EntityKey]int32),
		entityData:    make(map[int32]EntityData),
		uuidByClient:  make(map[uuid.UUID]UUIDKey),
		uuidByBackend: make(map[UUIDKey]uuid.UUID),
	}
}

// MapEntityServerToProxy returns the existing proxy id for (backend, eid)
// or allocates a new one. It does not record entity type; callers that
// are handling a spawn packet should follow up with SetEntityType.
func (t *Tables) MapEntityServerToProxy(backend BackendID, eid int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mapEntityServerToProxyLocked(backend, eid)
}

func (t *Tables) mapEntityServerToProxyLocked(backend BackendID, eid int32) int32 {
	key := EntityKey{Backend: backend, EID: eid}
	if proxyID, ok := t.eidByBackend[key]; ok {
		return proxyID
	}
	proxyID := t.eidGen.Take()
	t.eidByBackend[key] = proxyID
	t.eidByProxy[proxyID] = key
	return proxyID
}

// RegisterEntity returns the proxy id already mapped to (backend, eid),
// allocating one if there is none, and records the entity type. Because
// an existing row is reused, a spawn-player the backend emits twice for
// the same eid keeps a single mapping.
func (t *Tables) RegisterEntity(backend BackendID, eid int32, entityType int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	proxyID := t.mapEntityServerToProxyLocked(backend, eid)
	t.entityData[proxyID] = EntityData{EntityType: entityType}
	return proxyID
}

// LookupEntityByServer is a pure, non-allocating lookup of the proxy id
// for (backend, eid), used by clientbound passes that need the mapping
// a spawn packet already created without risking allocating a new one
// for a backend eid the proxy never spawned (a bug on the backend's
// side, not something to paper over).
func (t *Tables) LookupEntityByServer(backend BackendID, eid int32) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	proxyID, ok := t.eidByBackend[EntityKey{Backend: backend, EID: eid}]
	return proxyID, ok
}

// MapEntityProxyToServer is a pure lookup: a miss means the proxy has no
// mapping for that id (a stale client reference), and callers should
// drop the packet rather than synthesizing one.
func (t *Tables) MapEntityProxyToServer(proxyID int32) (BackendID, int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.eidByProxy[proxyID]
	if !ok {
		return 0, 0, false
	}
	return key.Backend, key.EID, true
}

// EntityType returns the cached entity type for a proxy id, if known.
func (t *Tables) EntityType(proxyID int32) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.entityData[proxyID]
	if !ok {
		return 0, false
	}
	return data.EntityType, true
}

// RemoveEntityByServer removes the mapping for (backend, eid), releasing
// the proxy id back to the generator and dropping its type-cache entry.
// Returns the removed proxy id and whether anything was removed.
func (t *Tables) RemoveEntityByServer(backend BackendID, eid int32) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := EntityKey{Backend: backend, EID: eid}
	proxyID, ok := t.eidByBackend[key]
	if !ok {
		return 0, false
	}
	delete(t.eidByBackend, key)
	delete(t.eidByProxy, proxyID)
	delete(t.entityData, proxyID)
	t.eidGen.GiveBack(proxyID)
	return proxyID, true
}

// RemoveEntityByProxy is the same operation keyed by proxy id, used by the
// garbage collector which only has proxy ids to work from.
func (t *Tables) RemoveEntityByProxy(proxyID int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.eidByProxy[proxyID]
	if !ok {
		return false
	}
	delete(t.eidByBackend, key)
	delete(t.eidByProxy, proxyID)
	delete(t.entityData, proxyID)
	t.eidGen.GiveBack(proxyID)
	return true
}

// RebindEntity repoints an existing proxy id at a different backend pair
// without releasing it. Swapping the active backend rebinds the player's
// own row this way: the client keeps seeing one stable eid for itself
// while the backend half of the mapping changes underneath.
func (t *Tables) RebindEntity(proxyID int32, backend BackendID, eid int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldKey, ok := t.eidByProxy[proxyID]
	if !ok {
		return false
	}
	newKey := EntityKey{Backend: backend, EID: eid}
	if other, taken := t.eidByBackend[newKey]; taken && other != proxyID {
		// the target pair already has its own proxy id; evict it so the
		// bijection holds (the evicted id goes back to the generator)
		delete(t.eidByProxy, other)
		delete(t.entityData, other)
		t.eidGen.GiveBack(other)
	}
	delete(t.eidByBackend, oldKey)
	t.eidByBackend[newKey] = proxyID
	t.eidByProxy[proxyID] = newKey
	return true
}

// LiveProxyEntityIDs returns a snapshot of every proxy entity id currently
// mapped, for the garbage collector's set-difference against
// known_entities.
func (t *Tables) LiveProxyEntityIDs() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int32, 0, len(t.eidByProxy))
	for id := range t.eidByProxy {
		out = append(out, id)
	}
	return out
}

// MapUUIDServerToClient returns the existing client uuid for (backend,
// backend uuid) or allocates (registers) a new one if this is the first
// observation.
func (t *Tables) MapUUIDServerToClient(backend BackendID, backendUUID uuid.UUID) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := UUIDKey{Backend: backend, UUID: backendUUID}
	if clientUUID, ok := t.uuidByBackend[key]; ok {
		return clientUUID
	}
	clientUUID := uuid.NewMD5(uuid.Nil, []byte(backendUUID.String()))
	t.uuidByBackend[key] = clientUUID
	t.uuidByClient[clientUUID] = key
	return clientUUID
}

// RegisterClientUUID seeds a known client<->backend uuid pair directly,
// used at login when the client uuid is derived deterministically from
// the player name rather than observed from a backend.
func (t *Tables) RegisterClientUUID(clientUUID uuid.UUID, backend BackendID, backendUUID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := UUIDKey{Backend: backend, UUID: backendUUID}
	t.uuidByBackend[key] = clientUUID
	t.uuidByClient[clientUUID] = key
}

// MapUUIDClientToServer is a pure lookup.
func (t *Tables) MapUUIDClientToServer(clientUUID uuid.UUID) (BackendID, uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.uuidByClient[clientUUID]
	if !ok {
		return 0, uuid.Nil, false
	}
	return key.Backend, key.UUID, true
}

// RemoveUUID drops the mapping for a client uuid (remove-player-info, or
// the garbage collector).
func (t *Tables) RemoveUUID(clientUUID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.uuidByClient[clientUUID]
	if !ok {
		return false
	}
	delete(t.uuidByClient, clientUUID)
	delete(t.uuidByBackend, key)
	return true
}

// DeriveClientUUID computes the client-visible uuid for a player name,
// the offline-mode derivation: an MD5-based v3-style uuid of the
// prefixed player name.
func DeriveClientUUID(name string) uuid.UUID {
	return uuid.NewMD5(uuid.Nil, []byte("OfflinePlayer:"+name))
}

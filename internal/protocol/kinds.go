package protocol

// Direction is where a packet was heading by default: toward the
// client or toward a backend.
type Direction int

const (
	ClientBound Direction = iota
	ServerBound
)

func (d Direction) String() string {
	if d == ClientBound {
		return "clientbound"
	}
	return "serverbound"
}

// Kind identifies a packet's semantic meaning within one direction. The
// numeric frame id (Frame.ID) is only meaningful together with a
// direction and a protocol State; Kind is what the relay passes actually
// switch on.
type Kind int32

const (
	KindUnknown Kind = iota

	// login / handshake (never seen by passes; used by the backend login
	// dialog and the upstream login handler)
	KindHandshake
	KindLoginStart
	KindLoginSuccess
	KindSetCompression
	KindLoginDisconnect
	KindEncryptionRequest

	// play, clientbound
	KindJoinGame
	KindSpawnEntity
	KindSpawnLivingEntity
	KindSpawnPlayer
	KindSpawnPainting
	KindSpawnExperienceOrb
	KindDestroyEntities
	KindEntityMetadata
	KindEntityProperties
	KindPlayerInfo
	KindServerKeepAlive
	KindChunkData
	KindUpdateLight
	KindUnloadChunk
	KindPlayerPositionAndLook
	KindServerPluginMessage
	KindTags
	KindServerChat
	KindKick
	KindRespawn

	// play, serverbound
	KindClientSettings
	KindTeleportConfirm
	KindClientKeepAlive
	KindClientChat
	KindInteractEntity
	KindEntityAction
	KindQueryEntityNBT
	KindUpdateCommandBlockMinecart
	KindSpectate
	KindHeldItemSlot
	KindClientPluginMessage
	KindPlayerPosition
	KindClientStatus
)

// clientBoundIDs and serverBoundIDs assign a stable wire id to each Kind,
// per direction. What matters is that both ends of the codec agree on
// the numbers, which a single shared table guarantees.
var clientBoundIDs = buildIDTable(
	KindJoinGame, KindSpawnEntity, KindSpawnLivingEntity, KindSpawnPlayer,
	KindSpawnPainting, KindSpawnExperienceOrb, KindDestroyEntities,
	KindEntityMetadata, KindEntityProperties, KindPlayerInfo,
	KindServerKeepAlive, KindChunkData, KindUpdateLight, KindUnloadChunk,
	KindPlayerPositionAndLook, KindServerPluginMessage, KindTags,
	KindServerChat, KindKick, KindRespawn, KindLoginSuccess,
	KindSetCompression, KindLoginDisconnect, KindEncryptionRequest,
)

var serverBoundIDs = buildIDTable(
	KindHandshake, KindLoginStart, KindClientSettings, KindTeleportConfirm,
	KindClientKeepAlive, KindClientChat, KindInteractEntity,
	KindEntityAction, KindQueryEntityNBT, KindUpdateCommandBlockMinecart,
	KindSpectate, KindHeldItemSlot, KindClientPluginMessage,
	KindPlayerPosition, KindClientStatus,
)

func buildIDTable(kinds ...Kind) map[int32]Kind {
	t := make(map[int32]Kind, len(kinds))
	for i, k := range kinds {
		t[int32(i)] = k
	}
	return t
}

func reverseIDTable(t map[int32]Kind) map[Kind]int32 {
	r := make(map[Kind]int32, len(t))
	for id, k := range t {
		r[k] = id
	}
	return r
}

var clientBoundKindIDs = reverseIDTable(clientBoundIDs)
var serverBoundKindIDs = reverseIDTable(serverBoundIDs)

// KindOf resolves the semantic Kind of a frame in a given direction.
// Unknown ids (e.g. from a newer backend variant) resolve to KindUnknown;
// the identifier-rewriting pass treats that the same as "nothing to do".
func KindOf(dir Direction, id int32) Kind {
	table := clientBoundIDs
	if dir == ServerBound {
		table = serverBoundIDs
	}
	if k, ok := table[id]; ok {
		return k
	}
	return KindUnknown
}

// IDOf resolves the wire id for a Kind in a given direction. Used when
// synthesizing a packet (e.g. the keep-alive pass's synthetic replies).
func IDOf(dir Direction, k Kind) (int32, bool) {
	table := clientBoundKindIDs
	if dir == ServerBound {
		table = serverBoundKindIDs
	}
	id, ok := table[k]
	return id, ok
}

// IsSpawnClass reports whether a Kind is one of the spawn-class kinds
// that allocate or reuse an entity mapping.
func IsSpawnClass(k Kind) bool {
	switch k {
	case KindSpawnEntity, KindSpawnLivingEntity, KindSpawnPlayer,
		KindSpawnPainting, KindSpawnExperienceOrb:
		return true
	default:
		return false
	}
}

// IsEntityKind reports whether a clientbound Kind carries entity ids or
// uuids the identifier-rewriting pass knows how to remap. The dummy
// watcher forwards only these (after remapping succeeds) — everything
// else a dummy backend sends is absorbed.
func IsEntityKind(k Kind) bool {
	if IsSpawnClass(k) {
		return true
	}
	switch k {
	case KindDestroyEntities, KindEntityMetadata, KindEntityProperties, KindPlayerInfo:
		return true
	default:
		return false
	}
}

// secondaryRefEntityTypes is the subset of spawn-entity "data" field entity
// types whose data field is a +1-offset secondary entity reference:
// arrows, fireballs, wither skulls, dragon fireballs, fishing bobbers.
var secondaryRefEntityTypes = map[int32]bool{
	EntityTypeArrow:          true,
	EntityTypeFireball:       true,
	EntityTypeWitherSkull:    true,
	EntityTypeDragonFireball: true,
	EntityTypeFishingBobber:  true,
}

// HasSecondaryRef reports whether a spawn-entity packet's "data" field
// should be interpreted as a secondary entity reference for this entity
// type.
func HasSecondaryRef(entityType int32) bool {
	return secondaryRefEntityTypes[entityType]
}

// Entity type ids used by the secondary-reference and metadata-index
// tables. Concrete small integers, internal to this proxy, chosen the
// same way as the wire ids in clientBoundIDs/serverBoundIDs above: only
// agreement between both ends of the codec matters.
const (
	EntityTypeArrow          int32 = 1
	EntityTypeFireball       int32 = 2
	EntityTypeWitherSkull    int32 = 3
	EntityTypeDragonFireball int32 = 4
	EntityTypeFishingBobber  int32 = 5

	EntityTypeHorse    int32 = 20
	EntityTypeLlama    int32 = 21
	EntityTypeMule     int32 = 22
	EntityTypeFox      int32 = 23
	EntityTypeCat      int32 = 24
	EntityTypeWolf     int32 = 25
	EntityTypeParrot   int32 = 26
	EntityTypeFirework int32 = 27
	EntityTypeGuardian int32 = 28
	EntityTypeWither   int32 = 29
)

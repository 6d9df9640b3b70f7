package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Entity-metadata value types this proxy understands well enough to
// measure their encoded width without a full NBT/slot decoder. Keeping
// the type space closed and proxy-specific (rather than chasing every
// value type a real client implementation would need) is safe because
// the relay only needs enough structure to find entry boundaries and
// to special-case the few indices the version table below names —
// opaque types round-trip through their raw bytes either way.
const (
	metaByte     int32 = 0
	metaVarInt   int32 = 1
	metaFloat    int32 = 2
	metaString   int32 = 3
	metaChat     int32 = 4
	metaBoolean  int32 = 5
	metaRotation int32 = 6 // 3 floats
	metaPosition int32 = 7 // i64
	metaOptUUID  int32 = 8 // bool presence + 16 raw bytes if present
)

// metadataValueWidth consumes one metadata value of the given type from
// r and returns its re-encoded bytes, so EntityMetadata.decode can store
// each entry generically without a value-specific struct field.
func metadataValueWidth(typ int32, r *reader) ([]byte, error) {
	w := &writer{}
	switch typ {
	case metaByte:
		v, err := r.u8()
		if err != nil {
			return nil, err
		}
		w.u8(v)
	case metaVarInt:
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		w.varint(v)
	case metaFloat:
		v, err := r.f32()
		if err != nil {
			return nil, err
		}
		w.f32(v)
	case metaString, metaChat:
		v, err := r.str()
		if err != nil {
			return nil, err
		}
		w.str(v)
	case metaBoolean:
		v, err := r.bool()
		if err != nil {
			return nil, err
		}
		w.boolean(v)
	case metaRotation:
		for i := 0; i < 3; i++ {
			v, err := r.f32()
			if err != nil {
				return nil, err
			}
			w.f32(v)
		}
	case metaPosition:
		v, err := r.i64()
		if err != nil {
			return nil, err
		}
		w.i64(v)
	case metaOptUUID:
		present, err := r.bool()
		if err != nil {
			return nil, err
		}
		w.boolean(present)
		if present {
			id, err := r.uuid()
			if err != nil {
				return nil, err
			}
			w.uuidBytes(id)
		}
	default:
		return nil, fmt.Errorf("protocol: unknown metadata value type %d", typ)
	}
	return w.bytes(), nil
}

// metadataRef describes one metadata index that embeds a reference to
// another entity or a uuid, for a given protocol version and entity
// type. The indices live in a single table keyed by (version,
// entity_type) because they shift across versions (the fireworks
// attacker index moves from 8 to 9, wither targets from 15/16/17 to
// 16/17/18) and scattering per-version branches through the rewrite
// code is how off-by-one bugs get in.
type metadataRef struct {
	Index   uint8
	Kind    metadataRefKind
	ByIndex int // for refs that come in groups (wither targets, fox trusted), 0-based position within the group
}

type metadataRefKind int

const (
	refEntityID metadataRefKind = iota // raw eid (varint), needs proxy<->backend id rewrite
	refUUID                            // optional uuid, needs client<->backend uuid rewrite
)

// metadataRefTable is keyed by protocol version, then entity type. Only
// versions with a documented shift are listed; a version not present
// falls back to the nearest lower version with an entry, matching how
// the real protocol's metadata indices are stable across most version
// bumps and only move for specific entities.
var metadataRefTable = map[int32]map[int32][]metadataRef{
	754: { // index layout of the older supported version
		EntityTypeFirework:      {{Index: 8, Kind: refEntityID}},
		EntityTypeFishingBobber: {{Index: 7, Kind: refEntityID}},
		EntityTypeWither: {
			{Index: 15, Kind: refEntityID, ByIndex: 0},
			{Index: 16, Kind: refEntityID, ByIndex: 1},
			{Index: 17, Kind: refEntityID, ByIndex: 2},
		},
		EntityTypeGuardian: {{Index: 16, Kind: refEntityID}},
		EntityTypeHorse:    {{Index: 17, Kind: refUUID}},
		EntityTypeLlama:    {{Index: 17, Kind: refUUID}},
		EntityTypeMule:     {{Index: 17, Kind: refUUID}},
		EntityTypeCat:      {{Index: 17, Kind: refUUID}},
		EntityTypeWolf:     {{Index: 17, Kind: refUUID}},
		EntityTypeParrot:   {{Index: 17, Kind: refUUID}},
		EntityTypeFox: {
			{Index: 18, Kind: refUUID, ByIndex: 0},
			{Index: 19, Kind: refUUID, ByIndex: 1},
		},
	},
	755: { // the newer version bumped every one of the above by one
		EntityTypeFirework:      {{Index: 9, Kind: refEntityID}},
		EntityTypeFishingBobber: {{Index: 8, Kind: refEntityID}},
		EntityTypeWither: {
			{Index: 16, Kind: refEntityID, ByIndex: 0},
			{Index: 17, Kind: refEntityID, ByIndex: 1},
			{Index: 18, Kind: refEntityID, ByIndex: 2},
		},
		EntityTypeGuardian: {{Index: 17, Kind: refEntityID}},
		EntityTypeHorse:    {{Index: 18, Kind: refUUID}},
		EntityTypeLlama:    {{Index: 18, Kind: refUUID}},
		EntityTypeMule:     {{Index: 18, Kind: refUUID}},
		EntityTypeCat:      {{Index: 18, Kind: refUUID}},
		EntityTypeWolf:     {{Index: 18, Kind: refUUID}},
		EntityTypeParrot:   {{Index: 18, Kind: refUUID}},
		EntityTypeFox: {
			{Index: 19, Kind: refUUID, ByIndex: 0},
			{Index: 20, Kind: refUUID, ByIndex: 1},
		},
	},
}

// metadataRefsFor resolves the embedded-reference list for one
// (protocol version, entity type) pair, falling back to the nearest
// documented version at or below the requested one.
func metadataRefsFor(version, entityType int32) []metadataRef {
	best := int32(-1)
	for v := range metadataRefTable {
		if v <= version && v > best {
			best = v
		}
	}
	if best < 0 {
		return nil
	}
	return metadataRefTable[best][entityType]
}

// metadataRefFor returns the single ref entry at a given Index, if any,
// used by the identifier-rewriting pass which walks an EntityMetadata's
// Entries and checks each Index against the entity's type.
func metadataRefFor(version, entityType int32, index uint8) (metadataRef, bool) {
	for _, ref := range metadataRefsFor(version, entityType) {
		if ref.Index == index {
			return ref, true
		}
	}
	return metadataRef{}, false
}

// RefKind mirrors metadataRefKind for exported use by internal/relay.
type RefKind = metadataRefKind

const (
	RefEntityID = refEntityID
	RefUUID     = refUUID
)

// MetadataRefFor is the exported form of metadataRefFor, used by the
// identifier-rewriting pass to decide whether a given metadata index on
// a given entity type needs its embedded reference remapped.
func MetadataRefFor(version, entityType int32, index uint8) (kind RefKind, byIndex int, ok bool) {
	ref, found := metadataRefFor(version, entityType, index)
	if !found {
		return 0, 0, false
	}
	return ref.Kind, ref.ByIndex, true
}

// RewriteMetadataEntityRef decodes a metaVarInt-encoded metadata value as
// an entity id, passes it through rewrite, and re-encodes it. Used by
// the identifier-rewriting pass on metadata indices MetadataRefFor marks
// RefEntityID.
func RewriteMetadataEntityRef(value []byte, rewrite func(int32) int32) ([]byte, error) {
	r := newReader(value)
	id, err := r.varint()
	if err != nil {
		return nil, err
	}
	w := &writer{}
	w.varint(rewrite(id))
	return w.bytes(), nil
}

// RewriteMetadataUUIDRef decodes a metaOptUUID-encoded metadata value,
// passes a present uuid through rewrite, and re-encodes it. Used by the
// identifier-rewriting pass on metadata indices MetadataRefFor marks
// RefUUID.
func RewriteMetadataUUIDRef(value []byte, rewrite func(uuid.UUID) uuid.UUID) ([]byte, error) {
	r := newReader(value)
	present, err := r.bool()
	if err != nil {
		return nil, err
	}
	w := &writer{}
	w.boolean(present)
	if present {
		id, err := r.uuid()
		if err != nil {
			return nil, err
		}
		w.uuidBytes(rewrite(id))
	}
	return w.bytes(), nil
}

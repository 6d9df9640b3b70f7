package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// JoinGame is the clientbound packet that starts the play state. The
// proxy relays this once per client session from the first backend's
// own JoinGame, substituting the proxy's own eid for the player.
type JoinGame struct {
	EntityID   int32
	Gamemode   uint8
	Dimension  int32
	MaxPlayers uint8
	LevelType  string
	ViewDist   int32
}

func (p *JoinGame) Encode() []byte {
	w := &writer{}
	w.i32(p.EntityID)
	w.u8(p.Gamemode)
	w.i32(p.Dimension)
	w.u8(p.MaxPlayers)
	w.str(p.LevelType)
	w.varint(p.ViewDist)
	return w.bytes()
}

func (p *JoinGame) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.i32(); err != nil {
		return err
	}
	g, err := r.u8()
	if err != nil {
		return err
	}
	p.Gamemode = g
	if p.Dimension, err = r.i32(); err != nil {
		return err
	}
	mp, err := r.u8()
	if err != nil {
		return err
	}
	p.MaxPlayers = mp
	if p.LevelType, err = r.str(); err != nil {
		return err
	}
	p.ViewDist, err = r.varint()
	return err
}

// SpawnEntity unifies the spawn-entity/spawn-living-entity/spawn-player/
// spawn-painting/spawn-experience-orb family. EntityID is
// always a proxy id by the time a pass is done with it; Data carries the
// raw "data" field whose meaning (secondary entity ref vs opaque int)
// depends on EntityType (see HasSecondaryRef in kinds.go).
type SpawnEntity struct {
	EntityID   int32
	ObjectUUID uuid.UUID
	EntityType int32
	X, Y, Z    float64
	Pitch, Yaw int8
	Data       int32
	VelX, VelY, VelZ int16
}

func (p *SpawnEntity) Encode() []byte {
	w := &writer{}
	w.varint(p.EntityID)
	w.uuidBytes(p.ObjectUUID)
	w.varint(p.EntityType)
	w.f64(p.X)
	w.f64(p.Y)
	w.f64(p.Z)
	w.i8(p.Pitch)
	w.i8(p.Yaw)
	w.i32(p.Data)
	w.i16(p.VelX)
	w.i16(p.VelY)
	w.i16(p.VelZ)
	return w.bytes()
}

func (p *SpawnEntity) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.varint(); err != nil {
		return err
	}
	if p.ObjectUUID, err = r.uuid(); err != nil {
		return err
	}
	if p.EntityType, err = r.varint(); err != nil {
		return err
	}
	if p.X, err = r.f64(); err != nil {
		return err
	}
	if p.Y, err = r.f64(); err != nil {
		return err
	}
	if p.Z, err = r.f64(); err != nil {
		return err
	}
	if p.Pitch, err = r.i8(); err != nil {
		return err
	}
	if p.Yaw, err = r.i8(); err != nil {
		return err
	}
	if p.Data, err = r.i32(); err != nil {
		return err
	}
	if p.VelX, err = r.i16(); err != nil {
		return err
	}
	if p.VelY, err = r.i16(); err != nil {
		return err
	}
	p.VelZ, err = r.i16()
	return err
}

// DestroyEntities is the clientbound packet that frees entity ids.
type DestroyEntities struct {
	EntityIDs []int32
}

func (p *DestroyEntities) Encode() []byte {
	w := &writer{}
	w.varint(int32(len(p.EntityIDs)))
	for _, id := range p.EntityIDs {
		w.varint(id)
	}
	return w.bytes()
}

func (p *DestroyEntities) decode(body []byte) error {
	r := newReader(body)
	n, err := r.varint()
	if err != nil {
		return err
	}
	p.EntityIDs = make([]int32, n)
	for i := range p.EntityIDs {
		if p.EntityIDs[i], err = r.varint(); err != nil {
			return err
		}
	}
	return nil
}

// MetadataEntry is one (index, type, raw value) triple of an
// entity-metadata packet. Value is kept as the raw encoded bytes for
// every index except the ones the version-index table in metadata.go
// marks as carrying an embedded entity/uuid reference — those are
// decoded specially by the identifier-rewriting pass, which knows the
// entity's type and protocol version.
type MetadataEntry struct {
	Index uint8
	Type  int32
	Value []byte
}

// EntityMetadata is the clientbound packet carrying a variable-length
// run of typed metadata entries, terminated by index 0xff.
type EntityMetadata struct {
	EntityID int32
	Entries  []MetadataEntry
}

func (p *EntityMetadata) Encode() []byte {
	w := &writer{}
	w.varint(p.EntityID)
	for _, e := range p.Entries {
		w.u8(e.Index)
		w.varint(e.Type)
		w.raw(e.Value)
	}
	w.u8(0xff)
	return w.bytes()
}

// decode splits the stream into entries up to the 0xff terminator,
// using metadataValueWidth to find where each entry's value ends. Values
// are kept as raw bytes; the identifier-rewriting pass decides, from the
// (version, entity type) table, which of them are entity references.
func (p *EntityMetadata) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.varint(); err != nil {
		return err
	}
	for {
		idx, err := r.u8()
		if err != nil {
			return err
		}
		if idx == 0xff {
			return nil
		}
		typ, err := r.varint()
		if err != nil {
			return err
		}
		width, err := metadataValueWidth(typ, r)
		if err != nil {
			return err
		}
		p.Entries = append(p.Entries, MetadataEntry{Index: idx, Type: typ, Value: width})
	}
}

// PlayerInfo adds/removes/updates tab-list entries. Only the Add action
// is rewritten in detail (client uuid substitution); the proxy forwards
// other actions with just the uuid remapped.
type PlayerInfo struct {
	Action  int32
	Players []PlayerInfoEntry
}

type PlayerInfoEntry struct {
	UUID     uuid.UUID
	Name     string
	Gamemode int32
	Ping     int32
	Raw      []byte // remaining action-specific fields (properties, display name), passed through
}

func (p *PlayerInfo) Encode() []byte {
	w := &writer{}
	w.varint(p.Action)
	w.varint(int32(len(p.Players)))
	for _, e := range p.Players {
		w.uuidBytes(e.UUID)
		if p.Action == 0 {
			w.str(e.Name)
		}
		w.raw(e.Raw)
	}
	return w.bytes()
}

func (p *PlayerInfo) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.Action, err = r.varint(); err != nil {
		return err
	}
	n, err := r.varint()
	if err != nil {
		return err
	}
	p.Players = make([]PlayerInfoEntry, n)
	for i := range p.Players {
		e := &p.Players[i]
		if e.UUID, err = r.uuid(); err != nil {
			return err
		}
		if p.Action == 0 {
			if e.Name, err = r.str(); err != nil {
				return err
			}
		}
	}
	// remaining action-specific bytes are opaque to this proxy; attach
	// them to the last entry so a single pass-through Encode reproduces
	// the frame byte for byte when nothing was rewritten.
	if len(p.Players) > 0 {
		p.Players[len(p.Players)-1].Raw = r.rest()
	}
	return nil
}

// EntityProperties carries attribute values plus, per attribute,
// modifier entries each keyed by a uuid the original backend assigned.
// The identifier-rewriting pass leaves well-known modifier uuids as they
// are and replaces every other one with a fresh uuid, cached per
// (backend, uuid), so two backends' modifiers never collide client-side.
type EntityProperties struct {
	EntityID   int32
	Properties []EntityProperty
}

type EntityProperty struct {
	Key       string
	Value     float64
	Modifiers []PropertyModifier
}

type PropertyModifier struct {
	UUID      uuid.UUID
	Amount    float64
	Operation int8
}

func (p *EntityProperties) Encode() []byte {
	w := &writer{}
	w.varint(p.EntityID)
	w.i32(int32(len(p.Properties)))
	for _, prop := range p.Properties {
		w.str(prop.Key)
		w.f64(prop.Value)
		w.varint(int32(len(prop.Modifiers)))
		for _, m := range prop.Modifiers {
			w.uuidBytes(m.UUID)
			w.f64(m.Amount)
			w.i8(m.Operation)
		}
	}
	return w.bytes()
}

func (p *EntityProperties) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.varint(); err != nil {
		return err
	}
	n, err := r.i32()
	if err != nil {
		return err
	}
	p.Properties = make([]EntityProperty, n)
	for i := range p.Properties {
		prop := &p.Properties[i]
		if prop.Key, err = r.str(); err != nil {
			return err
		}
		if prop.Value, err = r.f64(); err != nil {
			return err
		}
		mn, err := r.varint()
		if err != nil {
			return err
		}
		prop.Modifiers = make([]PropertyModifier, mn)
		for j := range prop.Modifiers {
			m := &prop.Modifiers[j]
			if m.UUID, err = r.uuid(); err != nil {
				return err
			}
			if m.Amount, err = r.f64(); err != nil {
				return err
			}
			if m.Operation, err = r.i8(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ChunkData is forwarded with its coordinates untouched (chunks are
// zoned by coordinate, not rewritten) but tracked by the chunk-refcount
// pass.
type ChunkData struct {
	ChunkX, ChunkZ int32
	Rest           []byte
}

func (p *ChunkData) Encode() []byte {
	w := &writer{}
	w.i32(p.ChunkX)
	w.i32(p.ChunkZ)
	w.raw(p.Rest)
	return w.bytes()
}

func (p *ChunkData) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.ChunkX, err = r.i32(); err != nil {
		return err
	}
	if p.ChunkZ, err = r.i32(); err != nil {
		return err
	}
	p.Rest = r.rest()
	return nil
}

// UpdateLight mirrors ChunkData's coordinate/opaque-rest shape.
type UpdateLight struct {
	ChunkX, ChunkZ int32
	Rest           []byte
}

func (p *UpdateLight) Encode() []byte {
	w := &writer{}
	w.varint(p.ChunkX)
	w.varint(p.ChunkZ)
	w.raw(p.Rest)
	return w.bytes()
}

func (p *UpdateLight) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.ChunkX, err = r.varint(); err != nil {
		return err
	}
	if p.ChunkZ, err = r.varint(); err != nil {
		return err
	}
	p.Rest = r.rest()
	return nil
}

// UnloadChunk is the chunk-refcount pass's decrement signal.
type UnloadChunk struct {
	ChunkX, ChunkZ int32
}

func (p *UnloadChunk) Encode() []byte {
	w := &writer{}
	w.i32(p.ChunkX)
	w.i32(p.ChunkZ)
	return w.bytes()
}

func (p *UnloadChunk) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.ChunkX, err = r.i32(); err != nil {
		return err
	}
	p.ChunkZ, err = r.i32()
	return err
}

// KeepAlive carries an opaque 64-bit id in both directions.
type KeepAlive struct {
	ID int64
}

func (p *KeepAlive) Encode() []byte {
	w := &writer{}
	w.i64(p.ID)
	return w.bytes()
}

func (p *KeepAlive) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.ID, err = r.i64()
	return err
}

// PlayerPositionAndLook is clientbound only. The active backend's copy
// reaches the client with its teleport id unchanged; a dummy's copy is
// answered with a teleport confirm and absorbed by the dummy watcher.
// Position itself is never coordinate-transformed —
// zoning is purely advisory, not a coordinate remap.
type PlayerPositionAndLook struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	Flags      uint8
	TeleportID int32
	HasTeleportID bool
}

func (p *PlayerPositionAndLook) Encode() []byte {
	w := &writer{}
	w.f64(p.X)
	w.f64(p.Y)
	w.f64(p.Z)
	w.f32(p.Yaw)
	w.f32(p.Pitch)
	w.u8(p.Flags)
	if p.HasTeleportID {
		w.varint(p.TeleportID)
	}
	return w.bytes()
}

func (p *PlayerPositionAndLook) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.X, err = r.f64(); err != nil {
		return err
	}
	if p.Y, err = r.f64(); err != nil {
		return err
	}
	if p.Z, err = r.f64(); err != nil {
		return err
	}
	if p.Yaw, err = r.f32(); err != nil {
		return err
	}
	if p.Pitch, err = r.f32(); err != nil {
		return err
	}
	flags, err := r.u8()
	if err != nil {
		return err
	}
	p.Flags = flags
	if id, err := r.varint(); err == nil {
		p.TeleportID = id
		p.HasTeleportID = true
	}
	return nil
}

// PlayerPosition is the client's movement update: coordinates plus an
// on-ground flag, no look angles.
type PlayerPosition struct {
	X, Y, Z  float64
	OnGround bool
}

func (p *PlayerPosition) Encode() []byte {
	w := &writer{}
	w.f64(p.X)
	w.f64(p.Y)
	w.f64(p.Z)
	w.boolean(p.OnGround)
	return w.bytes()
}

func (p *PlayerPosition) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.X, err = r.f64(); err != nil {
		return err
	}
	if p.Y, err = r.f64(); err != nil {
		return err
	}
	if p.Z, err = r.f64(); err != nil {
		return err
	}
	p.OnGround, err = r.bool()
	return err
}

// PluginMessage is forwarded untouched except for the `minecraft:brand`
// channel, which the proxy rewrites to its own configured brand
// regardless of which backend sent it.
type PluginMessage struct {
	Channel string
	Data    []byte
}

func (p *PluginMessage) Encode() []byte {
	w := &writer{}
	w.str(p.Channel)
	w.raw(p.Data)
	return w.bytes()
}

func (p *PluginMessage) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.Channel, err = r.str(); err != nil {
		return err
	}
	p.Data = r.rest()
	return nil
}

// Tags is cached by internal/relay.TagCache; only the first-seen
// instance is ever forwarded to a client.
type Tags struct {
	Raw []byte
}

func (p *Tags) Encode() []byte { return p.Raw }

func (p *Tags) decode(body []byte) error {
	p.Raw = body
	return nil
}

// Chat carries either a client chat message (serverbound) or a
// formatted chat component plus position byte (clientbound). The
// chat/commands pass inspects ClientText for a leading
// '/' before deciding whether to forward or intercept.
type Chat struct {
	ClientText string // serverbound only
	JSON       string // clientbound only
	Position   int8   // clientbound only
}

func (p *Chat) Encode() []byte {
	w := &writer{}
	if p.ClientText != "" {
		w.str(p.ClientText)
		return w.bytes()
	}
	w.str(p.JSON)
	w.i8(p.Position)
	return w.bytes()
}

func (p *Chat) decode(body []byte) error {
	r := newReader(body)
	s, err := r.str()
	if err != nil {
		return err
	}
	if r.buf.Len() == 0 {
		p.ClientText = s
		return nil
	}
	p.JSON = s
	p.Position, err = r.i8()
	return err
}

// Respawn is forwarded with its dimension/gamemode fields untouched; no
// pass or session code inspects it.
type Respawn struct {
	Dimension int32
	Rest      []byte
}

func (p *Respawn) Encode() []byte {
	w := &writer{}
	w.i32(p.Dimension)
	w.raw(p.Rest)
	return w.bytes()
}

func (p *Respawn) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.Dimension, err = r.i32(); err != nil {
		return err
	}
	p.Rest = r.rest()
	return nil
}

// ClientSettings, TeleportConfirm, InteractEntity, EntityAction,
// QueryEntityNBT, UpdateCommandBlockMinecart, Spectate and HeldItemSlot
// all carry at most one entity-id (or, for Spectate, uuid) field that the
// identifier-rewriting pass remaps serverbound; everything else is
// opaque and round-trips through Rest.

type ClientSettings struct {
	Locale string
	Rest   []byte
}

func (p *ClientSettings) Encode() []byte {
	w := &writer{}
	w.str(p.Locale)
	w.raw(p.Rest)
	return w.bytes()
}

func (p *ClientSettings) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.Locale, err = r.str(); err != nil {
		return err
	}
	p.Rest = r.rest()
	return nil
}

type TeleportConfirm struct {
	TeleportID int32
}

func (p *TeleportConfirm) Encode() []byte {
	w := &writer{}
	w.varint(p.TeleportID)
	return w.bytes()
}

func (p *TeleportConfirm) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.TeleportID, err = r.varint()
	return err
}

type InteractEntity struct {
	EntityID int32
	Rest     []byte
}

func (p *InteractEntity) Encode() []byte {
	w := &writer{}
	w.varint(p.EntityID)
	w.raw(p.Rest)
	return w.bytes()
}

func (p *InteractEntity) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.varint(); err != nil {
		return err
	}
	p.Rest = r.rest()
	return nil
}

type EntityAction struct {
	EntityID int32
	Rest     []byte
}

func (p *EntityAction) Encode() []byte {
	w := &writer{}
	w.varint(p.EntityID)
	w.raw(p.Rest)
	return w.bytes()
}

func (p *EntityAction) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.varint(); err != nil {
		return err
	}
	p.Rest = r.rest()
	return nil
}

type QueryEntityNBT struct {
	TransactionID int32
	EntityID      int32
}

func (p *QueryEntityNBT) Encode() []byte {
	w := &writer{}
	w.varint(p.TransactionID)
	w.varint(p.EntityID)
	return w.bytes()
}

func (p *QueryEntityNBT) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.TransactionID, err = r.varint(); err != nil {
		return err
	}
	p.EntityID, err = r.varint()
	return err
}

type UpdateCommandBlockMinecart struct {
	EntityID int32
	Command  string
	TrackOut bool
}

func (p *UpdateCommandBlockMinecart) Encode() []byte {
	w := &writer{}
	w.varint(p.EntityID)
	w.str(p.Command)
	w.boolean(p.TrackOut)
	return w.bytes()
}

func (p *UpdateCommandBlockMinecart) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.EntityID, err = r.varint(); err != nil {
		return err
	}
	if p.Command, err = r.str(); err != nil {
		return err
	}
	p.TrackOut, err = r.bool()
	return err
}

type Spectate struct {
	TargetUUID uuid.UUID
}

func (p *Spectate) Encode() []byte {
	w := &writer{}
	w.uuidBytes(p.TargetUUID)
	return w.bytes()
}

func (p *Spectate) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.TargetUUID, err = r.uuid()
	return err
}

type HeldItemSlot struct {
	Slot int16
}

func (p *HeldItemSlot) Encode() []byte {
	w := &writer{}
	w.i32(int32(p.Slot))
	return w.bytes()
}

func (p *HeldItemSlot) decode(body []byte) error {
	r := newReader(body)
	v, err := r.i32()
	p.Slot = int16(v)
	return err
}

// Handshake, LoginStart, LoginSuccess and SetCompression only ever run
// during the connect/login dialog, never through a running pass.

type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (p *Handshake) Encode() []byte {
	w := &writer{}
	w.varint(p.ProtocolVersion)
	w.str(p.ServerAddress)
	w.i32(int32(p.ServerPort))
	w.varint(p.NextState)
	return w.bytes()
}

func (p *Handshake) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.ProtocolVersion, err = r.varint(); err != nil {
		return err
	}
	if p.ServerAddress, err = r.str(); err != nil {
		return err
	}
	port, err := r.i32()
	if err != nil {
		return err
	}
	p.ServerPort = uint16(port)
	p.NextState, err = r.varint()
	return err
}

type LoginStart struct {
	Name string
}

func (p *LoginStart) Encode() []byte {
	w := &writer{}
	w.str(p.Name)
	return w.bytes()
}

func (p *LoginStart) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.Name, err = r.str()
	return err
}

type LoginSuccess struct {
	UUID     uuid.UUID
	Username string
}

func (p *LoginSuccess) Encode() []byte {
	w := &writer{}
	w.uuidBytes(p.UUID)
	w.str(p.Username)
	return w.bytes()
}

func (p *LoginSuccess) decode(body []byte) error {
	r := newReader(body)
	var err error
	if p.UUID, err = r.uuid(); err != nil {
		return err
	}
	p.Username, err = r.str()
	return err
}

type SetCompression struct {
	Threshold int32
}

func (p *SetCompression) Encode() []byte {
	w := &writer{}
	w.varint(p.Threshold)
	return w.bytes()
}

func (p *SetCompression) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.Threshold, err = r.varint()
	return err
}

// Kick disconnects a client with a JSON chat-component reason. It is
// only ever synthesized by the proxy (timeouts, /stop, shutdown) — a
// backend's own kick is relayed raw.
type Kick struct {
	JSON string
}

func (p *Kick) Encode() []byte {
	w := &writer{}
	w.str(p.JSON)
	return w.bytes()
}

func (p *Kick) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.JSON, err = r.str()
	return err
}

// KickReason builds the JSON body for a Kick from plain text.
func KickReason(text string) string {
	return fmt.Sprintf(`{"text":%q}`, text)
}

// ClientStatus carries the client's respawn/statistics request. The
// dummy login dialog sends action 0 (perform respawn) so a freshly
// logged-in dummy leaves the death screen its backend may think it is on.
type ClientStatus struct {
	Action int32
}

func (p *ClientStatus) Encode() []byte {
	w := &writer{}
	w.varint(p.Action)
	return w.bytes()
}

func (p *ClientStatus) decode(body []byte) error {
	r := newReader(body)
	var err error
	p.Action, err = r.varint()
	return err
}

package protocol

import "fmt"

// Packet is satisfied by every concrete packet struct in packets.go.
type Packet interface {
	// Encode serializes the packet body (not the frame id or length
	// prefix — Conn.WriteFrame / LazyPacket.IntoRaw own that).
	Encode() []byte
}

// decoder is a per-Kind factory: allocate a zero value and decode the
// frame body into it.
type decoder func(body []byte) (Packet, error)

// decodable is implemented by packet structs to fill themselves in from a
// body reader.
type decodable interface {
	Packet
	decode(body []byte) error
}

func decodeInto(p decodable) Packet {
	return p
}

var decoders = map[Kind]decoder{
	KindJoinGame:                   func(b []byte) (Packet, error) { p := &JoinGame{}; return decodeInto(p), p.decode(b) },
	KindSpawnEntity:                func(b []byte) (Packet, error) { p := &SpawnEntity{}; return decodeInto(p), p.decode(b) },
	KindSpawnLivingEntity:          func(b []byte) (Packet, error) { p := &SpawnEntity{}; return decodeInto(p), p.decode(b) },
	KindSpawnPlayer:                func(b []byte) (Packet, error) { p := &SpawnEntity{}; return decodeInto(p), p.decode(b) },
	KindSpawnPainting:              func(b []byte) (Packet, error) { p := &SpawnEntity{}; return decodeInto(p), p.decode(b) },
	KindSpawnExperienceOrb:         func(b []byte) (Packet, error) { p := &SpawnEntity{}; return decodeInto(p), p.decode(b) },
	KindDestroyEntities:            func(b []byte) (Packet, error) { p := &DestroyEntities{}; return decodeInto(p), p.decode(b) },
	KindEntityMetadata:             func(b []byte) (Packet, error) { p := &EntityMetadata{}; return decodeInto(p), p.decode(b) },
	KindEntityProperties:           func(b []byte) (Packet, error) { p := &EntityProperties{}; return decodeInto(p), p.decode(b) },
	KindPlayerInfo:                 func(b []byte) (Packet, error) { p := &PlayerInfo{}; return decodeInto(p), p.decode(b) },
	KindServerKeepAlive:            func(b []byte) (Packet, error) { p := &KeepAlive{}; return decodeInto(p), p.decode(b) },
	KindClientKeepAlive:            func(b []byte) (Packet, error) { p := &KeepAlive{}; return decodeInto(p), p.decode(b) },
	KindChunkData:                  func(b []byte) (Packet, error) { p := &ChunkData{}; return decodeInto(p), p.decode(b) },
	KindUpdateLight:                func(b []byte) (Packet, error) { p := &UpdateLight{}; return decodeInto(p), p.decode(b) },
	KindUnloadChunk:                func(b []byte) (Packet, error) { p := &UnloadChunk{}; return decodeInto(p), p.decode(b) },
	KindPlayerPositionAndLook:      func(b []byte) (Packet, error) { p := &PlayerPositionAndLook{}; return decodeInto(p), p.decode(b) },
	KindPlayerPosition:             func(b []byte) (Packet, error) { p := &PlayerPosition{}; return decodeInto(p), p.decode(b) },
	KindServerPluginMessage:        func(b []byte) (Packet, error) { p := &PluginMessage{}; return decodeInto(p), p.decode(b) },
	KindClientPluginMessage:        func(b []byte) (Packet, error) { p := &PluginMessage{}; return decodeInto(p), p.decode(b) },
	KindTags:                       func(b []byte) (Packet, error) { p := &Tags{}; return decodeInto(p), p.decode(b) },
	KindServerChat:                 func(b []byte) (Packet, error) { p := &Chat{}; return decodeInto(p), p.decode(b) },
	KindClientChat:                 func(b []byte) (Packet, error) { p := &Chat{}; return decodeInto(p), p.decode(b) },
	KindRespawn:                    func(b []byte) (Packet, error) { p := &Respawn{}; return decodeInto(p), p.decode(b) },
	KindClientSettings:             func(b []byte) (Packet, error) { p := &ClientSettings{}; return decodeInto(p), p.decode(b) },
	KindTeleportConfirm:            func(b []byte) (Packet, error) { p := &TeleportConfirm{}; return decodeInto(p), p.decode(b) },
	KindInteractEntity:             func(b []byte) (Packet, error) { p := &InteractEntity{}; return decodeInto(p), p.decode(b) },
	KindEntityAction:               func(b []byte) (Packet, error) { p := &EntityAction{}; return decodeInto(p), p.decode(b) },
	KindQueryEntityNBT:             func(b []byte) (Packet, error) { p := &QueryEntityNBT{}; return decodeInto(p), p.decode(b) },
	KindUpdateCommandBlockMinecart: func(b []byte) (Packet, error) { p := &UpdateCommandBlockMinecart{}; return decodeInto(p), p.decode(b) },
	KindSpectate:                   func(b []byte) (Packet, error) { p := &Spectate{}; return decodeInto(p), p.decode(b) },
	KindHeldItemSlot:               func(b []byte) (Packet, error) { p := &HeldItemSlot{}; return decodeInto(p), p.decode(b) },
	KindHandshake:                  func(b []byte) (Packet, error) { p := &Handshake{}; return decodeInto(p), p.decode(b) },
	KindLoginStart:                 func(b []byte) (Packet, error) { p := &LoginStart{}; return decodeInto(p), p.decode(b) },
	KindLoginSuccess:               func(b []byte) (Packet, error) { p := &LoginSuccess{}; return decodeInto(p), p.decode(b) },
	KindSetCompression:             func(b []byte) (Packet, error) { p := &SetCompression{}; return decodeInto(p), p.decode(b) },
	KindKick:                       func(b []byte) (Packet, error) { p := &Kick{}; return decodeInto(p), p.decode(b) },
	KindLoginDisconnect:            func(b []byte) (Packet, error) { p := &Kick{}; return decodeInto(p), p.decode(b) },
	KindClientStatus:               func(b []byte) (Packet, error) { p := &ClientStatus{}; return decodeInto(p), p.decode(b) },
}

// LazyPacket wraps one received frame. The wire id and body are retained
// verbatim; a typed Packet is parsed out only on first Packet access
// and then cached, so a pass uninterested in a given Kind never
// pays a parse cost.
type LazyPacket struct {
	dir     Direction
	state   State
	frame   *Frame
	kind    Kind
	decoded Packet
	edited  bool
}

// NewLazyPacket wraps a just-read frame.
func NewLazyPacket(dir Direction, state State, f *Frame) *LazyPacket {
	return &LazyPacket{
		dir:   dir,
		state: state,
		frame: f,
		kind:  KindOf(dir, f.ID),
	}
}

// Kind is cheap: it only needs the frame header, never the body.
func (lp *LazyPacket) Kind() Kind { return lp.kind }

// Packet deserializes the body on first call and caches the result.
// Returns (nil, nil) for a Kind with no registered codec — passes that
// don't recognize a Kind should treat this the same as "not interested"
// and forward the raw frame untouched.
func (lp *LazyPacket) Packet() (Packet, error) {
	if lp.decoded != nil {
		return lp.decoded, nil
	}
	dec, ok := decoders[lp.kind]
	if !ok {
		return nil, nil
	}
	p, err := dec(lp.frame.Body)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %v: %w", lp.kind, err)
	}
	lp.decoded = p
	return p, nil
}

// SetPacket replaces the decoded packet, marking this LazyPacket as
// edited so IntoRaw knows it must re-encode rather than forward the
// original bytes.
func (lp *LazyPacket) SetPacket(p Packet) {
	lp.decoded = p
	lp.edited = true
}

// IntoRaw returns the frame to forward: the original bytes untouched if
// nothing ever deserialized or edited this packet, or a freshly encoded
// frame if a pass replaced the decoded packet.
func (lp *LazyPacket) IntoRaw() (*Frame, error) {
	if !lp.edited || lp.decoded == nil {
		return lp.frame, nil
	}
	id, ok := IDOf(lp.dir, lp.kind)
	if !ok {
		return nil, fmt.Errorf("protocol: no wire id for %v in direction %v", lp.kind, lp.dir)
	}
	return &Frame{ID: id, Body: lp.decoded.Encode()}, nil
}

package relay

import (
	"sync"

	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/protocol"
	"github.com/relaycraft/multimc/internal/zone"
)

// chunkSides records which of the two chunk payload subtypes a backend
// has delivered for one coordinate.
type chunkSides struct {
	data  bool
	light bool
}

// BackendConn is one backend connection owned by a session: the framed
// conn, the backend's own entity id for this player (needed to rebind
// the player's mapping row on a swap), and the set of chunks this
// backend has sent, which the per-session refcount compares against.
type BackendConn struct {
	ID   mapping.BackendID
	Conn *protocol.Conn

	// PlayerEID is the eid this backend assigned to the session's player
	// in its JoinGame. Distinct from any mapped id.
	PlayerEID int32

	mu     sync.Mutex
	chunks map[zone.ChunkCoord]chunkSides
}

func newBackendConn(id mapping.BackendID, conn *protocol.Conn, playerEID int32) *BackendConn {
	return &BackendConn{
		ID:        id,
		Conn:      conn,
		PlayerEID: playerEID,
		chunks:    make(map[zone.ChunkCoord]chunkSides),
	}
}

// noteChunk records that this backend sent chunk payload for c, and
// reports whether the backend had any record of c before this call (the
// refcount only moves on the first sighting per backend).
func (b *BackendConn) noteChunk(c zone.ChunkCoord, light bool) (hadChunk bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.chunks[c]
	if light {
		s.light = true
	} else {
		s.data = true
	}
	b.chunks[c] = s
	return ok
}

// noteUnload forgets c and reports whether this backend had it recorded.
func (b *BackendConn) noteUnload(c zone.ChunkCoord) (hadChunk bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.chunks[c]
	delete(b.chunks, c)
	return ok
}

// writePacket encodes and writes one synthesized packet on this backend
// connection (keep-alive replies, teleport confirms, the position-set
// correction).
func (b *BackendConn) writePacket(kind protocol.Kind, p protocol.Packet) error {
	if !b.Conn.Alive() {
		return ErrBackendDead
	}
	id, ok := protocol.IDOf(protocol.ServerBound, kind)
	if !ok {
		return errNoWireID
	}
	return b.Conn.WriteFrame(&protocol.Frame{ID: id, Body: p.Encode()})
}

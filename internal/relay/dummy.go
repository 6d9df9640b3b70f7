package relay

import (
	"math"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/protocol"
	"github.com/relaycraft/multimc/internal/zone"
)

// dummyPositionTolerance is how far (blocks, any axis) a dummy backend's
// idea of the player may drift from the client's real position before
// the watcher corrects it with a position-set plugin message.
const dummyPositionTolerance = 1.0

// positionSetChannel is the plugin channel used to push an absolute
// position into a dummy backend whose physics has drifted.
const positionSetChannel = "multimc:position_set"

// handleDummyFrame absorbs one clientbound frame from a backend the
// client is not watching. The dummy must stay indistinguishable from a
// real idle player to its backend, while leaking to the client only
// what the client actually needs: first-seen chunks, and entity traffic
// that maps into the client's id space.
func (s *ClientSession) handleDummyFrame(bc *BackendConn, frame *protocol.Frame) {
	kind := protocol.KindOf(protocol.ClientBound, frame.ID)

	switch kind {
	case protocol.KindServerKeepAlive:
		// answered here, on the dummy's own writer — the real client must
		// never learn of dummy keep-alives
		lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
		pk, err := lp.Packet()
		if err != nil || pk == nil {
			return
		}
		ka := pk.(*protocol.KeepAlive)
		if err := bc.writePacket(protocol.KindClientKeepAlive, &protocol.KeepAlive{ID: ka.ID}); err != nil {
			bc.Conn.Close()
		}

	case protocol.KindChunkData, protocol.KindUpdateLight:
		light := kind == protocol.KindUpdateLight
		c, ok := chunkCoordOf(frame)
		if !ok {
			return
		}
		if s.chunkArrived(bc, c, light) {
			s.forwardDummyFrame(frame)
		}

	case protocol.KindUnloadChunk:
		c, ok := chunkCoordOf(frame)
		if !ok {
			return
		}
		if s.chunkUnloaded(bc, c) {
			s.forwardDummyFrame(frame)
		}

	case protocol.KindPlayerPositionAndLook:
		s.settleDummyPosition(bc, frame)

	default:
		if !protocol.IsEntityKind(kind) {
			return
		}
		// entity traffic: remap through the identifier pass; forward only
		// if every reference resolved into the client's id space
		lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
		pctx := &PassContext{Dir: protocol.ClientBound, Session: s, Source: bc.ID, SourceConn: bc, Packet: lp}
		if err := s.state.Pipeline.RunIdentifier(pctx); err != nil || pctx.Drop {
			return
		}
		out, err := lp.IntoRaw()
		if err != nil {
			return
		}
		if err := s.clientConn.WriteFrame(out); err != nil {
			s.Close()
		}
	}
}

func (s *ClientSession) forwardDummyFrame(frame *protocol.Frame) {
	if err := s.clientConn.WriteFrame(frame); err != nil {
		s.Close()
	}
}

// settleDummyPosition acknowledges a dummy backend's teleport and, when
// the backend's target position has drifted from the client's real one,
// pushes a correction so the dummy's server-side physics stays parked
// where the player actually is. Never forwarded — the client's view of
// its own position belongs to the active backend alone.
func (s *ClientSession) settleDummyPosition(bc *BackendConn, frame *protocol.Frame) {
	lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
	pk, err := lp.Packet()
	if err != nil || pk == nil {
		return
	}
	pos := pk.(*protocol.PlayerPositionAndLook)
	if pos.HasTeleportID {
		if err := bc.writePacket(protocol.KindTeleportConfirm, &protocol.TeleportConfirm{TeleportID: pos.TeleportID}); err != nil {
			bc.Conn.Close()
			return
		}
	}

	real := s.lastKnownPosition()
	if math.Abs(pos.X-real.X) <= dummyPositionTolerance &&
		math.Abs(pos.Y-real.Y) <= dummyPositionTolerance &&
		math.Abs(pos.Z-real.Z) <= dummyPositionTolerance {
		return
	}
	msg := encodePositionSet(real.X, real.Y, real.Z)
	if err := bc.writePacket(protocol.KindClientPluginMessage, msg); err != nil {
		bc.Conn.Close()
		return
	}
	logging.L().Debugf("[%s] corrected dummy backend %d position drift", s.Name, bc.ID)
}

// encodePositionSet builds the position-set plugin message body: three
// big-endian float64s on the proxy's private channel.
func encodePositionSet(x, y, z float64) *protocol.PluginMessage {
	body := make([]byte, 0, 24)
	for _, v := range []float64{x, y, z} {
		bits := math.Float64bits(v)
		for shift := 56; shift >= 0; shift -= 8 {
			body = append(body, byte(bits>>uint(shift)))
		}
	}
	return &protocol.PluginMessage{Channel: positionSetChannel, Data: body}
}

// chunkCoordOf extracts the chunk coordinate from a chunk-data,
// update-light or unload-chunk frame.
func chunkCoordOf(frame *protocol.Frame) (zone.ChunkCoord, bool) {
	lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
	pk, err := lp.Packet()
	if err != nil || pk == nil {
		return zone.ChunkCoord{}, false
	}
	switch p := pk.(type) {
	case *protocol.ChunkData:
		return zone.ChunkCoord{X: p.ChunkX, Z: p.ChunkZ}, true
	case *protocol.UpdateLight:
		return zone.ChunkCoord{X: p.ChunkX, Z: p.ChunkZ}, true
	case *protocol.UnloadChunk:
		return zone.ChunkCoord{X: p.ChunkX, Z: p.ChunkZ}, true
	default:
		return zone.ChunkCoord{}, false
	}
}

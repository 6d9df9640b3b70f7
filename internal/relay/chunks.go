package relay

import (
	"github.com/relaycraft/multimc/internal/metrics"
	"github.com/relaycraft/multimc/internal/protocol"
	"github.com/relaycraft/multimc/internal/zone"
)

// ChunkRefcountPass deduplicates chunk payloads flowing from the active
// backend. The bookkeeping itself lives on the session (the dummy
// watcher shares it): per chunk, a refcount of how many backend
// connections hold it plus a received flag per payload subtype. The
// client sees exactly one load and exactly one unload per chunk no
// matter how many backends' worlds overlap there.
func ChunkRefcountPass(state *ProxyState) Pass {
	return func(ctx *PassContext) error {
		if ctx.Dir != protocol.ClientBound || ctx.SourceConn == nil {
			return nil
		}
		kind := ctx.Packet.Kind()
		switch kind {
		case protocol.KindChunkData, protocol.KindUpdateLight:
			pk, err := ctx.Packet.Packet()
			if err != nil || pk == nil {
				return err
			}
			var c zone.ChunkCoord
			light := false
			switch p := pk.(type) {
			case *protocol.ChunkData:
				c = zone.ChunkCoord{X: p.ChunkX, Z: p.ChunkZ}
			case *protocol.UpdateLight:
				c = zone.ChunkCoord{X: p.ChunkX, Z: p.ChunkZ}
				light = true
			}
			if !ctx.Session.chunkArrived(ctx.SourceConn, c, light) {
				ctx.Drop = true
				metrics.ObserveChunkRefcountDrop()
			}

		case protocol.KindUnloadChunk:
			pk, err := ctx.Packet.Packet()
			if err != nil || pk == nil {
				return err
			}
			uc := pk.(*protocol.UnloadChunk)
			c := zone.ChunkCoord{X: uc.ChunkX, Z: uc.ChunkZ}
			if !ctx.Session.chunkUnloaded(ctx.SourceConn, c) {
				ctx.Drop = true
				metrics.ObserveChunkRefcountDrop()
			}
		}
		return nil
	}
}
